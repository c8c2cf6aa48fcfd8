// Package orchestrator composes the registry, router, bus and activity feed
// into the coordination core: it registers the agent catalog, runs the
// assignment and monitoring loops, and reacts to lifecycle events.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lydianai/agent.ailydian.com/activity"
	"github.com/lydianai/agent.ailydian.com/bus"
	"github.com/lydianai/agent.ailydian.com/logging"
	"github.com/lydianai/agent.ailydian.com/registry"
	"github.com/lydianai/agent.ailydian.com/router"
	"github.com/lydianai/agent.ailydian.com/shutdown"
)

// Event topics published by the orchestrator.
const (
	TopicTaskSubmitted   = "task.submitted"
	TopicTaskCompleted   = "task.completed"
	TopicTaskFailed      = "task.failed"
	TopicAgentRegistered = "agent.registered"
	TopicAgentFailed     = "agent.failed"
)

const senderID = "orchestrator"

// TaskRequest is the inbound task submission contract. The orchestrator
// assigns the task id.
type TaskRequest struct {
	Type                 string
	Priority             router.Priority
	RequiredCapabilities []string
	Data                 map[string]interface{}

	// Optional correlation ids.
	PatientID   string
	EncounterID string
}

// Status is an operational snapshot of the whole core.
type Status struct {
	Status          string              `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	UptimeSeconds   float64             `json:"uptime_seconds"`
	AgentStats      registry.Stats      `json:"agent_stats"`
	RoutingStats    router.RoutingStats `json:"routing_stats"`
	BusTopics       []string            `json:"bus_topics"`
	BusMessageCount int                 `json:"bus_message_count"`
}

// Orchestrator wires the components together and drives them.
type Orchestrator struct {
	cfg      Config
	logger   *logging.Logger
	registry registry.Registry
	router   *router.Router
	bus      bus.MessageBus
	feed     *activity.Feed

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New builds an orchestrator from the config. Event handlers are wired
// immediately; loops start on Start.
func New(cfg Config) (*Orchestrator, error) {
	def := DefaultConfig()
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.AssignInterval <= 0 {
		cfg.AssignInterval = def.AssignInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = def.DefaultStrategy
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}

	logger := logging.Default().WithComponent("orchestrator")

	feed, err := activity.NewFeed(activity.Config{MaxEntries: cfg.MaxHistory})
	if err != nil {
		return nil, err
	}

	reg := registry.NewMemoryRegistry(registry.MemoryConfig{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Logger:           logging.Default().WithComponent("registry"),
	})

	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		feed:     feed,
	}

	o.router = router.NewRouter(reg, router.Config{
		DefaultStrategy: cfg.DefaultStrategy,
		Logger:          logging.Default().WithComponent("router"),
	})

	o.bus = bus.NewMemoryBus(bus.Config{
		MaxHistory: cfg.MaxHistory,
		Logger:     logging.Default().WithComponent("bus"),
	})

	if err := o.wireEventHandlers(); err != nil {
		feed.Close()
		return nil, err
	}

	return o, nil
}

// wireEventHandlers subscribes the orchestrator's handlers to its own topics.
func (o *Orchestrator) wireEventHandlers() error {
	handlers := map[string]bus.Handler{
		TopicTaskSubmitted:   o.onTaskSubmitted,
		TopicTaskCompleted:   o.onTaskCompleted,
		TopicTaskFailed:      o.onTaskFailed,
		TopicAgentRegistered: o.onAgentRegistered,
		TopicAgentFailed:     o.onAgentFailed,
	}
	for topic, handler := range handlers {
		if _, err := o.bus.Subscribe(topic, handler); err != nil {
			return err
		}
	}
	return nil
}

// Start registers the catalog, starts the heartbeat monitor and launches
// the assignment and monitoring loops. Starting a running orchestrator is
// a no-op. A failed start leaves the orchestrator stopped: no loops run
// and Stop stays a no-op.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil
	}

	if err := o.registry.Start(); err != nil {
		return err
	}

	for _, spec := range o.cfg.Catalog {
		if _, err := o.RegisterAgent(spec.registration()); err != nil {
			o.registry.Stop()
			return fmt.Errorf("failed to register catalog agent %s: %w", spec.ID, err)
		}
	}

	o.running = true
	o.startedAt = time.Now().UTC()
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})

	go o.runLoops(o.stopCh, o.doneCh)

	o.logger.Info("orchestrator started", map[string]interface{}{
		"agents":   len(o.cfg.Catalog),
		"strategy": string(o.cfg.DefaultStrategy),
	})
	return nil
}

// runLoops drives assignment and performance monitoring until stopped.
func (o *Orchestrator) runLoops(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	assign := time.NewTicker(o.cfg.AssignInterval)
	defer assign.Stop()
	monitor := time.NewTicker(o.cfg.MonitorInterval)
	defer monitor.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-assign.C:
			o.router.AssignPending("")
		case <-monitor.C:
			status := o.Status()
			o.logger.Debug("performance snapshot", map[string]interface{}{
				"agents_total":   status.AgentStats.TotalAgents,
				"agents_offline": status.AgentStats.Offline,
				"tasks_total":    status.RoutingStats.TotalTasks,
				"tasks_pending":  status.RoutingStats.Pending,
				"queue_size":     status.RoutingStats.QueueSize,
			})
		}
	}
}

// Stop halts the loops and the heartbeat monitor. The bus and activity feed
// stay open for post-mortem queries until Close.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh

	err := o.registry.Stop()
	o.logger.Info("orchestrator stopped")
	return err
}

// Close releases the bus and the activity feed after Stop.
func (o *Orchestrator) Close() error {
	if err := o.Stop(); err != nil {
		return err
	}
	if err := o.bus.Close(); err != nil {
		return err
	}
	return o.feed.Close()
}

// RegisterShutdown wires the orchestrator into a shutdown coordinator:
// loops drain first, then the bus and index are released.
func (o *Orchestrator) RegisterShutdown(c *shutdown.Coordinator) {
	c.RegisterFunc("orchestrator-loops", shutdown.PhaseDrain, func(ctx context.Context) error {
		return o.Stop()
	})
	c.RegisterFunc("orchestrator-resources", shutdown.PhaseRelease, func(ctx context.Context) error {
		if err := o.bus.Close(); err != nil {
			return err
		}
		return o.feed.Close()
	})
}

// Running reports whether the loops are active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// SubmitTask assigns a task id, submits to the router and publishes
// task.submitted.
func (o *Orchestrator) SubmitTask(req TaskRequest) (*router.Task, error) {
	id := uuid.New()
	taskID := "task_" + hex.EncodeToString(id[:])[:8]

	task, err := o.router.Submit(router.Submission{
		ID:                   taskID,
		Type:                 req.Type,
		Priority:             req.Priority,
		RequiredCapabilities: req.RequiredCapabilities,
		Data:                 req.Data,
		PatientID:            req.PatientID,
		EncounterID:          req.EncounterID,
	})
	if err != nil {
		return nil, err
	}

	o.publish(TopicTaskSubmitted, map[string]interface{}{
		"task_id":   task.ID,
		"task_type": task.Type,
		"priority":  task.Priority.String(),
	}, senderID)

	return task, nil
}

// StartTask reports that the assigned agent picked a task up.
func (o *Orchestrator) StartTask(taskID string) error {
	return o.router.Start(taskID)
}

// CompleteTask records a successful result and publishes task.completed.
func (o *Orchestrator) CompleteTask(taskID string, result map[string]interface{}) (*router.Task, error) {
	task, err := o.router.Complete(taskID, result, true)
	if err != nil {
		return nil, err
	}

	o.publish(TopicTaskCompleted, map[string]interface{}{
		"task_id":  task.ID,
		"agent_id": task.AssignedAgentID,
	}, task.AssignedAgentID)

	return task, nil
}

// FailTask records a task failure and publishes task.failed.
func (o *Orchestrator) FailTask(taskID string, reason string) (*router.Task, error) {
	task, err := o.router.Fail(taskID, reason)
	if err != nil {
		return nil, err
	}

	o.publish(TopicTaskFailed, map[string]interface{}{
		"task_id":  task.ID,
		"agent_id": task.AssignedAgentID,
		"error":    reason,
	}, task.AssignedAgentID)

	return task, nil
}

// GetTask retrieves a task by id.
func (o *Orchestrator) GetTask(taskID string) (*router.Task, bool) {
	return o.router.Get(taskID)
}

// RegisterAgent registers an agent and publishes agent.registered.
func (o *Orchestrator) RegisterAgent(reg registry.Registration) (*registry.AgentInfo, error) {
	agent, err := o.registry.Register(reg)
	if err != nil {
		return nil, err
	}

	o.publish(TopicAgentRegistered, map[string]interface{}{
		"agent_id": agent.ID,
		"name":     agent.Name,
		"category": string(agent.Category),
	}, agent.ID)

	return agent, nil
}

// DeregisterAgent removes an agent from the registry.
func (o *Orchestrator) DeregisterAgent(agentID string) bool {
	return o.registry.Deregister(agentID)
}

// Heartbeat records a liveness ping from an agent.
func (o *Orchestrator) Heartbeat(agentID string, metrics *registry.HeartbeatMetrics) bool {
	return o.registry.Heartbeat(agentID, metrics)
}

// Agent retrieves one agent record.
func (o *Orchestrator) Agent(agentID string) (*registry.AgentInfo, error) {
	return o.registry.Get(agentID)
}

// Agents lists agents; activeOnly restricts to working states.
func (o *Orchestrator) Agents(activeOnly bool) []*registry.AgentInfo {
	return o.registry.All(activeOnly)
}

// NotifyAgentFailure publishes agent.failed; the failure handler marks the
// agent ERROR and requeues its tasks.
func (o *Orchestrator) NotifyAgentFailure(agentID, reason string) {
	o.publish(TopicAgentFailed, map[string]interface{}{
		"agent_id": agentID,
		"reason":   reason,
	}, senderID)
}

// Status returns an operational snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	running := o.running
	startedAt := o.startedAt
	o.mu.Unlock()

	s := Status{
		Status:          "stopped",
		StartedAt:       startedAt,
		AgentStats:      o.registry.Stats(),
		RoutingStats:    o.router.Stats(),
		BusTopics:       o.bus.Topics(),
		BusMessageCount: o.bus.MessageCount(),
	}
	if running {
		s.Status = "operational"
		s.UptimeSeconds = time.Since(startedAt).Seconds()
	}
	return s
}

// AgentActivity renders recent bus traffic as a feed, newest first. Every
// retained message appears, including topics published by external
// collaborators, so the view is the full event stream rather than just the
// orchestrator's own notifications.
func (o *Orchestrator) AgentActivity(limit int) []*activity.Entry {
	msgs := o.bus.History("", limit)

	entries := make([]*activity.Entry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]

		taskID, _ := msg.Payload["task_id"].(string)
		agentID, _ := msg.Payload["agent_id"].(string)
		if agentID == "" {
			agentID = msg.SenderID
		}
		summary, _ := msg.Payload["description"].(string)
		if summary == "" {
			summary = msg.Topic
		}

		entries = append(entries, &activity.Entry{
			ID:        msg.ID,
			Topic:     msg.Topic,
			Summary:   summary,
			TaskID:    taskID,
			AgentID:   agentID,
			Timestamp: msg.Timestamp,
		})
	}
	return entries
}

// SearchActivity runs a full-text query over recorded events.
func (o *Orchestrator) SearchActivity(query, topic string, limit int) ([]*activity.Entry, error) {
	return o.feed.Search(query, topic, limit)
}

// Bus exposes the message bus for external subscribers.
func (o *Orchestrator) Bus() bus.MessageBus {
	return o.bus
}

// publish emits an event notification. Events are advisory, so a publish
// failure (a closed bus during teardown) is logged rather than surfaced to
// the caller whose operation already succeeded.
func (o *Orchestrator) publish(topic string, payload map[string]interface{}, sender string) {
	if _, err := o.bus.Publish(topic, payload, sender); err != nil {
		o.logger.Warn("event publish failed", map[string]interface{}{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

// --- event handlers ---

func (o *Orchestrator) onTaskSubmitted(msg *bus.Message) error {
	o.logger.Debug("task submitted", msg.Payload)
	return o.record(msg, fmt.Sprintf("task %s submitted (%v, %v)",
		msg.Payload["task_id"], msg.Payload["task_type"], msg.Payload["priority"]))
}

func (o *Orchestrator) onTaskCompleted(msg *bus.Message) error {
	o.logger.Info("task completed", msg.Payload)
	return o.record(msg, fmt.Sprintf("task %s completed by %v",
		msg.Payload["task_id"], msg.Payload["agent_id"]))
}

func (o *Orchestrator) onTaskFailed(msg *bus.Message) error {
	o.logger.Error("task failed", msg.Payload)
	return o.record(msg, fmt.Sprintf("task %s failed: %v",
		msg.Payload["task_id"], msg.Payload["error"]))
}

func (o *Orchestrator) onAgentRegistered(msg *bus.Message) error {
	o.logger.Info("agent registered", msg.Payload)
	return o.record(msg, fmt.Sprintf("agent %v (%v) registered",
		msg.Payload["agent_id"], msg.Payload["name"]))
}

// onAgentFailed is the recovery path: mark the agent ERROR, pull its
// in-flight tasks back to the queue and try to place them elsewhere.
func (o *Orchestrator) onAgentFailed(msg *bus.Message) error {
	agentID, _ := msg.Payload["agent_id"].(string)
	reason, _ := msg.Payload["reason"].(string)
	o.logger.AgentFailed(agentID, reason)

	if agentID == "" {
		return nil
	}

	errStatus := registry.StatusError
	o.registry.Update(agentID, registry.AgentUpdate{Status: &errStatus})

	requeued := o.router.RequeueAgentTasks(agentID)
	if len(requeued) > 0 {
		o.router.AssignPending("")
	}

	return o.record(msg, fmt.Sprintf("agent %s failed, %d tasks requeued", agentID, len(requeued)))
}

// record writes one bus message into the activity feed.
func (o *Orchestrator) record(msg *bus.Message, summary string) error {
	taskID, _ := msg.Payload["task_id"].(string)
	agentID, _ := msg.Payload["agent_id"].(string)
	if agentID == "" {
		agentID = msg.SenderID
	}

	_, err := o.feed.Record(activity.Entry{
		Topic:     msg.Topic,
		Summary:   summary,
		TaskID:    taskID,
		AgentID:   agentID,
		Timestamp: msg.Timestamp,
	})
	return err
}
