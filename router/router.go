package router

import (
	"container/heap"
	"sync"
	"time"

	orcherrors "github.com/lydianai/agent.ailydian.com/errors"
	"github.com/lydianai/agent.ailydian.com/logging"
	"github.com/lydianai/agent.ailydian.com/registry"
)

// Strategy selects among capable candidate agents.
type Strategy string

const (
	// StrategyRoundRobin rotates through candidates.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyLeastLoaded picks the candidate with the fewest active tasks.
	StrategyLeastLoaded Strategy = "least_loaded"
	// StrategyFastest picks the lowest average response time among agents
	// with history, falling back to the first candidate.
	StrategyFastest Strategy = "fastest"
	// StrategyPriority picks the candidate with the highest priority level.
	StrategyPriority Strategy = "priority"
)

// DefaultStrategy is used when none is specified.
const DefaultStrategy = StrategyLeastLoaded

// RoutingStats aggregates router-wide counters.
type RoutingStats struct {
	TotalTasks int `json:"total_tasks"`
	Pending    int `json:"pending"`
	Assigned   int `json:"assigned"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	QueueSize  int `json:"queue_size"`
}

// Config configures a Router.
type Config struct {
	// DefaultStrategy for assignment. Default: least_loaded.
	DefaultStrategy Strategy

	// Logger for routing events. Nil uses the logging default.
	Logger *logging.Logger
}

// Router matches pending tasks to capable, available agents and maintains
// agent performance metrics from task outcomes.
type Router struct {
	registry registry.Registry
	logger   *logging.Logger
	strategy Strategy

	mu         sync.Mutex
	tasks      map[string]*Task
	agentTasks map[string][]string
	queue      pendingQueue
	seq        uint64
	rrCursor   uint64
}

// NewRouter creates a router backed by the given registry.
func NewRouter(reg registry.Registry, cfg Config) *Router {
	strategy := cfg.DefaultStrategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("router")
	}

	return &Router{
		registry:   reg,
		logger:     logger,
		strategy:   strategy,
		tasks:      make(map[string]*Task),
		agentTasks: make(map[string][]string),
	}
}

// Submit validates and enqueues a task, then makes one immediate assignment
// attempt. Validation failures surface synchronously; a task that cannot be
// placed stays PENDING for the assignment loop.
func (r *Router) Submit(sub Submission) (*Task, error) {
	if sub.ID == "" {
		return nil, orcherrors.InvalidInput("task id is required")
	}
	if sub.Type == "" {
		return nil, orcherrors.InvalidInput("task type is required", orcherrors.WithTaskID(sub.ID))
	}
	if !sub.Priority.Valid() {
		return nil, orcherrors.InvalidInput("priority must be between 1 (critical) and 5 (low)", orcherrors.WithTaskID(sub.ID))
	}

	r.mu.Lock()
	if _, exists := r.tasks[sub.ID]; exists {
		r.mu.Unlock()
		return nil, orcherrors.New(orcherrors.ErrCodeAlreadyExists, "duplicate task id", orcherrors.WithTaskID(sub.ID))
	}

	task := &Task{
		ID:                   sub.ID,
		Type:                 sub.Type,
		Priority:             sub.Priority,
		RequiredCapabilities: append([]string(nil), sub.RequiredCapabilities...),
		Data:                 sub.Data,
		Status:               StatusPending,
		CreatedAt:            time.Now().UTC(),
		PatientID:            sub.PatientID,
		EncounterID:          sub.EncounterID,
	}

	r.tasks[task.ID] = task
	r.enqueueLocked(task)
	r.mu.Unlock()

	r.logger.TaskSubmitted(task.ID, task.Type, task.Priority.String())

	r.AssignPending("")

	r.mu.Lock()
	defer r.mu.Unlock()
	return task.Clone(), nil
}

// enqueueLocked pushes a task onto the pending heap.
// Must be called with the lock held.
func (r *Router) enqueueLocked(task *Task) {
	r.seq++
	heap.Push(&r.queue, &queueItem{
		priority: task.Priority,
		seq:      r.seq,
		taskID:   task.ID,
	})
}

// AssignPending drains the pending queue in priority order, assigning each
// task to an agent chosen by the strategy. When the head task has no
// candidate the queue is left intact until the next tick, so an
// unassignable set never busy-spins.
func (r *Router) AssignPending(strategy Strategy) int {
	if strategy == "" {
		strategy = r.strategy
	}

	assigned := 0
	for {
		r.mu.Lock()
		if r.queue.Len() == 0 {
			r.mu.Unlock()
			return assigned
		}

		item := heap.Pop(&r.queue).(*queueItem)
		task, ok := r.tasks[item.taskID]
		if !ok || task.Status != StatusPending {
			// Stale entry from a task that moved on; drop it.
			r.mu.Unlock()
			continue
		}

		agent := r.selectAgentLocked(task, strategy)
		if agent == nil {
			// Put the head back and wait for the next tick.
			heap.Push(&r.queue, item)
			r.mu.Unlock()
			return assigned
		}

		r.assignLocked(task, agent)
		r.mu.Unlock()

		r.logger.TaskAssigned(task.ID, agent.ID)
		assigned++
	}
}

// candidatesLocked returns agents that declare every required capability,
// are ACTIVE or IDLE, and have spare capacity. Order is deterministic
// (sorted by agent id).
func (r *Router) candidatesLocked(task *Task) []*registry.AgentInfo {
	var capable []*registry.AgentInfo

	if len(task.RequiredCapabilities) == 0 {
		capable = r.registry.All(true)
	} else {
		capable = r.registry.FindByCapability(task.RequiredCapabilities[0])
		for _, capability := range task.RequiredCapabilities[1:] {
			if len(capable) == 0 {
				break
			}
			matching := r.registry.FindByCapability(capability)
			ids := make(map[string]struct{}, len(matching))
			for _, a := range matching {
				ids[a.ID] = struct{}{}
			}
			filtered := capable[:0]
			for _, a := range capable {
				if _, ok := ids[a.ID]; ok {
					filtered = append(filtered, a)
				}
			}
			capable = filtered
		}
	}

	available := capable[:0]
	for _, a := range capable {
		if a.Status.Available() && a.HasCapacity() {
			available = append(available, a)
		}
	}
	return available
}

// selectAgentLocked applies the strategy to the candidate set.
func (r *Router) selectAgentLocked(task *Task, strategy Strategy) *registry.AgentInfo {
	candidates := r.candidatesLocked(task)
	if len(candidates) == 0 {
		return nil
	}

	switch strategy {
	case StrategyRoundRobin:
		agent := candidates[r.rrCursor%uint64(len(candidates))]
		r.rrCursor++
		return agent

	case StrategyFastest:
		var fastest *registry.AgentInfo
		for _, a := range candidates {
			if a.AvgResponseTimeMS <= 0 {
				continue
			}
			if fastest == nil || a.AvgResponseTimeMS < fastest.AvgResponseTimeMS {
				fastest = a
			}
		}
		if fastest != nil {
			return fastest
		}
		return candidates[0]

	case StrategyPriority:
		best := candidates[0]
		for _, a := range candidates[1:] {
			if a.PriorityLevel > best.PriorityLevel {
				best = a
			}
		}
		return best

	default: // least_loaded
		best := candidates[0]
		for _, a := range candidates[1:] {
			if a.ActiveTasks < best.ActiveTasks {
				best = a
			}
		}
		return best
	}
}

// assignLocked hands a task to an agent and bumps the agent's load.
// Must be called with the lock held.
func (r *Router) assignLocked(task *Task, agent *registry.AgentInfo) {
	task.AssignedAgentID = agent.ID
	task.AssignedAt = time.Now().UTC()
	task.Status = StatusAssigned

	r.agentTasks[agent.ID] = append(r.agentTasks[agent.ID], task.ID)

	busy := registry.StatusBusy
	active := agent.ActiveTasks + 1
	r.registry.Update(agent.ID, registry.AgentUpdate{
		Status:      &busy,
		ActiveTasks: &active,
	})
}

// Start moves an ASSIGNED task to IN_PROGRESS, reported by the external
// runtime when the agent picks the task up.
func (r *Router) Start(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return orcherrors.NotFound("unknown task", orcherrors.WithTaskID(taskID))
	}
	if task.Status != StatusAssigned {
		return orcherrors.New(orcherrors.ErrCodeConflict, "task is not assigned", orcherrors.WithTaskID(taskID))
	}

	task.Status = StatusInProgress
	task.StartedAt = time.Now().UTC()
	return nil
}

// Complete marks a task terminal and updates the assignee's metrics. With
// success=false the task is marked FAILED. Completing an already terminal
// task is a conflict.
func (r *Router) Complete(taskID string, result map[string]interface{}, success bool) (*Task, error) {
	r.mu.Lock()

	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, orcherrors.NotFound("unknown task", orcherrors.WithTaskID(taskID))
	}
	if task.Status.IsTerminal() {
		r.mu.Unlock()
		return nil, orcherrors.New(orcherrors.ErrCodeConflict, "task already terminal", orcherrors.WithTaskID(taskID))
	}

	task.CompletedAt = time.Now().UTC()
	if success {
		task.Status = StatusCompleted
		task.Result = result
		task.Error = ""
	} else {
		task.Status = StatusFailed
		task.Result = nil
		if task.Error == "" {
			if msg, ok := result["error"].(string); ok {
				task.Error = msg
			} else {
				task.Error = "task failed"
			}
		}
	}

	agentID := task.AssignedAgentID
	assignedAt := task.AssignedAt
	completedAt := task.CompletedAt

	if agentID != "" {
		r.removeAgentTaskLocked(agentID, taskID)
	}
	clone := task.Clone()
	r.mu.Unlock()

	var elapsed time.Duration
	if !assignedAt.IsZero() {
		elapsed = completedAt.Sub(assignedAt)
	}
	if agentID != "" && !assignedAt.IsZero() {
		r.recordOutcome(agentID, success, elapsed, completedAt)
	}

	r.logger.TaskCompleted(taskID, success, elapsed)
	return clone, nil
}

// Fail marks a task FAILED with the given error message.
func (r *Router) Fail(taskID string, errMsg string) (*Task, error) {
	r.mu.Lock()
	if task, ok := r.tasks[taskID]; ok && !task.Status.IsTerminal() {
		task.Error = errMsg
	}
	r.mu.Unlock()

	return r.Complete(taskID, map[string]interface{}{"error": errMsg}, false)
}

// recordOutcome folds one task outcome into the agent's rolling metrics:
// cumulative weighted success rate and running mean response time, both
// computed from the pre-update snapshot. The read-modify-write runs inside
// the registry's critical section so a status change landing concurrently
// (an agent marked ERROR by a failure handler, or swept OFFLINE) is never
// overwritten.
func (r *Router) recordOutcome(agentID string, success bool, elapsed time.Duration, completedAt time.Time) {
	responseMS := float64(elapsed) / float64(time.Millisecond)

	r.registry.Apply(agentID, func(agent registry.AgentInfo) registry.AgentUpdate {
		completed := float64(agent.TasksCompleted)

		upd := registry.AgentUpdate{}

		active := agent.ActiveTasks - 1
		if active < 0 {
			active = 0
		}
		upd.ActiveTasks = &active
		upd.LastTaskAt = &completedAt

		var rate float64
		if success {
			done := agent.TasksCompleted + 1
			upd.TasksCompleted = &done
			rate = (completed*agent.SuccessRate + 100.0) / (completed + 1)
		} else {
			failed := agent.TasksFailed + 1
			upd.TasksFailed = &failed
			rate = (completed * agent.SuccessRate) / (completed + float64(agent.TasksFailed) + 1)
		}
		upd.SuccessRate = &rate

		var avg float64
		if agent.AvgResponseTimeMS > 0 {
			avg = (agent.AvgResponseTimeMS*completed + responseMS) / (completed + 1)
		} else {
			avg = responseMS
		}
		upd.AvgResponseTimeMS = &avg

		// Last in-flight task frees the agent, but only out of the BUSY
		// state the router itself set. An agent marked ERROR or OFFLINE
		// stays down until it recovers through its own path.
		if agent.ActiveTasks <= 1 && agent.Status == registry.StatusBusy {
			idle := registry.StatusIdle
			upd.Status = &idle
		}

		return upd
	})
}

// removeAgentTaskLocked drops one task id from an agent's in-flight list.
// Must be called with the lock held.
func (r *Router) removeAgentTaskLocked(agentID, taskID string) {
	ids := r.agentTasks[agentID]
	for i, id := range ids {
		if id == taskID {
			r.agentTasks[agentID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// RequeueAgentTasks resets every task the agent holds back to PENDING and
// re-enqueues it. Tasks that already reached a terminal state through a
// late completion callback are left untouched. Returns the requeued ids.
func (r *Router) RequeueAgentTasks(agentID string) []string {
	r.mu.Lock()

	var requeued []string
	remaining := r.agentTasks[agentID][:0]
	for _, taskID := range r.agentTasks[agentID] {
		task, ok := r.tasks[taskID]
		if !ok {
			continue
		}
		// Guard: only tasks still in flight may move backward.
		if !task.Status.InFlight() {
			remaining = append(remaining, taskID)
			continue
		}

		task.Status = StatusPending
		task.AssignedAgentID = ""
		task.AssignedAt = time.Time{}
		task.StartedAt = time.Time{}
		r.enqueueLocked(task)
		requeued = append(requeued, taskID)
	}
	r.agentTasks[agentID] = remaining
	r.mu.Unlock()

	for _, taskID := range requeued {
		r.logger.TaskRequeued(taskID, agentID)
	}
	return requeued
}

// Get retrieves a task by id.
func (r *Router) Get(taskID string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// AgentTasks returns the tasks currently held by an agent.
func (r *Router) AgentTasks(agentID string) []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tasks []*Task
	for _, taskID := range r.agentTasks[agentID] {
		if task, ok := r.tasks[taskID]; ok {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks
}

// TasksByStatus returns every task in the given state.
func (r *Router) TasksByStatus(status TaskStatus) []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tasks []*Task
	for _, task := range r.tasks {
		if task.Status == status {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks
}

// Stats returns router-wide counters.
func (r *Router) Stats() RoutingStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := RoutingStats{
		TotalTasks: len(r.tasks),
		QueueSize:  r.queue.Len(),
	}
	for _, task := range r.tasks {
		switch task.Status {
		case StatusPending:
			stats.Pending++
		case StatusAssigned:
			stats.Assigned++
		case StatusInProgress:
			stats.InProgress++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}
