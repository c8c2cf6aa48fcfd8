package registry

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lydianai/agent.ailydian.com/logging"
)

// MemoryRegistry is the in-memory implementation of Registry.
//
// The agent map and the capability/category indices are guarded by a single
// mutex and always change inside one critical section, so an agent's id is
// in the capability index for exactly its declared capabilities and in
// exactly one category index at all times.
type MemoryRegistry struct {
	mu       sync.RWMutex
	agents   map[string]*AgentInfo
	capIndex map[string]map[string]struct{}
	catIndex map[Category]map[string]struct{}

	heartbeatTimeout time.Duration
	logger           *logging.Logger

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// MemoryConfig configures the in-memory registry.
type MemoryConfig struct {
	// HeartbeatTimeout is how long an agent may stay silent before the
	// monitor flips it to OFFLINE. Default: 60 seconds.
	HeartbeatTimeout time.Duration

	// Logger for registry events. Nil uses the logging default.
	Logger *logging.Logger
}

// NewMemoryRegistry creates a new in-memory registry. The heartbeat monitor
// does not run until Start is called.
func NewMemoryRegistry(cfg MemoryConfig) *MemoryRegistry {
	timeout := cfg.HeartbeatTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default().WithComponent("registry")
	}

	return &MemoryRegistry{
		agents:           make(map[string]*AgentInfo),
		capIndex:         make(map[string]map[string]struct{}),
		catIndex:         make(map[Category]map[string]struct{}),
		heartbeatTimeout: timeout,
		logger:           logger,
	}
}

// Register adds or updates an agent. Re-registering an existing id updates
// its declaration, reindexes it, and marks it ACTIVE.
func (r *MemoryRegistry) Register(reg Registration) (*AgentInfo, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	agent, exists := r.agents[reg.ID]
	if exists {
		r.unindexLocked(agent)
		agent.Name = reg.Name
		agent.Category = reg.Category
		agent.Capabilities = append([]string(nil), reg.Capabilities...)
		if reg.PriorityLevel != 0 {
			agent.PriorityLevel = reg.PriorityLevel
		}
		if reg.MaxConcurrentTasks != 0 {
			agent.MaxConcurrentTasks = reg.MaxConcurrentTasks
		}
		if reg.Metadata != nil {
			agent.Metadata = reg.Metadata
		}
		agent.Status = StatusActive
		agent.LastHeartbeat = now
	} else {
		priority := reg.PriorityLevel
		if priority == 0 {
			priority = 5
		}
		maxTasks := reg.MaxConcurrentTasks
		if maxTasks == 0 {
			maxTasks = 5
		}
		agent = &AgentInfo{
			ID:                 reg.ID,
			Name:               reg.Name,
			Category:           reg.Category,
			Capabilities:       append([]string(nil), reg.Capabilities...),
			Status:             StatusActive,
			PriorityLevel:      priority,
			MaxConcurrentTasks: maxTasks,
			SuccessRate:        100.0,
			RegisteredAt:       now,
			LastHeartbeat:      now,
			Metadata:           reg.Metadata,
		}
		r.agents[reg.ID] = agent
	}

	r.indexLocked(agent)

	r.logger.AgentRegistered(agent.ID, agent.Name, string(agent.Category))
	return agent.Clone(), nil
}

// Deregister removes an agent and all its index entries.
func (r *MemoryRegistry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return false
	}

	r.unindexLocked(agent)
	delete(r.agents, id)

	r.logger.Info("agent_deregistered", map[string]interface{}{"agent": id})
	return true
}

// indexLocked adds the agent to the capability and category indices.
// Must be called with the lock held.
func (r *MemoryRegistry) indexLocked(agent *AgentInfo) {
	for _, capability := range agent.Capabilities {
		ids, ok := r.capIndex[capability]
		if !ok {
			ids = make(map[string]struct{})
			r.capIndex[capability] = ids
		}
		ids[agent.ID] = struct{}{}
	}

	ids, ok := r.catIndex[agent.Category]
	if !ok {
		ids = make(map[string]struct{})
		r.catIndex[agent.Category] = ids
	}
	ids[agent.ID] = struct{}{}
}

// unindexLocked removes the agent from every index entry.
// Must be called with the lock held.
func (r *MemoryRegistry) unindexLocked(agent *AgentInfo) {
	for _, capability := range agent.Capabilities {
		if ids, ok := r.capIndex[capability]; ok {
			delete(ids, agent.ID)
			if len(ids) == 0 {
				delete(r.capIndex, capability)
			}
		}
	}

	if ids, ok := r.catIndex[agent.Category]; ok {
		delete(ids, agent.ID)
		if len(ids) == 0 {
			delete(r.catIndex, agent.Category)
		}
	}
}

// Update applies the non-nil fields and bumps the agent's heartbeat.
func (r *MemoryRegistry) Update(id string, upd AgentUpdate) (*AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return nil, ErrNotFound
	}

	r.applyLocked(agent, upd)
	return agent.Clone(), nil
}

// Apply computes an update from the agent's current record and applies it
// without releasing the lock in between, so the read-modify-write is atomic
// with respect to every other mutation.
func (r *MemoryRegistry) Apply(id string, fn func(AgentInfo) AgentUpdate) (*AgentInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return nil, ErrNotFound
	}

	r.applyLocked(agent, fn(*agent.Clone()))
	return agent.Clone(), nil
}

// applyLocked merges the non-nil fields into the record and bumps the
// heartbeat. Must be called with the lock held.
func (r *MemoryRegistry) applyLocked(agent *AgentInfo, upd AgentUpdate) {
	if upd.Name != nil {
		agent.Name = *upd.Name
	}
	if upd.Status != nil {
		agent.Status = *upd.Status
	}
	if upd.PriorityLevel != nil {
		agent.PriorityLevel = *upd.PriorityLevel
	}
	if upd.MaxConcurrentTasks != nil {
		agent.MaxConcurrentTasks = *upd.MaxConcurrentTasks
	}
	if upd.ActiveTasks != nil {
		agent.ActiveTasks = *upd.ActiveTasks
	}
	if upd.TasksCompleted != nil {
		agent.TasksCompleted = *upd.TasksCompleted
	}
	if upd.TasksFailed != nil {
		agent.TasksFailed = *upd.TasksFailed
	}
	if upd.SuccessRate != nil {
		agent.SuccessRate = math.Min(100, math.Max(0, *upd.SuccessRate))
	}
	if upd.AvgResponseTimeMS != nil {
		agent.AvgResponseTimeMS = *upd.AvgResponseTimeMS
	}
	if upd.CPUPercent != nil {
		agent.CPUPercent = *upd.CPUPercent
	}
	if upd.MemoryMB != nil {
		agent.MemoryMB = *upd.MemoryMB
	}
	if upd.LastTaskAt != nil {
		agent.LastTaskAt = *upd.LastTaskAt
	}

	agent.LastHeartbeat = time.Now().UTC()
}

// Heartbeat records a liveness ping. An OFFLINE agent comes back ACTIVE.
func (r *MemoryRegistry) Heartbeat(id string, metrics *HeartbeatMetrics) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[id]
	if !exists {
		return false
	}

	if metrics != nil {
		if metrics.CPUPercent != nil {
			agent.CPUPercent = *metrics.CPUPercent
		}
		if metrics.MemoryMB != nil {
			agent.MemoryMB = *metrics.MemoryMB
		}
		if metrics.ActiveTasks != nil {
			agent.ActiveTasks = *metrics.ActiveTasks
		}
	}

	agent.LastHeartbeat = time.Now().UTC()

	if agent.Status == StatusOffline {
		agent.Status = StatusActive
		r.logger.Info("agent_online", map[string]interface{}{"agent": id})
	}

	return true
}

// Get retrieves an agent by ID.
func (r *MemoryRegistry) Get(id string) (*AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[id]
	if !exists {
		return nil, ErrNotFound
	}
	return agent.Clone(), nil
}

// FindByCapability returns ACTIVE or IDLE agents declaring the capability,
// sorted by id for deterministic candidate ordering.
func (r *MemoryRegistry) FindByCapability(capability string) []*AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*AgentInfo
	for id := range r.capIndex[capability] {
		agent := r.agents[id]
		if agent.Status.Available() {
			result = append(result, agent.Clone())
		}
	}

	sortByID(result)
	return result
}

// FindByCategory returns every agent in the category regardless of status.
func (r *MemoryRegistry) FindByCategory(category Category) []*AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*AgentInfo
	for id := range r.catIndex[category] {
		result = append(result, r.agents[id].Clone())
	}

	sortByID(result)
	return result
}

// All returns every agent; activeOnly restricts to ACTIVE/IDLE/BUSY.
func (r *MemoryRegistry) All(activeOnly bool) []*AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*AgentInfo
	for _, agent := range r.agents {
		if activeOnly && !(agent.Status == StatusActive || agent.Status == StatusIdle || agent.Status == StatusBusy) {
			continue
		}
		result = append(result, agent.Clone())
	}

	sortByID(result)
	return result
}

// Stats returns aggregate counters.
func (r *MemoryRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalAgents:    len(r.agents),
		AvgSuccessRate: 100.0,
	}

	var rateSum float64
	for _, agent := range r.agents {
		switch agent.Status {
		case StatusActive:
			stats.Active++
		case StatusIdle:
			stats.Idle++
		case StatusBusy:
			stats.Busy++
		case StatusError:
			stats.Error++
		case StatusOffline:
			stats.Offline++
		case StatusMaintenance:
			stats.Maintenance++
		}
		stats.TotalTasksCompleted += agent.TasksCompleted
		stats.TotalTasksFailed += agent.TasksFailed
		rateSum += agent.SuccessRate
	}

	if stats.TotalAgents > 0 {
		stats.AvgSuccessRate = math.Round(rateSum/float64(stats.TotalAgents)*100) / 100
	}
	return stats
}

// Start launches the heartbeat monitor. Idempotent.
func (r *MemoryRegistry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.monitorHeartbeats(r.stopCh, r.doneCh)
	return nil
}

// Stop halts the heartbeat monitor and waits for the current tick.
func (r *MemoryRegistry) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

// monitorHeartbeats flips agents whose last heartbeat is older than the
// timeout to OFFLINE. A soft liveness failure only changes status; the
// monitor never removes agents.
func (r *MemoryRegistry) monitorHeartbeats(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.heartbeatTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.sweepStaleAgents()
		}
	}
}

// sweepStaleAgents marks silent agents OFFLINE.
func (r *MemoryRegistry) sweepStaleAgents() {
	now := time.Now().UTC()

	r.mu.Lock()
	var flipped []*AgentInfo
	for _, agent := range r.agents {
		if agent.Status == StatusOffline {
			continue
		}
		if now.Sub(agent.LastHeartbeat) > r.heartbeatTimeout {
			agent.Status = StatusOffline
			flipped = append(flipped, agent.Clone())
		}
	}
	r.mu.Unlock()

	for _, agent := range flipped {
		r.logger.AgentOffline(agent.ID, agent.LastHeartbeat)
	}
}

func sortByID(agents []*AgentInfo) {
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].ID < agents[j].ID
	})
}
