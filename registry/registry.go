// Package registry provides agent registration and discovery for the
// orchestration core.
//
// Agents register with a category, a capability set and a concurrency limit.
// The registry indexes them for capability- and category-based discovery,
// tracks rolling performance metrics, and runs a heartbeat monitor that
// flips silent agents to OFFLINE.
package registry

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrNotFound        = errors.New("agent not found")
	ErrClosed          = errors.New("registry closed")
	ErrInvalidID       = errors.New("invalid agent ID")
	ErrInvalidCategory = errors.New("invalid agent category")
	ErrInvalidPriority = errors.New("priority level must be between 1 and 10")
)

// Status represents an agent's operational state.
type Status string

const (
	StatusActive      Status = "active"
	StatusIdle        Status = "idle"
	StatusBusy        Status = "busy"
	StatusError       Status = "error"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
)

// Available reports whether an agent in this state can take new work.
func (s Status) Available() bool {
	return s == StatusActive || s == StatusIdle
}

// Category is an agent's functional category.
type Category string

const (
	CategoryEmergency   Category = "emergency"
	CategoryClinical    Category = "clinical"
	CategoryQuantum     Category = "quantum"
	CategoryResearch    Category = "research"
	CategoryOperational Category = "operational"
	CategoryAnalytics   Category = "analytics"
)

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryEmergency, CategoryClinical, CategoryQuantum,
		CategoryResearch, CategoryOperational, CategoryAnalytics:
		return true
	default:
		return false
	}
}

// AgentInfo is the registry's record of an agent.
type AgentInfo struct {
	// ID uniquely identifies the agent.
	ID string

	// Name is a human-readable name.
	Name string

	// Category is the agent's functional category.
	Category Category

	// Capabilities lists what the agent can do (opaque tags).
	Capabilities []string

	// Status is the agent's current operational state.
	Status Status

	// PriorityLevel ranks the agent 1-10, higher is more important.
	PriorityLevel int

	// MaxConcurrentTasks caps in-flight assignments.
	MaxConcurrentTasks int

	// ActiveTasks is the current in-flight assignment count.
	ActiveTasks int

	// Rolling metrics.
	TasksCompleted    int
	TasksFailed       int
	SuccessRate       float64 // percentage, 0-100
	AvgResponseTimeMS float64

	// Resource usage reported via heartbeat.
	CPUPercent float64
	MemoryMB   float64

	// Lifecycle timestamps.
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	LastTaskAt    time.Time // zero if the agent has never run a task

	// Metadata holds additional key-value pairs.
	Metadata map[string]string
}

// HasCapability checks if the agent declares a specific capability.
func (a *AgentInfo) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the agent can accept another task.
func (a *AgentInfo) HasCapacity() bool {
	return a.ActiveTasks < a.MaxConcurrentTasks
}

// Clone returns a deep copy of the record.
func (a *AgentInfo) Clone() *AgentInfo {
	clone := *a
	if a.Capabilities != nil {
		clone.Capabilities = make([]string, len(a.Capabilities))
		copy(clone.Capabilities, a.Capabilities)
	}
	if a.Metadata != nil {
		clone.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Registration is the inbound agent registration contract.
type Registration struct {
	ID           string
	Name         string
	Category     Category
	Capabilities []string

	// PriorityLevel defaults to 5 when zero.
	PriorityLevel int

	// MaxConcurrentTasks defaults to 5 when zero.
	MaxConcurrentTasks int

	Metadata map[string]string
}

// Validate checks the registration.
func (r Registration) Validate() error {
	if r.ID == "" {
		return ErrInvalidID
	}
	if !r.Category.Valid() {
		return ErrInvalidCategory
	}
	if r.PriorityLevel != 0 && (r.PriorityLevel < 1 || r.PriorityLevel > 10) {
		return ErrInvalidPriority
	}
	return nil
}

// AgentUpdate carries optional field updates; nil fields are left unchanged.
// Capability and category changes go through re-registration so index
// maintenance stays in one place.
type AgentUpdate struct {
	Name               *string
	Status             *Status
	PriorityLevel      *int
	MaxConcurrentTasks *int
	ActiveTasks        *int
	TasksCompleted     *int
	TasksFailed        *int
	SuccessRate        *float64
	AvgResponseTimeMS  *float64
	CPUPercent         *float64
	MemoryMB           *float64
	LastTaskAt         *time.Time
}

// HeartbeatMetrics carries optional metrics on a heartbeat ping.
type HeartbeatMetrics struct {
	CPUPercent  *float64
	MemoryMB    *float64
	ActiveTasks *int
}

// Stats aggregates registry-wide counters.
type Stats struct {
	TotalAgents int `json:"total_agents"`

	Active      int `json:"active"`
	Idle        int `json:"idle"`
	Busy        int `json:"busy"`
	Error       int `json:"error"`
	Offline     int `json:"offline"`
	Maintenance int `json:"maintenance"`

	TotalTasksCompleted int `json:"total_tasks_completed"`
	TotalTasksFailed    int `json:"total_tasks_failed"`

	// AvgSuccessRate is the mean of per-agent success rates, 100 when empty.
	AvgSuccessRate float64 `json:"avg_success_rate"`
}

// Registry provides agent registration, discovery and liveness tracking.
type Registry interface {
	// Register adds an agent or, if the ID exists, updates it and marks it
	// ACTIVE. Registration is idempotent.
	Register(reg Registration) (*AgentInfo, error)

	// Deregister removes an agent from the registry and all indices.
	// Returns false if the agent does not exist.
	Deregister(id string) bool

	// Update applies field updates and bumps the agent's heartbeat.
	// Returns ErrNotFound for an unknown id.
	Update(id string, upd AgentUpdate) (*AgentInfo, error)

	// Apply atomically computes an update from the agent's current record
	// and applies it inside one critical section. fn receives a snapshot;
	// nothing else can change the agent between the read and the write.
	// Returns ErrNotFound for an unknown id.
	Apply(id string, fn func(AgentInfo) AgentUpdate) (*AgentInfo, error)

	// Heartbeat records a liveness ping, bringing an OFFLINE agent back to
	// ACTIVE. Returns false for an unknown id.
	Heartbeat(id string, metrics *HeartbeatMetrics) bool

	// Get retrieves an agent by ID. Returns ErrNotFound if absent.
	Get(id string) (*AgentInfo, error)

	// FindByCapability returns ACTIVE or IDLE agents declaring the capability.
	FindByCapability(capability string) []*AgentInfo

	// FindByCategory returns agents in the category, any status.
	FindByCategory(category Category) []*AgentInfo

	// All returns every agent; activeOnly restricts to ACTIVE/IDLE/BUSY.
	All(activeOnly bool) []*AgentInfo

	// Stats returns aggregate counters.
	Stats() Stats

	// Start launches the heartbeat monitor.
	Start() error

	// Stop halts the heartbeat monitor, waiting for the current tick.
	Stop() error
}
