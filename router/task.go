// Package router owns the task map and the priority-ordered pending queue,
// and matches tasks to capable agents discovered through the registry.
package router

import (
	"time"
)

// Priority orders tasks in the pending queue; 1 is most urgent.
type Priority int

const (
	// PriorityCritical is for life-threatening work (sepsis, MI, stroke).
	PriorityCritical Priority = 1
	// PriorityUrgent is urgent but not immediately life-threatening.
	PriorityUrgent Priority = 2
	// PriorityHigh needs a timely response.
	PriorityHigh Priority = 3
	// PriorityMedium is routine with moderate urgency.
	PriorityMedium Priority = 4
	// PriorityLow is background work and analytics.
	PriorityLow Priority = 5
)

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskStatus represents a task's lifecycle state.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal returns true for states a task never leaves.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InFlight returns true while the task is held by an agent.
func (s TaskStatus) InFlight() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// Task is a unit of work routed to an agent.
type Task struct {
	// ID uniquely identifies the task.
	ID string

	// Type names the kind of work.
	Type string

	// Priority orders the pending queue.
	Priority Priority

	// RequiredCapabilities an agent must declare to take this task.
	// Empty means any available agent qualifies.
	RequiredCapabilities []string

	// Data is the opaque task payload.
	Data map[string]interface{}

	// Status is the current lifecycle state.
	Status TaskStatus

	// AssignedAgentID is the holding agent, empty while unassigned.
	AssignedAgentID string

	// Timing. Zero values mean the event has not happened.
	CreatedAt   time.Time
	AssignedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// Result and Error are mutually exclusive, set at terminal state.
	Result map[string]interface{}
	Error  string

	// Correlation ids.
	PatientID   string
	EncounterID string
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	clone := *t
	if t.RequiredCapabilities != nil {
		clone.RequiredCapabilities = make([]string, len(t.RequiredCapabilities))
		copy(clone.RequiredCapabilities, t.RequiredCapabilities)
	}
	if t.Data != nil {
		clone.Data = make(map[string]interface{}, len(t.Data))
		for k, v := range t.Data {
			clone.Data[k] = v
		}
	}
	if t.Result != nil {
		clone.Result = make(map[string]interface{}, len(t.Result))
		for k, v := range t.Result {
			clone.Result[k] = v
		}
	}
	return &clone
}

// Submission is the inbound task submission contract.
type Submission struct {
	// ID uniquely identifies the task.
	ID string

	// Type names the kind of work. Required.
	Type string

	// Priority of the task. Required, 1-5.
	Priority Priority

	// RequiredCapabilities the assignee must declare. May be empty.
	RequiredCapabilities []string

	// Data is the opaque task payload.
	Data map[string]interface{}

	// Optional correlation ids.
	PatientID   string
	EncounterID string
}
