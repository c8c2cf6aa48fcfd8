// Package logging provides leveled key=value console logging for the
// orchestration core. Components receive a Logger through their configs;
// a nil logger falls back to a shared default writing to stdout.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger writes leveled log lines with optional component scoping.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

var defaultLogger = New()

// Default returns the shared default logger.
func Default() *Logger {
	return defaultLogger
}

// WithComponent returns a new logger scoped to the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as sorted key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a line: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Orchestration event helpers ---
// Thin wrappers so components log the same events the same way.

// TaskSubmitted logs a task entering the queue.
func (l *Logger) TaskSubmitted(taskID, taskType, priority string) {
	l.Info("task_submitted", map[string]interface{}{
		"task_id":  taskID,
		"type":     taskType,
		"priority": priority,
	})
}

// TaskAssigned logs a task being handed to an agent.
func (l *Logger) TaskAssigned(taskID, agentID string) {
	l.Info("task_assigned", map[string]interface{}{
		"task_id": taskID,
		"agent":   agentID,
	})
}

// TaskCompleted logs a task reaching a terminal state.
func (l *Logger) TaskCompleted(taskID string, success bool, duration time.Duration) {
	fields := map[string]interface{}{
		"task_id":  taskID,
		"success":  success,
		"duration": duration.String(),
	}
	if success {
		l.Info("task_completed", fields)
	} else {
		l.Warn("task_failed", fields)
	}
}

// TaskRequeued logs a task returned to pending after an agent failure.
func (l *Logger) TaskRequeued(taskID, agentID string) {
	l.Warn("task_requeued", map[string]interface{}{
		"task_id":    taskID,
		"from_agent": agentID,
	})
}

// AgentRegistered logs an agent joining the registry.
func (l *Logger) AgentRegistered(agentID, name, category string) {
	l.Info("agent_registered", map[string]interface{}{
		"agent":    agentID,
		"name":     name,
		"category": category,
	})
}

// AgentOffline logs an agent missing its heartbeat window.
func (l *Logger) AgentOffline(agentID string, lastHeartbeat time.Time) {
	l.Warn("agent_offline", map[string]interface{}{
		"agent":          agentID,
		"last_heartbeat": lastHeartbeat.UTC().Format(time.RFC3339),
	})
}

// AgentFailed logs an externally reported hard agent failure.
func (l *Logger) AgentFailed(agentID, reason string) {
	l.Error("agent_failed", map[string]interface{}{
		"agent":  agentID,
		"reason": reason,
	})
}

// SubscriberError logs a bus handler error without propagating it.
func (l *Logger) SubscriberError(topic string, err error) {
	l.Error("subscriber_error", map[string]interface{}{
		"topic": topic,
		"error": err.Error(),
	})
}
