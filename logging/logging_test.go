package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestLogger() (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := New()
	l.SetOutput(buf)
	return l, buf
}

func TestLoggerLevels(t *testing.T) {
	l, buf := newTestLogger()

	l.Debug("hidden")
	l.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug should be filtered at default level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info should pass at default level")
	}

	buf.Reset()
	l.SetLevel(LevelDebug)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug should pass after SetLevel")
	}

	buf.Reset()
	l.SetLevel(LevelError)
	l.Warn("suppressed")
	l.Error("critical")
	out = buf.String()
	if strings.Contains(out, "suppressed") || !strings.Contains(out, "critical") {
		t.Errorf("level filter wrong: %q", out)
	}
}

func TestLoggerComponent(t *testing.T) {
	l, buf := newTestLogger()
	scoped := l.WithComponent("router")

	scoped.Info("assigning")
	if !strings.Contains(buf.String(), "[router]") {
		t.Errorf("missing component tag: %q", buf.String())
	}
}

func TestLoggerFieldsSorted(t *testing.T) {
	l, buf := newTestLogger()

	l.Info("event", map[string]interface{}{"zeta": 1, "alpha": 2})

	out := buf.String()
	if !strings.Contains(out, "alpha=2 zeta=1") {
		t.Errorf("fields not sorted key=value: %q", out)
	}
}

func TestOrchestrationHelpers(t *testing.T) {
	l, buf := newTestLogger()

	l.TaskSubmitted("t1", "sepsis_check", "critical")
	l.TaskAssigned("t1", "agent-1")
	l.TaskCompleted("t1", true, 40*time.Millisecond)
	l.TaskCompleted("t2", false, time.Second)
	l.TaskRequeued("t3", "agent-2")
	l.AgentRegistered("agent-1", "Sepsis Watch", "emergency")
	l.AgentOffline("agent-2", time.Now())
	l.AgentFailed("agent-2", "crash")

	out := buf.String()
	for _, want := range []string{
		"task_submitted", "task_assigned", "task_completed", "task_failed",
		"task_requeued", "agent_registered", "agent_offline", "agent_failed",
		"priority=critical", "agent=agent-1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
