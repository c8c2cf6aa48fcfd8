package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeAgentOffline, "agent gone", WithAgentID("agent-1"), WithTaskID("t1"))

	if err.Code() != ErrCodeAgentOffline {
		t.Errorf("Code = %v", err.Code())
	}
	if err.Category() != CategoryTransient {
		t.Errorf("Category = %v, want default transient", err.Category())
	}
	if !err.Retryable() {
		t.Error("transient error should be retryable")
	}
	if err.AgentID() != "agent-1" || err.TaskID() != "t1" {
		t.Errorf("context = %q/%q", err.AgentID(), err.TaskID())
	}
	if err.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestRetryableOverride(t *testing.T) {
	err := New(ErrCodeTimeout, "slow", WithRetryable(false))
	if err.Retryable() {
		t.Error("explicit override should beat category default")
	}

	err = New(ErrCodeInvalidInput, "bad", WithRetryable(true))
	if !err.Retryable() {
		t.Error("explicit override should beat category default")
	}
}

func TestCategoryOverride(t *testing.T) {
	err := New(ErrCodeInternal, "flaky subsystem", WithCategory(CategoryTransient))
	if err.Category() != CategoryTransient {
		t.Errorf("Category = %v", err.Category())
	}
	if !err.Retryable() {
		t.Error("transient override should make the error retryable")
	}
}

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New(ErrCodeUnavailable, "registry unreachable", WithCause(cause))

	if got := err.Error(); got != "registry unreachable: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
}

func TestWrap(t *testing.T) {
	base := stderrors.New("disk full")
	err := Wrap(base, "failed to persist", WithTaskID("t1"))

	if err.Code() != ErrCodeInternal {
		t.Errorf("Code = %v, want INTERNAL for plain errors", err.Code())
	}
	if err.TaskID() != "t1" {
		t.Errorf("TaskID = %q", err.TaskID())
	}
	if !stderrors.Is(err, base) {
		t.Error("wrapped cause lost")
	}

	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	inner := New(ErrCodeAgentBusy, "no slots", WithAgentID("agent-1"))
	err := Wrap(inner, "assignment failed")

	if err.Code() != ErrCodeAgentBusy {
		t.Errorf("Code = %v, want inner code preserved", err.Code())
	}
	if err.AgentID() != "agent-1" {
		t.Errorf("AgentID = %q, want inherited", err.AgentID())
	}
}

func TestWrapContextErrors(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, "assignment timed out")
	if err.Code() != ErrCodeTimeout {
		t.Errorf("Code = %v, want TIMEOUT", err.Code())
	}

	err = Wrap(context.Canceled, "shutting down")
	if err.Code() != ErrCodeCanceled {
		t.Errorf("Code = %v, want CANCELED", err.Code())
	}
}

func TestIsAndCode(t *testing.T) {
	err := NotFound("no such task", WithTaskID("t1"))

	if !Is(err, ErrCodeNotFound) {
		t.Error("Is should match the code")
	}
	if Is(err, ErrCodeTimeout) {
		t.Error("Is matched the wrong code")
	}
	if Is(nil, ErrCodeNotFound) {
		t.Error("Is(nil) should be false")
	}

	if Code(err) != ErrCodeNotFound {
		t.Errorf("Code = %v", Code(err))
	}
	if Code(stderrors.New("plain")) != "" {
		t.Errorf("plain errors should have no code")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(AgentOffline("agent-1")) {
		t.Error("AGENT_OFFLINE should be retryable")
	}
	if IsRetryable(InvalidInput("bad payload")) {
		t.Error("INVALID_INPUT should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestRecoverPanic(t *testing.T) {
	err := RecoverPanic("boom")
	if err.Code() != ErrCodePanic {
		t.Errorf("Code = %v", err.Code())
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("message %q should carry the panic value", err.Error())
	}

	if RecoverPanic(nil) != nil {
		t.Error("RecoverPanic(nil) should be nil")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := TaskFailed("t1", "model timeout", WithAgentID("agent-1"))

	data, jerr := json.Marshal(err)
	if jerr != nil {
		t.Fatalf("marshal error: %v", jerr)
	}

	var decoded map[string]interface{}
	if jerr := json.Unmarshal(data, &decoded); jerr != nil {
		t.Fatalf("unmarshal error: %v", jerr)
	}

	if decoded["code"] != "TASK_FAILED" {
		t.Errorf("code = %v", decoded["code"])
	}
	if decoded["task_id"] != "t1" || decoded["agent_id"] != "agent-1" {
		t.Errorf("context = %v/%v", decoded["task_id"], decoded["agent_id"])
	}
	if decoded["retryable"] != false {
		t.Errorf("retryable = %v", decoded["retryable"])
	}
}

func TestDefaultCategories(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want ErrorCategory
	}{
		{ErrCodeTimeout, CategoryTransient},
		{ErrCodeAgentOffline, CategoryTransient},
		{ErrCodeInvalidInput, CategoryPermanent},
		{ErrCodeConflict, CategoryPermanent},
		{ErrCodeCapacity, CategoryResource},
		{ErrCodePanic, CategoryInternal},
	}
	for _, tc := range cases {
		if got := tc.code.DefaultCategory(); got != tc.want {
			t.Errorf("%v category = %v, want %v", tc.code, got, tc.want)
		}
	}
}
