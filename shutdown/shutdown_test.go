package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoordinator_PhaseOrder(t *testing.T) {
	c := NewCoordinator(Config{})

	var mu sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Registered out of order on purpose.
	c.RegisterFunc("release", PhaseRelease, record("release"))
	c.RegisterFunc("intake", PhaseIntake, record("intake"))
	c.RegisterFunc("drain", PhaseDrain, record("drain"))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	want := []string{"intake", "drain", "release"}
	if len(order) != len(want) {
		t.Fatalf("ran %d handlers, want %d", len(order), len(want))
	}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("order[%d] = %q, want %q", i, order[i], name)
		}
	}
}

func TestCoordinator_SamePhaseConcurrent(t *testing.T) {
	c := NewCoordinator(Config{})

	var running int32
	var peak int32
	slow := func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	c.RegisterFunc("a", PhaseDrain, slow)
	c.RegisterFunc("b", PhaseDrain, slow)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if atomic.LoadInt32(&peak) != 2 {
		t.Errorf("peak concurrency = %d, want handlers in one phase to overlap", peak)
	}
}

func TestCoordinator_HandlerFailure(t *testing.T) {
	c := NewCoordinator(Config{})

	ran := false
	c.RegisterFunc("bad", PhaseIntake, func(ctx context.Context) error {
		return errors.New("refusing")
	})
	c.RegisterFunc("later", PhaseRelease, func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := c.Shutdown(context.Background())
	if err != ErrHandlerFailed {
		t.Errorf("Shutdown = %v, want ErrHandlerFailed", err)
	}
	if !ran {
		t.Error("later phases should still run after a failure")
	}
	if c.Err() != ErrHandlerFailed {
		t.Errorf("Err = %v", c.Err())
	}
}

func TestCoordinator_ShutdownOnce(t *testing.T) {
	c := NewCoordinator(Config{})

	count := 0
	c.RegisterFunc("once", PhaseIntake, func(ctx context.Context) error {
		count++
		return nil
	})

	c.Shutdown(context.Background())
	c.Shutdown(context.Background())

	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
}

func TestCoordinator_Timeout(t *testing.T) {
	c := NewCoordinator(Config{Timeout: 20 * time.Millisecond})

	c.RegisterFunc("stuck", PhaseIntake, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ran := false
	c.RegisterFunc("after", PhaseRelease, func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := c.ShutdownWithTimeout()
	if err != ErrTimeout {
		t.Errorf("Shutdown = %v, want ErrTimeout", err)
	}
	if ran {
		t.Error("phases after the deadline should not run")
	}
}

func TestCoordinator_TriggerAndDone(t *testing.T) {
	c := NewCoordinator(Config{Timeout: time.Second})
	c.RegisterFunc("noop", PhaseIntake, func(ctx context.Context) error { return nil })
	c.HandleSignals()

	if c.Err() != nil {
		t.Errorf("Err before shutdown = %v, want nil", c.Err())
	}

	c.Trigger()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done never closed after Trigger")
	}
	if c.Err() != nil {
		t.Errorf("Err = %v", c.Err())
	}
}

func TestCoordinator_OnHandlerDone(t *testing.T) {
	var names []string
	c := NewCoordinator(Config{
		OnHandlerDone: func(name string, phase int, took time.Duration, err error) {
			names = append(names, name)
		},
	})
	c.RegisterFunc("a", PhaseIntake, func(ctx context.Context) error { return nil })
	c.RegisterFunc("b", PhaseDrain, func(ctx context.Context) error { return nil })

	c.Shutdown(context.Background())

	if len(names) != 2 {
		t.Errorf("progress callback ran %d times, want 2", len(names))
	}
}
