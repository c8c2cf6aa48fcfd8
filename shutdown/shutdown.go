// Package shutdown coordinates graceful teardown of the orchestration core.
//
// Components register handlers in phases: intake stops first so no new tasks
// or registrations arrive, then the background loops drain, then shared
// resources (bus, search index) are released. Handlers within a phase run
// concurrently; phases run in ascending order.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	ErrAlreadyShutdown = errors.New("shutdown already initiated")
	ErrTimeout         = errors.New("shutdown timeout exceeded")
	ErrHandlerFailed   = errors.New("one or more handlers failed")
)

// Standard phases for the orchestration core. Lower runs first.
const (
	// PhaseIntake stops accepting new tasks and registrations.
	PhaseIntake = 10
	// PhaseDrain stops the assignment and monitoring loops.
	PhaseDrain = 20
	// PhaseRelease closes the bus, the activity index and other resources.
	PhaseRelease = 30
)

// Handler is called during shutdown. The context is cancelled when the
// shutdown timeout is reached.
type Handler interface {
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error { return f(ctx) }

// Config configures a Coordinator.
type Config struct {
	// Timeout bounds the whole shutdown sequence. Default: 30s.
	Timeout time.Duration

	// OnHandlerDone, if set, is called after each handler finishes.
	OnHandlerDone func(name string, phase int, took time.Duration, err error)
}

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Coordinator runs registered handlers in phase order exactly once.
type Coordinator struct {
	config Config

	mu       sync.Mutex
	handlers []registration

	once    sync.Once
	done    chan struct{}
	err     error
	signals chan os.Signal
}

// NewCoordinator creates a coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Coordinator{
		config:  config,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a handler to the given phase.
func (c *Coordinator) Register(name string, phase int, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: handler})
}

// RegisterFunc adds a function handler to the given phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.Register(name, phase, HandlerFunc(fn))
}

// Shutdown runs the sequence once; later calls return the first outcome.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.err = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.err
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.signals
		_ = c.ShutdownWithTimeout()
	}()
}

// Trigger injects a termination signal, for callers driving shutdown
// programmatically after HandleSignals.
func (c *Coordinator) Trigger() {
	select {
	case c.signals <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Err reports the shutdown outcome; nil until Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var overall error
	for start := 0; start < len(handlers); {
		end := start
		for end < len(handlers) && handlers[end].phase == handlers[start].phase {
			end++
		}

		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		if c.runPhase(ctx, handlers[start:end]) {
			overall = ErrHandlerFailed
		}
		start = end
	}
	return overall
}

// runPhase executes one phase concurrently; reports whether any handler failed.
func (c *Coordinator) runPhase(ctx context.Context, group []registration) bool {
	errs := make([]error, len(group))
	var wg sync.WaitGroup

	for i, reg := range group {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()
			began := time.Now()
			err := r.handler.OnShutdown(ctx)
			errs[idx] = err
			if c.config.OnHandlerDone != nil {
				c.config.OnHandlerDone(r.name, r.phase, time.Since(began), err)
			}
		}(i, reg)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return true
		}
	}
	return false
}
