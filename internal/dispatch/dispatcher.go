package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/BJam/fusion-cam-mcp/internal/wire"
)

const (
	// EventID is the name of the custom event used to reach the main
	// thread. One dispatcher registers it once per process.
	EventID = "CamBridgeRequestEvent"

	// DefaultCallTimeout bounds how long a worker waits for the main
	// thread to answer an ordinary call. Known-slow operations (e.g.
	// toolpath generation) must bound themselves inside the handler
	// rather than extending this wait.
	DefaultCallTimeout = 30 * time.Second
)

// ExecuteFunc runs one request on the main thread and produces its
// envelope. It is invoked only from the marshaled callback, so
// implementations may touch the host SDK freely.
type ExecuteFunc func(ctx context.Context, req *wire.Request) *wire.Envelope

// call is one in-flight main-thread call. It is created and owned by
// the worker that dispatched it; the main-thread handler is granted a
// single write of the result slot followed by exactly one close of done.
type call struct {
	id     string
	req    *wire.Request
	result *wire.Envelope
	done   chan struct{}
}

// Dispatcher serializes requests from all connection workers onto the
// host main thread, one at a time, and returns each result to the
// worker that submitted it.
type Dispatcher struct {
	log       *slog.Logger
	marshaler Marshaler
	execute   ExecuteFunc
	timeout   time.Duration

	handle Handle

	// dispatchMu serializes main-thread calls. A worker holds it from
	// before firing the event until it has retrieved the result (or
	// given up), so acquisition order is execution order.
	dispatchMu sync.Mutex

	// stateMu guards the current pending-call slot, which is also read
	// by the main-thread callback.
	stateMu sync.Mutex
	current *call

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Dispatcher. A timeout of zero selects
// DefaultCallTimeout. Start must be called before Dispatch.
func New(log *slog.Logger, m Marshaler, execute ExecuteFunc, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	return &Dispatcher{
		log:       log.With("component", "dispatch"),
		marshaler: m,
		execute:   execute,
		timeout:   timeout,
		done:      make(chan struct{}),
	}
}

// Start registers the main-thread event and attaches the handler
// callback. A registration failure is fatal to bridge startup.
func (d *Dispatcher) Start() error {
	h, err := d.marshaler.Register(EventID)
	if err != nil {
		return fmt.Errorf("register main-thread event: %w", err)
	}

	if err := d.marshaler.AddCallback(h, d.handleEvent); err != nil {
		_ = d.marshaler.Unregister(h)

		return fmt.Errorf("attach main-thread callback: %w", err)
	}

	d.handle = h
	d.log.Info("Dispatcher started", "event_id", EventID)

	return nil
}

// Close unregisters the main-thread event and wakes any waiting
// workers. Safe to call more than once.
func (d *Dispatcher) Close() error {
	var err error

	d.closeOnce.Do(func() {
		close(d.done)

		if d.handle != nil {
			err = d.marshaler.Unregister(d.handle)
		}

		d.log.Info("Dispatcher stopped")
	})

	return err
}

// Dispatch runs one request to completion and returns its envelope.
//
// Ping is answered inline with no lock and no main-thread hop, so
// health checks stay responsive while the host is busy or hung.
// Everything else is executed on the main thread under the dispatch
// mutex: exactly one call is inside the host at any instant, and a new
// call cannot begin until the previous worker has collected its result.
//
// Dispatch never returns nil and never propagates a panic; every
// failure mode is an error envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req *wire.Request) *wire.Envelope {
	if req.Action == wire.ActionPing {
		return wire.OK(map[string]any{"status": "ok", "message": "bridge is running"})
	}

	select {
	case <-d.done:
		return wire.Errf("Bridge is shutting down")
	default:
	}

	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	c := &call{
		id:   ulid.Make().String(),
		req:  req,
		done: make(chan struct{}),
	}

	d.stateMu.Lock()
	d.current = c
	d.stateMu.Unlock()

	d.log.Debug("Dispatching call to main thread", "call_id", c.id, "action", req.Action)

	if err := d.marshaler.Fire(d.handle, c.id); err != nil {
		d.clearCurrent(c)
		d.log.Error("Failed to fire main-thread event", "call_id", c.id, "error", err)

		return wire.Errf("Failed to fire custom event: %v", err)
	}

	select {
	case <-c.done:
		d.clearCurrent(c)

		return c.result

	case <-time.After(d.timeout):
		d.clearCurrent(c)
		d.log.Warn("Main-thread call timed out", "call_id", c.id, "timeout", d.timeout)

		return wire.Errf("Timeout waiting for main thread response")

	case <-ctx.Done():
		d.clearCurrent(c)
		d.log.Debug("Call cancelled by caller", "call_id", c.id)

		return wire.Errf("Request cancelled: %v", ctx.Err())

	case <-d.done:
		d.clearCurrent(c)

		return wire.Errf("Bridge is shutting down")
	}
}

// Timeout reports the configured per-call wait bound.
func (d *Dispatcher) Timeout() time.Duration {
	return d.timeout
}

// clearCurrent empties the pending-call slot if it still holds c. After
// this, a late completion of c fails the ID check in handleEvent and is
// discarded instead of being attributed to a later call.
func (d *Dispatcher) clearCurrent(c *call) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.current == c {
		d.current = nil
	}
}

// handleEvent runs on the host main thread via the marshaler. It
// retrieves the pending call identified by callID, executes it, fills
// the result slot, and raises the completion signal exactly once. Any
// panic is converted into an error envelope so the signal is never left
// unset and the main thread never unwinds.
func (d *Dispatcher) handleEvent(callID string) {
	d.stateMu.Lock()
	c := d.current
	d.stateMu.Unlock()

	if c == nil || c.id != callID {
		// The caller gave up before we ran. Nobody is waiting on this
		// call; completing it now would risk crediting the result to an
		// unrelated successor, so drop it.
		d.log.Warn("Discarding stale main-thread call", "call_id", callID)

		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Panic in main-thread handler", "call_id", c.id, "panic", r)

			c.result = wire.Errf("Main thread error: %v\n%s", r, debug.Stack())
			close(c.done)
		}
	}()

	deadline := time.Now().Add(d.timeout)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	env := d.execute(ctx, c.req)
	if env == nil {
		env = wire.Errf("Main thread handler produced no result")
	}

	c.result = env

	close(c.done)
}
