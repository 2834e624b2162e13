package dispatch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/BJam/fusion-cam-mcp/internal/errors"
)

// Handle identifies one registered main-thread event. Its concrete type
// belongs to the Marshaler that issued it.
type Handle any

// Marshaler is the host's thread-marshaling primitive: the only way to
// run code on the host application's main thread from a background
// thread. It mirrors the custom-event registries found in single
// threaded GUI SDKs (register an event once, fire it from anywhere, the
// callback runs on the main thread).
//
// Implementations must invoke all callbacks for all events on one
// single thread; the dispatcher's exclusivity guarantee builds on that.
type Marshaler interface {
	// Register creates a named event and returns its handle.
	Register(eventID string) (Handle, error)

	// AddCallback attaches fn to a registered event. fn runs on the
	// host main thread each time the event fires.
	AddCallback(h Handle, fn func(payload string)) error

	// Fire schedules the event's callbacks on the main thread with the
	// given opaque payload. It returns without waiting for them to run.
	Fire(h Handle, payload string) error

	// Unregister removes the event. Pending fires may be dropped.
	Unregister(h Handle) error
}

// MainLoop is a Marshaler backed by one dedicated goroutine, standing in
// for a host main thread. It serves hosts that have no GUI event loop
// of their own, as well as examples and tests.
type MainLoop struct {
	log *slog.Logger

	mu     sync.Mutex
	events map[string]*loopEvent

	queue chan loopFire

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

type loopEvent struct {
	id        string
	callbacks []func(payload string)
}

type loopFire struct {
	event   *loopEvent
	payload string
}

// NewMainLoop creates a MainLoop and starts its loop goroutine.
func NewMainLoop(log *slog.Logger) *MainLoop {
	l := &MainLoop{
		log:     log.With("component", "main_loop"),
		events:  make(map[string]*loopEvent),
		queue:   make(chan loopFire, 16),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go l.run()

	return l
}

// run delivers fired events in order on the loop goroutine.
func (l *MainLoop) run() {
	defer close(l.stopped)

	for {
		select {
		case f := <-l.queue:
			l.deliver(f)

		case <-l.done:
			return
		}
	}
}

func (l *MainLoop) deliver(f loopFire) {
	l.mu.Lock()
	_, registered := l.events[f.event.id]
	callbacks := f.event.callbacks
	l.mu.Unlock()

	// Unregistered between fire and delivery: drop.
	if !registered {
		l.log.Debug("Dropping fire for unregistered event", "event_id", f.event.id)

		return
	}

	for _, fn := range callbacks {
		fn(f.payload)
	}
}

// Register implements Marshaler.
func (l *MainLoop) Register(eventID string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.events[eventID]; exists {
		return nil, &errors.MarshalerError{
			Op:  "register",
			Err: fmt.Errorf("event %q already registered", eventID),
		}
	}

	ev := &loopEvent{id: eventID}
	l.events[eventID] = ev

	return ev, nil
}

// AddCallback implements Marshaler.
func (l *MainLoop) AddCallback(h Handle, fn func(payload string)) error {
	ev, err := l.handle(h)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ev.callbacks = append(ev.callbacks, fn)

	return nil
}

// Fire implements Marshaler. The payload is delivered to the loop
// goroutine asynchronously, in fire order.
func (l *MainLoop) Fire(h Handle, payload string) error {
	ev, err := l.handle(h)
	if err != nil {
		return err
	}

	select {
	case <-l.done:
		return &errors.MarshalerError{Op: "fire", Err: fmt.Errorf("loop stopped")}
	default:
	}

	select {
	case l.queue <- loopFire{event: ev, payload: payload}:
		return nil

	case <-l.done:
		return &errors.MarshalerError{Op: "fire", Err: fmt.Errorf("loop stopped")}
	}
}

// Unregister implements Marshaler.
func (l *MainLoop) Unregister(h Handle) error {
	ev, err := l.handle(h)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.events, ev.id)

	return nil
}

// Close stops the loop goroutine. Safe to call more than once.
func (l *MainLoop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})

	<-l.stopped
}

func (l *MainLoop) handle(h Handle) (*loopEvent, error) {
	ev, ok := h.(*loopEvent)
	if !ok || ev == nil {
		return nil, &errors.MarshalerError{Op: "handle", Err: fmt.Errorf("foreign handle %T", h)}
	}

	return ev, nil
}
