package fusionbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BJam/fusion-cam-mcp/internal/config"
	"github.com/BJam/fusion-cam-mcp/internal/dispatch"
	"github.com/BJam/fusion-cam-mcp/internal/errors"
	"github.com/BJam/fusion-cam-mcp/internal/executor"
	"github.com/BJam/fusion-cam-mcp/internal/server"
)

// Bridge wires the executor, the main-thread dispatcher, and the TCP
// server into one unit embedded inside the host application.
type Bridge struct {
	log     *slog.Logger
	options *config.Options

	mu      sync.Mutex
	started bool
	closed  bool

	// ownLoop is set when the bridge created its own main loop because
	// no host marshaler was supplied.
	ownLoop    *dispatch.MainLoop
	dispatcher *dispatch.Dispatcher
	server     *server.Server
}

// New creates a Bridge. Nothing binds or runs until Start.
func New(opts ...Option) *Bridge {
	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	return &Bridge{
		log:     log,
		options: options,
	}
}

// Start registers the main-thread event and begins accepting
// connections. A failure to register the event or bind the listener is
// fatal and leaves the bridge stopped.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBridgeClosed
	}

	if b.started {
		return errors.ErrAlreadyStarted
	}

	exec := executor.New(b.log, b.options.Handlers, b.options.Modules)

	marshaler := b.options.Marshaler
	if marshaler == nil {
		b.ownLoop = dispatch.NewMainLoop(b.log)
		marshaler = b.ownLoop
	}

	b.dispatcher = dispatch.New(b.log, marshaler, exec.Execute, b.options.CallTimeout)

	if err := b.dispatcher.Start(); err != nil {
		b.stopOwnLoop()

		return fmt.Errorf("start dispatcher: %w", err)
	}

	b.server = server.New(b.log, b.options.ResolvedPort(), b.dispatcher.Dispatch)

	if err := b.server.Start(ctx); err != nil {
		_ = b.dispatcher.Close()
		b.stopOwnLoop()

		return fmt.Errorf("start server: %w", err)
	}

	b.started = true
	b.log.Info("Bridge started", "addr", b.server.Addr())

	return nil
}

// Close shuts the bridge down: the server drains its connections, the
// dispatcher unregisters its event, and the private main loop (if any)
// stops. Safe to call more than once; a closed bridge cannot be
// restarted.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	if !b.started {
		return nil
	}

	err := b.server.Close()

	if closeErr := b.dispatcher.Close(); err == nil {
		err = closeErr
	}

	b.stopOwnLoop()

	b.log.Info("Bridge stopped")

	return err
}

// Addr returns the bound listen address, or "" before Start.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server == nil {
		return ""
	}

	return b.server.Addr()
}

// Port returns the bound TCP port, or 0 before Start.
func (b *Bridge) Port() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.server == nil {
		return 0
	}

	return b.server.Port()
}

func (b *Bridge) stopOwnLoop() {
	if b.ownLoop != nil {
		b.ownLoop.Close()
		b.ownLoop = nil
	}
}
