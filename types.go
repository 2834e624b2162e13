package fusionbridge

import (
	"log/slog"

	"github.com/BJam/fusion-cam-mcp/internal/dispatch"
	"github.com/BJam/fusion-cam-mcp/internal/executor"
	"github.com/BJam/fusion-cam-mcp/internal/wire"
)

// Re-export protocol and extension-point types from internal packages.

// Envelope is the uniform result wrapper: exactly one of Data/Error is
// present, gated by Success.
type Envelope = wire.Envelope

// Request is one framed request: an action plus an optional params
// object.
type Request = wire.Request

// Handler is a named, statically compiled unit of host logic that
// clients invoke by sending its name as their code string.
type Handler = executor.Handler

// HostModule installs part of the host API surface into each script
// environment.
type HostModule = executor.HostModule

// Marshaler is the host's thread-marshaling primitive, the only path
// from a background thread onto the host main thread.
type Marshaler = dispatch.Marshaler

// Handle identifies one registered main-thread event.
type Handle = dispatch.Handle

// MainLoop is an in-process Marshaler backed by a dedicated goroutine,
// for hosts without an event loop of their own.
type MainLoop = dispatch.MainLoop

// NewMainLoop creates a MainLoop and starts its loop goroutine.
func NewMainLoop(log *slog.Logger) *MainLoop {
	return dispatch.NewMainLoop(log)
}
