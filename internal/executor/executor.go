package executor

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	glua "github.com/yuin/gopher-lua"

	"github.com/BJam/fusion-cam-mcp/internal/wire"
)

// chunkCacheSize bounds the compiled-chunk cache. Query scripts repeat
// heavily, so recompilation is the common case worth avoiding.
const chunkCacheSize = 128

// Executor runs requests on the host main thread. It is not safe for
// concurrent use; the dispatcher guarantees one call at a time.
type Executor struct {
	log      *slog.Logger
	handlers map[string]*Handler
	modules  []HostModule
	chunks   *lru.Cache[string, *glua.FunctionProto]
}

// New creates an Executor with the given named handlers and host API
// modules. Handler names shadow Lua evaluation: a code string equal to
// a registered name always runs that handler.
func New(log *slog.Logger, handlers []Handler, modules []HostModule) *Executor {
	cache, _ := lru.New[string, *glua.FunctionProto](chunkCacheSize)

	byName := make(map[string]*Handler, len(handlers))
	for i := range handlers {
		h := handlers[i]
		byName[h.Name] = &h
	}

	return &Executor{
		log:      log.With("component", "executor"),
		handlers: byName,
		modules:  modules,
		chunks:   cache,
	}
}

// Execute runs one request and returns its envelope. It never returns
// nil and never panics across the dispatcher boundary.
func (e *Executor) Execute(ctx context.Context, req *wire.Request) *wire.Envelope {
	switch req.Action {
	case wire.ActionPing:
		return wire.OK(map[string]any{"status": "ok"})

	case wire.ActionExecute:
		return e.executeCode(ctx, req)

	default:
		return wire.Errf("Unknown action: '%s'. Supported actions: ['ping', 'execute']", req.Action)
	}
}

func (e *Executor) executeCode(ctx context.Context, req *wire.Request) *wire.Envelope {
	code, params := req.ExecutePayload()
	if code == "" {
		return wire.Errf("No code provided in 'execute' request")
	}

	if h, ok := e.handlers[code]; ok {
		return e.runHandler(ctx, h, params)
	}

	return e.runScript(ctx, code, params)
}

// runHandler invokes a registered named handler, validating its params
// first when a schema is declared.
func (e *Executor) runHandler(ctx context.Context, h *Handler, params map[string]any) *wire.Envelope {
	e.log.Debug("Running registered handler", "handler", h.Name)

	if err := h.validateParams(params); err != nil {
		return wire.Errf("%v", err)
	}

	result, err := h.Fn(ctx, params)
	if err != nil {
		return wire.Errf("Handler '%s' failed: %v", h.Name, err)
	}

	if result == nil {
		return wire.Errf("Handler '%s' returned no result", h.Name)
	}

	return wire.FromValue(result)
}
