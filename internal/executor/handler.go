package executor

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	glua "github.com/yuin/gopher-lua"
)

// Handler is a named, statically compiled unit of host logic. Clients
// invoke it by sending its name as the "code" of an execute request, so
// deployments that disable script evaluation keep the same wire shape.
type Handler struct {
	// Name is the key clients send as the request code.
	Name string

	// Description documents the handler for operators.
	Description string

	// Schema optionally validates the params object before Fn runs.
	Schema *jsonschema.Schema

	// Fn runs on the host main thread. The returned value is wrapped
	// into an envelope by the executor (or propagated verbatim if it is
	// already error-shaped).
	Fn func(ctx context.Context, params map[string]any) (any, error)
}

// HostModule installs one slice of the host API surface into a script
// environment. The executor does not interpret what the module exposes.
type HostModule interface {
	// Name identifies the module in logs and errors.
	Name() string

	// Register installs the module's globals into L before a script
	// runs. L is fresh for every call.
	Register(L *glua.LState) error
}

// validateParams checks params against the handler's schema, if any.
func (h *Handler) validateParams(params map[string]any) error {
	if h.Schema == nil {
		return nil
	}

	resolved, err := h.Schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("handler %q has an invalid schema: %w", h.Name, err)
	}

	if err := resolved.Validate(params); err != nil {
		return fmt.Errorf("invalid params for %q: %w", h.Name, err)
	}

	return nil
}
