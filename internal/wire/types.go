package wire

import (
	"encoding/json"
	"fmt"
)

// Protocol action names.
const (
	// ActionPing is the health check. It is answered without a
	// main-thread hop so it stays responsive while the host is busy.
	ActionPing = "ping"

	// ActionExecute runs a unit of host logic on the main thread.
	ActionExecute = "execute"
)

// Request is a single framed request from a client.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecutePayload returns the code string and inner params object of an
// execute request. The client nests both under the outer "params" field:
//
//	{"action": "execute", "params": {"code": "...", "params": {...}}}
func (r *Request) ExecutePayload() (code string, params map[string]any) {
	code, _ = r.Params["code"].(string)
	params, _ = r.Params["params"].(map[string]any)

	if params == nil {
		params = map[string]any{}
	}

	return code, params
}

// Envelope is the uniform result wrapper used at every layer boundary.
// Exactly one of Data/Error is populated, gated by Success.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps a result value in a success envelope.
func OK(data any) *Envelope {
	return &Envelope{Success: true, Data: data}
}

// Errf builds an error envelope from a format string.
func Errf(format string, args ...any) *Envelope {
	return &Envelope{Success: false, Error: fmt.Sprintf(format, args...)}
}

// FromValue wraps an arbitrary script result in an envelope.
//
// A result that is itself error-shaped (an object carrying an explicit
// false "success" flag) propagates as the top-level envelope instead of
// being nested inside a success envelope; its "error" string, when
// present, becomes the envelope's message. Helper scripts rely on this
// to bubble failures up unchanged. The envelope is a closed contract:
// any keys beyond success/error are not carried.
func FromValue(v any) *Envelope {
	if m, ok := v.(map[string]any); ok {
		if success, hasSuccess := m["success"].(bool); hasSuccess && !success {
			msg, _ := m["error"].(string)

			return &Envelope{Success: false, Error: msg}
		}
	}

	return OK(v)
}

// EncodeLine serializes v as one JSON line with exactly one trailing
// newline. Partial messages are never emitted: the caller writes the
// returned slice in full or not at all.
func EncodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	return append(data, '\n'), nil
}

// ParseRequest decodes one framed line into a Request.
//
// Malformed input never terminates the connection; it yields a
// message-scoped error envelope instead, and framing resumes on the
// next line. The envelope return is nil exactly when the request is
// well-formed.
func ParseRequest(line []byte) (*Request, *Envelope) {
	var raw any

	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, Errf("Invalid JSON: %v", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, Errf("Request must be a JSON object")
	}

	action, _ := obj["action"].(string)
	if action == "" {
		return nil, Errf("Missing 'action' field")
	}

	params, _ := obj["params"].(map[string]any)

	return &Request{Action: action, Params: params}, nil
}
