package fusionbridge

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/BJam/fusion-cam-mcp/internal/config"
	"github.com/BJam/fusion-cam-mcp/internal/errors"
	"github.com/BJam/fusion-cam-mcp/internal/wire"
)

// Client is the caller-side stub. It keeps one persistent connection
// to the bridge, lazily established on first use, and retries a failed
// send exactly once over a fresh connection before giving up.
//
// Requests on one client are strictly ordered: Send holds the client
// lock for the full round trip, so one request is in flight at a time.
type Client struct {
	log     *slog.Logger
	host    string
	port    int
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// NewClient creates a Client. No connection is opened until the first
// Send.
func NewClient(opts ...Option) *Client {
	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	timeout := options.DialTimeout
	if timeout <= 0 {
		timeout = config.DefaultDialTimeout
	}

	return &Client{
		log:     log.With("component", "client"),
		host:    options.ResolvedHost(),
		port:    options.ResolvedPort(),
		timeout: timeout,
	}
}

// Send issues one request and returns the bridge's envelope.
//
// Transport failures (refused, reset, broken pipe) are retried exactly
// once by reconnecting; a second consecutive failure surfaces as a
// ConnectionError naming the endpoint. A response that is not valid
// JSON is a ProtocolError and is never retried.
func (c *Client) Send(action string, params map[string]any) (*Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrClientClosed
	}

	request := map[string]any{"action": action}
	if len(params) > 0 {
		request["params"] = params
	}

	data, err := wire.EncodeLine(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error

	// Try up to 2 times (reconnect once if the connection was lost).
	for attempt := range 2 {
		env, err := c.roundTrip(data)
		if err == nil {
			return env, nil
		}

		var protoErr *errors.ProtocolError
		if stderrors.As(err, &protoErr) {
			return nil, err
		}

		c.disconnect()

		lastErr = err

		if attempt == 0 {
			c.log.Debug("Transport failure, retrying once", "error", err)
		}
	}

	var connErr *errors.ConnectionError
	if stderrors.As(lastErr, &connErr) {
		return nil, lastErr
	}

	return nil, &errors.ConnectionError{Host: c.host, Port: c.port, Err: lastErr}
}

// Ping performs the bridge health check.
func (c *Client) Ping() (*Envelope, error) {
	return c.Send(wire.ActionPing, nil)
}

// Execute runs a code string (a registered handler name or a Lua
// script) on the host main thread with the given params.
func (c *Client) Execute(code string, params map[string]any) (*Envelope, error) {
	if params == nil {
		params = map[string]any{}
	}

	return c.Send(wire.ActionExecute, map[string]any{
		"code":   code,
		"params": params,
	})
}

// Close releases the connection. A closed client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.disconnect()

	return nil
}

// roundTrip writes one framed request and reads one framed response on
// the current connection, connecting first if necessary. Callers hold
// the client lock.
func (c *Client) roundTrip(data []byte) (*Envelope, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)

	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write(data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env Envelope

	if err := json.Unmarshal(line, &env); err != nil {
		return nil, &errors.ProtocolError{RawData: string(line), Err: err}
	}

	return &env, nil
}

// ensureConnected opens the TCP connection if none is active.
func (c *Client) ensureConnected() error {
	if c.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))

	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		return &errors.ConnectionError{Host: c.host, Port: c.port, Err: err}
	}

	c.log.Debug("Connected to bridge", "addr", addr)

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	return nil
}

// disconnect drops the connection. Best effort; closing an
// already-closed socket is not an error worth reporting.
func (c *Client) disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}
