package fusionbridge

import (
	"log/slog"
	"time"

	"github.com/BJam/fusion-cam-mcp/internal/config"
)

// Option configures a Bridge or Client using the functional options
// pattern.
type Option func(*config.Options)

// applyOptions applies functional options to a fresh Options struct.
func applyOptions(opts []Option) *config.Options {
	options := &config.Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *config.Options) {
		o.Logger = logger
	}
}

// WithPort sets the TCP port explicitly, overriding the
// FUSION_CAM_MCP_PORT environment variable and the default (9876).
// Zero requests an OS-assigned ephemeral port.
func WithPort(port int) Option {
	return func(o *config.Options) {
		o.Port = port
		o.PortExplicit = true
	}
}

// WithHost sets the endpoint host a Client connects to. The bridge
// itself always binds 127.0.0.1.
func WithHost(host string) Option {
	return func(o *config.Options) {
		o.Host = host
	}
}

// WithCallTimeout bounds how long one main-thread call may take before
// the caller receives a timeout envelope. Defaults to 30 seconds.
// Known-slow operations should bound themselves inside their handler
// instead of raising this globally.
func WithCallTimeout(d time.Duration) Option {
	return func(o *config.Options) {
		o.CallTimeout = d
	}
}

// WithDialTimeout bounds a Client's connect and read operations.
func WithDialTimeout(d time.Duration) Option {
	return func(o *config.Options) {
		o.DialTimeout = d
	}
}

// WithMarshaler supplies the host's thread-marshaling primitive. If
// not set, the bridge runs its own main-loop goroutine as the
// single-threaded execution context.
func WithMarshaler(m Marshaler) Option {
	return func(o *config.Options) {
		o.Marshaler = m
	}
}

// WithHandler registers a named handler invokable as a code string.
func WithHandler(h Handler) Option {
	return func(o *config.Options) {
		o.Handlers = append(o.Handlers, h)
	}
}

// WithHostModule adds a module to the host API surface injected into
// every script environment.
func WithHostModule(m HostModule) Option {
	return func(o *config.Options) {
		o.Modules = append(o.Modules, m)
	}
}
