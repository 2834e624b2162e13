package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/BJam/fusion-cam-mcp/internal/dispatch"
	"github.com/BJam/fusion-cam-mcp/internal/executor"
)

const (
	// DefaultHost is where the bridge listens and clients connect. The
	// bridge never binds a wildcard address: localhost is the trust
	// boundary.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the bridge TCP port.
	DefaultPort = 9876

	// PortEnvVar overrides DefaultPort when set to a valid integer.
	PortEnvVar = "FUSION_CAM_MCP_PORT"

	// DefaultDialTimeout bounds client connect and read operations.
	DefaultDialTimeout = 30 * time.Second
)

// Options configures the bridge and its clients.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Host is the client-side endpoint host. The server side always
	// binds DefaultHost.
	Host string

	// Port is the TCP port. Meaningful only when PortExplicit is set;
	// otherwise PortEnvVar and DefaultPort apply. An explicit zero asks
	// the OS for an ephemeral port.
	Port int

	// PortExplicit records that Port was set by the caller.
	PortExplicit bool

	// CallTimeout bounds how long a connection worker waits for the
	// main thread to answer one call.
	CallTimeout time.Duration

	// DialTimeout bounds client connects and reads.
	DialTimeout time.Duration

	// Marshaler is the host thread-marshaling primitive. If nil, the
	// bridge runs its own MainLoop goroutine as the execution context.
	Marshaler dispatch.Marshaler

	// Handlers are named units of host logic invokable by name.
	Handlers []executor.Handler

	// Modules form the host API surface injected into scripts.
	Modules []executor.HostModule
}

// ResolvedPort returns the effective TCP port: an explicitly set Port
// wins, then the environment override, then the default. A garbage
// value in the environment falls back to the default rather than
// failing startup.
func (o *Options) ResolvedPort() int {
	if o.PortExplicit {
		return o.Port
	}

	return PortFromEnv()
}

// ResolvedHost returns the effective client endpoint host.
func (o *Options) ResolvedHost() string {
	if o.Host != "" {
		return o.Host
	}

	return DefaultHost
}

// PortFromEnv resolves the port from the environment, defaulting when
// unset or unparsable.
func PortFromEnv() int {
	raw := os.Getenv(PortEnvVar)
	if raw == "" {
		return DefaultPort
	}

	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return DefaultPort
	}

	return port
}
