package fusionbridge

import "github.com/BJam/fusion-cam-mcp/internal/errors"

// Re-export error types from internal package

// ConnectionError indicates the bridge could not be reached over TCP.
type ConnectionError = errors.ConnectionError

// ProtocolError indicates a peer sent undecodable bytes.
type ProtocolError = errors.ProtocolError

// ListenError indicates the TCP listener could not be bound.
type ListenError = errors.ListenError

// MarshalerError indicates the host thread-marshaling primitive failed.
type MarshalerError = errors.MarshalerError

// BridgeError is the base interface for all bridge errors.
type BridgeError = errors.BridgeError

// Re-export sentinel errors from internal package.
var (
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.ErrNotConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrBridgeClosed indicates the bridge has been shut down.
	ErrBridgeClosed = errors.ErrBridgeClosed

	// ErrAlreadyStarted indicates Start was called on a running bridge.
	ErrAlreadyStarted = errors.ErrAlreadyStarted

	// ErrRequestTimeout indicates a main-thread call timed out.
	ErrRequestTimeout = errors.ErrRequestTimeout
)
