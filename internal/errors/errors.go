package errors

import (
	"errors"
	"fmt"
)

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*ConnectionError)(nil)
	_ BridgeError = (*ProtocolError)(nil)
	_ BridgeError = (*ListenError)(nil)
	_ BridgeError = (*MarshalerError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("client not connected")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed")

	// ErrBridgeClosed indicates the bridge has been shut down.
	ErrBridgeClosed = errors.New("bridge closed")

	// ErrAlreadyStarted indicates Start was called on a running bridge.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrRequestTimeout indicates a main-thread call timed out.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrDispatcherStopped indicates the dispatcher has stopped.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// ConnectionError indicates the bridge could not be reached over TCP.
// It names the expected endpoint so operators know what to check.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf(
		"cannot connect to bridge at %s:%d: %v "+
			"(make sure the host application is running and the bridge add-in is started)",
		e.Host, e.Port, e.Err,
	)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ConnectionError) IsBridgeError() bool { return true }

// ProtocolError indicates a peer sent bytes that could not be decoded as
// a framed JSON message. This error preserves the raw data that failed
// to parse. It is distinct from ConnectionError and is never retried.
type ProtocolError struct {
	RawData string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid JSON response from bridge: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ProtocolError) IsBridgeError() bool { return true }

// ListenError indicates the TCP listener could not be bound at startup.
type ListenError struct {
	Addr string
	Err  error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("failed to bind listener on %s: %v", e.Addr, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *ListenError) IsBridgeError() bool { return true }

// MarshalerError indicates the host thread-marshaling primitive failed,
// either at event registration time or when firing an event.
type MarshalerError struct {
	Op  string
	Err error
}

func (e *MarshalerError) Error() string {
	return fmt.Sprintf("host marshaler %s failed: %v", e.Op, e.Err)
}

func (e *MarshalerError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *MarshalerError) IsBridgeError() bool { return true }
