// Package errors defines the error types used throughout the bridge.
//
// Errors fall into two groups: sentinel values for commonly checked
// conditions (ErrNotConnected, ErrRequestTimeout, ...) and typed errors
// that carry context about the failure (ConnectionError names the
// endpoint that could not be reached, ProtocolError preserves the raw
// bytes that failed to decode).
//
// Note that most failures never surface as Go errors at all: anything
// that happens after a request has been framed is reported to the peer
// as a {success:false, error:...} envelope on the wire, and the
// connection stays open.
package errors
