// Package wire defines the on-the-wire protocol shared by the bridge
// server and its clients.
//
// Every message is one UTF-8 JSON value followed by a single newline.
// Requests carry an "action" plus an optional "params" object; responses
// are always the uniform envelope {success, data|error}. The envelope is
// the sole contract between the executor and every caller layer.
//
// LineBuffer implements the framing side: it accumulates raw socket
// reads and yields complete, whitespace-trimmed lines one at a time.
package wire
