// Package server accepts bridge connections on a loopback TCP port and
// runs one worker goroutine per connection.
//
// Each worker feeds raw reads through the line framer, hands every
// complete request to the dispatch function, and writes the envelope
// back as one JSON line. A malformed message answers an error envelope
// and leaves the connection open; a transport error ends the worker.
//
// The server tracks every live connection so Close can force blocked
// readers awake: it closes all registered sockets, closes the listener,
// and joins the workers within a bounded timeout.
package server
