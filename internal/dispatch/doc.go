// Package dispatch marshals requests from background connection workers
// onto the host application's single main thread.
//
// The host SDK may only be touched from one designated thread, reachable
// through its own event primitive (register an event, fire it from any
// thread, the callback runs on the main thread). That primitive is
// modeled by the Marshaler interface so the dispatcher can be unit
// tested without a real GUI host; MainLoop provides an in-process
// implementation backed by a dedicated goroutine.
//
// The Dispatcher guarantees that at most one call is inside the host's
// API surface at any instant, no matter how many connections are issuing
// requests concurrently. A single mutex converts arbitrary connection
// concurrency into a strict one-at-a-time queue of main-thread calls:
//
//	d := dispatch.New(log, marshaler, executor.Execute, 30*time.Second)
//	if err := d.Start(); err != nil { ... }
//
//	// From any connection worker:
//	env := d.Dispatch(ctx, req)
//
// Each in-flight call carries a ULID so that a call which completes
// after its caller has given up (timeout) can never be mistaken for the
// completion of a later, unrelated call.
package dispatch
