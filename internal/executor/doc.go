// Package executor runs units of host logic on the main thread and
// normalizes their results into the uniform response envelope.
//
// An execute request carries a "code" string. If it names a registered
// handler, that handler runs (after optional JSON-Schema validation of
// its params). Otherwise the string is treated as Lua source and runs in
// a fresh interpreter state with the host API modules and the request
// params injected. Scripts either define a run(params) function or, in
// the legacy form, assign to the result global.
//
// Whatever happens inside a script or handler, Execute returns an
// envelope: failures become {success:false, error:...} carrying the Lua
// stack trace where one exists, and a result that is already an
// error-shaped object propagates verbatim rather than being wrapped a
// second time.
package executor
