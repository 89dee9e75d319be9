// Package tools routes and dispatches model-requested tool calls.
//
// At startup each configured tool-execution service contributes its declared
// descriptor set to a Registry, which maps every function name to the owning
// service. The Dispatcher resolves a call against the registry, POSTs the
// JSON arguments to the service, and wraps the response - or the failure -
// as a tool-role message. A failed call is data, not an error: it surfaces
// to the model on the next completion round.
package tools
