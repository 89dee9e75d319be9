// Package turn defines the conversation data model.
//
// A Turn (also called a generation) is one immutable message record with
// identity, a timestamp, and ownership by a conversation. Messages carry a
// chat role, optional content, and optional tool calls; tool-role messages
// reference the call they answer via tool_call_id.
//
// The package also owns the reversible mapping between canonical function
// names ("search.ts") and the wire-safe names the completion API accepts
// ("search_ts"), and the monotonic timestamp source that defines turn order.
package turn
