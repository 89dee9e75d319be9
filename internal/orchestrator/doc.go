// Package orchestrator owns the conversation state machine.
//
// # Overview
//
// The orchestrator is the single logical owner of the live conversation
// context. Inbound events - user messages and commands from observers -
// arrive on a channel and are processed one at a time by the owner
// goroutine: each event's full transition, including awaited calls to the
// completion gateway and tool dispatcher, runs to completion before the next
// event is taken. Concurrency appears only inside a transition, where a
// batch of tool calls fans out and joins.
//
// # States
//
// idle is the initial and resting state. Every other state is transient:
//
//	idle -> modelCall -> toolDispatch -> modelCall -> ... -> idle
//	idle -> {new, restore, switch, deleteConversation,
//	         editTurn, deleteTurn, fineTune} -> idle
//
// The modelCall/toolDispatch loop ends when the model emits a message with
// no tool calls, or when the model call fails. Gateway failures abort to
// idle and are logged only; individual tool failures become tool turns
// carrying an error payload, so the model can react to them.
//
// # Side effects
//
// Every action that produces a new or mutated turn broadcasts it to all
// connected observers and then persists it. Broadcast is best-effort and
// independent of persistence success; persistence failures are logged.
package orchestrator
