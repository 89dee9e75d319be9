// ABOUTME: Core conversation data model - turns, messages, and tool calls
// ABOUTME: A Turn (generation) is one immutable message record owned by a conversation

package turn

import (
	"github.com/google/uuid"
)

// Message roles. The role also doubles as the envelope tag when a turn is
// pushed to observers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FunctionCall names a callable function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a model-emitted request to invoke a named external function.
// The Name inside Function is in encoded (wire-safe) form; see names.go.
type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

// Message is one chat message. Content is a pointer so that assistant
// messages carrying only tool calls round-trip as null content.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Text returns the message content, or "" when content is null.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Turn is one record in a conversation's history. Turns are created exactly
// once when a message is finalized and are never mutated afterwards, except
// through an explicit edit that replaces the message.
type Turn struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
	Timestamp      string  `json:"timestamp"`
}

// New creates a turn for the given message with a fresh identity and a
// process-monotonic timestamp.
func New(message Message, conversationID string) Turn {
	return Turn{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Message:        message,
		Timestamp:      Timestamp(),
	}
}

// Text returns a Content pointer for a literal string.
func Text(s string) *string {
	return &s
}

// UserMessage builds a plain user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: Text(content)}
}

// SystemMessage builds a plain system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: Text(content)}
}

// ToolResult builds a tool-role message correlated to the originating call.
// Name must already be in encoded form.
func ToolResult(toolCallID, encodedName, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    Text(content),
		ToolCallID: toolCallID,
		Name:       encodedName,
	}
}
