// ABOUTME: Conversions between the turn message model and OpenAI SDK param/response types
// ABOUTME: Single conversion point so tool-call plumbing stays wire-compatible both ways

package gateway

import (
	"github.com/openai/openai-go/v3"

	"github.com/symphonylabs/symphony/internal/tools"
	"github.com/symphonylabs/symphony/internal/turn"
)

// toCompletionMessages converts the ordered turn messages to SDK params.
func toCompletionMessages(messages []turn.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		out = append(out, toCompletionMessage(m))
	}
	return out
}

func toCompletionMessage(m turn.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case turn.RoleSystem:
		return openai.SystemMessage(m.Text())
	case turn.RoleUser:
		return openai.UserMessage(m.Text())
	case turn.RoleTool:
		return openai.ToolMessage(m.Text(), m.ToolCallID)
	case turn.RoleAssistant:
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != nil {
			assistant.Content.OfString = openai.String(*m.Content)
		}
		for _, call := range m.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		// Unknown roles degrade to user messages rather than dropping turns.
		return openai.UserMessage(m.Text())
	}
}

// fromCompletionMessage converts the API's reply into a turn message.
func fromCompletionMessage(m openai.ChatCompletionMessage) turn.Message {
	reply := turn.Message{Role: turn.RoleAssistant}

	// An assistant message carrying tool calls has no terminal content for
	// display; keep content null in that case, matching the wire format.
	if m.Content != "" || len(m.ToolCalls) == 0 {
		reply.Content = turn.Text(m.Content)
	}

	for _, call := range m.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, turn.ToolCall{
			ID: call.ID,
			Function: turn.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return reply
}

// toCompletionTools converts the merged descriptor catalog to SDK tool params.
func toCompletionTools(catalog []tools.Descriptor) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(catalog))
	for _, d := range catalog {
		fn := openai.FunctionDefinitionParam{Name: d.Name}
		if d.Description != "" {
			fn.Description = openai.String(d.Description)
		}
		if d.Parameters != nil {
			fn.Parameters = openai.FunctionParameters(d.Parameters)
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}
