// ABOUTME: Tagged event variants consumed by the orchestrator state machine
// ABOUTME: Decodes the wire's role-discriminated client messages into typed events

package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/symphonylabs/symphony/internal/turn"
)

// Event is an inbound event for the state machine. The wire protocol overloads
// a single role field as both chat role and command discriminant; events are
// decoded into one variant per discriminant so transitions stay unambiguous.
type Event interface {
	isEvent()
}

// UserMessage carries a finalized user chat message.
type UserMessage struct {
	Message turn.Message
}

// RestoreRequest asks for the full live context to be rebroadcast.
type RestoreRequest struct{}

// HistoryRequest asks for per-conversation summaries across the whole store.
type HistoryRequest struct{}

// NewRequest replaces the live context with a fresh empty conversation.
type NewRequest struct{}

// DeleteConversationRequest deletes every turn of the active conversation.
type DeleteConversationRequest struct{}

// EditRequest replaces one turn's message.
type EditRequest struct {
	TurnID  string
	Message turn.Message
}

// DeleteTurnRequest deletes one turn by id.
type DeleteTurnRequest struct {
	TurnID string
}

// FineTuneRequest exports the corpus and submits a fine-tuning job.
type FineTuneRequest struct{}

// ModelsRequest asks for the list of available models.
type ModelsRequest struct{}

// PersonalizeRequest upserts a participant descriptor by name.
type PersonalizeRequest struct {
	Participant turn.Participant
}

// SwitchRequest makes another conversation the active one.
type SwitchRequest struct {
	ConversationID string
}

func (UserMessage) isEvent()               {}
func (RestoreRequest) isEvent()            {}
func (HistoryRequest) isEvent()            {}
func (NewRequest) isEvent()                {}
func (DeleteConversationRequest) isEvent() {}
func (EditRequest) isEvent()               {}
func (DeleteTurnRequest) isEvent()         {}
func (FineTuneRequest) isEvent()           {}
func (ModelsRequest) isEvent()             {}
func (PersonalizeRequest) isEvent()        {}
func (SwitchRequest) isEvent()             {}

// Wire discriminants. Chat roles and command names share one field.
const (
	wireRestore            = "restore"
	wireHistory            = "history"
	wireNew                = "new"
	wireDeleteConversation = "deleteConversation"
	wireEdit               = "edit"
	wireDeleteGeneration   = "deleteGeneration"
	wireFineTune           = "finetune"
	wireModels             = "models"
	wirePersonalize        = "personalize"
	wireSwitch             = "switch"
)

type clientMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type editPayload struct {
	ID      string       `json:"id"`
	Message turn.Message `json:"message"`
}

// ParseClientMessage decodes one inbound observer message into an event.
func ParseClientMessage(data []byte) (Event, error) {
	var envelope clientMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing client message: %w", err)
	}

	switch envelope.Role {
	case turn.RoleUser:
		var message turn.Message
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, fmt.Errorf("parsing user message: %w", err)
		}
		return UserMessage{Message: message}, nil

	case wireRestore:
		return RestoreRequest{}, nil

	case wireHistory:
		return HistoryRequest{}, nil

	case wireNew:
		return NewRequest{}, nil

	case wireDeleteConversation:
		return DeleteConversationRequest{}, nil

	case wireEdit:
		var payload editPayload
		if err := json.Unmarshal(envelope.Content, &payload); err != nil {
			return nil, fmt.Errorf("parsing edit payload: %w", err)
		}
		return EditRequest{TurnID: payload.ID, Message: payload.Message}, nil

	case wireDeleteGeneration:
		var id string
		if err := json.Unmarshal(envelope.Content, &id); err != nil {
			return nil, fmt.Errorf("parsing turn id: %w", err)
		}
		return DeleteTurnRequest{TurnID: id}, nil

	case wireFineTune:
		return FineTuneRequest{}, nil

	case wireModels:
		return ModelsRequest{}, nil

	case wirePersonalize:
		var participant turn.Participant
		if err := json.Unmarshal(envelope.Content, &participant); err != nil {
			return nil, fmt.Errorf("parsing participant: %w", err)
		}
		return PersonalizeRequest{Participant: participant}, nil

	case wireSwitch:
		var conversationID string
		if err := json.Unmarshal(envelope.Content, &conversationID); err != nil {
			return nil, fmt.Errorf("parsing conversation id: %w", err)
		}
		return SwitchRequest{ConversationID: conversationID}, nil

	default:
		return nil, fmt.Errorf("unknown message role %q", envelope.Role)
	}
}
