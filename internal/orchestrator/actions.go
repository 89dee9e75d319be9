// ABOUTME: Action handlers for every state-machine transition
// ABOUTME: Each new or mutated turn is broadcast first, then persisted (best-effort, logged)

package orchestrator

import (
	"bytes"
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/symphonylabs/symphony/internal/finetune"
	"github.com/symphonylabs/symphony/internal/hub"
	"github.com/symphonylabs/symphony/internal/store"
	"github.com/symphonylabs/symphony/internal/turn"
)

// historySummary is the per-conversation projection broadcast for history
// requests: the earliest turn of each conversation, keyed by conversation id.
type historySummary struct {
	ID        string       `json:"id"`
	Timestamp string       `json:"timestamp"`
	Message   turn.Message `json:"message"`
}

// appendTurn creates a turn for the message, adds it to the live sequence,
// broadcasts it to observers, and persists it. Broadcast is best-effort and
// independent of persistence success; a failed write is logged, not rolled
// back.
func (o *Orchestrator) appendTurn(ctx context.Context, message turn.Message) turn.Turn {
	t := turn.New(message, o.current.ConversationID)

	o.mu.Lock()
	o.current.Turns = append(o.current.Turns, t)
	o.mu.Unlock()

	o.broadcaster.Publish(t)
	o.persist(ctx, t)
	return t
}

func (o *Orchestrator) persist(ctx context.Context, t turn.Turn) {
	if err := o.store.AppendTurn(ctx, t); err != nil {
		o.logger.Error("failed to persist turn",
			"error", err,
			"turn_id", t.ID,
			"conversation_id", t.ConversationID,
		)
	}
}

// handleUserMessage appends the user turn, refreshes the observers' history
// index, and enters the model/tool loop.
func (o *Orchestrator) handleUserMessage(ctx context.Context, ev UserMessage) {
	if ev.Message.Role != turn.RoleUser {
		o.logger.Warn("dropping chat message with unexpected role", "role", ev.Message.Role)
		return
	}

	o.appendTurn(ctx, ev.Message)
	o.broadcastHistory(ctx)
	o.runModelLoop(ctx)
}

// runModelLoop drives the modelCall/toolDispatch cycle. It terminates when
// the model emits a message without tool calls, or when the model call fails.
// A failed model call aborts to idle without appending a turn; a failed tool
// call never aborts its batch - it is surfaced to the model as data.
func (o *Orchestrator) runModelLoop(ctx context.Context) {
	defer o.setState(StateIdle)

	for {
		o.setState(StateModelCall)

		messages := make([]turn.Message, 0, len(o.current.Turns)+1)
		messages = append(messages, turn.SystemMessageFor(o.current.Participants))
		for _, t := range o.current.Turns {
			messages = append(messages, t.Message)
		}

		assistant, _ := turn.FindParticipant(o.current.Participants, turn.RoleAssistant)

		reply, err := o.complete(ctx, messages, assistant.ModelID)
		if err != nil {
			// Gateway errors are terminal for the transition: logged, never
			// surfaced to observers as a conversation turn, not retried.
			o.logger.Error("model call failed", "error", err, "model", assistant.ModelID)
			return
		}

		o.appendTurn(ctx, reply)

		o.setState(StateToolDispatch)
		if !reply.HasToolCalls() {
			return
		}

		// Fan out the whole batch concurrently and join on all of it; results
		// come back in tool_calls order regardless of completion order.
		results := o.dispatcher.DispatchAll(ctx, reply.ToolCalls)
		for _, result := range results {
			o.appendTurn(ctx, result)
		}
	}
}

// complete issues one completion call, bounded by the configured deadline.
func (o *Orchestrator) complete(ctx context.Context, messages []turn.Message, modelID string) (turn.Message, error) {
	if o.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.modelTimeout)
		defer cancel()
	}
	return o.completer.Complete(ctx, messages, modelID, o.catalog)
}

// handleRestore rebroadcasts the full live context.
func (o *Orchestrator) handleRestore() {
	o.setState(StateRestoreConversation)
	o.broadcaster.Publish(hub.Envelope{Role: wireRestore, Content: o.Snapshot()})
	o.setState(StateIdle)
}

// handleHistory broadcasts per-conversation summaries. Read-only projection;
// the machine stays idle.
func (o *Orchestrator) handleHistory(ctx context.Context) {
	o.broadcastHistory(ctx)
}

func (o *Orchestrator) broadcastHistory(ctx context.Context) {
	turns, err := o.store.ListAll(ctx)
	if err != nil {
		o.logger.Error("failed to load history", "error", err)
		return
	}

	// Earliest turn per conversation, conversations ordered
	// most-recently-started first.
	seen := make(map[string]bool)
	var summaries []historySummary
	for _, t := range turns {
		if seen[t.ConversationID] {
			continue
		}
		seen[t.ConversationID] = true
		summaries = append(summaries, historySummary{
			ID:        t.ConversationID,
			Timestamp: t.Timestamp,
			Message:   t.Message,
		})
	}
	for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
		summaries[i], summaries[j] = summaries[j], summaries[i]
	}

	o.broadcaster.Publish(hub.Envelope{Role: wireHistory, Content: summaries})
}

// handleNew replaces the live context with a fresh empty conversation.
// Participants survive; turns do not.
func (o *Orchestrator) handleNew() {
	o.setState(StateNewConversation)

	o.mu.Lock()
	o.current.ConversationID = uuid.New().String()
	o.current.Turns = nil
	o.mu.Unlock()

	o.logger.Info("new conversation", "conversation_id", o.current.ConversationID)
	o.setState(StateIdle)
}

// handleDeleteConversation drains the active conversation from the store,
// notifies observers, then resets to a fresh conversation.
func (o *Orchestrator) handleDeleteConversation(ctx context.Context) {
	o.setState(StateDeleteConversation)

	deleted, err := o.store.DeleteConversation(ctx, o.current.ConversationID)
	if err != nil {
		o.logger.Error("failed to delete conversation",
			"error", err,
			"conversation_id", o.current.ConversationID,
		)
		o.setState(StateIdle)
		return
	}

	if len(deleted) > 0 {
		o.broadcaster.Publish(hub.Envelope{Role: wireDeleteConversation, Content: deleted[0]})
	}

	o.handleNew()
}

// handleEdit patches one turn's message in the store, notifies observers,
// then updates the in-memory copy. An unknown id is a no-op.
func (o *Orchestrator) handleEdit(ctx context.Context, ev EditRequest) {
	o.setState(StateEditTurn)
	defer o.setState(StateIdle)

	updated, err := o.store.UpdateMessage(ctx, ev.TurnID, ev.Message)
	if errors.Is(err, store.ErrNotFound) {
		o.logger.Warn("edit for unknown turn", "turn_id", ev.TurnID)
		return
	}
	if err != nil {
		o.logger.Error("failed to edit turn", "error", err, "turn_id", ev.TurnID)
		return
	}

	o.broadcaster.Publish(hub.Envelope{Role: wireEdit, Content: updated})

	o.mu.Lock()
	for i := range o.current.Turns {
		if o.current.Turns[i].ID == ev.TurnID {
			o.current.Turns[i].Message = ev.Message
			break
		}
	}
	o.mu.Unlock()
}

// handleDeleteTurn removes one turn from the store, notifies observers, then
// drops it from the in-memory sequence. An unknown id is a no-op.
func (o *Orchestrator) handleDeleteTurn(ctx context.Context, ev DeleteTurnRequest) {
	o.setState(StateDeleteTurn)
	defer o.setState(StateIdle)

	deleted, err := o.store.DeleteTurn(ctx, ev.TurnID)
	if errors.Is(err, store.ErrNotFound) {
		o.logger.Warn("delete for unknown turn", "turn_id", ev.TurnID)
		return
	}
	if err != nil {
		o.logger.Error("failed to delete turn", "error", err, "turn_id", ev.TurnID)
		return
	}

	o.broadcaster.Publish(hub.Envelope{Role: wireDeleteGeneration, Content: deleted})

	o.mu.Lock()
	for i := range o.current.Turns {
		if o.current.Turns[i].ID == ev.TurnID {
			o.current.Turns = append(o.current.Turns[:i], o.current.Turns[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
}

// handleFineTune exports the whole corpus as a JSONL artifact, uploads it,
// and submits a fine-tuning job against the assistant's model.
func (o *Orchestrator) handleFineTune(ctx context.Context) {
	o.setState(StateFineTune)
	defer o.setState(StateIdle)

	corpus, err := o.store.ListAll(ctx)
	if err != nil {
		o.logger.Error("failed to load corpus", "error", err)
		return
	}

	data, err := finetune.Export(corpus, turn.SystemMessageFor(o.current.Participants))
	if err != nil {
		o.logger.Error("failed to export corpus", "error", err)
		return
	}

	path, err := finetune.WriteArtifact(o.artifactDir, data)
	if err != nil {
		o.logger.Error("failed to write training artifact", "error", err)
		return
	}
	o.logger.Info("training corpus written", "path", path, "bytes", len(data))

	assistant, _ := turn.FindParticipant(o.current.Participants, turn.RoleAssistant)
	job, err := o.completer.CreateFineTune(ctx, bytes.NewReader(data), assistant.ModelID)
	if err != nil {
		o.logger.Error("failed to submit fine-tuning job", "error", err)
		return
	}

	o.broadcaster.Publish(hub.Envelope{Role: wireFineTune, Content: job})
}

// handleModels broadcasts the models available at the completion service.
func (o *Orchestrator) handleModels(ctx context.Context) {
	models, err := o.completer.ListModels(ctx)
	if err != nil {
		o.logger.Error("failed to list models", "error", err)
		return
	}
	o.broadcaster.Publish(hub.Envelope{Role: wireModels, Content: models})
}

// handlePersonalize upserts a participant by name and rebroadcasts the
// context so observers pick up the change.
func (o *Orchestrator) handlePersonalize(ev PersonalizeRequest) {
	o.mu.Lock()
	o.current.Participants = turn.UpsertParticipant(o.current.Participants, ev.Participant)
	o.mu.Unlock()

	o.broadcaster.Publish(hub.Envelope{Role: wireRestore, Content: o.Snapshot()})
}

// handleSwitch makes another conversation active: fetch its turns from the
// store, replace the in-memory sequence wholesale, and broadcast the
// non-system turns.
func (o *Orchestrator) handleSwitch(ctx context.Context, ev SwitchRequest) {
	o.setState(StateSwitchConversation)
	defer o.setState(StateIdle)

	turns, err := o.store.ListByConversation(ctx, ev.ConversationID)
	if err != nil {
		o.logger.Error("failed to load conversation",
			"error", err,
			"conversation_id", ev.ConversationID,
		)
		return
	}

	o.mu.Lock()
	o.current.ConversationID = ev.ConversationID
	o.current.Turns = turns
	o.mu.Unlock()

	visible := make([]turn.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Message.Role != turn.RoleSystem {
			visible = append(visible, t)
		}
	}
	o.broadcaster.Publish(hub.Envelope{Role: wireSwitch, Content: visible})
}
