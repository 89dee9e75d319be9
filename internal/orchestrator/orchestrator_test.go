// ABOUTME: Tests for the orchestration state machine's transitions and actions
// ABOUTME: Drives HandleEvent synchronously against scripted collaborator fakes

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symphonylabs/symphony/internal/gateway"
	"github.com/symphonylabs/symphony/internal/hub"
	"github.com/symphonylabs/symphony/internal/store"
	"github.com/symphonylabs/symphony/internal/tools"
	"github.com/symphonylabs/symphony/internal/turn"
)

// scriptedCompleter returns one scripted reply per Complete call, recording
// the message sequence and model id of each.
type scriptedCompleter struct {
	replies []turn.Message
	errs    []error

	calls    [][]turn.Message
	models   []string
	corpus   []byte
	modelSet []gateway.ModelInfo
}

func (c *scriptedCompleter) Complete(_ context.Context, messages []turn.Message, modelID string, _ []tools.Descriptor) (turn.Message, error) {
	recorded := append([]turn.Message(nil), messages...)
	c.calls = append(c.calls, recorded)
	c.models = append(c.models, modelID)

	i := len(c.calls) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return turn.Message{}, c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return assistantText("done"), nil
}

func (c *scriptedCompleter) ListModels(context.Context) ([]gateway.ModelInfo, error) {
	return c.modelSet, nil
}

func (c *scriptedCompleter) CreateFineTune(_ context.Context, trainingData io.Reader, modelID string) (*gateway.FineTuneJob, error) {
	data, err := io.ReadAll(trainingData)
	if err != nil {
		return nil, err
	}
	c.corpus = data
	return &gateway.FineTuneJob{ID: "ftjob-1", Model: modelID, Status: "queued"}, nil
}

// stubDispatcher answers every call in batch order; ids listed in fail get an
// error payload instead of a success payload.
type stubDispatcher struct {
	fail map[string]bool
}

func (d stubDispatcher) DispatchAll(_ context.Context, calls []turn.ToolCall) []turn.Message {
	out := make([]turn.Message, len(calls))
	for i, call := range calls {
		if d.fail[call.ID] {
			content, _ := json.Marshal(map[string]string{"errorMessage": "service unavailable"})
			out[i] = turn.ToolResult(call.ID, call.Function.Name, string(content))
			continue
		}
		out[i] = turn.ToolResult(call.ID, call.Function.Name, `{"ok":true}`)
	}
	return out
}

// recordingBroadcaster captures every published payload.
type recordingBroadcaster struct {
	mu        sync.Mutex
	published []any
}

func (b *recordingBroadcaster) Publish(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, v)
}

func (b *recordingBroadcaster) envelopes(role string) []hub.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []hub.Envelope
	for _, v := range b.published {
		if env, ok := v.(hub.Envelope); ok && env.Role == role {
			out = append(out, env)
		}
	}
	return out
}

func (b *recordingBroadcaster) turns() []turn.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []turn.Turn
	for _, v := range b.published {
		if t, ok := v.(turn.Turn); ok {
			out = append(out, t)
		}
	}
	return out
}

func assistantText(content string) turn.Message {
	return turn.Message{Role: turn.RoleAssistant, Content: turn.Text(content)}
}

func assistantToolCalls(calls ...turn.ToolCall) turn.Message {
	return turn.Message{Role: turn.RoleAssistant, ToolCalls: calls}
}

type fixture struct {
	orch        *Orchestrator
	store       *store.MemoryStore
	completer   *scriptedCompleter
	broadcaster *recordingBroadcaster
	artifactDir string
}

func newFixture(t *testing.T, completer *scriptedCompleter, dispatcher Dispatcher) *fixture {
	t.Helper()

	if completer == nil {
		completer = &scriptedCompleter{}
	}
	if dispatcher == nil {
		dispatcher = stubDispatcher{}
	}

	memStore := store.NewMemoryStore()
	broadcaster := &recordingBroadcaster{}
	artifactDir := t.TempDir()

	orch := New(Options{
		Store:                memStore,
		Completer:            completer,
		Dispatcher:           dispatcher,
		Broadcaster:          broadcaster,
		AssistantDescription: "You are terse.",
		AssistantModelID:     "gpt-4-1106-preview",
		ArtifactDir:          artifactDir,
	})

	return &fixture{
		orch:        orch,
		store:       memStore,
		completer:   completer,
		broadcaster: broadcaster,
		artifactDir: artifactDir,
	}
}

func (f *fixture) handle(t *testing.T, ev Event) {
	t.Helper()
	f.orch.HandleEvent(context.Background(), ev)
}

func TestUserMessage_PlainReply(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{replies: []turn.Message{assistantText("hi there")}}, nil)

	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	snapshot := f.orch.Snapshot()
	require.Len(t, snapshot.Turns, 2)
	assert.Equal(t, turn.RoleUser, snapshot.Turns[0].Message.Role)
	assert.Equal(t, turn.RoleAssistant, snapshot.Turns[1].Message.Role)
	assert.Equal(t, "hi there", snapshot.Turns[1].Message.Text())
	assert.Less(t, snapshot.Turns[0].Timestamp, snapshot.Turns[1].Timestamp)

	// Exactly one completion call, seeded with the system message.
	require.Len(t, f.completer.calls, 1)
	assert.Equal(t, turn.RoleSystem, f.completer.calls[0][0].Role)
	assert.Equal(t, "gpt-4-1106-preview", f.completer.models[0])

	// Both turns persisted and broadcast bare.
	stored, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Len(t, f.broadcaster.turns(), 2)

	assert.Equal(t, StateIdle, f.orch.State())
}

func TestUserMessage_RebroadcastsHistory(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	assert.NotEmpty(t, f.broadcaster.envelopes(wireHistory))
}

func TestUserMessage_UnexpectedRoleDropped(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.handle(t, UserMessage{Message: assistantText("spoofed")})

	assert.Empty(t, f.orch.Snapshot().Turns)
	assert.Empty(t, f.completer.calls)
}

func TestUserMessage_ModelFailureLeavesUserTurnOnly(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{errs: []error{errors.New("upstream down")}}, nil)

	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	snapshot := f.orch.Snapshot()
	require.Len(t, snapshot.Turns, 1)
	assert.Equal(t, turn.RoleUser, snapshot.Turns[0].Message.Role)
	assert.Equal(t, StateIdle, f.orch.State())
}

func TestUserMessage_ToolLoop(t *testing.T) {
	completer := &scriptedCompleter{
		replies: []turn.Message{
			assistantToolCalls(
				turn.ToolCall{ID: "call-1", Function: turn.FunctionCall{Name: "search_ts", Arguments: `{"q":"go"}`}},
				turn.ToolCall{ID: "call-2", Function: turn.FunctionCall{Name: "forecast_py", Arguments: `{}`}},
			),
			assistantText("all done"),
		},
	}
	dispatcher := stubDispatcher{fail: map[string]bool{"call-2": true}}
	f := newFixture(t, completer, dispatcher)

	f.handle(t, UserMessage{Message: turn.UserMessage("look this up")})

	// user, assistant(tool calls), tool x2, assistant(terminal)
	snapshot := f.orch.Snapshot()
	require.Len(t, snapshot.Turns, 5)
	assert.Equal(t, turn.RoleUser, snapshot.Turns[0].Message.Role)
	assert.True(t, snapshot.Turns[1].Message.HasToolCalls())
	assert.Nil(t, snapshot.Turns[1].Message.Content)

	// One tool turn per requested call, in tool_calls order, correlated by id.
	assert.Equal(t, turn.RoleTool, snapshot.Turns[2].Message.Role)
	assert.Equal(t, "call-1", snapshot.Turns[2].Message.ToolCallID)
	assert.Equal(t, turn.RoleTool, snapshot.Turns[3].Message.Role)
	assert.Equal(t, "call-2", snapshot.Turns[3].Message.ToolCallID)
	assert.Contains(t, snapshot.Turns[3].Message.Text(), "errorMessage")

	assert.Equal(t, "all done", snapshot.Turns[4].Message.Text())

	// Timestamps strictly increase across the whole transition.
	for i := 1; i < len(snapshot.Turns); i++ {
		assert.Less(t, snapshot.Turns[i-1].Timestamp, snapshot.Turns[i].Timestamp)
	}

	// The second completion call saw the tool results.
	require.Len(t, f.completer.calls, 2)
	second := f.completer.calls[1]
	assert.Equal(t, turn.RoleTool, second[len(second)-2].Role)
	assert.Equal(t, turn.RoleTool, second[len(second)-1].Role)

	assert.Equal(t, StateIdle, f.orch.State())

	stored, err := f.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestNewRequest_FreshConversationEachTime(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	original := f.orch.Snapshot()
	require.NotEmpty(t, original.Turns)

	f.handle(t, NewRequest{})
	first := f.orch.Snapshot()
	assert.NotEqual(t, original.ConversationID, first.ConversationID)
	assert.Empty(t, first.Turns)
	assert.Equal(t, original.Participants, first.Participants)

	// A second new on an already-empty context still yields a fresh identity.
	f.handle(t, NewRequest{})
	second := f.orch.Snapshot()
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Empty(t, second.Turns)

	// The old conversation's turns stay in the store.
	stored, err := f.store.ListByConversation(context.Background(), original.ConversationID)
	require.NoError(t, err)
	assert.Len(t, stored, len(original.Turns))
}

func TestSwitch_RoundTrip(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{replies: []turn.Message{assistantText("reply")}}, nil)

	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})
	original := f.orch.Snapshot()
	require.Len(t, original.Turns, 2)

	f.handle(t, NewRequest{})
	require.Empty(t, f.orch.Snapshot().Turns)

	f.handle(t, SwitchRequest{ConversationID: original.ConversationID})

	restored := f.orch.Snapshot()
	assert.Equal(t, original.ConversationID, restored.ConversationID)
	assert.Equal(t, original.Turns, restored.Turns)
	assert.Equal(t, StateIdle, f.orch.State())
}

func TestSwitch_BroadcastExcludesSystemTurns(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	systemTurn := turn.New(turn.SystemMessage("internal"), "conv-x")
	userTurn := turn.New(turn.UserMessage("visible"), "conv-x")
	require.NoError(t, f.store.AppendTurn(ctx, systemTurn))
	require.NoError(t, f.store.AppendTurn(ctx, userTurn))

	f.handle(t, SwitchRequest{ConversationID: "conv-x"})

	// The in-memory sequence keeps everything; the broadcast hides system turns.
	assert.Len(t, f.orch.Snapshot().Turns, 2)

	envelopes := f.broadcaster.envelopes(wireSwitch)
	require.Len(t, envelopes, 1)
	visible, ok := envelopes[0].Content.([]turn.Turn)
	require.True(t, ok)
	require.Len(t, visible, 1)
	assert.Equal(t, userTurn.ID, visible[0].ID)
}

func TestEdit_ReplacesOnlyTargetTurn(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{replies: []turn.Message{assistantText("reply")}}, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("helo")})

	before := f.orch.Snapshot()
	require.Len(t, before.Turns, 2)
	target := before.Turns[0]

	f.handle(t, EditRequest{TurnID: target.ID, Message: turn.UserMessage("hello")})

	after := f.orch.Snapshot()
	assert.Equal(t, "hello", after.Turns[0].Message.Text())
	assert.Equal(t, target.ID, after.Turns[0].ID)
	assert.Equal(t, target.Timestamp, after.Turns[0].Timestamp)
	assert.Equal(t, before.Turns[1], after.Turns[1])

	stored, err := f.store.ListByConversation(context.Background(), before.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored[0].Message.Text())

	envelopes := f.broadcaster.envelopes(wireEdit)
	require.Len(t, envelopes, 1)
	updated, ok := envelopes[0].Content.(*turn.Turn)
	require.True(t, ok)
	assert.Equal(t, target.ID, updated.ID)
}

func TestEdit_UnknownTurnIsNoOp(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})
	before := f.orch.Snapshot()

	f.handle(t, EditRequest{TurnID: "no-such-turn", Message: turn.UserMessage("x")})

	assert.Equal(t, before.Turns, f.orch.Snapshot().Turns)
	assert.Empty(t, f.broadcaster.envelopes(wireEdit))
	assert.Equal(t, StateIdle, f.orch.State())
}

func TestDeleteTurn_RemovesFromStoreAndMemory(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{replies: []turn.Message{assistantText("reply")}}, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	before := f.orch.Snapshot()
	require.Len(t, before.Turns, 2)
	victim := before.Turns[1]

	f.handle(t, DeleteTurnRequest{TurnID: victim.ID})

	after := f.orch.Snapshot()
	require.Len(t, after.Turns, 1)
	assert.Equal(t, before.Turns[0].ID, after.Turns[0].ID)

	stored, err := f.store.ListByConversation(context.Background(), before.ConversationID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	envelopes := f.broadcaster.envelopes(wireDeleteGeneration)
	require.Len(t, envelopes, 1)
	deleted, ok := envelopes[0].Content.(*turn.Turn)
	require.True(t, ok)
	assert.Equal(t, victim.ID, deleted.ID)
}

func TestDeleteTurn_UnknownTurnIsNoOp(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})
	before := f.orch.Snapshot()

	f.handle(t, DeleteTurnRequest{TurnID: "no-such-turn"})

	assert.Equal(t, before.Turns, f.orch.Snapshot().Turns)
	assert.Empty(t, f.broadcaster.envelopes(wireDeleteGeneration))
}

func TestDeleteConversation_DrainsAndResets(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{replies: []turn.Message{assistantText("reply")}}, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	before := f.orch.Snapshot()
	require.NotEmpty(t, before.Turns)

	f.handle(t, DeleteConversationRequest{})

	stored, err := f.store.ListByConversation(context.Background(), before.ConversationID)
	require.NoError(t, err)
	assert.Empty(t, stored)

	after := f.orch.Snapshot()
	assert.NotEqual(t, before.ConversationID, after.ConversationID)
	assert.Empty(t, after.Turns)

	envelopes := f.broadcaster.envelopes(wireDeleteConversation)
	require.Len(t, envelopes, 1)
	first, ok := envelopes[0].Content.(turn.Turn)
	require.True(t, ok)
	assert.Equal(t, before.Turns[0].ID, first.ID)
}

func TestRestore_BroadcastsLiveContext(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})

	f.handle(t, RestoreRequest{})

	envelopes := f.broadcaster.envelopes(wireRestore)
	require.Len(t, envelopes, 1)

	restored, ok := envelopes[0].Content.(Context)
	require.True(t, ok)
	assert.Equal(t, f.orch.Snapshot(), restored)
}

func TestHistory_SummarizesEachConversation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	// Two conversations, conv-a started first.
	aFirst := turn.New(turn.UserMessage("a first"), "conv-a")
	require.NoError(t, f.store.AppendTurn(ctx, aFirst))
	require.NoError(t, f.store.AppendTurn(ctx, turn.New(turn.UserMessage("a second"), "conv-a")))
	bFirst := turn.New(turn.UserMessage("b first"), "conv-b")
	require.NoError(t, f.store.AppendTurn(ctx, bFirst))

	f.handle(t, HistoryRequest{})

	envelopes := f.broadcaster.envelopes(wireHistory)
	require.Len(t, envelopes, 1)

	summaries, ok := envelopes[0].Content.([]historySummary)
	require.True(t, ok)
	require.Len(t, summaries, 2)

	// Most recently started conversation first, each summarized by its
	// earliest turn.
	assert.Equal(t, "conv-b", summaries[0].ID)
	assert.Equal(t, "b first", summaries[0].Message.Text())
	assert.Equal(t, "conv-a", summaries[1].ID)
	assert.Equal(t, "a first", summaries[1].Message.Text())
}

func TestPersonalize_ChangesModelForNextCall(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.handle(t, PersonalizeRequest{Participant: turn.Participant{
		Name:        turn.RoleAssistant,
		Description: "Be verbose.",
		ModelID:     "gpt-4o",
	}})

	envelopes := f.broadcaster.envelopes(wireRestore)
	require.Len(t, envelopes, 1)

	f.handle(t, UserMessage{Message: turn.UserMessage("hello")})
	require.Len(t, f.completer.models, 1)
	assert.Equal(t, "gpt-4o", f.completer.models[0])

	// The updated description lands in the system message.
	assert.Contains(t, f.completer.calls[0][0].Text(), "Be verbose.")
}

func TestModels_BroadcastsGatewayList(t *testing.T) {
	completer := &scriptedCompleter{modelSet: []gateway.ModelInfo{
		{ID: "gpt-4o", OwnedBy: "openai"},
		{ID: "gpt-4-1106-preview", OwnedBy: "openai"},
	}}
	f := newFixture(t, completer, nil)

	f.handle(t, ModelsRequest{})

	envelopes := f.broadcaster.envelopes(wireModels)
	require.Len(t, envelopes, 1)
	models, ok := envelopes[0].Content.([]gateway.ModelInfo)
	require.True(t, ok)
	assert.Len(t, models, 2)
}

func TestFineTune_ExportsCorpusAndSubmitsJob(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, f.store.AppendTurn(ctx, turn.New(turn.UserMessage("a1"), "conv-a")))
	require.NoError(t, f.store.AppendTurn(ctx, turn.New(assistantText("a2"), "conv-a")))
	require.NoError(t, f.store.AppendTurn(ctx, turn.New(turn.UserMessage("b1"), "conv-b")))

	f.handle(t, FineTuneRequest{})

	// One JSONL line per conversation went to the gateway.
	lines := bytes.Split(bytes.TrimSpace(f.completer.corpus), []byte("\n"))
	assert.Len(t, lines, 2)

	// The artifact mirrors the uploaded corpus.
	artifact, err := os.ReadFile(filepath.Join(f.artifactDir, "training-data.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, f.completer.corpus, artifact)

	envelopes := f.broadcaster.envelopes(wireFineTune)
	require.Len(t, envelopes, 1)
	job, ok := envelopes[0].Content.(*gateway.FineTuneJob)
	require.True(t, ok)
	assert.Equal(t, "ftjob-1", job.ID)
	assert.Equal(t, "gpt-4-1106-preview", job.Model)

	assert.Equal(t, StateIdle, f.orch.State())
}

func TestRun_ProcessesQueuedEvents(t *testing.T) {
	f := newFixture(t, &scriptedCompleter{replies: []turn.Message{assistantText("reply")}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	f.orch.Send(UserMessage{Message: turn.UserMessage("hello")})

	assert.Eventually(t, func() bool {
		return len(f.orch.Snapshot().Turns) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
