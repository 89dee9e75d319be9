// ABOUTME: The conversation orchestration state machine and its owner goroutine
// ABOUTME: One event's full transition completes before the next event is taken

package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/symphonylabs/symphony/internal/gateway"
	"github.com/symphonylabs/symphony/internal/store"
	"github.com/symphonylabs/symphony/internal/tools"
	"github.com/symphonylabs/symphony/internal/turn"
)

// State names the machine's position. All non-idle states are transient:
// each performs one asynchronous operation and returns to idle, except for
// the modelCall/toolDispatch loop which cycles until the model stops
// requesting tools.
type State string

const (
	StateIdle                State = "idle"
	StateModelCall           State = "modelCall"
	StateToolDispatch        State = "toolDispatch"
	StateNewConversation     State = "newConversation"
	StateRestoreConversation State = "restoreConversation"
	StateSwitchConversation  State = "switchConversation"
	StateDeleteConversation  State = "deleteConversation"
	StateEditTurn            State = "editTurn"
	StateDeleteTurn          State = "deleteTurn"
	StateFineTune            State = "fineTune"
)

// Context is the live working state of the active conversation. It is
// exclusively owned and mutated by the orchestrator; collaborators only ever
// receive copies. Its JSON shape is what observers see on restore.
type Context struct {
	ConversationID string             `json:"id"`
	Turns          []turn.Turn        `json:"generations"`
	Participants   []turn.Participant `json:"connections"`
}

// Dispatcher is what the orchestrator needs from the tool layer.
type Dispatcher interface {
	DispatchAll(ctx context.Context, calls []turn.ToolCall) []turn.Message
}

// Broadcaster is what the orchestrator needs from the hub.
type Broadcaster interface {
	Publish(v any)
}

// Options configures an Orchestrator.
type Options struct {
	Store       store.Store
	Completer   gateway.Completer
	Dispatcher  Dispatcher
	Broadcaster Broadcaster

	// Catalog is the merged callable-function descriptor set handed to the
	// model on every completion call.
	Catalog []tools.Descriptor

	// Assistant defaults used for the initial participant pair.
	AssistantDescription string
	AssistantModelID     string

	// ModelTimeout bounds each completion call; zero disables the deadline.
	ModelTimeout time.Duration

	// ArtifactDir receives the fine-tune training corpus file.
	ArtifactDir string

	Logger *slog.Logger
}

// Orchestrator owns the conversation context and interprets inbound events.
// Run starts the single owner goroutine; all collaborator calls are issued
// from within it and the context is never shared out.
type Orchestrator struct {
	store       store.Store
	completer   gateway.Completer
	dispatcher  Dispatcher
	broadcaster Broadcaster

	catalog      []tools.Descriptor
	modelTimeout time.Duration
	artifactDir  string

	events chan Event
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	current Context
}

// New creates an orchestrator with a fresh empty conversation and the
// conventional assistant/user participant pair.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:        opts.Store,
		completer:    opts.Completer,
		dispatcher:   opts.Dispatcher,
		broadcaster:  opts.Broadcaster,
		catalog:      opts.Catalog,
		modelTimeout: opts.ModelTimeout,
		artifactDir:  opts.ArtifactDir,
		events:       make(chan Event, 16),
		logger:       logger.With("component", "orchestrator"),
		state:        StateIdle,
		current: Context{
			ConversationID: uuid.New().String(),
			Participants:   turn.DefaultParticipants(opts.AssistantDescription, opts.AssistantModelID),
		},
	}
}

// Send queues an event for the owner goroutine.
func (o *Orchestrator) Send(ev Event) {
	o.events <- ev
}

// Run consumes events until ctx is cancelled. One event's full transition,
// including its internally awaited collaborator calls, completes before the
// next event is taken.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		"conversation_id", o.current.ConversationID,
		"catalog_size", len(o.catalog),
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return ctx.Err()
		case ev := <-o.events:
			o.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent runs one event's transition to completion. Exported so tests
// can drive the machine synchronously; production traffic goes through Run.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case UserMessage:
		o.handleUserMessage(ctx, ev)
	case RestoreRequest:
		o.handleRestore()
	case HistoryRequest:
		o.handleHistory(ctx)
	case NewRequest:
		o.handleNew()
	case DeleteConversationRequest:
		o.handleDeleteConversation(ctx)
	case EditRequest:
		o.handleEdit(ctx, ev)
	case DeleteTurnRequest:
		o.handleDeleteTurn(ctx, ev)
	case FineTuneRequest:
		o.handleFineTune(ctx)
	case ModelsRequest:
		o.handleModels(ctx)
	case PersonalizeRequest:
		o.handlePersonalize(ev)
	case SwitchRequest:
		o.handleSwitch(ctx, ev)
	default:
		o.logger.Warn("unhandled event", "event", ev)
	}
}

// State returns the machine's current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Snapshot returns a copy of the live context for inspection. The turns and
// participants slices are copied so callers never hold a live handle.
func (o *Orchestrator) Snapshot() Context {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := Context{ConversationID: o.current.ConversationID}
	snapshot.Turns = append([]turn.Turn(nil), o.current.Turns...)
	snapshot.Participants = append([]turn.Participant(nil), o.current.Participants...)
	return snapshot
}
