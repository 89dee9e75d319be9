// ABOUTME: Store interface for the durable conversation history
// ABOUTME: Mutating calls return the affected records for confirmation

package store

import (
	"context"
	"errors"

	"github.com/symphonylabs/symphony/internal/turn"
)

// ErrNotFound is returned when a requested turn does not exist.
var ErrNotFound = errors.New("turn not found")

// Store is the typed interface to the durable history of conversation turns.
// Listing calls return turns ordered by timestamp ascending; every mutating
// call returns the affected record(s) so callers can confirm the write.
type Store interface {
	// AppendTurn persists a newly created turn.
	AppendTurn(ctx context.Context, t turn.Turn) error

	// ListByConversation returns all turns of one conversation, oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]turn.Turn, error)

	// ListAll returns every turn across all conversations, oldest first.
	ListAll(ctx context.Context) ([]turn.Turn, error)

	// UpdateMessage replaces the message of the turn with the given id and
	// returns the updated record. Returns ErrNotFound for an unknown id.
	UpdateMessage(ctx context.Context, id string, message turn.Message) (*turn.Turn, error)

	// DeleteTurn removes one turn by id and returns the deleted record.
	// Returns ErrNotFound for an unknown id.
	DeleteTurn(ctx context.Context, id string) (*turn.Turn, error)

	// DeleteConversation removes every turn of a conversation and returns the
	// deleted records, oldest first. An unknown conversation yields an empty
	// slice, not an error.
	DeleteConversation(ctx context.Context, conversationID string) ([]turn.Turn, error)

	// Close releases underlying resources.
	Close() error
}
