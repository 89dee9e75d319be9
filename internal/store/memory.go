// ABOUTME: In-memory Store implementation for tests and ephemeral runs
// ABOUTME: Mirrors the SQLite store's ordering and return-the-record semantics

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/symphonylabs/symphony/internal/turn"
)

// MemoryStore is an in-memory Store. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.Mutex
	turns []turn.Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendTurn records a turn.
func (s *MemoryStore) AppendTurn(_ context.Context, t turn.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return nil
}

// ListByConversation returns one conversation's turns, oldest first.
func (s *MemoryStore) ListByConversation(_ context.Context, conversationID string) ([]turn.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []turn.Turn
	for _, t := range s.turns {
		if t.ConversationID == conversationID {
			out = append(out, t)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

// ListAll returns every turn, oldest first.
func (s *MemoryStore) ListAll(_ context.Context) ([]turn.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]turn.Turn, len(s.turns))
	copy(out, s.turns)
	sortByTimestamp(out)
	return out, nil
}

// UpdateMessage replaces one turn's message and returns the updated record.
func (s *MemoryStore) UpdateMessage(_ context.Context, id string, message turn.Message) (*turn.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.turns {
		if s.turns[i].ID == id {
			s.turns[i].Message = message
			updated := s.turns[i]
			return &updated, nil
		}
	}
	return nil, ErrNotFound
}

// DeleteTurn removes one turn by id and returns the deleted record.
func (s *MemoryStore) DeleteTurn(_ context.Context, id string) (*turn.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.turns {
		if s.turns[i].ID == id {
			deleted := s.turns[i]
			s.turns = append(s.turns[:i], s.turns[i+1:]...)
			return &deleted, nil
		}
	}
	return nil, ErrNotFound
}

// DeleteConversation removes every turn of one conversation and returns the
// deleted records, oldest first.
func (s *MemoryStore) DeleteConversation(_ context.Context, conversationID string) ([]turn.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted, kept []turn.Turn
	for _, t := range s.turns {
		if t.ConversationID == conversationID {
			deleted = append(deleted, t)
		} else {
			kept = append(kept, t)
		}
	}
	s.turns = kept
	sortByTimestamp(deleted)
	return deleted, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func sortByTimestamp(turns []turn.Turn) {
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp < turns[j].Timestamp
	})
}
