// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Messages are stored as JSON; timestamps as fixed-width RFC 3339 text for lexical ordering

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/symphonylabs/symphony/internal/turn"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created automatically if it doesn't exist, and parent
// directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS generations (
			turn_id         TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			message         TEXT NOT NULL,
			timestamp       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_generations_conversation
			ON generations(conversation_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_generations_timestamp
			ON generations(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendTurn persists a turn. The message is serialized as JSON so tool calls
// and correlation ids survive round-trips unchanged.
func (s *SQLiteStore) AppendTurn(ctx context.Context, t turn.Turn) error {
	message, err := json.Marshal(t.Message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	query := `
		INSERT INTO generations (turn_id, conversation_id, role, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID,
		t.ConversationID,
		t.Message.Role,
		string(message),
		t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	s.logger.Debug("turn appended",
		"turn_id", t.ID,
		"conversation_id", t.ConversationID,
		"role", t.Message.Role,
	)
	return nil
}

const (
	selectByConversationQuery = `
		SELECT turn_id, conversation_id, message, timestamp
		FROM generations
		WHERE conversation_id = ?
		ORDER BY timestamp ASC
	`
	selectAllQuery = `
		SELECT turn_id, conversation_id, message, timestamp
		FROM generations
		ORDER BY timestamp ASC
	`
	selectByIDQuery = `
		SELECT turn_id, conversation_id, message, timestamp
		FROM generations
		WHERE turn_id = ?
	`
)

// ListByConversation returns one conversation's turns ordered by timestamp ASC.
func (s *SQLiteStore) ListByConversation(ctx context.Context, conversationID string) ([]turn.Turn, error) {
	return queryTurns(ctx, s.db, selectByConversationQuery, conversationID)
}

// ListAll returns every turn across all conversations ordered by timestamp ASC.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]turn.Turn, error) {
	return queryTurns(ctx, s.db, selectAllQuery)
}

// UpdateMessage replaces the message of one turn and returns the updated record.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id string, message turn.Message) (*turn.Turn, error) {
	encoded, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	query := `
		UPDATE generations
		SET message = ?, role = ?
		WHERE turn_id = ?
	`
	res, err := s.db.ExecContext(ctx, query, string(encoded), message.Role, id)
	if err != nil {
		return nil, fmt.Errorf("updating turn: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return s.getTurn(ctx, id)
}

// DeleteTurn removes one turn by id and returns the deleted record. The read
// and the delete run in one transaction so the returned record is exactly
// what was removed.
func (s *SQLiteStore) DeleteTurn(ctx context.Context, id string) (*turn.Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectByIDQuery, id)
	t, err := scanTurn(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying turn: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE turn_id = ?`, id); err != nil {
		return nil, fmt.Errorf("deleting turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("turn deleted", "turn_id", id)
	return &t, nil
}

// DeleteConversation removes every turn of one conversation and returns the
// deleted records, oldest first. Read and delete share one transaction.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID string) ([]turn.Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := queryTurns(ctx, tx, selectByConversationQuery, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE conversation_id = ?`, conversationID); err != nil {
		return nil, fmt.Errorf("deleting conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("conversation deleted",
		"conversation_id", conversationID,
		"turns", len(deleted),
	)
	return deleted, nil
}

func (s *SQLiteStore) getTurn(ctx context.Context, id string) (*turn.Turn, error) {
	row := s.db.QueryRowContext(ctx, selectByIDQuery, id)

	t, err := scanTurn(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying turn: %w", err)
	}
	return &t, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTurns(ctx context.Context, q querier, query string, args ...any) ([]turn.Turn, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []turn.Turn
	for rows.Next() {
		t, err := scanTurn(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}
		turns = append(turns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turn rows: %w", err)
	}
	return turns, nil
}

func scanTurn(scan func(dest ...any) error) (turn.Turn, error) {
	var t turn.Turn
	var message string

	if err := scan(&t.ID, &t.ConversationID, &message, &t.Timestamp); err != nil {
		return turn.Turn{}, err
	}

	if err := json.Unmarshal([]byte(message), &t.Message); err != nil {
		return turn.Turn{}, fmt.Errorf("decoding message: %w", err)
	}
	return t, nil
}
