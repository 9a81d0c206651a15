package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlConversationEntries = `
CREATE TABLE IF NOT EXISTS conversation_entries (
    conversation_id TEXT         NOT NULL,
    position        INTEGER      NOT NULL,
    role            TEXT         NOT NULL,
    text            TEXT         NOT NULL,
    timestamp       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (conversation_id, position)
);

CREATE INDEX IF NOT EXISTS idx_conversation_entries_timestamp
    ON conversation_entries (timestamp);
`

// Migrate creates the conversation_entries table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlConversationEntries); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// PostgresStore keeps one conversation in the conversation_entries table.
// Every Save replaces the rows of its conversation in a single transaction.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool           *pgxpool.Pool
	conversationID string
}

// NewPostgresStore connects to dsn, runs [Migrate] and returns a store bound
// to conversationID. An empty conversationID starts a new conversation with
// a random UUID.
func NewPostgresStore(ctx context.Context, dsn, conversationID string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	return &PostgresStore{pool: pool, conversationID: conversationID}, nil
}

// ConversationID returns the id rows are stored under.
func (s *PostgresStore) ConversationID() string { return s.conversationID }

// Ping checks connectivity. It is used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load implements [Store]. Entries are returned in their saved order.
func (s *PostgresStore) Load(ctx context.Context) ([]Entry, error) {
	const q = `
		SELECT role, text, timestamp
		FROM   conversation_entries
		WHERE  conversation_id = $1
		ORDER  BY position`

	rows, err := s.pool.Query(ctx, q, s.conversationID)
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			role string
		)
		if err := rows.Scan(&role, &e.Text, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Role = ParseRole(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	return entries, nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, entries []Entry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM conversation_entries WHERE conversation_id = $1`, s.conversationID); err != nil {
			return fmt.Errorf("history: save: delete: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"conversation_entries"},
			[]string{"conversation_id", "position", "role", "text", "timestamp"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				return []any{s.conversationID, i, string(e.Role), e.Text, e.Timestamp}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("history: save: copy: %w", err)
		}
		return nil
	})
}

var _ Store = (*PostgresStore)(nil)
