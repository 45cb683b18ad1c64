// Package postgres persists model usage records in PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mondweep/Auto-Analyst/internal/usage"
)

const createUsageTableSQL = `
CREATE TABLE IF NOT EXISTS model_usage (
	id                TEXT PRIMARY KEY,
	user_id           INTEGER,
	chat_id           INTEGER,
	session_id        TEXT NOT NULL,
	model_name        TEXT NOT NULL,
	provider          TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens      INTEGER NOT NULL,
	query_size        INTEGER NOT NULL,
	response_size     INTEGER NOT NULL,
	cost              DOUBLE PRECISION NOT NULL,
	request_time_ms   INTEGER NOT NULL,
	is_streaming      BOOLEAN NOT NULL,
	timestamp         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_model_usage_session ON model_usage (session_id);
CREATE INDEX IF NOT EXISTS idx_model_usage_user ON model_usage (user_id);`

// Store writes usage records through a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// New creates a store over an existing pool. The caller owns the pool's
// lifecycle.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the usage table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createUsageTableSQL); err != nil {
		return fmt.Errorf("create usage schema: %w", err)
	}
	return nil
}

// SaveUsage inserts one usage record. Zero user or chat IDs are stored as
// NULL so anonymous sessions still get accounted.
func (s *Store) SaveUsage(ctx context.Context, rec usage.Record) error {
	var userID, chatID *int
	if rec.UserID != 0 {
		userID = &rec.UserID
	}
	if rec.ChatID != 0 {
		chatID = &rec.ChatID
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO model_usage (
			id, user_id, chat_id, session_id, model_name, provider,
			prompt_tokens, completion_tokens, total_tokens,
			query_size, response_size, cost, request_time_ms,
			is_streaming, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		rec.ID, userID, chatID, rec.SessionID, rec.ModelName, rec.Provider,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.QuerySize, rec.ResponseSize, rec.Cost, rec.RequestTimeMs,
		rec.IsStreaming, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

var _ usage.Recorder = (*Store)(nil)
