package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/estofados/storefront/internal/db"
	"github.com/estofados/storefront/internal/metrics"
)

// Schema creates the token table; valid for both sqlite and mysql
const Schema = `
-- one row per configured token key
CREATE TABLE IF NOT EXISTS session_tokens (
    token_key VARCHAR(191) NOT NULL PRIMARY KEY,
    token TEXT NOT NULL,
    updated_at BIGINT NOT NULL
);
`

const (
	loadQuery   = "SELECT token, updated_at FROM session_tokens WHERE token_key = ?"
	deleteQuery = "DELETE FROM session_tokens WHERE token_key = ?"
	insertQuery = "INSERT INTO session_tokens (token_key, token, updated_at) VALUES (?, ?, ?)"
)

// SQLStore keeps the token in a relational table
type SQLStore struct {
	db      *db.DB
	key     string
	ttl     time.Duration
	metrics *metrics.AppMetrics
	now     func() time.Time
}

// NewSQLStore stores the token under key. A token older than ttl loads as
// absent; ttl <= 0 keeps it forever.
func NewSQLStore(database *db.DB, key string, ttl time.Duration, m *metrics.AppMetrics) *SQLStore {
	return &SQLStore{db: database, key: key, ttl: ttl, metrics: m, now: time.Now}
}

// Migrate creates the token table when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.InitSchema(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate token store: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (string, error) {
	start := time.Now()
	var (
		token     string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, loadQuery, s.key).Scan(&token, &updatedAt)
	s.metrics.RecordDBQuery(ctx, s.db.Driver(), "SELECT", "session_tokens", loadQuery, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(updatedAt, 0)) > s.ttl {
		return "", nil
	}
	return token, nil
}

func (s *SQLStore) Save(ctx context.Context, token string) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteQuery, s.key); err != nil {
		s.metrics.RecordDBQuery(ctx, s.db.Driver(), "DELETE", "session_tokens", deleteQuery, start, false)
		return fmt.Errorf("failed to replace token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertQuery, s.key, token, s.now().Unix()); err != nil {
		s.metrics.RecordDBQuery(ctx, s.db.Driver(), "INSERT", "session_tokens", insertQuery, start, false)
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token: %w", err)
	}
	s.metrics.RecordDBQuery(ctx, s.db.Driver(), "INSERT", "session_tokens", insertQuery, start, true)
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, deleteQuery, s.key)
	s.metrics.RecordDBQuery(ctx, s.db.Driver(), "DELETE", "session_tokens", deleteQuery, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
