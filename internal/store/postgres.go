// Package store provides storage backends for fitbit-bot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/gutzcha/fitbit-bot/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetThreadState loads the persisted state for a thread, or ErrNotFound.
func (s *PostgresStore) GetThreadState(ctx context.Context, threadID string) (*models.ThreadState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, user_id, conversation_state, messages, created_at, updated_at FROM thread_state WHERE thread_id = $1`,
		threadID)
	return scanThreadState(row)
}

// SaveThreadState inserts or replaces the state for a thread.
func (s *PostgresStore) SaveThreadState(ctx context.Context, state *models.ThreadState) error {
	stateJSON, messagesJSON, err := marshalThreadState(state)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_state (thread_id, user_id, conversation_state, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(thread_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			conversation_state = EXCLUDED.conversation_state,
			messages = EXCLUDED.messages,
			updated_at = EXCLUDED.updated_at`,
		state.ThreadID, state.UserID, nilIfEmpty(stateJSON), nilIfEmpty(messagesJSON), now, now)
	if err != nil {
		slog.Error("PostgresStore SaveThreadState failed", "error", err, "threadID", state.ThreadID)
		return fmt.Errorf("failed to save thread state for %s: %w", state.ThreadID, err)
	}
	return nil
}

// DeleteThreadState removes a thread's persisted state. Deleting a missing
// thread is not an error.
func (s *PostgresStore) DeleteThreadState(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM thread_state WHERE thread_id = $1`, threadID)
	if err != nil {
		slog.Error("PostgresStore DeleteThreadState failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to delete thread state for %s: %w", threadID, err)
	}
	return nil
}

// GetUserProfile loads a user profile document, or ErrNotFound.
func (s *PostgresStore) GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var profileJSON string
	err := s.db.QueryRowContext(ctx, `SELECT profile FROM user_profiles WHERE user_id = $1`, userID).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetUserProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query profile for %d: %w", userID, err)
	}
	var profile models.UserProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for %d: %w", userID, err)
	}
	return &profile, nil
}

// SaveUserProfile inserts or replaces a user profile document.
func (s *PostgresStore) SaveUserProfile(ctx context.Context, profile *models.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile for %d: %w", profile.UserID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, profile, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT(user_id) DO UPDATE SET profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at`,
		profile.UserID, string(data), time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore SaveUserProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %d: %w", profile.UserID, err)
	}
	return nil
}

// QueryMetrics executes a single SELECT against the metrics tables.
func (s *PostgresStore) QueryMetrics(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ensureSelectOnly(query); err != nil {
		slog.Warn("PostgresStore QueryMetrics rejected query", "error", err)
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("PostgresStore QueryMetrics failed", "error", err)
		return nil, fmt.Errorf("metrics query failed: %w", err)
	}
	defer rows.Close()
	return scanRowsToMaps(rows)
}

// SearchKnowledge retrieves knowledge base entries matching the query text.
func (s *PostgresStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error) {
	if limit <= 0 {
		limit = DefaultKnowledgeLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content, topic, source FROM knowledge_base
		WHERE content ILIKE '%' || $1 || '%' OR topic ILIKE '%' || $1 || '%'
		LIMIT $2`, query, limit)
	if err != nil {
		slog.Error("PostgresStore SearchKnowledge failed", "error", err)
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
