// Package store provides storage backends for fitbit-bot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/gutzcha/fitbit-bot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists. A DSN may carry query parameters and a
	// file: prefix, which do not belong in the path.
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetThreadState loads the persisted state for a thread, or ErrNotFound.
func (s *SQLiteStore) GetThreadState(ctx context.Context, threadID string) (*models.ThreadState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, user_id, conversation_state, messages, created_at, updated_at FROM thread_state WHERE thread_id = ?`,
		threadID)
	return scanThreadState(row)
}

// SaveThreadState inserts or replaces the state for a thread.
func (s *SQLiteStore) SaveThreadState(ctx context.Context, state *models.ThreadState) error {
	stateJSON, messagesJSON, err := marshalThreadState(state)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_state (thread_id, user_id, conversation_state, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			user_id = excluded.user_id,
			conversation_state = excluded.conversation_state,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		state.ThreadID, state.UserID, nilIfEmpty(stateJSON), nilIfEmpty(messagesJSON), now, now)
	if err != nil {
		slog.Error("SQLiteStore SaveThreadState failed", "error", err, "threadID", state.ThreadID)
		return fmt.Errorf("failed to save thread state for %s: %w", state.ThreadID, err)
	}
	slog.Debug("SQLiteStore SaveThreadState succeeded", "threadID", state.ThreadID, "messages", len(state.Messages))
	return nil
}

// DeleteThreadState removes a thread's persisted state. Deleting a missing
// thread is not an error.
func (s *SQLiteStore) DeleteThreadState(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM thread_state WHERE thread_id = ?`, threadID)
	if err != nil {
		slog.Error("SQLiteStore DeleteThreadState failed", "error", err, "threadID", threadID)
		return fmt.Errorf("failed to delete thread state for %s: %w", threadID, err)
	}
	return nil
}

// GetUserProfile loads a user profile document, or ErrNotFound.
func (s *SQLiteStore) GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	var profileJSON string
	err := s.db.QueryRowContext(ctx, `SELECT profile FROM user_profiles WHERE user_id = ?`, userID).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query profile for %d: %w", userID, err)
	}
	var profile models.UserProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for %d: %w", userID, err)
	}
	return &profile, nil
}

// SaveUserProfile inserts or replaces a user profile document.
func (s *SQLiteStore) SaveUserProfile(ctx context.Context, profile *models.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile for %d: %w", profile.UserID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, profile, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`,
		profile.UserID, string(data), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveUserProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %d: %w", profile.UserID, err)
	}
	return nil
}

// QueryMetrics executes a single SELECT against the metrics tables.
func (s *SQLiteStore) QueryMetrics(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ensureSelectOnly(query); err != nil {
		slog.Warn("SQLiteStore QueryMetrics rejected query", "error", err)
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("SQLiteStore QueryMetrics failed", "error", err)
		return nil, fmt.Errorf("metrics query failed: %w", err)
	}
	defer rows.Close()
	return scanRowsToMaps(rows)
}

// SearchKnowledge retrieves knowledge base entries matching the query text.
func (s *SQLiteStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error) {
	if limit <= 0 {
		limit = DefaultKnowledgeLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content, topic, source FROM knowledge_base
		WHERE content LIKE '%' || ? || '%' OR topic LIKE '%' || ? || '%'
		LIMIT ?`, query, query, limit)
	if err != nil {
		slog.Error("SQLiteStore SearchKnowledge failed", "error", err)
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
