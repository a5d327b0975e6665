// Package store provides storage backends for fitbit-bot.
//
// It includes SQLite and PostgreSQL stores for thread state, user profiles,
// health metrics, and the knowledge base, plus an in-memory store for tests.
package store

import (
	"context"
	"errors"

	"github.com/gutzcha/fitbit-bot/internal/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// StateStore persists per-thread conversation state and history.
type StateStore interface {
	GetThreadState(ctx context.Context, threadID string) (*models.ThreadState, error)
	SaveThreadState(ctx context.Context, state *models.ThreadState) error
	DeleteThreadState(ctx context.Context, threadID string) error
}

// ProfileStore provides read access to externally-owned user profiles.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error)
	SaveUserProfile(ctx context.Context, profile *models.UserProfile) error
}

// MetricsStore executes read-only queries against the health metrics tables.
// Implementations must reject anything that is not a single SELECT statement.
type MetricsStore interface {
	QueryMetrics(ctx context.Context, query string) ([]map[string]any, error)
}

// KnowledgeEntry is one retrieved knowledge base item.
type KnowledgeEntry struct {
	Content string `json:"content"`
	Topic   string `json:"topic"`
	Source  string `json:"source"`
}

// KnowledgeStore searches the health knowledge base.
type KnowledgeStore interface {
	SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error)
}

// Store combines all storage concerns behind one backend.
type Store interface {
	StateStore
	ProfileStore
	MetricsStore
	KnowledgeStore
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}
