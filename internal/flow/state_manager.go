// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gutzcha/fitbit-bot/internal/models"
	"github.com/gutzcha/fitbit-bot/internal/store"
)

// StateManager owns per-thread persisted state. The turn router is its only
// caller during a turn; nodes receive state values and return deltas.
type StateManager interface {
	// GetOrCreateThread loads the thread or creates an empty one.
	GetOrCreateThread(ctx context.Context, threadID string, userID int64) (*models.ThreadState, error)
	// SaveThread persists the thread state after a completed turn.
	SaveThread(ctx context.Context, state *models.ThreadState) error
	// GetThread loads an existing thread state, or store.ErrNotFound.
	GetThread(ctx context.Context, threadID string) (*models.ThreadState, error)
	// ResetThread removes a thread's persisted state.
	ResetThread(ctx context.Context, threadID string) error
}

// StoreBasedStateManager implements StateManager using a StateStore backend.
type StoreBasedStateManager struct {
	store store.StateStore
}

// NewStoreBasedStateManager creates a new StateManager backed by a store.
func NewStoreBasedStateManager(st store.StateStore) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetOrCreateThread retrieves the thread state, creating a fresh one when
// the thread has no history yet.
func (sm *StoreBasedStateManager) GetOrCreateThread(ctx context.Context, threadID string, userID int64) (*models.ThreadState, error) {
	if threadID == "" {
		return nil, models.ErrEmptyThreadID
	}
	state, err := sm.store.GetThreadState(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("StateManager.GetOrCreateThread: creating new thread", "threadID", threadID, "userID", userID)
		now := time.Now().UTC()
		return &models.ThreadState{
			ThreadID:          threadID,
			UserID:            userID,
			ConversationState: &models.ConversationState{MentionedMetrics: map[string]bool{}},
			CreatedAt:         now,
			UpdatedAt:         now,
		}, nil
	}
	if err != nil {
		slog.Error("StateManager.GetOrCreateThread: load failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	if state.ConversationState == nil {
		state.ConversationState = &models.ConversationState{MentionedMetrics: map[string]bool{}}
	}
	if state.ConversationState.MentionedMetrics == nil {
		state.ConversationState.MentionedMetrics = map[string]bool{}
	}
	return state, nil
}

// SaveThread persists the thread state.
func (sm *StoreBasedStateManager) SaveThread(ctx context.Context, state *models.ThreadState) error {
	if err := sm.store.SaveThreadState(ctx, state); err != nil {
		slog.Error("StateManager.SaveThread: save failed", "error", err, "threadID", state.ThreadID)
		return fmt.Errorf("failed to save thread %s: %w", state.ThreadID, err)
	}
	slog.Debug("StateManager.SaveThread: saved", "threadID", state.ThreadID, "turnCount", state.ConversationState.TurnCount, "messages", len(state.Messages))
	return nil
}

// GetThread loads an existing thread state.
func (sm *StoreBasedStateManager) GetThread(ctx context.Context, threadID string) (*models.ThreadState, error) {
	if threadID == "" {
		return nil, models.ErrEmptyThreadID
	}
	return sm.store.GetThreadState(ctx, threadID)
}

// ResetThread removes a thread's persisted state.
func (sm *StoreBasedStateManager) ResetThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return models.ErrEmptyThreadID
	}
	slog.Debug("StateManager.ResetThread", "threadID", threadID)
	return sm.store.DeleteThreadState(ctx, threadID)
}
