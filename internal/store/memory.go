// Package store provides storage backends for fitbit-bot.
//
// This file implements an in-memory store used by tests and by the server
// when no DSN is configured.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gutzcha/fitbit-bot/internal/models"
)

// InMemoryStore keeps all data in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*models.ThreadState
	profiles map[int64]*models.UserProfile

	// MetricRows are returned for any metrics query. Tests preload them.
	MetricRows []map[string]any
	// MetricsErr, when set, is returned from QueryMetrics.
	MetricsErr error
	// KnowledgeEntries are searched by SearchKnowledge via substring match.
	KnowledgeEntries []KnowledgeEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads:  make(map[string]*models.ThreadState),
		profiles: make(map[int64]*models.UserProfile),
	}
}

func (s *InMemoryStore) GetThreadState(ctx context.Context, threadID string) (*models.ThreadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ts
	cp.ConversationState = ts.ConversationState.Clone()
	cp.Messages = append([]models.Message(nil), ts.Messages...)
	return &cp, nil
}

func (s *InMemoryStore) SaveThreadState(ctx context.Context, state *models.ThreadState) error {
	if state.ThreadID == "" {
		return models.ErrEmptyThreadID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	cp.ConversationState = state.ConversationState.Clone()
	cp.Messages = append([]models.Message(nil), state.Messages...)
	if existing, ok := s.threads[state.ThreadID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.threads[state.ThreadID] = &cp
	return nil
}

func (s *InMemoryStore) DeleteThreadState(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *InMemoryStore) GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) SaveUserProfile(ctx context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *profile
	s.profiles[profile.UserID] = &cp
	return nil
}

func (s *InMemoryStore) QueryMetrics(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ensureSelectOnly(query); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.MetricsErr != nil {
		return nil, s.MetricsErr
	}
	return append([]map[string]any(nil), s.MetricRows...), nil
}

func (s *InMemoryStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error) {
	if limit <= 0 {
		limit = DefaultKnowledgeLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(query)
	var out []KnowledgeEntry
	for _, e := range s.KnowledgeEntries {
		if strings.Contains(strings.ToLower(e.Content), needle) || strings.Contains(strings.ToLower(e.Topic), needle) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
