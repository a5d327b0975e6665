package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gutzcha/fitbit-bot/internal/store"
)

// NoKnowledgeFound is returned when a knowledge search matches nothing, so
// the execution agent reports missing evidence instead of hallucinating.
const NoKnowledgeFound = "No relevant scientific data found in the knowledge base."

// KnowledgeTool retrieves curated health knowledge for general questions.
type KnowledgeTool struct {
	store store.KnowledgeStore
	limit int
}

func NewKnowledgeTool(st store.KnowledgeStore) *KnowledgeTool {
	return &KnowledgeTool{store: st, limit: store.DefaultKnowledgeLimit}
}

// Search returns matching knowledge entries formatted for the model, or
// NoKnowledgeFound when nothing matches.
func (t *KnowledgeTool) Search(ctx context.Context, query string) (string, error) {
	entries, err := t.store.SearchKnowledge(ctx, query, t.limit)
	if err != nil {
		return "", fmt.Errorf("knowledge search failed: %w", err)
	}
	if len(entries) == 0 {
		slog.Debug("KnowledgeTool.Search: no results", "query", query)
		return NoKnowledgeFound, nil
	}

	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", entry.Topic, entry.Content)
		if entry.Source != "" {
			fmt.Fprintf(&b, "\n(Source: %s)", entry.Source)
		}
	}
	slog.Debug("KnowledgeTool.Search: results found", "query", query, "count", len(entries))
	return b.String(), nil
}
