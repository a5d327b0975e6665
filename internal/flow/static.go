package flow

import (
	"context"
	"log/slog"

	"github.com/gutzcha/fitbit-bot/internal/models"
)

// StaticResponder answers greeting and out-of-scope turns with canned text.
// No model call is involved, so these turns are cheap and deterministic.
type StaticResponder struct{}

func NewStaticResponder() *StaticResponder {
	return &StaticResponder{}
}

// Respond returns the canned response for the given intent. Unknown intents
// fall back to the out-of-scope message rather than failing the turn.
func (s *StaticResponder) Respond(_ context.Context, intent models.IntentLabel) string {
	switch intent {
	case models.IntentGreeting:
		return models.GreetingResponse
	case models.IntentOutOfScope:
		return models.OutOfScopeResponse
	default:
		slog.Warn("StaticResponder.Respond: unexpected intent routed to static node", "intent", intent)
		return models.OutOfScopeResponse
	}
}
