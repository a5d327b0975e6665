package flow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

// Suggestor optionally appends a short coaching nudge to an assistant
// answer. It is best-effort: any failure or ambiguity means no suggestion,
// never a failed turn.
type Suggestor struct {
	client genai.ClientInterface
	cfg    config.SuggestorConfig
	memory TendenciesMemory
}

func NewSuggestor(client genai.ClientInterface, cfg config.SuggestorConfig) *Suggestor {
	return &Suggestor{client: client, cfg: cfg, memory: StaticTendenciesMemory{}}
}

// WithTendenciesMemory replaces the default placeholder memory backend.
func (s *Suggestor) WithTendenciesMemory(m TendenciesMemory) *Suggestor {
	s.memory = m
	return s
}

// Suggest returns the nudge to append to the turn's answer, or "" when the
// turn should go out unmodified. Gates are checked in order: clarification
// turns, missing context, non-assistant last message, and the user's
// suggestiveness preference all suppress the nudge.
func (s *Suggestor) Suggest(ctx context.Context, messages []models.Message, profile *models.UserProfile, needsClarification bool) string {
	if needsClarification {
		return ""
	}
	if profile == nil || len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1]
	if last.Role != models.RoleAssistant {
		return ""
	}
	if profile.CoachingPreferences.Suggestiveness < s.cfg.MinSuggestiveness {
		slog.Debug("Suggestor.Suggest: suppressed by suggestiveness preference",
			"suggestiveness", profile.CoachingPreferences.Suggestiveness)
		return ""
	}

	prompt := s.buildMessages(ctx, messages, profile, last.Content)
	raw, err := s.client.GenerateStructured(ctx, prompt, "suggestion", suggestionSchema(), llmCallOptions(s.cfg.LLM)...)
	if err != nil {
		slog.Warn("Suggestor.Suggest: generation failed, skipping suggestion", "error", err)
		return ""
	}

	resp := parseSuggestion(raw)
	if resp == nil || !resp.IncludeSuggestion || strings.TrimSpace(resp.Suggestion) == "" {
		return ""
	}
	slog.Debug("Suggestor.Suggest: suggestion produced", "reasoning", resp.Reasoning)
	return strings.TrimSpace(resp.Suggestion)
}

func (s *Suggestor) buildMessages(ctx context.Context, messages []models.Message, profile *models.UserProfile, answer string) []openai.ChatCompletionMessageParamUnion {
	coachingContext := map[string]any{
		"health_goals":     profile.HealthGoals,
		"activity_profile": profile.ActivityProfile,
		"baselines":        profile.Baselines,
		"tone":             profile.CoachingPreferences.Tone,
	}
	if s.memory != nil {
		if tendencies := s.memory.Tendencies(ctx, profile.UserID); len(tendencies) > 0 {
			coachingContext["known_tendencies"] = tendencies
		}
	}
	out := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(suggestorSystemPrompt),
	}
	if frame := contextFrame("COACHING CONTEXT", coachingContext); frame != "" {
		out = append(out, openai.SystemMessage(frame))
	}
	if question := lastUserText(messages); question != "" {
		out = append(out, openai.UserMessage("The user asked: "+question))
	}
	out = append(out, openai.UserMessage("The assistant answered:\n"+answer))
	return out
}

// parseSuggestion tolerates the response shapes models actually produce:
// the requested object, the object with the fields nested under
// "structured_response", or JSON buried in a code fence. Plain text that is
// not JSON at all is taken as the suggestion itself.
func parseSuggestion(raw string) *models.SuggestionResponse {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var resp models.SuggestionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err == nil && resp.Suggestion != "" {
		return &resp
	}

	var nested struct {
		Structured *models.SuggestionResponse `json:"structured_response"`
	}
	if err := json.Unmarshal([]byte(raw), &nested); err == nil && nested.Structured != nil && nested.Structured.Suggestion != "" {
		return nested.Structured
	}

	if extracted, ok := genai.ExtractJSON(raw); ok {
		resp = models.SuggestionResponse{}
		if err := json.Unmarshal([]byte(extracted), &resp); err == nil && resp.Suggestion != "" {
			return &resp
		}
		// Malformed JSON is not worth surfacing to the user.
		return nil
	}
	return &models.SuggestionResponse{Suggestion: raw, IncludeSuggestion: true}
}

func suggestionSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"suggestion", "include_suggestion", "reasoning"},
		"properties": map[string]any{
			"suggestion":         map[string]any{"type": "string"},
			"include_suggestion": map[string]any{"type": "boolean"},
			"reasoning":          map[string]any{"type": "string"},
		},
	}
}
