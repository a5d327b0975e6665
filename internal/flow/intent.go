package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

// IntentClassifier classifies each user turn with a fast model, escalating
// once to a slow model when the fast result is not confident enough.
type IntentClassifier struct {
	client       genai.ClientInterface
	cfg          config.IntentConfig
	systemPrompt string
}

// NewIntentClassifier creates an intent classifier. The catalog of intent
// definitions is baked into the system prompt once at construction.
func NewIntentClassifier(client genai.ClientInterface, cfg config.IntentConfig) *IntentClassifier {
	var defs strings.Builder
	for _, intent := range models.IntentOrder {
		fmt.Fprintf(&defs, "- %s: %s\n", intent, models.IntentDefinitions[intent])
	}
	return &IntentClassifier{
		client:       client,
		cfg:          cfg,
		systemPrompt: intentSystemPrompt + "\n\nINTENT LABELS:\n" + defs.String(),
	}
}

// intentWire decodes classifier output, normalizing confidence tokens the
// same way plan confidences are normalized.
type intentWire struct {
	Intent             models.IntentLabel    `json:"intent"`
	Confidence         models.PlanConfidence `json:"confidence"`
	SuggestedSources   []models.DataSource   `json:"suggested_sources"`
	ResponseType       models.ResponseType   `json:"response_type"`
	MentionedMetrics   []string              `json:"mentioned_metrics"`
	CurrentTopic       string                `json:"current_topic"`
	IsFollowup         bool                  `json:"is_followup"`
	NeedsClarification bool                  `json:"needs_clarification"`
}

func (w *intentWire) toMetadata() *models.IntentMetadata {
	m := &models.IntentMetadata{
		Intent:             w.Intent,
		Confidence:         float64(w.Confidence),
		SuggestedSources:   w.SuggestedSources,
		ResponseType:       w.ResponseType,
		MentionedMetrics:   w.MentionedMetrics,
		CurrentTopic:       w.CurrentTopic,
		IsFollowup:         w.IsFollowup,
		NeedsClarification: w.NeedsClarification,
	}
	m.Normalize()
	return m
}

// Classify runs the fast classifier, escalates when warranted, and returns
// the normalized intent metadata plus the updated conversation state. A
// parse failure fails the turn; there is no silent default.
func (c *IntentClassifier) Classify(ctx context.Context, messages []models.Message, convState *models.ConversationState, profile *models.UserProfile) (*models.IntentMetadata, *models.ConversationState, error) {
	if len(messages) == 0 {
		return nil, nil, models.ErrEmptyUserMessage
	}

	trimmed := TrimHistory(messages, c.cfg.MaxHistoryLimit)
	prompt := c.buildMessages(trimmed, convState, profile)

	fast, err := c.classifyOnce(ctx, prompt, c.cfg.LLMFast)
	if err != nil {
		return nil, nil, fmt.Errorf("fast intent classification failed: %w", err)
	}

	result := fast
	if c.shouldEscalate(fast) {
		slog.Debug("IntentClassifier.Classify: escalating to slow model", "fastIntent", fast.Intent, "fastConfidence", fast.Confidence)
		slow, err := c.classifyOnce(ctx, prompt, *c.cfg.LLMSlow)
		if err != nil {
			return nil, nil, fmt.Errorf("slow intent classification failed: %w", err)
		}
		// Adopt the slow result only when it is at least as confident.
		if slow.Confidence >= fast.Confidence {
			result = slow
		}
	}

	updated := c.updateConversationState(convState, result, lastUserText(messages))
	slog.Debug("IntentClassifier.Classify: classified", "intent", result.Intent, "confidence", result.Confidence, "needsClarification", result.NeedsClarification)
	return result, updated, nil
}

func (c *IntentClassifier) shouldEscalate(fast *models.IntentMetadata) bool {
	if c.cfg.LLMSlow == nil {
		return false
	}
	if fast.Confidence >= c.cfg.ConfidenceThreshold {
		return false
	}
	// Obvious greetings and exits never warrant the slow model.
	return fast.Intent != models.IntentGreeting && fast.Intent != models.IntentOutOfScope
}

func (c *IntentClassifier) classifyOnce(ctx context.Context, prompt []openai.ChatCompletionMessageParamUnion, llm config.LLMConfig) (*models.IntentMetadata, error) {
	raw, err := c.client.GenerateStructured(ctx, prompt, "intent_metadata", intentSchema(), llmCallOptions(llm)...)
	if err != nil {
		return nil, err
	}
	var wire intentWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNoIntentMetadata, err)
	}
	if !models.IsValidIntentLabel(wire.Intent) {
		return nil, fmt.Errorf("%w: unknown intent %q", models.ErrNoIntentMetadata, wire.Intent)
	}
	return wire.toMetadata(), nil
}

func (c *IntentClassifier) buildMessages(trimmed []models.Message, convState *models.ConversationState, profile *models.UserProfile) []openai.ChatCompletionMessageParamUnion {
	out := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(c.systemPrompt)}
	if frame := contextFrame("CONVERSATION STATE", convState); frame != "" {
		out = append(out, openai.SystemMessage(frame))
	}
	out = append(out, openai.SystemMessage("--- USER PROFILE CONTEXT ---\n"+profileContext(profile)))
	out = append(out, toOpenAIMessages(trimmed)...)
	return out
}

// updateConversationState applies the per-turn state delta: turn count,
// prior intent, raw user text, topic replacement, metrics union.
func (c *IntentClassifier) updateConversationState(convState *models.ConversationState, meta *models.IntentMetadata, userText string) *models.ConversationState {
	updated := convState.Clone()
	updated.TurnCount++
	updated.PriorIntent = meta.Intent
	updated.UserExplicitlyAsked = userText
	if meta.CurrentTopic != "" && meta.CurrentTopic != "general" {
		updated.CurrentTopic = meta.CurrentTopic
	}
	for _, m := range meta.MentionedMetrics {
		updated.MentionedMetrics[m] = true
	}
	return updated
}

func intentSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"intent", "confidence", "suggested_sources", "response_type", "mentioned_metrics", "current_topic", "is_followup", "needs_clarification"},
		"properties": map[string]any{
			"intent":              map[string]any{"type": "string"},
			"confidence":          map[string]any{"type": "number"},
			"suggested_sources":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"response_type":       map[string]any{"type": "string"},
			"mentioned_metrics":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"current_topic":       map[string]any{"type": "string"},
			"is_followup":         map[string]any{"type": "boolean"},
			"needs_clarification": map[string]any{"type": "boolean"},
		},
	}
}

// llmCallOptions converts a node's LLM config block into call options.
func llmCallOptions(llm config.LLMConfig) []genai.CallOption {
	opts := []genai.CallOption{genai.WithModel(llm.Model), genai.WithTemperature(llm.Temperature)}
	if llm.MaxTokens > 0 {
		opts = append(opts, genai.WithMaxTokens(llm.MaxTokens))
	}
	return opts
}
