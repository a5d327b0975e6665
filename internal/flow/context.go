package flow

import (
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/models"
)

// toOpenAIMessages converts stored history into chat completion params.
func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// profileContext serializes a profile for prompt injection. Nodes inject
// this so the model never claims it lacks the user's goals or baselines.
func profileContext(profile *models.UserProfile) string {
	if profile == nil {
		return "No user profile available."
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return "No user profile available."
	}
	return string(data)
}

// contextFrame serializes a labeled context object into one framing message.
// Returns "" when there is nothing to serialize.
func contextFrame(label string, v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return ""
	}
	return fmt.Sprintf("--- %s ---\n%s", label, data)
}

// conversationHints extracts the planner-relevant subset of conversation state.
func conversationHints(cs *models.ConversationState) map[string]any {
	if cs == nil {
		return map[string]any{}
	}
	return map[string]any{
		"current_topic":     cs.CurrentTopic,
		"mentioned_metrics": cs.MetricsList(),
		"prior_intent":      cs.PriorIntent,
	}
}
