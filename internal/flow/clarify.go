package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

// Clarifier produces the clarification question for a turn. Questions already
// authored upstream (by the planner or the executor) are reused verbatim; a
// model call happens only when no question exists yet.
type Clarifier struct {
	client genai.ClientInterface
	cfg    config.ClarificationConfig
}

func NewClarifier(client genai.ClientInterface, cfg config.ClarificationConfig) *Clarifier {
	return &Clarifier{client: client, cfg: cfg}
}

// Question resolves the clarification question in priority order: the plan's
// question, then the grounding question, then a generated one. With no user
// history to clarify against it returns the generic invitation.
func (c *Clarifier) Question(ctx context.Context, messages []models.Message, meta *models.IntentMetadata, convState *models.ConversationState, profile *models.UserProfile, plan *models.ProcessPlan, grounding *models.GroundingMetadata) (string, error) {
	if plan != nil && strings.TrimSpace(plan.ClarificationQuestion) != "" {
		return plan.ClarificationQuestion, nil
	}
	if grounding != nil && strings.TrimSpace(grounding.ClarificationQuestion) != "" {
		return grounding.ClarificationQuestion, nil
	}

	userText := lastUserText(messages)
	if userText == "" {
		return models.GenericInvitation, nil
	}

	prompt := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(clarificationSystemPrompt),
	}
	if frame := contextFrame("INTENT METADATA", meta); frame != "" {
		prompt = append(prompt, openai.SystemMessage(frame))
	}
	if convState != nil {
		if frame := contextFrame("CONVERSATION STATE", conversationHints(convState)); frame != "" {
			prompt = append(prompt, openai.SystemMessage(frame))
		}
	}
	prompt = append(prompt,
		openai.SystemMessage("--- USER PROFILE CONTEXT ---\n"+profileContext(profile)),
		openai.UserMessage(userText),
	)

	question, err := c.client.GenerateWithMessages(ctx, prompt, llmCallOptions(c.cfg.LLM)...)
	if err != nil {
		return "", fmt.Errorf("clarification generation failed: %w", err)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		question = models.GenericInvitation
	}
	slog.Debug("Clarifier.Question: generated question", "question", question)
	return question, nil
}
