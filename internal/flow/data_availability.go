package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

// DataAvailabilityNode answers "what data do you have" questions from the
// static catalog plus the user's profile, without touching the metrics store.
type DataAvailabilityNode struct {
	client       genai.ClientInterface
	cfg          config.DataAvailabilityConfig
	systemPrompt string
}

func NewDataAvailabilityNode(client genai.ClientInterface, cfg config.DataAvailabilityConfig) *DataAvailabilityNode {
	return &DataAvailabilityNode{
		client:       client,
		cfg:          cfg,
		systemPrompt: dataAvailabilitySystemPrompt + "\n\n" + availabilityCatalog(),
	}
}

// Respond answers the availability question for the latest user message.
func (d *DataAvailabilityNode) Respond(ctx context.Context, messages []models.Message, profile *models.UserProfile) (string, error) {
	question := lastUserText(messages)
	if question == "" {
		return models.GenericInvitation, nil
	}

	prompt := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(d.systemPrompt),
		openai.SystemMessage("--- USER PROFILE CONTEXT ---\n" + profileContext(profile)),
		openai.UserMessage(question),
	}
	answer, err := d.client.GenerateWithMessages(ctx, prompt, llmCallOptions(d.cfg.LLM)...)
	if err != nil {
		return "", fmt.Errorf("data availability response failed: %w", err)
	}
	slog.Debug("DataAvailabilityNode.Respond: answered", "question", question)
	return answer, nil
}

func availabilityCatalog() string {
	names := make([]string, 0, len(models.AvailableMetrics))
	for name := range models.AvailableMetrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("AVAILABLE METRIC CATEGORIES:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, models.AvailableMetrics[name])
	}
	b.WriteString("\nKNOWLEDGE BASE TOPICS:\n")
	for _, topic := range models.KnowledgeTopics {
		fmt.Fprintf(&b, "- %s\n", topic)
	}
	return b.String()
}
