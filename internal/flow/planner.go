package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

// fallbackClarificationQuestion guarantees the forced repair always yields a
// question, even when the model fails to produce one.
const fallbackClarificationQuestion = "Could you tell me a bit more about what you'd like to know?"

// Planner produces a validated ProcessPlan for a turn. Invalid plans are
// repaired in a bounded loop; when the budget is exhausted the planner asks
// the model one last time for a clarification-only plan and forces
// needs_clarification true on whatever comes back.
type Planner struct {
	client genai.ClientInterface
	cfg    config.PlannerConfig
	now    func() time.Time
}

func NewPlanner(client genai.ClientInterface, cfg config.PlannerConfig) *Planner {
	return &Planner{client: client, cfg: cfg, now: time.Now}
}

// Plan generates and validates an execution plan. It returns the accepted
// plan and the number of model calls spent. At most MaxAttempts+1 calls are
// made; the returned plan always passes validation.
func (p *Planner) Plan(ctx context.Context, messages []models.Message, intent *models.IntentMetadata, convState *models.ConversationState, profile *models.UserProfile) (*models.ProcessPlan, int, error) {
	base := p.buildMessages(messages, intent, convState, profile)

	attempts := 0
	var violations []string
	for attempts < p.cfg.MaxAttempts {
		attempts++
		prompt := base
		if len(violations) > 0 {
			prompt = append(append([]openai.ChatCompletionMessageParamUnion{}, base...),
				openai.SystemMessage("Your previous plan was rejected:\n- "+strings.Join(violations, "\n- ")+"\nProduce a corrected plan."))
		}

		plan, err := p.generatePlan(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, attempts, ctx.Err()
			}
			violations = []string{fmt.Sprintf("structured output parse failure: %v", err)}
			slog.Warn("Planner.Plan: plan generation failed", "attempt", attempts, "error", err)
			continue
		}

		violations = validatePlan(plan)
		if len(violations) == 0 {
			slog.Debug("Planner.Plan: plan accepted", "attempt", attempts, "routeTags", plan.RouteTags())
			return plan, attempts, nil
		}
		slog.Warn("Planner.Plan: plan rejected", "attempt", attempts, "violations", violations)
	}

	// Budget exhausted: one final call asking for a clarification plan.
	attempts++
	prompt := append(append([]openai.ChatCompletionMessageParamUnion{}, base...),
		openai.SystemMessage("Previous plans were rejected:\n- "+strings.Join(violations, "\n- ")+
			"\nDo not attempt execution. Return a plan with needs_clarification set to true and a single clarification_question for the user."))

	plan, err := p.generatePlan(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		plan = &models.ProcessPlan{Confidence: models.DefaultPlanConfidence}
	}
	plan.NeedsClarification = true
	if strings.TrimSpace(plan.ClarificationQuestion) == "" {
		plan.ClarificationQuestion = fallbackClarificationQuestion
	}
	slog.Info("Planner.Plan: forced clarification plan after exhausted attempts", "attempts", attempts)
	return plan, attempts, nil
}

func (p *Planner) generatePlan(ctx context.Context, prompt []openai.ChatCompletionMessageParamUnion) (*models.ProcessPlan, error) {
	raw, err := p.client.GenerateStructured(ctx, prompt, "process_plan", planSchema(), llmCallOptions(p.cfg.LLM)...)
	if err != nil {
		return nil, err
	}
	var plan models.ProcessPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStructuredParse, err)
	}
	return &plan, nil
}

func (p *Planner) buildMessages(messages []models.Message, intent *models.IntentMetadata, convState *models.ConversationState, profile *models.UserProfile) []openai.ChatCompletionMessageParamUnion {
	out := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(plannerSystemPrompt),
		openai.SystemMessage("Current date: " + p.now().Format("2006-01-02")),
	}
	if frame := contextFrame("INTENT METADATA", intent); frame != "" {
		out = append(out, openai.SystemMessage(frame))
	}
	if frame := contextFrame("CONVERSATION STATE", conversationHints(convState)); frame != "" {
		out = append(out, openai.SystemMessage(frame))
	}
	out = append(out, openai.SystemMessage("--- USER PROFILE CONTEXT ---\n"+profileContext(profile)))
	out = append(out, toOpenAIMessages(messages)...)
	return out
}

// validatePlan returns the policy violations of a plan, or nil when the plan
// is acceptable.
func validatePlan(plan *models.ProcessPlan) []string {
	var violations []string
	if plan.NeedsClarification {
		if strings.TrimSpace(plan.ClarificationQuestion) == "" {
			violations = append(violations, "needs_clarification is true but clarification_question is empty")
		}
		return violations
	}
	if len(plan.SelectedSources) == 0 {
		violations = append(violations, "executable plan has no selected_sources")
	}
	if len(plan.Metrics) == 0 {
		violations = append(violations, "executable plan names no metrics")
	}
	if plan.HasSource(models.SourceUserMetrics) && !plan.TimeRange.IsComplete() {
		violations = append(violations, "plan selects USER_METRICS but time_range is missing or incomplete")
	}
	return violations
}

func planSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"needs_clarification", "clarification_question", "response_type", "selected_sources", "metrics", "time_range", "steps", "confidence"},
		"properties": map[string]any{
			"needs_clarification":    map[string]any{"type": "boolean"},
			"clarification_question": map[string]any{"type": "string"},
			"response_type":          map[string]any{"type": "string"},
			"selected_sources":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"metrics": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"name", "aggregation"},
					"properties": map[string]any{
						"name":        map[string]any{"type": "string"},
						"aggregation": map[string]any{"type": "string"},
					},
				},
			},
			"time_range": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"start_date", "end_date", "granularity"},
				"properties": map[string]any{
					"start_date":  map[string]any{"type": "string"},
					"end_date":    map[string]any{"type": "string"},
					"granularity": map[string]any{"type": "string"},
				},
			},
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"step_id", "action"},
					"properties": map[string]any{
						"step_id": map[string]any{"type": "string"},
						"action":  map[string]any{"type": "string"},
					},
				},
			},
			"confidence": map[string]any{"type": "number"},
		},
	}
}
