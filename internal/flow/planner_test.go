package flow

import (
	"context"
	"testing"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

const validMetricsPlan = `{
	"needs_clarification": false,
	"clarification_question": "",
	"response_type": "DATA_LOOKUP",
	"selected_sources": ["USER_METRICS"],
	"metrics": [{"name": "steps", "aggregation": "sum"}],
	"time_range": {"start_date": "2026-08-23", "end_date": "2026-08-29", "granularity": "day"},
	"steps": [{"step_id": "s1", "action": "query weekly steps"}],
	"confidence": 0.9
}`

const planMissingTimeRange = `{
	"needs_clarification": false,
	"clarification_question": "",
	"response_type": "DATA_LOOKUP",
	"selected_sources": ["USER_METRICS"],
	"metrics": [{"name": "steps", "aggregation": "sum"}],
	"time_range": {"start_date": "", "end_date": "", "granularity": ""},
	"steps": [],
	"confidence": 0.8
}`

func plannerConfig(attempts int) config.PlannerConfig {
	return config.PlannerConfig{LLM: config.LLMConfig{Model: "gpt-4o"}, MaxAttempts: attempts}
}

func plannerIntent() *models.IntentMetadata {
	return &models.IntentMetadata{Intent: models.IntentMetricRetrieval, Confidence: 0.95}
}

func TestPlanAcceptsValidPlanFirstAttempt(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{validMetricsPlan}}
	planner := NewPlanner(mock, plannerConfig(2))

	plan, attempts, err := planner.Plan(context.Background(), []models.Message{msg(models.RoleUser, "steps last week?")}, plannerIntent(), nil, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if plan.NeedsClarification {
		t.Error("expected executable plan")
	}
	if !plan.HasSource(models.SourceUserMetrics) {
		t.Error("expected USER_METRICS source")
	}
	if float64(plan.Confidence) != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", plan.Confidence)
	}
}

func TestPlanRepairsInvalidPlan(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{planMissingTimeRange, validMetricsPlan}}
	planner := NewPlanner(mock, plannerConfig(2))

	plan, attempts, err := planner.Plan(context.Background(), []models.Message{msg(models.RoleUser, "how were my steps?")}, plannerIntent(), nil, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if !plan.TimeRange.IsComplete() {
		t.Error("expected repaired plan with complete time range")
	}
}

func TestPlanForcesClarificationAfterExhaustedAttempts(t *testing.T) {
	// Two invalid attempts, then a final clarification plan without a question.
	mock := &MockGenAIClient{StructuredResponses: []string{
		planMissingTimeRange,
		planMissingTimeRange,
		`{"needs_clarification": true, "clarification_question": "", "response_type": "DATA_LOOKUP", "selected_sources": [], "metrics": [], "time_range": {"start_date": "", "end_date": "", "granularity": ""}, "steps": [], "confidence": 0.6}`,
	}}
	planner := NewPlanner(mock, plannerConfig(2))

	plan, attempts, err := planner.Plan(context.Background(), []models.Message{msg(models.RoleUser, "how did I do?")}, plannerIntent(), nil, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected MaxAttempts+1 calls, got %d", attempts)
	}
	if !plan.NeedsClarification {
		t.Error("expected forced clarification plan")
	}
	if plan.ClarificationQuestion == "" {
		t.Error("expected a non-empty clarification question even when the model omitted one")
	}
}

func TestPlanParseFailureCountsAsViolation(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{"garbage", validMetricsPlan}}
	planner := NewPlanner(mock, plannerConfig(2))

	_, attempts, err := planner.Plan(context.Background(), []models.Message{msg(models.RoleUser, "steps?")}, plannerIntent(), nil, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected parse failure to consume one attempt, got %d", attempts)
	}
}

func TestPlanTotalFailureStillTerminatesWithQuestion(t *testing.T) {
	mock := &MockGenAIClient{StructuredResponses: []string{"garbage", "garbage", "garbage"}}
	planner := NewPlanner(mock, plannerConfig(2))

	plan, _, err := planner.Plan(context.Background(), []models.Message{msg(models.RoleUser, "hm")}, plannerIntent(), nil, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !plan.NeedsClarification || plan.ClarificationQuestion == "" {
		t.Errorf("expected synthesized clarification plan, got %+v", plan)
	}
}

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name       string
		plan       models.ProcessPlan
		violations int
	}{
		{
			name: "clarification plan with question",
			plan: models.ProcessPlan{NeedsClarification: true, ClarificationQuestion: "Which metric?"},
		},
		{
			name:       "clarification plan without question",
			plan:       models.ProcessPlan{NeedsClarification: true},
			violations: 1,
		},
		{
			name:       "executable plan without sources",
			plan:       models.ProcessPlan{},
			violations: 2,
		},
		{
			name: "metrics plan without metrics or time range",
			plan: models.ProcessPlan{
				SelectedSources: []models.DataSource{models.SourceUserMetrics},
			},
			violations: 2,
		},
		{
			name: "knowledge-only plan without metrics",
			plan: models.ProcessPlan{
				SelectedSources: []models.DataSource{models.SourceKnowledgeBase},
			},
			violations: 1,
		},
		{
			name: "knowledge-only plan with metrics",
			plan: models.ProcessPlan{
				SelectedSources: []models.DataSource{models.SourceKnowledgeBase},
				Metrics:         []models.MetricSpec{{Name: "sleep_duration", Aggregation: models.AggregationAvg}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validatePlan(&tt.plan)
			if len(got) != tt.violations {
				t.Errorf("expected %d violations, got %d: %v", tt.violations, len(got), got)
			}
		})
	}
}
