package flow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
	"github.com/gutzcha/fitbit-bot/internal/store"
)

func executionConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		LLM:             config.LLMConfig{Model: "gpt-4o"},
		MaxIterations:   5,
		MaxHistoryLimit: 20,
	}
}

func metricsPlan() *models.ProcessPlan {
	return &models.ProcessPlan{
		SelectedSources: []models.DataSource{models.SourceUserMetrics},
		Metrics:         []models.MetricSpec{{Name: "steps", Aggregation: models.AggregationSum}},
		TimeRange:       &models.TimeRange{StartDate: "2026-08-23", EndDate: "2026-08-29", Granularity: models.GranularityDay},
		Confidence:      0.9,
	}
}

func newExecutor(mock *MockGenAIClient, st *store.InMemoryStore) *Executor {
	metrics := NewMetricsTool(mock, st, config.LLMConfig{Model: "gpt-4o-mini"})
	knowledge := NewKnowledgeTool(st)
	return NewExecutor(mock, executionConfig(), metrics, knowledge)
}

func toolCallResponse(name, args, id string) *genai.ToolCallResponse {
	return &genai.ToolCallResponse{
		ToolCalls: []genai.ToolCall{{
			ID:       id,
			Function: genai.ToolCallFunction{Name: name, Arguments: json.RawMessage(args)},
		}},
	}
}

func TestExecuteAnswersWithMetricsGrounding(t *testing.T) {
	st := store.NewInMemoryStore()
	st.MetricRows = []map[string]any{{"total": 58200}}
	mock := &MockGenAIClient{
		ToolResponses: []*genai.ToolCallResponse{
			// Executor asks the metrics tool a question.
			toolCallResponse(toolQueryUserMetrics, `{"question":"total steps last week"}`, "call_1"),
			// Inside the metrics sub-agent: one SQL query, then an answer.
			toolCallResponse("execute_sql", `{"query":"SELECT SUM(total_steps) AS total FROM daily_activity WHERE user_id = 7"}`, "call_sql"),
			{Content: "The user took 58,200 steps last week."},
			// Executor finishes with a structured response.
			{Content: `{"answer":"You took 58,200 steps last week.","confidence":0.92,"needs_clarification":false}`},
		},
	}
	executor := newExecutor(mock, st)

	resp, grounding, err := executor.Execute(context.Background(), []models.Message{msg(models.RoleUser, "steps last week?")}, metricsPlan(), nil, nil, nil, 7)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(resp.Answer, "58,200") {
		t.Errorf("expected grounded numeric answer, got %q", resp.Answer)
	}
	if resp.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", resp.Confidence)
	}
	if len(grounding.SQLQueries) != 1 {
		t.Fatalf("expected 1 recorded SQL query, got %d", len(grounding.SQLQueries))
	}
	if len(grounding.TableNames) != 1 || grounding.TableNames[0] != "daily_activity" {
		t.Errorf("expected table daily_activity recorded, got %v", grounding.TableNames)
	}
}

func TestExecuteRawTextFallbackConfidence(t *testing.T) {
	mock := &MockGenAIClient{
		ToolResponses: []*genai.ToolCallResponse{
			{Content: "You walked a lot last week, nice work."},
		},
	}
	executor := newExecutor(mock, store.NewInMemoryStore())

	resp, _, err := executor.Execute(context.Background(), []models.Message{msg(models.RoleUser, "steps?")}, metricsPlan(), nil, nil, nil, 7)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Answer != "You walked a lot last week, nice work." {
		t.Errorf("expected raw text used as answer, got %q", resp.Answer)
	}
	if resp.Confidence != fallbackAnswerConfidence {
		t.Errorf("expected fallback confidence %v, got %v", fallbackAnswerConfidence, resp.Confidence)
	}
}

func TestExecuteExtractsJSONFromProse(t *testing.T) {
	mock := &MockGenAIClient{
		ToolResponses: []*genai.ToolCallResponse{
			{Content: "Here is the result:\n```json\n{\"answer\":\"8,400 steps yesterday.\",\"confidence\":0.88,\"needs_clarification\":false}\n```"},
		},
	}
	executor := newExecutor(mock, store.NewInMemoryStore())

	resp, _, err := executor.Execute(context.Background(), []models.Message{msg(models.RoleUser, "steps yesterday?")}, metricsPlan(), nil, nil, nil, 7)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Answer != "8,400 steps yesterday." {
		t.Errorf("expected extracted answer, got %q", resp.Answer)
	}
	if resp.Confidence != 0.88 {
		t.Errorf("expected confidence 0.88, got %v", resp.Confidence)
	}
}

func TestExecuteIterationBudgetYieldsClarification(t *testing.T) {
	// The model keeps calling tools until the budget runs out.
	var responses []*genai.ToolCallResponse
	for i := 0; i < 6; i++ {
		responses = append(responses, toolCallResponse(toolQueryUserMetrics, `{"question":"more data"}`, "call_x"))
		responses = append(responses, &genai.ToolCallResponse{Content: "partial data"})
	}
	mock := &MockGenAIClient{ToolResponses: responses}
	executor := newExecutor(mock, store.NewInMemoryStore())

	resp, _, err := executor.Execute(context.Background(), []models.Message{msg(models.RoleUser, "everything?")}, metricsPlan(), nil, nil, nil, 7)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !resp.NeedsClarification {
		t.Error("expected clarification when the loop never produced an answer")
	}
	if resp.Confidence != 0 {
		t.Errorf("expected zero confidence, got %v", resp.Confidence)
	}
}

func TestExecuteMetricsToolFailureDegradesGracefully(t *testing.T) {
	st := store.NewInMemoryStore()
	mock := &MockGenAIClient{
		ToolResponses: []*genai.ToolCallResponse{
			toolCallResponse(toolQueryUserMetrics, `not even json`, "call_1"),
			{Content: `{"answer":"I could not retrieve your data.","confidence":0.3,"needs_clarification":false}`},
		},
	}
	executor := newExecutor(mock, st)

	resp, _, err := executor.Execute(context.Background(), []models.Message{msg(models.RoleUser, "steps?")}, metricsPlan(), nil, nil, nil, 7)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Answer == "" {
		t.Error("expected an answer even after a tool failure")
	}
}

func TestToolDefinitionsFollowPlanSources(t *testing.T) {
	executor := newExecutor(&MockGenAIClient{}, store.NewInMemoryStore())

	plan := &models.ProcessPlan{SelectedSources: []models.DataSource{models.SourceKnowledgeBase}}
	tools := executor.toolDefinitions(plan)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool for knowledge-only plan, got %d", len(tools))
	}

	plan = &models.ProcessPlan{SelectedSources: []models.DataSource{models.SourceUserMetrics, models.SourceKnowledgeBase}}
	if got := len(executor.toolDefinitions(plan)); got != 2 {
		t.Errorf("expected 2 tools, got %d", got)
	}
}

func TestTableNamesFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"SELECT * FROM daily_activity WHERE user_id = 1", []string{"daily_activity"}},
		{"SELECT a.bpm FROM heartrate a JOIN daily_activity b ON a.user_id = b.user_id", []string{"heartrate", "daily_activity"}},
		{"SELECT 1", nil},
	}
	for _, tt := range tests {
		got := tableNamesFromQuery(tt.query)
		if len(got) != len(tt.want) {
			t.Errorf("query %q: expected %v, got %v", tt.query, tt.want, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("query %q: expected %v, got %v", tt.query, tt.want, got)
			}
		}
	}
}
