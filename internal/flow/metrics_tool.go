package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
	"github.com/gutzcha/fitbit-bot/internal/store"
)

// metricsAgentMaxIterations bounds the SQL sub-agent's tool loop.
const metricsAgentMaxIterations = 3

// MetricsTool answers natural-language questions about the user's metrics by
// running a small SQL sub-agent: the model writes SELECT queries, the tool
// executes them against the metrics store, and the model summarizes the rows.
type MetricsTool struct {
	client genai.ClientInterface
	store  store.MetricsStore
	llm    config.LLMConfig
	now    func() time.Time
}

func NewMetricsTool(client genai.ClientInterface, st store.MetricsStore, llm config.LLMConfig) *MetricsTool {
	return &MetricsTool{client: client, store: st, llm: llm, now: time.Now}
}

// MetricsResult is the sub-agent's answer plus the audit trail of what it
// actually queried.
type MetricsResult struct {
	Answer     string
	SQLQueries []string
	TableNames []string
}

// Query runs the sub-agent for one question scoped to one user.
func (t *MetricsTool) Query(ctx context.Context, userID int64, question string) (*MetricsResult, error) {
	system := fmt.Sprintf(metricsAgentSystemPrompt, models.MetricsSchemaContext, userID, t.now().Format("2006-01-02"))
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(question),
	}
	tools := []openai.ChatCompletionToolParam{executeSQLToolDefinition()}

	result := &MetricsResult{}
	seenTables := map[string]bool{}
	for iteration := 0; iteration < metricsAgentMaxIterations; iteration++ {
		resp, err := t.client.GenerateWithTools(ctx, messages, tools, llmCallOptions(t.llm)...)
		if err != nil {
			return nil, fmt.Errorf("metrics agent call failed: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			result.Answer = resp.Content
			return result, nil
		}

		var toolCalls []openai.ChatCompletionMessageToolCallParam
		for _, tc := range resp.ToolCalls {
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: string(tc.Function.Arguments),
				},
			})
		}
		assistantMessage := openai.ChatCompletionAssistantMessageParam{
			Content: openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(resp.Content),
			},
			ToolCalls: toolCalls,
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMessage})

		for _, tc := range resp.ToolCalls {
			messages = append(messages, openai.ToolMessage(t.executeToolCall(ctx, tc, result, seenTables), tc.ID))
		}
	}

	// The agent kept asking for more queries; summarize without tools.
	messages = append(messages, openai.SystemMessage("You have reached the query limit. Answer the question now using the results gathered so far."))
	answer, err := t.client.GenerateWithMessages(ctx, messages, llmCallOptions(t.llm)...)
	if err != nil {
		return nil, fmt.Errorf("metrics agent final summary failed: %w", err)
	}
	result.Answer = answer
	return result, nil
}

func (t *MetricsTool) executeToolCall(ctx context.Context, tc genai.ToolCall, result *MetricsResult, seenTables map[string]bool) string {
	if tc.Function.Name != "execute_sql" {
		return fmt.Sprintf("Unknown tool: %s", tc.Function.Name)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
		return fmt.Sprintf("Invalid tool arguments: %v", err)
	}

	slog.Debug("MetricsTool.Query: executing SQL", "query", args.Query)
	result.SQLQueries = append(result.SQLQueries, args.Query)
	for _, table := range tableNamesFromQuery(args.Query) {
		if !seenTables[table] {
			seenTables[table] = true
			result.TableNames = append(result.TableNames, table)
		}
	}

	rows, err := t.store.QueryMetrics(ctx, args.Query)
	if err != nil {
		slog.Warn("MetricsTool.Query: query failed", "error", err)
		return fmt.Sprintf("Query failed: %v", err)
	}
	if len(rows) == 0 {
		return "Query returned no rows."
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return fmt.Sprintf("Could not encode query results: %v", err)
	}
	return string(encoded)
}

// tableNamesFromQuery extracts the identifiers following FROM and JOIN
// keywords. This is an audit aid, not a SQL parser; subqueries in
// parentheses are skipped.
func tableNamesFromQuery(query string) []string {
	fields := strings.Fields(query)
	var tables []string
	for i, f := range fields {
		upper := strings.ToUpper(f)
		if upper != "FROM" && upper != "JOIN" {
			continue
		}
		if i+1 >= len(fields) {
			continue
		}
		name := strings.Trim(fields[i+1], "(),;")
		if name == "" || strings.HasPrefix(fields[i+1], "(") {
			continue
		}
		tables = append(tables, name)
	}
	return tables
}

func executeSQLToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        "execute_sql",
			Description: openai.String("Execute a single SELECT query against the health metrics database and return the rows as JSON."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The SELECT statement to run. Must filter by user_id.",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
