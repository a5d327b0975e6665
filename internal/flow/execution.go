package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/gutzcha/fitbit-bot/internal/config"
	"github.com/gutzcha/fitbit-bot/internal/genai"
	"github.com/gutzcha/fitbit-bot/internal/models"
)

// fallbackAnswerConfidence is assigned when the executor's final message is
// usable text but not the structured response format.
const fallbackAnswerConfidence = 0.5

const (
	toolQueryUserMetrics   = "query_user_metrics"
	toolSearchKnowledge    = "search_knowledge_base"
	toolErrMetricsFailed   = "I apologize, I was unable to retrieve the requested metrics. Tell the user the data could not be fetched."
	toolErrKnowledgeFailed = "I apologize, the knowledge base is currently unavailable. Answer from general context and say so."
)

// Executor carries out an accepted plan through a bounded tool-calling loop
// and produces the turn's final answer plus grounding metadata.
type Executor struct {
	client    genai.ClientInterface
	cfg       config.ExecutionConfig
	metrics   *MetricsTool
	knowledge *KnowledgeTool
}

func NewExecutor(client genai.ClientInterface, cfg config.ExecutionConfig, metrics *MetricsTool, knowledge *KnowledgeTool) *Executor {
	return &Executor{client: client, cfg: cfg, metrics: metrics, knowledge: knowledge}
}

// Execute runs the plan. It always returns a usable response; degraded model
// output downgrades confidence rather than failing the turn.
func (e *Executor) Execute(ctx context.Context, messages []models.Message, plan *models.ProcessPlan, meta *models.IntentMetadata, convState *models.ConversationState, profile *models.UserProfile, userID int64) (*models.ExecutionResponse, *models.GroundingMetadata, error) {
	trimmed := TrimHistory(messages, e.cfg.MaxHistoryLimit)

	prompt := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(executionSystemPrompt),
	}
	if frame := contextFrame("EXECUTION PLAN", plan); frame != "" {
		prompt = append(prompt, openai.SystemMessage(frame))
	}
	if frame := contextFrame("INTENT METADATA", meta); frame != "" {
		prompt = append(prompt, openai.SystemMessage(frame))
	}
	if convState != nil {
		if frame := contextFrame("CONVERSATION STATE", conversationHints(convState)); frame != "" {
			prompt = append(prompt, openai.SystemMessage(frame))
		}
	}
	prompt = append(prompt, openai.SystemMessage("--- USER PROFILE CONTEXT ---\n"+profileContext(profile)))
	prompt = append(prompt, toOpenAIMessages(trimmed)...)

	grounding := &models.GroundingMetadata{}
	tools := e.toolDefinitions(plan)

	var content string
	for iteration := 0; iteration < e.cfg.MaxIterations; iteration++ {
		resp, err := e.client.GenerateWithTools(ctx, prompt, tools, llmCallOptions(e.cfg.LLM)...)
		if err != nil {
			return nil, nil, fmt.Errorf("execution call failed: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			content = resp.Content
			break
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
		prompt = append(prompt, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMessage})

		for _, tc := range resp.ToolCalls {
			result := e.executeToolCall(ctx, tc, userID, grounding)
			prompt = append(prompt, openai.ToolMessage(result, tc.ID))
		}
	}

	response := parseExecutionResponse(content)
	grounding.Confidence = response.Confidence
	grounding.ClarificationQuestion = response.ClarificationQuestion
	slog.Debug("Executor.Execute: done",
		"confidence", response.Confidence,
		"needsClarification", response.NeedsClarification,
		"sqlQueries", len(grounding.SQLQueries))
	return response, grounding, nil
}

func (e *Executor) executeToolCall(ctx context.Context, tc genai.ToolCall, userID int64, grounding *models.GroundingMetadata) string {
	slog.Info("Executor.Execute: executing tool call", "toolName", tc.Function.Name, "toolCallID", tc.ID)
	switch tc.Function.Name {
	case toolQueryUserMetrics:
		var args struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
			return fmt.Sprintf("Invalid tool arguments: %v", err)
		}
		result, err := e.metrics.Query(ctx, userID, args.Question)
		if err != nil {
			slog.Warn("Executor.Execute: metrics tool failed", "error", err)
			return toolErrMetricsFailed
		}
		grounding.SQLQueries = append(grounding.SQLQueries, result.SQLQueries...)
		grounding.TableNames = append(grounding.TableNames, result.TableNames...)
		return result.Answer
	case toolSearchKnowledge:
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(tc.Function.Arguments, &args); err != nil {
			return fmt.Sprintf("Invalid tool arguments: %v", err)
		}
		result, err := e.knowledge.Search(ctx, args.Query)
		if err != nil {
			slog.Warn("Executor.Execute: knowledge tool failed", "error", err)
			return toolErrKnowledgeFailed
		}
		return result
	default:
		return fmt.Sprintf("Unknown tool: %s", tc.Function.Name)
	}
}

// parseExecutionResponse decodes the executor's final message. Structured
// JSON is preferred; JSON buried in prose is extracted; bare text becomes
// the answer at reduced confidence; an empty message becomes a
// clarification request at zero confidence.
func parseExecutionResponse(content string) *models.ExecutionResponse {
	trimmed := strings.TrimSpace(content)

	var resp models.ExecutionResponse
	if trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &resp); err == nil && resp.Answer != "" {
			return &resp
		}
		if extracted, ok := genai.ExtractJSON(trimmed); ok {
			resp = models.ExecutionResponse{}
			if err := json.Unmarshal([]byte(extracted), &resp); err == nil && resp.Answer != "" {
				return &resp
			}
		}
		return &models.ExecutionResponse{Answer: trimmed, Confidence: fallbackAnswerConfidence}
	}

	return &models.ExecutionResponse{
		Answer:                models.ErrorResponse,
		Confidence:            0,
		NeedsClarification:    true,
		ClarificationQuestion: fallbackClarificationQuestion,
	}
}

// toolDefinitions exposes only the tools the plan's sources call for. The
// metrics tool is always available when USER_METRICS is selected, the
// knowledge tool when KNOWLEDGE_BASE is.
func (e *Executor) toolDefinitions(plan *models.ProcessPlan) []openai.ChatCompletionToolParam {
	var tools []openai.ChatCompletionToolParam
	if plan.HasSource(models.SourceUserMetrics) {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolQueryUserMetrics,
				Description: openai.String("Query the user's own health metrics (steps, heart rate, calories, weight) with a natural-language question. Returns a data summary."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"question": map[string]interface{}{
							"type":        "string",
							"description": "The data question to answer, including the time range.",
						},
					},
					"required": []string{"question"},
				},
			},
		})
	}
	if plan.HasSource(models.SourceKnowledgeBase) {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        toolSearchKnowledge,
				Description: openai.String("Search the curated health knowledge base for general scientific context such as normal ranges and recommendations."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "The topic or question to look up.",
						},
					},
					"required": []string{"query"},
				},
			},
		})
	}
	return tools
}
