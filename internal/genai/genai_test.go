package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &m.resp, nil
}

func newTestClient(mock *mockChatService) *Client {
	return &Client{chat: mock, defaultModel: openai.ChatModelGPT4oMini, timeout: DefaultTimeout}
}

func TestGeneratePromptWithContext_Success(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
		},
	}
	client := newTestClient(&mockChatService{resp: mockResp})
	out, err := client.GeneratePromptWithContext(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
}

func TestGenerateWithMessages_ServiceError(t *testing.T) {
	client := newTestClient(&mockChatService{err: errors.New("service failure")})
	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateWithMessages_NoChoices(t *testing.T) {
	client := newTestClient(&mockChatService{resp: openai.ChatCompletion{}})
	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGenerateWithTools_ReturnsToolCalls(t *testing.T) {
	mockResp := openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Content: "checking",
				ToolCalls: []openai.ChatCompletionMessageToolCall{
					{ID: "call_1", Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      "query_user_metrics",
						Arguments: `{"question":"steps today"}`,
					}},
				},
			}},
		},
	}
	client := newTestClient(&mockChatService{resp: mockResp})
	resp, err := client.GenerateWithTools(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("steps?")}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_1" {
		t.Errorf("expected call ID 'call_1', got '%s'", resp.ToolCalls[0].ID)
	}
	if resp.ToolCalls[0].Function.Name != "query_user_metrics" {
		t.Errorf("expected function name 'query_user_metrics', got '%s'", resp.ToolCalls[0].Function.Name)
	}
	if !strings.Contains(string(resp.ToolCalls[0].Function.Arguments), "steps today") {
		t.Errorf("arguments not carried through: %s", resp.ToolCalls[0].Function.Arguments)
	}
}

func TestCallOptionsOverrideDefaults(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	client := newTestClient(mock)
	_, err := client.GenerateWithMessages(context.Background(),
		[]openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")},
		WithModel("gpt-4o"), WithTemperature(0.2), WithMaxTokens(128))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if mock.lastParams.Model != "gpt-4o" {
		t.Errorf("expected model override 'gpt-4o', got '%s'", mock.lastParams.Model)
	}
	if !mock.lastParams.Temperature.Valid() || mock.lastParams.Temperature.Value != 0.2 {
		t.Errorf("expected temperature 0.2, got %+v", mock.lastParams.Temperature)
	}
	if !mock.lastParams.MaxTokens.Valid() || mock.lastParams.MaxTokens.Value != 128 {
		t.Errorf("expected max tokens 128, got %+v", mock.lastParams.MaxTokens)
	}
}

func TestGenerateStructured_SetsResponseFormat(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: `{"intent":"GREETING"}`}}},
	}}
	client := newTestClient(mock)
	out, err := client.GenerateStructured(context.Background(),
		[]openai.ChatCompletionMessageParamUnion{openai.UserMessage("hello")},
		"intent_metadata", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != `{"intent":"GREETING"}` {
		t.Errorf("unexpected output: %s", out)
	}
	if mock.lastParams.ResponseFormat.OfJSONSchema == nil {
		t.Fatal("expected JSON schema response format to be set")
	}
	if mock.lastParams.ResponseFormat.OfJSONSchema.JSONSchema.Name != "intent_metadata" {
		t.Errorf("unexpected schema name: %s", mock.lastParams.ResponseFormat.OfJSONSchema.JSONSchema.Name)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}
