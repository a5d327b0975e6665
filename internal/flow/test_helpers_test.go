package flow

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/gutzcha/fitbit-bot/internal/genai"
)

// MockGenAIClient is a scripted genai.ClientInterface for tests. Each call
// kind pops from its own queue; an exhausted queue fails the call so a test
// that makes more calls than it scripted fails loudly.
type MockGenAIClient struct {
	MessageResponses    []string
	StructuredResponses []string
	ToolResponses       []*genai.ToolCallResponse

	MessageErr    error
	StructuredErr error
	ToolErr       error

	StructuredCalls [][]openai.ChatCompletionMessageParamUnion
	MessageCalls    [][]openai.ChatCompletionMessageParamUnion
	ToolCalls       [][]openai.ChatCompletionMessageParamUnion
	SchemaNames     []string
	LastTools       []openai.ChatCompletionToolParam
}

func (m *MockGenAIClient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string, opts ...genai.CallOption) (string, error) {
	return m.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}, opts...)
}

func (m *MockGenAIClient) GenerateWithMessages(_ context.Context, messages []openai.ChatCompletionMessageParamUnion, _ ...genai.CallOption) (string, error) {
	m.MessageCalls = append(m.MessageCalls, messages)
	if m.MessageErr != nil {
		return "", m.MessageErr
	}
	if len(m.MessageResponses) == 0 {
		return "", fmt.Errorf("mock: no message responses scripted")
	}
	resp := m.MessageResponses[0]
	m.MessageResponses = m.MessageResponses[1:]
	return resp, nil
}

func (m *MockGenAIClient) GenerateWithTools(_ context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, _ ...genai.CallOption) (*genai.ToolCallResponse, error) {
	m.ToolCalls = append(m.ToolCalls, messages)
	m.LastTools = tools
	if m.ToolErr != nil {
		return nil, m.ToolErr
	}
	if len(m.ToolResponses) == 0 {
		return nil, fmt.Errorf("mock: no tool responses scripted")
	}
	resp := m.ToolResponses[0]
	m.ToolResponses = m.ToolResponses[1:]
	return resp, nil
}

func (m *MockGenAIClient) GenerateStructured(_ context.Context, messages []openai.ChatCompletionMessageParamUnion, schemaName string, _ map[string]any, _ ...genai.CallOption) (string, error) {
	m.StructuredCalls = append(m.StructuredCalls, messages)
	m.SchemaNames = append(m.SchemaNames, schemaName)
	if m.StructuredErr != nil {
		return "", m.StructuredErr
	}
	if len(m.StructuredResponses) == 0 {
		return "", fmt.Errorf("mock: no structured responses scripted")
	}
	resp := m.StructuredResponses[0]
	m.StructuredResponses = m.StructuredResponses[1:]
	return resp, nil
}
