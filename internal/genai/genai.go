// Package genai provides GenAI-enhanced operations using OpenAI API.

package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// DefaultTimeout bounds a single model invocation. A timeout is reported to
// the caller as a call failure.
const DefaultTimeout = 60 * time.Second

// ErrNoChoicesReturned indicates the completion API returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ToolCallFunction carries the function name and raw JSON arguments of a
// single tool call requested by the model.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallResponse is the model's reply to a tool-enabled request: assistant
// text (possibly empty) plus zero or more requested tool calls.
type ToolCallResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ClientInterface defines the operations flow components need from the
// GenAI layer. Implemented by Client and by test mocks.
type ClientInterface interface {
	// GeneratePromptWithContext generates a response from a system and user prompt pair.
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string, opts ...CallOption) (string, error)
	// GenerateWithMessages generates a response from a full message history.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts ...CallOption) (string, error)
	// GenerateWithTools generates a response that may request tool calls.
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, opts ...CallOption) (*ToolCallResponse, error)
	// GenerateStructured generates a response constrained to a JSON schema
	// and returns the raw JSON text of the model output.
	GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, schemaName string, schema map[string]any, opts ...CallOption) (string, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat         chatService
	defaultModel string
	timeout      time.Duration
}

// Option configures a Client at construction.
type Option func(*options)

type options struct {
	apiKey       string
	baseURL      string
	defaultModel string
	timeout      time.Duration
}

// WithAPIKey sets the OpenAI API key explicitly instead of reading
// OPENAI_API_KEY from the environment.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithDefaultModel sets the model used when a call does not name one.
func WithDefaultModel(model string) Option {
	return func(o *options) { o.defaultModel = model }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// NewClient initializes a new GenAI client. Without WithAPIKey, the
// OPENAI_API_KEY environment variable is required.
func NewClient(opts ...Option) (*Client, error) {
	o := options{
		defaultModel: openai.ChatModelGPT4oMini,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		o.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(o.apiKey)}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	cli := openai.NewClient(reqOpts...)
	return &Client{chat: &cli.Chat.Completions, defaultModel: o.defaultModel, timeout: o.timeout}, nil
}

// CallOption overrides model parameters for a single call.
type CallOption func(*callParams)

type callParams struct {
	model       string
	temperature *float64
	maxTokens   int
}

// WithModel selects the model for this call.
func WithModel(model string) CallOption {
	return func(p *callParams) { p.model = model }
}

// WithTemperature sets the sampling temperature for this call.
func WithTemperature(t float64) CallOption {
	return func(p *callParams) { p.temperature = &t }
}

// WithMaxTokens caps the completion length for this call.
func WithMaxTokens(n int) CallOption {
	return func(p *callParams) { p.maxTokens = n }
}

func (c *Client) buildParams(messages []openai.ChatCompletionMessageParamUnion, opts []CallOption) openai.ChatCompletionNewParams {
	p := callParams{model: c.defaultModel}
	for _, opt := range opts {
		opt(&p)
	}
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
	if p.temperature != nil {
		params.Temperature = param.NewOpt(*p.temperature)
	}
	if p.maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(p.maxTokens))
	}
	return params
}

// GeneratePromptWithContext generates a response based on the provided system and user prompts.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string, opts ...CallOption) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	return c.GenerateWithMessages(ctx, messages, opts...)
}

// GenerateWithMessages generates a response based on a full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, opts ...CallOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := c.buildParams(messages, opts)
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithTools generates a response that may request tool calls.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, opts ...CallOption) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := c.buildParams(messages, opts)
	params.Tools = tools
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion with tools failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}

	msg := resp.Choices[0].Message
	out := &ToolCallResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID: tc.ID,
			Function: ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	slog.Debug("Client.GenerateWithTools: completion received", "toolCalls", len(out.ToolCalls), "contentLength", len(out.Content))
	return out, nil
}

// GenerateStructured generates a response constrained to the given JSON
// schema and returns the raw JSON text.
func (c *Client) GenerateStructured(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, schemaName string, schema map[string]any, opts ...CallOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := c.buildParams(messages, opts)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   schemaName,
				Schema: schema,
				Strict: param.NewOpt(true),
			},
		},
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("structured completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}
