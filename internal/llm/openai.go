package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/llm")

// OpenAIProvider implements Provider for the OpenAI chat API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider pointed at a custom
// host, used in tests with an httptest server. baseURL is scheme+host without
// a path; the client appends /v1.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(beaverotel.LLMRequestAttributes("openai", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("openai api call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrEmptyResponse)
	}

	span.SetAttributes(beaverotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	span.SetAttributes(beaverotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)))

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}, nil
}
