// Package llm abstracts the chat-completion providers used by the pipeline
// stages. All prompts sent through a Provider must already be anonymized;
// providers never see raw PII.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutCall bounds every provider call. Stage deadlines may be shorter;
// this is the hard ceiling.
const TimeoutCall = 60 * time.Second

var (
	// ErrUnknownProvider is returned by NewFromName for an unrecognized name.
	ErrUnknownProvider = errors.New("unknown llm provider")

	// ErrEmptyResponse is returned when a provider answered with no content.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier ("openai", "ollama").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message is a single chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response is a chat completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// NewFromName constructs the provider selected by configuration.
// apiKey is only used by the openai provider, baseURL only by ollama.
func NewFromName(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	case "ollama":
		return NewOllamaProvider(baseURL), nil
	default:
		return nil, ErrUnknownProvider
	}
}
