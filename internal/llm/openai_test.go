package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAIProviderWithBaseURL("test-api-key", ts.URL)
}

func TestOpenAIGenerate(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "Thanks for reaching out to [PERSON_1]."},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 42, CompletionTokens: 9},
		})
	})

	resp, err := provider.Generate(context.Background(), &Request{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: "system", Content: "You draft replies."},
			{Role: "user", Content: "Write a reply to [PERSON_1]."},
		},
		Temperature: 0.7,
		MaxTokens:   512,
	})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for reaching out to [PERSON_1].", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 9, resp.OutputTokens)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API key", "type": "invalid_request_error"},
		})
	})

	_, err := provider.Generate(context.Background(), &Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api call")
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "chatcmpl-2", Model: "gpt-4o-mini"})
	})

	_, err := provider.Generate(context.Background(), &Request{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewFromName(t *testing.T) {
	p, err := NewFromName("openai", "key", "")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = NewFromName("ollama", "", "http://localhost:11434")
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	_, err = NewFromName("bedrock", "", "")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
