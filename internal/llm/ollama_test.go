package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "LEAD"},
		})
	}))
	t.Cleanup(ts.Close)

	provider := NewOllamaProvider(ts.URL)
	resp, err := provider.Generate(context.Background(), &Request{
		Model:    "llama3.2",
		Messages: []Message{{Role: "user", Content: "Classify this message."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "LEAD", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "llama3.2", resp.Model)
}

func TestOllamaGenerateServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)

	provider := NewOllamaProvider(ts.URL)
	_, err := provider.Generate(context.Background(), &Request{
		Model:    "missing",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOllamaDefaultBaseURL(t *testing.T) {
	provider := NewOllamaProvider("")
	assert.Equal(t, "http://localhost:11434", provider.baseURL)
}
