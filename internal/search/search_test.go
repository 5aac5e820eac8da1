package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "Cogninest company news", req.Query)
		assert.Equal(t, 3, req.MaxResults)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "About", "url": "https://example.com/a", "content": "Cogninest builds AI tooling."},
				{"title": "Funding", "url": "https://example.com/b", "content": "Raised a Series A in 2025."},
				{"title": "Empty", "url": "https://example.com/c", "content": ""},
			},
		})
	}))
	t.Cleanup(ts.Close)

	client := NewTavilyClient("test-key", WithBaseURL(ts.URL))
	snippet, err := client.Search(context.Background(), "Cogninest company news")
	require.NoError(t, err)
	assert.Equal(t, "Cogninest builds AI tooling.\nRaised a Series A in 2025.", snippet)
}

func TestTavilySearchNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	t.Cleanup(ts.Close)

	client := NewTavilyClient("test-key", WithBaseURL(ts.URL))
	snippet, err := client.Search(context.Background(), "obscure query")
	require.NoError(t, err)
	assert.Empty(t, snippet)
}

func TestTavilySearchServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(ts.Close)

	client := NewTavilyClient("test-key", WithBaseURL(ts.URL))
	_, err := client.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}
