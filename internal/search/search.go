// Package search provides the web research capability used when enriching
// leads. Queries are built from redacted text only.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/search")

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 3
	requestTimeout    = 15 * time.Second
)

// Client answers research queries with a text snippet.
type Client interface {
	Search(ctx context.Context, query string) (string, error)
}

// TavilyClient implements Client against the Tavily search API.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// Option configures a TavilyClient.
type Option func(*TavilyClient)

// WithBaseURL points the client at a different host, used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *TavilyClient) { c.baseURL = baseURL }
}

// WithMaxResults overrides how many results are folded into the snippet.
func WithMaxResults(n int) Option {
	return func(c *TavilyClient) { c.maxResults = n }
}

// NewTavilyClient creates a search client.
func NewTavilyClient(apiKey string, opts ...Option) *TavilyClient {
	c := &TavilyClient{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs the query and joins the top result contents into one snippet.
// An empty snippet with nil error means the query simply found nothing.
func (c *TavilyClient) Search(ctx context.Context, query string) (string, error) {
	ctx, span := tracer.Start(ctx, "search.query")
	defer span.End()

	body, err := json.Marshal(tavilyRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("search api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search api call: status %d", resp.StatusCode)
	}

	var apiResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decoding search response: %w", err)
	}

	parts := make([]string, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		if r.Content == "" {
			continue
		}
		parts = append(parts, r.Content)
	}
	span.SetAttributes(attribute.Int("search.results", len(parts)))
	return strings.Join(parts, "\n"), nil
}
