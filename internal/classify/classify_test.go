package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshalzarikar/Beaver-agent/internal/llm"
)

func TestCheapClassify(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		wantCategory   Category
		wantConfidence float64
	}{
		{
			name:           "block keyword is immediate spam",
			text:           "CONGRATS!! Click here to claim your free iphone",
			wantCategory:   CategorySpam,
			wantConfidence: 0.95,
		},
		{
			name:           "strong lead signal",
			text:           "We are interested in pricing for a bulk order of your units.",
			wantCategory:   CategoryLead,
			wantConfidence: 0.92,
		},
		{
			name:           "single complaint keyword scores low",
			text:           "My unit arrived broken on Tuesday.",
			wantCategory:   CategoryComplaint,
			wantConfidence: 0.64,
		},
		{
			name:           "no vocabulary match",
			text:           "See you at the conference next week.",
			wantCategory:   CategoryUnknown,
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCheapClassifier(0)
			require.NoError(t, err)

			result, err := c.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, result.Category)
			assert.InDelta(t, tt.wantConfidence, result.Confidence, 0.001)
		})
	}
}

func TestCheapClassifyCache(t *testing.T) {
	c, err := NewCheapClassifier(8)
	require.NoError(t, err)

	text := "Please send a quote for the demo."
	first, err := c.Classify(context.Background(), text)
	require.NoError(t, err)

	cached, ok := c.cache.Get(contentHash(text))
	require.True(t, ok)
	assert.Equal(t, first, cached)

	second, err := c.Classify(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheapClassifyLongTextMaxPooling(t *testing.T) {
	// Signal buried past the first chunk must still be found.
	filler := strings.Repeat("bland unrelated words about nothing in particular ", 200)
	text := filler + " we are interested in pricing and a bulk order quote"

	c, err := NewCheapClassifier(0)
	require.NoError(t, err)

	result, err := c.Classify(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, CategoryLead, result.Category)
	assert.GreaterOrEqual(t, result.Confidence, 0.9)
}

func TestChunkText(t *testing.T) {
	short := "one two three"
	assert.Equal(t, []string{short}, chunkText(short))

	words := make([]string, 1500)
	for i := range words {
		words[i] = "w"
	}
	chunks := chunkText(strings.Join(words, " "))
	assert.Greater(t, len(chunks), 1)
	// Every word appears in some chunk.
	total := 0
	for _, c := range chunks {
		total += len(strings.Fields(c))
	}
	assert.GreaterOrEqual(t, total, 1500)
}

type stubProvider struct {
	content string
	err     error
	lastReq *llm.Request
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content, FinishReason: "stop"}, nil
}

func TestExpensiveClassify(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		wantCategory   Category
		wantConfidence float64
		wantErr        error
	}{
		{
			name:           "well formed json",
			reply:          `{"category": "COMPLAINT", "confidence": 0.88}`,
			wantCategory:   CategoryComplaint,
			wantConfidence: 0.88,
		},
		{
			name:           "fenced json",
			reply:          "```json\n{\"category\": \"lead\", \"confidence\": 0.8}\n```",
			wantCategory:   CategoryLead,
			wantConfidence: 0.8,
		},
		{
			name:           "out of range confidence falls back",
			reply:          `{"category": "SPAM", "confidence": 7}`,
			wantCategory:   CategorySpam,
			wantConfidence: 0.75,
		},
		{
			name:           "bare token reply",
			reply:          "I would say this is a LEAD.",
			wantCategory:   CategoryLead,
			wantConfidence: 0.6,
		},
		{
			name:    "no category at all",
			reply:   "I cannot help with that.",
			wantErr: ErrUnparsableResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{content: tt.reply}
			c := NewExpensiveClassifier(provider, "gpt-4o-mini")

			result, err := c.Classify(context.Background(), "some email text")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, result.Category)
			assert.InDelta(t, tt.wantConfidence, result.Confidence, 0.001)
			assert.Equal(t, float64(0), provider.lastReq.Temperature)
		})
	}
}

func TestExpensiveClassifyProviderError(t *testing.T) {
	provider := &stubProvider{err: errors.New("connection refused")}
	c := NewExpensiveClassifier(provider, "gpt-4o-mini")

	_, err := c.Classify(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expensive classification")
}
