package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Harshalzarikar/Beaver-agent/internal/llm"
)

const expensiveSystemPrompt = `You are an email triage classifier for a sales inbox.
Classify the email into exactly one category: LEAD (sales inquiry), COMPLAINT (customer problem), or SPAM (junk, scams, unsolicited marketing).
The email has been redacted; placeholders like [PERSON_1] stand for removed personal data and carry no signal.
Respond with JSON only: {"category": "LEAD|COMPLAINT|SPAM", "confidence": 0.0-1.0}`

// ExpensiveClassifier escalates to an LLM when the cheap tier is unsure.
type ExpensiveClassifier struct {
	provider llm.Provider
	model    string
}

// NewExpensiveClassifier creates the LLM tier.
func NewExpensiveClassifier(provider llm.Provider, model string) *ExpensiveClassifier {
	return &ExpensiveClassifier{provider: provider, model: model}
}

type classificationReply struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify asks the LLM for a category. The response is parsed as JSON;
// if the model ignored the format, a bare category token in the reply is
// accepted with a discounted confidence.
func (c *ExpensiveClassifier) Classify(ctx context.Context, text string) (Result, error) {
	ctx, span := tracer.Start(ctx, "classify.expensive")
	defer span.End()

	resp, err := c.provider.Generate(ctx, &llm.Request{
		Model: c.model,
		Messages: []llm.Message{
			{Role: "system", Content: expensiveSystemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   64,
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("expensive classification: %w", err)
	}

	result, err := parseReply(resp.Content)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("classify.category", string(result.Category)),
		attribute.Float64("classify.confidence", result.Confidence),
	)
	return result, nil
}

func parseReply(content string) (Result, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var reply classificationReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &reply); err == nil {
		if cat, ok := normalizeCategory(reply.Category); ok {
			confidence := reply.Confidence
			if confidence <= 0 || confidence > 1 {
				confidence = 0.75
			}
			return Result{Category: cat, Confidence: confidence}, nil
		}
	}

	// Model ignored the JSON format; look for a bare category token.
	upper := strings.ToUpper(trimmed)
	for _, cat := range []Category{CategoryLead, CategoryComplaint, CategorySpam} {
		if strings.Contains(upper, string(cat)) {
			return Result{Category: cat, Confidence: 0.6}, nil
		}
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnparsableResponse, content)
}

func normalizeCategory(s string) (Category, bool) {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryLead:
		return CategoryLead, true
	case CategoryComplaint:
		return CategoryComplaint, true
	case CategorySpam:
		return CategorySpam, true
	default:
		return CategoryUnknown, false
	}
}
