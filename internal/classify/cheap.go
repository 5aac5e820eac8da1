package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Chunking parameters for long texts: score overlapping word windows and
// max-pool, so a strong signal buried deep in a long email still wins.
const (
	chunkWords   = 600
	chunkOverlap = 100
)

const defaultCacheSize = 4096

// blockKeywords short-circuit to SPAM before any scoring. Obvious scam
// vocabulary; one hit is enough.
var blockKeywords = []string{
	"click here", "free iphone", "winner", "$1000", "lottery", "prize", "casino",
}

// Scoring vocabularies. Hits are counted per category per chunk.
var (
	leadKeywords = []string{
		"pricing", "quote", "demo", "interested in", "purchase", "buy",
		"trial", "partnership", "bulk order", "evaluate", "proposal",
		"budget", "procurement", "licensing",
	}
	complaintKeywords = []string{
		"refund", "broken", "disappointed", "not working", "complaint",
		"unacceptable", "defective", "cancel my", "terrible", "escalate",
		"still waiting", "damaged",
	}
	spamKeywords = []string{
		"unsubscribe", "limited time", "act now", "congratulations",
		"no obligation", "risk free", "crypto opportunity",
	}
)

// CheapClassifier scores text against keyword vocabularies, locally and
// deterministically. Results are cached by content hash since identical
// input always classifies identically.
type CheapClassifier struct {
	cache *lru.Cache[string, Result]
}

// NewCheapClassifier creates the local tier. cacheSize <= 0 uses the default.
func NewCheapClassifier(cacheSize int) (*CheapClassifier, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating classification cache: %w", err)
	}
	return &CheapClassifier{cache: cache}, nil
}

// Classify scores the text. Confidence grows with keyword hits and saturates
// at 0.95; text matching no vocabulary returns UNKNOWN with confidence 0.
func (c *CheapClassifier) Classify(ctx context.Context, text string) (Result, error) {
	_, span := tracer.Start(ctx, "classify.cheap")
	defer span.End()

	key := contentHash(text)
	if cached, ok := c.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("classify.cache_hit", true))
		return cached, nil
	}

	result := c.score(text)
	c.cache.Add(key, result)

	span.SetAttributes(
		attribute.Bool("classify.cache_hit", false),
		attribute.String("classify.category", string(result.Category)),
		attribute.Float64("classify.confidence", result.Confidence),
	)
	log.Debug().
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Msg("cheap_classification")
	return result, nil
}

func (c *CheapClassifier) score(text string) Result {
	lower := strings.ToLower(text)

	for _, kw := range blockKeywords {
		if strings.Contains(lower, kw) {
			return Result{Category: CategorySpam, Confidence: 0.95}
		}
	}

	best := Result{Category: CategoryUnknown}
	for _, chunk := range chunkText(lower) {
		if r := scoreChunk(chunk); r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}

// scoreChunk counts vocabulary hits per category and converts the winning
// count to a confidence: 0.5 base plus 0.14 per hit, capped at 0.95.
// One hit scores 0.64; three hits land at 0.92.
func scoreChunk(chunk string) Result {
	counts := map[Category]int{
		CategoryLead:      countHits(chunk, leadKeywords),
		CategoryComplaint: countHits(chunk, complaintKeywords),
		CategorySpam:      countHits(chunk, spamKeywords),
	}

	winner := CategoryUnknown
	winnerHits := 0
	for _, cat := range []Category{CategoryLead, CategoryComplaint, CategorySpam} {
		if counts[cat] > winnerHits {
			winner = cat
			winnerHits = counts[cat]
		}
	}
	if winnerHits == 0 {
		return Result{Category: CategoryUnknown}
	}

	confidence := 0.5 + 0.14*float64(winnerHits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return Result{Category: winner, Confidence: confidence}
}

func countHits(chunk string, vocab []string) int {
	hits := 0
	for _, kw := range vocab {
		if strings.Contains(chunk, kw) {
			hits++
		}
	}
	return hits
}

// chunkText splits into overlapping word windows. Short texts are a single
// chunk.
func chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) <= chunkWords {
		return []string{text}
	}
	var chunks []string
	step := chunkWords - chunkOverlap
	for i := 0; i < len(words); i += step {
		end := i + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
