// Package detector implements PII entity detection over email text using
// configurable regex recognizers with Presidio-style confidence scoring.
// Detection is pure analysis: spans are reported with offsets and confidence,
// and the vault decides what to redact.
package detector

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/detector")

const (
	// ContextSimilarityFactor is the score boost applied when context words are
	// found near a match. Matches Presidio's default context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of characters to search before and after
	// a match when looking for context words.
	ContextWindowChars = 100
)

// Kind is a detected entity kind. The set is closed: the pipeline and the
// vault dispatch on it exhaustively.
type Kind string

const (
	KindPerson      Kind = "PERSON"
	KindPhoneNumber Kind = "PHONE_NUMBER"
	KindEmail       Kind = "EMAIL_ADDRESS"
	KindCreditCard  Kind = "CREDIT_CARD"
	KindLocation    Kind = "LOCATION"
	KindDateTime    Kind = "DATE_TIME"
	KindIBAN        Kind = "IBAN_CODE"
)

// Kinds lists every known entity kind.
func Kinds() []Kind {
	return []Kind{
		KindPerson, KindPhoneNumber, KindEmail, KindCreditCard,
		KindLocation, KindDateTime, KindIBAN,
	}
}

// Span is a detected PII instance. Offsets index into the source text.
// Immutable once detected.
type Span struct {
	Kind       Kind
	Start      int
	End        int
	Confidence float64
}

// Value returns the matched substring of text.
func (s Span) Value(text string) string {
	return text[s.Start:s.End]
}

// Detector finds PII spans in text. Implementations must be safe for
// concurrent use; remote implementations report transport failures via the
// error return, which callers must treat as a hard stop (never process
// unredacted text on detector failure).
type Detector interface {
	Detect(ctx context.Context, text string) ([]Span, error)
}

// RegexDetector detects PII using compiled regex recognizers.
type RegexDetector struct {
	patterns []Pattern
}

// Option configures a RegexDetector via the functional options pattern.
type Option func(*detectorConfig)

type detectorConfig struct {
	patternFile   string
	enabledKinds  []string
	disabledKinds []string
}

// WithPatternFile loads additional recognizers from a patterns YAML file,
// layered over the embedded defaults. A missing file is silently skipped.
func WithPatternFile(path string) Option {
	return func(c *detectorConfig) { c.patternFile = path }
}

// WithEnabledKinds sets a whitelist of entity kinds. When non-empty, only
// recognizers with a matching supported_entity are active.
func WithEnabledKinds(kinds []string) Option {
	return func(c *detectorConfig) { c.enabledKinds = kinds }
}

// WithDisabledKinds sets a blacklist of entity kinds to exclude.
func WithDisabledKinds(kinds []string) Option {
	return func(c *detectorConfig) { c.disabledKinds = kinds }
}

// New creates a regex detector. Without options it uses the embedded
// defaults. Options layer file-based overrides and kind filters on top.
func New(opts ...Option) (*RegexDetector, error) {
	var cfg detectorConfig
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var fileRecs []*RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			fileRecs = toPtrSlice(rf.Recognizers)
		}
	}

	merged := MergeRecognizers(toPtrSlice(defaults), fileRecs)
	merged = FilterByKinds(merged, cfg.enabledKinds, cfg.disabledKinds)

	compiled, err := CompilePatterns(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	return &RegexDetector{patterns: compiled}, nil
}

// MustNew is like New but panics on error. Useful for zero-config startup
// where the embedded defaults are expected to always compile.
func MustNew(opts ...Option) *RegexDetector {
	d, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("detector.New: %v", err))
	}
	return d
}

// Detect analyzes text and returns all candidate PII spans with confidence
// scores. Matches go through hard validation gates (IBAN checksum/length,
// Luhn) and Presidio-style context boosting. No confidence threshold is
// applied here; that is the caller's policy.
func (d *RegexDetector) Detect(ctx context.Context, text string) ([]Span, error) {
	_, span := tracer.Start(ctx, "detector.detect")
	defer span.End()

	var spans []Span
	for _, pattern := range d.patterns {
		matches := pattern.Pattern.FindAllStringSubmatchIndex(text, -1)
		for _, match := range matches {
			start, end := match[0], match[1]
			// A capture group narrows the span to the entity itself so
			// trigger words around it stay in the text.
			if len(match) >= 4 && match[2] >= 0 {
				start, end = match[2], match[3]
			}
			value := text[start:end]

			if pattern.ValidateIBAN {
				clean := strings.ReplaceAll(value, " ", "")
				if !validateIBANLength(clean) || !validateIBANChecksum(clean) {
					continue
				}
			}
			if pattern.ValidateLuhn {
				digits := stripNonDigits(value)
				if !luhnValid(digits) {
					continue
				}
			}

			confidence := enhanceScoreWithContext(text, start, pattern.Score, pattern.ContextWords)
			spans = append(spans, Span{
				Kind:       pattern.Kind,
				Start:      start,
				End:        end,
				Confidence: confidence,
			})
		}
	}

	span.SetAttributes(attribute.Int("pii.span_count", len(spans)))
	return spans, nil
}

// enhanceScoreWithContext boosts a match's base score if context words are
// found within ±ContextWindowChars characters of the match position. Mirrors
// Presidio's LemmaContextAwareEnhancer with a fixed context_similarity_factor.
// The result is capped at 1.0.
func enhanceScoreWithContext(text string, position int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	start := position - ContextWindowChars
	if start < 0 {
		start = 0
	}
	end := position + ContextWindowChars
	if end > len(text) {
		end = len(text)
	}
	window := strings.ToLower(text[start:end])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			boosted := baseScore + ContextSimilarityFactor
			if boosted > 1.0 {
				return 1.0
			}
			return boosted
		}
	}
	return baseScore
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
