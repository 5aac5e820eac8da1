// Package vault implements the reversible PII vault. Anonymize swaps
// detected entity spans for placeholder tokens and stores the encrypted
// originals in a per-request arena; Deanonymize restores them exactly once,
// at final delivery. Placeholders are request-scoped: the same placeholder
// string in two requests refers to two different vault entries.
package vault

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Harshalzarikar/Beaver-agent/internal/detector"
	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/vault")

// DefaultConfidenceThreshold is the minimum detector confidence for a span
// to be redacted. The sole false-positive control.
const DefaultConfidenceThreshold = 0.60

// DefaultTTL is the default lifetime of a token record.
const DefaultTTL = time.Hour

var (
	// ErrDetection indicates the entity detector failed. Callers must abort
	// the request: text that could not be scanned is never processed.
	ErrDetection = errors.New("entity detection failed")

	// ErrVaultExpired indicates one or more placeholders had no live token
	// record at deanonymize time. Use errors.Is; the concrete error is
	// *ExpiredError and carries the unresolved placeholders.
	ErrVaultExpired = errors.New("vault entry expired")
)

// ExpiredError reports which placeholders could not be resolved.
// The caller decides the fallback policy (drop or keep verbatim); the vault
// never invents values.
type ExpiredError struct {
	RequestID  string
	Unresolved []string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("vault entry expired for request %s: %d unresolved placeholder(s)", e.RequestID, len(e.Unresolved))
}

func (e *ExpiredError) Is(target error) bool { return target == ErrVaultExpired }

// TokenRecord maps one placeholder to one original value. The value is held
// AES-256-GCM encrypted and only decrypted during Deanonymize.
type TokenRecord struct {
	Placeholder string
	Kind        detector.Kind
	Confidence  float64
	CreatedAt   time.Time
	ExpiresAt   time.Time

	sealed []byte
}

// Expired reports whether the record is past its TTL at the given instant.
func (r *TokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// placeholderRe matches tokens of the form [KIND_N].
var placeholderRe = regexp.MustCompile(`\[[A-Z][A-Z_]*_\d+\]`)

// placeholderLabel returns the label used inside placeholders for a kind.
// PHONE_NUMBER and EMAIL_ADDRESS are shortened; the rest use the kind name.
func placeholderLabel(k detector.Kind) string {
	switch k {
	case detector.KindPhoneNumber:
		return "PHONE"
	case detector.KindEmail:
		return "EMAIL"
	default:
		return string(k)
	}
}

// Vault owns the placeholder↔value mapping for in-flight requests.
// The arena maps request id → ordered token records; each entry is
// exclusively owned by that request's pipeline execution.
type Vault struct {
	detector  detector.Detector
	threshold float64
	ttl       time.Duration
	cipher    *valueCipher

	mu    sync.RWMutex
	arena map[string][]*TokenRecord

	sweeper *cron.Cron
}

// Option configures a Vault.
type Option func(*Vault)

// WithConfidenceThreshold overrides the minimum detector confidence.
func WithConfidenceThreshold(threshold float64) Option {
	return func(v *Vault) { v.threshold = threshold }
}

// WithTTL overrides the token record lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(v *Vault) { v.ttl = ttl }
}

// New creates a vault. The key must be 32 raw bytes or 64 hex characters
// (AES-256). Detection is delegated to det; the vault applies the
// confidence threshold and owns substitution.
func New(det detector.Detector, key string, opts ...Option) (*Vault, error) {
	cipher, err := newValueCipher(key)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		detector:  det,
		threshold: DefaultConfidenceThreshold,
		ttl:       DefaultTTL,
		cipher:    cipher,
		arena:     make(map[string][]*TokenRecord),
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// StartSweeper begins the background expiry sweep (every minute). Expired
// records are also dropped lazily on access, so the sweeper exists to bound
// how long an abandoned request's records linger.
func (v *Vault) StartSweeper() error {
	if v.sweeper != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", v.sweep); err != nil {
		return fmt.Errorf("registering vault sweep: %w", err)
	}
	c.Start()
	v.sweeper = c
	return nil
}

// StopSweeper halts the background sweep and waits for a running sweep to finish.
func (v *Vault) StopSweeper() {
	if v.sweeper == nil {
		return
	}
	ctx := v.sweeper.Stop()
	<-ctx.Done()
	v.sweeper = nil
}

// sweep removes expired records and empty arena entries.
func (v *Vault) sweep() {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for id, records := range v.arena {
		live := records[:0]
		for _, r := range records {
			if r.Expired(now) {
				removed++
				continue
			}
			live = append(live, r)
		}
		if len(live) == 0 {
			delete(v.arena, id)
		} else {
			v.arena[id] = live
		}
	}
	if removed > 0 {
		log.Debug().Int("expired_records", removed).Msg("vault_sweep")
	}
}

// Anonymize detects PII in text, replaces every span at or above the
// confidence threshold with a [KIND_N] placeholder, and stores one token
// record per substitution under requestID. Overlapping spans are resolved
// by keeping the higher-confidence span entirely. Substitution runs from
// the highest source offset down so earlier offsets stay valid.
//
// The caller must not retain the original text beyond this call.
func (v *Vault) Anonymize(ctx context.Context, requestID, text string) (string, []TokenRecord, error) {
	ctx, span := tracer.Start(ctx, "vault.anonymize")
	defer span.End()

	spans, err := v.detector.Detect(ctx, text)
	if err != nil {
		span.RecordError(err)
		return "", nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}

	kept := selectSpans(spans, v.threshold)

	// Number placeholders in text order so [PERSON_1] precedes [PERSON_2].
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })

	now := time.Now()
	counters := make(map[detector.Kind]int)
	records := make([]*TokenRecord, 0, len(kept))
	placeholders := make([]string, len(kept))

	for i, s := range kept {
		counters[s.Kind]++
		placeholder := fmt.Sprintf("[%s_%d]", placeholderLabel(s.Kind), counters[s.Kind])
		placeholders[i] = placeholder

		sealed, err := v.cipher.seal(s.Value(text))
		if err != nil {
			span.RecordError(err)
			return "", nil, fmt.Errorf("sealing vault value: %w", err)
		}
		records = append(records, &TokenRecord{
			Placeholder: placeholder,
			Kind:        s.Kind,
			Confidence:  s.Confidence,
			CreatedAt:   now,
			ExpiresAt:   now.Add(v.ttl),
			sealed:      sealed,
		})
	}

	// Replace from the highest offset down.
	redacted := text
	for i := len(kept) - 1; i >= 0; i-- {
		s := kept[i]
		redacted = redacted[:s.Start] + placeholders[i] + redacted[s.End:]
	}

	v.mu.Lock()
	v.arena[requestID] = append(v.arena[requestID], records...)
	v.mu.Unlock()

	span.SetAttributes(
		attribute.Int("vault.tokens_created", len(records)),
		attribute.Int("vault.spans_detected", len(spans)),
	)

	out := make([]TokenRecord, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return redacted, out, nil
}

// selectSpans drops spans below the threshold and resolves overlaps by
// keeping the higher-confidence span entirely (ties: longer span, then
// earlier start). Partial overlap substitution never happens.
func selectSpans(spans []detector.Span, threshold float64) []detector.Span {
	var candidates []detector.Span
	for _, s := range spans {
		if s.Confidence >= threshold {
			candidates = append(candidates, s)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	var kept []detector.Span
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.Start < k.End && k.Start < c.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

// Deanonymize restores original values for every live placeholder in text.
// Unresolved placeholders (unknown request id, expired records, or tokens
// that were never issued) are left verbatim and reported; when any exist the
// returned error matches ErrVaultExpired. The arena entry is deleted once
// every placeholder in the text resolved, minimizing the exposure window.
//
// Calling this on fully-restored text is a no-op: no placeholders remain.
func (v *Vault) Deanonymize(ctx context.Context, requestID, text string) (string, []string, error) {
	_, span := tracer.Start(ctx, "vault.deanonymize")
	defer span.End()

	found := placeholderRe.FindAllString(text, -1)
	if len(found) == 0 {
		return text, nil, nil
	}

	now := time.Now()
	values := make(map[string]string)

	v.mu.RLock()
	records := v.arena[requestID]
	for _, r := range records {
		if r.Expired(now) {
			continue
		}
		plain, err := v.cipher.open(r.sealed)
		if err != nil {
			v.mu.RUnlock()
			span.RecordError(err)
			return "", nil, fmt.Errorf("opening vault value for %s: %w", r.Placeholder, err)
		}
		values[r.Placeholder] = plain
	}
	v.mu.RUnlock()

	var unresolved []string
	seen := make(map[string]bool)
	restored := placeholderRe.ReplaceAllStringFunc(text, func(token string) string {
		if plain, ok := values[token]; ok {
			return plain
		}
		if !seen[token] {
			seen[token] = true
			unresolved = append(unresolved, token)
		}
		return token
	})

	span.SetAttributes(
		attribute.Int("vault.placeholders_found", len(found)),
		attribute.Int("vault.placeholders_unresolved", len(unresolved)),
	)

	if len(unresolved) > 0 {
		return restored, unresolved, &ExpiredError{RequestID: requestID, Unresolved: unresolved}
	}

	v.Delete(requestID)
	return restored, nil, nil
}

// Delete removes every token record for a request. Safe to call for unknown
// ids; used on terminal failure paths so abandoned requests never leak
// records past their TTL.
func (v *Vault) Delete(requestID string) {
	v.mu.Lock()
	delete(v.arena, requestID)
	v.mu.Unlock()
}

// RecordCount returns the number of live records for a request.
func (v *Vault) RecordCount(requestID string) int {
	now := time.Now()
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for _, r := range v.arena[requestID] {
		if !r.Expired(now) {
			n++
		}
	}
	return n
}
