package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harshalzarikar/Beaver-agent/internal/detector"
)

const testKey = "0123456789abcdef0123456789abcdef"

type stubDetector struct {
	spans []detector.Span
	err   error
}

func (s *stubDetector) Detect(_ context.Context, _ string) ([]detector.Span, error) {
	return s.spans, s.err
}

func newTestVault(t *testing.T, det detector.Detector, opts ...Option) *Vault {
	t.Helper()
	v, err := New(det, testKey, opts...)
	require.NoError(t, err)
	return v
}

func TestAnonymizeDeanonymizeRoundTrip(t *testing.T) {
	det := detector.MustNew()
	v := newTestVault(t, det)

	original := "Call John at 555-0199 about IBAN GB29NWBK60161331926819"
	redacted, records, err := v.Anonymize(context.Background(), "req-1", original)
	require.NoError(t, err)

	assert.Equal(t, "Call [PERSON_1] at [PHONE_1] about IBAN [IBAN_CODE_1]", redacted)
	assert.Len(t, records, 3)
	assert.Equal(t, 3, v.RecordCount("req-1"))

	restored, unresolved, err := v.Deanonymize(context.Background(), "req-1", redacted)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, original, restored)

	// Full restoration clears the arena entry.
	assert.Equal(t, 0, v.RecordCount("req-1"))
}

func TestAnonymizeConfidenceThreshold(t *testing.T) {
	text := "alpha bravo charlie"
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindPerson, Start: 0, End: 5, Confidence: 0.59},
		{Kind: detector.KindPerson, Start: 6, End: 11, Confidence: 0.60},
	}}
	v := newTestVault(t, det)

	redacted, records, err := v.Anonymize(context.Background(), "req-1", text)
	require.NoError(t, err)

	// 0.59 stays in the clear, 0.60 is redacted (threshold is inclusive).
	assert.Equal(t, "alpha [PERSON_1] charlie", redacted)
	require.Len(t, records, 1)
	assert.Equal(t, "[PERSON_1]", records[0].Placeholder)
}

func TestAnonymizeOverlapResolution(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		spans []detector.Span
		want  string
	}{
		{
			name: "higher confidence wins",
			text: "0123456789",
			spans: []detector.Span{
				{Kind: detector.KindPhoneNumber, Start: 0, End: 6, Confidence: 0.70},
				{Kind: detector.KindCreditCard, Start: 4, End: 10, Confidence: 0.90},
			},
			want: "0123[CREDIT_CARD_1]",
		},
		{
			name: "tie broken by longer span",
			text: "0123456789",
			spans: []detector.Span{
				{Kind: detector.KindPhoneNumber, Start: 0, End: 8, Confidence: 0.80},
				{Kind: detector.KindCreditCard, Start: 6, End: 10, Confidence: 0.80},
			},
			want: "[PHONE_1]89",
		},
		{
			name: "disjoint spans both kept",
			text: "0123 56789",
			spans: []detector.Span{
				{Kind: detector.KindPhoneNumber, Start: 0, End: 4, Confidence: 0.80},
				{Kind: detector.KindPhoneNumber, Start: 5, End: 10, Confidence: 0.80},
			},
			want: "[PHONE_1] [PHONE_2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVault(t, &stubDetector{spans: tt.spans})
			redacted, _, err := v.Anonymize(context.Background(), "req-1", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, redacted)
		})
	}
}

func TestAnonymizePlaceholderNumbering(t *testing.T) {
	// Spans reported out of order; numbering follows text order per kind.
	text := "aa@x.io bob 555-0199 cc@y.io"
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindEmail, Start: 21, End: 28, Confidence: 1.0},
		{Kind: detector.KindPhoneNumber, Start: 12, End: 20, Confidence: 0.85},
		{Kind: detector.KindEmail, Start: 0, End: 7, Confidence: 1.0},
		{Kind: detector.KindPerson, Start: 8, End: 11, Confidence: 0.75},
	}}
	v := newTestVault(t, det)

	redacted, records, err := v.Anonymize(context.Background(), "req-1", text)
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL_1] [PERSON_1] [PHONE_1] [EMAIL_2]", redacted)
	require.Len(t, records, 4)
	assert.Equal(t, "[EMAIL_1]", records[0].Placeholder)
	assert.Equal(t, "[EMAIL_2]", records[3].Placeholder)
}

func TestAnonymizeDetectionError(t *testing.T) {
	v := newTestVault(t, &stubDetector{err: errors.New("regex engine exploded")})

	_, _, err := v.Anonymize(context.Background(), "req-1", "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetection)
}

func TestDeanonymizeUnknownRequest(t *testing.T) {
	v := newTestVault(t, &stubDetector{})

	text := "contact [EMAIL_1] or [PHONE_1]"
	restored, unresolved, err := v.Deanonymize(context.Background(), "nope", text)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVaultExpired)
	var expired *ExpiredError
	require.ErrorAs(t, err, &expired)
	assert.ElementsMatch(t, []string{"[EMAIL_1]", "[PHONE_1]"}, expired.Unresolved)
	assert.ElementsMatch(t, []string{"[EMAIL_1]", "[PHONE_1]"}, unresolved)

	// Unresolved placeholders are left verbatim, never invented.
	assert.Equal(t, text, restored)
}

func TestDeanonymizeExpiredRecords(t *testing.T) {
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindEmail, Start: 0, End: 8, Confidence: 1.0},
	}}
	v := newTestVault(t, det, WithTTL(-time.Second))

	redacted, _, err := v.Anonymize(context.Background(), "req-1", "a@b.com!")
	require.NoError(t, err)

	_, unresolved, err := v.Deanonymize(context.Background(), "req-1", redacted)
	assert.ErrorIs(t, err, ErrVaultExpired)
	assert.Equal(t, []string{"[EMAIL_1]"}, unresolved)
}

func TestDeanonymizeNoPlaceholders(t *testing.T) {
	v := newTestVault(t, &stubDetector{})

	restored, unresolved, err := v.Deanonymize(context.Background(), "req-1", "plain text, nothing to do")
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, "plain text, nothing to do", restored)
}

func TestDeanonymizeSinglePass(t *testing.T) {
	// A restored value containing placeholder-shaped text must not be
	// substituted again.
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindPerson, Start: 0, End: 10, Confidence: 0.9},
	}}
	v := newTestVault(t, det)

	redacted, _, err := v.Anonymize(context.Background(), "req-1", "[PHONE_1]x rest")
	require.NoError(t, err)
	assert.Equal(t, "[PERSON_1] rest", redacted)

	restored, unresolved, err := v.Deanonymize(context.Background(), "req-1", redacted)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, "[PHONE_1]x rest", restored)
}

func TestDeleteRemovesRecords(t *testing.T) {
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindEmail, Start: 0, End: 7, Confidence: 1.0},
	}}
	v := newTestVault(t, det)

	_, _, err := v.Anonymize(context.Background(), "req-1", "a@b.com")
	require.NoError(t, err)
	require.Equal(t, 1, v.RecordCount("req-1"))

	v.Delete("req-1")
	assert.Equal(t, 0, v.RecordCount("req-1"))

	// Deleting an unknown id is a no-op.
	v.Delete("never-seen")
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindEmail, Start: 0, End: 7, Confidence: 1.0},
	}}
	v := newTestVault(t, det, WithTTL(-time.Second))

	_, _, err := v.Anonymize(context.Background(), "req-1", "a@b.com")
	require.NoError(t, err)

	v.sweep()

	v.mu.RLock()
	_, exists := v.arena["req-1"]
	v.mu.RUnlock()
	assert.False(t, exists)
}

func TestRequestIsolation(t *testing.T) {
	det := &stubDetector{spans: []detector.Span{
		{Kind: detector.KindEmail, Start: 0, End: 7, Confidence: 1.0},
	}}
	v := newTestVault(t, det)

	_, _, err := v.Anonymize(context.Background(), "req-a", "a@b.com")
	require.NoError(t, err)
	_, _, err = v.Anonymize(context.Background(), "req-b", "c@d.com")
	require.NoError(t, err)

	// [EMAIL_1] under req-a resolves to req-a's value, not req-b's.
	restored, _, err := v.Deanonymize(context.Background(), "req-a", "[EMAIL_1]")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", restored)
}

func TestNewRejectsBadKey(t *testing.T) {
	_, err := New(&stubDetector{}, "short")
	assert.Error(t, err)

	_, err = New(&stubDetector{}, "zz23456789abcdef0123456789abcdefzz23456789abcdef0123456789abcdef")
	assert.Error(t, err)
}

func TestValueCipherRoundTrip(t *testing.T) {
	c, err := newValueCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.seal("sensitive value")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "sensitive")

	plain, err := c.open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sensitive value", plain)

	_, err = c.open(sealed[:4])
	assert.Error(t, err)
}
