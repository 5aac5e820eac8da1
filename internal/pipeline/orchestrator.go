// Package pipeline drives one email through the routing/retry state machine:
// ROUTING branches on intent, leads pass through research/write/verify with a
// bounded redraft loop, and DELIVERING restores vaulted PII exactly once in
// the final output. Stages only ever see redacted text.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Harshalzarikar/Beaver-agent/internal/classify"
	"github.com/Harshalzarikar/Beaver-agent/internal/leads"
	"github.com/Harshalzarikar/Beaver-agent/internal/llm"
	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
	"github.com/Harshalzarikar/Beaver-agent/internal/policy"
	"github.com/Harshalzarikar/Beaver-agent/internal/requestctx"
	"github.com/Harshalzarikar/Beaver-agent/internal/search"
	"github.com/Harshalzarikar/Beaver-agent/internal/vault"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/pipeline")

// Config carries the orchestrator's tunables. Zero values are replaced with
// defaults in New.
type Config struct {
	Model                   string
	RoutingThreshold        float64
	SummarizeThresholdChars int
	MaxEmailChars           int
	MaxRetries              int
	ProcessTimeout          time.Duration
}

const (
	defaultRoutingThreshold        = 0.70
	defaultSummarizeThresholdChars = 3000
	defaultMaxEmailChars           = 20000
	defaultMaxRetries              = 3
	defaultProcessTimeout          = 2 * time.Minute
)

// Result is the externally visible outcome of one processed email.
type Result struct {
	RequestID    string            `json:"request_id"`
	TraceID      string            `json:"trace_id"`
	Category     classify.Category `json:"category"`
	CompanyName  string            `json:"company_name,omitempty"`
	FinalMessage string            `json:"final_message,omitempty"`
	Unverified   bool              `json:"unverified,omitempty"`
	Unresolved   []string          `json:"unresolved_placeholders,omitempty"`
	RetryCount   int               `json:"retry_count"`
	Stage        Stage             `json:"stage"`
}

// Orchestrator owns stage sequencing, routing, and retry policy.
type Orchestrator struct {
	vault     *vault.Vault
	cheap     *classify.CheapClassifier
	expensive *classify.ExpensiveClassifier
	provider  llm.Provider
	search    search.Client
	policy    *policy.Engine
	store     *leads.Store
	cfg       Config
}

// New creates an orchestrator. search and store may be nil (research then
// skips web lookup; delivery skips persistence).
func New(cfg Config, v *vault.Vault, cheap *classify.CheapClassifier, expensive *classify.ExpensiveClassifier,
	provider llm.Provider, searchClient search.Client, policyEngine *policy.Engine, store *leads.Store) *Orchestrator {
	if cfg.RoutingThreshold == 0 {
		cfg.RoutingThreshold = defaultRoutingThreshold
	}
	if cfg.SummarizeThresholdChars == 0 {
		cfg.SummarizeThresholdChars = defaultSummarizeThresholdChars
	}
	if cfg.MaxEmailChars == 0 {
		cfg.MaxEmailChars = defaultMaxEmailChars
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.ProcessTimeout == 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}
	return &Orchestrator{
		vault:     v,
		cheap:     cheap,
		expensive: expensive,
		provider:  provider,
		search:    searchClient,
		policy:    policyEngine,
		store:     store,
		cfg:       cfg,
	}
}

// Process runs one email through the full state machine. Input bounds are
// checked before any PII scan. The request's vault entry is removed on every
// exit path, success or failure.
func (o *Orchestrator) Process(ctx context.Context, rawText, senderAddress string) (*Result, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyInput
	}
	if len(rawText) > o.cfg.MaxEmailChars {
		return nil, fmt.Errorf("%w: %d > %d chars", ErrInputTooLarge, len(rawText), o.cfg.MaxEmailChars)
	}

	requestID := uuid.NewString()
	traceID := requestctx.TraceID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ProcessTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("pipeline.request_id", requestID))

	// Idempotent; successful delivery has already removed the entry. This
	// covers timeout and failure paths so token records never outlive the
	// request beyond their TTL.
	defer o.vault.Delete(requestID)

	logger := log.With().Str("request_id", requestID).Str("trace_id", traceID).Logger()
	ctx = logger.WithContext(ctx)

	redacted, records, err := o.vault.Anonymize(ctx, requestID, rawText)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrDetectionFailure, err)
	}
	logger.Info().Int("tokens_vaulted", len(records)).Int("chars", len(redacted)).Msg("request_anonymized")

	st := &State{
		RequestID:     requestID,
		TraceID:       traceID,
		SenderAddress: senderAddress,
		RedactedText:  redacted,
		Stage:         StageRouting,
		Category:      classify.CategoryUnknown,
		Verdict:       VerdictPending,
	}

	result := &Result{RequestID: requestID, TraceID: traceID}
	for st.Stage != StageDelivered && st.Stage != StageSpamTerminal {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: in stage %s", ErrProcessingTimeout, st.Stage)
		}

		var stageErr error
		switch st.Stage {
		case StageRouting:
			stageErr = o.route(ctx, st)
		case StageSupport:
			stageErr = o.support(ctx, st)
		case StageResearching:
			stageErr = o.research(ctx, st)
		case StageWriting:
			stageErr = o.write(ctx, st)
		case StageVerifying:
			stageErr = o.verify(ctx, st)
		case StageDelivering:
			result.FinalMessage, result.Unresolved, stageErr = o.deliver(ctx, st)
		default:
			stageErr = fmt.Errorf("unknown stage %q", st.Stage)
		}
		if stageErr != nil {
			span.RecordError(stageErr)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: in stage %s: %v", ErrProcessingTimeout, st.Stage, stageErr)
			}
			return nil, stageErr
		}
	}

	result.Category = st.Category
	result.CompanyName = st.CompanyName
	result.Unverified = st.Unverified
	result.RetryCount = st.RetryCount
	result.Stage = st.Stage

	span.SetAttributes(
		attribute.String("pipeline.category", string(st.Category)),
		attribute.String("pipeline.final_stage", string(st.Stage)),
		attribute.Int("pipeline.retries", st.RetryCount),
		attribute.Bool("pipeline.unverified", st.Unverified),
	)
	logger.Info().
		Str("category", string(st.Category)).
		Str("stage", string(st.Stage)).
		Int("retries", st.RetryCount).
		Bool("unverified", st.Unverified).
		Msg("request_processed")
	return result, nil
}

func stageLogger(ctx context.Context, stage Stage) *zerolog.Logger {
	logger := zerolog.Ctx(ctx).With().Str("stage", string(stage)).Logger()
	return &logger
}
