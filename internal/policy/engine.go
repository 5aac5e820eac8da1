// Package policy evaluates outbound draft safety with embedded OPA rules.
// Policy denial is absolute: an LLM editorial verdict can reject a draft the
// policy allowed, but can never approve one the policy denied.
package policy

import (
	"context"
	"embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/policy")

//go:embed rego/*.rego
var embeddedPolicies embed.FS

const (
	draftSafetyFile  = "rego/draft_safety.rego"
	draftSafetyQuery = "data.beaver.policy.draft_safety.deny"
)

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Engine evaluates draft-safety rules with a precompiled Rego query.
type Engine struct {
	prepared rego.PreparedEvalQuery
}

// NewEngine compiles the embedded policy. Fails fast on a broken rule file
// so a bad policy never reaches request handling.
func NewEngine(ctx context.Context) (*Engine, error) {
	content, err := embeddedPolicies.ReadFile(draftSafetyFile)
	if err != nil {
		return nil, fmt.Errorf("reading embedded policy %s: %w", draftSafetyFile, err)
	}

	r := rego.New(
		rego.Query(draftSafetyQuery),
		rego.Module(draftSafetyFile, string(content)),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing Rego policy %s: %w", draftSafetyFile, err)
	}
	return &Engine{prepared: prepared}, nil
}

// EvaluateDraft extracts features from the draft and runs the safety rules.
func (e *Engine) EvaluateDraft(ctx context.Context, draft string) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.evaluate_draft")
	defer span.End()

	features := ExtractFeatures(draft)
	input := map[string]interface{}{
		"flagged_patterns":  features.FlaggedPatterns,
		"placeholder_count": features.PlaceholderCount,
		"draft_length":      features.DraftLength,
		"max_draft_length":  MaxDraftLength,
	}

	results, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("evaluating %s: %w", draftSafetyFile, err)
	}

	decision := &Decision{Allowed: true}
	// Querying "data...deny" yields a set of strings; OPA hands it back as
	// []interface{}.
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		if msgs, ok := results[0].Expressions[0].Value.([]interface{}); ok {
			for _, msg := range msgs {
				if s, ok := msg.(string); ok {
					decision.Reasons = append(decision.Reasons, s)
				}
			}
		}
	}
	if len(decision.Reasons) > 0 {
		decision.Allowed = false
	}

	span.SetAttributes(
		attribute.Bool("policy.allowed", decision.Allowed),
		attribute.Int("policy.deny_reasons", len(decision.Reasons)),
	)
	if decision.Allowed {
		span.SetStatus(codes.Ok, "draft passed policy")
	}
	return decision, nil
}
