package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harshalzarikar/Beaver-agent/internal/classify"
	"github.com/Harshalzarikar/Beaver-agent/internal/leads"
	"github.com/Harshalzarikar/Beaver-agent/internal/llm"
)

const (
	supportPrompt = `You are a customer support agent. Write a short, empathetic reply to the complaint below.
The text is redacted; placeholders like [PERSON_1] or [EMAIL_1] stand for removed personal data. Keep every placeholder exactly as written.
Do not promise refunds, prices, or discounts.`

	extractCompanyPrompt = `Extract the company name the sender represents from the email below.
Reply with the company name only. If no company is identifiable, reply with exactly NONE.`

	summarizePrompt = `Summarize the email below in at most 10 sentences, keeping every fact needed to personalize a reply.
Keep every placeholder like [PERSON_1] exactly as written.`

	draftPrompt = `You are a sales representative writing a reply to an inbound email.
Write a short, professional reply. Keep every placeholder like [PERSON_1] or [EMAIL_1] exactly as written; they will be replaced later.
Never mention prices, percentages off, discounts, or free offers of any kind.`

	editorialPrompt = `You review outbound sales drafts. Reply with exactly APPROVE if the draft is professional and makes no pricing or discount promises, otherwise reply with REJECT followed by a one-line reason.`
)

// route runs the two-tier classifier and branches on the category. The
// cheap tier's answer stands when its confidence clears the routing
// threshold; only then is the expensive tier skipped.
func (o *Orchestrator) route(ctx context.Context, st *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.routing")
	defer span.End()
	logger := stageLogger(ctx, StageRouting)

	result, err := o.cheap.Classify(ctx, st.RedactedText)
	cheapErr := err
	useCheap := err == nil && result.Category != classify.CategoryUnknown && result.Confidence >= o.cfg.RoutingThreshold

	if !useCheap {
		expResult, expErr := o.expensive.Classify(ctx, st.RedactedText)
		switch {
		case expErr == nil:
			result = expResult
		case cheapErr == nil && result.Category != classify.CategoryUnknown:
			// Degraded: expensive tier down, low-confidence local answer
			// is still an answer.
			logger.Warn().Err(expErr).Msg("expensive_tier_failed_using_cheap")
			st.note("expensive classifier unavailable; used low-confidence local category")
		default:
			span.RecordError(expErr)
			return fmt.Errorf("%w: cheap=%v expensive=%v", ErrClassificationFailure, cheapErr, expErr)
		}
	}

	st.Category = result.Category
	st.Confidence = result.Confidence
	logger.Info().
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Bool("cheap_tier_final", useCheap).
		Msg("request_routed")

	switch result.Category {
	case classify.CategorySpam:
		// No reply is produced, so nothing ever needs restoration.
		st.Stage = StageSpamTerminal
	case classify.CategoryComplaint:
		st.Stage = StageSupport
	case classify.CategoryLead:
		st.Stage = StageResearching
	default:
		return fmt.Errorf("%w: classifier returned %q", ErrClassificationFailure, result.Category)
	}
	return nil
}

// support drafts a complaint reply directly; no research pass.
func (o *Orchestrator) support(ctx context.Context, st *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.support")
	defer span.End()

	resp, err := o.provider.Generate(ctx, &llm.Request{
		Model: o.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: supportPrompt},
			{Role: "user", Content: st.RedactedText},
		},
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("drafting support reply: %w", err)
	}

	st.Draft = resp.Content
	st.Stage = StageDelivering
	return nil
}

// research resolves the company name, then gathers web context. The LLM
// extraction runs on redacted text; the sender-domain fallback needs no PII
// since domains are not a protected kind. Search failure is soft.
func (o *Orchestrator) research(ctx context.Context, st *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.researching")
	defer span.End()
	logger := stageLogger(ctx, StageResearching)

	resp, err := o.provider.Generate(ctx, &llm.Request{
		Model: o.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: extractCompanyPrompt},
			{Role: "user", Content: st.RedactedText},
		},
		Temperature: 0,
		MaxTokens:   32,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("company_extraction_failed")
	} else if name := strings.TrimSpace(resp.Content); name != "" && !strings.EqualFold(name, "NONE") {
		st.CompanyName = name
	}

	if st.CompanyName == "" {
		st.CompanyName = companyFromDomain(st.SenderAddress)
		if st.CompanyName != "" {
			st.note("company name derived from sender domain")
		}
	}

	if o.search != nil && st.CompanyName != "" {
		snippet, err := o.search.Search(ctx, st.CompanyName+" company overview")
		if err != nil {
			logger.Warn().Err(err).Msg("web_search_failed")
		} else {
			st.CompanyInfo = snippet
		}
	}

	logger.Info().Str("company", st.CompanyName).Bool("has_context", st.CompanyInfo != "").Msg("research_done")
	st.Stage = StageWriting
	return nil
}

// write produces or redrafts the reply. Long emails are summarized first so
// the draft prompt stays focused; the summary keeps placeholders intact.
func (o *Orchestrator) write(ctx context.Context, st *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.writing")
	defer span.End()

	source := st.RedactedText
	if len(source) > o.cfg.SummarizeThresholdChars {
		resp, err := o.provider.Generate(ctx, &llm.Request{
			Model: o.cfg.Model,
			Messages: []llm.Message{
				{Role: "system", Content: summarizePrompt},
				{Role: "user", Content: source},
			},
			Temperature: 0,
			MaxTokens:   1024,
		})
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("summarizing email: %w", err)
		}
		source = resp.Content
		st.note("email summarized before drafting")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Category: %s\n", st.Category)
	if st.CompanyName != "" {
		fmt.Fprintf(&sb, "Company: %s\n", st.CompanyName)
	}
	if st.CompanyInfo != "" {
		fmt.Fprintf(&sb, "Company context:\n%s\n", st.CompanyInfo)
	}
	if feedback := st.lastRejection(); feedback != "" {
		fmt.Fprintf(&sb, "The previous draft was rejected: %s\nAddress that in this draft.\n", feedback)
	}
	fmt.Fprintf(&sb, "\nEmail:\n%s", source)

	resp, err := o.provider.Generate(ctx, &llm.Request{
		Model: o.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: draftPrompt},
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("drafting reply: %w", err)
	}

	st.Draft = resp.Content
	st.Verdict = VerdictPending
	st.Stage = StageVerifying
	return nil
}

// verify gates the draft on the safety policy, then on an LLM editorial
// review. Policy denial always wins. A rejection bumps the retry counter;
// once it hits the bound the draft ships flagged unverified so a lead is
// never silently dropped, and no further verification is attempted.
func (o *Orchestrator) verify(ctx context.Context, st *State) error {
	ctx, span := tracer.Start(ctx, "pipeline.verifying")
	defer span.End()
	logger := stageLogger(ctx, StageVerifying)

	decision, err := o.policy.EvaluateDraft(ctx, st.Draft)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("evaluating draft policy: %w", err)
	}

	rejectionReason := ""
	if !decision.Allowed {
		rejectionReason = strings.Join(decision.Reasons, "; ")
	} else {
		verdict, reason, err := o.editorialReview(ctx, st.Draft)
		if err != nil {
			// Degraded: the policy gate already passed; editorial review
			// is advisory when its backend is down.
			logger.Warn().Err(err).Msg("editorial_review_failed_policy_only")
			st.note("editorial review unavailable; approved on policy alone")
			verdict = VerdictApproved
		}
		if verdict == VerdictRejected {
			rejectionReason = reason
		}
	}

	if rejectionReason == "" {
		st.Verdict = VerdictApproved
		st.Stage = StageDelivering
		logger.Info().Int("retries", st.RetryCount).Msg("draft_approved")
		return nil
	}

	st.Verdict = VerdictRejected
	st.RetryCount++
	st.note("draft rejected: " + rejectionReason)
	logger.Warn().Int("retries", st.RetryCount).Str("reason", rejectionReason).Msg("draft_rejected")

	if st.RetryCount >= o.cfg.MaxRetries {
		st.Unverified = true
		st.Stage = StageDelivering
		logger.Warn().Int("retries", st.RetryCount).Msg("verification_exhausted_delivering_unverified")
		return nil
	}
	st.Stage = StageWriting
	return nil
}

func (o *Orchestrator) editorialReview(ctx context.Context, draft string) (Verdict, string, error) {
	resp, err := o.provider.Generate(ctx, &llm.Request{
		Model: o.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: editorialPrompt},
			{Role: "user", Content: draft},
		},
		Temperature: 0,
		MaxTokens:   64,
	})
	if err != nil {
		return VerdictPending, "", err
	}
	upper := strings.ToUpper(strings.TrimSpace(resp.Content))
	if strings.HasPrefix(upper, "APPROVE") {
		return VerdictApproved, "", nil
	}
	reason := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(resp.Content), "REJECT"))
	return VerdictRejected, reason, nil
}

// deliver restores PII in the draft, exactly once per request, and persists
// the outcome. Unresolved placeholders stay verbatim; the vault never
// invents values. Persistence failure is logged, not fatal.
func (o *Orchestrator) deliver(ctx context.Context, st *State) (string, []string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.delivering")
	defer span.End()
	logger := stageLogger(ctx, StageDelivering)

	final, unresolved, err := o.vault.Deanonymize(ctx, st.RequestID, st.Draft)
	if err != nil {
		if len(unresolved) == 0 {
			span.RecordError(err)
			return "", nil, fmt.Errorf("restoring draft: %w", err)
		}
		logger.Warn().Strs("unresolved", unresolved).Msg("placeholders_unresolved")
	}

	if o.store != nil {
		if _, err := o.store.Save(ctx, &leads.Lead{
			CompanyName: st.CompanyName,
			Category:    string(st.Category),
			EmailDraft:  final,
			Unverified:  st.Unverified,
		}); err != nil {
			logger.Error().Err(err).Msg("lead_persist_failed")
		}
	}

	st.Stage = StageDelivered
	return final, unresolved, nil
}

// lastRejection returns the most recent rejection note, if any.
func (st *State) lastRejection() string {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if strings.HasPrefix(st.Messages[i], "draft rejected: ") {
			return strings.TrimPrefix(st.Messages[i], "draft rejected: ")
		}
	}
	return ""
}

// companyFromDomain derives a display name from the sender's email domain:
// the registrable label, title-cased. "alice@cogninest.com" → "Cogninest".
func companyFromDomain(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return ""
	}
	labels := strings.Split(strings.ToLower(sender[at+1:]), ".")
	if len(labels) < 2 {
		return ""
	}
	name := labels[len(labels)-2]
	// Second-level registries like co.uk: step one label further left.
	if (name == "co" || name == "com" || name == "ac" || name == "org") && len(labels) >= 3 {
		name = labels[len(labels)-3]
	}
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
