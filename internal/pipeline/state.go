package pipeline

import "github.com/Harshalzarikar/Beaver-agent/internal/classify"

// Stage identifies where a request is in the state machine.
type Stage string

const (
	StageRouting      Stage = "ROUTING"
	StageSpamTerminal Stage = "SPAM_TERMINAL"
	StageSupport      Stage = "SUPPORT"
	StageResearching  Stage = "RESEARCHING"
	StageWriting      Stage = "WRITING"
	StageVerifying    Stage = "VERIFYING"
	StageDelivering   Stage = "DELIVERING"
	StageDelivered    Stage = "DELIVERED"
)

// Verdict is the verifier's judgment of the current draft.
type Verdict string

const (
	VerdictPending  Verdict = "PENDING"
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// State is the single mutable object a request's stages share. Created once
// per email, mutated in place by successive stages, destroyed when Process
// returns. It never holds the original text; only the redacted form. Stages
// must not retain a reference past their own invocation.
type State struct {
	RequestID     string
	TraceID       string
	SenderAddress string
	RedactedText  string

	Stage       Stage
	Category    classify.Category
	Confidence  float64
	CompanyName string
	CompanyInfo string
	Draft       string
	Verdict     Verdict
	RetryCount  int
	Unverified  bool

	// Messages is an append-only log of stage notes (verifier feedback,
	// degraded-path decisions). Redacted content only.
	Messages []string
}

func (s *State) note(msg string) {
	s.Messages = append(s.Messages, msg)
}
