// Package classify assigns an intent category to anonymized email text.
// Two tiers: a cheap local keyword scorer that handles the obvious cases,
// and an LLM-backed tier for everything the cheap tier is unsure about.
// The caller decides when to escalate; this package never calls the network
// from the cheap tier.
package classify

import (
	"errors"

	beaverotel "github.com/Harshalzarikar/Beaver-agent/internal/otel"
)

var tracer = beaverotel.Tracer("github.com/Harshalzarikar/Beaver-agent/internal/classify")

// Category is the closed set of triage outcomes.
type Category string

const (
	CategorySpam      Category = "SPAM"
	CategoryComplaint Category = "COMPLAINT"
	CategoryLead      Category = "LEAD"
	CategoryUnknown   Category = "UNKNOWN"
)

// Result is a category with the classifier's confidence in it.
type Result struct {
	Category   Category
	Confidence float64
}

// ErrUnparsableResponse is returned when the LLM tier answered with text
// that names no known category.
var ErrUnparsableResponse = errors.New("classifier response names no known category")
