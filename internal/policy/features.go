package policy

import "regexp"

// riskPatterns is the financial-language blocklist for outbound drafts.
// The writer must never promise prices, discounts, or freebies; any match
// is grounds for rejection regardless of what the editorial review says.
var riskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\d+`),
	regexp.MustCompile(`(?i)\d{1,2}% off`),
	regexp.MustCompile(`(?i)free (trial|gift|month|access|iphone)`),
	regexp.MustCompile(`(?i)discount`),
}

var placeholderPattern = regexp.MustCompile(`\[[A-Z][A-Z_]*_\d+\]`)

// MaxDraftLength is the longest draft the policy will pass.
const MaxDraftLength = 10000

// DraftFeatures is the policy input extracted from a candidate draft.
type DraftFeatures struct {
	FlaggedPatterns  []string
	PlaceholderCount int
	DraftLength      int
}

// ExtractFeatures scans a draft for policy-relevant signals. One flagged
// entry per matching risk pattern, carrying the first matched substring.
func ExtractFeatures(draft string) DraftFeatures {
	var flagged []string
	for _, re := range riskPatterns {
		if m := re.FindString(draft); m != "" {
			flagged = append(flagged, m)
		}
	}
	return DraftFeatures{
		FlaggedPatterns:  flagged,
		PlaceholderCount: len(placeholderPattern.FindAllString(draft, -1)),
		DraftLength:      len(draft),
	}
}
