package detector

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/Harshalzarikar/Beaver-agent/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// Pattern is a compiled, ready-to-use detection pattern.
type Pattern struct {
	Name         string
	Kind         Kind
	Pattern      *regexp.Regexp
	Score        float64
	ContextWords []string
	ValidateIBAN bool
	ValidateLuhn bool
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// DefaultRecognizers returns the built-in PII recognizers parsed from the
// embedded YAML file. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIDefaultYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing override file as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers performs a layered merge: defaults first, then overrides.
// Later layers replace earlier ones by matching on the recognizer Name field.
// New recognizers are appended.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

// toPtrSlice converts []RecognizerConfig to []*RecognizerConfig for MergeRecognizers.
func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// FilterByKinds applies enabled/disabled entity filters to a recognizer list.
// If enabledKinds is non-empty, only recognizers with matching
// supported_entity are kept (whitelist). Then any recognizer in disabledKinds
// is removed (blacklist).
func FilterByKinds(recognizers []RecognizerConfig, enabledKinds, disabledKinds []string) []RecognizerConfig {
	result := recognizers

	if len(enabledKinds) > 0 {
		allowed := make(map[string]bool, len(enabledKinds))
		for _, e := range enabledKinds {
			allowed[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledKinds) > 0 {
		blocked := make(map[string]bool, len(disabledKinds))
		for _, e := range disabledKinds {
			blocked[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// CompilePatterns converts a list of recognizer configs into the compiled
// []Pattern slice used by the detector at runtime. Disabled recognizers are
// skipped. Each regex pattern in a recognizer produces one Pattern entry.
// Structural validation gates follow from the entity kind: IBAN_CODE gets
// the MOD-97 checksum gate, CREDIT_CARD the Luhn gate.
func CompilePatterns(recognizers []RecognizerConfig) ([]Pattern, error) {
	var compiled []Pattern

	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		kind := Kind(rec.SupportedEntity)
		contextWords := englishContext(rec.SupportedLanguages)
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			compiled = append(compiled, Pattern{
				Name:         p.Name,
				Kind:         kind,
				Pattern:      re,
				Score:        p.Score,
				ContextWords: contextWords,
				ValidateIBAN: kind == KindIBAN,
				ValidateLuhn: kind == KindCreditCard,
			})
		}
	}

	return compiled, nil
}

func englishContext(langs []LanguageContext) []string {
	for _, l := range langs {
		if l.Language == "en" {
			return l.Context
		}
	}
	return nil
}
