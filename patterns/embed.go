// Package patterns provides embedded default recognizer definitions.
// The YAML file uses the Presidio-compatible recognizer format so pattern
// sets can be exchanged with Presidio-based deployments.
package patterns

import _ "embed"

//go:embed pii_default.yaml
var piiDefaultYAML []byte

// PIIDefaultYAML returns the embedded default PII recognizer definitions.
func PIIDefaultYAML() []byte { return piiDefaultYAML }
