// Package scan flags PII-like and secret-like patterns in text.
//
// The detection is a coarse heuristic: a clean result means "no match
// against the known patterns", not a certification that the text is
// free of sensitive data.
package scan

import "regexp"

// Finding kinds.
const (
	KindEmail      = "email"
	KindSecretHint = "secret_hint"
)

// Finding is one flagged pattern match.
type Finding struct {
	Kind    string `json:"kind"`
	Snippet string `json:"snippet"`
}

// Result holds the outcome of a scan. OK is true iff no findings.
type Result struct {
	OK       bool      `json:"ok"`
	Findings []Finding `json:"findings,omitempty"`
}

var (
	emailPattern      = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	secretHintPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)`)
)

// Text scans s for sensitive-looking content. It is pure: no state, no
// side effects.
func Text(s string) Result {
	var findings []Finding

	if m := emailPattern.FindString(s); m != "" {
		findings = append(findings, Finding{Kind: KindEmail, Snippet: m})
	}
	if secretHintPattern.MatchString(s) {
		findings = append(findings, Finding{Kind: KindSecretHint, Snippet: "...contains secret-like keyword..."})
	}

	return Result{OK: len(findings) == 0, Findings: findings}
}
