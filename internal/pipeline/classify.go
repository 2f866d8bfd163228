package pipeline

import "regexp"

// Classifier interprets agent output at the pipeline's gates. It is
// the single place where free-text output turns into control flow, so
// a structured implementation can replace the keyword one wholesale.
type Classifier interface {
	// QAPassed reports whether QA output indicates a green run.
	QAPassed(output string) bool
	// NeedsRollback reports whether deploy output asks for a rollback.
	NeedsRollback(output string) bool
	// Blocked reports whether output indicates a suspended run waiting
	// on a human, with the matched phrase as the reason.
	Blocked(output string) (bool, string)
}

var (
	qaPassRe   = regexp.MustCompile(`(?i)passed|green|success`)
	rollbackRe = regexp.MustCompile(`(?i)rollback|roll back|revert|unhealthy`)
	blockedRe  = regexp.MustCompile(`(?i)approval required|authorization pending|awaiting approval|blocked`)

	// Negated rollback mentions are stripped before matching, so a
	// healthy report saying "no rollback needed" does not read as a
	// rollback request.
	rollbackNegationRe = regexp.MustCompile(`(?i)no (?:rollback|roll back)(?: needed| required| necessary)?|(?:rollback|roll back) (?:is )?not (?:needed|required|necessary)|without (?:a )?(?:rollback|roll back)`)
)

// KeywordClassifier classifies by keyword match, mirroring how the
// specialist instructions tell agents to phrase their reports.
type KeywordClassifier struct{}

func (KeywordClassifier) QAPassed(output string) bool {
	return qaPassRe.MatchString(output)
}

func (KeywordClassifier) NeedsRollback(output string) bool {
	return rollbackRe.MatchString(rollbackNegationRe.ReplaceAllString(output, ""))
}

func (KeywordClassifier) Blocked(output string) (bool, string) {
	match := blockedRe.FindString(output)
	return match != "", match
}
