package costs

import "fmt"

// Tracker is the usage ledger for one session. It is a value type:
// Add returns an updated copy, and checks never mutate it.
type Tracker struct {
	SessionID     string
	Model         string
	InputTokens   int
	OutputTokens  int
	ToolCalls     int
	EstimatedCost float64
}

// Limits holds per-session thresholds. A zero threshold still applies;
// use DefaultLimits for sensible values.
type Limits struct {
	MaxTokensPerSession    int
	MaxCostPerSession      float64
	MaxToolCallsPerSession int
}

// DefaultLimits returns the default per-session limits.
func DefaultLimits() Limits {
	return Limits{
		MaxTokensPerSession:    100000,
		MaxCostPerSession:      0.50,
		MaxToolCallsPerSession: 100,
	}
}

// modelRate holds approximate USD pricing per 1K tokens.
type modelRate struct {
	input  float64
	output float64
}

const defaultRateModel = "claude-haiku-4-5"

var modelRates = map[string]modelRate{
	"claude-haiku-4-5":  {input: 0.001, output: 0.005},
	"claude-sonnet-4-5": {input: 0.003, output: 0.015},
	"claude-opus-4-1":   {input: 0.015, output: 0.075},
}

// New creates a zeroed tracker for a session.
func New(sessionID, model string) Tracker {
	return Tracker{SessionID: sessionID, Model: model}
}

// Estimate computes the estimated cost for the tracker's cumulative
// token counts. Unknown models fall back to the default rate.
func Estimate(t Tracker) float64 {
	rate, ok := modelRates[t.Model]
	if !ok {
		rate = modelRates[defaultRateModel]
	}
	return (float64(t.InputTokens)*rate.input + float64(t.OutputTokens)*rate.output) / 1000
}

// Add returns a copy of the tracker with the counts incremented and the
// estimated cost recomputed.
func (t Tracker) Add(inputTokens, outputTokens, toolCalls int) Tracker {
	t.InputTokens += inputTokens
	t.OutputTokens += outputTokens
	t.ToolCalls += toolCalls
	t.EstimatedCost = Estimate(t)
	return t
}

// TotalTokens returns input plus output tokens.
func (t Tracker) TotalTokens() int {
	return t.InputTokens + t.OutputTokens
}

// CheckLimits evaluates the tracker against each threshold independently
// and returns one violation message per breached threshold.
func (t Tracker) CheckLimits(l Limits) (bool, []string) {
	var violations []string

	if t.TotalTokens() > l.MaxTokensPerSession {
		violations = append(violations, fmt.Sprintf("token limit exceeded: %d/%d", t.TotalTokens(), l.MaxTokensPerSession))
	}
	if t.EstimatedCost > l.MaxCostPerSession {
		violations = append(violations, fmt.Sprintf("cost limit exceeded: $%.4f/%.2f", t.EstimatedCost, l.MaxCostPerSession))
	}
	if t.ToolCalls > l.MaxToolCallsPerSession {
		violations = append(violations, fmt.Sprintf("tool call limit exceeded: %d/%d", t.ToolCalls, l.MaxToolCallsPerSession))
	}

	return len(violations) == 0, violations
}
