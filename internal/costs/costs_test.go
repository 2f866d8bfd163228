package costs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Zeroed(t *testing.T) {
	tr := New("session-1", "claude-haiku-4-5")

	assert.Equal(t, "session-1", tr.SessionID)
	assert.Equal(t, 0, tr.InputTokens)
	assert.Equal(t, 0, tr.OutputTokens)
	assert.Equal(t, 0, tr.ToolCalls)
	assert.Equal(t, 0.0, tr.EstimatedCost)
}

func TestAdd_Additive(t *testing.T) {
	tr := New("session-1", "claude-haiku-4-5")

	tr = tr.Add(1000, 500, 2)
	tr = tr.Add(2000, 1500, 3)

	assert.Equal(t, 3000, tr.InputTokens)
	assert.Equal(t, 2000, tr.OutputTokens)
	assert.Equal(t, 5, tr.ToolCalls)

	// Cost after N updates equals the rate function on cumulative counts.
	want := Estimate(Tracker{Model: "claude-haiku-4-5", InputTokens: 3000, OutputTokens: 2000})
	assert.InDelta(t, want, tr.EstimatedCost, 1e-12)
}

func TestAdd_OrderIndependent(t *testing.T) {
	a := New("s", "claude-sonnet-4-5").Add(100, 50, 1).Add(900, 450, 4)
	b := New("s", "claude-sonnet-4-5").Add(900, 450, 4).Add(100, 50, 1)

	assert.Equal(t, a.EstimatedCost, b.EstimatedCost)
	assert.Equal(t, a.TotalTokens(), b.TotalTokens())
}

func TestEstimate_UnknownModelFallsBack(t *testing.T) {
	known := Tracker{Model: defaultRateModel, InputTokens: 1000, OutputTokens: 1000}
	unknown := Tracker{Model: "some-future-model", InputTokens: 1000, OutputTokens: 1000}

	assert.Equal(t, Estimate(known), Estimate(unknown))
}

func TestCheckLimits_OnlyTokensBreached(t *testing.T) {
	tr := Tracker{Model: "claude-haiku-4-5", InputTokens: 100001}
	tr.EstimatedCost = Estimate(tr)

	ok, violations := tr.CheckLimits(DefaultLimits())

	assert.False(t, ok)
	assert.Len(t, violations, 1)
	assert.Contains(t, violations[0], "token limit")
}

func TestCheckLimits_AllWithinBounds(t *testing.T) {
	tr := New("s", "claude-haiku-4-5").Add(100, 100, 1)

	ok, violations := tr.CheckLimits(DefaultLimits())

	assert.True(t, ok)
	assert.Empty(t, violations)
}

func TestCheckLimits_MultipleViolations(t *testing.T) {
	tr := Tracker{Model: "claude-opus-4-1", InputTokens: 200000, OutputTokens: 100000, ToolCalls: 500}
	tr.EstimatedCost = Estimate(tr)

	ok, violations := tr.CheckLimits(DefaultLimits())

	assert.False(t, ok)
	assert.Len(t, violations, 3)
}

func TestCheckLimits_DoesNotMutate(t *testing.T) {
	tr := New("s", "claude-haiku-4-5").Add(10, 10, 1)
	before := tr

	_, _ = tr.CheckLimits(DefaultLimits())

	assert.Equal(t, before, tr)
}
