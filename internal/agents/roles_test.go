package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/protolab/crew/internal/policy"
)

func TestAgentName(t *testing.T) {
	assert.Equal(t, "Orchestrator", AgentName(policy.RoleOrchestrator))
	assert.Equal(t, "QA", AgentName(policy.RoleQA))
	assert.Equal(t, "Marketer", AgentName(policy.RoleMarketer))

	// Unknown roles fall back to the raw role string.
	assert.Equal(t, "stranger", AgentName(policy.Role("stranger")))
}

func TestInstructions_EveryRoleHasPrompt(t *testing.T) {
	for _, role := range policy.Roles() {
		assert.NotEmpty(t, Instructions(role), "role %s", role)
	}
}

func TestInstructions_GateContracts(t *testing.T) {
	// The QA prompt pins the success keyword the pipeline gate looks for.
	qa := Instructions(policy.RoleQA)
	assert.Contains(t, qa, `"passed"`)
	assert.Contains(t, qa, "green")

	// The publisher reports rollback needs rather than acting on them.
	pub := Instructions(policy.RolePublisher)
	assert.Contains(t, pub, "rollback")
	assert.Contains(t, pub, "unhealthy")

	// The marketer prompt forbids the content the safety scan flags.
	mkt := Instructions(policy.RoleMarketer)
	assert.Contains(t, mkt, "personal data")
	assert.Contains(t, mkt, "credentials")
}

func TestInstructions_OrchestratorDelegates(t *testing.T) {
	orch := Instructions(policy.RoleOrchestrator)
	assert.Contains(t, orch, "delegate")
	assert.Contains(t, orch, "Escalate")
}
