package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_AllRolesPresent(t *testing.T) {
	table := Default()

	for _, role := range Roles() {
		_, ok := table.Roles[role]
		assert.True(t, ok, "role %s missing from default table", role)
	}
}

func TestDefault_ArchitectHasNoToolkits(t *testing.T) {
	table := Default()

	assert.Empty(t, table.Toolkits(RoleArchitect))
	assert.Empty(t, table.Gated(RoleArchitect))
}

func TestDefault_CoderGatesDeleteAndRevoke(t *testing.T) {
	table := Default()

	assert.Equal(t, []string{"github"}, table.Toolkits(RoleCoder))
	assert.ElementsMatch(t, []Action{ActionDelete, ActionRevoke}, table.Gated(RoleCoder))
}

func TestMatchesAction(t *testing.T) {
	tests := []struct {
		tool   string
		action Action
		want   bool
	}{
		{"delete_repository", ActionDelete, true},
		{"Github_RemoveCollaborator", ActionDelete, true},
		{"create_repository", ActionDelete, false},
		{"rollback_deployment", ActionRollback, true},
		{"revert_commit", ActionRollback, true},
		{"revoke_access_token", ActionRevoke, true},
		{"disconnect_integration", ActionRevoke, true},
		{"post_to_channel", ActionExternalPost, true},
		{"publish_release", ActionExternalPost, true},
		{"send_email", ActionExternalPost, true},
		{"list_repositories", ActionExternalPost, false},
	}

	for _, tt := range tests {
		t.Run(tt.tool+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesAction(tt.tool, tt.action))
		})
	}
}

func TestLoad_OverridesSingleRole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := `roles:
  coder:
    toolkits: [github, gitlab]
    approval_required: [delete]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"github", "gitlab"}, table.Toolkits(RoleCoder))
	assert.Equal(t, []Action{ActionDelete}, table.Gated(RoleCoder))

	// Other roles keep defaults.
	assert.Equal(t, []string{"google"}, table.Toolkits(RoleResearcher))
}

func TestLoad_UnknownRoleRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  wizard:\n    toolkits: [magic]\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown role")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
