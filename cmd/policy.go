package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/protolab/crew/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the role policy table",
	Long: `Show which toolkits each role may use and which action kinds need
recorded approval first. The built-in table can be overridden per role
with a YAML file (config key: policy_file).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := getPolicyTable()
		if err != nil {
			return err
		}

		out := ui.Table([]string{"Role", "Toolkits", "Approval required"})
		for _, role := range policy.Roles() {
			p := table.Roles[role]
			actions := make([]string, 0, len(p.ApprovalRequired))
			for _, a := range p.ApprovalRequired {
				actions = append(actions, string(a))
			}
			out.Append([]string{
				string(role),
				joinOrDash(p.Toolkits),
				joinOrDash(actions),
			})
		}
		return out.Render()
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <role> <tool>",
	Short: "Check whether a role may call a tool without approval",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := getPolicyTable()
		if err != nil {
			return err
		}
		role := policy.Role(args[0])
		toolName := args[1]

		s, err := getStore()
		if err != nil {
			return err
		}
		isApproved := func(ctx context.Context, name string) bool {
			ok, _ := s.IsApproved(ctx, name)
			return ok
		}

		gk := policy.NewGatekeeper(table, role, isApproved)
		if err := gk.Check(cmd.Context(), toolName); err != nil {
			ui.Warning("%v", err)
			return nil
		}
		ui.Success("%s may call %s", role, toolName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
