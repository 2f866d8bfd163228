package cmd

import (
	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <tool>",
	Short: "Record a human approval for a gated tool",
	Long: `Record an approval for a tool whose action kind is gated by the role
policy. A blocked pipeline run can then be re-run and the gated call
will pass.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolName := args[0]

		if dryRun {
			ui.DryRunMsg("would record approval for %s", toolName)
			return nil
		}

		s, err := getStore()
		if err != nil {
			return err
		}
		if err := s.RecordApproval(cmd.Context(), toolName); err != nil {
			return err
		}
		ui.Success("approval recorded for %s", toolName)
		return nil
	},
}

var approveCheckCmd = &cobra.Command{
	Use:   "check <tool>",
	Short: "Check whether a tool has a recorded approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		ok, err := s.IsApproved(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ok {
			ui.Success("%s is approved", args[0])
		} else {
			ui.Info("%s has no recorded approval", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.AddCommand(approveCheckCmd)
}
