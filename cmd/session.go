package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/protolab/crew/internal/output"
	"github.com/protolab/crew/internal/sessions"
)

var sessionUser string

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"sessions"},
	Short:   "Inspect and manage orchestration sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun(cmd)
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun(cmd)
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's summary, transcript, and runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(cmd, args[0])
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Mark a session completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		sm := sessions.NewManager(s)
		if err := sm.CloseSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		ui.Success("session %s closed", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionCloseCmd)

	sessionCmd.PersistentFlags().StringVarP(&sessionUser, "user", "u", "", "Filter by owning user")
}

func sessionListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	sm := sessions.NewManager(s)

	ctx := cmd.Context()
	all, err := s.ListSessions(ctx)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"ID", "Project", "Phase", "Status", "Tokens", "Cost"})
	shown := 0
	for _, sess := range all {
		if sessionUser != "" && sess.UserID != sessionUser {
			continue
		}
		summary, err := sm.GetSessionSummary(ctx, sess.ID)
		if err != nil {
			continue
		}
		table.Append([]string{
			summary.ID,
			summary.ProjectName,
			summary.CurrentPhase,
			output.StatusColor(summary.Status),
			strconv.Itoa(summary.TotalTokens),
			fmt.Sprintf("$%.4f", summary.Cost),
		})
		shown++
	}
	if shown == 0 {
		ui.Info("no sessions found")
		return nil
	}
	return table.Render()
}

func sessionShowRun(cmd *cobra.Command, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	sm := sessions.NewManager(s)
	ctx := cmd.Context()

	summary, err := sm.GetSessionSummary(ctx, id)
	if err != nil {
		return err
	}

	ui.Info("session %s (%s)", output.Cyan(summary.ID), summary.ProjectName)
	ui.Info("phase %s, status %s", summary.CurrentPhase, output.StatusColor(summary.Status))
	ui.Info("%d tokens, %d tool calls, $%.4f estimated", summary.TotalTokens, summary.ToolCalls, summary.Cost)
	ui.Info("%d artifacts, %d transcript entries, %ds elapsed", summary.ArtifactCount, summary.TranscriptLength, summary.DurationSeconds)

	runs, err := s.ListRuns(ctx, id)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		table := ui.Table([]string{"Run", "Role", "Status", "Tokens", "Error"})
		for _, r := range runs {
			table.Append([]string{
				r.ID,
				r.Role,
				output.StatusColor(string(r.Status)),
				strconv.Itoa(r.CostTokens),
				truncate(r.Error, 40),
			})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	handoffs, err := s.ListHandoffs(ctx, id)
	if err != nil {
		return err
	}
	for _, h := range handoffs {
		ui.Info("handoff %s -> %s (%s)", h.From, h.To, h.Reason)
	}

	sess, err := sm.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, line := range sess.Transcript {
		ui.VerboseLog("%s", line)
	}
	return nil
}
