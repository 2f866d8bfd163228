package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/protolab/crew/internal/output"
	"github.com/protolab/crew/internal/pipeline"
	"github.com/protolab/crew/internal/policy"
)

var (
	runMode  string
	runModel string
	runUser  string
)

var runCmd = &cobra.Command{
	Use:   "run <idea>",
	Short: "Run the idea-to-prototype pipeline",
	Long: `Run the agent pipeline on a product idea.

Sequential mode (default) runs each specialist in order with gates
between phases: a failing QA report, an unhealthy deployment, a safety
finding in the launch note, or a breached cost limit stops the run and
pauses the session. Delegated mode hands the whole idea to the
orchestrator agent instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idea := strings.Join(args, " ")

		if dryRun {
			ui.DryRunMsg("would run %s pipeline for: %s", runMode, idea)
			return nil
		}

		o, err := getOrchestrator()
		if err != nil {
			return err
		}

		user := runUser
		if user == "" {
			user = viper.GetString("user_id")
		}
		model := runModel
		if model == "" {
			model = viper.GetString("anthropic.model")
		}

		ui.Info("running %s pipeline as %s", runMode, user)

		result, err := o.Run(cmd.Context(), pipeline.Request{
			Idea:   idea,
			UserID: user,
			Model:  model,
			Mode:   pipeline.Mode(runMode),
		})
		if err != nil {
			return err
		}

		printResult(result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runMode, "mode", "m", string(pipeline.ModeSequential), "Pipeline mode: sequential or delegated")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model to run the agents on (default from config)")
	runCmd.Flags().StringVarP(&runUser, "user", "u", "", "User the run acts as (default from config)")
}

func printResult(result *pipeline.Result) {
	switch result.Status {
	case pipeline.StatusOK:
		ui.Success("pipeline finished at the %s gate", output.GateColor(result.Gate))
	case pipeline.StatusBlocked:
		ui.Warning("pipeline blocked at the %s gate", output.GateColor(result.Gate))
	default:
		ui.Error("pipeline failed in the %s phase", result.Phase)
	}

	ui.Info("session: %s", output.Cyan(result.SessionID))

	for _, d := range result.Details {
		ui.Warning("%s", d)
	}

	if len(result.Outputs) > 0 {
		table := ui.Table([]string{"Role", "Output"})
		for _, role := range policy.Roles() {
			out, ok := result.Outputs[role]
			if !ok {
				continue
			}
			table.Append([]string{string(role), truncate(out, 80)})
		}
		_ = table.Render()
	}

	for _, step := range result.NextSteps {
		ui.Info("next: %s", step)
	}
}

// truncate shortens s to n characters for table cells, counting runes
// so a cut never splits a multibyte character.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
