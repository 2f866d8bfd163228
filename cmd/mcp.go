package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/protolab/crew/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent host integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP hosts run pipelines and query sessions, policies, and
approvals natively. Configure with:

  {
    "mcpServers": {
      "crew": { "command": "crew", "args": ["mcp"] }
    }
  }

Available tools: crew_run_pipeline, crew_list_sessions,
crew_session_status, crew_check_policy, crew_record_approval,
crew_scan_text`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		table, err := getPolicyTable()
		if err != nil {
			return err
		}

		var runner mcp.Runner
		if viper.GetString("anthropic.api_key") != "" || os.Getenv("ANTHROPIC_API_KEY") != "" {
			orch, err := getOrchestrator()
			if err != nil {
				return err
			}
			runner = orch
		}

		return mcp.NewServer(s, table, runner).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
