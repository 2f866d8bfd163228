package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/protolab/crew/internal/agents"
	"github.com/protolab/crew/internal/costs"
	"github.com/protolab/crew/internal/llm"
	"github.com/protolab/crew/internal/output"
	"github.com/protolab/crew/internal/pipeline"
	"github.com/protolab/crew/internal/policy"
	"github.com/protolab/crew/internal/resilience"
	"github.com/protolab/crew/internal/sessions"
	"github.com/protolab/crew/internal/store"
	"github.com/protolab/crew/internal/tools"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "Crew - orchestrate a team of AI agents from idea to prototype",
	Long: `crew runs a pipeline of specialized AI agents (researcher, architect,
coder, QA, publisher, marketer) that take a product idea to a working
prototype. Role policies gate destructive tool calls behind human
approval, and every session's runs, costs, and artifacts are recorded.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/crew/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CREW")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	cfgDir, _ := configDirFunc()

	viper.SetDefault("state_dir", cfgDir)
	viper.SetDefault("store", "sqlite")
	viper.SetDefault("db_path", filepath.Join(cfgDir, "crew.db"))
	viper.SetDefault("user_id", "default")
	viper.SetDefault("policy_file", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5")
	viper.SetDefault("limits.max_tokens", 100000)
	viper.SetDefault("limits.max_cost", 0.50)
	viper.SetDefault("limits.max_tool_calls", 100)
	viper.SetDefault("retry.max_retries", 3)
	viper.SetDefault("retry.base_delay_ms", 1000)
	viper.SetDefault("retry.max_delay_ms", 10000)
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.reset_timeout_ms", 30000)
	viper.SetDefault("tools.max_per_toolkit", 25)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
}

// getStore returns the shared store, initializing it on first call.
// store: sqlite (default) or memory.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	switch viper.GetString("store") {
	case "memory":
		dataStore = store.NewMemoryStore()
		return dataStore, nil
	case "sqlite", "":
	default:
		return nil, fmt.Errorf("unknown store type: %s", viper.GetString("store"))
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getPolicyTable loads the role policy table, applying the configured
// YAML override file on top of the defaults.
func getPolicyTable() (policy.Table, error) {
	path := viper.GetString("policy_file")
	if path == "" {
		return policy.Default(), nil
	}
	return policy.Load(path)
}

// getProvider builds the MCP tool provider from the configured toolkit
// servers. Toolkits are configured as:
//
//	toolkits:
//	  github:
//	    command: github-mcp-server
//	    args: ["stdio"]
func getProvider() tools.Provider {
	servers := make(map[string]tools.ServerSpec)
	for name := range viper.GetStringMap("toolkits") {
		servers[name] = tools.ServerSpec{
			Command: viper.GetString("toolkits." + name + ".command"),
			Args:    viper.GetStringSlice("toolkits." + name + ".args"),
			Env:     viper.GetStringSlice("toolkits." + name + ".env"),
		}
	}
	return tools.NewMCPProvider(servers)
}

// getLimits reads the per-session cost limits from config.
func getLimits() costs.Limits {
	return costs.Limits{
		MaxTokensPerSession:    viper.GetInt("limits.max_tokens"),
		MaxCostPerSession:      viper.GetFloat64("limits.max_cost"),
		MaxToolCallsPerSession: viper.GetInt("limits.max_tool_calls"),
	}
}

// newInvoker composes the retry and circuit-breaker layers around the
// runtime. The breaker is created per invoker, so each pipeline host
// gets its own failure isolation.
func newInvoker(runtime llm.Runtime) pipeline.Invoker {
	retryCfg := resilience.RetryConfig{
		MaxRetries:        viper.GetInt("retry.max_retries"),
		BaseDelay:         time.Duration(viper.GetInt("retry.base_delay_ms")) * time.Millisecond,
		MaxDelay:          time.Duration(viper.GetInt("retry.max_delay_ms")) * time.Millisecond,
		BackoffMultiplier: viper.GetFloat64("retry.multiplier"),
	}
	breaker := resilience.NewCircuitBreaker(
		viper.GetInt("breaker.failure_threshold"),
		time.Duration(viper.GetInt("breaker.reset_timeout_ms"))*time.Millisecond,
	)

	return func(ctx context.Context, agent *llm.Agent, input string) (*llm.Result, error) {
		res := resilience.DoSmart(ctx, retryCfg, func(ctx context.Context) (*llm.Result, error) {
			return resilience.Execute(ctx, breaker, func(ctx context.Context) (*llm.Result, error) {
				return runtime.Invoke(ctx, agent, input)
			})
		})
		if !res.Success {
			return nil, res.Err
		}
		return res.Value, nil
	}
}

// getOrchestrator wires the full pipeline: store, sessions, agent
// factory, Anthropic runtime, and the resilience-wrapped invoker.
func getOrchestrator() (*pipeline.Orchestrator, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	table, err := getPolicyTable()
	if err != nil {
		return nil, err
	}

	isApproved := func(ctx context.Context, toolName string) bool {
		ok, _ := s.IsApproved(ctx, toolName)
		return ok
	}

	factory := agents.NewFactory(
		getProvider(),
		table,
		s,
		isApproved,
		viper.GetString("anthropic.model"),
		viper.GetInt("tools.max_per_toolkit"),
	)

	runtime := llm.NewAnthropicRuntime(viper.GetString("anthropic.api_key"))

	return pipeline.New(
		s,
		sessions.NewManager(s),
		factory,
		runtime,
		pipeline.WithInvoker(newInvoker(runtime)),
		pipeline.WithLimits(getLimits()),
	), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "crew %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}
