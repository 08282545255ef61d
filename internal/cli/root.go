// Package cli provides the command-line interface for glyphcore.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/glyphcore/internal/cli/commands"
	"github.com/leapstack-labs/glyphcore/internal/cli/output"
	"github.com/leapstack-labs/glyphcore/internal/config"
	"github.com/leapstack-labs/glyphcore/internal/logging"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "glyphcore",
		Short: "glyphcore - recursive state engine",
		Long: `glyphcore drives recursive state engines: contractive updates with bounded
noise, attractor detection over each engine's tension history, convergence
checks and identity glyphs that fingerprint every stabilization episode.

Engines can run alone (simulate, observe) or as nodes of a coupled propagation graph
(graph). Glyphs can be persisted to SQLite and searched by spectral distance.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			if cfg.FileUsed != "" {
				logger.Debug("using config file", "path", cfg.FileUsed)
			}

			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.OutputMode(cfg.Output))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(commands.WithRuntime(ctx, &commands.Runtime{
				Config:   cfg,
				Logger:   logger,
				Renderer: renderer,
			}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built ` + BuildDate + ` (` + GitCommit + `)
`)

	// Global persistent flags. Names map to config keys in config.Load.
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./glyphcore.yaml, searched upwards)")
	pf.Int("dimension", config.DefaultDimension, "State vector dimension")
	pf.Float64("epsilon", config.DefaultEpsilonThreshold, "Convergence threshold on mean window tension")
	pf.Float64("noise-variance", config.DefaultNoiseVariance, "Variance of the per-component update noise")
	pf.Float64("contraction-ratio", config.DefaultContractionRatio, "Lipschitz bound of the recursive map, in (0,1)")
	pf.Int("history-size", config.DefaultHistorySize, "Tension samples kept per engine")
	pf.Int("window", config.DefaultConvergenceWindow, "Convergence window length")
	pf.Int("glyph-components", config.DefaultGlyphComponents, "Spectral coefficients per glyph")
	pf.Uint64("seed", 0, "Engine noise seed")
	pf.Int("recluster-every", 0, "Steps between attractor re-clustering passes")
	pf.String("glyph-signal", config.DefaultGlyphSignal, "Glyph signal (tension|state_norm)")
	pf.Int("parallelism", 0, "Concurrent node updates per graph round (0 = GOMAXPROCS)")
	pf.String("store", config.DefaultStorePath, "Path to the glyph store (:memory: for none)")
	pf.Int("retention", 0, "Newest glyphs kept in the store (0 = all)")
	pf.String("log-level", config.DefaultLogLevel, "Log level (debug|info|warn|error)")
	pf.String("log-format", config.DefaultLogFormat, "Log format (text|json)")
	pf.StringP("output", "o", "", "Output format (auto|table|json|yaml)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("glyph-signal", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"tension", "state_norm"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewSimulateCommand())
	rootCmd.AddCommand(commands.NewGraphCommand())
	rootCmd.AddCommand(commands.NewObserveCommand())
	rootCmd.AddCommand(commands.NewGlyphsCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for glyphcore.

To load completions:

Bash:
  $ source <(glyphcore completion bash)

Zsh:
  $ glyphcore completion zsh > "${fpath[1]}/_glyphcore"

Fish:
  $ glyphcore completion fish | source

PowerShell:
  PS> glyphcore completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
