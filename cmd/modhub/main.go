// Package main provides the modhub CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"modhub/internal/config"
)

var (
	// Global flags
	verbose   bool
	workspace string
	listPath  string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "modhub",
	Short: "modhub - personal module launcher with a validation pipeline",
	Long: `modhub is a personal productivity launcher for small Go modules.

Every module lives in its own folder under modules/ with a manifest.json
and an entry file interpreted at runtime. Before anything is launched the
hub validates the whole catalog: manifests, path confinement, the module
contract, cross-module consistency and per-module self-tests. The result
is a traffic-light report; only modules with zero severe findings are
eligible to run.

Run without arguments to start the interactive launcher.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "modhub" && cmd.CalledAs() == "modhub" {
			return nil
		}

		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if settings, err := config.LoadSettings(workspace); err == nil {
			if lvl, lerr := zapcore.ParseLevel(settings.Logging.Level); lerr == nil {
				cfg.Level = zap.NewAtomicLevelAt(lvl)
			}
			// Mirror logs into the workspace sink when its folder exists;
			// a fresh checkout before self-repair has no .modhub/logs yet.
			if settings.Logging.File != "" {
				sink := config.ResolvePath(workspace, settings.Logging.File)
				if info, serr := os.Stat(filepath.Dir(sink)); serr == nil && info.IsDir() {
					cfg.OutputPaths = append(cfg.OutputPaths, sink)
				}
			}
		}
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}

		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch the interactive module picker
		return runLauncher()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory")
	rootCmd.PersistentFlags().StringVar(&listPath, "config", "", "Module list file (default: modules.json in the workspace)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(launchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
