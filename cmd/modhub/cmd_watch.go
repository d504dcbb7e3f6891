package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"modhub/internal/config"
	"modhub/internal/diagnostics"
	"modhub/internal/watch"
)

// watchCmd revalidates the catalog on every filesystem change until
// interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Revalidate the catalog whenever module files change",
	Long: `Watches the module list and every module folder. Each settled burst
of changes triggers one full validation run; the resulting traffic light
and counts are printed as they arrive. Stop with Ctrl+C.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadSettings(workspace)
	if err != nil {
		return err
	}

	watcher, err := watch.New(watch.Options{
		Root:     workspace,
		Settings: settings,
		Logger:   logger,
		OnReport: func(r *diagnostics.Report) {
			fmt.Printf("%s  %-6s  %d active / %d blocked  %d severe, %d medium, %d light  (%dms)\n",
				time.Now().Format("15:04:05"), r.Overall,
				r.ActiveCount, r.BlockedCount,
				r.SevereCount, r.MediumCount, r.LightCount, r.DurationMs)
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "%s  run failed: %v\n", time.Now().Format("15:04:05"), err)
		},
	})
	if err != nil {
		return err
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "watching for changes (Ctrl+C to stop)")

	<-ctx.Done()
	watcher.Stop()

	stats := watcher.GetStats()
	fmt.Fprintf(os.Stderr, "stopped after %d run(s), %d event(s)\n", stats.Runs, stats.Events)
	return nil
}
