package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"modhub/internal/config"
	"modhub/internal/diagnostics"
)

// modulesCmd lists the catalog with each module's post-validation status.
var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List declared modules and their validation status",
	RunE:  runModules,
}

// buildReport runs the pipeline for commands that need the module table
// but not the workspace skeleton pass.
func buildReport(ctx context.Context) (*diagnostics.Report, error) {
	settings, err := config.LoadSettings(workspace)
	if err != nil {
		return nil, err
	}
	pipeline, err := diagnostics.New(diagnostics.Options{
		Root:           workspace,
		ModuleListPath: listPath,
		Settings:       settings,
		SkipHealth:     true,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx)
}

func runModules(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	report, err := buildReport(ctx)
	if err != nil {
		return err
	}

	if len(report.Entries) == 0 {
		fmt.Println("No modules declared. Add entries to modules.json.")
		return nil
	}

	for _, e := range report.Entries {
		desc := e.Config.Description
		if desc == "" && e.Manifest != nil {
			desc = e.Manifest.Description
		}
		fmt.Printf("%s %-16s %-8s %-8s %-18s %2d finding(s)  %s\n",
			statusGlyph(e), e.ID(), entryVersion(e), e.Status, e.Stage, len(e.Findings), desc)
	}
	fmt.Printf("\n%d active, %d blocked of %d declared\n",
		report.ActiveCount, report.BlockedCount, len(report.Entries))
	return nil
}
