package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modhub/internal/health"
)

var healthRepair bool

// healthCmd inspects the workspace skeleton and optionally rebuilds it.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the workspace skeleton, optionally repairing it",
	Long: `Compares the workspace against the required skeleton (modules/, the
.modhub state tree, modules.json and settings.yaml) and reports each
path's state.

With --self-repair missing paths are created and unusable permission bits
widened. Repair is idempotent: a second pass on a healthy workspace
changes nothing. Type conflicts (a file where a directory belongs) are
never fixed automatically.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthRepair, "self-repair", false, "Create missing paths and fix permission bits")
}

func runHealth(cmd *cobra.Command, args []string) error {
	report := health.Check(workspace, healthRepair)

	fmt.Println("modhub workspace health")
	fmt.Println("=======================")
	for _, item := range report.Items {
		fmt.Printf("%s %-24s %s%s\n", stateGlyph(item.State), item.Path, item.State, stateDetail(item))
	}
	fmt.Println()

	if report.Repair {
		fmt.Printf("Repaired:     %d\n", report.Repaired())
	}
	fmt.Printf("Still broken: %d\n", report.StillBroken())

	for _, f := range report.Findings {
		printFinding(f, "  ")
	}

	if n := report.StillBroken(); n > 0 {
		if !report.Repair {
			return fmt.Errorf("%d path(s) need attention; re-run with --self-repair", n)
		}
		return fmt.Errorf("%d path(s) could not be repaired", n)
	}
	return nil
}

func stateGlyph(s health.State) string {
	switch s {
	case health.StateOK, health.StateCreated, health.StateFixedPermissions:
		return "✓"
	case health.StateMissing:
		return "!"
	default:
		return "✗"
	}
}

func stateDetail(item health.ItemStatus) string {
	if item.Detail == "" {
		return ""
	}
	return " (" + item.Detail + ")"
}
