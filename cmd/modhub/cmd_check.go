package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modhub/cmd/modhub/ui"
	"modhub/internal/config"
	"modhub/internal/diagnostics"
	"modhub/internal/finding"
	"modhub/internal/health"
	"modhub/internal/history"
	"modhub/internal/registry"
)

var (
	checkJSON     bool
	checkNoHealth bool
	checkHistory  bool
)

// checkCmd runs the full validation pipeline once and prints the report.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the module catalog and print a diagnostic report",
	Long: `Runs the full validation pipeline over the declared module list:
manifest checks, entry path confinement, contract validation, cross-module
consistency rules, self-tests and a read-only workspace health pass.

The exit code is non-zero exactly when the run produced a severe finding
(or could not run at all), so check works as a pre-launch gate in scripts.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the full report as JSON")
	checkCmd.Flags().BoolVar(&checkNoHealth, "no-health", false, "Skip the workspace skeleton pass")
	checkCmd.Flags().BoolVar(&checkHistory, "history", false, "Record this run in the history store even when history is disabled")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	settings, err := config.LoadSettings(workspace)
	if err != nil {
		return err
	}

	pipeline, err := diagnostics.New(diagnostics.Options{
		Root:           workspace,
		ModuleListPath: listPath,
		Settings:       settings,
		SkipHealth:     checkNoHealth,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	recordRun(settings, report)

	if checkJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		renderReport(report)
	}

	if report.HasSevere() {
		return fmt.Errorf("catalog is red: %d severe finding(s)", report.SevereCount)
	}
	return nil
}

// recordRun appends a summary row when history is on. Recording is
// best-effort; a broken history store must never fail the check itself.
func recordRun(settings *config.Settings, report *diagnostics.Report) {
	if !settings.History.Enabled && !checkHistory {
		return
	}
	store, err := history.Open(config.ResolvePath(workspace, settings.History.Path))
	if err != nil {
		logger.Warn("history store unavailable", zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Record(report); err != nil {
		logger.Warn("history record failed", zap.Error(err))
	}
}

func renderReport(report *diagnostics.Report) {
	fmt.Println("modhub diagnostics")
	fmt.Println("==================")
	fmt.Printf("Overall:  %s (%d severe, %d medium, %d light)\n",
		report.Overall, report.SevereCount, report.MediumCount, report.LightCount)
	fmt.Printf("Modules:  %d active, %d blocked\n", report.ActiveCount, report.BlockedCount)
	fmt.Printf("Duration: %dms\n", report.DurationMs)
	fmt.Println()

	if len(report.ConfigFindings) > 0 {
		fmt.Println("Module list:")
		for _, f := range report.ConfigFindings {
			printFinding(f, "  ")
		}
		fmt.Println()
	}

	for _, e := range report.Entries {
		fmt.Printf("%s %-16s %-8s %s%s\n",
			statusGlyph(e), e.ID(), entryVersion(e), e.Status, selfTestNote(e))
		for _, f := range e.Findings {
			printFinding(f, "    ")
		}
	}
	if len(report.Entries) == 0 {
		fmt.Println("(module list is empty)")
	}

	if report.Health != nil {
		fmt.Println()
		renderHealthSummary(report.Health)
	}
}

// severityStyles tint the severity tag; lipgloss degrades to plain text
// on non-TTY output.
var severityStyles = map[finding.Severity]lipgloss.Style{
	finding.SeveritySevere: lipgloss.NewStyle().Foreground(ui.Red).Bold(true),
	finding.SeverityMedium: lipgloss.NewStyle().Foreground(ui.Yellow),
	finding.SeverityLight:  lipgloss.NewStyle().Faint(true),
}

func severityTag(s finding.Severity) string {
	tag := "[" + string(s) + "]"
	if style, ok := severityStyles[s]; ok {
		return style.Render(tag)
	}
	return tag
}

func printFinding(f finding.Finding, indent string) {
	fmt.Printf("%s%s %s: %s\n", indent, severityTag(f.Severity), f.Kind, f.Message)
	if f.Suggestion != "" {
		fmt.Printf("%s  fix: %s\n", indent, f.Suggestion)
	}
}

func statusGlyph(e *registry.Entry) string {
	if !e.Config.Enabled {
		return "○"
	}
	if e.Status == registry.StatusActive {
		return "✓"
	}
	return "✗"
}

func entryVersion(e *registry.Entry) string {
	if e.Manifest == nil || e.Manifest.Version == "" {
		return "-"
	}
	return e.Manifest.Version
}

func selfTestNote(e *registry.Entry) string {
	st := e.SelfTest
	if st == nil || !st.Ran {
		return ""
	}
	if st.OK {
		return fmt.Sprintf("  self-test ok (%dms)", st.DurationMs)
	}
	return fmt.Sprintf("  self-test failed (%dms)", st.DurationMs)
}

func renderHealthSummary(h *health.Report) {
	fmt.Println("Workspace:")
	if h.StillBroken() == 0 && len(h.MissingPaths) == 0 {
		fmt.Printf("  ✓ all %d required paths present\n", len(h.Items))
		return
	}
	if len(h.MissingPaths) > 0 {
		fmt.Printf("  ✗ missing: %s\n", strings.Join(h.MissingPaths, ", "))
	}
	for _, item := range h.Items {
		if item.State == health.StateBroken {
			fmt.Printf("  ✗ %s: %s\n", item.Path, item.Detail)
		}
	}
	fmt.Println("  run \"modhub health --self-repair\" to rebuild the skeleton")
}
