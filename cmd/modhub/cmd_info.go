package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"modhub/internal/registry"
)

// infoCmd shows one module's full diagnostic detail.
var infoCmd = &cobra.Command{
	Use:   "info [module-id]",
	Short: "Show one module's manifest, findings and self-test outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	report, err := buildReport(ctx)
	if err != nil {
		return err
	}

	var entry *registry.Entry
	for _, e := range report.Entries {
		if e.ID() == args[0] {
			entry = e
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("no module %q in the catalog", args[0])
	}

	md := moduleMarkdown(entry)
	if readme, rerr := os.ReadFile(filepath.Join(entry.Dir, "README.md")); rerr == nil {
		md += "\n---\n\n" + string(readme)
	}
	if renderer, rerr := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	); rerr == nil {
		if rendered, rerr := renderer.Render(md); rerr == nil {
			md = rendered
		}
	}
	fmt.Print(md)
	return nil
}

func moduleMarkdown(e *registry.Entry) string {
	var b strings.Builder

	name := e.Config.Name
	if name == "" && e.Manifest != nil {
		name = e.Manifest.Name
	}
	if name == "" {
		name = e.ID()
	}
	fmt.Fprintf(&b, "# %s (`%s`)\n\n", name, e.ID())

	desc := e.Config.Description
	if desc == "" && e.Manifest != nil {
		desc = e.Manifest.Description
	}
	if desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}

	fmt.Fprintf(&b, "- **Status:** %s\n", e.Status)
	fmt.Fprintf(&b, "- **Stage:** %s\n", e.Stage)
	fmt.Fprintf(&b, "- **Enabled:** %v\n", e.Config.Enabled)
	fmt.Fprintf(&b, "- **Folder:** %s\n", e.Dir)
	if e.Manifest != nil {
		fmt.Fprintf(&b, "- **Version:** %s\n", e.Manifest.Version)
		fmt.Fprintf(&b, "- **Entry:** %s\n", e.Manifest.Entry)
		if len(e.Manifest.Permissions) > 0 {
			fmt.Fprintf(&b, "- **Permissions:** %s\n", strings.Join(e.Manifest.Permissions, ", "))
		}
		if e.Manifest.Requires != "" {
			fmt.Fprintf(&b, "- **Requires host:** %s\n", e.Manifest.Requires)
		}
	}
	b.WriteString("\n")

	if len(e.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for _, f := range e.Findings {
			fmt.Fprintf(&b, "- **[%s]** %s: %s\n", f.Severity, f.Kind, f.Message)
			if f.Suggestion != "" {
				fmt.Fprintf(&b, "  - fix: %s\n", f.Suggestion)
			}
		}
		b.WriteString("\n")
	}

	if st := e.SelfTest; st != nil && st.Ran {
		b.WriteString("## Self-test\n\n")
		switch {
		case st.OK && st.Message != "":
			fmt.Fprintf(&b, "Passed in %dms with a warning: %s\n", st.DurationMs, st.Message)
		case st.OK:
			fmt.Fprintf(&b, "Passed in %dms.\n", st.DurationMs)
		case st.Error != "":
			fmt.Fprintf(&b, "Failed in %dms: %s\n", st.DurationMs, st.Error)
		default:
			fmt.Fprintf(&b, "Failed in %dms: %s\n", st.DurationMs, st.Message)
		}
	}

	return b.String()
}
