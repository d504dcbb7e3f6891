// This file implements the interactive launcher using bubbletea.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"modhub/cmd/modhub/ui"
	"modhub/internal/config"
	"modhub/internal/diagnostics"
	"modhub/internal/registry"
	"modhub/internal/sandbox"
	"modhub/internal/version"
)

// launchCmd starts the interactive launcher explicitly; bare "modhub"
// does the same.
var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start the interactive module launcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLauncher()
	},
}

// Messages for tea updates
type (
	reportMsg    *diagnostics.Report
	reportErrMsg error
	runDoneMsg   struct {
		id     string
		output string
		err    error
	}
)

// launcherModel is the main model for the interactive launcher
type launcherModel struct {
	// UI components
	viewport viewport.Model
	spinner  spinner.Model
	styles   ui.Styles
	renderer *glamour.TermRenderer

	// State
	report   *diagnostics.Report
	cursor   int
	checking bool
	invoking bool
	lastRun  map[string]string
	err      error
	width    int
	height   int
	ready    bool
}

// initLauncher initializes the interactive launcher model
func initLauncher() launcherModel {
	styles := ui.DefaultStyles()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	return launcherModel{
		viewport: vp,
		spinner:  sp,
		styles:   styles,
		renderer: renderer,
		checking: true,
		lastRun:  map[string]string{},
	}
}

func (m launcherModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		runDiagnosticsCmd,
	)
}

// runDiagnosticsCmd executes one full validation pass off the UI thread.
func runDiagnosticsCmd() tea.Msg {
	settings, err := config.LoadSettings(workspace)
	if err != nil {
		return reportErrMsg(err)
	}
	pipeline, err := diagnostics.New(diagnostics.Options{
		Root:           workspace,
		ModuleListPath: listPath,
		Settings:       settings,
	})
	if err != nil {
		return reportErrMsg(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := pipeline.Run(ctx)
	if err != nil {
		return reportErrMsg(err)
	}
	return reportMsg(report)
}

func (m launcherModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.refreshDetail()
			}
			return m, nil

		case "down", "j":
			if m.report != nil && m.cursor < len(m.report.Entries)-1 {
				m.cursor++
				m.refreshDetail()
			}
			return m, nil

		case "r":
			if !m.checking && !m.invoking {
				m.checking = true
				return m, tea.Batch(m.spinner.Tick, runDiagnosticsCmd)
			}
			return m, nil

		case "enter":
			entry := m.selected()
			if entry == nil || m.checking || m.invoking {
				return m, nil
			}
			if entry.Status != registry.StatusActive {
				m.lastRun[entry.ID()] = "module is blocked; fix its findings first"
				m.refreshDetail()
				return m, nil
			}
			m.invoking = true
			return m, tea.Batch(m.spinner.Tick, invokeModuleCmd(entry))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		return m, nil

	case reportMsg:
		m.report = (*diagnostics.Report)(msg)
		m.checking = false
		m.err = nil
		if n := len(m.report.Entries); m.cursor >= n && n > 0 {
			m.cursor = n - 1
		}
		m.resize()
		m.refreshDetail()
		return m, nil

	case reportErrMsg:
		m.err = msg
		m.checking = false
		return m, nil

	case runDoneMsg:
		m.invoking = false
		if msg.err != nil {
			m.lastRun[msg.id] = "run failed: " + msg.err.Error()
		} else {
			m.lastRun[msg.id] = msg.output
		}
		m.refreshDetail()
		return m, nil

	case spinner.TickMsg:
		if m.checking || m.invoking {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
		return m, nil
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, vpCmd
}

// invokeModuleCmd runs one active module through its full lifecycle:
// Init (when present), ValidateInput, Run, ValidateOutput, Exit.
func invokeModuleCmd(entry *registry.Entry) tea.Cmd {
	return func() tea.Msg {
		output, err := invokeModule(entry)
		return runDoneMsg{id: entry.ID(), output: output, err: err}
	}
}

func invokeModule(entry *registry.Entry) (string, error) {
	source, err := os.ReadFile(entry.EntryPath)
	if err != nil {
		return "", err
	}
	mod, err := sandbox.Load(string(source))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var notes []string

	if mod.HasInit() {
		abs, _ := filepath.Abs(workspace)
		hostCtx := map[string]interface{}{
			"workspace":   abs,
			"hub_version": version.Version,
			"module_id":   entry.ID(),
		}
		if err := mod.Init(ctx, hostCtx); err != nil {
			return "", fmt.Errorf("init: %w", err)
		}
	}

	input := map[string]interface{}{}
	ok, problems, err := mod.ValidateInput(ctx, input)
	if err != nil {
		return "", fmt.Errorf("validate input: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("input rejected: %s", strings.Join(problems, "; "))
	}

	result, err := mod.Run(ctx, input)
	if err != nil {
		return "", fmt.Errorf("run: %w", err)
	}

	ok, problems, err = mod.ValidateOutput(ctx, result)
	if err != nil {
		return "", fmt.Errorf("validate output: %w", err)
	}
	if !ok {
		notes = append(notes, "output failed the module's own validation: "+strings.Join(problems, "; "))
	}

	if mod.HasExit() {
		if err := mod.Exit(ctx); err != nil {
			notes = append(notes, "exit: "+err.Error())
		}
	}

	rendered, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	out := string(rendered)
	if len(notes) > 0 {
		out += "\n\n" + strings.Join(notes, "\n")
	}
	return out, nil
}

func (m *launcherModel) selected() *registry.Entry {
	if m.report == nil || m.cursor >= len(m.report.Entries) {
		return nil
	}
	return m.report.Entries[m.cursor]
}

// resize splits the vertical space between the module list and the
// detail viewport.
func (m *launcherModel) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	chrome := 4 // header, status line, divider, footer
	listLines := 1
	if m.report != nil && len(m.report.Entries) > 0 {
		listLines = len(m.report.Entries)
	}
	vpHeight := m.height - chrome - listLines
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight
}

// refreshDetail rebuilds the viewport content for the selected module.
func (m *launcherModel) refreshDetail() {
	entry := m.selected()
	if entry == nil {
		m.viewport.SetContent(m.styles.Muted.Render("no modules declared"))
		return
	}

	md := moduleMarkdown(entry)
	if out, ok := m.lastRun[entry.ID()]; ok {
		md += "\n## Last run\n\n```json\n" + out + "\n```\n"
	}

	if m.renderer != nil {
		if rendered, err := m.renderer.Render(md); err == nil {
			md = rendered
		}
	}
	m.viewport.SetContent(md)
	m.viewport.GotoTop()
}

func (m launcherModel) View() string {
	if !m.ready {
		return "initializing..."
	}

	header := m.styles.Header.Render("modhub launcher " + version.Version)
	var status string
	switch {
	case m.checking:
		status = m.spinner.View() + " validating catalog..."
	case m.invoking:
		status = m.spinner.View() + " running " + m.selectedID()
	case m.err != nil:
		status = m.styles.Blocked.Render("✗ " + m.err.Error())
	case m.report != nil:
		status = fmt.Sprintf("%s  %d active / %d blocked  %d severe, %d medium, %d light",
			m.styles.TrafficLight(string(m.report.Overall)),
			m.report.ActiveCount, m.report.BlockedCount,
			m.report.SevereCount, m.report.MediumCount, m.report.LightCount)
	}

	var list strings.Builder
	if m.report != nil {
		for i, e := range m.report.Entries {
			cursor := "  "
			line := fmt.Sprintf("%s %-16s %-8s %s", m.entryGlyph(e), e.ID(), entryVersion(e), e.Status)
			if i == m.cursor {
				cursor = "▸ "
				line = m.styles.Selected.Render(line)
			}
			list.WriteString(cursor + line + "\n")
		}
		if len(m.report.Entries) == 0 {
			list.WriteString(m.styles.Muted.Render("  module list is empty") + "\n")
		}
	} else {
		list.WriteString(m.styles.Muted.Render("  loading...") + "\n")
	}

	divider := m.styles.Divider.Render(strings.Repeat("─", max(m.width, 1)))
	footer := m.styles.Footer.Render("↑/↓ select · enter run · r revalidate · q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		strings.TrimRight(list.String(), "\n"),
		divider,
		m.viewport.View(),
		footer,
	)
}

func (m launcherModel) selectedID() string {
	if e := m.selected(); e != nil {
		return e.ID()
	}
	return ""
}

func (m launcherModel) entryGlyph(e *registry.Entry) string {
	switch {
	case !e.Config.Enabled:
		return m.styles.Off.Render("○")
	case e.Status == registry.StatusActive:
		return m.styles.Active.Render("✓")
	default:
		return m.styles.Blocked.Render("✗")
	}
}

// runLauncher starts the interactive launcher
func runLauncher() error {
	p := tea.NewProgram(initLauncher(), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("launcher error: %w", err)
	}
	return nil
}
