// Package diagnostics assembles the output of every validation stage into
// the single report the launcher and CLIs consume. The report carries a
// three-state traffic light derived purely from finding severities: red
// when anything severe exists, yellow when only light or medium findings
// exist, green when the run is clean. Consumers render the report; they
// never re-derive validation state themselves.
package diagnostics

import (
	"time"

	"github.com/google/uuid"

	"modhub/internal/finding"
	"modhub/internal/health"
	"modhub/internal/registry"
	"modhub/internal/version"
)

// Overall is the traffic light shown by the launcher.
type Overall string

const (
	OverallGreen  Overall = "green"
	OverallYellow Overall = "yellow"
	OverallRed    Overall = "red"
)

// Report is the artifact of one diagnostic run. It is rebuilt from scratch
// every run and never persisted as-is; the optional history store keeps
// only summary rows.
type Report struct {
	RunID      string    `json:"run_id"`
	HubVersion string    `json:"hub_version"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`

	Overall Overall `json:"overall"`

	// Entries is the full module table in declaration order, blocked and
	// duplicate entries included.
	Entries []*registry.Entry `json:"entries"`

	// Health is the filesystem skeleton pass folded into this run, when
	// one was taken.
	Health *health.Report `json:"health,omitempty"`

	// ConfigFindings covers module list rows that were dropped before an
	// entry could exist for them.
	ConfigFindings []finding.Finding `json:"config_findings,omitempty"`

	ActiveCount  int `json:"active_count"`
	BlockedCount int `json:"blocked_count"`
	SevereCount  int `json:"severe_count"`
	MediumCount  int `json:"medium_count"`
	LightCount   int `json:"light_count"`
}

// Aggregate folds the finished module table, the optional health pass and
// any loose config findings into one report.
func Aggregate(entries []*registry.Entry, healthReport *health.Report, configFindings []finding.Finding, started time.Time) *Report {
	finished := time.Now()
	r := &Report{
		RunID:          uuid.NewString(),
		HubVersion:     version.Version,
		StartedAt:      started,
		FinishedAt:     finished,
		DurationMs:     finished.Sub(started).Milliseconds(),
		Entries:        entries,
		Health:         healthReport,
		ConfigFindings: configFindings,
	}

	for _, e := range entries {
		switch e.Status {
		case registry.StatusActive:
			r.ActiveCount++
		case registry.StatusBlocked:
			r.BlockedCount++
		}
	}

	severe, medium, light := finding.CountBySeverity(r.AllFindings())
	r.SevereCount, r.MediumCount, r.LightCount = severe, medium, light

	switch {
	case severe > 0:
		r.Overall = OverallRed
	case medium+light > 0:
		r.Overall = OverallYellow
	default:
		r.Overall = OverallGreen
	}
	return r
}

// AllFindings flattens config, per-module and health findings in report
// order for rendering and counting.
func (r *Report) AllFindings() []finding.Finding {
	var out []finding.Finding
	out = append(out, r.ConfigFindings...)
	for _, e := range r.Entries {
		out = append(out, e.Findings...)
	}
	if r.Health != nil {
		out = append(out, r.Health.Findings...)
	}
	return out
}

// HasSevere reports whether the run produced any severe finding; the CLI
// exit code keys off this.
func (r *Report) HasSevere() bool {
	return r.SevereCount > 0
}
