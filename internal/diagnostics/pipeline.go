package diagnostics

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"modhub/internal/config"
	"modhub/internal/contract"
	"modhub/internal/finding"
	"modhub/internal/health"
	"modhub/internal/integrity"
	"modhub/internal/manifest"
	"modhub/internal/pathguard"
	"modhub/internal/registry"
	"modhub/internal/selftest"
	"modhub/internal/version"
)

// Options configures one pipeline instance.
type Options struct {
	// Root is the workspace root; "." when empty.
	Root string
	// ModuleListPath overrides the configured module list location.
	ModuleListPath string
	// Settings skips the settings load when provided.
	Settings *config.Settings
	// Health folds a pre-computed skeleton pass into the report instead
	// of taking a fresh read-only one.
	Health *health.Report
	// SkipHealth leaves filesystem state out of the report entirely.
	SkipHealth bool
	// Logger receives phase progress; nil means silent.
	Logger *zap.Logger
}

// Pipeline drives one full diagnostic run: module list, per-module static
// validation, registry assembly, cross-module rules, self-tests, health,
// aggregation. Each run is independent; build a Pipeline once and call Run
// as often as needed.
type Pipeline struct {
	root       string
	listPath   string
	settings   *config.Settings
	health     *health.Report
	skipHealth bool
	checker    *integrity.Checker
	log        *zap.Logger
}

// New resolves options into a runnable pipeline. The only failable step is
// loading settings, and only when none were provided.
func New(opts Options) (*Pipeline, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	settings := opts.Settings
	if settings == nil {
		loaded, err := config.LoadSettings(root)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}

	listPath := opts.ModuleListPath
	if listPath == "" {
		listPath = config.ResolvePath(root, settings.ModuleList)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		root:       root,
		listPath:   listPath,
		settings:   settings,
		health:     opts.Health,
		skipHealth: opts.SkipHealth,
		checker:    integrity.NewChecker(),
		log:        log,
	}, nil
}

// Run executes the whole pipeline once. A broken module never aborts the
// run; the only errors returned are an unreadable module list (there is
// nothing to validate), an internal policy failure, or the caller's own
// cancellation.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	started := time.Now()

	declared, configFindings, err := config.LoadModuleList(p.listPath)
	if err != nil {
		return nil, err
	}
	p.log.Info("module list loaded",
		zap.String("path", p.listPath),
		zap.Int("declared", len(declared)),
		zap.Int("dropped", len(configFindings)))

	reg := registry.New()
	for _, ce := range declared {
		e := &registry.Entry{Config: ce, Dir: config.ResolvePath(p.root, ce.Path)}
		if !reg.Add(e) {
			p.log.Warn("duplicate module id", zap.String("module", ce.ID))
			continue
		}
		if !ce.Enabled {
			p.log.Debug("module disabled", zap.String("module", ce.ID))
			continue
		}
		p.validate(e)
	}

	integrityFindings, err := p.checker.Check(reg.Entries())
	if err != nil {
		return nil, errors.Wrap(err, "integration check")
	}
	mergeIntegrity(reg, integrityFindings)

	runner := selftest.NewRunner(p.settings.SelfTest.TimeoutDuration())
	if err := runner.RunAll(ctx, reg.Entries()); err != nil {
		return nil, err
	}

	healthReport := p.health
	if healthReport == nil && !p.skipHealth {
		healthReport = health.Check(p.root, false)
	}

	report := Aggregate(reg.Entries(), healthReport, configFindings, started)
	p.log.Info("diagnostics complete",
		zap.String("run_id", report.RunID),
		zap.String("overall", string(report.Overall)),
		zap.Int("active", report.ActiveCount),
		zap.Int("blocked", report.BlockedCount),
		zap.Int64("duration_ms", report.DurationMs))
	return report, nil
}

// validate runs the static per-module stages. Every failure is recorded on
// the entry; the method never returns early without leaving a finding that
// explains the stop.
func (p *Pipeline) validate(e *registry.Entry) {
	id := e.ID()
	p.log.Debug("validating module", zap.String("module", id), zap.String("dir", e.Dir))

	m, err := manifest.Load(e.Dir)
	if err != nil {
		e.Record(manifest.LoadFailure(id, err))
		return
	}
	e.Manifest = m
	e.Record(m.Validate(id)...)
	e.Record(m.CheckHostCompat(id, version.Version)...)

	// Without a declared entry there is no path to guard and no file to
	// inspect; the missing field is already recorded as severe.
	if m.Entry == "" {
		return
	}

	resolved, err := pathguard.Validate(e.Dir, m.Entry)
	if err != nil {
		e.Record(pathguard.Failure(id, err))
		return
	}
	e.EntryPath = resolved
	e.Advance(registry.StagePathValidated)

	insp, contractFindings := contract.ValidateFile(id, e.EntryPath)
	e.Inspection = insp
	e.Record(contractFindings...)
	if finding.AnySevere(contractFindings) {
		return
	}
	e.Advance(registry.StageContractValidated)

	if e.Status == registry.StatusActive {
		e.Advance(registry.StageRegistered)
	}
}

// mergeIntegrity attaches cross-module findings to their entries. A
// finding is skipped when any entry with that id already carries the same
// kind, so a problem caught both structurally and by the rules is reported
// once. Duplicate ids land on the losing entries, which already hold the
// kind; the first-wins entry stays clean.
func mergeIntegrity(reg *registry.Registry, findings []finding.Finding) {
	entries := reg.Entries()
	for _, f := range findings {
		if hasKind(entries, f.ModuleID, f.Kind) {
			continue
		}
		if e, ok := reg.Get(f.ModuleID); ok {
			e.Record(f)
		}
	}
}

func hasKind(entries []*registry.Entry, id string, kind finding.Kind) bool {
	for _, e := range entries {
		if e.ID() != id {
			continue
		}
		for _, f := range e.Findings {
			if f.Kind == kind {
				return true
			}
		}
	}
	return false
}
