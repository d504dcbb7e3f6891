// Package selftest drives the optional SelfTest hook of runnable modules
// through the interpreter sandbox. Tests execute sequentially, each under
// its own wall-clock budget, so a hanging module costs at most one budget
// and report ordering stays deterministic. Nothing here ever propagates a
// module's failure as a Go error: every outcome lands in the module's
// findings and its recorded SelfTestOutcome.
package selftest

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"modhub/internal/finding"
	"modhub/internal/registry"
	"modhub/internal/sandbox"
)

// DefaultTimeout bounds one self-test call when no budget is configured.
const DefaultTimeout = 5 * time.Second

// Runner executes module self-tests with a fixed per-module budget.
type Runner struct {
	timeout time.Duration
}

// NewRunner returns a runner enforcing the given per-module timeout.
// Non-positive budgets fall back to DefaultTimeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Timeout reports the per-module budget.
func (r *Runner) Timeout() time.Duration { return r.timeout }

// RunAll walks the table in order and self-tests every module that is
// registered and still active. Blocked modules are never executed. The
// only error returned is the caller's own cancellation; per-module
// failures become findings on their entries.
func (r *Runner) RunAll(ctx context.Context, entries []*registry.Entry) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Stage != registry.StageRegistered || e.Status != registry.StatusActive {
			continue
		}
		r.runOne(ctx, e)
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, e *registry.Entry) {
	outcome := &registry.SelfTestOutcome{}
	e.SelfTest = outcome

	// Modules without the hook pass through the stage untouched.
	if e.Inspection == nil || !e.Inspection.HasSelfTest {
		e.Advance(registry.StageSelfTested)
		return
	}

	source, err := os.ReadFile(e.EntryPath)
	if err != nil {
		outcome.Error = err.Error()
		e.Record(finding.New(e.ID(), finding.KindSelfTestFailure, finding.SeveritySevere,
			"entry file became unreadable before self-test: %v", err))
		e.Advance(registry.StageSelfTested)
		return
	}

	mod, err := sandbox.Load(string(source))
	if err != nil {
		outcome.Error = err.Error()
		e.Record(finding.New(e.ID(), finding.KindSelfTestFailure, finding.SeveritySevere,
			"module failed to load in the interpreter: %v", err))
		e.Advance(registry.StageSelfTested)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	ok, message, err := mod.SelfTest(callCtx)
	outcome.Ran = true
	outcome.DurationMs = time.Since(start).Milliseconds()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome.Error = err.Error()
		e.Record(finding.New(e.ID(), finding.KindSelfTestFailure, finding.SeveritySevere,
			"self-test did not return within %s", r.timeout))
	case err != nil:
		outcome.Error = err.Error()
		e.Record(finding.New(e.ID(), finding.KindSelfTestFailure, finding.SeveritySevere,
			"self-test crashed: %v", err))
	case !ok:
		outcome.Message = message
		e.Record(finding.New(e.ID(), finding.KindSelfTestFailure, finding.SeverityMedium,
			"self-test reported failure: %s", message))
	case message != "":
		outcome.OK = true
		outcome.Message = message
		e.Record(finding.New(e.ID(), finding.KindSelfTestFailure, finding.SeverityLight,
			"self-test passed with a warning: %s", message))
	default:
		outcome.OK = true
	}

	e.Advance(registry.StageSelfTested)
}
