package selftest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modhub/internal/config"
	"modhub/internal/contract"
	"modhub/internal/finding"
	"modhub/internal/registry"
)

const passingModule = `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	return input, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	return true, ""
}
`

const warningModule = `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	return input, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	return true, "cache empty, first run will be slow"
}
`

const failingModule = `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	return input, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	return false, "index and store disagree on entry count"
}
`

const crashingModule = `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	return input, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	panic("self-test exploded")
}
`

const sleepyModule = `package main

import "time"

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	return input, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	time.Sleep(300 * time.Millisecond)
	return true, ""
}
`

const escapingModule = `package main

import "os"

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	os.Remove("x")
	return input, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	return true, ""
}
`

func testEntry(t *testing.T, id, source string, hasSelfTest bool) *registry.Entry {
	t.Helper()
	dir := t.TempDir()
	entryPath := filepath.Join(dir, "module.go")
	if err := os.WriteFile(entryPath, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	e := &registry.Entry{
		Config:     config.ModuleConfigEntry{ID: id, Name: id, Path: dir, Enabled: true},
		Dir:        dir,
		EntryPath:  entryPath,
		Inspection: &contract.Inspection{HasSelfTest: hasSelfTest},
	}
	e.Advance(registry.StageRegistered)
	return e
}

func TestRunAllPassing(t *testing.T) {
	e := testEntry(t, "notes", passingModule, true)

	if err := NewRunner(2 * time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if e.SelfTest == nil || !e.SelfTest.Ran || !e.SelfTest.OK {
		t.Fatalf("outcome = %+v, want ran and ok", e.SelfTest)
	}
	if len(e.Findings) != 0 {
		t.Errorf("findings = %v, want none", e.Findings)
	}
	if e.Stage != registry.StageSelfTested {
		t.Errorf("stage = %s, want self_tested", e.Stage)
	}
	if e.Status != registry.StatusActive {
		t.Errorf("status = %s, want active", e.Status)
	}
}

func TestRunAllWithoutSelfTestHook(t *testing.T) {
	e := testEntry(t, "notes", passingModule, false)

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if e.SelfTest == nil || e.SelfTest.Ran {
		t.Fatalf("outcome = %+v, want recorded but not ran", e.SelfTest)
	}
	if len(e.Findings) != 0 {
		t.Errorf("findings = %v, want none", e.Findings)
	}
	if e.Stage != registry.StageSelfTested || e.Status != registry.StatusActive {
		t.Errorf("stage/status = %s/%s, want self_tested/active", e.Stage, e.Status)
	}
}

func TestRunAllWarning(t *testing.T) {
	e := testEntry(t, "notes", warningModule, true)

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if !e.SelfTest.OK || e.SelfTest.Message == "" {
		t.Fatalf("outcome = %+v, want ok with message", e.SelfTest)
	}
	if len(e.Findings) != 1 {
		t.Fatalf("findings = %v, want exactly one", e.Findings)
	}
	f := e.Findings[0]
	if f.Kind != finding.KindSelfTestFailure || f.Severity != finding.SeverityLight {
		t.Errorf("finding = %+v, want light self_test_failure", f)
	}
	if e.Status != registry.StatusActive {
		t.Errorf("status = %s, a warning must not block the module", e.Status)
	}
}

func TestRunAllAssertionFailure(t *testing.T) {
	e := testEntry(t, "notes", failingModule, true)

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if e.SelfTest.OK || !e.SelfTest.Ran {
		t.Fatalf("outcome = %+v, want ran but not ok", e.SelfTest)
	}
	if len(e.Findings) != 1 || e.Findings[0].Severity != finding.SeverityMedium {
		t.Fatalf("findings = %v, want one medium", e.Findings)
	}
	if !strings.Contains(e.Findings[0].Message, "disagree") {
		t.Errorf("message %q should carry the module's own report", e.Findings[0].Message)
	}
	if e.Status != registry.StatusActive {
		t.Errorf("status = %s, medium findings fail soft", e.Status)
	}
}

func TestRunAllCrash(t *testing.T) {
	e := testEntry(t, "notes", crashingModule, true)

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if e.SelfTest.Error == "" {
		t.Fatal("outcome should record the captured panic")
	}
	if len(e.Findings) != 1 || e.Findings[0].Severity != finding.SeveritySevere {
		t.Fatalf("findings = %v, want one severe", e.Findings)
	}
	if e.Status != registry.StatusBlocked {
		t.Errorf("status = %s, want blocked", e.Status)
	}
}

func TestRunAllTimeout(t *testing.T) {
	e := testEntry(t, "notes", sleepyModule, true)

	start := time.Now()
	if err := NewRunner(50 * time.Millisecond).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("runner waited %v, should abandon the call at the budget", elapsed)
	}

	if len(e.Findings) != 1 || e.Findings[0].Severity != finding.SeveritySevere {
		t.Fatalf("findings = %v, want one severe", e.Findings)
	}
	if !strings.Contains(e.Findings[0].Message, "did not return") {
		t.Errorf("message = %q, want timeout wording", e.Findings[0].Message)
	}
	if e.Status != registry.StatusBlocked {
		t.Errorf("status = %s, want blocked", e.Status)
	}

	// Let the abandoned interpreter goroutine finish its sleep.
	time.Sleep(350 * time.Millisecond)
}

func TestRunAllLoadFailure(t *testing.T) {
	e := testEntry(t, "notes", escapingModule, true)

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if e.SelfTest.Ran {
		t.Error("a module that never loaded must not count as ran")
	}
	if len(e.Findings) != 1 || e.Findings[0].Severity != finding.SeveritySevere {
		t.Fatalf("findings = %v, want one severe", e.Findings)
	}
	if !strings.Contains(e.Findings[0].Message, "failed to load") {
		t.Errorf("message = %q, want load failure wording", e.Findings[0].Message)
	}
	if e.Status != registry.StatusBlocked {
		t.Errorf("status = %s, want blocked", e.Status)
	}
}

func TestRunAllUnreadableEntry(t *testing.T) {
	e := testEntry(t, "notes", passingModule, true)
	e.EntryPath = filepath.Join(e.Dir, "vanished.go")

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{e}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if len(e.Findings) != 1 || e.Findings[0].Severity != finding.SeveritySevere {
		t.Fatalf("findings = %v, want one severe", e.Findings)
	}
	if e.Status != registry.StatusBlocked {
		t.Errorf("status = %s, want blocked", e.Status)
	}
}

func TestRunAllSkipsBlockedAndUnregistered(t *testing.T) {
	blocked := testEntry(t, "broken", passingModule, true)
	blocked.Record(finding.New("broken", finding.KindPathTraversal, finding.SeveritySevere, "entry escapes module folder"))

	early := testEntry(t, "early", passingModule, true)
	early.Stage = registry.StageContractValidated

	if err := NewRunner(time.Second).RunAll(context.Background(), []*registry.Entry{blocked, early}); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	if blocked.SelfTest != nil {
		t.Error("blocked module must never reach the interpreter")
	}
	if early.SelfTest != nil {
		t.Error("unregistered module must never reach the interpreter")
	}
}

func TestRunAllCancelled(t *testing.T) {
	e := testEntry(t, "notes", passingModule, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewRunner(time.Second).RunAll(ctx, []*registry.Entry{e}); err == nil {
		t.Fatal("RunAll should surface the caller's cancellation")
	}
	if e.SelfTest != nil {
		t.Error("cancelled run must not touch entries")
	}
}
