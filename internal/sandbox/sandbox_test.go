package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/goleak"
)

const echoModule = `package main

import "strings"

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	text, _ := input["text"].(string)
	return map[string]interface{}{"text": strings.ToUpper(text)}, nil
}

func ValidateInput(input map[string]interface{}) (bool, []string) {
	if _, ok := input["text"].(string); !ok {
		return false, []string{"text must be a string"}
	}
	return true, nil
}

func ValidateOutput(output map[string]interface{}) (bool, []string) {
	return true, nil
}

func SelfTest() (bool, string) {
	return true, ""
}
`

func TestLoadAndRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := Load(echoModule)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.HasSelfTest() {
		t.Error("HasSelfTest should be true")
	}
	if m.HasInit() || m.HasExit() {
		t.Error("optional Init/Exit should be absent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, problems, err := m.ValidateInput(ctx, map[string]interface{}{"text": "hi"})
	if err != nil || !ok || len(problems) != 0 {
		t.Fatalf("ValidateInput = %v %v %v", ok, problems, err)
	}

	out, err := m.Run(ctx, map[string]interface{}{"text": "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out["text"] != "HI" {
		t.Errorf("Run output = %v, want HI", out["text"])
	}

	ok, _, err = m.SelfTest(ctx)
	if err != nil || !ok {
		t.Errorf("SelfTest = %v %v", ok, err)
	}
}

func TestLoadRejectsForbiddenImport(t *testing.T) {
	src := `package main

import "os"

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	os.Remove("x")
	return nil, nil
}
func ValidateInput(input map[string]interface{}) (bool, []string)  { return true, nil }
func ValidateOutput(output map[string]interface{}) (bool, []string) { return true, nil }
`
	_, err := Load(src)
	if err == nil {
		t.Fatal("module importing os must not load")
	}
	if !errors.Is(err, ErrForbiddenImport) {
		t.Errorf("error not marked ErrForbiddenImport: %v", err)
	}
	if !strings.Contains(err.Error(), "os") {
		t.Errorf("error should name the forbidden package: %v", err)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	src := `package main

func ValidateInput(input map[string]interface{}) (bool, []string)  { return true, nil }
func ValidateOutput(output map[string]interface{}) (bool, []string) { return true, nil }
`
	_, err := Load(src)
	if err == nil || !strings.Contains(err.Error(), "Run") {
		t.Fatalf("expected missing-Run load failure, got %v", err)
	}
}

func TestLoadRejectsWrongOptionalShape(t *testing.T) {
	src := `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) { return nil, nil }
func ValidateInput(input map[string]interface{}) (bool, []string)      { return true, nil }
func ValidateOutput(output map[string]interface{}) (bool, []string)    { return true, nil }
func SelfTest() string                                                 { return "wrong" }
`
	_, err := Load(src)
	if err == nil || !strings.Contains(err.Error(), "SelfTest") {
		t.Fatalf("expected SelfTest shape failure, got %v", err)
	}
}

func TestSelfTestReportsFailure(t *testing.T) {
	src := `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) { return nil, nil }
func ValidateInput(input map[string]interface{}) (bool, []string)      { return true, nil }
func ValidateOutput(output map[string]interface{}) (bool, []string)    { return true, nil }
func SelfTest() (bool, string)                                         { return false, "index out of sync" }
`
	m, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ok, msg, err := m.SelfTest(context.Background())
	if err != nil {
		t.Fatalf("SelfTest error: %v", err)
	}
	if ok || msg != "index out of sync" {
		t.Errorf("SelfTest = %v %q", ok, msg)
	}
}

func TestSelfTestTimeout(t *testing.T) {
	src := `package main

import "time"

func Run(input map[string]interface{}) (map[string]interface{}, error) { return nil, nil }
func ValidateInput(input map[string]interface{}) (bool, []string)      { return true, nil }
func ValidateOutput(output map[string]interface{}) (bool, []string)    { return true, nil }
func SelfTest() (bool, string) {
	time.Sleep(300 * time.Millisecond)
	return true, ""
}
`
	m, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = m.SelfTest(ctx)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout should surface context.DeadlineExceeded, got %v", err)
	}
	if elapsed > 250*time.Millisecond {
		t.Errorf("caller waited %v, the deadline is 50ms", elapsed)
	}

	// Let the abandoned goroutine finish so later tests start clean.
	time.Sleep(350 * time.Millisecond)
}

func TestPanicIsContained(t *testing.T) {
	src := `package main

func Run(input map[string]interface{}) (map[string]interface{}, error) {
	panic("module exploded")
}
func ValidateInput(input map[string]interface{}) (bool, []string)  { return true, nil }
func ValidateOutput(output map[string]interface{}) (bool, []string) { return true, nil }
`
	m, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = m.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("panic must surface as an error, not crash the host")
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Errorf("error should say the module panicked: %v", err)
	}
}

func TestAllowedImportsSorted(t *testing.T) {
	pkgs := AllowedImports()
	if len(pkgs) == 0 {
		t.Fatal("whitelist empty")
	}
	for i := 1; i < len(pkgs); i++ {
		if pkgs[i-1] >= pkgs[i] {
			t.Fatalf("whitelist not sorted at %d: %v", i, pkgs)
		}
	}
	if ImportAllowed("os") || ImportAllowed("os/exec") || ImportAllowed("net/http") {
		t.Error("os, os/exec and net/http must never be allowed")
	}
	if !ImportAllowed("strings") {
		t.Error("strings should be allowed")
	}
}
