// Package sandbox interprets module entry files with yaegi instead of
// compiling them into the host. Interpretation buys three things: no go
// build step can hang the pipeline, a misbehaving module cannot crash the
// process (calls are recovered and time-bounded), and the import surface is
// pinned to a whitelist of pure-computation stdlib packages.
//
// A Module here is already trusted as far as static checks go; PathGuard
// and the contract validator run first and consult the same whitelist, so
// a forbidden import is normally caught before an interpreter ever exists.
// The checks repeat at load time anyway.
package sandbox

import (
	"context"
	"go/parser"
	"go/token"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ErrForbiddenImport marks load rejections caused by the import whitelist.
var ErrForbiddenImport = errors.New("module imports a forbidden package")

// allowedImports is the full set of packages interpreted module code may
// import. Everything touching the filesystem, network, process table or
// unsafe memory stays out.
var allowedImports = map[string]bool{
	"bytes":           true,
	"encoding/base64": true,
	"encoding/json":   true,
	"errors":          true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"sort":            true,
	"strconv":         true,
	"strings":         true,
	"time":            true,
	"unicode":         true,
	"unicode/utf8":    true,
}

// ImportAllowed reports whether interpreted code may import pkg.
func ImportAllowed(pkg string) bool {
	return allowedImports[pkg]
}

// AllowedImports lists the whitelist, sorted, for messages and docs.
func AllowedImports() []string {
	pkgs := make([]string, 0, len(allowedImports))
	for pkg := range allowedImports {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Module is one loaded entry file with its contract functions resolved.
// All invocation goes through the bounded call helpers; the raw function
// values are never handed out.
type Module struct {
	run            func(map[string]interface{}) (map[string]interface{}, error)
	validateInput  func(map[string]interface{}) (bool, []string)
	validateOutput func(map[string]interface{}) (bool, []string)
	initFn         func(map[string]interface{}) error
	exitFn         func() error
	selfTest       func() (bool, string)
}

// Load interprets source (a package main file) and resolves the contract
// functions. Any failure here counts as a load failure: the module never
// ran, so the caller records it at the highest severity.
func Load(source string) (*Module, error) {
	if err := checkImports(source); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errors.Wrap(err, "load interpreter stdlib")
	}
	if _, err := i.Eval(source); err != nil {
		return nil, errors.Wrap(err, "interpret entry file")
	}

	m := &Module{}

	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, errors.New("entry file does not define Run")
	}
	run, ok := v.Interface().(func(map[string]interface{}) (map[string]interface{}, error))
	if !ok {
		return nil, errors.New("Run must be func(map[string]interface{}) (map[string]interface{}, error)")
	}
	m.run = run

	v, err = i.Eval("main.ValidateInput")
	if err != nil {
		return nil, errors.New("entry file does not define ValidateInput")
	}
	vi, ok := v.Interface().(func(map[string]interface{}) (bool, []string))
	if !ok {
		return nil, errors.New("ValidateInput must be func(map[string]interface{}) (bool, []string)")
	}
	m.validateInput = vi

	v, err = i.Eval("main.ValidateOutput")
	if err != nil {
		return nil, errors.New("entry file does not define ValidateOutput")
	}
	vo, ok := v.Interface().(func(map[string]interface{}) (bool, []string))
	if !ok {
		return nil, errors.New("ValidateOutput must be func(map[string]interface{}) (bool, []string)")
	}
	m.validateOutput = vo

	// Optional callables: absence is fine, a wrong shape is not.
	if v, err := i.Eval("main.Init"); err == nil {
		fn, ok := v.Interface().(func(map[string]interface{}) error)
		if !ok {
			return nil, errors.New("Init must be func(map[string]interface{}) error")
		}
		m.initFn = fn
	}
	if v, err := i.Eval("main.Exit"); err == nil {
		fn, ok := v.Interface().(func() error)
		if !ok {
			return nil, errors.New("Exit must be func() error")
		}
		m.exitFn = fn
	}
	if v, err := i.Eval("main.SelfTest"); err == nil {
		fn, ok := v.Interface().(func() (bool, string))
		if !ok {
			return nil, errors.New("SelfTest must be func() (bool, string)")
		}
		m.selfTest = fn
	}

	return m, nil
}

// HasSelfTest reports whether the module exposes the optional SelfTest.
func (m *Module) HasSelfTest() bool { return m.selfTest != nil }

// HasInit reports whether the module exposes the optional Init.
func (m *Module) HasInit() bool { return m.initFn != nil }

// HasExit reports whether the module exposes the optional Exit.
func (m *Module) HasExit() bool { return m.exitFn != nil }

// SelfTest invokes the module's self-test under the caller's deadline.
// After a timeout the abandoned goroutine may still write the captured
// result variables, so they are only read on the completion path.
func (m *Module) SelfTest(ctx context.Context) (bool, string, error) {
	if m.selfTest == nil {
		return false, "", errors.New("module has no SelfTest")
	}
	var ok bool
	var msg string
	if err := m.bounded(ctx, "SelfTest", func() {
		ok, msg = m.selfTest()
	}); err != nil {
		return false, "", err
	}
	return ok, msg, nil
}

// Run invokes the module's Run under the caller's deadline.
func (m *Module) Run(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	var runErr error
	if err := m.bounded(ctx, "Run", func() {
		out, runErr = m.run(input)
	}); err != nil {
		return nil, err
	}
	return out, runErr
}

// ValidateInput invokes the module's input validator under the deadline.
func (m *Module) ValidateInput(ctx context.Context, input map[string]interface{}) (bool, []string, error) {
	var ok bool
	var problems []string
	if err := m.bounded(ctx, "ValidateInput", func() {
		ok, problems = m.validateInput(input)
	}); err != nil {
		return false, nil, err
	}
	return ok, problems, nil
}

// ValidateOutput invokes the module's output validator under the deadline.
func (m *Module) ValidateOutput(ctx context.Context, output map[string]interface{}) (bool, []string, error) {
	var ok bool
	var problems []string
	if err := m.bounded(ctx, "ValidateOutput", func() {
		ok, problems = m.validateOutput(output)
	}); err != nil {
		return false, nil, err
	}
	return ok, problems, nil
}

// Init invokes the optional Init with the host-provided context map.
func (m *Module) Init(ctx context.Context, hostCtx map[string]interface{}) error {
	if m.initFn == nil {
		return nil
	}
	var initErr error
	if err := m.bounded(ctx, "Init", func() {
		initErr = m.initFn(hostCtx)
	}); err != nil {
		return err
	}
	return initErr
}

// Exit invokes the optional Exit.
func (m *Module) Exit(ctx context.Context) error {
	if m.exitFn == nil {
		return nil
	}
	var exitErr error
	if err := m.bounded(ctx, "Exit", func() {
		exitErr = m.exitFn()
	}); err != nil {
		return err
	}
	return exitErr
}

// bounded runs fn on its own goroutine and waits for completion, a panic,
// or the context deadline. The interpreter cannot be preempted, so on
// timeout the goroutine is abandoned and the caller records the module as
// severe; the hub never blocks on it again this run.
func (m *Module) bounded(ctx context.Context, name string, fn func()) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Newf("%s panicked: %v", name, r)
			}
		}()
		fn()
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%s did not return in time", name)
	}
}

// checkImports re-validates the import whitelist at load time. The static
// contract stage already checked this; repeating it here keeps the sandbox
// safe even if it is ever driven without that stage.
func checkImports(source string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "module.go", source, parser.ImportsOnly)
	if err != nil {
		return errors.Wrap(err, "parse entry file imports")
	}
	var forbidden []string
	for _, imp := range file.Imports {
		pkg := strings.Trim(imp.Path.Value, `"`)
		if !ImportAllowed(pkg) {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return errors.Mark(
			errors.Newf("forbidden imports: %s (allowed: %s)",
				strings.Join(forbidden, ", "), strings.Join(AllowedImports(), ", ")),
			ErrForbiddenImport)
	}
	return nil
}
