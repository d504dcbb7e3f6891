// Package contract statically verifies that a module's entry file exposes
// the callables the hub dispatches to. The inspection is parse-only: the
// file's syntax tree is walked, its code is never interpreted or imported,
// so contract checking cannot execute untrusted module code as a side
// effect. Dynamic dispatch is only ever attempted on modules that passed
// here first.
package contract

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"modhub/internal/finding"
	"modhub/internal/sandbox"
)

// EntryFileName is the conventional entry file inside a module folder.
const EntryFileName = "module.go"

// FuncShape records the arity of one top-level function.
type FuncShape struct {
	Params  int
	Results int
}

// Inspection is what the static pass learned about an entry file. Later
// stages consult it instead of re-parsing: the self-test runner checks
// HasSelfTest, the launcher checks HasInit/HasExit.
type Inspection struct {
	PackageName string
	Functions   map[string]FuncShape
	Imports     []string
	HasInit     bool
	HasExit     bool
	HasSelfTest bool
}

// callableSpec is the expected shape of one contract function.
type callableSpec struct {
	name     string
	params   int
	results  int
	required bool
}

// The module contract: Run, ValidateInput and ValidateOutput are
// mandatory; Init, Exit and SelfTest are optional but must have the right
// shape when present.
var callables = []callableSpec{
	{name: "Run", params: 1, results: 2, required: true},
	{name: "ValidateInput", params: 1, results: 2, required: true},
	{name: "ValidateOutput", params: 1, results: 2, required: true},
	{name: "Init", params: 1, results: 1, required: false},
	{name: "Exit", params: 0, results: 1, required: false},
	{name: "SelfTest", params: 0, results: 2, required: false},
}

// ValidateFile reads and inspects the entry file at path. The path has
// already passed the path guard; an unreadable file is a contract failure
// for this module, not a pipeline failure.
func ValidateFile(moduleID, path string) (*Inspection, []finding.Finding) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, []finding.Finding{finding.New(moduleID,
			finding.KindContractViolation, finding.SeveritySevere,
			"entry file %s is unreadable: %v", filepath.Base(path), err)}
	}
	return Validate(moduleID, filepath.Base(path), string(src))
}

// Validate inspects entry file source. It returns the inspection (nil when
// the file could not be parsed at all) and any findings.
func Validate(moduleID, filename, source string) (*Inspection, []finding.Finding) {
	var findings []finding.Finding

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, source, parser.ParseComments)
	if err != nil {
		return nil, []finding.Finding{finding.New(moduleID,
			finding.KindContractViolation, finding.SeveritySevere,
			"entry file does not parse: %v", err)}
	}

	insp := &Inspection{
		PackageName: file.Name.Name,
		Functions:   make(map[string]FuncShape),
	}

	if insp.PackageName != "main" {
		findings = append(findings, finding.New(moduleID,
			finding.KindContractViolation, finding.SeveritySevere,
			"entry file must declare package main, found package %s", insp.PackageName))
	}

	for _, imp := range file.Imports {
		pkg := strings.Trim(imp.Path.Value, `"`)
		insp.Imports = append(insp.Imports, pkg)
		if !sandbox.ImportAllowed(pkg) {
			findings = append(findings, finding.New(moduleID,
				finding.KindContractViolation, finding.SeveritySevere,
				"entry file imports %q, which modules may not use", pkg).
				WithSuggestion("allowed imports: "+strings.Join(sandbox.AllowedImports(), ", ")))
		}
	}

	spawnsGoroutines := false
	callsPanic := false
	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncDecl:
			if node.Recv != nil {
				return true
			}
			insp.Functions[node.Name.Name] = FuncShape{
				Params:  countFields(node.Type.Params),
				Results: countFields(node.Type.Results),
			}
		case *ast.GoStmt:
			spawnsGoroutines = true
		case *ast.CallExpr:
			if ident, ok := node.Fun.(*ast.Ident); ok && ident.Name == "panic" {
				callsPanic = true
			}
		}
		return true
	})

	for _, spec := range callables {
		shape, declared := insp.Functions[spec.name]
		if !declared {
			if spec.required {
				findings = append(findings, finding.New(moduleID,
					finding.KindContractViolation, finding.SeveritySevere,
					"entry file does not define %s", spec.name))
			}
			continue
		}
		if shape.Params != spec.params || shape.Results != spec.results {
			findings = append(findings, finding.New(moduleID,
				finding.KindContractViolation, finding.SeveritySevere,
				"%s takes %d parameter(s) and returns %d value(s), want %d and %d",
				spec.name, shape.Params, shape.Results, spec.params, spec.results))
		}
	}

	_, insp.HasInit = insp.Functions["Init"]
	_, insp.HasExit = insp.Functions["Exit"]
	_, insp.HasSelfTest = insp.Functions["SelfTest"]

	if spawnsGoroutines {
		findings = append(findings, finding.New(moduleID,
			finding.KindContractViolation, finding.SeverityMedium,
			"entry code starts goroutines; they outlive the call boundary and cannot be time-bounded").
			WithSuggestion("do the work synchronously inside Run"))
	}
	if callsPanic {
		findings = append(findings, finding.New(moduleID,
			finding.KindContractViolation, finding.SeverityLight,
			"entry code calls panic; return an error instead"))
	}

	return insp, findings
}

// countFields counts individual parameters or results, honoring grouped
// names (a, b string counts as two).
func countFields(l *ast.FieldList) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, f := range l.List {
		if len(f.Names) == 0 {
			n++
			continue
		}
		n += len(f.Names)
	}
	return n
}
