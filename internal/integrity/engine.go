package integrity

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"
)

// engine wraps the Mangle runtime around a single compiled policy. The
// lifecycle is strictly assert -> eval -> query; there is no incremental
// re-evaluation because the checker builds a fresh engine per run.
type engine struct {
	programInfo    *analysis.ProgramInfo
	store          factstore.FactStore
	predicateIndex map[string]ast.PredicateSym
	queryContext   *mengine.QueryContext
}

func newEngine(policy string) (*engine, error) {
	unit, err := parse.Unit(bytes.NewReader([]byte(policy)))
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze policy: %w", err)
	}

	store := factstore.NewConcurrentFactStore(factstore.NewSimpleInMemoryStore())

	predicateIndex := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	predToDecl := make(map[ast.PredicateSym]*ast.Decl, len(programInfo.Decls))
	for sym, decl := range programInfo.Decls {
		predicateIndex[sym.Symbol] = sym
		predToDecl[sym] = decl
	}

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range programInfo.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}

	return &engine{
		programInfo:    programInfo,
		store:          store,
		predicateIndex: predicateIndex,
		queryContext: &mengine.QueryContext{
			PredToRules: predToRules,
			PredToDecl:  predToDecl,
			Store:       store,
		},
	}, nil
}

// assert adds one base fact. Strings always become string constants, never
// name constants, so ids and folder names compare as plain text regardless
// of their shape.
func (e *engine) assert(predicate string, args ...interface{}) error {
	sym, ok := e.predicateIndex[predicate]
	if !ok {
		return fmt.Errorf("predicate %s is not declared in the policy", predicate)
	}
	if len(args) != sym.Arity {
		return fmt.Errorf("predicate %s expects %d args, got %d", predicate, sym.Arity, len(args))
	}

	terms := make([]ast.BaseTerm, len(args))
	for i, raw := range args {
		switch v := raw.(type) {
		case string:
			terms[i] = ast.String(v)
		case int:
			terms[i] = ast.Number(int64(v))
		case int64:
			terms[i] = ast.Number(v)
		default:
			return fmt.Errorf("predicate %s arg %d: unsupported fact type %T", predicate, i, raw)
		}
	}

	e.store.Add(ast.Atom{Predicate: sym, Args: terms})
	return nil
}

// eval runs the policy rules to fixpoint over the asserted facts.
func (e *engine) eval() error {
	if _, err := mengine.EvalProgramWithStats(e.programInfo, e.store); err != nil {
		return fmt.Errorf("evaluate policy: %w", err)
	}
	return nil
}

// query returns every derived row matching a goal such as
// "duplicate_id(Id)". Each row maps the goal's variable names to their
// bound values.
func (e *engine) query(goal string) ([]map[string]interface{}, error) {
	clean := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(goal), "."))

	atom, err := parse.Atom(clean)
	if err != nil {
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return nil, fmt.Errorf("parse goal %q: %w", goal, err)
		}
	}

	decl, ok := e.queryContext.PredToDecl[atom.Predicate]
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared in the policy", atom.Predicate.Symbol)
	}
	if len(decl.Modes()) == 0 {
		return nil, fmt.Errorf("predicate %s has no query mode declared", atom.Predicate.Symbol)
	}

	var rows []map[string]interface{}
	err = e.queryContext.EvalQuery(atom, decl.Modes()[0], unionfind.New(), func(fact ast.Atom) error {
		row := make(map[string]interface{}, len(atom.Args))
		for i, arg := range atom.Args {
			v, ok := arg.(ast.Variable)
			if !ok || i >= len(fact.Args) {
				continue
			}
			row[v.Symbol] = termValue(fact.Args[i])
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate goal %q: %w", goal, err)
	}
	return rows, nil
}

func termValue(term ast.BaseTerm) interface{} {
	c, ok := term.(ast.Constant)
	if !ok {
		return term.String()
	}
	switch c.Type {
	case ast.StringType, ast.NameType:
		return c.Symbol
	case ast.NumberType:
		return c.NumValue
	default:
		return c.String()
	}
}
