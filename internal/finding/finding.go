// Package finding defines the validation finding vocabulary shared by every
// stage of the module pipeline. A finding records one problem with one
// module (or one filesystem item) without aborting the run; the aggregator
// folds findings into the final traffic-light report.
package finding

import "fmt"

// Kind identifies the class of problem a finding reports.
type Kind string

const (
	KindPathTraversal     Kind = "path_traversal"
	KindMissingField      Kind = "missing_field"
	KindContractViolation Kind = "contract_violation"
	KindDuplicateID       Kind = "duplicate_id"
	KindNameMismatch      Kind = "name_mismatch"
	KindSelfTestFailure   Kind = "self_test_failure"
	KindFileSystemRepair  Kind = "filesystem_repair"
)

// Severity is the three-tier classification that drives module status and
// the checker's exit code.
type Severity string

const (
	SeverityLight  Severity = "light"
	SeverityMedium Severity = "medium"
	SeveritySevere Severity = "severe"
)

// Rank orders severities for max/threshold comparisons. Unknown values rank
// below light so a zero-value Severity never trips the severe gate.
func (s Severity) Rank() int {
	switch s {
	case SeveritySevere:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLight:
		return 1
	}
	return 0
}

// Finding is one recorded problem. ModuleID is empty for filesystem-level
// findings produced by the health check.
type Finding struct {
	ModuleID   string   `json:"module_id,omitempty"`
	Kind       Kind     `json:"kind"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// suggestions maps each kind to the default operator remedy shown by the
// CLI next to the finding.
var suggestions = map[Kind]string{
	KindPathTraversal:     "entry path escapes the module folder; fix \"entry\" in manifest.json",
	KindMissingField:      "add the missing field to manifest.json (id and entry are mandatory)",
	KindContractViolation: "entry file must define Run, ValidateInput and ValidateOutput with the documented shapes",
	KindDuplicateID:       "module ids must be unique; rename the module or remove the duplicate list entry",
	KindNameMismatch:      "manifest id must match the module folder name exactly",
	KindSelfTestFailure:   "run the module's self-test locally and fix the reported inconsistency",
	KindFileSystemRepair:  "re-run with --self-repair, or create the path by hand and check permissions",
}

// New builds a finding with the default suggestion for its kind.
func New(moduleID string, kind Kind, severity Severity, format string, args ...interface{}) Finding {
	return Finding{
		ModuleID:   moduleID,
		Kind:       kind,
		Severity:   severity,
		Message:    fmt.Sprintf(format, args...),
		Suggestion: suggestions[kind],
	}
}

// WithSuggestion overrides the default remedy text.
func (f Finding) WithSuggestion(s string) Finding {
	f.Suggestion = s
	return f
}

func (f Finding) String() string {
	if f.ModuleID == "" {
		return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Kind, f.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", f.Severity, f.ModuleID, f.Kind, f.Message)
}

// MaxSeverity returns the highest severity present, or "" for no findings.
func MaxSeverity(findings []Finding) Severity {
	var max Severity
	for _, f := range findings {
		if f.Severity.Rank() > max.Rank() {
			max = f.Severity
		}
	}
	return max
}

// AnySevere reports whether any finding is severe. Status gates and exit
// codes key off this, never off the raw count.
func AnySevere(findings []Finding) bool {
	return MaxSeverity(findings) == SeveritySevere
}

// CountBySeverity tallies findings per tier.
func CountBySeverity(findings []Finding) (severe, medium, light int) {
	for _, f := range findings {
		switch f.Severity {
		case SeveritySevere:
			severe++
		case SeverityMedium:
			medium++
		case SeverityLight:
			light++
		}
	}
	return severe, medium, light
}
