// Package integrity runs cross-module consistency checks over the
// assembled registry table. Single-module problems (missing fields, bad
// entry paths, contract violations) are caught earlier by the per-module
// stages; this pass catches the problems that only become visible when
// the whole table is on hand at once, and expresses them as Datalog rules
// evaluated by the Mangle engine.
package integrity

import (
	_ "embed"
	"path/filepath"
	"sort"

	"modhub/internal/finding"
	"modhub/internal/registry"
)

//go:embed policy.mg
var policyRules string

// Checker evaluates the embedded consistency policy against a registry
// snapshot. A fresh engine is built per call, so checkers are cheap and
// safe to share.
type Checker struct{}

// NewChecker returns a Checker backed by the embedded policy.
func NewChecker() *Checker { return &Checker{} }

// Check asserts one set of facts per entry, runs the rules to fixpoint,
// and converts each violation row into a finding. The result is sorted by
// module id and kind so reports are stable between runs.
func (c *Checker) Check(entries []*registry.Entry) ([]finding.Finding, error) {
	eng, err := newEngine(policyRules)
	if err != nil {
		return nil, err
	}

	for i, entry := range entries {
		id := entry.ID()
		if err := eng.assert("config_entry", i, id); err != nil {
			return nil, err
		}
		if entry.Config.Enabled {
			if err := eng.assert("enabled_entry", id); err != nil {
				return nil, err
			}
		}
		if entry.Manifest == nil {
			continue
		}
		if err := eng.assert("has_manifest", id); err != nil {
			return nil, err
		}
		folder := filepath.Base(entry.Dir)
		if err := eng.assert("manifest_decl", id, entry.Manifest.ID, folder); err != nil {
			return nil, err
		}
		if err := eng.assert("name_token", entry.Manifest.ID); err != nil {
			return nil, err
		}
		if err := eng.assert("name_token", folder); err != nil {
			return nil, err
		}
	}

	if err := eng.eval(); err != nil {
		return nil, err
	}

	var findings []finding.Finding

	rows, err := eng.query("duplicate_id(Id)")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, ok := row["Id"].(string)
		if !ok {
			continue
		}
		findings = append(findings, finding.New(id, finding.KindDuplicateID, finding.SeveritySevere,
			"module id %q is declared by more than one catalog entry", id))
	}

	rows, err = eng.query("name_mismatch(Id, ManifestId, Folder)")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, ok := row["Id"].(string)
		if !ok {
			continue
		}
		manifestID, _ := row["ManifestId"].(string)
		folder, _ := row["Folder"].(string)
		findings = append(findings, finding.New(id, finding.KindNameMismatch, finding.SeverityMedium,
			"manifest declares id %q but the module folder is named %q", manifestID, folder))
	}

	rows, err = eng.query("missing_manifest(Id)")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, ok := row["Id"].(string)
		if !ok {
			continue
		}
		findings = append(findings, finding.New(id, finding.KindMissingField, finding.SeveritySevere,
			"enabled module %q has no readable manifest.json", id))
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].ModuleID != findings[j].ModuleID {
			return findings[i].ModuleID < findings[j].ModuleID
		}
		return findings[i].Kind < findings[j].Kind
	})
	return findings, nil
}
