// Package config loads the two read-only inputs of a diagnostic run: the
// declared module list (modules.json) and the hub settings
// (.modhub/settings.yaml). Both are read fresh on every run; nothing in
// this package caches across invocations.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"modhub/internal/finding"
)

// ErrConfig marks fatal configuration failures: without a readable module
// list there is nothing to validate, so the whole pipeline aborts.
var ErrConfig = errors.New("module configuration unreadable")

// ModuleConfigEntry is one row of the declared module list. Path points at
// the module's folder relative to the modules root, never at a file.
type ModuleConfigEntry struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name"`
	Path        string `json:"path" validate:"required"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// LoadModuleList reads and decodes the module list file. A missing or
// malformed file is fatal (ErrConfig). Entries missing their required
// fields are dropped from the returned slice and reported as findings so
// the rest of the list still validates; order is preserved because later
// duplicate resolution is first-wins by file order.
func LoadModuleList(path string) ([]ModuleConfigEntry, []finding.Finding, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "read module list %s", path), ErrConfig),
			"create a modules.json next to the modules/ folder, or pass --config")
	}

	var entries []ModuleConfigEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, errors.WithHint(
			errors.Mark(errors.Wrapf(err, "parse module list %s", path), ErrConfig),
			"the module list must be a JSON array of {id, name, path, enabled, description}")
	}

	validate := validator.New()
	var findings []finding.Finding
	kept := entries[:0]
	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			findings = append(findings, finding.New(entryLabel(e, i),
				finding.KindMissingField, finding.SeveritySevere,
				"module list entry %d is missing required fields: %v", i, requiredFieldNames(err)))
			continue
		}
		kept = append(kept, e)
	}
	return kept, findings, nil
}

// entryLabel derives a module id for findings about entries that may not
// carry one themselves.
func entryLabel(e ModuleConfigEntry, index int) string {
	if e.ID != "" {
		return e.ID
	}
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("entry-%d", index)
}

// requiredFieldNames flattens validator errors into the offending field
// names for the finding message.
func requiredFieldNames(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field())
	}
	return names
}
