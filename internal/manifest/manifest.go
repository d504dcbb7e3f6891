// Package manifest reads and validates the per-module manifest.json. The
// manifest pins a module's identity (id), its entry file, and optionally a
// hub version constraint; id and entry are the two fields nothing else can
// recover from, so their absence blocks the module.
package manifest

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"modhub/internal/finding"
)

// FileName is the manifest file expected inside every module folder.
const FileName = "manifest.json"

// Manifest is the declared metadata of one module. Entry is a path
// relative to the manifest's own folder.
type Manifest struct {
	ID          string   `json:"id" validate:"required"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Entry       string   `json:"entry" validate:"required"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	// Requires is an optional semver constraint on the hub version,
	// e.g. ">= 0.2.0".
	Requires string `json:"requires,omitempty"`
}

// Load reads manifest.json from a module folder. Callers map the error to
// a finding via LoadFailure; a missing manifest never aborts the run.
func Load(moduleDir string) (*Manifest, error) {
	path := filepath.Join(moduleDir, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &m, nil
}

// LoadFailure converts a Load error into the finding recorded against the
// module id declared in the config entry.
func LoadFailure(moduleID string, err error) finding.Finding {
	if errors.Is(err, fs.ErrNotExist) {
		return finding.New(moduleID, finding.KindMissingField, finding.SeveritySevere,
			"manifest.json not found in module folder")
	}
	return finding.New(moduleID, finding.KindMissingField, finding.SeveritySevere,
		"manifest.json unreadable: %v", errors.UnwrapAll(err))
}

// Validate checks the manifest's own fields. moduleID is the id used for
// findings (the config entry's id, which may differ from the manifest's
// own id; cross-checking the two is the integrity checker's job).
func (m *Manifest) Validate(moduleID string) []finding.Finding {
	var findings []finding.Finding

	if err := validator.New().Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				findings = append(findings, finding.New(moduleID,
					finding.KindMissingField, finding.SeveritySevere,
					"manifest is missing mandatory field %q", fieldToJSON(fe.Field())))
			}
		} else {
			findings = append(findings, finding.New(moduleID,
				finding.KindMissingField, finding.SeveritySevere,
				"manifest fails validation: %v", err))
		}
	}

	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			findings = append(findings, finding.New(moduleID,
				finding.KindMissingField, finding.SeverityLight,
				"version %q is not valid semver", m.Version))
		}
	}

	return findings
}

// CheckHostCompat evaluates the optional Requires constraint against the
// running hub version. An unsatisfied constraint is medium: the author
// flagged an incompatibility, but nothing has provably broken yet.
func (m *Manifest) CheckHostCompat(moduleID, hubVersion string) []finding.Finding {
	if m.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return []finding.Finding{finding.New(moduleID,
			finding.KindMissingField, finding.SeverityLight,
			"requires %q is not a valid version constraint", m.Requires)}
	}
	v, err := semver.NewVersion(hubVersion)
	if err != nil {
		// Hub version is a build-time constant; failing to parse it is
		// a hub defect, not the module's.
		return nil
	}
	if !c.Check(v) {
		return []finding.Finding{finding.New(moduleID,
			finding.KindContractViolation, finding.SeverityMedium,
			"module requires hub %s but %s is running", m.Requires, hubVersion).
			WithSuggestion("upgrade modhub or relax \"requires\" in manifest.json")}
	}
	return nil
}

// fieldToJSON maps the Go field names reported by the validator onto the
// JSON names operators actually see in manifest.json.
func fieldToJSON(field string) string {
	switch field {
	case "ID":
		return "id"
	case "Entry":
		return "entry"
	}
	var out []rune
	for i, r := range field {
		if i == 0 {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
