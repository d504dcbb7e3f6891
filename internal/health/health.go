// Package health reconciles the workspace skeleton the hub expects against
// what is actually on disk. The skeleton is a fixed desired-state list of
// directories and seed files; checking diffs that list against the
// filesystem, and repair applies only the delta. Running repair twice in a
// row with no outside interference therefore yields an empty delta the
// second time. Repairs are best-effort and tolerate concurrent creation:
// losing an already-exists race counts as healthy, not as a failure.
package health

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"modhub/internal/config"
	"modhub/internal/finding"
)

// Kind distinguishes skeleton directories from seed files.
type Kind string

const (
	KindDir  Kind = "dir"
	KindFile Kind = "file"
)

// State is the per-item verdict after one check or repair pass.
type State string

const (
	// StateOK items were present and usable before this pass.
	StateOK State = "ok"
	// StateMissing items are absent and repair was not requested.
	StateMissing State = "missing"
	// StateCreated items were absent and this pass created them.
	StateCreated State = "created"
	// StateFixedPermissions items existed with unusable permission bits
	// that this pass corrected.
	StateFixedPermissions State = "permissions_fixed"
	// StateBroken items are present but unusable, or a repair failed.
	StateBroken State = "broken"
)

// Item is one entry of the desired-state skeleton. Paths are relative to
// the workspace root. Seed content is produced lazily so a content error
// surfaces as a repair failure instead of aborting the whole pass.
type Item struct {
	Path    string
	Kind    Kind
	content func() ([]byte, error)
}

// ItemStatus pairs a skeleton item with its verdict for report rendering.
type ItemStatus struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"kind"`
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outcome of one check or repair pass.
type Report struct {
	Root            string            `json:"root"`
	Repair          bool              `json:"repair"`
	MissingPaths    []string          `json:"missing_paths"`
	CreatedPaths    []string          `json:"created_paths"`
	PermissionFixes []string          `json:"permission_fixes"`
	Items           []ItemStatus      `json:"items"`
	Findings        []finding.Finding `json:"findings,omitempty"`
}

// Repaired counts items this pass fixed.
func (r *Report) Repaired() int {
	n := 0
	for _, it := range r.Items {
		if it.State == StateCreated || it.State == StateFixedPermissions {
			n++
		}
	}
	return n
}

// StillBroken counts items that remain unusable after this pass.
func (r *Report) StillBroken() int {
	n := 0
	for _, it := range r.Items {
		if it.State == StateMissing || it.State == StateBroken {
			n++
		}
	}
	return n
}

// skeleton returns the desired-state list in a fixed order so report
// output and repair sequence are deterministic.
func skeleton() []Item {
	return []Item{
		{Path: "modules", Kind: KindDir},
		{Path: config.StateDirName, Kind: KindDir},
		{Path: filepath.Join(config.StateDirName, "logs"), Kind: KindDir},
		{Path: filepath.Join(config.StateDirName, "data"), Kind: KindDir},
		{Path: filepath.Join(config.StateDirName, "reports"), Kind: KindDir},
		{Path: "modules.json", Kind: KindFile, content: func() ([]byte, error) {
			return []byte("[]\n"), nil
		}},
		{Path: filepath.Join(config.StateDirName, config.SettingsFileName), Kind: KindFile, content: config.DefaultSettingsYAML},
	}
}

// RequiredPaths lists the skeleton paths relative to the root, for docs
// and CLI help.
func RequiredPaths() []string {
	items := skeleton()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// Minimum owner bits needed to use an existing item.
	needDirBits  = 0o500
	needFileBits = 0o400
)

// Check walks the skeleton under root and reports each item's state. With
// repair set it also creates missing items and widens unusable permission
// bits; failures are recorded as severe findings, never returned, so the
// surrounding pipeline always gets a complete report.
func Check(root string, repair bool) *Report {
	report := &Report{
		Root:            root,
		Repair:          repair,
		MissingPaths:    []string{},
		CreatedPaths:    []string{},
		PermissionFixes: []string{},
	}

	for _, item := range skeleton() {
		report.Items = append(report.Items, reconcile(root, item, repair, report))
	}
	return report
}

func reconcile(root string, item Item, repair bool, report *Report) ItemStatus {
	status := ItemStatus{Path: item.Path, Kind: item.Kind}
	abs := filepath.Join(root, item.Path)

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.MissingPaths = append(report.MissingPaths, item.Path)
		if !repair {
			status.State = StateMissing
			return status
		}
		return create(abs, item, report, status)

	case err != nil:
		status.State = StateBroken
		status.Detail = err.Error()
		report.Findings = append(report.Findings, repairFinding(item, "cannot stat %s: %v", item.Path, err))
		return status

	case item.Kind == KindDir && !info.IsDir():
		status.State = StateBroken
		status.Detail = "a file is squatting where a directory belongs"
		report.Findings = append(report.Findings, repairFinding(item,
			"%s exists as a file but must be a directory; remove it by hand", item.Path))
		return status

	case item.Kind == KindFile && info.IsDir():
		status.State = StateBroken
		status.Detail = "a directory is squatting where a file belongs"
		report.Findings = append(report.Findings, repairFinding(item,
			"%s exists as a directory but must be a file; remove it by hand", item.Path))
		return status
	}

	need := os.FileMode(needFileBits)
	if item.Kind == KindDir {
		need = needDirBits
	}
	if info.Mode().Perm()&need == need {
		status.State = StateOK
		return status
	}

	if !repair {
		status.State = StateBroken
		status.Detail = "unusable permissions " + info.Mode().Perm().String()
		return status
	}

	if err := os.Chmod(abs, info.Mode().Perm()|need); err != nil {
		status.State = StateBroken
		status.Detail = err.Error()
		report.Findings = append(report.Findings, repairFinding(item, "cannot fix permissions on %s: %v", item.Path, err))
		return status
	}
	status.State = StateFixedPermissions
	report.PermissionFixes = append(report.PermissionFixes, item.Path)
	return status
}

func create(abs string, item Item, report *Report, status ItemStatus) ItemStatus {
	if item.Kind == KindDir {
		if err := os.MkdirAll(abs, dirPerm); err != nil {
			status.State = StateBroken
			status.Detail = err.Error()
			report.Findings = append(report.Findings, repairFinding(item, "cannot create directory %s: %v", item.Path, err))
			return status
		}
		status.State = StateCreated
		report.CreatedPaths = append(report.CreatedPaths, item.Path)
		return status
	}

	if err := os.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		status.State = StateBroken
		status.Detail = err.Error()
		report.Findings = append(report.Findings, repairFinding(item, "cannot create parent of %s: %v", item.Path, err))
		return status
	}

	content, err := item.content()
	if err != nil {
		status.State = StateBroken
		status.Detail = err.Error()
		report.Findings = append(report.Findings, repairFinding(item, "cannot render seed content for %s: %v", item.Path, err))
		return status
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if errors.Is(err, fs.ErrExist) {
		// Lost a creation race; the file is there, which is all we wanted.
		status.State = StateOK
		status.Detail = "created concurrently"
		return status
	}
	if err != nil {
		status.State = StateBroken
		status.Detail = err.Error()
		report.Findings = append(report.Findings, repairFinding(item, "cannot create %s: %v", item.Path, err))
		return status
	}

	_, werr := f.Write(content)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		status.State = StateBroken
		status.Detail = werr.Error()
		report.Findings = append(report.Findings, repairFinding(item, "cannot write %s: %v", item.Path, werr))
		return status
	}

	status.State = StateCreated
	report.CreatedPaths = append(report.CreatedPaths, item.Path)
	return status
}

func repairFinding(item Item, format string, args ...interface{}) finding.Finding {
	return finding.New("", finding.KindFileSystemRepair, finding.SeveritySevere, format, args...)
}
