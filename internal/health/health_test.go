package health

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"modhub/internal/finding"
)

func TestCheckReportsMissingWithoutRepair(t *testing.T) {
	root := t.TempDir()

	report := Check(root, false)

	assert.Len(t, report.MissingPaths, 7)
	assert.Empty(t, report.CreatedPaths)
	assert.Empty(t, report.PermissionFixes)
	assert.Empty(t, report.Findings, "check-only mode records lists, not findings")
	assert.Equal(t, 7, report.StillBroken())

	_, err := os.Stat(filepath.Join(root, "modules"))
	assert.True(t, os.IsNotExist(err), "check-only mode must not touch the filesystem")
}

func TestRepairCreatesSkeleton(t *testing.T) {
	root := t.TempDir()

	report := Check(root, true)

	assert.Len(t, report.CreatedPaths, 7)
	assert.Equal(t, 7, report.Repaired())
	assert.Zero(t, report.StillBroken())
	assert.Empty(t, report.Findings)

	for _, dir := range []string{"modules", ".modhub", ".modhub/logs", ".modhub/data", ".modhub/reports"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}

	seed, err := os.ReadFile(filepath.Join(root, "modules.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(seed))

	raw, err := os.ReadFile(filepath.Join(root, ".modhub", "settings.yaml"))
	require.NoError(t, err)
	var settings map[string]interface{}
	require.NoError(t, yaml.Unmarshal(raw, &settings))
	assert.Contains(t, settings, "modules_root")
}

func TestRepairIsIdempotent(t *testing.T) {
	root := t.TempDir()

	first := Check(root, true)
	require.Zero(t, first.StillBroken())

	second := Check(root, true)
	assert.Empty(t, second.MissingPaths)
	assert.Empty(t, second.CreatedPaths)
	assert.Empty(t, second.PermissionFixes)
	assert.Empty(t, second.Findings)

	want := []ItemStatus{
		{Path: "modules", Kind: KindDir, State: StateOK},
		{Path: ".modhub", Kind: KindDir, State: StateOK},
		{Path: ".modhub/logs", Kind: KindDir, State: StateOK},
		{Path: ".modhub/data", Kind: KindDir, State: StateOK},
		{Path: ".modhub/reports", Kind: KindDir, State: StateOK},
		{Path: "modules.json", Kind: KindFile, State: StateOK},
		{Path: ".modhub/settings.yaml", Kind: KindFile, State: StateOK},
	}
	if diff := cmp.Diff(want, second.Items); diff != "" {
		t.Errorf("second pass items mismatch (-want +got):\n%s", diff)
	}
}

func TestRepairFixesPermissionBits(t *testing.T) {
	root := t.TempDir()
	require.Zero(t, Check(root, true).StillBroken())

	locked := filepath.Join(root, ".modhub", "data")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	report := Check(root, true)

	assert.Equal(t, []string{".modhub/data"}, report.PermissionFixes)
	assert.Empty(t, report.Findings)
	assert.Zero(t, report.StillBroken())

	info, err := os.Stat(locked)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(needDirBits), info.Mode().Perm()&needDirBits)
}

func TestCheckFlagsPermissionBitsWithoutRepair(t *testing.T) {
	root := t.TempDir()
	require.Zero(t, Check(root, true).StillBroken())

	locked := filepath.Join(root, "modules.json")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	report := Check(root, false)

	assert.Empty(t, report.PermissionFixes)
	assert.Equal(t, 1, report.StillBroken())
	for _, item := range report.Items {
		if item.Path == "modules.json" {
			assert.Equal(t, StateBroken, item.State)
			assert.Contains(t, item.Detail, "permissions")
		}
	}
}

func TestRepairReportsTypeConflict(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "modules"), []byte("not a directory"), 0o644))

	report := Check(root, true)

	require.NotEmpty(t, report.Findings)
	assert.Equal(t, finding.KindFileSystemRepair, report.Findings[0].Kind)
	assert.Equal(t, finding.SeveritySevere, report.Findings[0].Severity)
	assert.GreaterOrEqual(t, report.StillBroken(), 1)
}

func TestRepairFailuresBecomeFindings(t *testing.T) {
	rootFile := filepath.Join(t.TempDir(), "rootfile")
	require.NoError(t, os.WriteFile(rootFile, []byte("x"), 0o644))

	report := Check(rootFile, true)

	assert.Len(t, report.Findings, 7, "every item should fail individually, none should abort the pass")
	for _, f := range report.Findings {
		assert.Equal(t, finding.KindFileSystemRepair, f.Kind)
		assert.Equal(t, finding.SeveritySevere, f.Severity)
	}
	assert.Equal(t, 7, report.StillBroken())
}
