package pathguard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"modhub/internal/finding"
)

func mkModule(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{"plain entry", "module.go", false},
		{"nested entry", "lib/helper.go", false},
		{"missing file still contained", "not_written_yet.go", false},
		{"empty entry", "", true},
		{"absolute entry", "/etc/passwd", true},
		{"parent escape", "../../secrets.go", true},
		{"parent segment that cleans safe", "lib/../module.go", true},
		{"dot entry is the folder itself", ".", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := mkModule(t, "module.go", "lib/helper.go")
			got, err := Validate(root, tt.entry)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate(%q) accepted, resolved to %s", tt.entry, got)
				}
				if !errors.Is(err, ErrPathTraversal) {
					t.Errorf("rejection not marked ErrPathTraversal: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) rejected: %v", tt.entry, err)
			}
			rootReal, _ := filepath.EvalSymlinks(root)
			if !strings.HasPrefix(got, rootReal+string(os.PathSeparator)) {
				t.Errorf("resolved path %s not under module root %s", got, rootReal)
			}
		})
	}
}

func TestValidateSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.go")
	if err := os.WriteFile(secret, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := mkModule(t, "module.go")
	link := filepath.Join(root, "entry.go")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := Validate(root, "entry.go"); err == nil {
		t.Fatal("symlink pointing outside the module folder must be rejected")
	} else if !errors.Is(err, ErrPathTraversal) {
		t.Errorf("rejection not marked ErrPathTraversal: %v", err)
	}
}

func TestValidateSymlinkInsideStays(t *testing.T) {
	root := mkModule(t, "module.go")
	link := filepath.Join(root, "alias.go")
	if err := os.Symlink(filepath.Join(root, "module.go"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := Validate(root, "alias.go"); err != nil {
		t.Fatalf("in-folder symlink rejected: %v", err)
	}
}

func TestValidateMissingRoot(t *testing.T) {
	if _, err := Validate(filepath.Join(t.TempDir(), "ghost"), "module.go"); err == nil {
		t.Fatal("nonexistent module root must be rejected")
	}
}

func TestFailureProducesOnePathTraversalFinding(t *testing.T) {
	root := mkModule(t, "module.go")
	_, err := Validate(root, "../../secrets.go")
	if err == nil {
		t.Fatal("expected rejection")
	}
	f := Failure("broken", err)
	if f.Kind != finding.KindPathTraversal {
		t.Errorf("kind = %s, want path_traversal", f.Kind)
	}
	if f.Severity != finding.SeveritySevere {
		t.Errorf("severity = %s, want severe", f.Severity)
	}
	if f.ModuleID != "broken" {
		t.Errorf("module id = %s", f.ModuleID)
	}
	if f.Suggestion == "" {
		t.Error("finding should carry the manifest.json remedy")
	}
}
