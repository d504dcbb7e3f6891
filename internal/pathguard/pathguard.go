// Package pathguard decides whether a module's declared entry file stays
// strictly inside that module's own folder. It runs before anything opens
// the entry file: a module must not be able to point the validator (or
// later the interpreter) at an arbitrary path via "..", absolute paths, or
// symlinks.
package pathguard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"modhub/internal/finding"
)

// ErrPathTraversal marks every rejection produced by Validate.
var ErrPathTraversal = errors.New("entry path escapes module folder")

// Validate resolves declaredEntry against moduleRoot and returns the
// resolved path, or an ErrPathTraversal-marked error. Rejections, in
// order: empty entry, absolute entry, any raw ".." segment (checked before
// cleaning, so "a/../b" is rejected even though it cleans to a safe path),
// and a resolved path that does not keep the module root as a strict
// prefix. If the entry exists and is (or traverses) a symlink, the symlink
// target must satisfy the same prefix rule.
func Validate(moduleRoot, declaredEntry string) (string, error) {
	if declaredEntry == "" {
		return "", reject("entry path is empty")
	}
	if filepath.IsAbs(declaredEntry) {
		return "", reject("entry path %q is absolute", declaredEntry)
	}
	for _, seg := range strings.Split(filepath.ToSlash(declaredEntry), "/") {
		if seg == ".." {
			return "", reject("entry path %q contains a parent-directory segment", declaredEntry)
		}
	}

	rootAbs, err := filepath.Abs(moduleRoot)
	if err != nil {
		return "", reject("module root %q cannot be resolved: %v", moduleRoot, err)
	}
	// Pin down the real root so a symlinked entry cannot sneak a
	// different prefix past the comparison below.
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", reject("module root %q cannot be resolved: %v", moduleRoot, err)
	}

	candidate := filepath.Join(rootReal, declaredEntry)
	if !within(rootReal, candidate) {
		return "", reject("entry path %q resolves outside the module folder", declaredEntry)
	}

	// A symlink inside the folder may still point outside it.
	if _, lerr := os.Lstat(candidate); lerr == nil {
		real, rerr := filepath.EvalSymlinks(candidate)
		if rerr != nil {
			return "", reject("entry path %q cannot be resolved: %v", declaredEntry, rerr)
		}
		if !within(rootReal, real) {
			return "", reject("entry path %q is a link leaving the module folder", declaredEntry)
		}
	}

	return candidate, nil
}

// Failure converts a Validate error into the single PathTraversal finding
// recorded for the module.
func Failure(moduleID string, err error) finding.Finding {
	return finding.New(moduleID, finding.KindPathTraversal, finding.SeveritySevere,
		"%v", errors.UnwrapAll(err))
}

// within reports whether p is strictly inside root (the root itself does
// not count: an entry must be a file in the folder, not the folder).
func within(root, p string) bool {
	if p == root {
		return false
	}
	return strings.HasPrefix(p, root+string(os.PathSeparator))
}

func reject(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrPathTraversal)
}
