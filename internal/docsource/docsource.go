// Package docsource materializes a documentation file set from either a git
// repository or a pre-existing local directory.
//
// The repository path shells out to the git CLI for a shallow, single-branch
// clone into a temporary directory; the clone is removed on every exit path.
// File collection walks the tree for a fixed extension allow-list.
package docsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// supportedExtensions is the documentation allow-list. Policy constant, not
// user-configurable.
var supportedExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".rst":  true,
	".json": true,
	".yaml": true,
	".yml":  true,
}

// DefaultCloneTimeout bounds the git clone subprocess.
const DefaultCloneTimeout = 120 * time.Second

// ErrCloneTimeout indicates the clone exceeded its deadline. The subprocess
// is killed before this is returned.
var ErrCloneTimeout = errors.New("git clone timed out")

// CloneError carries the git CLI's diagnostic output on a nonzero exit.
type CloneError struct {
	URL    string
	Output string
	Err    error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("git clone %s failed: %s", e.URL, strings.TrimSpace(e.Output))
}

func (e *CloneError) Unwrap() error { return e.Err }

// NotFoundError indicates a missing docs directory or an empty file set.
type NotFoundError struct {
	Path   string
	Reason string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Path)
}

// LoadFromRepository clones url at branch and collects documentation files
// under subpath. The returned paths live in a temporary directory; cleanup
// removes it and must be called exactly once (it is non-nil even on error).
func LoadFromRepository(ctx context.Context, url, subpath, branch string, timeout time.Duration) (files []string, cleanup func(), err error) {
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}

	tempDir, err := os.MkdirTemp("", "agent-rag-")
	if err != nil {
		return nil, func() {}, fmt.Errorf("creating temp directory: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tempDir) }
	defer func() {
		if err != nil {
			cleanup()
			cleanup = func() {}
		}
	}()

	if err = clone(ctx, url, branch, tempDir, timeout); err != nil {
		return nil, cleanup, err
	}

	docsRoot := filepath.Join(tempDir, filepath.FromSlash(subpath))
	if _, statErr := os.Stat(docsRoot); statErr != nil {
		return nil, cleanup, &NotFoundError{Path: subpath, Reason: "docs path not found"}
	}

	files, err = Collect(docsRoot)
	if err != nil {
		return nil, cleanup, err
	}
	return files, cleanup, nil
}

// LoadFromLocal collects documentation files under an existing directory.
// The directory is not owned by this package; no cleanup is performed.
func LoadFromLocal(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, &NotFoundError{Path: path, Reason: "directory not found"}
	}
	return Collect(path)
}

// Collect walks root and returns every file matching the extension
// allow-list, sorted for deterministic upload order. An empty result is a
// NotFoundError: a documentation source with nothing to index is a
// configuration mistake, not a success.
func Collect(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, &NotFoundError{Path: root, Reason: "no documentation files found"}
	}
	sort.Strings(files)
	return files, nil
}

// clone runs a shallow single-branch git clone bounded by timeout.
// CommandContext kills the subprocess when the deadline expires, so no
// orphaned git process survives a timeout.
func clone(ctx context.Context, url, branch, dir string, timeout time.Duration) error {
	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cloneCtx, "git", "clone",
		"--depth", "1", "--single-branch", "--branch", branch, url, dir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrCloneTimeout, timeout)
		}
		return &CloneError{URL: url, Output: stderr.String(), Err: err}
	}
	return nil
}
