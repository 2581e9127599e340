// Package workspace gives the healing pipeline a guarded view of the
// monitored checkout. Every path is validated against the workspace
// root before any read or write, the original content of each modified
// file is snapshotted so a failed fix can be rolled back byte for byte,
// and the project's own static check runs through TypeCheck.
package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// fileSnapshot is the pre-change state of one file. existed is false
// when the fix created the file, in which case revert removes it.
type fileSnapshot struct {
	content []byte
	existed bool
}

// Local is a workspace backed by a directory on the local filesystem.
type Local struct {
	root string

	mu           sync.Mutex
	snapshots    map[string]*fileSnapshot
	typeCheckCmd []string
}

// NewLocal opens a workspace rooted at dir. The directory must exist.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Local{
		root:      abs,
		snapshots: make(map[string]*fileSnapshot),
	}, nil
}

// Root returns the absolute workspace root.
func (w *Local) Root() string {
	return w.root
}

// SetTypeCheckCommand overrides the detected type-check command. The
// first element is the executable, the rest its arguments.
func (w *Local) SetTypeCheckCommand(args []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.typeCheckCmd = args
}

// resolve validates a workspace-relative path and returns the cleaned
// relative form plus the absolute location. Absolute paths and paths
// that escape the root are rejected.
func (w *Local) resolve(path string) (rel, abs string, err error) {
	if path == "" {
		return "", "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) {
		return "", "", fmt.Errorf("absolute path not allowed: %s", path)
	}
	rel = filepath.Clean(filepath.FromSlash(path))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path escapes the workspace: %s", path)
	}
	return rel, filepath.Join(w.root, rel), nil
}

// ReadFile reads a file relative to the workspace root.
func (w *Local) ReadFile(path string) ([]byte, error) {
	_, abs, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// WriteFile writes a file relative to the workspace root, creating
// parent directories as needed. The first write to a path in a session
// snapshots its pre-change state for RevertFile.
func (w *Local) WriteFile(path string, content []byte) error {
	rel, abs, err := w.resolve(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if _, ok := w.snapshots[rel]; !ok {
		prior, readErr := os.ReadFile(abs)
		switch {
		case readErr == nil:
			w.snapshots[rel] = &fileSnapshot{content: prior, existed: true}
		case os.IsNotExist(readErr):
			w.snapshots[rel] = &fileSnapshot{existed: false}
		default:
			w.mu.Unlock()
			return fmt.Errorf("snapshotting %s before write: %w", rel, readErr)
		}
	}
	w.mu.Unlock()

	if dir := filepath.Dir(abs); dir != w.root {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directories for %s: %w", rel, err)
		}
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// RevertFile restores a file to its pre-change state. Files created by
// the fix are removed. Without a snapshot (the file was changed by a
// worker process rather than WriteFile) it falls back to git checkout.
func (w *Local) RevertFile(path string) error {
	rel, abs, err := w.resolve(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	snap, ok := w.snapshots[rel]
	w.mu.Unlock()

	if !ok {
		return w.gitRestore(rel)
	}
	if !snap.existed {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing created file %s: %w", rel, err)
		}
		return nil
	}
	if err := os.WriteFile(abs, snap.content, 0o644); err != nil {
		return fmt.Errorf("restoring %s: %w", rel, err)
	}
	return nil
}

// gitRestore reverts a file through git when no snapshot exists, which
// happens when a worker process modified the file directly instead of
// going through WriteFile.
func (w *Local) gitRestore(rel string) error {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return fmt.Errorf("no snapshot for %s and git not available: %w", rel, err)
	}
	cmd := exec.Command(gitPath, "-C", w.root, "checkout", "--", rel)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout %s: %s: %w", rel, strings.TrimSpace(string(output)), err)
	}
	return nil
}

// ClearSnapshots drops all recorded pre-change state. The orchestrator
// calls this when a session starts so snapshots never leak across
// sessions.
func (w *Local) ClearSnapshots() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshots = make(map[string]*fileSnapshot)
}

// SnapshotCount reports how many files have recorded pre-change state.
func (w *Local) SnapshotCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.snapshots)
}

// FileExists reports whether path resolves to a regular file inside
// the workspace.
func (w *Local) FileExists(path string) bool {
	_, abs, err := w.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// ListFiles returns the names of the regular files directly inside a
// workspace directory.
func (w *Local) ListFiles(dir string) ([]string, error) {
	_, abs, err := w.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
