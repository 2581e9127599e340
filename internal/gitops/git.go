package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Options configures a LocalGit gateway.
type Options struct {
	// RepoPath is the checkout healing operates on. Required.
	RepoPath string

	// DefaultBranch overrides default-branch detection. When empty the
	// remote HEAD decides, falling back to main or master.
	DefaultBranch string

	// Remote names the remote branches are pushed to. Defaults to origin.
	Remote string
}

// LocalGit lands fixes through the git CLI against a local checkout,
// mirroring what an operator would run by hand. Pull requests go through
// the gh CLI.
type LocalGit struct {
	repoPath      string
	gitPath       string
	remote        string
	defaultBranch string
}

// NewLocalGit verifies git is available and that the path is a repository.
func NewLocalGit(opts Options) (*LocalGit, error) {
	if opts.RepoPath == "" {
		return nil, fmt.Errorf("repo path is required")
	}

	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.Command(gitPath, "-C", opts.RepoPath, "rev-parse", "--git-dir")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", opts.RepoPath, err)
	}

	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	return &LocalGit{
		repoPath:      opts.RepoPath,
		gitPath:       gitPath,
		remote:        remote,
		defaultBranch: opts.DefaultBranch,
	}, nil
}

// RepoPath returns the checkout this gateway operates on.
func (g *LocalGit) RepoPath() string {
	return g.repoPath
}

// CommitToMain stages the given paths and commits them. A clean tree is a
// success: the returned hash is simply the current HEAD.
func (g *LocalGit) CommitToMain(ctx context.Context, files []string, message string) (*CommitResult, error) {
	if message == "" {
		return nil, fmt.Errorf("commit message is required")
	}

	if err := g.stage(ctx, files); err != nil {
		return nil, err
	}

	output, err := g.git(ctx, "commit", "-m", message)
	if err != nil && !nothingToCommit(output) {
		return nil, fmt.Errorf("git commit failed in %s: %w", g.repoPath, err)
	}

	hash, err := g.headHash(ctx)
	if err != nil {
		return nil, err
	}

	return &CommitResult{Hash: hash, URL: g.commitURL(ctx, hash)}, nil
}

// CreateBranchFromDefault creates the healing branch off the default
// branch and checks it out. Uncommitted fix edits in the working tree
// survive the checkout and are committed by the following PushBranch.
func (g *LocalGit) CreateBranchFromDefault(ctx context.Context, branch string) error {
	if !isValidBranchName(branch) {
		return fmt.Errorf("invalid branch name: %q", branch)
	}

	base, err := g.resolveDefaultBranch(ctx)
	if err != nil {
		return err
	}

	// -B resets a branch left behind by an earlier healing attempt.
	if _, err := g.git(ctx, "checkout", "-B", branch, base); err != nil {
		return fmt.Errorf("git checkout failed in %s: %w", g.repoPath, err)
	}
	return nil
}

// PushBranch writes the given files, commits them on the branch, and
// pushes it to the remote. The branch must already be checked out.
func (g *LocalGit) PushBranch(ctx context.Context, branch string, files []BranchFile, message string) error {
	if !isValidBranchName(branch) {
		return fmt.Errorf("invalid branch name: %q", branch)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to push to %s", branch)
	}

	current, err := g.currentBranch(ctx)
	if err != nil {
		return err
	}
	if current != branch {
		return fmt.Errorf("expected to be on branch %s, currently on %s", branch, current)
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		if err := g.writeBranchFile(f); err != nil {
			return err
		}
		paths = append(paths, f.Path)
	}

	if err := g.stage(ctx, paths); err != nil {
		return err
	}

	output, err := g.git(ctx, "commit", "-m", message)
	if err != nil && !nothingToCommit(output) {
		return fmt.Errorf("git commit failed in %s: %w", g.repoPath, err)
	}

	if _, err := g.git(ctx, "push", "--set-upstream", g.remote, branch); err != nil {
		return fmt.Errorf("git push failed in %s: %w", g.repoPath, err)
	}
	return nil
}

// git runs a subcommand against the repository and returns its combined
// output. Output comes back even on failure so callers can inspect
// messages like "nothing to commit".
func (g *LocalGit) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, append([]string{"-C", g.repoPath}, args...)...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (g *LocalGit) stage(ctx context.Context, files []string) error {
	args := []string{"add"}
	if len(files) == 0 {
		args = append(args, "-A")
	} else {
		args = append(args, "--")
		args = append(args, files...)
	}
	if _, err := g.git(ctx, args...); err != nil {
		return fmt.Errorf("git add failed in %s: %w", g.repoPath, err)
	}
	return nil
}

func (g *LocalGit) headHash(ctx context.Context) (string, error) {
	output, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", g.repoPath, err)
	}
	return strings.TrimSpace(output), nil
}

func (g *LocalGit) currentBranch(ctx context.Context) (string, error) {
	output, err := g.git(ctx, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(output), nil
}

// restoreDefaultBranch checks the default branch back out so later
// direct commits do not land on a healing branch. Best effort: the tree
// is clean after PushBranch, so a plain checkout cannot lose work. Runs
// on a fresh context because it must happen even when the caller's
// context was canceled.
func (g *LocalGit) restoreDefaultBranch() {
	ctx := context.Background()
	base, err := g.resolveDefaultBranch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to restore default branch in %s: %v\n", g.repoPath, err)
		return
	}
	if output, err := g.git(ctx, "checkout", base); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check out %s in %s: %v\n%s", base, g.repoPath, err, output)
	}
}

// resolveDefaultBranch finds the branch healing commits land on. A
// configured name wins; otherwise the remote HEAD decides, falling back
// to main or master for repositories without one. The answer is cached.
func (g *LocalGit) resolveDefaultBranch(ctx context.Context) (string, error) {
	if g.defaultBranch != "" {
		return g.defaultBranch, nil
	}

	output, err := g.git(ctx, "symbolic-ref", "--short", "refs/remotes/"+g.remote+"/HEAD")
	if err == nil {
		if _, name, ok := strings.Cut(strings.TrimSpace(output), "/"); ok && name != "" {
			g.defaultBranch = name
			return name, nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := g.git(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+candidate); err == nil {
			g.defaultBranch = candidate
			return candidate, nil
		}
	}

	return "", fmt.Errorf("could not determine default branch in %s", g.repoPath)
}

// writeBranchFile materializes gateway-provided content inside the repo.
// Paths are repo-relative; anything absolute or escaping the root is
// rejected.
func (g *LocalGit) writeBranchFile(f BranchFile) error {
	if f.Path == "" {
		return fmt.Errorf("branch file has no path")
	}
	if filepath.IsAbs(f.Path) {
		return fmt.Errorf("branch file path must be repo-relative: %s", f.Path)
	}

	rel := filepath.Clean(filepath.FromSlash(f.Path))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("branch file path escapes the repository: %s", f.Path)
	}

	abs := filepath.Join(g.repoPath, rel)
	if dir := filepath.Dir(abs); dir != g.repoPath {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.Path, err)
		}
	}
	if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}
	return nil
}

// commitURL derives a browsable URL for the commit from the remote URL.
// Best effort: repositories without a recognizable remote get none.
func (g *LocalGit) commitURL(ctx context.Context, hash string) string {
	output, err := g.git(ctx, "config", "--get", "remote."+g.remote+".url")
	if err != nil {
		return ""
	}
	base := webBaseURL(strings.TrimSpace(output))
	if base == "" {
		return ""
	}
	return base + "/commit/" + hash
}

// webBaseURL converts a git remote URL into a browsable https URL.
// Handles git@host:owner/repo.git, ssh://git@host/owner/repo, and plain
// http(s) remotes.
func webBaseURL(remote string) string {
	remote = strings.TrimSuffix(remote, ".git")
	switch {
	case strings.HasPrefix(remote, "https://"), strings.HasPrefix(remote, "http://"):
		return remote
	case strings.HasPrefix(remote, "ssh://git@"):
		return "https://" + strings.TrimPrefix(remote, "ssh://git@")
	case strings.HasPrefix(remote, "git@"):
		host, path, ok := strings.Cut(strings.TrimPrefix(remote, "git@"), ":")
		if !ok || host == "" || path == "" {
			return ""
		}
		return "https://" + host + "/" + path
	}
	return ""
}

// nothingToCommit reports whether a failed git commit actually means the
// tree was already clean. Healing treats that as success: the fix content
// is identical to what is on disk.
func nothingToCommit(output string) bool {
	return strings.Contains(output, "nothing to commit") ||
		strings.Contains(output, "nothing added to commit") ||
		strings.Contains(output, "no changes added to commit")
}

// isValidBranchName rejects names that could be misread as flags or
// smuggle shell metacharacters into git invocations.
func isValidBranchName(name string) bool {
	if len(name) == 0 || len(name) > 120 || strings.HasPrefix(name, "-") {
		return false
	}
	for _, c := range name {
		if (c < '0' || c > '9') &&
			(c < 'a' || c > 'z') &&
			(c < 'A' || c > 'Z') &&
			c != '-' && c != '_' && c != '/' && c != '.' {
			return false
		}
	}
	return true
}
