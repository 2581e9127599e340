package gitops

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// OpenOrUpdatePR opens a pull request for the branch via the gh CLI, or
// refreshes the title and body of an existing open one. Reusing the open
// PR keeps repeated healing attempts from piling up duplicates. The
// checkout returns to the default branch afterwards, whether or not the
// PR succeeded.
func (g *LocalGit) OpenOrUpdatePR(ctx context.Context, branch, title, body string) (*PRResult, error) {
	defer g.restoreDefaultBranch()

	ghPath, err := exec.LookPath("gh")
	if err != nil {
		return nil, fmt.Errorf("gh CLI not found: %w (install from https://cli.github.com/)", err)
	}

	if existing := g.findOpenPR(ctx, ghPath, branch); existing != nil {
		output, err := g.gh(ctx, ghPath, "pr", "edit", strconv.Itoa(existing.Number),
			"--title", title,
			"--body", body)
		if err != nil {
			return nil, fmt.Errorf("gh pr edit failed: %w\nOutput: %s", err, output)
		}
		return existing, nil
	}

	output, err := g.gh(ctx, ghPath, "pr", "create",
		"--title", title,
		"--body", body,
		"--head", branch)
	if err != nil {
		return nil, fmt.Errorf("gh pr create failed: %w\nOutput: %s", err, output)
	}

	url := lastLine(output)
	number := prNumberFromURL(url)
	if number == 0 {
		return nil, fmt.Errorf("could not parse PR URL from gh output: %s", strings.TrimSpace(output))
	}
	return &PRResult{Number: number, URL: url}, nil
}

// findOpenPR returns the open PR whose head is branch, or nil when there
// is none. A closed or merged PR does not count; a fresh one gets opened
// for the new attempt.
func (g *LocalGit) findOpenPR(ctx context.Context, ghPath, branch string) *PRResult {
	output, err := g.ghJSON(ctx, ghPath, "pr", "view", branch, "--json", "number,url,state")
	if err != nil {
		return nil
	}

	var pr struct {
		Number int    `json:"number"`
		URL    string `json:"url"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(output, &pr); err != nil {
		return nil
	}
	if pr.Number == 0 || !strings.EqualFold(pr.State, "open") {
		return nil
	}
	return &PRResult{Number: pr.Number, URL: pr.URL}
}

// gh runs the gh CLI in the repository directory and returns combined
// output for error reporting.
func (g *LocalGit) gh(ctx context.Context, ghPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, ghPath, args...)
	cmd.Dir = g.repoPath
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// ghJSON runs gh and returns stdout only, keeping progress chatter on
// stderr out of JSON parsing.
func (g *LocalGit) ghJSON(ctx context.Context, ghPath string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ghPath, args...)
	cmd.Dir = g.repoPath
	return cmd.Output()
}

// lastLine returns the last non-empty line of output. gh prints the PR
// URL last, after any progress messages.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// prNumberFromURL extracts the PR number from a URL like
// https://github.com/owner/repo/pull/42.
func prNumberFromURL(url string) int {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx+1 >= len(url) {
		return 0
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
