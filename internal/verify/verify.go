// Package verify runs the pre-commit verification protocol over a
// proposed fix: every modified path must exist in the workspace, and
// the project's static check must pass within the timeout. A failed
// verification is the trigger for rollback; nothing is committed until
// this passes.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// maxErrorDetail caps how much checker output is carried into session
// records and PR bodies.
const maxErrorDetail = 1000

// defaultTimeout bounds the type-check subprocess when the caller does
// not supply a limit.
const defaultTimeout = 30 * time.Second

// Workspace is the slice of the workspace the verifier needs.
type Workspace interface {
	FileExists(path string) bool
	TypeCheck(ctx context.Context) (ok bool, output string, err error)
}

// Result is the outcome of one verification run.
type Result struct {
	Passed       bool     `json:"passed"`
	Checks       []string `json:"checks"`
	ErrorDetails string   `json:"error_details,omitempty"`
}

// Verifier checks proposed fixes before commit.
type Verifier struct {
	workspace Workspace
	timeout   time.Duration
}

// New creates a verifier. A non-positive timeout falls back to 30s.
func New(workspace Workspace, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Verifier{workspace: workspace, timeout: timeout}
}

// Verify runs the checks in order: existence first, then the bounded
// type check. The first failing stage short-circuits the rest.
func (v *Verifier) Verify(ctx context.Context, filesModified []string) *Result {
	result := &Result{}

	var missing []string
	for _, path := range filesModified {
		if !v.workspace.FileExists(path) {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		result.Checks = append(result.Checks,
			fmt.Sprintf("existence: %d of %d files missing", len(missing), len(filesModified)))
		result.ErrorDetails = fmt.Sprintf("files missing after fix applied: %s",
			strings.Join(missing, ", "))
		return result
	}
	result.Checks = append(result.Checks,
		fmt.Sprintf("existence: all %d files present", len(filesModified)))

	checkCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ok, output, err := v.workspace.TypeCheck(checkCtx)
	if err != nil {
		result.Checks = append(result.Checks, "type check: could not run")
		result.ErrorDetails = truncate(err.Error(), maxErrorDetail)
		return result
	}
	if !ok {
		result.Checks = append(result.Checks, "type check: failed")
		result.ErrorDetails = truncate(output, maxErrorDetail)
		return result
	}

	result.Checks = append(result.Checks, "type check: passed")
	result.Passed = true
	return result
}

// Summary renders the result as a single line for logs and notes.
func (r *Result) Summary() string {
	status := "failed"
	if r.Passed {
		status = "passed"
	}
	return fmt.Sprintf("verification %s (%s)", status, strings.Join(r.Checks, "; "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[... truncated]"
}
