package workspace

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// TypeCheck runs the workspace's static check and reports whether it
// passed along with the combined output. The command is the configured
// override when set, otherwise detected from the project layout:
// go.mod runs go build ./..., tsconfig.json or package.json runs
// npx tsc --noEmit. With no recognizable project the check passes
// vacuously with a note.
//
// ok is false for non-zero exits and for context timeouts; the error
// return is reserved for failing to run the command at all.
func (w *Local) TypeCheck(ctx context.Context) (bool, string, error) {
	w.mu.Lock()
	args := w.typeCheckCmd
	w.mu.Unlock()
	if len(args) == 0 {
		args = w.detectTypeCheckCommand()
	}
	if len(args) == 0 {
		return true, "no type checker detected; skipping", nil
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = w.root
	output, err := cmd.CombinedOutput()
	text := string(output)

	if ctx.Err() == context.DeadlineExceeded {
		return false, fmt.Sprintf("type check timed out (%s)\n%s", strings.Join(args, " "), text), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, text, nil
		}
		return false, text, fmt.Errorf("running %s: %w", strings.Join(args, " "), err)
	}
	return true, text, nil
}

// detectTypeCheckCommand picks the static check from the project
// layout at the workspace root.
func (w *Local) detectTypeCheckCommand() []string {
	return DetectProject(w.root).TypeCheck
}
