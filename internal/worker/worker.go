// Package worker delegates repairs that no knowledge-base entry can
// answer to an external agent with tool access. Jobs are submitted
// fire-and-forget; completions come back on a typed channel the
// supervisor drains.
package worker

import (
	"context"
	"time"

	"github.com/mendhq/mend/internal/types"
)

// Agent dispatches repair jobs on behalf of a system user. Submission
// returns immediately with a job ID; the outcome arrives later on
// Results.
type Agent interface {
	// SubmitJob dispatches a repair job and returns its ID. The context
	// covers the submission only: a dispatched job keeps running after
	// the submitting session ends.
	SubmitJob(ctx context.Context, systemUserID, diagnostic string) (string, error)

	// Results delivers job completions. Closed by Close after all
	// in-flight jobs have reported.
	Results() <-chan JobResult

	// Close stops accepting jobs and waits for in-flight ones to finish.
	Close() error
}

// JobResult is what a completed worker job delivers back to the
// supervisor.
type JobResult struct {
	JobID    string
	Fix      *types.ProposedFix // nil when the job produced no usable fix
	Notes    string             // agent's root-cause summary
	ModelTag string
	Err      error // non-nil when the job failed outright
	Duration time.Duration
}
