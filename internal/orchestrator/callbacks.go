package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mendhq/mend/internal/events"
	"github.com/mendhq/mend/internal/signature"
	"github.com/mendhq/mend/internal/types"
	"github.com/mendhq/mend/internal/worker"
)

// DeploymentReport is a deployment pipeline's verdict on a session's
// auto-committed fix.
type DeploymentReport struct {
	IncidentID string                 `json:"incidentId,omitempty"`
	SessionID  string                 `json:"sessionId"`
	Status     types.DeploymentStatus `json:"deploymentStatus"`
	URL        string                 `json:"url,omitempty"`
}

// HandleDeploymentStatus hands a deployment report to the event loop.
// Blocks until the loop accepts it, the orchestrator stops, or ctx
// expires.
func (o *Orchestrator) HandleDeploymentStatus(ctx context.Context, report DeploymentReport) error {
	if report.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if !report.Status.IsValid() {
		return fmt.Errorf("invalid deployment status %q", report.Status)
	}
	select {
	case o.deployCh <- report:
		return nil
	case <-o.stopCh:
		return fmt.Errorf("orchestrator is stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleWorkerResult resumes a session parked on a worker job. Runs on
// the event loop goroutine.
func (o *Orchestrator) handleWorkerResult(ctx context.Context, result worker.JobResult) error {
	o.mu.Lock()
	parked, ok := o.parkedJobs[result.JobID]
	if ok {
		delete(o.parkedJobs, result.JobID)
	}
	o.mu.Unlock()
	if !ok {
		fmt.Fprintf(os.Stderr, "ignoring result for unknown worker job %s\n", result.JobID)
		return nil
	}

	session, err := o.store.GetSession(ctx, parked.sessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil || session.Status != types.SessionActive {
		fmt.Fprintf(os.Stderr, "ignoring result for job %s: session %s is no longer active\n", result.JobID, parked.sessionID)
		return nil
	}

	inc, err := o.store.GetIncident(ctx, parked.incidentID)
	if err != nil {
		return fmt.Errorf("loading incident: %w", err)
	}
	if inc == nil {
		return fmt.Errorf("incident %s not found", parked.incidentID)
	}

	st := &sessionState{
		incident:  inc,
		sessionID: parked.sessionID,
		attemptID: parked.attemptID,
		strategy:  types.StrategyWorkerAgent,
		sig:       parked.sig,
	}

	if denial := o.envelope.AcquireLock(parked.incidentID); denial != nil {
		fmt.Fprintf(os.Stderr, "cannot resume session %s: %s\n", parked.sessionID, denial.Message)
		return o.failSession(ctx, st, failure{
			sessionErr:     "could not reacquire healing lock for worker result",
			attemptErr:     denial.Message,
			incidentStatus: types.IncidentOpen,
		})
	}
	defer o.envelope.Release()

	o.appendAction(ctx, st.attemptID, types.ActionWorkerCompleted, workerResultDetail(result))

	updates := map[string]interface{}{}
	if result.ModelTag != "" {
		updates["model_tag"] = result.ModelTag
	}
	if result.Notes != "" {
		notes := session.DiagnosisNotes
		if notes != "" {
			notes += "\n"
		}
		updates["diagnosis_notes"] = notes + result.Notes
	}
	if len(updates) > 0 {
		if err := o.store.UpdateSession(ctx, st.sessionID, updates); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record worker output on session %s: %v\n", st.sessionID, err)
		}
	}
	if result.Notes != "" {
		if err := o.store.SetIncidentRootCause(ctx, inc.ID, result.Notes); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to record root cause on incident %s: %v\n", inc.ID, err)
		}
	}

	if result.Err != nil || result.Fix == nil {
		detail := "worker agent produced no usable fix"
		if result.Err != nil {
			detail = fmt.Sprintf("worker job failed: %v", result.Err)
		}
		return o.failSession(ctx, st, failure{
			sessionErr:     "worker agent produced no usable fix",
			attemptErr:     detail,
			incidentStatus: types.IncidentOpen,
		})
	}
	return o.runRepairPipeline(ctx, st, result.Fix)
}

// workerResultDetail renders a job result for the audit trail.
func workerResultDetail(result worker.JobResult) string {
	outcome := "fix proposed"
	if result.Err != nil {
		outcome = "failed"
	} else if result.Fix == nil {
		outcome = "no fix"
	}
	duration := result.Duration.Round(time.Millisecond)
	if result.ModelTag == "" {
		return fmt.Sprintf("job %s %s (%s)", result.JobID, outcome, duration)
	}
	return fmt.Sprintf("job %s %s (%s, %s)", result.JobID, outcome, result.ModelTag, duration)
}

// handleDeployment applies a deployment report to a parked session.
// Runs on the event loop goroutine.
func (o *Orchestrator) handleDeployment(ctx context.Context, report DeploymentReport) error {
	session, err := o.store.GetSession(ctx, report.SessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		fmt.Fprintf(os.Stderr, "ignoring deployment report for unknown session %s\n", report.SessionID)
		return nil
	}
	if report.IncidentID != "" && report.IncidentID != session.IncidentID {
		return fmt.Errorf("deployment report incident %s does not match session %s (incident %s)",
			report.IncidentID, session.ID, session.IncidentID)
	}
	if session.Status != types.SessionActive || session.Phase != types.PhaseDeploy {
		fmt.Fprintf(os.Stderr, "ignoring deployment report for session %s in phase %s\n", session.ID, session.Phase)
		return nil
	}

	previous := session.DeploymentStatus
	if err := o.store.SetSessionDeploymentStatus(ctx, session.ID, report.Status); err != nil {
		return fmt.Errorf("recording deployment status: %w", err)
	}

	o.publish(events.NewDeploymentStatusEvent(
		session.IncidentID, session.ID, deploymentSeverity(report.Status),
		fmt.Sprintf("deployment %s for session %s", report.Status, session.ID),
		events.DeploymentStatusData{
			SessionID:        session.ID,
			IncidentID:       session.IncidentID,
			DeploymentStatus: string(report.Status),
			Timestamp:        time.Now().UTC(),
		},
	))

	switch report.Status {
	case types.DeployStatusDeploying:
		parked := o.parkedDeployFor(ctx, session)
		if previous != types.DeployStatusDeploying {
			o.appendAction(ctx, parked.attemptID, types.ActionDeploymentStarted, report.URL)
		}
		return nil
	case types.DeployStatusSucceeded:
		return o.deploySucceeded(ctx, session)
	case types.DeployStatusFailed:
		return o.deployFailed(ctx, session)
	}
	return nil
}

// deploySucceeded finishes a session whose deployed fix went out clean.
// Lock denial keeps the park so a later report can retry.
func (o *Orchestrator) deploySucceeded(ctx context.Context, session *types.HealingSession) error {
	parked := o.parkedDeployFor(ctx, session)

	if denial := o.envelope.AcquireLock(parked.incidentID); denial != nil {
		return fmt.Errorf("cannot finish deployment for session %s: %s", session.ID, denial.Message)
	}
	defer o.envelope.Release()

	o.mu.Lock()
	delete(o.parkedDeploys, session.ID)
	o.mu.Unlock()

	inc, err := o.store.GetIncident(ctx, parked.incidentID)
	if err != nil {
		return fmt.Errorf("loading incident: %w", err)
	}
	if inc == nil {
		return fmt.Errorf("incident %s not found", parked.incidentID)
	}

	return o.finishResolved(ctx, resolution{
		incident:       inc,
		sessionID:      session.ID,
		attemptID:      parked.attemptID,
		fixAttemptID:   parked.fixAttemptID,
		sig:            parked.sig,
		encodedFix:     parked.encodedFix,
		resultsJSON:    parked.resultsJSON,
		fixDescription: parked.fixDescription,
		commitHash:     parked.commitHash,
		score:          parked.score,
	})
}

// deployFailed rolls a deployed fix's workspace changes back and fails
// the session. The commit itself stays in history; reverting the
// default branch is a human decision.
func (o *Orchestrator) deployFailed(ctx context.Context, session *types.HealingSession) error {
	parked := o.parkedDeployFor(ctx, session)

	if denial := o.envelope.AcquireLock(parked.incidentID); denial != nil {
		return fmt.Errorf("cannot roll back deployment for session %s: %s", session.ID, denial.Message)
	}
	defer o.envelope.Release()

	o.mu.Lock()
	delete(o.parkedDeploys, session.ID)
	o.mu.Unlock()

	inc, err := o.store.GetIncident(ctx, parked.incidentID)
	if err != nil {
		return fmt.Errorf("loading incident: %w", err)
	}
	if inc == nil {
		return fmt.Errorf("incident %s not found", parked.incidentID)
	}

	o.rollback(parked.files)
	o.appendAction(ctx, parked.attemptID, types.ActionRollbackPerformed,
		fmt.Sprintf("%d file(s) reverted after deployment failure", len(parked.files)))
	o.completeFixAttempt(ctx, parked.fixAttemptID, types.OutcomeRolledBack, parked.resultsJSON, nil, "")
	o.recordKBFailure(ctx, parked.sig)

	st := &sessionState{
		incident:  inc,
		sessionID: session.ID,
		attemptID: parked.attemptID,
		strategy:  session.Strategy,
		sig:       parked.sig,
	}
	vp := true
	return o.failSession(ctx, st, failure{
		sessionErr:         "deployment failed",
		incidentStatus:     types.IncidentOpen,
		verificationPassed: &vp,
	})
}

func deploymentSeverity(status types.DeploymentStatus) events.EventSeverity {
	if status == types.DeployStatusFailed {
		return events.SeverityError
	}
	return events.SeverityInfo
}

// parkedDeployFor finds the in-memory record for a deploy-parked
// session, rebuilding it from storage when the park happened in a
// previous process.
func (o *Orchestrator) parkedDeployFor(ctx context.Context, session *types.HealingSession) parkedDeploy {
	o.mu.RLock()
	parked, ok := o.parkedDeploys[session.ID]
	o.mu.RUnlock()
	if ok {
		return parked
	}

	parked = o.reconstructParkedDeploy(ctx, session)
	o.mu.Lock()
	o.parkedDeploys[session.ID] = parked
	o.mu.Unlock()
	return parked
}

// reconstructParkedDeploy rebuilds deploy-park state from the session
// record. The session does not track its fix attempt row by ID, so
// that row stays pending.
func (o *Orchestrator) reconstructParkedDeploy(ctx context.Context, session *types.HealingSession) parkedDeploy {
	parked := parkedDeploy{
		incidentID:  session.IncidentID,
		files:       session.FilesChanged,
		encodedFix:  session.ProposedFix,
		commitHash:  session.CommitHash,
		resultsJSON: session.VerificationResults,
		// Only fixes at or above the auto-commit threshold reach the
		// deploy phase, so the threshold is a lower bound for the lost
		// score.
		score: o.safety.AutoCommitThreshold,
	}

	parked.fixDescription = "auto-committed fix deployed"
	if fix, err := types.ParseProposedFix(session.ProposedFix); err == nil {
		parked.fixDescription = fix.Description
	}

	if inc, err := o.store.GetIncident(ctx, session.IncidentID); err == nil && inc != nil {
		parked.sig = signature.ForIncident(inc)
	}

	attempts, err := o.store.ListAttemptsForSession(ctx, session.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to list attempts for session %s: %v\n", session.ID, err)
	}
	for _, attempt := range attempts {
		if attempt.CompletedAt == nil {
			parked.attemptID = attempt.ID
			break
		}
	}

	fmt.Fprintf(os.Stderr, "warning: fix attempt for session %s predates this process and will stay pending\n", session.ID)
	return parked
}
