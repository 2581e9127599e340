package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mendhq/mend/internal/classify"
	"github.com/mendhq/mend/internal/confidence"
	"github.com/mendhq/mend/internal/events"
	"github.com/mendhq/mend/internal/gitops"
	"github.com/mendhq/mend/internal/safety"
	"github.com/mendhq/mend/internal/signature"
	"github.com/mendhq/mend/internal/types"
	"github.com/mendhq/mend/internal/verify"
	"github.com/mendhq/mend/internal/worker"
)

// sessionState carries the identifiers the pipeline threads through one
// healing session.
type sessionState struct {
	incident  *types.Incident
	sessionID string
	attemptID string
	strategy  types.Strategy
	sig       string
}

// failure describes how a session ends when a pipeline stage gives up.
// incidentStatus distinguishes retryable failures (the incident goes
// back to open) from terminal ones.
type failure struct {
	sessionErr         string
	attemptErr         string
	incidentStatus     types.IncidentStatus
	verificationPassed *bool
}

// landing carries a verified fix to whichever landing path the
// confidence score selects.
type landing struct {
	fix          *types.ProposedFix
	files        []string
	encoded      string
	resultsJSON  string
	verification *verify.Result
	assessment   *confidence.Assessment
	fixAttemptID string
}

// resolution is everything needed to finish a successfully landed fix,
// shared by the immediate commit path and the deployment callback.
type resolution struct {
	incident       *types.Incident
	sessionID      string
	attemptID      string
	fixAttemptID   string
	sig            string
	encodedFix     string
	resultsJSON    string
	fixDescription string
	commitHash     string
	score          int
}

// processIncident runs one healing session for an incident, end to end
// for the knowledge base tier, or up to the park point for the worker
// tier. force permits retrying a terminally failed incident.
func (o *Orchestrator) processIncident(ctx context.Context, incidentID string, force bool) error {
	inc, err := o.store.GetIncident(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("loading incident: %w", err)
	}
	if inc == nil {
		return fmt.Errorf("incident %s not found", incidentID)
	}

	switch inc.Status {
	case types.IncidentHealing, types.IncidentResolved:
		return nil
	case types.IncidentFailed:
		if !force {
			fmt.Fprintf(os.Stderr, "incident %s is failed and is not retried automatically\n", incidentID)
			return nil
		}
	}

	// A session waiting on a worker or a deployment still owns the
	// workspace snapshots; starting another would tangle the rollback
	// state. The incident stays in storage for the poller.
	o.mu.RLock()
	parked := len(o.parkedJobs) + len(o.parkedDeploys)
	o.mu.RUnlock()
	if parked > 0 {
		fmt.Fprintf(os.Stderr, "deferring incident %s: %d session(s) awaiting callbacks\n", incidentID, parked)
		return nil
	}

	if denial := o.envelope.Admit(inc.ID, inc.AttemptCount); denial != nil {
		if denial.Reason == safety.DeniedAttemptCap {
			if inc.Status != types.IncidentFailed {
				if err := o.store.UpdateIncidentStatus(ctx, inc.ID, types.IncidentFailed); err != nil {
					return fmt.Errorf("failing incident at attempt cap: %w", err)
				}
			}
			fmt.Fprintf(os.Stderr, "incident %s failed: %s\n", inc.ID, denial.Message)
			return nil
		}
		fmt.Fprintf(os.Stderr, "healing denied for incident %s: %s\n", inc.ID, denial.Message)
		return nil
	}
	defer o.envelope.Release()

	if err := o.store.MarkIncidentHealing(ctx, inc.ID, o.safety.MaxAttemptsPerIncident); err != nil {
		return fmt.Errorf("claiming incident: %w", err)
	}
	inc, err = o.store.GetIncident(ctx, inc.ID)
	if err != nil || inc == nil {
		o.reopenIncident(ctx, incidentID)
		return fmt.Errorf("reloading claimed incident %s: %w", incidentID, err)
	}

	o.ws.ClearSnapshots()

	verdict := classify.Classify(inc)
	sig := signature.ForIncident(inc)

	entry, matchConfidence, err := o.kb.Lookup(ctx, sig)
	if err != nil {
		o.reopenIncident(ctx, inc.ID)
		return fmt.Errorf("knowledge base lookup: %w", err)
	}

	strategy := types.StrategyWorkerAgent
	var kbFix *types.ProposedFix
	var kbParseErr error
	if entry != nil && matchConfidence >= o.safety.KBAutoApplyThreshold {
		strategy = types.StrategyKnowledgeBase
		kbFix, kbParseErr = types.ParseProposedFix(entry.SuccessfulFix)
	}

	session := &types.HealingSession{
		IncidentID:     inc.ID,
		Strategy:       strategy,
		DiagnosisNotes: diagnosisNotes(verdict, entry, matchConfidence),
	}
	if strategy == types.StrategyKnowledgeBase {
		session.KBMatchID = entry.ID
		session.KBMatchConfidence = &matchConfidence
	}
	if err := o.store.CreateSession(ctx, session); err != nil {
		o.reopenIncident(ctx, inc.ID)
		return fmt.Errorf("creating session: %w", err)
	}

	attempt := &types.HealAttempt{
		IncidentID:    inc.ID,
		SessionID:     session.ID,
		AttemptNumber: inc.AttemptCount,
		Strategy:      strategy,
		ActionsTaken: []types.AttemptAction{{
			Action:    types.ActionDiagnosisStarted,
			Timestamp: time.Now().UTC(),
			Detail:    verdict.Summary(),
		}},
	}
	if err := o.store.CreateHealAttempt(ctx, attempt); err != nil {
		o.abortSession(ctx, inc.ID, session.ID, "could not record heal attempt")
		return fmt.Errorf("creating heal attempt: %w", err)
	}

	o.publish(events.NewHealingStartedEvent(
		inc.ID, session.ID, events.SeverityInfo,
		fmt.Sprintf("healing started for %s using %s", inc.Title, strategy),
		events.HealingStartedData{
			IncidentID: inc.ID,
			SessionID:  session.ID,
			Incident: events.IncidentSummary{
				Kind:     string(inc.Kind),
				Severity: string(inc.Severity),
				Title:    inc.Title,
			},
			Strategy:          string(strategy),
			UsedKnowledgeBase: strategy == types.StrategyKnowledgeBase,
		},
	))

	st := &sessionState{
		incident:  inc,
		sessionID: session.ID,
		attemptID: attempt.ID,
		strategy:  strategy,
		sig:       sig,
	}

	if strategy == types.StrategyKnowledgeBase {
		if kbParseErr != nil {
			return o.failSession(ctx, st, failure{
				sessionErr:     "knowledge base fix could not be applied",
				attemptErr:     fmt.Sprintf("parsing stored fix: %v", kbParseErr),
				incidentStatus: types.IncidentFailed,
			})
		}
		if err := o.store.UpdateSessionPhase(ctx, st.sessionID, types.PhaseRepair); err != nil {
			o.abortSession(ctx, inc.ID, st.sessionID, "could not advance session phase")
			return fmt.Errorf("advancing session to repair: %w", err)
		}
		return o.runRepairPipeline(ctx, st, kbFix)
	}
	return o.dispatchWorker(ctx, st)
}

// diagnosisNotes summarizes the classifier verdict and any knowledge
// base match for the session record.
func diagnosisNotes(verdict *classify.Classification, entry *types.KBEntry, matchConfidence int) string {
	notes := verdict.Summary()
	if entry != nil {
		notes += fmt.Sprintf("\nknowledge base match %s (confidence %d)", entry.ID, matchConfidence)
	}
	return notes
}

// dispatchWorker hands the incident to the worker agent and parks the
// session. The healing lock is released when processIncident returns,
// so other incidents can heal while the worker thinks.
func (o *Orchestrator) dispatchWorker(ctx context.Context, st *sessionState) error {
	systemUserID, err := o.identity.SystemUserID(ctx)
	if err != nil {
		o.abortSession(ctx, st.incident.ID, st.sessionID, "could not resolve the system user")
		return fmt.Errorf("resolving system user: %w", err)
	}
	if systemUserID == "" {
		return o.failSession(ctx, st, failure{
			sessionErr:     "escalation requires explicit user request",
			attemptErr:     "no system user available for worker delegation",
			incidentStatus: types.IncidentFailed,
		})
	}

	jobID, err := o.agent.SubmitJob(ctx, systemUserID, worker.Diagnostic(st.incident))
	if err != nil {
		return o.failSession(ctx, st, failure{
			sessionErr:     "escalation requires explicit user request",
			attemptErr:     fmt.Sprintf("worker submission failed: %v", err),
			incidentStatus: types.IncidentFailed,
		})
	}

	if err := o.store.UpdateSession(ctx, st.sessionID, map[string]interface{}{"worker_job_id": jobID}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record worker job on session %s: %v\n", st.sessionID, err)
	}
	o.appendAction(ctx, st.attemptID, types.ActionWorkerDispatched, fmt.Sprintf("job %s", jobID))
	if err := o.store.UpdateSessionPhase(ctx, st.sessionID, types.PhaseRepair); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to advance session %s: %v\n", st.sessionID, err)
	}

	o.mu.Lock()
	o.parkedJobs[jobID] = parkedJob{
		incidentID: st.incident.ID,
		sessionID:  st.sessionID,
		attemptID:  st.attemptID,
		sig:        st.sig,
	}
	o.mu.Unlock()
	return nil
}

// runRepairPipeline applies a proposed fix to the workspace, verifies
// it, scores it, and lands it. Called with the healing lock held.
func (o *Orchestrator) runRepairPipeline(ctx context.Context, st *sessionState, fix *types.ProposedFix) error {
	files := fix.Paths()
	encoded, err := fix.Encode()
	if err != nil {
		o.abortSession(ctx, st.incident.ID, st.sessionID, "could not encode proposed fix")
		return fmt.Errorf("encoding proposed fix: %w", err)
	}
	if err := o.store.UpdateSession(ctx, st.sessionID, map[string]interface{}{
		"proposed_fix":  encoded,
		"files_changed": files,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record proposed fix on session %s: %v\n", st.sessionID, err)
	}

	for _, file := range fix.Files {
		if err := o.ws.WriteFile(file.Path, []byte(file.Content)); err != nil {
			o.rollback(files)
			return o.failSession(ctx, st, failure{
				sessionErr:     fmt.Sprintf("applying fix to %s failed", file.Path),
				attemptErr:     err.Error(),
				incidentStatus: types.IncidentFailed,
			})
		}
	}
	if st.strategy == types.StrategyKnowledgeBase {
		o.appendAction(ctx, st.attemptID, types.ActionKBFixApplied, fix.Description)
	}

	if err := o.store.UpdateSessionPhase(ctx, st.sessionID, types.PhaseVerify); err != nil {
		o.rollback(files)
		o.abortSession(ctx, st.incident.ID, st.sessionID, "could not advance session phase")
		return fmt.Errorf("advancing session to verify: %w", err)
	}

	result := o.verifier.Verify(ctx, files)
	resultsJSON := encodeVerification(result)
	o.appendAction(ctx, st.attemptID, types.ActionVerificationRun, result.Summary())
	passed := result.Passed
	if err := o.store.UpdateSession(ctx, st.sessionID, map[string]interface{}{
		"verification_results": resultsJSON,
		"verification_passed":  passed,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record verification on session %s: %v\n", st.sessionID, err)
	}

	// Score before any rollback: the complexity factor reads the fix
	// files as they sit on disk.
	assessment, err := o.scorer.Score(ctx, confidence.Input{
		ErrorKind:          st.incident.Kind,
		ErrorMessage:       st.incident.Description,
		StackTrace:         st.incident.StackTrace,
		FilesModified:      files,
		ProposedFix:        encoded,
		VerificationPassed: &passed,
	})
	if err != nil {
		o.rollback(files)
		o.abortSession(ctx, st.incident.ID, st.sessionID, "confidence scoring failed")
		return fmt.Errorf("scoring proposed fix: %w", err)
	}

	fixAttempt := &types.FixAttempt{
		ErrorSignature:  st.sig,
		SessionID:       st.sessionID,
		ProposedFix:     encoded,
		ConfidenceScore: assessment.Score,
	}
	if err := o.store.CreateFixAttempt(ctx, fixAttempt); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record fix attempt for session %s: %v\n", st.sessionID, err)
	}

	if !passed {
		o.rollback(files)
		o.appendAction(ctx, st.attemptID, types.ActionRollbackPerformed, fmt.Sprintf("%d file(s) reverted", len(files)))
		o.completeFixAttempt(ctx, fixAttempt.ID, types.OutcomeRolledBack, resultsJSON, nil, "")
		o.recordKBFailure(ctx, st.sig)
		vp := false
		return o.failSession(ctx, st, failure{
			sessionErr:         fmt.Sprintf("verification failed: %s", result.ErrorDetails),
			attemptErr:         result.ErrorDetails,
			incidentStatus:     types.IncidentOpen,
			verificationPassed: &vp,
		})
	}

	l := landing{
		fix:          fix,
		files:        files,
		encoded:      encoded,
		resultsJSON:  resultsJSON,
		verification: result,
		assessment:   assessment,
		fixAttemptID: fixAttempt.ID,
	}
	if assessment.Recommendation == confidence.RecommendAutoCommit {
		return o.commitFix(ctx, st, l)
	}
	return o.openPullRequest(ctx, st, l)
}

// commitFix lands a trusted fix directly on the default branch. With
// deployment gating on, the session parks in the deploy phase until the
// pipeline reports back; otherwise it completes immediately.
func (o *Orchestrator) commitFix(ctx context.Context, st *sessionState, l landing) error {
	commit, err := o.gateway.CommitToMain(ctx, l.files, gitops.CommitMessage(st.incident.Kind, st.incident.Title))
	if err != nil {
		o.rollback(l.files)
		o.appendAction(ctx, st.attemptID, types.ActionRollbackPerformed,
			fmt.Sprintf("%d file(s) reverted after commit failure", len(l.files)))
		o.completeFixAttempt(ctx, l.fixAttemptID, types.OutcomeRolledBack, l.resultsJSON, nil, "")
		o.recordKBFailure(ctx, st.sig)
		vp := true
		return o.failSession(ctx, st, failure{
			sessionErr:         fmt.Sprintf("commit failed: %v", err),
			attemptErr:         err.Error(),
			incidentStatus:     types.IncidentOpen,
			verificationPassed: &vp,
		})
	}

	o.appendAction(ctx, st.attemptID, types.ActionCommittedToMain, commit.Hash)
	if err := o.store.UpdateSession(ctx, st.sessionID, map[string]interface{}{"commit_hash": commit.Hash}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record commit on session %s: %v\n", st.sessionID, err)
	}

	if o.safety.RequireDeployment {
		if err := o.store.UpdateSessionPhase(ctx, st.sessionID, types.PhaseDeploy); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to advance session %s: %v\n", st.sessionID, err)
		}
		o.mu.Lock()
		o.parkedDeploys[st.sessionID] = parkedDeploy{
			incidentID:     st.incident.ID,
			attemptID:      st.attemptID,
			fixAttemptID:   l.fixAttemptID,
			sig:            st.sig,
			files:          l.files,
			encodedFix:     l.encoded,
			fixDescription: l.fix.Description,
			commitHash:     commit.Hash,
			resultsJSON:    l.resultsJSON,
			score:          l.assessment.Score,
		}
		o.mu.Unlock()
		return nil
	}

	return o.finishResolved(ctx, resolution{
		incident:       st.incident,
		sessionID:      st.sessionID,
		attemptID:      st.attemptID,
		fixAttemptID:   l.fixAttemptID,
		sig:            st.sig,
		encodedFix:     l.encoded,
		resultsJSON:    l.resultsJSON,
		fixDescription: l.fix.Description,
		commitHash:     commit.Hash,
		score:          l.assessment.Score,
	})
}

// openPullRequest routes a below-threshold fix through review. The fix
// travels on a healing branch; checking the default branch back out
// afterwards leaves the workspace without the unreviewed change.
func (o *Orchestrator) openPullRequest(ctx context.Context, st *sessionState, l landing) error {
	branch := gitops.BranchName(st.incident.ID)

	fail := func(stage string, failErr error) error {
		o.rollback(l.files)
		o.appendAction(ctx, st.attemptID, types.ActionRollbackPerformed,
			fmt.Sprintf("%d file(s) reverted after %s failure", len(l.files), stage))
		o.completeFixAttempt(ctx, l.fixAttemptID, types.OutcomeRolledBack, l.resultsJSON, nil, "")
		o.recordKBFailure(ctx, st.sig)
		vp := true
		return o.failSession(ctx, st, failure{
			sessionErr:         fmt.Sprintf("%s failed: %v", stage, failErr),
			attemptErr:         failErr.Error(),
			incidentStatus:     types.IncidentOpen,
			verificationPassed: &vp,
		})
	}

	if err := o.gateway.CreateBranchFromDefault(ctx, branch); err != nil {
		return fail("branch creation", err)
	}

	var branchFiles []gitops.BranchFile
	for _, path := range l.files {
		content, err := o.ws.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: fix file %s is unreadable: %v\n", path, err)
			continue
		}
		branchFiles = append(branchFiles, gitops.BranchFile{Path: path, Content: string(content)})
	}
	if len(branchFiles) == 0 {
		return fail("branch preparation", fmt.Errorf("no fix files readable from the workspace"))
	}

	if err := o.gateway.PushBranch(ctx, branch, branchFiles, gitops.PushMessage(st.incident.Title)); err != nil {
		return fail("branch push", err)
	}

	pr, err := o.gateway.OpenOrUpdatePR(ctx, branch,
		gitops.CommitMessage(st.incident.Kind, st.incident.Title),
		gitops.BuildPRBody(gitops.PRBodyInput{
			Incident:     st.incident,
			Fix:          l.fix,
			Assessment:   l.assessment,
			Verification: l.verification,
		}))
	if err != nil {
		return fail("pull request creation", err)
	}

	o.appendAction(ctx, st.attemptID, types.ActionPROpened, pr.URL)
	if err := o.store.UpdateSession(ctx, st.sessionID, map[string]interface{}{
		"pr_number": pr.Number,
		"pr_url":    pr.URL,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record pull request on session %s: %v\n", st.sessionID, err)
	}

	prNumber := pr.Number
	o.completeFixAttempt(ctx, l.fixAttemptID, types.OutcomeSuccess, l.resultsJSON, &prNumber, pr.URL)
	o.recordKBSuccess(ctx, st.sig, st.incident, l.encoded, l.assessment.Score)

	if err := o.store.CompleteSession(ctx, st.sessionID, types.PhaseComplete, types.SessionSuccess, ""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to complete session %s: %v\n", st.sessionID, err)
	}
	fixDescription := fmt.Sprintf("PR created: %s", pr.URL)
	if err := o.store.ResolveIncident(ctx, st.incident.ID, fixDescription, ""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to resolve incident %s: %v\n", st.incident.ID, err)
	}
	vp := true
	o.completeAttempt(ctx, st.attemptID, true, &vp, "")
	o.envelope.RecordSuccess()

	o.publish(events.NewHealingCompleteEvent(
		st.incident.ID, st.sessionID, events.SeverityInfo,
		fmt.Sprintf("fix for %s awaiting review", st.incident.Title),
		events.HealingCompleteData{
			IncidentID: st.incident.ID,
			SessionID:  st.sessionID,
			Result:     "pr_created",
			Message:    fixDescription,
			PRNumber:   pr.Number,
			PRURL:      pr.URL,
		},
	))
	return nil
}

// finishResolved closes out a session whose fix is fully landed: the
// fix attempt and knowledge base record the success, the session and
// incident resolve, and the kill-switch counter resets.
func (o *Orchestrator) finishResolved(ctx context.Context, r resolution) error {
	o.completeFixAttempt(ctx, r.fixAttemptID, types.OutcomeSuccess, r.resultsJSON, nil, "")
	o.recordKBSuccess(ctx, r.sig, r.incident, r.encodedFix, r.score)

	if err := o.store.CompleteSession(ctx, r.sessionID, types.PhaseComplete, types.SessionSuccess, ""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to complete session %s: %v\n", r.sessionID, err)
	}
	if err := o.store.ResolveIncident(ctx, r.incident.ID, r.fixDescription, r.commitHash); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to resolve incident %s: %v\n", r.incident.ID, err)
	}
	vp := true
	o.completeAttempt(ctx, r.attemptID, true, &vp, "")
	o.envelope.RecordSuccess()

	o.publish(events.NewHealingCompleteEvent(
		r.incident.ID, r.sessionID, events.SeverityInfo,
		fmt.Sprintf("incident resolved: %s", r.incident.Title),
		events.HealingCompleteData{
			IncidentID: r.incident.ID,
			SessionID:  r.sessionID,
			Result:     "success",
			Message:    r.fixDescription,
		},
	))
	return nil
}

// failSession ends a session as a failed repair: the attempt and
// session close with the failure detail, the incident moves to the
// given status, the failure counts toward the kill switch, and a
// healing-complete event goes out.
func (o *Orchestrator) failSession(ctx context.Context, st *sessionState, f failure) error {
	if err := o.store.CompleteSession(ctx, st.sessionID, types.PhaseFailed, types.SessionFailed, f.sessionErr); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close session %s: %v\n", st.sessionID, err)
	}
	if err := o.store.UpdateIncidentStatus(ctx, st.incident.ID, f.incidentStatus); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to update incident %s: %v\n", st.incident.ID, err)
	}
	attemptErr := f.attemptErr
	if attemptErr == "" {
		attemptErr = f.sessionErr
	}
	o.completeAttempt(ctx, st.attemptID, false, f.verificationPassed, attemptErr)

	tripped, state := o.envelope.RecordFailure()
	o.publish(events.NewHealingCompleteEvent(
		st.incident.ID, st.sessionID, events.SeverityError,
		fmt.Sprintf("healing failed: %s", f.sessionErr),
		events.HealingCompleteData{
			IncidentID: st.incident.ID,
			SessionID:  st.sessionID,
			Result:     "failed",
			Message:    f.sessionErr,
		},
	))
	if tripped {
		o.publishKillSwitch(state)
	}
	return nil
}

func (o *Orchestrator) publishKillSwitch(state safety.KillSwitch) {
	o.publish(events.NewKillSwitchActivatedEvent(
		events.SeverityCritical,
		fmt.Sprintf("kill switch activated after %d consecutive failures", state.ConsecutiveFailures),
		events.KillSwitchActivatedData{
			ConsecutiveFailures: state.ConsecutiveFailures,
			DisabledUntil:       state.Until,
			Message:             fmt.Sprintf("healing disabled until %s", state.Until.Format(time.RFC3339)),
		},
	))
}

// abortSession tears a session down after an infrastructure error, as
// opposed to a failed repair: the session closes, the incident reopens,
// and nothing counts toward the kill switch.
func (o *Orchestrator) abortSession(ctx context.Context, incidentID, sessionID, reason string) {
	if err := o.store.CompleteSession(ctx, sessionID, types.PhaseFailed, types.SessionFailed, reason); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to close session %s: %v\n", sessionID, err)
	}
	o.completeOpenAttempts(ctx, sessionID, reason)
	o.reopenIncident(ctx, incidentID)
}

// reopenIncident puts a healing incident back to open so a later pass
// can retry it.
func (o *Orchestrator) reopenIncident(ctx context.Context, incidentID string) {
	if err := o.store.UpdateIncidentStatus(ctx, incidentID, types.IncidentOpen); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to reopen incident %s: %v\n", incidentID, err)
	}
}

// rollback restores fix files to their pre-change state.
func (o *Orchestrator) rollback(files []string) {
	for _, path := range files {
		if err := o.ws.RevertFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to revert %s: %v\n", path, err)
		}
	}
}

// appendAction records a pipeline step on the attempt audit trail. An
// empty attempt ID (session state rebuilt after a restart) is a no-op.
func (o *Orchestrator) appendAction(ctx context.Context, attemptID, action, detail string) {
	if attemptID == "" {
		return
	}
	if err := o.store.AppendAttemptAction(ctx, attemptID, types.AttemptAction{Action: action, Detail: detail}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record action %s: %v\n", action, err)
	}
}

// completeAttempt closes a heal attempt row, tolerating the empty ID
// that session reconstruction can leave behind.
func (o *Orchestrator) completeAttempt(ctx context.Context, attemptID string, success bool, verificationPassed *bool, errMsg string) {
	if attemptID == "" {
		return
	}
	if err := o.store.CompleteHealAttempt(ctx, attemptID, success, verificationPassed, errMsg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to complete attempt %s: %v\n", attemptID, err)
	}
}

// completeFixAttempt closes a fix attempt row, tolerating the empty ID
// left when the row predates this process.
func (o *Orchestrator) completeFixAttempt(ctx context.Context, id string, outcome types.FixOutcome, resultsJSON string, prNumber *int, prURL string) {
	if id == "" {
		return
	}
	if err := o.store.CompleteFixAttempt(ctx, id, outcome, resultsJSON, prNumber, prURL); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to complete fix attempt %s: %v\n", id, err)
	}
}

// recordKBSuccess teaches the knowledge base that a fix worked.
func (o *Orchestrator) recordKBSuccess(ctx context.Context, sig string, inc *types.Incident, encodedFix string, score int) {
	if err := o.kb.RecordSuccess(ctx, sig, inc.Kind, inc.Description, encodedFix, score); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record knowledge base success: %v\n", err)
	}
}

// recordKBFailure bumps the encounter counter for a signature whose
// replayed or proposed fix did not hold up.
func (o *Orchestrator) recordKBFailure(ctx context.Context, sig string) {
	if err := o.kb.RecordFailure(ctx, sig); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record knowledge base failure: %v\n", err)
	}
}

// encodeVerification renders a verification result as JSON for the
// session and fix attempt records.
func encodeVerification(result *verify.Result) string {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"passed":%t}`, result.Passed)
	}
	return string(data)
}
