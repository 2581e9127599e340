package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/mendhq/mend/internal/types"
)

func TestCreateAndGetSession(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)

	confidence := 92
	session := &types.HealingSession{
		IncidentID:        incident.ID,
		Strategy:          types.StrategyKnowledgeBase,
		KBMatchID:         "kb-1",
		KBMatchConfidence: &confidence,
		FilesChanged:      []string{"src/api.ts", "src/db.ts"},
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Phase != types.PhaseDiagnosis {
		t.Errorf("expected phase diagnosis, got %s", got.Phase)
	}
	if got.Status != types.SessionActive {
		t.Errorf("expected status active, got %s", got.Status)
	}
	if got.KBMatchConfidence == nil || *got.KBMatchConfidence != 92 {
		t.Errorf("expected kb match confidence 92, got %v", got.KBMatchConfidence)
	}
	if len(got.FilesChanged) != 2 || got.FilesChanged[0] != "src/api.ts" {
		t.Errorf("unexpected files changed: %v", got.FilesChanged)
	}
	if got.VerificationPassed != nil {
		t.Errorf("expected nil verification_passed, got %v", *got.VerificationPassed)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store := setupTestDB(t)

	got, err := store.GetSession(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestOneActiveSessionPerIncident(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)

	createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	second := &types.HealingSession{
		IncidentID: incident.ID,
		Strategy:   types.StrategyWorkerAgent,
	}
	err := store.CreateSession(ctx, second)
	if err == nil {
		t.Fatal("expected error creating a second active session")
	}
	if !strings.Contains(err.Error(), "already has an active healing session") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSecondSessionAllowedAfterCompletion(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)

	first := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)
	if err := store.CompleteSession(ctx, first.ID, types.PhaseFailed, types.SessionFailed, "no fix found"); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	second := &types.HealingSession{
		IncidentID: incident.ID,
		Strategy:   types.StrategyKnowledgeBase,
	}
	if err := store.CreateSession(ctx, second); err != nil {
		t.Fatalf("expected second session after completing the first: %v", err)
	}
}

func TestGetActiveSessionForIncident(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)

	got, err := store.GetActiveSessionForIncident(ctx, incident.ID)
	if err != nil {
		t.Fatalf("GetActiveSessionForIncident failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil when no active session, got %+v", got)
	}

	session := createTestSession(t, store, incident.ID, types.StrategyKnowledgeBase)

	got, err = store.GetActiveSessionForIncident(ctx, incident.ID)
	if err != nil {
		t.Fatalf("GetActiveSessionForIncident failed: %v", err)
	}
	if got == nil || got.ID != session.ID {
		t.Errorf("expected session %s, got %+v", session.ID, got)
	}
}

func TestUpdateSessionPhase(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	if err := store.UpdateSessionPhase(ctx, session.ID, types.PhaseRepair); err != nil {
		t.Fatalf("diagnosis -> repair failed: %v", err)
	}
	if err := store.UpdateSessionPhase(ctx, session.ID, types.PhaseVerify); err != nil {
		t.Fatalf("repair -> verify failed: %v", err)
	}
	if err := store.UpdateSessionPhase(ctx, session.ID, types.PhaseDeploy); err != nil {
		t.Fatalf("verify -> deploy failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Phase != types.PhaseDeploy {
		t.Errorf("expected phase deploy, got %s", got.Phase)
	}
}

func TestUpdateSessionPhaseRejectsInvalidTransition(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	err := store.UpdateSessionPhase(ctx, session.ID, types.PhaseDeploy)
	if err == nil {
		t.Fatal("expected error for diagnosis -> deploy")
	}
	if !strings.Contains(err.Error(), "invalid session transition") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpdateSessionPhaseRejectsTerminalTarget(t *testing.T) {
	store := setupTestDB(t)
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	err := store.UpdateSessionPhase(context.Background(), session.ID, types.PhaseFailed)
	if err == nil {
		t.Fatal("expected error for terminal phase target")
	}
	if !strings.Contains(err.Error(), "terminal") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpdateSession(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	err := store.UpdateSession(ctx, session.ID, map[string]interface{}{
		"diagnosis_notes":      "null pointer in request path",
		"proposed_fix":         `{"description":"add null check","files":[{"path":"src/api.ts","content":"..."}]}`,
		"files_changed":        []string{"src/api.ts"},
		"worker_job_id":        "job-42",
		"verification_passed":  true,
		"verification_results": `{"passed":true}`,
	})
	if err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.DiagnosisNotes != "null pointer in request path" {
		t.Errorf("unexpected diagnosis notes: %q", got.DiagnosisNotes)
	}
	if got.WorkerJobID != "job-42" {
		t.Errorf("unexpected worker job id: %q", got.WorkerJobID)
	}
	if len(got.FilesChanged) != 1 || got.FilesChanged[0] != "src/api.ts" {
		t.Errorf("unexpected files changed: %v", got.FilesChanged)
	}
	if got.VerificationPassed == nil || !*got.VerificationPassed {
		t.Errorf("expected verification_passed true, got %v", got.VerificationPassed)
	}
}

func TestUpdateSessionRejectsUnknownField(t *testing.T) {
	store := setupTestDB(t)
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	err := store.UpdateSession(context.Background(), session.ID, map[string]interface{}{
		"phase": "complete",
	})
	if err == nil {
		t.Fatal("expected error for disallowed field")
	}
	if !strings.Contains(err.Error(), "cannot be updated") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestUpdateSessionEmptyUpdates(t *testing.T) {
	store := setupTestDB(t)
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	if err := store.UpdateSession(context.Background(), session.ID, nil); err == nil {
		t.Error("expected error for empty update")
	}
}

func TestCompleteSession(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyKnowledgeBase)

	if err := store.UpdateSessionPhase(ctx, session.ID, types.PhaseRepair); err != nil {
		t.Fatalf("phase update failed: %v", err)
	}
	if err := store.UpdateSessionPhase(ctx, session.ID, types.PhaseVerify); err != nil {
		t.Fatalf("phase update failed: %v", err)
	}
	if err := store.CompleteSession(ctx, session.ID, types.PhaseComplete, types.SessionSuccess, ""); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Phase != types.PhaseComplete {
		t.Errorf("expected phase complete, got %s", got.Phase)
	}
	if got.Status != types.SessionSuccess {
		t.Errorf("expected status success, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestCompleteSessionFailedFromAnyPhase(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	if err := store.CompleteSession(ctx, session.ID, types.PhaseFailed, types.SessionFailed, "worker submission failed"); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != types.SessionFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.Error != "worker submission failed" {
		t.Errorf("unexpected error message: %q", got.Error)
	}
}

func TestCompleteSessionRejectsMismatchedPair(t *testing.T) {
	store := setupTestDB(t)
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	err := store.CompleteSession(context.Background(), session.ID, types.PhaseComplete, types.SessionFailed, "")
	if err == nil {
		t.Fatal("expected error for mismatched phase and status")
	}
}

func TestCompleteSessionRejectsInvalidPhaseJump(t *testing.T) {
	store := setupTestDB(t)
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	// diagnosis cannot jump straight to complete.
	err := store.CompleteSession(context.Background(), session.ID, types.PhaseComplete, types.SessionSuccess, "")
	if err == nil {
		t.Fatal("expected error for diagnosis -> complete")
	}
}

func TestCompleteSessionTwice(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	if err := store.CompleteSession(ctx, session.ID, types.PhaseFailed, types.SessionFailed, "x"); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}

	err := store.CompleteSession(ctx, session.ID, types.PhaseFailed, types.SessionFailed, "y")
	if err == nil {
		t.Fatal("expected error completing a finished session")
	}
	if !strings.Contains(err.Error(), "already") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetSessionDeploymentStatus(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)
	session := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)

	if err := store.SetSessionDeploymentStatus(ctx, session.ID, types.DeployStatusDeploying); err != nil {
		t.Fatalf("SetSessionDeploymentStatus failed: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.DeploymentStatus != types.DeployStatusDeploying {
		t.Errorf("expected deploying, got %s", got.DeploymentStatus)
	}
	if got.DeploymentStartedAt == nil {
		t.Fatal("expected deployment_started_at to be set")
	}
	startedAt := *got.DeploymentStartedAt

	if err := store.SetSessionDeploymentStatus(ctx, session.ID, types.DeployStatusSucceeded); err != nil {
		t.Fatalf("SetSessionDeploymentStatus failed: %v", err)
	}

	got, err = store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.DeploymentStatus != types.DeployStatusSucceeded {
		t.Errorf("expected succeeded, got %s", got.DeploymentStatus)
	}
	if got.DeploymentStartedAt == nil || !got.DeploymentStartedAt.Equal(startedAt) {
		t.Errorf("deployment_started_at should not change: want %v, got %v", startedAt, got.DeploymentStartedAt)
	}
}

func TestListSessionsForIncident(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	incident := createTestIncident(t, store)

	first := createTestSession(t, store, incident.ID, types.StrategyWorkerAgent)
	if err := store.CompleteSession(ctx, first.ID, types.PhaseFailed, types.SessionFailed, "x"); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	createTestSession(t, store, incident.ID, types.StrategyKnowledgeBase)

	sessions, err := store.ListSessionsForIncident(ctx, incident.ID)
	if err != nil {
		t.Fatalf("ListSessionsForIncident failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}
