package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/internal/types"
)

const sessionColumns = `id, incident_id, phase, status, strategy, model_tag,
	worker_job_id, kb_match_id, kb_match_confidence, diagnosis_notes, proposed_fix, files_changed,
	verification_results, verification_passed, commit_hash, pr_number, pr_url,
	deployment_status, deployment_started_at, error, started_at, updated_at, completed_at`

// allowedSessionUpdateFields limits UpdateSession to payload columns.
// Phase and status moves must go through UpdateSessionPhase and
// CompleteSession so transition rules cannot be bypassed.
var allowedSessionUpdateFields = map[string]bool{
	"model_tag":             true,
	"worker_job_id":         true,
	"kb_match_id":           true,
	"kb_match_confidence":   true,
	"diagnosis_notes":       true,
	"proposed_fix":          true,
	"files_changed":         true,
	"verification_results":  true,
	"verification_passed":   true,
	"commit_hash":           true,
	"pr_number":             true,
	"pr_url":                true,
	"deployment_status":     true,
	"deployment_started_at": true,
	"error":                 true,
}

// CreateSession inserts a new healing session. The partial unique index
// on active sessions rejects a second active session for the same
// incident, which is the invariant the whole orchestrator leans on.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *types.HealingSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Phase == "" {
		session.Phase = types.PhaseDiagnosis
	}
	if session.Status == "" {
		session.Status = types.SessionActive
	}
	now := time.Now().UTC()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	filesJSON, err := marshalStringSlice(session.FilesChanged)
	if err != nil {
		return fmt.Errorf("failed to marshal files changed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO healing_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.IncidentID, session.Phase, session.Status, session.Strategy, session.ModelTag,
		session.WorkerJobID, session.KBMatchID, nullInt(session.KBMatchConfidence),
		session.DiagnosisNotes, session.ProposedFix, filesJSON,
		session.VerificationResults, nullBool(session.VerificationPassed), session.CommitHash,
		nullInt(session.PRNumber), session.PRURL,
		string(session.DeploymentStatus), nullTime(session.DeploymentStartedAt), session.Error,
		session.StartedAt, session.UpdatedAt, nullTime(session.CompletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("incident %s already has an active healing session", session.IncidentID)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil if not found.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*types.HealingSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM healing_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetActiveSessionForIncident retrieves the active session for an
// incident, or nil if there is none.
func (s *SQLiteStorage) GetActiveSessionForIncident(ctx context.Context, incidentID string) (*types.HealingSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM healing_sessions
		WHERE incident_id = ? AND status = 'active'
	`, incidentID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

// ListSessionsForIncident retrieves all sessions for an incident,
// newest first.
func (s *SQLiteStorage) ListSessionsForIncident(ctx context.Context, incidentID string) ([]*types.HealingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM healing_sessions
		WHERE incident_id = ?
		ORDER BY started_at DESC
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// UpdateSessionPhase advances an active session to a new non-terminal
// phase. Terminal phases must go through CompleteSession so the status
// and completion timestamp move together with the phase.
func (s *SQLiteStorage) UpdateSessionPhase(ctx context.Context, id string, to types.SessionPhase) error {
	if to.IsTerminal() {
		return fmt.Errorf("phase %s is terminal; complete the session instead", to)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session not found: %s", id)
	}
	if session.Status != types.SessionActive {
		return fmt.Errorf("session %s is already %s", id, session.Status)
	}
	if !session.Phase.CanTransitionTo(to) {
		return fmt.Errorf("invalid session transition: %s -> %s", session.Phase, to)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE healing_sessions SET phase = ?, updated_at = ?
		WHERE id = ? AND phase = ? AND status = 'active'
	`, to, time.Now().UTC(), id, session.Phase)
	if err != nil {
		return fmt.Errorf("failed to update session phase: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetSession(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return fmt.Errorf("session not found: %s", id)
		}
		return fmt.Errorf("concurrent modification detected for session %s (phase is now %s)", id, current.Phase)
	}
	return nil
}

// UpdateSession applies a partial update to a session's payload fields.
// Only fields in the allowlist may be set.
func (s *SQLiteStorage) UpdateSession(ctx context.Context, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return fmt.Errorf("no fields to update")
	}

	var setClauses []string
	var args []interface{}
	for field, value := range updates {
		if !allowedSessionUpdateFields[field] {
			return fmt.Errorf("field cannot be updated: %s", field)
		}
		if ss, ok := value.([]string); ok {
			data, err := marshalStringSlice(ss)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", field, err)
			}
			value = data
		}
		setClauses = append(setClauses, field+" = ?")
		args = append(args, value)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, `
		UPDATE healing_sessions SET `+strings.Join(setClauses, ", ")+` WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// CompleteSession moves an active session to a terminal phase and
// status in one update. The phase and status must agree: complete
// pairs with success, failed pairs with failed.
func (s *SQLiteStorage) CompleteSession(ctx context.Context, id string, phase types.SessionPhase, status types.SessionStatus, errMsg string) error {
	if !phase.IsTerminal() {
		return fmt.Errorf("phase %s is not terminal", phase)
	}
	if phase == types.PhaseComplete && status != types.SessionSuccess {
		return fmt.Errorf("phase complete requires status success (got %s)", status)
	}
	if phase == types.PhaseFailed && status != types.SessionFailed {
		return fmt.Errorf("phase failed requires status failed (got %s)", status)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session not found: %s", id)
	}
	if session.Status != types.SessionActive {
		return fmt.Errorf("session %s is already %s", id, session.Status)
	}
	if !session.Phase.CanTransitionTo(phase) {
		return fmt.Errorf("invalid session transition: %s -> %s", session.Phase, phase)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE healing_sessions SET phase = ?, status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`, phase, status, errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetSession(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return fmt.Errorf("session not found: %s", id)
		}
		return fmt.Errorf("session %s is already %s", id, current.Status)
	}
	return nil
}

// SetSessionDeploymentStatus records the latest deployment status on a
// session. The first deploying report also stamps the deployment start.
func (s *SQLiteStorage) SetSessionDeploymentStatus(ctx context.Context, id string, status types.DeploymentStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid deployment status: %s", status)
	}

	now := time.Now().UTC()
	var result sql.Result
	var err error
	if status == types.DeployStatusDeploying {
		result, err = s.db.ExecContext(ctx, `
			UPDATE healing_sessions
			SET deployment_status = ?, deployment_started_at = COALESCE(deployment_started_at, ?), updated_at = ?
			WHERE id = ?
		`, status, now, now, id)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE healing_sessions SET deployment_status = ?, updated_at = ? WHERE id = ?
		`, status, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to set deployment status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// marshalStringSlice encodes a string slice as JSON, treating nil as empty.
func marshalStringSlice(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// scanSession scans a single healing session row.
func scanSession(rs rowScanner) (*types.HealingSession, error) {
	var session types.HealingSession
	var filesJSON string
	var kbConfidence, prNumber sql.NullInt64
	var verificationPassed sql.NullBool
	var deploymentStatus string
	var deploymentStartedAt, completedAt sql.NullTime

	err := rs.Scan(
		&session.ID, &session.IncidentID, &session.Phase, &session.Status, &session.Strategy, &session.ModelTag,
		&session.WorkerJobID, &session.KBMatchID, &kbConfidence,
		&session.DiagnosisNotes, &session.ProposedFix, &filesJSON,
		&session.VerificationResults, &verificationPassed, &session.CommitHash,
		&prNumber, &session.PRURL,
		&deploymentStatus, &deploymentStartedAt, &session.Error,
		&session.StartedAt, &session.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	session.KBMatchConfidence = intPtr(kbConfidence)
	session.PRNumber = intPtr(prNumber)
	session.VerificationPassed = boolPtr(verificationPassed)
	session.DeploymentStatus = types.DeploymentStatus(deploymentStatus)
	session.DeploymentStartedAt = timePtr(deploymentStartedAt)
	session.CompletedAt = timePtr(completedAt)
	if filesJSON != "" && filesJSON != "[]" {
		if err := json.Unmarshal([]byte(filesJSON), &session.FilesChanged); err != nil {
			return nil, fmt.Errorf("failed to parse files changed: %w", err)
		}
	}
	return &session, nil
}

// scanSessions scans all rows from a session query.
func scanSessions(rows *sql.Rows) ([]*types.HealingSession, error) {
	var sessions []*types.HealingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}
