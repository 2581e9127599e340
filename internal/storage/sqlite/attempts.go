package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/internal/types"
)

const attemptColumns = `id, incident_id, session_id, attempt_number, strategy,
	actions_taken, success, verification_passed, error, started_at, completed_at`

// CreateHealAttempt inserts a new heal attempt audit record.
func (s *SQLiteStorage) CreateHealAttempt(ctx context.Context, attempt *types.HealAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now().UTC()
	}

	if err := attempt.Validate(); err != nil {
		return fmt.Errorf("invalid heal attempt: %w", err)
	}

	actionsJSON, err := marshalActions(attempt.ActionsTaken)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO heal_attempts (`+attemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attempt.ID, attempt.IncidentID, attempt.SessionID, attempt.AttemptNumber, attempt.Strategy,
		actionsJSON, nullBool(attempt.Success), nullBool(attempt.VerificationPassed),
		attempt.Error, attempt.StartedAt, nullTime(attempt.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create heal attempt: %w", err)
	}
	return nil
}

// AppendAttemptAction appends one action to an attempt's ordered action
// log. The read and write happen in a transaction so concurrent appends
// cannot lose entries.
func (s *SQLiteStorage) AppendAttemptAction(ctx context.Context, attemptID string, action types.AttemptAction) error {
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var actionsJSON string
	err = tx.QueryRowContext(ctx, `SELECT actions_taken FROM heal_attempts WHERE id = ?`, attemptID).Scan(&actionsJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("heal attempt not found: %s", attemptID)
	}
	if err != nil {
		return fmt.Errorf("failed to read attempt actions: %w", err)
	}

	var actions []types.AttemptAction
	if actionsJSON != "" && actionsJSON != "[]" {
		if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
			return fmt.Errorf("failed to parse attempt actions: %w", err)
		}
	}
	actions = append(actions, action)

	updated, err := marshalActions(actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE heal_attempts SET actions_taken = ? WHERE id = ?`, updated, attemptID); err != nil {
		return fmt.Errorf("failed to append attempt action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt action: %w", err)
	}
	return nil
}

// CompleteHealAttempt records the final outcome of an attempt. Attempts
// are append-only: completing an already completed attempt is an error.
func (s *SQLiteStorage) CompleteHealAttempt(ctx context.Context, attemptID string, success bool, verificationPassed *bool, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE heal_attempts SET success = ?, verification_passed = ?, error = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL
	`, success, nullBool(verificationPassed), errMsg, time.Now().UTC(), attemptID)
	if err != nil {
		return fmt.Errorf("failed to complete heal attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		attempt, getErr := s.GetHealAttempt(ctx, attemptID)
		if getErr != nil {
			return getErr
		}
		if attempt == nil {
			return fmt.Errorf("heal attempt not found: %s", attemptID)
		}
		return fmt.Errorf("heal attempt %s is already completed", attemptID)
	}
	return nil
}

// GetHealAttempt retrieves an attempt by ID. Returns nil if not found.
func (s *SQLiteStorage) GetHealAttempt(ctx context.Context, id string) (*types.HealAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM heal_attempts WHERE id = ?`, id)
	attempt, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get heal attempt: %w", err)
	}
	return attempt, nil
}

// ListAttemptsForSession retrieves a session's attempts in
// chronological order.
func (s *SQLiteStorage) ListAttemptsForSession(ctx context.Context, sessionID string) ([]*types.HealAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM heal_attempts
		WHERE session_id = ?
		ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListAttemptsForIncident retrieves an incident's attempts across all
// sessions in chronological order.
func (s *SQLiteStorage) ListAttemptsForIncident(ctx context.Context, incidentID string) ([]*types.HealAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM heal_attempts
		WHERE incident_id = ?
		ORDER BY started_at ASC
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// marshalActions encodes the action log as JSON, treating nil as empty.
func marshalActions(actions []types.AttemptAction) (string, error) {
	if len(actions) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// scanAttempt scans a single heal attempt row.
func scanAttempt(rs rowScanner) (*types.HealAttempt, error) {
	var attempt types.HealAttempt
	var actionsJSON string
	var success, verificationPassed sql.NullBool
	var completedAt sql.NullTime

	err := rs.Scan(
		&attempt.ID, &attempt.IncidentID, &attempt.SessionID, &attempt.AttemptNumber, &attempt.Strategy,
		&actionsJSON, &success, &verificationPassed,
		&attempt.Error, &attempt.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.Success = boolPtr(success)
	attempt.VerificationPassed = boolPtr(verificationPassed)
	attempt.CompletedAt = timePtr(completedAt)
	if actionsJSON != "" && actionsJSON != "[]" {
		if err := json.Unmarshal([]byte(actionsJSON), &attempt.ActionsTaken); err != nil {
			return nil, fmt.Errorf("failed to parse attempt actions: %w", err)
		}
	}
	return &attempt, nil
}

// scanAttempts scans all rows from a heal attempt query.
func scanAttempts(rows *sql.Rows) ([]*types.HealAttempt, error) {
	var attempts []*types.HealAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan heal attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate heal attempts: %w", err)
	}
	return attempts, nil
}
