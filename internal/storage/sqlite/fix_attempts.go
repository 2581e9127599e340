package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/internal/types"
)

const fixAttemptColumns = `id, error_signature, session_id, proposed_fix, confidence_score,
	outcome, verification_results, pr_number, pr_url, created_at, completed_at`

// CreateFixAttempt inserts a new fix attempt in the pending outcome.
func (s *SQLiteStorage) CreateFixAttempt(ctx context.Context, attempt *types.FixAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.Outcome == "" {
		attempt.Outcome = types.OutcomePending
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	if err := attempt.Validate(); err != nil {
		return fmt.Errorf("invalid fix attempt: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fix_attempts (`+fixAttemptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attempt.ID, attempt.ErrorSignature, attempt.SessionID, attempt.ProposedFix, attempt.ConfidenceScore,
		attempt.Outcome, attempt.VerificationResults, nullInt(attempt.PRNumber), attempt.PRURL,
		attempt.CreatedAt, nullTime(attempt.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create fix attempt: %w", err)
	}
	return nil
}

// CompleteFixAttempt records the terminal outcome of a pending fix
// attempt along with verification output and PR details when present.
func (s *SQLiteStorage) CompleteFixAttempt(ctx context.Context, id string, outcome types.FixOutcome, verificationResults string, prNumber *int, prURL string) error {
	if !outcome.IsTerminal() {
		return fmt.Errorf("outcome %s is not terminal", outcome)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE fix_attempts
		SET outcome = ?, verification_results = ?, pr_number = ?, pr_url = ?, completed_at = ?
		WHERE id = ? AND outcome = 'pending'
	`, outcome, verificationResults, nullInt(prNumber), prURL, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete fix attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		row := s.db.QueryRowContext(ctx, `SELECT outcome FROM fix_attempts WHERE id = ?`, id)
		var current types.FixOutcome
		scanErr := row.Scan(&current)
		if scanErr == sql.ErrNoRows {
			return fmt.Errorf("fix attempt not found: %s", id)
		}
		if scanErr != nil {
			return fmt.Errorf("failed to read fix attempt: %w", scanErr)
		}
		return fmt.Errorf("fix attempt %s is already %s", id, current)
	}
	return nil
}

// GetRecentFixAttempts retrieves the most recent completed fix attempts
// for an error signature, newest first. Pending attempts are excluded
// because they carry no outcome to learn from.
func (s *SQLiteStorage) GetRecentFixAttempts(ctx context.Context, signature string, limit int) ([]*types.FixAttempt, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fixAttemptColumns+` FROM fix_attempts
		WHERE error_signature = ? AND outcome != 'pending'
		ORDER BY created_at DESC
		LIMIT ?
	`, signature, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fix attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*types.FixAttempt
	for rows.Next() {
		attempt, err := scanFixAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fix attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fix attempts: %w", err)
	}
	return attempts, nil
}

// ListRecentFixAttempts retrieves the most recent completed fix
// attempts across all signatures, newest first. This feeds the
// historical-success confidence factor, which looks at overall recent
// track record rather than one failure shape.
func (s *SQLiteStorage) ListRecentFixAttempts(ctx context.Context, limit int) ([]*types.FixAttempt, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fixAttemptColumns+` FROM fix_attempts
		WHERE outcome != 'pending'
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fix attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*types.FixAttempt
	for rows.Next() {
		attempt, err := scanFixAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fix attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fix attempts: %w", err)
	}
	return attempts, nil
}

// scanFixAttempt scans a single fix attempt row.
func scanFixAttempt(rs rowScanner) (*types.FixAttempt, error) {
	var attempt types.FixAttempt
	var prNumber sql.NullInt64
	var completedAt sql.NullTime

	err := rs.Scan(
		&attempt.ID, &attempt.ErrorSignature, &attempt.SessionID, &attempt.ProposedFix, &attempt.ConfidenceScore,
		&attempt.Outcome, &attempt.VerificationResults, &prNumber, &attempt.PRURL,
		&attempt.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.PRNumber = intPtr(prNumber)
	attempt.CompletedAt = timePtr(completedAt)
	return &attempt, nil
}
