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

const incidentColumns = `id, kind, severity, title, description, stack_trace, logs, source, metrics,
	status, attempt_count, last_attempt_at, root_cause, fix_description, commit_hash, resolved_at,
	created_at, updated_at`

// CreateIncident inserts a new incident. An empty ID is assigned a new
// UUID and zero timestamps are set to the current time.
func (s *SQLiteStorage) CreateIncident(ctx context.Context, incident *types.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if incident.Status == "" {
		incident.Status = types.IncidentOpen
	}
	now := time.Now().UTC()
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = now
	}

	if err := incident.Validate(); err != nil {
		return fmt.Errorf("invalid incident: %w", err)
	}

	metricsJSON, err := marshalMetrics(incident.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal incident metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		incident.ID, incident.Kind, incident.Severity, incident.Title, incident.Description,
		incident.StackTrace, incident.Logs, incident.Source, metricsJSON,
		incident.Status, incident.AttemptCount, nullTime(incident.LastAttemptAt),
		incident.RootCause, incident.FixDescription, incident.CommitHash, nullTime(incident.ResolvedAt),
		incident.CreatedAt, incident.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("incident already exists: %s", incident.ID)
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID. Returns nil if not found.
func (s *SQLiteStorage) GetIncident(ctx context.Context, id string) (*types.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves incidents matching the filter, newest first.
func (s *SQLiteStorage) ListIncidents(ctx context.Context, filter types.IncidentFilter) ([]*types.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Kind != nil {
		conditions = append(conditions, "kind = ?")
		args = append(args, *filter.Kind)
	}
	if filter.Severity != nil {
		conditions = append(conditions, "severity = ?")
		args = append(args, *filter.Severity)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// ListHealableIncidents retrieves incidents eligible for a healing
// attempt: open or failed, no active session, and below the attempt cap.
// Results are ordered most severe first, then oldest first, so the work
// queue drains the worst problems before backlog.
func (s *SQLiteStorage) ListHealableIncidents(ctx context.Context, maxAttempts int) ([]*types.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+`
		FROM healable_incidents
		WHERE attempt_count < ?
		ORDER BY CASE severity
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END, created_at ASC
	`, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to list healable incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// MarkIncidentHealing transitions an incident to healing and increments
// its attempt counter in a single guarded update. The WHERE clause is the
// concurrency guard: only an open or failed incident below the attempt
// cap can be claimed, so two racing healers cannot both win.
func (s *SQLiteStorage) MarkIncidentHealing(ctx context.Context, id string, maxAttempts int) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = 'healing', attempt_count = attempt_count + 1, last_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('open', 'failed') AND attempt_count < ?
	`, now, now, id, maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to mark incident healing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Re-read to report why the claim failed.
		incident, getErr := s.GetIncident(ctx, id)
		if getErr != nil {
			return getErr
		}
		if incident == nil {
			return fmt.Errorf("incident not found: %s", id)
		}
		if incident.AttemptCount >= maxAttempts {
			return fmt.Errorf("incident %s has exhausted its %d healing attempts", id, maxAttempts)
		}
		return fmt.Errorf("incident %s cannot start healing from status %s", id, incident.Status)
	}
	return nil
}

// UpdateIncidentStatus transitions an incident to a new status after
// validating the transition. Uses optimistic concurrency: the update only
// applies if the status has not changed since it was read.
func (s *SQLiteStorage) UpdateIncidentStatus(ctx context.Context, id string, to types.IncidentStatus) error {
	incident, err := s.GetIncident(ctx, id)
	if err != nil {
		return err
	}
	if incident == nil {
		return fmt.Errorf("incident not found: %s", id)
	}
	if !incident.Status.CanTransitionTo(to) {
		return fmt.Errorf("invalid incident transition: %s -> %s", incident.Status, to)
	}

	now := time.Now().UTC()
	var result sql.Result
	if to == types.IncidentResolved {
		result, err = s.db.ExecContext(ctx, `
			UPDATE incidents SET status = ?, resolved_at = ?, updated_at = ? WHERE id = ? AND status = ?
		`, to, now, now, id, incident.Status)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE incidents SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, to, now, id, incident.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to update incident status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetIncident(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return fmt.Errorf("incident not found: %s", id)
		}
		return fmt.Errorf("concurrent modification detected for incident %s (status is now %s)", id, current.Status)
	}
	return nil
}

// ResolveIncident marks a healing incident as resolved and records how
// it was fixed. Only valid from the healing status.
func (s *SQLiteStorage) ResolveIncident(ctx context.Context, id, fixDescription, commitHash string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = 'resolved', fix_description = ?, commit_hash = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = 'healing'
	`, fixDescription, commitHash, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to resolve incident: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		incident, getErr := s.GetIncident(ctx, id)
		if getErr != nil {
			return getErr
		}
		if incident == nil {
			return fmt.Errorf("incident not found: %s", id)
		}
		return fmt.Errorf("incident %s cannot be resolved from status %s", id, incident.Status)
	}
	return nil
}

// SetIncidentRootCause records the diagnosed root cause on an incident.
func (s *SQLiteStorage) SetIncidentRootCause(ctx context.Context, id, rootCause string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET root_cause = ?, updated_at = ? WHERE id = ?
	`, rootCause, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set incident root cause: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("incident not found: %s", id)
	}
	return nil
}

// marshalMetrics encodes the metrics map as JSON, treating nil as empty.
func marshalMetrics(metrics map[string]float64) (string, error) {
	if len(metrics) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// scanIncident scans a single incident row.
func scanIncident(rs rowScanner) (*types.Incident, error) {
	var incident types.Incident
	var metricsJSON string
	var lastAttemptAt, resolvedAt sql.NullTime

	err := rs.Scan(
		&incident.ID, &incident.Kind, &incident.Severity, &incident.Title, &incident.Description,
		&incident.StackTrace, &incident.Logs, &incident.Source, &metricsJSON,
		&incident.Status, &incident.AttemptCount, &lastAttemptAt,
		&incident.RootCause, &incident.FixDescription, &incident.CommitHash, &resolvedAt,
		&incident.CreatedAt, &incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	incident.LastAttemptAt = timePtr(lastAttemptAt)
	incident.ResolvedAt = timePtr(resolvedAt)
	if metricsJSON != "" && metricsJSON != "{}" {
		if err := json.Unmarshal([]byte(metricsJSON), &incident.Metrics); err != nil {
			return nil, fmt.Errorf("failed to parse incident metrics: %w", err)
		}
	}
	return &incident, nil
}

// scanIncidents scans all rows from an incident query.
func scanIncidents(rows *sql.Rows) ([]*types.Incident, error) {
	var incidents []*types.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	return incidents, nil
}
