package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/internal/events"
)

const eventColumns = `id, type, timestamp, incident_id, session_id, severity, message, data`

// defaultEventLimit bounds unfiltered event queries.
const defaultEventLimit = 100

// StoreEvent persists a healing event to the durable event log.
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.HealingEvent) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = events.SeverityInfo
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}

	dataJSON := "{}"
	if len(event.Data) > 0 {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		dataJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO healing_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.Type, event.Timestamp.UTC(), event.IncidentID, event.SessionID,
		event.Severity, event.Message, dataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// GetEvents retrieves events matching the filter, newest first.
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.HealingEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM healing_events`
	var conditions []string
	var args []interface{}

	if filter.IncidentID != "" {
		conditions = append(conditions, "incident_id = ?")
		args = append(args, filter.IncidentID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, filter.AfterTime.UTC())
	}
	if !filter.BeforeTime.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.BeforeTime.UTC())
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByIncident retrieves all events for an incident, newest first.
func (s *SQLiteStorage) GetEventsByIncident(ctx context.Context, incidentID string) ([]*events.HealingEvent, error) {
	return s.GetEvents(ctx, events.EventFilter{IncidentID: incidentID})
}

// GetRecentEvents retrieves the most recent events up to limit.
func (s *SQLiteStorage) GetRecentEvents(ctx context.Context, limit int) ([]*events.HealingEvent, error) {
	return s.GetEvents(ctx, events.EventFilter{Limit: limit})
}

// scanEvents scans all rows from an event query.
func scanEvents(rows *sql.Rows) ([]*events.HealingEvent, error) {
	var result []*events.HealingEvent
	for rows.Next() {
		var event events.HealingEvent
		var dataJSON string

		err := rows.Scan(
			&event.ID, &event.Type, &event.Timestamp, &event.IncidentID, &event.SessionID,
			&event.Severity, &event.Message, &dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Data = make(map[string]interface{})
		if dataJSON != "" && dataJSON != "{}" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to parse event data: %w", err)
			}
		}
		result = append(result, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return result, nil
}
