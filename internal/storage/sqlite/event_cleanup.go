package sqlite

import (
	"context"
	"fmt"
	"time"
)

// defaultCleanupBatchSize bounds a single delete statement so cleanup
// never holds the write lock for long stretches.
const defaultCleanupBatchSize = 1000

// CleanupEventsByAge deletes events older than the retention window.
// Deletes run in batches and stop early if the context is cancelled,
// returning how many events were removed so far.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, batchSize int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive (got %d)", retentionDays)
	}
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	totalDeleted := 0

	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM healing_events WHERE id IN (
				SELECT id FROM healing_events WHERE timestamp < ? ORDER BY timestamp ASC LIMIT ?
			)
		`, cutoff, batchSize)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete old events: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to check rows affected: %w", err)
		}
		totalDeleted += int(rows)
		if rows < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// CleanupEventsByGlobalLimit trims the event log down to globalLimit
// rows. Non-critical events are deleted oldest first; critical events
// only go once nothing else is left to trim.
func (s *SQLiteStorage) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit <= 0 {
		return 0, fmt.Errorf("global limit must be positive (got %d)", globalLimit)
	}
	if batchSize <= 0 {
		batchSize = defaultCleanupBatchSize
	}

	count, err := s.CountEvents(ctx)
	if err != nil {
		return 0, err
	}
	excess := count - globalLimit
	if excess <= 0 {
		return 0, nil
	}

	totalDeleted := 0
	for totalDeleted < excess {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		batch := batchSize
		if remaining := excess - totalDeleted; remaining < batch {
			batch = remaining
		}

		result, err := s.db.ExecContext(ctx, `
			DELETE FROM healing_events WHERE id IN (
				SELECT id FROM healing_events
				ORDER BY CASE WHEN severity = 'critical' THEN 1 ELSE 0 END ASC, timestamp ASC
				LIMIT ?
			)
		`, batch)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to trim events: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			break
		}
		totalDeleted += int(rows)
	}

	return totalDeleted, nil
}

// CountEvents returns the total number of stored events.
func (s *SQLiteStorage) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM healing_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
