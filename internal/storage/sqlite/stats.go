package sqlite

import (
	"context"
	"fmt"

	"github.com/mendhq/mend/internal/types"
)

// GetStatistics summarizes healing activity across all tables.
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	var stats types.Statistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM incidents),
			(SELECT COUNT(*) FROM incidents WHERE status = 'open'),
			(SELECT COUNT(*) FROM incidents WHERE status = 'healing'),
			(SELECT COUNT(*) FROM incidents WHERE status = 'resolved'),
			(SELECT COUNT(*) FROM incidents WHERE status = 'failed'),
			(SELECT COUNT(*) FROM healing_sessions),
			(SELECT COUNT(*) FROM healing_sessions WHERE status = 'active'),
			(SELECT COUNT(*) FROM healing_sessions WHERE status = 'success'),
			(SELECT COUNT(*) FROM knowledge_base),
			(SELECT COUNT(*) FROM healing_events)
	`).Scan(
		&stats.TotalIncidents, &stats.OpenIncidents, &stats.HealingIncidents,
		&stats.ResolvedIncidents, &stats.FailedIncidents,
		&stats.TotalSessions, &stats.ActiveSessions, &stats.SuccessfulSessions,
		&stats.KnowledgeBaseSize, &stats.TotalEvents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &stats, nil
}
