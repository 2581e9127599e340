package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/internal/types"
)

const kbColumns = `id, error_signature, error_kind, context, successful_fix,
	times_encountered, times_fixed, last_encountered, confidence, created_at, updated_at`

// GetKBEntryBySignature retrieves a knowledge base entry by error
// signature. Returns nil if no entry exists.
func (s *SQLiteStorage) GetKBEntryBySignature(ctx context.Context, signature string) (*types.KBEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+kbColumns+` FROM knowledge_base WHERE error_signature = ?`, signature)
	entry, err := scanKBEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base entry: %w", err)
	}
	return entry, nil
}

// InsertKBEntry inserts a new knowledge base entry. The error signature
// is unique: one entry per distinct failure shape.
func (s *SQLiteStorage) InsertKBEntry(ctx context.Context, entry *types.KBEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.LastEncountered.IsZero() {
		entry.LastEncountered = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base entry: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (`+kbColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.ErrorSignature, entry.ErrorKind, entry.Context, entry.SuccessfulFix,
		entry.TimesEncountered, entry.TimesFixed, entry.LastEncountered, entry.Confidence,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("knowledge base entry already exists for signature %s", entry.ErrorSignature)
		}
		return fmt.Errorf("failed to insert knowledge base entry: %w", err)
	}
	return nil
}

// UpdateKBEntry rewrites an entry's learnable fields: counters, fix,
// context, confidence, and the last-encountered timestamp.
func (s *SQLiteStorage) UpdateKBEntry(ctx context.Context, entry *types.KBEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base entry: %w", err)
	}

	now := time.Now().UTC()
	entry.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_base
		SET context = ?, successful_fix = ?, times_encountered = ?, times_fixed = ?,
			last_encountered = ?, confidence = ?, updated_at = ?
		WHERE id = ?
	`,
		entry.Context, entry.SuccessfulFix, entry.TimesEncountered, entry.TimesFixed,
		entry.LastEncountered, entry.Confidence, entry.UpdatedAt, entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update knowledge base entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("knowledge base entry not found: %s", entry.ID)
	}
	return nil
}

// IncrementKBEncounter bumps the encounter counter and timestamp for a
// signature without touching the fix or the fixed counter. Used when a
// known failure shape recurs but the attempt to fix it did not succeed.
func (s *SQLiteStorage) IncrementKBEncounter(ctx context.Context, signature string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_base
		SET times_encountered = times_encountered + 1, last_encountered = ?, updated_at = ?
		WHERE error_signature = ?
	`, now, now, signature)
	if err != nil {
		return fmt.Errorf("failed to increment knowledge base encounter: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("knowledge base entry not found for signature %s", signature)
	}
	return nil
}

// ListKBEntries retrieves knowledge base entries, most recently
// encountered first.
func (s *SQLiteStorage) ListKBEntries(ctx context.Context, limit int) ([]*types.KBEntry, error) {
	query := `SELECT ` + kbColumns + ` FROM knowledge_base ORDER BY last_encountered DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge base entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.KBEntry
	for rows.Next() {
		entry, err := scanKBEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate knowledge base entries: %w", err)
	}
	return entries, nil
}

// scanKBEntry scans a single knowledge base row.
func scanKBEntry(rs rowScanner) (*types.KBEntry, error) {
	var entry types.KBEntry
	err := rs.Scan(
		&entry.ID, &entry.ErrorSignature, &entry.ErrorKind, &entry.Context, &entry.SuccessfulFix,
		&entry.TimesEncountered, &entry.TimesFixed, &entry.LastEncountered, &entry.Confidence,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
