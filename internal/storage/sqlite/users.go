package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mendhq/mend/internal/types"
)

const userColumns = `id, email, role, is_owner, created_at`

// CreateUser inserts a new platform user.
func (s *SQLiteStorage) CreateUser(ctx context.Context, user *types.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = types.RoleMember
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Email == "" {
		return fmt.Errorf("email is required")
	}
	if user.Role != types.RoleAdmin && user.Role != types.RoleMember {
		return fmt.Errorf("invalid role: %s", user.Role)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.Role, user.IsOwner, user.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("user already exists with email %s", user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil if not found.
func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email. Returns nil if not found.
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetOwner retrieves the designated owner, or nil if none is set.
func (s *SQLiteStorage) GetOwner(ctx context.Context) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE is_owner = 1 LIMIT 1`)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return user, nil
}

// GetFirstAdmin retrieves the oldest admin user, or nil if there are no
// admins. Used as the fallback system identity when no owner is set.
func (s *SQLiteStorage) GetFirstAdmin(ctx context.Context) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE role = 'admin' ORDER BY created_at ASC LIMIT 1
	`)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first admin: %w", err)
	}
	return user, nil
}

// SetOwner designates a user as the owner, clearing any previous owner.
// At most one owner exists at a time.
func (s *SQLiteStorage) SetOwner(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE users SET is_owner = 0 WHERE is_owner = 1`); err != nil {
		return fmt.Errorf("failed to clear previous owner: %w", err)
	}

	result, err := tx.ExecContext(ctx, `UPDATE users SET is_owner = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to set owner: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit owner change: %w", err)
	}
	return nil
}

// ListUsers retrieves all users, oldest first.
func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]*types.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// scanUser scans a single user row.
func scanUser(rs rowScanner) (*types.User, error) {
	var user types.User
	err := rs.Scan(&user.ID, &user.Email, &user.Role, &user.IsOwner, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
