package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Roles
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleSuperuser = "superuser"
)

// User is an account row.
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	FullName      string
	Birthdate     string // YYYY-MM-DD
	CountryAlpha2 string
	Role          string
	DisabledAt    int64 // 0 while enabled
	CreatedAt     int64
}

// IsAdmin reports whether the user may use the admin origin.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperuser
}

// IsDisabled reports whether an administrator disabled the account.
func (u *User) IsDisabled() bool {
	return u.DisabledAt != 0
}

// Session is a signed-in browser.
type Session struct {
	SessionID string
	UserID    string
	ExpiresAt int64
	CreatedAt int64
}

const userColumns = `id, username, email, password_hash, full_name, birthdate, country_alpha2, role, disabled_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var disabledAt sql.NullInt64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Birthdate, &u.CountryAlpha2, &u.Role, &disabledAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.DisabledAt = disabledAt.Int64
	return &u, nil
}

// CreateUser inserts u. A taken username or email returns ErrConflict.
func (d *DB) CreateUser(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.CreatedAt == 0 {
		u.CreatedAt = time.Now().Unix()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, u.Birthdate, u.CountryAlpha2, u.Role, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID returns ErrNotFound for unknown ids.
func (d *DB) GetUserByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByLogin looks a user up by username or email, case-insensitively.
func (d *DB) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? LIMIT 1`, login, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by login: %w", err)
	}
	return u, nil
}

// ListUsers returns every account, oldest first.
func (d *DB) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// SetUserDisabled disables (at now) or re-enables an account. Disabling also
// ends the user's sessions.
func (d *DB) SetUserDisabled(ctx context.Context, id string, disabled bool, now time.Time) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var disabledAt any
	if disabled {
		disabledAt = now.Unix()
	}
	res, err := tx.ExecContext(ctx, `UPDATE users SET disabled_at = ? WHERE id = ?`, disabledAt, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if disabled {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("failed to end sessions: %w", err)
		}
	}
	return tx.Commit()
}

// CreateSession stores a new session row.
func (d *DB) CreateSession(ctx context.Context, s Session) error {
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, s.SessionID, s.UserID, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetValidSession returns the session if it exists and expires after now.
func (d *DB) GetValidSession(ctx context.Context, sessionID string, now time.Time) (*Session, error) {
	var s Session
	err := d.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, expires_at, created_at
		FROM sessions WHERE session_id = ? AND expires_at > ?
	`, sessionID, now.Unix()).Scan(&s.SessionID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes one session. Unknown ids are not an error.
func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now and
// returns how many were removed.
func (d *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
