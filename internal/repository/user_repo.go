package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fireplus/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrUserExists is returned by Create when the username is already taken.
var ErrUserExists = errors.New("user already exists")

// UserSQLite stores operator accounts.
type UserSQLite struct {
	db *sql.DB
}

func NewUserSQLite(db *sql.DB) *UserSQLite {
	return &UserSQLite{db: db}
}

var _ Authorization = (*UserSQLite)(nil)

const (
	insertUserSQL = `INSERT INTO users (username, password_hash) VALUES (?, ?)`

	selectUserColumns = `SELECT id, username, password_hash FROM users`
)

// Create inserts an account and returns its id. The unique index on username
// decides races between concurrent sign-ups.
func (r *UserSQLite) Create(ctx context.Context, username, passwordHash string) (int, error) {
	res, err := r.db.ExecContext(ctx, insertUserSQL, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert user %q: %w", username, ErrUserExists)
		}
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id for user %q: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername fetches an account. Returns (nil, nil) if not found.
func (r *UserSQLite) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, selectUserColumns+` WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	return &u, nil
}

// isUniqueViolation reports whether err comes from a UNIQUE index. The
// message check covers drivers that do not expose sqlite result codes.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
