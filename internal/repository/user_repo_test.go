package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"fireplus/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

const insertUserPrefix = "INSERT INTO users (username, password_hash)"

func newUserRepo(t *testing.T) (*repository.UserSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = db.Close()
	})
	return repository.NewUserSQLite(db), mock
}

func TestUserSQLite_Create_ReturnsInsertID(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(insertUserPrefix)).
		WithArgs("kamin", "$2a$hash").
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := repo.Create(context.Background(), "kamin", "$2a$hash")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != 42 {
		t.Fatalf("Create() id = %d, want 42", id)
	}
}

func TestUserSQLite_Create_Errors(t *testing.T) {
	down := errors.New("database is locked")

	tests := []struct {
		name    string
		expect  func(sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "duplicate username",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertUserPrefix)).
					WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"))
			},
			wantErr: repository.ErrUserExists,
		},
		{
			name: "driver failure",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertUserPrefix)).WillReturnError(down)
			},
			wantErr: down,
		},
		{
			name: "no insert id",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec(regexp.QuoteMeta(insertUserPrefix)).
					WillReturnResult(sqlmock.NewErrorResult(down))
			},
			wantErr: down,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newUserRepo(t)
			tt.expect(mock)

			id, err := repo.Create(context.Background(), "kamin", "$2a$hash")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Create() error = %v, want %v", err, tt.wantErr)
			}
			if id != 0 {
				t.Fatalf("Create() id = %d on error", id)
			}
		})
	}
}

func TestUserSQLite_Create_DriverFailureIsNotDuplicate(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(insertUserPrefix)).
		WillReturnError(errors.New("NOT NULL constraint failed: users.password_hash"))

	_, err := repo.Create(context.Background(), "kamin", "")
	if errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("Create() error = %v, must not be ErrUserExists", err)
	}
}

func TestUserSQLite_GetByUsername(t *testing.T) {
	repo, mock := newUserRepo(t)

	rows := sqlmock.NewRows([]string{"id", "username", "password_hash"}).AddRow(7, "kamin", "$2a$hash")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, username, password_hash FROM users WHERE username = ?")).
		WithArgs("kamin").
		WillReturnRows(rows)

	u, err := repo.GetByUsername(context.Background(), "kamin")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if u == nil || u.ID != 7 || u.Username != "kamin" || u.PasswordHash != "$2a$hash" {
		t.Fatalf("GetByUsername() = %+v", u)
	}
}

func TestUserSQLite_GetByUsername_NoRowsReturnsNil(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = ?")).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.GetByUsername(context.Background(), "nobody")
	if err != nil || u != nil {
		t.Fatalf("GetByUsername() = %+v, %v; want nil, nil", u, err)
	}
}

func TestUserSQLite_GetByUsername_QueryErrorIsWrapped(t *testing.T) {
	repo, mock := newUserRepo(t)

	down := errors.New("disk I/O error")
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = ?")).WillReturnError(down)

	u, err := repo.GetByUsername(context.Background(), "kamin")
	if !errors.Is(err, down) || u != nil {
		t.Fatalf("GetByUsername() = %+v, %v; want nil and wrapped cause", u, err)
	}
}
