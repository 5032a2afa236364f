package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/repository"
)

func newMockRepository(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewUserRepositoryWithExecutor(mock), mock
}

func TestUserRepository_Create(t *testing.T) {
	repo, mock := newMockRepository(t)

	now := time.Now().UTC()
	name := "Alice"
	user := domain.User{
		ID:           "0b6c7f5e-2f0a-4bb0-9a57-8e8b0f1c2d3e",
		Email:        "alice@example.com",
		Name:         &name,
		PasswordHash: "argon2id$v=19$m=8192,t=1,p=1$salt$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO auth\.users \(id,email,name,password_hash,created_at,updated_at\)`).
		WithArgs(user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO auth\.users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), domain.User{ID: "id-1", Email: "alice@example.com"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_CreateFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`INSERT INTO auth\.users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	err := repo.Create(context.Background(), domain.User{ID: "id-1", Email: "alice@example.com"})
	if err == nil || errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected generic error, got %v", err)
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	repo, mock := newMockRepository(t)

	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	rows := pgxmock.NewRows(userColumns).
		AddRow("id-1", "alice@example.com", nil, "hash", createdAt, createdAt)

	mock.ExpectQuery(`SELECT id, email, name, password_hash, created_at, updated_at FROM auth\.users WHERE email = \$1`).
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if user.ID != "id-1" || user.Email != "alice@example.com" || user.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Name != nil {
		t.Fatalf("expected nil name, got %v", *user.Name)
	}
	if !user.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected created_at: %v", user.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`FROM auth\.users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_Delete(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`DELETE FROM auth\.users WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM auth\.users WHERE id = \$1`).
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "id-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(context.Background(), "id-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/auth?sslmode=disable":   "pgx5://u:p@localhost:5432/auth?sslmode=disable",
		"postgresql://u:p@localhost:5432/auth?sslmode=disable": "pgx5://u:p@localhost:5432/auth?sslmode=disable",
		"pgx5://u:p@localhost/auth":                            "pgx5://u:p@localhost/auth",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
