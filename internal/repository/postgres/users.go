package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/repository"
)

const (
	usersTable          = "auth.users"
	uniqueViolationCode = "23505"
)

var userColumns = []string{"id", "email", "name", "password_hash", "created_at", "updated_at"}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a pool-backed user repository. Every call acquires
// its own connection and releases it before returning.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// NewUserRepositoryWithExecutor runs every statement on exec, such as a
// transaction or a test double.
func NewUserRepositoryWithExecutor(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *UserRepository) withConn(ctx context.Context, fn func(exec pgExecutor) error) error {
	if r.exec != nil {
		return fn(r.exec)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return fn(conn)
}

// Create inserts a new user row. A clash on the unique email index is
// reported as repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	return r.withConn(ctx, func(exec pgExecutor) error {
		if _, err := exec.Exec(ctx, stmt, args...); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		user      domain.User
		name      *string
		createdAt time.Time
		updatedAt time.Time
	)

	err = r.withConn(ctx, func(exec pgExecutor) error {
		return exec.QueryRow(ctx, stmt, args...).Scan(
			&user.ID,
			&user.Email,
			&name,
			&user.PasswordHash,
			&createdAt,
			&updatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	user.Name = name
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()
	return &user, nil
}

// Delete removes the user row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(usersTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	return r.withConn(ctx, func(exec pgExecutor) error {
		tag, err := exec.Exec(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

var _ port.UserRepository = (*UserRepository)(nil)
