package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/arklim/auth-service/internal/core/domain"
	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/repository"
)

const timeLayout = time.RFC3339Nano

// UserRepository implements port.UserRepository on an embedded SQLite database.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository wires a SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// withConn pins a single pool connection for fn and returns it to the pool afterwards.
func (r *UserRepository) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(conn)
}

// Create inserts a new user row. A clash on the unique email index is
// reported as repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var name sql.NullString
	if user.Name != nil {
		name = sql.NullString{String: *user.Name, Valid: true}
	}

	return r.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx,
			`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.Email,
			name,
			user.PasswordHash,
			user.CreatedAt.UTC().Format(timeLayout),
			user.UpdatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicate
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
}

// GetByEmail retrieves a user by normalized email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "email", email)
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, "id", id)
}

func (r *UserRepository) getOne(ctx context.Context, column, value string) (*domain.User, error) {
	var (
		user      domain.User
		name      sql.NullString
		createdAt string
		updatedAt string
	)

	err := r.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`SELECT id, email, name, password_hash, created_at, updated_at FROM users WHERE `+column+` = ?`,
			value,
		).Scan(&user.ID, &user.Email, &name, &user.PasswordHash, &createdAt, &updatedAt)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	if name.Valid {
		user.Name = &name.String
	}
	if user.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if user.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &user, nil
}

// Delete removes the user row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete user rows affected: %w", err)
		}
		if affected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ port.UserRepository = (*UserRepository)(nil)
