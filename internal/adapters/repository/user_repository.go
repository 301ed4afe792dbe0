package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

const userColumns = `id, email, username, name, password_hash, is_active, preferences, stats,
	last_login, created_at, updated_at`

// UserRepositoryImpl implements the UserRepository interface
type UserRepositoryImpl struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new user repository
func NewUserRepository(db sqlx.ExtContext) ports.UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) Create(ctx context.Context, user *entities.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :username, :name, :password_hash, :is_active, :preferences, :stats,
			:last_login, :created_at, :updated_at)`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	_, err := sqlx.NamedExecContext(ctx, r.db, query, user)
	return r.conflict("create user", err)
}

func (r *UserRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	return r.getBy(ctx, "get user by id", "id", id, "")
}

func (r *UserRepositoryImpl) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	return r.getBy(ctx, "lock user by id", "id", id, lockClause(r.db))
}

func (r *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (*entities.User, error) {
	return r.getBy(ctx, "get user by email", "email", strings.ToLower(email), "")
}

func (r *UserRepositoryImpl) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.getBy(ctx, "get user by username", "username", username, "")
}

func (r *UserRepositoryImpl) getBy(ctx context.Context, op, column string, value interface{}, lock string) (*entities.User, error) {
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM users WHERE %s = ?%s`, userColumns, column, lock))

	var user entities.User
	if err := sqlx.GetContext(ctx, r.db, &user, query, value); err != nil {
		return nil, translate(op, err, entities.ErrUserNotFound)
	}
	return &user, nil
}

func (r *UserRepositoryImpl) Update(ctx context.Context, user *entities.User) error {
	query := `
		UPDATE users
		SET email = :email, username = :username, name = :name, is_active = :is_active,
			preferences = :preferences, updated_at = :updated_at
		WHERE id = :id`

	result, err := sqlx.NamedExecContext(ctx, r.db, query, user)
	if err != nil {
		return r.conflict("update user", err)
	}
	return requireRow(result, "update user", entities.ErrUserNotFound)
}

func (r *UserRepositoryImpl) UpdateStats(ctx context.Context, id uuid.UUID, stats entities.UserStats) error {
	query := r.db.Rebind(`UPDATE users SET stats = ? WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, stats, id)
	if err != nil {
		return translate("update user stats", err, entities.ErrUserNotFound)
	}
	return requireRow(result, "update user stats", entities.ErrUserNotFound)
}

func (r *UserRepositoryImpl) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := r.db.Rebind(`UPDATE users SET last_login = ? WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return translate("update last login", err, entities.ErrUserNotFound)
	}
	return requireRow(result, "update last login", entities.ErrUserNotFound)
}

func (r *UserRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	query := r.db.Rebind(`DELETE FROM users WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate("delete user", err, entities.ErrUserNotFound)
	}
	return requireRow(result, "delete user", entities.ErrUserNotFound)
}

func (r *UserRepositoryImpl) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM users ORDER BY created_at, id`); err != nil {
		return nil, translate("list user ids", err, entities.ErrUserNotFound)
	}
	return ids, nil
}

// conflict names the taken field on a unique violation.
func (r *UserRepositoryImpl) conflict(op string, err error) error {
	if err != nil && isUniqueViolation(err) {
		if uniqueField(err) == "username" {
			return entities.ErrUsernameTaken
		}
		return entities.ErrEmailTaken
	}
	return translate(op, err, entities.ErrUserNotFound)
}

func requireRow(result sql.Result, op string, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return entities.StorageError(op, fmt.Errorf("get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
