package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/config"
	"github.com/taskmaster/pulse/internal/infrastructure/database"
	"github.com/taskmaster/pulse/internal/ports"
)

// Store hands out repositories bound either to the connection pool or to a
// single transaction.
type Store struct {
	db *database.DB
}

// NewStore creates a new store over an open database
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Repositories returns repositories that run each statement on its own.
func (s *Store) Repositories() ports.Repositories {
	return newRepositories(s.db.DB)
}

// WithinTransaction implements ports.Transactor.
func (s *Store) WithinTransaction(ctx context.Context, fn func(repos ports.Repositories) error) error {
	return s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		return fn(newRepositories(tx))
	})
}

func newRepositories(ext sqlx.ExtContext) ports.Repositories {
	return ports.Repositories{
		Users:   NewUserRepository(ext),
		Tasks:   NewTaskRepository(ext),
		History: NewHistoryRepository(ext),
		Auth:    NewAuthRepository(ext),
	}
}

// lockClause is the row lock suffix for the driver behind db. SQLite takes no
// row locks; its single connection already serialises writers.
func lockClause(db sqlx.ExtContext) string {
	if db.DriverName() == config.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// translate maps driver errors onto the domain taxonomy.
func translate(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case isUniqueViolation(err):
		return entities.WrapError(entities.ErrCodeConflict, op, err)
	case isForeignKeyViolation(err):
		return entities.ErrUserNotFound
	}
	var dErr *entities.Error
	if errors.As(err, &dErr) {
		return err
	}
	return entities.StorageError(op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// uniqueField reports which user column a unique violation hit.
func uniqueField(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if strings.Contains(pqErr.Constraint, "username") {
			return "username"
		}
		return "email"
	}
	if strings.Contains(err.Error(), "users.username") {
		return "username"
	}
	return "email"
}
