package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

// HistoryRepositoryImpl implements the HistoryRepository interface
type HistoryRepositoryImpl struct {
	db sqlx.ExtContext
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db sqlx.ExtContext) ports.HistoryRepository {
	return &HistoryRepositoryImpl{db: db}
}

// Append inserts the entries in order and fills in their ids.
func (r *HistoryRepositoryImpl) Append(ctx context.Context, entries ...*entities.TaskHistory) error {
	query := r.db.Rebind(`
		INSERT INTO task_history (task_id, user_id, action, changes, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)

	for _, entry := range entries {
		err := r.db.QueryRowxContext(ctx, query,
			entry.TaskID, entry.UserID, entry.Action, entry.Changes, entry.CreatedAt.UTC(),
		).Scan(&entry.ID)
		if err != nil {
			return translate("append task history", err, entities.ErrTaskNotFound)
		}
	}
	return nil
}

func (r *HistoryRepositoryImpl) ListByTask(ctx context.Context, userID, taskID uuid.UUID) ([]*entities.TaskHistory, error) {
	query := r.db.Rebind(`
		SELECT id, task_id, user_id, action, changes, created_at
		FROM task_history
		WHERE user_id = ? AND task_id = ?
		ORDER BY id`)

	entries := []*entities.TaskHistory{}
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, userID, taskID); err != nil {
		return nil, translate("list task history", err, entities.ErrTaskNotFound)
	}
	return entries, nil
}

func (r *HistoryRepositoryImpl) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.TaskHistory, error) {
	query := r.db.Rebind(`
		SELECT id, task_id, user_id, action, changes, created_at
		FROM task_history
		WHERE user_id = ?
		ORDER BY id`)

	entries := []*entities.TaskHistory{}
	if err := sqlx.SelectContext(ctx, r.db, &entries, query, userID); err != nil {
		return nil, translate("list user history", err, entities.ErrUserNotFound)
	}
	return entries, nil
}
