package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

const taskColumns = `id, user_id, title, description, category, tags, priority, impact,
	complexity, estimated_hours, status, progress, due_date, started_at, completed_at,
	ai_insights, created_at, updated_at`

// TaskRepositoryImpl implements the TaskRepository interface
type TaskRepositoryImpl struct {
	db sqlx.ExtContext
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db sqlx.ExtContext) ports.TaskRepository {
	return &TaskRepositoryImpl{db: db}
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, task *entities.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (:id, :user_id, :title, :description, :category, :tags, :priority, :impact,
			:complexity, :estimated_hours, :status, :progress, :due_date, :started_at, :completed_at,
			:ai_insights, :created_at, :updated_at)`

	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	_, err := sqlx.NamedExecContext(ctx, r.db, query, task)
	return translate("create task", err, entities.ErrTaskNotFound)
}

func (r *TaskRepositoryImpl) GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error) {
	return r.get(ctx, "get task by id", userID, id, "")
}

func (r *TaskRepositoryImpl) GetByIDForUpdate(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error) {
	return r.get(ctx, "lock task by id", userID, id, lockClause(r.db))
}

func (r *TaskRepositoryImpl) get(ctx context.Context, op string, userID, id uuid.UUID, lock string) (*entities.Task, error) {
	query := r.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND user_id = ?` + lock)

	var task entities.Task
	if err := sqlx.GetContext(ctx, r.db, &task, query, id, userID); err != nil {
		return nil, translate(op, err, entities.ErrTaskNotFound)
	}
	return &task, nil
}

func (r *TaskRepositoryImpl) Update(ctx context.Context, task *entities.Task) error {
	query := `
		UPDATE tasks
		SET title = :title, description = :description, category = :category, tags = :tags,
			priority = :priority, impact = :impact, complexity = :complexity,
			estimated_hours = :estimated_hours, status = :status, progress = :progress,
			due_date = :due_date, started_at = :started_at, completed_at = :completed_at,
			ai_insights = :ai_insights, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`

	result, err := sqlx.NamedExecContext(ctx, r.db, query, task)
	if err != nil {
		return translate("update task", err, entities.ErrTaskNotFound)
	}
	return requireRow(result, "update task", entities.ErrTaskNotFound)
}

func (r *TaskRepositoryImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := r.db.Rebind(`DELETE FROM tasks WHERE id = ? AND user_id = ?`)

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return translate("delete task", err, entities.ErrTaskNotFound)
	}
	return requireRow(result, "delete task", entities.ErrTaskNotFound)
}

func (r *TaskRepositoryImpl) List(ctx context.Context, filter ports.TaskFilter) ([]*entities.Task, error) {
	where, args := taskConditions(filter)
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY %s`, taskColumns, where, taskOrder(filter))

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	tasks := []*entities.Task{}
	if err := sqlx.SelectContext(ctx, r.db, &tasks, r.db.Rebind(query), args...); err != nil {
		return nil, translate("list tasks", err, entities.ErrTaskNotFound)
	}
	return tasks, nil
}

func (r *TaskRepositoryImpl) Count(ctx context.Context, filter ports.TaskFilter) (int64, error) {
	where, args := taskConditions(filter)
	query := r.db.Rebind(`SELECT COUNT(*) FROM tasks WHERE ` + where)

	var count int64
	if err := sqlx.GetContext(ctx, r.db, &count, query, args...); err != nil {
		return 0, translate("count tasks", err, entities.ErrTaskNotFound)
	}
	return count, nil
}

func (r *TaskRepositoryImpl) ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*entities.Task, error) {
	tasks := []*entities.Task{}
	if len(ids) == 0 {
		return tasks, nil
	}

	query, args, err := sqlx.In(`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id IN (?) ORDER BY created_at, id`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("build task id query: %w", err)
	}
	if err := sqlx.SelectContext(ctx, r.db, &tasks, r.db.Rebind(query), args...); err != nil {
		return nil, translate("list tasks by id", err, entities.ErrTaskNotFound)
	}
	return tasks, nil
}

func (r *TaskRepositoryImpl) Snapshot(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error) {
	query := r.db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY created_at, id`)

	tasks := []*entities.Task{}
	if err := sqlx.SelectContext(ctx, r.db, &tasks, query, userID); err != nil {
		return nil, translate("load task snapshot", err, entities.ErrTaskNotFound)
	}
	return tasks, nil
}

func (r *TaskRepositoryImpl) SaveInsights(ctx context.Context, userID, id uuid.UUID, insights *entities.Insights) error {
	query := r.db.Rebind(`UPDATE tasks SET ai_insights = ? WHERE id = ? AND user_id = ?`)

	result, err := r.db.ExecContext(ctx, query, insights, id, userID)
	if err != nil {
		return translate("save task insights", err, entities.ErrTaskNotFound)
	}
	return requireRow(result, "save task insights", entities.ErrTaskNotFound)
}

func taskConditions(filter ports.TaskFilter) (string, []interface{}) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{filter.UserID}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Priority != nil {
		conditions = append(conditions, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, "due_date < ?")
		args = append(args, filter.DueBefore.UTC())
	}
	if filter.DueAfter != nil {
		conditions = append(conditions, "due_date >= ?")
		args = append(args, filter.DueAfter.UTC())
	}
	if filter.Completed != nil {
		if *filter.Completed {
			conditions = append(conditions, "status = ?")
		} else {
			conditions = append(conditions, "status <> ?")
		}
		args = append(args, entities.TaskStatusCompleted)
	}
	if filter.Search != nil && *filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(*filter.Search)) + "%"
		conditions = append(conditions, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	return strings.Join(conditions, " AND "), args
}

// likeEscaper makes LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// taskOrder only ever emits whitelisted column names.
func taskOrder(filter ports.TaskFilter) string {
	column := "priority"
	for _, allowed := range ports.TaskSortFields {
		if filter.SortBy == allowed {
			column = allowed
			break
		}
	}

	direction := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		direction = "DESC"
	}

	return fmt.Sprintf("%s %s, created_at ASC, id ASC", column, direction)
}
