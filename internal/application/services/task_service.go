package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskmaster/pulse/internal/application/validation"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

// Listing defaults
const (
	DefaultPageSize = 20
	UpcomingWindow  = 7 * 24 * time.Hour
)

// TaskService handles task-related operations. Every write runs in one
// transaction together with its history entries and the owner's stats.
type TaskService struct {
	repos    ports.Repositories
	tx       ports.Transactor
	enricher ports.Enricher
	reports  reportInvalidator
	logger   *logger.Logger
	now      func() time.Time
}

var _ ports.TaskService = (*TaskService)(nil)

// NewTaskService creates a new task service. reports may be nil.
func NewTaskService(repos ports.Repositories, tx ports.Transactor, enricher ports.Enricher, reports reportInvalidator, logger *logger.Logger) *TaskService {
	if reports == nil {
		reports = noopInvalidator{}
	}
	return &TaskService{
		repos:    repos,
		tx:       tx,
		enricher: enricher,
		reports:  reports,
		logger:   logger.WithComponent("task_service"),
		now:      utcNow,
	}
}

// CreateTask creates a new task
func (s *TaskService) CreateTask(ctx context.Context, userID uuid.UUID, req ports.CreateTaskRequest) (*entities.Task, error) {
	now := s.now()
	task, err := newTask(userID, req, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(repos ports.Repositories) error {
		return s.insert(ctx, repos, userID, task)
	})
	if err != nil {
		return nil, err
	}

	s.reports.Invalidate(ctx, userID)
	s.logger.LogTaskEvent(userID, task.ID, "Task created")
	return task, nil
}

// BulkCreate creates every task or none of them
func (s *TaskService) BulkCreate(ctx context.Context, userID uuid.UUID, req ports.BulkCreateRequest) ([]*entities.Task, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	// Each task gets its own instant so snapshots keep request order.
	now := s.now()
	tasks := make([]*entities.Task, 0, len(req.Tasks))
	for i, r := range req.Tasks {
		task, err := newTask(userID, r, now.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return nil, prefixFields(err, fmt.Sprintf("tasks[%d].", i))
		}
		tasks = append(tasks, task)
	}

	err := s.tx.WithinTransaction(ctx, func(repos ports.Repositories) error {
		return s.insert(ctx, repos, userID, tasks...)
	})
	if err != nil {
		return nil, err
	}

	s.reports.Invalidate(ctx, userID)
	s.logger.Infow("Tasks created in bulk", "user_id", userID, "count", len(tasks))
	return tasks, nil
}

func (s *TaskService) insert(ctx context.Context, repos ports.Repositories, userID uuid.UUID, tasks ...*entities.Task) error {
	changes := make([]taskChange, 0, len(tasks))
	for _, task := range tasks {
		if err := repos.Tasks.Create(ctx, task); err != nil {
			return err
		}
		entry, err := entities.NewCreatedEntry(task, task.CreatedAt)
		if err != nil {
			return err
		}
		if err := repos.History.Append(ctx, entry); err != nil {
			return err
		}
		changes = append(changes, taskChange{after: task})
	}
	return applyStats(ctx, repos, userID, changes...)
}

// GetTask retrieves a task by ID
func (s *TaskService) GetTask(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error) {
	return s.repos.Tasks.GetByID(ctx, userID, id)
}

// ListTasks retrieves tasks with filtering and pagination
func (s *TaskService) ListTasks(ctx context.Context, userID uuid.UUID, query ports.ListTasksQuery) (*ports.Page[*entities.Task], error) {
	if err := validation.Struct(query); err != nil {
		return nil, err
	}

	page, limit := query.Page, query.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	filter := ports.TaskFilter{
		UserID:    userID,
		Status:    query.Status,
		Priority:  query.Priority,
		Category:  query.Category,
		DueBefore: query.DueBefore,
		DueAfter:  query.DueAfter,
		Search:    query.Search,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	total, err := s.repos.Tasks.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	tasks, err := s.repos.Tasks.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &ports.Page[*entities.Task]{
		Data:  tasks,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// UpdateTask applies a partial update. Status and progress changes go
// through the lifecycle rules and are recorded as their own history entries.
func (s *TaskService) UpdateTask(ctx context.Context, userID, id uuid.UUID, req ports.UpdateTaskRequest) (*entities.Task, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, id, "Task updated", func(task *entities.Task, now time.Time) ([]*entities.TaskHistory, error) {
		before := task.Clone()
		if err := applyFields(task, req); err != nil {
			return nil, err
		}

		var entries []*entities.TaskHistory
		if !sameFields(before, task) {
			if task.Title != before.Title || task.Description != before.Description {
				task.AIInsights = nil
			}
			task.UpdatedAt = now
			entry, err := entities.NewUpdatedEntry(before, task, now)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}

		if req.Status != nil {
			tr, err := task.SetStatus(*req.Status, now)
			if err != nil {
				return nil, err
			}
			more, err := entities.TransitionEntries(task, tr, now)
			if err != nil {
				return nil, err
			}
			entries = append(entries, more...)
		}

		if req.Progress != nil {
			tr, err := task.SetProgress(*req.Progress, now)
			if err != nil {
				return nil, err
			}
			more, err := entities.TransitionEntries(task, tr, now)
			if err != nil {
				return nil, err
			}
			entries = append(entries, more...)
		}

		return entries, nil
	})
}

// UpdateStatus sets the status and its progress side effects
func (s *TaskService) UpdateStatus(ctx context.Context, userID, id uuid.UUID, status entities.TaskStatus) (*entities.Task, error) {
	return s.mutate(ctx, userID, id, "Task status updated", func(task *entities.Task, now time.Time) ([]*entities.TaskHistory, error) {
		tr, err := task.SetStatus(status, now)
		if err != nil {
			return nil, err
		}
		return entities.TransitionEntries(task, tr, now)
	})
}

// UpdateProgress sets the progress and its status side effects. Repeating
// the current value is a no-op.
func (s *TaskService) UpdateProgress(ctx context.Context, userID, id uuid.UUID, progress int) (*entities.Task, error) {
	return s.mutate(ctx, userID, id, "Task progress updated", func(task *entities.Task, now time.Time) ([]*entities.TaskHistory, error) {
		tr, err := task.SetProgress(progress, now)
		if err != nil {
			return nil, err
		}
		return entities.TransitionEntries(task, tr, now)
	})
}

// mutate loads the task inside a transaction and lets fn change it. When fn
// returns no history entries nothing is written.
func (s *TaskService) mutate(ctx context.Context, userID, id uuid.UUID, action string, fn func(task *entities.Task, now time.Time) ([]*entities.TaskHistory, error)) (*entities.Task, error) {
	var (
		task    *entities.Task
		changed bool
	)

	err := s.tx.WithinTransaction(ctx, func(repos ports.Repositories) error {
		current, err := repos.Tasks.GetByIDForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		before := current.Clone()

		entries, err := fn(current, s.now())
		if err != nil {
			return err
		}
		task = current
		if len(entries) == 0 {
			return nil
		}
		changed = true

		if err := repos.Tasks.Update(ctx, current); err != nil {
			return err
		}
		if err := repos.History.Append(ctx, entries...); err != nil {
			return err
		}
		return applyStats(ctx, repos, userID, taskChange{before: before, after: current})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.reports.Invalidate(ctx, userID)
		s.logger.LogTaskEvent(userID, id, action, "status", task.Status, "progress", task.Progress)
	}
	return task, nil
}

// DeleteTask deletes a task. Its history is kept.
func (s *TaskService) DeleteTask(ctx context.Context, userID, id uuid.UUID) error {
	err := s.tx.WithinTransaction(ctx, func(repos ports.Repositories) error {
		task, err := repos.Tasks.GetByIDForUpdate(ctx, userID, id)
		if err != nil {
			return err
		}
		return s.remove(ctx, repos, userID, task)
	})
	if err != nil {
		return err
	}

	s.reports.Invalidate(ctx, userID)
	s.logger.LogTaskEvent(userID, id, "Task deleted")
	return nil
}

// BulkDelete deletes the caller's tasks among ids and reports how many were
// removed. Unknown ids are skipped.
func (s *TaskService) BulkDelete(ctx context.Context, userID uuid.UUID, req ports.BulkDeleteRequest) (int, error) {
	if err := validation.Struct(req); err != nil {
		return 0, err
	}

	var deleted int
	err := s.tx.WithinTransaction(ctx, func(repos ports.Repositories) error {
		tasks, err := repos.Tasks.ListByIDs(ctx, userID, req.IDs)
		if err != nil {
			return err
		}
		if err := s.remove(ctx, repos, userID, tasks...); err != nil {
			return err
		}
		deleted = len(tasks)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.reports.Invalidate(ctx, userID)
	}
	s.logger.Infow("Tasks deleted in bulk", "user_id", userID, "requested", len(req.IDs), "deleted", deleted)
	return deleted, nil
}

func (s *TaskService) remove(ctx context.Context, repos ports.Repositories, userID uuid.UUID, tasks ...*entities.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	now := s.now()
	changes := make([]taskChange, 0, len(tasks))
	for _, task := range tasks {
		if err := repos.Tasks.Delete(ctx, userID, task.ID); err != nil {
			return err
		}
		if err := repos.History.Append(ctx, entities.NewDeletedEntry(task, now)); err != nil {
			return err
		}
		changes = append(changes, taskChange{before: task})
	}
	return applyStats(ctx, repos, userID, changes...)
}

// TasksByCategory lists a category ordered by priority
func (s *TaskService) TasksByCategory(ctx context.Context, userID uuid.UUID, category string) ([]*entities.Task, error) {
	return s.repos.Tasks.List(ctx, ports.TaskFilter{UserID: userID, Category: &category, SortBy: "priority"})
}

// TasksByPriority lists one priority level ordered by due date
func (s *TaskService) TasksByPriority(ctx context.Context, userID uuid.UUID, priority int) ([]*entities.Task, error) {
	if priority < entities.MinPriority || priority > entities.MaxPriority {
		return nil, entities.NewValidationError(entities.FieldError{
			Field: "priority", Rule: "range", Message: "priority must be between 1 and 5",
		})
	}
	return s.repos.Tasks.List(ctx, ports.TaskFilter{UserID: userID, Priority: &priority, SortBy: "due_date"})
}

// OverdueTasks lists unfinished tasks past their due date
func (s *TaskService) OverdueTasks(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error) {
	now := s.now()
	completed := false
	return s.repos.Tasks.List(ctx, ports.TaskFilter{
		UserID:    userID,
		DueBefore: &now,
		Completed: &completed,
		SortBy:    "due_date",
	})
}

// UpcomingTasks lists unfinished tasks due within the next seven days
func (s *TaskService) UpcomingTasks(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error) {
	now := s.now()
	until := now.Add(UpcomingWindow)
	completed := false
	return s.repos.Tasks.List(ctx, ports.TaskFilter{
		UserID:    userID,
		DueAfter:  &now,
		DueBefore: &until,
		Completed: &completed,
		SortBy:    "due_date",
	})
}

// History returns the audit trail of a task, including after deletion
func (s *TaskService) History(ctx context.Context, userID, taskID uuid.UUID) ([]*entities.TaskHistory, error) {
	return s.repos.History.ListByTask(ctx, userID, taskID)
}

// Insights returns the stored insights of a task, generating them on first
// read or when refresh is set. The model call happens outside any
// transaction.
func (s *TaskService) Insights(ctx context.Context, userID, taskID uuid.UUID, refresh bool) (*entities.Insights, error) {
	task, err := s.repos.Tasks.GetByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if task.AIInsights != nil && !refresh {
		return task.AIInsights, nil
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var insights entities.Insights
	if user.Preferences.AIEnabled() {
		insights = s.enricher.Enrich(ctx, enrichmentText(task))
	} else {
		insights = entities.DefaultInsights()
		insights.GeneratedAt = s.now()
	}

	if err := s.repos.Tasks.SaveInsights(ctx, userID, taskID, &insights); err != nil {
		return nil, err
	}

	s.logger.LogTaskEvent(userID, taskID, "Task insights generated", "source", insights.Source)
	return &insights, nil
}

func enrichmentText(task *entities.Task) string {
	if task.Description == "" {
		return task.Title
	}
	return task.Title + "\n\n" + task.Description
}

func newTask(userID uuid.UUID, req ports.CreateTaskRequest, now time.Time) (*entities.Task, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, entities.NewValidationError(entities.FieldError{
			Field: "title", Rule: "required", Message: "title is required",
		})
	}
	if req.DueDate.Before(now) {
		return nil, entities.ErrDeadlineInPast
	}

	task := entities.NewTask(userID, title, req.DueDate, now)
	task.Description = strings.TrimSpace(req.Description)
	if req.Category != nil {
		task.Category = strings.TrimSpace(*req.Category)
	}
	if req.Tags != nil {
		task.Tags = normalizeTags(req.Tags)
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Impact != nil {
		task.Impact = *req.Impact
	}
	if req.Complexity != nil {
		task.Complexity = *req.Complexity
	}
	if req.EstimatedHours != nil {
		task.EstimatedHours = *req.EstimatedHours
	}
	return task, nil
}

func applyFields(task *entities.Task, req ports.UpdateTaskRequest) error {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return entities.NewValidationError(entities.FieldError{
				Field: "title", Rule: "required", Message: "title is required",
			})
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		task.Category = strings.TrimSpace(*req.Category)
	}
	if req.Tags != nil {
		task.Tags = normalizeTags(req.Tags)
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Impact != nil {
		task.Impact = *req.Impact
	}
	if req.Complexity != nil {
		task.Complexity = *req.Complexity
	}
	if req.EstimatedHours != nil {
		task.EstimatedHours = *req.EstimatedHours
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate.UTC()
	}
	return nil
}

// sameFields compares the user-editable fields, lifecycle excluded.
func sameFields(a, b *entities.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Category == b.Category &&
		slices.Equal(a.Tags, b.Tags) &&
		a.Priority == b.Priority &&
		a.Impact == b.Impact &&
		a.Complexity == b.Complexity &&
		a.EstimatedHours == b.EstimatedHours &&
		a.DueDate.Equal(b.DueDate)
}

// normalizeTags trims and de-duplicates, keeping first occurrence order.
func normalizeTags(tags []string) entities.Tags {
	out := make(entities.Tags, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// prefixFields locates a nested validation failure inside a batch request.
func prefixFields(err error, prefix string) error {
	var dErr *entities.Error
	if !errors.As(err, &dErr) || dErr.Code != entities.ErrCodeValidation {
		return err
	}
	fields := make([]entities.FieldError, 0, len(dErr.Fields))
	for _, f := range dErr.Fields {
		f.Field = prefix + f.Field
		fields = append(fields, f)
	}
	return entities.NewValidationError(fields...)
}
