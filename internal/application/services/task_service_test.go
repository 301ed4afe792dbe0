package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

func TestTaskService_CreateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")

	t.Run("applies defaults", func(t *testing.T) {
		task := f.createTask(t, user.ID, "  Draft plan  ", func(r *ports.CreateTaskRequest) {
			r.Tags = []string{"q3", " q3", "ops"}
		})

		assert.Equal(t, "Draft plan", task.Title)
		assert.Equal(t, entities.DefaultCategory, task.Category)
		assert.Equal(t, 3, task.Priority)
		assert.Equal(t, 5, task.Impact)
		assert.Equal(t, 3, task.Complexity)
		assert.Equal(t, 1.0, task.EstimatedHours)
		assert.Equal(t, entities.TaskStatusPending, task.Status)
		assert.Equal(t, 0, task.Progress)
		assert.Equal(t, entities.Tags{"q3", "ops"}, task.Tags)

		assert.Equal(t, []entities.HistoryAction{entities.ActionCreated}, f.history(t, user.ID, task.ID))
		assert.Equal(t, 1, f.stats(t, user.ID).TotalTasks)
	})

	t.Run("rejects a due date in the past", func(t *testing.T) {
		_, err := f.tasks.CreateTask(ctx, user.ID, ports.CreateTaskRequest{Title: "late", DueDate: start.Add(-time.Minute)})
		assert.ErrorIs(t, err, entities.ErrDeadlineInPast)
	})

	t.Run("rejects out of range metrics", func(t *testing.T) {
		_, err := f.tasks.CreateTask(ctx, user.ID, ports.CreateTaskRequest{
			Title:   "bad",
			DueDate: start.Add(time.Hour),
			Impact:  intPtr(11),
		})
		require.Error(t, err)
		assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))
	})

	t.Run("rejects a blank title", func(t *testing.T) {
		_, err := f.tasks.CreateTask(ctx, user.ID, ports.CreateTaskRequest{Title: "   ", DueDate: start.Add(time.Hour)})
		assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))
	})

	assert.Equal(t, 1, f.stats(t, user.ID).TotalTasks)
}

func TestTaskService_RollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	existing := f.createTask(t, user.ID, "existing", nil)

	broken := NewTaskService(f.repos, failingHistoryTx{inner: f.store}, f.enricher, f.analytics, logger.NewNop())
	broken.now = func() time.Time { return f.now }

	_, err := broken.CreateTask(ctx, user.ID, ports.CreateTaskRequest{Title: "doomed", DueDate: start.Add(time.Hour)})
	assert.ErrorIs(t, err, errDiskFull)

	_, err = broken.UpdateProgress(ctx, user.ID, existing.ID, 100)
	assert.ErrorIs(t, err, errDiskFull)

	err = broken.DeleteTask(ctx, user.ID, existing.ID)
	assert.ErrorIs(t, err, errDiskFull)

	snapshot, err := f.repos.Tasks.Snapshot(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, entities.TaskStatusPending, snapshot[0].Status)
	assert.Equal(t, 0, snapshot[0].Progress)
	assert.Equal(t, entities.UserStats{TotalTasks: 1}, f.stats(t, user.ID))
	assert.Equal(t, []entities.HistoryAction{entities.ActionCreated}, f.history(t, user.ID, existing.ID))
}

func TestTaskService_ProgressLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	task := f.createTask(t, user.ID, "ship", func(r *ports.CreateTaskRequest) { r.Impact = intPtr(8) })

	f.advance(time.Hour)
	started, err := f.tasks.UpdateProgress(ctx, user.ID, task.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.True(t, started.StartedAt.Equal(f.now))

	t.Run("repeating the same progress is a no-op", func(t *testing.T) {
		f.advance(time.Hour)
		again, err := f.tasks.UpdateProgress(ctx, user.ID, task.ID, 50)
		require.NoError(t, err)
		assert.True(t, again.UpdatedAt.Equal(started.UpdatedAt))
		assert.Len(t, f.history(t, user.ID, task.ID), 3)
	})

	t.Run("100 completes the task", func(t *testing.T) {
		done, err := f.tasks.UpdateProgress(ctx, user.ID, task.ID, 100)
		require.NoError(t, err)
		assert.Equal(t, entities.TaskStatusCompleted, done.Status)
		require.NotNil(t, done.CompletedAt)
		assert.True(t, done.CompletedAt.Equal(f.now))
		assert.Equal(t, entities.UserStats{TotalTasks: 1, CompletedTasks: 1, AvgImpact: 8}, f.stats(t, user.ID))

		f.advance(time.Minute)
		again, err := f.tasks.UpdateProgress(ctx, user.ID, task.ID, 100)
		require.NoError(t, err)
		assert.True(t, again.CompletedAt.Equal(*done.CompletedAt))
		assert.True(t, again.UpdatedAt.Equal(done.UpdatedAt))
		assert.Len(t, f.history(t, user.ID, task.ID), 5)
		assert.Equal(t, entities.UserStats{TotalTasks: 1, CompletedTasks: 1, AvgImpact: 8}, f.stats(t, user.ID))
	})

	t.Run("dropping below 100 reopens it", func(t *testing.T) {
		reopened, err := f.tasks.UpdateProgress(ctx, user.ID, task.ID, 80)
		require.NoError(t, err)
		assert.Equal(t, entities.TaskStatusInProgress, reopened.Status)
		assert.Nil(t, reopened.CompletedAt)
		assert.Equal(t, entities.UserStats{TotalTasks: 1}, f.stats(t, user.ID))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := f.tasks.UpdateProgress(ctx, user.ID, task.ID, 101)
		assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))
	})

	assert.Equal(t, []entities.HistoryAction{
		entities.ActionCreated,
		entities.ActionStatusUpdated, entities.ActionProgressUpdated,
		entities.ActionStatusUpdated, entities.ActionProgressUpdated,
		entities.ActionStatusUpdated, entities.ActionProgressUpdated,
	}, f.history(t, user.ID, task.ID))
}

func TestTaskService_ConcurrentCreatesKeepStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.tasks.CreateTask(ctx, user.ID, ports.CreateTaskRequest{
				Title:   fmt.Sprintf("task %d", i),
				DueDate: start.Add(72 * time.Hour),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stats := f.stats(t, user.ID)
	assert.Equal(t, workers, stats.TotalTasks)
	assert.Zero(t, stats.CompletedTasks)

	count, err := f.repos.Tasks.Count(ctx, ports.TaskFilter{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(workers), count)
}

func TestTaskService_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	task := f.createTask(t, user.ID, "review", nil)

	done, err := f.tasks.UpdateStatus(ctx, user.ID, task.ID, entities.TaskStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.CompletedAt)

	back, err := f.tasks.UpdateStatus(ctx, user.ID, task.ID, entities.TaskStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 0, back.Progress)
	assert.Nil(t, back.CompletedAt)

	_, err = f.tasks.UpdateStatus(ctx, user.ID, task.ID, entities.TaskStatus("done"))
	assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))

	assert.Equal(t, entities.UserStats{TotalTasks: 1}, f.stats(t, user.ID))
}

func TestTaskService_UpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	task := f.createTask(t, user.ID, "plan", func(r *ports.CreateTaskRequest) { r.Impact = intPtr(4) })

	_, err := f.tasks.UpdateStatus(ctx, user.ID, task.ID, entities.TaskStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, 4.0, f.stats(t, user.ID).AvgImpact)

	t.Run("impact edit on a completed task re-weights the mean", func(t *testing.T) {
		updated, err := f.tasks.UpdateTask(ctx, user.ID, task.ID, ports.UpdateTaskRequest{Impact: intPtr(9)})
		require.NoError(t, err)
		assert.Equal(t, 9, updated.Impact)
		assert.Equal(t, entities.UserStats{TotalTasks: 1, CompletedTasks: 1, AvgImpact: 9}, f.stats(t, user.ID))
	})

	t.Run("unchanged values write nothing", func(t *testing.T) {
		before := f.history(t, user.ID, task.ID)
		_, err := f.tasks.UpdateTask(ctx, user.ID, task.ID, ports.UpdateTaskRequest{Title: strPtr("plan"), Impact: intPtr(9)})
		require.NoError(t, err)
		assert.Equal(t, before, f.history(t, user.ID, task.ID))
	})

	t.Run("fields and status in one request", func(t *testing.T) {
		status := entities.TaskStatusInProgress
		updated, err := f.tasks.UpdateTask(ctx, user.ID, task.ID, ports.UpdateTaskRequest{
			Title:  strPtr("plan v2"),
			Status: &status,
		})
		require.NoError(t, err)
		assert.Equal(t, "plan v2", updated.Title)
		assert.Equal(t, entities.TaskStatusInProgress, updated.Status)
		assert.Equal(t, 0, updated.Progress)

		history := f.history(t, user.ID, task.ID)
		assert.Equal(t, []entities.HistoryAction{
			entities.ActionUpdated, entities.ActionStatusUpdated, entities.ActionProgressUpdated,
		}, history[len(history)-3:])
		assert.Equal(t, entities.UserStats{TotalTasks: 1}, f.stats(t, user.ID))
	})
}

func TestTaskService_DeleteKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	task := f.createTask(t, user.ID, "obsolete", nil)
	_, err := f.tasks.UpdateStatus(ctx, user.ID, task.ID, entities.TaskStatusCompleted)
	require.NoError(t, err)

	require.NoError(t, f.tasks.DeleteTask(ctx, user.ID, task.ID))

	_, err = f.tasks.GetTask(ctx, user.ID, task.ID)
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)
	assert.ErrorIs(t, f.tasks.DeleteTask(ctx, user.ID, task.ID), entities.ErrTaskNotFound)

	history := f.history(t, user.ID, task.ID)
	assert.Equal(t, entities.ActionDeleted, history[len(history)-1])
	assert.Equal(t, entities.UserStats{}, f.stats(t, user.ID))
}

func TestTaskService_ScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.createUser(t, "owner@example.com")
	other := f.createUser(t, "other@example.com")
	task := f.createTask(t, owner.ID, "private", nil)

	_, err := f.tasks.GetTask(ctx, other.ID, task.ID)
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)

	_, err = f.tasks.UpdateStatus(ctx, other.ID, task.ID, entities.TaskStatusCompleted)
	assert.ErrorIs(t, err, entities.ErrTaskNotFound)

	assert.ErrorIs(t, f.tasks.DeleteTask(ctx, other.ID, task.ID), entities.ErrTaskNotFound)
	assert.Empty(t, f.history(t, other.ID, task.ID))
}

func TestTaskService_Bulk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	other := f.createUser(t, "other@example.com")

	t.Run("create is all or nothing", func(t *testing.T) {
		_, err := f.tasks.BulkCreate(ctx, user.ID, ports.BulkCreateRequest{Tasks: []ports.CreateTaskRequest{
			{Title: "ok", DueDate: start.Add(time.Hour)},
			{Title: "late", DueDate: start.Add(-time.Hour)},
		}})
		require.Error(t, err)

		var dErr *entities.Error
		require.ErrorAs(t, err, &dErr)
		require.Len(t, dErr.Fields, 1)
		assert.Equal(t, "tasks[1].due_date", dErr.Fields[0].Field)
		assert.Equal(t, entities.UserStats{}, f.stats(t, user.ID))
	})

	var created []*entities.Task
	t.Run("create", func(t *testing.T) {
		var err error
		created, err = f.tasks.BulkCreate(ctx, user.ID, ports.BulkCreateRequest{Tasks: []ports.CreateTaskRequest{
			{Title: "one", DueDate: start.Add(time.Hour)},
			{Title: "two", DueDate: start.Add(2 * time.Hour)},
			{Title: "three", DueDate: start.Add(3 * time.Hour)},
		}})
		require.NoError(t, err)
		assert.Len(t, created, 3)
		assert.Equal(t, 3, f.stats(t, user.ID).TotalTasks)

		for i := 1; i < len(created); i++ {
			assert.True(t, created[i].CreatedAt.After(created[i-1].CreatedAt), "task %d", i)
		}

		snapshot, err := f.repos.Tasks.Snapshot(ctx, user.ID)
		require.NoError(t, err)
		var titles []string
		for _, task := range snapshot {
			titles = append(titles, task.Title)
		}
		assert.Equal(t, []string{"one", "two", "three"}, titles)
	})

	t.Run("delete skips foreign and unknown ids", func(t *testing.T) {
		foreign := f.createTask(t, other.ID, "theirs", nil)

		deleted, err := f.tasks.BulkDelete(ctx, user.ID, ports.BulkDeleteRequest{
			IDs: []uuid.UUID{created[0].ID, created[2].ID, foreign.ID, uuid.New()},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, deleted)
		assert.Equal(t, 1, f.stats(t, user.ID).TotalTasks)

		_, err = f.tasks.GetTask(ctx, other.ID, foreign.ID)
		assert.NoError(t, err)
	})
}

func TestTaskService_Listings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")

	soon := f.createTask(t, user.ID, "soon", func(r *ports.CreateTaskRequest) {
		r.DueDate = start.Add(time.Hour)
		r.Priority = intPtr(1)
		r.Category = strPtr("Work")
	})
	week := f.createTask(t, user.ID, "this week", func(r *ports.CreateTaskRequest) {
		r.DueDate = start.Add(72 * time.Hour)
		r.Priority = intPtr(1)
	})
	f.createTask(t, user.ID, "later", func(r *ports.CreateTaskRequest) {
		r.DueDate = start.Add(10 * 24 * time.Hour)
		r.Category = strPtr("Work")
	})

	t.Run("page metadata", func(t *testing.T) {
		page, err := f.tasks.ListTasks(ctx, user.ID, ports.ListTasksQuery{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 2, page.Pages)
		assert.Len(t, page.Data, 2)

		page, err = f.tasks.ListTasks(ctx, user.ID, ports.ListTasksQuery{})
		require.NoError(t, err)
		assert.Equal(t, DefaultPageSize, page.Limit)

		_, err = f.tasks.ListTasks(ctx, user.ID, ports.ListTasksQuery{SortBy: "password"})
		assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))
	})

	t.Run("by category and priority", func(t *testing.T) {
		work, err := f.tasks.TasksByCategory(ctx, user.ID, "Work")
		require.NoError(t, err)
		require.Len(t, work, 2)
		assert.Equal(t, soon.ID, work[0].ID)

		urgent, err := f.tasks.TasksByPriority(ctx, user.ID, 1)
		require.NoError(t, err)
		require.Len(t, urgent, 2)
		assert.Equal(t, soon.ID, urgent[0].ID)

		_, err = f.tasks.TasksByPriority(ctx, user.ID, 9)
		assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))
	})

	t.Run("overdue and upcoming", func(t *testing.T) {
		f.advance(2 * time.Hour)

		overdue, err := f.tasks.OverdueTasks(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.Equal(t, soon.ID, overdue[0].ID)

		upcoming, err := f.tasks.UpcomingTasks(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, upcoming, 1)
		assert.Equal(t, week.ID, upcoming[0].ID)
	})
}

func TestTaskService_Insights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	task := f.createTask(t, user.ID, "migrate", func(r *ports.CreateTaskRequest) { r.Description = "move billing" })

	first, err := f.tasks.Insights(ctx, user.ID, task.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entities.InsightSourceModel, first.Source)
	assert.Equal(t, float64(len("migrate\n\nmove billing")), first.EstimatedHours)

	cached, err := f.tasks.Insights(ctx, user.ID, task.ID, false)
	require.NoError(t, err)
	assert.Equal(t, first.EstimatedHours, cached.EstimatedHours)
	assert.Equal(t, 1, f.enricher.enrichCalls)

	_, err = f.tasks.Insights(ctx, user.ID, task.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.enricher.enrichCalls)

	t.Run("disabled by preference", func(t *testing.T) {
		_, err := f.users.UpdatePreferences(ctx, user.ID, ports.UpdatePreferencesRequest{
			Preferences: map[string]interface{}{"ai_enabled": false},
		})
		require.NoError(t, err)

		insights, err := f.tasks.Insights(ctx, user.ID, task.ID, true)
		require.NoError(t, err)
		assert.Equal(t, entities.InsightSourceDefault, insights.Source)
		assert.Equal(t, 2, f.enricher.enrichCalls)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := f.tasks.Insights(ctx, user.ID, uuid.New(), false)
		assert.ErrorIs(t, err, entities.ErrTaskNotFound)
	})
}
