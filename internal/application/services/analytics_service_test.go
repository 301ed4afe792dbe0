package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

func TestAnalyticsService_CachesUntilMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	task := f.createTask(t, user.ID, "write report", nil)

	hits := f.analytics.lookups.WithLabelValues(ReportDashboard, "hit")
	misses := f.analytics.lookups.WithLabelValues(ReportDashboard, "miss")

	first, err := f.analytics.Dashboard(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalTasks)
	assert.Equal(t, 1, first.StatusCounts.Pending)
	assert.Equal(t, 1, f.cache.len())

	second, err := f.analytics.Dashboard(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, first.TotalTasks, second.TotalTasks)
	assert.Equal(t, 1.0, testutil.ToFloat64(hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(misses))

	_, err = f.tasks.UpdateStatus(ctx, user.ID, task.ID, entities.TaskStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 0, f.cache.len())

	third, err := f.analytics.Dashboard(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, third.StatusCounts.Completed)
	assert.Equal(t, 100.0, third.CompletionRate)
	assert.Equal(t, 2.0, testutil.ToFloat64(misses))
}

func TestAnalyticsService_InvalidationIsPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := f.createUser(t, "ada@example.com")
	grace := f.createUser(t, "grace@example.com")

	_, err := f.analytics.Dashboard(ctx, ada.ID)
	require.NoError(t, err)
	_, err = f.analytics.Timeline(ctx, grace.ID)
	require.NoError(t, err)
	require.Equal(t, 2, f.cache.len())

	f.createTask(t, ada.ID, "only ada", nil)
	assert.Equal(t, 1, f.cache.len())
}

func TestAnalyticsService_CompletionRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")

	_, err := f.analytics.CompletionRate(ctx, user.ID, "decade")
	assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))

	week, err := f.analytics.CompletionRate(ctx, user.ID, "week")
	require.NoError(t, err)
	month, err := f.analytics.CompletionRate(ctx, user.ID, "month")
	require.NoError(t, err)
	assert.Len(t, week.Timeline, 8)
	assert.Len(t, month.Timeline, 31)
	assert.Equal(t, 2, f.cache.len())
}

func TestAnalyticsService_Recommendations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")

	t.Run("no tasks", func(t *testing.T) {
		recs, err := f.analytics.Recommendations(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StarterRecommendations().FocusAreas, recs.FocusAreas)
		assert.Equal(t, 0, f.enricher.recommendCalls)
	})

	urgent := f.createTask(t, user.ID, "fix outage", func(r *ports.CreateTaskRequest) { r.Priority = intPtr(1) })
	f.createTask(t, user.ID, "tidy wiki", func(r *ports.CreateTaskRequest) { r.Priority = intPtr(4) })

	t.Run("model advice with urgent tasks", func(t *testing.T) {
		recs, err := f.analytics.Recommendations(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.InsightSourceModel, recs.Source)
		require.Len(t, recs.SpecificTasks, 1)
		assert.Equal(t, urgent.ID.String(), recs.SpecificTasks[0].ID)
		assert.Equal(t, 1, f.enricher.recommendCalls)

		_, err = f.analytics.Recommendations(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, f.enricher.recommendCalls)
	})

	t.Run("disabled by preference", func(t *testing.T) {
		_, err := f.users.UpdatePreferences(ctx, user.ID, ports.UpdatePreferencesRequest{
			Preferences: map[string]interface{}{"ai_enabled": false},
		})
		require.NoError(t, err)
		f.analytics.Invalidate(ctx, user.ID)

		recs, err := f.analytics.Recommendations(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.InsightSourceDefault, recs.Source)
		assert.Len(t, recs.SpecificTasks, 1)
		assert.Equal(t, 1, f.enricher.recommendCalls)
	})
}

func TestAnalyticsService_Export(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "ada@example.com")
	done := f.createTask(t, user.ID, "done", nil)
	f.createTask(t, user.ID, "open", nil)

	_, err := f.tasks.UpdateStatus(ctx, user.ID, done.ID, entities.TaskStatusCompleted)
	require.NoError(t, err)

	f.advance(time.Hour)
	export, err := f.analytics.Export(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", export.Summary.User)
	assert.Equal(t, 2, export.Summary.TotalTasks)
	assert.Equal(t, 1, export.Summary.CompletedTasks)
	assert.Equal(t, 1, export.Summary.PendingTasks)
	assert.True(t, export.Summary.ExportDate.Equal(f.now))
	assert.Len(t, export.Rows(), 2)
	assert.Equal(t, 0, f.cache.len())

	_, err = f.analytics.Export(ctx, uuid.New())
	assert.ErrorIs(t, err, entities.ErrUserNotFound)
}
