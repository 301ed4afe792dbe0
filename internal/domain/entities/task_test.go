package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestTask() *Task {
	return NewTask(uuid.New(), "Write report", testNow.Add(72*time.Hour), testNow)
}

func assertInvariant(t *testing.T, task *Task) {
	t.Helper()
	assert.Equal(t, task.Status == TaskStatusCompleted, task.Progress == MaxProgress, "completed <=> progress 100")
	assert.Equal(t, task.Status == TaskStatusCompleted, task.CompletedAt != nil, "completed <=> completed_at set")
}

func TestNewTask_Defaults(t *testing.T) {
	task := newTestTask()

	assert.Equal(t, DefaultCategory, task.Category)
	assert.Equal(t, 3, task.Priority)
	assert.Equal(t, 5, task.Impact)
	assert.Equal(t, 3, task.Complexity)
	assert.Equal(t, 1.0, task.EstimatedHours)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, 0, task.Progress)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assertInvariant(t, task)
}

func TestTask_DerivedFields(t *testing.T) {
	task := newTestTask()
	task.Priority, task.Impact, task.Complexity = 2, 8, 4

	assert.InDelta(t, 0.6*2+0.3*8+0.1*4, task.Score(), 1e-9)
	assert.False(t, task.IsOverdue(testNow))
	assert.True(t, task.IsOverdue(testNow.Add(96*time.Hour)))

	days := task.DaysUntilDue(testNow)
	require.NotNil(t, days)
	assert.Equal(t, 3, *days)

	_, err := task.SetStatus(TaskStatusCompleted, testNow)
	require.NoError(t, err)
	assert.Nil(t, task.DaysUntilDue(testNow))
	assert.False(t, task.IsOverdue(testNow.Add(96*time.Hour)))
}

func TestTask_SetProgress(t *testing.T) {
	t.Run("progress on pending task starts it", func(t *testing.T) {
		task := newTestTask()
		tr, err := task.SetProgress(30, testNow)
		require.NoError(t, err)

		assert.Equal(t, TaskStatusInProgress, task.Status)
		require.NotNil(t, task.StartedAt)
		assert.Equal(t, testNow, *task.StartedAt)
		assert.True(t, tr.StatusChanged())
		assert.True(t, tr.ProgressChanged())
		assertInvariant(t, task)
	})

	t.Run("started_at is set once", func(t *testing.T) {
		task := newTestTask()
		_, err := task.SetProgress(10, testNow)
		require.NoError(t, err)
		_, err = task.SetProgress(50, testNow.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, testNow, *task.StartedAt)
	})

	t.Run("100 completes the task", func(t *testing.T) {
		task := newTestTask()
		_, err := task.SetProgress(100, testNow)
		require.NoError(t, err)

		assert.Equal(t, TaskStatusCompleted, task.Status)
		require.NotNil(t, task.CompletedAt)
		assert.Equal(t, testNow, *task.CompletedAt)
		assertInvariant(t, task)
	})

	t.Run("second completion is a no-op", func(t *testing.T) {
		task := newTestTask()
		_, err := task.SetProgress(100, testNow)
		require.NoError(t, err)
		first := task.Clone()

		tr, err := task.SetProgress(100, testNow.Add(time.Hour))
		require.NoError(t, err)

		assert.False(t, tr.Changed())
		assert.Equal(t, first, task)
	})

	t.Run("dropping below 100 reopens", func(t *testing.T) {
		task := newTestTask()
		_, err := task.SetProgress(100, testNow)
		require.NoError(t, err)

		tr, err := task.SetProgress(80, testNow.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, TaskStatusInProgress, task.Status)
		assert.Nil(t, task.CompletedAt)
		assert.Equal(t, TaskStatusCompleted, tr.StatusFrom)
		assertInvariant(t, task)
	})

	t.Run("out of range is a validation error", func(t *testing.T) {
		task := newTestTask()
		for _, p := range []int{-1, 101} {
			_, err := task.SetProgress(p, testNow)
			require.Error(t, err)
			assert.True(t, IsDomainError(err, ErrCodeValidation))
		}
		assert.Equal(t, 0, task.Progress)
	})
}

func TestTask_SetStatus(t *testing.T) {
	tests := []struct {
		name     string
		from     TaskStatus
		to       TaskStatus
		progress int
		started  bool
	}{
		{name: "pending to in-progress", from: TaskStatusPending, to: TaskStatusInProgress, progress: 0, started: true},
		{name: "pending to completed", from: TaskStatusPending, to: TaskStatusCompleted, progress: 100, started: false},
		{name: "completed to pending", from: TaskStatusCompleted, to: TaskStatusPending, progress: 0, started: false},
		{name: "completed to in-progress", from: TaskStatusCompleted, to: TaskStatusInProgress, progress: 0, started: true},
		{name: "in-progress to blocked", from: TaskStatusInProgress, to: TaskStatusBlocked, progress: 0, started: true},
		{name: "completed to archived", from: TaskStatusCompleted, to: TaskStatusArchived, progress: 0, started: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTestTask()
			_, err := task.SetStatus(tt.from, testNow)
			require.NoError(t, err)

			_, err = task.SetStatus(tt.to, testNow.Add(time.Hour))
			require.NoError(t, err)

			assert.Equal(t, tt.to, task.Status)
			assert.Equal(t, tt.progress, task.Progress)
			assert.Equal(t, tt.started, task.StartedAt != nil)
			assertInvariant(t, task)
		})
	}

	t.Run("invalid status", func(t *testing.T) {
		task := newTestTask()
		_, err := task.SetStatus("done", testNow)
		require.Error(t, err)
		assert.True(t, IsDomainError(err, ErrCodeValidation))
	})

	t.Run("completing twice keeps completed_at", func(t *testing.T) {
		task := newTestTask()
		_, err := task.SetStatus(TaskStatusCompleted, testNow)
		require.NoError(t, err)
		tr, err := task.SetStatus(TaskStatusCompleted, testNow.Add(time.Hour))
		require.NoError(t, err)

		assert.False(t, tr.Changed())
		assert.Equal(t, testNow, *task.CompletedAt)
	})
}

func TestTaskRecord_JSON(t *testing.T) {
	task := newTestTask()
	record := NewTaskRecord(task, testNow)

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, SchemaVersion, decoded["schema_version"])
	assert.Equal(t, task.Title, decoded["title"])
	assert.Equal(t, false, decoded["is_overdue"])
	assert.Equal(t, 3.6, decoded["task_score"])
	assert.EqualValues(t, 3, decoded["days_until_due"])
	assert.NotContains(t, decoded, "completed_at")
}

func TestTags_ScanValue(t *testing.T) {
	var tags Tags
	require.NoError(t, tags.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, Tags{"a", "b"}, tags)

	require.NoError(t, tags.Scan(nil))
	assert.Equal(t, Tags{}, tags)

	v, err := Tags(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
