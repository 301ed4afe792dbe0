package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedTask(impact int) *Task {
	task := newTestTask()
	task.Impact = impact
	_, _ = task.SetStatus(TaskStatusCompleted, testNow)
	return task
}

func TestUserStats_Apply(t *testing.T) {
	t.Run("creation counts the task", func(t *testing.T) {
		s := UserStats{}.Apply(nil, newTestTask())
		assert.Equal(t, UserStats{TotalTasks: 1}, s)
	})

	t.Run("running average on completion", func(t *testing.T) {
		var s UserStats
		for _, impact := range []int{4, 8, 9} {
			before := newTestTask()
			before.Impact = impact
			s = s.Apply(nil, before)
			s = s.Apply(before, completedTask(impact))
		}
		assert.Equal(t, 3, s.TotalTasks)
		assert.Equal(t, 3, s.CompletedTasks)
		assert.InDelta(t, 7.0, s.AvgImpact, 1e-9)
	})

	t.Run("reopen reverses the completion", func(t *testing.T) {
		a, b := completedTask(6), completedTask(10)
		s := StatsFromTasks([]*Task{a, b})
		require.InDelta(t, 8.0, s.AvgImpact, 1e-9)

		reopened := b.Clone()
		_, err := reopened.SetStatus(TaskStatusPending, testNow)
		require.NoError(t, err)

		s = s.Apply(b, reopened)
		assert.Equal(t, 2, s.TotalTasks)
		assert.Equal(t, 1, s.CompletedTasks)
		assert.InDelta(t, 6.0, s.AvgImpact, 1e-9)
	})

	t.Run("reopening the last completion resets the average", func(t *testing.T) {
		a := completedTask(7)
		s := StatsFromTasks([]*Task{a})
		reopened := a.Clone()
		_, _ = reopened.SetStatus(TaskStatusPending, testNow)

		s = s.Apply(a, reopened)
		assert.Equal(t, UserStats{TotalTasks: 1}, s)
	})

	t.Run("impact edit on a completed task reweights", func(t *testing.T) {
		a, b := completedTask(4), completedTask(8)
		s := StatsFromTasks([]*Task{a, b})
		edited := b.Clone()
		edited.Impact = 10

		s = s.Apply(b, edited)
		assert.True(t, s.Equal(StatsFromTasks([]*Task{a, edited})))
	})

	t.Run("deleting a completed task", func(t *testing.T) {
		a, b := completedTask(3), newTestTask()
		s := StatsFromTasks([]*Task{a, b})

		s = s.Apply(a, nil)
		assert.Equal(t, UserStats{TotalTasks: 1}, s)
	})
}

func TestReplayStats_MatchesIncremental(t *testing.T) {
	var (
		history []*TaskHistory
		stats   UserStats
		at      = testNow
	)
	record := func(entries ...*TaskHistory) {
		for _, e := range entries {
			e.ID = int64(len(history) + 1)
			history = append(history, e)
		}
	}

	a, b := newTestTask(), newTestTask()
	a.Impact, b.Impact = 9, 3
	for _, task := range []*Task{a, b} {
		e, err := NewCreatedEntry(task, at)
		require.NoError(t, err)
		record(e)
		stats = stats.Apply(nil, task)
	}

	// complete a via progress
	before := a.Clone()
	tr, err := a.SetProgress(100, at)
	require.NoError(t, err)
	entries, err := TransitionEntries(a, tr, at)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionStatusUpdated, entries[0].Action)
	assert.Equal(t, ActionProgressUpdated, entries[1].Action)
	record(entries...)
	stats = stats.Apply(before, a)

	// complete b, then edit its impact
	before = b.Clone()
	tr, err = b.SetStatus(TaskStatusCompleted, at)
	require.NoError(t, err)
	entries, err = TransitionEntries(b, tr, at)
	require.NoError(t, err)
	record(entries...)
	stats = stats.Apply(before, b)

	before = b.Clone()
	b.Impact = 5
	e, err := NewUpdatedEntry(before, b, at)
	require.NoError(t, err)
	record(e)
	stats = stats.Apply(before, b)

	// reopen a
	before = a.Clone()
	tr, err = a.SetStatus(TaskStatusPending, at)
	require.NoError(t, err)
	entries, err = TransitionEntries(a, tr, at)
	require.NoError(t, err)
	record(entries...)
	stats = stats.Apply(before, a)

	// delete b
	record(NewDeletedEntry(b, at.Add(time.Minute)))
	stats = stats.Apply(b, nil)

	replayed, err := ReplayStats(history)
	require.NoError(t, err)
	assert.True(t, replayed.Equal(stats), "replayed %+v, incremental %+v", replayed, stats)
	assert.Equal(t, UserStats{TotalTasks: 1}, replayed)
}

func TestReplayStats_UnknownAction(t *testing.T) {
	_, err := ReplayStats([]*TaskHistory{{ID: 1, Action: "renamed"}})
	assert.Error(t, err)
}

func TestPreferences(t *testing.T) {
	p := DefaultPreferences()
	assert.True(t, p.AIEnabled())

	merged := p.Merge(map[string]interface{}{"ai_enabled": false, "theme": "dark"})
	assert.False(t, merged.AIEnabled())
	assert.Equal(t, "dark", merged["theme"])
	assert.Equal(t, "light", p["theme"], "merge must not mutate the receiver")

	assert.True(t, Preferences{}.AIEnabled())
}
