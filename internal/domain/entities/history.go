package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type HistoryAction string

const (
	ActionCreated         HistoryAction = "created"
	ActionUpdated         HistoryAction = "updated"
	ActionStatusUpdated   HistoryAction = "status_updated"
	ActionProgressUpdated HistoryAction = "progress_updated"
	ActionDeleted         HistoryAction = "deleted"
)

// TaskHistory is an append-only audit record. It outlives the task.
type TaskHistory struct {
	ID        int64          `json:"id" db:"id"`
	TaskID    uuid.UUID      `json:"task_id" db:"task_id"`
	UserID    uuid.UUID      `json:"user_id" db:"user_id"`
	Action    HistoryAction  `json:"action" db:"action"`
	Changes   HistoryChanges `json:"changes" db:"changes"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// HistoryChanges holds the before/after payload. From and To carry a full
// task snapshot for created/updated entries and a single field value for
// status and progress entries.
type HistoryChanges struct {
	From        json.RawMessage `json:"from"`
	To          json.RawMessage `json:"to"`
	DeletedTask *Task           `json:"deleted_task,omitempty"`
}

func (c HistoryChanges) Value() (driver.Value, error) {
	return valueJSON(c)
}

func (c *HistoryChanges) Scan(src interface{}) error {
	return scanJSON(src, c)
}

func NewCreatedEntry(t *Task, at time.Time) (*TaskHistory, error) {
	return newEntry(t, ActionCreated, nil, t.Clone(), at)
}

func NewUpdatedEntry(before, after *Task, at time.Time) (*TaskHistory, error) {
	return newEntry(after, ActionUpdated, before.Clone(), after.Clone(), at)
}

func NewStatusEntry(t *Task, from, to TaskStatus, at time.Time) (*TaskHistory, error) {
	return newEntry(t, ActionStatusUpdated, from, to, at)
}

func NewProgressEntry(t *Task, from, to int, at time.Time) (*TaskHistory, error) {
	return newEntry(t, ActionProgressUpdated, from, to, at)
}

func NewDeletedEntry(t *Task, at time.Time) *TaskHistory {
	return &TaskHistory{
		TaskID:    t.ID,
		UserID:    t.UserID,
		Action:    ActionDeleted,
		Changes:   HistoryChanges{DeletedTask: t.Clone()},
		CreatedAt: at,
	}
}

// TransitionEntries builds the status_updated and progress_updated entries
// for a lifecycle transition, status first.
func TransitionEntries(t *Task, tr Transition, at time.Time) ([]*TaskHistory, error) {
	var entries []*TaskHistory
	if tr.StatusChanged() {
		e, err := NewStatusEntry(t, tr.StatusFrom, tr.StatusTo, at)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if tr.ProgressChanged() {
		e, err := NewProgressEntry(t, tr.ProgressFrom, tr.ProgressTo, at)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func newEntry(t *Task, action HistoryAction, from, to interface{}, at time.Time) (*TaskHistory, error) {
	fromJSON, err := json.Marshal(from)
	if err != nil {
		return nil, fmt.Errorf("encode history from: %w", err)
	}
	toJSON, err := json.Marshal(to)
	if err != nil {
		return nil, fmt.Errorf("encode history to: %w", err)
	}
	return &TaskHistory{
		TaskID:    t.ID,
		UserID:    t.UserID,
		Action:    action,
		Changes:   HistoryChanges{From: fromJSON, To: toJSON},
		CreatedAt: at,
	}, nil
}

// ReplayStats rebuilds a user's stats by folding their history in order.
func ReplayStats(entries []*TaskHistory) (UserStats, error) {
	var stats UserStats
	state := make(map[uuid.UUID]*Task)

	for _, e := range entries {
		switch e.Action {
		case ActionCreated:
			var after Task
			if err := json.Unmarshal(e.Changes.To, &after); err != nil {
				return UserStats{}, fmt.Errorf("history %d: decode created snapshot: %w", e.ID, err)
			}
			stats = stats.Apply(nil, &after)
			state[e.TaskID] = &after

		case ActionUpdated:
			var before, after Task
			if err := json.Unmarshal(e.Changes.From, &before); err != nil {
				return UserStats{}, fmt.Errorf("history %d: decode before snapshot: %w", e.ID, err)
			}
			if err := json.Unmarshal(e.Changes.To, &after); err != nil {
				return UserStats{}, fmt.Errorf("history %d: decode after snapshot: %w", e.ID, err)
			}
			stats = stats.Apply(&before, &after)
			state[e.TaskID] = &after

		case ActionStatusUpdated:
			current, ok := state[e.TaskID]
			if !ok {
				return UserStats{}, fmt.Errorf("history %d: status change for unknown task %s", e.ID, e.TaskID)
			}
			var from, to TaskStatus
			if err := json.Unmarshal(e.Changes.From, &from); err != nil {
				return UserStats{}, fmt.Errorf("history %d: decode status: %w", e.ID, err)
			}
			if err := json.Unmarshal(e.Changes.To, &to); err != nil {
				return UserStats{}, fmt.Errorf("history %d: decode status: %w", e.ID, err)
			}
			before := current.Clone()
			before.Status = from
			after := current.Clone()
			after.Status = to
			stats = stats.Apply(before, after)
			state[e.TaskID] = after

		case ActionProgressUpdated:
			if current, ok := state[e.TaskID]; ok {
				var to int
				if err := json.Unmarshal(e.Changes.To, &to); err != nil {
					return UserStats{}, fmt.Errorf("history %d: decode progress: %w", e.ID, err)
				}
				current.Progress = to
			}

		case ActionDeleted:
			before := e.Changes.DeletedTask
			if before == nil {
				before = state[e.TaskID]
			}
			if before == nil {
				return UserStats{}, fmt.Errorf("history %d: delete of unknown task %s", e.ID, e.TaskID)
			}
			stats = stats.Apply(before, nil)
			delete(state, e.TaskID)

		default:
			return UserStats{}, fmt.Errorf("history %d: unknown action %q", e.ID, e.Action)
		}
	}

	return stats, nil
}
