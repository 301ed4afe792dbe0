package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion tags every serialized record and report.
const SchemaVersion = "v1"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusArchived   TaskStatus = "archived"
)

// TaskStatuses lists every status in reporting order.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusBlocked,
	TaskStatusArchived,
}

func (ts TaskStatus) IsValid() bool {
	switch ts {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked, TaskStatusArchived:
		return true
	}
	return false
}

// Task defaults and bounds
const (
	DefaultCategory       = "Other"
	DefaultPriority       = 3
	DefaultImpact         = 5
	DefaultComplexity     = 3
	DefaultEstimatedHours = 1.0

	MinPriority = 1
	MaxPriority = 5
	MinImpact   = 1
	MaxImpact   = 10
	MaxProgress = 100
)

// Task is one work item owned by a single user.
type Task struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	Title          string     `json:"title" db:"title"`
	Description    string     `json:"description" db:"description"`
	Category       string     `json:"category" db:"category"`
	Tags           Tags       `json:"tags" db:"tags"`
	Priority       int        `json:"priority" db:"priority"`
	Impact         int        `json:"impact" db:"impact"`
	Complexity     int        `json:"complexity" db:"complexity"`
	EstimatedHours float64    `json:"estimated_hours" db:"estimated_hours"`
	Status         TaskStatus `json:"status" db:"status"`
	Progress       int        `json:"progress" db:"progress"`
	DueDate        time.Time  `json:"due_date" db:"due_date"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	AIInsights     *Insights  `json:"ai_insights,omitempty" db:"ai_insights"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// NewTask returns a pending task with the default metrics applied.
func NewTask(userID uuid.UUID, title string, dueDate, now time.Time) *Task {
	return &Task{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          title,
		Category:       DefaultCategory,
		Tags:           Tags{},
		Priority:       DefaultPriority,
		Impact:         DefaultImpact,
		Complexity:     DefaultComplexity,
		EstimatedHours: DefaultEstimatedHours,
		Status:         TaskStatusPending,
		DueDate:        dueDate.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != TaskStatusCompleted && t.DueDate.Before(now)
}

// Score ranks tasks by a weighted blend of priority, impact and complexity.
func (t *Task) Score() float64 {
	return 0.6*float64(t.Priority) + 0.3*float64(t.Impact) + 0.1*float64(t.Complexity)
}

// DaysUntilDue is nil once the task is completed.
func (t *Task) DaysUntilDue(now time.Time) *int {
	if t.IsCompleted() {
		return nil
	}
	days := int(math.Floor(t.DueDate.Sub(now).Hours() / 24))
	return &days
}

// CompletedOnTime reports a completion at or before the due date.
func (t *Task) CompletedOnTime() bool {
	return t.IsCompleted() && t.CompletedAt != nil && !t.CompletedAt.After(t.DueDate)
}

// CompletionHours is the elapsed time between start and completion.
func (t *Task) CompletionHours() (float64, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartedAt).Hours(), true
}

// Clone returns a deep copy suitable for before/after snapshots.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = append(Tags{}, t.Tags...)
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.AIInsights != nil {
		v := t.AIInsights.Clone()
		c.AIInsights = &v
	}
	return &c
}

// Transition captures the lifecycle fields before and after a write.
type Transition struct {
	StatusFrom   TaskStatus
	StatusTo     TaskStatus
	ProgressFrom int
	ProgressTo   int
}

func (tr Transition) StatusChanged() bool   { return tr.StatusFrom != tr.StatusTo }
func (tr Transition) ProgressChanged() bool { return tr.ProgressFrom != tr.ProgressTo }
func (tr Transition) Changed() bool         { return tr.StatusChanged() || tr.ProgressChanged() }

// SetProgress moves the task to the given progress and applies the status
// side effects: 100 completes the task, any progress on a pending task starts
// it, and dropping below 100 on a completed task reopens it.
func (t *Task) SetProgress(progress int, now time.Time) (Transition, error) {
	if progress < 0 || progress > MaxProgress {
		return Transition{}, NewValidationError(FieldError{
			Field: "progress", Rule: "range", Message: "progress must be between 0 and 100",
		})
	}

	tr := Transition{StatusFrom: t.Status, ProgressFrom: t.Progress}
	t.Progress = progress

	switch {
	case progress == MaxProgress:
		t.complete(now)
	case t.Status == TaskStatusCompleted:
		t.CompletedAt = nil
		if progress > 0 {
			t.start(now)
		} else {
			t.Status = TaskStatusPending
		}
	case progress > 0 && t.Status == TaskStatusPending:
		t.start(now)
	}

	tr.StatusTo, tr.ProgressTo = t.Status, t.Progress
	if tr.Changed() {
		t.UpdatedAt = now
	}
	return tr, nil
}

// SetStatus writes an explicit status. Completing forces progress to 100;
// leaving completed clears completed_at and resets progress to 0.
func (t *Task) SetStatus(status TaskStatus, now time.Time) (Transition, error) {
	if !status.IsValid() {
		return Transition{}, NewValidationError(FieldError{
			Field: "status", Rule: "oneof", Message: fmt.Sprintf("invalid status %q", status),
		})
	}

	tr := Transition{StatusFrom: t.Status, ProgressFrom: t.Progress}

	switch {
	case status == TaskStatusCompleted:
		t.complete(now)
	case t.Status == TaskStatusCompleted:
		t.CompletedAt = nil
		t.Progress = 0
		t.Status = status
		if status == TaskStatusInProgress {
			t.start(now)
		}
	case status == TaskStatusInProgress:
		t.start(now)
	default:
		t.Status = status
	}

	tr.StatusTo, tr.ProgressTo = t.Status, t.Progress
	if tr.Changed() {
		t.UpdatedAt = now
	}
	return tr, nil
}

func (t *Task) complete(now time.Time) {
	t.Progress = MaxProgress
	if t.Status != TaskStatusCompleted || t.CompletedAt == nil {
		t.CompletedAt = &now
	}
	t.Status = TaskStatusCompleted
}

func (t *Task) start(now time.Time) {
	t.Status = TaskStatusInProgress
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
}

// TaskRecord is the serialized form of a task: stored fields plus the
// values derived at read time.
type TaskRecord struct {
	SchemaVersion string `json:"schema_version"`
	*Task
	IsOverdue    bool    `json:"is_overdue"`
	TaskScore    float64 `json:"task_score"`
	DaysUntilDue *int    `json:"days_until_due,omitempty"`
}

func NewTaskRecord(t *Task, now time.Time) TaskRecord {
	return TaskRecord{
		SchemaVersion: SchemaVersion,
		Task:          t,
		IsOverdue:     t.IsOverdue(now),
		TaskScore:     math.Round(t.Score()*100) / 100,
		DaysUntilDue:  t.DaysUntilDue(now),
	}
}

func NewTaskRecords(tasks []*Task, now time.Time) []TaskRecord {
	records := make([]TaskRecord, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, NewTaskRecord(t, now))
	}
	return records
}

// Tags is an unordered set of labels stored as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *Tags) Scan(src interface{}) error {
	*t = Tags{}
	return scanJSON(src, (*[]string)(t))
}

// scanJSON decodes a JSON column delivered as text or bytes.
func scanJSON(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func valueJSON(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
