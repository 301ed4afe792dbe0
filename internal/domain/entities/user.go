package entities

import (
	"database/sql/driver"
	"math"
	"time"

	"github.com/google/uuid"
)

// User owns tasks and their history.
type User struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Email        string      `json:"email" db:"email"`
	Username     *string     `json:"username,omitempty" db:"username"`
	Name         string      `json:"name" db:"name"`
	PasswordHash string      `json:"-" db:"password_hash"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	Preferences  Preferences `json:"preferences" db:"preferences"`
	Stats        UserStats   `json:"stats" db:"stats"`
	LastLogin    *time.Time  `json:"last_login,omitempty" db:"last_login"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Preferences is a free-form settings map.
type Preferences map[string]interface{}

func DefaultPreferences() Preferences {
	return Preferences{
		"theme":         "light",
		"notifications": true,
		"ai_enabled":    true,
	}
}

// AIEnabled defaults to true when the flag is absent or malformed.
func (p Preferences) AIEnabled() bool {
	v, ok := p["ai_enabled"].(bool)
	return !ok || v
}

// Merge overlays updates on a copy of p.
func (p Preferences) Merge(updates map[string]interface{}) Preferences {
	merged := make(Preferences, len(p)+len(updates))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

func (p Preferences) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	return valueJSON(map[string]interface{}(p))
}

func (p *Preferences) Scan(src interface{}) error {
	*p = Preferences{}
	return scanJSON(src, (*map[string]interface{})(p))
}

// UserStats summarizes a user's task set. It is maintained incrementally by
// Apply and can be rebuilt from history with ReplayStats.
type UserStats struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	AvgImpact      float64 `json:"avg_impact"`
}

// Apply folds one task mutation into the stats. before is nil for a
// creation and after is nil for a deletion.
func (s UserStats) Apply(before, after *Task) UserStats {
	switch {
	case before == nil && after != nil:
		s.TotalTasks++
	case before != nil && after == nil:
		if s.TotalTasks > 0 {
			s.TotalTasks--
		}
	}

	wasDone := before != nil && before.IsCompleted()
	isDone := after != nil && after.IsCompleted()

	switch {
	case !wasDone && isDone:
		s = s.addCompletion(after.Impact)
	case wasDone && !isDone:
		s = s.removeCompletion(before.Impact)
	case wasDone && isDone && before.Impact != after.Impact:
		s = s.removeCompletion(before.Impact).addCompletion(after.Impact)
	}
	return s
}

// new_avg = (old_avg*(n-1) + impact) / n
func (s UserStats) addCompletion(impact int) UserStats {
	s.CompletedTasks++
	n := float64(s.CompletedTasks)
	s.AvgImpact = (s.AvgImpact*(n-1) + float64(impact)) / n
	return s
}

func (s UserStats) removeCompletion(impact int) UserStats {
	if s.CompletedTasks <= 1 {
		s.CompletedTasks = 0
		s.AvgImpact = 0
		return s
	}
	n := float64(s.CompletedTasks)
	s.AvgImpact = (s.AvgImpact*n - float64(impact)) / (n - 1)
	s.CompletedTasks--
	return s
}

// Equal compares stats with a tolerance on the running mean.
func (s UserStats) Equal(o UserStats) bool {
	return s.TotalTasks == o.TotalTasks &&
		s.CompletedTasks == o.CompletedTasks &&
		math.Abs(s.AvgImpact-o.AvgImpact) < 1e-9
}

func (s UserStats) Value() (driver.Value, error) {
	return valueJSON(s)
}

func (s *UserStats) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// StatsFromTasks computes the stats of a task set directly.
func StatsFromTasks(tasks []*Task) UserStats {
	var s UserStats
	for _, t := range tasks {
		s = s.Apply(nil, t)
	}
	return s
}
