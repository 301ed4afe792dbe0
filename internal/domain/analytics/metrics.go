// Package analytics computes derived metrics and reports over one user's task
// set. Every function is pure and total: empty or degenerate input yields
// zero values, never an error. Values are rounded to two decimals only when
// a report is assembled.
package analytics

import (
	"math"
	"time"

	"github.com/taskmaster/pulse/internal/domain/entities"
)

// DefaultConsistencyWindow is the number of trailing days scored for consistency.
const DefaultConsistencyWindow = 7

// CompletionRate is completed / total × 100.
func CompletionRate(tasks []*entities.Task) float64 {
	completed := 0
	for _, t := range tasks {
		if t.IsCompleted() {
			completed++
		}
	}
	return percent(float64(completed), float64(len(tasks)))
}

// OnTimeRate is completed-on-time / completed × 100.
func OnTimeRate(tasks []*entities.Task) float64 {
	completed, onTime := 0, 0
	for _, t := range tasks {
		if !t.IsCompleted() {
			continue
		}
		completed++
		if t.CompletedOnTime() {
			onTime++
		}
	}
	return percent(float64(onTime), float64(completed))
}

// AvgCompletionHours averages start-to-completion time over completed tasks
// carrying both timestamps.
func AvgCompletionHours(tasks []*entities.Task) float64 {
	var sum float64
	n := 0
	for _, t := range tasks {
		if !t.IsCompleted() {
			continue
		}
		if h, ok := t.CompletionHours(); ok {
			sum += h
			n++
		}
	}
	return mean(sum, n)
}

// ImpactEfficiency is Σimpact(completed) / Σimpact(all) × 100.
func ImpactEfficiency(tasks []*entities.Task) float64 {
	var done, all float64
	for _, t := range tasks {
		all += float64(t.Impact)
		if t.IsCompleted() {
			done += float64(t.Impact)
		}
	}
	return percent(done, all)
}

// DailyCompletions counts completions in each of the trailing windowDays
// day-long windows ending at now, oldest first.
func DailyCompletions(tasks []*entities.Task, now time.Time, windowDays int) []int {
	if windowDays <= 0 {
		return []int{}
	}
	start := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	counts := make([]int, windowDays)
	for _, t := range tasks {
		if !t.IsCompleted() || t.CompletedAt == nil {
			continue
		}
		at := *t.CompletedAt
		if at.Before(start) || !at.Before(now) {
			continue
		}
		idx := int(at.Sub(start) / (24 * time.Hour))
		if idx >= 0 && idx < windowDays {
			counts[idx]++
		}
	}
	return counts
}

// ConsistencyScore is the share of the trailing windowDays with at least one
// completion, × 100.
func ConsistencyScore(tasks []*entities.Task, now time.Time, windowDays int) float64 {
	active := 0
	for _, c := range DailyCompletions(tasks, now, windowDays) {
		if c > 0 {
			active++
		}
	}
	return percent(float64(active), float64(windowDays))
}

// PriorityAccuracy is the completion rate of priority-1 tasks.
func PriorityAccuracy(tasks []*entities.Task) float64 {
	return CompletionRate(filter(tasks, func(t *entities.Task) bool {
		return t.Priority == entities.MinPriority
	}))
}

func AvgImpact(tasks []*entities.Task) float64 {
	var sum float64
	for _, t := range tasks {
		sum += float64(t.Impact)
	}
	return mean(sum, len(tasks))
}

func AvgPriority(tasks []*entities.Task) float64 {
	var sum float64
	for _, t := range tasks {
		sum += float64(t.Priority)
	}
	return mean(sum, len(tasks))
}

// CountOverdue counts tasks not completed whose due date has passed.
func CountOverdue(tasks []*entities.Task, now time.Time) int {
	return len(filter(tasks, func(t *entities.Task) bool { return t.IsOverdue(now) }))
}

func completed(tasks []*entities.Task) []*entities.Task {
	return filter(tasks, func(t *entities.Task) bool { return t.IsCompleted() })
}

func filter(tasks []*entities.Task, keep func(*entities.Task) bool) []*entities.Task {
	out := make([]*entities.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func percent(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den * 100
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
