package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/taskmaster/pulse/internal/domain/entities"
)

// Header is embedded in every report.
type Header struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
}

func newHeader(now time.Time) Header {
	return Header{SchemaVersion: entities.SchemaVersion, GeneratedAt: now}
}

// StatusCounts tallies tasks per lifecycle state.
type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Blocked    int `json:"blocked"`
	Archived   int `json:"archived"`
}

func (c *StatusCounts) add(s entities.TaskStatus) {
	switch s {
	case entities.TaskStatusPending:
		c.Pending++
	case entities.TaskStatusInProgress:
		c.InProgress++
	case entities.TaskStatusCompleted:
		c.Completed++
	case entities.TaskStatusBlocked:
		c.Blocked++
	case entities.TaskStatusArchived:
		c.Archived++
	}
}

type Dashboard struct {
	Header
	TotalTasks           int          `json:"total_tasks"`
	StatusCounts         StatusCounts `json:"status_counts"`
	OverdueTasks         int          `json:"overdue_tasks"`
	CompletionRate       float64      `json:"completion_rate"`
	AvgCompletionHours   float64      `json:"avg_completion_hours"`
	ProductivityScore    float64      `json:"productivity_score"`
	AvgImpact            float64      `json:"avg_impact"`
	PriorityDistribution map[int]int  `json:"priority_distribution"`
}

func BuildDashboard(tasks []*entities.Task, now time.Time) Dashboard {
	d := Dashboard{
		Header:               newHeader(now),
		TotalTasks:           len(tasks),
		OverdueTasks:         CountOverdue(tasks, now),
		CompletionRate:       Round2(CompletionRate(tasks)),
		AvgCompletionHours:   Round2(AvgCompletionHours(tasks)),
		ProductivityScore:    Round2(ProductivityScore(tasks, now)),
		AvgImpact:            Round2(AvgImpact(tasks)),
		PriorityDistribution: make(map[int]int, entities.MaxPriority),
	}
	for p := entities.MinPriority; p <= entities.MaxPriority; p++ {
		d.PriorityDistribution[p] = 0
	}
	for _, t := range tasks {
		d.StatusCounts.add(t.Status)
		if t.Priority >= entities.MinPriority && t.Priority <= entities.MaxPriority {
			d.PriorityDistribution[t.Priority]++
		}
	}
	return d
}

// Period selects the span and step of a completion-rate report.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// ParsePeriod defaults an empty value to week.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodWeek, nil
	case PeriodWeek, PeriodMonth, PeriodYear:
		return Period(s), nil
	}
	return "", entities.NewValidationError(entities.FieldError{
		Field: "period", Rule: "oneof", Message: fmt.Sprintf("period must be week, month or year, got %q", s),
	})
}

// bucket is a half-open interval [Start, End).
type bucket struct {
	Start time.Time
	End   time.Time
}

func (b bucket) contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// dayBuckets returns the days from daysBack days before now through today.
func dayBuckets(now time.Time, daysBack int) []bucket {
	first := startOfDay(now).AddDate(0, 0, -daysBack)
	buckets := make([]bucket, 0, daysBack+1)
	for i := 0; i <= daysBack; i++ {
		start := first.AddDate(0, 0, i)
		buckets = append(buckets, bucket{Start: start, End: start.AddDate(0, 0, 1)})
	}
	return buckets
}

// monthBuckets returns the months from monthsBack months before now through
// the current month.
func monthBuckets(now time.Time, monthsBack int) []bucket {
	first := startOfMonth(now).AddDate(0, -monthsBack, 0)
	buckets := make([]bucket, 0, monthsBack+1)
	for i := 0; i <= monthsBack; i++ {
		start := first.AddDate(0, i, 0)
		buckets = append(buckets, bucket{Start: start, End: start.AddDate(0, 1, 0)})
	}
	return buckets
}

func periodBuckets(p Period, now time.Time) ([]bucket, string) {
	switch p {
	case PeriodMonth:
		return dayBuckets(now, 30), "2006-01-02"
	case PeriodYear:
		return monthBuckets(now, 12), "2006-01"
	default:
		return dayBuckets(now, 7), "2006-01-02"
	}
}

type CompletionBucket struct {
	Date      string    `json:"date"`
	Start     time.Time `json:"start"`
	Completed int       `json:"completed"`
	AvgImpact float64   `json:"avg_impact"`
}

type CompletionRateReport struct {
	Header
	Period         Period             `json:"period"`
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	Timeline       []CompletionBucket `json:"timeline"`
	TotalCompleted int                `json:"total_completed"`
	TotalCreated   int                `json:"total_created"`
	CompletionRate float64            `json:"completion_rate"`
}

// BuildCompletionRate buckets completions by day (week, month) or by
// calendar month (year). Every bucket in the range is present.
func BuildCompletionRate(tasks []*entities.Task, period Period, now time.Time) CompletionRateReport {
	buckets, layout := periodBuckets(period, now)
	span := bucket{Start: buckets[0].Start, End: buckets[len(buckets)-1].End}

	r := CompletionRateReport{
		Header:    newHeader(now),
		Period:    period,
		StartDate: span.Start,
		EndDate:   span.End,
		Timeline:  make([]CompletionBucket, 0, len(buckets)),
	}

	for _, b := range buckets {
		var impact float64
		n := 0
		for _, t := range tasks {
			if t.IsCompleted() && t.CompletedAt != nil && b.contains(*t.CompletedAt) {
				impact += float64(t.Impact)
				n++
			}
		}
		r.Timeline = append(r.Timeline, CompletionBucket{
			Date:      b.Start.Format(layout),
			Start:     b.Start,
			Completed: n,
			AvgImpact: Round2(mean(impact, n)),
		})
		r.TotalCompleted += n
	}

	for _, t := range tasks {
		if span.contains(t.CreatedAt) {
			r.TotalCreated++
		}
	}
	r.CompletionRate = Round2(percent(float64(r.TotalCompleted), float64(r.TotalCreated)))
	return r
}

type CategoryStat struct {
	Category    string  `json:"category"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
	AvgImpact   float64 `json:"avg_impact"`
	AvgPriority float64 `json:"avg_priority"`
}

type CategoryBreakdown struct {
	Header
	Categories []CategoryStat `json:"categories"`
	TotalTasks int            `json:"total_tasks"`
}

// BuildCategoryBreakdown groups by category, largest first, then by name.
func BuildCategoryBreakdown(tasks []*entities.Task, now time.Time) CategoryBreakdown {
	groups := make(map[string][]*entities.Task)
	for _, t := range tasks {
		groups[t.Category] = append(groups[t.Category], t)
	}

	stats := make([]CategoryStat, 0, len(groups))
	for name, group := range groups {
		stats = append(stats, CategoryStat{
			Category:    name,
			Count:       len(group),
			Percentage:  Round2(percent(float64(len(group)), float64(len(tasks)))),
			AvgImpact:   Round2(AvgImpact(group)),
			AvgPriority: Round2(AvgPriority(group)),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Category < stats[j].Category
	})

	return CategoryBreakdown{Header: newHeader(now), Categories: stats, TotalTasks: len(tasks)}
}

// Trend classifies the direction of a metric.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// RecentWindow is the number of newest tasks compared against the overall mean.
const RecentWindow = 20

// HighImpactThreshold is the minimum impact listed as high impact.
const HighImpactThreshold = 8

type HighImpactTask struct {
	ID       string              `json:"id"`
	Title    string              `json:"title"`
	Impact   int                 `json:"impact"`
	Priority int                 `json:"priority"`
	Status   entities.TaskStatus `json:"status"`
}

type ImpactAnalysis struct {
	Header
	Distribution     map[int]int      `json:"distribution"`
	HighImpactTasks  []HighImpactTask `json:"high_impact_tasks"`
	RecentAvgImpact  float64          `json:"recent_avg_impact"`
	OverallAvgImpact float64          `json:"overall_avg_impact"`
	Trend            Trend            `json:"trend"`
}

func BuildImpactAnalysis(tasks []*entities.Task, now time.Time) ImpactAnalysis {
	a := ImpactAnalysis{
		Header:          newHeader(now),
		Distribution:    make(map[int]int, entities.MaxImpact),
		HighImpactTasks: []HighImpactTask{},
	}
	for i := entities.MinImpact; i <= entities.MaxImpact; i++ {
		a.Distribution[i] = 0
	}
	for _, t := range tasks {
		if t.Impact >= entities.MinImpact && t.Impact <= entities.MaxImpact {
			a.Distribution[t.Impact]++
		}
	}

	high := filter(tasks, func(t *entities.Task) bool { return t.Impact >= HighImpactThreshold })
	sort.SliceStable(high, func(i, j int) bool {
		if high[i].Priority != high[j].Priority {
			return high[i].Priority < high[j].Priority
		}
		return high[i].CreatedAt.Before(high[j].CreatedAt)
	})
	if len(high) > 10 {
		high = high[:10]
	}
	for _, t := range high {
		a.HighImpactTasks = append(a.HighImpactTasks, HighImpactTask{
			ID: t.ID.String(), Title: t.Title, Impact: t.Impact, Priority: t.Priority, Status: t.Status,
		})
	}

	recent := append([]*entities.Task(nil), tasks...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > RecentWindow {
		recent = recent[:RecentWindow]
	}

	// Trend compares the unrounded means; rounding is for display only.
	recentAvg, overallAvg := AvgImpact(recent), AvgImpact(tasks)
	a.RecentAvgImpact = Round2(recentAvg)
	a.OverallAvgImpact = Round2(overallAvg)
	a.Trend = classifyTrend(recentAvg, overallAvg)
	return a
}

func classifyTrend(recent, overall float64) Trend {
	switch {
	case recent > overall:
		return TrendIncreasing
	case recent < overall:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

type PriorityStat struct {
	Priority           int     `json:"priority"`
	Count              int     `json:"count"`
	AvgImpact          float64 `json:"avg_impact"`
	CompletionRate     float64 `json:"completion_rate"`
	AvgCompletionHours float64 `json:"avg_completion_hours"`
}

type PriorityDistribution struct {
	Header
	Priorities []PriorityStat `json:"priorities"`
	TotalTasks int            `json:"total_tasks"`
}

func BuildPriorityDistribution(tasks []*entities.Task, now time.Time) PriorityDistribution {
	d := PriorityDistribution{
		Header:     newHeader(now),
		Priorities: make([]PriorityStat, 0, entities.MaxPriority),
		TotalTasks: len(tasks),
	}
	for p := entities.MinPriority; p <= entities.MaxPriority; p++ {
		level := filter(tasks, func(t *entities.Task) bool { return t.Priority == p })
		d.Priorities = append(d.Priorities, PriorityStat{
			Priority:           p,
			Count:              len(level),
			AvgImpact:          Round2(AvgImpact(level)),
			CompletionRate:     Round2(CompletionRate(level)),
			AvgCompletionHours: Round2(AvgCompletionHours(level)),
		})
	}
	return d
}

// TimelineDays is the span of the activity timeline.
const TimelineDays = 30

type TimelineDay struct {
	Date      string `json:"date"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
	NetChange int    `json:"net_change"`
}

type Timeline struct {
	Header
	Days              []TimelineDay `json:"days"`
	TotalCreated      int           `json:"total_created"`
	TotalCompleted    int           `json:"total_completed"`
	AvgDailyCompleted float64       `json:"avg_daily_completed"`
}

// BuildTimeline reports created and completed counts for each of the last
// 30 days plus today.
func BuildTimeline(tasks []*entities.Task, now time.Time) Timeline {
	buckets := dayBuckets(now, TimelineDays)
	tl := Timeline{Header: newHeader(now), Days: make([]TimelineDay, 0, len(buckets))}

	for _, b := range buckets {
		day := TimelineDay{Date: b.Start.Format("2006-01-02")}
		for _, t := range tasks {
			if b.contains(t.CreatedAt) {
				day.Created++
			}
			if t.IsCompleted() && t.CompletedAt != nil && b.contains(*t.CompletedAt) {
				day.Completed++
			}
		}
		day.NetChange = day.Completed - day.Created
		tl.TotalCreated += day.Created
		tl.TotalCompleted += day.Completed
		tl.Days = append(tl.Days, day)
	}
	tl.AvgDailyCompleted = Round2(mean(float64(tl.TotalCompleted), len(tl.Days)))
	return tl
}

type PerformanceMetrics struct {
	Header
	CompletionRate      float64 `json:"completion_rate"`
	AvgCompletionHours  float64 `json:"avg_completion_hours"`
	PriorityAccuracy    float64 `json:"priority_accuracy"`
	TotalImpactAchieved int     `json:"total_impact_achieved"`
	EfficiencyScore     float64 `json:"efficiency_score"`
	TasksCompleted      int     `json:"tasks_completed"`
	TasksPending        int     `json:"tasks_pending"`
}

// EfficiencyScore blends completion, priority accuracy and turnaround time.
func EfficiencyScore(completionRate, priorityAccuracy, avgHours float64) float64 {
	return completionRate*0.4 + priorityAccuracy*0.3 + (100-min(avgHours, 100))*0.3
}

func BuildPerformance(tasks []*entities.Task, now time.Time) PerformanceMetrics {
	done := completed(tasks)
	impact := 0
	for _, t := range done {
		impact += t.Impact
	}

	cr := CompletionRate(tasks)
	pa := PriorityAccuracy(tasks)
	avg := AvgCompletionHours(tasks)

	return PerformanceMetrics{
		Header:              newHeader(now),
		CompletionRate:      Round2(cr),
		AvgCompletionHours:  Round2(avg),
		PriorityAccuracy:    Round2(pa),
		TotalImpactAchieved: impact,
		EfficiencyScore:     Round2(EfficiencyScore(cr, pa, avg)),
		TasksCompleted:      len(done),
		TasksPending:        len(tasks) - len(done),
	}
}

// OptimizationTips are rule-based suggestions, at most MaxTips.
type OptimizationTips struct {
	Header
	Tips []string `json:"tips"`
}

const MaxTips = 5

var generalTips = []string{
	"Schedule 2-3 high-impact tasks per day for maximum productivity",
	"Review and update task priorities weekly",
	"Use time blocking for focused work sessions",
	"Delegate or eliminate low-impact tasks when possible",
}

func BuildOptimizationTips(tasks []*entities.Task, now time.Time) OptimizationTips {
	var tips []string
	if len(tasks) > 0 {
		if overdue := CountOverdue(tasks, now); overdue > 0 {
			tips = append(tips, fmt.Sprintf("You have %d overdue tasks. Consider rescheduling or breaking them down.", overdue))
		}

		categories := make(map[string]struct{})
		for _, t := range tasks {
			categories[t.Category] = struct{}{}
		}
		if len(categories) > 5 {
			tips = append(tips, "You have tasks in many different categories. Consider consolidating similar tasks.")
		}

		long := filter(tasks, func(t *entities.Task) bool { return t.EstimatedHours > 8 })
		if len(long) > 0 {
			tips = append(tips, fmt.Sprintf("You have %d tasks estimated over 8 hours. Break them into smaller subtasks.", len(long)))
		}
	}
	tips = append(tips, generalTips...)
	if len(tips) > MaxTips {
		tips = tips[:MaxTips]
	}
	return OptimizationTips{Header: newHeader(now), Tips: tips}
}
