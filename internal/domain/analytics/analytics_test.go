package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/pulse/internal/domain/entities"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type taskOpt func(*entities.Task)

func newTask(opts ...taskOpt) *entities.Task {
	t := entities.NewTask(uuid.New(), "task", now.Add(48*time.Hour), now.Add(-10*24*time.Hour))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func withImpact(i int) taskOpt   { return func(t *entities.Task) { t.Impact = i } }
func withPriority(p int) taskOpt { return func(t *entities.Task) { t.Priority = p } }
func withTitle(s string) taskOpt { return func(t *entities.Task) { t.Title = s } }
func withCategory(c string) taskOpt {
	return func(t *entities.Task) { t.Category = c }
}
func withDue(d time.Time) taskOpt     { return func(t *entities.Task) { t.DueDate = d } }
func withCreated(c time.Time) taskOpt { return func(t *entities.Task) { t.CreatedAt = c } }
func withStatus(s entities.TaskStatus) taskOpt {
	return func(t *entities.Task) { t.Status = s }
}

// completedAt marks the task completed at the given instant after starting
// it the given number of hours earlier.
func completedAt(at time.Time, hoursTaken float64) taskOpt {
	return func(t *entities.Task) {
		started := at.Add(-time.Duration(hoursTaken * float64(time.Hour)))
		t.StartedAt = &started
		t.Status = entities.TaskStatusCompleted
		t.Progress = entities.MaxProgress
		t.CompletedAt = &at
	}
}

// scenarioTasks: 10 tasks, 6 completed with impacts 5..10 on six distinct
// recent days, 4 of them on time, and 4 pending tasks of impact 1.
func scenarioTasks() []*entities.Task {
	var tasks []*entities.Task
	for k := 0; k < 6; k++ {
		at := now.Add(-time.Duration(k)*24*time.Hour - time.Hour)
		due := at.Add(time.Hour)
		if k >= 4 {
			due = at.Add(-time.Hour)
		}
		tasks = append(tasks, newTask(withImpact(5+k), withDue(due), completedAt(at, 2)))
	}
	for k := 0; k < 4; k++ {
		tasks = append(tasks, newTask(withImpact(1)))
	}
	return tasks
}

func TestMetricPrimitives_Scenario(t *testing.T) {
	tasks := scenarioTasks()

	assert.Equal(t, 60.00, Round2(CompletionRate(tasks)))
	assert.Equal(t, 66.67, Round2(OnTimeRate(tasks)))
	assert.Equal(t, 91.84, Round2(ImpactEfficiency(tasks)))
	assert.Equal(t, 85.71, Round2(ConsistencyScore(tasks, now, 7)))
	assert.Equal(t, 2.00, Round2(AvgCompletionHours(tasks)))
	assert.Equal(t, []int{0, 1, 1, 1, 1, 1, 1}, DailyCompletions(tasks, now, 7))
}

func TestImpactEfficiency_AllImpactCompleted(t *testing.T) {
	tasks := scenarioTasks()[:6]
	assert.Equal(t, 100.00, Round2(ImpactEfficiency(tasks)))
	assert.Equal(t, 100.00, Round2(CompletionRate(tasks)))
}

func TestMetricPrimitives_EmptySet(t *testing.T) {
	var empty []*entities.Task

	assert.Zero(t, CompletionRate(empty))
	assert.Zero(t, OnTimeRate(empty))
	assert.Zero(t, AvgCompletionHours(empty))
	assert.Zero(t, ImpactEfficiency(empty))
	assert.Zero(t, ConsistencyScore(empty, now, 7))
	assert.Zero(t, PriorityAccuracy(empty))
	assert.Zero(t, AvgImpact(empty))
	assert.Zero(t, ConsistencyScore(empty, now, 0))
}

func TestCompletionRate_Bounded(t *testing.T) {
	sets := [][]*entities.Task{
		nil,
		{newTask()},
		{newTask(completedAt(now, 1))},
		scenarioTasks(),
	}
	for _, tasks := range sets {
		rate := CompletionRate(tasks)
		assert.GreaterOrEqual(t, rate, 0.0)
		assert.LessOrEqual(t, rate, 100.0)
	}
}

func TestBuildDashboard(t *testing.T) {
	tasks := append(scenarioTasks(),
		newTask(withDue(now.Add(-time.Hour)), withPriority(1)),
		newTask(withStatus(entities.TaskStatusBlocked), withPriority(5)),
	)

	d := BuildDashboard(tasks, now)

	assert.Equal(t, entities.SchemaVersion, d.SchemaVersion)
	assert.Equal(t, 12, d.TotalTasks)
	assert.Equal(t, StatusCounts{Pending: 5, Completed: 6, Blocked: 1}, d.StatusCounts)
	assert.Equal(t, 1, d.OverdueTasks)
	assert.Equal(t, 50.00, d.CompletionRate)
	assert.Equal(t, map[int]int{1: 1, 2: 0, 3: 10, 4: 0, 5: 1}, d.PriorityDistribution)
}

func TestBuildCompletionRate_Buckets(t *testing.T) {
	tests := []struct {
		period Period
		want   int
		first  string
	}{
		{PeriodWeek, 8, "2024-06-08"},
		{PeriodMonth, 31, "2024-05-16"},
		{PeriodYear, 13, "2023-06"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			r := BuildCompletionRate(nil, tt.period, now)

			require.Len(t, r.Timeline, tt.want)
			assert.Equal(t, tt.first, r.Timeline[0].Date)
			for i, b := range r.Timeline {
				assert.Zero(t, b.Completed)
				assert.Zero(t, b.AvgImpact)
				if i > 0 {
					assert.True(t, b.Start.After(r.Timeline[i-1].Start), "buckets are ordered")
				}
			}
			assert.Zero(t, r.CompletionRate)
		})
	}
}

func TestBuildCompletionRate_HalfOpenBuckets(t *testing.T) {
	midnight := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	tasks := []*entities.Task{
		newTask(withImpact(4), completedAt(midnight, 1)),
		newTask(withImpact(8), completedAt(midnight.Add(-time.Nanosecond), 1)),
		newTask(withImpact(6), completedAt(midnight.Add(time.Hour), 1)),
	}

	r := BuildCompletionRate(tasks, PeriodWeek, now)

	byDate := map[string]CompletionBucket{}
	for _, b := range r.Timeline {
		byDate[b.Date] = b
	}
	assert.Equal(t, 1, byDate["2024-06-13"].Completed)
	assert.Equal(t, 8.0, byDate["2024-06-13"].AvgImpact)
	assert.Equal(t, 2, byDate["2024-06-14"].Completed)
	assert.Equal(t, 5.0, byDate["2024-06-14"].AvgImpact)
	assert.Equal(t, 3, r.TotalCompleted)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeek, p)

	_, err = ParsePeriod("decade")
	require.Error(t, err)
	assert.True(t, entities.IsDomainError(err, entities.ErrCodeValidation))
}

func TestBuildCategoryBreakdown(t *testing.T) {
	tasks := []*entities.Task{
		newTask(withCategory("Work"), withImpact(8), withPriority(1)),
		newTask(withCategory("Work"), withImpact(6), withPriority(2)),
		newTask(withCategory("Home"), withImpact(3), withPriority(4)),
		newTask(withCategory("Admin"), withImpact(5), withPriority(3)),
	}

	b := BuildCategoryBreakdown(tasks, now)

	require.Len(t, b.Categories, 3)
	assert.Equal(t, CategoryStat{Category: "Work", Count: 2, Percentage: 50, AvgImpact: 7, AvgPriority: 1.5}, b.Categories[0])
	assert.Equal(t, "Admin", b.Categories[1].Category)
	assert.Equal(t, "Home", b.Categories[2].Category)
	assert.Equal(t, 25.0, b.Categories[2].Percentage)
	assert.Equal(t, 4, b.TotalTasks)

	empty := BuildCategoryBreakdown(nil, now)
	assert.Empty(t, empty.Categories)
}

func TestBuildImpactAnalysis(t *testing.T) {
	var tasks []*entities.Task
	for i := 0; i < 25; i++ {
		impact := 2
		if i >= 20 {
			impact = 9
		}
		tasks = append(tasks, newTask(
			withImpact(impact),
			withPriority(5-i%5),
			withCreated(now.Add(time.Duration(i)*time.Minute)),
		))
	}

	a := BuildImpactAnalysis(tasks, now)

	assert.Len(t, a.Distribution, 10)
	assert.Equal(t, 20, a.Distribution[2])
	assert.Equal(t, 5, a.Distribution[9])
	require.Len(t, a.HighImpactTasks, 5)
	for i := 1; i < len(a.HighImpactTasks); i++ {
		assert.LessOrEqual(t, a.HighImpactTasks[i-1].Priority, a.HighImpactTasks[i].Priority)
	}
	assert.Equal(t, 3.75, a.RecentAvgImpact)
	assert.Equal(t, 3.4, a.OverallAvgImpact)
	assert.Equal(t, TrendIncreasing, a.Trend)
}

func TestBuildImpactAnalysis_TrendStableWhenAllRecent(t *testing.T) {
	tasks := []*entities.Task{newTask(withImpact(3)), newTask(withImpact(9))}
	a := BuildImpactAnalysis(tasks, now)
	assert.Equal(t, TrendStable, a.Trend)

	empty := BuildImpactAnalysis(nil, now)
	assert.Equal(t, TrendStable, empty.Trend)
	assert.Empty(t, empty.HighImpactTasks)
}

func TestBuildImpactAnalysis_TrendIgnoresRounding(t *testing.T) {
	var tasks []*entities.Task
	for i := 0; i < 300; i++ {
		tasks = append(tasks, newTask(withImpact(5), withCreated(now.Add(-48*time.Hour))))
	}
	tasks = append(tasks, newTask(withImpact(6), withCreated(now.Add(-48*time.Hour))))
	for i := 0; i < RecentWindow; i++ {
		tasks = append(tasks, newTask(withImpact(5), withCreated(now.Add(-time.Duration(i)*time.Minute))))
	}

	a := BuildImpactAnalysis(tasks, now)
	assert.Equal(t, 5.0, a.RecentAvgImpact)
	assert.Equal(t, 5.0, a.OverallAvgImpact)
	assert.Equal(t, TrendDecreasing, a.Trend)
}

func TestBuildPriorityDistribution(t *testing.T) {
	tasks := []*entities.Task{
		newTask(withPriority(1), withImpact(10), completedAt(now, 4)),
		newTask(withPriority(1), withImpact(6)),
		newTask(withPriority(3), withImpact(5)),
	}

	d := BuildPriorityDistribution(tasks, now)

	require.Len(t, d.Priorities, 5)
	assert.Equal(t, PriorityStat{Priority: 1, Count: 2, AvgImpact: 8, CompletionRate: 50, AvgCompletionHours: 4}, d.Priorities[0])
	assert.Equal(t, PriorityStat{Priority: 2}, d.Priorities[1])
	assert.Equal(t, 1, d.Priorities[2].Count)
}

func TestBuildTimeline(t *testing.T) {
	today := time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC)
	tasks := []*entities.Task{
		newTask(withCreated(today)),
		newTask(withCreated(today), completedAt(today.Add(time.Hour), 1)),
		newTask(withCreated(now.Add(-60*24*time.Hour)), completedAt(today.Add(-24*time.Hour), 1)),
	}

	tl := BuildTimeline(tasks, now)

	require.Len(t, tl.Days, 31)
	last := tl.Days[len(tl.Days)-1]
	assert.Equal(t, "2024-06-15", last.Date)
	assert.Equal(t, TimelineDay{Date: "2024-06-15", Created: 2, Completed: 1, NetChange: -1}, last)
	assert.Equal(t, 1, tl.Days[len(tl.Days)-2].Completed)
	assert.Equal(t, 2, tl.TotalCreated)
	assert.Equal(t, 2, tl.TotalCompleted)
	assert.Equal(t, 0.06, tl.AvgDailyCompleted)
}

func TestBuildPerformance(t *testing.T) {
	tasks := []*entities.Task{
		newTask(withPriority(1), withImpact(7), completedAt(now, 10)),
		newTask(withPriority(1), withImpact(3)),
		newTask(withPriority(2), withImpact(5), completedAt(now, 20)),
		newTask(withPriority(4), withImpact(2)),
	}

	p := BuildPerformance(tasks, now)

	assert.Equal(t, 50.0, p.CompletionRate)
	assert.Equal(t, 15.0, p.AvgCompletionHours)
	assert.Equal(t, 50.0, p.PriorityAccuracy)
	assert.Equal(t, 12, p.TotalImpactAchieved)
	assert.Equal(t, 2, p.TasksCompleted)
	assert.Equal(t, 2, p.TasksPending)
	// 0.4*50 + 0.3*50 + 0.3*(100-15)
	assert.Equal(t, 60.5, p.EfficiencyScore)
}

func TestEfficiencyScore_CapsHours(t *testing.T) {
	assert.Equal(t, 0.0, EfficiencyScore(0, 0, 250))
}

func TestBuildOptimizationTips(t *testing.T) {
	t.Run("general tips only", func(t *testing.T) {
		tips := BuildOptimizationTips(nil, now)
		assert.Equal(t, generalTips, tips.Tips)
	})

	t.Run("rule tips first and capped", func(t *testing.T) {
		var tasks []*entities.Task
		for _, c := range []string{"a", "b", "c", "d", "e", "f"} {
			tasks = append(tasks, newTask(withCategory(c)))
		}
		tasks = append(tasks, newTask(withDue(now.Add(-time.Hour))))
		tasks[0].EstimatedHours = 12

		tips := BuildOptimizationTips(tasks, now)

		require.Len(t, tips.Tips, MaxTips)
		assert.Equal(t, "You have 1 overdue tasks. Consider rescheduling or breaking them down.", tips.Tips[0])
		assert.Contains(t, tips.Tips[1], "many different categories")
		assert.Equal(t, "You have 1 tasks estimated over 8 hours. Break them into smaller subtasks.", tips.Tips[2])
		assert.Equal(t, generalTips[:2], tips.Tips[3:])
	})
}

func TestBuildExport(t *testing.T) {
	tasks := []*entities.Task{
		newTask(withTitle("Ship, v2"), completedAt(now, 1)),
		newTask(withTitle("Plan")),
	}

	e := BuildExport("ada@example.com", tasks, now)

	assert.Equal(t, ExportSummary{TotalTasks: 2, CompletedTasks: 1, PendingTasks: 1, ExportDate: now, User: "ada@example.com"}, e.Summary)
	rows := e.Rows()
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(ExportHeader))
	assert.Equal(t, "Ship, v2", rows[0][1])
	assert.Equal(t, "100%", rows[0][6])
	assert.Equal(t, "2024-06-15 12:00", rows[0][9])
	assert.Equal(t, "", rows[1][9])
	assert.Equal(t, "tasks_export_20240615.csv", e.Filename("csv"))
}

func TestUrgentPending(t *testing.T) {
	tasks := []*entities.Task{
		newTask(withPriority(1), withTitle("a")),
		newTask(withPriority(3), withTitle("b")),
		newTask(withPriority(2), withTitle("c")),
		newTask(withPriority(2), withTitle("d"), completedAt(now, 1)),
		newTask(withPriority(1), withTitle("e")),
		newTask(withPriority(1), withTitle("f")),
	}

	got := UrgentPending(tasks, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, "c", got[1].Title)
	assert.Equal(t, "e", got[2].Title)
}
