package analytics

import (
	"fmt"
	"time"

	"github.com/taskmaster/pulse/internal/domain/entities"
)

// Level buckets a 0-100 score.
type Level string

const (
	LevelHigh   Level = "High"
	LevelMedium Level = "Medium"
	LevelLow    Level = "Low"
)

// Productivity weights
const (
	weightCompletion  = 0.3
	weightOnTime      = 0.25
	weightImpact      = 0.25
	weightConsistency = 0.2
)

type ProductivityComponents struct {
	CompletionRate   float64 `json:"completion_rate"`
	OnTimeRate       float64 `json:"on_time_rate"`
	ImpactEfficiency float64 `json:"impact_efficiency"`
	ConsistencyScore float64 `json:"consistency_score"`
}

func (c ProductivityComponents) score() float64 {
	return weightCompletion*c.CompletionRate +
		weightOnTime*c.OnTimeRate +
		weightImpact*c.ImpactEfficiency +
		weightConsistency*c.ConsistencyScore
}

func productivityComponents(tasks []*entities.Task, now time.Time) ProductivityComponents {
	return ProductivityComponents{
		CompletionRate:   CompletionRate(tasks),
		OnTimeRate:       OnTimeRate(tasks),
		ImpactEfficiency: ImpactEfficiency(tasks),
		ConsistencyScore: ConsistencyScore(tasks, now, DefaultConsistencyWindow),
	}
}

// ProductivityScore is the unrounded weighted composite in [0, 100].
func ProductivityScore(tasks []*entities.Task, now time.Time) float64 {
	return productivityComponents(tasks, now).score()
}

func ProductivityLevel(score float64) Level {
	switch {
	case score >= 80:
		return LevelHigh
	case score >= 60:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Productivity recommendations, emitted in this order.
const (
	RecCompleteMore   = "Focus on completing more tasks - aim for at least 60% completion rate"
	RecTimeManagement = "Improve time management - try setting realistic deadlines"
	RecBreakDown      = "Break larger tasks into smaller, manageable subtasks"
	RecUsePriorities  = "Use the priority system to focus on high-impact tasks first"
)

// ProductivityRecommendations applies independent threshold rules.
func ProductivityRecommendations(c ProductivityComponents, score float64) []string {
	recs := []string{}
	if c.CompletionRate < 60 {
		recs = append(recs, RecCompleteMore)
	}
	if c.OnTimeRate < 70 {
		recs = append(recs, RecTimeManagement)
	}
	if score < 60 {
		recs = append(recs, RecBreakDown, RecUsePriorities)
	}
	return recs
}

type ProductivityReport struct {
	Header
	Score            float64                `json:"score"`
	Level            Level                  `json:"level"`
	Components       ProductivityComponents `json:"components"`
	DailyCompletions []int                  `json:"daily_completions"`
	Recommendations  []string               `json:"recommendations"`
}

func BuildProductivity(tasks []*entities.Task, now time.Time) ProductivityReport {
	c := productivityComponents(tasks, now)
	score := c.score()
	return ProductivityReport{
		Header: newHeader(now),
		Score:  Round2(score),
		Level:  ProductivityLevel(score),
		Components: ProductivityComponents{
			CompletionRate:   Round2(c.CompletionRate),
			OnTimeRate:       Round2(c.OnTimeRate),
			ImpactEfficiency: Round2(c.ImpactEfficiency),
			ConsistencyScore: Round2(c.ConsistencyScore),
		},
		DailyCompletions: DailyCompletions(tasks, now, DefaultConsistencyWindow),
		Recommendations:  ProductivityRecommendations(c, score),
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

type RiskType string

const (
	RiskOverdue             RiskType = "overdue"
	RiskHighPriorityPending RiskType = "high_priority_pending"
	RiskUpcomingDeadlines   RiskType = "upcoming_deadlines"
)

// UpcomingWindow is how far ahead a deadline counts as imminent.
const UpcomingWindow = 7 * 24 * time.Hour

const maxRiskExamples = 3

type Risk struct {
	Type           RiskType `json:"type"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Count          int      `json:"count"`
	Tasks          []string `json:"tasks"`
	Recommendation string   `json:"recommendation"`
}

type RiskAnalysis struct {
	Header
	Risks           []Risk   `json:"risks"`
	RiskScore       float64  `json:"risk_score"`
	RiskLevel       Level    `json:"risk_level"`
	Recommendations []string `json:"recommendations"`
}

type riskCheck struct {
	kind     RiskType
	severity Severity
	message  string
	advice   string
	match    func(t *entities.Task, now time.Time) bool
}

var riskChecks = []riskCheck{
	{
		kind:     RiskOverdue,
		severity: SeverityHigh,
		message:  "%d tasks are overdue",
		advice:   "Address overdue tasks immediately",
		match:    func(t *entities.Task, now time.Time) bool { return t.IsOverdue(now) },
	},
	{
		kind:     RiskHighPriorityPending,
		severity: SeverityCritical,
		message:  "%d critical priority tasks pending",
		advice:   "Focus on critical priority tasks",
		match: func(t *entities.Task, _ time.Time) bool {
			return t.Priority == entities.MinPriority && t.Status == entities.TaskStatusPending
		},
	},
	{
		kind:     RiskUpcomingDeadlines,
		severity: SeverityMedium,
		message:  "%d tasks due within 7 days",
		advice:   "Review upcoming deadlines",
		match: func(t *entities.Task, now time.Time) bool {
			return !t.IsCompleted() && !t.DueDate.After(now.Add(UpcomingWindow))
		},
	},
}

// RiskScore grows by 20 per fired check, capped at 100.
func RiskScore(fired int) float64 {
	return min(100, float64(fired)*20)
}

func RiskLevel(score float64) Level {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// AnalyzeRisks runs every check independently against the task set.
func AnalyzeRisks(tasks []*entities.Task, now time.Time) RiskAnalysis {
	ra := RiskAnalysis{
		Header:          newHeader(now),
		Risks:           []Risk{},
		Recommendations: []string{},
	}

	for _, check := range riskChecks {
		var hits []*entities.Task
		for _, t := range tasks {
			if check.match(t, now) {
				hits = append(hits, t)
			}
		}
		if len(hits) == 0 {
			continue
		}

		titles := make([]string, 0, maxRiskExamples)
		for i := 0; i < len(hits) && i < maxRiskExamples; i++ {
			titles = append(titles, hits[i].Title)
		}
		ra.Risks = append(ra.Risks, Risk{
			Type:           check.kind,
			Severity:       check.severity,
			Message:        fmt.Sprintf(check.message, len(hits)),
			Count:          len(hits),
			Tasks:          titles,
			Recommendation: check.advice,
		})
		ra.Recommendations = append(ra.Recommendations, check.advice)
	}

	ra.RiskScore = RiskScore(len(ra.Risks))
	ra.RiskLevel = RiskLevel(ra.RiskScore)
	return ra
}
