package entities

import (
	"database/sql/driver"
	"time"
)

// InsightSource tells whether insights came from the model or the fallback.
type InsightSource string

const (
	InsightSourceModel   InsightSource = "model"
	InsightSourceDefault InsightSource = "default"
)

// Insights annotates a task with effort and complexity estimates.
type Insights struct {
	SchemaVersion       string        `json:"schema_version"`
	EstimatedHours      float64       `json:"estimated_hours"`
	ComplexityScore     int           `json:"complexity_score"`
	RecommendedApproach string        `json:"recommended_approach"`
	PotentialBlockers   []string      `json:"potential_blockers"`
	SuggestedResources  []string      `json:"suggested_resources"`
	ConfidenceScore     float64       `json:"confidence_score"`
	Source              InsightSource `json:"source"`
	GeneratedAt         time.Time     `json:"generated_at"`
}

// DefaultInsights is returned whenever the completion service cannot
// produce a usable answer.
func DefaultInsights() Insights {
	return Insights{
		SchemaVersion:       SchemaVersion,
		EstimatedHours:      4.0,
		ComplexityScore:     3,
		RecommendedApproach: "Standard approach",
		PotentialBlockers:   []string{},
		SuggestedResources:  []string{},
		ConfidenceScore:     0.5,
		Source:              InsightSourceDefault,
	}
}

// Normalize clamps every field into its documented range.
func (i *Insights) Normalize() {
	i.SchemaVersion = SchemaVersion
	if i.EstimatedHours <= 0 {
		i.EstimatedHours = DefaultInsights().EstimatedHours
	}
	if i.ComplexityScore < 1 {
		i.ComplexityScore = 1
	} else if i.ComplexityScore > 5 {
		i.ComplexityScore = 5
	}
	if i.ConfidenceScore < 0 {
		i.ConfidenceScore = 0
	} else if i.ConfidenceScore > 1 {
		i.ConfidenceScore = 1
	}
	if i.RecommendedApproach == "" {
		i.RecommendedApproach = DefaultInsights().RecommendedApproach
	}
	if i.PotentialBlockers == nil {
		i.PotentialBlockers = []string{}
	}
	if i.SuggestedResources == nil {
		i.SuggestedResources = []string{}
	}
}

func (i Insights) Clone() Insights {
	c := i
	c.PotentialBlockers = append([]string{}, i.PotentialBlockers...)
	c.SuggestedResources = append([]string{}, i.SuggestedResources...)
	return c
}

func (i *Insights) Value() (driver.Value, error) {
	if i == nil {
		return nil, nil
	}
	return valueJSON(i)
}

func (i *Insights) Scan(src interface{}) error {
	return scanJSON(src, i)
}

// Recommendations is the advisory summary produced for a user's task set.
type Recommendations struct {
	SchemaVersion    string        `json:"schema_version"`
	FocusAreas       []string      `json:"focus_areas"`
	QuickWins        []string      `json:"quick_wins"`
	RiskAlerts       []string      `json:"risk_alerts"`
	OptimizationTips []string      `json:"optimization_tips"`
	EfficiencyScore  float64       `json:"efficiency_score"`
	SpecificTasks    []TaskPointer `json:"specific_tasks,omitempty"`
	Source           InsightSource `json:"source"`
}

// TaskPointer references a task by id and title inside a report.
type TaskPointer struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reason string `json:"reason,omitempty"`
}

// DefaultRecommendations is the fallback advisory summary.
func DefaultRecommendations() Recommendations {
	return Recommendations{
		SchemaVersion:    SchemaVersion,
		FocusAreas:       []string{"High priority tasks", "Overdue items"},
		QuickWins:        []string{"Complete in-progress tasks first"},
		RiskAlerts:       []string{"Check for dependencies"},
		OptimizationTips: []string{"Schedule focused time blocks", "Break large tasks into subtasks"},
		EfficiencyScore:  60,
		Source:           InsightSourceDefault,
	}
}

// Normalize fills missing lists and clamps the efficiency score to 0..100.
func (r *Recommendations) Normalize() {
	r.SchemaVersion = SchemaVersion
	if r.FocusAreas == nil {
		r.FocusAreas = []string{}
	}
	if r.QuickWins == nil {
		r.QuickWins = []string{}
	}
	if r.RiskAlerts == nil {
		r.RiskAlerts = []string{}
	}
	if r.OptimizationTips == nil {
		r.OptimizationTips = []string{}
	}
	if r.EfficiencyScore < 0 {
		r.EfficiencyScore = 0
	} else if r.EfficiencyScore > 100 {
		r.EfficiencyScore = 100
	}
}

// StarterRecommendations is returned to a user who has no tasks yet.
func StarterRecommendations() Recommendations {
	return Recommendations{
		SchemaVersion:    SchemaVersion,
		FocusAreas:       []string{"Start by creating your first task"},
		QuickWins:        []string{},
		RiskAlerts:       []string{},
		OptimizationTips: []string{"Add tasks to get personalized recommendations"},
		EfficiencyScore:  0,
		Source:           InsightSourceDefault,
	}
}
