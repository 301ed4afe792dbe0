package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskmaster/pulse/internal/domain/analytics"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

// Report names, also used in cache keys.
const (
	ReportDashboard        = "dashboard"
	ReportCompletionRate   = "completion_rate"
	ReportCategories       = "categories"
	ReportImpact           = "impact"
	ReportPriorities       = "priorities"
	ReportTimeline         = "timeline"
	ReportPerformance      = "performance"
	ReportProductivity     = "productivity"
	ReportRisks            = "risks"
	ReportOptimizationTips = "optimization_tips"
	ReportRecommendations  = "recommendations"
)

// AnalyticsService builds reports from a snapshot of the user's tasks.
// Rendered reports are cached until the next mutation of that user.
type AnalyticsService struct {
	repos    ports.Repositories
	cache    ports.CacheRepository
	enricher ports.Enricher
	ttl      time.Duration
	logger   *logger.Logger
	lookups  *prometheus.CounterVec
	now      func() time.Time
}

var _ ports.AnalyticsService = (*AnalyticsService)(nil)

// NewAnalyticsService creates a new analytics service. reg may be nil.
func NewAnalyticsService(repos ports.Repositories, cache ports.CacheRepository, enricher ports.Enricher, ttl time.Duration, logger *logger.Logger, reg prometheus.Registerer) *AnalyticsService {
	s := &AnalyticsService{
		repos:    repos,
		cache:    cache,
		enricher: enricher,
		ttl:      ttl,
		logger:   logger.WithComponent("analytics_service"),
		now:      utcNow,
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_cache_lookups_total",
				Help: "Report cache lookups by report and result",
			},
			[]string{"report", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(s.lookups)
	}
	return s
}

func cacheKey(userID uuid.UUID, report, params string) string {
	return fmt.Sprintf("analytics:%s:%s:%s", userID, report, params)
}

// cached serves a report from the cache or builds it from a fresh snapshot.
// Cache failures are logged and never fail the request.
func cached[T any](ctx context.Context, s *AnalyticsService, userID uuid.UUID, report, params string, build func(tasks []*entities.Task, now time.Time) T) (*T, error) {
	key := cacheKey(userID, report, params)

	var hit T
	err := s.cache.Get(ctx, key, &hit)
	switch {
	case err == nil:
		s.lookups.WithLabelValues(report, "hit").Inc()
		return &hit, nil
	case !errors.Is(err, ports.ErrCacheMiss):
		s.logger.WithError(err).Warnw("Report cache read failed", "key", key)
	}
	s.lookups.WithLabelValues(report, "miss").Inc()

	tasks, err := s.repos.Tasks.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := build(tasks, s.now())
	if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
		s.logger.WithError(err).Warnw("Report cache write failed", "key", key)
	}
	return &result, nil
}

// Invalidate drops every cached report of the user.
func (s *AnalyticsService) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.DeletePattern(ctx, fmt.Sprintf("analytics:%s:*", userID)); err != nil {
		s.logger.WithError(err).Warnw("Report cache invalidation failed", "user_id", userID)
	}
}

func (s *AnalyticsService) Dashboard(ctx context.Context, userID uuid.UUID) (*analytics.Dashboard, error) {
	return cached(ctx, s, userID, ReportDashboard, "", analytics.BuildDashboard)
}

// CompletionRate reports per-bucket completion for week, month or year.
func (s *AnalyticsService) CompletionRate(ctx context.Context, userID uuid.UUID, period string) (*analytics.CompletionRateReport, error) {
	p, err := analytics.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, userID, ReportCompletionRate, string(p), func(tasks []*entities.Task, now time.Time) analytics.CompletionRateReport {
		return analytics.BuildCompletionRate(tasks, p, now)
	})
}

func (s *AnalyticsService) CategoryBreakdown(ctx context.Context, userID uuid.UUID) (*analytics.CategoryBreakdown, error) {
	return cached(ctx, s, userID, ReportCategories, "", analytics.BuildCategoryBreakdown)
}

func (s *AnalyticsService) ImpactAnalysis(ctx context.Context, userID uuid.UUID) (*analytics.ImpactAnalysis, error) {
	return cached(ctx, s, userID, ReportImpact, "", analytics.BuildImpactAnalysis)
}

func (s *AnalyticsService) PriorityDistribution(ctx context.Context, userID uuid.UUID) (*analytics.PriorityDistribution, error) {
	return cached(ctx, s, userID, ReportPriorities, "", analytics.BuildPriorityDistribution)
}

func (s *AnalyticsService) Timeline(ctx context.Context, userID uuid.UUID) (*analytics.Timeline, error) {
	return cached(ctx, s, userID, ReportTimeline, "", analytics.BuildTimeline)
}

func (s *AnalyticsService) Performance(ctx context.Context, userID uuid.UUID) (*analytics.PerformanceMetrics, error) {
	return cached(ctx, s, userID, ReportPerformance, "", analytics.BuildPerformance)
}

func (s *AnalyticsService) Productivity(ctx context.Context, userID uuid.UUID) (*analytics.ProductivityReport, error) {
	return cached(ctx, s, userID, ReportProductivity, "", analytics.BuildProductivity)
}

func (s *AnalyticsService) Risks(ctx context.Context, userID uuid.UUID) (*analytics.RiskAnalysis, error) {
	return cached(ctx, s, userID, ReportRisks, "", analytics.AnalyzeRisks)
}

func (s *AnalyticsService) OptimizationTips(ctx context.Context, userID uuid.UUID) (*analytics.OptimizationTips, error) {
	return cached(ctx, s, userID, ReportOptimizationTips, "", analytics.BuildOptimizationTips)
}

// Recommendations asks the enrichment adapter for advice on the task set and
// points at up to three urgent pending tasks.
func (s *AnalyticsService) Recommendations(ctx context.Context, userID uuid.UUID) (*entities.Recommendations, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return cached(ctx, s, userID, ReportRecommendations, "", func(tasks []*entities.Task, now time.Time) entities.Recommendations {
		if len(tasks) == 0 {
			return entities.StarterRecommendations()
		}

		recs := entities.DefaultRecommendations()
		if user.Preferences.AIEnabled() {
			recs = s.enricher.Recommend(ctx, recommendationInput(tasks, now))
		}
		if urgent := analytics.UrgentPending(tasks, 3); len(urgent) > 0 {
			recs.SpecificTasks = urgent
		}
		return recs
	})
}

// Export returns every task of the user with a summary. It is never cached.
func (s *AnalyticsService) Export(ctx context.Context, userID uuid.UUID) (*analytics.Export, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repos.Tasks.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	export := analytics.BuildExport(user.Email, tasks, s.now())
	s.logger.Infow("Tasks exported", "user_id", userID, "count", len(tasks))
	return &export, nil
}

func recommendationInput(tasks []*entities.Task, now time.Time) ports.RecommendationInput {
	in := ports.RecommendationInput{
		TotalTasks:   len(tasks),
		OverdueTasks: analytics.CountOverdue(tasks, now),
		Categories:   make(map[string]int),
		AvgPriority:  analytics.Round2(analytics.AvgPriority(tasks)),
		AvgImpact:    analytics.Round2(analytics.AvgImpact(tasks)),
	}
	for _, t := range tasks {
		in.Categories[t.Category]++
		switch t.Status {
		case entities.TaskStatusCompleted:
			in.CompletedTasks++
		case entities.TaskStatusPending:
			in.PendingTasks++
		}
	}
	return in
}
