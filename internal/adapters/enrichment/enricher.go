// Package enrichment annotates tasks through a text-completion model. The
// adapter never fails its caller: every error path yields the documented
// default insights or recommendations.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/config"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

// Outcomes recorded on enrichment_requests_total.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeMalformed = "malformed"
	OutcomeOpen      = "circuit_open"
	OutcomeSkipped   = "skipped"
)

// StateDisabled is reported when enrichment is switched off.
const StateDisabled = "disabled"

var errEmptyResponse = errors.New("empty model response")

// Settings bounds each call and configures the breaker.
type Settings struct {
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Enricher implements ports.Enricher over an eino chat model.
type Enricher struct {
	chat     model.BaseChatModel
	breaker  *gobreaker.CircuitBreaker[*schema.Message]
	timeout  time.Duration
	log      *logger.Logger
	requests *prometheus.CounterVec
	now      func() time.Time
}

var _ ports.Enricher = (*Enricher)(nil)

// New wraps chat with a timeout and a circuit breaker. reg may be nil.
func New(chat model.BaseChatModel, s Settings, log *logger.Logger, reg prometheus.Registerer) *Enricher {
	if s.Timeout <= 0 || s.Timeout > config.MaxAITimeout {
		s.Timeout = config.MaxAITimeout
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	log = log.WithComponent("enrichment")

	e := &Enricher{
		chat:    chat,
		timeout: s.Timeout,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrichment_requests_total",
				Help: "Enrichment calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(e.requests)
	}

	e.breaker = gobreaker.NewCircuitBreaker[*schema.Message](gobreaker.Settings{
		Name:        "enrichment",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return e
}

// NewFromConfig builds the enricher described by cfg, or a disabled one.
func NewFromConfig(ctx context.Context, cfg config.AIConfig, log *logger.Logger, reg prometheus.Registerer) (ports.Enricher, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}

	chat, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return New(chat, Settings{
		Timeout:          cfg.Timeout,
		FailureThreshold: cfg.FailureThreshold,
		OpenTimeout:      cfg.OpenTimeout,
	}, log, reg), nil
}

// State reports the breaker state: closed, half-open or open.
func (e *Enricher) State() string {
	return e.breaker.State().String()
}

// Enrich returns insights for a task description.
func (e *Enricher) Enrich(ctx context.Context, description string) entities.Insights {
	fallback := entities.DefaultInsights()
	fallback.GeneratedAt = e.now()

	if strings.TrimSpace(description) == "" {
		e.requests.WithLabelValues("insights", OutcomeSkipped).Inc()
		return fallback
	}

	var insights entities.Insights
	if !e.complete(ctx, "insights", insightsPrompt(description), &insights) {
		return fallback
	}

	insights.Normalize()
	insights.Source = entities.InsightSourceModel
	insights.GeneratedAt = e.now()
	return insights
}

// Recommend returns advisory recommendations for a task set summary.
func (e *Enricher) Recommend(ctx context.Context, summary ports.RecommendationInput) entities.Recommendations {
	if summary.TotalTasks == 0 {
		e.requests.WithLabelValues("recommendations", OutcomeSkipped).Inc()
		return entities.DefaultRecommendations()
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		e.log.WithError(err).Warnw("encode recommendation summary, using defaults")
		return entities.DefaultRecommendations()
	}

	var recs entities.Recommendations
	if !e.complete(ctx, "recommendations", recommendationsPrompt(string(payload)), &recs) {
		return entities.DefaultRecommendations()
	}

	recs.Normalize()
	recs.Source = entities.InsightSourceModel
	return recs
}

// complete runs one bounded model call and decodes its JSON answer into dest.
// It reports false, after logging the cause, whenever dest is unusable.
func (e *Enricher) complete(ctx context.Context, op, prompt string, dest interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.breaker.Execute(func() (*schema.Message, error) {
		msg, err := e.chat.Generate(ctx, []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(prompt),
		})
		if err != nil {
			return nil, err
		}
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			return nil, errEmptyResponse
		}
		return msg, nil
	})
	if err != nil {
		outcome := OutcomeError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = OutcomeOpen
		case errors.Is(err, context.DeadlineExceeded):
			outcome = OutcomeTimeout
		}
		e.requests.WithLabelValues(op, outcome).Inc()
		e.log.WithError(err).Warnw("enrichment unavailable, using defaults", "operation", op, "outcome", outcome)
		return false
	}

	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), dest); err != nil {
		e.requests.WithLabelValues(op, OutcomeMalformed).Inc()
		e.log.WithError(err).Warnw("malformed enrichment response, using defaults", "operation", op)
		return false
	}

	e.requests.WithLabelValues(op, OutcomeSuccess).Inc()
	return true
}

// extractJSON trims markdown fences and any prose around the outermost object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return content
	}
	return content[start : end+1]
}

// Disabled is the enricher used when ai.enabled is false.
type Disabled struct{}

var _ ports.Enricher = Disabled{}

func (Disabled) Enrich(context.Context, string) entities.Insights {
	insights := entities.DefaultInsights()
	insights.GeneratedAt = time.Now().UTC()
	return insights
}

func (Disabled) Recommend(context.Context, ports.RecommendationInput) entities.Recommendations {
	return entities.DefaultRecommendations()
}

func (Disabled) State() string { return StateDisabled }
