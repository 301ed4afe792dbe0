package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/pulse/internal/adapters/repository"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/config"
	"github.com/taskmaster/pulse/internal/infrastructure/database"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
	"github.com/taskmaster/pulse/migrations"
)

var start = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *repository.Store
	repos     ports.Repositories
	users     *UserService
	auth      *AuthService
	tasks     *TaskService
	analytics *AnalyticsService
	enricher  *stubEnricher
	cache     *memoryCache
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewSQLiteMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunSQLite(context.Background(), db.DB.DB))

	f := &fixture{
		store:    repository.NewStore(db),
		enricher: &stubEnricher{},
		cache:    newMemoryCache(),
		now:      start,
	}
	f.repos = f.store.Repositories()
	clock := func() time.Time { return f.now }
	log := logger.NewNop()

	f.users = NewUserService(f.repos, f.store, log)
	f.users.now = clock
	f.auth = NewAuthService(f.users, f.repos, config.JWTConfig{
		Secret:           "test-secret",
		ExpiresIn:        time.Hour,
		RefreshExpiresIn: 720 * time.Hour,
		Issuer:           "taskpulse-test",
	}, log)
	f.auth.now = clock
	f.analytics = NewAnalyticsService(f.repos, f.cache, f.enricher, time.Minute, log, nil)
	f.analytics.now = clock
	f.tasks = NewTaskService(f.repos, f.store, f.enricher, f.analytics, log)
	f.tasks.now = clock

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) createUser(t *testing.T, email string) *entities.User {
	t.Helper()

	user, err := f.users.CreateUser(context.Background(), ports.RegisterRequest{
		Email:    email,
		Name:     "Test User",
		Password: "secret123",
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) createTask(t *testing.T, userID uuid.UUID, title string, mutate func(*ports.CreateTaskRequest)) *entities.Task {
	t.Helper()

	req := ports.CreateTaskRequest{Title: title, DueDate: f.now.Add(72 * time.Hour)}
	if mutate != nil {
		mutate(&req)
	}
	task, err := f.tasks.CreateTask(context.Background(), userID, req)
	require.NoError(t, err)
	return task
}

func (f *fixture) stats(t *testing.T, userID uuid.UUID) entities.UserStats {
	t.Helper()

	user, err := f.repos.Users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return user.Stats
}

func (f *fixture) history(t *testing.T, userID, taskID uuid.UUID) []entities.HistoryAction {
	t.Helper()

	entries, err := f.tasks.History(context.Background(), userID, taskID)
	require.NoError(t, err)
	actions := make([]entities.HistoryAction, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// stubEnricher stands in for the completion service.
type stubEnricher struct {
	mu             sync.Mutex
	enrichCalls    int
	recommendCalls int
}

func (e *stubEnricher) Enrich(_ context.Context, description string) entities.Insights {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enrichCalls++

	insights := entities.DefaultInsights()
	insights.Source = entities.InsightSourceModel
	insights.EstimatedHours = float64(len(description))
	insights.GeneratedAt = start
	return insights
}

func (e *stubEnricher) Recommend(context.Context, ports.RecommendationInput) entities.Recommendations {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recommendCalls++

	recs := entities.DefaultRecommendations()
	recs.Source = entities.InsightSourceModel
	return recs
}

func (e *stubEnricher) State() string { return "closed" }

// memoryCache is an in-process CacheRepository.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	data, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return ports.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// DeletePattern supports a single trailing wildcard.
func (c *memoryCache) DeletePattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok, nil
}

func (c *memoryCache) Ping(context.Context) error { return nil }

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

var errDiskFull = errors.New("disk full")

// failingHistory rejects every append.
type failingHistory struct {
	ports.HistoryRepository
}

func (failingHistory) Append(context.Context, ...*entities.TaskHistory) error {
	return entities.StorageError("append task history", errDiskFull)
}

// failingHistoryTx runs transactions whose history writes fail.
type failingHistoryTx struct {
	inner ports.Transactor
}

func (f failingHistoryTx) WithinTransaction(ctx context.Context, fn func(repos ports.Repositories) error) error {
	return f.inner.WithinTransaction(ctx, func(repos ports.Repositories) error {
		repos.History = failingHistory{repos.History}
		return fn(repos)
	})
}
