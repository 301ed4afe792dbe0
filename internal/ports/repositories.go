package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/taskmaster/pulse/internal/domain/entities"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
	Update(ctx context.Context, user *entities.User) error
	UpdateStats(ctx context.Context, id uuid.UUID, stats entities.UserStats) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TaskRepository defines the interface for task data operations. Every
// lookup is scoped to the owning user; a task owned by someone else is
// reported as not found.
type TaskRepository interface {
	Create(ctx context.Context, task *entities.Task) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error)
	GetByIDForUpdate(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error)
	Update(ctx context.Context, task *entities.Task) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, filter TaskFilter) ([]*entities.Task, error)
	Count(ctx context.Context, filter TaskFilter) (int64, error)
	ListByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*entities.Task, error)
	// Snapshot loads the full task set of a user for aggregation.
	Snapshot(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error)
	SaveInsights(ctx context.Context, userID, id uuid.UUID, insights *entities.Insights) error
}

// HistoryRepository is append-only.
type HistoryRepository interface {
	Append(ctx context.Context, entries ...*entities.TaskHistory) error
	ListByTask(ctx context.Context, userID, taskID uuid.UUID) ([]*entities.TaskHistory, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.TaskHistory, error)
}

// AuthRepository defines the interface for authentication operations
type AuthRepository interface {
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllUserTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpiredTokens(ctx context.Context) error
}

// ErrCacheMiss is returned by CacheRepository.Get when the key is absent.
var ErrCacheMiss = errors.New("cache: key not found")

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// Repositories groups the stores bound to one unit of work.
type Repositories struct {
	Users   UserRepository
	Tasks   TaskRepository
	History HistoryRepository
	Auth    AuthRepository
}

// Transactor runs fn with repositories sharing a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(repos Repositories) error) error
}

// TaskFilter selects a page of one user's tasks.
type TaskFilter struct {
	UserID    uuid.UUID
	Status    *entities.TaskStatus
	Priority  *int
	Category  *string
	DueBefore *time.Time
	DueAfter  *time.Time
	Completed *bool
	Search    *string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// Sortable task columns
var TaskSortFields = []string{
	"priority", "impact", "complexity", "due_date", "created_at", "updated_at", "title", "status", "progress",
}

// RefreshToken represents a refresh token record
type RefreshToken struct {
	ID        int64      `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"token_hash" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at" db:"revoked_at"`
}

// IsExpired checks if the refresh token is expired
func (rt *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(rt.ExpiresAt)
}

// IsRevoked checks if the refresh token is revoked
func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

// IsValid checks if the refresh token is valid
func (rt *RefreshToken) IsValid(now time.Time) bool {
	return !rt.IsExpired(now) && !rt.IsRevoked()
}
