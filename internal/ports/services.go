package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskmaster/pulse/internal/domain/analytics"
	"github.com/taskmaster/pulse/internal/domain/entities"
)

// AuthService interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ValidateToken(tokenString string) (*Claims, error)
}

// UserService interface for account management operations
type UserService interface {
	CreateUser(ctx context.Context, req RegisterRequest) (*entities.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*entities.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*entities.User, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, req UpdatePreferencesRequest) (*entities.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	ReconcileStats(ctx context.Context, userID uuid.UUID) (*StatsReconciliation, error)
	ReconcileAll(ctx context.Context) ([]*StatsReconciliation, error)
}

// TaskService interface for task management operations. Every operation is
// scoped to the calling user.
type TaskService interface {
	CreateTask(ctx context.Context, userID uuid.UUID, req CreateTaskRequest) (*entities.Task, error)
	BulkCreate(ctx context.Context, userID uuid.UUID, req BulkCreateRequest) ([]*entities.Task, error)
	GetTask(ctx context.Context, userID, id uuid.UUID) (*entities.Task, error)
	ListTasks(ctx context.Context, userID uuid.UUID, query ListTasksQuery) (*Page[*entities.Task], error)
	UpdateTask(ctx context.Context, userID, id uuid.UUID, req UpdateTaskRequest) (*entities.Task, error)
	DeleteTask(ctx context.Context, userID, id uuid.UUID) error
	BulkDelete(ctx context.Context, userID uuid.UUID, req BulkDeleteRequest) (int, error)
	UpdateStatus(ctx context.Context, userID, id uuid.UUID, status entities.TaskStatus) (*entities.Task, error)
	UpdateProgress(ctx context.Context, userID, id uuid.UUID, progress int) (*entities.Task, error)
	TasksByCategory(ctx context.Context, userID uuid.UUID, category string) ([]*entities.Task, error)
	TasksByPriority(ctx context.Context, userID uuid.UUID, priority int) ([]*entities.Task, error)
	OverdueTasks(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error)
	UpcomingTasks(ctx context.Context, userID uuid.UUID) ([]*entities.Task, error)
	History(ctx context.Context, userID, taskID uuid.UUID) ([]*entities.TaskHistory, error)
	Insights(ctx context.Context, userID, taskID uuid.UUID, refresh bool) (*entities.Insights, error)
}

// AnalyticsService builds the per-user reports.
type AnalyticsService interface {
	Dashboard(ctx context.Context, userID uuid.UUID) (*analytics.Dashboard, error)
	CompletionRate(ctx context.Context, userID uuid.UUID, period string) (*analytics.CompletionRateReport, error)
	CategoryBreakdown(ctx context.Context, userID uuid.UUID) (*analytics.CategoryBreakdown, error)
	ImpactAnalysis(ctx context.Context, userID uuid.UUID) (*analytics.ImpactAnalysis, error)
	PriorityDistribution(ctx context.Context, userID uuid.UUID) (*analytics.PriorityDistribution, error)
	Timeline(ctx context.Context, userID uuid.UUID) (*analytics.Timeline, error)
	Performance(ctx context.Context, userID uuid.UUID) (*analytics.PerformanceMetrics, error)
	Productivity(ctx context.Context, userID uuid.UUID) (*analytics.ProductivityReport, error)
	Risks(ctx context.Context, userID uuid.UUID) (*analytics.RiskAnalysis, error)
	OptimizationTips(ctx context.Context, userID uuid.UUID) (*analytics.OptimizationTips, error)
	Recommendations(ctx context.Context, userID uuid.UUID) (*entities.Recommendations, error)
	Export(ctx context.Context, userID uuid.UUID) (*analytics.Export, error)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// Enricher annotates tasks through an external text-completion service.
// Implementations never fail: they fall back to the documented defaults.
type Enricher interface {
	Enrich(ctx context.Context, description string) entities.Insights
	Recommend(ctx context.Context, summary RecommendationInput) entities.Recommendations
	State() string
}

// RecommendationInput summarizes a task set for the recommendation prompt.
type RecommendationInput struct {
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	PendingTasks   int            `json:"pending_tasks"`
	OverdueTasks   int            `json:"overdue_tasks"`
	Categories     map[string]int `json:"categories"`
	AvgPriority    float64        `json:"avg_priority"`
	AvgImpact      float64        `json:"avg_impact"`
}

// Request/Response Types

// Auth related types
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Name     string  `json:"name" validate:"required,max=100"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	User         *entities.User `json:"user"`
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// User related types
type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
}

type UpdatePreferencesRequest struct {
	Preferences map[string]interface{} `json:"preferences" validate:"required"`
}

// StatsReconciliation reports the stored stats against the history fold.
type StatsReconciliation struct {
	UserID   uuid.UUID          `json:"user_id"`
	Stored   entities.UserStats `json:"stored"`
	Replayed entities.UserStats `json:"replayed"`
	Repaired bool               `json:"repaired"`
}

// Task related types
type CreateTaskRequest struct {
	Title          string    `json:"title" validate:"required,min=1,max=200"`
	Description    string    `json:"description" validate:"max=1000"`
	Category       *string   `json:"category" validate:"omitempty,min=1,max=50"`
	Tags           []string  `json:"tags" validate:"omitempty,max=20,dive,min=1,max=30"`
	Priority       *int      `json:"priority" validate:"omitempty,min=1,max=5"`
	Impact         *int      `json:"impact" validate:"omitempty,min=1,max=10"`
	Complexity     *int      `json:"complexity" validate:"omitempty,min=1,max=5"`
	EstimatedHours *float64  `json:"estimated_hours" validate:"omitempty,gte=0.1,lte=1000"`
	DueDate        time.Time `json:"due_date" validate:"required"`
}

type UpdateTaskRequest struct {
	Title          *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string              `json:"description" validate:"omitempty,max=1000"`
	Category       *string              `json:"category" validate:"omitempty,min=1,max=50"`
	Tags           []string             `json:"tags" validate:"omitempty,max=20,dive,min=1,max=30"`
	Priority       *int                 `json:"priority" validate:"omitempty,min=1,max=5"`
	Impact         *int                 `json:"impact" validate:"omitempty,min=1,max=10"`
	Complexity     *int                 `json:"complexity" validate:"omitempty,min=1,max=5"`
	EstimatedHours *float64             `json:"estimated_hours" validate:"omitempty,gte=0.1,lte=1000"`
	DueDate        *time.Time           `json:"due_date"`
	Status         *entities.TaskStatus `json:"status" validate:"omitempty,oneof=pending in-progress completed blocked archived"`
	Progress       *int                 `json:"progress" validate:"omitempty,min=0,max=100"`
}

type UpdateStatusRequest struct {
	Status entities.TaskStatus `json:"status" validate:"required,oneof=pending in-progress completed blocked archived"`
}

type UpdateProgressRequest struct {
	Progress *int `json:"progress" validate:"required,min=0,max=100"`
}

type BulkCreateRequest struct {
	Tasks []CreateTaskRequest `json:"tasks" validate:"required,min=1,max=50,dive"`
}

type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"task_ids" validate:"required,min=1,max=100"`
}

// ListTasksQuery is the filter, sort and page of a task listing.
type ListTasksQuery struct {
	Status    *entities.TaskStatus `query:"status" validate:"omitempty,oneof=pending in-progress completed blocked archived"`
	Priority  *int                 `query:"priority" validate:"omitempty,min=1,max=5"`
	Category  *string              `query:"category" validate:"omitempty,max=50"`
	DueBefore *time.Time           `query:"due_before"`
	DueAfter  *time.Time           `query:"due_after"`
	Search    *string              `query:"search" validate:"omitempty,max=200"`
	SortBy    string               `query:"sort_by" validate:"omitempty,oneof=priority impact complexity due_date created_at updated_at title status progress"`
	SortOrder string               `query:"sort_order" validate:"omitempty,oneof=asc desc"`
	Page      int                  `query:"page" validate:"omitempty,min=1"`
	Limit     int                  `query:"limit" validate:"omitempty,min=1,max=100"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Fields  []entities.FieldError `json:"fields,omitempty"`
}
