package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskmaster/pulse/internal/application/validation"
	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/infrastructure/logger"
	"github.com/taskmaster/pulse/internal/ports"
)

// UserService handles user-related operations
type UserService struct {
	repos  ports.Repositories
	tx     ports.Transactor
	logger *logger.Logger
	now    func() time.Time
}

var _ ports.UserService = (*UserService)(nil)

// NewUserService creates a new user service
func NewUserService(repos ports.Repositories, tx ports.Transactor, logger *logger.Logger) *UserService {
	return &UserService{
		repos:  repos,
		tx:     tx,
		logger: logger.WithComponent("user_service"),
		now:    utcNow,
	}
}

// CreateUser creates a new active user with the default preferences
func (s *UserService) CreateUser(ctx context.Context, req ports.RegisterRequest) (*entities.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &entities.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     req.Username,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hashedPassword),
		IsActive:     true,
		Preferences:  entities.DefaultPreferences(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repos.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Infow("User created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// GetProfile retrieves a user by ID
func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*entities.User, error) {
	return s.repos.Users.GetByID(ctx, userID)
}

// UpdateProfile changes the display name and username. Unchanged values are
// not written.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req ports.UpdateProfileRequest) (*entities.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := false
	if req.Name != nil && *req.Name != user.Name {
		user.Name = *req.Name
		changed = true
	}
	if req.Username != nil && (user.Username == nil || *user.Username != *req.Username) {
		username := *req.Username
		user.Username = &username
		changed = true
	}
	if !changed {
		return user, nil
	}

	user.UpdatedAt = s.now()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Infow("Profile updated", "user_id", userID)
	return user, nil
}

// UpdatePreferences merges the given keys into the stored preferences
func (s *UserService) UpdatePreferences(ctx context.Context, userID uuid.UUID, req ports.UpdatePreferencesRequest) (*entities.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Preferences = user.Preferences.Merge(req.Preferences)
	user.UpdatedAt = s.now()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Infow("Preferences updated", "user_id", userID)
	return user, nil
}

// DeleteUser removes the account together with its tasks, history and tokens
func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.repos.Users.Delete(ctx, userID); err != nil {
		return err
	}

	s.logger.Infow("User deleted", "user_id", userID)
	return nil
}

// ReconcileStats rebuilds the user's stats from history and repairs the
// stored value when the two disagree.
func (s *UserService) ReconcileStats(ctx context.Context, userID uuid.UUID) (*ports.StatsReconciliation, error) {
	var result *ports.StatsReconciliation

	err := s.tx.WithinTransaction(ctx, func(repos ports.Repositories) error {
		user, err := repos.Users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		entries, err := repos.History.ListByUser(ctx, userID)
		if err != nil {
			return err
		}

		replayed, err := entities.ReplayStats(entries)
		if err != nil {
			return entities.WrapError(entities.ErrCodeStorage, "replay history", err)
		}

		result = &ports.StatsReconciliation{UserID: userID, Stored: user.Stats, Replayed: replayed}
		if replayed.Equal(user.Stats) {
			return nil
		}

		result.Repaired = true
		return repos.Users.UpdateStats(ctx, userID, replayed)
	})
	if err != nil {
		return nil, err
	}

	if result.Repaired {
		s.logger.Warnw("User stats repaired from history",
			"user_id", userID,
			"stored", result.Stored,
			"replayed", result.Replayed,
		)
	}
	return result, nil
}

// ReconcileAll runs ReconcileStats for every user.
func (s *UserService) ReconcileAll(ctx context.Context) ([]*ports.StatsReconciliation, error) {
	ids, err := s.repos.Users.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*ports.StatsReconciliation, 0, len(ids))
	for _, id := range ids {
		r, err := s.ReconcileStats(ctx, id)
		if err != nil {
			return results, fmt.Errorf("reconcile user %s: %w", id, err)
		}
		results = append(results, r)
	}
	return results, nil
}
