// Package services implements the application use cases on top of the
// repositories, the enrichment adapter and the report cache.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskmaster/pulse/internal/domain/entities"
	"github.com/taskmaster/pulse/internal/ports"
)

func utcNow() time.Time {
	return time.Now().UTC()
}

// reportInvalidator drops a user's cached reports after a mutation.
type reportInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, uuid.UUID) {}

// taskChange is one task mutation as seen by the stats reducer. before is nil
// for a creation and after is nil for a deletion.
type taskChange struct {
	before, after *entities.Task
}

// applyStats folds changes into the owner's stats inside the caller's
// transaction.
func applyStats(ctx context.Context, repos ports.Repositories, userID uuid.UUID, changes ...taskChange) error {
	user, err := repos.Users.GetByIDForUpdate(ctx, userID)
	if err != nil {
		return err
	}

	stats := user.Stats
	for _, c := range changes {
		stats = stats.Apply(c.before, c.after)
	}
	if stats.Equal(user.Stats) {
		return nil
	}
	return repos.Users.UpdateStats(ctx, userID, stats)
}
