package deal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence operations for deals. Every read filters on
// the lifecycle explicitly: "Active" methods never return deleted deals.
type Repository interface {
	ListActiveByTeam(ctx context.Context, teamID uuid.UUID) ([]*Deal, error)
	GetActive(ctx context.Context, teamID, dealID uuid.UUID) (*Deal, error)

	// Engine writes.
	ClearSnooze(ctx context.Context, dealID uuid.UUID) error
	UpdateStatus(ctx context.Context, dealID uuid.UUID, status Status, daysStale int) error
	UpdateDaysStale(ctx context.Context, dealID uuid.UUID, daysStale int) error

	// Snooze management and soft delete.
	Snooze(ctx context.Context, dealID uuid.UUID, until time.Time, reason string) error
	SoftDelete(ctx context.Context, dealID uuid.UUID) error
}
