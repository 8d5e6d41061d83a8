// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a team's notification list.
type ListFilter struct {
	Status DeliveryStatus
	Type   Type
	Offset int
	Limit  int
}

// Repository defines persistence operations for notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// ExistsSince reports whether a notification for (dealID, userID, type)
	// was created at or after since.
	ExistsSince(ctx context.Context, dealID, userID uuid.UUID, t Type, since time.Time) (bool, error)

	// Team-scoped via the deal's team.
	ListByTeam(ctx context.Context, teamID uuid.UUID, filter ListFilter) ([]*View, int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}
