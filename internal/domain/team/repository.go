package team

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads teams.
type Repository interface {
	List(ctx context.Context) ([]*Team, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Team, error)
}

// UserRepository reads team members.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	// ListActiveByRoles returns active users of the team holding any of roles.
	ListActiveByRoles(ctx context.Context, teamID uuid.UUID, roles []Role) ([]*User, error)
	ListActive(ctx context.Context, teamID uuid.UUID) ([]*User, error)
}
