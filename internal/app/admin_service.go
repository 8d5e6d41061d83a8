package app

import (
	"context"
	"errors"
	"fmt"

	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
)

// Custom application-level errors for admin service
var (
	ErrNotAuthorized = errors.New("performing user is not authorized to run staleness checks")
	ErrInvalidInput  = errors.New("invalid input")
)

// ManualTrigger runs a staleness check on demand and returns its summary.
type ManualTrigger interface {
	RunNow(ctx context.Context, teamID *uuid.UUID) (RunSummary, error)
}

// AdminService gates on-demand runs: the caller must be an active admin or
// manager, and the run is always scoped to the caller's own team.
type AdminService struct {
	users   team.UserRepository
	trigger ManualTrigger
}

func NewAdminService(ur team.UserRepository, trigger ManualTrigger) *AdminService {
	return &AdminService{
		users:   ur,
		trigger: trigger,
	}
}

// Authorize loads the performing user and checks the role.
func (s *AdminService) Authorize(ctx context.Context, performingUserID uuid.UUID) (*team.User, error) {
	u, err := s.users.GetByID(ctx, performingUserID)
	if err != nil {
		if errors.Is(err, team.ErrUserNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("failed to load performing user: %w", err)
	}
	if !u.IsActive || !u.Role.CanEscalate() {
		return nil, ErrNotAuthorized
	}
	return u, nil
}

// TriggerStalenessCheck runs a check for the performing user's team.
func (s *AdminService) TriggerStalenessCheck(ctx context.Context, performingUserID uuid.UUID) (RunSummary, error) {
	u, err := s.Authorize(ctx, performingUserID)
	if err != nil {
		return RunSummary{}, err
	}
	teamID := u.TeamID
	return s.trigger.RunNow(ctx, &teamID)
}

// UserByTelegramID resolves a bot sender to a team member.
func (s *AdminService) UserByTelegramID(ctx context.Context, telegramID int64) (*team.User, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, team.ErrUserNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("failed to get user by Telegram ID: %w", err)
	}
	return u, nil
}
