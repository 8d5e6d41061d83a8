package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deal_staleness_monitor/internal/domain/deal"

	"github.com/google/uuid"
)

// DealService covers the deal mutations that interact with staleness:
// snoozing and soft deletion.
type DealService struct {
	deals deal.Repository
	now   func() time.Time
}

func NewDealService(deals deal.Repository) *DealService {
	return &DealService{deals: deals, now: time.Now}
}

// Snooze exempts the deal from evaluation until the given time and resets its
// status to healthy.
func (s *DealService) Snooze(ctx context.Context, teamID, dealID uuid.UUID, until time.Time, reason string) (*deal.Deal, error) {
	if !until.After(s.now()) {
		return nil, fmt.Errorf("%w: snoozedUntil must be in the future", ErrInvalidInput)
	}
	if _, err := s.deals.GetActive(ctx, teamID, dealID); err != nil {
		return nil, err
	}
	if err := s.deals.Snooze(ctx, dealID, until, strings.TrimSpace(reason)); err != nil {
		return nil, fmt.Errorf("failed to snooze deal: %w", err)
	}
	return s.deals.GetActive(ctx, teamID, dealID)
}

func (s *DealService) Unsnooze(ctx context.Context, teamID, dealID uuid.UUID) (*deal.Deal, error) {
	if _, err := s.deals.GetActive(ctx, teamID, dealID); err != nil {
		return nil, err
	}
	if err := s.deals.ClearSnooze(ctx, dealID); err != nil {
		return nil, fmt.Errorf("failed to unsnooze deal: %w", err)
	}
	return s.deals.GetActive(ctx, teamID, dealID)
}

// Delete soft-deletes the deal; the engine ignores it from then on.
func (s *DealService) Delete(ctx context.Context, teamID, dealID uuid.UUID) error {
	if _, err := s.deals.GetActive(ctx, teamID, dealID); err != nil {
		return err
	}
	return s.deals.SoftDelete(ctx, dealID)
}
