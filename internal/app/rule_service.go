package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/rule"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateRuleInput is the payload for a new rule.
type CreateRuleInput struct {
	Pipeline        string   `json:"pipeline" validate:"omitempty,max=100"`
	Stage           string   `json:"stage" validate:"required,max=100"`
	WarningDays     int      `json:"warningDays" validate:"gte=0,lte=3650"`
	StaleDays       int      `json:"staleDays" validate:"gte=1,lte=3650"`
	CriticalDays    int      `json:"criticalDays" validate:"gte=2,lte=3650"`
	SuggestedAction string   `json:"suggestedAction" validate:"max=500"`
	NotifyChannels  []string `json:"notifyChannels" validate:"omitempty,dive,oneof=slack email in_app"`
	MinDealAmount   float64  `json:"minDealAmount" validate:"gte=0"`
}

// UpdateRuleInput changes only the fields that are set.
type UpdateRuleInput struct {
	WarningDays     *int     `json:"warningDays" validate:"omitempty,gte=0,lte=3650"`
	StaleDays       *int     `json:"staleDays" validate:"omitempty,gte=1,lte=3650"`
	CriticalDays    *int     `json:"criticalDays" validate:"omitempty,gte=2,lte=3650"`
	SuggestedAction *string  `json:"suggestedAction" validate:"omitempty,max=500"`
	NotifyChannels  []string `json:"notifyChannels" validate:"omitempty,dive,oneof=slack email in_app"`
	MinDealAmount   *float64 `json:"minDealAmount" validate:"omitempty,gte=0"`
	IsActive        *bool    `json:"isActive"`
}

// RuleService manages threshold rules. The threshold ordering is enforced
// here so the engine can trust stored rules.
type RuleService struct {
	rules    rule.Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewRuleService(rules rule.Repository) *RuleService {
	return &RuleService{
		rules:    rules,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

func (s *RuleService) List(ctx context.Context, teamID uuid.UUID, filter rule.ListFilter) ([]*rule.Rule, error) {
	return s.rules.List(ctx, teamID, filter)
}

func (s *RuleService) Get(ctx context.Context, teamID, ruleID uuid.UUID) (*rule.Rule, error) {
	return s.rules.GetByID(ctx, teamID, ruleID)
}

func (s *RuleService) Create(ctx context.Context, teamID uuid.UUID, in CreateRuleInput) (*rule.Rule, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	thresholds := rule.Thresholds{
		WarningDays:  in.WarningDays,
		StaleDays:    in.StaleDays,
		CriticalDays: in.CriticalDays,
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	pipeline := in.Pipeline
	if pipeline == "" {
		pipeline = deal.DefaultPipeline
	}
	if err := s.ensureNoActive(ctx, teamID, pipeline, in.Stage); err != nil {
		return nil, err
	}

	channels := in.NotifyChannels
	if len(channels) == 0 {
		channels = []string{rule.DefaultChannel}
	}

	now := s.now()
	r := &rule.Rule{
		ID:              uuid.New(),
		TeamID:          teamID,
		Pipeline:        pipeline,
		Stage:           in.Stage,
		Thresholds:      thresholds,
		SuggestedAction: in.SuggestedAction,
		NotifyChannels:  channels,
		MinDealAmount:   in.MinDealAmount,
		Lifecycle:       rule.LifecycleActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.rules.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return r, nil
}

// Update merges in with the stored rule and re-checks the threshold ordering.
func (s *RuleService) Update(ctx context.Context, teamID, ruleID uuid.UUID, in UpdateRuleInput) (*rule.Rule, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	r, err := s.rules.GetByID(ctx, teamID, ruleID)
	if err != nil {
		return nil, err
	}

	merged := r.Thresholds
	if in.WarningDays != nil {
		merged.WarningDays = *in.WarningDays
	}
	if in.StaleDays != nil {
		merged.StaleDays = *in.StaleDays
	}
	if in.CriticalDays != nil {
		merged.CriticalDays = *in.CriticalDays
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	if in.IsActive != nil && *in.IsActive && !r.IsActive() {
		if err := s.ensureNoActive(ctx, teamID, r.Pipeline, r.Stage); err != nil {
			return nil, err
		}
	}

	r.Thresholds = merged
	if in.SuggestedAction != nil {
		r.SuggestedAction = *in.SuggestedAction
	}
	if in.NotifyChannels != nil {
		r.NotifyChannels = in.NotifyChannels
	}
	if in.MinDealAmount != nil {
		r.MinDealAmount = *in.MinDealAmount
	}
	if in.IsActive != nil {
		r.Lifecycle = rule.LifecycleFor(*in.IsActive)
	}
	r.UpdatedAt = s.now()

	if err := s.rules.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return r, nil
}

// Delete soft-deletes the rule; the matcher stops selecting it.
func (s *RuleService) Delete(ctx context.Context, teamID, ruleID uuid.UUID) error {
	if _, err := s.rules.GetByID(ctx, teamID, ruleID); err != nil {
		return err
	}
	return s.rules.Deactivate(ctx, teamID, ruleID)
}

func (s *RuleService) ensureNoActive(ctx context.Context, teamID uuid.UUID, pipeline, stage string) error {
	_, err := s.rules.FindActive(ctx, teamID, pipeline, stage)
	switch {
	case err == nil:
		return fmt.Errorf("%w: stage %q in pipeline %q", rule.ErrDuplicateActive, stage, pipeline)
	case errors.Is(err, rule.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("failed to check existing rule: %w", err)
	}
}
