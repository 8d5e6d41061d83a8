package app

import (
	"context"
	"errors"
	"fmt"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/rule"

	"github.com/google/uuid"
)

// RuleMatcher resolves the active rule for a team's pipeline stage.
type RuleMatcher struct {
	rules rule.Repository
}

func NewRuleMatcher(rules rule.Repository) *RuleMatcher {
	return &RuleMatcher{rules: rules}
}

// Match tries the exact pipeline first, then the default pipeline. A nil rule
// with a nil error means no threshold is configured for the stage.
func (m *RuleMatcher) Match(ctx context.Context, teamID uuid.UUID, stage, pipeline string) (*rule.Rule, error) {
	if pipeline == "" {
		pipeline = deal.DefaultPipeline
	}

	r, err := m.find(ctx, teamID, pipeline, stage)
	if err != nil || r != nil || pipeline == deal.DefaultPipeline {
		return r, err
	}
	return m.find(ctx, teamID, deal.DefaultPipeline, stage)
}

func (m *RuleMatcher) find(ctx context.Context, teamID uuid.UUID, pipeline, stage string) (*rule.Rule, error) {
	r, err := m.rules.FindActive(ctx, teamID, pipeline, stage)
	if errors.Is(err, rule.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rule for pipeline %q stage %q: %w", pipeline, stage, err)
	}
	return r, nil
}
