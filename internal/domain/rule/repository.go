package rule

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List. A nil Active means active rules only.
type ListFilter struct {
	Pipeline string
	Stage    string
	Active   *bool
}

// Repository defines persistence operations for rules.
type Repository interface {
	// FindActive returns ErrNotFound when no active rule matches exactly.
	FindActive(ctx context.Context, teamID uuid.UUID, pipeline, stage string) (*Rule, error)
	GetByID(ctx context.Context, teamID, ruleID uuid.UUID) (*Rule, error)
	List(ctx context.Context, teamID uuid.UUID, filter ListFilter) ([]*Rule, error)
	Create(ctx context.Context, r *Rule) error
	Update(ctx context.Context, r *Rule) error
	Deactivate(ctx context.Context, teamID, ruleID uuid.UUID) error
}
