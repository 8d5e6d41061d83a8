package rule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("rule not found")
	ErrDuplicateActive   = errors.New("an active rule already exists for this pipeline and stage")
	ErrInvalidThresholds = errors.New("rule thresholds must satisfy warningDays < staleDays < criticalDays")
)

// DefaultChannel is used when a rule does not list notify channels.
const DefaultChannel = "slack"

// Thresholds are ascending day counts marking the start of each status band.
type Thresholds struct {
	WarningDays  int
	StaleDays    int
	CriticalDays int
}

// Validate checks the ordering invariant. The engine never calls it; rules are
// checked when written.
func (t Thresholds) Validate() error {
	if t.WarningDays < 0 {
		return fmt.Errorf("%w: warningDays must not be negative", ErrInvalidThresholds)
	}
	if t.WarningDays >= t.StaleDays {
		return fmt.Errorf("%w: staleDays must be greater than warningDays", ErrInvalidThresholds)
	}
	if t.StaleDays >= t.CriticalDays {
		return fmt.Errorf("%w: criticalDays must be greater than staleDays", ErrInvalidThresholds)
	}
	return nil
}

// Lifecycle replaces the is_active flag in domain code. At most one active
// rule exists per team, pipeline and stage.
type Lifecycle int

const (
	LifecycleActive Lifecycle = iota
	LifecycleInactive
)

// LifecycleFor maps the stored is_active flag to a Lifecycle.
func LifecycleFor(active bool) Lifecycle {
	if active {
		return LifecycleActive
	}
	return LifecycleInactive
}

// Rule is a per-team, per-pipeline, per-stage threshold configuration.
type Rule struct {
	ID              uuid.UUID
	TeamID          uuid.UUID
	Pipeline        string
	Stage           string
	Thresholds      Thresholds
	SuggestedAction string
	NotifyChannels  []string
	MinDealAmount   float64
	Lifecycle       Lifecycle
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the engine may match this rule.
func (r *Rule) IsActive() bool {
	return r.Lifecycle == LifecycleActive
}

// PrimaryChannel is the channel recorded on notifications created for this rule.
func (r *Rule) PrimaryChannel() string {
	if len(r.NotifyChannels) == 0 || r.NotifyChannels[0] == "" {
		return DefaultChannel
	}
	return r.NotifyChannels[0]
}
