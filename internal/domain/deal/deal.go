package deal

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultPipeline is used when a deal or rule does not name a pipeline.
const DefaultPipeline = "default"

var ErrNotFound = errors.New("deal not found")

// Lifecycle replaces the is_active flag in domain code.
type Lifecycle int

const (
	LifecycleActive Lifecycle = iota
	LifecycleDeleted
)

// Deal is the unit of staleness tracking.
type Deal struct {
	ID             uuid.UUID
	TeamID         uuid.UUID
	Name           string
	OwnerID        uuid.NullUUID
	Stage          string
	Pipeline       string
	Amount         float64
	Currency       string
	LastActivityAt time.Time
	Status         Status
	DaysStale      int
	SnoozedUntil   *time.Time
	SnoozeReason   *string
	Lifecycle      Lifecycle
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PipelineOrDefault returns the pipeline used for rule matching.
func (d *Deal) PipelineOrDefault() string {
	if d.Pipeline == "" {
		return DefaultPipeline
	}
	return d.Pipeline
}

// IsActive reports whether the deal has not been soft-deleted.
func (d *Deal) IsActive() bool {
	return d.Lifecycle == LifecycleActive
}

// IsSnoozedAt reports whether the snooze is still in effect at now.
// A snooze ending exactly at now has elapsed.
func (d *Deal) IsSnoozedAt(now time.Time) bool {
	return d.SnoozedUntil != nil && d.SnoozedUntil.After(now)
}

// HasExpiredSnooze reports whether a snooze is set but no longer in effect.
func (d *Deal) HasExpiredSnooze(now time.Time) bool {
	return d.SnoozedUntil != nil && !d.SnoozedUntil.After(now)
}

// DaysSince returns whole days elapsed between from and now, truncated.
// Future timestamps count as zero.
func DaysSince(from, now time.Time) int {
	if from.IsZero() {
		return 0
	}
	elapsed := now.Sub(from)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}
