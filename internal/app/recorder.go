package app

import (
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
)

// Recorder receives engine and dispatcher events for metrics.
type Recorder interface {
	RunFinished(source string, summary RunSummary, duration time.Duration, err error)
	DealTransitioned(from, to deal.Status)
	DealFailed()
	NotificationCreated(t notification.Type)
	NotificationSuppressed(t notification.Type)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RunFinished(string, RunSummary, time.Duration, error) {}
func (NopRecorder) DealTransitioned(deal.Status, deal.Status)           {}
func (NopRecorder) DealFailed()                                         {}
func (NopRecorder) NotificationCreated(notification.Type)               {}
func (NopRecorder) NotificationSuppressed(notification.Type)            {}
