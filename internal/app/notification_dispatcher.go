package app

import (
	"context"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultDedupeWindow suppresses repeats for the same deal, user and type.
const DefaultDedupeWindow = 24 * time.Hour

// Notifier dispatches notifications for a status transition.
type Notifier interface {
	Notify(ctx context.Context, d *deal.Deal, previous, next deal.Status, r *rule.Rule, daysInactive int) (int, error)
}

// NotificationDispatcher creates deduplicated delivery-intent records.
type NotificationDispatcher struct {
	notifications notification.Repository
	users         team.UserRepository
	recorder      Recorder
	logger        *logrus.Entry
	dedupeWindow  time.Duration
	locks         *keyedMutex
	now           func() time.Time
}

func NewNotificationDispatcher(
	nr notification.Repository,
	ur team.UserRepository,
	recorder Recorder,
	logger *logrus.Entry,
	dedupeWindow time.Duration,
) *NotificationDispatcher {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if dedupeWindow <= 0 {
		dedupeWindow = DefaultDedupeWindow
	}
	return &NotificationDispatcher{
		notifications: nr,
		users:         ur,
		recorder:      recorder,
		logger:        logger,
		dedupeWindow:  dedupeWindow,
		locks:         newKeyedMutex(),
		now:           time.Now,
	}
}

type recipient struct {
	userID uuid.UUID
	kind   notification.Type
}

// Notify returns the number of notifications created. Recipients are attempted
// independently; the first failure is returned after all have been tried.
func (d *NotificationDispatcher) Notify(ctx context.Context, dl *deal.Deal, previous, next deal.Status, r *rule.Rule, daysInactive int) (int, error) {
	recipients, err := d.recipients(ctx, dl, next)
	if err != nil {
		return 0, err
	}

	message := transitionMessage(dl.Name, daysInactive, previous, next)
	created := 0
	var firstErr error
	for _, rc := range recipients {
		ok, err := d.deliver(ctx, &notification.Notification{
			DealID:          dl.ID,
			UserID:          rc.userID,
			Type:            rc.kind,
			Channel:         r.PrimaryChannel(),
			Message:         message,
			SuggestedAction: r.SuggestedAction,
		})
		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"deal_id": dl.ID,
				"user_id": rc.userID,
				"type":    rc.kind,
			}).WithError(err).Error("Failed to create notification")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			created++
		}
	}
	return created, firstErr
}

func (d *NotificationDispatcher) recipients(ctx context.Context, dl *deal.Deal, next deal.Status) ([]recipient, error) {
	var out []recipient
	if dl.OwnerID.Valid {
		kind := notification.TypeNudge
		if next.IsEscalated() {
			kind = notification.TypeEscalation
		}
		out = append(out, recipient{userID: dl.OwnerID.UUID, kind: kind})
	}

	if !next.IsEscalated() {
		return out, nil
	}

	managers, err := d.users.ListActiveByRoles(ctx, dl.TeamID, team.EscalationRoles)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation recipients for team %s: %w", dl.TeamID, err)
	}
	seen := make(map[uuid.UUID]bool, len(managers))
	for _, m := range managers {
		if (dl.OwnerID.Valid && m.ID == dl.OwnerID.UUID) || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, recipient{userID: m.ID, kind: notification.TypeEscalation})
	}
	return out, nil
}

// deliver inserts n unless an equivalent notification exists inside the
// dedupe window. The check and insert hold the (deal, user, type) lock.
func (d *NotificationDispatcher) deliver(ctx context.Context, n *notification.Notification) (bool, error) {
	unlock := d.locks.Lock(n.DealID.String() + "|" + n.UserID.String() + "|" + string(n.Type))
	defer unlock()

	now := d.now()
	exists, err := d.notifications.ExistsSince(ctx, n.DealID, n.UserID, n.Type, now.Add(-d.dedupeWindow))
	if err != nil {
		return false, fmt.Errorf("failed to check recent notifications: %w", err)
	}
	if exists {
		d.recorder.NotificationSuppressed(n.Type)
		return false, nil
	}

	n.ID = uuid.New()
	n.Status = notification.StatusPending
	n.CreatedAt = now
	if err := d.notifications.Create(ctx, n); err != nil {
		return false, fmt.Errorf("failed to persist notification: %w", err)
	}
	d.recorder.NotificationCreated(n.Type)
	return true, nil
}

func transitionMessage(dealName string, days int, previous, next deal.Status) string {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("Deal \"%s\" has been inactive for %d %s (%s → %s)", dealName, days, unit, previous, next)
}
