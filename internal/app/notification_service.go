// internal/app/notification_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/domain/notification"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination describes one page of a list.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NotificationPage is one page of a team's notifications.
type NotificationPage struct {
	Notifications []*notification.View `json:"notifications"`
	Pagination    Pagination           `json:"pagination"`
}

// NotificationQuery filters the notification list.
type NotificationQuery struct {
	Page   int
	Limit  int
	Status notification.DeliveryStatus
	Type   notification.Type
}

// NotificationService serves the notification inbox. Records are created only
// by the dispatcher.
type NotificationService struct {
	notifications notification.Repository
	now           func() time.Time
}

func NewNotificationService(nr notification.Repository) *NotificationService {
	return &NotificationService{notifications: nr, now: time.Now}
}

func (s *NotificationService) List(ctx context.Context, teamID uuid.UUID, q NotificationQuery) (*NotificationPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := s.notifications.ListByTeam(ctx, teamID, notification.ListFilter{
		Status: q.Status,
		Type:   q.Type,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return &NotificationPage{
		Notifications: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// MarkAsRead marks one of the user's notifications delivered and opened.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, userID, s.now())
}

// MarkAllAsRead marks every pending notification of the user.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID, s.now())
}
