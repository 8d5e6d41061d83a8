// internal/domain/notification/notification.go
package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

// Type distinguishes an owner nudge from an escalation.
type Type string

const (
	TypeNudge      Type = "nudge"
	TypeEscalation Type = "escalation"
)

// DeliveryStatus is updated by the external dispatcher or a "mark read" action.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
)

// Notification is a delivery-intent record.
type Notification struct {
	ID              uuid.UUID
	DealID          uuid.UUID
	UserID          uuid.UUID
	Type            Type
	Channel         string
	Status          DeliveryStatus
	Message         string
	SuggestedAction string
	CreatedAt       time.Time
	OpenedAt        *time.Time
}

// View is a notification joined with the deal and recipient it refers to.
type View struct {
	Notification
	DealName  string
	DealStage string
	UserName  string
	UserEmail string
}
