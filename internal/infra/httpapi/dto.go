package httpapi

import (
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/rule"

	"github.com/google/uuid"
)

type ruleResponse struct {
	ID              uuid.UUID `json:"id"`
	Pipeline        string    `json:"pipeline"`
	Stage           string    `json:"stage"`
	WarningDays     int       `json:"warningDays"`
	StaleDays       int       `json:"staleDays"`
	CriticalDays    int       `json:"criticalDays"`
	SuggestedAction string    `json:"suggestedAction,omitempty"`
	NotifyChannels  []string  `json:"notifyChannels"`
	MinDealAmount   float64   `json:"minDealAmount"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toRuleResponse(r *rule.Rule) ruleResponse {
	return ruleResponse{
		ID:              r.ID,
		Pipeline:        r.Pipeline,
		Stage:           r.Stage,
		WarningDays:     r.Thresholds.WarningDays,
		StaleDays:       r.Thresholds.StaleDays,
		CriticalDays:    r.Thresholds.CriticalDays,
		SuggestedAction: r.SuggestedAction,
		NotifyChannels:  r.NotifyChannels,
		MinDealAmount:   r.MinDealAmount,
		IsActive:        r.IsActive(),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type dealResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	OwnerID        *uuid.UUID `json:"ownerId"`
	Stage          string     `json:"stage"`
	Pipeline       string     `json:"pipeline"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	Status         string     `json:"stalenessStatus"`
	DaysStale      int        `json:"daysStale"`
	SnoozedUntil   *time.Time `json:"snoozedUntil"`
	SnoozeReason   *string    `json:"snoozeReason"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func toDealResponse(d *deal.Deal) dealResponse {
	resp := dealResponse{
		ID:             d.ID,
		Name:           d.Name,
		Stage:          d.Stage,
		Pipeline:       d.PipelineOrDefault(),
		Amount:         d.Amount,
		Currency:       d.Currency,
		LastActivityAt: d.LastActivityAt,
		Status:         d.Status.String(),
		DaysStale:      d.DaysStale,
		SnoozedUntil:   d.SnoozedUntil,
		SnoozeReason:   d.SnoozeReason,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.OwnerID.Valid {
		id := d.OwnerID.UUID
		resp.OwnerID = &id
	}
	return resp
}

type notificationResponse struct {
	ID              uuid.UUID  `json:"id"`
	DealID          uuid.UUID  `json:"dealId"`
	DealName        string     `json:"dealName"`
	DealStage       string     `json:"dealStage"`
	UserID          uuid.UUID  `json:"userId"`
	UserName        string     `json:"userName"`
	UserEmail       string     `json:"userEmail"`
	Type            string     `json:"type"`
	Channel         string     `json:"channel"`
	Status          string     `json:"status"`
	Message         string     `json:"message"`
	SuggestedAction string     `json:"suggestedAction,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	OpenedAt        *time.Time `json:"openedAt"`
}

func toNotificationResponse(v *notification.View) notificationResponse {
	return notificationResponse{
		ID:              v.ID,
		DealID:          v.DealID,
		DealName:        v.DealName,
		DealStage:       v.DealStage,
		UserID:          v.UserID,
		UserName:        v.UserName,
		UserEmail:       v.UserEmail,
		Type:            string(v.Type),
		Channel:         v.Channel,
		Status:          string(v.Status),
		Message:         v.Message,
		SuggestedAction: v.SuggestedAction,
		CreatedAt:       v.CreatedAt,
		OpenedAt:        v.OpenedAt,
	}
}
