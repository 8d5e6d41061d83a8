package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/infra/httpapi/respond"
	"deal_staleness_monitor/internal/infra/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunStalenessCheck triggers a check for the caller's team.
func (h *Handler) RunStalenessCheck(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	summary, err := h.admin.TriggerStalenessCheck(r.Context(), u.ID)
	switch {
	case err == nil:
		respond.WriteData(w, http.StatusOK, summary)
	case errors.Is(err, app.ErrNotAuthorized):
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "admin or manager role required")
	case errors.Is(err, scheduler.ErrRunInProgress):
		respond.WriteError(w, http.StatusConflict, "RUN_IN_PROGRESS", "a staleness check is already running for this team")
	default:
		h.logger.WithFields(logrus.Fields{"user_id": u.ID, "team_id": u.TeamID, "error": err}).Error("Manual staleness check failed")
		respond.WriteError(w, http.StatusInternalServerError, "STALENESS_RUN_FAILED",
			"Staleness check failed. Please retry in a few minutes.")
	}
}

// --------------------------------------------------------------------------
// Rules
// --------------------------------------------------------------------------

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	q := r.URL.Query()
	filter := rule.ListFilter{Pipeline: q.Get("pipeline"), Stage: q.Get("stage")}
	if v := q.Get("isActive"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_QUERY", "isActive must be true or false")
			return
		}
		filter.Active = &active
	}

	rules, err := h.rules.List(r.Context(), u.TeamID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rl := range rules {
		out = append(out, toRuleResponse(rl))
	}
	respond.WriteData(w, http.StatusOK, out)
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	ruleID, ok := pathUUID(w, r, "ruleID")
	if !ok {
		return
	}
	rl, err := h.rules.Get(r.Context(), u.TeamID, ruleID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, toRuleResponse(rl))
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	var in app.CreateRuleInput
	if !decodeBody(w, r, &in) {
		return
	}
	rl, err := h.rules.Create(r.Context(), u.TeamID, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusCreated, toRuleResponse(rl))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	ruleID, ok := pathUUID(w, r, "ruleID")
	if !ok {
		return
	}
	var in app.UpdateRuleInput
	if !decodeBody(w, r, &in) {
		return
	}
	rl, err := h.rules.Update(r.Context(), u.TeamID, ruleID, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, toRuleResponse(rl))
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	ruleID, ok := pathUUID(w, r, "ruleID")
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), u.TeamID, ruleID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Deals
// --------------------------------------------------------------------------

type snoozeRequest struct {
	SnoozedUntil time.Time `json:"snoozedUntil"`
	Reason       string    `json:"reason"`
}

func (h *Handler) SnoozeDeal(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	dealID, ok := pathUUID(w, r, "dealID")
	if !ok {
		return
	}
	var in snoozeRequest
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := h.deals.Snooze(r.Context(), u.TeamID, dealID, in.SnoozedUntil, in.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, toDealResponse(d))
}

func (h *Handler) UnsnoozeDeal(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	dealID, ok := pathUUID(w, r, "dealID")
	if !ok {
		return
	}
	d, err := h.deals.Unsnooze(r.Context(), u.TeamID, dealID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, toDealResponse(d))
}

func (h *Handler) DeleteDeal(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	dealID, ok := pathUUID(w, r, "dealID")
	if !ok {
		return
	}
	if err := h.deals.Delete(r.Context(), u.TeamID, dealID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	q := r.URL.Query()
	query := app.NotificationQuery{
		Status: notification.DeliveryStatus(q.Get("status")),
		Type:   notification.Type(q.Get("type")),
	}
	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		query.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil {
		query.Limit = l
	}

	page, err := h.notifications.List(r.Context(), u.TeamID, query)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]notificationResponse, 0, len(page.Notifications))
	for _, v := range page.Notifications {
		out = append(out, toNotificationResponse(v))
	}
	respond.WriteData(w, http.StatusOK, map[string]interface{}{
		"notifications": out,
		"pagination":    page.Pagination,
	})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	id, ok := pathUUID(w, r, "notificationID")
	if !ok {
		return
	}
	if err := h.notifications.MarkAsRead(r.Context(), id, u.ID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, nil)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	n, err := h.notifications.MarkAllAsRead(r.Context(), u.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, map[string]int64{"updated": n})
}

// --------------------------------------------------------------------------
// Analytics
// --------------------------------------------------------------------------

func (h *Handler) PipelineHealth(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	health, err := h.analytics.PipelineHealth(r.Context(), u.TeamID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, health)
}

func (h *Handler) StageBreakdown(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	stages, err := h.analytics.StageBreakdown(r.Context(), u.TeamID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, stages)
}

func (h *Handler) RepStats(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	reps, err := h.analytics.RepStats(r.Context(), u.TeamID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respond.WriteData(w, http.StatusOK, reps)
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, rule.ErrInvalidThresholds):
		respond.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, rule.ErrDuplicateActive):
		respond.WriteError(w, http.StatusConflict, "DUPLICATE_RULE", err.Error())
	case errors.Is(err, rule.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "RULE_NOT_FOUND", "Rule not found")
	case errors.Is(err, deal.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "DEAL_NOT_FOUND", "Deal not found")
	case errors.Is(err, notification.ErrNotFound):
		respond.WriteError(w, http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "Notification not found")
	case errors.Is(err, app.ErrNotAuthorized):
		respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		h.logger.WithError(err).Error("Request failed")
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", param+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", err.Error())
		return false
	}
	return true
}
