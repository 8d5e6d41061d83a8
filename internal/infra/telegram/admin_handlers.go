package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/team"
	"deal_staleness_monitor/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterAdminHandlers registers the staleness commands. Senders are resolved
// to team members by Telegram ID; the run itself is gated by AdminService.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, analytics *app.AnalyticsService, baseLogger *logrus.Entry) {
	b.Handle("/staleness_run", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/staleness_run",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		u, err := adminService.UserByTelegramID(ctx, c.Sender().ID)
		if err != nil {
			return c.Send(replyForLookupError(handlerLogger, err))
		}
		handlerLogger = handlerLogger.WithFields(logrus.Fields{"user_id": u.ID, "team_id": u.TeamID})

		summary, err := adminService.TriggerStalenessCheck(ctx, u.ID)
		if err != nil {
			logWithError := handlerLogger.WithError(err)
			switch {
			case errors.Is(err, app.ErrNotAuthorized):
				logWithError.Warn("Unauthorized access attempt")
				return c.Send("Error: only active admins and managers can run staleness checks.")
			case errors.Is(err, scheduler.ErrRunInProgress):
				logWithError.Info("Run already in progress")
				return c.Send("A staleness check is already running for your team. Try again shortly.")
			default:
				logWithError.Error("Manual staleness check failed")
				return c.Send("Staleness check failed. Please retry in a few minutes.")
			}
		}

		handlerLogger.WithFields(logrus.Fields{
			"processed":    summary.TotalProcessed,
			"transitioned": summary.TotalTransitioned,
		}).Info("Manual staleness check finished")
		return c.Send(formatSummary(summary))
	})

	b.Handle("/pipeline_health", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/pipeline_health",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		u, err := adminService.UserByTelegramID(ctx, c.Sender().ID)
		if err != nil {
			return c.Send(replyForLookupError(handlerLogger, err))
		}
		if !u.IsActive {
			return c.Send("Your account is inactive. Contact your team admin.")
		}

		health, err := analytics.PipelineHealth(ctx, u.TeamID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to compute pipeline health")
			return c.Send("Could not load pipeline health. Please try again later.")
		}
		return c.Send(formatHealth(health))
	})
}

func replyForLookupError(logger *logrus.Entry, err error) string {
	if errors.Is(err, app.ErrNotAuthorized) || errors.Is(err, team.ErrUserNotFound) {
		logger.Info("Sender is not a known team member")
		return "Your Telegram account is not linked to a team member."
	}
	logger.WithError(err).Error("Error resolving sender")
	return "An error occurred while checking your account. Please try again later."
}

func formatSummary(s app.RunSummary) string {
	var b strings.Builder
	b.WriteString("Staleness check complete.\n")
	fmt.Fprintf(&b, "Deals processed: %d\n", s.TotalProcessed)
	fmt.Fprintf(&b, "Status changes: %d", s.TotalTransitioned)
	if s.TotalFailed > 0 {
		fmt.Fprintf(&b, "\nFailed: %d", s.TotalFailed)
	}
	return b.String()
}

func formatHealth(h *app.PipelineHealth) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline health: %d/100\n", h.HealthScore)
	fmt.Fprintf(&b, "Active deals: %d (%.2f)\n", h.TotalDeals, h.TotalRevenue)
	for _, st := range deal.AllStatuses {
		bucket := h.ByStatus[st]
		fmt.Fprintf(&b, "%s: %d\n", st, bucket.Count)
	}
	fmt.Fprintf(&b, "At risk: %d deals (%.2f)", h.AtRiskDeals, h.AtRiskRevenue)
	return b.String()
}
