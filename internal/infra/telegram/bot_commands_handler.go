// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deal_staleness_monitor/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// NewBot builds a long-polling bot.
func NewBot(token string) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return b, nil
}

var botCommands = []telebot.Command{
	{Text: "start", Description: "Check whether your account is linked"},
	{Text: "help", Description: "List available commands"},
	{Text: "staleness_run", Description: "Run a staleness check for your team (admin/manager)"},
	{Text: "pipeline_health", Description: "Show your team's pipeline health"},
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	adminService *app.AdminService,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	if err := b.SetCommands(botCommands); err != nil {
		startHelpLogger.WithError(err).Warn("Failed to publish bot command list")
	}

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		u, err := adminService.UserByTelegramID(ctx, senderID)
		if err != nil {
			if errors.Is(err, app.ErrNotAuthorized) {
				logCtx.Info("User is unknown")
				return c.Send("Hi! This Telegram account is not linked to a team member. Ask your admin to add your Telegram ID.")
			}
			logCtx.WithError(err).Error("Error checking user for /start command")
			return c.Send("An error occurred while checking your account. Please try again later.")
		}
		if !u.IsActive {
			logCtx.WithField("user_id", u.ID).Info("User identified as inactive")
			return c.Send("Your account is inactive. Contact your team admin.")
		}
		logCtx.WithField("user_id", u.ID).Info("User identified")
		return c.Send(fmt.Sprintf("Hi, %s! Use /help for the list of commands.", u.Name))
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		u, err := adminService.UserByTelegramID(ctx, senderID)
		if err != nil {
			if errors.Is(err, app.ErrNotAuthorized) {
				return c.Send("No commands are available to you until your Telegram ID is linked to a team member.")
			}
			logCtx.WithError(err).Error("Error checking user for /help command")
			return c.Send("An error occurred while checking your account. Please try again later.")
		}
		return c.Send(helpText(u.Role.CanEscalate()), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}

func helpText(canRun bool) string {
	var helpText strings.Builder
	helpText.WriteString("Available commands:\n\n")
	helpText.WriteString("`/pipeline_health`\n - Health score and at-risk deals for your team.\n\n")
	if canRun {
		helpText.WriteString("`/staleness_run`\n - Re-evaluate every deal of your team now.\n\n")
	}
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
