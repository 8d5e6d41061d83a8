// Command monitor runs the deal staleness engine.
//
// Usage:
//
//	monitor serve
//	monitor run
//	monitor run --team 6f1c2a52-0d8e-4a55-9a57-1d2d8c5c0b11
//	monitor token --user 6f1c2a52-0d8e-4a55-9a57-1d2d8c5c0b11 --ttl 24h
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deal_staleness_monitor/internal/infra/config"
	"deal_staleness_monitor/internal/infra/httpapi"
	"deal_staleness_monitor/internal/infra/logger"
	"deal_staleness_monitor/internal/infra/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "monitor",
		Short:         "Deal staleness monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		logger.Log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	logger.Log.WithFields(logrus.Fields{
		"log_level":    cfg.LogLevel,
		"environment":  cfg.Environment,
		"store_driver": cfg.StoreDriver,
	}).Info("Configuration loaded")
	return cfg, nil
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd() *cobra.Command {
	var teamFlag string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one staleness check and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			var teamID *uuid.UUID
			if teamFlag != "" {
				id, err := uuid.Parse(teamFlag)
				if err != nil {
					return fmt.Errorf("--team must be a UUID: %w", err)
				}
				teamID = &id
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := buildApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.scheduler.RunNow(ctx, teamID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&teamFlag, "team", "", "Only check this team (UUID)")
	return cmd
}

// --------------------------------------------------------------------------
// token command
// --------------------------------------------------------------------------

func tokenCmd() *cobra.Command {
	var (
		userFlag string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for a team member, signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to sign tokens")
			}
			signed, err := httpapi.IssueToken(userID, []byte(cfg.JWTSecret), ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "Team member id (UUID)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// --------------------------------------------------------------------------
// serve command
// --------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler, the HTTP API and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to serve the HTTP API")
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.AppConfig) error {
	mainLogger := logger.Component("main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.Start(); err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Admin:                a.admin,
		Rules:                a.rules,
		Deals:                a.deals,
		Notifications:        a.notifications,
		Analytics:            a.analytics,
		Users:                a.repos.users,
		Metrics:              a.metrics.Handler(),
		JWTSecret:            cfg.JWTSecret,
		CORSAllowOrigins:     cfg.CORSAllowOrigins,
		TriggerRatePerMinute: cfg.TriggerRatePerMinute,
		Logger:               logger.Component("http"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken)
		if err != nil {
			a.scheduler.Stop()
			return err
		}
		botLogger := logger.Component("telegram")
		telegram.RegisterBotCommands(ctx, bot, a.admin, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, a.admin, a.analytics, botLogger)
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
		defer bot.Stop()
		mainLogger.Info("Telegram bot started.")
	}

	mainLogger.Info("Application setup complete.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit: // Block until a signal is received
	case err := <-serverErr:
		mainLogger.WithError(err).Error("HTTP server failed")
	}

	mainLogger.Info("Shutting down application...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	a.scheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
	return nil
}
