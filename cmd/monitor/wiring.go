package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"
	"deal_staleness_monitor/internal/infra/cache"
	"deal_staleness_monitor/internal/infra/config"
	idb "deal_staleness_monitor/internal/infra/database"
	"deal_staleness_monitor/internal/infra/lock"
	"deal_staleness_monitor/internal/infra/logger"
	"deal_staleness_monitor/internal/infra/memory"
	"deal_staleness_monitor/internal/infra/metrics"
	"deal_staleness_monitor/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
)

type repositories struct {
	teams         team.Repository
	users         team.UserRepository
	deals         deal.Repository
	rules         rule.Repository
	notifications notification.Repository
	closer        io.Closer
}

type application struct {
	cfg       *config.AppConfig
	repos     repositories
	metrics   *metrics.Metrics
	scheduler *scheduler.StalenessScheduler

	admin         *app.AdminService
	rules         *app.RuleService
	deals         *app.DealService
	notifications *app.NotificationService
	analytics     *app.AnalyticsService

	closers []io.Closer
}

func (a *application) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Log.WithError(err).Warn("Error during shutdown")
		}
	}
}

func openRepositories(cfg *config.AppConfig) (repositories, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		logger.Log.Warn("Using in-memory store; data is lost on exit")
		if cfg.SeedDemoData {
			seedMemoryStore(store)
		} else {
			logger.Log.Warn("In-memory store is empty; set SEED_DEMO_DATA=true to load the demo team")
		}
		return repositories{
			teams:         store.Teams(),
			users:         store.Users(),
			deals:         store.Deals(),
			rules:         store.Rules(),
			notifications: store.Notifications(),
		}, nil
	default:
		db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return repositories{}, err
		}
		logger.Log.Info("Database connection established successfully.")
		return repositories{
			teams:         idb.NewPostgresTeamRepository(db),
			users:         idb.NewPostgresUserRepository(db),
			deals:         idb.NewPostgresDealRepository(db),
			rules:         idb.NewPostgresRuleRepository(db),
			notifications: idb.NewPostgresNotificationRepository(db),
			closer:        db,
		}, nil
	}
}

func seedMemoryStore(store *memory.Store) {
	res := memory.Seed(store, time.Now())
	logger.Log.WithField("summary", res.Summary()).Info("Demo data loaded")
	for _, u := range res.Users {
		logger.Log.WithFields(logrus.Fields{
			"user_id": u.ID,
			"email":   u.Email,
			"role":    u.Role,
		}).Info("Demo user available; mint a token with `monitor token --user <user_id>`")
	}
}

func newLocker(ctx context.Context, cfg *config.AppConfig) (lock.Locker, io.Closer, error) {
	if cfg.RedisURL == "" {
		return lock.NewLocalLocker(), nil, nil
	}
	l, err := lock.NewRedisLocker(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Log.Info("Redis run lock enabled.")
	return l, l, nil
}

// buildApplication wires repositories, the engine, the scheduler and the
// services shared by every entry point.
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*application, error) {
	repos, err := openRepositories(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not open store: %w", err)
	}
	a := &application{cfg: cfg, repos: repos}
	if repos.closer != nil {
		a.closers = append(a.closers, repos.closer)
	}

	locker, lockCloser, err := newLocker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("could not create run lock: %w", err)
	}
	if lockCloser != nil {
		a.closers = append(a.closers, lockCloser)
	}

	a.metrics = metrics.NewMetrics("deal_monitor")
	cachedRules := cache.NewCachedRuleRepository(repos.rules, cfg.RuleCacheTTL)

	dispatcher := app.NewNotificationDispatcher(
		repos.notifications,
		repos.users,
		a.metrics,
		logger.Component("notification_dispatcher"),
		cfg.NotificationDedupeWindow,
	)
	engine := app.NewStalenessEngine(
		repos.teams,
		repos.deals,
		app.NewRuleMatcher(cachedRules),
		dispatcher,
		a.metrics,
		logger.Component("staleness_engine"),
		cfg.EngineWorkers,
	)
	a.scheduler = scheduler.NewStalenessScheduler(
		engine,
		locker,
		a.metrics,
		logger.Component("scheduler"),
		cfg.StalenessCron,
		cfg.RunLockTTL,
	)

	a.admin = app.NewAdminService(repos.users, a.scheduler)
	a.rules = app.NewRuleService(cachedRules)
	a.deals = app.NewDealService(repos.deals)
	a.notifications = app.NewNotificationService(repos.notifications)
	a.analytics = app.NewAnalyticsService(repos.deals, repos.users)
	return a, nil
}
