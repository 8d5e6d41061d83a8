package httpapi

import (
	"net/http"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/domain/team"
	"deal_staleness_monitor/internal/infra/httpapi/respond"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Deps carries everything the router serves.
type Deps struct {
	Admin         *app.AdminService
	Rules         *app.RuleService
	Deals         *app.DealService
	Notifications *app.NotificationService
	Analytics     *app.AnalyticsService
	Users         team.UserRepository
	Metrics       http.Handler

	JWTSecret            string
	CORSAllowOrigins     []string
	TriggerRatePerMinute int
	Logger               *logrus.Entry
}

// Handler holds the services behind the API routes.
type Handler struct {
	admin         *app.AdminService
	rules         *app.RuleService
	deals         *app.DealService
	notifications *app.NotificationService
	analytics     *app.AnalyticsService
	logger        *logrus.Entry
}

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   d.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	h := &Handler{
		admin:         d.Admin,
		rules:         d.Rules,
		deals:         d.Deals,
		notifications: d.Notifications,
		analytics:     d.Analytics,
		logger:        d.Logger,
	}

	// --- Routes ---
	r.Get("/health", h.HealthCheck)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate([]byte(d.JWTSecret), d.Users, d.Logger))

		r.With(rateLimitByTeam(d.TriggerRatePerMinute)).Post("/staleness/run", h.RunStalenessCheck)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Get("/{ruleID}", h.GetRule)
			r.Group(func(r chi.Router) {
				r.Use(requireEscalationRole)
				r.Post("/", h.CreateRule)
				r.Put("/{ruleID}", h.UpdateRule)
				r.Delete("/{ruleID}", h.DeleteRule)
			})
		})

		r.Post("/deals/{dealID}/snooze", h.SnoozeDeal)
		r.Delete("/deals/{dealID}/snooze", h.UnsnoozeDeal)
		r.Delete("/deals/{dealID}", h.DeleteDeal)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Patch("/read-all", h.MarkAllNotificationsRead)
			r.Patch("/{notificationID}/read", h.MarkNotificationRead)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/pipeline-health", h.PipelineHealth)
			r.Get("/stages", h.StageBreakdown)
			r.Get("/reps", h.RepStats)
		})
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteData(w, http.StatusOK, map[string]string{"status": "ok"})
}
