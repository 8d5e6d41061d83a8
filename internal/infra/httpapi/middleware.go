package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"deal_staleness_monitor/internal/domain/team"
	"deal_staleness_monitor/internal/infra/httpapi/respond"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ctxKey int

const userKey ctxKey = iota

// UserFromContext returns the authenticated team member.
func UserFromContext(ctx context.Context) (*team.User, bool) {
	u, ok := ctx.Value(userKey).(*team.User)
	return u, ok
}

// --------------------------------------------------------------------------
// Request logging middleware
// --------------------------------------------------------------------------

func requestLogger(logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("HTTP request")
		})
	}
}

// --------------------------------------------------------------------------
// JWT bearer authentication
// --------------------------------------------------------------------------

// authenticate validates an HS256 bearer token whose subject is a user id and
// loads the active user into the request context.
func authenticate(secret []byte, users team.UserRepository, logger *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization format")
				return
			}

			userID, err := parseSubject(parts[1], secret)
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				return
			}

			u, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, team.ErrUserNotFound) {
					respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unknown user")
					return
				}
				logger.WithFields(logrus.Fields{"user_id": userID, "error": err}).Error("Failed to load authenticated user")
				respond.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load user")
				return
			}
			if !u.IsActive {
				respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "user is inactive")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

// IssueToken signs an HS256 token that authenticate accepts for userID.
func IssueToken(userID uuid.UUID, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}).SignedString(secret)
}

func parseSubject(tokenString string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject is not a user id: %w", err)
	}
	return id, nil
}

// requireEscalationRole lets only admins and managers through.
func requireEscalationRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok || !u.Role.CanEscalate() {
			respond.WriteError(w, http.StatusForbidden, "FORBIDDEN", "admin or manager role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --------------------------------------------------------------------------
// Rate limiting middleware (per-team token bucket)
// --------------------------------------------------------------------------

type teamLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newTeamLimiter(requestsPerMinute int) *teamLimiter {
	burst := requestsPerMinute / 2
	if burst < 1 {
		burst = 1
	}
	return &teamLimiter{
		limiters: make(map[uuid.UUID]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / time.Minute.Seconds()),
		burst:    burst,
	}
}

func (l *teamLimiter) getLimiter(teamID uuid.UUID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists := l.limiters[teamID]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.limiters[teamID] = limiter
	return limiter
}

// rateLimitByTeam must run after authenticate.
func rateLimitByTeam(requestsPerMinute int) func(http.Handler) http.Handler {
	limiter := newTeamLimiter(requestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if ok && !limiter.getLimiter(u.TeamID).Allow() {
				w.Header().Set("Retry-After", "60")
				respond.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
