package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"
	"deal_staleness_monitor/internal/infra/lock"
	"deal_staleness_monitor/internal/infra/memory"
	"deal_staleness_monitor/internal/infra/scheduler"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	handler http.Handler
	store   *memory.Store
	locker  *lock.LocalLocker
	team    *team.Team
	manager *team.User
	rep     *team.User
	deal    *deal.Deal
}

func newTestServer(t *testing.T, ratePerMinute int) *testServer {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logrus.NewEntry(l)

	store := memory.NewStore()
	tm := &team.Team{ID: uuid.New(), Name: "Acme", Timezone: "UTC", CreatedAt: time.Now()}
	store.AddTeam(tm)
	manager := &team.User{ID: uuid.New(), TeamID: tm.ID, Name: "Mark", Role: team.RoleManager, IsActive: true}
	rep := &team.User{ID: uuid.New(), TeamID: tm.ID, Name: "Rita", Role: team.RoleRep, IsActive: true}
	store.AddUser(manager)
	store.AddUser(rep)
	store.AddRule(&rule.Rule{
		ID: uuid.New(), TeamID: tm.ID, Pipeline: deal.DefaultPipeline, Stage: "proposal",
		Thresholds:     rule.Thresholds{WarningDays: 7, StaleDays: 10, CriticalDays: 14},
		NotifyChannels: []string{"slack"}, Lifecycle: rule.LifecycleActive,
	})
	d := &deal.Deal{
		ID: uuid.New(), TeamID: tm.ID, Name: "Big Co renewal", Stage: "proposal",
		OwnerID:        uuid.NullUUID{UUID: rep.ID, Valid: true},
		Pipeline:       deal.DefaultPipeline,
		Amount:         5000,
		LastActivityAt: time.Now().Add(-12 * 24 * time.Hour),
		Status:         deal.StatusHealthy,
	}
	store.AddDeal(d)

	dispatcher := app.NewNotificationDispatcher(store.Notifications(), store.Users(), nil, log, app.DefaultDedupeWindow)
	engine := app.NewStalenessEngine(store.Teams(), store.Deals(), app.NewRuleMatcher(store.Rules()), dispatcher, nil, log, 2)
	locker := lock.NewLocalLocker()
	sched := scheduler.NewStalenessScheduler(engine, locker, nil, log, "*/15 * * * *", time.Minute)

	h := NewRouter(Deps{
		Admin:                app.NewAdminService(store.Users(), sched),
		Rules:                app.NewRuleService(store.Rules()),
		Deals:                app.NewDealService(store.Deals()),
		Notifications:        app.NewNotificationService(store.Notifications()),
		Analytics:            app.NewAnalyticsService(store.Deals(), store.Users()),
		Users:                store.Users(),
		JWTSecret:            testSecret,
		CORSAllowOrigins:     []string{"http://localhost:5173"},
		TriggerRatePerMinute: ratePerMinute,
		Logger:               log,
	})
	return &testServer{handler: h, store: store, locker: locker, team: tm, manager: manager, rep: rep, deal: d}
}

func token(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, user *team.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, user.ID.String(), time.Now().Add(time.Hour)))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, 6)
	rec := s.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, 6)

	rec := s.do(t, nil, http.MethodGet, "/api/v1/rules", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec).Error.Code)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", token(t, s.manager.ID.String(), time.Now().Add(-time.Minute))},
		{"unknown user", token(t, uuid.NewString(), time.Now().Add(time.Hour))},
		{"subject not a uuid", token(t, "mark", time.Now().Add(time.Hour))},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestIssueToken_DemoUserCanCallAPI(t *testing.T) {
	s := newTestServer(t, 6)
	seeded := memory.Seed(s.store, time.Now())

	signed, err := IssueToken(memory.SeedID("david@acmesales.com"), []byte(testSecret), time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rules []ruleResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &rules))
	assert.Len(t, rules, seeded.Rules)

	expired, err := IssueToken(s.manager.ID, []byte(testSecret), time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = parseSubject(expired, []byte(testSecret))
	assert.Error(t, err)

	_, err = IssueToken(s.manager.ID, nil, time.Hour, time.Now())
	assert.Error(t, err)
	_, err = IssueToken(s.manager.ID, []byte(testSecret), 0, time.Now())
	assert.Error(t, err)
}

func TestRunStalenessCheck(t *testing.T) {
	s := newTestServer(t, 6)

	rec := s.do(t, s.rep, http.MethodPost, "/api/v1/staleness/run", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/staleness/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary app.RunSummary
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &summary))
	assert.Equal(t, 1, summary.TeamsChecked)
	assert.Equal(t, 1, summary.TotalProcessed)
	assert.Equal(t, 1, summary.TotalTransitioned)

	stored, ok := s.store.Deal(s.deal.ID)
	require.True(t, ok)
	assert.Equal(t, deal.StatusStale, stored.Status)
}

func TestRunStalenessCheck_Conflict(t *testing.T) {
	s := newTestServer(t, 6)
	release, err := s.locker.Acquire(context.Background(), "staleness:team:"+s.team.ID.String(), time.Minute)
	require.NoError(t, err)
	defer release()

	rec := s.do(t, s.manager, http.MethodPost, "/api/v1/staleness/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RUN_IN_PROGRESS", decode(t, rec).Error.Code)
}

func TestRunStalenessCheck_RateLimited(t *testing.T) {
	s := newTestServer(t, 2)

	rec := s.do(t, s.manager, http.MethodPost, "/api/v1/staleness/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/staleness/run", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	rec = s.do(t, s.manager, http.MethodGet, "/api/v1/rules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	s := newTestServer(t, 6)
	body := map[string]interface{}{"stage": "demo", "warningDays": 3, "staleDays": 5, "criticalDays": 8}

	rec := s.do(t, s.rep, http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/rules", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created ruleResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	assert.Equal(t, "default", created.Pipeline)
	assert.Equal(t, []string{"slack"}, created.NotifyChannels)

	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/rules", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_RULE", decode(t, rec).Error.Code)

	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/rules",
		map[string]interface{}{"stage": "closing", "warningDays": 9, "staleDays": 5, "criticalDays": 8})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)

	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/rules", map[string]interface{}{"stage": "x", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_BODY", decode(t, rec).Error.Code)

	rec = s.do(t, s.rep, http.MethodGet, "/api/v1/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, s.manager, http.MethodPut, "/api/v1/rules/"+created.ID.String(), map[string]interface{}{"criticalDays": 20})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated ruleResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &updated))
	assert.Equal(t, 20, updated.CriticalDays)

	rec = s.do(t, s.manager, http.MethodDelete, "/api/v1/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, s.manager, http.MethodGet, "/api/v1/rules/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RULE_NOT_FOUND", decode(t, rec).Error.Code)

	rec = s.do(t, s.manager, http.MethodGet, "/api/v1/rules/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnoozeEndpoints(t *testing.T) {
	s := newTestServer(t, 6)
	path := "/api/v1/deals/" + s.deal.ID.String() + "/snooze"

	rec := s.do(t, s.rep, http.MethodPost, path, map[string]interface{}{
		"snoozedUntil": time.Now().Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, s.rep, http.MethodPost, path, map[string]interface{}{
		"snoozedUntil": time.Now().Add(48 * time.Hour),
		"reason":       "customer on holiday",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var snoozed dealResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &snoozed))
	assert.Equal(t, "healthy", snoozed.Status)
	require.NotNil(t, snoozed.SnoozeReason)

	rec = s.do(t, s.manager, http.MethodPost, "/api/v1/staleness/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ := s.store.Deal(s.deal.ID)
	assert.Equal(t, deal.StatusHealthy, stored.Status)

	rec = s.do(t, s.rep, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, s.rep, http.MethodDelete, "/api/v1/deals/"+s.deal.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, s.rep, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DEAL_NOT_FOUND", decode(t, rec).Error.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t, 6)
	rec := s.do(t, s.manager, http.MethodPost, "/api/v1/staleness/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, s.rep, http.MethodGet, "/api/v1/notifications?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Notifications []notificationResponse `json:"notifications"`
		Pagination    app.Pagination         `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	assert.Len(t, page.Notifications, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, "Big Co renewal", page.Notifications[0].DealName)

	rec = s.do(t, s.rep, http.MethodPatch, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated map[string]int64
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &updated))
	assert.Equal(t, int64(1), updated["updated"])

	rec = s.do(t, s.rep, http.MethodPatch, "/api/v1/notifications/"+uuid.NewString()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	s := newTestServer(t, 6)

	rec := s.do(t, s.rep, http.MethodGet, "/api/v1/analytics/pipeline-health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health app.PipelineHealth
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &health))
	assert.Equal(t, 1, health.TotalDeals)
	assert.Equal(t, 100, health.HealthScore)

	for _, path := range []string{"/api/v1/analytics/stages", "/api/v1/analytics/reps"} {
		rec = s.do(t, s.rep, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
