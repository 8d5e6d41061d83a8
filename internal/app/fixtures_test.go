package app

import (
	"io"
	"testing"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"
	"deal_staleness_monitor/internal/infra/memory"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	store   *memory.Store
	team    *team.Team
	owner   *team.User
	manager *team.User
	admin   *team.User
	rep     *team.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	tm := &team.Team{ID: uuid.New(), Name: "Acme", Timezone: "UTC", CreatedAt: testNow.AddDate(-1, 0, 0)}
	s.AddTeam(tm)

	f := &fixture{store: s, team: tm}
	f.owner = f.addUser("Olivia Owner", team.RoleRep, true)
	f.manager = f.addUser("Mark Manager", team.RoleManager, true)
	f.admin = f.addUser("Ada Admin", team.RoleAdmin, true)
	f.rep = f.addUser("Rita Rep", team.RoleRep, true)
	return f
}

func (f *fixture) addUser(name string, role team.Role, active bool) *team.User {
	u := &team.User{
		ID:        uuid.New(),
		TeamID:    f.team.ID,
		Name:      name,
		Email:     name + "@example.com",
		Role:      role,
		IsActive:  active,
		CreatedAt: testNow.AddDate(0, -6, 0),
	}
	f.store.AddUser(u)
	return u
}

func (f *fixture) addRule(pipeline, stage string, warning, stale, critical int) *rule.Rule {
	r := &rule.Rule{
		ID:              uuid.New(),
		TeamID:          f.team.ID,
		Pipeline:        pipeline,
		Stage:           stage,
		Thresholds:      rule.Thresholds{WarningDays: warning, StaleDays: stale, CriticalDays: critical},
		SuggestedAction: "Schedule a follow-up call",
		NotifyChannels:  []string{"slack"},
		Lifecycle:       rule.LifecycleActive,
		CreatedAt:       testNow.AddDate(0, -1, 0),
		UpdatedAt:       testNow.AddDate(0, -1, 0),
	}
	f.store.AddRule(r)
	return r
}

type dealOpt func(*deal.Deal)

func withPipeline(p string) dealOpt { return func(d *deal.Deal) { d.Pipeline = p } }
func withStatus(s deal.Status) dealOpt { return func(d *deal.Deal) { d.Status = s } }
func withDaysStale(n int) dealOpt { return func(d *deal.Deal) { d.DaysStale = n } }
func withAmount(a float64) dealOpt { return func(d *deal.Deal) { d.Amount = a } }
func withNoOwner() dealOpt { return func(d *deal.Deal) { d.OwnerID = uuid.NullUUID{} } }
func withOwner(u *team.User) dealOpt { return func(d *deal.Deal) { d.OwnerID = uuid.NullUUID{UUID: u.ID, Valid: true} } }
func withSnoozeUntil(t time.Time) dealOpt { return func(d *deal.Deal) { d.SnoozedUntil = &t } }
func withLifecycle(l deal.Lifecycle) dealOpt { return func(d *deal.Deal) { d.Lifecycle = l } }

func (f *fixture) addDeal(name, stage string, daysInactive int, opts ...dealOpt) *deal.Deal {
	d := &deal.Deal{
		ID:             uuid.New(),
		TeamID:         f.team.ID,
		Name:           name,
		OwnerID:        uuid.NullUUID{UUID: f.owner.ID, Valid: true},
		Stage:          stage,
		Pipeline:       deal.DefaultPipeline,
		Amount:         1000,
		Currency:       "USD",
		LastActivityAt: testNow.Add(-time.Duration(daysInactive) * 24 * time.Hour),
		Status:         deal.StatusHealthy,
		Lifecycle:      deal.LifecycleActive,
		CreatedAt:      testNow.AddDate(0, -2, 0),
		UpdatedAt:      testNow.AddDate(0, -2, 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	f.store.AddDeal(d)
	return d
}

func (f *fixture) dispatcher() *NotificationDispatcher {
	d := NewNotificationDispatcher(f.store.Notifications(), f.store.Users(), nil, testLogger(), DefaultDedupeWindow)
	d.now = fixedClock
	return d
}

func (f *fixture) engine(workers int) *StalenessEngine {
	return f.engineWith(f.store.Deals(), f.dispatcher(), workers)
}

func (f *fixture) engineWith(deals deal.Repository, notifier Notifier, workers int) *StalenessEngine {
	e := NewStalenessEngine(
		f.store.Teams(),
		deals,
		NewRuleMatcher(f.store.Rules()),
		notifier,
		nil,
		testLogger(),
		workers,
	)
	e.now = fixedClock
	return e
}
