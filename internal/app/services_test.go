package app

import (
	"context"
	"testing"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDealService_SnoozeResetsStatus(t *testing.T) {
	f := newFixture(t)
	d := f.addDeal("Paused", "proposal", 20, withStatus(deal.StatusCritical))
	svc := NewDealService(f.store.Deals())
	svc.now = fixedClock

	until := testNow.AddDate(0, 0, 7)
	got, err := svc.Snooze(context.Background(), f.team.ID, d.ID, until, "  waiting on legal ")
	require.NoError(t, err)

	assert.Equal(t, deal.StatusHealthy, got.Status)
	require.NotNil(t, got.SnoozedUntil)
	assert.True(t, until.Equal(*got.SnoozedUntil))
	require.NotNil(t, got.SnoozeReason)
	assert.Equal(t, "waiting on legal", *got.SnoozeReason)

	got, err = svc.Unsnooze(context.Background(), f.team.ID, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SnoozedUntil)
}

func TestDealService_SnoozeRejectsPastAndForeignDeals(t *testing.T) {
	f := newFixture(t)
	d := f.addDeal("Paused", "proposal", 20)
	svc := NewDealService(f.store.Deals())
	svc.now = fixedClock

	_, err := svc.Snooze(context.Background(), f.team.ID, d.ID, testNow, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Snooze(context.Background(), uuid.New(), d.ID, testNow.Add(time.Hour), "")
	assert.ErrorIs(t, err, deal.ErrNotFound)
}

func TestDealService_DeleteHidesDeal(t *testing.T) {
	f := newFixture(t)
	d := f.addDeal("Dropped", "proposal", 20)
	svc := NewDealService(f.store.Deals())

	require.NoError(t, svc.Delete(context.Background(), f.team.ID, d.ID))
	assert.ErrorIs(t, svc.Delete(context.Background(), f.team.ID, d.ID), deal.ErrNotFound)
	_, err := svc.Unsnooze(context.Background(), f.team.ID, d.ID)
	assert.ErrorIs(t, err, deal.ErrNotFound)
}

func TestAnalytics_PipelineHealth(t *testing.T) {
	f := newFixture(t)
	f.addDeal("a", "proposal", 1, withAmount(100))
	f.addDeal("b", "proposal", 1, withAmount(200), withStatus(deal.StatusWarning))
	f.addDeal("c", "demo", 1, withAmount(300), withStatus(deal.StatusStale))
	f.addDeal("d", "demo", 1, withAmount(400), withStatus(deal.StatusCritical))
	f.addDeal("gone", "demo", 1, withAmount(999), withLifecycle(deal.LifecycleDeleted))

	h, err := NewAnalyticsService(f.store.Deals(), f.store.Users()).PipelineHealth(context.Background(), f.team.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, h.TotalDeals)
	assert.InDelta(t, 1000, h.TotalRevenue, 0.001)
	assert.Equal(t, 2, h.AtRiskDeals)
	assert.InDelta(t, 700, h.AtRiskRevenue, 0.001)
	assert.Equal(t, 25, h.HealthScore)
	assert.Equal(t, StatusBucket{Count: 1, Revenue: 200}, h.ByStatus[deal.StatusWarning])
}

func TestAnalytics_EmptyPipelineIsHealthy(t *testing.T) {
	f := newFixture(t)
	h, err := NewAnalyticsService(f.store.Deals(), f.store.Users()).PipelineHealth(context.Background(), f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, h.HealthScore)
	assert.Len(t, h.ByStatus, 4)
}

func TestAnalytics_StageBreakdownUsesArithmeticMean(t *testing.T) {
	f := newFixture(t)
	// A pairwise running average would give ((2+4)/2+12)/2 = 7.5; the mean is 6.
	f.addDeal("a", "proposal", 0, withDaysStale(2))
	f.addDeal("b", "proposal", 0, withDaysStale(4))
	f.addDeal("c", "proposal", 0, withDaysStale(12))
	f.addDeal("d", "demo", 0, withDaysStale(5), withStatus(deal.StatusWarning))

	stages, err := NewAnalyticsService(f.store.Deals(), f.store.Users()).StageBreakdown(context.Background(), f.team.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.Equal(t, "demo", stages[0].Stage)
	assert.Equal(t, 5, stages[0].AvgDaysStale)
	assert.Equal(t, "proposal", stages[1].Stage)
	assert.Equal(t, 3, stages[1].TotalDeals)
	assert.Equal(t, 6, stages[1].AvgDaysStale)
	assert.Equal(t, 3, stages[1].ByStatus[deal.StatusHealthy])
}

func TestAnalytics_RepStatsOrdering(t *testing.T) {
	f := newFixture(t)
	f.addDeal("o1", "proposal", 0)
	f.addDeal("o2", "proposal", 0, withStatus(deal.StatusStale))
	f.addDeal("m1", "proposal", 0, withOwner(f.manager))

	reps, err := NewAnalyticsService(f.store.Deals(), f.store.Users()).RepStats(context.Background(), f.team.ID)
	require.NoError(t, err)
	require.Len(t, reps, 4)

	assert.Equal(t, f.manager.ID, reps[0].UserID)
	assert.Equal(t, 100, reps[0].HealthScore)
	assert.Equal(t, f.owner.ID, reps[1].UserID)
	assert.Equal(t, 50, reps[1].HealthScore)
	assert.Equal(t, 1, reps[1].AtRiskDeals)
	assert.Equal(t, 0, reps[2].TotalDeals)
	assert.Equal(t, 0, reps[3].TotalDeals)
}

type stubTrigger struct {
	calledWith *uuid.UUID
	summary    RunSummary
}

func (s *stubTrigger) RunNow(_ context.Context, teamID *uuid.UUID) (RunSummary, error) {
	s.calledWith = teamID
	return s.summary, nil
}

func TestAdminService_TriggerStalenessCheck(t *testing.T) {
	f := newFixture(t)
	inactiveManager := f.addUser("Old Manager", team.RoleManager, false)
	trigger := &stubTrigger{summary: RunSummary{TeamsChecked: 1, TotalProcessed: 5}}
	svc := NewAdminService(f.store.Users(), trigger)

	tests := []struct {
		name    string
		userID  uuid.UUID
		wantErr error
	}{
		{"manager allowed", f.manager.ID, nil},
		{"admin allowed", f.admin.ID, nil},
		{"rep rejected", f.rep.ID, ErrNotAuthorized},
		{"inactive manager rejected", inactiveManager.ID, ErrNotAuthorized},
		{"unknown user rejected", uuid.New(), ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger.calledWith = nil
			summary, err := svc.TriggerStalenessCheck(context.Background(), tt.userID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, trigger.calledWith)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, trigger.calledWith)
			assert.Equal(t, f.team.ID, *trigger.calledWith)
			assert.Equal(t, 5, summary.TotalProcessed)
		})
	}
}

func TestNotificationService_ListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	r := f.addRule("default", "proposal", 7, 10, 14)
	d := f.addDeal("Noisy", "proposal", 12)
	_, err := f.dispatcher().Notify(context.Background(), d, deal.StatusHealthy, deal.StatusStale, r, 12)
	require.NoError(t, err)

	svc := NewNotificationService(f.store.Notifications())
	svc.now = fixedClock

	page, err := svc.List(context.Background(), f.team.ID, NotificationQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page.Pagination)
	assert.Equal(t, "Noisy", page.Notifications[0].DealName)

	var ownerNote uuid.UUID
	for _, n := range f.store.NotificationsFor(d.ID) {
		if n.UserID == f.owner.ID {
			ownerNote = n.ID
		}
	}
	assert.ErrorIs(t, svc.MarkAsRead(context.Background(), ownerNote, f.manager.ID), notification.ErrNotFound)
	require.NoError(t, svc.MarkAsRead(context.Background(), ownerNote, f.owner.ID))

	pending, err := svc.List(context.Background(), f.team.ID, NotificationQuery{Status: notification.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, pending.Pagination.Total)

	n, err := svc.MarkAllAsRead(context.Background(), f.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	<-done
	unlockB()
	assert.Equal(t, 0, k.size())
}
