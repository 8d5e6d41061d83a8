package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/infra/lock"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	summary app.RunSummary
	err     error
	calls   int
	teamID  *uuid.UUID
}

func (s *stubChecker) RunStalenessCheck(_ context.Context, teamID *uuid.UUID) (app.RunSummary, error) {
	s.calls++
	s.teamID = teamID
	return s.summary, s.err
}

type runRecord struct {
	source string
	err    error
}

type recordingRecorder struct {
	app.NopRecorder
	runs []runRecord
}

func (r *recordingRecorder) RunFinished(source string, _ app.RunSummary, _ time.Duration, err error) {
	r.runs = append(r.runs, runRecord{source: source, err: err})
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestRunNow_RecordsManualRun(t *testing.T) {
	checker := &stubChecker{summary: app.RunSummary{TeamsChecked: 1, TotalProcessed: 3}}
	rec := &recordingRecorder{}
	s := NewStalenessScheduler(checker, lock.NewLocalLocker(), rec, quietLogger(), "*/15 * * * *", time.Minute)

	teamID := uuid.New()
	summary, err := s.RunNow(context.Background(), &teamID)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, &teamID, checker.teamID)
	assert.Equal(t, []runRecord{{source: SourceManual}}, rec.runs)
}

func TestRunNow_BusyScopeIsRejected(t *testing.T) {
	checker := &stubChecker{}
	rec := &recordingRecorder{}
	locker := lock.NewLocalLocker()
	s := NewStalenessScheduler(checker, locker, rec, quietLogger(), "*/15 * * * *", time.Minute)

	teamID := uuid.New()
	release, err := locker.Acquire(context.Background(), "staleness:team:"+teamID.String(), time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = s.RunNow(context.Background(), &teamID)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Zero(t, checker.calls)
	assert.Equal(t, []runRecord{{source: SourceManual, err: ErrRunInProgress}}, rec.runs)

	// A different scope is not blocked.
	_, err = s.RunNow(context.Background(), nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, checker.calls)
}

func TestRunNow_ReleasesLockAfterFailure(t *testing.T) {
	checker := &stubChecker{err: errors.New("database is down")}
	s := NewStalenessScheduler(checker, lock.NewLocalLocker(), nil, quietLogger(), "*/15 * * * *", time.Minute)

	_, err := s.RunNow(context.Background(), nil)
	require.Error(t, err)
	_, err = s.RunNow(context.Background(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, 2, checker.calls)
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewStalenessScheduler(&stubChecker{}, lock.NewLocalLocker(), nil, quietLogger(), "not a cron spec", time.Minute)
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s := NewStalenessScheduler(&stubChecker{}, lock.NewLocalLocker(), nil, quietLogger(), "@every 1h", time.Minute)
	require.NoError(t, s.Start())
	s.Stop()
	assert.Error(t, s.jobCtx.Err())
}

type blockingChecker struct {
	once    sync.Once
	started chan struct{}
	aborted chan error
}

func (b *blockingChecker) RunStalenessCheck(ctx context.Context, _ *uuid.UUID) (app.RunSummary, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	select {
	case b.aborted <- ctx.Err():
	default:
	}
	return app.RunSummary{}, ctx.Err()
}

func TestStop_AbortsRunningCheck(t *testing.T) {
	checker := &blockingChecker{started: make(chan struct{}), aborted: make(chan error, 1)}
	s := NewStalenessScheduler(checker, lock.NewLocalLocker(), nil, quietLogger(), "@every 1s", time.Minute)
	require.NoError(t, s.Start())

	select {
	case <-checker.started:
	case <-time.After(3 * time.Second):
		s.Stop()
		t.Fatal("scheduled check did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop waited for the running check instead of cancelling it")
	}
	assert.ErrorIs(t, <-checker.aborted, context.Canceled)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"now", 1, "entry", "x", "dangling"})
	assert.Equal(t, 2, len(fields))
	assert.Equal(t, 1, fields["now"])
}
