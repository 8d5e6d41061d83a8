package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/app"
	"deal_staleness_monitor/internal/infra/lock"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	SourceCron   = "cron"
	SourceManual = "manual"
)

// ErrRunInProgress is returned by RunNow when the same scope is already running.
var ErrRunInProgress = errors.New("a staleness check is already running")

type StalenessScheduler struct {
	cronEngine *cron.Cron
	checker    app.StalenessChecker
	locker     lock.Locker
	recorder   app.Recorder
	logger     *logrus.Entry
	cronSpec   string // e.g., "*/15 * * * *"
	lockTTL    time.Duration

	jobCtx    context.Context
	cancelJob context.CancelFunc
}

func NewStalenessScheduler(
	checker app.StalenessChecker,
	locker lock.Locker,
	recorder app.Recorder,
	logger *logrus.Entry,
	cronSpec string,
	lockTTL time.Duration,
) *StalenessScheduler {
	if recorder == nil {
		recorder = app.NopRecorder{}
	}
	cronLogger := cronLogAdapter{entry: logger}
	jobCtx, cancel := context.WithCancel(context.Background())
	return &StalenessScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		checker:   checker,
		locker:    locker,
		recorder:  recorder,
		logger:    logger,
		cronSpec:  cronSpec,
		lockTTL:   lockTTL,
		jobCtx:    jobCtx,
		cancelJob: cancel,
	}
}

func (s *StalenessScheduler) Start() error {
	s.logger.WithField("cron_spec", s.cronSpec).Info("Starting staleness scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for staleness check.")
		summary, err := s.run(s.jobCtx, nil, SourceCron)
		switch {
		case errors.Is(err, ErrRunInProgress):
			s.logger.Info("Previous staleness check still running elsewhere. Skipping this tick.")
		case err != nil:
			s.logger.WithError(err).Error("Scheduled staleness check failed")
		default:
			s.logger.WithFields(logrus.Fields{
				"teams_checked": summary.TeamsChecked,
				"processed":     summary.TotalProcessed,
				"transitioned":  summary.TotalTransitioned,
				"failed":        summary.TotalFailed,
			}).Info("Scheduled staleness check finished")
		}
	})
	if err != nil {
		return fmt.Errorf("could not add staleness cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Staleness scheduler started.")
	return nil
}

// RunNow runs a check synchronously, for the whole tenant set or one team.
func (s *StalenessScheduler) RunNow(ctx context.Context, teamID *uuid.UUID) (app.RunSummary, error) {
	return s.run(ctx, teamID, SourceManual)
}

func (s *StalenessScheduler) run(ctx context.Context, teamID *uuid.UUID, source string) (app.RunSummary, error) {
	key := "staleness:all"
	if teamID != nil {
		key = "staleness:team:" + teamID.String()
	}

	release, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.recorder.RunFinished(source, app.RunSummary{}, 0, ErrRunInProgress)
			return app.RunSummary{}, ErrRunInProgress
		}
		return app.RunSummary{}, err
	}
	defer release()

	start := time.Now()
	summary, err := s.checker.RunStalenessCheck(ctx, teamID)
	s.recorder.RunFinished(source, summary, time.Since(start), err)
	return summary, err
}

// Stop halts new ticks, aborts a scheduled run in flight and waits for it to
// return.
func (s *StalenessScheduler) Stop() {
	s.logger.Info("Stopping staleness scheduler...")
	s.cancelJob()
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Staleness scheduler gracefully stopped.")
}

// cronLogAdapter routes cron's own messages through logrus.
type cronLogAdapter struct {
	entry *logrus.Entry
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.entry.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
