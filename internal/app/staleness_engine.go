package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StalenessChecker is the entry point used by every trigger.
type StalenessChecker interface {
	RunStalenessCheck(ctx context.Context, teamID *uuid.UUID) (RunSummary, error)
}

// TeamResult aggregates one team's pass.
type TeamResult struct {
	TeamID       uuid.UUID `json:"teamId"`
	TeamName     string    `json:"teamName"`
	Processed    int       `json:"processed"`
	Transitioned int       `json:"transitioned"`
	Failed       int       `json:"failed"`
}

// RunSummary aggregates a whole invocation.
type RunSummary struct {
	TotalProcessed    int          `json:"totalProcessed"`
	TotalTransitioned int          `json:"totalTransitioned"`
	TotalFailed       int          `json:"totalFailed"`
	TeamsChecked      int          `json:"teamsChecked"`
	Teams             []TeamResult `json:"teams,omitempty"`
}

func (s *RunSummary) add(r TeamResult) {
	s.TotalProcessed += r.Processed
	s.TotalTransitioned += r.Transitioned
	s.TotalFailed += r.Failed
	s.TeamsChecked++
	s.Teams = append(s.Teams, r)
}

type evaluation int

const (
	evalSnoozed evaluation = iota
	evalNoRule
	evalRefreshed
	evalTransitioned
)

// StalenessEngine recomputes deal staleness and dispatches notifications on
// transitions. Deals are independent and evaluated on a bounded worker pool.
type StalenessEngine struct {
	teams    team.Repository
	deals    deal.Repository
	matcher  *RuleMatcher
	notifier Notifier
	recorder Recorder
	logger   *logrus.Entry
	workers  int
	now      func() time.Time
}

func NewStalenessEngine(
	teams team.Repository,
	deals deal.Repository,
	matcher *RuleMatcher,
	notifier Notifier,
	recorder Recorder,
	logger *logrus.Entry,
	workers int,
) *StalenessEngine {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if workers < 1 {
		workers = 1
	}
	return &StalenessEngine{
		teams:    teams,
		deals:    deals,
		matcher:  matcher,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		workers:  workers,
		now:      time.Now,
	}
}

// RunStalenessCheck evaluates every team, or only teamID when given. Failing to
// load teams or a team's deals aborts the run; single-deal failures do not.
func (e *StalenessEngine) RunStalenessCheck(ctx context.Context, teamID *uuid.UUID) (RunSummary, error) {
	log := e.logger
	if teamID != nil {
		log = log.WithField("team_id", *teamID)
	}
	log.Info("Staleness check started")

	teams, err := e.loadTeams(ctx, teamID)
	if err != nil {
		log.WithError(err).Error("Failed to load teams")
		return RunSummary{}, err
	}

	var summary RunSummary
	for _, t := range teams {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := e.processTeam(ctx, t)
		if err != nil {
			log.WithField("team_id", t.ID).WithError(err).Error("Staleness check aborted")
			return summary, fmt.Errorf("staleness check for team %s: %w", t.ID, err)
		}
		summary.add(result)
		log.WithFields(logrus.Fields{
			"team":         t.Name,
			"processed":    result.Processed,
			"transitioned": result.Transitioned,
			"failed":       result.Failed,
		}).Debug("Team checked")
	}

	log.WithFields(logrus.Fields{
		"total_processed":    summary.TotalProcessed,
		"total_transitioned": summary.TotalTransitioned,
		"total_failed":       summary.TotalFailed,
		"teams_checked":      summary.TeamsChecked,
	}).Info("Staleness check complete")
	return summary, nil
}

func (e *StalenessEngine) loadTeams(ctx context.Context, teamID *uuid.UUID) ([]*team.Team, error) {
	if teamID == nil {
		teams, err := e.teams.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list teams: %w", err)
		}
		return teams, nil
	}

	t, err := e.teams.GetByID(ctx, *teamID)
	if errors.Is(err, team.ErrTeamNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team %s: %w", *teamID, err)
	}
	return []*team.Team{t}, nil
}

func (e *StalenessEngine) processTeam(ctx context.Context, t *team.Team) (TeamResult, error) {
	result := TeamResult{TeamID: t.ID, TeamName: t.Name}

	deals, err := e.deals.ListActiveByTeam(ctx, t.ID)
	if err != nil {
		return result, fmt.Errorf("failed to list active deals: %w", err)
	}
	if len(deals) == 0 {
		return result, nil
	}

	// One clock reading per pass keeps every deal in the team on the same "now".
	now := e.now()

	workers := e.workers
	if workers > len(deals) {
		workers = len(deals)
	}

	ch := make(chan *deal.Deal)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range ch {
				outcome, err := e.evaluateDeal(ctx, d, now)

				mu.Lock()
				switch {
				case err != nil:
					result.Failed++
				case outcome == evalTransitioned:
					result.Processed++
					result.Transitioned++
				default:
					result.Processed++
				}
				mu.Unlock()

				if err != nil {
					e.recorder.DealFailed()
					e.logger.WithFields(logrus.Fields{
						"team_id": t.ID,
						"deal_id": d.ID,
						"stage":   d.Stage,
					}).WithError(err).Error("Failed to evaluate deal, continuing")
				}
			}
		}()
	}

feed:
	for _, d := range deals {
		select {
		case ch <- d:
		case <-ctx.Done():
			break feed
		}
	}
	close(ch)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (e *StalenessEngine) evaluateDeal(ctx context.Context, d *deal.Deal, now time.Time) (evaluation, error) {
	if d.IsSnoozedAt(now) {
		return evalSnoozed, nil
	}
	if d.HasExpiredSnooze(now) {
		if err := e.deals.ClearSnooze(ctx, d.ID); err != nil {
			return 0, fmt.Errorf("failed to clear expired snooze: %w", err)
		}
		d.SnoozedUntil = nil
		d.SnoozeReason = nil
	}

	r, err := e.matcher.Match(ctx, d.TeamID, d.Stage, d.PipelineOrDefault())
	if err != nil {
		return 0, err
	}
	if r == nil {
		return evalNoRule, nil
	}

	if !d.Status.Valid() {
		return 0, fmt.Errorf("deal has unrecognised status %q", d.Status)
	}

	days := deal.DaysSince(d.LastActivityAt, now)
	previous := d.Status
	next := r.Thresholds.Classify(days)

	if next == previous {
		if err := e.deals.UpdateDaysStale(ctx, d.ID, days); err != nil {
			return 0, fmt.Errorf("failed to refresh days stale: %w", err)
		}
		d.DaysStale = days
		return evalRefreshed, nil
	}

	if err := e.deals.UpdateStatus(ctx, d.ID, next, days); err != nil {
		return 0, fmt.Errorf("failed to persist status %s: %w", next, err)
	}
	d.Status = next
	d.DaysStale = days
	e.recorder.DealTransitioned(previous, next)

	// The status is already stored; a dispatch error does not undo the transition.
	if _, err := e.notifier.Notify(ctx, d, previous, next, r, days); err != nil {
		e.logger.WithFields(logrus.Fields{
			"deal_id": d.ID,
			"from":    previous,
			"to":      next,
		}).WithError(err).Warn("Notification dispatch incomplete")
	}
	return evalTransitioned, nil
}
