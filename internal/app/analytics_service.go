package app

import (
	"context"
	"fmt"
	"math"
	"sort"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
)

// StatusBucket counts deals and revenue for one status.
type StatusBucket struct {
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// PipelineHealth is the live snapshot behind the dashboard KPIs.
type PipelineHealth struct {
	TotalDeals    int                          `json:"totalDeals"`
	TotalRevenue  float64                      `json:"totalRevenue"`
	AtRiskDeals   int                          `json:"atRiskDeals"`
	AtRiskRevenue float64                      `json:"atRiskRevenue"`
	HealthScore   int                          `json:"healthScore"`
	ByStatus      map[deal.Status]StatusBucket `json:"byStatus"`
}

// StageBreakdown summarizes one stage.
type StageBreakdown struct {
	Stage        string              `json:"stage"`
	TotalDeals   int                 `json:"totalDeals"`
	AvgDaysStale int                 `json:"avgDaysStale"`
	TotalRevenue float64             `json:"totalRevenue"`
	ByStatus     map[deal.Status]int `json:"byStatus"`
}

// RepStats is one row of the rep leaderboard.
type RepStats struct {
	UserID       uuid.UUID           `json:"userId"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Role         team.Role           `json:"role"`
	TotalDeals   int                 `json:"totalDeals"`
	HealthScore  int                 `json:"healthScore"`
	AtRiskDeals  int                 `json:"atRiskDeals"`
	TotalRevenue float64             `json:"totalRevenue"`
	ByStatus     map[deal.Status]int `json:"byStatus"`
}

// AnalyticsService computes live snapshots over active deals. There is no
// history; trends need an external snapshot job.
type AnalyticsService struct {
	deals deal.Repository
	users team.UserRepository
}

func NewAnalyticsService(deals deal.Repository, users team.UserRepository) *AnalyticsService {
	return &AnalyticsService{deals: deals, users: users}
}

func (s *AnalyticsService) PipelineHealth(ctx context.Context, teamID uuid.UUID) (*PipelineHealth, error) {
	deals, err := s.deals.ListActiveByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	h := &PipelineHealth{ByStatus: make(map[deal.Status]StatusBucket, len(deal.AllStatuses))}
	for _, st := range deal.AllStatuses {
		h.ByStatus[st] = StatusBucket{}
	}
	for _, d := range deals {
		b := h.ByStatus[d.Status]
		b.Count++
		b.Revenue += d.Amount
		h.ByStatus[d.Status] = b

		h.TotalDeals++
		h.TotalRevenue += d.Amount
		if d.Status.IsEscalated() {
			h.AtRiskDeals++
			h.AtRiskRevenue += d.Amount
		}
	}
	h.HealthScore = healthScore(h.ByStatus[deal.StatusHealthy].Count, h.TotalDeals)
	return h, nil
}

// StageBreakdown reports the arithmetic mean of daysStale per stage.
func (s *AnalyticsService) StageBreakdown(ctx context.Context, teamID uuid.UUID) ([]StageBreakdown, error) {
	deals, err := s.deals.ListActiveByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	type acc struct {
		row     StageBreakdown
		sumDays int
	}
	byStage := make(map[string]*acc)
	for _, d := range deals {
		a, ok := byStage[d.Stage]
		if !ok {
			a = &acc{row: StageBreakdown{Stage: d.Stage, ByStatus: make(map[deal.Status]int)}}
			byStage[d.Stage] = a
		}
		a.row.TotalDeals++
		a.row.TotalRevenue += d.Amount
		a.row.ByStatus[d.Status]++
		a.sumDays += d.DaysStale
	}

	out := make([]StageBreakdown, 0, len(byStage))
	for _, a := range byStage {
		a.row.AvgDaysStale = int(math.Round(float64(a.sumDays) / float64(a.row.TotalDeals)))
		out = append(out, a.row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

// RepStats ranks active team members by health score; members without deals
// come last.
func (s *AnalyticsService) RepStats(ctx context.Context, teamID uuid.UUID) ([]RepStats, error) {
	users, err := s.users.ListActive(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	deals, err := s.deals.ListActiveByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}

	stats := make(map[uuid.UUID]*RepStats, len(users))
	out := make([]*RepStats, 0, len(users))
	for _, u := range users {
		r := &RepStats{
			UserID:   u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Role:     u.Role,
			ByStatus: make(map[deal.Status]int, len(deal.AllStatuses)),
		}
		for _, st := range deal.AllStatuses {
			r.ByStatus[st] = 0
		}
		stats[u.ID] = r
		out = append(out, r)
	}

	for _, d := range deals {
		if !d.OwnerID.Valid {
			continue
		}
		r, ok := stats[d.OwnerID.UUID]
		if !ok {
			continue
		}
		r.ByStatus[d.Status]++
		r.TotalDeals++
		r.TotalRevenue += d.Amount
		if d.Status.IsEscalated() {
			r.AtRiskDeals++
		}
	}

	result := make([]RepStats, 0, len(out))
	for _, r := range out {
		r.HealthScore = healthScore(r.ByStatus[deal.StatusHealthy], r.TotalDeals)
		result = append(result, *r)
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if (a.TotalDeals == 0) != (b.TotalDeals == 0) {
			return b.TotalDeals == 0
		}
		return a.HealthScore > b.HealthScore
	})
	return result, nil
}

func healthScore(healthy, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(healthy) / float64(total) * 100))
}
