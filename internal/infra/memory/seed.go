package memory

import (
	"fmt"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
)

// seedNamespace derives stable ids, so a token minted for a demo user keeps
// working across restarts.
var seedNamespace = uuid.MustParse("5c0e6a3e-8d57-4b8e-9c43-2f1d3a6b7e90")

// SeedID returns the id Seed gives to the record with the given key, for
// example an email address or "team".
func SeedID(key string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(key))
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	TeamID uuid.UUID
	Users  []*team.User
	Rules  int
	Deals  int
}

// Summary returns a one-line description for the startup log.
func (r SeedResult) Summary() string {
	return fmt.Sprintf("team=%s users=%d rules=%d deals=%d", r.TeamID, len(r.Users), r.Rules, r.Deals)
}

type seedRule struct {
	stage             string
	warn, stale, crit int
	action            string
}

type seedDeal struct {
	name   string
	stage  string
	amount float64
	days   int
	status deal.Status
	owner  string
}

var seedRules = []seedRule{
	{"Discovery", 7, 10, 14, "Send a discovery follow-up email and schedule a call"},
	{"Proposal", 5, 8, 12, "Follow up on the proposal and address any objections"},
	{"Negotiation", 3, 5, 7, "Schedule a negotiation call to resolve blockers"},
	{"Closing", 2, 4, 6, "Call the contact directly to close the deal"},
}

// One deal per band per stage, classified against seedRules.
var seedDeals = []seedDeal{
	{"Zenith Tech Partnership", "Discovery", 85000, 3, deal.StatusHealthy, "sarah"},
	{"GlobalMart Expansion Suite", "Discovery", 240000, 8, deal.StatusWarning, "marcus"},
	{"Apex Solutions Platform", "Discovery", 120000, 11, deal.StatusStale, "emma"},
	{"Pacific Rim Networks Deal", "Discovery", 310000, 17, deal.StatusCritical, "sarah"},

	{"Northern Star Insurance", "Proposal", 95000, 2, deal.StatusHealthy, "marcus"},
	{"DataStream Analytics Pro", "Proposal", 178000, 6, deal.StatusWarning, "emma"},
	{"CloudFirst Migration Deal", "Proposal", 430000, 9, deal.StatusStale, "sarah"},
	{"RetailEdge Commerce Platform", "Proposal", 225000, 14, deal.StatusCritical, "marcus"},

	{"Vertex Capital Management", "Negotiation", 550000, 1, deal.StatusHealthy, "emma"},
	{"Meridian Healthcare Systems", "Negotiation", 890000, 4, deal.StatusWarning, "sarah"},
	{"Frontier Logistics Network", "Negotiation", 340000, 6, deal.StatusStale, "marcus"},
	{"BlueSky Aviation Corp", "Negotiation", 1200000, 10, deal.StatusCritical, "emma"},
	{"Quantum Dynamics Inc", "Negotiation", 275000, 2, deal.StatusHealthy, "sarah"},

	{"Ironwood Financial Group", "Closing", 720000, 1, deal.StatusHealthy, "marcus"},
	{"Summit Retail Group", "Closing", 490000, 3, deal.StatusWarning, "emma"},
	{"Cascade Energy Solutions", "Closing", 980000, 5, deal.StatusStale, "sarah"},
	{"Lighthouse Media Partners", "Closing", 660000, 8, deal.StatusCritical, "marcus"},
	{"Pinnacle Software Enterprise", "Closing", 415000, 1, deal.StatusHealthy, "emma"},
}

// Seed loads a demo sales team into the store: one admin, one manager, three
// reps, a rule per stage and deals spread across every staleness band.
// Seeding twice overwrites the same records.
func Seed(s *Store, now time.Time) SeedResult {
	now = now.UTC()
	teamID := SeedID("team")
	s.AddTeam(&team.Team{
		ID:        teamID,
		Name:      "Acme Corp Sales",
		Timezone:  "America/New_York",
		CreatedAt: now,
	})
	res := SeedResult{TeamID: teamID}

	people := []struct {
		key, name string
		role      team.Role
	}{
		{"admin", "Alex Rivera", team.RoleAdmin},
		{"david", "David Rodriguez", team.RoleManager},
		{"sarah", "Sarah Johnson", team.RoleRep},
		{"marcus", "Marcus Williams", team.RoleRep},
		{"emma", "Emma Chen", team.RoleRep},
	}
	owners := make(map[string]uuid.UUID, len(people))
	for _, p := range people {
		email := p.key + "@acmesales.com"
		u := &team.User{
			ID:        SeedID(email),
			TeamID:    teamID,
			Name:      p.name,
			Email:     email,
			Role:      p.role,
			IsActive:  true,
			CreatedAt: now,
		}
		s.AddUser(u)
		owners[p.key] = u.ID
		res.Users = append(res.Users, u)
	}

	for _, sr := range seedRules {
		s.AddRule(&rule.Rule{
			ID:              SeedID("rule:" + sr.stage),
			TeamID:          teamID,
			Pipeline:        deal.DefaultPipeline,
			Stage:           sr.stage,
			Thresholds:      rule.Thresholds{WarningDays: sr.warn, StaleDays: sr.stale, CriticalDays: sr.crit},
			SuggestedAction: sr.action,
			NotifyChannels:  []string{rule.DefaultChannel},
			Lifecycle:       rule.LifecycleActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		res.Rules++
	}

	for i, sd := range seedDeals {
		s.AddDeal(&deal.Deal{
			ID:             SeedID(fmt.Sprintf("deal:SEED-%03d", i+1)),
			TeamID:         teamID,
			Name:           sd.name,
			OwnerID:        uuid.NullUUID{UUID: owners[sd.owner], Valid: true},
			Stage:          sd.stage,
			Pipeline:       deal.DefaultPipeline,
			Amount:         sd.amount,
			Currency:       "USD",
			LastActivityAt: now.Add(-time.Duration(sd.days) * 24 * time.Hour),
			Status:         sd.status,
			DaysStale:      sd.days,
			Lifecycle:      deal.LifecycleActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		res.Deals++
	}
	return res
}
