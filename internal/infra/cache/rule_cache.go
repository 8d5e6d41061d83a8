package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"deal_staleness_monitor/internal/domain/rule"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// CachedRuleRepository memoizes FindActive, the lookup the engine issues once
// or twice per deal. Misses are cached too. Any write through the repository
// drops the team's entries; writes from other processes are visible after ttl.
type CachedRuleRepository struct {
	rule.Repository
	cache *gocache.Cache
}

func NewCachedRuleRepository(next rule.Repository, ttl time.Duration) *CachedRuleRepository {
	return &CachedRuleRepository{
		Repository: next,
		cache:      gocache.New(ttl, 2*ttl),
	}
}

type cachedLookup struct {
	rule *rule.Rule
}

func (c *CachedRuleRepository) FindActive(ctx context.Context, teamID uuid.UUID, pipeline, stage string) (*rule.Rule, error) {
	key := lookupKey(teamID, pipeline, stage)
	if v, found := c.cache.Get(key); found {
		entry := v.(cachedLookup)
		if entry.rule == nil {
			return nil, rule.ErrNotFound
		}
		return copyRule(entry.rule), nil
	}

	r, err := c.Repository.FindActive(ctx, teamID, pipeline, stage)
	switch {
	case err == nil:
		c.cache.SetDefault(key, cachedLookup{rule: copyRule(r)})
	case errors.Is(err, rule.ErrNotFound):
		c.cache.SetDefault(key, cachedLookup{})
	}
	return r, err
}

func (c *CachedRuleRepository) Create(ctx context.Context, r *rule.Rule) error {
	defer c.InvalidateTeam(r.TeamID)
	return c.Repository.Create(ctx, r)
}

func (c *CachedRuleRepository) Update(ctx context.Context, r *rule.Rule) error {
	defer c.InvalidateTeam(r.TeamID)
	return c.Repository.Update(ctx, r)
}

func (c *CachedRuleRepository) Deactivate(ctx context.Context, teamID, ruleID uuid.UUID) error {
	defer c.InvalidateTeam(teamID)
	return c.Repository.Deactivate(ctx, teamID, ruleID)
}

// InvalidateTeam drops every cached lookup for the team.
func (c *CachedRuleRepository) InvalidateTeam(teamID uuid.UUID) {
	prefix := teamID.String() + "|"
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}

func lookupKey(teamID uuid.UUID, pipeline, stage string) string {
	return teamID.String() + "|" + pipeline + "|" + stage
}

func copyRule(r *rule.Rule) *rule.Rule {
	cp := *r
	cp.NotifyChannels = append([]string(nil), r.NotifyChannels...)
	return &cp
}
