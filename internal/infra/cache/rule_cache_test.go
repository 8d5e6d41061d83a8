package cache

import (
	"context"
	"testing"
	"time"

	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/infra/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRules struct {
	rule.Repository
	finds int
}

func (c *countingRules) FindActive(ctx context.Context, teamID uuid.UUID, pipeline, stage string) (*rule.Rule, error) {
	c.finds++
	return c.Repository.FindActive(ctx, teamID, pipeline, stage)
}

func newRule(teamID uuid.UUID, stage string) *rule.Rule {
	return &rule.Rule{
		ID:             uuid.New(),
		TeamID:         teamID,
		Pipeline:       "default",
		Stage:          stage,
		Thresholds:     rule.Thresholds{WarningDays: 7, StaleDays: 10, CriticalDays: 14},
		NotifyChannels: []string{"slack"},
		Lifecycle:      rule.LifecycleActive,
	}
}

func TestCachedRuleRepository_HitsAndMisses(t *testing.T) {
	ctx := context.Background()
	teamID := uuid.New()
	store := memory.NewStore()
	store.AddRule(newRule(teamID, "proposal"))

	inner := &countingRules{Repository: store.Rules()}
	c := NewCachedRuleRepository(inner, time.Minute)

	for i := 0; i < 3; i++ {
		r, err := c.FindActive(ctx, teamID, "default", "proposal")
		require.NoError(t, err)
		assert.Equal(t, "proposal", r.Stage)
	}
	assert.Equal(t, 1, inner.finds)

	for i := 0; i < 3; i++ {
		_, err := c.FindActive(ctx, teamID, "default", "demo")
		assert.ErrorIs(t, err, rule.ErrNotFound)
	}
	assert.Equal(t, 2, inner.finds)
}

func TestCachedRuleRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	teamID := uuid.New()
	store := memory.NewStore()
	store.AddRule(newRule(teamID, "proposal"))
	c := NewCachedRuleRepository(store.Rules(), time.Minute)

	first, err := c.FindActive(ctx, teamID, "default", "proposal")
	require.NoError(t, err)
	first.NotifyChannels[0] = "email"
	first.Thresholds.WarningDays = 1

	second, err := c.FindActive(ctx, teamID, "default", "proposal")
	require.NoError(t, err)
	assert.Equal(t, []string{"slack"}, second.NotifyChannels)
	assert.Equal(t, 7, second.Thresholds.WarningDays)
}

func TestCachedRuleRepository_WritesInvalidateTeam(t *testing.T) {
	ctx := context.Background()
	teamID, otherTeam := uuid.New(), uuid.New()
	store := memory.NewStore()
	existing := newRule(teamID, "proposal")
	store.AddRule(existing)
	store.AddRule(newRule(otherTeam, "proposal"))

	inner := &countingRules{Repository: store.Rules()}
	c := NewCachedRuleRepository(inner, time.Minute)

	_, err := c.FindActive(ctx, teamID, "default", "demo")
	require.ErrorIs(t, err, rule.ErrNotFound)
	_, err = c.FindActive(ctx, otherTeam, "default", "proposal")
	require.NoError(t, err)
	require.Equal(t, 2, inner.finds)

	require.NoError(t, c.Create(ctx, newRule(teamID, "demo")))

	r, err := c.FindActive(ctx, teamID, "default", "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", r.Stage)
	_, err = c.FindActive(ctx, otherTeam, "default", "proposal")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.finds)

	require.NoError(t, c.Deactivate(ctx, teamID, existing.ID))
	_, err = c.FindActive(ctx, teamID, "default", "proposal")
	assert.ErrorIs(t, err, rule.ErrNotFound)
}
