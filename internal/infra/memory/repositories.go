package memory

import (
	"context"
	"sort"
	"time"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
)

type TeamRepository struct{ s *Store }

func (r *TeamRepository) List(ctx context.Context) ([]*team.Team, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*team.Team, 0, len(r.s.teams))
	for _, t := range r.s.teams {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*team.Team, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, team.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*team.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, team.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*team.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.TelegramID.Valid && u.TelegramID.Int64 == telegramID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, team.ErrUserNotFound
}

func (r *UserRepository) ListActiveByRoles(ctx context.Context, teamID uuid.UUID, roles []team.Role) ([]*team.User, error) {
	return r.listActive(teamID, func(u *team.User) bool {
		for _, role := range roles {
			if u.Role == role {
				return true
			}
		}
		return false
	}), nil
}

func (r *UserRepository) ListActive(ctx context.Context, teamID uuid.UUID) ([]*team.User, error) {
	return r.listActive(teamID, func(*team.User) bool { return true }), nil
}

func (r *UserRepository) listActive(teamID uuid.UUID, keep func(*team.User) bool) []*team.User {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*team.User
	for _, u := range r.s.users {
		if u.TeamID == teamID && u.IsActive && keep(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sortUsersByName(out)
	return out
}

type DealRepository struct{ s *Store }

func (r *DealRepository) ListActiveByTeam(ctx context.Context, teamID uuid.UUID) ([]*deal.Deal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*deal.Deal
	for _, d := range r.s.deals {
		if d.TeamID == teamID && d.IsActive() {
			out = append(out, copyDeal(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.Before(out[j].LastActivityAt) })
	return out, nil
}

func (r *DealRepository) GetActive(ctx context.Context, teamID, dealID uuid.UUID) (*deal.Deal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.deals[dealID]
	if !ok || d.TeamID != teamID || !d.IsActive() {
		return nil, deal.ErrNotFound
	}
	return copyDeal(d), nil
}

func (r *DealRepository) ClearSnooze(ctx context.Context, dealID uuid.UUID) error {
	return r.update(dealID, func(d *deal.Deal) {
		d.SnoozedUntil = nil
		d.SnoozeReason = nil
		d.UpdatedAt = time.Now()
	})
}

func (r *DealRepository) UpdateStatus(ctx context.Context, dealID uuid.UUID, status deal.Status, daysStale int) error {
	return r.update(dealID, func(d *deal.Deal) {
		d.Status = status
		d.DaysStale = daysStale
		d.UpdatedAt = time.Now()
	})
}

func (r *DealRepository) UpdateDaysStale(ctx context.Context, dealID uuid.UUID, daysStale int) error {
	return r.update(dealID, func(d *deal.Deal) {
		d.DaysStale = daysStale
	})
}

func (r *DealRepository) Snooze(ctx context.Context, dealID uuid.UUID, until time.Time, reason string) error {
	return r.update(dealID, func(d *deal.Deal) {
		u := until
		d.SnoozedUntil = &u
		if reason != "" {
			d.SnoozeReason = &reason
		} else {
			d.SnoozeReason = nil
		}
		d.Status = deal.StatusHealthy
		d.UpdatedAt = time.Now()
	})
}

func (r *DealRepository) SoftDelete(ctx context.Context, dealID uuid.UUID) error {
	return r.update(dealID, func(d *deal.Deal) {
		d.Lifecycle = deal.LifecycleDeleted
		d.UpdatedAt = time.Now()
	})
}

func (r *DealRepository) update(dealID uuid.UUID, fn func(*deal.Deal)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deals[dealID]
	if !ok || !d.IsActive() {
		return deal.ErrNotFound
	}
	fn(d)
	return nil
}

type RuleRepository struct{ s *Store }

func (r *RuleRepository) FindActive(ctx context.Context, teamID uuid.UUID, pipeline, stage string) (*rule.Rule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rl := range r.s.rules {
		if rl.TeamID == teamID && rl.Pipeline == pipeline && rl.Stage == stage && rl.IsActive() {
			return copyRule(rl), nil
		}
	}
	return nil, rule.ErrNotFound
}

func (r *RuleRepository) GetByID(ctx context.Context, teamID, ruleID uuid.UUID) (*rule.Rule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rl, ok := r.s.rules[ruleID]
	if !ok || rl.TeamID != teamID {
		return nil, rule.ErrNotFound
	}
	return copyRule(rl), nil
}

func (r *RuleRepository) List(ctx context.Context, teamID uuid.UUID, filter rule.ListFilter) ([]*rule.Rule, error) {
	active := true
	if filter.Active != nil {
		active = *filter.Active
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*rule.Rule
	for _, rl := range r.s.rules {
		if rl.TeamID != teamID || rl.IsActive() != active {
			continue
		}
		if filter.Pipeline != "" && rl.Pipeline != filter.Pipeline {
			continue
		}
		if filter.Stage != "" && rl.Stage != filter.Stage {
			continue
		}
		out = append(out, copyRule(rl))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pipeline != out[j].Pipeline {
			return out[i].Pipeline < out[j].Pipeline
		}
		return out[i].Stage < out[j].Stage
	})
	return out, nil
}

func (r *RuleRepository) Create(ctx context.Context, rl *rule.Rule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rl.IsActive() && r.hasActiveLocked(rl) {
		return rule.ErrDuplicateActive
	}
	r.s.rules[rl.ID] = copyRule(rl)
	return nil
}

func (r *RuleRepository) Update(ctx context.Context, rl *rule.Rule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rules[rl.ID]
	if !ok || existing.TeamID != rl.TeamID {
		return rule.ErrNotFound
	}
	if rl.IsActive() && r.hasActiveLocked(rl) {
		return rule.ErrDuplicateActive
	}
	r.s.rules[rl.ID] = copyRule(rl)
	return nil
}

func (r *RuleRepository) Deactivate(ctx context.Context, teamID, ruleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rl, ok := r.s.rules[ruleID]
	if !ok || rl.TeamID != teamID {
		return rule.ErrNotFound
	}
	rl.Lifecycle = rule.LifecycleInactive
	rl.UpdatedAt = time.Now()
	return nil
}

// hasActiveLocked mirrors the partial unique index on active rules.
func (r *RuleRepository) hasActiveLocked(rl *rule.Rule) bool {
	for id, other := range r.s.rules {
		if id != rl.ID && other.IsActive() && other.TeamID == rl.TeamID &&
			other.Pipeline == rl.Pipeline && other.Stage == rl.Stage {
			return true
		}
	}
	return false
}

type NotificationRepository struct{ s *Store }

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications = append(r.s.notifications, copyNotification(n))
	return nil
}

func (r *NotificationRepository) ExistsSince(ctx context.Context, dealID, userID uuid.UUID, t notification.Type, since time.Time) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, n := range r.s.notifications {
		if n.DealID == dealID && n.UserID == userID && n.Type == t && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *NotificationRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, filter notification.ListFilter) ([]*notification.View, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var matched []*notification.View
	for _, n := range r.s.notifications {
		d, ok := r.s.deals[n.DealID]
		if !ok || d.TeamID != teamID {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		v := &notification.View{
			Notification: *copyNotification(n),
			DealName:     d.Name,
			DealStage:    d.Stage,
		}
		if u, ok := r.s.users[n.UserID]; ok {
			v.UserName = u.Name
			v.UserEmail = u.Email
		}
		matched = append(matched, v)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id && n.UserID == userID {
			n.Status = notification.StatusDelivered
			if n.OpenedAt == nil {
				t := at
				n.OpenedAt = &t
			}
			return nil
		}
	}
	return notification.ErrNotFound
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && n.Status == notification.StatusPending {
			n.Status = notification.StatusDelivered
			t := at
			n.OpenedAt = &t
			count++
		}
	}
	return count, nil
}

var (
	_ team.Repository         = (*TeamRepository)(nil)
	_ team.UserRepository     = (*UserRepository)(nil)
	_ deal.Repository         = (*DealRepository)(nil)
	_ rule.Repository         = (*RuleRepository)(nil)
	_ notification.Repository = (*NotificationRepository)(nil)
)
