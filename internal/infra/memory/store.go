// Package memory keeps every repository in process. It backs STORE_DRIVER=memory
// and the tests. Reads and writes go through copies so callers can mutate what
// they get back.
package memory

import (
	"sort"
	"sync"

	"deal_staleness_monitor/internal/domain/deal"
	"deal_staleness_monitor/internal/domain/notification"
	"deal_staleness_monitor/internal/domain/rule"
	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
)

type Store struct {
	mu            sync.RWMutex
	teams         map[uuid.UUID]*team.Team
	users         map[uuid.UUID]*team.User
	deals         map[uuid.UUID]*deal.Deal
	rules         map[uuid.UUID]*rule.Rule
	notifications []*notification.Notification
}

func NewStore() *Store {
	return &Store{
		teams: make(map[uuid.UUID]*team.Team),
		users: make(map[uuid.UUID]*team.User),
		deals: make(map[uuid.UUID]*deal.Deal),
		rules: make(map[uuid.UUID]*rule.Rule),
	}
}

func (s *Store) Teams() *TeamRepository                 { return &TeamRepository{s: s} }
func (s *Store) Users() *UserRepository                 { return &UserRepository{s: s} }
func (s *Store) Deals() *DealRepository                 { return &DealRepository{s: s} }
func (s *Store) Rules() *RuleRepository                 { return &RuleRepository{s: s} }
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s: s} }

// AddTeam, AddUser, AddDeal and AddRule seed the store.

func (s *Store) AddTeam(t *team.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.teams[t.ID] = &cp
}

func (s *Store) AddUser(u *team.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *Store) AddDeal(d *deal.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyDeal(d)
	cp.Status = deal.StoredStatus(string(cp.Status))
	s.deals[d.ID] = cp
}

func (s *Store) AddRule(r *rule.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = copyRule(r)
}

// Deal returns a copy of the stored deal regardless of lifecycle.
func (s *Store) Deal(id uuid.UUID) (*deal.Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	if !ok {
		return nil, false
	}
	return copyDeal(d), true
}

// NotificationsFor returns copies of the notifications created for a deal,
// oldest first.
func (s *Store) NotificationsFor(dealID uuid.UUID) []*notification.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notification.Notification
	for _, n := range s.notifications {
		if n.DealID == dealID {
			out = append(out, copyNotification(n))
		}
	}
	return out
}

func copyDeal(d *deal.Deal) *deal.Deal {
	cp := *d
	if d.SnoozedUntil != nil {
		t := *d.SnoozedUntil
		cp.SnoozedUntil = &t
	}
	if d.SnoozeReason != nil {
		r := *d.SnoozeReason
		cp.SnoozeReason = &r
	}
	return &cp
}

func copyRule(r *rule.Rule) *rule.Rule {
	cp := *r
	cp.NotifyChannels = append([]string(nil), r.NotifyChannels...)
	return &cp
}

func copyNotification(n *notification.Notification) *notification.Notification {
	cp := *n
	if n.OpenedAt != nil {
		t := *n.OpenedAt
		cp.OpenedAt = &t
	}
	return &cp
}

func sortUsersByName(users []*team.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
}
