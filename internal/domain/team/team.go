package team

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTeamNotFound = errors.New("team not found")
	ErrUserNotFound = errors.New("user not found")
)

// Team is the tenant boundary.
type Team struct {
	ID        uuid.UUID
	Name      string
	Timezone  string
	CreatedAt time.Time
}

// Role gates escalation notifications and manual triggers.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleRep     Role = "rep"
)

// EscalationRoles receive escalations for stale and critical deals.
var EscalationRoles = []Role{RoleAdmin, RoleManager}

// CanEscalate reports whether the role receives escalations and may run checks manually.
func (r Role) CanEscalate() bool {
	return r == RoleAdmin || r == RoleManager
}

// User is a team member.
type User struct {
	ID         uuid.UUID
	TeamID     uuid.UUID
	Name       string
	Email      string
	Role       Role
	IsActive   bool
	TelegramID sql.NullInt64
	CreatedAt  time.Time
}
