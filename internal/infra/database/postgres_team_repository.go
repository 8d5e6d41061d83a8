package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/domain/team"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresTeamRepository struct {
	db *sqlx.DB
}

func NewPostgresTeamRepository(db *sqlx.DB) *PostgresTeamRepository {
	return &PostgresTeamRepository{db: db}
}

type teamRow struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Timezone  string    `db:"timezone"`
	CreatedAt time.Time `db:"created_at"`
}

func (r teamRow) toDomain() *team.Team {
	return &team.Team{ID: r.ID, Name: r.Name, Timezone: r.Timezone, CreatedAt: r.CreatedAt}
}

func (r *PostgresTeamRepository) List(ctx context.Context) ([]*team.Team, error) {
	query := `SELECT id, name, timezone, created_at FROM teams ORDER BY created_at ASC`
	var rows []teamRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("error listing teams: %w", err)
	}
	teams := make([]*team.Team, 0, len(rows))
	for _, row := range rows {
		teams = append(teams, row.toDomain())
	}
	return teams, nil
}

func (r *PostgresTeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*team.Team, error) {
	query := `SELECT id, name, timezone, created_at FROM teams WHERE id = $1`
	var row teamRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, team.ErrTeamNotFound
		}
		return nil, fmt.Errorf("error getting team by ID: %w", err)
	}
	return row.toDomain(), nil
}

type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, team_id, name, email, role, is_active, telegram_id, created_at`

type userRow struct {
	ID         uuid.UUID     `db:"id"`
	TeamID     uuid.UUID     `db:"team_id"`
	Name       string        `db:"name"`
	Email      string        `db:"email"`
	Role       string        `db:"role"`
	IsActive   bool          `db:"is_active"`
	TelegramID sql.NullInt64 `db:"telegram_id"`
	CreatedAt  time.Time     `db:"created_at"`
}

func (r userRow) toDomain() *team.User {
	return &team.User{
		ID:         r.ID,
		TeamID:     r.TeamID,
		Name:       r.Name,
		Email:      r.Email,
		Role:       team.Role(r.Role),
		IsActive:   r.IsActive,
		TelegramID: r.TelegramID,
		CreatedAt:  r.CreatedAt,
	}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*team.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*team.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, arg interface{}) (*team.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, team.ErrUserNotFound
		}
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresUserRepository) ListActiveByRoles(ctx context.Context, teamID uuid.UUID, roles []team.Role) ([]*team.User, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	query := `SELECT ` + userColumns + ` FROM users
               WHERE team_id = $1 AND is_active = TRUE AND role = ANY($2)
               ORDER BY name ASC`
	return r.list(ctx, query, teamID, pq.Array(names))
}

func (r *PostgresUserRepository) ListActive(ctx context.Context, teamID uuid.UUID) ([]*team.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
               WHERE team_id = $1 AND is_active = TRUE
               ORDER BY name ASC`
	return r.list(ctx, query, teamID)
}

func (r *PostgresUserRepository) list(ctx context.Context, query string, args ...interface{}) ([]*team.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	users := make([]*team.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toDomain())
	}
	return users, nil
}
