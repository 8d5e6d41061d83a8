package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"deal_staleness_monitor/internal/domain/deal"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const dealColumns = `id, team_id, name, owner_id, stage, pipeline, amount, currency,
	last_activity_at, status, days_stale, snoozed_until, snooze_reason, is_active,
	created_at, updated_at`

type dealRow struct {
	ID             uuid.UUID      `db:"id"`
	TeamID         uuid.UUID      `db:"team_id"`
	Name           string         `db:"name"`
	OwnerID        uuid.NullUUID  `db:"owner_id"`
	Stage          string         `db:"stage"`
	Pipeline       sql.NullString `db:"pipeline"`
	Amount         float64        `db:"amount"`
	Currency       string         `db:"currency"`
	LastActivityAt time.Time      `db:"last_activity_at"`
	Status         string         `db:"status"`
	DaysStale      int            `db:"days_stale"`
	SnoozedUntil   sql.NullTime   `db:"snoozed_until"`
	SnoozeReason   sql.NullString `db:"snooze_reason"`
	IsActive       bool           `db:"is_active"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// toDomain never rejects a row; an unrecognised status is left for the engine
// to fail on that deal alone.
func (r dealRow) toDomain() *deal.Deal {
	d := &deal.Deal{
		ID:             r.ID,
		TeamID:         r.TeamID,
		Name:           r.Name,
		OwnerID:        r.OwnerID,
		Stage:          r.Stage,
		Pipeline:       r.Pipeline.String,
		Amount:         r.Amount,
		Currency:       r.Currency,
		LastActivityAt: r.LastActivityAt,
		Status:         deal.StoredStatus(r.Status),
		DaysStale:      r.DaysStale,
		Lifecycle:      deal.LifecycleActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if !r.IsActive {
		d.Lifecycle = deal.LifecycleDeleted
	}
	if r.SnoozedUntil.Valid {
		t := r.SnoozedUntil.Time
		d.SnoozedUntil = &t
	}
	if r.SnoozeReason.Valid {
		s := r.SnoozeReason.String
		d.SnoozeReason = &s
	}
	return d
}

type PostgresDealRepository struct {
	db *sqlx.DB
}

func NewPostgresDealRepository(db *sqlx.DB) *PostgresDealRepository {
	return &PostgresDealRepository{db: db}
}

func (r *PostgresDealRepository) ListActiveByTeam(ctx context.Context, teamID uuid.UUID) ([]*deal.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
               WHERE team_id = $1 AND is_active = TRUE
               ORDER BY last_activity_at ASC`
	var rows []dealRow
	if err := r.db.SelectContext(ctx, &rows, query, teamID); err != nil {
		return nil, fmt.Errorf("error listing active deals: %w", err)
	}
	deals := make([]*deal.Deal, 0, len(rows))
	for _, row := range rows {
		deals = append(deals, row.toDomain())
	}
	return deals, nil
}

func (r *PostgresDealRepository) GetActive(ctx context.Context, teamID, dealID uuid.UUID) (*deal.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals
               WHERE id = $1 AND team_id = $2 AND is_active = TRUE`
	var row dealRow
	if err := r.db.GetContext(ctx, &row, query, dealID, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, deal.ErrNotFound
		}
		return nil, fmt.Errorf("error getting deal: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresDealRepository) ClearSnooze(ctx context.Context, dealID uuid.UUID) error {
	query := `UPDATE deals SET snoozed_until = NULL, snooze_reason = NULL, updated_at = NOW()
               WHERE id = $1`
	return r.execOne(ctx, "clearing deal snooze", query, dealID)
}

func (r *PostgresDealRepository) UpdateStatus(ctx context.Context, dealID uuid.UUID, status deal.Status, daysStale int) error {
	query := `UPDATE deals SET status = $1, days_stale = $2, updated_at = NOW()
               WHERE id = $3`
	return r.execOne(ctx, "updating deal status", query, status.String(), daysStale, dealID)
}

// UpdateDaysStale leaves updated_at alone; only status changes bump it.
func (r *PostgresDealRepository) UpdateDaysStale(ctx context.Context, dealID uuid.UUID, daysStale int) error {
	query := `UPDATE deals SET days_stale = $1 WHERE id = $2`
	return r.execOne(ctx, "updating deal days stale", query, daysStale, dealID)
}

func (r *PostgresDealRepository) Snooze(ctx context.Context, dealID uuid.UUID, until time.Time, reason string) error {
	query := `UPDATE deals
               SET snoozed_until = $1, snooze_reason = NULLIF($2, ''), status = $3, updated_at = NOW()
               WHERE id = $4 AND is_active = TRUE`
	return r.execOne(ctx, "snoozing deal", query, until, reason, deal.StatusHealthy.String(), dealID)
}

func (r *PostgresDealRepository) SoftDelete(ctx context.Context, dealID uuid.UUID) error {
	query := `UPDATE deals SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active = TRUE`
	return r.execOne(ctx, "deleting deal", query, dealID)
}

func (r *PostgresDealRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error %s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected while %s: %w", op, err)
	}
	if rowsAffected == 0 {
		return deal.ErrNotFound
	}
	return nil
}
