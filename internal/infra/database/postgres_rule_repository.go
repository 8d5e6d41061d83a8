package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"deal_staleness_monitor/internal/domain/rule"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const ruleColumns = `id, team_id, pipeline, stage, warning_days, stale_days, critical_days,
	suggested_action, notify_channels, min_deal_amount, is_active, created_at, updated_at`

type ruleRow struct {
	ID              uuid.UUID      `db:"id"`
	TeamID          uuid.UUID      `db:"team_id"`
	Pipeline        string         `db:"pipeline"`
	Stage           string         `db:"stage"`
	WarningDays     int            `db:"warning_days"`
	StaleDays       int            `db:"stale_days"`
	CriticalDays    int            `db:"critical_days"`
	SuggestedAction sql.NullString `db:"suggested_action"`
	NotifyChannels  pq.StringArray `db:"notify_channels"`
	MinDealAmount   float64        `db:"min_deal_amount"`
	IsActive        bool           `db:"is_active"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r ruleRow) toDomain() *rule.Rule {
	return &rule.Rule{
		ID:       r.ID,
		TeamID:   r.TeamID,
		Pipeline: r.Pipeline,
		Stage:    r.Stage,
		Thresholds: rule.Thresholds{
			WarningDays:  r.WarningDays,
			StaleDays:    r.StaleDays,
			CriticalDays: r.CriticalDays,
		},
		SuggestedAction: r.SuggestedAction.String,
		NotifyChannels:  []string(r.NotifyChannels),
		MinDealAmount:   r.MinDealAmount,
		Lifecycle:       rule.LifecycleFor(r.IsActive),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type PostgresRuleRepository struct {
	db *sqlx.DB
}

func NewPostgresRuleRepository(db *sqlx.DB) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

// FindActive relies on the partial unique index over (team_id, pipeline, stage)
// WHERE is_active, so at most one row matches.
func (r *PostgresRuleRepository) FindActive(ctx context.Context, teamID uuid.UUID, pipeline, stage string) (*rule.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules
               WHERE team_id = $1 AND pipeline = $2 AND stage = $3 AND is_active = TRUE
               LIMIT 1`
	var row ruleRow
	if err := r.db.GetContext(ctx, &row, query, teamID, pipeline, stage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rule.ErrNotFound
		}
		return nil, fmt.Errorf("error finding active rule: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresRuleRepository) GetByID(ctx context.Context, teamID, ruleID uuid.UUID) (*rule.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1 AND team_id = $2`
	var row ruleRow
	if err := r.db.GetContext(ctx, &row, query, ruleID, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rule.ErrNotFound
		}
		return nil, fmt.Errorf("error getting rule by ID: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PostgresRuleRepository) List(ctx context.Context, teamID uuid.UUID, filter rule.ListFilter) ([]*rule.Rule, error) {
	conditions := []string{"team_id = $1"}
	args := []interface{}{teamID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	active := true
	if filter.Active != nil {
		active = *filter.Active
	}
	add("is_active = $%d", active)
	if filter.Pipeline != "" {
		add("pipeline = $%d", filter.Pipeline)
	}
	if filter.Stage != "" {
		add("stage = $%d", filter.Stage)
	}

	query := `SELECT ` + ruleColumns + ` FROM rules WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY pipeline ASC, stage ASC`
	var rows []ruleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error listing rules: %w", err)
	}
	rules := make([]*rule.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, row.toDomain())
	}
	return rules, nil
}

func (r *PostgresRuleRepository) Create(ctx context.Context, rl *rule.Rule) error {
	query := `INSERT INTO rules (` + ruleColumns + `)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query,
		rl.ID, rl.TeamID, rl.Pipeline, rl.Stage,
		rl.Thresholds.WarningDays, rl.Thresholds.StaleDays, rl.Thresholds.CriticalDays,
		rl.SuggestedAction, pq.Array(rl.NotifyChannels), rl.MinDealAmount, rl.IsActive(),
		rl.CreatedAt, rl.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rule.ErrDuplicateActive
		}
		return fmt.Errorf("error creating rule: %w", err)
	}
	return nil
}

func (r *PostgresRuleRepository) Update(ctx context.Context, rl *rule.Rule) error {
	query := `UPDATE rules
               SET warning_days = $1, stale_days = $2, critical_days = $3, suggested_action = $4,
                   notify_channels = $5, min_deal_amount = $6, is_active = $7, updated_at = $8
               WHERE id = $9 AND team_id = $10`
	result, err := r.db.ExecContext(ctx, query,
		rl.Thresholds.WarningDays, rl.Thresholds.StaleDays, rl.Thresholds.CriticalDays,
		rl.SuggestedAction, pq.Array(rl.NotifyChannels), rl.MinDealAmount, rl.IsActive(),
		rl.UpdatedAt, rl.ID, rl.TeamID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return rule.ErrDuplicateActive
		}
		return fmt.Errorf("error updating rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for rule update: %w", err)
	}
	if rowsAffected == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func (r *PostgresRuleRepository) Deactivate(ctx context.Context, teamID, ruleID uuid.UUID) error {
	query := `UPDATE rules SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND team_id = $2`
	result, err := r.db.ExecContext(ctx, query, ruleID, teamID)
	if err != nil {
		return fmt.Errorf("error deactivating rule: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for rule deactivation: %w", err)
	}
	if rowsAffected == 0 {
		return rule.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
