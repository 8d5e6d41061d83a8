// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"deal_staleness_monitor/internal/domain/notification"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PostgresNotificationRepository struct {
	db *sqlx.DB
}

func NewPostgresNotificationRepository(db *sqlx.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

type notificationRow struct {
	ID              uuid.UUID      `db:"id"`
	DealID          uuid.UUID      `db:"deal_id"`
	UserID          uuid.UUID      `db:"user_id"`
	Type            string         `db:"type"`
	Channel         string         `db:"channel"`
	Status          string         `db:"status"`
	Message         string         `db:"message"`
	SuggestedAction sql.NullString `db:"suggested_action"`
	CreatedAt       time.Time      `db:"created_at"`
	OpenedAt        sql.NullTime   `db:"opened_at"`
	DealName        string         `db:"deal_name"`
	DealStage       string         `db:"deal_stage"`
	UserName        string         `db:"user_name"`
	UserEmail       string         `db:"user_email"`
}

func (r notificationRow) toView() *notification.View {
	v := &notification.View{
		Notification: notification.Notification{
			ID:              r.ID,
			DealID:          r.DealID,
			UserID:          r.UserID,
			Type:            notification.Type(r.Type),
			Channel:         r.Channel,
			Status:          notification.DeliveryStatus(r.Status),
			Message:         r.Message,
			SuggestedAction: r.SuggestedAction.String,
			CreatedAt:       r.CreatedAt,
		},
		DealName:  r.DealName,
		DealStage: r.DealStage,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
	}
	if r.OpenedAt.Valid {
		t := r.OpenedAt.Time
		v.OpenedAt = &t
	}
	return v
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `INSERT INTO notifications (id, deal_id, user_id, type, channel, status, message, suggested_action, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.DealID, n.UserID, string(n.Type), n.Channel, string(n.Status), n.Message, n.SuggestedAction, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) ExistsSince(ctx context.Context, dealID, userID uuid.UUID, t notification.Type, since time.Time) (bool, error) {
	query := `SELECT EXISTS (
                   SELECT 1 FROM notifications
                   WHERE deal_id = $1 AND user_id = $2 AND type = $3 AND created_at >= $4
               )`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, dealID, userID, string(t), since); err != nil {
		return false, fmt.Errorf("error checking recent notification: %w", err)
	}
	return exists, nil
}

func (r *PostgresNotificationRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, filter notification.ListFilter) ([]*notification.View, int, error) {
	conditions := []string{"d.team_id = $1"}
	args := []interface{}{teamID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("n.status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("n.type = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	countQuery := `SELECT COUNT(*) FROM notifications n JOIN deals d ON d.id = n.deal_id WHERE ` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("error counting notifications: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT n.id, n.deal_id, n.user_id, n.type, n.channel, n.status, n.message,
                   n.suggested_action, n.created_at, n.opened_at,
                   d.name AS deal_name, d.stage AS deal_stage, u.name AS user_name, u.email AS user_email
               FROM notifications n
               JOIN deals d ON d.id = n.deal_id
               JOIN users u ON u.id = n.user_id
               WHERE %s
               ORDER BY n.created_at DESC
               LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("error listing notifications: %w", err)
	}

	views := make([]*notification.View, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.toView())
	}
	return views, total, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	query := `UPDATE notifications SET status = $1, opened_at = COALESCE(opened_at, $2)
               WHERE id = $3 AND user_id = $4`
	result, err := r.db.ExecContext(ctx, query, string(notification.StatusDelivered), at, id, userID)
	if err != nil {
		return fmt.Errorf("error marking notification read: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected for notification read: %w", err)
	}
	if rowsAffected == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `UPDATE notifications SET status = $1, opened_at = $2
               WHERE user_id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query,
		string(notification.StatusDelivered), at, userID, string(notification.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("error marking all notifications read: %w", err)
	}
	return result.RowsAffected()
}
