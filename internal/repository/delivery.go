package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/harune/notify/internal/domain"
)

// DeliveryLogRepository handles the append-only delivery audit trail.
type DeliveryLogRepository struct {
	db *sqlx.DB
}

// NewDeliveryLogRepository creates a new DeliveryLogRepository.
func NewDeliveryLogRepository(db *sqlx.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// Append records one delivery attempt and fills in the generated fields.
func (r *DeliveryLogRepository) Append(ctx context.Context, log *domain.DeliveryLog) error {
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO delivery_logs
		   (notification_id, user_id, channel, status, error, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, attempted_at`,
		log.NotificationID, log.UserID, log.Channel, log.Status, log.Error, log.DeliveredAt,
	).Scan(&log.ID, &log.AttemptedAt)
	if err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

// Resolve moves a pending attempt to its outcome once it has been retried.
func (r *DeliveryLogRepository) Resolve(ctx context.Context, id int64, status domain.DeliveryStatus, sendErr *string, deliveredAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE delivery_logs
		 SET status = $2, error = $3, delivered_at = $4, attempted_at = now()
		 WHERE id = $1`, id, status, sendErr, deliveredAt)
	if err != nil {
		return fmt.Errorf("resolve delivery log %d: %w", id, err)
	}
	return nil
}

// ListByNotification returns all attempts for a notification, oldest first.
func (r *DeliveryLogRepository) ListByNotification(ctx context.Context, notificationID int64) ([]domain.DeliveryLog, error) {
	var logs []domain.DeliveryLog
	err := r.db.SelectContext(ctx, &logs,
		`SELECT id, notification_id, user_id, channel, status, error, attempted_at, delivered_at
		 FROM delivery_logs
		 WHERE notification_id = $1
		 ORDER BY attempted_at, id`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs for notification %d: %w", notificationID, err)
	}
	return logs, nil
}

// ListPending returns attempts deferred by quiet hours, for the retry sweep.
// Expired notifications are skipped; their pending attempts stay as a record
// of the deferral but are never retried.
func (r *DeliveryLogRepository) ListPending(ctx context.Context, limit int) ([]domain.DeliveryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []domain.DeliveryLog
	err := r.db.SelectContext(ctx, &logs,
		`SELECT l.id, l.notification_id, l.user_id, l.channel, l.status, l.error, l.attempted_at, l.delivered_at
		 FROM delivery_logs l
		 JOIN notifications n ON n.id = l.notification_id
		 WHERE l.status = 'pending'
		   AND n.status = 'active'
		   AND (n.expires_at IS NULL OR n.expires_at > now())
		 ORDER BY l.attempted_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	return logs, nil
}
