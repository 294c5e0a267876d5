package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/harune/notify/internal/domain"
)

// ReadStateRepository handles the sparse read-state overlay and the per-user
// watermarks that together resolve read/hidden state without one row per
// recipient.
type ReadStateRepository struct {
	db *sqlx.DB
}

// NewReadStateRepository creates a new ReadStateRepository.
func NewReadStateRepository(db *sqlx.DB) *ReadStateRepository {
	return &ReadStateRepository{db: db}
}

// Find returns the overlay row for (user, notification), or nil when the
// user has never deviated from the watermark default.
func (r *ReadStateRepository) Find(ctx context.Context, userID, notificationID int64) (*domain.ReadState, error) {
	var state domain.ReadState
	err := r.db.GetContext(ctx, &state,
		`SELECT user_id, notification_id, is_read, is_hidden, updated_at
		 FROM notification_reads
		 WHERE user_id = $1 AND notification_id = $2`, userID, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find read state (%d, %d): %w", userID, notificationID, err)
	}
	return &state, nil
}

// EffectiveWatermark returns the later of the user's global and per-type
// watermarks, or the zero time when neither exists.
func (r *ReadStateRepository) EffectiveWatermark(ctx context.Context, userID int64, typ domain.NotificationType) (time.Time, error) {
	var cutoff sql.NullTime
	err := r.db.GetContext(ctx, &cutoff,
		`SELECT MAX(read_before) FROM read_watermarks
		 WHERE user_id = $1 AND (notification_type = $2 OR notification_type = '')`,
		userID, typ)
	if err != nil {
		return time.Time{}, fmt.Errorf("watermark for user %d: %w", userID, err)
	}
	if !cutoff.Valid {
		return time.Time{}, nil
	}
	return cutoff.Time, nil
}

// MarkRead upserts an overlay row with is_read = true, preserving any
// hidden flag. Last writer wins on concurrent updates.
func (r *ReadStateRepository) MarkRead(ctx context.Context, userID, notificationID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_reads (user_id, notification_id, is_read)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (user_id, notification_id)
		 DO UPDATE SET is_read = TRUE, updated_at = now()`, userID, notificationID)
	if err != nil {
		return fmt.Errorf("mark read (%d, %d): %w", userID, notificationID, err)
	}
	return nil
}

// Hide upserts an overlay row with is_hidden = true, preserving the read flag.
func (r *ReadStateRepository) Hide(ctx context.Context, userID, notificationID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_reads (user_id, notification_id, is_hidden)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (user_id, notification_id)
		 DO UPDATE SET is_hidden = TRUE, updated_at = now()`, userID, notificationID)
	if err != nil {
		return fmt.Errorf("hide (%d, %d): %w", userID, notificationID, err)
	}
	return nil
}

// MarkAllRead advances the user's watermark to now, optionally scoped to one
// notification type, and compacts overlay rows the watermark now implies.
// Compaction deletes only read, non-hidden rows at or before the new
// watermark; hidden rows must survive or the items would reappear. The
// count, watermark upsert, and compaction run in one transaction so a
// cancelled call leaves state fully before or fully after the advance.
// Returns the number of notifications that were unread before the call.
func (r *ReadStateRepository) MarkAllRead(ctx context.Context, userID int64, role domain.Role, typ *domain.NotificationType) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mark-all transaction: %w", err)
	}
	defer tx.Rollback()

	watermarkType := ""
	if typ != nil {
		watermarkType = string(*typ)
	}

	countArgs := []any{userID, string(role)}
	typeCond := ""
	if typ != nil {
		countArgs = append(countArgs, string(*typ))
		typeCond = ` AND n.notification_type = $3`
	}

	var unread int64
	err = tx.GetContext(ctx, &unread, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM notifications n
		LEFT JOIN notification_reads r
		       ON r.notification_id = n.id AND r.user_id = $1
		%s
		WHERE %s
		  AND COALESCE(r.is_hidden, FALSE) = FALSE
		  AND n.status = 'active'
		  AND (n.expires_at IS NULL OR n.expires_at > now())
		  AND NOT COALESCE(r.is_read, n.created_at <= wm.cutoff)%s`,
		watermarkJoin, membershipPredicate, typeCond), countArgs...)
	if err != nil {
		return 0, fmt.Errorf("count unread before mark-all: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO read_watermarks (user_id, notification_type, read_before)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, notification_type)
		 DO UPDATE SET read_before = GREATEST(read_watermarks.read_before, EXCLUDED.read_before)`,
		userID, watermarkType, now)
	if err != nil {
		return 0, fmt.Errorf("advance watermark for user %d: %w", userID, err)
	}

	compactArgs := []any{userID, now}
	compactCond := ""
	if typ != nil {
		compactArgs = append(compactArgs, string(*typ))
		compactCond = ` AND n.notification_type = $3`
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM notification_reads r
		 USING notifications n
		 WHERE n.id = r.notification_id
		   AND r.user_id = $1
		   AND r.is_read AND NOT r.is_hidden
		   AND n.created_at <= $2%s`, compactCond), compactArgs...)
	if err != nil {
		return 0, fmt.Errorf("compact overlay for user %d: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mark-all: %w", err)
	}
	return unread, nil
}
