package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/harune/notify/internal/domain"
)

// PreferenceRepository handles per-(user, type) delivery preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository creates a new PreferenceRepository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

const preferenceColumns = `user_id, notification_type, in_app, email, sms, push,
	frequency, quiet_hours_start, quiet_hours_end, timezone, updated_at`

// Find returns the stored preference for (user, type), or the system
// defaults when the user has never saved one. The defaults are not
// persisted on read; rows appear only on explicit update.
func (r *PreferenceRepository) Find(ctx context.Context, userID int64, typ domain.NotificationType) (domain.Preference, error) {
	var pref domain.Preference
	err := r.db.GetContext(ctx, &pref,
		`SELECT `+preferenceColumns+`
		 FROM preferences WHERE user_id = $1 AND notification_type = $2`, userID, typ)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultPreference(userID, typ), nil
		}
		return domain.Preference{}, fmt.Errorf("find preference (%d, %s): %w", userID, typ, err)
	}
	return pref, nil
}

// ListByUser returns the rows the user has explicitly saved. Types never
// configured have no row; the preference service fills those with defaults.
func (r *PreferenceRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Preference, error) {
	var stored []domain.Preference
	err := r.db.SelectContext(ctx, &stored,
		`SELECT `+preferenceColumns+`
		 FROM preferences WHERE user_id = $1 ORDER BY notification_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences for user %d: %w", userID, err)
	}
	return stored, nil
}

// UpsertAll saves a batch of preferences in one transaction, so a partially
// applied update never becomes visible.
func (r *PreferenceRepository) UpsertAll(ctx context.Context, prefs []domain.Preference) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin preference transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range prefs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preferences
			   (user_id, notification_type, in_app, email, sms, push,
			    frequency, quiet_hours_start, quiet_hours_end, timezone)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (user_id, notification_type)
			 DO UPDATE SET in_app = EXCLUDED.in_app,
			               email = EXCLUDED.email,
			               sms = EXCLUDED.sms,
			               push = EXCLUDED.push,
			               frequency = EXCLUDED.frequency,
			               quiet_hours_start = EXCLUDED.quiet_hours_start,
			               quiet_hours_end = EXCLUDED.quiet_hours_end,
			               timezone = EXCLUDED.timezone,
			               updated_at = now()`,
			p.UserID, p.NotificationType, p.InApp, p.Email, p.SMS, p.Push,
			p.Frequency, p.QuietHoursStart, p.QuietHoursEnd, p.Timezone)
		if err != nil {
			return fmt.Errorf("upsert preference (%d, %s): %w", p.UserID, p.NotificationType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit preferences: %w", err)
	}
	return nil
}
