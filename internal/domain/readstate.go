package domain

import "time"

// ReadState is a sparse overlay row recording one user's explicit deviation
// from the watermark default for one notification. A row exists only when
// the user has marked the notification read/unread or hidden it.
type ReadState struct {
	UserID         int64     `json:"user_id" db:"user_id"`
	NotificationID int64     `json:"notification_id" db:"notification_id"`
	IsRead         bool      `json:"is_read" db:"is_read"`
	IsHidden       bool      `json:"is_hidden" db:"is_hidden"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Watermark is a per-user timestamp below which notifications are
// read-by-default. An empty NotificationType means the global watermark;
// the effective cutoff for a notification is the later of the two.
type Watermark struct {
	UserID           int64            `json:"user_id" db:"user_id"`
	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	ReadBefore       time.Time        `json:"read_before" db:"read_before"`
}

// IsRead resolves a notification's read state for one user: an overlay row
// overrides, otherwise anything at or before the effective watermark counts
// as read.
func IsRead(n Notification, overlay *ReadState, watermark time.Time) bool {
	if overlay != nil {
		return overlay.IsRead
	}
	return !n.CreatedAt.After(watermark)
}

// IsHidden resolves a notification's hidden state for one user. Hiding has
// no bulk default; only an explicit overlay row hides.
func IsHidden(overlay *ReadState) bool {
	return overlay != nil && overlay.IsHidden
}
