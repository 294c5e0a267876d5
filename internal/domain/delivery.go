package domain

import "time"

// DeliveryStatus represents the state of one delivery attempt.
// Attempts move pending -> sent | failed; sent may become delivered when
// the channel confirms receipt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryLog is one append-only attempt record for a
// (notification, recipient, channel) tuple.
type DeliveryLog struct {
	ID             int64          `json:"id" db:"id"`
	NotificationID int64          `json:"notification_id" db:"notification_id"`
	UserID         int64          `json:"user_id" db:"user_id"`
	Channel        Channel        `json:"channel" db:"channel"`
	Status         DeliveryStatus `json:"status" db:"status"`
	Error          *string        `json:"error,omitempty" db:"error"`
	AttemptedAt    time.Time      `json:"attempted_at" db:"attempted_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
}
