package domain

import (
	"fmt"
	"time"
)

// NotificationType represents the kind of workflow event a notification describes.
type NotificationType string

const (
	NotificationProposalSubmitted NotificationType = "proposal_submitted"
	NotificationProposalApproved  NotificationType = "proposal_approved"
	NotificationProposalRejected  NotificationType = "proposal_rejected"
	NotificationProposalCommented NotificationType = "proposal_commented"
	NotificationSystemAnnounce    NotificationType = "system_announcement"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationProposalSubmitted, NotificationProposalApproved,
		NotificationProposalRejected, NotificationProposalCommented,
		NotificationSystemAnnounce:
		return true
	}
	return false
}

// NotificationTypes returns every known notification type in display order.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationProposalSubmitted,
		NotificationProposalApproved,
		NotificationProposalRejected,
		NotificationProposalCommented,
		NotificationSystemAnnounce,
	}
}

// Priority represents the urgency of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotificationStatus represents the lifecycle state of a notification.
type NotificationStatus string

const (
	NotificationStatusActive  NotificationStatus = "active"
	NotificationStatusExpired NotificationStatus = "expired"
)

// TargetKind discriminates the shape of a notification's audience.
type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetRole TargetKind = "role"
	TargetAll  TargetKind = "all"
)

// Target describes the intended audience of a notification: a single user,
// every user holding a role, or everyone. Exclusions apply to every kind.
type Target struct {
	Kind            TargetKind `json:"kind"`
	UserID          *int64     `json:"user_id,omitempty"`
	Role            *Role      `json:"role,omitempty"`
	ExcludedUserIDs []int64    `json:"excluded_user_ids,omitempty"`
}

// Validate rejects target shapes the kind does not admit, so that a stored
// target is always exactly one of user/role/all.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetUser:
		if t.UserID == nil || *t.UserID <= 0 {
			return &ValidationError{Field: "targetUserId", Message: "required for user targets"}
		}
		if t.Role != nil {
			return &ValidationError{Field: "targetRole", Message: "not allowed for user targets"}
		}
	case TargetRole:
		if t.Role == nil || !t.Role.Valid() {
			return &ValidationError{Field: "targetRole", Message: "a valid role is required for role targets"}
		}
		if t.UserID != nil {
			return &ValidationError{Field: "targetUserId", Message: "not allowed for role targets"}
		}
	case TargetAll:
		if t.UserID != nil || t.Role != nil {
			return &ValidationError{Field: "targetType", Message: "broadcast targets take no user or role"}
		}
	default:
		return &ValidationError{Field: "targetType", Message: fmt.Sprintf("unknown target kind %q", t.Kind)}
	}
	return nil
}

// Matches reports whether the user identified by (userID, role) belongs to
// the target's audience. Membership is evaluated against the role the user
// holds now, not the role they held when the notification was created.
func (t Target) Matches(userID int64, role Role) bool {
	for _, excluded := range t.ExcludedUserIDs {
		if excluded == userID {
			return false
		}
	}
	switch t.Kind {
	case TargetUser:
		return t.UserID != nil && *t.UserID == userID
	case TargetRole:
		return t.Role != nil && *t.Role == role
	case TargetAll:
		return true
	}
	return false
}

// Notification represents one logical notification. A single row addresses
// the whole audience; per-recipient state lives in the read-state overlay.
type Notification struct {
	ID                  int64              `json:"id" db:"id"`
	UUID                string             `json:"uuid" db:"uuid"`
	Target              Target             `json:"target" db:"-"`
	Title               string             `json:"title" db:"title"`
	Message             string             `json:"message" db:"message"`
	Type                NotificationType   `json:"type" db:"notification_type"`
	Priority            Priority           `json:"priority" db:"priority"`
	Status              NotificationStatus `json:"status" db:"status"`
	RelatedProposalID   *int64             `json:"related_proposal_id,omitempty" db:"related_proposal_id"`
	RelatedProposalUUID *string            `json:"related_proposal_uuid,omitempty" db:"related_proposal_uuid"`
	ActorUserID         *int64             `json:"actor_user_id,omitempty" db:"actor_user_id"`
	Metadata            map[string]string  `json:"metadata,omitempty" db:"-"`
	Tags                []string           `json:"tags,omitempty" db:"-"`
	CreatedBy           int64              `json:"created_by" db:"created_by"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	ExpiresAt           *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
}

// Expired reports whether the notification is past its expiry at the given time.
func (n Notification) Expired(now time.Time) bool {
	return n.Status == NotificationStatusExpired ||
		(n.ExpiresAt != nil && !n.ExpiresAt.After(now))
}

// FeedItem is a notification decorated with the requesting user's read state.
type FeedItem struct {
	Notification
	IsRead bool `json:"is_read"`
}

// NotificationStats summarizes the notification table for admin views.
type NotificationStats struct {
	Total     int64                      `json:"total"`
	Active    int64                      `json:"active"`
	Expired   int64                      `json:"expired"`
	ByType    map[NotificationType]int64 `json:"by_type"`
	Delivered int64                      `json:"delivered"`
	Failed    int64                      `json:"failed"`
}
