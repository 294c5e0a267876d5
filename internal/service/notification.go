package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harune/notify/internal/domain"
)

// NotificationStore defines the notification data access interface consumed
// by NotificationService.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByID(ctx context.Context, id int64) (*domain.Notification, error)
	ListCreatedBy(ctx context.Context, adminID int64, limit int) ([]domain.Notification, error)
	Feed(ctx context.Context, q domain.FeedQuery) (*domain.FeedPage, error)
	UnreadCount(ctx context.Context, userID int64, role domain.Role, typ *domain.NotificationType, priority *domain.Priority) (int64, error)
	UpdateAdmin(ctx context.Context, id int64, title, message string, expiresAt *time.Time) (*domain.Notification, error)
	Stats(ctx context.Context) (*domain.NotificationStats, error)
}

// ReadStateStore defines the overlay/watermark access interface.
type ReadStateStore interface {
	Find(ctx context.Context, userID, notificationID int64) (*domain.ReadState, error)
	EffectiveWatermark(ctx context.Context, userID int64, typ domain.NotificationType) (time.Time, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	Hide(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64, role domain.Role, typ *domain.NotificationType) (int64, error)
}

// DeliveryLogStore is the subset of the delivery audit trail the service reads.
type DeliveryLogStore interface {
	ListByNotification(ctx context.Context, notificationID int64) ([]domain.DeliveryLog, error)
}

// NotificationService implements the core notification operations: creation
// with asynchronous delivery, the personal feed, and per-recipient read state.
type NotificationService struct {
	notifications NotificationStore
	readStates    ReadStateStore
	deliveryLogs  DeliveryLogStore
	dispatcher    *Dispatcher
}

// NewNotificationService creates a new NotificationService. dispatcher may
// be nil, in which case creation skips channel delivery.
func NewNotificationService(notifications NotificationStore, readStates ReadStateStore, deliveryLogs DeliveryLogStore, dispatcher *Dispatcher) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		readStates:    readStates,
		deliveryLogs:  deliveryLogs,
		dispatcher:    dispatcher,
	}
}

// CreateNotificationInput carries the fields an admin supplies at creation.
type CreateNotificationInput struct {
	Target              domain.Target
	Title               string
	Message             string
	Type                domain.NotificationType
	Priority            domain.Priority
	RelatedProposalID   *int64
	RelatedProposalUUID *string
	ActorUserID         *int64
	Metadata            map[string]string
	Tags                []string
	ExpiresAt           *time.Time
}

func (in CreateNotificationInput) validate() error {
	if err := in.Target.Validate(); err != nil {
		return err
	}
	if in.Title == "" {
		return &domain.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if in.Message == "" {
		return &domain.ValidationError{Field: "message", Message: "must not be empty"}
	}
	if !in.Type.Valid() {
		return &domain.ValidationError{Field: "notificationType", Message: fmt.Sprintf("unknown type %q", in.Type)}
	}
	if !in.Priority.Valid() {
		return &domain.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", in.Priority)}
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(time.Now()) {
		return &domain.ValidationError{Field: "expiresAt", Message: "must be in the future"}
	}
	return nil
}

// Create validates and persists a notification, then hands it to the
// dispatcher in the background. Creation success is independent of channel
// delivery; delivery outcomes are observable only through the delivery logs.
func (s *NotificationService) Create(ctx context.Context, p domain.Principal, in CreateNotificationInput) (*domain.Notification, error) {
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityNormal
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	n := &domain.Notification{
		UUID:                uuid.New().String(),
		Target:              in.Target,
		Title:               in.Title,
		Message:             in.Message,
		Type:                in.Type,
		Priority:            in.Priority,
		RelatedProposalID:   in.RelatedProposalID,
		RelatedProposalUUID: in.RelatedProposalUUID,
		ActorUserID:         in.ActorUserID,
		Metadata:            in.Metadata,
		Tags:                in.Tags,
		CreatedBy:           p.ID,
		ExpiresAt:           in.ExpiresAt,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		// The request context ends with the response; delivery outlives it.
		go s.dispatcher.Dispatch(context.WithoutCancel(ctx), *n)
	}
	return n, nil
}

// Feed returns one page of the caller's feed.
func (s *NotificationService) Feed(ctx context.Context, p domain.Principal, q domain.FeedQuery) (*domain.FeedPage, error) {
	q.UserID = p.ID
	q.Role = p.Role
	return s.notifications.Feed(ctx, q)
}

// UnreadCount returns the caller's unread count, optionally narrowed by
// type and priority.
func (s *NotificationService) UnreadCount(ctx context.Context, p domain.Principal, typ *domain.NotificationType, priority *domain.Priority) (int64, error) {
	return s.notifications.UnreadCount(ctx, p.ID, p.Role, typ, priority)
}

// MarkRead marks the given notifications read for the caller, or advances
// the caller's watermark when no IDs are given. Every ID is resolved and
// authorized before the first write; an unknown or forbidden ID rejects the
// whole batch without marking anything. Returns how many notifications moved
// from unread to read.
func (s *NotificationService) MarkRead(ctx context.Context, p domain.Principal, ids []int64, typ *domain.NotificationType) (int64, error) {
	if len(ids) == 0 {
		return s.readStates.MarkAllRead(ctx, p.ID, p.Role, typ)
	}

	batch := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.notifications.FindByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if !n.Target.Matches(p.ID, p.Role) {
			return 0, domain.ErrForbidden
		}
		batch = append(batch, n)
	}

	var marked int64
	for _, n := range batch {
		transitioned, err := s.markOne(ctx, p, n)
		if err != nil {
			return marked, err
		}
		if transitioned {
			marked++
		}
	}
	return marked, nil
}

// markOne marks a single already-authorized notification read. Already-read
// notifications are left untouched and reported as no transition; calling
// twice is safe.
func (s *NotificationService) markOne(ctx context.Context, p domain.Principal, n *domain.Notification) (bool, error) {
	overlay, err := s.readStates.Find(ctx, p.ID, n.ID)
	if err != nil {
		return false, err
	}
	watermark, err := s.readStates.EffectiveWatermark(ctx, p.ID, n.Type)
	if err != nil {
		return false, err
	}
	if domain.IsRead(*n, overlay, watermark) {
		return false, nil
	}

	if err := s.readStates.MarkRead(ctx, p.ID, n.ID); err != nil {
		return false, err
	}
	return true, nil
}

// Hide hides a notification from the caller's feed. Hiding is always an
// explicit overlay row and survives later mark-all calls.
func (s *NotificationService) Hide(ctx context.Context, p domain.Principal, id int64) error {
	n, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !n.Target.Matches(p.ID, p.Role) {
		return domain.ErrForbidden
	}
	return s.readStates.Hide(ctx, p.ID, id)
}

// DeliveryLogs returns the delivery audit trail for a notification (admin only).
func (s *NotificationService) DeliveryLogs(ctx context.Context, p domain.Principal, notificationID int64) ([]domain.DeliveryLog, error) {
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if _, err := s.notifications.FindByID(ctx, notificationID); err != nil {
		return nil, err
	}
	return s.deliveryLogs.ListByNotification(ctx, notificationID)
}

// ListCreatedBy returns the caller's own created notifications (admin only).
func (s *NotificationService) ListCreatedBy(ctx context.Context, p domain.Principal, limit int) ([]domain.Notification, error) {
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.notifications.ListCreatedBy(ctx, p.ID, limit)
}

// Stats returns table-wide notification statistics (admin only).
func (s *NotificationService) Stats(ctx context.Context, p domain.Principal) (*domain.NotificationStats, error) {
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.notifications.Stats(ctx)
}

// AdminUpdateInput carries the administratively editable fields.
type AdminUpdateInput struct {
	Title     string
	Message   string
	ExpiresAt *time.Time
}

// AdminUpdate edits a notification's title, message, and expiry (admin only).
// Target, type, and priority are immutable after creation.
func (s *NotificationService) AdminUpdate(ctx context.Context, p domain.Principal, id int64, in AdminUpdateInput) (*domain.Notification, error) {
	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if in.Title == "" {
		return nil, &domain.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if in.Message == "" {
		return nil, &domain.ValidationError{Field: "message", Message: "must not be empty"}
	}
	n, err := s.notifications.UpdateAdmin(ctx, id, in.Title, in.Message, in.ExpiresAt)
	if err != nil {
		return nil, err
	}
	slog.Info("notification updated", "notification_id", id, "admin_id", p.ID)
	return n, nil
}
