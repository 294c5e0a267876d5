package handler

import (
	"context"
	"time"

	"github.com/harune/notify/internal/domain"
)

// Minimal in-memory stores backing real services in handler tests.

type stubNotificationStore struct {
	byID     map[int64]*domain.Notification
	nextID   int64
	feedPage domain.FeedPage
	lastFeed domain.FeedQuery
	unread   int64
	stats    domain.NotificationStats
}

func newStubNotificationStore() *stubNotificationStore {
	return &stubNotificationStore{byID: make(map[int64]*domain.Notification)}
}

func (s *stubNotificationStore) add(n domain.Notification) domain.Notification {
	s.nextID++
	n.ID = s.nextID
	if n.Status == "" {
		n.Status = domain.NotificationStatusActive
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.byID[n.ID] = &n
	return n
}

func (s *stubNotificationStore) Create(_ context.Context, n *domain.Notification) error {
	*n = s.add(*n)
	return nil
}

func (s *stubNotificationStore) FindByID(_ context.Context, id int64) (*domain.Notification, error) {
	n, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (s *stubNotificationStore) ListCreatedBy(_ context.Context, adminID int64, _ int) ([]domain.Notification, error) {
	out := []domain.Notification{}
	for _, n := range s.byID {
		if n.CreatedBy == adminID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *stubNotificationStore) Feed(_ context.Context, q domain.FeedQuery) (*domain.FeedPage, error) {
	s.lastFeed = q
	page := s.feedPage
	return &page, nil
}

func (s *stubNotificationStore) UnreadCount(_ context.Context, _ int64, _ domain.Role, _ *domain.NotificationType, _ *domain.Priority) (int64, error) {
	return s.unread, nil
}

func (s *stubNotificationStore) UpdateAdmin(_ context.Context, id int64, title, message string, expiresAt *time.Time) (*domain.Notification, error) {
	n, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	n.Title = title
	n.Message = message
	n.ExpiresAt = expiresAt
	copied := *n
	return &copied, nil
}

func (s *stubNotificationStore) Stats(_ context.Context) (*domain.NotificationStats, error) {
	stats := s.stats
	return &stats, nil
}

func (s *stubNotificationStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	var count int64
	for _, n := range s.byID {
		if n.Status == domain.NotificationStatusActive && n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
			n.Status = domain.NotificationStatusExpired
			count++
		}
	}
	return count, nil
}

type stateKey struct{ userID, notificationID int64 }

type stubReadStateStore struct {
	overlays     map[stateKey]*domain.ReadState
	markAllCount int64
	markAllCalls int
}

func newStubReadStateStore() *stubReadStateStore {
	return &stubReadStateStore{overlays: make(map[stateKey]*domain.ReadState)}
}

func (s *stubReadStateStore) Find(_ context.Context, userID, notificationID int64) (*domain.ReadState, error) {
	state, ok := s.overlays[stateKey{userID, notificationID}]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (s *stubReadStateStore) EffectiveWatermark(_ context.Context, _ int64, _ domain.NotificationType) (time.Time, error) {
	return time.Time{}, nil
}

func (s *stubReadStateStore) MarkRead(_ context.Context, userID, notificationID int64) error {
	s.overlays[stateKey{userID, notificationID}] = &domain.ReadState{
		UserID: userID, NotificationID: notificationID, IsRead: true,
	}
	return nil
}

func (s *stubReadStateStore) Hide(_ context.Context, userID, notificationID int64) error {
	key := stateKey{userID, notificationID}
	if state, ok := s.overlays[key]; ok {
		state.IsHidden = true
		return nil
	}
	s.overlays[key] = &domain.ReadState{UserID: userID, NotificationID: notificationID, IsHidden: true}
	return nil
}

func (s *stubReadStateStore) MarkAllRead(_ context.Context, _ int64, _ domain.Role, _ *domain.NotificationType) (int64, error) {
	s.markAllCalls++
	return s.markAllCount, nil
}

type stubDeliveryLogStore struct {
	logs []domain.DeliveryLog
}

func (s *stubDeliveryLogStore) ListByNotification(_ context.Context, notificationID int64) ([]domain.DeliveryLog, error) {
	out := []domain.DeliveryLog{}
	for _, l := range s.logs {
		if l.NotificationID == notificationID {
			out = append(out, l)
		}
	}
	return out, nil
}

type stubPreferenceStore struct {
	saved []domain.Preference
}

func (s *stubPreferenceStore) Find(_ context.Context, userID int64, typ domain.NotificationType) (domain.Preference, error) {
	return domain.DefaultPreference(userID, typ), nil
}

func (s *stubPreferenceStore) ListByUser(_ context.Context, userID int64) ([]domain.Preference, error) {
	var out []domain.Preference
	for _, p := range s.saved {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPreferenceStore) UpsertAll(_ context.Context, prefs []domain.Preference) error {
	s.saved = append(s.saved, prefs...)
	return nil
}
