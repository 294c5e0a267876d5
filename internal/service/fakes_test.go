package service

import (
	"context"
	"sync"
	"time"

	"github.com/harune/notify/internal/domain"
)

// In-memory stand-ins for the repository layer. They mirror the stores'
// documented semantics closely enough for service-level tests.

type fakeNotificationStore struct {
	mu     sync.Mutex
	byID   map[int64]*domain.Notification
	nextID int64

	feedPage    domain.FeedPage
	lastFeed    domain.FeedQuery
	unreadCount int64
	stats       domain.NotificationStats
	expired     int64
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{byID: make(map[int64]*domain.Notification)}
}

func (f *fakeNotificationStore) add(n domain.Notification) domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	if n.Status == "" {
		n.Status = domain.NotificationStatusActive
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	f.byID[n.ID] = &n
	return n
}

func (f *fakeNotificationStore) get(id int64) (domain.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return domain.Notification{}, false
	}
	return *n, true
}

func (f *fakeNotificationStore) Create(_ context.Context, n *domain.Notification) error {
	*n = f.add(*n)
	return nil
}

func (f *fakeNotificationStore) FindByID(_ context.Context, id int64) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (f *fakeNotificationStore) ListCreatedBy(_ context.Context, adminID int64, _ int) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.byID {
		if n.CreatedBy == adminID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) Feed(_ context.Context, q domain.FeedQuery) (*domain.FeedPage, error) {
	f.mu.Lock()
	f.lastFeed = q
	f.mu.Unlock()
	page := f.feedPage
	return &page, nil
}

func (f *fakeNotificationStore) UnreadCount(_ context.Context, _ int64, _ domain.Role, _ *domain.NotificationType, _ *domain.Priority) (int64, error) {
	return f.unreadCount, nil
}

func (f *fakeNotificationStore) UpdateAdmin(_ context.Context, id int64, title, message string, expiresAt *time.Time) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	n.Title = title
	n.Message = message
	n.ExpiresAt = expiresAt
	copied := *n
	return &copied, nil
}

func (f *fakeNotificationStore) Stats(_ context.Context) (*domain.NotificationStats, error) {
	stats := f.stats
	return &stats, nil
}

func (f *fakeNotificationStore) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, n := range f.byID {
		if n.Status == domain.NotificationStatusActive && n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
			n.Status = domain.NotificationStatusExpired
			count++
		}
	}
	f.expired += count
	return count, nil
}

type overlayKey struct{ userID, notificationID int64 }

type markAllCall struct {
	userID int64
	typ    *domain.NotificationType
}

type fakeReadStateStore struct {
	mu         sync.Mutex
	overlays   map[overlayKey]*domain.ReadState
	watermarks map[int64]time.Time

	// Compaction consults notification rows when set, mirroring the SQL.
	notifications *fakeNotificationStore

	markAllCalls  []markAllCall
	markAllResult int64
}

func newFakeReadStateStore() *fakeReadStateStore {
	return &fakeReadStateStore{
		overlays:   make(map[overlayKey]*domain.ReadState),
		watermarks: make(map[int64]time.Time),
	}
}

func (f *fakeReadStateStore) Find(_ context.Context, userID, notificationID int64) (*domain.ReadState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.overlays[overlayKey{userID, notificationID}]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (f *fakeReadStateStore) EffectiveWatermark(_ context.Context, userID int64, _ domain.NotificationType) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermarks[userID], nil
}

func (f *fakeReadStateStore) MarkRead(_ context.Context, userID, notificationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := overlayKey{userID, notificationID}
	if state, ok := f.overlays[key]; ok {
		state.IsRead = true
	} else {
		f.overlays[key] = &domain.ReadState{UserID: userID, NotificationID: notificationID, IsRead: true}
	}
	return nil
}

func (f *fakeReadStateStore) Hide(_ context.Context, userID, notificationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := overlayKey{userID, notificationID}
	if state, ok := f.overlays[key]; ok {
		state.IsHidden = true
	} else {
		f.overlays[key] = &domain.ReadState{UserID: userID, NotificationID: notificationID, IsHidden: true}
	}
	return nil
}

// MarkAllRead advances the watermark and compacts the overlay the way the
// SQL store does: only read, non-hidden rows at or before the new watermark
// are deleted, scoped to the given type.
func (f *fakeReadStateStore) MarkAllRead(_ context.Context, userID int64, _ domain.Role, typ *domain.NotificationType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls = append(f.markAllCalls, markAllCall{userID: userID, typ: typ})

	now := time.Now()
	if now.After(f.watermarks[userID]) {
		f.watermarks[userID] = now
	}

	for key, state := range f.overlays {
		if key.userID != userID || !state.IsRead || state.IsHidden {
			continue
		}
		if f.notifications != nil {
			n, ok := f.notifications.get(key.notificationID)
			if !ok || n.CreatedAt.After(now) {
				continue
			}
			if typ != nil && n.Type != *typ {
				continue
			}
		}
		delete(f.overlays, key)
	}
	return f.markAllResult, nil
}

type fakeDirectory struct {
	users []domain.User
}

func (f *fakeDirectory) FindByID(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			copied := u
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDirectory) ListRecipients(_ context.Context, target domain.Target) ([]domain.User, error) {
	var out []domain.User
	for _, u := range f.users {
		if u.Approved && target.Matches(u.ID, u.Role) {
			out = append(out, u)
		}
	}
	return out, nil
}

type prefKey struct {
	userID int64
	typ    domain.NotificationType
}

type fakePreferenceStore struct {
	mu    sync.Mutex
	prefs map[prefKey]domain.Preference
}

func newFakePreferenceStore() *fakePreferenceStore {
	return &fakePreferenceStore{prefs: make(map[prefKey]domain.Preference)}
}

func (f *fakePreferenceStore) set(p domain.Preference) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[prefKey{p.UserID, p.NotificationType}] = p
}

func (f *fakePreferenceStore) Find(_ context.Context, userID int64, typ domain.NotificationType) (domain.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.prefs[prefKey{userID, typ}]; ok {
		return p, nil
	}
	return domain.DefaultPreference(userID, typ), nil
}

func (f *fakePreferenceStore) ListByUser(_ context.Context, userID int64) ([]domain.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Preference
	for key, p := range f.prefs {
		if key.userID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePreferenceStore) UpsertAll(_ context.Context, prefs []domain.Preference) error {
	for _, p := range prefs {
		f.set(p)
	}
	return nil
}

type fakeDeliveryLogStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.DeliveryLog
}

func (f *fakeDeliveryLogStore) Append(_ context.Context, log *domain.DeliveryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	log.ID = f.nextID
	if log.AttemptedAt.IsZero() {
		log.AttemptedAt = time.Now()
	}
	f.entries = append(f.entries, *log)
	return nil
}

func (f *fakeDeliveryLogStore) Resolve(_ context.Context, id int64, status domain.DeliveryStatus, sendErr *string, deliveredAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Status = status
			f.entries[i].Error = sendErr
			f.entries[i].DeliveredAt = deliveredAt
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeDeliveryLogStore) ListPending(_ context.Context, _ int) ([]domain.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryLog
	for _, e := range f.entries {
		if e.Status == domain.DeliveryPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDeliveryLogStore) ListByNotification(_ context.Context, notificationID int64) ([]domain.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryLog
	for _, e := range f.entries {
		if e.NotificationID == notificationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDeliveryLogStore) byRecipient(userID int64, ch domain.Channel) []domain.DeliveryLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryLog
	for _, e := range f.entries {
		if e.UserID == userID && e.Channel == ch {
			out = append(out, e)
		}
	}
	return out
}

type sendCall struct {
	address string
	subject string
	body    string
}

type fakeSender struct {
	mu      sync.Mutex
	calls   []sendCall
	failFor map[string]error
	status  domain.DeliveryStatus
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[string]error), status: domain.DeliverySent}
}

func (f *fakeSender) Send(_ context.Context, address, subject, body string) (domain.DeliveryStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{address: address, subject: subject, body: body})
	if err, ok := f.failFor[address]; ok {
		return domain.DeliveryFailed, err
	}
	return f.status, nil
}

func (f *fakeSender) sentTo(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.calls {
		if c.address == address {
			count++
		}
	}
	return count
}
