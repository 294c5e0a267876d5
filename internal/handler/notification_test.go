package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harune/notify/internal/domain"
	"github.com/harune/notify/internal/service"
)

var (
	adminPrincipal    = domain.Principal{ID: 10, Role: domain.RoleAdmin}
	reviewerPrincipal = domain.Principal{ID: 1, Role: domain.RoleReviewer}
)

type testEnv struct {
	echo          *echo.Echo
	notifications *stubNotificationStore
	readStates    *stubReadStateStore
	logs          *stubDeliveryLogStore
}

// asPrincipal stands in for JWTAuth so route tests can pick a caller directly.
func asPrincipal(p domain.Principal) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(contextKeyPrincipal, p)
			return next(c)
		}
	}
}

func newTestEnv(p domain.Principal) *testEnv {
	env := &testEnv{
		notifications: newStubNotificationStore(),
		readStates:    newStubReadStateStore(),
		logs:          &stubDeliveryLogStore{},
	}

	svc := service.NewNotificationService(env.notifications, env.readStates, env.logs, nil)
	reaper := service.NewReaper(env.notifications)

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewAppValidator()
	g := e.Group("/api/v1", asPrincipal(p))
	NewNotificationHandler(svc, reaper).Register(g)
	env.echo = e
	return env
}

func (env *testEnv) request(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func idStr(id int64) string { return strconv.FormatInt(id, 10) }

func reviewerNotification(store *stubNotificationStore) domain.Notification {
	role := domain.RoleReviewer
	return store.add(domain.Notification{
		Target:  domain.Target{Kind: domain.TargetRole, Role: &role},
		Title:   "Proposal approved",
		Message: "m",
		Type:    domain.NotificationProposalApproved,
	})
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)
	env.notifications.feedPage = domain.FeedPage{
		Items:   []domain.FeedItem{{Notification: domain.Notification{ID: 1, Title: "x"}, IsRead: false}},
		HasMore: true,
	}

	rec, envelope := env.request(t, http.MethodGet, "/api/v1/notifications?limit=5&unreadOnly=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 5, envelope.Pagination.Limit)
	assert.True(t, envelope.Pagination.HasMore)

	assert.Equal(t, reviewerPrincipal.ID, env.notifications.lastFeed.UserID)
	assert.True(t, env.notifications.lastFeed.UnreadOnly)
	assert.Equal(t, 5, env.notifications.lastFeed.Limit)
}

func TestListNotificationsRejectsBadFilters(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)

	rec, envelope := env.request(t, http.MethodGet, "/api/v1/notifications?priority=extreme", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "validation_error", envelope.Error.Code)

	rec, envelope = env.request(t, http.MethodGet, "/api/v1/notifications?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "invalid_input", envelope.Error.Code)
}

func TestUnreadCount(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)
	env.notifications.unread = 3

	rec, envelope := env.request(t, http.MethodGet, "/api/v1/notifications/unread-count", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, data["count"])
}

func TestMarkReadSpecificIDs(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)
	n := reviewerNotification(env.notifications)

	rec, envelope := env.request(t, http.MethodPut, "/api/v1/notifications/mark-read",
		`{"notificationIds":[`+idStr(n.ID)+`]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, data["count"])
	assert.Zero(t, env.readStates.markAllCalls)
}

func TestMarkReadAll(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)
	env.readStates.markAllCount = 12

	rec, envelope := env.request(t, http.MethodPut, "/api/v1/notifications/mark-read", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 12, data["count"])
	assert.Equal(t, 1, env.readStates.markAllCalls)
}

func TestMarkReadRejectsUnknownType(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)

	rec, envelope := env.request(t, http.MethodPut, "/api/v1/notifications/mark-read",
		`{"type":"carrier_pigeon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestHideNotification(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)
	n := reviewerNotification(env.notifications)

	rec, _ := env.request(t, http.MethodPut, "/api/v1/notifications/"+idStr(n.ID)+"/hide", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, envelope := env.request(t, http.MethodPut, "/api/v1/notifications/999/hide", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "not_found", envelope.Error.Code)
}

func TestCreateNotification(t *testing.T) {
	env := newTestEnv(adminPrincipal)

	rec, envelope := env.request(t, http.MethodPost, "/api/v1/notifications", `{
		"targetType": "role",
		"targetRole": "reviewer",
		"title": "Proposal submitted",
		"message": "A new proposal is awaiting review.",
		"notificationType": "proposal_submitted"
	}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Proposal submitted", data["title"])
	assert.NotEmpty(t, data["uuid"])
}

func TestCreateNotificationValidation(t *testing.T) {
	env := newTestEnv(adminPrincipal)

	// Missing title fails the request validator.
	rec, envelope := env.request(t, http.MethodPost, "/api/v1/notifications", `{
		"targetType": "all",
		"message": "m",
		"notificationType": "system_announcement"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)

	// A user target without a user id fails domain validation.
	rec, envelope = env.request(t, http.MethodPost, "/api/v1/notifications", `{
		"targetType": "user",
		"title": "t",
		"message": "m",
		"notificationType": "system_announcement"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "validation_error", envelope.Error.Code)
}

func TestCreateNotificationForbiddenForNonAdmin(t *testing.T) {
	env := newTestEnv(reviewerPrincipal)

	rec, envelope := env.request(t, http.MethodPost, "/api/v1/notifications", `{
		"targetType": "all",
		"title": "t",
		"message": "m",
		"notificationType": "system_announcement"
	}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "forbidden", envelope.Error.Code)
}

func TestUpdateNotification(t *testing.T) {
	env := newTestEnv(adminPrincipal)
	n := reviewerNotification(env.notifications)

	rec, envelope := env.request(t, http.MethodPatch, "/api/v1/notifications/"+idStr(n.ID),
		`{"title": "Corrected", "message": "Updated body"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Corrected", data["title"])
}

func TestDeliveryLogsEndpoint(t *testing.T) {
	env := newTestEnv(adminPrincipal)
	n := reviewerNotification(env.notifications)
	env.logs.logs = []domain.DeliveryLog{
		{ID: 1, NotificationID: n.ID, UserID: 1, Channel: domain.ChannelEmail, Status: domain.DeliverySent},
	}

	rec, envelope := env.request(t, http.MethodGet, "/api/v1/notifications/"+idStr(n.ID)+"/delivery-logs", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, ok := envelope.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestCleanupEndpoint(t *testing.T) {
	env := newTestEnv(adminPrincipal)

	rec, envelope := env.request(t, http.MethodPost, "/api/v1/notifications/cleanup", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0, data["expired"])
}
