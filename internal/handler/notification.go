package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harune/notify/internal/domain"
	"github.com/harune/notify/internal/service"
)

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
	reaper        *service.Reaper
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService, reaper *service.Reaper) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, reaper: reaper}
}

// Register mounts the notification routes on an authenticated group.
func (h *NotificationHandler) Register(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.GET("/notifications/unread-count", h.UnreadCount)
	g.PUT("/notifications/mark-read", h.MarkRead)
	g.PUT("/notifications/:id/hide", h.Hide)

	admin := g.Group("", RequireAdmin())
	admin.POST("/notifications", h.Create)
	admin.PATCH("/notifications/:id", h.Update)
	admin.GET("/notifications/created", h.ListCreated)
	admin.GET("/notifications/stats", h.Stats)
	admin.GET("/notifications/:id/delivery-logs", h.DeliveryLogs)
	admin.POST("/notifications/cleanup", h.Cleanup)
}

// List returns one page of the caller's feed.
func (h *NotificationHandler) List(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	q := domain.FeedQuery{
		UnreadOnly: c.QueryParam("unreadOnly") == "true",
		Search:     c.QueryParam("search"),
		SortBy:     c.QueryParam("sortBy"),
		SortOrder:  c.QueryParam("sortOrder"),
	}
	var err error
	if q.Limit, err = queryInt(c, "limit", domain.FeedDefaultLimit); err != nil {
		return err
	}
	if q.Offset, err = queryInt(c, "offset", 0); err != nil {
		return err
	}
	if q.Type, err = queryType(c); err != nil {
		return err
	}
	if q.Priority, err = queryPriority(c); err != nil {
		return err
	}
	q = q.Normalize()

	page, err := h.notifications.Feed(c.Request().Context(), p, q)
	if err != nil {
		return err
	}
	return JSONPage(c, http.StatusOK, page.Items, Pagination{
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: page.HasMore,
	})
}

// UnreadCount returns the caller's unread notification count.
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	typ, err := queryType(c)
	if err != nil {
		return err
	}
	priority, err := queryPriority(c)
	if err != nil {
		return err
	}

	count, err := h.notifications.UnreadCount(c.Request().Context(), p, typ, priority)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]int64{"count": count})
}

type markReadRequest struct {
	NotificationIDs []int64 `json:"notificationIds,omitempty"`
	Type            *string `json:"type,omitempty"`
}

// MarkRead marks specific notifications read, or everything when no IDs are
// given.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}

	var typ *domain.NotificationType
	if req.Type != nil {
		t := domain.NotificationType(*req.Type)
		if !t.Valid() {
			return &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", t)}
		}
		typ = &t
	}

	count, err := h.notifications.MarkRead(c.Request().Context(), p, req.NotificationIDs, typ)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]int64{"count": count})
}

// Hide hides a notification from the caller's feed.
func (h *NotificationHandler) Hide(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.notifications.Hide(c.Request().Context(), p, id); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"status": "hidden"})
}

type createNotificationRequest struct {
	TargetType          string            `json:"targetType" validate:"required,oneof=user role all"`
	TargetUserID        *int64            `json:"targetUserId,omitempty"`
	TargetRole          *string           `json:"targetRole,omitempty"`
	ExcludedUserIDs     []int64           `json:"excludedUserIds,omitempty"`
	Title               string            `json:"title" validate:"required,max=200"`
	Message             string            `json:"message" validate:"required,max=4000"`
	NotificationType    string            `json:"notificationType" validate:"required"`
	Priority            string            `json:"priority,omitempty"`
	RelatedProposalID   *int64            `json:"relatedProposalId,omitempty"`
	RelatedProposalUUID *string           `json:"relatedProposalUuid,omitempty"`
	ActorUserID         *int64            `json:"actorUserId,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Tags                []string          `json:"tags,omitempty"`
	ExpiresAt           *time.Time        `json:"expiresAt,omitempty"`
}

// Create creates a notification and initiates delivery (admin only).
func (h *NotificationHandler) Create(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req createNotificationRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	target := domain.Target{
		Kind:            domain.TargetKind(req.TargetType),
		UserID:          req.TargetUserID,
		ExcludedUserIDs: req.ExcludedUserIDs,
	}
	if req.TargetRole != nil {
		role := domain.Role(*req.TargetRole)
		target.Role = &role
	}

	n, err := h.notifications.Create(c.Request().Context(), p, service.CreateNotificationInput{
		Target:              target,
		Title:               req.Title,
		Message:             req.Message,
		Type:                domain.NotificationType(req.NotificationType),
		Priority:            domain.Priority(req.Priority),
		RelatedProposalID:   req.RelatedProposalID,
		RelatedProposalUUID: req.RelatedProposalUUID,
		ActorUserID:         req.ActorUserID,
		Metadata:            req.Metadata,
		Tags:                req.Tags,
		ExpiresAt:           req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, n)
}

type updateNotificationRequest struct {
	Title     string     `json:"title" validate:"required,max=200"`
	Message   string     `json:"message" validate:"required,max=4000"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Update edits a notification's title, message, and expiry (admin only).
func (h *NotificationHandler) Update(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req updateNotificationRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	n, err := h.notifications.AdminUpdate(c.Request().Context(), p, id, service.AdminUpdateInput{
		Title:     req.Title,
		Message:   req.Message,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, n)
}

// ListCreated returns notifications created by the calling admin.
func (h *NotificationHandler) ListCreated(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}

	notifications, err := h.notifications.ListCreatedBy(c.Request().Context(), p, limit)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, notifications)
}

// Stats returns notification statistics (admin only).
func (h *NotificationHandler) Stats(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	stats, err := h.notifications.Stats(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stats)
}

// DeliveryLogs returns the delivery audit trail for a notification (admin only).
func (h *NotificationHandler) DeliveryLogs(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	logs, err := h.notifications.DeliveryLogs(c.Request().Context(), p, id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, logs)
}

// Cleanup runs one expiration sweep (admin only).
func (h *NotificationHandler) Cleanup(c echo.Context) error {
	expired, err := h.reaper.RunOnce(c.Request().Context())
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]int64{"expired": expired})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid notification id", domain.ErrInvalidInput)
	}
	return id, nil
}

func queryInt(c echo.Context, name string, defaultValue int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

func queryType(c echo.Context) (*domain.NotificationType, error) {
	v := c.QueryParam("type")
	if v == "" {
		return nil, nil
	}
	t := domain.NotificationType(v)
	if !t.Valid() {
		return nil, &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", v)}
	}
	return &t, nil
}

func queryPriority(c echo.Context) (*domain.Priority, error) {
	v := c.QueryParam("priority")
	if v == "" {
		return nil, nil
	}
	p := domain.Priority(v)
	if !p.Valid() {
		return nil, &domain.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", v)}
	}
	return &p, nil
}
