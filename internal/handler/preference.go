package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/harune/notify/internal/domain"
	"github.com/harune/notify/internal/service"
)

// PreferenceHandler handles delivery preference endpoints.
type PreferenceHandler struct {
	preferences *service.PreferenceService
}

// NewPreferenceHandler creates a new PreferenceHandler.
func NewPreferenceHandler(preferences *service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{preferences: preferences}
}

// Register mounts the preference routes on an authenticated group.
func (h *PreferenceHandler) Register(g *echo.Group) {
	g.GET("/preferences", h.List)
	g.PUT("/preferences", h.Update)
}

// List returns the caller's preferences for every notification type.
func (h *PreferenceHandler) List(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	prefs, err := h.preferences.List(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, prefs)
}

type preferenceRequest struct {
	NotificationType string  `json:"notificationType" validate:"required"`
	InApp            bool    `json:"inApp"`
	Email            bool    `json:"email"`
	SMS              bool    `json:"sms"`
	Push             bool    `json:"push"`
	Frequency        string  `json:"frequency" validate:"required,oneof=immediate digest off"`
	QuietHoursStart  *string `json:"quietHoursStart,omitempty"`
	QuietHoursEnd    *string `json:"quietHoursEnd,omitempty"`
	Timezone         string  `json:"timezone,omitempty"`
}

type updatePreferencesRequest struct {
	Preferences []preferenceRequest `json:"preferences" validate:"required,min=1,dive"`
}

// Update saves a batch of the caller's preferences all-or-nothing.
func (h *PreferenceHandler) Update(c echo.Context) error {
	p, ok := GetPrincipal(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req updatePreferencesRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	prefs := make([]domain.Preference, 0, len(req.Preferences))
	for _, r := range req.Preferences {
		timezone := r.Timezone
		if timezone == "" {
			timezone = "UTC"
		}
		prefs = append(prefs, domain.Preference{
			UserID:           p.ID,
			NotificationType: domain.NotificationType(r.NotificationType),
			InApp:            r.InApp,
			Email:            r.Email,
			SMS:              r.SMS,
			Push:             r.Push,
			Frequency:        domain.Frequency(r.Frequency),
			QuietHoursStart:  r.QuietHoursStart,
			QuietHoursEnd:    r.QuietHoursEnd,
			Timezone:         timezone,
		})
	}

	if err := h.preferences.Update(c.Request().Context(), p, prefs); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"status": "saved"})
}
