package service

import (
	"context"
	"fmt"
	"time"

	"github.com/harune/notify/internal/domain"
)

// PreferenceService handles a user's own delivery preferences.
type PreferenceService struct {
	preferences PreferenceStore
}

// NewPreferenceService creates a new PreferenceService.
func NewPreferenceService(preferences PreferenceStore) *PreferenceService {
	return &PreferenceService{preferences: preferences}
}

// List returns the caller's settings for every notification type, with
// system defaults for types they have never configured. Gap filling lives
// here so the contract holds over any store.
func (s *PreferenceService) List(ctx context.Context, p domain.Principal) ([]domain.Preference, error) {
	stored, err := s.preferences.ListByUser(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	byType := make(map[domain.NotificationType]domain.Preference, len(stored))
	for _, pref := range stored {
		byType[pref.NotificationType] = pref
	}

	all := domain.NotificationTypes()
	out := make([]domain.Preference, 0, len(all))
	for _, typ := range all {
		if pref, ok := byType[typ]; ok {
			out = append(out, pref)
		} else {
			out = append(out, domain.DefaultPreference(p.ID, typ))
		}
	}
	return out, nil
}

// Update saves a batch of the caller's preferences all-or-nothing. The
// owning user is always the caller; a preference row can only be mutated by
// its owner.
func (s *PreferenceService) Update(ctx context.Context, p domain.Principal, prefs []domain.Preference) error {
	if len(prefs) == 0 {
		return &domain.ValidationError{Field: "preferences", Message: "must not be empty"}
	}
	for i := range prefs {
		prefs[i].UserID = p.ID
		if err := validatePreference(prefs[i]); err != nil {
			return err
		}
	}
	return s.preferences.UpsertAll(ctx, prefs)
}

func validatePreference(p domain.Preference) error {
	if !p.NotificationType.Valid() {
		return &domain.ValidationError{Field: "notificationType", Message: fmt.Sprintf("unknown type %q", p.NotificationType)}
	}
	if !p.Frequency.Valid() {
		return &domain.ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", p.Frequency)}
	}
	if (p.QuietHoursStart == nil) != (p.QuietHoursEnd == nil) {
		return &domain.ValidationError{Field: "quietHours", Message: "start and end must be set together"}
	}
	if err := p.ValidateQuietHours(); err != nil {
		return err
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return &domain.ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", p.Timezone)}
		}
	}
	return nil
}
