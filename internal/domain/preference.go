package domain

import (
	"fmt"
	"time"
)

// Channel represents a delivery channel.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Frequency controls when a user receives channel deliveries.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDigest    Frequency = "digest"
	FrequencyOff       Frequency = "off"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDigest, FrequencyOff:
		return true
	}
	return false
}

// Preference holds one user's delivery settings for one notification type.
// Rows are created lazily with system defaults on first read.
type Preference struct {
	UserID           int64            `json:"user_id" db:"user_id"`
	NotificationType NotificationType `json:"notification_type" db:"notification_type"`
	InApp            bool             `json:"in_app" db:"in_app"`
	Email            bool             `json:"email" db:"email"`
	SMS              bool             `json:"sms" db:"sms"`
	Push             bool             `json:"push" db:"push"`
	Frequency        Frequency        `json:"frequency" db:"frequency"`
	QuietHoursStart  *string          `json:"quiet_hours_start,omitempty" db:"quiet_hours_start"`
	QuietHoursEnd    *string          `json:"quiet_hours_end,omitempty" db:"quiet_hours_end"`
	Timezone         string           `json:"timezone" db:"timezone"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// DefaultPreference returns the system default settings for a (user, type) pair.
func DefaultPreference(userID int64, t NotificationType) Preference {
	return Preference{
		UserID:           userID,
		NotificationType: t,
		InApp:            true,
		Email:            true,
		SMS:              false,
		Push:             true,
		Frequency:        FrequencyImmediate,
		Timezone:         "UTC",
	}
}

// ChannelEnabled reports whether the preference allows the given channel.
func (p Preference) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelInApp:
		return p.InApp
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.SMS
	case ChannelPush:
		return p.Push
	}
	return false
}

// ValidateQuietHours rejects quiet-hour bounds that do not parse as "HH:MM".
func (p Preference) ValidateQuietHours() error {
	if p.QuietHoursStart != nil {
		if _, err := parseClock(*p.QuietHoursStart); err != nil {
			return &ValidationError{Field: "quietHoursStart", Message: "must be HH:MM"}
		}
	}
	if p.QuietHoursEnd != nil {
		if _, err := parseClock(*p.QuietHoursEnd); err != nil {
			return &ValidationError{Field: "quietHoursEnd", Message: "must be HH:MM"}
		}
	}
	return nil
}

// InQuietHours reports whether now falls inside the user's quiet hours,
// evaluated in the user's timezone. Windows may wrap past midnight
// (22:00 to 07:00). Unset or malformed windows never suppress delivery.
func (p Preference) InQuietHours(now time.Time) bool {
	if p.QuietHoursStart == nil || p.QuietHoursEnd == nil {
		return false
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	start, err1 := parseClock(*p.QuietHoursStart)
	end, err2 := parseClock(*p.QuietHoursEnd)
	if err1 != nil || err2 != nil || start == end {
		return false
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	// Window wraps past midnight.
	return minute >= start || minute < end
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
