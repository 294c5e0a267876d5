package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harune/notify/internal/domain"
)

// Sender delivers a rendered payload to one address over one channel. It
// returns the resulting status: sent, or delivered when the provider
// confirms receipt synchronously.
type Sender interface {
	Send(ctx context.Context, address, subject, body string) (domain.DeliveryStatus, error)
}

// PreferenceStore defines the preference access interface consumed by the
// dispatcher. Find must fall back to system defaults on a miss.
type PreferenceStore interface {
	Find(ctx context.Context, userID int64, typ domain.NotificationType) (domain.Preference, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Preference, error)
	UpsertAll(ctx context.Context, prefs []domain.Preference) error
}

// Directory is the read-only user directory snapshot used for audience
// enumeration.
type Directory interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	ListRecipients(ctx context.Context, target domain.Target) ([]domain.User, error)
}

// DeliveryAuditStore is the delivery trail interface the dispatcher writes to.
type DeliveryAuditStore interface {
	Append(ctx context.Context, log *domain.DeliveryLog) error
	Resolve(ctx context.Context, id int64, status domain.DeliveryStatus, sendErr *string, deliveredAt *time.Time) error
	ListPending(ctx context.Context, limit int) ([]domain.DeliveryLog, error)
}

// deliveryChannels are the outbound channels, in dispatch order. In-app
// needs no delivery; the notification row itself is the in-app copy.
var deliveryChannels = []domain.Channel{domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush}

// Dispatcher fans one notification out to its concrete recipients across
// their enabled channels. Attempts are isolated: one failing (recipient,
// channel) pair never blocks or fails another, and every attempt is logged.
type Dispatcher struct {
	directory     Directory
	preferences   PreferenceStore
	logs          DeliveryAuditStore
	notifications NotificationStore
	senders       map[domain.Channel]Sender
}

// NewDispatcher creates a Dispatcher over the given channel senders.
// Channels without a sender are never attempted.
func NewDispatcher(directory Directory, preferences PreferenceStore, logs DeliveryAuditStore, notifications NotificationStore, senders map[domain.Channel]Sender) *Dispatcher {
	return &Dispatcher{
		directory:     directory,
		preferences:   preferences,
		logs:          logs,
		notifications: notifications,
		senders:       senders,
	}
}

// Dispatch expands the notification's audience and attempts delivery on
// every (recipient, channel) pair concurrently, returning once all attempts
// have been logged. Digest-frequency recipients are skipped here and picked
// up by the digest batch instead; quiet-hours channels are logged pending
// and retried by the sweep.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) {
	recipients, err := d.directory.ListRecipients(ctx, n.Target)
	if err != nil {
		slog.Error("dispatch: enumerate recipients", "notification_id", n.ID, "error", err)
		return
	}

	now := time.Now()
	var wg sync.WaitGroup
	for _, user := range recipients {
		pref, err := d.preferences.Find(ctx, user.ID, n.Type)
		if err != nil {
			slog.Error("dispatch: load preference", "user_id", user.ID, "error", err)
			continue
		}
		if pref.Frequency != domain.FrequencyImmediate {
			slog.Debug("dispatch: skip non-immediate recipient",
				"user_id", user.ID, "frequency", pref.Frequency)
			continue
		}

		quiet := pref.InQuietHours(now)
		for _, ch := range deliveryChannels {
			if _, ok := d.senders[ch]; !ok {
				continue
			}
			if !pref.ChannelEnabled(ch) {
				continue
			}
			address, ok := channelAddress(user, ch)
			if !ok {
				continue
			}

			if quiet {
				d.append(ctx, domain.DeliveryLog{
					NotificationID: n.ID,
					UserID:         user.ID,
					Channel:        ch,
					Status:         domain.DeliveryPending,
				})
				continue
			}

			wg.Add(1)
			go func(user domain.User, ch domain.Channel, address string) {
				defer wg.Done()
				d.attempt(ctx, n, user, ch, address)
			}(user, ch, address)
		}
	}
	wg.Wait()
}

// ListDigestRecipients enumerates the recipients whose preference batches
// this notification into a digest instead of immediate delivery. A digest
// batcher consumes this; Dispatch itself never delivers to them.
func (d *Dispatcher) ListDigestRecipients(ctx context.Context, n domain.Notification) ([]domain.User, error) {
	recipients, err := d.directory.ListRecipients(ctx, n.Target)
	if err != nil {
		return nil, err
	}

	var digest []domain.User
	for _, user := range recipients {
		pref, err := d.preferences.Find(ctx, user.ID, n.Type)
		if err != nil {
			return nil, err
		}
		if pref.Frequency == domain.FrequencyDigest {
			digest = append(digest, user)
		}
	}
	return digest, nil
}

// attempt sends over one channel and logs the outcome. Send failures are
// recorded, never propagated.
func (d *Dispatcher) attempt(ctx context.Context, n domain.Notification, user domain.User, ch domain.Channel, address string) {
	subject, body := RenderTemplate(n, ch, user)

	entry := domain.DeliveryLog{
		NotificationID: n.ID,
		UserID:         user.ID,
		Channel:        ch,
	}
	status, err := d.senders[ch].Send(ctx, address, subject, body)
	if err != nil {
		msg := err.Error()
		entry.Status = domain.DeliveryFailed
		entry.Error = &msg
		slog.Warn("delivery failed",
			"notification_id", n.ID, "user_id", user.ID, "channel", ch, "error", err)
	} else {
		entry.Status = status
		if status == domain.DeliveryDelivered {
			t := time.Now().UTC()
			entry.DeliveredAt = &t
		}
	}
	d.append(ctx, entry)
}

func (d *Dispatcher) append(ctx context.Context, entry domain.DeliveryLog) {
	if err := d.logs.Append(ctx, &entry); err != nil {
		slog.Error("append delivery log",
			"notification_id", entry.NotificationID, "user_id", entry.UserID,
			"channel", entry.Channel, "error", err)
	}
}

// RetrySweep re-attempts deliveries deferred by quiet hours. Recipients
// still inside their quiet window are left pending for the next sweep;
// channels the user has disabled since are resolved as failed. Returns the
// number of pending attempts resolved.
func (d *Dispatcher) RetrySweep(ctx context.Context, limit int) (int, error) {
	pending, err := d.logs.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	resolved := 0
	for _, entry := range pending {
		n, err := d.notifications.FindByID(ctx, entry.NotificationID)
		if err != nil {
			slog.Error("retry sweep: load notification", "notification_id", entry.NotificationID, "error", err)
			continue
		}
		user, err := d.directory.FindByID(ctx, entry.UserID)
		if err != nil {
			slog.Error("retry sweep: load user", "user_id", entry.UserID, "error", err)
			continue
		}
		pref, err := d.preferences.Find(ctx, user.ID, n.Type)
		if err != nil {
			slog.Error("retry sweep: load preference", "user_id", user.ID, "error", err)
			continue
		}
		if pref.InQuietHours(now) {
			continue
		}

		address, hasAddress := channelAddress(*user, entry.Channel)
		sender, hasSender := d.senders[entry.Channel]
		if !pref.ChannelEnabled(entry.Channel) || !hasAddress || !hasSender {
			msg := "channel no longer available for recipient"
			if err := d.logs.Resolve(ctx, entry.ID, domain.DeliveryFailed, &msg, nil); err != nil {
				slog.Error("retry sweep: resolve", "delivery_log_id", entry.ID, "error", err)
				continue
			}
			resolved++
			continue
		}

		subject, body := RenderTemplate(*n, entry.Channel, *user)
		status, sendErr := sender.Send(ctx, address, subject, body)

		var errMsg *string
		var deliveredAt *time.Time
		if sendErr != nil {
			msg := sendErr.Error()
			errMsg = &msg
			status = domain.DeliveryFailed
		} else if status == domain.DeliveryDelivered {
			t := time.Now().UTC()
			deliveredAt = &t
		}
		if err := d.logs.Resolve(ctx, entry.ID, status, errMsg, deliveredAt); err != nil {
			slog.Error("retry sweep: resolve", "delivery_log_id", entry.ID, "error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// Run retries deferred deliveries on a fixed interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batchLimit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := d.RetrySweep(ctx, batchLimit)
			if err != nil {
				slog.Error("delivery retry sweep", "error", err)
				continue
			}
			if resolved > 0 {
				slog.Info("delivery retry sweep", "resolved", resolved)
			}
		}
	}
}

// channelAddress resolves the recipient address for a channel, reporting
// false when the user has none on file.
func channelAddress(user domain.User, ch domain.Channel) (string, bool) {
	switch ch {
	case domain.ChannelEmail:
		return user.Email, user.Email != ""
	case domain.ChannelSMS:
		if user.Phone == nil || *user.Phone == "" {
			return "", false
		}
		return *user.Phone, true
	case domain.ChannelPush:
		if user.PushToken == nil || *user.PushToken == "" {
			return "", false
		}
		return *user.PushToken, true
	}
	return "", false
}
