package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpirationStore is the subset of the notification store the reaper needs.
type ExpirationStore interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// Reaper periodically expires notifications past their expiry. Expired
// notifications vanish from feeds and are never dispatched again. Runs are
// idempotent, so overlapping sweeps are harmless.
type Reaper struct {
	store ExpirationStore
}

// NewReaper creates a new Reaper.
func NewReaper(store ExpirationStore) *Reaper {
	return &Reaper{store: store}
}

// RunOnce performs a single sweep and returns the number of notifications
// expired. Also backs the admin cleanup endpoint.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	return r.store.ExpireDue(ctx, time.Now().UTC())
}

// Run sweeps on a fixed interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := r.RunOnce(ctx)
			if err != nil {
				slog.Error("expiration sweep", "error", err)
				continue
			}
			if expired > 0 {
				slog.Info("expiration sweep", "expired", expired)
			}
		}
	}
}
