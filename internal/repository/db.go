package repository

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Connect opens a pooled connection to Postgres and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies the embedded schema. Statements are idempotent so the
// service can run it on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id           BIGSERIAL PRIMARY KEY,
    email        TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    role         TEXT NOT NULL,
    phone        TEXT,
    push_token   TEXT,
    approved     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notifications (
    id                    BIGSERIAL PRIMARY KEY,
    uuid                  UUID NOT NULL UNIQUE,
    target_kind           TEXT NOT NULL,
    target_user_id        BIGINT,
    target_role           TEXT,
    excluded_user_ids     BIGINT[] NOT NULL DEFAULT '{}',
    title                 TEXT NOT NULL,
    message               TEXT NOT NULL,
    notification_type     TEXT NOT NULL,
    priority              TEXT NOT NULL DEFAULT 'normal',
    status                TEXT NOT NULL DEFAULT 'active',
    related_proposal_id   BIGINT,
    related_proposal_uuid TEXT,
    actor_user_id         BIGINT,
    metadata              JSONB NOT NULL DEFAULT '{}',
    tags                  TEXT[] NOT NULL DEFAULT '{}',
    created_by            BIGINT NOT NULL REFERENCES users(id),
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at            TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_notifications_target_user
    ON notifications(target_user_id) WHERE target_kind = 'user';
CREATE INDEX IF NOT EXISTS idx_notifications_created_at
    ON notifications(created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS notification_reads (
    user_id         BIGINT NOT NULL REFERENCES users(id),
    notification_id BIGINT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
    is_read         BOOLEAN NOT NULL DEFAULT FALSE,
    is_hidden       BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, notification_id)
);

CREATE TABLE IF NOT EXISTS read_watermarks (
    user_id           BIGINT NOT NULL REFERENCES users(id),
    notification_type TEXT NOT NULL DEFAULT '',
    read_before       TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, notification_type)
);

CREATE TABLE IF NOT EXISTS preferences (
    user_id           BIGINT NOT NULL REFERENCES users(id),
    notification_type TEXT NOT NULL,
    in_app            BOOLEAN NOT NULL DEFAULT TRUE,
    email             BOOLEAN NOT NULL DEFAULT TRUE,
    sms               BOOLEAN NOT NULL DEFAULT FALSE,
    push              BOOLEAN NOT NULL DEFAULT TRUE,
    frequency         TEXT NOT NULL DEFAULT 'immediate',
    quiet_hours_start TEXT,
    quiet_hours_end   TEXT,
    timezone          TEXT NOT NULL DEFAULT 'UTC',
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, notification_type)
);

CREATE TABLE IF NOT EXISTS delivery_logs (
    id              BIGSERIAL PRIMARY KEY,
    notification_id BIGINT NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
    user_id         BIGINT NOT NULL REFERENCES users(id),
    channel         TEXT NOT NULL,
    status          TEXT NOT NULL,
    error           TEXT,
    attempted_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    delivered_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_delivery_logs_notification
    ON delivery_logs(notification_id);
CREATE INDEX IF NOT EXISTS idx_delivery_logs_pending
    ON delivery_logs(status) WHERE status = 'pending';
`
