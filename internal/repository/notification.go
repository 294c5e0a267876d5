package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/harune/notify/internal/domain"
)

// NotificationRepository handles notification rows and the per-user feed
// queries that evaluate audience membership without materialized
// per-recipient rows.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// notificationRow is the flat scan target for the notifications table.
type notificationRow struct {
	ID                  int64          `db:"id"`
	UUID                string         `db:"uuid"`
	TargetKind          string         `db:"target_kind"`
	TargetUserID        *int64         `db:"target_user_id"`
	TargetRole          *string        `db:"target_role"`
	ExcludedUserIDs     pq.Int64Array  `db:"excluded_user_ids"`
	Title               string         `db:"title"`
	Message             string         `db:"message"`
	Type                string         `db:"notification_type"`
	Priority            string         `db:"priority"`
	Status              string         `db:"status"`
	RelatedProposalID   *int64         `db:"related_proposal_id"`
	RelatedProposalUUID *string        `db:"related_proposal_uuid"`
	ActorUserID         *int64         `db:"actor_user_id"`
	Metadata            []byte         `db:"metadata"`
	Tags                pq.StringArray `db:"tags"`
	CreatedBy           int64          `db:"created_by"`
	CreatedAt           time.Time      `db:"created_at"`
	ExpiresAt           *time.Time     `db:"expires_at"`
}

// feedRow extends notificationRow with the computed read state.
type feedRow struct {
	notificationRow
	IsRead bool `db:"is_read"`
}

func (row notificationRow) toDomain() (domain.Notification, error) {
	target := domain.Target{
		Kind:            domain.TargetKind(row.TargetKind),
		UserID:          row.TargetUserID,
		ExcludedUserIDs: row.ExcludedUserIDs,
	}
	if row.TargetRole != nil {
		role := domain.Role(*row.TargetRole)
		target.Role = &role
	}

	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return domain.Notification{}, fmt.Errorf("decode metadata for notification %d: %w", row.ID, err)
		}
	}

	return domain.Notification{
		ID:                  row.ID,
		UUID:                row.UUID,
		Target:              target,
		Title:               row.Title,
		Message:             row.Message,
		Type:                domain.NotificationType(row.Type),
		Priority:            domain.Priority(row.Priority),
		Status:              domain.NotificationStatus(row.Status),
		RelatedProposalID:   row.RelatedProposalID,
		RelatedProposalUUID: row.RelatedProposalUUID,
		ActorUserID:         row.ActorUserID,
		Metadata:            metadata,
		Tags:                row.Tags,
		CreatedBy:           row.CreatedBy,
		CreatedAt:           row.CreatedAt,
		ExpiresAt:           row.ExpiresAt,
	}, nil
}

const notificationColumns = `id, uuid, target_kind, target_user_id, target_role, excluded_user_ids,
	title, message, notification_type, priority, status,
	related_proposal_id, related_proposal_uuid, actor_user_id, metadata, tags,
	created_by, created_at, expires_at`

// Create persists a validated notification and fills in its generated fields.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if n.Metadata == nil {
		metadata = []byte(`{}`)
	}

	var targetRole *string
	if n.Target.Role != nil {
		role := string(*n.Target.Role)
		targetRole = &role
	}
	excluded := n.Target.ExcludedUserIDs
	if excluded == nil {
		excluded = []int64{}
	}
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO notifications
		   (uuid, target_kind, target_user_id, target_role, excluded_user_ids,
		    title, message, notification_type, priority, status,
		    related_proposal_id, related_proposal_uuid, actor_user_id, metadata, tags,
		    created_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id, created_at`,
		n.UUID, n.Target.Kind, n.Target.UserID, targetRole, pq.Array(excluded),
		n.Title, n.Message, n.Type, n.Priority, domain.NotificationStatusActive,
		n.RelatedProposalID, n.RelatedProposalUUID, n.ActorUserID, metadata, pq.Array(tags),
		n.CreatedBy, n.ExpiresAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.Status = domain.NotificationStatusActive
	return nil
}

// FindByID retrieves a notification by its internal ID.
func (r *NotificationRepository) FindByID(ctx context.Context, id int64) (*domain.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find notification %d: %w", id, err)
	}
	n, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListCreatedBy returns notifications created by an admin, newest first.
func (r *NotificationRepository) ListCreatedBy(ctx context.Context, adminID int64, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []notificationRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+notificationColumns+`
		 FROM notifications WHERE created_by = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, adminID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications by creator %d: %w", adminID, err)
	}

	out := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// escapeLike neutralizes LIKE metacharacters in user input, so a search for
// "100%" matches that literal text instead of acting as a wildcard.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// membershipPredicate is the audience filter applied per query instead of
// materializing recipient rows. $1 is the user ID, $2 the user's current role.
const membershipPredicate = `
	(   (n.target_kind = 'user' AND n.target_user_id = $1)
	 OR (n.target_kind = 'role' AND n.target_role = $2)
	 OR  n.target_kind = 'all')
	AND NOT (n.excluded_user_ids @> ARRAY[$1]::BIGINT[])`

// watermarkJoin computes the effective read cutoff per row: the later of the
// user's global and per-type watermarks, or epoch when neither exists.
const watermarkJoin = `
	CROSS JOIN LATERAL (
		SELECT COALESCE(MAX(w.read_before), 'epoch'::TIMESTAMPTZ) AS cutoff
		FROM read_watermarks w
		WHERE w.user_id = $1
		  AND (w.notification_type = n.notification_type OR w.notification_type = '')
	) wm`

// Feed returns one page of the user's feed. Hidden and expired notifications
// are always excluded; read state is the overlay override or the watermark
// default.
func (r *NotificationRepository) Feed(ctx context.Context, q domain.FeedQuery) (*domain.FeedPage, error) {
	q = q.Normalize()

	args := []any{q.UserID, string(q.Role)}
	conds := []string{
		membershipPredicate,
		`COALESCE(r.is_hidden, FALSE) = FALSE`,
		`n.status = 'active'`,
		`(n.expires_at IS NULL OR n.expires_at > now())`,
	}
	if q.Type != nil {
		args = append(args, string(*q.Type))
		conds = append(conds, fmt.Sprintf(`n.notification_type = $%d`, len(args)))
	}
	if q.Priority != nil {
		args = append(args, string(*q.Priority))
		conds = append(conds, fmt.Sprintf(`n.priority = $%d`, len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		conds = append(conds, fmt.Sprintf(`(n.title ILIKE $%d OR n.message ILIKE $%d)`, len(args), len(args)))
	}
	if q.UnreadOnly {
		conds = append(conds, `NOT COALESCE(r.is_read, n.created_at <= wm.cutoff)`)
	}

	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}
	sortKey := "n.created_at"
	if q.SortBy == domain.FeedSortPriority {
		sortKey = `CASE n.priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'normal' THEN 2 ELSE 1 END`
	}

	// Fetch one extra row to compute hasMore without a second count query.
	args = append(args, q.Limit+1)
	limitPos := len(args)
	args = append(args, q.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`
		SELECT n.*, COALESCE(r.is_read, n.created_at <= wm.cutoff) AS is_read
		FROM notifications n
		LEFT JOIN notification_reads r
		       ON r.notification_id = n.id AND r.user_id = $1
		%s
		WHERE %s
		ORDER BY %s %s, n.id %s
		LIMIT $%d OFFSET $%d`,
		watermarkJoin, strings.Join(conds, "\n\t\t  AND "), sortKey, order, order, limitPos, offsetPos)

	var rows []feedRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query feed for user %d: %w", q.UserID, err)
	}

	hasMore := len(rows) > q.Limit
	if hasMore {
		rows = rows[:q.Limit]
	}

	items := make([]domain.FeedItem, 0, len(rows))
	for _, row := range rows {
		n, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, domain.FeedItem{Notification: n, IsRead: row.IsRead})
	}
	return &domain.FeedPage{Items: items, HasMore: hasMore}, nil
}

// UnreadCount counts unread, unhidden, unexpired notifications addressed to
// the user, optionally narrowed by type and priority. It applies exactly the
// predicates the unread-only feed applies, so the two agree.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID int64, role domain.Role, typ *domain.NotificationType, priority *domain.Priority) (int64, error) {
	args := []any{userID, string(role)}
	conds := []string{
		membershipPredicate,
		`COALESCE(r.is_hidden, FALSE) = FALSE`,
		`n.status = 'active'`,
		`(n.expires_at IS NULL OR n.expires_at > now())`,
		`NOT COALESCE(r.is_read, n.created_at <= wm.cutoff)`,
	}
	if typ != nil {
		args = append(args, string(*typ))
		conds = append(conds, fmt.Sprintf(`n.notification_type = $%d`, len(args)))
	}
	if priority != nil {
		args = append(args, string(*priority))
		conds = append(conds, fmt.Sprintf(`n.priority = $%d`, len(args)))
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM notifications n
		LEFT JOIN notification_reads r
		       ON r.notification_id = n.id AND r.user_id = $1
		%s
		WHERE %s`, watermarkJoin, strings.Join(conds, "\n\t\t  AND "))

	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count unread for user %d: %w", userID, err)
	}
	return count, nil
}

// UpdateAdmin edits the administratively mutable fields of a notification.
func (r *NotificationRepository) UpdateAdmin(ctx context.Context, id int64, title, message string, expiresAt *time.Time) (*domain.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE notifications
		 SET title = $2, message = $3, expires_at = $4
		 WHERE id = $1
		 RETURNING `+notificationColumns, id, title, message, expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update notification %d: %w", id, err)
	}
	n, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ExpireDue transitions active notifications past their expiry to expired
// and returns how many rows changed. Safe to run concurrently; a second
// sweep sees no remaining active rows.
func (r *NotificationRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = 'expired'
		 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire notifications rows affected: %w", err)
	}
	return n, nil
}

// Stats aggregates notification and delivery counts for admin views.
func (r *NotificationRepository) Stats(ctx context.Context) (*domain.NotificationStats, error) {
	stats := &domain.NotificationStats{ByType: make(map[domain.NotificationType]int64)}

	rows, err := r.db.QueryxContext(ctx,
		`SELECT notification_type, status, COUNT(*) FROM notifications
		 GROUP BY notification_type, status`)
	if err != nil {
		return nil, fmt.Errorf("query notification stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, status string
		var count int64
		if err := rows.Scan(&typ, &status, &count); err != nil {
			return nil, fmt.Errorf("scan notification stats: %w", err)
		}
		stats.Total += count
		stats.ByType[domain.NotificationType(typ)] += count
		switch domain.NotificationStatus(status) {
		case domain.NotificationStatusActive:
			stats.Active += count
		case domain.NotificationStatusExpired:
			stats.Expired += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification stats rows: %w", err)
	}

	err = r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE status IN ('sent', 'delivered')),
		        COUNT(*) FILTER (WHERE status = 'failed')
		 FROM delivery_logs`).Scan(&stats.Delivered, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("query delivery stats: %w", err)
	}
	return stats, nil
}
