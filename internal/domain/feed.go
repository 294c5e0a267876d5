package domain

// Feed sort keys accepted from the API. Anything else falls back to created_at.
const (
	FeedSortCreatedAt = "created_at"
	FeedSortPriority  = "priority"

	FeedMaxLimit     = 100
	FeedDefaultLimit = 20
)

// FeedQuery describes one page of a user's personal feed.
type FeedQuery struct {
	UserID     int64
	Role       Role
	UnreadOnly bool
	Type       *NotificationType
	Priority   *Priority
	Search     string
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

// Normalize clamps pagination and coerces sort parameters to the accepted
// set so that callers can hand query-string values over as-is.
func (q FeedQuery) Normalize() FeedQuery {
	if q.Limit <= 0 {
		q.Limit = FeedDefaultLimit
	}
	if q.Limit > FeedMaxLimit {
		q.Limit = FeedMaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.SortBy != FeedSortPriority {
		q.SortBy = FeedSortCreatedAt
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
	return q
}

// FeedPage is one page of feed results.
type FeedPage struct {
	Items   []FeedItem `json:"items"`
	HasMore bool       `json:"has_more"`
}
