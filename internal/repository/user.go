package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/harune/notify/internal/domain"
)

// UserRepository is a read-only view over the user directory. The
// notification core resolves audiences against it but never writes to it.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, display_name, role, phone, push_token, approved, created_at`

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id %d: %w", id, err)
	}
	return &user, nil
}

// ListRecipients enumerates the current concrete audience of a target:
// every approved user, narrowed to a role when the target has one, minus
// exclusions. Used only by the dispatcher; feed queries evaluate
// membership per row instead.
func (r *UserRepository) ListRecipients(ctx context.Context, target domain.Target) ([]domain.User, error) {
	if target.Kind == domain.TargetUser {
		user, err := r.FindByID(ctx, *target.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if !user.Approved || !target.Matches(user.ID, user.Role) {
			return nil, nil
		}
		return []domain.User{*user}, nil
	}

	excluded := target.ExcludedUserIDs
	if excluded == nil {
		excluded = []int64{}
	}
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE approved AND NOT (id = ANY($1))`
	args := []any{pq.Array(excluded)}
	if target.Kind == domain.TargetRole {
		query += ` AND role = $2`
		args = append(args, string(*target.Role))
	}
	query += ` ORDER BY id`

	var users []domain.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("enumerate recipients: %w", err)
	}
	return users, nil
}
