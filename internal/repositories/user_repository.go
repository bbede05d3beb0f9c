package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-sync-service/internal/models"
)

// UserRepository answers directory questions about users: existence,
// display names for rendering, and push tokens for notification fan-out.
type UserRepository interface {
	Exist(ctx context.Context, userIDs []string) (bool, error)
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
	DeviceTokens(ctx context.Context, userIDs []string) ([]string, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Exist reports whether every id in the list names a known user.
func (r *UserRepo) Exist(ctx context.Context, userIDs []string) (bool, error) {
	if len(userIDs) == 0 {
		return true, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(DISTINCT id) FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return false, err
	}
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return false, err
	}
	return count == len(uniqueIDs(userIDs)), nil
}

// DisplayNames resolves user ids to display names, falling back to the
// username when no display name is set.
func (r *UserRepo) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := map[string]string{}
	if len(userIDs) == 0 {
		return names, nil
	}
	query, args, err := sqlx.In(`SELECT id, username, display_name FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var user models.User
		if err := rows.StructScan(&user); err != nil {
			return nil, err
		}
		name := user.DisplayName
		if name == "" {
			name = user.Username
		}
		names[user.ID] = name
	}
	return names, rows.Err()
}

// DeviceTokens returns every registered push token for the given users.
func (r *UserRepo) DeviceTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT token FROM device_tokens WHERE user_id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := r.db.SelectContext(ctx, &tokens, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return tokens, nil
}

func uniqueIDs(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
