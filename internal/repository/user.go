package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/idxstock/stockapi/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailExists   = errors.New("email already exists")
	ErrAPIKeyExists  = errors.New("api key already exists")
	ErrInvalidPaging = errors.New("invalid pagination")
)

const userColumns = `
	id, name, email, password_hash, role, plan, api_key,
	api_calls, daily_calls, monthly_calls, monthly_quota, daily_quota,
	last_reset, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role, plan string
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &plan, &u.APIKey,
		&u.APICalls, &u.DailyCalls, &u.MonthlyCalls, &u.MonthlyQuota, &u.DailyQuota,
		&u.LastReset, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.Plan = model.Plan(plan)
	return &u, nil
}

func mapUserWriteError(err error, op string) error {
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "users_api_key_key" {
			return ErrAPIKeyExists
		}
		return ErrEmailExists
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, name, email, password_hash, role, plan, api_key,
			monthly_quota, daily_quota, last_reset, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash,
		string(user.Role), string(user.Plan), user.APIKey,
		user.MonthlyQuota, user.DailyQuota, user.LastReset, user.CreatedAt,
	)
	if err != nil {
		return mapUserWriteError(err, "create user")
	}
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a user by exact email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByAPIKey retrieves the owner of an API key by exact match.
func (r *Repository) GetUserByAPIKey(ctx context.Context, key string) (*model.User, error) {
	return r.getUser(ctx, "api_key", key)
}

// getUser looks up a single user; column is never caller-controlled.
func (r *Repository) getUser(ctx context.Context, column, value string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", column, err)
	}
	return user, nil
}

// APIKeyExists reports whether any user holds key.
func (r *Repository) APIKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE api_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check api key: %w", err)
	}
	return exists, nil
}

// UpdateUserAPIKey replaces the user's API key and returns the previous one.
// The old key stops matching as soon as the statement commits.
func (r *Repository) UpdateUserAPIKey(ctx context.Context, userID, key string) (*string, error) {
	query := `
		UPDATE users u
		SET api_key = $2, updated_at = NOW()
		FROM (SELECT id, api_key FROM users WHERE id = $1 FOR UPDATE) prev
		WHERE u.id = prev.id
		RETURNING prev.api_key
	`

	var previous *string
	err := r.pool.QueryRow(ctx, query, userID, key).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, mapUserWriteError(err, "update api key")
	}
	return previous, nil
}

// ListUsers returns users newest first.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]*model.User, error) {
	if limit <= 0 || offset < 0 {
		return nil, ErrInvalidPaging
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountUsersByPlan returns the number of users on each plan that has any.
func (r *Repository) CountUsersByPlan(ctx context.Context) (map[model.Plan]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT plan, COUNT(*) FROM users GROUP BY plan`)
	if err != nil {
		return nil, fmt.Errorf("failed to count users by plan: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Plan]int64)
	for rows.Next() {
		var plan string
		var n int64
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, fmt.Errorf("failed to scan plan count: %w", err)
		}
		counts[model.Plan(plan)] = n
	}
	return counts, rows.Err()
}

// GetOrCreateUser gets a user by email or creates one if not found.
func (r *Repository) GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, bool, error) {
	existing, err := r.GetUserByEmail(ctx, user.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.LastReset.IsZero() {
		user.LastReset = user.CreatedAt
	}
	if err := r.CreateUser(ctx, user); err != nil {
		// Another writer may have created it first.
		if errors.Is(err, ErrEmailExists) {
			existing, err := r.GetUserByEmail(ctx, user.Email)
			return existing, false, err
		}
		return nil, false, err
	}
	return user, true, nil
}
