// Package model defines domain entities for the application.
package model

import "time"

// Role is the authorization role of a user.
type Role string

// Role values.
const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is an account that owns an API key and consumes quota.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	Role         Role      `json:"role"`
	Plan         Plan      `json:"plan"`
	APIKey       *string   `json:"apiKey"`
	APICalls     int64     `json:"apiCalls"`
	DailyCalls   int64     `json:"dailyCalls"`
	MonthlyCalls int64     `json:"monthlyCalls"`
	MonthlyQuota int64     `json:"monthlyQuota"`
	DailyQuota   int64     `json:"dailyQuota"`
	LastReset    time.Time `json:"lastReset"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ApplyWindow zeroes the counters whose window began after LastReset, so
// they show the current day and month without waiting for the next call.
func (u *User) ApplyWindow(dayStart, monthStart time.Time) {
	if u.LastReset.Before(dayStart) {
		u.DailyCalls = 0
	}
	if u.LastReset.Before(monthStart) {
		u.MonthlyCalls = 0
	}
}

// Identity returns the request identity for this user.
func (u *User) Identity() *Identity {
	return &Identity{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Plan:   u.Plan,
	}
}

// Identity holds the authenticated caller of a request.
// It is injected into the request context by the auth middleware.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Plan   Plan   `json:"plan"`
}

// IsAdmin returns true if the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// UserSummary is the admin listing view of a user.
type UserSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Plan         Plan      `json:"plan"`
	APICalls     int64     `json:"apiCalls"`
	MonthlyQuota int64     `json:"monthlyQuota"`
	DailyQuota   int64     `json:"dailyQuota"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Summary converts a User to its admin listing view.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		Plan:         u.Plan,
		APICalls:     u.APICalls,
		MonthlyQuota: u.MonthlyQuota,
		DailyQuota:   u.DailyQuota,
		CreatedAt:    u.CreatedAt,
	}
}
