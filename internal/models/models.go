package models

import "time"

type User struct {
	ID           int64      `db:"id"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	IsActive     bool       `db:"is_active"`
	IsAdmin      bool       `db:"is_admin"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLogin    *time.Time `db:"last_login"`
}

// SignupCode is valid while it is unused and unexpired. UsedAt survives the
// deletion of the consuming user, so a consumed code never becomes valid again.
type SignupCode struct {
	ID           int64      `db:"id"`
	Code         string     `db:"code"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UsedByUserID *int64     `db:"used_by_user_id"`
	UsedAt       *time.Time `db:"used_at"`
}

func (c SignupCode) IsUsed() bool {
	return c.UsedAt != nil || c.UsedByUserID != nil
}

func (c SignupCode) IsValid(now time.Time) bool {
	return !c.IsUsed() && c.ExpiresAt.After(now)
}

// Search types recorded in SearchLog.
const (
	SearchChat         = "chat"
	SearchCode         = "code"
	SearchDocument     = "document"
	SearchImageGen     = "image_gen"
	SearchImageAnalyze = "image_analyze"
)

type SearchLog struct {
	ID           int64     `db:"id"`
	UserID       int64     `db:"user_id"`
	SearchType   string    `db:"search_type"`
	Query        string    `db:"query"`
	Response     *string   `db:"response"`
	ResponseTime *float64  `db:"response_time"`
	Timestamp    time.Time `db:"timestamp"`
	IPAddress    *string   `db:"ip_address"`
	UserAgent    *string   `db:"user_agent"`
}

// UserAction.Details holds a JSON document or nil.
type UserAction struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	ActionType string    `db:"action_type"`
	Details    *string   `db:"details"`
	Timestamp  time.Time `db:"timestamp"`
	IPAddress  *string   `db:"ip_address"`
	UserAgent  *string   `db:"user_agent"`
}

// Login failure reasons.
const (
	LoginInvalidUsername = "invalid_username"
	LoginInvalidPassword = "invalid_password"
	LoginAccountDisabled = "account_disabled"
)

type LoginLog struct {
	ID                int64     `db:"id"`
	UserID            *int64    `db:"user_id"`
	UsernameAttempted string    `db:"username_attempted"`
	IPAddress         string    `db:"ip_address"`
	UserAgent         *string   `db:"user_agent"`
	LoginTime         time.Time `db:"login_time"`
	Success           bool      `db:"success"`
	FailureReason     *string   `db:"failure_reason"`
}
