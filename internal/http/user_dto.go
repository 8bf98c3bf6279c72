package httpapi

import (
	"encoding/json"
	"time"

	"aiweb-backend-go/internal/models"
	"aiweb-backend-go/internal/services"
)

type UserDTO struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
	IsActive  bool       `json:"is_active"`
	IsAdmin   bool       `json:"is_admin"`
}

func toUserDTO(u models.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
		IsActive:  u.IsActive,
		IsAdmin:   u.IsAdmin,
	}
}

func toUserDTOs(users []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	return out
}

type SignupCodeDTO struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	IsUsed       bool      `json:"is_used"`
	UsedByUserID *int64    `json:"used_by_user_id"`
}

func toSignupCodeDTO(c models.SignupCode) SignupCodeDTO {
	return SignupCodeDTO{
		ID:           c.ID,
		Code:         c.Code,
		ExpiresAt:    c.ExpiresAt,
		CreatedAt:    c.CreatedAt,
		IsUsed:       c.IsUsed(),
		UsedByUserID: c.UsedByUserID,
	}
}

type SearchLogDTO struct {
	ID           int64                   `json:"id"`
	UserID       int64                   `json:"user_id"`
	SearchType   string                  `json:"search_type"`
	Query        string                  `json:"query"`
	Response     *string                 `json:"response"`
	ResponseTime *float64                `json:"response_time"`
	Timestamp    time.Time               `json:"timestamp"`
	IPAddress    *string                 `json:"ip_address"`
	UserAgent    *string                 `json:"user_agent"`
	Device       *services.DeviceSummary `json:"device,omitempty"`
}

func toSearchLogDTOs(rows []models.SearchLog) []SearchLogDTO {
	out := make([]SearchLogDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, SearchLogDTO{
			ID:           row.ID,
			UserID:       row.UserID,
			SearchType:   row.SearchType,
			Query:        row.Query,
			Response:     row.Response,
			ResponseTime: row.ResponseTime,
			Timestamp:    row.Timestamp,
			IPAddress:    row.IPAddress,
			UserAgent:    row.UserAgent,
			Device:       describe(row.UserAgent),
		})
	}
	return out
}

// ActionDTO carries Details decoded; a row whose details fail to parse is
// returned with null details.
type ActionDTO struct {
	ID         int64                   `json:"id"`
	UserID     int64                   `json:"user_id"`
	ActionType string                  `json:"action_type"`
	Details    json.RawMessage         `json:"details"`
	Timestamp  time.Time               `json:"timestamp"`
	IPAddress  *string                 `json:"ip_address"`
	UserAgent  *string                 `json:"user_agent"`
	Device     *services.DeviceSummary `json:"device,omitempty"`
}

func toActionDTOs(rows []models.UserAction) []ActionDTO {
	out := make([]ActionDTO, 0, len(rows))
	for _, row := range rows {
		var details json.RawMessage
		if row.Details != nil && json.Valid([]byte(*row.Details)) {
			details = json.RawMessage(*row.Details)
		}
		out = append(out, ActionDTO{
			ID:         row.ID,
			UserID:     row.UserID,
			ActionType: row.ActionType,
			Details:    details,
			Timestamp:  row.Timestamp,
			IPAddress:  row.IPAddress,
			UserAgent:  row.UserAgent,
			Device:     describe(row.UserAgent),
		})
	}
	return out
}

type LoginLogDTO struct {
	ID                int64                   `json:"id"`
	UserID            *int64                  `json:"user_id"`
	UsernameAttempted string                  `json:"username_attempted"`
	IPAddress         string                  `json:"ip_address"`
	UserAgent         *string                 `json:"user_agent"`
	LoginTime         time.Time               `json:"login_time"`
	Success           bool                    `json:"success"`
	FailureReason     *string                 `json:"failure_reason"`
	Device            *services.DeviceSummary `json:"device,omitempty"`
}

func toLoginLogDTOs(rows []models.LoginLog) []LoginLogDTO {
	out := make([]LoginLogDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, LoginLogDTO{
			ID:                row.ID,
			UserID:            row.UserID,
			UsernameAttempted: row.UsernameAttempted,
			IPAddress:         row.IPAddress,
			UserAgent:         row.UserAgent,
			LoginTime:         row.LoginTime,
			Success:           row.Success,
			FailureReason:     row.FailureReason,
			Device:            describe(row.UserAgent),
		})
	}
	return out
}

func describe(agent *string) *services.DeviceSummary {
	if agent == nil {
		return nil
	}
	return services.DescribeUserAgent(*agent)
}
