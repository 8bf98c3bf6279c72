package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"aiweb-backend-go/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	DefaultStatsDays = 30
	MaxStatsDays     = 365
)

// ClientInfo identifies where a request came from.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// AuditLog appends and queries the per-user search, action and login logs.
// Every read is scoped to a single user.
type AuditLog struct {
	DB  *sqlx.DB
	Hub *ActivityHub
	Now func() time.Time
}

func NewAuditLog(db *sqlx.DB, hub *ActivityHub) *AuditLog {
	return &AuditLog{DB: db, Hub: hub, Now: func() time.Time { return time.Now().UTC() }}
}

func (a *AuditLog) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *AuditLog) RecordSearch(ctx context.Context, userID int64, searchType, query string, response *string, elapsed time.Duration, client ClientInfo) error {
	at := a.now()
	seconds := elapsed.Seconds()
	_, err := a.DB.ExecContext(ctx, a.DB.Rebind(`
INSERT INTO search_logs (user_id, search_type, query, response, response_time, timestamp, ip_address, user_agent)
VALUES (?,?,?,?,?,?,?,?)
`), userID, searchType, query, response, seconds, at, optional(clip(client.IP, 45)), optional(clip(client.UserAgent, 500)))
	if err != nil {
		return Internal(err, "Failed to record search")
	}
	a.Hub.Publish(ActivityEvent{Kind: ActivitySearch, UserID: &userID, Tag: searchType, At: at})
	return nil
}

func (a *AuditLog) RecordAction(ctx context.Context, userID int64, actionType string, details map[string]interface{}, client ClientInfo) error {
	return recordAction(ctx, a.DB, a.Hub, a.now(), userID, actionType, details, client)
}

func recordAction(ctx context.Context, db sqlx.ExtContext, hub *ActivityHub, at time.Time, userID int64, actionType string, details map[string]interface{}, client ClientInfo) error {
	var encoded *string
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return Internal(err, "Failed to encode action details")
		}
		value := string(raw)
		encoded = &value
	}
	_, err := db.ExecContext(ctx, db.Rebind(`
INSERT INTO user_actions (user_id, action_type, details, timestamp, ip_address, user_agent)
VALUES (?,?,?,?,?,?)
`), userID, actionType, encoded, at, optional(clip(client.IP, 45)), optional(clip(client.UserAgent, 500)))
	if err != nil {
		return Internal(err, "Failed to record action")
	}
	hub.Publish(ActivityEvent{Kind: ActivityAction, UserID: &userID, Tag: actionType, At: at})
	return nil
}

// RecordLogin writes one login_logs row. userID is nil when the attempted
// identity did not resolve to a user.
func (a *AuditLog) RecordLogin(ctx context.Context, userID *int64, username string, success bool, reason string, client ClientInfo) error {
	at := a.now()
	ip := clip(client.IP, 45)
	if ip == "" {
		ip = "unknown"
	}
	_, err := a.DB.ExecContext(ctx, a.DB.Rebind(`
INSERT INTO login_logs (user_id, username_attempted, ip_address, user_agent, login_time, success, failure_reason)
VALUES (?,?,?,?,?,?,?)
`), userID, clip(username, 80), ip, optional(clip(client.UserAgent, 500)), at, success, optional(reason))
	if err != nil {
		return Internal(err, "Failed to record login attempt")
	}
	tag := "success"
	if !success {
		tag = reason
	}
	a.Hub.Publish(ActivityEvent{Kind: ActivityLogin, UserID: userID, Tag: tag, Success: &success, At: at})
	return nil
}

const (
	searchColumns = `id, user_id, search_type, query, response, response_time, timestamp, ip_address, user_agent`
	actionColumns = `id, user_id, action_type, details, timestamp, ip_address, user_agent`
	loginColumns  = `id, user_id, username_attempted, ip_address, user_agent, login_time, success, failure_reason`
)

func (a *AuditLog) ListSearches(ctx context.Context, userID int64, searchType string, page PageRequest) ([]models.SearchLog, Pagination, error) {
	page = page.Normalize()
	where, args := ownerFilter(userID, "search_type", searchType)
	var total int
	if err := a.DB.GetContext(ctx, &total, a.DB.Rebind(`SELECT count(*) FROM search_logs WHERE `+where), args...); err != nil {
		return nil, Pagination{}, Internal(err, "Failed to get search logs")
	}
	rows := []models.SearchLog{}
	query := `SELECT ` + searchColumns + ` FROM search_logs WHERE ` + where + ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	if err := a.DB.SelectContext(ctx, &rows, a.DB.Rebind(query), append(args, page.PerPage, page.Offset())...); err != nil {
		return nil, Pagination{}, Internal(err, "Failed to get search logs")
	}
	return rows, NewPagination(page, total), nil
}

func (a *AuditLog) ListActions(ctx context.Context, userID int64, actionType string, page PageRequest) ([]models.UserAction, Pagination, error) {
	page = page.Normalize()
	where, args := ownerFilter(userID, "action_type", actionType)
	var total int
	if err := a.DB.GetContext(ctx, &total, a.DB.Rebind(`SELECT count(*) FROM user_actions WHERE `+where), args...); err != nil {
		return nil, Pagination{}, Internal(err, "Failed to get user actions")
	}
	rows := []models.UserAction{}
	query := `SELECT ` + actionColumns + ` FROM user_actions WHERE ` + where + ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	if err := a.DB.SelectContext(ctx, &rows, a.DB.Rebind(query), append(args, page.PerPage, page.Offset())...); err != nil {
		return nil, Pagination{}, Internal(err, "Failed to get user actions")
	}
	return rows, NewPagination(page, total), nil
}

func (a *AuditLog) ListLogins(ctx context.Context, userID int64, page PageRequest) ([]models.LoginLog, Pagination, error) {
	page = page.Normalize()
	var total int
	if err := a.DB.GetContext(ctx, &total, a.DB.Rebind(`SELECT count(*) FROM login_logs WHERE user_id = ?`), userID); err != nil {
		return nil, Pagination{}, Internal(err, "Failed to get login logs")
	}
	rows := []models.LoginLog{}
	query := `SELECT ` + loginColumns + ` FROM login_logs WHERE user_id = ? ORDER BY login_time DESC, id DESC LIMIT ? OFFSET ?`
	if err := a.DB.SelectContext(ctx, &rows, a.DB.Rebind(query), userID, page.PerPage, page.Offset()); err != nil {
		return nil, Pagination{}, Internal(err, "Failed to get login logs")
	}
	return rows, NewPagination(page, total), nil
}

type TypeCount struct {
	Type  string `json:"type" db:"type"`
	Count int    `json:"count" db:"count"`
}

type CountGroup struct {
	ByType []TypeCount `json:"by_type"`
	Total  int         `json:"total"`
}

type LoginStats struct {
	TotalLogins      int `json:"total_logins" db:"total_logins"`
	SuccessfulLogins int `json:"successful_logins" db:"successful_logins"`
	FailedLogins     int `json:"failed_logins" db:"failed_logins"`
}

type ActivityStats struct {
	PeriodDays  int        `json:"period_days"`
	SearchStats CountGroup `json:"search_stats"`
	ActionStats CountGroup `json:"action_stats"`
	LoginStats  LoginStats `json:"login_stats"`
}

// ClampStatsDays applies the default window and the one-year cap.
func ClampStatsDays(days int) int {
	if days < 1 {
		return DefaultStatsDays
	}
	if days > MaxStatsDays {
		return MaxStatsDays
	}
	return days
}

func (a *AuditLog) Stats(ctx context.Context, userID int64, days int) (ActivityStats, error) {
	days = ClampStatsDays(days)
	since := a.now().Add(-time.Duration(days) * 24 * time.Hour)
	stats := ActivityStats{PeriodDays: days}

	searches, err := a.groupCounts(ctx, "search_logs", "search_type", userID, since)
	if err != nil {
		return ActivityStats{}, err
	}
	stats.SearchStats = searches

	actions, err := a.groupCounts(ctx, "user_actions", "action_type", userID, since)
	if err != nil {
		return ActivityStats{}, err
	}
	stats.ActionStats = actions

	if err := a.DB.GetContext(ctx, &stats.LoginStats, a.DB.Rebind(`
SELECT
  count(*) AS total_logins,
  COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful_logins,
  COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed_logins
FROM login_logs
WHERE user_id = ? AND login_time >= ?
`), userID, since); err != nil {
		return ActivityStats{}, Internal(err, "Failed to get user stats")
	}
	return stats, nil
}

// groupCounts runs a fixed-table group-by; table and column never come from
// request input.
func (a *AuditLog) groupCounts(ctx context.Context, table, column string, userID int64, since time.Time) (CountGroup, error) {
	group := CountGroup{ByType: []TypeCount{}}
	query := `SELECT ` + column + ` AS type, count(*) AS count FROM ` + table +
		` WHERE user_id = ? AND timestamp >= ? GROUP BY ` + column + ` ORDER BY count(*) DESC, ` + column
	if err := a.DB.SelectContext(ctx, &group.ByType, a.DB.Rebind(query), userID, since); err != nil {
		return CountGroup{}, Internal(err, "Failed to get user stats")
	}
	for _, row := range group.ByType {
		group.Total += row.Count
	}
	return group, nil
}

const (
	ExportSearches = "searches"
	ExportActions  = "actions"
	ExportLogins   = "logins"
	ExportAll      = "all"
)

type Export struct {
	Type     string
	Searches []models.SearchLog
	Actions  []models.UserAction
	Logins   []models.LoginLog
}

func (e Export) Includes(kind string) bool {
	return e.Type == ExportAll || e.Type == kind
}

// Export dumps the selected logs of one user, newest first.
func (a *AuditLog) Export(ctx context.Context, userID int64, exportType string) (Export, error) {
	exportType = strings.TrimSpace(exportType)
	if exportType == "" {
		exportType = ExportAll
	}
	switch exportType {
	case ExportSearches, ExportActions, ExportLogins, ExportAll:
	default:
		return Export{}, ErrValidation("Invalid export type. Use one of: searches, actions, logins, all")
	}
	out := Export{Type: exportType}
	if out.Includes(ExportSearches) {
		out.Searches = []models.SearchLog{}
		if err := a.DB.SelectContext(ctx, &out.Searches, a.DB.Rebind(`SELECT `+searchColumns+` FROM search_logs WHERE user_id = ? ORDER BY timestamp DESC, id DESC`), userID); err != nil {
			return Export{}, Internal(err, "Failed to export data")
		}
	}
	if out.Includes(ExportActions) {
		out.Actions = []models.UserAction{}
		if err := a.DB.SelectContext(ctx, &out.Actions, a.DB.Rebind(`SELECT `+actionColumns+` FROM user_actions WHERE user_id = ? ORDER BY timestamp DESC, id DESC`), userID); err != nil {
			return Export{}, Internal(err, "Failed to export data")
		}
	}
	if out.Includes(ExportLogins) {
		out.Logins = []models.LoginLog{}
		if err := a.DB.SelectContext(ctx, &out.Logins, a.DB.Rebind(`SELECT `+loginColumns+` FROM login_logs WHERE user_id = ? ORDER BY login_time DESC, id DESC`), userID); err != nil {
			return Export{}, Internal(err, "Failed to export data")
		}
	}
	return out, nil
}

func ownerFilter(userID int64, column, value string) (string, []interface{}) {
	where := "user_id = ?"
	args := []interface{}{userID}
	if value = strings.TrimSpace(value); value != "" {
		where += " AND " + column + " = ?"
		args = append(args, value)
	}
	return where, args
}

// clip trims value to at most maxLen characters. Invalid UTF-8 is dropped so
// the text always fits a character column.
func clip(value string, maxLen int) string {
	value = strings.TrimSpace(strings.ToValidUTF8(value, ""))
	if utf8.RuneCountInString(value) <= maxLen {
		return value
	}
	runes := []rune(value)
	return string(runes[:maxLen])
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
