package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"aiweb-backend-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.at = c.at.Add(time.Minute)
	return c.at
}

func TestListSearchesPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	userID := insertUser(t, conn, "alice")
	clock := &stepClock{at: time.Now().UTC().Add(-24 * time.Hour)}
	audit := &AuditLog{DB: conn, Now: clock.Now}

	for i := 1; i <= 25; i++ {
		require.NoError(t, audit.RecordSearch(ctx, userID, models.SearchChat, fmt.Sprintf("q%d", i), nil, time.Second, client))
	}

	rows, page, err := audit.ListSearches(ctx, userID, "", PageRequest{Page: 2, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, "q15", rows[0].Query)
	assert.Equal(t, "q6", rows[9].Query)
	assert.Equal(t, Pagination{Page: 2, PerPage: 10, Total: 25, Pages: 3, HasNext: true, HasPrev: true}, page)
	require.NotNil(t, rows[0].ResponseTime)
	assert.InDelta(t, 1.0, *rows[0].ResponseTime, 0.001)

	_, page, err = audit.ListSearches(ctx, userID, "", PageRequest{Page: 1, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPerPage, page.PerPage)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrev)
}

func TestListSearchesFiltersByTypeAndOwner(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")
	audit := NewAuditLog(conn, nil)

	reply := "ok"
	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchChat, "hello", &reply, time.Second, client))
	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchCode, "func", nil, time.Second, client))
	require.NoError(t, audit.RecordSearch(ctx, bob, models.SearchChat, "private", nil, time.Second, client))

	rows, page, err := audit.ListSearches(ctx, alice, models.SearchChat, PageRequest{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0].Query)
	assert.Equal(t, "ok", *rows[0].Response)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, DefaultPerPage, page.PerPage)

	rows, _, err = audit.ListSearches(ctx, alice, "", PageRequest{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, alice, row.UserID)
	}
}

func TestListLoginsOnlyShowsOwnAttempts(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	alice := insertUser(t, conn, "alice")
	audit := NewAuditLog(conn, nil)

	require.NoError(t, audit.RecordLogin(ctx, &alice, "alice", true, "", client))
	require.NoError(t, audit.RecordLogin(ctx, &alice, "alice", false, models.LoginInvalidPassword, client))
	require.NoError(t, audit.RecordLogin(ctx, nil, "ghost", false, models.LoginInvalidUsername, ClientInfo{}))

	rows, page, err := audit.ListLogins(ctx, alice, PageRequest{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 2, page.Total)

	var ip string
	require.NoError(t, conn.Get(&ip, `SELECT ip_address FROM login_logs WHERE user_id IS NULL`))
	assert.Equal(t, "unknown", ip)
}

func TestStatsCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	alice := insertUser(t, conn, "alice")
	audit := NewAuditLog(conn, nil)

	old := &AuditLog{DB: conn, Now: func() time.Time { return time.Now().UTC().AddDate(0, 0, -40) }}
	require.NoError(t, old.RecordSearch(ctx, alice, models.SearchChat, "old", nil, 0, client))
	require.NoError(t, old.RecordLogin(ctx, &alice, "alice", true, "", client))

	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchChat, "a", nil, 0, client))
	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchChat, "b", nil, 0, client))
	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchDocument, "c", nil, 0, client))
	require.NoError(t, audit.RecordAction(ctx, alice, "file_upload", map[string]interface{}{"filename": "a.txt"}, client))
	require.NoError(t, audit.RecordLogin(ctx, &alice, "alice", true, "", client))
	require.NoError(t, audit.RecordLogin(ctx, &alice, "alice", false, models.LoginInvalidPassword, client))

	stats, err := audit.Stats(ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultStatsDays, stats.PeriodDays)
	assert.Equal(t, 3, stats.SearchStats.Total)
	assert.Equal(t, []TypeCount{{Type: models.SearchChat, Count: 2}, {Type: models.SearchDocument, Count: 1}}, stats.SearchStats.ByType)
	assert.Equal(t, 1, stats.ActionStats.Total)
	assert.Equal(t, LoginStats{TotalLogins: 2, SuccessfulLogins: 1, FailedLogins: 1}, stats.LoginStats)

	stats, err = audit.Stats(ctx, alice, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxStatsDays, stats.PeriodDays)
	assert.Equal(t, 4, stats.SearchStats.Total)
	assert.Equal(t, 3, stats.LoginStats.TotalLogins)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	alice := insertUser(t, conn, "alice")
	audit := NewAuditLog(conn, nil)
	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchChat, "a", nil, 0, client))
	require.NoError(t, audit.RecordAction(ctx, alice, "logout", nil, client))

	_, err := audit.Export(ctx, alice, "everything")
	assert.Equal(t, KindValidation, KindOf(err))

	out, err := audit.Export(ctx, alice, "searches")
	require.NoError(t, err)
	assert.Len(t, out.Searches, 1)
	assert.Nil(t, out.Actions)
	assert.Nil(t, out.Logins)

	out, err = audit.Export(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, ExportAll, out.Type)
	assert.Len(t, out.Searches, 1)
	assert.Len(t, out.Actions, 1)
	assert.NotNil(t, out.Logins)
	assert.Empty(t, out.Logins)
}

func TestRecordingPublishesActivity(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	alice := insertUser(t, conn, "alice")
	hub := NewActivityHub()
	audit := NewAuditLog(conn, hub)

	require.NoError(t, audit.RecordLogin(ctx, nil, "ghost", false, models.LoginInvalidUsername, client))
	event := <-hub.ch
	assert.Equal(t, ActivityLogin, event.Kind)
	assert.Nil(t, event.UserID)
	assert.Equal(t, models.LoginInvalidUsername, event.Tag)
	require.NotNil(t, event.Success)
	assert.False(t, *event.Success)

	require.NoError(t, audit.RecordSearch(ctx, alice, models.SearchCode, "secret prompt", nil, 0, client))
	event = <-hub.ch
	assert.Equal(t, ActivitySearch, event.Kind)
	assert.Equal(t, models.SearchCode, event.Tag)
	assert.Equal(t, alice, *event.UserID)
}

func TestClipKeepsWholeCharacters(t *testing.T) {
	assert.Equal(t, "abc", clip("  abc  ", 10))
	assert.Equal(t, "aé", clip("aéé", 2))
	assert.Equal(t, "ok", clip("o\xffk", 10))
	long := clip("a"+strings.Repeat("é", 600), 500)
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, 500, utf8.RuneCountInString(long))
}

func TestRecordLoginClipsMultibyteText(t *testing.T) {
	ctx := context.Background()
	conn := newTestDB(t)
	alice := insertUser(t, conn, "alice")
	audit := NewAuditLog(conn, nil)

	agent := "a" + strings.Repeat("é", 600)
	attempted := "b" + strings.Repeat("ö", 100)
	require.NoError(t, audit.RecordLogin(ctx, &alice, attempted, false, models.LoginInvalidPassword, ClientInfo{IP: "10.0.0.2", UserAgent: agent}))
	require.NoError(t, audit.RecordAction(ctx, alice, "chat_request", nil, ClientInfo{UserAgent: agent}))

	rows, _, err := audit.ListLogins(ctx, alice, PageRequest{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, utf8.ValidString(rows[0].UsernameAttempted))
	assert.Equal(t, 80, utf8.RuneCountInString(rows[0].UsernameAttempted))
	require.NotNil(t, rows[0].UserAgent)
	assert.True(t, utf8.ValidString(*rows[0].UserAgent))
	assert.Equal(t, 500, utf8.RuneCountInString(*rows[0].UserAgent))

	actions, _, err := audit.ListActions(ctx, alice, "chat_request", PageRequest{})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.NotNil(t, actions[0].UserAgent)
	assert.True(t, utf8.ValidString(*actions[0].UserAgent))
}
