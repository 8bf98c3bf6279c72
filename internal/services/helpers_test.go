package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"aiweb-backend-go/internal/db"
	"aiweb-backend-go/internal/migrations"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = migrations.Apply(conn, db.DialectSQLite)
	require.NoError(t, err)
	return conn
}

func testTokens() TokenService {
	return TokenService{Secret: []byte("test-secret"), Issuer: "aiweb-test", TTL: time.Hour}
}

func newTestDirectory(t *testing.T) (*Directory, *AuditLog) {
	t.Helper()
	conn := newTestDB(t)
	audit := NewAuditLog(conn, nil)
	return NewDirectory(conn, testTokens(), audit), audit
}

func insertUser(t *testing.T, conn *sqlx.DB, username string) int64 {
	t.Helper()
	var id int64
	err := conn.QueryRowx(conn.Rebind(`
INSERT INTO users (username, email, password_hash, is_active, is_admin, created_at)
VALUES (?,?,?,?,?,?)
RETURNING id
`), username, username+"@example.com", "x", true, false, time.Now().UTC()).Scan(&id)
	require.NoError(t, err)
	return id
}

func newSignupCode(t *testing.T, dir *Directory) string {
	t.Helper()
	code, err := dir.CreateSignupCode(context.Background(), DefaultSignupCodeDays)
	require.NoError(t, err)
	return code.Code
}

func registerUser(t *testing.T, dir *Directory, username, password string) int64 {
	t.Helper()
	user, err := dir.Register(context.Background(), Registration{
		Username:   username,
		Email:      username + "@example.com",
		Password:   password,
		SignupCode: newSignupCode(t, dir),
	}, ClientInfo{IP: "127.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return user.ID
}
