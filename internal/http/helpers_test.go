package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aiweb-backend-go/internal/cloud"
	"aiweb-backend-go/internal/config"
	"aiweb-backend-go/internal/db"
	"aiweb-backend-go/internal/ingest"
	"aiweb-backend-go/internal/migrations"
	"aiweb-backend-go/internal/services"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAssistant struct {
	images  bool
	reply   cloud.Result
	picture cloud.Result

	prompts []string
	systems []string
	inline  []*cloud.Image
}

func (f *fakeAssistant) Available() bool      { return false }
func (f *fakeAssistant) SupportsImages() bool { return f.images }

func (f *fakeAssistant) Invoke(_ context.Context, prompt, system string, image *cloud.Image) cloud.Result {
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, system)
	f.inline = append(f.inline, image)
	if f.reply == (cloud.Result{}) {
		return cloud.Result{Response: "model answer"}
	}
	return f.reply
}

func (f *fakeAssistant) GenerateImage(context.Context, string) cloud.Result {
	if f.picture == (cloud.Result{}) {
		return cloud.Result{Image: "aW1hZ2U="}
	}
	return f.picture
}

type testEnv struct {
	server    *Server
	handler   http.Handler
	assistant *fakeAssistant
	uploads   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = migrations.Apply(conn, db.DialectSQLite)
	require.NoError(t, err)

	uploads := filepath.Join(t.TempDir(), "uploads")
	cfg := config.Config{
		UploadFolder:      uploads,
		MaxUploadBytes:    1 << 20,
		AllowedExtensions: []string{"txt", "md", "pdf", "png", "jpg", "jpeg", "gif", "doc", "docx", "html"},
		MetricsEnabled:    true,
	}
	hub := services.NewActivityHub()
	tokens := services.TokenService{Secret: []byte("test-secret"), Issuer: "aiweb-test", TTL: time.Hour}
	audit := services.NewAuditLog(conn, hub)
	resolver := cloud.NewResolver(cloud.ResolverOptions{Region: "us-east-1"})
	resolver.Candidates = func() []cloud.Candidate { return nil }
	assistant := &fakeAssistant{}
	dispatcher := ingest.NewDispatcher(assistant, nil, nil, nil, ingest.Options{MaxChars: 1000})
	dispatcher.Extractors = nil

	server := &Server{
		DB:         conn,
		Config:     cfg,
		Log:        zap.NewNop(),
		Tokens:     tokens,
		Directory:  services.NewDirectory(conn, tokens, audit),
		Audit:      audit,
		Hub:        hub,
		Resolver:   resolver,
		Invoker:    assistant,
		Dispatcher: dispatcher,
		Metrics:    NewMetrics(),
	}
	return &testEnv{server: server, handler: server.Router(), assistant: assistant, uploads: uploads}
}

// createUser registers username with a fresh signup code; admin users are
// promoted directly in the database.
func (e *testEnv) createUser(t *testing.T, username, password string, admin bool) int64 {
	t.Helper()
	ctx := context.Background()
	code, err := e.server.Directory.CreateSignupCode(ctx, services.DefaultSignupCodeDays)
	require.NoError(t, err)
	user, err := e.server.Directory.Register(ctx, services.Registration{
		Username:   username,
		Email:      username + "@example.com",
		Password:   password,
		SignupCode: code.Code,
	}, services.ClientInfo{IP: "127.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	if admin {
		_, err = e.server.DB.Exec(e.server.DB.Rebind(`UPDATE users SET is_admin = ? WHERE id = ?`), true, user.ID)
		require.NoError(t, err)
	}
	return user.ID
}

func (e *testEnv) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookie {
			return cookie
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, path, filename string, content []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// scratchFiles lists what is left in the upload folder.
func (e *testEnv) scratchFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.uploads)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := []string{}
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
