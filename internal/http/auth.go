package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"aiweb-backend-go/internal/models"
	"aiweb-backend-go/internal/services"
)

type contextKey string

const (
	ctxUser contextKey = "user"

	sessionCookie = "session"
)

// sessionToken reads the session token from the cookie, then from a Bearer
// header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// authenticate resolves the session to an active user.
func (s *Server) authenticate(r *http.Request) (models.User, bool) {
	token := sessionToken(r)
	if token == "" {
		return models.User{}, false
	}
	userID, err := s.Tokens.ParseSessionToken(token)
	if err != nil {
		return models.User{}, false
	}
	user, err := s.Directory.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		return models.User{}, false
	}
	return user, true
}

func (s *Server) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authenticate(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errAdminRequired = services.ErrForbidden("Admin access required")

func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r)
		if !ok || !user.IsAdmin {
			s.writeServiceError(w, r, errAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CurrentUser(r *http.Request) (models.User, bool) {
	user, ok := r.Context().Value(ctxUser).(models.User)
	return user, ok
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.Config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.Config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientInfo takes the first X-Forwarded-For hop, then the peer address.
func clientInfo(r *http.Request) services.ClientInfo {
	ip := ""
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if ip == "" {
		ip = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
	}
	if ip == "" {
		ip = "unknown"
	}
	agent := r.UserAgent()
	if agent == "" {
		agent = "unknown"
	}
	return services.ClientInfo{IP: ip, UserAgent: agent}
}
