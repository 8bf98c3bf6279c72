package httpapi

import (
	"net/http"
	"strings"
	"time"

	"aiweb-backend-go/internal/services"

	"go.uber.org/zap"
)

type RegisterRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	SignupCode string `json:"signup_code"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type UserEnvelope struct {
	Message string  `json:"message,omitempty"`
	User    UserDTO `json:"user"`
}

type LoginResponse struct {
	Message   string    `json:"message"`
	User      UserDTO   `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CheckResponse struct {
	Authenticated bool     `json:"authenticated"`
	User          *UserDTO `json:"user,omitempty"`
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		if isEmptyBody(err) {
			WriteError(w, http.StatusBadRequest, "No data provided")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	user, err := s.Directory.Register(r.Context(), services.Registration{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		SignupCode: req.SignupCode,
	}, clientInfo(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.requestLogger(r).Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	WriteJSON(w, http.StatusCreated, UserEnvelope{Message: "User registered successfully", User: toUserDTO(user)})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		if isEmptyBody(err) {
			WriteError(w, http.StatusBadRequest, "No data provided")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	user, err := s.Directory.Authenticate(r.Context(), req.Username, req.Password, clientInfo(r))
	if err != nil {
		if services.KindOf(err) == services.KindUnauthorized {
			s.Metrics.ObserveLogin(false)
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.Metrics.ObserveLogin(true)
	token, expires, err := s.Tokens.CreateSessionToken(user.ID)
	if err != nil {
		s.writeServiceError(w, r, services.Internal(err, "Login failed"))
		return
	}
	s.setSessionCookie(w, token, expires)
	WriteJSON(w, http.StatusOK, LoginResponse{
		Message:   "Login successful",
		User:      toUserDTO(user),
		Token:     token,
		ExpiresAt: expires,
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	if err := s.Audit.RecordAction(r.Context(), user.ID, "logout", nil, clientInfo(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logout successful"})
}

func (s *Server) Profile(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	WriteJSON(w, http.StatusOK, UserEnvelope{User: toUserDTO(user)})
}

func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	current, _ := CurrentUser(r)
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		if isEmptyBody(err) {
			WriteError(w, http.StatusBadRequest, "No data provided")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	user, err := s.Directory.UpdateEmail(r.Context(), current.ID, req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	updated := []string{}
	if user.Email != current.Email {
		updated = append(updated, "email")
	}
	if err := s.Audit.RecordAction(r.Context(), user.ID, "profile_update", map[string]interface{}{"updated_fields": updated}, clientInfo(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, UserEnvelope{Message: "Profile updated successfully", User: toUserDTO(user)})
}

func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		if isEmptyBody(err) {
			WriteError(w, http.StatusBadRequest, "No data provided")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.Directory.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.Audit.RecordAction(r.Context(), user.ID, "password_change", nil, clientInfo(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}

// CheckAuth never fails; an absent or stale session reports false.
func (s *Server) CheckAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(r)
	if !ok {
		if strings.TrimSpace(sessionToken(r)) != "" {
			s.clearSessionCookie(w)
		}
		WriteJSON(w, http.StatusOK, CheckResponse{Authenticated: false})
		return
	}
	dto := toUserDTO(user)
	WriteJSON(w, http.StatusOK, CheckResponse{Authenticated: true, User: &dto})
}
