package httpapi

import (
	"fmt"
	"net/http"

	"aiweb-backend-go/internal/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CreateSignupCodeRequest struct {
	ExpiresInDays int `json:"expires_in_days" validate:"omitempty,min=1,max=365"`
}

type AdminUserUpdateRequest struct {
	Username *string `json:"username" validate:"omitempty,max=80"`
	Email    *string `json:"email" validate:"omitempty,max=120"`
	IsActive *bool   `json:"is_active"`
	IsAdmin  *bool   `json:"is_admin"`
}

type BlockUserRequest struct {
	Block *bool `json:"block"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"omitempty,min=8"`
}

type ResetPasswordResponse struct {
	Message     string  `json:"message"`
	NewPassword string  `json:"new_password"`
	User        UserDTO `json:"user"`
}

func (s *Server) ListSignupCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.Directory.ListSignupCodes(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]SignupCodeDTO, 0, len(codes))
	for _, code := range codes {
		out = append(out, toSignupCodeDTO(code))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"codes": out})
}

// CreateSignupCode accepts an empty body; the code then lives for the default
// seven days.
func (s *Server) CreateSignupCode(w http.ResponseWriter, r *http.Request) {
	var req CreateSignupCodeRequest
	if err := decodeJSON(r, &req); err != nil && !isEmptyBody(err) {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validateRequest(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	days := req.ExpiresInDays
	if days == 0 {
		days = services.DefaultSignupCodeDays
	}
	code, err := s.Directory.CreateSignupCode(r.Context(), days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	admin, _ := CurrentUser(r)
	s.requestLogger(r).Info("signup code created", zap.Int64("admin_id", admin.ID), zap.Int64("code_id", code.ID), zap.Int("days", days))
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Signup code created successfully",
		"code":    toSignupCodeDTO(code),
	})
}

func (s *Server) DeleteSignupCode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "codeId"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid signup code id")
		return
	}
	if err := s.Directory.DeleteSignupCode(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MessageResponse{Message: "Signup code deleted successfully"})
}

func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Directory.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"users": toUserDTOs(users)})
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	user, err := s.Directory.GetUser(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, UserEnvelope{User: toUserDTO(user)})
}

func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	var req AdminUserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		if isEmptyBody(err) {
			WriteError(w, http.StatusBadRequest, "No data provided")
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validateRequest(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	admin, _ := CurrentUser(r)
	user, err := s.Directory.UpdateUser(r.Context(), admin.ID, id, services.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		IsActive: req.IsActive,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, UserEnvelope{Message: "User updated successfully", User: toUserDTO(user)})
}

func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	admin, _ := CurrentUser(r)
	username, err := s.Directory.DeleteUser(r.Context(), admin.ID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.requestLogger(r).Info("user deleted", zap.Int64("admin_id", admin.ID), zap.Int64("user_id", id))
	WriteJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("User %q deleted successfully", username)})
}

// BlockUser blocks by default; {"block": false} unblocks.
func (s *Server) BlockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	var req BlockUserRequest
	if err := decodeJSON(r, &req); err != nil && !isEmptyBody(err) {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	block := req.Block == nil || *req.Block
	admin, _ := CurrentUser(r)
	user, err := s.Directory.SetBlocked(r.Context(), admin.ID, id, block)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	message := "User blocked successfully"
	if !block {
		message = "User unblocked successfully"
	}
	WriteJSON(w, http.StatusOK, UserEnvelope{Message: message, User: toUserDTO(user)})
}

func (s *Server) MakeAdmin(w http.ResponseWriter, r *http.Request) {
	s.setAdmin(w, r, true)
}

func (s *Server) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	s.setAdmin(w, r, false)
}

func (s *Server) setAdmin(w http.ResponseWriter, r *http.Request, grant bool) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	admin, _ := CurrentUser(r)
	user, err := s.Directory.SetAdmin(r.Context(), admin.ID, id, grant)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	message := fmt.Sprintf("User %q is now an admin", user.Username)
	if !grant {
		message = fmt.Sprintf("Admin privileges removed from user %q", user.Username)
	}
	WriteJSON(w, http.StatusOK, UserEnvelope{Message: message, User: toUserDTO(user)})
}

// ResetPassword returns the password in effect exactly once; it is never
// logged.
func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	var req ResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil && !isEmptyBody(err) {
		WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validateRequest(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	password, user, err := s.Directory.ResetPassword(r.Context(), id, req.NewPassword)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ResetPasswordResponse{
		Message:     "Password reset successfully",
		NewPassword: password,
		User:        toUserDTO(user),
	})
}

func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := parseID(chi.URLParam(r, "userId"))
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid user id")
	}
	return id, ok
}
