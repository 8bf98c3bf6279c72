package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"aiweb-backend-go/internal/services"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a service error to its status and writes the public
// message. Internal failures are logged with their cause.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	if kind.Status() >= http.StatusInternalServerError {
		s.requestLogger(r).Error("request failed", zap.String("kind", kind.String()), zap.Error(err))
	}
	WriteError(w, kind.Status(), services.PublicMessage(err))
}

// decodeJSON reads a JSON body into dst. An empty body reports io.EOF so
// callers can answer "No data provided".
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func isEmptyBody(err error) bool {
	return errors.Is(err, io.EOF)
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
