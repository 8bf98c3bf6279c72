package httpapi

import (
	"net/http"
	"time"

	"aiweb-backend-go/internal/services"
)

func pageRequest(r *http.Request) services.PageRequest {
	q := r.URL.Query()
	return services.PageRequest{
		Page:    parseInt(q.Get("page"), 1),
		PerPage: parseInt(q.Get("per_page"), services.DefaultPerPage),
	}
}

func (s *Server) SearchLogs(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	rows, page, err := s.Audit.ListSearches(r.Context(), user.ID, r.URL.Query().Get("type"), pageRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"searches":   toSearchLogDTOs(rows),
		"pagination": page,
	})
}

func (s *Server) ActionLogs(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	rows, page, err := s.Audit.ListActions(r.Context(), user.ID, r.URL.Query().Get("type"), pageRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"actions":    toActionDTOs(rows),
		"pagination": page,
	})
}

func (s *Server) LoginLogs(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	rows, page, err := s.Audit.ListLogins(r.Context(), user.ID, pageRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logins":     toLoginLogDTOs(rows),
		"pagination": page,
	})
}

func (s *Server) LogStats(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	days := parseInt(r.URL.Query().Get("days"), services.DefaultStatsDays)
	stats, err := s.Audit.Stats(r.Context(), user.ID, days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ExportResponse carries a key for every requested type, as [] when the
// caller has no rows of that type.
type ExportResponse struct {
	Searches        *[]SearchLogDTO `json:"searches,omitempty"`
	Actions         *[]ActionDTO    `json:"actions,omitempty"`
	Logins          *[]LoginLogDTO  `json:"logins,omitempty"`
	User            UserDTO         `json:"user"`
	ExportTimestamp time.Time       `json:"export_timestamp"`
}

// ExportLogs dumps the caller's own history. The export itself is recorded
// after the dump so it never appears in its own output.
func (s *Server) ExportLogs(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r)
	export, err := s.Audit.Export(r.Context(), user.ID, r.URL.Query().Get("type"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := ExportResponse{User: toUserDTO(user), ExportTimestamp: time.Now().UTC()}
	if export.Includes(services.ExportSearches) {
		searches := toSearchLogDTOs(export.Searches)
		resp.Searches = &searches
	}
	if export.Includes(services.ExportActions) {
		actions := toActionDTOs(export.Actions)
		resp.Actions = &actions
	}
	if export.Includes(services.ExportLogins) {
		logins := toLoginLogDTOs(export.Logins)
		resp.Logins = &logins
	}
	if err := s.Audit.RecordAction(r.Context(), user.ID, "data_export", map[string]interface{}{"export_type": export.Type}, clientInfo(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
