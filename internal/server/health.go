package server

import (
	"net/http"
	"time"
)

// HealthResponse is the JSON response from the health endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	IndexedCount int    `json:"indexed_count"`
	LastSync     string `json:"last_sync,omitempty"`
}

// handleHealth reports service status from persisted sync state. State
// load failures soft-fail to zero values; this endpoint feeds a status
// display and must not turn a storage hiccup into an outage signal.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
	}

	st, err := s.state.Load(r.Context())
	if err != nil {
		s.logger.Warn("health: sync state unavailable", "error", err)
	} else {
		resp.IndexedCount = st.IndexedCount
		if !st.LastSync.IsZero() {
			resp.LastSync = st.LastSync.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
