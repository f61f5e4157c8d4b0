package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rental-insight/internal/models"
)

var errTrailingData = errors.New("unexpected data after JSON body")

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// handleSync runs one reconciliation batch. A batch that reached the
// reconciler always answers 200 with the report, even if every group failed.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}

	var req models.SyncRequest
	if err := parseJSONBody(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
				"Request body too large", map[string]interface{}{"limit": tooLarge.Limit})
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	report, err := s.sync.Reconcile(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// handleListRuns lists recent sync runs from the run history store
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Sync run history is not enabled", nil)
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunsLimit {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid limit parameter", map[string]interface{}{
				"limit": v,
				"max":   maxRunsLimit,
			})
			return
		}
		limit = n
	}

	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleStats reports view cache statistics and reconciler counters
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if s.buildings != nil {
		resp["buildingViews"] = s.buildings.Stats()
	}
	if s.sync != nil {
		resp["sync"] = s.sync.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}
