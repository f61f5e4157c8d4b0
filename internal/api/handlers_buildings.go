package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleGetBuildings returns a neighborhood's listings split into single
// rooms and building groups
func (s *Server) handleGetBuildings(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid neighborhood id", map[string]interface{}{
			"id": raw,
		})
		return
	}

	view, err := s.buildings.GetBuildings(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}
