package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// errAnchorUnavailable reports that no anchor service is configured for
// this deployment, mirroring the combined-status endpoint's per-source
// availability fields at the level of an individual route.
var errAnchorUnavailable = fmt.Errorf("anchor service is not configured for this deployment")

// handleAnchors serves GET /v1/anchors (list batches).
func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	if s.anchor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errAnchorUnavailable.Error()})
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"batches": s.anchor.ListBatches()})
}

// handleAnchorSubroutes serves GET /v1/anchors/proof/{event_id}, the
// inclusion-proof lookup.
func (s *Server) handleAnchorSubroutes(w http.ResponseWriter, r *http.Request) {
	if s.anchor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errAnchorUnavailable.Error()})
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/anchors/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] != "proof" {
		http.NotFound(w, r)
		return
	}
	eventID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, err)
		return
	}
	proof, err := s.anchor.InclusionProof(eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}
