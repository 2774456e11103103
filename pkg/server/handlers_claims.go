package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgerservice"
	"github.com/accountabilityme/ledger/pkg/query"
)

// handleClaims serves GET /v1/claims (list_claims) and POST /v1/claims
// (declare_claim).
func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listClaims(w, r)
	case http.MethodPost:
		s.declareClaim(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := query.ListFilter{Status: ledgercore.ClaimStatus(q.Get("status"))}
	order := query.Order(q.Get("order"))

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		limit = parsed
	}

	claims := s.query.ListClaims(filter, order, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"claims": claims})
}

func (s *Server) declareClaim(w http.ResponseWriter, r *http.Request) {
	editorID, err := editorIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cmd ledgerservice.DeclareClaimCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	claimID, res, err := s.ledger.DeclareClaim(r.Context(), editorID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"claim_id": claimID, "result": res})
}

// handleClaimSubroutes dispatches /v1/claims/{id}, /v1/claims/{id}/operationalize,
// /v1/claims/{id}/evidence, and /v1/claims/{id}/resolve.
func (s *Server) handleClaimSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/claims/")
	parts := strings.SplitN(rest, "/", 2)
	claimID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getClaimDetail(w, r, claimID)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "operationalize":
		s.operationalizeClaim(w, r, claimID)
	case "evidence":
		s.addEvidence(w, r, claimID)
	case "resolve":
		s.resolveClaim(w, r, claimID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) getClaimDetail(w http.ResponseWriter, r *http.Request, claimID uuid.UUID) {
	detail, err := s.query.GetClaimDetail(r.Context(), claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) operationalizeClaim(w http.ResponseWriter, r *http.Request, claimID uuid.UUID) {
	editorID, err := editorIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cmd ledgerservice.OperationalizeClaimCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ledger.OperationalizeClaim(r.Context(), editorID, claimID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) addEvidence(w http.ResponseWriter, r *http.Request, claimID uuid.UUID) {
	editorID, err := editorIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cmd ledgerservice.AddEvidenceCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ledger.AddEvidence(r.Context(), editorID, claimID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) resolveClaim(w http.ResponseWriter, r *http.Request, claimID uuid.UUID) {
	editorID, err := editorIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cmd ledgerservice.ResolveClaimCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ledger.ResolveClaim(r.Context(), editorID, claimID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
