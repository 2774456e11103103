package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/bundle"
)

// handleBundle serves GET /v1/bundles/{claim_id} (export) and
// POST /v1/bundles/verify (verify an uploaded bundle, no live ledger
// access required).
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/bundles/")

	if rest == "verify" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.verifyBundle(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claimID, err := uuid.Parse(rest)
	if err != nil {
		writeError(w, err)
		return
	}
	chainValid := s.query.GetIntegrity().Valid
	b, err := s.bundle.Export(r.Context(), claimID, chainValid)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		result := bundle.Verify(b)
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(bundle.RenderMarkdown(b, result)))
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *Server) verifyBundle(w http.ResponseWriter, r *http.Request) {
	var b bundle.Bundle
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusOK, bundle.VerifyResult{Verdict: bundle.InvalidFormat, Reason: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, bundle.Verify(&b))
}
