package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/ledgerservice"
)

// handleRegisterEditor serves POST /v1/editors (register_editor).
func (s *Server) handleRegisterEditor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	callerID, err := editorIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cmd ledgerservice.RegisterEditorCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ledger.RegisterEditor(r.Context(), callerID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleEditorSubroutes dispatches GET /v1/editors/{id} and
// POST /v1/editors/{id}/deactivate.
func (s *Server) handleEditorSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/editors/")
	parts := strings.SplitN(rest, "/", 2)
	editorID, err := uuid.Parse(parts[0])
	if err != nil {
		writeError(w, err)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		editor, err := s.query.GetEditor(editorID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, editor)
		return
	}

	if r.Method != http.MethodPost || parts[1] != "deactivate" {
		http.NotFound(w, r)
		return
	}
	callerID, err := editorIDFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.ledger.DeactivateEditor(r.Context(), callerID, ledgerservice.DeactivateEditorCommand{EditorID: editorID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleIntegrity serves GET /v1/integrity (get_integrity) and
// POST /v1/integrity/recover, the operator action that clears a
// corruption-triggered write suspension once a fresh verification
// passes.
func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if strings.TrimPrefix(r.URL.Path, "/v1/integrity") == "/recover" {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status, err := s.ledger.MarkRecovered(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.query.GetIntegrity())
}
