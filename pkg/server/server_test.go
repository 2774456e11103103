package server

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/accountabilityme/ledger/pkg/bundle"
	"github.com/accountabilityme/ledger/pkg/eventstore"
	"github.com/accountabilityme/ledger/pkg/ledgerservice"
	"github.com/accountabilityme/ledger/pkg/projector"
	"github.com/accountabilityme/ledger/pkg/query"
)

func newTestServer(t *testing.T) (*Server, uuid.UUID) {
	t.Helper()
	proj := projector.New(nil)
	keys := ledgerservice.NewInMemoryKeyProvider(nil)
	store := eventstore.NewMemoryStore(proj.Registry.PublicKey)
	ledger := ledgerservice.New(store, proj, keys)
	queryLayer := query.New(store, proj)
	exporter := bundle.New(store, proj)

	editorID := uuid.New()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys.SetKey(editorID, priv)

	srv := New(ledger, queryLayer, exporter, nil)

	body, _ := json.Marshal(ledgerservice.RegisterEditorCommand{
		Username:  "alice",
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/editors", bytes.NewReader(body))
	req.Header.Set(editorHeader, editorID.String())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("genesis editor registration: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	return srv, editorID
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDeclareAndListClaims(t *testing.T) {
	srv, editorID := newTestServer(t)

	body, _ := json.Marshal(ledgerservice.DeclareClaimCommand{Statement: "rates will rise"})
	req := httptest.NewRequest(http.MethodPost, "/v1/claims", bytes.NewReader(body))
	req.Header.Set(editorHeader, editorID.String())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("declare claim: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var declared map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &declared); err != nil {
		t.Fatalf("decode declare response: %v", err)
	}
	claimID, ok := declared["claim_id"].(string)
	if !ok || claimID == "" {
		t.Fatalf("expected claim_id in response, got %v", declared)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/v1/claims", nil)
	listRec := httptest.NewRecorder()
	srv.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list claims: expected 200, got %d", listRec.Code)
	}

	detailReq := httptest.NewRequest(http.MethodGet, "/v1/claims/"+claimID, nil)
	detailRec := httptest.NewRecorder()
	srv.ServeHTTP(detailRec, detailReq)
	if detailRec.Code != http.StatusOK {
		t.Fatalf("claim detail: expected 200, got %d: %s", detailRec.Code, detailRec.Body.String())
	}
}

func TestClaimDetailNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/claims/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAnchorRoutesUnavailableWithoutAnchorService(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/anchors", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestIntegrityEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/integrity", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIntegrityRecoverEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/integrity/recover", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on recover against a sound chain, got %d: %s", rec.Code, rec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/integrity/recover", nil)
	getRec := httptest.NewRecorder()
	srv.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /v1/integrity/recover, got %d", getRec.Code)
	}
}

func TestBundleMarkdownFormat(t *testing.T) {
	srv, editorID := newTestServer(t)

	body, _ := json.Marshal(ledgerservice.DeclareClaimCommand{Statement: "rates will rise"})
	req := httptest.NewRequest(http.MethodPost, "/v1/claims", bytes.NewReader(body))
	req.Header.Set(editorHeader, editorID.String())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var declared map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &declared)
	claimID := declared["claim_id"].(string)

	mdReq := httptest.NewRequest(http.MethodGet, "/v1/bundles/"+claimID+"?format=markdown", nil)
	mdRec := httptest.NewRecorder()
	srv.ServeHTTP(mdRec, mdReq)
	if mdRec.Code != http.StatusOK {
		t.Fatalf("markdown export: expected 200, got %d: %s", mdRec.Code, mdRec.Body.String())
	}
	if ct := mdRec.Header().Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Fatalf("expected markdown content type, got %q", ct)
	}
	if !bytes.Contains(mdRec.Body.Bytes(), []byte("CLAIM_DECLARED")) {
		t.Fatalf("expected markdown body to mention the event type, got: %s", mdRec.Body.String())
	}
}

func TestVerifyBundleRoundTrip(t *testing.T) {
	srv, editorID := newTestServer(t)

	body, _ := json.Marshal(ledgerservice.DeclareClaimCommand{Statement: "rates will rise"})
	req := httptest.NewRequest(http.MethodPost, "/v1/claims", bytes.NewReader(body))
	req.Header.Set(editorHeader, editorID.String())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var declared map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &declared)
	claimID := declared["claim_id"].(string)

	exportReq := httptest.NewRequest(http.MethodGet, "/v1/bundles/"+claimID, nil)
	exportRec := httptest.NewRecorder()
	srv.ServeHTTP(exportRec, exportReq)
	if exportRec.Code != http.StatusOK {
		t.Fatalf("export bundle: expected 200, got %d: %s", exportRec.Code, exportRec.Body.String())
	}

	verifyReq := httptest.NewRequest(http.MethodPost, "/v1/bundles/verify", bytes.NewReader(exportRec.Body.Bytes()))
	verifyRec := httptest.NewRecorder()
	srv.ServeHTTP(verifyRec, verifyReq)
	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify bundle: expected 200, got %d", verifyRec.Code)
	}
	var result bundle.VerifyResult
	if err := json.Unmarshal(verifyRec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode verify result: %v", err)
	}
	if result.Verdict != bundle.Verified {
		t.Fatalf("expected VERIFIED, got %s: %s", result.Verdict, result.Reason)
	}
}
