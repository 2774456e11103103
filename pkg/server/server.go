// Package server exposes the ledger's ingress commands and egress
// queries over HTTP. Handler conventions: JSON content-type headers,
// json.NewEncoder(w).Encode for responses, query-param parsing via
// r.URL.Query().Get, and a combined-status endpoint that aggregates
// several independent subsystems with per-source ok/error fields.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accountabilityme/ledger/pkg/anchor"
	"github.com/accountabilityme/ledger/pkg/bundle"
	"github.com/accountabilityme/ledger/pkg/ledgercore"
	"github.com/accountabilityme/ledger/pkg/ledgerservice"
	"github.com/accountabilityme/ledger/pkg/query"
)

// editorHeader carries the calling editor's id. A thin HTTP server has
// no session layer of its own; authentication is left to the deployment
// (a reverse proxy or gateway in front of it), and this header is
// trusted as an upstream-verified caller identity.
const editorHeader = "X-Editor-Id"

// Server wires the ledger's command and query surface onto net/http.
type Server struct {
	ledger *ledgerservice.Service
	query  *query.Layer
	bundle *bundle.Exporter
	anchor *anchor.Service
	logger *log.Logger

	mux *http.ServeMux

	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New builds a Server. anchorSvc may be nil when no anchor service is
// configured for this deployment; the /anchors endpoints then answer
// 503.
func New(ledger *ledgerservice.Service, queryLayer *query.Layer, bundleExporter *bundle.Exporter, anchorSvc *anchor.Service) *Server {
	s := &Server{
		ledger: ledger,
		query:  queryLayer,
		bundle: bundleExporter,
		anchor: anchorSvc,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		requestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	s.mux = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.instrument("healthz", s.handleHealthz))
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/claims", s.instrument("claims", s.handleClaims))
	mux.HandleFunc("/v1/claims/", s.instrument("claim_detail", s.handleClaimSubroutes))
	mux.HandleFunc("/v1/editors", s.instrument("editors", s.handleRegisterEditor))
	mux.HandleFunc("/v1/editors/", s.instrument("editor_detail", s.handleEditorSubroutes))
	mux.HandleFunc("/v1/integrity", s.instrument("integrity", s.handleIntegrity))
	mux.HandleFunc("/v1/integrity/", s.instrument("integrity", s.handleIntegrity))
	mux.HandleFunc("/v1/bundles/", s.instrument("bundle", s.handleBundle))
	mux.HandleFunc("/v1/anchors", s.instrument("anchors", s.handleAnchors))
	mux.HandleFunc("/v1/anchors/", s.instrument("anchor_detail", s.handleAnchorSubroutes))
	mux.HandleFunc("/v1/status", s.instrument("status", s.handleStatus))
	return mux
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		s.requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.requestsTotal.WithLabelValues(route, statusClass(sw.status)).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledgercore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledgercore.ErrValidation),
		errors.Is(err, ledgercore.ErrIllegalTransition),
		errors.Is(err, ledgercore.ErrUnknownEntity):
		status = http.StatusBadRequest
	case errors.Is(err, ledgercore.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ledgercore.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledgercore.ErrLedgerCorruption):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func editorIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(editorHeader)
	if raw == "" {
		return uuid.Nil, nil // system-authored event
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s header", ledgercore.ErrValidation, editorHeader)
	}
	return id, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ledgercore.ErrValidation, err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus aggregates the ledger's subsystems into one combined view,
// each reported with its own availability: the cached integrity status
// (always available) and the anchor service (unavailable when it is not
// configured). The event store is not probed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{}

	integrity := s.query.GetIntegrity()
	body["integrity"] = map[string]interface{}{"available": true, "data": integrity}

	if s.anchor != nil {
		body["anchor"] = map[string]interface{}{"available": true, "data": map[string]interface{}{
			"batch_count": len(s.anchor.ListBatches()),
		}}
	} else {
		body["anchor"] = map[string]interface{}{"available": false, "error": "anchor service not configured"}
	}

	writeJSON(w, http.StatusOK, body)
}
