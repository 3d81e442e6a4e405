// Package httpapi exposes the query service over HTTP: POST /search,
// POST /rag and GET /health, plus the operational endpoints /healthz,
// /readyz and /metrics.
//
// All endpoints speak JSON. Errors use the envelope
// {"error": {"kind": ..., "message": ...}} with a status code matching the
// kind.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/reqrag/internal/health"
	"github.com/MrWong99/reqrag/internal/llmgate"
	"github.com/MrWong99/reqrag/internal/observe"
	"github.com/MrWong99/reqrag/internal/rag"
	"github.com/MrWong99/reqrag/internal/retrieve"
	"github.com/MrWong99/reqrag/pkg/store"
)

// Server wires the orchestrator and health checkers into an http.Handler.
type Server struct {
	svc    *rag.Service
	status *health.StatusHandler
	probes *health.Handler
	log    *slog.Logger
}

// New builds a Server. status and probes may be nil when the caller does not
// want the corresponding endpoints.
func New(svc *rag.Service, status *health.StatusHandler, probes *health.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, status: status, probes: probes, log: log}
}

// Handler returns the routed handler wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /rag", s.handleRAG)
	if s.status != nil {
		mux.Handle("GET /health", s.status)
	}
	if s.probes != nil {
		s.probes.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// searchRequest is the POST /search body. TopK is a pointer so an explicit
// zero (count only, empty page) stays distinguishable from an absent field.
type searchRequest struct {
	Query          string `json:"query"`
	TopK           *int   `json:"top_k"`
	IncludeDetails bool   `json:"include_details"`
}

// ragRequest is the POST /rag body.
type ragRequest struct {
	searchRequest
	UseLLM *bool `json:"use_llm"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	topK, ok := s.topK(w, req.TopK)
	if !ok {
		return
	}

	res, err := s.svc.Search(r.Context(), req.Query, topK)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res.Requests = trimDetails(res.Requests, req.IncludeDetails)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var req ragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	topK, ok := s.topK(w, req.TopK)
	if !ok {
		return
	}
	useLLM := true
	if req.UseLLM != nil {
		useLLM = *req.UseLLM
	}

	ans, err := s.svc.Ask(r.Context(), req.Query, topK, useLLM)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ans.Requests = trimDetails(ans.Requests, req.IncludeDetails)
	writeJSON(w, http.StatusOK, ans)
}

// topK validates the optional top_k field. A negative value is a client
// error; an absent field gets the default page size.
func (s *Server) topK(w http.ResponseWriter, v *int) (int, bool) {
	if v == nil {
		return retrieve.DefaultTopK, true
	}
	if *v < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "top_k must not be negative")
		return 0, false
	}
	return *v, true
}

// writeServiceError maps pipeline errors onto the HTTP error envelope.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var backend *store.BackendError
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "bad_request", "query must not be empty")
	case errors.Is(err, llmgate.ErrOverloaded):
		writeError(w, http.StatusServiceUnavailable, "overloaded", "generation queue is full, retry later")
	case errors.As(err, &backend):
		s.log.Error("backend failure", "path", r.URL.Path, "kind", backend.Kind, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "timeout", "database query timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "backend_error", "database query failed")
	default:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// trimDetails drops the verbose free-text fields unless the caller asked for
// them. The identifying and classifier fields always survive.
func trimDetails(requests []store.RequestView, includeDetails bool) []store.RequestView {
	if includeDetails {
		return requests
	}
	out := make([]store.RequestView, len(requests))
	for i, r := range requests {
		r.ProjectDescription = ""
		r.AreaDescription = ""
		r.Remarks = ""
		out[i] = r
	}
	return out
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":{"kind":"internal","message":"encoding failed"}}`, http.StatusInternalServerError)
	}
}
