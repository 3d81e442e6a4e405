// Package health provides HTTP health and readiness check handlers.
//
// The package exposes three endpoints:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//   - /health  — aggregate service status: database, embedder, and LLM
//     gateway state in one body (see [StatusHandler]).
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "database",
	// "providers"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Report is the aggregate service status served on /health. DB and Embedder
// are "up" or "down"; LLM mirrors the gateway lifecycle state.
type Report struct {
	Status   string `json:"status"`
	DB       string `json:"db"`
	Embedder string `json:"embedder"`
	LLM      string `json:"llm"`
}

// StatusHandler serves the aggregate GET /health endpoint. It never blocks
// on the LLM: the gateway state is read without touching the model.
type StatusHandler struct {
	// DB probes the request corpus store. Nil reports "up".
	DB func(ctx context.Context) error

	// Embedder probes the embeddings provider. Nil reports "up".
	Embedder func(ctx context.Context) error

	// LLMState reports the gateway lifecycle state ("loaded", "unloaded",
	// "unavailable"). Nil reports "unloaded".
	LLMState func() string
}

// ServeHTTP implements http.Handler. The response is always 200; degradation
// is expressed in the body so load balancers do not eject a node that can
// still serve retrieval.
func (s *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := Report{
		Status:   "ok",
		DB:       probe(r.Context(), s.DB),
		Embedder: probe(r.Context(), s.Embedder),
		LLM:      "unloaded",
	}
	if s.LLMState != nil {
		rep.LLM = s.LLMState()
	}
	if rep.DB == "down" || rep.Embedder == "down" || rep.LLM == "unavailable" {
		rep.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, rep)
}

// probe runs one dependency check under the shared check timeout.
func probe(ctx context.Context, check func(ctx context.Context) error) string {
	if check == nil {
		return "up"
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return "down"
	}
	return "up"
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
