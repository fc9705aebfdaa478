// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/analysis"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/errclass"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/resilience"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/store"
)

const maxBodyBytes = 4 << 20

// Analyzer is the part of analysis.Service the router calls.
type Analyzer interface {
	Checks(names ...string) ([]analysis.CheckDefinition, error)
	RunSequentialAnalysis(ctx context.Context, input model.AnalysisInput, subs ...events.Subscriber) (*model.SequentialResult, error)
	RunParallelChecks(ctx context.Context, input model.AnalysisInput, checks []analysis.CheckDefinition, subs ...events.Subscriber) (*model.AggregateReport, error)
}

// EventLister reads persisted events for a run.
type EventLister interface {
	ListEvents(ctx context.Context, runID string) ([]store.StoredEvent, error)
}

// Deps wires the router. Events and Breaker are optional.
type Deps struct {
	Analyzer       Analyzer
	Events         EventLister
	Breaker        *resilience.Breaker
	Chain          *errclass.Chain
	AllowedOrigins []string
}

// Router serves the analysis endpoints.
type Router struct {
	analyzer Analyzer
	events   EventLister
	breaker  *resilience.Breaker
	chain    *errclass.Chain
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	chain := d.Chain
	if chain == nil {
		chain = errclass.DefaultChain()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := &Router{analyzer: d.Analyzer, events: d.Events, breaker: d.Breaker, chain: chain}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))

	mux.Get("/health", r.handleHealth)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses/sequential", r.wrap(r.handleSequential))
		rt.Post("/analyses/checks", r.wrap(r.handleChecks))
		rt.Get("/runs/{id}/events", r.wrap(r.handleEvents))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		if err := h(w, req); err != nil {
			ce := r.chain.Handle(w, err)
			zap.L().Info("api: request failed",
				zap.String("path", req.URL.Path),
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.String("error_kind", string(ce.Kind)),
				zap.Int("status", ce.Status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		}
	}
}

// analysisRequest is the body of both analysis endpoints.
type analysisRequest struct {
	Text         string            `json:"text"`
	DocumentType string            `json:"document_type"`
	Jurisdiction string            `json:"jurisdiction"`
	Context      map[string]string `json:"context,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	Checks       []string          `json:"checks,omitempty"`
}

func decodeRequest(w http.ResponseWriter, req *http.Request) (analysisRequest, model.AnalysisInput, error) {
	var body analysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return body, model.AnalysisInput{}, eris.Wrapf(errclass.ErrValidation, "invalid request body: %v", err)
	}
	userID := body.UserID
	if h := strings.TrimSpace(req.Header.Get("X-User-ID")); h != "" {
		userID = h
	}
	in := model.NewAnalysisInput(body.Text, body.DocumentType, body.Jurisdiction, body.Context).WithUser(userID)
	if err := in.Validate(); err != nil {
		return body, in, eris.Wrapf(errclass.ErrValidation, "%v", err)
	}
	return body, in, nil
}

// POST /v1/analyses/sequential
func (r *Router) handleSequential(w http.ResponseWriter, req *http.Request) error {
	_, in, err := decodeRequest(w, req)
	if err != nil {
		return err
	}
	res, err := r.analyzer.RunSequentialAnalysis(req.Context(), in)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// POST /v1/analyses/checks
// Body may name a subset of the catalog in "checks".
func (r *Router) handleChecks(w http.ResponseWriter, req *http.Request) error {
	body, in, err := decodeRequest(w, req)
	if err != nil {
		return err
	}
	checks, err := r.analyzer.Checks(body.Checks...)
	if err != nil {
		return err
	}
	report, err := r.analyzer.RunParallelChecks(req.Context(), in, checks)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, report)
}

// GET /v1/runs/{id}/events
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	if r.events == nil {
		return eris.Wrap(errclass.ErrBusinessRule, "event store is disabled")
	}
	runID := chi.URLParam(req, "id")
	list, err := r.events.ListEvents(req.Context(), runID)
	if err != nil {
		return err
	}
	out := make([]model.AnalysisEvent, 0, len(list))
	for _, se := range list {
		out = append(out, se.Event)
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"events": out,
	})
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]string{"status": "ok"}
	if r.breaker != nil {
		state := r.breaker.State()
		resp["model_circuit"] = state.String()
		if state == resilience.CircuitOpen {
			resp["status"] = "degraded"
		}
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return eris.Wrap(json.NewEncoder(w).Encode(v), "api: encode response")
}
