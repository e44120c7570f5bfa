// Package http exposes a read-only inspection API over the layer store,
// the materialization cache and persisted runs.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Server serves the inspection API.
type Server struct {
	store    ports.LayerStore
	cache    ports.Materializer
	runs     ports.RunStore
	gatherer prometheus.Gatherer
	streams  *StreamManager
	logger   *slog.Logger
	version  string
}

// Option configures the Server.
type Option func(*Server)

// WithRunStore enables the /runs endpoints.
func WithRunStore(runs ports.RunStore) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithGatherer enables /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a StreamManager, typically the one whose hooks are
// attached to the workflow machine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a Server over a layer store and a materializer.
func NewServer(store ports.LayerStore, cache ports.Materializer, opts ...Option) *Server {
	s := &Server{
		store:   store,
		cache:   cache,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager(s.logger)
	}
	return s
}

// Streams returns the manager fanning run events out to SSE clients.
func (s *Server) Streams() *StreamManager { return s.streams }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Route("/layers/{id}", func(r chi.Router) {
		r.Get("/", s.getLayer)
		r.Get("/children", s.getChildren)
		r.Get("/chain", s.getChain)
		r.Get("/structure", s.getStructure)
	})
	if s.runs != nil {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
	}
	r.Get("/runs/{runID}/events", s.subscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

// NewHandler is shorthand for NewServer(...).Handler().
func NewHandler(store ports.LayerStore, cache ports.Materializer, opts ...Option) http.Handler {
	return NewServer(store, cache, opts...).Handler()
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSelectorResolution):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) layerID(w http.ResponseWriter, r *http.Request) (domain.LayerID, bool) {
	id, err := domain.ParseLayerID(chi.URLParam(r, "id"))
	if err != nil || id == domain.NoLayer {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid layer id %q", chi.URLParam(r, "id"))})
		return 0, false
	}
	return id, true
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type infoResponse struct {
	Version string `json:"version"`
	Layers  int    `json:"layers"`
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, infoResponse{Version: s.version, Layers: n})
}

func (s *Server) getLayer(w http.ResponseWriter, r *http.Request) {
	id, ok := s.layerID(w, r)
	if !ok {
		return
	}
	layer, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, layer)
}

func (s *Server) getChildren(w http.ResponseWriter, r *http.Request) {
	id, ok := s.layerID(w, r)
	if !ok {
		return
	}
	kids, err := s.store.Children(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if kids == nil {
		kids = []domain.LayerID{}
	}
	s.writeJSON(w, http.StatusOK, kids)
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	id, ok := s.layerID(w, r)
	if !ok {
		return
	}
	chain, err := s.store.Chain(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chain)
}

func (s *Server) getStructure(w http.ResponseWriter, r *http.Request) {
	id, ok := s.layerID(w, r)
	if !ok {
		return
	}
	start := time.Now()
	st, err := s.cache.GetOrMaterialize(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Debug("materialized", "layer", id, "duration", time.Since(start))
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.runs.Load(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}
