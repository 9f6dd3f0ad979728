package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/pipetree"
	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxCommandBytes bounds the size of one command body.
const maxCommandBytes = 1 << 20

// Engine is the part of the pipeline engine the HTTP adapter drives.
type Engine interface {
	DoRaw(ctx context.Context, raw map[string]any) (domain.CommandResult, error)
	Projections() domain.Projections
	Locked() bool
	Subscribe() (<-chan domain.Projections, func())
	SubscribeLocked() (<-chan bool, func())
}

// Server serves commands and projections of one engine.
type Server struct {
	Engine  Engine
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler exposes h (typically promhttp) on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// CommandResponse is the body returned by POST /commands.
type CommandResponse struct {
	Event string `json:"event"`
	UUID  string `json:"uuid,omitempty"`
	DBID  string `json:"dbId,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Post("/commands", s.PostCommand)
	r.Get("/state", s.GetState)
	r.Get("/locked", s.GetLocked)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PostCommand handles POST /commands. The body is one command object
// selected by its "event" field.
func (s *Server) PostCommand(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBytes)).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Error: "invalid request body"})
		s.logger.Warn("PostCommand: Invalid request body", "err", err)
		return
	}

	res, err := s.Engine.DoRaw(r.Context(), raw)
	resp := CommandResponse{Event: res.Event, UUID: res.UUID, DBID: res.DBID}
	if err != nil {
		resp.Error = err.Error()
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("Command failed", "event", res.Event, "err", err)
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProtocol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDriverClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	p := s.Engine.Projections()
	writeJSON(w, http.StatusOK, filterProjections(p, parseWatch(r.URL.Query().Get("watch"))))
}

// GetLocked handles GET /locked.
func (s *Server) GetLocked(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"locked": s.Engine.Locked()})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "pipetree-http",
		"version": strings.TrimSpace(pipetree.Version),
	})
}

// SubscribeEvents handles GET /events (SSE). Every published projection
// record is sent as a "projections" event, lock flips as "locked" events.
// The optional watch parameter (state,consistency,validations,callStates)
// limits the fields sent.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	watch := parseWatch(r.URL.Query().Get("watch"))
	projections, stopProjections := s.Engine.Subscribe()
	defer stopProjections()
	locks, stopLocks := s.Engine.SubscribeLocked()
	defer stopLocks()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Debug("SSE client connected", "watch", strings.Join(watch, ","))

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case p, ok := <-projections:
			if !ok {
				return
			}
			payload, err := json.Marshal(filterProjections(p, watch))
			if err != nil {
				s.logger.Error("SSE: encode projections failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: projections\ndata: %s\n\n", payload)
			flusher.Flush()
		case locked, ok := <-locks:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: locked\ndata: %t\n\n", locked)
			flusher.Flush()
		}
	}
}

func parseWatch(param string) []string {
	if param == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(param, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// filterProjections keeps only the watched fields; no filter keeps everything.
func filterProjections(p domain.Projections, watch []string) map[string]any {
	all := map[string]any{
		"state":       p.State,
		"consistency": p.Consistency,
		"validations": p.Validations,
		"callStates":  p.CallStates,
	}
	if len(watch) == 0 {
		return all
	}
	out := make(map[string]any, len(watch))
	for _, f := range watch {
		if v, ok := all[f]; ok {
			out[f] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
