// Package server exposes a Pipeline over HTTP: a request/response chat
// endpoint, server-sent-event and WebSocket streams, model listing, memory
// history and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xostack/xoswarm"
	"github.com/xostack/xoswarm/memory"
	"github.com/xostack/xoswarm/metrics"
)

const (
	serviceName      = "xoswarm"
	discoveryTimeout = 2 * time.Second
	maxRequestBytes  = 1 << 20
	defaultHistory   = 50
	shutdownTimeout  = 10 * time.Second
)

// Dispatcher runs chat requests. *xoswarm.Pipeline implements it.
type Dispatcher interface {
	DispatchAndSynthesize(ctx context.Context, req xoswarm.Request) xoswarm.Result
	Stream(ctx context.Context, req xoswarm.Request, emit func(xoswarm.Event)) xoswarm.Result
}

// HistoryStore lists stored answers. *memory.Store implements it.
type HistoryStore interface {
	History(ctx context.Context, limit int) ([]memory.Record, error)
}

// ModelLister lists local models. *ollama.Client implements it.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Server routes HTTP requests to a Dispatcher.
type Server struct {
	pipeline  Dispatcher
	history   HistoryStore
	models    ModelLister
	gatherer  prometheus.Gatherer
	collector *metrics.Collector
	logger    *zap.Logger
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistory enables GET /history.
func WithHistory(h HistoryStore) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithModelLister sets the source of local model names for GET /models.
func WithModelLister(m ModelLister) Option {
	return func(s *Server) {
		s.models = m
	}
}

// WithMetrics serves g on GET /metrics and counts requests with c. Either
// may be nil.
func WithMetrics(g prometheus.Gatherer, c *metrics.Collector) Option {
	return func(s *Server) {
		s.gatherer = g
		s.collector = c
	}
}

// New returns a Server for p.
func New(p Dispatcher, opts ...Option) *Server {
	s := &Server{pipeline: p, logger: zap.NewNop(), mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "server"))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /{$}", "/", s.handleIndex)
	s.handle("GET /health", "/health", s.handleHealth)
	s.handle("GET /models", "/models", s.handleModels)
	s.handle("GET /history", "/history", s.handleHistory)
	s.handle("POST /chat", "/chat", s.handleChat)
	s.handle("POST /stream/chat", "/stream/chat", s.handleStream)
	// The upgrade needs the raw ResponseWriter, so this route is not wrapped.
	s.mux.HandleFunc("GET /ws/chat", s.handleWebSocket)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handle(pattern, label string, h http.HandlerFunc) {
	if s.collector != nil {
		s.mux.Handle(pattern, s.collector.Middleware(label, h))
		return
	}
	s.mux.Handle(pattern, h)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to the xoswarm API",
		"endpoints": map[string]string{
			"health":      "/health",
			"models":      "/models",
			"history":     "/history",
			"chat":        "/chat",
			"stream_chat": "/stream/chat",
			"ws_chat":     "/ws/chat",
			"metrics":     "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "online", "service": serviceName})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	offline := []string{}
	if s.models != nil {
		ctx, cancel := context.WithTimeout(r.Context(), discoveryTimeout)
		defer cancel()
		names, err := s.models.ListModels(ctx)
		if err != nil {
			s.logger.Debug("local model discovery failed", zap.Error(err))
		} else if names != nil {
			offline = names
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"online":  xoswarm.OnlineProviders(),
		"offline": offline,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "memory not available")
		return
	}
	recs, err := s.history.History(r.Context(), defaultHistory)
	if err != nil {
		s.logger.Warn("reading history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": recs})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.pipeline.DispatchAndSynthesize(r.Context(), req)
	writeJSON(w, http.StatusOK, chatResponse{
		FinalAnswer:         res.FinalAnswer,
		IndividualResponses: res.IndividualResponses,
	})
}

type chatResponse struct {
	FinalAnswer         string            `json:"final_answer"`
	IndividualResponses map[string]string `json:"individual_responses"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// trimmed drops empty entries and surrounding space.
func trimmed(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
