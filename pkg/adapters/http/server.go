package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aretw0/softbus"
	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/dispatcher"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ipc"
	"github.com/go-chi/chi/v5"
)

const (
	maxRequestBody  = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server exposes a Dispatcher and the channel event streams over HTTP.
type Server struct {
	Dispatcher *dispatcher.Dispatcher
	Streams    *StreamManager

	metrics http.Handler
	health  func(ctx context.Context) error
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithHealthCheck makes /healthz report fn's outcome.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// NewServer creates a server for d with its own StreamManager.
func NewServer(d *dispatcher.Dispatcher, opts ...Option) *Server {
	s := &Server{
		Dispatcher: d,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/ipc/{op}", s.handleIPC)
	r.Get("/v1/events", s.handleEvents)
	r.Get("/v1/info", s.handleInfo)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Listen opens the daemon socket. A stale unix socket file is removed first.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", address, err)
		}
	}
	return net.Listen(network, address)
}

// Serve handles connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ConnContext:       ConnContext,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "network", ln.Addr().Network(), "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// SSE streams keep connections busy; cut them.
			_ = srv.Close()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleIPC(w http.ResponseWriter, r *http.Request) {
	op := dispatcher.Op(chi.URLParam(r, "op"))
	if !op.Known() {
		http.Error(w, fmt.Sprintf("%v: %q", dispatcher.ErrUnknownOp, op), http.StatusNotFound)
		return
	}

	req, reply := ipc.New(), ipc.New()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(req); err != nil {
		s.logger.Warn("IPC: Invalid request body", "op", string(op), "err", err)
		_ = s.Dispatcher.Reject(op, reply, fmt.Errorf("%w: request body: %v", domain.ErrInvalidParam, err))
		writeJSONStatus(w, s.logger, http.StatusBadRequest, reply)
		return
	}

	origin := OriginFromContext(r.Context())
	_ = s.Dispatcher.Handle(r.Context(), origin, op, req, reply)
	if op == dispatcher.OpRemoveSessionServer {
		s.closeStreamsOf(req, reply)
	}
	writeJSON(w, s.logger, reply)
}

// closeStreamsOf ends the event streams of a session server that was just
// removed. A later owner of the name gets only subscribers it authorized.
func (s *Server) closeStreamsOf(req, reply *ipc.Parcel) {
	defer reply.Rewind()
	reply.Rewind()
	if code, err := reply.PopInt32(); err != nil || domain.ResultCode(code) != domain.CodeOK {
		return
	}
	req.Rewind()
	if _, err := req.PopString(); err != nil {
		return
	}
	sessionName, err := req.PopString()
	if err != nil {
		return
	}
	if n := s.Streams.Close(sessionName); n > 0 {
		s.logger.Info("SSE: closed streams of removed server", "session_name", sessionName, "subscribers", n)
	}
}

// handleEvents streams the channel events of one session name.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionName := strings.TrimSpace(r.URL.Query().Get("session_name"))
	if sessionName == "" {
		http.Error(w, "session_name is required", http.StatusBadRequest)
		return
	}
	if err := s.Dispatcher.AuthorizeEvents(r.Context(), OriginFromContext(r.Context()), sessionName); err != nil {
		s.logger.Warn("SSE: subscription refused", "session_name", sessionName, "err", err)
		http.Error(w, err.Error(), eventsStatus(err))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionName)
	defer cancel()
	s.logger.Info("SSE: Subscribing to channel events", "session_name", sessionName)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_name", sessionName)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func eventsStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "err", err)
			status, code = err.Error(), http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ops := make([]string, len(dispatcher.Ops))
	for i, op := range dispatcher.Ops {
		ops[i] = string(op)
	}
	writeJSON(w, s.logger, map[string]any{
		"app":     "softbus",
		"version": strings.TrimSpace(softbus.Version),
		"ops":     ops,
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	writeJSONStatus(w, logger, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
