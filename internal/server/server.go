// Package server exposes the bridge to the desktop shell over a local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"phobos.org.uk/ccbridge/internal/api"
	"phobos.org.uk/ccbridge/internal/bridge"
	"phobos.org.uk/ccbridge/internal/config"
	"phobos.org.uk/ccbridge/internal/logging"
)

// maxBodyBytes caps request bodies; params are a handful of short strings.
const maxBodyBytes = 1 << 20

// RequestIDHeader carries the call ID back to the client.
const RequestIDHeader = "X-Request-ID"

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Type          string            `json:"type"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Module        string            `json:"module"`
	Launchers     []bridge.Launcher `json:"launchers"`
	Auth          bool              `json:"auth"`
}

// Server is the HTTP facade in front of a Bridge.
type Server struct {
	config    *config.Config
	version   string
	startTime time.Time
	bridge    *bridge.Bridge
	log       *logging.Logger

	server *http.Server
}

// New creates a Server. A nil log discards output.
func New(cfg *config.Config, version string, b *bridge.Bridge, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		config:    cfg,
		version:   version,
		startTime: time.Now(),
		bridge:    b,
		log:       log,
	}
}

// Router returns the HTTP router
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(requestID)

	r.Get("/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/api/operations", s.handleOperations)
		r.Post("/api/{operation}", s.handleCall)

		r.Get("/logs", s.handleLogs)
		r.Delete("/logs", s.handleClearLogs)
		r.Get("/logs/stats", s.handleLogStats)
	})

	return r
}

// Addr returns the listen address from config.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("bridge server starting", map[string]any{
		"addr":    s.server.Addr,
		"version": s.version,
		"module":  s.bridge.Module(),
		"auth":    s.config.Auth.TokenHash != "",
	})
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. In-flight engine calls are
// allowed to finish until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, StatusResponse{
		Type:          "bridge",
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Module:        s.bridge.Module(),
		Launchers:     s.bridge.Launchers(),
		Auth:          s.config.Auth.TokenHash != "",
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{"operations": bridge.Catalog()})
}

// handleCall runs one bridge operation. The engine payload is written
// verbatim on success; failures map to 400, 502 or 503.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	operation := chi.URLParam(r, "operation")
	if _, ok := bridge.Lookup(operation); !ok {
		api.WriteError(w, http.StatusNotFound, api.ErrorNotFound, fmt.Sprintf("unknown operation %q", operation))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "reading body: "+err.Error())
		return
	}
	req, err := api.DecodeRequest(operation, body)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
		return
	}

	ctx := bridge.WithCallID(r.Context(), w.Header().Get(RequestIDHeader))
	if s.config.Engine.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Engine.Timeout)
		defer cancel()
	}

	payload, err := s.bridge.Call(ctx, req)
	if err != nil {
		kind := bridge.KindOf(err)
		if kind == "" {
			api.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		api.WriteError(w, statusFor(kind), string(kind), err.Error())
		return
	}
	api.WriteRaw(w, http.StatusOK, payload)
}

func statusFor(kind bridge.Kind) int {
	switch kind {
	case bridge.KindInterpreterUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// handleLogs returns stored log entries.
// Query params: level, call_id, operation, since (RFC 3339), limit (default 100).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q, err := api.ParseLogQuery(r.URL.Query())
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, s.log.Query(q))
}

// handleClearLogs drops buffered entries and resets counts.
func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	s.log.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.log.Stats())
}

// requestID assigns every request a UUID unless the client sent one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// requireToken enforces bearer-token auth when a token hash is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.config.Auth.TokenHash
		if hash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || !VerifyToken(token, hash) {
			s.log.Warn("rejected unauthenticated request", map[string]any{
				"remote": r.RemoteAddr,
				"path":   r.URL.Path,
			})
			api.WriteError(w, http.StatusUnauthorized, api.ErrorUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
