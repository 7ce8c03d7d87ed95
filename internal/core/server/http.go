package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/healthcert/internal/core/api"
	"github.com/solatis/healthcert/internal/core/auth"
	"github.com/solatis/healthcert/internal/core/config"
)

// maxRequestBytes caps a verify request body. QR payloads stay well below it.
const maxRequestBytes = 64 << 10

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type handler struct {
	service *api.VerificationService
	logger  *slog.Logger
}

// NewRouter builds the HTTP surface: POST /v1/verify behind API key auth,
// plus unauthenticated health and metrics endpoints.
func NewRouter(service *api.VerificationService, authenticator *auth.Authenticator, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handler{service: service, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.Post("/v1/verify", h.verify)
	})
	return r
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	verdict, err := h.service.Verify(r.Context(), req)
	if err != nil {
		code := api.HTTPStatus(err)
		if code >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "verify request failed",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
		}
		writeError(w, r, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		body["requestId"] = reqID
	}
	writeJSON(w, code, body)
}

// HTTPServer manages HTTP server lifecycle.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer wraps handler in an http.Server bound to the configured HTTP port.
func NewHTTPServer(cfg *config.ServerConfig, handler http.Handler) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	return &HTTPServer{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.HTTPPort)),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		},
	}, nil
}

// Addr is the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Start serves HTTP until Shutdown is called. A graceful shutdown returns nil.
func (s *HTTPServer) Start(ctx context.Context) error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within shutdownTimeout.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
