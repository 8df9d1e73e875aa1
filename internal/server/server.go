// Package server exposes the tutoring service over HTTP: a WebSocket session
// endpoint, health and readiness probes, Prometheus metrics, and optional
// static client assets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/causerie-ai/causerie/internal/config"
	"github.com/causerie-ai/causerie/internal/health"
	"github.com/causerie-ai/causerie/internal/observe"
	"github.com/causerie-ai/causerie/internal/tutor"
	"github.com/causerie-ai/causerie/pkg/provider/stt"
	"github.com/causerie-ai/causerie/pkg/provider/tts"
)

const (
	// shutdownTimeout bounds graceful HTTP shutdown once the run context is
	// cancelled.
	shutdownTimeout = 10 * time.Second

	// readHeaderTimeout guards against slowloris on the plain HTTP endpoints.
	readHeaderTimeout = 10 * time.Second
)

// Server hosts tutoring sessions over WebSocket.
type Server struct {
	cfg     *config.Config
	sttP    stt.Provider
	ttsP    tts.Provider
	engine  *tutor.Engine
	log     *slog.Logger
	metrics *observe.Metrics

	httpSrv *http.Server
}

// Option is a functional option for configuring a Server during construction.
type Option func(*Server)

// WithLogger sets the structured logger. Default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instance. Default is observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New constructs a Server from its providers. The tutor engine is shared
// across sessions; each WebSocket connection gets its own turn controller
// and session memory.
func New(cfg *config.Config, sttP stt.Provider, ttsP tts.Provider, engine *tutor.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		sttP:   sttP,
		ttsP:   ttsP,
		engine: engine,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler builds the full HTTP routing table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// The WebSocket endpoint bypasses the HTTP middleware: the connection is
	// hijacked on upgrade, so per-request spans and status recording do not
	// apply.
	mux.HandleFunc("GET /ws", s.handleWS)

	instrumented := http.NewServeMux()
	hh := health.New(s.checkers()...)
	instrumented.HandleFunc("GET /healthz", hh.Healthz)
	instrumented.HandleFunc("GET /readyz", hh.Readyz)
	instrumented.Handle("GET /metrics", promhttp.Handler())
	if s.cfg.Server.StaticDir != "" {
		instrumented.Handle("GET /", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
	}
	mux.Handle("/", observe.Middleware(s.metrics)(instrumented))

	return mux
}

// checkers builds the readiness probes: providers must be wired.
func (s *Server) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "stt",
			Check: func(context.Context) error {
				if s.sttP == nil {
					return errors.New("no stt provider")
				}
				return nil
			},
		},
		{
			Name: "tts",
			Check: func(context.Context) error {
				if s.ttsP == nil {
					return errors.New("no tts provider")
				}
				return nil
			},
		},
		{
			Name: "tutor",
			Check: func(context.Context) error {
				if s.engine == nil {
					return errors.New("no tutor engine")
				}
				return nil
			},
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. An in-flight
// WebSocket session ends when its own request context is cancelled by the
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.log.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.log.Info("server listening", "addr", s.cfg.Server.ListenAddr)

	var err error
	if s.cfg.Server.TLS != nil {
		err = s.httpSrv.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Server.ListenAddr, err)
	}
	return nil
}
