package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jhaveripatric/api-gateway/internal/auth"
	"github.com/jhaveripatric/api-gateway/internal/config"
	"github.com/jhaveripatric/api-gateway/internal/cors"
	"github.com/jhaveripatric/api-gateway/internal/dispatch"
	"github.com/jhaveripatric/api-gateway/internal/metrics"
	"github.com/jhaveripatric/api-gateway/internal/middleware"
	"github.com/jhaveripatric/api-gateway/internal/upstream"
)

const readHeaderTimeout = 10 * time.Second

// Server is the HTTP gateway server.
type Server struct {
	cfg      *config.GatewayConfig
	logger   *zap.Logger
	registry *upstream.Registry
	metrics  *metrics.Collector
	handler  http.Handler
	phase    atomic.Int32
}

// New creates a gateway server from a resolved configuration. It loads the
// auth key when protected upstreams are configured, so an unreadable key
// fails startup before any listener is opened.
func New(cfg *config.GatewayConfig, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, logger: logger, metrics: metrics.New()}

	reg, err := upstream.NewRegistry(cfg.Upstreams, cfg.Auth.Protected)
	if err != nil {
		return nil, err
	}
	s.registry = reg

	var verifier dispatch.Authenticator
	if cfg.Auth.Enabled() {
		v, err := auth.New(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("load auth key: %w", err)
		}
		verifier = v
	}

	policy := cors.NewPolicy(cfg.CORSOrigins, cfg.CORSAllowCredentials)
	d := dispatch.New(dispatch.Options{
		Registry:    reg,
		CORS:        policy,
		Timeout:     cfg.RequestTimeout,
		ErrorPolicy: cfg.UpstreamErrorPolicy,
		Local:       s.localRoutes(),
		Auth:        verifier,
		Logger:      logger,
		Metrics:     s.metrics,
	})

	// Middleware stack (order matters)
	h := chi.Chain(
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.Recovery(logger, policy),
	).Handler(d)
	s.handler = otelhttp.NewHandler(h, "api-gateway")

	return s, nil
}

func (s *Server) localRoutes() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/", s.rootHandler)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Handler returns the full request handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for at most ShutdownTimeout. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.phase.Store(int32(phaseServing))
		s.logger.Info("api gateway listening",
			zap.String("addr", ln.Addr().String()),
			zap.Strings("upstreams", s.registry.Names()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.phase.Store(int32(phaseDraining))
		s.logger.Info("shutting down", zap.Duration("timeout", s.cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.phase.Store(int32(phaseStopped))
	return err
}
