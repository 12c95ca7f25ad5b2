package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"arbor-hq/gatekeeper/pkg/admission"
	"arbor-hq/gatekeeper/pkg/config"
	"arbor-hq/gatekeeper/pkg/limits"
	"arbor-hq/gatekeeper/pkg/server/middleware"
	"arbor-hq/gatekeeper/pkg/telemetry/health"
	"arbor-hq/gatekeeper/pkg/telemetry/metrics"
)

// gaugeRefreshInterval is how often the pressure and in-flight gauges are
// pushed to the collector outside the request path.
const gaugeRefreshInterval = 10 * time.Second

// Server is the gatekeeper HTTP front end: infrastructure endpoints plus
// the gateway-wrapped reverse proxy to the upstream graph service.
type Server struct {
	config     *config.Config
	deps       Dependencies
	tracker    *middleware.InFlightTracker
	proxy      *httputil.ReverseProxy
	httpServer *http.Server

	shutdownChan chan struct{}
	requestOnce  sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Dependencies are the collaborators the server composes into its handler
// chain. All fields except Collector are required.
type Dependencies struct {
	Limiter     *limits.Limiter
	RepoLimiter *limits.RepositoryLimiter
	Controller  *admission.Controller
	Checker     *health.Checker

	// Collector is nil when metrics are disabled.
	Collector *metrics.Collector

	Logger *slog.Logger

	// Build identity served on /version.
	Version   string
	Commit    string
	BuildTime string
}

// NewServer creates the gatekeeper server. The upstream URL must parse;
// everything else is validated at config load.
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	upstream, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream URL %q: %w", cfg.Server.UpstreamURL, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		deps.Logger.Error("upstream request failed",
			"upstream", upstream.Host,
			"path", r.URL.Path,
			"error", err,
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":"upstream_unavailable","message":"The graph service is unreachable."}}`))
	}

	return &Server{
		config:       cfg,
		deps:         deps,
		tracker:      middleware.NewInFlightTracker(cfg.Server.ConcurrencyTarget, cfg.Server.MaxQueueSize),
		proxy:        proxy,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the HTTP server and blocks until a shutdown signal, context
// cancellation, or a fatal listener error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	gaugeCtx, stopGauges := context.WithCancel(ctx)
	defer stopGauges()
	if s.deps.Collector != nil {
		go s.refreshGauges(gaugeCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("starting gatekeeper",
			"address", s.config.Server.ListenAddress,
			"upstream", s.config.Server.UpstreamURL,
			"store", s.config.Store.Backend,
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.deps.Logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.deps.Logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server, letting in-flight requests
// finish up to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.deps.Logger.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String(),
			"in_flight", s.tracker.InFlight(),
		)

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.deps.Logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.deps.Logger.Info("gatekeeper stopped")
	})

	return shutdownErr
}

// setupRoutes builds the handler: infrastructure endpoints on the mux, the
// gateway-wrapped reverse proxy as the catch-all, and the cross-cutting
// middleware around everything.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.deps.Checker.LivenessHandler())
	mux.HandleFunc("/readyz", s.deps.Checker.ReadinessHandler())
	mux.HandleFunc("/status", s.deps.Checker.StatusHandler(s.healthReport))
	mux.HandleFunc("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))

	if s.deps.Collector != nil {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.deps.Collector.Handler())
	}

	gateway := middleware.NewGateway(middleware.GatewayConfig{
		Limiter:     s.deps.Limiter,
		RepoLimiter: s.deps.RepoLimiter,
		Controller:  s.deps.Controller,
		Tracker:     s.tracker,
		Collector:   s.deps.Collector,
		Logger:      s.deps.Logger,
	})
	mux.Handle("/", gateway.Wrap(s.proxy))

	var handler http.Handler = mux
	handler = s.tracker.Track(handler)
	handler = middleware.Logging(s.deps.Logger, s.deps.Collector)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// healthReport snapshots admission health with the live queue view.
func (s *Server) healthReport() admission.HealthReport {
	return s.deps.Controller.HealthStatus(
		s.tracker.QueueDepth(),
		s.config.Server.MaxQueueSize,
		s.tracker.ActiveWork(),
	)
}

// refreshGauges pushes the pressure and in-flight gauges on a fixed cadence
// so they stay current even when no requests arrive.
func (s *Server) refreshGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := s.healthReport()
			s.deps.Collector.SetPressureScore(report.PressureScore)
			s.deps.Collector.SetSheddingActive(s.deps.Controller.SheddingActive())
			s.deps.Collector.SetInFlight(s.tracker.InFlight())
		}
	}
}

// Handler returns the composed HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RequestShutdown triggers a graceful shutdown from another goroutine.
func (s *Server) RequestShutdown() {
	s.requestOnce.Do(func() { close(s.shutdownChan) })
}
