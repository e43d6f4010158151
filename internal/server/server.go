// Package server wires the console together and runs its three HTTP
// servers: the API, the probes and the Prometheus metrics endpoint.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/codec"
	"github.com/n3tuk/redis-console/internal/config"
	"github.com/n3tuk/redis-console/internal/console"
	"github.com/n3tuk/redis-console/internal/handlers"
	"github.com/n3tuk/redis-console/internal/health"
	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/middleware"
	"github.com/n3tuk/redis-console/internal/profiles"
	"github.com/n3tuk/redis-console/internal/registry"
	"github.com/n3tuk/redis-console/internal/session"
	"github.com/n3tuk/redis-console/internal/store"
)

const storeMetricsInterval = 15 * time.Second

// Server manages the three HTTP servers (API, Probe, Metrics) and the
// components behind them.
type Server struct {
	cfg           *config.Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	health        *health.Manager
	store         store.Store
	collector     *store.MetricsCollector
	registry      *registry.Registry
	console       *console.Console
	apiServer     *http.Server
	probeServer   *http.Server
	metricsServer *http.Server
	startTime     time.Time
	shutdownChan  chan struct{}
	shutdownOnce  sync.Once
}

// New creates a new Server, opening the profile store and building the
// console. The store is closed again if any later step fails.
func New(cfg *config.Config, logger *zap.Logger, buildInfo map[string]string) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics.NewMetrics(cfg.MetricsNamespace, buildInfo),
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
	}

	st, err := s.openStore()
	if err != nil {
		return nil, err
	}
	storeMetrics := store.NewMetrics(cfg.MetricsNamespace, s.metrics.Registry())
	s.store = store.Instrument(st, storeMetrics)
	s.collector = store.NewMetricsCollector(logger, s.store, storeMetrics, storeMetricsInterval)

	env, err := profiles.FromEnvironment(os.Environ())
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("failed to read environment connections: %w", err)
	}
	env = append(env, cfg.Connections...)

	prof, err := profiles.NewManager(s.store, env, logger)
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("failed to create profile manager: %w", err)
	}

	s.registry = registry.New(
		session.NewFactory(cfg.Redis, logger, s.metrics),
		registry.WithLogger(logger),
		registry.WithMetrics(s.metrics),
		registry.WithQuitTimeout(cfg.QuitTimeout),
	)
	s.console = console.New(s.registry, prof, codec.New(logger, s.metrics), cfg.Keys, logger, s.metrics)

	s.setupHealth()
	s.setupServers()

	return s, nil
}

// openStore opens the configured profile store.
func (s *Server) openStore() (store.Store, error) {
	if s.cfg.ProfileBackend == config.BackendMemory {
		s.logger.Info("Using in-memory profile store")
		return store.NewMemoryStore(), nil
	}
	if s.cfg.Olric == nil {
		return nil, errors.New("olric profile store selected without olric configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.bootstrapTimeout())
	defer cancel()

	st, err := store.NewOlricStore(ctx, s.cfg.Olric, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	return st, nil
}

// bootstrapTimeout bounds how long New waits for the Olric cluster. It
// covers every join attempt plus the configured bootstrap wait.
func (s *Server) bootstrapTimeout() time.Duration {
	o := s.cfg.Olric
	timeout := o.BootstrapTimeout + time.Duration(o.MaxJoinAttempts)*o.JoinRetryInterval
	if timeout <= 0 {
		timeout = store.DefaultBootstrapTimeout
	}
	return timeout
}

func (s *Server) closeStore() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.Close(ctx); err != nil {
		s.logger.Error("Failed to close profile store", zap.Error(err))
	}
}

// setupHealth registers the health checkers. The profile store checks gate
// readiness; the connection registry check is informational only.
func (s *Server) setupHealth() {
	s.health = health.NewManager(s.logger, s.cfg.HealthCheckCacheDuration, s.cfg.HealthCheckTimeout)

	s.health.RegisterChecker(health.NewConfigChecker(s.logger, s.cfg.Validate))
	s.health.RegisterChecker(health.NewServerChecker(s.logger))
	s.health.RegisterChecker(health.NewReadinessChecker(s.logger))
	s.health.RegisterChecker(registry.NewHealthChecker(s.logger, s.registry))

	quorum, singleNode := 1, true
	if s.cfg.ProfileBackend != config.BackendMemory && s.cfg.Olric != nil {
		quorum = s.cfg.Olric.MemberCountQuorum
		singleNode = s.cfg.Olric.IsSingleNode()
	}

	s.health.RegisterReadinessDependency(store.NewConnectionHealthChecker(s.logger, s.store))
	s.health.RegisterReadinessDependency(store.NewClusterHealthChecker(s.logger, s.store, quorum, singleNode))
	s.health.RegisterReadinessDependency(store.NewStorageHealthChecker(s.logger, s.store))
}

// setupServers configures the three HTTP servers.
func (s *Server) setupServers() {
	s.apiServer = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.APIHost, fmt.Sprint(s.cfg.APIPort)),
		Handler:      s.setupAPIRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSEnabled {
		s.apiServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	s.probeServer = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.ProbeHost, fmt.Sprint(s.cfg.ProbePort)),
		Handler:      s.setupProbeRouter(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second + s.cfg.HealthCheckTimeout,
		IdleTimeout:  30 * time.Second,
	}

	s.metricsServer = &http.Server{
		Addr:         net.JoinHostPort(s.cfg.MetricsHost, fmt.Sprint(s.cfg.MetricsPort)),
		Handler:      s.setupMetricsRouter(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

// setupAPIRouter creates the API server router with middleware.
func (s *Server) setupAPIRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.LoggingMiddleware(s.logger, "api"))
	r.Use(middleware.MetricsMiddleware(s.metrics, s.logger))
	r.Use(middleware.RecovererMiddleware(s.logger))

	setupAPIRoutes(r, s.logger,
		handlers.NewRedisHandlers(s.console, s.logger, s.metrics),
		handlers.NewProfileHandlers(s.console, s.logger, s.metrics),
	)

	return r
}

// setupProbeRouter creates the probe server router.
func (s *Server) setupProbeRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RecovererMiddleware(s.logger))

	setupProbeRoutes(r, s.logger, s.health, s.metrics)

	return r
}

// setupMetricsRouter creates the metrics server router.
func (s *Server) setupMetricsRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))

	return r
}

// Start starts all three HTTP servers and the background collectors.
func (s *Server) Start() error {
	errChan := make(chan error, 3)

	serve := func(name string, srv *http.Server, listen func() error) {
		s.logger.Info("Starting "+name+" server", zap.String("addr", srv.Addr))
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("%s server error: %w", name, err)
		}
	}

	go serve("API", s.apiServer, func() error {
		if s.cfg.TLSEnabled {
			return s.apiServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		}
		return s.apiServer.ListenAndServe()
	})
	go serve("probe", s.probeServer, s.probeServer.ListenAndServe)
	go serve("metrics", s.metricsServer, s.metricsServer.ListenAndServe)

	// Wait a bit to see if any server fails to start
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-errChan:
		return err
	default:
	}

	s.collector.Start()
	go s.updateUptime()
	s.health.SetServersRunning(true)

	return nil
}

// updateUptime updates the uptime and runtime metrics periodically.
func (s *Server) updateUptime() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metrics.AppUptimeSeconds.Add(1)
			s.metrics.UpdateRuntimeMetrics()
		case <-s.shutdownChan:
			return
		}
	}
}

// Shutdown marks the service as not ready, stops the servers, releases every
// Redis connection and closes the profile store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down servers gracefully")

	s.health.SetShuttingDown(true)

	started := false
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		started = true
	})
	if !started {
		return nil
	}

	var wg sync.WaitGroup
	// Three servers, the registry and the store can each report one error.
	errChan := make(chan error, 5)

	shutdown := func(name string, srv *http.Server) {
		defer wg.Done()
		s.logger.Info("Shutting down " + name + " server")
		if err := srv.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("%s server shutdown error: %w", name, err)
		}
	}

	// The probe server stays up until the others have drained.
	wg.Add(2)
	go shutdown("API", s.apiServer)
	go shutdown("metrics", s.metricsServer)
	wg.Wait()

	if err := s.registry.ReleaseAll(ctx); err != nil {
		errChan <- fmt.Errorf("failed to release connections: %w", err)
	}

	wg.Add(1)
	go shutdown("probe", s.probeServer)
	wg.Wait()

	s.collector.Stop()
	if err := s.store.Close(ctx); err != nil {
		errChan <- fmt.Errorf("failed to close profile store: %w", err)
	}

	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("All servers shut down successfully",
		zap.Duration("uptime", time.Since(s.startTime)),
	)
	return nil
}

// WaitForServers waits for all servers to be ready.
func (s *Server) WaitForServers(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if s.checkServer(s.apiServer.Addr) &&
			s.checkServer(s.probeServer.Addr) &&
			s.checkServer(s.metricsServer.Addr) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("servers did not become ready within %s", timeout)
}

// checkServer checks if a server is listening on the given address.
func (s *Server) checkServer(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
