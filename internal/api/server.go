package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trustnet/trustnet-cache/internal/cache"
	"github.com/trustnet/trustnet-cache/internal/config"
	"github.com/trustnet/trustnet-cache/internal/metrics"
	"github.com/trustnet/trustnet-cache/internal/monitor"
	"github.com/trustnet/trustnet-cache/internal/store"
	"github.com/trustnet/trustnet-cache/internal/strategies"
)

// Server is the admin HTTP server together with the components it exposes
type Server struct {
	cfg        *config.Config
	store      store.Store
	cache      *cache.Service
	strategies *strategies.Strategies
	monitor    *monitor.Monitor
	collector  *metrics.Collector
	httpServer *http.Server
	logger     logrus.FieldLogger
}

// NewServer wires the process-wide store into the cache, strategy, monitor
// and metrics components and builds the admin router over them
func NewServer(cfg *config.Config, logger logrus.FieldLogger, version string) *Server {
	gin.SetMode(gin.ReleaseMode)

	st := store.Default(cfg, logger)

	var (
		prom        *metrics.PrometheusMetrics
		cacheOpts   []cache.Option
		monitorOpts = []monitor.Option{monitor.WithThreshold(cfg.QueryMonitor.SlowQueryThreshold)}
	)
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		cacheOpts = append(cacheOpts, cache.WithRecorder(prom))
		monitorOpts = append(monitorOpts, monitor.WithObserver(prom))
	}

	svc := cache.NewService(st, logger, cacheOpts...)
	s := &Server{
		cfg:        cfg,
		store:      st,
		cache:      svc,
		strategies: strategies.New(svc, logger),
		monitor:    monitor.New(logger, monitorOpts...),
		logger:     logger.WithField("component", "admin_server"),
	}
	if prom != nil {
		s.collector = metrics.NewCollector(prom, svc, cfg.Metrics.CollectSchedule, logger)
	}

	router := NewRouter(&RouterConfig{
		Cache:       s.cache,
		Strategies:  s.strategies,
		Monitor:     s.monitor,
		Metrics:     prom,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
		Version:     version,
		JWTSecret:   cfg.Admin.JWTSecret,
	})

	s.httpServer = &http.Server{
		Addr:         cfg.AdminAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}
	return s
}

// Handler returns the admin router
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Cache returns the cache service
func (s *Server) Cache() *cache.Service {
	return s.cache
}

// Strategies returns the per-resource strategies
func (s *Server) Strategies() *strategies.Strategies {
	return s.strategies
}

// Monitor returns the query monitor
func (s *Server) Monitor() *monitor.Monitor {
	return s.monitor
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	if s.collector != nil {
		if err := s.collector.Start(); err != nil {
			return err
		}
		defer s.collector.Stop()
	}
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close cache store")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"addr":    s.httpServer.Addr,
			"backend": s.store.Backend(),
		}).Info("Starting admin server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down admin server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Admin.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.logger.Info("Shutdown complete")
	return nil
}
