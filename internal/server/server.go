package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cerebro-dash/apiserver/config"
	"github.com/cerebro-dash/apiserver/internal/db"
	"github.com/cerebro-dash/apiserver/internal/handlers"
	"github.com/cerebro-dash/apiserver/internal/health"
	"github.com/cerebro-dash/apiserver/internal/logging"
	"github.com/cerebro-dash/apiserver/internal/mq"
	"github.com/cerebro-dash/apiserver/internal/relay"
	"github.com/cerebro-dash/apiserver/internal/services"
	"github.com/cerebro-dash/apiserver/internal/storage"
	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-retry"
)

const (
	requestTimeout  = 60 * time.Second
	relayBackoff    = time.Second
	relayMaxBackoff = 30 * time.Second
)

// Server wraps the HTTP server, its router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	authDB     *sql.DB
	bus        *mq.MQ
	objects    *storage.Storage
	relay      *relay.Relay
	logger     *slog.Logger
}

// New connects every dependency and wires the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{logger: logger}
	if err := s.connect(ctx, cfg); err != nil {
		s.closeConnections()
		return nil, err
	}

	events := services.NewNotifier(mq.NewEventPublisher(s.bus, cfg.Relay.Channel), logger)

	accountRepo := store.NewAccountRepository(s.authDB, cfg.AuthDB.CharactersDB)
	metadataRepo := store.NewMetadataRepository(s.db)
	operatorRepo := store.NewOperatorRepository(s.db)

	directory := services.NewDirectoryService(accountRepo, metadataRepo, cfg.StoreTimeout, events)
	accounts := services.NewAccountService(accountRepo, nil, cfg.StoreTimeout, events)
	operators := services.NewOperatorService(operatorRepo)

	var exportStore services.ExportStore
	if s.objects != nil {
		exportStore = s.objects
	}
	exports := services.NewExportService(directory, exportStore, cfg.Storage.ExportRetain)

	aggregator := health.NewAggregator(health.DefaultTimeout,
		health.NewGameServer(
			cfg.GameServer.Host, cfg.GameServer.WorldPort, cfg.GameServer.AuthPort,
			cfg.GameServer.SOAPHost, cfg.GameServer.SOAPPort,
		),
		health.NewHTTPEndpoint("vllm", strings.TrimRight(cfg.Inference.URL, "/")+"/health", nil),
		health.NewPinger("postgresql", metadataRepo.Ping),
		health.NewPinger("mysql", accountRepo.Ping),
		health.NewPinger("mq", s.bus.Ping),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.relay = relay.New(s.bus, cfg.Relay.Channel, aggregator.HealthEvent, relay.Options{
		QueueSize: cfg.Relay.QueueSize,
		Logger:    logger,
		Metrics:   relay.NewMetrics(registry),
	})

	authMiddleware := handlers.RequireAuth(jwtSecret)
	httpMetrics := handlers.NewHTTPMetrics(registry)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		httpMetrics.Middleware,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// The event stream is long-lived and stays outside the request timeout.
	router.Route("/api/monitor", func(r chi.Router) {
		handlers.MonitorRouter(r, aggregator, s.bus, s.relay, authMiddleware, logger)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Route("/api/auth", func(r chi.Router) {
			handlers.AuthRouter(r, operators, jwtSecret, logger)
		})
		r.Route("/api/accounts", func(r chi.Router) {
			handlers.AccountRouter(r, directory, accounts, exports, authMiddleware, logger)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived websocket streams.
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

func (s *Server) connect(ctx context.Context, cfg config.Config) error {
	var err error
	if s.db, err = db.Open(ctx, cfg); err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if s.authDB, err = db.OpenAuth(ctx, cfg); err != nil {
		return fmt.Errorf("open auth database: %w", err)
	}
	if s.bus, err = mq.Open(ctx, cfg.MQ); err != nil {
		return fmt.Errorf("open mq: %w", err)
	}
	if s.objects, err = storage.Open(ctx, cfg.Storage); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if s.objects == nil {
		s.logger.InfoContext(ctx, "object storage not configured, directory exports disabled")
	}
	return nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the relay and the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		s.superviseRelay(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		serveErr <- s.httpServer.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	cancel()
	<-relayDone
	if shutdownErr := s.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

// superviseRelay keeps the relay subscribed, backing off between attempts
// while the bus is unreachable.
func (s *Server) superviseRelay(ctx context.Context) {
	newRelaySupervisor(s.relay.Run, s.logger).supervise(ctx)
}

// relaySupervisor reruns a relay until ctx ends. Consecutive failures back
// off exponentially up to relayMaxBackoff; a run that stayed up for at least
// healthyAfter starts the backoff over.
type relaySupervisor struct {
	run          func(context.Context) error
	logger       *slog.Logger
	newBackoff   func() retry.Backoff
	healthyAfter time.Duration
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

func newRelaySupervisor(run func(context.Context) error, logger *slog.Logger) *relaySupervisor {
	return &relaySupervisor{
		run:    run,
		logger: logger,
		newBackoff: func() retry.Backoff {
			return retry.WithCappedDuration(relayMaxBackoff, retry.NewExponential(relayBackoff))
		},
		healthyAfter: relayMaxBackoff,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

func (rs *relaySupervisor) supervise(ctx context.Context) {
	backoff := rs.newBackoff()
	for {
		started := rs.now()
		err := rs.run(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		logging.LogError(ctx, rs.logger, "relay lost upstream, resubscribing", err)

		if rs.now().Sub(started) >= rs.healthyAfter {
			backoff = rs.newBackoff()
		}
		delay, stop := backoff.Next()
		if stop {
			logging.LogError(ctx, rs.logger, "relay stopped", err)
			return
		}
		if rs.sleep(ctx, delay) != nil {
			return
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Shutdown drains in-flight requests and closes every connection.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.closeConnections()
	return err
}

func (s *Server) closeConnections() {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.objects != nil {
		_ = s.objects.Close()
	}
	if s.authDB != nil {
		_ = s.authDB.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
