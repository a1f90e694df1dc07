package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"quiz-intake-service/internal/admission"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/catalog"
	"quiz-intake-service/internal/config"
	"quiz-intake-service/internal/infra/memory"
	redisinfra "quiz-intake-service/internal/infra/redis"
	"quiz-intake-service/internal/observability"
	"quiz-intake-service/internal/topology"
	transport "quiz-intake-service/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd starts the service: a coordinator with a worker pool when more
// than one worker is configured, otherwise a single in-process server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the intake server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), *configPath, *port)
		},
	}
}

// NewWorkerCmd runs one pool member on the listener inherited from the coordinator.
func NewWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one worker of the pool (started by the coordinator)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

func loadConfig(path, portFlag string) (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return cfg, nil, err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func runStart(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath, portFlag)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if backendOf(cfg.Store.URL) == backendPostgres {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			logger.Warn("migrations not applied, store may be unreachable", zap.Error(err))
		}
	}

	ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
	if err != nil {
		return err
	}

	if cfg.Server.Workers <= 1 {
		logger.Info("starting single worker", zap.String("port", cfg.Server.Port))
		return serve(ctx, cfg, ln, logger)
	}
	if backendOf(cfg.Store.URL) == backendMemory {
		logger.Warn("in-memory store is per worker; submissions are not shared across the pool")
	}
	return runCoordinator(ctx, cfg, configPath, ln, logger)
}

func runCoordinator(ctx context.Context, cfg config.Config, configPath string, ln net.Listener, logger *zap.Logger) error {
	file, err := topology.ListenerFile(ln)
	if err != nil {
		ln.Close()
		return err
	}
	// The duplicated descriptor keeps the socket open for the workers.
	ln.Close()
	defer file.Close()

	args := []string{"worker", "--config", configPath, "--port", cfg.Server.Port}
	spawner, err := topology.NewProcessSpawner(file, args...)
	if err != nil {
		return err
	}
	sup := topology.NewSupervisor(spawner, cfg.Server.Workers, logger)
	logger.Info("coordinator starting workers",
		zap.String("port", cfg.Server.Port),
		zap.Int("workers", cfg.Server.Workers),
	)
	err = sup.Run(ctx)
	logger.Info("coordinator stopped")
	return err
}

func runWorker(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath, port)
	if err != nil {
		return err
	}
	logger = logger.With(zap.Int("worker", topology.Slot()))
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := topology.InheritedListener()
	if err != nil {
		return err
	}
	return serve(ctx, cfg, ln, logger)
}

// serve runs one worker's HTTP server on ln until ctx is done.
func serve(ctx context.Context, cfg config.Config, ln net.Listener, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}
	defer closeStore()

	questions := catalog.Default().Questions()
	calc := app.NewStatsCalculator(store, questions)
	statsTTL := config.TTLDuration(cfg.Stats.TTL, config.DefaultStatsTTL)
	feed := app.NewFeed()

	g, gctx := errgroup.WithContext(ctx)

	var (
		stats     app.StatsRepository
		publisher app.EventPublisher = feed
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		stats = redisinfra.NewStatsCache(rdb, calc, statsTTL)
		publisher = redisinfra.NewFeedPublisher(rdb, cfg.Redis.Channel)
		relay := redisinfra.NewFeedRelay(rdb, cfg.Redis.Channel, feed, logger)
		g.Go(func() error { return relay.Run(gctx) })
	} else {
		stats = memory.NewStatsCache(calc, statsTTL)
	}

	service := app.NewSubmissionService(store,
		app.WithStats(stats),
		app.WithPublisher(publisher),
		app.WithLogger(logger),
	)
	gate := admission.NewController(cfg.Server.MaxConcurrentRequests,
		admission.WithMetrics(metrics.ActiveRequests, metrics.AdmissionRejected),
	)
	router := transport.NewRouter(transport.RouterOptions{
		Admission:   gate,
		Submissions: transport.NewSubmissionHandler(service, questions, logger, metrics.SubmissionsCreated),
		Live:        transport.NewLiveHandler(feed, logger),
		Metrics:     metrics,
		Gatherer:    reg,
		Logger:      logger,
		Production:  cfg.Production(),
		StaticDir:   cfg.Server.StaticDir,
	})

	server := &http.Server{
		Handler:           router,
		IdleTimeout:       config.TTLDuration(cfg.Server.KeepAliveTimeout, config.DefaultKeepAliveTimeout),
		ReadHeaderTimeout: config.TTLDuration(cfg.Server.HeaderTimeout, config.DefaultHeaderTimeout),
	}

	g.Go(func() error {
		logger.Info("worker serving",
			zap.String("addr", ln.Addr().String()),
			zap.Int("max_concurrent_requests", cfg.Server.MaxConcurrentRequests),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
