package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/janhstrom/mindreminder-sub000/internal/api"
	"github.com/janhstrom/mindreminder-sub000/internal/auth"
	"github.com/janhstrom/mindreminder-sub000/internal/cache"
	"github.com/janhstrom/mindreminder-sub000/internal/config"
	"github.com/janhstrom/mindreminder-sub000/internal/domain"
	"github.com/janhstrom/mindreminder-sub000/internal/logging"
	"github.com/janhstrom/mindreminder-sub000/internal/outbox"
	"github.com/janhstrom/mindreminder-sub000/internal/persistence/memory"
	persistence "github.com/janhstrom/mindreminder-sub000/internal/persistence/postgres"
	httptransport "github.com/janhstrom/mindreminder-sub000/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Service: "mindreminder-api"})
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api_stopped", zap.Error(err))
	}
	logger.Info("api_shutdown_complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	opts := []domain.Option{
		domain.WithLogger(logger.Named("domain")),
		domain.WithLocation(cfg.Location()),
		domain.WithReadRetryDelay(cfg.ReadRetryDelay),
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		statsCache := cache.NewRedisStatsCache(client, cfg.StatsCacheTTL)
		if err := statsCache.Ping(ctx); err != nil {
			logger.Warn("stats_cache_disabled", zap.String("redis_addr", cfg.RedisAddr), zap.Error(err))
		} else {
			opts = append(opts, domain.WithStatsCache(statsCache))
		}
	}

	var service *domain.Service
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		logger.Warn("using_memory_store", zap.String("reason", "STORE_BACKEND=memory, data is not persisted"))
		repo := memory.NewRepository()
		service = domain.NewService(repo, repo, opts...)
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		repo := persistence.NewRepository(pool)
		service = domain.NewService(repo, repo, opts...)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.Named("outbox")))
		g.Go(func() error {
			dispatcher.Start(ctx)
			return nil
		})
	}

	mux := http.NewServeMux()
	api.NewHandler(service, logger.Named("api")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.SkipPaths("/healthz", "/metrics"))
	handler := httptransport.Chain(mux,
		httptransport.Recovery(logger),
		httptransport.RequestLogger(logger.Named("http"), mux),
		httptransport.CORS("http://localhost:5173"),
		authMiddleware.Wrap,
	)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler, logger)
	g.Go(func() error {
		return server.Run(ctx)
	})

	return g.Wait()
}
