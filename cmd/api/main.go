package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cabinres/internal/api"
	"cabinres/internal/availability"
	"cabinres/internal/config"
	"cabinres/internal/database"
	"cabinres/internal/domain"
	"cabinres/internal/events"
	"cabinres/internal/logging"
	"cabinres/internal/metrics"
	"cabinres/internal/policy"
	"cabinres/internal/repository"
	"cabinres/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	svc, err := initBookingService(cfg, db, redisClient, &logger)
	if err != nil {
		return err
	}

	grpcServer, err := api.NewGRPCServer(cfg.API, db, svc, cfg.Booking.Location(), &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, svc, db, cfg.Booking.Location(), &logger)
	httpServer.ArchiveExportsTo(cfg.Exports.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	backupLogger := logger.With().Str("component", "backup").Logger()
	go database.NewBackupService(db, cfg.Backup, &backupLogger).Start(ctx)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadCatalog(path string, logger *zerolog.Logger) (*database.Catalog, error) {
	if override := os.Getenv("CATALOG_PATH"); override != "" {
		path = override
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("read catalog")
		return nil, err
	}

	var catalog database.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("parse catalog")
		return nil, err
	}
	return &catalog, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	catalog, err := loadCatalog(cfg.Database.CatalogFile, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if catalog != nil {
		if err := db.SeedCatalog(context.Background(), catalog); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		// стартуем, failover переключит на локальные блокировки
		logger.Warn().Err(err).Msg("redis connection failed, cabin locks stay in process until it recovers")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

func initBookingService(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) (*service.BookingService, error) {
	rule, err := availability.NewRule(cfg.Booking.AvailabilityRule)
	if err != nil {
		return nil, err
	}

	var locker domain.CabinLocker = repository.NewMemoryCabinLocker()
	if redisClient != nil {
		lockLogger := logger.With().Str("component", "cabin-lock").Logger()
		primary := repository.NewRedisCabinLocker(redisClient, cfg.Booking.LockTTL, repository.DefaultLockRetry, &lockLogger)
		locker = repository.NewFailoverCabinLocker(primary, locker, &lockLogger)
	}

	eventLogger := logger.With().Str("component", "events").Logger()
	bus := events.NewEventBus()
	bus.SubscribeAll(events.LogHandler(&eventLogger))

	pol := policy.New(nil, nil)
	var guard domain.CancelGuard
	if cfg.Booking.ProtectPaidInvoices {
		guard = service.NewPaidInvoiceGuard(pol)
	}

	serviceLogger := logger.With().Str("component", "booking").Logger()
	logger.Info().
		Str("rule", rule.Name()).
		Str("timezone", cfg.Booking.Timezone).
		Bool("protect_paid_invoices", cfg.Booking.ProtectPaidInvoices).
		Msg("booking service configured")

	return service.NewBookingService(db, pol, service.Options{
		Rule:              rule,
		Locker:            locker,
		Events:            bus,
		Guard:             guard,
		Location:          cfg.Booking.Location(),
		EditLockDays:      cfg.Booking.EditLockDays,
		InvoiceExpiryDays: cfg.Booking.InvoiceExpiryDays,
	}, &serviceLogger), nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()
	go grpcServer.WatchReadiness(ctx, 15*time.Second)

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
