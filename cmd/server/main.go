package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/kidney-match-server/internal/api"
	"github.com/kidney-match-server/internal/cache"
	"github.com/kidney-match-server/internal/config"
	"github.com/kidney-match-server/internal/database"
	"github.com/kidney-match-server/internal/kidneymatch"
	"github.com/kidney-match-server/internal/metrics"
	"github.com/kidney-match-server/internal/repository"
	"github.com/kidney-match-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManagerFromFile(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()
	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting kidney match server")

	// Registry database
	db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrations, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	if err := migrations.Up(ctx); err != nil {
		migrations.Close()
		return err
	}
	if err := migrations.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close migration runner")
	}

	m := metrics.New(nil)
	health := map[string]api.HealthCheck{"database": db.Health}

	// Page cache: process memory, plus Redis when configured
	var shared cache.Store
	if cfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		shared = redisCache
		health["redis"] = redisCache.Ping
	}
	pageCache := cache.NewTiered(cache.NewMemoryCache(cfg.Cache.MemoryMaxItems, cfg.Cache.DefaultTTL), shared, cfg.Cache.DefaultTTL, logger)

	donors := service.NewResilientDonorSource(repository.NewDonorRepository(db.Pool, logger), cfg.Matching.Breaker, m, logger)
	patients := repository.NewPatientRepository(db.Pool, logger)
	matching := service.NewMatchingService(donors, patients, service.NewCompatibilityScorer(), pageCache, m, cfg.Matching, logger)

	matches, err := kidneymatch.Open(cfg.MatchStore, configManager.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer matches.Close()

	server := api.NewServer(configManager, api.Dependencies{
		Matching: matching,
		Matches:  matches,
		Metrics:  m,
		Health:   health,
		Logger:   logger,
	})

	return server.Start(ctx)
}
