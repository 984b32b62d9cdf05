package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barrel-market-api/internal/cache"
	"barrel-market-api/internal/config"
	"barrel-market-api/internal/events"
	"barrel-market-api/internal/handler"
	"barrel-market-api/internal/inference"
	"barrel-market-api/internal/logging"
	"barrel-market-api/internal/metrics"
	"barrel-market-api/internal/middleware"
	"barrel-market-api/internal/repository"
	"barrel-market-api/internal/router"
	"barrel-market-api/internal/seller"
	"barrel-market-api/internal/service"

	"github.com/fluent/fluent-logger-golang/fluent"
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	cfg := config.MustLoad()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	var fluentClient *fluent.Fluent
	if cfg.Log.FluentEnabled {
		fluentClient, err = fluent.New(fluent.Config{
			FluentHost: cfg.Log.FluentHost,
			FluentPort: cfg.Log.FluentPort,
			Async:      true,
		})
		if err != nil {
			slog.Warn("fluent forwarder unavailable", "error", err)
			fluentClient = nil
		} else {
			defer fluentClient.Close()
		}
	}

	logger := logging.New(logging.Config{
		Level:     level,
		AddSource: cfg.Log.AddSource,
		JSON:      cfg.Log.Format == "json",
		Color:     cfg.Log.Color,
		Fluent:    fluentClient,
		Tag:       cfg.Log.FluentTag,
	})
	slog.SetDefault(logger)
	logger.Info("starting", "app", cfg.App.Name, "version", cfg.App.Version, "env", cfg.App.Environment)

	loc, err := cfg.App.Location()
	if err != nil {
		fatal(logger, "invalid timezone", err)
	}

	m := metrics.New("barrel_market")

	// Listing store
	var store repository.Store
	switch cfg.Store.Type {
	case "postgres", "postgresql":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		pgStore, err := repository.NewPostgresStore(ctx, cfg.Store.PostgresDSN(), cfg.Store.MaxConns, logger)
		cancel()
		if err != nil {
			fatal(logger, "failed to initialize PostgreSQL", err)
		}
		store = pgStore
	default:
		sqliteStore, err := repository.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			fatal(logger, "failed to initialize SQLite", err)
		}
		store = sqliteStore
	}
	defer store.Close()
	logger.Info("listing store initialized", "type", cfg.Store.Type)

	// API keys in MySQL (optional)
	var keyRepo *repository.SQLAPIKeyRepository
	if cfg.KeyDB.Enabled {
		keyDB, err := sql.Open("mysql", cfg.KeyDB.DSN())
		if err != nil {
			logger.Warn("MySQL key store unavailable", "error", err)
		} else {
			keyDB.SetMaxOpenConns(10)
			keyDB.SetMaxIdleConns(5)
			keyDB.SetConnMaxLifetime(5 * time.Minute)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = keyDB.PingContext(ctx)
			cancel()
			if err != nil {
				logger.Warn("MySQL ping failed", "error", err)
				keyDB.Close()
			} else {
				defer keyDB.Close()
				keyRepo = repository.NewSQLAPIKeyRepository(keyDB)
				logger.Info("MySQL key store initialized")
			}
		}
	}

	// Seller lookup cache
	var sellerCache cache.Cache
	if cfg.Cache.Type == "redis" {
		rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err != nil {
			logger.Warn("Redis unavailable, falling back to memory cache", "error", err)
		} else {
			defer rc.Close()
			sellerCache = rc
		}
	}
	if sellerCache == nil {
		mc := cache.NewMemoryCache(time.Minute)
		defer mc.Close()
		sellerCache = mc
	}

	sellers := seller.NewResolver(seller.Config{
		BaseURL:     cfg.Directory.BaseURL,
		HTTP:        &http.Client{Timeout: cfg.Directory.Timeout},
		Cache:       sellerCache,
		CacheTTL:    cfg.Directory.CacheTTL,
		NegativeTTL: cfg.Directory.NegativeTTL,
		Observer:    m,
		Logger:      logger,
	})

	// Inference
	credentials, err := inference.NewCredentialPool(cfg.Inference.APIKeys)
	if err != nil {
		fatal(logger, "invalid inference credentials", err)
	}
	client := inference.NewClient(inference.ClientConfig{
		BaseURL:   cfg.Inference.BaseURL,
		Model:     cfg.Inference.Model,
		MaxTokens: cfg.Inference.MaxTokens,
		Observer:  m,
	})
	extractor := inference.NewExtractor(client, cfg.Inference.Timeout)

	// Outcome reporters
	reporters := []service.Reporter{m}
	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher = events.NewPublisher(events.NewKafkaWriter(cfg.Events.Brokers, cfg.Events.Topic), logger)
		reporters = append(reporters, publisher)
		logger.Info("outcome events enabled", "topic", cfg.Events.Topic)
	}

	// Ingestion
	dispatcher := service.NewDispatcher(credentials, service.DispatcherConfig{
		BatchSize:     cfg.Ingest.BatchSize,
		Cooldown:      cfg.Ingest.Cooldown,
		Stagger:       cfg.Ingest.Stagger,
		RatePerSecond: cfg.Ingest.RatePerSecond,
		RateBurst:     cfg.Ingest.RateBurst,
	}, logger)
	processor := service.NewProcessor(store, extractor, sellers, loc)
	queue := service.NewIngestQueue(store, processor, dispatcher, service.QueueConfig{
		FlushSize: cfg.Ingest.FlushSize,
		Reporters: reporters,
		Observer:  m,
		Logger:    logger,
	})
	queue.Start(context.Background())

	// Read side
	listings := service.NewListingService(store, service.ListingConfig{
		SimilarityThreshold: cfg.Query.SimilarityThreshold,
		DefaultPageSize:     cfg.Query.DefaultPageSize,
		MaxPageSize:         cfg.Query.MaxPageSize,
	})
	notes := service.NewNoteService(store, loc)

	authCfg := middleware.AuthConfig{APIKeys: cfg.Auth.APIKeys, Logger: logger}
	if keyRepo != nil {
		authCfg.Keys = keyRepo
	}
	if len(cfg.Auth.APIKeys) == 0 && keyRepo == nil {
		logger.Warn("no API keys configured, intake endpoints will reject every request")
	}

	admin := handler.NewAdminHandler(queue, store, cfg.Store.Type)
	if keyRepo != nil {
		admin.SetKeyManager(keyRepo)
	}

	r := router.New(router.Config{
		Handler:        handler.New(cfg.App.Version, store),
		ListingHandler: handler.NewListingHandler(queue, listings, cfg.Server.MaxBodyBytes, logger),
		NoteHandler:    handler.NewNoteHandler(notes, cfg.Server.MaxBodyBytes, logger),
		AdminHandler:   admin,
		AuthMiddleware: middleware.NewAuthMiddleware(authCfg),
		Logger:         logger,
		Metrics:        m.Handler(),
		HTTPObserver:   m,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop intake first, then let accepted submissions finish.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := queue.Stop(ctx); err != nil {
		logger.Error("ingest queue did not drain", "error", err, "stats", queue.Stats())
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("closing event publisher", "error", err)
		}
	}

	logger.Info("server stopped")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
