package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"socialops/domain/model"
	"socialops/domain/repository"
	"socialops/infrastructure/cache"
	"socialops/infrastructure/clients/platform"
	"socialops/infrastructure/configuration"
	"socialops/infrastructure/logger"
	"socialops/infrastructure/persistence"
	"socialops/infrastructure/pubsub"
	"socialops/infrastructure/realtime"
	"socialops/infrastructure/retry"
	"socialops/infrastructure/security"
	"socialops/infrastructure/servicebus"
	"socialops/infrastructure/telemetry"
	httpHandler "socialops/interfaces/http"
	"socialops/server"
	"socialops/usecase"
)

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()

	loaded := configuration.LoadEnvFromFile("config.env", ".env")
	if len(loaded) > 0 {
		// Files loaded after package init; re-read the env overrides.
		configuration.Reload()
	}
	cfg := configuration.C
	logger.Configure(cfg.Logger.Format, cfg.Logger.Level)
	logger.GetLogger().WithField("env_files", loaded).Info("Configuration loaded")

	if err := cfg.Validate(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
}

func run(cfg configuration.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	masterKey, err := security.ParseKey(cfg.Security.EncryptionKey)
	if err != nil {
		return err
	}
	tokenCipher, err := security.NewCipher(masterKey, security.PurposeToken)
	if err != nil {
		return err
	}
	transportCipher, err := security.NewCipher(masterKey, security.PurposeTransport)
	if err != nil {
		return err
	}

	store, err := InitiateDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer store.close()

	contentDB, err := persistence.NewContentDB(cfg.Database.MySql)
	if err != nil {
		return fmt.Errorf("content database: %w", err)
	}

	mongoClient := initiateMongo(ctx, cfg.Database.Mongo)
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}
	redisClient, quota := initiateQuota(ctx, cfg.RedisClient)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewCollector(registry)

	adapters := initiateAdapters(cfg, metrics)
	logger.GetLogger().WithField("platforms", adapters.Platforms()).Info("Platform adapters registered")
	limiters := retry.NewLimiters(map[model.Platform]retry.Limit{
		model.PlatformTwitter:  {PerSecond: cfg.RateLimit.Twitter.PerSecond, Burst: cfg.RateLimit.Twitter.Burst},
		model.PlatformLinkedIn: {PerSecond: cfg.RateLimit.LinkedIn.PerSecond, Burst: cfg.RateLimit.LinkedIn.Burst},
	})
	policy := retry.Policy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay, MaxDelay: cfg.Retry.MaxDelay}

	hub := realtime.NewHub()
	sinks := []usecase.NotifySink{{Name: "sse", Notifier: hub}}
	if cfg.Pubsub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.Pubsub.ProjectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Pub/Sub not available - continuing without it")
		} else {
			defer func() { _ = client.Close() }()
			sinks = append(sinks, usecase.NotifySink{Name: "pubsub", Notifier: pubsub.NewEventPublisher(client, cfg.Pubsub.TopicID)})
		}
	}
	if cfg.ServiceBus.Namespace != "" {
		sender, err := initiateServiceBus(cfg.ServiceBus)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - continuing without it")
		} else {
			defer sender.Close(context.Background())
			sinks = append(sinks, usecase.NotifySink{Name: "servicebus", Notifier: sender})
		}
	}
	notifier := usecase.NewBestEffortNotifier(cfg.Publish.NotifyTimeout, metrics, sinks...)
	defer notifier.Wait()

	posts := persistence.NewPostRepository(contentDB)
	connections := usecase.NewConnectionStore(store.connections, tokenCipher, adapters, policy)
	connectUC := usecase.NewConnectionUsecase(connections, adapters, security.NewTransportStateCodec(transportCipher),
		func(p model.Platform) string { return cfg.RedirectURI(string(p)) })
	publishUC := usecase.NewPublishUsecase(usecase.PublishDeps{
		Posts:       posts,
		Targets:     store.publications,
		Audit:       persistence.NewPublishAuditMongo(mongoClient, cfg.Database.Mongo.Name),
		Connections: connections,
		Adapters:    adapters,
		Policy:      policy,
		Limiters:    limiters,
		Notifier:    notifier,
		Metrics:     metrics,
		CallTimeout: cfg.Platform.CallTimeout,
	})
	metricsUC := usecase.NewMetricsUsecase(usecase.MetricsDeps{
		Posts:       posts,
		Targets:     store.publications,
		Snapshots:   store.snapshots,
		Quota:       quota,
		Connections: connections,
		Adapters:    adapters,
		Policy:      policy,
		Limiters:    limiters,
		Metrics:     metrics,
		Settings: usecase.MetricsSettings{
			StaleAfter:         cfg.Metrics.StaleAfter,
			BatchSize:          cfg.Metrics.BatchSize,
			Concurrency:        cfg.Metrics.Concurrency,
			CallTimeout:        cfg.Platform.CallTimeout,
			DailyCallBudget:    cfg.Metrics.DailyCallBudget,
			PerUserDailyBudget: cfg.Metrics.PerUserDailyBudget,
		},
	})

	router := server.InitiateRouter(server.RouterDeps{
		SecretKey:     cfg.App.SecretKey,
		InternalToken: cfg.App.InternalToken,
		CorsOrigins:   cfg.App.CorsOrigins,
		Connections:   httpHandler.NewConnectionHandler(connectUC, cfg.App.FrontendURL, cfg.App.TLSEnabled),
		Publish:       httpHandler.NewPublishHandler(publishUC),
		Metrics:       httpHandler.NewMetricsHandler(metricsUC),
		Health:        httpHandler.NewHealthHandler(healthChecks(store, contentDB, mongoClient, redisClient)),
		Stream:        hub.Serve,
		Prometheus:    telemetry.Handler(registry),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runBackfill(ctx, metricsUC, cfg.Metrics.BackfillInterval)
		return nil
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(hub.Close)
	logger.GetLogger().WithField("port", cfg.App.Port).WithField("tls", cfg.App.TLSEnabled).Info("Starting application")
	g.Go(func() error {
		var err error
		if cfg.App.TLSEnabled && cfg.App.TLSCertFile != "" && cfg.App.TLSKeyFile != "" {
			err = httpServer.ListenAndServeTLS(cfg.App.TLSCertFile, cfg.App.TLSKeyFile)
		} else {
			if cfg.App.TLSEnabled {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			}
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.GetLogger().Info("Application shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runBackfill refreshes stale metrics on a fixed interval until ctx is done.
// A batch in flight when ctx ends finishes its current calls and stops.
func runBackfill(ctx context.Context, uc usecase.IMetricsUsecase, interval time.Duration) {
	if interval <= 0 {
		logger.GetLogger().Info("Metrics backfill disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := uc.RunBackfill(ctx)
			entry := logger.GetLogger().
				WithField("processed", summary.Processed).
				WithField("refreshed", summary.Refreshed).
				WithField("failed", summary.Failed)
			if err != nil {
				entry.WithField("error", err).Warn("Metrics backfill skipped")
				continue
			}
			entry.Info("Metrics backfill finished")
		}
	}
}

// credentialStore holds the vendor-specific repositories of the credential
// database.
type credentialStore struct {
	db           *sql.DB
	vendor       string
	connections  repository.IConnection
	publications repository.IPublication
	snapshots    repository.IMetricSnapshot
}

func (s *credentialStore) close() { _ = s.db.Close() }

// InitiateDatabase opens the credential database for the configured vendor and
// makes sure its schema exists. Production runs on MSSQL, local on Postgres.
func InitiateDatabase(cfg configuration.Database) (*credentialStore, error) {
	if cfg.Vendor == "mssql" {
		db, err := persistence.NewMSSQLDB(cfg.Mssql)
		if err != nil {
			return nil, fmt.Errorf("mssql: %w", err)
		}
		if err := persistence.EnsureSchemaMSSQL(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &credentialStore{
			db:           db,
			vendor:       "mssql",
			connections:  persistence.NewConnectionRepositoryMSSQL(db),
			publications: persistence.NewPublicationRepositoryMSSQL(db),
			snapshots:    persistence.NewMetricSnapshotRepositoryMSSQL(db),
		}, nil
	}

	db, err := persistence.NewPostgreSQLDB(cfg.Psql)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := persistence.EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &credentialStore{
		db:           db,
		vendor:       "postgres",
		connections:  persistence.NewConnectionRepository(db),
		publications: persistence.NewPublicationRepository(db),
		snapshots:    persistence.NewMetricSnapshotRepository(db),
	}, nil
}

func initiateMongo(ctx context.Context, cfg configuration.Db) *mongo.Client {
	client, err := persistence.NewMongoDb(cfg)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - publish audit disabled")
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB ping failed - publish audit disabled")
		_ = client.Disconnect(context.Background())
		return nil
	}
	logger.GetLogger().Info("MongoDB connected successfully")
	return client
}

// initiateQuota prefers the shared Redis counter so every replica draws from
// the same budget; a single process falls back to an in-memory counter.
func initiateQuota(ctx context.Context, cfg configuration.RedisClient) (*redis.Client, repository.IQuota) {
	if cfg.Addr() == "" {
		logger.GetLogger().Warn("Redis not configured - using in-process call quota")
		return nil, cache.NewMemoryQuota()
	}
	client, err := cache.NewCache(ctx, cfg.Addr(), cfg.Username, cfg.Password, cfg.DB)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - using in-process call quota")
		return nil, cache.NewMemoryQuota()
	}
	logger.GetLogger().Info("Redis client initialized successfully.")
	return client, cache.NewRedisQuota(client)
}

func initiateAdapters(cfg configuration.Config, metrics *telemetry.Collector) *platform.Registry {
	var adapters []platform.Adapter
	if tw := cfg.OAuth.Twitter; tw.Enabled() {
		adapters = append(adapters, platform.NewTwitter(platform.TwitterConfig{
			ClientID:     tw.ClientID,
			ClientSecret: tw.ClientSecret,
			Scopes:       tw.Scopes,
			Timeout:      cfg.Platform.CallTimeout,
		}, metrics))
	}
	if li := cfg.OAuth.LinkedIn; li.Enabled() {
		adapters = append(adapters, platform.NewLinkedIn(platform.LinkedInConfig{
			ClientID:      li.ClientID,
			ClientSecret:  li.ClientSecret,
			Scopes:        li.Scopes,
			Timeout:       cfg.Platform.CallTimeout,
			RefreshTokens: li.RefreshTokens,
		}, metrics))
	}
	return platform.NewRegistry(adapters...)
}

func initiateServiceBus(cfg configuration.ServiceBus) (*servicebus.EventSender, error) {
	client, err := servicebus.NewClient(cfg.Namespace)
	if err != nil {
		return nil, err
	}
	return servicebus.NewEventSender(client, cfg.QueueName)
}

func healthChecks(store *credentialStore, contentDB *gorm.DB, mongoClient *mongo.Client, redisClient *redis.Client) map[string]httpHandler.HealthCheck {
	checks := map[string]httpHandler.HealthCheck{
		store.vendor: store.db.PingContext,
		"content": func(ctx context.Context) error {
			sqlDB, err := contentDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if mongoClient != nil {
		checks["mongo"] = func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
