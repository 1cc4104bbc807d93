package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/txconsole/common/auth"
	"github.com/Aidin1998/txconsole/internal/audit"
	"github.com/Aidin1998/txconsole/internal/database"
	"github.com/Aidin1998/txconsole/internal/infrastructure/config"
	"github.com/Aidin1998/txconsole/internal/notification"
	"github.com/Aidin1998/txconsole/internal/server"
	"github.com/Aidin1998/txconsole/internal/transactions"
	"github.com/Aidin1998/txconsole/internal/transactions/export"
	"github.com/Aidin1998/txconsole/internal/transactions/merger"
	"github.com/Aidin1998/txconsole/internal/transactions/moderation"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/logger"
	"github.com/Aidin1998/txconsole/pkg/telemetry"
	"github.com/Aidin1998/txconsole/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API",
		Action: runServe,
	}
}

func configPaths(c *cli.Context) []string {
	if p := c.String("config"); p != "" {
		return []string{p}
	}
	return nil
}

func runServe(c *cli.Context) error {
	log, level := logger.NewLoggerWithLevel("info")
	defer func() { _ = log.Sync() }()

	loader := config.NewLoader(log)
	cfg, err := loader.Load(configPaths(c)...)
	if err != nil {
		log.Error("failed to load configuration", zap.Error(err))
		return err
	}
	level.SetLevel(logger.ParseLevel(cfg.Log.Level))
	loader.Watch(func(next *config.Config) {
		level.SetLevel(logger.ParseLevel(next.Log.Level))
		log.Info("configuration reloaded", zap.String("log_level", next.Log.Level))
	})
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Tracing:     cfg.Tracing.Enabled,
		Metrics:     cfg.Tracing.Metrics,
	})
	if err != nil {
		log.Error("failed to set up telemetry", zap.Error(err))
		return err
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Error("failed to migrate database", zap.Error(err))
			return err
		}
	}
	go database.ReportPoolStats(ctx, db, cfg.Database.Driver, 30*time.Second)

	var publishers []notification.Publisher
	var cache transactions.StatsCache
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Error("failed to connect to redis", zap.Error(err))
			return err
		}
		defer rdb.Close()
		publishers = append(publishers, notification.NewRedisPublisher(rdb, log))
		if cfg.Cache.Backend == "redis" {
			cache = transactions.NewRedisStatsCache(rdb, cfg.Cache.TTL, log)
		}
	}
	if cfg.Cache.Backend == "badger" {
		bc, err := transactions.NewBadgerStatsCache(cfg.Cache.BadgerPath, cfg.Cache.TTL, log)
		if err != nil {
			log.Error("failed to open stats cache", zap.Error(err))
			return err
		}
		defer bc.Close()
		cache = bc
	}
	if cfg.Kafka.Enabled {
		kafka := notification.NewKafkaPublisher(cfg.Kafka.Brokers, log)
		defer kafka.Close()
		publishers = append(publishers, kafka)
	}
	if cfg.Webhook.Enabled {
		publishers = append(publishers, notification.NewWebhookPublisher(cfg.Webhook.URL, cfg.Webhook.Timeout, log))
	}

	var stream *notification.StreamHub
	if cfg.Notification.Stream {
		stream = notification.NewStreamHub(cfg.Notification.StreamReplay, log)
		defer stream.Close()
		publishers = append(publishers, stream)
	}

	dispatcher := notification.NewDispatcher(publishers, notification.NewOperatorDirectory(db), log, notification.Config{
		Workers:    cfg.Notification.Workers,
		QueueSize:  cfg.Notification.QueueSize,
		Timeout:    cfg.Notification.Timeout,
		Topic:      cfg.Notification.Topic,
		Permission: cfg.Notification.Permission,
	})
	dispatcher.Start()
	defer dispatcher.Stop()

	auditSvc := audit.NewService(db, log, audit.Config{
		QueueSize:     cfg.Audit.QueueSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	})
	defer auditSvc.Close()

	registry := source.NewGormRegistry(db, log)
	mode := merger.DegradeMode(cfg.Engine.DegradeMode)
	m := merger.New(registry.Readers(), merger.Config{
		BatchSize:      cfg.Engine.BatchSize,
		AdapterTimeout: cfg.Engine.AdapterTimeout,
		Mode:           mode,
	}, log)
	machine := moderation.NewMachine(registry, dispatcher, auditSvc, validation.NewValidator(log), log, cfg.Engine.StrictTransitions)

	svc := transactions.NewService(transactions.Deps{
		Registry: registry,
		Merger:   m,
		Machine:  machine,
		Bulk:     moderation.NewExecutor(machine, cfg.Engine.BulkWorkers, log),
		Exporter: export.NewExporter(m, cfg.Engine.ExportLimit, log),
		Users:    transactions.NewGormUserDirectory(db),
		Audit:    auditSvc,
		Cache:    cache,
	}, transactions.Options{
		DefaultPageLimit: cfg.Engine.DefaultPageLimit,
		MaxPageLimit:     cfg.Engine.MaxPageLimit,
		MaxBulkItems:     cfg.Engine.MaxBulkItems,
		AdapterTimeout:   cfg.Engine.AdapterTimeout,
		DegradeMode:      mode,
	}, log)

	authn := auth.Middleware(logger.Slog(log), auth.AuthorizationConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: []string{cfg.Auth.Audience},
	})

	srv := server.NewServer(cfg.Server, cfg.Tracing.ServiceName, log, db, svc, authn)
	if stream != nil {
		srv.WithStream(stream)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	log.Info("server exited properly")
	return nil
}
