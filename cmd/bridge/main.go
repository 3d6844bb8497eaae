// Command bridge runs the full event-transport daemon described in
// spec.md: connection supervisor, topology reconciliation, the outbox
// publisher drain loop, the inbox/message-processor consumer loop, and
// the admin HTTP surface, wired together the way the teacher's
// cmd/rating-worker composes its own workers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/syncbridge/eventbridge/internal/admin"
	"github.com/syncbridge/eventbridge/internal/config"
	"github.com/syncbridge/eventbridge/internal/connection"
	"github.com/syncbridge/eventbridge/internal/inbox"
	"github.com/syncbridge/eventbridge/internal/pkg/cache"
	"github.com/syncbridge/eventbridge/internal/pkg/database"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Env)
	logger.SetGlobalLogger(appLogger)
	appLogger.WithFields(map[string]any{"app": cfg.AppName, "peer": cfg.DestinationApp}).Info("starting bridge")

	db := openDatabase(cfg, appLogger)
	if db != nil {
		defer db.Close()
	}

	var dedupe inbox.DedupeCache
	if cfg.UseInbox && cfg.Redis.Enabled {
		redisClient, err := cache.WaitForRedis(cfg, 10, 2*time.Second)
		if err != nil {
			appLogger.Fatal("failed to connect to redis", err)
		}
		defer redisClient.Close()
		dedupe = cache.NewDedupe(redisClient, cfg.DuplicateWindow)
	}

	sup, err := connection.New(cfg.NatsURLs, appLogger)
	if err != nil {
		appLogger.Fatal("invalid nats configuration", err)
	}
	defer sup.Disconnect()

	readiness := &admin.Readiness{}
	adminServer := admin.New(":"+cfg.Consumer.AdminHTTPPort, sup, readiness, appLogger)
	go func() {
		if err := adminServer.ListenAndServe(); err != nil {
			appLogger.WithError(err).Error("admin server stopped unexpectedly", err)
		}
	}()

	bgCtx, bgCancel := context.WithCancel(context.Background())

	pipelineBox := &pipelineHolder{}
	if err := connectWithRetry(sup, cfg.ConnectRetryAttempts, cfg.ConnectRetryDelay, appLogger); err != nil {
		if !cfg.LazyConnect {
			appLogger.Fatal("failed to connect to nats", err)
		}
		// lazy_connect tolerates a down transport at startup: the admin
		// server is already serving an unhealthy /healthz, and a
		// background goroutine keeps retrying until the transport and
		// topology are both ready.
		appLogger.WithError(err).Warn("nats unreachable at startup, continuing with lazy_connect")
		go func() {
			pipelineBox.set(startPipelineWithRetry(bgCtx, cfg, sup, db, dedupe, readiness, appLogger, cfg.ConnectRetryDelay))
		}()
	} else {
		p, err := startPipeline(cfg, sup, db, dedupe, readiness, appLogger)
		if err != nil {
			appLogger.Fatal("failed to reconcile topology", err)
		}
		pipelineBox.set(p)
	}

	appLogger.Info("bridge is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	appLogger.Info("received shutdown signal")

	bgCancel()
	if p := pipelineBox.get(); p != nil {
		p.stop(30*time.Second, appLogger)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("admin server shutdown error", err)
	}

	appLogger.Info("bridge stopped")
}

func openDatabase(cfg *config.Config, appLogger *logger.Logger) *sqlx.DB {
	if !cfg.UseOutbox && !cfg.UseInbox {
		return nil
	}
	db, err := database.WaitForDB(cfg, 10, 2*time.Second)
	if err != nil {
		appLogger.Fatal("failed to connect to database", err)
	}
	if cfg.AutoProvision {
		if err := database.RunMigrations(db); err != nil {
			appLogger.Fatal("failed to run migrations", err)
		}
	}
	return db
}
