// Command outbox-publisher runs only the transactional outbox's drain
// loop, for deployments that split publishing onto its own process
// rather than running it inside cmd/bridge, per spec.md section 4.3's
// "standalone outbox-drain-only process" deployment shape, mirroring the
// teacher's split between cmd/api and cmd/rating-worker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/syncbridge/eventbridge/internal/config"
	"github.com/syncbridge/eventbridge/internal/connection"
	"github.com/syncbridge/eventbridge/internal/outbox"
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
	appLogger.Info("starting outbox publisher")

	if !cfg.UseOutbox {
		appLogger.Fatal("use_outbox is false; nothing for this process to drain", nil)
	}

	db, err := database.WaitForDB(cfg, 10, 2*time.Second)
	if err != nil {
		appLogger.Fatal("failed to connect to database", err)
	}
	defer db.Close()

	sup, err := connection.New(cfg.NatsURLs, appLogger)
	if err != nil {
		appLogger.Fatal("invalid nats configuration", err)
	}
	defer sup.Disconnect()

	for attempt := 1; ; attempt++ {
		if err := sup.Connect(); err == nil {
			break
		} else if attempt >= cfg.ConnectRetryAttempts {
			appLogger.Fatal("failed to connect to nats", err)
		} else {
			appLogger.WithFields(map[string]any{"attempt": attempt}).Warn("nats connect failed, retrying")
			time.Sleep(cfg.ConnectRetryDelay)
		}
	}

	js, err := sup.JetStream()
	if err != nil {
		appLogger.Fatal("failed to acquire jetstream context", err)
	}

	store := outbox.NewPostgresStore(db)
	pipeline := outbox.NewPipeline(store, js, outbox.PipelineConfig{}, appLogger)

	ctx, cancel := context.WithCancel(context.Background())

	idleSleep := cfg.Consumer.IdleSleep
	if idleSleep <= 0 {
		idleSleep = time.Second
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(idleSleep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := pipeline.DrainOnce(ctx)
				if err != nil {
					appLogger.WithError(err).Error("outbox: drain failed", err)
					continue
				}
				if n > 0 {
					appLogger.WithFields(map[string]any{"claimed": n}).Debug("outbox: drained batch")
				}
			}
		}
	}()

	appLogger.Info("outbox publisher is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	appLogger.Info("received shutdown signal")

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		appLogger.Warn("drain loop did not stop within timeout")
	}

	appLogger.Info("outbox publisher stopped")
}
