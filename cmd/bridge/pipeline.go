package main

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/syncbridge/eventbridge/internal/admin"
	"github.com/syncbridge/eventbridge/internal/config"
	"github.com/syncbridge/eventbridge/internal/connection"
	"github.com/syncbridge/eventbridge/internal/consumerloop"
	"github.com/syncbridge/eventbridge/internal/inbox"
	"github.com/syncbridge/eventbridge/internal/outbox"
	"github.com/syncbridge/eventbridge/internal/pkg/logger"
	"github.com/syncbridge/eventbridge/internal/processor"
	"github.com/syncbridge/eventbridge/internal/subject"
	"github.com/syncbridge/eventbridge/internal/topology"
)

// runningPipeline is everything started once a JetStream context is
// available: the topology, the consumer loop, and the outbox drain loop.
// Building it is split from main so lazy_connect can retry it in the
// background instead of blocking startup.
type runningPipeline struct {
	loop     *consumerloop.Loop
	loopDone chan struct{}
	cancelBg context.CancelFunc
}

// pipelineHolder lets the lazy_connect background goroutine publish the
// fully-started pipeline for the shutdown path to read safely.
type pipelineHolder struct {
	mu sync.Mutex
	p  *runningPipeline
}

func (h *pipelineHolder) set(p *runningPipeline) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.p = p
}

func (h *pipelineHolder) get() *runningPipeline {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p
}

// startPipeline acquires a JetStream context from sup, reconciles
// topology, and starts the consumer and outbox loops. It returns an error
// (never fatal on its own) when the transport isn't connected yet, so the
// caller can retry under lazy_connect.
func startPipeline(cfg *config.Config, sup *connection.Supervisor, db *sqlx.DB, dedupe inbox.DedupeCache, readiness *admin.Readiness, appLogger *logger.Logger) (*runningPipeline, error) {
	js, err := sup.JetStream()
	if err != nil {
		return nil, err
	}

	srcSubj, err := subject.Source(cfg.Env, cfg.AppName, cfg.DestinationApp)
	if err != nil {
		return nil, err
	}
	destSubj, err := subject.Destination(cfg.Env, cfg.AppName, cfg.DestinationApp)
	if err != nil {
		return nil, err
	}
	dlqSubj, err := subject.DLQ(cfg.Env, cfg.AppName)
	if err != nil {
		return nil, err
	}

	deliverySubject := cfg.DeliverySubject
	if cfg.ConsumerMode == config.ConsumerModePush && deliverySubject == "" {
		ds, err := subject.PushDelivery(destSubj)
		if err != nil {
			return nil, err
		}
		deliverySubject = ds.String()
	}

	manager := topology.NewManager(js, cfg.AppName, cfg.DisableJSAPI, appLogger)

	streamSpec := topology.StreamSpec{
		Name:            cfg.StreamName,
		Subjects:        []string{srcSubj.String(), destSubj.String(), dlqSubj.String()},
		DuplicateWindow: cfg.DuplicateWindow,
		Replicas:        1,
		Description:     "sync bridge event stream for " + cfg.AppName,
	}

	subSpec := topology.SubscriptionSpec{
		DurableName:     cfg.AppName + "-consumer",
		FilterSubject:   destSubj.String(),
		AckPolicy:       topology.AckPolicyExplicit,
		DeliverPolicy:   topology.DeliverPolicyAll,
		MaxDeliver:      cfg.MaxDeliver,
		AckWait:         cfg.AckWait,
		Backoff:         cfg.Backoff,
		ConsumerMode:    topology.ConsumerMode(cfg.ConsumerMode),
		DeliverySubject: deliverySubject,
		DeliverGroup:    cfg.PushConsumerGroup,
	}
	if err := subSpec.Validate(); err != nil {
		return nil, err
	}

	holder := &subscriptionHolder{}

	ensureTopology := func() error {
		if err := manager.EnsureStream(streamSpec); err != nil {
			return err
		}
		if _, err := manager.EnsureConsumer(cfg.StreamName, subSpec); err != nil {
			return err
		}
		sub, err := openSubscription(js, cfg, destSubj.String(), subSpec.DurableName, deliverySubject, subSpec.QueueGroup(cfg.AppName))
		if err != nil {
			return err
		}
		holder.set(sub)
		return nil
	}

	if cfg.AutoProvision {
		if err := ensureTopology(); err != nil {
			return nil, err
		}
	} else {
		sub, err := openSubscription(js, cfg, destSubj.String(), subSpec.DurableName, deliverySubject, subSpec.QueueGroup(cfg.AppName))
		if err != nil {
			return nil, err
		}
		holder.set(sub)
	}
	readiness.Set(true)

	onEnsure := func() error {
		readiness.Set(false)
		if connErr := sup.Connect(); connErr != nil {
			return connErr
		}
		if err := ensureTopology(); err != nil {
			return err
		}
		readiness.Set(true)
		return nil
	}

	var dlqPub processor.DlqPublisher
	if cfg.UseDLQ {
		dlqPub = &dlqPublisher{js: js, subject: dlqSubj.String()}
	}

	msgProcessor := processor.NewProcessor(processor.Config{
		MaxDeliver: cfg.MaxDeliver,
		NewEventID: func() string { return uuid.NewString() },
		NewTraceID: func() string { return uuid.NewString() },
	}, dlqPub, appLogger)

	var inboxStore inbox.Store
	if cfg.UseInbox && db != nil {
		inboxStore = inbox.NewPostgresStore(db)
	}
	inboxProc := inbox.NewProcessor(inboxStore, dedupe, appLogger)

	handler := businessHandler(&noopApplyHandler{logger: appLogger}, appLogger)
	dispatch := buildDispatch(msgProcessor, inboxProc, handler, appLogger)
	fetch := buildFetcher(holder, cfg)

	loop := consumerloop.New(consumerloop.Config{
		BatchSize:      cfg.Consumer.BatchSize,
		FetchTimeout:   cfg.Consumer.FetchTimeout,
		IdleSleep:      cfg.Consumer.IdleSleep,
		MaxIdleBackoff: cfg.Consumer.MaxIdleBackoff,
	}, fetch, dispatch, onEnsure, appLogger)

	bgCtx, cancelBg := context.WithCancel(context.Background())

	if cfg.UseOutbox && db != nil {
		store := outbox.NewPostgresStore(db)
		outboxPipeline := outbox.NewPipeline(store, js, outbox.PipelineConfig{}, appLogger)
		go runOutboxLoop(bgCtx, outboxPipeline, cfg.Consumer.IdleSleep, appLogger)
	}

	loopDone := make(chan struct{})
	go func() {
		loop.Run(bgCtx)
		close(loopDone)
	}()

	return &runningPipeline{loop: loop, loopDone: loopDone, cancelBg: cancelBg}, nil
}

// stop signals the consumer loop and background outbox loop to wind down
// and blocks until the consumer loop finishes draining or timeout elapses.
func (p *runningPipeline) stop(timeout time.Duration, appLogger *logger.Logger) {
	p.loop.Stop()
	p.cancelBg()
	select {
	case <-p.loopDone:
	case <-time.After(timeout):
		appLogger.Warn("consumer loop did not stop within timeout")
	}
}

// startPipelineWithRetry keeps retrying startPipeline on a fixed interval
// until it succeeds or ctx is cancelled, for lazy_connect's "don't block
// startup on a down transport" behavior.
func startPipelineWithRetry(ctx context.Context, cfg *config.Config, sup *connection.Supervisor, db *sqlx.DB, dedupe inbox.DedupeCache, readiness *admin.Readiness, appLogger *logger.Logger, retryDelay time.Duration) *runningPipeline {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	for {
		if ok, _ := sup.Connected(); !ok {
			if err := sup.Connect(); err != nil {
				appLogger.WithError(err).Warn("lazy_connect: nats still unreachable")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(retryDelay):
				}
				continue
			}
		}
		p, err := startPipeline(cfg, sup, db, dedupe, readiness, appLogger)
		if err == nil {
			return p
		}
		appLogger.WithError(err).Warn("lazy_connect: pipeline startup failed, retrying")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}
}
