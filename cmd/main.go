package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/api"
	"github.com/fathima-sithara/conversation-service/internal/auth"
	"github.com/fathima-sithara/conversation-service/internal/config"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/kafka"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/scheduler"
	"github.com/fathima-sithara/conversation-service/internal/service"
	"github.com/fathima-sithara/conversation-service/internal/ws"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.App.Development(), Level: cfg.App.LogLevel})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	sugar := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	m := metrics.New(prometheus.DefaultRegisterer)

	var store repository.Store
	switch cfg.Store.Driver {
	case "mongo":
		mc, err := repository.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
		if err != nil {
			sugar.Fatalf("mongo init: %v", err)
		}
		ms, err := repository.NewMongoStore(ctx, mc, cfg.Mongo.DB)
		if err != nil {
			sugar.Fatalf("mongo indexes: %v", err)
		}
		store = ms
	default:
		sugar.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	var (
		sched      scheduler.Scheduler
		setHandler func(scheduler.JobHandler)
	)
	switch cfg.Scheduler.Driver {
	case "redis":
		rs := scheduler.NewRedis(rdb, clock, scheduler.RedisOptions{
			Key:          cfg.Scheduler.Key,
			PollInterval: cfg.Scheduler.PollInterval,
		}, zl.Named("scheduler"))
		go rs.Run(ctx)
		sched, setHandler = rs, rs.Handle
	default:
		ls := scheduler.NewLocal(clock)
		sched, setHandler = ls, ls.Handle
	}

	var (
		pub       events.Publisher
		subscribe func(events.Handler)
		kprod     *kafka.Producer
		kcons     *kafka.Consumer
	)
	switch cfg.Events.Driver {
	case "kafka":
		kprod = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Events.Buffer, kafka.BreakerSettings{
			MaxFailures: cfg.Kafka.Breaker.MaxFailures,
			Interval:    cfg.Kafka.Breaker.Interval,
			Timeout:     cfg.Kafka.Breaker.Timeout,
		}, zl.Named("kafka"))
		kcons = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, zl.Named("kafka"))
		go kprod.Run(ctx)
		pub = kprod
		subscribe = func(h events.Handler) { go kcons.Start(ctx, h) }
	default:
		bus := events.NewLocalBus(cfg.Events.Buffer, zl.Named("events"))
		go bus.Run(ctx)
		pub = bus
		subscribe = bus.Subscribe
	}

	svc := service.New(store, clock, sched, pub, m, zl.Named("service"), service.Config{
		TypingTTL:          cfg.Chat.TypingTTL,
		TypingMaxTTL:       cfg.Chat.TypingMaxTTL,
		TypingCleanupGrace: cfg.Chat.TypingCleanupGrace,
		OnlineWindow:       cfg.Chat.OnlineWindow,
		SearchLimit:        cfg.Chat.SearchLimit,
		BrowseLimit:        cfg.Chat.BrowseLimit,
	})
	setHandler(svc.HandleJob)

	wsrv := ws.NewServer(svc, zl.Named("ws"), m)
	subscribe(wsrv.HandleEvent)

	verifier, err := auth.NewVerifier(cfg.JWT.Alg, cfg.JWT.PublicKeyPath, cfg.JWT.HSSecret)
	if err != nil {
		sugar.Fatalf("jwt verifier: %v", err)
	}

	opts := api.Options{AllowedOrigins: cfg.CORS.AllowedOrigins, AccessLog: true}
	if cfg.Rate.Driver == "redis" {
		opts.TypingLimiter = api.NewRedisLimiter(rdb, "rl", cfg.Rate.TypingPerMin, time.Minute)
		opts.HeartbeatLimiter = api.NewRedisLimiter(rdb, "rl", cfg.Rate.HeartbeatPerMin, time.Minute)
	} else {
		tl := api.NewLocalLimiter(cfg.Rate.TypingPerMin, 10)
		hl := api.NewLocalLimiter(cfg.Rate.HeartbeatPerMin, 3)
		opts.TypingLimiter, opts.HeartbeatLimiter = tl, hl
		go sweepLimiters(ctx, 5*time.Minute, tl, hl)
	}

	app := api.NewServer(api.NewHandlers(svc, verifier, zl.Named("api")), wsrv, opts)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			sugar.Fatalf("server listen: %v", err)
		}
	}()
	sugar.Infof("conversation-service started on :%s (store=%s events=%s scheduler=%s)",
		cfg.App.PortString(), cfg.Store.Driver, cfg.Events.Driver, cfg.Scheduler.Driver)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	_ = app.ShutdownWithContext(shutdownCtx)
	if kprod != nil {
		_ = kprod.Close(shutdownCtx)
	}
	if kcons != nil {
		_ = kcons.Close(shutdownCtx)
	}
	if err := store.Close(shutdownCtx); err != nil {
		sugar.Warnw("store close", zap.Error(err))
	}
	sugar.Info("conversation-service stopped")
}

func sweepLimiters(ctx context.Context, every time.Duration, ls ...*api.LocalLimiter) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, l := range ls {
				l.Sweep(every)
			}
		}
	}
}
