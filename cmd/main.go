package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/mailbox-service/internal/api"
	"github.com/fathima-sithara/mailbox-service/internal/auth"
	"github.com/fathima-sithara/mailbox-service/internal/collector"
	"github.com/fathima-sithara/mailbox-service/internal/config"
	"github.com/fathima-sithara/mailbox-service/internal/discovery"
	"github.com/fathima-sithara/mailbox-service/internal/dispatch"
	"github.com/fathima-sithara/mailbox-service/internal/kafka"
	"github.com/fathima-sithara/mailbox-service/internal/lock"
	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/notify"
	"github.com/fathima-sithara/mailbox-service/internal/presence"
	rstore "github.com/fathima-sithara/mailbox-service/internal/redis"
	"github.com/fathima-sithara/mailbox-service/internal/repository"
	"github.com/fathima-sithara/mailbox-service/internal/service"
	"github.com/fathima-sithara/mailbox-service/internal/storage"
	"github.com/fathima-sithara/mailbox-service/internal/utils"
	"github.com/fathima-sithara/mailbox-service/internal/ws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Dev())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Mongo
	mc, err := repository.NewMongoClient(cfg)
	if err != nil {
		logger.Fatalf("mongo init: %v", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.Database)
	msgs := repository.NewMongoMessageRepo(db)
	boxes := repository.NewMongoMailboxRepo(db)
	tokens := repository.NewMongoTokenRepo(db)
	tx := repository.NewMongoTransactor(mc, cfg.Mongo.UseTransactions)

	// Redis: presence mirror, optional pair lock
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
	redisErr := rdb.Ping(pctx).Err()
	pcancel()

	var locker lock.Locker = lock.NewKeyedMutex()
	var mirror *rstore.PresenceStore
	switch {
	case redisErr == nil:
		mirror = rstore.NewPresenceStore(rdb, cfg.Redis.Prefix, cfg.PresenceTTL)
		if cfg.Lock.Backend == "redis" {
			locker = rstore.NewLocker(rdb, cfg.Redis.Prefix, cfg.LockTTL, logger)
		}
	case cfg.Lock.Backend == "redis":
		logger.Fatalf("redis required for lock.backend=redis: %v", redisErr)
	default:
		logger.Warnw("redis unavailable, presence mirror disabled", "err", redisErr)
	}

	// files
	var files storage.FileStore
	localDir := ""
	switch cfg.Storage.Backend {
	case "s3":
		files, err = storage.NewS3Store(ctx, cfg.Storage.Region, cfg.Storage.Bucket, cfg.Storage.Endpoint)
	default:
		var ls *storage.LocalStore
		ls, err = storage.NewLocalStore(cfg.Storage.LocalDir, "/files")
		files, localDir = ls, cfg.Storage.LocalDir
	}
	if err != nil {
		logger.Fatalf("storage init: %v", err)
	}

	// push
	var gateway notify.Gateway = notify.NewLogGateway(logger)
	if cfg.Push.Provider == "fcm" {
		fcm, err := notify.NewFCMGateway(ctx, cfg.Push.CredentialsFile)
		if err != nil {
			logger.Fatalf("fcm init: %v", err)
		}
		gateway = fcm
	}
	gateway = notify.NewBreakerGateway(gateway, cfg.Push.BreakerFailures, cfg.BreakerTimeout, logger)

	jv, err := auth.NewValidator(cfg.JWT.Alg, cfg.JWT.HSSecret, cfg.JWT.PublicKeyPath)
	if err != nil {
		logger.Fatalf("jwt init: %v", err)
	}

	registry := presence.NewRegistry()
	var wsMirror ws.PresenceMirror
	var apiMirror api.PresenceReader
	if mirror != nil {
		wsMirror, apiMirror = mirror, mirror
	}
	wsrv := ws.NewServer(registry, wsMirror, m, ws.Config{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
	}, logger)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer func() { _ = producer.Close() }()

	svc := service.New(service.Deps{
		Messages:    msgs,
		Mailboxes:   boxes,
		Tokens:      tokens,
		Tx:          tx,
		Locker:      locker,
		Dispatcher:  dispatch.New(registry, wsrv, tokens, boxes, gateway, m, logger),
		Collector:   collector.New(msgs, boxes, files, m, logger),
		Files:       files,
		Events:      producer,
		Clock:       utils.NewClock(),
		Metrics:     m,
		Log:         logger,
		PushTitle:   cfg.Push.Title,
		MaxImages:   cfg.Storage.MaxImages,
		MaxImageDim: cfg.Storage.MaxImageDim,
	})

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBlocks, cfg.Kafka.GroupID, svc,
		cfg.Kafka.MaxRetries, cfg.Kafka.RetryBackoffMs, logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			logger.Errorw("block consumer stopped", "err", err)
		}
	}()

	var limiter *api.UserRateLimiter
	if cfg.App.SendsPerMinute > 0 {
		limiter = api.NewUserRateLimiter(cfg.App.SendsPerMinute, logger)
		go func() {
			t := time.NewTicker(time.Minute)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					limiter.Sweep(10 * time.Minute)
				}
			}
		}()
	}

	app := api.NewServer(api.Deps{
		Service:   svc,
		Validator: jv,
		WS:        wsrv,
		Registry:  registry,
		Mirror:    apiMirror,
		Files:     files,
		LocalDir:  localDir,
		Gatherer:  reg,
		Limiter:   limiter,
		Log:       logger,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		logger.Infof("starting mailbox service on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatalf("listen failed: %v", err)
		}
	}()

	var registrar *discovery.Registrar
	if cfg.Consul.Addr != "" {
		registrar, err = discovery.NewRegistrar(cfg.Consul.Addr, cfg.Consul.ServiceName, cfg.Consul.ServiceHost, cfg.App.Port, logger)
		if err == nil {
			err = registrar.Register()
		}
		if err != nil {
			logger.Warnw("consul registration failed", "err", err)
			registrar = nil
		}
	}

	<-ctx.Done()
	logger.Info("shutdown requested")
	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			logger.Warnw("consul deregister", "err", err)
		}
	}
	timeoutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	wsrv.CloseAll()
	if err := app.ShutdownWithContext(timeoutCtx); err != nil {
		logger.Warnw("http shutdown", "err", err)
	}
	_ = consumer.Close()
	<-consumerDone
	logger.Info("shutdown completed")
}
