package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/api"
	"github.com/lalithlochan/applytrack/internal/application"
	"github.com/lalithlochan/applytrack/internal/circuitbreaker"
	"github.com/lalithlochan/applytrack/internal/config"
	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/delivery"
	"github.com/lalithlochan/applytrack/internal/events"
	"github.com/lalithlochan/applytrack/internal/memstore"
	"github.com/lalithlochan/applytrack/internal/notify"
	"github.com/lalithlochan/applytrack/internal/observ"
	"github.com/lalithlochan/applytrack/internal/redis"
	"github.com/lalithlochan/applytrack/internal/worker"
)

// storage is satisfied by both the Postgres repository and memstore.
type storage interface {
	application.Repository
	notify.Store
	notify.Directory
	api.NotificationStore
	worker.Repository
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting applytrack server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("storage", cfg.Storage),
		zap.String("email_provider", cfg.EmailProvider),
	)

	ctx := context.Background()

	var store storage
	var health api.HealthChecker
	switch cfg.Storage {
	case "memory":
		mem := memstore.New()
		store, health = mem, mem
		logger.Warn("using in-memory storage, data is lost on restart")
	default:
		database, err := db.New(ctx, db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		logger.Info("database connection established",
			zap.String("host", cfg.DBHost),
			zap.Int("port", cfg.DBPort),
			zap.String("database", cfg.DBName),
		)
		store, health = db.NewRepository(database, logger), database
	}

	// Redis backs idempotency and rate limiting; both are skipped without it.
	var idempotency *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		defer redisClient.Close()
		idempotency = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
	}

	channel, err := newChannel(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(store, store, channel, notify.Config{
		AppName: cfg.EmailFromName,
		BaseURL: cfg.AppBaseURL,
	}, logger)

	// Registered after the storage and redis defers, so background loops
	// finish before their connections close.
	workers := newWorkerGroup()
	defer workers.Stop()

	publisher, async, err := newPublisher(ctx, workers, cfg, dispatcher, logger)
	if err != nil {
		return err
	}

	reminders := worker.NewReminders(store, dispatcher, worker.Config{
		PollInterval: time.Duration(cfg.ReminderIntervalMinutes) * time.Minute,
		Lookahead:    time.Duration(cfg.ReminderLookaheadHours) * time.Hour,
	}, logger)
	workers.Go(reminders.Start)
	logger.Info("reminder worker started")

	service := application.NewService(store, publisher, logger)
	handler := api.NewHandler(logger, api.Deps{
		Applications:  service,
		Notifications: store,
		Broadcaster:   dispatcher,
		Health:        health,
		Idempotency:   idempotency,
		Admins:        cfg.AdminUserIDs,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, rateLimiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		workers.Stop()
		if async != nil {
			async.Wait()
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// newChannel builds the configured email channel, guarded by a circuit
// breaker and throttled to the provider's send rate. The throttle sits
// outside the breaker so time spent waiting for a token never counts as a
// provider failure.
func newChannel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (delivery.Channel, error) {
	var channel delivery.Channel
	switch cfg.EmailProvider {
	case "ses":
		client, err := delivery.NewSESClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES client: %w", err)
		}
		channel = delivery.NewSESChannel(client, delivery.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "smtp":
		channel = delivery.NewSMTPChannel(delivery.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "sendgrid":
		channel = delivery.NewSendGridChannel(delivery.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	default:
		return delivery.NewLogChannel(logger), nil
	}

	breakerCfg := circuitbreaker.DefaultConfig(channel.Name())
	breakerCfg.MaxFailures = cfg.BreakerMaxFailures
	breakerCfg.RecoveryTimeout = time.Duration(cfg.BreakerRecoverySeconds) * time.Second
	breaker := circuitbreaker.New(breakerCfg, logger)

	logger.Info("email channel ready",
		zap.String("channel", channel.Name()),
		zap.Float64("rate_per_second", cfg.EmailRatePerSecond),
		zap.Int("breaker_max_failures", breakerCfg.MaxFailures),
	)

	protected := circuitbreaker.NewProtectedChannel(channel, breaker, logger)
	return delivery.NewThrottledChannel(protected, cfg.EmailRatePerSecond, 1), nil
}

// newPublisher picks the event transport. With SQS configured, events go
// through the queue and a consumer drives the dispatcher; otherwise they are
// handled in-process. The returned Async is nil when SQS is used.
func newPublisher(ctx context.Context, workers *workerGroup, cfg *config.Config, dispatcher *notify.Dispatcher, logger *zap.Logger) (events.Publisher, *events.Async, error) {
	var primary events.Publisher
	var async *events.Async

	if cfg.SQSQueueURL != "" {
		client, err := events.NewSQSClient(ctx, cfg.SQSRegion)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SQS client: %w", err)
		}
		primary = events.NewSQSPublisher(client, cfg.SQSQueueURL, logger)

		consumer := worker.NewConsumer(events.NewSQSConsumer(client, cfg.SQSQueueURL, logger), dispatcher, worker.ConsumerConfig{}, logger)
		workers.Go(consumer.Start)
		logger.Info("sqs event consumer started", zap.String("queue_url", cfg.SQSQueueURL))
	} else {
		async = events.NewAsync(dispatcher, 30*time.Second, logger)
		primary = async
	}

	if cfg.SNSTopicARN == "" {
		return primary, async, nil
	}

	snsClient, err := events.NewSNSClient(ctx, cfg.SNSRegion)
	if err != nil {
		logger.Warn("sns unavailable, events will not be fanned out", zap.Error(err))
		return primary, async, nil
	}
	logger.Info("fanning out events to sns", zap.String("topic_arn", cfg.SNSTopicARN))
	return events.NewFanout(logger, primary, events.NewSNSPublisher(snsClient, cfg.SNSTopicARN, logger)), async, nil
}

// workerGroup runs background loops until Stop.
type workerGroup struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorkerGroup() *workerGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerGroup{ctx: ctx, cancel: cancel}
}

func (g *workerGroup) Go(run func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		run(g.ctx)
	}()
}

// Stop cancels every loop and waits for in-flight work to return. It is
// safe to call more than once.
func (g *workerGroup) Stop() {
	g.cancel()
	g.wg.Wait()
}
