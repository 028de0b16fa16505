package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/alerts"
	"github.com/orderpulse/orderpulse/internal/api"
	"github.com/orderpulse/orderpulse/internal/circuitbreaker"
	"github.com/orderpulse/orderpulse/internal/config"
	"github.com/orderpulse/orderpulse/internal/events"
	"github.com/orderpulse/orderpulse/internal/mailbox"
	"github.com/orderpulse/orderpulse/internal/match"
	"github.com/orderpulse/orderpulse/internal/notify"
	"github.com/orderpulse/orderpulse/internal/observ"
	"github.com/orderpulse/orderpulse/internal/pipeline"
	"github.com/orderpulse/orderpulse/internal/redis"
	"github.com/orderpulse/orderpulse/internal/schedule"
	"github.com/orderpulse/orderpulse/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting orderpulse server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Initialize database connection
	ctx := context.Background()
	database, err := store.New(ctx, store.Config{
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

	// Initialize repositories
	messages := store.NewMessageRepository(database, logger)
	notifications := store.NewNotificationRepository(database, logger)
	directory := store.NewDirectoryRepository(database, logger)

	// Initialize Redis for the dedup fast path and API rate limiting. The
	// service runs without it; the database constraints carry the guarantees.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedup cache and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var dedup pipeline.Deduper
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		dedup = redis.NewDedupFilter(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  100,             // 100 requests
			Window: 1 * time.Minute, // per minute per tenant
		})
		defer redisClient.Close()
	}

	// Operator alerting: always log, add the SNS topic and SES email when
	// configured.
	notifiers := []alerts.Notifier{alerts.NewLogNotifier(logger)}
	if cfg.AlertTopicARN != "" {
		topic, err := alerts.NewTopicNotifier(ctx, cfg.SNSRegion, cfg.AlertTopicARN, logger)
		if err != nil {
			logger.Warn("alert topic unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, topic)
		}
	}
	if cfg.AdminEmail != "" {
		email, err := alerts.NewEmailNotifier(ctx, alerts.EmailConfig{
			Region:     cfg.AWSRegion,
			FromEmail:  cfg.SESFromEmail,
			AdminEmail: cfg.AdminEmail,
		}, logger)
		if err != nil {
			logger.Warn("alert email unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, email)
		}
	}
	alerter := alerts.NewMulti(notifiers...)

	// Lifecycle event stream (optional)
	var publisher *events.Publisher
	if cfg.EventsQueueURL != "" {
		publisher, err = events.NewPublisher(ctx, events.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.EventsQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("event publisher unavailable, lifecycle events disabled",
				zap.Error(err),
			)
			publisher = nil
		}
	}

	// Notification providers, each behind its own circuit breaker
	providers := make(map[string]notify.Provider)

	smsProvider, err := notify.NewSMSProvider(ctx, notify.SMSConfig{Region: cfg.SNSRegion}, logger)
	if err != nil {
		logger.Warn("SNS unavailable, SMS notifications disabled", zap.Error(err))
	} else {
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("sms"), logger)
		providers[store.ChannelSMS] = notify.NewProtectedProvider(smsProvider, breaker)
	}

	if cfg.ChatWebhookURL != "" {
		chatProvider := notify.NewChatProvider(notify.ChatConfig{
			WebhookURL: cfg.ChatWebhookURL,
			Timeout:    cfg.ChatWebhookTimeout,
		}, logger)
		breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("chat"), logger)
		providers[store.ChannelChat] = notify.NewProtectedProvider(chatProvider, breaker)
	}

	logger.Info("notification providers initialized",
		zap.Bool("sms_enabled", providers[store.ChannelSMS] != nil),
		zap.Bool("chat_enabled", providers[store.ChannelChat] != nil),
	)

	// Notification delivery: queue, dispatcher, worker pool, reclaimer
	queue := notify.NewQueue(cfg.QueueCapacity)
	defer queue.Close()

	dispatcher := notify.NewDispatcher(directory, notifications, queue, logger)

	retry := notify.RetryPolicy{
		MaxAttempts: cfg.MaxSendAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	pool := notify.NewPool(queue, notifications, directory, messages, providers, retry, alerter, notify.PoolConfig{
		Workers:         cfg.WorkerCount,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	pool.Start(workerCtx)

	reclaimer := notify.NewReclaimer(notifications, queue, notify.ReclaimerConfig{
		Interval:  cfg.ReclaimInterval,
		BatchSize: cfg.ReclaimBatchSize,
	}, logger)
	go reclaimer.Run(workerCtx)

	// Ingestion pipeline
	matcher := match.NewAccountMatcher(directory, logger)
	ingestor := pipeline.New(messages, directory, matcher, dedup, dispatcher, publisher, alerter, logger)

	// Mailbox polling schedule
	dialer := &mailbox.IMAPDialer{
		ConnectTimeout: cfg.MailboxConnectTimeout,
		ReadTimeout:    cfg.MailboxReadTimeout,
		Logger:         logger,
	}

	factory := func(mc *store.MailboxConfig) schedule.Poller {
		return mailbox.NewPoller(mc, dialer, ingestor, alerter, mailbox.PollerConfig{
			MaxAttempts: cfg.MailboxMaxAttempts,
		}, logger)
	}

	registry := schedule.NewRegistry(directory, factory, schedule.Config{
		TickInterval:    cfg.TickInterval,
		DefaultInterval: cfg.DefaultPollInterval,
	}, logger)

	if err := registry.ReloadAll(ctx); err != nil {
		return fmt.Errorf("failed to load mailbox schedule: %w", err)
	}
	go registry.Run(workerCtx)

	logger.Info("mailbox scheduler started",
		zap.Int("mailboxes", len(registry.Status())),
	)

	// HTTP API
	handler := api.NewHandler(logger, messages, notifications, registry, database)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Mount("/", handler.Routes(
		api.RateLimitMiddleware(rateLimiter, logger, api.TenantKeyFunc),
	))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// Stop pollers and workers, then let in-flight sends finish.
		workerCancel()
		pool.Wait()

		logger.Info("server stopped gracefully")
	}

	return nil
}
