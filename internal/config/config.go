package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config (dedup fast path and API rate limiting; optional)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Scheduler
	TickInterval        time.Duration // resolution of the scheduling clock
	DefaultPollInterval time.Duration // used when a mailbox config has none

	// Mailbox client
	MailboxConnectTimeout time.Duration
	MailboxReadTimeout    time.Duration
	MailboxMaxAttempts    int // connect attempts per poll tick before escalating

	// Notification delivery
	WorkerCount      int
	QueueCapacity    int
	MaxSendAttempts  int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	ProviderTimeout  time.Duration
	ReclaimInterval  time.Duration // how often due pending records are re-enqueued
	ReclaimBatchSize int

	// AWS services
	AWSRegion     string
	SNSRegion     string // region for SNS (SMS sends and the alert topic)
	AlertTopicARN string // SNS topic for operator alerts; empty disables
	SESFromEmail  string
	AdminEmail    string // operator address for SES alert mail; empty disables

	// SQS ingestion event stream (optional)
	SQSRegion      string
	EventsQueueURL string

	// Chat provider
	ChatWebhookURL     string
	ChatWebhookTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "orderpulse",
		DBPassword: "",
		DBName:     "orderpulse",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		TickInterval:        5 * time.Second,
		DefaultPollInterval: 5 * time.Minute,

		MailboxConnectTimeout: 15 * time.Second,
		MailboxReadTimeout:    30 * time.Second,
		MailboxMaxAttempts:    3,

		WorkerCount:      8,
		QueueCapacity:    256,
		MaxSendAttempts:  5,
		RetryBaseDelay:   30 * time.Second,
		RetryMaxDelay:    15 * time.Minute,
		ProviderTimeout:  20 * time.Second,
		ReclaimInterval:  30 * time.Second,
		ReclaimBatchSize: 50,

		AWSRegion:    "ap-northeast-2",
		SESFromEmail: "alerts@orderpulse.local",

		ChatWebhookTimeout: 30 * time.Second,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Scheduler
	if err := loadDuration("TICK_INTERVAL", &cfg.TickInterval); err != nil {
		return nil, err
	}
	if err := loadDuration("DEFAULT_POLL_INTERVAL", &cfg.DefaultPollInterval); err != nil {
		return nil, err
	}

	// Mailbox client
	if err := loadDuration("MAILBOX_CONNECT_TIMEOUT", &cfg.MailboxConnectTimeout); err != nil {
		return nil, err
	}
	if err := loadDuration("MAILBOX_READ_TIMEOUT", &cfg.MailboxReadTimeout); err != nil {
		return nil, err
	}
	if err := loadInt("MAILBOX_MAX_ATTEMPTS", &cfg.MailboxMaxAttempts); err != nil {
		return nil, err
	}

	// Notification delivery
	if err := loadInt("WORKER_COUNT", &cfg.WorkerCount); err != nil {
		return nil, err
	}
	if err := loadInt("QUEUE_CAPACITY", &cfg.QueueCapacity); err != nil {
		return nil, err
	}
	if err := loadInt("MAX_SEND_ATTEMPTS", &cfg.MaxSendAttempts); err != nil {
		return nil, err
	}
	if err := loadDuration("RETRY_BASE_DELAY", &cfg.RetryBaseDelay); err != nil {
		return nil, err
	}
	if err := loadDuration("RETRY_MAX_DELAY", &cfg.RetryMaxDelay); err != nil {
		return nil, err
	}
	if err := loadDuration("PROVIDER_TIMEOUT", &cfg.ProviderTimeout); err != nil {
		return nil, err
	}
	if err := loadDuration("RECLAIM_INTERVAL", &cfg.ReclaimInterval); err != nil {
		return nil, err
	}
	if err := loadInt("RECLAIM_BATCH_SIZE", &cfg.ReclaimBatchSize); err != nil {
		return nil, err
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	// SNS config for SMS and the alert topic
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}

	if arn := os.Getenv("ALERT_TOPIC_ARN"); arn != "" {
		cfg.AlertTopicARN = arn
	}

	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SESFromEmail = from
	}

	if admin := os.Getenv("ADMIN_EMAIL"); admin != "" {
		cfg.AdminEmail = admin
	}

	// SQS config
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}

	if url := os.Getenv("EVENTS_QUEUE_URL"); url != "" {
		cfg.EventsQueueURL = url
	}

	if url := os.Getenv("CHAT_WEBHOOK_URL"); url != "" {
		cfg.ChatWebhookURL = url
	}

	if err := loadDuration("CHAT_WEBHOOK_TIMEOUT", &cfg.ChatWebhookTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func loadInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}
