package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Storage backend: postgres or memory
	Storage string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config, optional
	RedisHost          string
	RedisPort          int
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	// Email delivery
	EmailProvider      string // ses, smtp, sendgrid or log
	EmailFrom          string
	EmailFromName      string
	EmailRatePerSecond float64
	AWSRegion          string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	SendGridAPIKey string

	// Event transport. Without a queue URL events are handled in-process.
	SQSRegion   string
	SQSQueueURL string
	SNSRegion   string
	SNSTopicARN string

	AppBaseURL string

	ReminderIntervalMinutes int
	ReminderLookaheadHours  int

	BreakerMaxFailures     int
	BreakerRecoverySeconds int

	// AdminUserIDs may call operator endpoints such as broadcast.
	AdminUserIDs []int64
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is read first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",
		Storage:  "postgres",

		// Local postgres defaults
		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "applytrack",
		DBName:    "applytrack",
		DBSSLMode: "disable",

		RedisHost:          "localhost",
		RedisPort:          6379,
		RateLimitPerMinute: 100,

		EmailProvider:      "log",
		EmailFrom:          "noreply@applytrack.local",
		EmailFromName:      "ApplyTrack",
		EmailRatePerSecond: 14,
		AWSRegion:          "us-east-1",

		SMTPHost: "localhost",
		SMTPPort: 587,

		AppBaseURL: "http://localhost:3000",

		ReminderIntervalMinutes: 15,
		ReminderLookaheadHours:  24,

		BreakerMaxFailures:     5,
		BreakerRecoverySeconds: 30,
	}

	var err error
	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if storage := os.Getenv("STORAGE"); storage != "" {
		if storage != "postgres" && storage != "memory" {
			return nil, fmt.Errorf("invalid STORAGE: %q (want postgres or memory)", storage)
		}
		cfg.Storage = storage
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}
	if cfg.DBPort, err = intEnv("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
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
	if cfg.RedisPort, err = intEnv("REDIS_PORT", cfg.RedisPort); err != nil {
		return nil, err
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}

	// Email config
	if provider := os.Getenv("EMAIL_PROVIDER"); provider != "" {
		switch provider {
		case "ses", "smtp", "sendgrid", "log":
			cfg.EmailProvider = provider
		default:
			return nil, fmt.Errorf("invalid EMAIL_PROVIDER: %q (want ses, smtp, sendgrid or log)", provider)
		}
	}
	if from := os.Getenv("EMAIL_FROM"); from != "" {
		cfg.EmailFrom = from
	}
	if name := os.Getenv("EMAIL_FROM_NAME"); name != "" {
		cfg.EmailFromName = name
	}
	if r := os.Getenv("EMAIL_RATE_PER_SECOND"); r != "" {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid EMAIL_RATE_PER_SECOND: %q", r)
		}
		cfg.EmailRatePerSecond = v
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTPHost = host
	}
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		cfg.SMTPUsername = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTPPassword = pass
	}

	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		cfg.SendGridAPIKey = key
	}
	if cfg.EmailProvider == "sendgrid" && cfg.SendGridAPIKey == "" {
		return nil, errors.New("SENDGRID_API_KEY is required when EMAIL_PROVIDER=sendgrid")
	}

	// Event transport
	if region := os.Getenv("SQS_REGION"); region != "" {
		cfg.SQSRegion = region
	} else {
		cfg.SQSRegion = cfg.AWSRegion
	}
	if url := os.Getenv("SQS_QUEUE_URL"); url != "" {
		cfg.SQSQueueURL = url
	}
	if region := os.Getenv("SNS_REGION"); region != "" {
		cfg.SNSRegion = region
	} else {
		cfg.SNSRegion = cfg.AWSRegion
	}
	if arn := os.Getenv("SNS_TOPIC_ARN"); arn != "" {
		cfg.SNSTopicARN = arn
	}

	if base := os.Getenv("APP_BASE_URL"); base != "" {
		cfg.AppBaseURL = base
	}

	if cfg.ReminderIntervalMinutes, err = intEnv("REMINDER_INTERVAL_MINUTES", cfg.ReminderIntervalMinutes); err != nil {
		return nil, err
	}
	if cfg.ReminderLookaheadHours, err = intEnv("REMINDER_LOOKAHEAD_HOURS", cfg.ReminderLookaheadHours); err != nil {
		return nil, err
	}

	if cfg.BreakerMaxFailures, err = intEnv("BREAKER_MAX_FAILURES", cfg.BreakerMaxFailures); err != nil {
		return nil, err
	}
	if cfg.BreakerRecoverySeconds, err = intEnv("BREAKER_RECOVERY_SECONDS", cfg.BreakerRecoverySeconds); err != nil {
		return nil, err
	}

	if cfg.AdminUserIDs, err = idListEnv("ADMIN_USER_IDS"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// idListEnv parses a comma-separated list of positive user ids.
func idListEnv(key string) ([]int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid %s: %q is not a user id", key, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}
