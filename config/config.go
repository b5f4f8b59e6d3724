package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	DatabaseURL   string `env:"DATABASE_URL"`
	ReplicaDBPath string `env:"REPLICA_DB_PATH" envDefault:"./data/users.db"`

	JWTSecret       string        `env:"JWT_SECRET"        validate:"omitempty,min=32"`
	SessionTokenTTL time.Duration `env:"SESSION_TOKEN_TTL" envDefault:"1h"  validate:"min=1m"`
	OTPTTL          time.Duration `env:"OTP_TTL"           envDefault:"2m"  validate:"min=10s"`

	AWSRegion      string `env:"AWS_REGION"            envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"`
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`

	CodesTable       string `env:"DYNAMO_TABLE_OTP_CODES" envDefault:"otp_codes"`
	DynamoBootstrap  bool   `env:"DYNAMO_BOOTSTRAP"       envDefault:"false"`
	DeliveryTopicARN string `env:"DELIVERY_TOPIC_ARN"`
	IdentityTopicARN string `env:"IDENTITY_TOPIC_ARN"`
	DeliveryQueueURL string `env:"DELIVERY_QUEUE_URL"`
	IdentityQueueURL string `env:"IDENTITY_QUEUE_URL"`

	// Deliveries older than this are dropped; keep it above OTP_TTL.
	DeliveryStaleAfter time.Duration `env:"DELIVERY_STALE_AFTER" envDefault:"5m"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	SMSSenderID  string `env:"SMS_SENDER_ID"  validate:"omitempty,max=11"`

	WorkerCount       int           `env:"WORKER_COUNT"        envDefault:"5"       validate:"min=1,max=100"`
	PollIntervalSec   int           `env:"POLL_INTERVAL_SEC"   envDefault:"1"       validate:"min=1,max=60"`
	OutboxMaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"      validate:"min=1"`
	OutboxPurgeCron   string        `env:"OUTBOX_PURGE_CRON"   envDefault:"@hourly"`
	OutboxRetention   time.Duration `env:"OUTBOX_RETENTION"    envDefault:"72h"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ValidateAuth checks the settings cmd/auth cannot start without.
func (c *Config) ValidateAuth() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DeliveryTopicARN == "" {
		errs = append(errs, errors.New("DELIVERY_TOPIC_ARN is required"))
	}
	if c.IdentityTopicARN == "" {
		errs = append(errs, errors.New("IDENTITY_TOPIC_ARN is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) ValidateNotifier() error {
	if c.DeliveryQueueURL == "" {
		return errors.New("DELIVERY_QUEUE_URL is required")
	}
	return nil
}

func (c *Config) ValidateUser() error {
	if c.IdentityQueueURL == "" {
		return errors.New("IDENTITY_QUEUE_URL is required")
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Secure() bool {
	return c.Env == "production"
}
