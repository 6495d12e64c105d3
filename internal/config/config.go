// Package config loads runtime configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	Environment  string `validate:"required,oneof=development production"`
	Port         string `validate:"required"`
	DatabasePath string `validate:"required"`

	// WebhookSecret is the billing provider's endpoint signing secret.
	// Required unless unverified events are explicitly allowed.
	WebhookSecret string `validate:"required_without=AllowUnverifiedEvents"`
	// AllowUnverifiedEvents accepts unsigned payloads. Forced off in
	// production no matter what the environment says.
	AllowUnverifiedEvents bool

	DirectoryBaseURL string `validate:"required,url"`
	DirectoryToken   string

	SMTPHost     string `validate:"required"`
	SMTPPort     string `validate:"required"`
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string

	DispatchBatchSize int           `validate:"gt=0"`
	DispatchInterval  time.Duration `validate:"gt=0"`
	ReconcileInterval time.Duration `validate:"gt=0"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win.
func Load() (Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := Config{
		Environment:           envOrDefault("APP_ENV", "development"),
		Port:                  envOrDefault("PORT", "8080"),
		DatabasePath:          envOrDefault("DATABASE_PATH", "subsync.db"),
		WebhookSecret:         os.Getenv("WEBHOOK_SIGNING_SECRET"),
		AllowUnverifiedEvents: envBool("ALLOW_UNVERIFIED_EVENTS"),
		DirectoryBaseURL:      envOrDefault("DIRECTORY_BASE_URL", "http://localhost:9000"),
		DirectoryToken:        os.Getenv("DIRECTORY_TOKEN"),
		SMTPHost:              envOrDefault("SMTP_HOST", "localhost"),
		SMTPPort:              envOrDefault("SMTP_PORT", "25"),
		SMTPUsername:          os.Getenv("SMTP_USERNAME"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		SMTPSender:            os.Getenv("SMTP_SENDER"),
		DispatchBatchSize:     envInt("DISPATCH_BATCH_SIZE", 25),
		DispatchInterval:      envDuration("DISPATCH_INTERVAL", 30*time.Second),
		ReconcileInterval:     envDuration("RECONCILE_INTERVAL", 5*time.Minute),
	}

	// Unsigned events are a local development convenience only.
	if cfg.Environment == "production" {
		cfg.AllowUnverifiedEvents = false
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
