package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the matching server.
// Environment variables are parsed with the STARMATCH_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	Port        int         `envconfig:"PORT" default:"8080"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// Storage: dynamo or memory
	StoreDriver   string `envconfig:"STORE_DRIVER" default:"dynamo"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`
	FlagsTable    string `envconfig:"FLAGS_TABLE" default:"Flags"`
	MembersTable  string `envconfig:"MEMBERS_TABLE" default:"Members"`
	SettingsTable string `envconfig:"SETTINGS_TABLE" default:"Settings"`

	// Per-key serialization: redis or local
	LockDriver    string        `envconfig:"LOCK_DRIVER" default:"local"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL       time.Duration `envconfig:"LOCK_TTL" default:"5s"`

	// Interaction events; empty URL disables NATS
	NatsURL           string `envconfig:"NATS_URL" default:""`
	NatsSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"interactions"`

	// Push notifications (FCM HTTP v1)
	FCMBaseURL     string        `envconfig:"FCM_BASE_URL" default:"https://fcm.googleapis.com"`
	FCMProjectID   string        `envconfig:"FCM_PROJECT_ID" default:""`
	FCMAccessToken string        `envconfig:"FCM_ACCESS_TOKEN" default:""`
	FCMTimeout     time.Duration `envconfig:"FCM_TIMEOUT" default:"5s"`

	// Error records; empty bucket keeps them in the log only
	ErrorLogBucket string `envconfig:"ERROR_LOG_BUCKET" default:""`

	NotifyWorkers      int           `envconfig:"NOTIFY_WORKERS" default:"8"`
	NotifyQueueSize    int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"1024"`
	NotifyAwaitTimeout time.Duration `envconfig:"NOTIFY_AWAIT_TIMEOUT" default:"3s"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
}

// ResolveDefaults validates the driver selections.
func (c *Config) ResolveDefaults() error {
	switch c.StoreDriver {
	case "dynamo", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	switch c.LockDriver {
	case "redis", "local":
	default:
		return fmt.Errorf("unsupported LOCK_DRIVER: %s", c.LockDriver)
	}
	if c.NotifyWorkers <= 0 {
		c.NotifyWorkers = 1
	}
	if c.NotifyQueueSize <= 0 {
		c.NotifyQueueSize = 1
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: STARMATCH_PORT, STARMATCH_STORE_DRIVER
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("STARMATCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.Port).
		Str("store_driver", cfg.StoreDriver).
		Str("lock_driver", cfg.LockDriver).
		Bool("nats_enabled", cfg.NatsURL != "").
		Bool("fcm_configured", cfg.FCMProjectID != "").
		Bool("error_bucket_set", cfg.ErrorLogBucket != "").
		Int("notify_workers", cfg.NotifyWorkers).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:        EnvTesting,
		Port:               8080,
		LogLevel:           "debug",
		StoreDriver:        "memory",
		LockDriver:         "local",
		LockTTL:            time.Second,
		NatsSubjectPrefix:  "interactions",
		FCMBaseURL:         "http://localhost:0",
		FCMTimeout:         time.Second,
		NotifyWorkers:      2,
		NotifyQueueSize:    16,
		NotifyAwaitTimeout: time.Second,
		RequestTimeout:     time.Second,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
