package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"backoffice/pkg/errors"
)

type Config struct {
	App           AppConfig
	Server        ServerConfig
	Postgres      PostgresConfig
	RemoteAPI     RemoteAPIConfig
	Bridge        BridgeConfig
	Engine        EngineConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"backoffice"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type ServerConfig struct {
	Port    int    `envconfig:"SERVER_PORT" default:"8080"`
	APIKey  string `envconfig:"SERVER_API_KEY"`
	Version string `envconfig:"SERVER_VERSION" default:"dev"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"invoices"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RemoteAPIConfig describes the hosted tool execution API consumed by the dispatcher.
type RemoteAPIConfig struct {
	BaseURL         string        `envconfig:"REMOTE_API_URL"`
	APIKey          string        `envconfig:"REMOTE_API_KEY"`
	Timeout         time.Duration `envconfig:"REMOTE_API_TIMEOUT" default:"120s"`
	RateLimit       float64       `envconfig:"REMOTE_API_RATE_LIMIT" default:"10"`
	RateBurst       int           `envconfig:"REMOTE_API_RATE_BURST" default:"5"`
	BreakerFailures uint32        `envconfig:"REMOTE_API_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"REMOTE_API_BREAKER_TIMEOUT" default:"30s"`

	// AllowSynthetic enables explicitly tagged placeholder results when the
	// backend is unreachable. Intended for local development only.
	AllowSynthetic bool `envconfig:"REMOTE_API_ALLOW_SYNTHETIC" default:"false"`
}

// BridgeConfig covers both sides of the bridge protocol: the orchestrator's
// client defaults and the bridge server's own listen settings.
type BridgeConfig struct {
	URL     string        `envconfig:"BRIDGE_URL" default:"http://localhost:8081"`
	Secret  string        `envconfig:"BRIDGE_SECRET"`
	Port    int           `envconfig:"BRIDGE_PORT" default:"8081"`
	Table   string        `envconfig:"BRIDGE_TABLE" default:"invoices"`
	Timeout time.Duration `envconfig:"BRIDGE_TIMEOUT" default:"30s"`
}

type EngineConfig struct {
	// StrictInputs fails an agent whose declared input keys are missing from
	// the shared context instead of running it with a partial payload.
	StrictInputs   bool          `envconfig:"ENGINE_STRICT_INPUTS" default:"false"`
	DefaultTimeout time.Duration `envconfig:"ENGINE_DEFAULT_TIMEOUT" default:"300s"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables, with .env support
func Load() (*Config, error) {
	// Load .env file if present (ignored in production deployments)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
