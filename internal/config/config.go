// Package config defines the global configuration structure for the StudyPal
// backend. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"studypal/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the StudyPal backend.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Quota      QuotaConfig
	Billing    BillingConfig
	Completion CompletionConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL for payment redirects (no trailing slash)
	AppURL             string   `envconfig:"APP_URL" validate:"required,url"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the connection settings for the shared quota counter store.
// When Addr is empty the service falls back to the in-process quota store,
// which is only safe for single-instance deployments and local development.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// QuotaConfig holds the metering policy knobs.
type QuotaConfig struct {
	// AnonymousLimit is the number of chat requests an anonymous network
	// address may make per calendar month.
	AnonymousLimit int `envconfig:"QUOTA_ANONYMOUS_LIMIT" default:"10"`
	// FreeTierLimit is the per-month allowance for signed-in accounts
	// without an entitled subscription.
	FreeTierLimit int `envconfig:"QUOTA_FREE_TIER_LIMIT" default:"10"`
	// FailOpen controls behavior when the quota store or ledger is
	// unreachable during authorization: true allows the request through
	// (availability over strict enforcement), false denies it.
	FailOpen bool `envconfig:"QUOTA_FAIL_OPEN" default:"true"`
	// RefundOnFailure refunds the charged quota unit when the completion
	// provider call fails. Off by default: quota is charged on attempt.
	RefundOnFailure bool `envconfig:"QUOTA_REFUND_ON_FAILURE" default:"false"`
}

// BillingConfig holds payment provider credentials and webhook settings.
type BillingConfig struct {
	// DodoAPIKey authenticates outbound payment-link creation calls.
	DodoAPIKey SecretString `envconfig:"DODO_PAYMENTS_API_KEY"`
	// WebhookSecret is the shared HMAC secret for inbound webhook
	// verification. Empty disables verification; the server logs a
	// prominent warning at startup so dev mode is a conscious state.
	WebhookSecret SecretString `envconfig:"DODO_PAYMENTS_WEBHOOK_SECRET"`
	// BaseURL overrides the provider API endpoint for testing.
	BaseURL string `envconfig:"DODO_PAYMENTS_BASE_URL" default:"https://api.dodopayments.com"`
}

// CompletionConfig holds the outbound completion-provider settings.
type CompletionConfig struct {
	APIKey  SecretString  `envconfig:"GEMINI_API_KEY"`
	Model   string        `envconfig:"COMPLETION_MODEL" default:"gemini-1.5-flash"`
	Timeout time.Duration `envconfig:"COMPLETION_TIMEOUT" default:"30s"`
	// BaseURL overrides the provider API endpoint for testing.
	BaseURL string `envconfig:"COMPLETION_BASE_URL" default:"https://generativelanguage.googleapis.com"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
