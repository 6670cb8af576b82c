// Package config defines the global configuration structure for the guest
// fulfillment service. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"guestflow/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the service. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"guestflow"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Payment   PaymentConfig
	Lock      LockConfig
	WhatsApp  WhatsAppConfig
	Email     EmailConfig
	Scheduler SchedulerConfig
	Templates TemplatesConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for guest-facing links (no trailing slash)
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	CheckInBaseURL string `envconfig:"CHECKIN_BASE_URL" validate:"required,url"`

	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	ConnectTimeout    time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"2s"`     // Fail fast when the server is unreachable
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// QueueConfig holds the Redis job queue settings. With Enabled set to false
// jobs execute inline in the caller's goroutine, which keeps local
// development free of a Redis dependency.
type QueueConfig struct {
	Enabled  bool         `envconfig:"QUEUE_ENABLED" default:"true"`
	RedisURL SecretString `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	Concurrency  int           `envconfig:"QUEUE_CONCURRENCY" default:"5"`
	JobsPerSec   float64       `envconfig:"QUEUE_JOBS_PER_SEC" default:"10"`
	MaxAttempts  int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"3"`
	BaseBackoff  time.Duration `envconfig:"QUEUE_BASE_BACKOFF" default:"5s"`
	PollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
}

// PaymentConfig holds payment-link provider credentials. Provider selects the
// implementation: "bold" (default) or "stripe".
type PaymentConfig struct {
	Provider string `envconfig:"PAYMENT_PROVIDER" default:"bold"`

	BoldAPIKey  SecretString `envconfig:"BOLD_API_KEY"`
	BoldBaseURL string       `envconfig:"BOLD_BASE_URL" default:"https://integrations.api.bold.co"`

	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY"`

	WebhookSecret SecretString `envconfig:"PAYMENT_WEBHOOK_SECRET" validate:"required"`

	LinkExpiry time.Duration `envconfig:"PAYMENT_LINK_EXPIRY" default:"168h"`
}

// LockConfig holds smart-lock provider credentials.
type LockConfig struct {
	ClientID     string       `envconfig:"TTLOCK_CLIENT_ID" validate:"required"`
	ClientSecret SecretString `envconfig:"TTLOCK_CLIENT_SECRET" validate:"required"`
	Username     string       `envconfig:"TTLOCK_USERNAME" validate:"required"`
	Password     SecretString `envconfig:"TTLOCK_PASSWORD" validate:"required"`
	BaseURL      string       `envconfig:"TTLOCK_BASE_URL" default:"https://euapi.ttlock.com"`
}

// WhatsAppConfig holds WhatsApp Business API credentials.
type WhatsAppConfig struct {
	AccessToken   SecretString `envconfig:"WHATSAPP_ACCESS_TOKEN" validate:"required"`
	PhoneNumberID string       `envconfig:"WHATSAPP_PHONE_NUMBER_ID" validate:"required"`
	BaseURL       string       `envconfig:"WHATSAPP_BASE_URL" default:"https://graph.facebook.com/v19.0"`
}

// EmailConfig holds email delivery provider credentials.
type EmailConfig struct {
	MailerSendAPIKey SecretString `envconfig:"MAILERSEND_API_KEY" validate:"required"`
	FromAddress      string       `envconfig:"EMAIL_FROM_ADDRESS" default:"reservas@guestflow.io"`
	FromName         string       `envconfig:"EMAIL_FROM_NAME" default:"GuestFlow Reservas"`
}

// SchedulerConfig holds the daily scheduler tuning. Hours are in each
// organization's local timezone.
type SchedulerConfig struct {
	Enabled bool `envconfig:"SCHEDULERS_ENABLED" default:"true"`

	InvitationHour     int           `envconfig:"INVITATION_HOUR" default:"8" validate:"min=0,max=23"`
	InvitationInterval time.Duration `envconfig:"INVITATION_POLL_INTERVAL" default:"10m"`

	CleanupHour     int           `envconfig:"PASSCODE_CLEANUP_HOUR" default:"11" validate:"min=0,max=23"`
	CleanupInterval time.Duration `envconfig:"PASSCODE_POLL_INTERVAL" default:"5m"`
}

// TemplatesConfig holds template-override settings.
type TemplatesConfig struct {
	// EncryptionKey is the base64-encoded 32-byte AES key for encrypted
	// location-scoped overrides. Empty disables decryption; encrypted
	// bodies then fall through to the next template tier.
	EncryptionKey SecretString `envconfig:"TEMPLATE_ENCRYPTION_KEY"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
