// loader.go loads and validates service configuration: UTC enforcement,
// dotenv, envconfig struct tags, linker build info, then validator rules.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError categorizes a configuration loading failure.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig builds the immutable Config for this process. The priority chain
// is OS environment > .env file > struct-tag defaults; a missing .env is not
// an error.
func LoadConfig() (*Config, error) {
	// The process runs in UTC; organization-local scheduling converts
	// explicitly via time.LoadLocation.
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := validateProviderCredentials(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateProviderCredentials enforces conditional requirements that struct
// tags cannot express: the selected payment provider must have its
// credentials present.
func validateProviderCredentials(cfg *Config) error {
	switch cfg.Payment.Provider {
	case "bold":
		if cfg.Payment.BoldAPIKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrMissingEnv,
				Message: "BOLD_API_KEY is required when PAYMENT_PROVIDER=bold",
			}
		}
	case "stripe":
		if cfg.Payment.StripeSecretKey.Unmask() == "" {
			return &ConfigError{
				Type:    ErrMissingEnv,
				Message: "STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe",
			}
		}
	default:
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("unknown PAYMENT_PROVIDER %q (want bold or stripe)", cfg.Payment.Provider),
		}
	}
	return nil
}
