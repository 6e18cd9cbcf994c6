// Package config loads service settings from the Lambda environment.
package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config holds every setting of the api and worker functions.
type Config struct {
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	RunLocal     bool   `env:"RUN_LOCAL,default=false"`
	LocalAddr    string `env:"LOCAL_ADDR,default=:8080"`
	LocalSQSBody string `env:"LOCAL_SQS_BODY"` // worker only
	StoreBackend string `env:"STORE_BACKEND,default=dynamodb"`

	// DynamoDB tables
	TestOrdersTable       string `env:"TEST_ORDERS_TABLE"`
	TestResultsTable      string `env:"TEST_RESULTS_TABLE"` // polling token -> cta token
	SubmissionTokensTable string `env:"SUBMISSION_TOKENS_TABLE"`

	OrderWebsite    string `env:"ORDER_WEBSITE"`
	RegisterWebsite string `env:"REGISTER_WEBSITE"`
	ResultsQueueURL string `env:"RESULTS_QUEUE_URL"`

	ThrottleDuration              time.Duration `env:"THROTTLE_DURATION,default=1s"`
	MaxTokenPersistenceRetryCount int           `env:"MAX_TOKEN_PERSISTENCE_RETRY_COUNT,default=3"`
	TestOrderTTL                  time.Duration `env:"TEST_ORDER_TTL,default=672h"`

	MetricsEnabled   bool   `env:"METRICS_ENABLED,default=true"`
	MetricsNamespace string `env:"METRICS_NAMESPACE,default=Virology"`

	// per instance request rate limit; 0 disables it
	RateLimitRPS   int `env:"RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST,default=20"`
}

// Load reads the environment and validates the settings shared by all functions.
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendDynamoDB:
		if c.TestOrdersTable == "" || c.TestResultsTable == "" || c.SubmissionTokensTable == "" {
			return fmt.Errorf("TEST_ORDERS_TABLE, TEST_RESULTS_TABLE and SUBMISSION_TOKENS_TABLE are required for the dynamodb backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %s", c.StoreBackend)
	}
	if c.ThrottleDuration < 0 {
		return fmt.Errorf("THROTTLE_DURATION must not be negative")
	}
	if c.MaxTokenPersistenceRetryCount < 1 {
		return fmt.Errorf("MAX_TOKEN_PERSISTENCE_RETRY_COUNT must be at least 1, got %d", c.MaxTokenPersistenceRetryCount)
	}
	if c.TestOrderTTL <= 0 {
		return fmt.Errorf("TEST_ORDER_TTL must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// ValidateAPI checks the settings only the api function needs.
func (c *Config) ValidateAPI() error {
	if c.OrderWebsite == "" || c.RegisterWebsite == "" {
		return fmt.Errorf("ORDER_WEBSITE and REGISTER_WEBSITE are required")
	}
	return nil
}
