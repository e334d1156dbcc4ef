package core

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults for the wallet sensor.
const (
	DefaultBaseURL      = "https://api.binance.com"
	DefaultIcon         = "mdi:bitcoin"
	DefaultPollInterval = time.Hour
)

// Config contains all configuration options for a wallet sensor.
// Fields are validated at the boundary, independent of any host framework.
type Config struct {
	APIKey    string `json:"api_key" yaml:"api_key" validate:"required"`
	APISecret string `json:"api_secret" yaml:"api_secret" validate:"required"`
	UniqueID  string `json:"unique_id" yaml:"unique_id"`
	Name      string `json:"name" yaml:"name"`
	Icon      string `json:"icon" yaml:"icon"`

	BaseURL string `json:"base_url" yaml:"base_url" validate:"required,url"`
	// Timeout is the maximum duration for the snapshot request.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"min=1ms"`
	// PollInterval is the minimum interval between two updates.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" validate:"min=1s"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold" yaml:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold" yaml:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with sensible defaults.
// Default values: production base URL, 10s timeout, hourly polling, mdi:bitcoin icon,
// circuit breaker opening after 3 failed cycles for 6 hours.
func DefaultConfig() *Config {
	return &Config{
		Icon:         DefaultIcon,
		BaseURL:      DefaultBaseURL,
		Timeout:      10 * time.Second,
		PollInterval: DefaultPollInterval,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    3,
		CircuitBreakerSuccessThreshold: 1,
		CircuitBreakerTimeout:          6 * time.Hour,

		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return NewConfigError(err)
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return NewConfigError(errors.New("CircuitBreakerFailThreshold must be positive when enabled"))
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return NewConfigError(errors.New("CircuitBreakerSuccessThreshold must be positive when enabled"))
		}
		if c.CircuitBreakerTimeout <= 0 {
			return NewConfigError(errors.New("CircuitBreakerTimeout must be positive when enabled"))
		}
	}
	return nil
}

// Credentials returns the API credentials held by the config.
func (c *Config) Credentials() Credentials {
	return Credentials{APIKey: c.APIKey, SecretKey: c.APISecret}
}

// WithCredentials sets the API key and secret and returns the config for chaining.
func (c *Config) WithCredentials(apiKey, apiSecret string) *Config {
	c.APIKey = apiKey
	c.APISecret = apiSecret
	return c
}

// WithIdentity sets the unique id, display name and icon and returns the config for chaining.
// An empty icon keeps the current value.
func (c *Config) WithIdentity(uniqueID, name, icon string) *Config {
	c.UniqueID = uniqueID
	c.Name = name
	if icon != "" {
		c.Icon = icon
	}
	return c
}

// WithBaseURL sets the exchange base URL and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithPollInterval sets the minimum interval between updates and returns the config for chaining.
func (c *Config) WithPollInterval(interval time.Duration) *Config {
	c.PollInterval = interval
	return c
}

// WithCircuitBreaker configures the poll circuit breaker and returns the config for chaining.
func (c *Config) WithCircuitBreaker(enabled bool, failThreshold, successThreshold int, cooldown time.Duration) *Config {
	c.CircuitBreakerEnabled = enabled
	c.CircuitBreakerFailThreshold = failThreshold
	c.CircuitBreakerSuccessThreshold = successThreshold
	c.CircuitBreakerTimeout = cooldown
	return c
}
