// Package config loads the sensor configuration from a YAML file, .env files
// and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"binancewallet/pkg/core"
)

// Environment variables read by Load.
const (
	EnvAPIKey                = "BINANCE_API_KEY"
	EnvAPISecret             = "BINANCE_API_SECRET"
	EnvUniqueID              = "BINANCE_UNIQUE_ID"
	EnvName                  = "BINANCE_NAME"
	EnvIcon                  = "BINANCE_ICON"
	EnvBaseURL               = "BINANCE_BASE_URL"
	EnvPollInterval          = "BINANCE_POLL_INTERVAL"
	EnvTimeout               = "BINANCE_TIMEOUT"
	EnvCircuitBreakerEnabled = "BINANCE_CIRCUIT_BREAKER"
	EnvBreakerFailThreshold  = "BINANCE_CIRCUIT_BREAKER_FAILURES"
	EnvBreakerSuccesses      = "BINANCE_CIRCUIT_BREAKER_SUCCESSES"
	EnvBreakerCooldown       = "BINANCE_CIRCUIT_BREAKER_COOLDOWN"
	EnvLogLevel              = "LOG_LEVEL"
)

// Options controls where configuration is read from.
type Options struct {
	// Path is an optional YAML file. A missing file is an error when set.
	Path string
	// EnvFiles are .env files; missing ones are skipped. Defaults to ".env".
	EnvFiles []string
	// Lookup reads the process environment. Defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// Load builds a validated config: defaults, then the YAML file, then .env
// files, then the process environment.
func Load(opts Options) (*core.Config, error) {
	config := core.DefaultConfig()

	if opts.Path != "" {
		if err := loadFile(opts.Path, config); err != nil {
			return nil, err
		}
	}

	dotenv, err := readEnvFiles(opts.EnvFiles)
	if err != nil {
		return nil, err
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := applyEnv(config, env); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadFile(path string, config *core.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return core.NewConfigError(fmt.Errorf("parse config file %s: %w", path, err))
	}
	return nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	if files == nil {
		files = []string{".env"}
	}

	out := make(map[string]string)
	for _, f := range files {
		values, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, core.NewConfigError(fmt.Errorf("read env file %s: %w", f, err))
		}
		// Earlier files win, as with godotenv.Load.
		for k, v := range values {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out, nil
}

func applyEnv(config *core.Config, env func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvAPIKey:    &config.APIKey,
		EnvAPISecret: &config.APISecret,
		EnvUniqueID:  &config.UniqueID,
		EnvName:      &config.Name,
		EnvIcon:      &config.Icon,
		EnvBaseURL:   &config.BaseURL,
		EnvLogLevel:  &config.LogLevel,
	}
	for key, field := range strs {
		if v, ok := env(key); ok {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		EnvPollInterval:    &config.PollInterval,
		EnvTimeout:         &config.Timeout,
		EnvBreakerCooldown: &config.CircuitBreakerTimeout,
	}
	for key, field := range durations {
		v, ok := env(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return core.NewConfigError(fmt.Errorf("%s: %w", key, err))
		}
		*field = d
	}

	ints := map[string]*int{
		EnvBreakerFailThreshold: &config.CircuitBreakerFailThreshold,
		EnvBreakerSuccesses:     &config.CircuitBreakerSuccessThreshold,
	}
	for key, field := range ints {
		v, ok := env(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.NewConfigError(fmt.Errorf("%s: %w", key, err))
		}
		*field = n
	}

	if v, ok := env(EnvCircuitBreakerEnabled); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewConfigError(fmt.Errorf("%s: %w", EnvCircuitBreakerEnabled, err))
		}
		config.CircuitBreakerEnabled = enabled
	}

	return nil
}
