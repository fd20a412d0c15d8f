// Package backend is the HTTP client for the settlement backend that
// mediates pool visibility, holding selection and liquidity consumption.
package backend

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultAPIURL is the default backend base URL
	DefaultAPIURL = "http://localhost:8080/api"
	// DefaultRequestTimeout bounds ordinary backend calls
	DefaultRequestTimeout = 30 * time.Second
	// DefaultConflictRetryMs is the wait before the single 409 retry when the
	// backend does not suggest one
	DefaultConflictRetryMs = 3500
)

// Config holds the backend client configuration.
// Environment variables:
//   - BACKEND_API_URL: base URL (default: http://localhost:8080/api)
//   - BACKEND_REQUEST_TIMEOUT: per-request timeout, Go duration (default: 30s)
//   - BACKEND_PARTY: acting party sent in the X-Party header (default: unset)
//   - BACKEND_AUTH_TOKEN: bearer token (default: unset)
//   - BACKEND_CONFLICT_RETRY_MS: fallback 409 retry wait in milliseconds (default: 3500)
type Config struct {
	// BaseURL is the backend API root, without trailing slash
	BaseURL string
	// RequestTimeout bounds each request that has no deadline of its own
	RequestTimeout time.Duration
	// Party is the acting party
	Party string
	// AuthToken is sent as a bearer token when set
	AuthToken string
	// ConflictRetryDelay is used when a 409 carries no retry_after_ms
	ConflictRetryDelay time.Duration
	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// NewConfig creates a Config from environment variables, loading .env if present.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, continuing with environment variables")
	}

	config := &Config{
		BaseURL:            strings.TrimRight(getEnvOrDefault("BACKEND_API_URL", DefaultAPIURL), "/"),
		RequestTimeout:     DefaultRequestTimeout,
		Party:              os.Getenv("BACKEND_PARTY"),
		AuthToken:          os.Getenv("BACKEND_AUTH_TOKEN"),
		ConflictRetryDelay: DefaultConflictRetryMs * time.Millisecond,
		Logger:             logrus.New(),
	}

	if raw := os.Getenv("BACKEND_REQUEST_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("backend: invalid BACKEND_REQUEST_TIMEOUT %q: %w", raw, err)
		}
		config.RequestTimeout = d
	}
	if raw := os.Getenv("BACKEND_CONFLICT_RETRY_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"value":   raw,
				"error":   err.Error(),
				"default": DefaultConflictRetryMs,
			}).Debug("Failed to parse conflict retry delay, using default")
		} else {
			config.ConflictRetryDelay = time.Duration(ms) * time.Millisecond
		}
	}

	logrus.WithFields(logrus.Fields{
		"base_url":             config.BaseURL,
		"request_timeout":      config.RequestTimeout.String(),
		"party":                config.Party,
		"conflict_retry_delay": config.ConflictRetryDelay.String(),
	}).Debug("Created backend config")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid:
//   - BaseURL must not be empty
//   - RequestTimeout must be at least 1 second
//   - ConflictRetryDelay must not be negative
//   - Logger must be initialized
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("backend: base URL is required")
	}
	if c.RequestTimeout < time.Second {
		return fmt.Errorf("backend: request timeout must be at least 1 second, got %v", c.RequestTimeout)
	}
	if c.ConflictRetryDelay < 0 {
		return fmt.Errorf("backend: conflict retry delay must not be negative, got %v", c.ConflictRetryDelay)
	}
	if c.Logger == nil {
		return fmt.Errorf("backend: logger is required")
	}
	return nil
}

// getEnvOrDefault retrieves an environment variable value by key,
// returning the defaultValue if the environment variable is not set or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
