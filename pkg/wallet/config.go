package wallet

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/clearportx/amm-client/pkg/retry"
)

// Default configuration values
const (
	// DefaultSubmitTimeout bounds a single provider call
	DefaultSubmitTimeout = 120 * time.Second
	// DefaultMinGap is the minimum spacing between wallet calls
	DefaultMinGap = 4 * time.Second
)

// Config holds wallet submission settings.
// Environment variables:
//   - LOOP_SUBMIT_MODE: forces WAIT or LEGACY for every submission (default: unset)
//   - LOOP_SUBMIT_LEGACY: allows legacy fallback when wait mode is unavailable (default: true)
//   - WALLET_SUBMIT_TIMEOUT: per-call timeout, Go duration (default: 120s)
//   - WALLET_MIN_GAP: minimum gap between wallet calls (default: 4s)
//   - WALLET_BACKOFF_SCHEDULE: comma separated rate-limit backoff (default: 2s,4s,7s,12s)
//   - WALLET_BRIDGE_URL: base URL of the HTTP wallet bridge (default: unset)
//   - WALLET_AUTH_TOKEN: bearer token for the bridge and transfer preparation (default: unset)
type Config struct {
	// ForcedMode overrides the mode requested by callers when set
	ForcedMode Mode

	// LegacyEnabled allows falling back to legacy submission
	LegacyEnabled bool

	// SubmitTimeout bounds each provider call
	SubmitTimeout time.Duration

	// MinGap is the pacer's minimum spacing between wallet calls
	MinGap time.Duration

	// BackoffSchedule is the rate-limit retry schedule
	BackoffSchedule []time.Duration

	// BridgeURL is the wallet bridge endpoint used by BridgeProvider
	BridgeURL string

	// AuthToken is forwarded to the provider when preparing transfers
	AuthToken string

	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// DefaultConfig returns a Config with built-in defaults and no environment lookups.
func DefaultConfig() *Config {
	return &Config{
		LegacyEnabled:   true,
		SubmitTimeout:   DefaultSubmitTimeout,
		MinGap:          DefaultMinGap,
		BackoffSchedule: append([]time.Duration(nil), retry.DefaultSchedule...),
		Logger:          logrus.New(),
	}
}

// NewConfig creates a Config from environment variables, loading .env if present.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Debug(".env file not loaded, continuing with environment variables")
	}

	config := DefaultConfig()

	if forced := strings.ToUpper(strings.TrimSpace(os.Getenv("LOOP_SUBMIT_MODE"))); forced != "" {
		switch Mode(forced) {
		case ModeWait, ModeLegacy:
			config.ForcedMode = Mode(forced)
		default:
			logrus.WithField("value", forced).Warn("Ignoring unknown LOOP_SUBMIT_MODE")
		}
	}

	config.LegacyEnabled = getEnvOrDefault("LOOP_SUBMIT_LEGACY", "true") != "false"

	var err error
	if config.SubmitTimeout, err = parseDuration("WALLET_SUBMIT_TIMEOUT", DefaultSubmitTimeout); err != nil {
		return nil, err
	}
	if config.MinGap, err = parseDuration("WALLET_MIN_GAP", DefaultMinGap); err != nil {
		return nil, err
	}
	if raw := os.Getenv("WALLET_BACKOFF_SCHEDULE"); raw != "" {
		schedule, err := ParseSchedule(raw)
		if err != nil {
			return nil, fmt.Errorf("wallet: invalid WALLET_BACKOFF_SCHEDULE: %w", err)
		}
		config.BackoffSchedule = schedule
	}

	config.BridgeURL = strings.TrimRight(os.Getenv("WALLET_BRIDGE_URL"), "/")
	config.AuthToken = os.Getenv("WALLET_AUTH_TOKEN")

	logrus.WithFields(logrus.Fields{
		"forced_mode":      config.ForcedMode,
		"legacy_enabled":   config.LegacyEnabled,
		"submit_timeout":   config.SubmitTimeout.String(),
		"min_gap":          config.MinGap.String(),
		"backoff_schedule": config.BackoffSchedule,
		"bridge_url":       config.BridgeURL,
	}).Debug("Created wallet config")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid:
//   - SubmitTimeout must be at least 1 second
//   - MinGap must not be negative
//   - BackoffSchedule entries must be positive
//   - Logger must be initialized
func (c *Config) Validate() error {
	if c.SubmitTimeout < time.Second {
		return fmt.Errorf("wallet: submit timeout must be at least 1 second, got %v", c.SubmitTimeout)
	}
	if c.MinGap < 0 {
		return fmt.Errorf("wallet: min gap must not be negative, got %v", c.MinGap)
	}
	for i, d := range c.BackoffSchedule {
		if d <= 0 {
			return fmt.Errorf("wallet: backoff schedule entry %d must be positive, got %v", i, d)
		}
	}
	if c.Logger == nil {
		return fmt.Errorf("wallet: logger is required")
	}
	return nil
}

// ParseSchedule parses a comma separated list of durations. Bare numbers are
// read as milliseconds.
func ParseSchedule(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if ms, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, time.Duration(ms)*time.Millisecond)
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("wallet: invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

// getEnvOrDefault retrieves an environment variable value by key,
// returning the defaultValue if the environment variable is not set or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
