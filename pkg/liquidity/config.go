package liquidity

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
	// DefaultDeadline is how long the inbound transfers stay executable
	DefaultDeadline = 10 * time.Minute
	// DefaultPropagationDelay is the wait after leg B before the first readiness probe
	DefaultPropagationDelay = 2 * time.Second
	// DefaultReadinessTimeout bounds the wait for both inbound transfers
	DefaultReadinessTimeout = 30 * time.Second
	// DefaultRefreshTimeout bounds the post-settlement reserve refresh
	DefaultRefreshTimeout = 15 * time.Second
	// DefaultRefreshInterval is the pool listing poll interval during refresh
	DefaultRefreshInterval = time.Second
)

// Config holds add-liquidity settings.
// Environment variables:
//   - LIQUIDITY_OPERATOR_PARTY: party receiving both inbound transfers (default: pool operator from the backend)
//   - LIQUIDITY_DEADLINE: transfer execute-before window, Go duration (default: 10m)
//   - LIQUIDITY_PROPAGATION_DELAY: wait before the first readiness probe (default: 2s)
//   - LIQUIDITY_READINESS_TIMEOUT: maximum wait for both inbound transfers (default: 30s)
//   - LIQUIDITY_INSPECT_ON_FAILURE: fetch diagnostics when consume fails (default: true)
//   - LIQUIDITY_REFRESH_TIMEOUT: maximum wait for new reserves after settlement (default: 15s)
//   - LIQUIDITY_REFRESH_INTERVAL: pool listing poll interval (default: 1s)
//   - LIQUIDITY_MAX_AGE_SECONDS: oldest inbound transfer the backend may consume (default: backend decides)
type Config struct {
	OperatorParty    string
	Deadline         time.Duration
	PropagationDelay time.Duration
	ReadinessTimeout time.Duration
	InspectOnFailure bool
	RefreshTimeout   time.Duration
	RefreshInterval  time.Duration
	MaxAgeSeconds    int

	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// DefaultConfig returns a Config with built-in defaults and no environment lookups.
func DefaultConfig() *Config {
	return &Config{
		Deadline:         DefaultDeadline,
		PropagationDelay: DefaultPropagationDelay,
		ReadinessTimeout: DefaultReadinessTimeout,
		InspectOnFailure: true,
		RefreshTimeout:   DefaultRefreshTimeout,
		RefreshInterval:  DefaultRefreshInterval,
		Logger:           logrus.New(),
	}
}

// NewConfig creates a Config from environment variables, loading .env if present.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, continuing with environment variables")
	}

	config := DefaultConfig()
	config.OperatorParty = strings.TrimSpace(os.Getenv("LIQUIDITY_OPERATOR_PARTY"))

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"LIQUIDITY_DEADLINE", &config.Deadline},
		{"LIQUIDITY_PROPAGATION_DELAY", &config.PropagationDelay},
		{"LIQUIDITY_READINESS_TIMEOUT", &config.ReadinessTimeout},
		{"LIQUIDITY_REFRESH_TIMEOUT", &config.RefreshTimeout},
		{"LIQUIDITY_REFRESH_INTERVAL", &config.RefreshInterval},
	}
	for _, d := range durations {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("liquidity: invalid %s %q: %w", d.key, raw, err)
		}
		*d.target = parsed
	}

	if raw := os.Getenv("LIQUIDITY_INSPECT_ON_FAILURE"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("liquidity: invalid LIQUIDITY_INSPECT_ON_FAILURE %q: %w", raw, err)
		}
		config.InspectOnFailure = enabled
	}
	if raw := os.Getenv("LIQUIDITY_MAX_AGE_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("liquidity: invalid LIQUIDITY_MAX_AGE_SECONDS %q: %w", raw, err)
		}
		config.MaxAgeSeconds = secs
	}

	logrus.WithFields(logrus.Fields{
		"operator":          config.OperatorParty,
		"deadline":          config.Deadline.String(),
		"propagation_delay": config.PropagationDelay.String(),
		"readiness_timeout": config.ReadinessTimeout.String(),
	}).Debug("Created liquidity config")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Deadline <= 0 {
		return fmt.Errorf("liquidity: deadline must be positive, got %v", c.Deadline)
	}
	if c.PropagationDelay < 0 || c.ReadinessTimeout < 0 {
		return fmt.Errorf("liquidity: propagation delay and readiness timeout must not be negative")
	}
	if c.RefreshTimeout < 0 || c.RefreshInterval < 0 {
		return fmt.Errorf("liquidity: refresh timeout and interval must not be negative")
	}
	if c.MaxAgeSeconds < 0 {
		return fmt.Errorf("liquidity: max age must not be negative, got %d", c.MaxAgeSeconds)
	}
	if c.Logger == nil {
		return fmt.Errorf("liquidity: logger is required")
	}
	return nil
}
