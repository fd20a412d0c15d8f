package pool

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds pool resolution settings.
// Environment variables:
//   - POOL_PREFERRED_PACKAGE_PREFIX: package id prefix preferred when several
//     live instances of a pool exist (default: unset)
type Config struct {
	// PreferredPackagePrefix selects among reissued pool instances
	PreferredPackagePrefix string

	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// NewConfig creates a Config from environment variables, loading .env if present.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, continuing with environment variables")
	}

	config := &Config{
		PreferredPackagePrefix: strings.TrimSpace(os.Getenv("POOL_PREFERRED_PACKAGE_PREFIX")),
		Logger:                 logrus.New(),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the logger is set.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("pool: logger is required")
	}
	return nil
}
