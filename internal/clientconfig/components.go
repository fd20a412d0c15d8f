// Package clientconfig assembles the client's components from environment
// configuration.
package clientconfig

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/clearportx/amm-client/pkg/backend"
	"github.com/clearportx/amm-client/pkg/baseline"
	"github.com/clearportx/amm-client/pkg/db"
	"github.com/clearportx/amm-client/pkg/holdings"
	"github.com/clearportx/amm-client/pkg/liquidity"
	"github.com/clearportx/amm-client/pkg/metrics"
	"github.com/clearportx/amm-client/pkg/pool"
	"github.com/clearportx/amm-client/pkg/retry"
	"github.com/clearportx/amm-client/pkg/wallet"
)

// Components is the wired object graph used by the CLI.
type Components struct {
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Collectors

	Pacer     *retry.Pacer
	Wallet    *wallet.Submitter
	Backend   *backend.Client
	Pools     *pool.Resolver
	Holdings  *holdings.Selector
	Baselines baseline.Store
	Liquidity *liquidity.Saga

	db *gorm.DB
}

// Configure reads every package config from the environment and wires the
// components together. The wallet provider is the HTTP bridge when
// WALLET_BRIDGE_URL is set and left disconnected otherwise. Baselines are
// stored in Postgres when DB_HOST is set and in memory otherwise.
func Configure(logger *logrus.Logger) (*Components, error) {
	c := &Components{
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(c.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	c.Metrics = m

	walletConfig, err := wallet.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet config: %w", err)
	}
	walletConfig.Logger = logger

	var provider wallet.Provider
	if walletConfig.BridgeURL != "" {
		bridge, err := wallet.NewBridgeProvider(walletConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create wallet bridge: %w", err)
		}
		provider = bridge
	} else {
		logger.Warn("WALLET_BRIDGE_URL not set, wallet submissions will fail with NO_PROVIDER")
	}
	c.Pacer = retry.NewPacer(walletConfig.MinGap, m)
	c.Wallet = wallet.NewSubmitter(walletConfig, provider, c.Pacer, wallet.WithMetrics(m))

	backendConfig, err := backend.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create backend config: %w", err)
	}
	backendConfig.Logger = logger
	c.Backend, err = backend.NewClient(backendConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	poolConfig, err := pool.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create pool config: %w", err)
	}
	poolConfig.Logger = logger
	c.Pools = pool.NewResolver(poolConfig, c.Backend, m)

	c.Holdings = holdings.NewSelector(c.Backend, logger, holdings.WithMetrics(m))

	if db.Enabled() {
		conn, err := db.SetupDatabase(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
		c.db = conn
		c.Baselines = baseline.NewGormStore(conn, logger)
	} else {
		logger.Debug("DB_HOST not set, keeping pool baselines in memory")
		c.Baselines = baseline.NewMemoryStore()
	}

	liquidityConfig, err := liquidity.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create liquidity config: %w", err)
	}
	liquidityConfig.Logger = logger
	c.Liquidity = liquidity.NewSaga(liquidityConfig, c.Pools, c.Wallet, c.Backend,
		liquidity.WithBaselines(c.Backend, c.Baselines),
		liquidity.WithMetrics(m),
	)

	logger.WithFields(logrus.Fields{
		"backend":  backendConfig.BaseURL,
		"party":    backendConfig.Party,
		"wallet":   provider != nil,
		"database": c.db != nil,
		"min_gap":  walletConfig.MinGap.String(),
		"operator": liquidityConfig.OperatorParty,
	}).Debug("Configured client components")
	return c, nil
}

// Close releases the database connection, if one was opened.
func (c *Components) Close() error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
