package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/clearportx/amm-client/internal/clientconfig"
	"github.com/clearportx/amm-client/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Only log at debug since .env is optional
		logrus.WithError(err).Debug("Error loading .env file")
	}

	log := logging.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	a := &app{log: log}
	if err := a.execute(ctx, newRootCommand(a)); err != nil {
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

type app struct {
	log           *logrus.Logger
	metricsListen string
	metricsAddr   string
	components    *clientconfig.Components
	metricsServer *http.Server
}

// execute runs cmd and always releases what start acquired, also when the
// command fails.
func (a *app) execute(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if stopErr := a.stop(); err == nil {
		err = stopErr
	}
	return err
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "amm",
		Short:         "Add liquidity to AMM pools through a connected wallet",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["standalone"] == "true" {
				return nil
			}
			return a.start()
		},
	}
	cmd.PersistentFlags().StringVar(&a.metricsListen, "metrics-listen", os.Getenv("METRICS_LISTEN"),
		"address to serve Prometheus metrics on, e.g. :9090 (default: disabled)")

	cmd.AddCommand(
		newAddLiquidityCommand(a),
		newResolvePoolCommand(a),
		newSelectHoldingCommand(a),
		newMigrateStatusCommand(a),
	)
	return cmd
}

func (a *app) start() error {
	components, err := clientconfig.Configure(a.log)
	if err != nil {
		return err
	}
	a.components = components

	if a.metricsListen == "" {
		return nil
	}
	return a.serveMetrics(components.Registry)
}

func (a *app) serveMetrics(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", a.metricsListen)
	if err != nil {
		return err
	}
	a.metricsAddr = ln.Addr().String()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsServer = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Metrics server stopped")
		}
	}()
	a.log.WithField("listen", a.metricsAddr).Info("Serving metrics")
	return nil
}

func (a *app) stop() error {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
		a.metricsServer = nil
	}
	if a.components != nil {
		err := a.components.Close()
		a.components = nil
		return err
	}
	return nil
}
