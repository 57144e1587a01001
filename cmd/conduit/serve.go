package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/conduit/pkg/api"
	"github.com/cuemby/conduit/pkg/client"
	"github.com/cuemby/conduit/pkg/config"
	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/health"
	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/storage"
	"github.com/cuemby/conduit/pkg/types"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console backend",
	Long: `Run the console backend: load the cached snapshot, refresh it from the
control plane and serve it over HTTP until interrupted.

The API, health probes and Prometheus metrics share one listener.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "API listen address (overrides config)")
	serveCmd.Flags().Duration("interval", 0, "Periodic refresh interval, 0 disables (overrides config)")
	serveCmd.Flags().Bool("chains", false, "Compute access chains every cycle (overrides config)")
	serveCmd.Flags().Bool("read-only", false, "Reject entity writes (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Server.Listen, _ = cmd.Flags().GetString("listen")
	}
	if cmd.Flags().Changed("interval") {
		cfg.Refresh.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("chains") {
		cfg.Refresh.Chains, _ = cmd.Flags().GetBool("chains")
	}
	if cmd.Flags().Changed("read-only") {
		cfg.Server.ReadOnly, _ = cmd.Flags().GetBool("read-only")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.WithComponent("serve")
	logger.Info().
		Str("version", Version).
		Str("admin", cfg.Admin.URL).
		Str("cache", cfg.Cache.Backend).
		Dur("interval", cfg.Refresh.Interval).
		Msg("Starting conduit")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	eng, err := openEngine(cmd.Context(), cfg, broker)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.rec.Trigger(reconciler.TriggerInitial)

	collector := metrics.NewCollector(eng.rec)
	collector.Start()
	defer collector.Stop()

	if monitor := newMonitor(cfg); monitor != nil {
		monitor.Start()
		defer monitor.Stop()
	}

	srv := api.NewServer(api.Config{
		Engine:   eng.rec,
		Broker:   broker,
		ReadOnly: cfg.Server.ReadOnly,
	})
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.Listen); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("API shutdown incomplete")
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}

// newMonitor sets up the admin and cache reachability probes. It returns nil
// when probes are disabled.
func newMonitor(cfg config.Config) *health.Monitor {
	if cfg.Probe.Interval <= 0 {
		return nil
	}
	m := health.NewMonitor(health.Config{
		Interval: cfg.Probe.Interval,
		Timeout:  cfg.Probe.Timeout,
		Retries:  cfg.Probe.Retries,
	})

	admin, err := client.NewClient(client.Config{BaseURL: cfg.Admin.URL})
	if err == nil {
		checker := health.NewHTTPChecker(admin.Endpoint(types.KindUpstream)).WithTimeout(cfg.Probe.Timeout)
		if cfg.Admin.APIKey != "" {
			checker.WithHeader(client.APIKeyHeader, cfg.Admin.APIKey)
		}
		m.Add("admin", checker)
	}
	if storage.Backend(cfg.Cache.Backend) == storage.BackendRedis {
		m.Add("cache", health.NewTCPChecker(cfg.Cache.RedisAddr).WithTimeout(cfg.Probe.Timeout))
	}
	return m
}
