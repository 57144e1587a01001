package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/conduit/pkg/client"
	"github.com/cuemby/conduit/pkg/config"
	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/log"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/reconciler"
	"github.com/cuemby/conduit/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit - local console for an API gateway control plane",
	Long: `Conduit mirrors the routes, services, upstreams and consumers of an
API gateway control plane into a local cache, keeps them in step with the
server and serves them to the console over HTTP.

Run "conduit serve" for the long-running console backend, or use the
one-shot commands to inspect and change the control plane from a shell.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Conduit version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	addGlobalFlags(rootCmd)
}

// addGlobalFlags registers the flags every subcommand inherits
func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to YAML config file")
	flags.String("admin-url", "", "Control plane admin URL (overrides config)")
	flags.String("api-key", "", "Admin API key (overrides config)")
	flags.String("cache", "", "Cache backend: bolt, redis or memory (overrides config)")
	flags.String("data-dir", "", "Bolt cache directory (overrides config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.Bool("log-json", false, "Log as JSON")
}

// loadConfig reads the config file, applies flag overrides, validates the
// result and initializes logging
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	overrides := []struct {
		flag   string
		target *string
	}{
		{"admin-url", &cfg.Admin.URL},
		{"api-key", &cfg.Admin.APIKey},
		{"cache", &cfg.Cache.Backend},
		{"data-dir", &cfg.Cache.DataDir},
		{"log-level", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.target, _ = cmd.Flags().GetString(o.flag)
		}
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})
	metrics.SetVersion(Version)
	return cfg, nil
}

// engine bundles the pieces every command that talks to the control plane
// needs
type engine struct {
	rec   *reconciler.Reconciler
	store storage.Store
}

// openEngine opens the cache, builds the client and starts a reconciler
// warmed from the cache. Close releases everything in reverse order.
func openEngine(ctx context.Context, cfg config.Config, broker *events.Broker) (*engine, error) {
	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		metrics.RegisterComponent(metrics.ComponentCache, false, err.Error())
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	metrics.RegisterComponent(metrics.ComponentCache, true, "")

	api, err := client.NewClient(client.Config{
		BaseURL:   cfg.Admin.URL,
		APIKey:    cfg.Admin.APIKey,
		Timeout:   cfg.Admin.Timeout,
		RateLimit: cfg.Admin.RateLimit,
		Burst:     cfg.Admin.Burst,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rec := reconciler.NewReconciler(reconciler.Config{
		API:       api,
		Store:     store,
		Broker:    broker,
		KeyPrefix: cfg.Admin.KeyPrefix,
		Interval:  cfg.Refresh.Interval,
		Chains:    cfg.Refresh.Chains,
	})
	if n, err := rec.Load(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to load cache, starting empty")
	} else if n > 0 {
		log.Logger.Debug().Int("entities", n).Msg("Loaded cached snapshot")
	}
	rec.Start()

	return &engine{rec: rec, store: store}, nil
}

func (e *engine) Close() {
	e.rec.Stop()
	if err := e.store.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to close cache")
	}
}
