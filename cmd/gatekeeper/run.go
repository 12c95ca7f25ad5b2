package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"arbor-hq/gatekeeper/pkg/admission"
	"arbor-hq/gatekeeper/pkg/cli"
	"arbor-hq/gatekeeper/pkg/config"
	"arbor-hq/gatekeeper/pkg/limits"
	"arbor-hq/gatekeeper/pkg/limits/store"
	"arbor-hq/gatekeeper/pkg/server"
	"arbor-hq/gatekeeper/pkg/telemetry/health"
	"arbor-hq/gatekeeper/pkg/telemetry/logging"
	"arbor-hq/gatekeeper/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	upstreamURL   string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gatekeeper",
	Long: `Start the gatekeeper with the specified configuration.

The gatekeeper listens on the configured address, runs each request
through admission control and both rate-limit layers, and proxies
admitted requests to the upstream graph service.

Examples:
  # Start with defaults plus environment overrides
  gatekeeper run --upstream http://graph-service:9000

  # Start with a config file
  gatekeeper run --config /etc/gatekeeper/config.yaml

  # Validate config without starting
  gatekeeper run --config config.yaml --dry-run`,
	RunE: runGatekeeper,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVarP(&runFlags.upstreamURL, "upstream", "u", "", "override upstream graph service URL")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runGatekeeper(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.upstreamURL != "" {
		cfg.Server.UpstreamURL = runFlags.upstreamURL
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("Configuration valid")
		return nil
	}

	if cfg.Server.UpstreamURL == "" {
		return cli.NewConfigError("server.upstream_url", "an upstream graph service URL is required")
	}

	// Counter store
	counter, err := buildCounterStore(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer counter.Close()

	// Limit layers
	resolver, err := limits.NewResolver(cfg.Limits.BaseLimits, cfg.Limits.Multipliers)
	if err != nil {
		return cli.NewConfigError("limits", err.Error())
	}
	policy := limits.FailurePolicy(cfg.Limits.FailurePolicy)
	limiter := limits.NewLimiter(limits.LimiterConfig{
		Resolver: resolver,
		Counter:  counter,
		Policy:   policy,
		Logger:   logger,
	})
	repoLimiter := limits.NewRepositoryLimiter(limits.RepositoryLimiterConfig{
		Counter: counter,
		Caps:    cfg.Limits.RepositoryCaps,
		Policy:  policy,
		Logger:  logger,
	})

	// Admission control
	controllerCfg := admission.ControllerConfig{
		MemoryThreshold: cfg.Admission.MemoryThreshold,
		CPUThreshold:    cfg.Admission.CPUThreshold,
		QueueThreshold:  cfg.Admission.QueueThreshold,
		Sampler: admission.NewProcSampler(admission.ProcSamplerConfig{
			RefreshInterval: cfg.Admission.ResourceCheckInterval,
			Logger:          logger,
		}),
		Logger: logger,
	}
	if cfg.Admission.Enabled != nil {
		controllerCfg.Enabled = *cfg.Admission.Enabled
		controllerCfg.EnabledSet = true
	}
	controller := admission.NewController(controllerCfg)

	// Telemetry
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled == nil || *cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.CollectorConfig{})
	}

	checker := health.New(0)
	checker.RegisterCheck("counter_store", limiter.Ping)

	srv, err := server.NewServer(cfg, server.Dependencies{
		Limiter:     limiter,
		RepoLimiter: repoLimiter,
		Controller:  controller,
		Checker:     checker,
		Collector:   collector,
		Logger:      logger,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, cancel := context.WithCancel(cli.SetupSignalHandler())
	defer cancel()

	// Hot reload of the limit tables when a config file is in use.
	if cfgFile != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:   cfgFile,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("config watcher unavailable, hot reload disabled", "error", err)
		} else {
			go func() {
				err := watcher.Watch(ctx, func(newCfg *config.Config) {
					newResolver, err := limits.NewResolver(newCfg.Limits.BaseLimits, newCfg.Limits.Multipliers)
					if err != nil {
						logger.Error("reloaded limit tables rejected", "error", err)
						return
					}
					limiter.SwapResolver(newResolver)
					repoLimiter.SwapCaps(newCfg.Limits.RepositoryCaps)
				})
				if err != nil {
					logger.Warn("config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	fmt.Printf("Arbor Gatekeeper v%s\n", Version)
	fmt.Printf("Listening on %s, proxying to %s\n", cfg.Server.ListenAddress, cfg.Server.UpstreamURL)
	fmt.Printf("Counter store: %s, failure policy: %s\n", cfg.Store.Backend, cfg.Limits.FailurePolicy)
	fmt.Println("Press Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// buildCounterStore creates the configured counter backend.
func buildCounterStore(cfg *config.Config, logger *slog.Logger) (store.Counter, error) {
	switch cfg.Store.Backend {
	case "memory", "":
		return store.NewMemoryCounter(), nil
	case "redis":
		c := store.NewRedisCounter(store.RedisCounterConfig{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		})
		if err := c.Ping(context.Background()); err != nil {
			// Fail-open deployments still start with an unreachable store.
			logger.Warn("redis counter store unreachable at startup",
				"addr", cfg.Store.Redis.Addr,
				"error", err,
			)
		}
		return c, nil
	case "sqlite":
		return store.NewSQLiteCounterWithConfig(store.SQLiteCounterConfig{
			Path:          cfg.Store.SQLite.Path,
			SweepSchedule: cfg.Store.SQLite.SweepSchedule,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported counter store backend: %s", cfg.Store.Backend)
	}
}
