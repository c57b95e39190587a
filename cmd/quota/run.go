package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"mercator-hq/quota/pkg/cli"
	"mercator-hq/quota/pkg/config"
	"mercator-hq/quota/pkg/limits"
	"mercator-hq/quota/pkg/limits/enforcement"
	"mercator-hq/quota/pkg/limits/journal"
	"mercator-hq/quota/pkg/server"
	"mercator-hq/quota/pkg/telemetry/health"
	"mercator-hq/quota/pkg/telemetry/logging"
	"mercator-hq/quota/pkg/telemetry/metrics"
	"mercator-hq/quota/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	debug         bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the quota service",
	Long: `Start the quota service with the specified configuration.

The service configures the quota repository, serves the admin HTTP surface
(probes, metrics, debug snapshot), journals usage snapshots when enabled and
re-applies quota settings when the configuration file changes.

Examples:
  # Start with the default config file
  quota run

  # Start with another config file
  quota run --config /etc/quota/quota.yaml

  # Override the admin listen address and enable the debug endpoint
  quota run --listen 0.0.0.0:9090 --debug

  # Validate config and build the service without serving
  quota run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override admin listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.debug, "debug", false, "enable the /debug/quota endpoint")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the service")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile, false)
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Admin.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.debug {
		cfg.Admin.Debug = true
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:            cfg.Telemetry.Logging.Level,
		Format:           cfg.Telemetry.Logging.Format,
		AddSource:        cfg.Telemetry.Logging.AddSource,
		RedactIdentities: cfg.Telemetry.Logging.RedactIdentities,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger)

	svc, err := newService(cfg, cfgFile, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if runFlags.dryRun {
		svc.close()
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "quota %s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Admin endpoint: http://%s%s\n", cfg.Admin.ListenAddress, server.PathHealth)

	if err := svc.run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Service stopped")
	return nil
}

// service wires the repository to its telemetry, journal and admin server.
type service struct {
	cfg    *config.Config
	path   string
	logger *slog.Logger

	repo      *limits.Repository
	collector *metrics.Collector
	tracer    *tracing.Tracer
	checker   *health.Checker
	journal   *journal.Journal
	scheduler *journal.Scheduler
	server    *server.Server
}

func newService(cfg *config.Config, path string, logger *slog.Logger) (*service, error) {
	s := &service{
		cfg:     cfg,
		path:    path,
		logger:  logger,
		checker: health.New(0),
	}

	tracer, err := tracing.New(context.Background(), &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.tracer = tracer

	observers := limits.Observers{
		logging.NewObserver(logger, cfg.Telemetry.Logging.OverReleaseInterval,
			logging.WithIdentityPrefix(cfg.Quota.IdentityPrefix)),
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		observers = append(observers, s.collector)
	}

	s.repo = limits.NewRepository(
		limits.WithObserver(observers),
		limits.WithIdentityPrefix(cfg.Quota.IdentityPrefix),
	)
	if err := s.repo.Apply(cfg.Quota); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to configure quotas: %w", err)
	}
	if s.collector != nil {
		s.collector.WatchRepository(s.repo)
	}
	s.checker.Register("quota", quotaCheck(s.repo))

	if cfg.Journal.Enabled {
		j, err := journal.Open(journal.Config{
			Path:        cfg.Journal.Path,
			Driver:      cfg.Journal.Driver,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to open usage journal: %w", err)
		}
		s.journal = j
		s.scheduler = journal.NewScheduler(j, s.repo, journal.SchedulerConfig{
			Schedule:  cfg.Journal.Schedule,
			Retention: cfg.Journal.Retention,
			Tracer:    tracer.Tracer(),
		}, logger)
		s.checker.Register("journal", j.Ping)
	}

	opts := server.Options{
		Source:    s.repo,
		Checker:   s.checker,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
		Logger:    logger,
	}
	if tracer.Enabled() {
		opts.Tracer = tracer
	}
	if s.collector != nil {
		opts.Metrics = s.collector.Handler()
		opts.MetricsPath = cfg.Telemetry.Metrics.Path
	}
	s.server = server.New(&cfg.Admin, opts)

	logger.Info("quota repository configured",
		"strategy", cfg.Quota.Strategy,
		"global", cfg.Quota.GlobalCapacity.String(),
		"session", cfg.Quota.SessionCapacity.String(),
		"identity", cfg.Quota.IdentityCapacity.String(),
		"journal", cfg.Journal.Enabled,
		"metrics", s.collector != nil,
		"tracing", tracer.Enabled(),
	)
	return s, nil
}

// run serves until ctx is cancelled. The journal records a final snapshot
// on the way out.
func (s *service) run(ctx context.Context) error {
	defer s.close()

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	var watcher *config.Watcher
	if s.cfg.Reload.Watch {
		w, err := config.NewWatcher(s.path, s.cfg.Reload.Debounce, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		watcher = w
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.server.Start(gctx)
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Watch(gctx, func(cfg *config.Config) error {
				return s.apply(gctx, cfg)
			})
		})
	}

	err := g.Wait()

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler.RunOnce(context.Background())
	}
	return err
}

// apply re-applies the quota section of a reloaded configuration inside a
// config.reload span. Other sections need a restart.
func (s *service) apply(ctx context.Context, cfg *config.Config) error {
	_, span := s.tracer.Start(ctx, "config.reload")
	err := s.applyQuota(cfg)
	if err == nil {
		span.SetAttributes(tracing.SnapshotAttributes(s.repo.Snapshot())...)
	}
	tracing.End(span, err)
	return err
}

func (s *service) applyQuota(cfg *config.Config) error {
	if cfg.Quota.IdentityPrefix != s.cfg.Quota.IdentityPrefix {
		s.logger.Warn("identity prefix changes need a restart",
			"current", s.cfg.Quota.IdentityPrefix,
			"requested", cfg.Quota.IdentityPrefix,
		)
	}
	if err := s.repo.Apply(cfg.Quota); err != nil {
		return err
	}
	s.logger.Info("quota configuration applied",
		"strategy", cfg.Quota.Strategy,
		"global", cfg.Quota.GlobalCapacity.String(),
		"session", cfg.Quota.SessionCapacity.String(),
		"identity", cfg.Quota.IdentityCapacity.String(),
	)
	return nil
}

func (s *service) close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("failed to close usage journal", "error", err)
		}
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

var errNoGlobalCapacity = errors.New("global budget has no capacity")

// quotaCheck fails while a strict repository cannot admit anything.
func quotaCheck(repo *limits.Repository) health.CheckFunc {
	return func(context.Context) error {
		if repo.Factory().Strategy().Mode() != enforcement.ModeStrict {
			return nil
		}
		if repo.Global().Capacity() == 0 {
			return errNoGlobalCapacity
		}
		return nil
	}
}
