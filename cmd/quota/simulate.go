package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"mercator-hq/quota/pkg/cli"
	"mercator-hq/quota/pkg/config"
	"mercator-hq/quota/pkg/limits"
	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/telemetry/tracing"
)

var simulateFlags struct {
	sessions   int
	identities int
	workers    int
	amount     string
	anonymous  float64
	hold       time.Duration
	seed       uint64
	strategy   string
	global     string
	session    string
	identity   string
	format     string
	progress   bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run synthetic sessions against a quota configuration",
	Long: `Run concurrent synthetic sessions against an in-process quota repository
and report how many acquisitions were admitted and which level rejected the
others.

Each session builds a composite limiter, attaches the budget of a randomly
chosen identity (unless it stays anonymous), acquires --amount, holds it for
--hold and closes. Capacities come from the config file when it exists and
can be overridden with flags.

Examples:
  # 1000 sessions over 10 identities using quota.yaml
  quota simulate

  # Stress a tight identity budget with the advisory strategy
  quota simulate --identity 2KiB --amount 1KiB --strategy advisory

  # Machine-readable report
  quota simulate --sessions 5000 --workers 32 --format json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.IntVar(&simulateFlags.sessions, "sessions", 1000, "number of sessions")
	f.IntVar(&simulateFlags.identities, "identities", 10, "number of distinct identities")
	f.IntVar(&simulateFlags.workers, "workers", 8, "concurrent workers")
	f.StringVar(&simulateFlags.amount, "amount", "1KiB", "amount acquired by each session")
	f.Float64Var(&simulateFlags.anonymous, "anonymous", 0, "fraction of sessions without identity (0-1)")
	f.DurationVar(&simulateFlags.hold, "hold", 5*time.Millisecond, "how long a session holds its acquisition")
	f.Uint64Var(&simulateFlags.seed, "seed", 1, "random seed for identity selection")
	f.StringVar(&simulateFlags.strategy, "strategy", "", "override enforcement strategy")
	f.StringVar(&simulateFlags.global, "global", "", "override global capacity")
	f.StringVar(&simulateFlags.session, "session", "", "override session capacity")
	f.StringVar(&simulateFlags.identity, "identity", "", "override identity capacity")
	f.StringVar(&simulateFlags.format, "format", "text", "output format: text, json")
	f.BoolVar(&simulateFlags.progress, "progress", false, "show a progress bar on stderr")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(simulateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cfgFile, true)
	if err != nil {
		return err
	}

	plan, err := simulationPlanFromFlags(cfg.Quota)
	if err != nil {
		return err
	}

	var progress cli.ProgressReporter = cli.NopProgress{}
	if simulateFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "sessions")
	}

	tracer, err := tracing.New(cmd.Context(), &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer tracer.Shutdown(context.Background())

	report, err := simulate(cmd.Context(), plan, progress)
	if err != nil {
		return cli.NewCommandError("simulate", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
}

// simulationPlan describes one simulation run.
type simulationPlan struct {
	Quota      config.QuotaConfig
	Sessions   int
	Identities int
	Workers    int
	Amount     int64
	Anonymous  float64
	Hold       time.Duration
	Seed       uint64
}

func simulationPlanFromFlags(quota config.QuotaConfig) (simulationPlan, error) {
	overrides := []struct {
		flag  string
		value string
		dst   *config.Size
	}{
		{"global", simulateFlags.global, &quota.GlobalCapacity},
		{"session", simulateFlags.session, &quota.SessionCapacity},
		{"identity", simulateFlags.identity, &quota.IdentityCapacity},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		size, err := config.ParseSize(o.value)
		if err != nil {
			return simulationPlan{}, fmt.Errorf("invalid --%s: %w", o.flag, err)
		}
		*o.dst = size
	}
	if simulateFlags.strategy != "" {
		quota.Strategy = simulateFlags.strategy
	}

	amount, err := config.ParseSize(simulateFlags.amount)
	if err != nil {
		return simulationPlan{}, fmt.Errorf("invalid --amount: %w", err)
	}

	plan := simulationPlan{
		Quota:      quota,
		Sessions:   simulateFlags.sessions,
		Identities: simulateFlags.identities,
		Workers:    simulateFlags.workers,
		Amount:     int64(amount),
		Anonymous:  simulateFlags.anonymous,
		Hold:       simulateFlags.hold,
		Seed:       simulateFlags.seed,
	}
	return plan, plan.validate()
}

func (p simulationPlan) validate() error {
	switch {
	case p.Sessions <= 0:
		return errors.New("sessions must be positive")
	case p.Workers <= 0:
		return errors.New("workers must be positive")
	case p.Identities < 0:
		return errors.New("identities must not be negative")
	case p.Anonymous < 0 || p.Anonymous > 1:
		return errors.New("anonymous must be between 0 and 1")
	case p.Identities == 0 && p.Anonymous < 1:
		return errors.New("identities must be positive unless every session is anonymous")
	}
	return nil
}

// simulationReport is the outcome of a run.
type simulationReport struct {
	RunID      string           `json:"run_id"`
	Strategy   string           `json:"strategy"`
	Sessions   int              `json:"sessions"`
	Identities int              `json:"identities"`
	Workers    int              `json:"workers"`
	Amount     int64            `json:"amount"`
	Granted    int64            `json:"granted"`
	Rejected   int64            `json:"rejected"`
	Upgrades   int64            `json:"upgrades_failed"`
	RejectedBy map[string]int64 `json:"rejected_by"`
	PeakGlobal int64            `json:"peak_global_used"`
	FinalUsed  int64            `json:"final_global_used"`
	LiveIDs    int              `json:"live_identities"`
	Duration   time.Duration    `json:"duration_ns"`
}

// WriteText implements cli.TextWriter.
func (r *simulationReport) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulation %s\n", r.RunID)
	fmt.Fprintf(&b, "  strategy:        %s\n", r.Strategy)
	fmt.Fprintf(&b, "  sessions:        %s (%d workers, %s identities)\n",
		humanize.Comma(int64(r.Sessions)), r.Workers, humanize.Comma(int64(r.Identities)))
	fmt.Fprintf(&b, "  amount:          %s\n", humanize.IBytes(uint64(r.Amount)))
	fmt.Fprintf(&b, "  granted:         %s\n", humanize.Comma(r.Granted))
	fmt.Fprintf(&b, "  rejected:        %s\n", humanize.Comma(r.Rejected))

	levels := make([]string, 0, len(r.RejectedBy))
	for level := range r.RejectedBy {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		fmt.Fprintf(&b, "    by %-10s %s\n", level+":", humanize.Comma(r.RejectedBy[level]))
	}

	fmt.Fprintf(&b, "  upgrade failures: %s\n", humanize.Comma(r.Upgrades))
	fmt.Fprintf(&b, "  peak global use: %s\n", humanize.IBytes(uint64(r.PeakGlobal)))
	fmt.Fprintf(&b, "  final global use: %s, live identities: %d\n",
		humanize.IBytes(uint64(r.FinalUsed)), r.LiveIDs)
	fmt.Fprintf(&b, "  duration:        %s\n", r.Duration.Round(time.Millisecond))

	_, err := io.WriteString(w, b.String())
	return err
}

// Rejection levels reported by a simulation.
const (
	levelGlobal   = "global"
	levelSession  = "session"
	levelIdentity = "identity"
	levelOther    = "other"
)

const simSessionName = "session"

// simulate runs plan against a fresh repository.
func simulate(ctx context.Context, plan simulationPlan, progress cli.ProgressReporter) (*simulationReport, error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "simulate")
	report, err := runSimulation(ctx, plan, progress)
	if report != nil {
		span.SetAttributes(
			attribute.String("simulation.run_id", report.RunID),
			tracing.AttrStrategy.String(report.Strategy),
			attribute.Int("simulation.sessions", report.Sessions),
			attribute.Int64("simulation.granted", report.Granted),
			attribute.Int64("simulation.rejected", report.Rejected),
		)
	}
	tracing.End(span, err)
	return report, err
}

func runSimulation(ctx context.Context, plan simulationPlan, progress cli.ProgressReporter) (*simulationReport, error) {
	repo := limits.NewRepository(limits.WithIdentityPrefix(plan.Quota.IdentityPrefix))
	if err := repo.Apply(plan.Quota); err != nil {
		return nil, err
	}

	globalName := repo.Global().Name()
	classify := func(limiter string) string {
		switch {
		case limiter == globalName:
			return levelGlobal
		case limiter == simSessionName:
			return levelSession
		case strings.HasPrefix(limiter, plan.Quota.IdentityPrefix):
			return levelIdentity
		default:
			return levelOther
		}
	}

	identities := make([]string, plan.Identities)
	for i := range identities {
		identities[i] = fmt.Sprintf("user-%03d", i)
	}

	// Identity choices are drawn up front so a seed reproduces the same mix
	// regardless of worker scheduling.
	rng := rand.New(rand.NewPCG(plan.Seed, plan.Seed^0x9e3779b97f4a7c15))
	choices := make([]string, plan.Sessions)
	for i := range choices {
		if plan.Identities == 0 || rng.Float64() < plan.Anonymous {
			continue
		}
		choices[i] = identities[rng.IntN(plan.Identities)]
	}

	report := &simulationReport{
		RunID:      uuid.NewString(),
		Strategy:   string(repo.Factory().Strategy().Mode()),
		Sessions:   plan.Sessions,
		Identities: plan.Identities,
		Workers:    plan.Workers,
		Amount:     plan.Amount,
		RejectedBy: make(map[string]int64),
	}

	var (
		granted, rejected, upgrades atomic.Int64
		peak                        atomic.Int64
		mu                          sync.Mutex
	)
	recordRejection := func(err error) {
		level := levelOther
		var qe *budget.QuotaError
		if errors.As(err, &qe) {
			level = classify(qe.Limiter)
		}
		mu.Lock()
		report.RejectedBy[level]++
		mu.Unlock()
	}
	trackPeak := func() {
		used := repo.Global().Used()
		for {
			cur := peak.Load()
			if used <= cur || peak.CompareAndSwap(cur, used) {
				return
			}
		}
	}

	runSession := func(i int) error {
		c := repo.MakeLimiter(fmt.Sprintf("sim-%d", i), simSessionName)
		defer c.Close()

		if id := choices[i]; id != "" {
			if err := repo.UpgradeWith(id, c); err != nil {
				if !errors.Is(err, limits.ErrQuotaExceeded) {
					return err
				}
				upgrades.Add(1)
			}
		}

		if err := c.Acquire(plan.Amount); err != nil {
			if !errors.Is(err, limits.ErrQuotaExceeded) {
				return err
			}
			rejected.Add(1)
			recordRejection(err)
			return nil
		}
		granted.Add(1)
		trackPeak()

		if plan.Hold > 0 {
			select {
			case <-time.After(plan.Hold):
			case <-ctx.Done():
			}
		}
		return c.Release(plan.Amount)
	}

	progress.Start(int64(plan.Sessions))
	start := time.Now()

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < plan.Sessions; i++ {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < plan.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if err := runSession(i); err != nil {
					return fmt.Errorf("session %d: %w", i, err)
				}
				progress.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	progress.Finish()

	report.Duration = time.Since(start)
	report.Granted = granted.Load()
	report.Rejected = rejected.Load()
	report.Upgrades = upgrades.Load()
	report.PeakGlobal = peak.Load()
	report.FinalUsed = repo.Global().Used()
	report.LiveIDs = repo.IdentityStorageSize()
	return report, nil
}
