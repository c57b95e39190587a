package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/quota/pkg/limits"
	"mercator-hq/quota/pkg/telemetry/tracing"
)

// Source provides the snapshots to record. *limits.Repository implements it.
type Source interface {
	Snapshot() limits.Snapshot
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Schedule is a cron expression or descriptor such as "@every 1m".
	// An empty schedule disables the scheduler.
	Schedule string

	// Retention is how long rows are kept. Zero keeps everything.
	Retention time.Duration

	// Tracer records a span per snapshot. Nil disables tracing.
	Tracer trace.Tracer
}

// Scheduler records a snapshot of a Source on a cron schedule and prunes
// rows older than the retention window after every run.
type Scheduler struct {
	journal *Journal
	source  Source
	config  SchedulerConfig
	cron    *cron.Cron
	now     func() time.Time
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler. A nil logger uses slog.Default.
func NewScheduler(j *Journal, source Source, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Scheduler{
		journal: j,
		source:  source,
		config:  cfg,
		cron:    cron.New(),
		now:     time.Now,
		logger:  logger.With("component", "journal.scheduler"),
	}
}

// Start schedules recording. It returns once the cron runner is started;
// the scheduler stops itself when ctx is cancelled.
//
// Common schedules:
//   - "@every 1m"    - Every minute
//   - "*/5 * * * *"  - Every five minutes
//   - "0 * * * *"    - Hourly
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("journal schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("journal scheduler already running")
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule journal: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("journal scheduler started",
		"schedule", s.config.Schedule,
		"retention", s.config.Retention,
		"path", s.journal.Path(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce records one snapshot and prunes expired rows.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, span := s.config.Tracer.Start(ctx, "journal.snapshot")
	err := s.runOnce(ctx, span)
	tracing.End(span, err)
}

func (s *Scheduler) runOnce(ctx context.Context, span trace.Span) error {
	now := s.now()
	snap := s.source.Snapshot()
	span.SetAttributes(tracing.SnapshotAttributes(snap)...)

	id, err := s.journal.Record(ctx, snap, now)
	if err != nil {
		s.logger.Error("journal snapshot failed", "error", err)
		return err
	}
	span.SetAttributes(attribute.String("journal.snapshot_id", id))
	s.logger.Debug("journal snapshot recorded", "snapshot_id", id)

	if s.config.Retention <= 0 {
		return nil
	}
	deleted, err := s.journal.Prune(ctx, now.Add(-s.config.Retention))
	if err != nil {
		s.logger.Error("journal pruning failed", "error", err)
		return err
	}
	span.SetAttributes(attribute.Int64("journal.pruned", deleted))
	if deleted > 0 {
		s.logger.Info("journal pruning completed", "deleted_count", deleted)
	}
	return nil
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("journal scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled snapshot time, or nil when nothing is
// scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
