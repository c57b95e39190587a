package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"mercator-hq/quota/pkg/cli"
	"mercator-hq/quota/pkg/config"
)

func quota(global, session, identity int64, strategy string) config.QuotaConfig {
	q := config.Default().Quota
	q.GlobalCapacity = config.Size(global)
	q.SessionCapacity = config.Size(session)
	q.IdentityCapacity = config.Size(identity)
	q.Strategy = strategy
	return q
}

func TestSimulate_AllGranted(t *testing.T) {
	plan := simulationPlan{
		Quota:      quota(1<<20, 4096, 1<<16, "strict"),
		Sessions:   200,
		Identities: 5,
		Workers:    8,
		Amount:     1024,
		Seed:       7,
	}

	report, err := simulate(context.Background(), plan, cli.NopProgress{})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	if report.Granted != 200 || report.Rejected != 0 {
		t.Errorf("Expected 200 granted and 0 rejected, got %d/%d", report.Granted, report.Rejected)
	}
	if report.FinalUsed != 0 {
		t.Errorf("Expected all usage returned to global, got %d", report.FinalUsed)
	}
	if report.LiveIDs != 0 {
		t.Errorf("Expected every identity reclaimed, got %d live", report.LiveIDs)
	}
	if report.RunID == "" {
		t.Error("Expected a run id")
	}
}

func TestSimulate_RejectionLevels(t *testing.T) {
	tests := []struct {
		name  string
		quota config.QuotaConfig
		want  map[string]int64
	}{
		{
			name:  "session too small",
			quota: quota(1<<20, 512, 1<<20, "strict"),
			want:  map[string]int64{levelSession: 50},
		},
		{
			name:  "identity too small",
			quota: quota(1<<20, 4096, 512, "strict"),
			want:  map[string]int64{levelIdentity: 50},
		},
		{
			name:  "global unconfigured",
			quota: quota(0, 4096, 4096, "strict"),
			want:  map[string]int64{levelGlobal: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := simulationPlan{
				Quota:      tt.quota,
				Sessions:   50,
				Identities: 3,
				Workers:    4,
				Amount:     1024,
				Seed:       1,
			}
			report, err := simulate(context.Background(), plan, cli.NopProgress{})
			if err != nil {
				t.Fatalf("simulate failed: %v", err)
			}
			if report.Granted != 0 {
				t.Errorf("Expected nothing granted, got %d", report.Granted)
			}
			if diff := cmp.Diff(tt.want, report.RejectedBy); diff != "" {
				t.Errorf("RejectedBy mismatch (-want +got):\n%s", diff)
			}
			if report.FinalUsed != 0 {
				t.Errorf("Expected rejections to leave global untouched, got %d", report.FinalUsed)
			}
		})
	}
}

func TestSimulate_AdvisoryNeverRejects(t *testing.T) {
	plan := simulationPlan{
		Quota:      quota(1024, 512, 512, "advisory"),
		Sessions:   40,
		Identities: 2,
		Workers:    4,
		Amount:     2048,
		Seed:       3,
	}

	report, err := simulate(context.Background(), plan, cli.NopProgress{})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if report.Strategy != "advisory" {
		t.Errorf("Expected advisory strategy, got %s", report.Strategy)
	}
	if report.Granted != 40 || report.Rejected != 0 {
		t.Errorf("Expected 40 granted, got %d granted %d rejected", report.Granted, report.Rejected)
	}
}

func TestSimulate_AnonymousSessions(t *testing.T) {
	// Identity budgets would reject every acquisition, so only anonymous
	// sessions can be granted.
	plan := simulationPlan{
		Quota:      quota(1<<20, 4096, 0, "strict"),
		Sessions:   30,
		Identities: 0,
		Anonymous:  1,
		Workers:    3,
		Amount:     100,
	}

	report, err := simulate(context.Background(), plan, cli.NopProgress{})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if report.Granted != 30 {
		t.Errorf("Expected every anonymous session granted, got %d", report.Granted)
	}
}

func TestSimulate_Contention(t *testing.T) {
	// Global fits two sessions at a time; holding makes the rest contend.
	plan := simulationPlan{
		Quota:      quota(2048, 1024, 1<<20, "strict"),
		Sessions:   40,
		Identities: 4,
		Workers:    8,
		Amount:     1024,
		Hold:       5 * time.Millisecond,
		Seed:       11,
	}

	report, err := simulate(context.Background(), plan, cli.NopProgress{})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if report.Granted+report.Rejected != 40 {
		t.Errorf("Expected 40 outcomes, got %d", report.Granted+report.Rejected)
	}
	if report.PeakGlobal > 2048 {
		t.Errorf("Expected peak global use within capacity, got %d", report.PeakGlobal)
	}
	if report.Rejected != report.RejectedBy[levelGlobal] {
		t.Errorf("Expected every rejection to come from global, got %v", report.RejectedBy)
	}
	if report.FinalUsed != 0 || report.LiveIDs != 0 {
		t.Errorf("Expected clean final state, got used=%d live=%d", report.FinalUsed, report.LiveIDs)
	}
}

func TestSimulationPlanValidate(t *testing.T) {
	base := simulationPlan{Sessions: 1, Workers: 1, Identities: 1}

	tests := []struct {
		name   string
		mutate func(*simulationPlan)
	}{
		{"zero sessions", func(p *simulationPlan) { p.Sessions = 0 }},
		{"zero workers", func(p *simulationPlan) { p.Workers = 0 }},
		{"negative identities", func(p *simulationPlan) { p.Identities = -1 }},
		{"anonymous above one", func(p *simulationPlan) { p.Anonymous = 1.5 }},
		{"no identities", func(p *simulationPlan) { p.Identities = 0 }},
	}

	if err := base.validate(); err != nil {
		t.Fatalf("Expected base plan to be valid, got %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			if err := p.validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestSimulationPlanFromFlags(t *testing.T) {
	orig := simulateFlags
	defer func() { simulateFlags = orig }()

	simulateFlags.sessions = 10
	simulateFlags.identities = 2
	simulateFlags.workers = 2
	simulateFlags.amount = "2KiB"
	simulateFlags.global = "1MiB"
	simulateFlags.session = ""
	simulateFlags.identity = "8KiB"
	simulateFlags.strategy = "advisory"

	plan, err := simulationPlanFromFlags(quota(0, 4096, 0, "strict"))
	if err != nil {
		t.Fatalf("simulationPlanFromFlags failed: %v", err)
	}
	if plan.Amount != 2048 {
		t.Errorf("Expected amount 2048, got %d", plan.Amount)
	}
	if plan.Quota.GlobalCapacity != 1<<20 || plan.Quota.SessionCapacity != 4096 || plan.Quota.IdentityCapacity != 8192 {
		t.Errorf("Unexpected capacities: %+v", plan.Quota)
	}
	if plan.Quota.Strategy != "advisory" {
		t.Errorf("Expected strategy override, got %s", plan.Quota.Strategy)
	}

	simulateFlags.global = "lots"
	if _, err := simulationPlanFromFlags(quota(0, 0, 0, "strict")); err == nil {
		t.Error("Expected error for malformed --global")
	}
}

func TestSimulationReportText(t *testing.T) {
	report := &simulationReport{
		RunID:      "run-1",
		Strategy:   "strict",
		Sessions:   1500,
		Identities: 3,
		Workers:    4,
		Amount:     1024,
		Granted:    1200,
		Rejected:   300,
		RejectedBy: map[string]int64{levelIdentity: 200, levelGlobal: 100},
	}

	buf := &bytes.Buffer{}
	if err := report.WriteText(buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Simulation run-1", "1,500", "1.0 KiB", "1,200", "by global:", "by identity:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Index(out, "by global:") > strings.Index(out, "by identity:") {
		t.Error("Expected rejection levels in sorted order")
	}
}
