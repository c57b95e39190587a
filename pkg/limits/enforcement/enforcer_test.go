package enforcement

import (
	"errors"
	"testing"
)

func TestNew_DefaultsToStrict(t *testing.T) {
	strategy, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if strategy.Mode() != ModeStrict {
		t.Errorf("Expected strict strategy, got %s", strategy.Mode())
	}
}

func TestNew_UnknownMode(t *testing.T) {
	if _, err := New("lenient"); err == nil {
		t.Fatal("Expected error for unknown mode")
	}
}

func TestStrict_Admit(t *testing.T) {
	tests := []struct {
		name     string
		used     int64
		capacity int64
		amount   int64
		want     Decision
	}{
		{"fits", 0, 100, 40, Decision{Outcome: Grant, Charge: 40}},
		{"exactly fills", 60, 100, 40, Decision{Outcome: Grant, Charge: 40}},
		{"one over", 61, 100, 40, Decision{Outcome: Reject}},
		{"zero amount on full budget", 100, 100, 0, Decision{Outcome: Grant}},
		{"zero capacity", 0, 0, 1, Decision{Outcome: Reject}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Strict{}.Admit(tt.used, tt.capacity, tt.amount)
			if got != tt.want {
				t.Errorf("Admit(%d, %d, %d) = %+v, want %+v", tt.used, tt.capacity, tt.amount, got, tt.want)
			}
		})
	}
}

func TestAdvisory_Admit(t *testing.T) {
	tests := []struct {
		name     string
		used     int64
		capacity int64
		amount   int64
		want     Decision
	}{
		{"fits", 10, 100, 40, Decision{Outcome: Grant, Charge: 40}},
		{"partial overdraft", 80, 100, 40, Decision{Outcome: Overdraft, Charge: 20, Excess: 20}},
		{"already full", 100, 100, 5, Decision{Outcome: Overdraft, Charge: 0, Excess: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advisory{}.Admit(tt.used, tt.capacity, tt.amount)
			if got != tt.want {
				t.Errorf("Admit(%d, %d, %d) = %+v, want %+v", tt.used, tt.capacity, tt.amount, got, tt.want)
			}
			if !got.Allowed() {
				t.Error("Expected advisory strategy to allow every charge")
			}
		})
	}
}

func TestUnbounded_Admit(t *testing.T) {
	got := Unbounded{}.Admit(0, 0, 1<<40)
	if got.Outcome != Grant || got.Charge != 1<<40 {
		t.Errorf("Expected full grant, got %+v", got)
	}
}

type denyAll struct{}

func (denyAll) Mode() Mode                   { return "deny-all" }
func (denyAll) Admit(_, _, _ int64) Decision { return Decision{Outcome: Reject} }

func TestRegister(t *testing.T) {
	if err := Register("deny-all", func() Strategy { return denyAll{} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := Register("deny-all", func() Strategy { return denyAll{} }); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
	if err := Register(ModeStrict, nil); err == nil {
		t.Error("Expected nil constructor to be rejected")
	}

	strategy, err := New("deny-all")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if strategy.Admit(0, 100, 1).Allowed() {
		t.Error("Expected custom strategy to reject")
	}

	found := false
	for _, m := range Modes() {
		if m == "deny-all" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected deny-all in %v", Modes())
	}
}

func TestOutcome_String(t *testing.T) {
	if Reject.String() != "rejected" || Grant.String() != "granted" || Overdraft.String() != "overdraft" {
		t.Error("Unexpected outcome labels")
	}
}

func TestUnboundedIsNotSelectable(t *testing.T) {
	if _, err := New(ModeUnbounded); !errors.Is(err, ErrReservedMode) {
		t.Errorf("Expected ErrReservedMode from New, got %v", err)
	}
	if err := Register(ModeUnbounded, func() Strategy { return Unbounded{} }); !errors.Is(err, ErrReservedMode) {
		t.Errorf("Expected ErrReservedMode from Register, got %v", err)
	}
	for _, m := range Modes() {
		if m == ModeUnbounded {
			t.Errorf("Expected %s to stay out of %v", ModeUnbounded, Modes())
		}
	}
}
