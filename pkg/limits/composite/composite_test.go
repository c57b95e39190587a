package composite

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"mercator-hq/quota/pkg/limits/budget"
	"mercator-hq/quota/pkg/limits/enforcement"
)

func names(ls []budget.Limiter) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name()
	}
	return out
}

func TestNew_SortsByCapacity(t *testing.T) {
	global := budget.New("global", 500)
	session := budget.New("session", 400)

	c := New("composite", []budget.Limiter{global, session})

	if c.Name() != "composite" {
		t.Errorf("Expected name composite, got %s", c.Name())
	}
	if c.ID() == "" {
		t.Error("Expected generated ID")
	}
	if diff := cmp.Diff([]string{"session", "global"}, names(c.Limiters())); diff != "" {
		t.Errorf("Unexpected member order (-want +got):\n%s", diff)
	}
	if c.Used() != 0 {
		t.Errorf("Expected used 0, got %d", c.Used())
	}
	if c.Capacity() != 400 {
		t.Errorf("Expected capacity of tightest member 400, got %d", c.Capacity())
	}
}

func TestAddMember_PreservesOrder(t *testing.T) {
	c := New("c", []budget.Limiter{budget.New("a", 100), budget.New("c", 300)})

	if err := c.AddMember(budget.New("b", 200)); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := c.AddMember(budget.New("b2", 200)); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := c.AddMember(budget.New("tiny", 1)); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	want := []string{"tiny", "a", "b", "b2", "c"}
	if diff := cmp.Diff(want, names(c.Limiters())); diff != "" {
		t.Errorf("Unexpected member order (-want +got):\n%s", diff)
	}
}

func TestAddMember_Invalid(t *testing.T) {
	c := New("c", nil)
	if err := c.AddMember(nil); err == nil {
		t.Error("Expected error adding nil member")
	}
	if err := c.AddMember(c); err == nil {
		t.Error("Expected error adding composite to itself")
	}
}

func TestAcquire_AllMembersCharged(t *testing.T) {
	global := budget.New("global", 500)
	session := budget.New("session", 400)
	c := New("c", []budget.Limiter{global, session})

	if err := c.Acquire(100); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if global.Available() != 400 || session.Available() != 300 {
		t.Errorf("Expected 400/300 available, got %d/%d", global.Available(), session.Available())
	}
	if c.Held() != 100 {
		t.Errorf("Expected held 100, got %d", c.Held())
	}
	if c.Available() != 300 {
		t.Errorf("Expected composite available 300, got %d", c.Available())
	}

	if err := c.Release(100); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if global.Used() != 0 || session.Used() != 0 || c.Held() != 0 {
		t.Error("Expected everything released")
	}
}

func TestAcquire_RollbackOnRejection(t *testing.T) {
	small := budget.New("small", 100)
	medium := budget.New("medium", 200)
	large := budget.New("large", 300)
	c := New("c", []budget.Limiter{large, medium, small})

	// Exhaust medium through a different path so that small grants but medium rejects.
	if err := medium.Acquire(150); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	err := c.Acquire(60)
	if !errors.Is(err, budget.ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}

	var qe *budget.QuotaError
	if !errors.As(err, &qe) || qe.Limiter != "medium" {
		t.Errorf("Expected rejection by medium, got %v", err)
	}

	if small.Used() != 0 {
		t.Errorf("Expected small rolled back to 0, got %d", small.Used())
	}
	if medium.Used() != 150 {
		t.Errorf("Expected medium untouched at 150, got %d", medium.Used())
	}
	if large.Used() != 0 {
		t.Errorf("Expected large untouched at 0, got %d", large.Used())
	}
	if c.Held() != 0 {
		t.Errorf("Expected held 0, got %d", c.Held())
	}
}

func TestAcquire_InvalidAmount(t *testing.T) {
	c := New("c", []budget.Limiter{budget.New("a", 10)})
	if err := c.Acquire(-1); !errors.Is(err, budget.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if err := c.Release(-1); !errors.Is(err, budget.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
}

func TestUsed_ReportsBindingMember(t *testing.T) {
	global := budget.New("global", 1000)
	session := budget.New("session", 400)
	c := New("c", []budget.Limiter{global, session})

	// global is 90% used by other traffic, session only 25% by this composite.
	_ = global.Acquire(800)
	_ = c.Acquire(100)

	if c.Used() != 900 {
		t.Errorf("Expected used of binding member 900, got %d", c.Used())
	}
	if c.Binding() != budget.Limiter(global) {
		t.Errorf("Expected global to be binding, got %s", c.Binding().Name())
	}
}

func TestMember_Lookup(t *testing.T) {
	c := New("c", []budget.Limiter{budget.New("session", 10)})

	if _, err := c.Member("session"); err != nil {
		t.Errorf("Expected session member: %v", err)
	}
	if _, err := c.Member("missing"); !errors.Is(err, budget.ErrUnknownMember) {
		t.Errorf("Expected ErrUnknownMember, got %v", err)
	}
}

func TestAddMember_CarriesHeldUsage(t *testing.T) {
	c := New("c", []budget.Limiter{budget.New("session", 400)})
	_ = c.Acquire(100)

	identity := budget.New("identity", 400)
	if err := c.AddMember(identity); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if identity.Available() != 300 {
		t.Errorf("Expected carried usage to leave 300 available, got %d", identity.Available())
	}

	tooSmall := budget.New("tiny", 50)
	if err := c.AddMember(tooSmall); !errors.Is(err, budget.ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded carrying usage, got %v", err)
	}
	if len(c.Limiters()) != 2 {
		t.Errorf("Expected rejected member not to be added, got %v", names(c.Limiters()))
	}
	if tooSmall.Used() != 0 {
		t.Errorf("Expected rejected member untouched, got %d", tooSmall.Used())
	}
}

func TestClose_ReleasesHeldAndRunsHooks(t *testing.T) {
	global := budget.New("global", 500)
	shared := budget.New("shared", 400)
	c := New("c", []budget.Limiter{global, budget.New("session", 300)})

	var calls int
	if err := c.AddMember(shared, OnClose(func() { calls++ })); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	_ = c.Acquire(120)

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("Expected hook to run once, ran %d times", calls)
	}
	if global.Used() != 0 || shared.Used() != 0 {
		t.Errorf("Expected held usage returned, global=%d shared=%d", global.Used(), shared.Used())
	}
	if !c.Closed() {
		t.Error("Expected composite to report closed")
	}
	if err := c.Acquire(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := c.AddMember(budget.New("late", 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestNested(t *testing.T) {
	inner := New("inner", []budget.Limiter{budget.New("a", 50), budget.New("b", 70)})
	outer := New("outer", []budget.Limiter{budget.New("wide", 1000), inner})

	if diff := cmp.Diff([]string{"inner", "wide"}, names(outer.Limiters())); diff != "" {
		t.Errorf("Unexpected member order (-want +got):\n%s", diff)
	}

	if err := outer.Acquire(40); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := outer.Acquire(20); !errors.Is(err, budget.ErrQuotaExceeded) {
		t.Fatalf("Expected inner member a to reject, got %v", err)
	}

	wide, _ := outer.Member("wide")
	if wide.Used() != 40 {
		t.Errorf("Expected wide used 40, got %d", wide.Used())
	}
	if inner.Held() != 40 {
		t.Errorf("Expected inner held 40, got %d", inner.Held())
	}
}

func TestAdvisoryMembersNeverReject(t *testing.T) {
	soft := budget.New("soft", 10, budget.WithStrategy(enforcement.Advisory{}))
	c := New("c", []budget.Limiter{soft})

	if err := c.Acquire(25); err != nil {
		t.Fatalf("Expected advisory acquisition to succeed: %v", err)
	}
	if soft.Overdraft() != 15 {
		t.Errorf("Expected overdraft 15, got %d", soft.Overdraft())
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	acquired int
	rejected int
	released int
}

func (r *recordingObserver) ObserveAcquire(_ *Limiter, _ int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.rejected++
	} else {
		r.acquired++
	}
}

func (r *recordingObserver) ObserveRelease(_ *Limiter, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	c := New("c", []budget.Limiter{budget.New("a", 10)}, WithObserver(obs), WithID("fixed"))

	_ = c.Acquire(5)
	_ = c.Acquire(6)
	_ = c.Release(5)

	if c.ID() != "fixed" {
		t.Errorf("Expected ID fixed, got %s", c.ID())
	}
	if obs.acquired != 1 || obs.rejected != 1 || obs.released != 1 {
		t.Errorf("Unexpected observations: %+v", obs)
	}
}

func TestSnapshot(t *testing.T) {
	c := New("c", []budget.Limiter{budget.New("global", 500), budget.New("session", 400)}, WithID("id-1"))
	_ = c.Acquire(10)

	got := c.Snapshot()
	want := Snapshot{
		ID:   "id-1",
		Name: "c",
		Held: 10,
		Members: []budget.Snapshot{
			{Name: "session", Capacity: 400, Used: 10, Available: 390, Strategy: "strict"},
			{Name: "global", Capacity: 500, Used: 10, Available: 490, Strategy: "strict"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected snapshot (-want +got):\n%s", diff)
	}
}

// TestAcquire_ConcurrentSharedMember checks that composites sharing a member
// never over-commit it and that rejected acquisitions leave no residue.
func TestAcquire_ConcurrentSharedMember(t *testing.T) {
	const workers = 20
	shared := budget.New("shared", 100)

	var g errgroup.Group
	composites := make([]*Limiter, workers)
	for i := range composites {
		composites[i] = New("c", []budget.Limiter{budget.New("session", 50), shared})
	}
	for _, c := range composites {
		g.Go(func() error {
			for i := 0; i < 100; i++ {
				if err := c.Acquire(3); err != nil {
					if !errors.Is(err, budget.ErrQuotaExceeded) {
						return err
					}
					continue
				}
				if err := c.Release(3); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if shared.Used() != 0 {
		t.Errorf("Expected shared member back at 0, got %d", shared.Used())
	}
	for _, c := range composites {
		if c.Held() != 0 {
			t.Errorf("Expected held 0, got %d", c.Held())
		}
	}
}
