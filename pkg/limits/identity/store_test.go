package identity

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"mercator-hq/quota/pkg/limits/budget"
)

func TestStore_AcquireForCreatesAndShares(t *testing.T) {
	store := NewStore()

	first, err := store.AcquireFor("vasya", 400)
	if err != nil {
		t.Fatalf("AcquireFor failed: %v", err)
	}
	if store.Size() != 1 {
		t.Errorf("Expected size 1, got %d", store.Size())
	}

	_ = first.Budget().Acquire(100)

	// Capacity of a second acquisition is ignored; usage is retained.
	second, err := store.AcquireFor("vasya", 9999)
	if err != nil {
		t.Fatalf("AcquireFor failed: %v", err)
	}
	if second.Budget() != first.Budget() {
		t.Error("Expected the same shared budget")
	}
	if second.Budget().Available() != 300 {
		t.Errorf("Expected available 300, got %d", second.Budget().Available())
	}

	_, refs, ok := store.Lookup("vasya")
	if !ok || refs != 2 {
		t.Errorf("Expected 2 refs, got %d (ok=%v)", refs, ok)
	}
}

func TestStore_EmptyIdentity(t *testing.T) {
	s := NewStore()
	if _, err := s.AcquireFor("", 1); !errors.Is(err, budget.ErrEmptyIdentity) {
		t.Errorf("Expected ErrEmptyIdentity, got %v", err)
	}
	if s.Size() != 0 {
		t.Errorf("Expected no entry for the empty identity, got %d", s.Size())
	}

	// Whitespace and other unusual keys are opaque and accepted.
	for _, id := range []string{" ", "0", "user@example.com", "ключ"} {
		lease, err := s.AcquireFor(id, 1)
		if err != nil {
			t.Errorf("AcquireFor(%q) failed: %v", id, err)
			continue
		}
		lease.Release()
	}
}

func TestStore_ReleaseForRemovesAtZero(t *testing.T) {
	store := NewStore()
	_, _ = store.AcquireFor("42", 400)
	lease, _ := store.AcquireFor("42", 400)
	_ = lease.Budget().Acquire(150)

	removed, err := store.ReleaseFor("42")
	if err != nil || removed {
		t.Fatalf("Expected entry to survive first release, removed=%v err=%v", removed, err)
	}

	removed, err = store.ReleaseFor("42")
	if err != nil || !removed {
		t.Fatalf("Expected entry removed, removed=%v err=%v", removed, err)
	}
	if store.Size() != 0 {
		t.Errorf("Expected size 0, got %d", store.Size())
	}

	// A fresh acquisition starts at full capacity.
	fresh, _ := store.AcquireFor("42", 400)
	if fresh.Budget().Available() != 400 {
		t.Errorf("Expected fresh budget with 400 available, got %d", fresh.Budget().Available())
	}
}

func TestStore_ReleaseForUnknown(t *testing.T) {
	_, err := NewStore().ReleaseFor("ghost")
	if !errors.Is(err, budget.ErrUnknownIdentity) {
		t.Errorf("Expected ErrUnknownIdentity, got %v", err)
	}
}

func TestLease_ReleaseIsIdempotent(t *testing.T) {
	store := NewStore()
	a, _ := store.AcquireFor("x", 10)
	b, _ := store.AcquireFor("x", 10)

	if a.Release() {
		t.Error("Expected first lease release not to remove entry")
	}
	if a.Release() {
		t.Error("Expected repeated release to be a no-op")
	}
	if store.Size() != 1 {
		t.Errorf("Expected entry to survive, size %d", store.Size())
	}
	if !b.Release() {
		t.Error("Expected last lease to remove entry")
	}
	if store.Size() != 0 {
		t.Errorf("Expected size 0, got %d", store.Size())
	}
}

func TestLease_StaleAfterReset(t *testing.T) {
	store := NewStore()
	stale, _ := store.AcquireFor("x", 10)
	store.Reset()

	current, _ := store.AcquireFor("x", 10)
	if stale.Release() {
		t.Error("Expected stale lease not to remove the new entry")
	}
	if _, refs, ok := store.Lookup("x"); !ok || refs != 1 {
		t.Errorf("Expected new entry untouched with 1 ref, got refs=%d ok=%v", refs, ok)
	}
	current.Release()
}

func TestStore_BudgetFuncAndHooks(t *testing.T) {
	var created, reclaimed []string
	store := NewStore(
		WithBudgetFunc(func(identity string, capacity int64) *budget.Budget {
			return budget.New("identity_"+identity, capacity)
		}),
		WithHooks(
			func(id string) { created = append(created, id) },
			func(id string) { reclaimed = append(reclaimed, id) },
		),
	)

	lease, _ := store.AcquireFor("69", 400)
	if lease.Budget().Name() != "identity_69" {
		t.Errorf("Expected name identity_69, got %s", lease.Budget().Name())
	}
	if lease.Identity() != "69" {
		t.Errorf("Expected identity 69, got %s", lease.Identity())
	}
	lease.Release()

	if diff := cmp.Diff([]string{"69"}, created); diff != "" {
		t.Errorf("Unexpected created (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"69"}, reclaimed); diff != "" {
		t.Errorf("Unexpected reclaimed (-want +got):\n%s", diff)
	}
}

func TestStore_Snapshot(t *testing.T) {
	store := NewStore()
	b, _ := store.AcquireFor("b", 20)
	_, _ = store.AcquireFor("a", 10)
	_, _ = store.AcquireFor("b", 20)
	_ = b.Budget().Acquire(5)

	want := []Entry{
		{Identity: "a", Refs: 1, Budget: budget.Snapshot{Name: "a", Capacity: 10, Available: 10, Strategy: "strict"}},
		{Identity: "b", Refs: 2, Budget: budget.Snapshot{Name: "b", Capacity: 20, Used: 5, Available: 15, Strategy: "strict"}},
	}
	if diff := cmp.Diff(want, store.Snapshot()); diff != "" {
		t.Errorf("Unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestStore_BulkReclamation(t *testing.T) {
	store := NewStore()
	leases := make([]*Lease, 0, 100)
	for i := 0; i < 100; i++ {
		lease, err := store.AcquireFor(fmt.Sprint(i), 1)
		if err != nil {
			t.Fatalf("AcquireFor failed: %v", err)
		}
		leases = append(leases, lease)
	}
	if store.Size() != 100 {
		t.Errorf("Expected size 100, got %d", store.Size())
	}
	for _, l := range leases {
		l.Release()
	}
	if store.Size() != 0 {
		t.Errorf("Expected size 0, got %d", store.Size())
	}
}

// TestStore_ConcurrentChurn races acquisitions and releases of a small set
// of identities and checks that nothing leaks and no entry is reused after
// removal.
func TestStore_ConcurrentChurn(t *testing.T) {
	var creates, reclaims atomic.Int64
	store := NewStore(WithHooks(
		func(string) { creates.Add(1) },
		func(string) { reclaims.Add(1) },
	))

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				id := fmt.Sprint(i % 7)
				lease, err := store.AcquireFor(id, 100)
				if err != nil {
					return err
				}
				if err := lease.Budget().Acquire(1); err != nil && !errors.Is(err, budget.ErrQuotaExceeded) {
					return err
				}
				_ = lease.Budget().Release(1)
				lease.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if store.Size() != 0 {
		t.Errorf("Expected size 0 after churn, got %d", store.Size())
	}
	if creates.Load() != reclaims.Load() {
		t.Errorf("Expected creates == reclaims, got %d != %d", creates.Load(), reclaims.Load())
	}
}

func TestStore_ConcurrentSameIdentityRefs(t *testing.T) {
	store := NewStore()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		leases []*Lease
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, _ := store.AcquireFor("hot", 10)
			mu.Lock()
			leases = append(leases, lease)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if _, refs, _ := store.Lookup("hot"); refs != 64 {
		t.Errorf("Expected 64 refs, got %d", refs)
	}
	first := leases[0].Budget()
	for _, l := range leases {
		if l.Budget() != first {
			t.Fatal("Expected every lease to share one budget")
		}
	}
	for _, l := range leases {
		l.Release()
	}
	if store.Size() != 0 {
		t.Errorf("Expected size 0, got %d", store.Size())
	}
}
