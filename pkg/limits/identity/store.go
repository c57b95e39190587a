package identity

import (
	"fmt"
	"sort"
	"sync"

	"mercator-hq/quota/pkg/limits/budget"
)

// NewBudgetFunc builds the shared budget for an identity seen for the first time.
type NewBudgetFunc func(identity string, capacity int64) *budget.Budget

// Option configures a Store.
type Option func(*Store)

// WithBudgetFunc sets how budgets are built. The default is a strict budget
// named after the raw identity.
func WithBudgetFunc(fn NewBudgetFunc) Option {
	return func(s *Store) {
		if fn != nil {
			s.newBudget = fn
		}
	}
}

// WithHooks installs callbacks for entry creation and reclamation. They run
// after the store's lock is released.
func WithHooks(created, reclaimed func(identity string)) Option {
	return func(s *Store) {
		s.onCreate = created
		s.onReclaim = reclaimed
	}
}

// entry is a shared budget plus the number of live references to it.
type entry struct {
	budget *budget.Budget
	refs   int
}

// Store maps identity keys to shared, reference-counted budgets.
//
// An entry exists if and only if its reference count is at least one. The
// first AcquireFor of an identity creates the entry; the ReleaseFor that
// drops the count to zero removes it in the same critical section, so a
// concurrent AcquireFor either finds the old entry still alive or creates a
// fresh one. A removed entry's usage is forgotten.
//
// Store is safe for concurrent use.
type Store struct {
	// entries maps identity to its shared budget.
	entries map[string]*entry

	// mu protects entries and every refs counter.
	mu sync.Mutex

	newBudget NewBudgetFunc
	onCreate  func(identity string)
	onReclaim func(identity string)
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		newBudget: func(identity string, capacity int64) *budget.Budget {
			return budget.New(identity, capacity)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AcquireFor returns the shared budget for identity and takes a reference
// to it. An existing budget keeps its usage; otherwise a new budget with
// capacityIfAbsent is created.
//
// Any non-empty string is a valid key. The empty key is rejected with
// budget.ErrEmptyIdentity: callers without an identity stay on their
// session budget instead of sharing one anonymous budget.
//
// Every successful AcquireFor must be paired with one ReleaseFor, or with
// Release on the returned Lease.
func (s *Store) AcquireFor(identity string, capacityIfAbsent int64) (*Lease, error) {
	if identity == "" {
		return nil, budget.ErrEmptyIdentity
	}

	s.mu.Lock()
	e, exists := s.entries[identity]
	if exists {
		e.refs++
	} else {
		e = &entry{budget: s.newBudget(identity, capacityIfAbsent), refs: 1}
		s.entries[identity] = e
	}
	s.mu.Unlock()

	if !exists && s.onCreate != nil {
		s.onCreate(identity)
	}
	return &Lease{store: s, identity: identity, entry: e}, nil
}

// ReleaseFor drops one reference to identity's budget and removes the entry
// when none remain. It reports whether the entry was removed.
func (s *Store) ReleaseFor(identity string) (bool, error) {
	s.mu.Lock()
	e, exists := s.entries[identity]
	if !exists {
		s.mu.Unlock()
		return false, fmt.Errorf("release %q: %w", identity, budget.ErrUnknownIdentity)
	}
	removed := s.dropLocked(identity, e)
	s.mu.Unlock()

	if removed && s.onReclaim != nil {
		s.onReclaim(identity)
	}
	return removed, nil
}

// dropLocked decrements e and deletes it at zero.
// Caller must hold s.mu.
func (s *Store) dropLocked(identity string, e *entry) bool {
	e.refs--
	if e.refs > 0 {
		return false
	}
	delete(s.entries, identity)
	return true
}

// Size returns the number of live entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Lookup returns identity's budget and reference count without taking a
// reference.
func (s *Store) Lookup(identity string) (*budget.Budget, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[identity]
	if !exists {
		return nil, 0, false
	}
	return e.budget, e.refs, true
}

// Snapshot returns every live entry sorted by identity.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	budgets := make([]*budget.Budget, 0, len(s.entries))
	for identity, e := range s.entries {
		out = append(out, Entry{Identity: identity, Refs: e.refs})
		budgets = append(budgets, e.budget)
	}
	s.mu.Unlock()

	// Budgets lock themselves; read them outside the store lock.
	for i, b := range budgets {
		out[i].Budget = b.Snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Reset forgets every entry. Outstanding leases become no-ops.
// This should only be used in testing.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// Lease is one reference to a shared identity budget.
type Lease struct {
	store    *Store
	identity string
	entry    *entry
	once     sync.Once
	removed  bool
}

// Identity returns the identity key the lease refers to.
func (l *Lease) Identity() string {
	return l.identity
}

// Budget returns the shared budget.
func (l *Lease) Budget() *budget.Budget {
	return l.entry.budget
}

// Release drops the lease's reference. It is idempotent, and it only
// touches the entry it was issued for: if that entry is gone (after Reset)
// nothing happens. It reports whether this call removed the entry.
func (l *Lease) Release() bool {
	l.once.Do(func() {
		s := l.store
		s.mu.Lock()
		current, exists := s.entries[l.identity]
		if exists && current == l.entry {
			l.removed = s.dropLocked(l.identity, current)
		}
		s.mu.Unlock()

		if l.removed && s.onReclaim != nil {
			s.onReclaim(l.identity)
		}
	})
	return l.removed
}
