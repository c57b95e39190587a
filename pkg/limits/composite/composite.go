package composite

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mercator-hq/quota/pkg/limits/budget"
)

// ErrClosed is returned when a closed composite is used.
var ErrClosed = errors.New("composite limiter closed")

// Observer is notified about admission decisions made by a composite.
// Implementations must be safe for concurrent use and must not call back
// into the composite.
type Observer interface {
	ObserveAcquire(c *Limiter, amount int64, err error)
	ObserveRelease(c *Limiter, amount int64)
}

// Option configures a composite Limiter.
type Option func(*Limiter)

// WithObserver installs an Observer.
func WithObserver(o Observer) Option {
	return func(c *Limiter) {
		c.observer = o
	}
}

// WithID overrides the generated identifier.
func WithID(id string) Option {
	return func(c *Limiter) {
		if id != "" {
			c.id = id
		}
	}
}

// MemberOption configures a member added with AddMember.
type MemberOption func(*member)

// OnClose registers fn to run once when the composite is closed. It is how
// shared members hand their reference back to whoever owns them.
func OnClose(fn func()) MemberOption {
	return func(m *member) {
		m.onClose = fn
	}
}

type member struct {
	limiter budget.Limiter
	onClose func()
}

// Limiter enforces an ordered set of limiters jointly: an acquisition
// succeeds only if every member grants it.
//
// Members are kept sorted ascending by capacity so the tightest budget is
// asked first and a rejection usually happens before any looser budget is
// touched. When a later member rejects, every member that already granted
// the amount is released again before the error is returned.
//
// A composite also implements budget.Limiter, so composites nest.
type Limiter struct {
	id       string
	name     string
	observer Observer

	mu      sync.Mutex
	members []member
	held    int64
	closed  bool
}

// New creates a composite from the given members.
//
// Example:
//
//	c := composite.New("request", []budget.Limiter{global, session})
//	defer c.Close()
//
//	if err := c.Acquire(4096); err != nil {
//	    return err
//	}
//	defer c.Release(4096)
func New(name string, members []budget.Limiter, opts ...Option) *Limiter {
	c := &Limiter{
		id:   uuid.New().String(),
		name: name,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, l := range members {
		if l != nil {
			c.insertLocked(member{limiter: l})
		}
	}
	return c
}

// ID returns the unique identifier of the composite.
func (c *Limiter) ID() string {
	return c.id
}

// Name implements budget.Limiter.
func (c *Limiter) Name() string {
	return c.name
}

// AddMember inserts l at the position determined by its capacity.
//
// If the composite already holds usage, that usage is charged to l first,
// so the new member sees everything acquired through this composite. When l
// cannot absorb it the member is not added and the error is returned.
func (c *Limiter) AddMember(l budget.Limiter, opts ...MemberOption) error {
	if l == nil {
		return fmt.Errorf("composite %q: member cannot be nil", c.name)
	}
	if l == budget.Limiter(c) {
		return fmt.Errorf("composite %q: cannot add itself as a member", c.name)
	}

	m := member{limiter: l}
	for _, opt := range opts {
		opt(&m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.held > 0 {
		if err := l.Acquire(c.held); err != nil {
			return fmt.Errorf("composite %q: carrying %d to %q: %w", c.name, c.held, l.Name(), err)
		}
	}
	c.insertLocked(m)
	return nil
}

// insertLocked keeps members sorted by capacity. Equal capacities keep
// insertion order.
func (c *Limiter) insertLocked(m member) {
	capacity := m.limiter.Capacity()
	i := sort.Search(len(c.members), func(i int) bool {
		return c.members[i].limiter.Capacity() > capacity
	})
	c.members = append(c.members, member{})
	copy(c.members[i+1:], c.members[i:])
	c.members[i] = m
}

// Acquire implements budget.Limiter. It is all-or-nothing across members.
func (c *Limiter) Acquire(amount int64) error {
	err := c.acquire(amount)
	if c.observer != nil {
		c.observer.ObserveAcquire(c, amount, err)
	}
	return err
}

func (c *Limiter) acquire(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("composite %q: acquire %d: %w", c.name, amount, budget.ErrInvalidAmount)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	for i, m := range c.members {
		if err := m.limiter.Acquire(amount); err != nil {
			for _, granted := range c.members[:i] {
				_ = granted.limiter.Release(amount)
			}
			return fmt.Errorf("composite %q: %w", c.name, err)
		}
	}
	c.held += amount
	return nil
}

// Release implements budget.Limiter. Every member is released; releases are
// never rejected.
func (c *Limiter) Release(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("composite %q: release %d: %w", c.name, amount, budget.ErrInvalidAmount)
	}

	c.mu.Lock()
	for _, m := range c.members {
		_ = m.limiter.Release(amount)
	}
	c.held = max(c.held-amount, 0)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.ObserveRelease(c, amount)
	}
	return nil
}

// Used implements budget.Limiter. It reports the used value of the member
// closest to exhaustion, that is the member with the highest used/capacity
// ratio. Ties go to the earlier, tighter member.
func (c *Limiter) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bindingLocked()
	if b == nil {
		return 0
	}
	return b.Used()
}

// Binding returns the member closest to exhaustion, or nil if there are no
// members.
func (c *Limiter) Binding() budget.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindingLocked()
}

func (c *Limiter) bindingLocked() budget.Limiter {
	var (
		binding budget.Limiter
		highest = -1.0
	)
	for _, m := range c.members {
		if u := budget.Utilization(m.limiter); u > highest {
			binding, highest = m.limiter, u
		}
	}
	return binding
}

// Capacity implements budget.Limiter. It is the capacity of the tightest
// member, which is also what orders a nested composite.
func (c *Limiter) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.members) == 0 {
		return 0
	}
	return c.members[0].limiter.Capacity()
}

// Available implements budget.Limiter. It is the smallest headroom of any
// member, the most that a single Acquire could currently be granted.
func (c *Limiter) Available() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.members) == 0 {
		return 0
	}
	available := c.members[0].limiter.Available()
	for _, m := range c.members[1:] {
		available = min(available, m.limiter.Available())
	}
	return available
}

// Held returns the amount acquired through this composite and not released yet.
func (c *Limiter) Held() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// Limiters returns the members in enforcement order. The returned slice is
// a copy.
func (c *Limiter) Limiters() []budget.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]budget.Limiter, len(c.members))
	for i, m := range c.members {
		out[i] = m.limiter
	}
	return out
}

// Member returns the first member named name.
func (c *Limiter) Member(name string) (budget.Limiter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.members {
		if m.limiter.Name() == name {
			return m.limiter, nil
		}
	}
	return nil, fmt.Errorf("composite %q: member %q: %w", c.name, name, budget.ErrUnknownMember)
}

// Closed reports whether Close has been called.
func (c *Limiter) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close ends the composite's life. Outstanding usage is returned to every
// member, then the OnClose hooks of shared members run in member order.
// Close is idempotent.
func (c *Limiter) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	members := c.members
	held := c.held
	c.members = nil
	c.held = 0

	if held > 0 {
		for _, m := range members {
			_ = m.limiter.Release(held)
		}
	}
	c.mu.Unlock()

	for _, m := range members {
		if m.onClose != nil {
			m.onClose()
		}
	}
	return nil
}

// Snapshot returns the composite's state for introspection.
func (c *Limiter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ID:      c.id,
		Name:    c.name,
		Held:    c.held,
		Closed:  c.closed,
		Members: make([]budget.Snapshot, 0, len(c.members)),
	}
	for _, m := range c.members {
		s.Members = append(s.Members, snapshotOf(m.limiter))
	}
	return s
}

func snapshotOf(l budget.Limiter) budget.Snapshot {
	if b, ok := l.(*budget.Budget); ok {
		return b.Snapshot()
	}
	return budget.Snapshot{
		Name:      l.Name(),
		Capacity:  l.Capacity(),
		Used:      l.Used(),
		Available: l.Available(),
		Strategy:  "composite",
	}
}
