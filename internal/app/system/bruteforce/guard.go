package bruteforce

import (
	"context"
	"math"
	"sync"
	"time"
)

// Store persists failure counters. Get returns (nil, nil) when no record
// exists. Increment must be atomic: it creates the record with one attempt or
// adds one to an existing record, sets BlockedUntil to what the new count
// dictates (see Escalate) in the same write, and returns the result.
type Store interface {
	Get(ctx context.Context, identifier string, typ Type) (*Record, error)
	Increment(ctx context.Context, identifier string, typ Type, now time.Time) (*Record, error)
	Delete(ctx context.Context, identifier string, typ Type) error
}

// Status is what Check and RecordFailure report to callers.
type Status struct {
	Blocked      bool
	BlockedUntil *time.Time
	MinutesLeft  int
	Attempts     int
	AttemptsLeft int
}

// Guard applies the lockout table on top of a Store.
type Guard struct {
	store Store
	now   func() time.Time
}

// New creates a Guard backed by store.
func New(store Store) *Guard {
	return &Guard{store: store, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// Check reports whether identifier is currently locked out.
func (g *Guard) Check(ctx context.Context, identifier string, typ Type) (Status, error) {
	rec, err := g.store.Get(ctx, identifier, typ)
	if err != nil {
		return Status{}, err
	}
	now := g.now()
	return statusOf(Evaluate(rec, now), now), nil
}

// RecordFailure counts one failed attempt and applies the lockout it earns.
func (g *Guard) RecordFailure(ctx context.Context, identifier string, typ Type) (Status, error) {
	now := g.now()
	rec, err := g.store.Increment(ctx, identifier, typ, now)
	if err != nil {
		return Status{}, err
	}
	return statusOf(Evaluate(rec, now), now), nil
}

// Reset removes the counter for identifier.
func (g *Guard) Reset(ctx context.Context, identifier string, typ Type) error {
	return g.store.Delete(ctx, identifier, typ)
}

func statusOf(s State, now time.Time) Status {
	switch s.Kind {
	case Locked:
		until := s.Until
		return Status{
			Blocked:      true,
			BlockedUntil: &until,
			MinutesLeft:  int(math.Ceil(until.Sub(now).Minutes())),
			Attempts:     s.Attempts,
		}
	case Warned:
		return Status{Attempts: s.Attempts, AttemptsLeft: AttemptsLeft(s.Attempts)}
	default:
		return Status{AttemptsLeft: AttemptsLeft(0)}
	}
}

// MemoryStore is an in-process Store for tests and the authtest harness.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func memKey(identifier string, typ Type) string {
	return string(typ) + ":" + identifier
}

func (m *MemoryStore) Get(_ context.Context, identifier string, typ Type) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memKey(identifier, typ)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Increment(_ context.Context, identifier string, typ Type, now time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(identifier, typ)
	rec, ok := m.records[key]
	if !ok {
		rec = Record{Identifier: identifier, Type: typ}
	}
	rec = Escalate(rec, now)
	m.records[key] = rec
	return &rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, identifier string, typ Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, memKey(identifier, typ))
	return nil
}

// DeleteStale drops records whose last failure is older than cutoff.
func (m *MemoryStore) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rec := range m.records {
		if rec.LastAttempt.Before(cutoff) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}
