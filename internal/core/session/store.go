// Package session owns the cross-step session state. All writes go through
// Apply; Reset clears everything at once.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

// ErrStaleLease is returned when a lease outlives the session it was taken
// from.
var ErrStaleLease = errors.New("session lease is stale")

// Mutation changes one field group of the session. Returning an error leaves
// the session untouched.
type Mutation struct {
	Event string
	apply func(*domain.SessionState) error
}

// Event is delivered to observers after a mutation has been applied.
type Event struct {
	Type     string
	Snapshot domain.SessionState
}

type Observer func(Event)

type Store struct {
	mu        sync.Mutex
	state     domain.SessionState
	epoch     uint64
	observers []Observer
}

func NewStore() *Store {
	return &Store{state: domain.SessionState{ID: uuid.NewString()}}
}

// Observe registers fn for every applied mutation and reset.
func (s *Store) Observe(fn Observer) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Store) Snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Apply is the single mutation entry point.
func (s *Store) Apply(m Mutation) error {
	return s.apply(0, false, m)
}

// Reset clears all fields atomically and invalidates outstanding leases.
func (s *Store) Reset() {
	s.mu.Lock()
	s.epoch++
	s.state = domain.SessionState{ID: uuid.NewString()}
	snapshot := s.state.Clone()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	notify(observers, Event{Type: "session.reset", Snapshot: snapshot})
}

// Lease ties asynchronous continuations to the current session lifetime.
func (s *Store) Lease() Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Lease{store: s, epoch: s.epoch}
}

func (s *Store) apply(epoch uint64, leased bool, m Mutation) error {
	if m.apply == nil {
		return fmt.Errorf("session: empty mutation")
	}

	s.mu.Lock()
	if leased && epoch != s.epoch {
		s.mu.Unlock()
		return ErrStaleLease
	}
	next := s.state.Clone()
	if err := m.apply(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	snapshot := s.state.Clone()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	notify(observers, Event{Type: m.Event, Snapshot: snapshot})
	return nil
}

func notify(observers []Observer, ev Event) {
	for _, fn := range observers {
		fn(ev)
	}
}

// Lease is a liveness token. After a Reset its Apply calls are dropped.
type Lease struct {
	store *Store
	epoch uint64
}

func (l Lease) Alive() bool {
	if l.store == nil {
		return false
	}
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return l.store.epoch == l.epoch
}

func (l Lease) Apply(m Mutation) error {
	if l.store == nil {
		return ErrStaleLease
	}
	return l.store.apply(l.epoch, true, m)
}
