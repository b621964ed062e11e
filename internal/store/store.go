package store

import (
	"errors"
	"log"
	"sync"
	"time"

	"BandWatch/internal/model"
	"BandWatch/internal/persist"
)

// ErrUnknownSymbol is returned for operations on a symbol that was never
// registered. Caller error; never retried.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Store owns the symbol -> BandState map with concurrency safety. All
// mutators (daily reset, band capture, monitor loop, API) go through it; the
// persister is only ever invoked while holding the lock, which keeps the
// write path single-writer.
type Store struct {
	mu        sync.Mutex
	states    map[string]*model.BandState
	persister persist.Persister
	now       func() time.Time
}

// New creates an empty Store. now is injectable for tests.
func New(p persist.Persister, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		states:    make(map[string]*model.BandState),
		persister: p,
		now:       now,
	}
}

// Restore loads the persisted snapshot. Symbols whose trading day is not
// today are stale (the process slept past midnight); they are reset exactly
// as the daily reset would instead of trusting yesterday's band.
func (s *Store) Restore(keepLastPrice bool) error {
	states, err := s.persister.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now()
	for symbol, st := range states {
		if st.TradingDay != today.Format(model.DayFormat) {
			st.Reset(today, keepLastPrice)
			log.Printf("[INFO] %s: stale trading day, state reset", symbol)
		}
		s.states[symbol] = st
	}
	log.Printf("[INFO] restored %d symbol(s)", len(s.states))
	return nil
}

// Register creates a default state for the symbol if absent and persists the
// addition. Idempotent: an existing state (captured band included) is never
// touched. Reports whether the symbol was newly added.
func (s *Store) Register(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[symbol]; ok {
		return false
	}
	s.states[symbol] = model.NewBandState(s.now())
	s.saveLocked()
	return true
}

// Symbols returns the registered symbols.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.states))
	for symbol := range s.states {
		out = append(out, symbol)
	}
	return out
}

// Snapshot returns a deep copy of every state plus the snapshot time.
func (s *Store) Snapshot() (map[string]model.BandState, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.BandState, len(s.states))
	for symbol, st := range s.states {
		out[symbol] = st.Clone()
	}
	return out, s.now()
}

// Get returns a copy of one symbol's state.
func (s *Store) Get(symbol string) (model.BandState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[symbol]
	if !ok {
		return model.BandState{}, ErrUnknownSymbol
	}
	return st.Clone(), nil
}

// Mutate applies fn to one symbol's state atomically with respect to other
// mutators. durable triggers a persistence write after fn returns.
func (s *Store) Mutate(symbol string, durable bool, fn func(*model.BandState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[symbol]
	if !ok {
		return ErrUnknownSymbol
	}
	fn(st)
	if durable {
		s.saveLocked()
	}
	return nil
}

// MutateAll applies fn to every state under one lock acquisition with at
// most one persistence write, so a multi-symbol pass (the daily reset) can
// never leave a partially-persisted day on disk.
func (s *Store) MutateAll(durable bool, fn func(symbol string, st *model.BandState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, st := range s.states {
		fn(symbol, st)
	}
	if durable {
		s.saveLocked()
	}
}

// Save persists the current snapshot (periodic save, shutdown flush).
func (s *Store) Save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
}

// saveLocked writes through the persister. Failures are logged and the
// process keeps serving from memory; the next successful write recovers
// durability.
func (s *Store) saveLocked() {
	if err := s.persister.Save(s.states); err != nil {
		log.Printf("[ERROR] persist symbol states: %v", err)
	}
}
