package persist

import "BandWatch/internal/model"

// Persister durably stores the symbol store's contents and reconstructs
// them at startup. Save receives a full snapshot; implementations must be
// safe to call from a single writer at a time (the store serializes calls).
type Persister interface {
	Load() (map[string]*model.BandState, error)
	Save(states map[string]*model.BandState) error
	Close() error
}

// NoopPersister discards writes and loads nothing. Used when persistence is
// disabled and in tests.
type NoopPersister struct{}

func NewNoopPersister() *NoopPersister { return &NoopPersister{} }

func (n *NoopPersister) Load() (map[string]*model.BandState, error) {
	return map[string]*model.BandState{}, nil
}
func (n *NoopPersister) Save(_ map[string]*model.BandState) error { return nil }
func (n *NoopPersister) Close() error                             { return nil }
