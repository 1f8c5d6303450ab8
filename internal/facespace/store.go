package facespace

import "sync/atomic"

// Store holds the current model. Readers never block; a new model is
// published with Swap.
type Store struct {
	current atomic.Pointer[Model]
}

// Load returns the current model or nil if none was trained yet.
func (s *Store) Load() *Model {
	return s.current.Load()
}

// Swap publishes m and returns the previous model.
func (s *Store) Swap(m *Model) *Model {
	return s.current.Swap(m)
}
