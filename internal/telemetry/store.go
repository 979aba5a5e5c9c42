package telemetry

import "sync/atomic"

// Store holds the current frame. Exactly one producer (the polling
// scheduler) publishes; any number of readers take lock-free snapshots.
// Published frames must never be mutated afterwards.
type Store struct {
	current atomic.Value // Frame
}

func NewStore() *Store {
	s := &Store{}
	s.current.Store(New(StatusDisconnected))
	return s
}

// Publish replaces the current frame with a new immutable snapshot.
func (s *Store) Publish(f Frame) {
	s.current.Store(f)
}

// Current returns the most recently published frame.
func (s *Store) Current() Frame {
	return s.current.Load().(Frame)
}
