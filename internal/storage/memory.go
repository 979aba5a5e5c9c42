// Package storage keeps a short in-memory history of recent frames for the
// history endpoint. Nothing persists across restarts.
package storage

import (
	"sync"

	"obd-go-gateway/internal/telemetry"
)

const maxBufferSize = 100

// FrameStore is a bounded ring of the most recent frames.
type FrameStore struct {
	mu       sync.RWMutex
	buffer   []telemetry.Frame
	capacity int
}

func NewFrameStore() *FrameStore {
	return &FrameStore{
		buffer:   make([]telemetry.Frame, 0, maxBufferSize),
		capacity: maxBufferSize,
	}
}

// Publish implements the poller sink.
func (s *FrameStore) Publish(frame telemetry.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= s.capacity {
		s.buffer = s.buffer[1:]
	}
	s.buffer = append(s.buffer, frame)
}

// Recent returns up to count of the newest frames, oldest first.
func (s *FrameStore) Recent(count int) []telemetry.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.buffer) {
		count = len(s.buffer)
	}
	result := make([]telemetry.Frame, count)
	copy(result, s.buffer[len(s.buffer)-count:])
	return result
}
