package camera

import (
	"sync"

	"facewatch/internal/model"
)

// Slot is a depth-1 overwrite buffer between one capture worker and the
// pipeline consumer. Put never blocks the producer: an unread frame is
// discarded and replaced. TryGet never blocks the consumer and always
// yields the most recent unread frame.
type Slot struct {
	mu    sync.Mutex
	frame *model.Frame
	drops uint64
}

func NewSlot() *Slot {
	return &Slot{}
}

func (s *Slot) Put(frame *model.Frame) {
	if frame == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		s.drops++
	}
	s.frame = frame
}

func (s *Slot) TryGet() (*model.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	frame := s.frame
	s.frame = nil
	return frame, true
}

// Drops reports how many unread frames have been overwritten so far.
func (s *Slot) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}
