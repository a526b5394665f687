package pipeline

import (
	"sync"
	"time"
)

// CameraStats are cumulative per-camera pipeline counters.
type CameraStats struct {
	Frames      uint64    `json:"frames"`
	Faces       uint64    `json:"faces"`
	Matches     uint64    `json:"matches"`
	Fired       uint64    `json:"alerts_fired"`
	Suppressed  uint64    `json:"alerts_suppressed"`
	LastFrameAt time.Time `json:"last_frame_at"`
}

type Stats struct {
	mu       sync.RWMutex
	byCamera map[int]CameraStats
}

func NewStats() *Stats {
	return &Stats{byCamera: make(map[int]CameraStats)}
}

func (s *Stats) record(cameraID, faces, matches, fired, suppressed int, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.byCamera[cameraID]
	cs.Frames++
	cs.Faces += uint64(faces)
	cs.Matches += uint64(matches)
	cs.Fired += uint64(fired)
	cs.Suppressed += uint64(suppressed)
	cs.LastFrameAt = ts
	s.byCamera[cameraID] = cs
}

func (s *Stats) Get(cameraID int) (CameraStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.byCamera[cameraID]
	return cs, ok
}

func (s *Stats) All() map[int]CameraStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]CameraStats, len(s.byCamera))
	for id, cs := range s.byCamera {
		out[id] = cs
	}
	return out
}

func (s *Stats) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCamera = make(map[int]CameraStats)
}
