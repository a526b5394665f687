package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"facewatch/internal/config"
)

// Supervisor owns the camera-keyed worker table: one capture worker per
// running camera, each with its own frame slot. All start/stop decisions go
// through it; there is no global registry.
type Supervisor struct {
	logger *slog.Logger
	open   OpenFunc

	mu      sync.Mutex
	cameras map[int]config.CameraConfig
	workers map[int]*Worker
	slots   map[int]*Slot
}

type CameraStatus struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`
	Drops   uint64 `json:"dropped_frames"`
}

func NewSupervisor(open OpenFunc, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		logger:  logger,
		open:    open,
		cameras: make(map[int]config.CameraConfig),
		workers: make(map[int]*Worker),
		slots:   make(map[int]*Slot),
	}
}

// Register records the configured cameras and prepares a slot for each.
// It does not start any workers.
func (s *Supervisor) Register(cameras []config.CameraConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cam := range cameras {
		s.cameras[cam.ID] = cam
		if _, ok := s.slots[cam.ID]; !ok {
			s.slots[cam.ID] = NewSlot()
		}
	}
}

// StartAll starts a worker for every registered camera that is enabled.
// Per-camera open failures are logged and skipped; the camera stays
// registered and can be started later.
func (s *Supervisor) StartAll(ctx context.Context) {
	s.mu.Lock()
	cams := make([]config.CameraConfig, 0, len(s.cameras))
	for _, cam := range s.cameras {
		cams = append(cams, cam)
	}
	s.mu.Unlock()
	sort.Slice(cams, func(i, j int) bool { return cams[i].ID < cams[j].ID })
	for _, cam := range cams {
		if !cam.Enabled {
			s.logger.Info("camera disabled", "camera_id", cam.ID, "name", cam.Name)
			continue
		}
		if err := s.Start(ctx, cam.ID); err != nil {
			s.logger.Error("camera start failed", "camera_id", cam.ID, "err", err)
		}
	}
}

// Start opens the camera source and launches its capture worker. Starting a
// camera that is already running is a no-op.
func (s *Supervisor) Start(ctx context.Context, cameraID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.cameras[cameraID]
	if !ok {
		return fmt.Errorf("camera %d is not configured", cameraID)
	}
	if _, running := s.workers[cameraID]; running {
		return nil
	}
	src, err := s.open(cam)
	if err != nil {
		return fmt.Errorf("camera %d: %w", cameraID, err)
	}
	slot := s.slots[cameraID]
	if slot == nil {
		slot = NewSlot()
		s.slots[cameraID] = slot
	}
	w := newWorker(cameraID, src, slot, s.logger)
	w.start(ctx)
	s.workers[cameraID] = w
	s.logger.Info("camera started", "camera_id", cameraID, "name", cam.Name, "source", cam.Source)
	return nil
}

// Stop signals the worker and joins it with a bounded timeout. A worker
// that does not exit in time is logged and abandoned, never crashed on.
func (s *Supervisor) Stop(cameraID int) {
	s.mu.Lock()
	w, ok := s.workers[cameraID]
	if ok {
		delete(s.workers, cameraID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if !w.stop() {
		s.logger.Warn("camera worker did not exit in time", "camera_id", cameraID)
		return
	}
	s.logger.Info("camera stopped", "camera_id", cameraID)
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Ints(ids)
	for _, id := range ids {
		s.Stop(id)
	}
}

func (s *Supervisor) Slot(cameraID int) (*Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[cameraID]
	return slot, ok
}

// Running returns the configs of cameras with a live worker, sorted by id.
func (s *Supervisor) Running() []config.CameraConfig {
	s.mu.Lock()
	out := make([]config.CameraConfig, 0, len(s.workers))
	for id := range s.workers {
		out = append(out, s.cameras[id])
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Supervisor) Status() []CameraStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CameraStatus, 0, len(s.cameras))
	for id, cam := range s.cameras {
		_, running := s.workers[id]
		var drops uint64
		if slot := s.slots[id]; slot != nil {
			drops = slot.Drops()
		}
		out = append(out, CameraStatus{
			ID:      id,
			Name:    cam.Name,
			Enabled: cam.Enabled,
			Running: running,
			Drops:   drops,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
