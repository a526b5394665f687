package pipeline

import (
	"context"
	"log/slog"
	"time"

	"facewatch/internal/alert"
	"facewatch/internal/camera"
	"facewatch/internal/config"
	"facewatch/internal/model"
	"facewatch/internal/recognize"
)

const defaultTickInterval = 100 * time.Millisecond

// Pipeline is the single consumer of the camera frame slots. Each tick it
// drains at most one frame per running camera, runs recognition on it and
// hands every matched face to the alert coordinator. Capture and
// recognition stay decoupled: a slow tick only makes workers overwrite
// their slots, it never backs up a camera.
type Pipeline struct {
	logger   *slog.Logger
	sup      *camera.Supervisor
	engine   *recognize.Engine
	coord    *alert.Coordinator
	stats    *Stats
	interval time.Duration
}

func New(sup *camera.Supervisor, engine *recognize.Engine, coord *alert.Coordinator, interval time.Duration, logger *slog.Logger) *Pipeline {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Pipeline{
		logger:   logger,
		sup:      sup,
		engine:   engine,
		coord:    coord,
		stats:    NewStats(),
		interval: interval,
	}
}

func (p *Pipeline) Stats() *Stats {
	return p.stats
}

func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("pipeline started", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped")
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick processes one frame per running camera, if one is pending.
func (p *Pipeline) Tick() {
	for _, cam := range p.sup.Running() {
		slot, ok := p.sup.Slot(cam.ID)
		if !ok {
			continue
		}
		frame, ok := slot.TryGet()
		if !ok {
			continue
		}
		p.process(cam, frame)
	}
}

func (p *Pipeline) process(cam config.CameraConfig, frame *model.Frame) {
	results := p.engine.DetectAndMatch(frame)
	var matches, fired, suppressed int
	for _, res := range results {
		if res.Identity != nil {
			matches++
		}
		ev := p.coord.Trigger(cam.ID, cam.Name, res, frame)
		if ev.IsCooldown {
			suppressed++
		} else {
			fired++
		}
	}
	p.stats.record(cam.ID, len(results), matches, fired, suppressed, frame.Timestamp)
}
