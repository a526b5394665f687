package camera

import (
	"context"
	"log/slog"
	"time"
)

const (
	readRetryBackoff = 1 * time.Second
	joinTimeout      = 2 * time.Second
)

// Worker runs one capture loop for a single camera and publishes the latest
// frame into its slot. Read failures on finite files rewind to the start for
// looped playback; live sources back off and retry without terminating.
type Worker struct {
	cameraID int
	src      Source
	slot     *Slot
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func newWorker(cameraID int, src Source, slot *Slot, logger *slog.Logger) *Worker {
	return &Worker{
		cameraID: cameraID,
		src:      src,
		slot:     slot,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (w *Worker) start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if err := w.src.Close(); err != nil {
			w.logger.Warn("capture close failed", "camera_id", w.cameraID, "err", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := w.src.Read()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if w.src.Rewind() {
				continue
			}
			w.logger.Warn("camera read failed", "camera_id", w.cameraID, "err", err)
			if !backoffSleep(ctx, readRetryBackoff) {
				return
			}
			continue
		}
		w.slot.Put(frame)
	}
}

// stop cancels the worker and waits up to joinTimeout for the loop to exit.
// Returns false when the worker is stuck in a blocking read.
func (w *Worker) stop() bool {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.done:
		return true
	case <-time.After(joinTimeout):
		return false
	}
}

func backoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
