package alert

import (
	"sync"
	"time"

	"facewatch/internal/model"
)

// History is the bounded in-memory log of alert events, fired and
// suppressed alike. When full, the oldest entry gives way.
type History struct {
	mu    sync.RWMutex
	buf   []model.AlertEvent
	limit int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1000
	}
	return &History{limit: limit}
}

func (h *History) Add(ev model.AlertEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buf) < h.limit {
		h.buf = append(h.buf, ev)
		return
	}
	copy(h.buf, h.buf[1:])
	h.buf[len(h.buf)-1] = ev
}

// Recent returns up to limit events, newest first.
func (h *History) Recent(limit int) []model.AlertEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > len(h.buf) {
		limit = len(h.buf)
	}
	out := make([]model.AlertEvent, 0, limit)
	for i := len(h.buf) - 1; i >= len(h.buf)-limit; i-- {
		out = append(out, h.buf[i])
	}
	return out
}

func (h *History) Since(ts time.Time) []model.AlertEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.AlertEvent, 0)
	for _, ev := range h.buf {
		if !ev.Timestamp.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buf)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf = nil
}
