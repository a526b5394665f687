package alert

import (
	"strconv"
	"sync"
	"time"
)

// Cooldown tracks the last fire time per (camera, label) key. Allow is a
// check-and-stamp: a caller that is told to fire has already claimed the
// window, so near-simultaneous triggers on the same key cannot both fire.
// Entries live for the process lifetime, bounded by the set of keys seen.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(cameraID int, label string, now time.Time, window time.Duration) bool {
	return c.AllowKey(Key(cameraID, label), now, window)
}

// AllowKey returns true and stamps the key when at least window has passed
// since the last fire. A suppressed call leaves the stamp untouched.
func (c *Cooldown) AllowKey(key string, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok {
		if now.Sub(ts) < window {
			return false
		}
	}
	c.last[key] = now
	return true
}

func (c *Cooldown) LastFired(cameraID int, label string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.last[Key(cameraID, label)]
	return ts, ok
}

func Key(cameraID int, label string) string {
	return strconv.Itoa(cameraID) + "|" + label
}
