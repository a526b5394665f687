package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"facewatch/internal/config"
)

// Dispatcher rate-limits outbound alerts and diverts failures to local
// fallback storage. The rate limit is hard: a call inside the minimum
// interval is dropped, not queued. Send never surfaces an error and never
// blocks the pipeline beyond one bounded delivery attempt.
type Dispatcher struct {
	logger      *slog.Logger
	ch          Channel
	minInterval time.Duration
	sendTimeout time.Duration
	fallbackLog string
	fallbackDir string

	mu       sync.Mutex
	lastSent time.Time

	now func() time.Time
}

func NewDispatcher(ch Channel, cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		logger:      logger,
		ch:          ch,
		minInterval: cfg.MinInterval,
		sendTimeout: sendTimeout,
		fallbackLog: cfg.FallbackLog,
		fallbackDir: cfg.FallbackImageDir,
		now:         time.Now,
	}
}

func (d *Dispatcher) Send(message, imagePath string) {
	now := d.now()
	d.mu.Lock()
	if now.Sub(d.lastSent) < d.minInterval {
		d.mu.Unlock()
		d.logger.Warn("notification rate limited", "min_interval", d.minInterval.String())
		return
	}
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	var err error
	if imagePath != "" {
		if _, statErr := os.Stat(imagePath); statErr == nil {
			err = d.ch.SendImage(ctx, message, imagePath)
		} else {
			err = d.ch.SendText(ctx, message)
		}
	} else {
		err = d.ch.SendText(ctx, message)
	}
	if err != nil {
		d.logger.Error("notification send failed", "err", err)
		d.saveFailed(message, imagePath)
		return
	}

	d.mu.Lock()
	d.lastSent = now
	d.mu.Unlock()
	d.logger.Info("notification sent")
}

// saveFailed appends the message to the fallback log and moves the image,
// if any, into the fallback image directory for later recovery.
func (d *Dispatcher) saveFailed(message, imagePath string) {
	line := fmt.Sprintf("%s: %s\n", d.now().Format(time.ANSIC), message)
	f, err := os.OpenFile(d.fallbackLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.logger.Error("fallback log open failed", "path", d.fallbackLog, "err", err)
	} else {
		if _, err := f.WriteString(line); err != nil {
			d.logger.Error("fallback log write failed", "path", d.fallbackLog, "err", err)
		}
		_ = f.Close()
	}

	if imagePath == "" {
		return
	}
	if _, err := os.Stat(imagePath); err != nil {
		return
	}
	if err := os.MkdirAll(d.fallbackDir, 0o755); err != nil {
		d.logger.Error("fallback image dir failed", "path", d.fallbackDir, "err", err)
		return
	}
	dst := filepath.Join(d.fallbackDir, fmt.Sprintf("alert_%d.jpg", d.now().Unix()))
	if err := os.Rename(imagePath, dst); err != nil {
		d.logger.Error("fallback image move failed", "src", imagePath, "err", err)
		return
	}
	d.logger.Info("failed alert image saved", "path", dst)
}
