package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"facewatch/internal/model"
)

// Notifier hands a fired alert to the outbound dispatcher. It must not
// block beyond the dispatcher's own send attempt and must not fail the
// caller.
type Notifier interface {
	Send(message, imagePath string)
}

// Sink persists fired alert events durably.
type Sink interface {
	LogEvent(ctx context.Context, ev model.AlertEvent) (int64, error)
}

type Options struct {
	Cooldown          time.Duration
	SoundEnabled      bool
	ScreenshotEnabled bool
	ScreenshotDir     string
	AlertSound        string
	UnknownAlertSound string
}

// Coordinator applies the fire-or-suppress decision per (camera, identity)
// key and materializes the side effects of a fired alert: screenshot,
// sound, notification handoff and persistence. Every decision, fired or
// suppressed, lands in the history.
type Coordinator struct {
	logger   *slog.Logger
	history  *History
	cooldown *Cooldown
	sink     Sink     // optional
	notifier Notifier // optional
	player   Player   // optional

	screenshotDir string
	alertSound    string
	unknownSound  string

	window       atomic.Int64
	soundOn      atomic.Bool
	screenshotOn atomic.Bool

	now func() time.Time
}

func NewCoordinator(opts Options, history *History, sink Sink, notifier Notifier, player Player, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		logger:        logger,
		history:       history,
		cooldown:      NewCooldown(),
		sink:          sink,
		notifier:      notifier,
		player:        player,
		screenshotDir: opts.ScreenshotDir,
		alertSound:    opts.AlertSound,
		unknownSound:  opts.UnknownAlertSound,
		now:           time.Now,
	}
	if c.unknownSound == "" {
		c.unknownSound = c.alertSound
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	c.window.Store(int64(cooldown))
	c.soundOn.Store(opts.SoundEnabled)
	c.screenshotOn.Store(opts.ScreenshotEnabled)
	return c
}

func (c *Coordinator) History() *History {
	return c.history
}

func (c *Coordinator) SetCooldown(d time.Duration) {
	if d >= 0 {
		c.window.Store(int64(d))
	}
}

func (c *Coordinator) CooldownWindow() time.Duration {
	return time.Duration(c.window.Load())
}

func (c *Coordinator) EnableSound(enabled bool) {
	c.soundOn.Store(enabled)
	c.logger.Info("alert sound toggled", "enabled", enabled)
}

func (c *Coordinator) SoundEnabled() bool {
	return c.soundOn.Load()
}

func (c *Coordinator) EnableScreenshots(enabled bool) {
	c.screenshotOn.Store(enabled)
	c.logger.Info("screenshots toggled", "enabled", enabled)
}

func (c *Coordinator) ScreenshotsEnabled() bool {
	return c.screenshotOn.Load()
}

// Trigger handles one matched face. A suppressed trigger records a cooldown
// event and causes no side effects; a fired trigger stamps the cooldown key
// before any I/O is attempted, so a concurrent trigger on the same key
// cannot fire twice.
func (c *Coordinator) Trigger(cameraID int, cameraName string, res model.MatchResult, frame *model.Frame) model.AlertEvent {
	label := CanonicalLabel(identityName(res))
	now := c.now()

	ev := model.AlertEvent{
		ID:         uuid.NewString(),
		CameraID:   cameraID,
		CameraName: cameraName,
		Label:      label,
		Confidence: res.Similarity,
		Timestamp:  now,
		Age:        res.Face.Age,
		Gender:     res.Face.Gender,
	}

	if !c.cooldown.Allow(cameraID, label, now, c.CooldownWindow()) {
		ev.IsCooldown = true
		c.history.Add(ev)
		c.logger.Info("alert suppressed by cooldown",
			"camera_id", cameraID,
			"label", label,
			"confidence", ev.Confidence,
		)
		return ev
	}

	if c.screenshotOn.Load() {
		path, err := c.saveScreenshot(frame, cameraID, label, now)
		if err != nil {
			c.logger.Error("screenshot failed", "camera_id", cameraID, "label", label, "err", err)
		} else {
			ev.ScreenshotPath = path
		}
	}

	c.history.Add(ev)

	if c.soundOn.Load() && c.player != nil {
		sound := c.alertSound
		if IsUnknown(label) {
			sound = c.unknownSound
		}
		if err := c.player.Play(sound); err != nil {
			c.logger.Error("alert sound failed", "path", sound, "err", err)
		}
	}

	if c.notifier != nil {
		c.notifier.Send(buildMessage(ev), ev.ScreenshotPath)
	}

	if c.sink != nil && ev.ScreenshotPath != "" {
		if _, err := c.sink.LogEvent(context.Background(), ev); err != nil {
			c.logger.Error("alert persist failed", "camera_id", cameraID, "label", label, "err", err)
		}
	}

	c.logger.Info("alert fired",
		"camera_id", cameraID,
		"camera", cameraName,
		"label", label,
		"confidence", ev.Confidence,
		"screenshot", ev.ScreenshotPath,
	)
	return ev
}

// Screenshot files are named {local-date-time}_cam{id}_{safeLabel}.jpg.
func (c *Coordinator) saveScreenshot(frame *model.Frame, cameraID int, label string, now time.Time) (string, error) {
	if frame == nil || len(frame.Data) == 0 {
		return "", errors.New("no frame data")
	}
	name := fmt.Sprintf("%s_cam%d_%s.jpg", now.Local().Format("20060102_150405"), cameraID, SafeLabel(label))
	path := filepath.Join(c.screenshotDir, name)
	if err := os.MkdirAll(c.screenshotDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func buildMessage(ev model.AlertEvent) string {
	lines := []string{"Face detected!", "Name: " + ev.Label}
	if ev.Age > 0 {
		lines = append(lines, fmt.Sprintf("Age: about %d", ev.Age))
	}
	if ev.Gender != "" {
		lines = append(lines, "Gender: "+string(ev.Gender))
	}
	lines = append(lines,
		"Camera: "+ev.CameraName,
		fmt.Sprintf("Confidence: %.2f%%", ev.Confidence*100),
		"Time: "+ev.Timestamp.Format("2006-01-02 15:04:05"),
	)
	return strings.Join(lines, "\n")
}

func identityName(res model.MatchResult) string {
	if res.Identity != nil {
		return res.Identity.Name
	}
	return ""
}
