package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facewatch/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	messages []string
	images   []string
}

func (n *recordingNotifier) Send(message, imagePath string) {
	n.messages = append(n.messages, message)
	n.images = append(n.images, imagePath)
}

type recordingSink struct {
	events []model.AlertEvent
	err    error
}

func (s *recordingSink) LogEvent(_ context.Context, ev model.AlertEvent) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.events = append(s.events, ev)
	return int64(len(s.events)), nil
}

type recordingPlayer struct {
	played []string
}

func (p *recordingPlayer) Play(path string) error {
	p.played = append(p.played, path)
	return nil
}

func testCoordinator(t *testing.T) (*Coordinator, *recordingNotifier, *recordingSink, *recordingPlayer) {
	t.Helper()
	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	player := &recordingPlayer{}
	c := NewCoordinator(Options{
		Cooldown:          10 * time.Second,
		SoundEnabled:      true,
		ScreenshotEnabled: true,
		ScreenshotDir:     t.TempDir(),
		AlertSound:        "alert.wav",
		UnknownAlertSound: "unknown.wav",
	}, NewHistory(100), sink, notifier, player, testLogger())
	return c, notifier, sink, player
}

func matchFor(name string) model.MatchResult {
	res := model.MatchResult{
		Similarity: 0.91,
		Face:       model.DetectedFace{Age: 30, Gender: model.GenderMale},
	}
	if name != "" {
		res.Identity = &model.KnownIdentity{Name: name}
	}
	return res
}

func testFrame() *model.Frame {
	return &model.Frame{CameraID: 1, Data: []byte("jpeg-bytes")}
}

func TestTriggerFireSuppressFire(t *testing.T) {
	c, notifier, sink, player := testCoordinator(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	now := base
	c.now = func() time.Time { return now }

	ev := c.Trigger(1, "Front Door", matchFor("alice"), testFrame())
	if ev.IsCooldown {
		t.Fatalf("first trigger should fire")
	}
	if ev.ScreenshotPath == "" {
		t.Fatalf("fired trigger should save a screenshot")
	}
	if _, err := os.Stat(ev.ScreenshotPath); err != nil {
		t.Fatalf("screenshot not on disk: %v", err)
	}
	wantName := fmt.Sprintf("%s_cam1_alice.jpg", base.Format("20060102_150405"))
	if got := filepath.Base(ev.ScreenshotPath); got != wantName {
		t.Fatalf("screenshot name = %q, want %q", got, wantName)
	}
	if len(notifier.messages) != 1 || len(sink.events) != 1 || len(player.played) != 1 {
		t.Fatalf("side effects = %d/%d/%d, want 1/1/1", len(notifier.messages), len(sink.events), len(player.played))
	}
	if !strings.Contains(notifier.messages[0], "Name: alice") {
		t.Fatalf("message missing name: %q", notifier.messages[0])
	}
	if !strings.Contains(notifier.messages[0], "Age: about 30") {
		t.Fatalf("message missing age: %q", notifier.messages[0])
	}
	if notifier.images[0] != ev.ScreenshotPath {
		t.Fatalf("notifier got image %q, want %q", notifier.images[0], ev.ScreenshotPath)
	}
	if player.played[0] != "alert.wav" {
		t.Fatalf("played %q, want alert.wav", player.played[0])
	}

	now = base.Add(3 * time.Second)
	ev2 := c.Trigger(1, "Front Door", matchFor("alice"), testFrame())
	if !ev2.IsCooldown {
		t.Fatalf("trigger inside cooldown should be suppressed")
	}
	if ev2.ScreenshotPath != "" {
		t.Fatalf("suppressed trigger must not save a screenshot")
	}
	if len(notifier.messages) != 1 || len(sink.events) != 1 || len(player.played) != 1 {
		t.Fatalf("suppressed trigger caused side effects")
	}
	if ts, _ := c.cooldown.LastFired(1, "alice"); !ts.Equal(base) {
		t.Fatalf("suppressed trigger moved the cooldown stamp to %v", ts)
	}
	if c.History().Len() != 2 {
		t.Fatalf("history len = %d, want 2 (fired and suppressed)", c.History().Len())
	}

	now = base.Add(11 * time.Second)
	ev3 := c.Trigger(1, "Front Door", matchFor("alice"), testFrame())
	if ev3.IsCooldown {
		t.Fatalf("trigger after the window should fire")
	}
	if len(notifier.messages) != 2 {
		t.Fatalf("second fire did not notify")
	}
}

func TestTriggerUnknownUsesUnknownSound(t *testing.T) {
	c, _, _, player := testCoordinator(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	c.now = func() time.Time { return now }

	ev := c.Trigger(1, "Front Door", matchFor(""), testFrame())
	if ev.Label != UnknownLabel {
		t.Fatalf("label = %q, want %q", ev.Label, UnknownLabel)
	}
	if len(player.played) != 1 || player.played[0] != "unknown.wav" {
		t.Fatalf("played %v, want [unknown.wav]", player.played)
	}
}

func TestTriggerScreenshotFailureStillFires(t *testing.T) {
	c, notifier, sink, _ := testCoordinator(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	c.now = func() time.Time { return now }

	ev := c.Trigger(1, "Front Door", matchFor("alice"), &model.Frame{CameraID: 1})
	if ev.IsCooldown {
		t.Fatalf("screenshot failure must not suppress the alert")
	}
	if ev.ScreenshotPath != "" {
		t.Fatalf("screenshot path should be empty on failure")
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("notification should still go out")
	}
	if len(sink.events) != 0 {
		t.Fatalf("event without a screenshot must not be persisted")
	}
}

func TestTriggerPersistFailureIsNonFatal(t *testing.T) {
	c, notifier, sink, _ := testCoordinator(t)
	sink.err = errors.New("db down")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	c.now = func() time.Time { return now }

	ev := c.Trigger(1, "Front Door", matchFor("alice"), testFrame())
	if ev.IsCooldown || len(notifier.messages) != 1 {
		t.Fatalf("persist failure must not affect the alert")
	}
}

func TestTriggerDifferentCamerasIndependent(t *testing.T) {
	c, notifier, _, _ := testCoordinator(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	c.now = func() time.Time { return now }

	c.Trigger(1, "Front Door", matchFor("alice"), testFrame())
	ev := c.Trigger(2, "Back Door", matchFor("alice"), testFrame())
	if ev.IsCooldown {
		t.Fatalf("same label on another camera should fire")
	}
	if len(notifier.messages) != 2 {
		t.Fatalf("expected two notifications, got %d", len(notifier.messages))
	}
}
