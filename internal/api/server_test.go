package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facewatch/internal/alert"
	"facewatch/internal/camera"
	"facewatch/internal/config"
	"facewatch/internal/model"
	"facewatch/internal/pipeline"
	"facewatch/internal/recognize"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noFaceDetector struct{}

func (noFaceDetector) Detect(*model.Frame) ([]model.DetectedFace, error) {
	return nil, errors.New("detector offline")
}

type stalledSource struct{}

func (stalledSource) Read() (*model.Frame, error) { return nil, errors.New("no frame") }
func (stalledSource) Rewind() bool                { return false }
func (stalledSource) Close() error                { return nil }

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
cameras:
  - id: 1
    name: "Front Door"
    source: "0"
    enabled: true
recognition:
  endpoint: "http://127.0.0.1:18081/detect"
gallery:
  dir: "` + filepath.Join(dir, "known_faces") + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	manager, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	sup := camera.NewSupervisor(func(config.CameraConfig) (camera.Source, error) {
		return stalledSource{}, nil
	}, testLogger())
	sup.Register(manager.Get().Cameras)
	t.Cleanup(sup.StopAll)

	engine := recognize.NewEngine(noFaceDetector{}, 0.4, testLogger())
	coord := alert.NewCoordinator(alert.Options{Cooldown: 10 * time.Second}, alert.NewHistory(100), nil, nil, nil, testLogger())

	return &Server{
		cfg:     manager,
		sup:     sup,
		engine:  engine,
		coord:   coord,
		stats:   pipeline.NewStats(),
		logger:  testLogger(),
		version: "test",
		baseCtx: context.Background(),
	}
}

func TestHandleStatus(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Cameras) != 1 || resp.Cameras[0].Name != "Front Door" {
		t.Fatalf("cameras: %+v", resp.Cameras)
	}
	if resp.Gallery.Threshold != 0.4 {
		t.Fatalf("threshold = %f", resp.Gallery.Threshold)
	}
}

func TestHandleAlerts(t *testing.T) {
	s := testServer(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.coord.History().Add(model.AlertEvent{
			ID:        string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	rec := httptest.NewRecorder()
	s.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/alerts?limit=2", nil))
	var resp struct {
		Alerts []model.AlertEvent `json:"alerts"`
		Count  int                `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || resp.Alerts[0].ID != "c" {
		t.Fatalf("unexpected alerts: %+v", resp)
	}

	rec = httptest.NewRecorder()
	s.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/alerts?since="+base.Add(time.Minute).Format(time.RFC3339), nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("since count = %d, want 2", resp.Count)
	}

	rec = httptest.NewRecorder()
	s.handleAlerts(rec, httptest.NewRequest(http.MethodGet, "/alerts?since=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad since accepted: %d", rec.Code)
	}
}

func TestHandleRecognitionConfig(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.handleRecognitionConfig(rec, httptest.NewRequest(http.MethodPost, "/config/recognition", strings.NewReader(`{"threshold":0.75}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if s.engine.Threshold() != 0.75 {
		t.Fatalf("threshold not applied: %f", s.engine.Threshold())
	}

	rec = httptest.NewRecorder()
	s.handleRecognitionConfig(rec, httptest.NewRequest(http.MethodPost, "/config/recognition", strings.NewReader(`{"threshold":1.5}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range threshold accepted: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleRecognitionConfig(rec, httptest.NewRequest(http.MethodPost, "/config/recognition", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing threshold accepted: %d", rec.Code)
	}
}

func TestHandleAlertsConfig(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.handleAlertsConfig(rec, httptest.NewRequest(http.MethodPost, "/config/alerts", strings.NewReader(`{"cooldown_sec":30,"sound_enabled":true,"screenshot_enabled":false}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.coord.CooldownWindow() != 30*time.Second {
		t.Fatalf("cooldown = %v", s.coord.CooldownWindow())
	}
	if !s.coord.SoundEnabled() || s.coord.ScreenshotsEnabled() {
		t.Fatalf("toggles not applied")
	}

	// Partial update leaves the other knobs alone.
	rec = httptest.NewRecorder()
	s.handleAlertsConfig(rec, httptest.NewRequest(http.MethodPost, "/config/alerts", strings.NewReader(`{"sound_enabled":false}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.coord.CooldownWindow() != 30*time.Second {
		t.Fatalf("partial update reset the cooldown")
	}

	rec = httptest.NewRecorder()
	s.handleAlertsConfig(rec, httptest.NewRequest(http.MethodPost, "/config/alerts", strings.NewReader(`{"cooldown_sec":-5}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative cooldown accepted: %d", rec.Code)
	}
}

func TestHandleCameras(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.handleCameras(rec, httptest.NewRequest(http.MethodPost, "/cameras/1/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(s.sup.Running()) != 1 {
		t.Fatalf("camera not running")
	}

	rec = httptest.NewRecorder()
	s.handleCameras(rec, httptest.NewRequest(http.MethodPost, "/cameras/1/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if len(s.sup.Running()) != 0 {
		t.Fatalf("camera still running")
	}

	rec = httptest.NewRecorder()
	s.handleCameras(rec, httptest.NewRequest(http.MethodPost, "/cameras/9/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("unknown camera status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleCameras(rec, httptest.NewRequest(http.MethodPost, "/cameras/x/start", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestHandleEventsWithoutStorage(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestHandleIdentityDeleteMissing(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.handleIdentity(rec, httptest.NewRequest(http.MethodDelete, "/gallery/identities/nobody", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
