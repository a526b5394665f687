package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
cameras:
  - id: 5
    source: "rtsp://cam5/stream"
    enabled: true
recognition:
  endpoint: "http://127.0.0.1:18081/detect"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cameras[0].Name != "Camera 5" {
		t.Fatalf("camera name default = %q", cfg.Cameras[0].Name)
	}
	if cfg.Alerts.Cooldown != 10*time.Second {
		t.Fatalf("cooldown default = %v", cfg.Alerts.Cooldown)
	}
	if cfg.Pipeline.TickInterval != 100*time.Millisecond {
		t.Fatalf("tick interval default = %v", cfg.Pipeline.TickInterval)
	}
	if cfg.Gallery.Dir != "known_faces" {
		t.Fatalf("gallery dir default = %q", cfg.Gallery.Dir)
	}
}

func TestLoadAcceptsJSON(t *testing.T) {
	path := writeConfig(t, `{"cameras":[{"id":1,"source":"0","enabled":true}],"recognition":{"endpoint":"http://x/detect"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Cameras) != 1 || cfg.Cameras[0].Source != "0" {
		t.Fatalf("unexpected cameras: %+v", cfg.Cameras)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "   \n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestValidateDuplicateCameraID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cameras = []CameraConfig{
		{ID: 1, Source: "0"},
		{ID: 1, Source: "1"},
	}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestValidateRotate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cameras[0].Rotate = 45
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected rotate error")
	}
	cfg.Cameras[0].Rotate = 270
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid rotate rejected: %v", err)
	}
}

func TestValidateThresholdRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recognition.RecognitionThreshold = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected threshold error")
	}
}

func TestValidateNotifyChannel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Notify.Enabled = true
	cfg.Notify.Channel = "telegram"
	if err := Validate(cfg); err == nil {
		t.Fatalf("telegram without credentials must fail")
	}
	cfg.Notify.Telegram = TelegramConfig{BotToken: "t", ChatID: "c"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid telegram rejected: %v", err)
	}

	cfg.Notify.Channel = "kafka"
	if err := Validate(cfg); err == nil {
		t.Fatalf("kafka without brokers must fail")
	}
	cfg.Notify.Kafka = KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "alerts"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid kafka rejected: %v", err)
	}

	cfg.Notify.Channel = "pigeon"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unsupported channel must fail")
	}
}

func TestValidateStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Driver = "mysql"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unsupported driver must fail")
	}
	cfg.Storage.Driver = "postgres"
	if err := Validate(cfg); err != nil {
		t.Fatalf("postgres rejected: %v", err)
	}
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, `
cameras:
  - id: 1
    source: "0"
recognition:
  endpoint: "http://x/detect"
  recognition_threshold: 0.4
`)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if m.Get().Recognition.RecognitionThreshold != 0.4 {
		t.Fatalf("threshold = %f", m.Get().Recognition.RecognitionThreshold)
	}

	updated := `
cameras:
  - id: 1
    source: "0"
recognition:
  endpoint: "http://x/detect"
  recognition_threshold: 0.7
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := m.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Get().Recognition.RecognitionThreshold != 0.7 {
		t.Fatalf("threshold after reload = %f", m.Get().Recognition.RecognitionThreshold)
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	path := writeConfig(t, `
cameras:
  - id: 1
    source: "0"
recognition:
  endpoint: "http://x/detect"
`)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	next := *m.Get()
	next.LogLevel = "debug"
	if err := m.Update(&next); err != nil {
		t.Fatalf("update: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("load after update: %v", err)
	}
	if reloaded.LogLevel != "debug" {
		t.Fatalf("log level not persisted: %q", reloaded.LogLevel)
	}
}
