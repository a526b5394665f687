package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Cameras     []CameraConfig    `json:"cameras" yaml:"cameras"`
	Recognition RecognitionConfig `json:"recognition" yaml:"recognition"`
	Alerts      AlertsConfig      `json:"alerts" yaml:"alerts"`
	Notify      NotifyConfig      `json:"notify" yaml:"notify"`
	Gallery     GalleryConfig     `json:"gallery" yaml:"gallery"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Pipeline    PipelineConfig    `json:"pipeline" yaml:"pipeline"`
	API         APIConfig         `json:"api" yaml:"api"`
}

// CameraConfig describes one video source. Immutable after load; rotation is
// applied by the capture worker, clockwise for 90 and counter-clockwise for 270.
type CameraConfig struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Source  string `json:"source" yaml:"source"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	FPS     int    `json:"fps" yaml:"fps"`
	Rotate  int    `json:"rotate" yaml:"rotate"`
}

type RecognitionConfig struct {
	Endpoint             string        `json:"endpoint" yaml:"endpoint"`
	Timeout              time.Duration `json:"timeout" yaml:"timeout"`
	RecognitionThreshold float64       `json:"recognition_threshold" yaml:"recognition_threshold"`
	DetectionThreshold   float64       `json:"detection_threshold" yaml:"detection_threshold"`
	AnalysisEnabled      bool          `json:"analysis_enabled" yaml:"analysis_enabled"`
}

type AlertsConfig struct {
	Cooldown          time.Duration `json:"cooldown" yaml:"cooldown"`
	SoundEnabled      bool          `json:"sound_enabled" yaml:"sound_enabled"`
	ScreenshotEnabled bool          `json:"screenshot_enabled" yaml:"screenshot_enabled"`
	ScreenshotDir     string        `json:"screenshot_dir" yaml:"screenshot_dir"`
	AlertSound        string        `json:"alert_sound" yaml:"alert_sound"`
	UnknownAlertSound string        `json:"unknown_alert_sound" yaml:"unknown_alert_sound"`
	SoundCommand      string        `json:"sound_command" yaml:"sound_command"`
	StoreLimit        int           `json:"store_limit" yaml:"store_limit"`
}

type NotifyConfig struct {
	Enabled          bool           `json:"enabled" yaml:"enabled"`
	Channel          string         `json:"channel" yaml:"channel"`
	MinInterval      time.Duration  `json:"min_interval" yaml:"min_interval"`
	SendTimeout      time.Duration  `json:"send_timeout" yaml:"send_timeout"`
	FallbackLog      string         `json:"fallback_log" yaml:"fallback_log"`
	FallbackImageDir string         `json:"fallback_image_dir" yaml:"fallback_image_dir"`
	Telegram         TelegramConfig `json:"telegram" yaml:"telegram"`
	Kafka            KafkaConfig    `json:"kafka" yaml:"kafka"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type GalleryConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PipelineConfig struct {
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Cameras: []CameraConfig{
			{ID: 0, Name: "Camera 0", Source: "0", Enabled: true, Width: 1280, Height: 720, FPS: 30},
		},
		Recognition: RecognitionConfig{
			Endpoint:             "http://127.0.0.1:18081/detect",
			Timeout:              5 * time.Second,
			RecognitionThreshold: 0.4,
			DetectionThreshold:   0.5,
			AnalysisEnabled:      true,
		},
		Alerts: AlertsConfig{
			Cooldown:          10 * time.Second,
			SoundEnabled:      true,
			ScreenshotEnabled: true,
			ScreenshotDir:     "screenshots",
			AlertSound:        "sounds/alert.wav",
			UnknownAlertSound: "sounds/unknown_alert.wav",
			SoundCommand:      "aplay",
			StoreLimit:        1000,
		},
		Notify: NotifyConfig{
			Enabled:          false,
			Channel:          "telegram",
			MinInterval:      5 * time.Second,
			SendTimeout:      10 * time.Second,
			FallbackLog:      "failed_alerts.log",
			FallbackImageDir: "failed_alert_images",
		},
		Gallery:  GalleryConfig{Dir: "known_faces"},
		Storage:  StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:facewatch.db?_pragma=busy_timeout(5000)"},
		Pipeline: PipelineConfig{TickInterval: 100 * time.Millisecond},
		API:      APIConfig{Enabled: true, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Recognition.Timeout <= 0 {
		cfg.Recognition.Timeout = 5 * time.Second
	}
	if cfg.Alerts.Cooldown <= 0 {
		cfg.Alerts.Cooldown = 10 * time.Second
	}
	if cfg.Alerts.ScreenshotDir == "" {
		cfg.Alerts.ScreenshotDir = "screenshots"
	}
	if cfg.Alerts.UnknownAlertSound == "" {
		cfg.Alerts.UnknownAlertSound = cfg.Alerts.AlertSound
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Notify.SendTimeout <= 0 {
		cfg.Notify.SendTimeout = 10 * time.Second
	}
	if cfg.Notify.FallbackLog == "" {
		cfg.Notify.FallbackLog = "failed_alerts.log"
	}
	if cfg.Notify.FallbackImageDir == "" {
		cfg.Notify.FallbackImageDir = "failed_alert_images"
	}
	if cfg.Gallery.Dir == "" {
		cfg.Gallery.Dir = "known_faces"
	}
	if cfg.Pipeline.TickInterval <= 0 {
		cfg.Pipeline.TickInterval = 100 * time.Millisecond
	}
	for i := range cfg.Cameras {
		if cfg.Cameras[i].Name == "" {
			cfg.Cameras[i].Name = fmt.Sprintf("Camera %d", cfg.Cameras[i].ID)
		}
	}
}

func Validate(cfg *Config) error {
	seen := make(map[int]struct{}, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		if _, dup := seen[cam.ID]; dup {
			return fmt.Errorf("cameras contains duplicate id %d", cam.ID)
		}
		seen[cam.ID] = struct{}{}
		if cam.Source == "" {
			return fmt.Errorf("camera %d has no source", cam.ID)
		}
		switch cam.Rotate {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("camera %d rotate must be one of 0, 90, 180, 270", cam.ID)
		}
	}
	if cfg.Recognition.Endpoint == "" {
		return errors.New("recognition.endpoint is required")
	}
	if cfg.Recognition.RecognitionThreshold < 0 || cfg.Recognition.RecognitionThreshold > 1 {
		return errors.New("recognition.recognition_threshold must be within [0, 1]")
	}
	if cfg.Notify.Enabled {
		switch strings.ToLower(cfg.Notify.Channel) {
		case "telegram":
			if cfg.Notify.Telegram.BotToken == "" || cfg.Notify.Telegram.ChatID == "" {
				return errors.New("notify.telegram requires bot_token and chat_id")
			}
		case "kafka":
			if len(cfg.Notify.Kafka.Brokers) == 0 || cfg.Notify.Kafka.Topic == "" {
				return errors.New("notify.kafka requires brokers and topic")
			}
		default:
			return fmt.Errorf("unsupported notify channel %q", cfg.Notify.Channel)
		}
		if cfg.Notify.MinInterval < 0 {
			return errors.New("notify.min_interval must be >= 0")
		}
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

// EnsureDirs creates the directories the pipeline writes into. Called once
// during bootstrap so a fresh install starts with an empty gallery instead
// of a fatal load error.
func EnsureDirs(cfg *Config) error {
	dirs := []string{cfg.Alerts.ScreenshotDir, cfg.Gallery.Dir}
	if cfg.Notify.Enabled {
		dirs = append(dirs, cfg.Notify.FallbackImageDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
