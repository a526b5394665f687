package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"facewatch/internal/alert"
	"facewatch/internal/camera"
	"facewatch/internal/config"
	"facewatch/internal/model"
	"facewatch/internal/pipeline"
	"facewatch/internal/recognize"
	"facewatch/internal/storage"
)

const maxUploadBytes = 10 << 20

type Server struct {
	cfg     *config.Manager
	sup     *camera.Supervisor
	engine  *recognize.Engine
	coord   *alert.Coordinator
	stats   *pipeline.Stats
	sink    storage.Sink
	logger  *slog.Logger
	version string

	// baseCtx scopes camera workers started over the API so they stop with
	// the rest of the process.
	baseCtx context.Context
}

type statusResponse struct {
	Status   string                       `json:"status"`
	Time     string                       `json:"time"`
	Version  string                       `json:"version"`
	Cameras  []cameraStatus               `json:"cameras"`
	Gallery  galleryStatus                `json:"gallery"`
	Alerts   alertsStatus                 `json:"alerts"`
	Pipeline map[int]pipeline.CameraStats `json:"pipeline"`
}

type cameraStatus struct {
	camera.CameraStatus
	Stats pipeline.CameraStats `json:"stats"`
}

type galleryStatus struct {
	Identities int     `json:"identities"`
	Threshold  float64 `json:"threshold"`
}

type alertsStatus struct {
	CooldownSec       float64 `json:"cooldown_sec"`
	SoundEnabled      bool    `json:"sound_enabled"`
	ScreenshotEnabled bool    `json:"screenshot_enabled"`
	History           int     `json:"history"`
}

func Start(ctx context.Context, cfg *config.Manager, sup *camera.Supervisor, engine *recognize.Engine, coord *alert.Coordinator, stats *pipeline.Stats, sink storage.Sink, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		logger.Info("api disabled")
		return nil
	}
	logger.Info("api enabled", "addr", current.Addr)
	server := &Server{
		cfg:     cfg,
		sup:     sup,
		engine:  engine,
		coord:   coord,
		stats:   stats,
		sink:    sink,
		logger:  logger,
		version: version,
		baseCtx: ctx,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/events", server.handleEvents)
	mux.HandleFunc("/config/recognition", server.handleRecognitionConfig)
	mux.HandleFunc("/config/alerts", server.handleAlertsConfig)
	mux.HandleFunc("/cameras/", server.handleCameras)
	mux.HandleFunc("/gallery/reload", server.handleGalleryReload)
	mux.HandleFunc("/gallery/identities", server.handleIdentities)
	mux.HandleFunc("/gallery/identities/", server.handleIdentity)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", "err", err)
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats := s.stats.All()
	cams := make([]cameraStatus, 0)
	for _, cs := range s.sup.Status() {
		cams = append(cams, cameraStatus{CameraStatus: cs, Stats: stats[cs.ID]})
	}
	resp := statusResponse{
		Status:  "ok",
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Version: s.version,
		Cameras: cams,
		Gallery: galleryStatus{
			Identities: s.engine.Gallery().Len(),
			Threshold:  s.engine.Threshold(),
		},
		Alerts: alertsStatus{
			CooldownSec:       s.coord.CooldownWindow().Seconds(),
			SoundEnabled:      s.coord.SoundEnabled(),
			ScreenshotEnabled: s.coord.ScreenshotsEnabled(),
			History:           s.coord.History().Len(),
		},
		Pipeline: stats,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.AlertEvent
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		list = s.coord.History().Since(ts)
	} else {
		list = s.coord.History().Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.sink == nil {
		writeError(w, http.StatusNotImplemented, "storage is disabled")
		return
	}
	var filter storage.EventFilter
	q := r.URL.Query()
	if v := q.Get("camera_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "camera_id must be an integer")
			return
		}
		filter.CameraID = &n
	}
	filter.Label = q.Get("label")
	if v := q.Get("start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
		filter.Start = ts
	}
	if v := q.Get("end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		filter.End = ts
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	events, err := s.sink.Events(r.Context(), filter)
	if err != nil {
		s.logger.Error("events query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleRecognitionConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"threshold": s.engine.Threshold(),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			Threshold *float64 `json:"threshold"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.Threshold == nil {
			writeError(w, http.StatusBadRequest, "threshold is required")
			return
		}
		if *req.Threshold < 0 || *req.Threshold > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be within [0, 1]")
			return
		}
		s.engine.SetThreshold(*req.Threshold)
		s.logger.Info("recognition threshold updated", "threshold", *req.Threshold)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "threshold": *req.Threshold})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAlertsConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, alertsStatus{
			CooldownSec:       s.coord.CooldownWindow().Seconds(),
			SoundEnabled:      s.coord.SoundEnabled(),
			ScreenshotEnabled: s.coord.ScreenshotsEnabled(),
			History:           s.coord.History().Len(),
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req struct {
			CooldownSec       *float64 `json:"cooldown_sec"`
			SoundEnabled      *bool    `json:"sound_enabled"`
			ScreenshotEnabled *bool    `json:"screenshot_enabled"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.CooldownSec != nil {
			if *req.CooldownSec < 0 {
				writeError(w, http.StatusBadRequest, "cooldown_sec must be >= 0")
				return
			}
			s.coord.SetCooldown(time.Duration(*req.CooldownSec * float64(time.Second)))
		}
		if req.SoundEnabled != nil {
			s.coord.EnableSound(*req.SoundEnabled)
		}
		if req.ScreenshotEnabled != nil {
			s.coord.EnableScreenshots(*req.ScreenshotEnabled)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCameras routes POST /cameras/{id}/start and /cameras/{id}/stop.
func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/cameras/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "camera id must be an integer")
		return
	}
	switch parts[1] {
	case "start":
		if err := s.sup.Start(s.baseCtx, id); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	case "stop":
		s.sup.Stop(id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "camera_id": id})
}

func (s *Server) handleGalleryReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	dir := s.cfg.Get().Gallery.Dir
	if err := s.engine.ReloadGallery(dir); err != nil {
		s.logger.Error("gallery reload failed", "dir", dir, "err", err)
		writeError(w, http.StatusInternalServerError, "gallery reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"identities": s.engine.Gallery().Len(),
	})
}

// handleIdentities serves GET (list) and POST (multipart name+image upload).
func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids := s.engine.Gallery().Identities()
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, id.Name)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"identities": names,
			"count":      len(names),
		})
	case http.MethodPost:
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "multipart form expected")
			return
		}
		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image file is required")
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read image failed")
			return
		}
		frame := &model.Frame{Data: data, Timestamp: time.Now()}
		id, err := s.engine.AddIdentity(frame, name, s.cfg.Get().Gallery.Dir)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if s.sink != nil {
			if err := s.sink.SaveIdentity(r.Context(), id); err != nil {
				s.logger.Error("identity persist failed", "name", name, "err", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "name": id.Name})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleIdentity serves DELETE /gallery/identities/{name}.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/gallery/identities/")
	if name == "" || strings.Contains(name, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	removed := s.engine.RemoveIdentity(name)
	if s.sink != nil {
		if _, err := s.sink.DeleteIdentity(r.Context(), name); err != nil {
			s.logger.Error("identity delete failed", "name", name, "err", err)
		}
	}
	if !removed {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "name": name})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
