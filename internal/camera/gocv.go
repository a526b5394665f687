package camera

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"facewatch/internal/config"
	"facewatch/internal/model"
)

type gocvSource struct {
	cfg     config.CameraConfig
	capture *gocv.VideoCapture
	mat     gocv.Mat
	rotated gocv.Mat
	isFile  bool
}

// OpenGoCV opens a device index, video file or stream URI through OpenCV
// and yields JPEG-encoded frames with the configured rotation applied.
func OpenGoCV(cfg config.CameraConfig) (Source, error) {
	var capture *gocv.VideoCapture
	var err error
	if idx, convErr := strconv.Atoi(cfg.Source); convErr == nil {
		capture, err = gocv.OpenVideoCapture(idx)
	} else {
		capture, err = gocv.OpenVideoCapture(cfg.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", cfg.Source, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("capture %q did not open", cfg.Source)
	}
	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	}
	isFile := false
	if info, statErr := os.Stat(cfg.Source); statErr == nil && !info.IsDir() {
		isFile = true
	}
	return &gocvSource{
		cfg:     cfg,
		capture: capture,
		mat:     gocv.NewMat(),
		rotated: gocv.NewMat(),
		isFile:  isFile,
	}, nil
}

func (s *gocvSource) Read() (*model.Frame, error) {
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("camera %d: read failed", s.cfg.ID)
	}
	out := s.mat
	switch s.cfg.Rotate {
	case 90:
		gocv.Rotate(s.mat, &s.rotated, gocv.Rotate90Clockwise)
		out = s.rotated
	case 180:
		gocv.Rotate(s.mat, &s.rotated, gocv.Rotate180Clockwise)
		out = s.rotated
	case 270:
		gocv.Rotate(s.mat, &s.rotated, gocv.Rotate90CounterClockwise)
		out = s.rotated
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, out)
	if err != nil {
		return nil, fmt.Errorf("camera %d: jpeg encode failed: %w", s.cfg.ID, err)
	}
	defer buf.Close()
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return &model.Frame{
		CameraID:  s.cfg.ID,
		Width:     out.Cols(),
		Height:    out.Rows(),
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Rewind loops finite file sources for continuous playback.
func (s *gocvSource) Rewind() bool {
	if !s.isFile {
		return false
	}
	s.capture.Set(gocv.VideoCapturePosFrames, 0)
	return true
}

func (s *gocvSource) Close() error {
	_ = s.mat.Close()
	_ = s.rotated.Close()
	return s.capture.Close()
}
