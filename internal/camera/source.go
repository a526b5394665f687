package camera

import (
	"facewatch/internal/config"
	"facewatch/internal/model"
)

// Source is one opened video input. Read blocks for at most one frame
// interval and returns the next frame with rotation already applied.
// Rewind seeks a finite file source back to its first frame and reports
// whether it did so; live sources return false.
type Source interface {
	Read() (*model.Frame, error)
	Rewind() bool
	Close() error
}

// OpenFunc opens a Source for a configured camera. The supervisor takes it
// as a dependency so tests can substitute fakes for real capture devices.
type OpenFunc func(cfg config.CameraConfig) (Source, error)
