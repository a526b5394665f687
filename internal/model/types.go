package model

import "time"

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Frame is one captured video frame, JPEG-encoded. Ownership transfers to
// the frame slot on publish; overwritten frames are discarded, never queued.
type Frame struct {
	CameraID  int
	Width     int
	Height    int
	Data      []byte
	Timestamp time.Time
}

// DetectedFace is a single detection result from the external face-analysis
// service. It carries no identity until matched against the gallery.
type DetectedFace struct {
	BBox      [4]float32
	Keypoints [][2]float32
	DetScore  float32
	Embedding []float32
	Age       int    // 0 when the detector reports no estimate
	Gender    Gender // empty when the detector reports no estimate
}

// KnownIdentity is one entry of the in-memory gallery. Names are unique.
type KnownIdentity struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"-"`
	ImagePath string    `json:"image_path"`
}

// MatchResult pairs a detected face with the best gallery candidate.
// Identity is nil when the gallery is empty or the top similarity does not
// exceed the recognition threshold; Similarity keeps the computed value
// either way for diagnostics.
type MatchResult struct {
	Face       DetectedFace
	Identity   *KnownIdentity
	Similarity float64
}

// AlertEvent records one trigger decision, fired or suppressed. Events with
// IsCooldown set never carry a screenshot and never caused sound or
// notification side effects.
type AlertEvent struct {
	ID             string    `json:"id"`
	CameraID       int       `json:"camera_id"`
	CameraName     string    `json:"camera_name"`
	Label          string    `json:"label"`
	Confidence     float64   `json:"confidence"`
	Timestamp      time.Time `json:"timestamp"`
	Age            int       `json:"age,omitempty"`
	Gender         Gender    `json:"gender,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	IsCooldown     bool      `json:"is_cooldown"`
}
