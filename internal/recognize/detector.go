package recognize

import "facewatch/internal/model"

// Detector is the external face-analysis capability. It returns bounding
// boxes, embeddings and optional age/gender attributes for every face in a
// frame. Implementations are synchronous and safe to call repeatedly.
type Detector interface {
	Detect(frame *model.Frame) ([]model.DetectedFace, error)
}
