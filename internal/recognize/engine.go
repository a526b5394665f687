package recognize

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"facewatch/internal/model"
)

// Engine runs detection on demand and matches the result against the
// gallery. The gallery is shared read-mostly state: matching reads an
// atomic snapshot, administrative changes install a new snapshot, and the
// similarity threshold is live-tunable.
type Engine struct {
	logger    *slog.Logger
	det       Detector
	gallery   atomic.Pointer[Gallery]
	threshold atomic.Uint64
}

func NewEngine(det Detector, threshold float64, logger *slog.Logger) *Engine {
	e := &Engine{logger: logger, det: det}
	e.gallery.Store(NewGallery(nil))
	e.SetThreshold(threshold)
	return e
}

func (e *Engine) SetThreshold(v float64) {
	e.threshold.Store(math.Float64bits(v))
}

func (e *Engine) Threshold() float64 {
	return math.Float64frombits(e.threshold.Load())
}

func (e *Engine) Gallery() *Gallery {
	return e.gallery.Load()
}

func (e *Engine) SetGallery(g *Gallery) {
	if g != nil {
		e.gallery.Store(g)
	}
}

// ReloadGallery rebuilds the gallery from dir and installs it atomically.
// On failure the previous gallery stays in place.
func (e *Engine) ReloadGallery(dir string) error {
	g, err := LoadGallery(dir, e.det, e.logger)
	if err != nil {
		return err
	}
	e.gallery.Store(g)
	e.logger.Info("gallery reloaded", "identities", g.Len())
	return nil
}

// DetectAndMatch runs the detector once for the frame and matches every
// detected face. Detector failures degrade to an empty result list.
func (e *Engine) DetectAndMatch(frame *model.Frame) []model.MatchResult {
	faces, err := e.det.Detect(frame)
	if err != nil {
		e.logger.Error("face detection failed", "camera_id", frame.CameraID, "err", err)
		return nil
	}
	if len(faces) == 0 {
		return nil
	}
	g := e.gallery.Load()
	threshold := e.Threshold()
	results := make([]model.MatchResult, 0, len(faces))
	for _, face := range faces {
		results = append(results, matchFace(g, face, threshold))
	}
	return results
}

// matchFace scores face against every gallery embedding and keeps the best.
// Ties go to the earliest gallery entry; only a similarity strictly above
// the threshold counts as a match, but the computed value is reported
// either way.
func matchFace(g *Gallery, face model.DetectedFace, threshold float64) model.MatchResult {
	res := model.MatchResult{Face: face}
	if g == nil || g.Len() == 0 || len(face.Embedding) == 0 {
		return res
	}
	best := -1
	bestSim := math.Inf(-1)
	for i, id := range g.identities {
		sim := cosineSimilarity(id.Embedding, face.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	res.Similarity = bestSim
	if bestSim > threshold {
		id := g.identities[best]
		res.Identity = &id
	}
	return res
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// AddIdentity detects a face in the frame, stores the source image under
// dir and swaps the identity into the gallery. An existing identity with
// the same name is replaced.
func (e *Engine) AddIdentity(frame *model.Frame, name, dir string) (model.KnownIdentity, error) {
	if name == "" {
		return model.KnownIdentity{}, errors.New("identity name is empty")
	}
	faces, err := e.det.Detect(frame)
	if err != nil {
		return model.KnownIdentity{}, fmt.Errorf("detect: %w", err)
	}
	if len(faces) == 0 {
		return model.KnownIdentity{}, errors.New("no face detected in image")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.KnownIdentity{}, err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", name, time.Now().Unix()))
	if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
		return model.KnownIdentity{}, fmt.Errorf("save face image: %w", err)
	}
	id := model.KnownIdentity{Name: name, Embedding: faces[0].Embedding, ImagePath: path}

	g := e.gallery.Load()
	next := make([]model.KnownIdentity, 0, g.Len()+1)
	for _, existing := range g.identities {
		if existing.Name == name {
			continue
		}
		next = append(next, existing)
	}
	next = append(next, id)
	e.gallery.Store(NewGallery(next))
	e.logger.Info("gallery identity added", "name", name, "path", path)
	return id, nil
}

// RemoveIdentity drops the named identity from the gallery and deletes its
// stored image. Returns false when the name is not present.
func (e *Engine) RemoveIdentity(name string) bool {
	g := e.gallery.Load()
	removed, ok := g.Lookup(name)
	if !ok {
		return false
	}
	next := make([]model.KnownIdentity, 0, g.Len()-1)
	for _, existing := range g.identities {
		if existing.Name == name {
			continue
		}
		next = append(next, existing)
	}
	e.gallery.Store(NewGallery(next))
	if removed.ImagePath != "" {
		if err := os.Remove(removed.ImagePath); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("gallery image delete failed", "name", name, "err", err)
		}
	}
	e.logger.Info("gallery identity removed", "name", name)
	return true
}
