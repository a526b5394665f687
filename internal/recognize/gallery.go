package recognize

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"facewatch/internal/model"
)

// Gallery is an immutable snapshot of the known identities. Matching
// iterates in insertion order, which makes similarity ties deterministic.
// The engine replaces the whole snapshot on reload; a Gallery is never
// mutated while matches are in flight.
type Gallery struct {
	identities []model.KnownIdentity
	byName     map[string]int
}

func NewGallery(identities []model.KnownIdentity) *Gallery {
	g := &Gallery{byName: make(map[string]int, len(identities))}
	for _, id := range identities {
		if _, dup := g.byName[id.Name]; dup {
			continue
		}
		g.byName[id.Name] = len(g.identities)
		g.identities = append(g.identities, id)
	}
	return g
}

func (g *Gallery) Len() int {
	return len(g.identities)
}

func (g *Gallery) Identities() []model.KnownIdentity {
	out := make([]model.KnownIdentity, len(g.identities))
	copy(out, g.identities)
	return out
}

func (g *Gallery) Lookup(name string) (model.KnownIdentity, bool) {
	if i, ok := g.byName[name]; ok {
		return g.identities[i], true
	}
	return model.KnownIdentity{}, false
}

var galleryImageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// LoadGallery builds a gallery from a directory of face images by running
// the detector over each file. The file stem becomes the identity name and
// the first detected face supplies the embedding. Unreadable or faceless
// images are skipped with a warning; a missing directory is an error.
func LoadGallery(dir string, det Detector, logger *slog.Logger) (*Gallery, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery dir: %w", err)
	}
	var identities []model.KnownIdentity
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := galleryImageExts[ext]; !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("gallery image unreadable", "path", path, "err", err)
			continue
		}
		faces, err := det.Detect(&model.Frame{Data: data})
		if err != nil {
			logger.Warn("gallery image detection failed", "path", path, "err", err)
			continue
		}
		if len(faces) == 0 {
			logger.Warn("gallery image has no face", "path", path)
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		identities = append(identities, model.KnownIdentity{
			Name:      name,
			Embedding: faces[0].Embedding,
			ImagePath: path,
		})
		logger.Info("gallery identity loaded", "name", name)
	}
	return NewGallery(identities), nil
}
