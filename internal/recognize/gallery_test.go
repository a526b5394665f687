package recognize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"facewatch/internal/model"
)

// stemDetector answers every detect call with a single face whose
// embedding is fixed, except for files whose content says otherwise.
type stemDetector struct{}

func (stemDetector) Detect(frame *model.Frame) ([]model.DetectedFace, error) {
	switch string(frame.Data) {
	case "no-face":
		return nil, nil
	case "broken":
		return nil, errors.New("corrupt image")
	}
	return []model.DetectedFace{{Embedding: []float32{1, 0}}}, nil
}

func TestLoadGallery(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"alice.jpg":   "face",
		"bob.jpeg":    "face",
		"carol.png":   "face",
		"empty.jpg":   "no-face",
		"corrupt.jpg": "broken",
		"notes.txt":   "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	g, err := LoadGallery(dir, stemDetector{}, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("gallery len = %d, want 3", g.Len())
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		if _, ok := g.Lookup(name); !ok {
			t.Fatalf("identity %q missing", name)
		}
	}
	if _, ok := g.Lookup("empty"); ok {
		t.Fatalf("faceless image must be skipped")
	}
}

func TestLoadGalleryMissingDir(t *testing.T) {
	if _, err := LoadGallery(filepath.Join(t.TempDir(), "nope"), stemDetector{}, testLogger()); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestGalleryDedupesByName(t *testing.T) {
	g := NewGallery([]model.KnownIdentity{
		{Name: "alice", Embedding: []float32{1, 0}},
		{Name: "alice", Embedding: []float32{0, 1}},
	})
	if g.Len() != 1 {
		t.Fatalf("len = %d, want 1", g.Len())
	}
	id, _ := g.Lookup("alice")
	if id.Embedding[0] != 1 {
		t.Fatalf("first entry should win on duplicate names")
	}
}

func TestEngineReloadGalleryKeepsOldOnFailure(t *testing.T) {
	e := NewEngine(stemDetector{}, 0.5, testLogger())
	e.SetGallery(NewGallery([]model.KnownIdentity{{Name: "alice", Embedding: []float32{1, 0}}}))

	if err := e.ReloadGallery(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected reload error")
	}
	if e.Gallery().Len() != 1 {
		t.Fatalf("failed reload must keep the previous gallery")
	}
}

func TestEngineAddAndRemoveIdentity(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(stemDetector{}, 0.5, testLogger())

	id, err := e.AddIdentity(&model.Frame{Data: []byte("face")}, "dave", dir)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := os.Stat(id.ImagePath); err != nil {
		t.Fatalf("identity image not saved: %v", err)
	}
	if _, ok := e.Gallery().Lookup("dave"); !ok {
		t.Fatalf("identity not in gallery")
	}

	if !e.RemoveIdentity("dave") {
		t.Fatalf("remove should report success")
	}
	if _, ok := e.Gallery().Lookup("dave"); ok {
		t.Fatalf("identity still in gallery")
	}
	if _, err := os.Stat(id.ImagePath); !os.IsNotExist(err) {
		t.Fatalf("identity image not deleted")
	}
	if e.RemoveIdentity("dave") {
		t.Fatalf("removing a missing identity should report false")
	}
}

func TestEngineAddIdentityNoFace(t *testing.T) {
	e := NewEngine(stemDetector{}, 0.5, testLogger())
	if _, err := e.AddIdentity(&model.Frame{Data: []byte("no-face")}, "ghost", t.TempDir()); err == nil {
		t.Fatalf("expected error for faceless image")
	}
}
