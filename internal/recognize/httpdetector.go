package recognize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"facewatch/internal/model"
)

// HTTPDetector talks to an external face-analysis service. It posts the
// JPEG frame body and decodes the detected faces from the JSON response.
type HTTPDetector struct {
	endpoint string
	analysis bool
	client   *http.Client
}

func NewHTTPDetector(endpoint string, timeout time.Duration, analysisEnabled bool) *HTTPDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDetector{
		endpoint: endpoint,
		analysis: analysisEnabled,
		client:   &http.Client{Timeout: timeout},
	}
}

type wireFace struct {
	BBox      [4]float32   `json:"bbox"`
	Keypoints [][2]float32 `json:"keypoints,omitempty"`
	DetScore  float32      `json:"det_score"`
	Embedding []float32    `json:"embedding"`
	Age       int          `json:"age,omitempty"`
	Gender    string       `json:"gender,omitempty"`
}

type detectResponse struct {
	Faces []wireFace `json:"faces"`
}

func (d *HTTPDetector) Detect(frame *model.Frame) ([]model.DetectedFace, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	req, err := http.NewRequest(http.MethodPost, d.endpoint, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detect: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("detect decode: %w", err)
	}
	faces := make([]model.DetectedFace, 0, len(decoded.Faces))
	for _, f := range decoded.Faces {
		face := model.DetectedFace{
			BBox:      f.BBox,
			Keypoints: f.Keypoints,
			DetScore:  f.DetScore,
			Embedding: f.Embedding,
		}
		if d.analysis {
			face.Age = f.Age
			face.Gender = parseGender(f.Gender)
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func parseGender(v string) model.Gender {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "male", "m":
		return model.GenderMale
	case "female", "f":
		return model.GenderFemale
	}
	return ""
}
