package replay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/footpath.report/internal/footpath/geom"
	"github.com/banshee-data/footpath.report/internal/footpath/pipeline"
	"github.com/banshee-data/footpath.report/internal/footpath/tracks"
)

// Detector decodes the detections a replay Source recorded in the frame
// payload. Detections below MinConfidence are dropped.
type Detector struct {
	MinConfidence float64
}

// Detect implements pipeline.Detector.
func (d Detector) Detect(_ context.Context, frame pipeline.Frame) ([]tracks.Detection, error) {
	var recorded []Detection
	if err := json.Unmarshal(frame.Data, &recorded); err != nil {
		return nil, fmt.Errorf("failed to decode detections of frame %d: %w", frame.Seq, err)
	}
	out := make([]tracks.Detection, 0, len(recorded))
	for _, r := range recorded {
		if r.Confidence < d.MinConfidence {
			continue
		}
		out = append(out, tracks.Detection{
			BBox:       geom.BoundingBox{X1: r.BBox[0], Y1: r.BBox[1], X2: r.BBox[2], Y2: r.BBox[3]},
			Confidence: r.Confidence,
			TrackID:    r.TrackID,
			Timestamp:  frame.Timestamp,
		})
	}
	return out, nil
}

var _ pipeline.Detector = Detector{}
