// Package present adapts raw per-image detection results into the output
// formats downstream consumers expect.
package present

import (
	"errors"

	"github.com/harborwatch/maritime-scene-service/postprocess"
)

// ErrNoClassMap is returned by the named format when no class-id to name
// mapping was supplied for the model.
var ErrNoClassMap = errors.New("present: no class map available")

// TF is the tensor-flow-style detection record: boxes normalized and
// reordered to [y1, x1, y2, x2].
type TF struct {
	DetectionBoxes   [][4]float32 `json:"detection_boxes"`
	DetectionScores  []float32    `json:"detection_scores"`
	DetectionClasses []int        `json:"detection_classes"`
	NumDetections    int          `json:"num_detections"`
}

// Named is one entry of the name-keyed list format:
// [[x1, y1, x2, y2] normalized, class name, class id, score].
type Named struct {
	Box       [4]float32 `json:"box"`
	ClassName string     `json:"class_name"`
	ClassID   int        `json:"class_id"`
	Score     float32    `json:"score"`
}

// ToTF converts one image's detections, normalizing boxes by the original
// image size and swapping to [y1, x1, y2, x2] order.
func ToTF(dets []postprocess.Detection, origH, origW int) TF {
	out := TF{
		DetectionBoxes:   make([][4]float32, len(dets)),
		DetectionScores:  make([]float32, len(dets)),
		DetectionClasses: make([]int, len(dets)),
		NumDetections:    len(dets),
	}
	for i, d := range dets {
		n := postprocess.NormalizeXYXY(d.Box, origH, origW)
		out.DetectionBoxes[i] = [4]float32{n[1], n[0], n[3], n[2]}
		out.DetectionScores[i] = d.Score
		out.DetectionClasses[i] = d.Class
	}
	return out
}

// ToNamed converts one image's detections into the name-keyed list format.
// It fails immediately when no class map is available.
func ToNamed(dets []postprocess.Detection, origH, origW int, classes map[int]string) ([]Named, error) {
	if classes == nil {
		return nil, ErrNoClassMap
	}
	out := make([]Named, len(dets))
	for i, d := range dets {
		n := postprocess.NormalizeXYXY(d.Box, origH, origW)
		out[i] = Named{
			Box:       [4]float32(n),
			ClassName: classes[d.Class],
			ClassID:   d.Class,
			Score:     d.Score,
		}
	}
	return out, nil
}

// Raw splits one image's detections into parallel (boxes, scores, classes)
// slices in original pixel space, no normalization.
func Raw(dets []postprocess.Detection) ([][4]float32, []float32, []int) {
	boxes := make([][4]float32, len(dets))
	scores := make([]float32, len(dets))
	classes := make([]int, len(dets))
	for i, d := range dets {
		boxes[i] = [4]float32(d.Box)
		scores[i] = d.Score
		classes[i] = d.Class
	}
	return boxes, scores, classes
}
