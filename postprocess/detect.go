package postprocess

import (
	"fmt"
	"sync"

	"github.com/harborwatch/maritime-scene-service/tensor"
)

// Default thresholds the detector ships with.
const (
	DefaultConfThreshold float32 = 0.147
	DefaultIoUThreshold  float32 = 0.1
)

// Detection is one final, image-space detection.
type Detection struct {
	Box   Box // corner form, pixels of the original image
	Score float32
	Class int
}

// Config controls detection postprocessing.
type Config struct {
	ConfThreshold float32
	IoUThreshold  float32
	// Agnostic disables class-aware suppression: overlapping boxes suppress
	// each other regardless of class.
	Agnostic bool
}

// DefaultConfig returns the shipped thresholds with class-aware suppression.
func DefaultConfig() Config {
	return Config{ConfThreshold: DefaultConfThreshold, IoUThreshold: DefaultIoUThreshold}
}

// Detections converts a raw per-anchor output tensor of shape
// (batch, anchors, 4+classes) into one filtered detection set per image.
// Rows are center-form (cx, cy, w, h) followed by per-class confidences.
// Images are processed concurrently; suppression within one image is
// sequential by nature.
func Detections(raw *tensor.Tensor, inputH, inputW, origH, origW int, cfg Config) ([][]Detection, error) {
	if raw == nil {
		return nil, fmt.Errorf("postprocess: nil detection tensor")
	}
	if raw.Rank() != 3 {
		return nil, fmt.Errorf("postprocess: detection tensor must have rank 3 (batch, anchors, 4+classes), got %d", raw.Rank())
	}
	if raw.Dim(2) < 5 {
		return nil, fmt.Errorf("postprocess: anchor row of %d values has no class scores", raw.Dim(2))
	}

	batch, anchors, row := raw.Dim(0), raw.Dim(1), raw.Dim(2)
	out := make([][]Detection, batch)

	var wg sync.WaitGroup
	wg.Add(batch)
	for b := 0; b < batch; b++ {
		go func(b int) {
			defer wg.Done()
			img := raw.Data()[b*anchors*row : (b+1)*anchors*row]
			out[b] = detectOne(img, anchors, row, inputH, inputW, origH, origW, cfg)
		}(b)
	}
	wg.Wait()
	return out, nil
}

func detectOne(data []float32, anchors, row, inputH, inputW, origH, origW int, cfg Config) []Detection {
	var boxes []Box
	var scores []float32
	var classes []int

	for a := 0; a < anchors; a++ {
		r := data[a*row : (a+1)*row]
		cls, score := bestClass(r[4:])
		if score < cfg.ConfThreshold {
			continue
		}
		boxes = append(boxes, CxCyWHToXYXY(Box{r[0], r[1], r[2], r[3]}))
		scores = append(scores, score)
		classes = append(classes, cls)
	}
	if len(boxes) == 0 {
		return nil
	}

	nmsClasses := classes
	if cfg.Agnostic {
		nmsClasses = nil
	}
	keep := NMS(boxes, scores, cfg.IoUThreshold, nmsClasses)

	kept := make([]Detection, 0, len(boxes))
	for i, k := range keep {
		if !k {
			continue
		}
		kept = append(kept, Detection{Box: boxes[i], Score: scores[i], Class: classes[i]})
	}

	scaled := make([]Box, len(kept))
	for i := range kept {
		scaled[i] = kept[i].Box
	}
	ScaleBoxes(scaled, inputH, inputW, origH, origW)
	for i := range kept {
		kept[i].Box = scaled[i]
	}
	return kept
}

func bestClass(confidences []float32) (int, float32) {
	best, bestScore := 0, confidences[0]
	for i, c := range confidences[1:] {
		if c > bestScore {
			best, bestScore = i+1, c
		}
	}
	return best, bestScore
}
