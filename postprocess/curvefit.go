package postprocess

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/harborwatch/maritime-scene-service/tensor"
)

// OffsetRefiner collapses per-anchor (angle, offset) pairs into a single
// offset scalar for one image. Refinement is optional and pluggable; a nil
// refiner disables it.
type OffsetRefiner func(angles, offsets []float64) (float64, error)

// LeastSquares is the reference refiner: it fits offset = a + b*angle by
// ordinary least squares and evaluates the fit at the mean angle, damping
// per-anchor noise without trusting any single anchor.
func LeastSquares(angles, offsets []float64) (float64, error) {
	if len(angles) == 0 || len(angles) != len(offsets) {
		return 0, fmt.Errorf("postprocess: refiner needs matching non-empty angle/offset series, got %d/%d", len(angles), len(offsets))
	}
	if len(angles) == 1 {
		return offsets[0], nil
	}
	alpha, beta := stat.LinearRegression(angles, offsets, nil, false)
	return alpha + beta*stat.Mean(angles, nil), nil
}

// RefineOffsets applies refine to an auxiliary tensor of shape
// (batch, anchors, 2) holding per-anchor (offset, angle) pairs, returning one
// offset per image.
func RefineOffsets(aux *tensor.Tensor, refine OffsetRefiner) ([]float64, error) {
	if refine == nil {
		return nil, nil
	}
	if aux == nil {
		return nil, fmt.Errorf("postprocess: refinement enabled but no auxiliary tensor present")
	}
	if aux.Rank() != 3 || aux.Dim(2) != 2 {
		return nil, fmt.Errorf("postprocess: auxiliary tensor must have shape (batch, anchors, 2), got %v", aux.Shape())
	}

	batch, anchors := aux.Dim(0), aux.Dim(1)
	out := make([]float64, batch)
	for b := 0; b < batch; b++ {
		offsets := make([]float64, anchors)
		angles := make([]float64, anchors)
		for a := 0; a < anchors; a++ {
			offsets[a] = float64(aux.Data()[(b*anchors+a)*2])
			angles[a] = float64(aux.Data()[(b*anchors+a)*2+1])
		}
		v, err := refine(angles, offsets)
		if err != nil {
			return nil, err
		}
		out[b] = v
	}
	return out, nil
}
