// Package horizon decodes the categorical pitch/theta head outputs into
// continuous scalar estimates. Each head emits logits over a fixed number of
// bins discretizing a pre-agreed continuous range; the range bounds are a
// calibration supplied by the caller, not baked in here. Pitch and theta use
// the normalized-coordinate convention: point coordinates are divided by
// image width/height before any angle computation, so estimates are
// resolution-independent.
package horizon

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Calibration maps bin indices back onto the continuous pitch/theta ranges
// the heads were trained against.
type Calibration struct {
	PitchMin, PitchMax float64
	ThetaMin, ThetaMax float64
}

// DefaultCalibration covers normalized pitch in [0,1] and theta in
// [-pi/2, pi/2].
func DefaultCalibration() Calibration {
	return Calibration{
		PitchMin: 0, PitchMax: 1,
		ThetaMin: -math.Pi / 2, ThetaMax: math.Pi / 2,
	}
}

// Estimate is the decoded horizon: continuous scalars plus the full
// probability vectors the training collaborator consumes for loss
// computation.
type Estimate struct {
	Pitch      float64
	Theta      float64
	PitchProbs []float64
	ThetaProbs []float64
}

// Decode turns one image's pitch and theta logits into an estimate using
// softmax probabilities and nearest-bin decoding: the argmax bin's
// representative value is the scalar.
func Decode(pitchLogits, thetaLogits []float32, cal Calibration) (Estimate, error) {
	pitch, pitchProbs, err := decodeHead(pitchLogits, cal.PitchMin, cal.PitchMax)
	if err != nil {
		return Estimate{}, fmt.Errorf("horizon: pitch: %w", err)
	}
	theta, thetaProbs, err := decodeHead(thetaLogits, cal.ThetaMin, cal.ThetaMax)
	if err != nil {
		return Estimate{}, fmt.Errorf("horizon: theta: %w", err)
	}
	return Estimate{Pitch: pitch, Theta: theta, PitchProbs: pitchProbs, ThetaProbs: thetaProbs}, nil
}

func decodeHead(logits []float32, lo, hi float64) (float64, []float64, error) {
	if len(logits) == 0 {
		return 0, nil, fmt.Errorf("no logits")
	}
	probs := softmax(logits)
	idx := floats.MaxIdx(probs)
	return binValue(idx, len(logits), lo, hi), probs, nil
}

// binValue maps a bin index to its representative value. Bin 0 sits at the
// range's lower bound and the last bin at its upper bound, matching the
// continuous-to-categorical scaling used at training time.
func binValue(idx, bins int, lo, hi float64) float64 {
	if bins == 1 {
		return lo
	}
	return lo + float64(idx)/float64(bins-1)*(hi-lo)
}

// softmax normalizes logits into a probability distribution. The max logit is
// subtracted first so large logits cannot overflow Exp.
func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v)
	}
	max := floats.Max(out)
	for i := range out {
		out[i] = math.Exp(out[i] - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// DecodeBatch decodes a whole batch of head outputs laid out row-major as
// (batch, bins) slices.
func DecodeBatch(pitchLogits, thetaLogits [][]float32, cal Calibration) ([]Estimate, error) {
	if len(pitchLogits) != len(thetaLogits) {
		return nil, fmt.Errorf("horizon: pitch batch %d != theta batch %d", len(pitchLogits), len(thetaLogits))
	}
	out := make([]Estimate, len(pitchLogits))
	for i := range pitchLogits {
		est, err := Decode(pitchLogits[i], thetaLogits[i], cal)
		if err != nil {
			return nil, err
		}
		out[i] = est
	}
	return out, nil
}
