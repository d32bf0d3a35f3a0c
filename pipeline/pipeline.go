// Package pipeline composes one inference call end to end: letterbox
// preprocessing, the engine forward pass and geometric postprocessing, each
// inside its own timed region. The stages are explicit function calls, not
// hooks hidden on the engine.
package pipeline

import (
	"fmt"
	"image"

	"github.com/harborwatch/maritime-scene-service/engine"
	"github.com/harborwatch/maritime-scene-service/horizon"
	"github.com/harborwatch/maritime-scene-service/postprocess"
	"github.com/harborwatch/maritime-scene-service/preprocess"
	"github.com/harborwatch/maritime-scene-service/tensor"
	"github.com/harborwatch/maritime-scene-service/timing"
)

// Config tunes postprocessing.
type Config struct {
	Detection   postprocess.Config
	Calibration horizon.Calibration
	// Refine enables the optional offset curve-fit when the engine emits an
	// auxiliary offset/angle tensor. Nil disables it.
	Refine postprocess.OffsetRefiner
}

// Result is one processed batch: a detection set per frame and, when the
// model carries horizon heads, an estimate per frame.
type Result struct {
	Detections [][]postprocess.Detection
	Horizons   []horizon.Estimate
	// Offsets holds the per-frame refined offset when curve-fitting ran.
	Offsets []float64
}

// Pipeline drives one engine. It owns per-pipeline timing state, so one
// Pipeline must not be shared across concurrent calls; the engine pool hands
// out engines, and each caller wraps its own.
type Pipeline struct {
	eng    engine.Engine
	cfg    Config
	stages timing.Stages
}

// New wraps eng with the given postprocessing config.
func New(eng engine.Engine, cfg Config) *Pipeline {
	if cfg.Detection.ConfThreshold == 0 && cfg.Detection.IoUThreshold == 0 {
		cfg.Detection = postprocess.DefaultConfig()
	}
	if cfg.Calibration == (horizon.Calibration{}) {
		cfg.Calibration = horizon.DefaultCalibration()
	}
	return &Pipeline{eng: eng, cfg: cfg}
}

// Stages exposes the accumulated per-stage timings.
func (p *Pipeline) Stages() *timing.Stages { return &p.stages }

// Process runs the full pipeline over a batch of frames. All frames must
// share the original size; results are indexed like frames.
func (p *Pipeline) Process(frames []image.Image) (*Result, error) {
	if len(frames) != p.eng.BatchSize() {
		return nil, &preprocess.InputError{Msg: fmt.Sprintf("batch of %d frames, engine expects %d", len(frames), p.eng.BatchSize())}
	}
	origW := frames[0].Bounds().Dx()
	origH := frames[0].Bounds().Dy()
	for i, f := range frames[1:] {
		if f.Bounds().Dx() != origW || f.Bounds().Dy() != origH {
			return nil, &preprocess.InputError{Msg: fmt.Sprintf("frame %d size %dx%d differs from frame 0 %dx%d",
				i+1, f.Bounds().Dx(), f.Bounds().Dy(), origW, origH)}
		}
	}

	batch, err := p.preprocessStage(frames)
	if err != nil {
		return nil, err
	}
	outputs, err := p.inferenceStage(batch)
	if err != nil {
		return nil, err
	}
	return p.postprocessStage(outputs, origH, origW)
}

func (p *Pipeline) preprocessStage(frames []image.Image) (*tensor.Tensor, error) {
	defer p.stages.Preprocess.Start()()
	return preprocess.BatchTensor(frames, p.eng.InputWidth(), p.eng.InputHeight())
}

func (p *Pipeline) inferenceStage(batch *tensor.Tensor) ([]*tensor.Tensor, error) {
	defer p.stages.Inference.Start()()
	return p.eng.Forward(batch)
}

func (p *Pipeline) postprocessStage(outputs []*tensor.Tensor, origH, origW int) (*Result, error) {
	defer p.stages.Postprocess.Start()()

	detection, pitch, theta, aux, err := splitOutputs(outputs)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if detection != nil {
		res.Detections, err = postprocess.Detections(detection,
			p.eng.InputHeight(), p.eng.InputWidth(), origH, origW, p.cfg.Detection)
		if err != nil {
			return nil, err
		}
	}
	if pitch != nil && theta != nil {
		pitchRows, err := rows(pitch)
		if err != nil {
			return nil, err
		}
		thetaRows, err := rows(theta)
		if err != nil {
			return nil, err
		}
		res.Horizons, err = horizon.DecodeBatch(pitchRows, thetaRows, p.cfg.Calibration)
		if err != nil {
			return nil, err
		}
	}
	if aux != nil && p.cfg.Refine != nil {
		res.Offsets, err = postprocess.RefineOffsets(aux, p.cfg.Refine)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// splitOutputs applies the engine output convention: 1 output is detection
// only, 2 are the horizon heads, 3 add detection, 4 add the auxiliary
// offset/angle tensor.
func splitOutputs(outputs []*tensor.Tensor) (detection, pitch, theta, aux *tensor.Tensor, err error) {
	switch len(outputs) {
	case 1:
		return outputs[0], nil, nil, nil, nil
	case 2:
		return nil, outputs[0], outputs[1], nil, nil
	case 3:
		return outputs[0], outputs[1], outputs[2], nil, nil
	case 4:
		return outputs[0], outputs[1], outputs[2], outputs[3], nil
	}
	return nil, nil, nil, nil, fmt.Errorf("pipeline: engine produced %d outputs, want 1 to 4", len(outputs))
}

// rows splits a (batch, n) tensor into per-image slices.
func rows(t *tensor.Tensor) ([][]float32, error) {
	if t.Rank() != 2 {
		return nil, fmt.Errorf("pipeline: head output must have shape (batch, bins), got %v", t.Shape())
	}
	batch, n := t.Dim(0), t.Dim(1)
	out := make([][]float32, batch)
	for b := 0; b < batch; b++ {
		out[b] = t.Data()[b*n : (b+1)*n]
	}
	return out, nil
}
