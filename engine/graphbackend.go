package engine

import (
	"github.com/harborwatch/maritime-scene-service/inference"
	"github.com/harborwatch/maritime-scene-service/preprocess"
	"github.com/harborwatch/maritime-scene-service/tensor"
)

// GraphBackend adapts an assembled layer graph and its executor to the
// Engine contract, for models loaded as node lists rather than fused ONNX
// artifacts. The graph is immutable and the executor allocates per-call
// state, so a GraphBackend is reentrant as long as its node modules are.
type GraphBackend struct {
	runner *inference.Runner
	mode   inference.Mode

	inputHeight int
	inputWidth  int
	batchSize   int
	fp16        bool
}

// NewGraphBackend wraps runner with the given input geometry. mode decides
// which result slots Forward reports.
func NewGraphBackend(runner *inference.Runner, mode inference.Mode, height, width, batch int, fp16 bool) *GraphBackend {
	return &GraphBackend{
		runner:      runner,
		mode:        mode,
		inputHeight: height,
		inputWidth:  width,
		batchSize:   batch,
		fp16:        fp16,
	}
}

// Forward validates the batch, runs the graph and returns the populated
// result slots in detection, pitch, theta order.
func (b *GraphBackend) Forward(batch *tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := preprocess.CheckBatch(batch, b.batchSize, b.inputHeight, b.inputWidth); err != nil {
		return nil, err
	}
	res, err := b.runner.Run(batch, b.mode)
	if err != nil {
		return nil, err
	}

	var out []*tensor.Tensor
	if res.Detection != nil {
		out = append(out, res.Detection)
	}
	if res.Pitch != nil {
		out = append(out, res.Pitch)
	}
	if res.Theta != nil {
		out = append(out, res.Theta)
	}
	return out, nil
}

func (b *GraphBackend) InputHeight() int { return b.inputHeight }
func (b *GraphBackend) InputWidth() int  { return b.inputWidth }
func (b *GraphBackend) BatchSize() int   { return b.batchSize }
func (b *GraphBackend) FP16() bool       { return b.fp16 }

func (b *GraphBackend) Close() error { return nil }
