// Package engine defines the opaque tensor-compute contract the pipeline
// drives, plus its backends: an ONNX Runtime session and an adapter over the
// in-process graph executor. Preprocessing and postprocessing are composed
// explicitly around Forward by the caller; the engine performs no hidden
// input or output conversion.
package engine

import "github.com/harborwatch/maritime-scene-service/tensor"

// Engine runs one forward pass over a prepared NCHW batch and returns the
// raw output tensors. Output convention, by count:
//
//	1 output:  detection
//	2 outputs: pitch logits, theta logits
//	3 outputs: detection, pitch logits, theta logits
//	4 outputs: detection, pitch logits, theta logits, auxiliary offset/angle
//
// An Engine's reentrancy is unspecified; callers must serialize Forward
// calls, normally through a Pool, unless the backend is known reentrant-safe.
type Engine interface {
	Forward(batch *tensor.Tensor) ([]*tensor.Tensor, error)

	// Expected input geometry and precision, so preprocessing conforms
	// exactly.
	InputHeight() int
	InputWidth() int
	BatchSize() int
	FP16() bool

	Close() error
}
