package engine

import (
	"fmt"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/harborwatch/maritime-scene-service/graph"
	"github.com/harborwatch/maritime-scene-service/preprocess"
	"github.com/harborwatch/maritime-scene-service/tensor"
)

// SessionConfig describes the ONNX model's bound input and outputs.
type SessionConfig struct {
	InputHeight int
	InputWidth  int
	BatchSize   int
	FP16        bool

	InputName    string
	OutputNames  []string
	OutputShapes [][]int64
}

// Session is an Engine backed by an ONNX Runtime session with pre-allocated
// input and output tensors. It is not reentrant: one Forward at a time.
type Session struct {
	cfg     SessionConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

// NewSession loads the model at modelPath. The ONNX Runtime environment must
// already be initialized by the caller.
func NewSession(modelPath string, cfg SessionConfig) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, &graph.ConfigurationError{Msg: fmt.Sprintf("model file not found: %s", modelPath)}
	}
	if len(cfg.OutputNames) == 0 || len(cfg.OutputNames) != len(cfg.OutputShapes) {
		return nil, &graph.ConfigurationError{Msg: "output names and shapes must match and be non-empty"}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("engine: create session options: %w", err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	inputShape := ort.NewShape(int64(cfg.BatchSize), 3, int64(cfg.InputHeight), int64(cfg.InputWidth))
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("engine: create input tensor: %w", err)
	}

	outputs := make([]*ort.Tensor[float32], 0, len(cfg.OutputNames))
	arbitrary := make([]ort.ArbitraryTensor, 0, len(cfg.OutputNames))
	destroyAll := func() {
		input.Destroy()
		for _, o := range outputs {
			o.Destroy()
		}
	}
	for _, shape := range cfg.OutputShapes {
		out, err := ort.NewEmptyTensor[float32](ort.NewShape(shape...))
		if err != nil {
			destroyAll()
			return nil, fmt.Errorf("engine: create output tensor: %w", err)
		}
		outputs = append(outputs, out)
		arbitrary = append(arbitrary, out)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{cfg.InputName},
		cfg.OutputNames,
		[]ort.ArbitraryTensor{input},
		arbitrary,
		options,
	)
	if err != nil {
		destroyAll()
		return nil, fmt.Errorf("engine: create session: %w", err)
	}

	return &Session{cfg: cfg, session: session, input: input, outputs: outputs}, nil
}

// Forward copies batch into the bound input, runs the session and returns
// copies of the bound outputs.
func (s *Session) Forward(batch *tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := preprocess.CheckBatch(batch, s.cfg.BatchSize, s.cfg.InputHeight, s.cfg.InputWidth); err != nil {
		return nil, err
	}
	copy(s.input.GetData(), batch.Data())

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("engine: inference: %w", err)
	}

	out := make([]*tensor.Tensor, len(s.outputs))
	for i, o := range s.outputs {
		shape := make([]int, len(s.cfg.OutputShapes[i]))
		for j, d := range s.cfg.OutputShapes[i] {
			shape[j] = int(d)
		}
		data := make([]float32, len(o.GetData()))
		copy(data, o.GetData())
		t, err := tensor.FromSlice(data, shape...)
		if err != nil {
			return nil, fmt.Errorf("engine: output %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

func (s *Session) InputHeight() int { return s.cfg.InputHeight }
func (s *Session) InputWidth() int  { return s.cfg.InputWidth }
func (s *Session) BatchSize() int   { return s.cfg.BatchSize }
func (s *Session) FP16() bool       { return s.cfg.FP16 }

// Close destroys the session and its bound tensors.
func (s *Session) Close() error {
	s.session.Destroy()
	s.input.Destroy()
	for _, o := range s.outputs {
		o.Destroy()
	}
	return nil
}
