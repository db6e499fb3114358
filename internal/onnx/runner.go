package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// Runner is the capability interface over a scoring model: one
// implementation per concrete model runtime. Pipeline components depend
// only on this interface, which allows substituting deterministic stubs in
// tests.
type Runner interface {
	// Predict runs the model on the input tensor and returns the output.
	Predict(ctx context.Context, input Tensor) (Tensor, error)
	// InputShape returns the model's expected input shape (-1 for dynamic).
	InputShape() []int64
	// Close releases the underlying session.
	Close() error
}

// ModelOptions configures an ONNX Runtime session.
type ModelOptions struct {
	NumThreads int       // intra-op threads (0 = runtime default)
	GPU        GPUConfig // GPU acceleration configuration
}

// Model is the ONNX Runtime implementation of Runner.
type Model struct {
	path       string
	session    *onnxrt.DynamicAdvancedSession
	inputInfo  onnxrt.InputOutputInfo
	outputInfo onnxrt.InputOutputInfo
	mu         sync.RWMutex
}

// LoadModel creates an ONNX-backed Runner from a model file.
func LoadModel(path string, opts ModelOptions) (*Model, error) {
	if path == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", path)
	}

	if err := SetLibraryPath(opts.GPU.UseGPU); err != nil {
		return nil, fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if !onnxrt.IsInitialized() {
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}

	sessionOptions, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying session options: %v\n", err)
		}
	}()

	if err := ConfigureSessionForGPU(sessionOptions, opts.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if opts.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxrt.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		path:       path,
		session:    session,
		inputInfo:  inputs[0],
		outputInfo: outputs[0],
	}, nil
}

// Predict runs the model on the input tensor.
func (m *Model) Predict(ctx context.Context, input Tensor) (Tensor, error) {
	if err := input.Validate(); err != nil {
		return Tensor{}, fmt.Errorf("invalid input tensor: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}

	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()
	if session == nil {
		return Tensor{}, errors.New("model session is closed")
	}

	inputTensor, err := onnxrt.NewTensor(onnxrt.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	outputs := []onnxrt.Value{nil}
	if err := session.Run([]onnxrt.Value{inputTensor}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	if len(outputs) != 1 || outputs[0] == nil {
		return Tensor{}, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}
	outputTensor := outputs[0]
	defer func() {
		if err := outputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
		}
	}()

	floatTensor, ok := outputTensor.(*onnxrt.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("expected float32 tensor, got %T", outputTensor)
	}

	// Copy out: the ONNX buffer is freed when the output tensor is destroyed.
	src := floatTensor.GetData()
	data := make([]float32, len(src))
	copy(data, src)
	shape := outputTensor.GetShape()
	outShape := make([]int64, len(shape))
	copy(outShape, shape)

	return Tensor{Data: data, Shape: outShape}, nil
}

// InputShape returns the model's declared input dimensions.
func (m *Model) InputShape() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	shape := make([]int64, len(m.inputInfo.Dimensions))
	copy(shape, m.inputInfo.Dimensions)
	return shape
}

// Path returns the model file path.
func (m *Model) Path() string { return m.path }

// Close releases the session. Safe to call multiple times.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to destroy session for %s: %v\n", m.path, err)
		}
		m.session = nil
	}
	// Environment teardown is left to process shutdown; sessions share it.
	return nil
}
