package core

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// RuntimeVersion reports the onnxruntime library version, or "" before the
// environment is initialized.
func RuntimeVersion() string {
	if !ort.IsInitialized() {
		return ""
	}
	return ort.GetVersion()
}

// onnxClassifier runs an image classification graph through onnxruntime with
// the input and output tensors allocated once and bound to the session. The
// bound tensors are shared state, so Run is serialized behind a mutex.
type onnxClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	closed  bool
}

func newOnnxClassifier(modelPath string, meta Metadata) (*onnxClassifier, error) {
	inputShape := ort.NewShape(1, int64(meta.InputHeight), int64(meta.InputWidth), 3)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(len(meta.Classes)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{meta.InputName},
		[]string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("creating onnx session for %s: %w", modelPath, err)
	}

	return &onnxClassifier{session: session, input: inputTensor, output: outputTensor}, nil
}

func (c *onnxClassifier) Infer(data []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrModelNotLoaded
	}

	dst := c.input.GetData()
	if len(data) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx session run: %w", err)
	}

	// Copy out before unlocking; the output tensor is overwritten by the
	// next Run.
	out := c.output.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

func (c *onnxClassifier) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.session.Destroy()
	c.input.Destroy()
	c.output.Destroy()
}
