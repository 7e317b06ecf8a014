package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Artifact layout. A model directory holds the exported graph plus an
// optional metadata.json overriding parts of the default contract.
const (
	ModelFile    = "model.onnx"
	MetadataFile = "metadata.json"
)

const (
	DefaultInputHeight = 224
	DefaultInputWidth  = 224
	DefaultInputName   = "input"
	DefaultOutputName  = "output"
)

// probeSumTolerance bounds how far the probe output may drift from summing
// to one before the artifact is rejected as not ending in softmax.
const probeSumTolerance = 1e-2

// DefaultClasses are the PlantVillage category names the stock maize
// classifier was trained on, in output-index order.
var DefaultClasses = []string{
	"Corn_(maize)___Cercospora_leaf_spot Gray_leaf_spot",
	"Corn_(maize)___Common_rust_",
	"Corn_(maize)___healthy",
	"Corn_(maize)___Northern_Leaf_Blight",
}

// Metadata describes the contract between an exported graph and the
// preprocessing pipeline.
type Metadata struct {
	Classes       []string          `json:"classes"`
	InputHeight   int               `json:"input_height"`
	InputWidth    int               `json:"input_width"`
	Normalization NormalizationMode `json:"normalization"`
	InputName     string            `json:"input_name"`
	OutputName    string            `json:"output_name"`
}

func DefaultMetadata() Metadata {
	return Metadata{
		Classes:       DefaultClasses,
		InputHeight:   DefaultInputHeight,
		InputWidth:    DefaultInputWidth,
		Normalization: NormalizationEmbedded,
		InputName:     DefaultInputName,
		OutputName:    DefaultOutputName,
	}
}

func (m Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return errors.New("metadata must list at least one class")
	}
	if m.InputHeight <= 0 || m.InputWidth <= 0 {
		return fmt.Errorf("invalid input size %dx%d", m.InputHeight, m.InputWidth)
	}
	switch m.Normalization {
	case NormalizationEmbedded, NormalizationMobileNetV2:
	default:
		return fmt.Errorf("unknown normalization mode %q", m.Normalization)
	}
	if m.InputName == "" || m.OutputName == "" {
		return errors.New("metadata must name the input and output tensors")
	}
	return nil
}

// LoadMetadata reads metadata.json from the artifact directory. Absent keys
// (or an absent file) fall back to the default contract.
func LoadMetadata(dir string) (Metadata, error) {
	meta := DefaultMetadata()

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("reading %s: %w", MetadataFile, err)
	}

	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parsing %s: %w", MetadataFile, err)
	}
	if err := meta.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid %s: %w", MetadataFile, err)
	}
	return meta, nil
}

// Classifier scores one preprocessed image. Implementations must be safe for
// concurrent use.
type Classifier interface {
	// Infer consumes one NHWC float32 image and returns one raw output per
	// class.
	Infer(data []float32) ([]float32, error)

	Release()
}

type modelState int32

const (
	stateUnloaded modelState = iota
	stateLoading
	stateReady
)

// Handle owns a classifier and gates every inference on its load state, so
// requests arriving before a load completes or after an unload get
// ErrModelNotLoaded instead of touching a missing scorer.
type Handle struct {
	state atomic.Int32
	clf   Classifier
	meta  Metadata
}

// LoadHandle loads the artifact in dir and returns a ready handle. The load
// finishes with a probe inference on a blank tensor so a wrong input shape,
// a label/output arity mismatch, or a graph missing its softmax head fails
// here instead of on the first request.
func LoadHandle(dir string) (*Handle, error) {
	meta, err := LoadMetadata(dir)
	if err != nil {
		return nil, err
	}

	h := &Handle{meta: meta}
	h.state.Store(int32(stateLoading))

	clf, err := newOnnxClassifier(filepath.Join(dir, ModelFile), meta)
	if err != nil {
		h.state.Store(int32(stateUnloaded))
		return nil, err
	}
	h.clf = clf

	if err := h.probe(); err != nil {
		clf.Release()
		h.state.Store(int32(stateUnloaded))
		return nil, err
	}

	h.state.Store(int32(stateReady))
	slog.Info("model loaded", "dir", dir, "classes", len(meta.Classes),
		"input_size", fmt.Sprintf("%dx%d", meta.InputHeight, meta.InputWidth),
		"normalization", meta.Normalization)
	return h, nil
}

// NewHandle wraps an already-built classifier. No probe is run; the caller
// vouches for the classifier matching the metadata.
func NewHandle(clf Classifier, meta Metadata) (*Handle, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	h := &Handle{clf: clf, meta: meta}
	h.state.Store(int32(stateReady))
	return h, nil
}

func (h *Handle) probe() error {
	blank := make([]float32, h.meta.InputHeight*h.meta.InputWidth*3)
	probs, err := h.clf.Infer(blank)
	if err != nil {
		return fmt.Errorf("probe inference failed: %w", err)
	}

	if len(probs) != len(h.meta.Classes) {
		return &LabelMismatchError{Labels: len(h.meta.Classes), Outputs: len(probs)}
	}

	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	if math.Abs(sum-1) > probeSumTolerance {
		return fmt.Errorf("probe output sums to %.4f, expected a probability distribution (does the exported graph end in softmax?)", sum)
	}
	return nil
}

func (h *Handle) Ready() bool {
	return modelState(h.state.Load()) == stateReady
}

func (h *Handle) Meta() Metadata { return h.meta }

// Infer scores a preprocessed tensor, honoring ctx for cancellation and
// deadlines. An abandoned call still finishes inside the classifier, which
// serializes access, so the shared scorer state is never observed mid-run by
// the next request.
func (h *Handle) Infer(ctx context.Context, tensor *ImageTensor) ([]float32, error) {
	if !h.Ready() {
		return nil, ErrModelNotLoaded
	}
	if err := h.checkShape(tensor); err != nil {
		return nil, err
	}

	type inferResult struct {
		probs []float32
		err   error
	}
	done := make(chan inferResult, 1)
	go func() {
		probs, err := h.clf.Infer(tensor.Data)
		done <- inferResult{probs: probs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, ErrModelNotLoaded) {
				return nil, res.err
			}
			return nil, &InferenceError{Err: res.err}
		}
		return res.probs, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrInferenceTimeout
		}
		return nil, ctx.Err()
	}
}

func (h *Handle) checkShape(tensor *ImageTensor) error {
	want := []int64{1, int64(h.meta.InputHeight), int64(h.meta.InputWidth), 3}
	if len(tensor.Shape) != len(want) {
		return fmt.Errorf("tensor has %d dimensions, model expects %v", len(tensor.Shape), want)
	}
	elements := int64(1)
	for i, d := range tensor.Shape {
		if d != want[i] {
			return fmt.Errorf("tensor shape %v does not match model input %v", tensor.Shape, want)
		}
		elements *= d
	}
	if int64(len(tensor.Data)) != elements {
		return fmt.Errorf("tensor holds %d values, shape %v requires %d", len(tensor.Data), tensor.Shape, elements)
	}
	return nil
}

// Close rejects new inference and releases the classifier. An in-flight call
// finishes first; Release blocks on the scorer's lock.
func (h *Handle) Close() {
	if !h.state.CompareAndSwap(int32(stateReady), int32(stateUnloaded)) {
		return
	}
	h.clf.Release()
}
