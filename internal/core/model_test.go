package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"maize-backend/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClassifier stands in for the onnx session in handle and pipeline tests.
type fakeClassifier struct {
	mu       sync.Mutex
	probs    []float32
	err      error
	delay    time.Duration
	calls    int
	releases int
}

func (f *fakeClassifier) Infer(data []float32) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	delay, probs, err := f.delay, f.probs, f.err
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(probs))
	copy(out, probs)
	return out, nil
}

func (f *fakeClassifier) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
}

func testTensor(meta core.Metadata) *core.ImageTensor {
	return &core.ImageTensor{
		Data:  make([]float32, meta.InputHeight*meta.InputWidth*3),
		Shape: []int64{1, int64(meta.InputHeight), int64(meta.InputWidth), 3},
	}
}

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.Metadata)
		ok     bool
	}{
		{name: "defaults", mutate: func(m *core.Metadata) {}, ok: true},
		{name: "mobilenet mode", mutate: func(m *core.Metadata) { m.Normalization = core.NormalizationMobileNetV2 }, ok: true},
		{name: "no classes", mutate: func(m *core.Metadata) { m.Classes = nil }, ok: false},
		{name: "zero height", mutate: func(m *core.Metadata) { m.InputHeight = 0 }, ok: false},
		{name: "negative width", mutate: func(m *core.Metadata) { m.InputWidth = -1 }, ok: false},
		{name: "unknown normalization", mutate: func(m *core.Metadata) { m.Normalization = "imagenet" }, ok: false},
		{name: "missing input name", mutate: func(m *core.Metadata) { m.InputName = "" }, ok: false},
		{name: "missing output name", mutate: func(m *core.Metadata) { m.OutputName = "" }, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := core.DefaultMetadata()
			tt.mutate(&meta)
			err := meta.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	meta, err := core.LoadMetadata(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, core.DefaultMetadata(), meta)
}

func TestLoadMetadataPartialOverride(t *testing.T) {
	dir := t.TempDir()
	raw := `{"classes": ["healthy", "sick"], "normalization": "mobilenet_v2"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, core.MetadataFile), []byte(raw), 0644))

	meta, err := core.LoadMetadata(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"healthy", "sick"}, meta.Classes)
	assert.Equal(t, core.NormalizationMobileNetV2, meta.Normalization)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, core.DefaultInputHeight, meta.InputHeight)
	assert.Equal(t, core.DefaultInputWidth, meta.InputWidth)
	assert.Equal(t, core.DefaultInputName, meta.InputName)
	assert.Equal(t, core.DefaultOutputName, meta.OutputName)
}

func TestLoadMetadataRejectsBadContent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"classes": [`},
		{name: "unknown normalization", raw: `{"normalization": "imagenet"}`},
		{name: "empty classes", raw: `{"classes": []}`},
		{name: "zero input size", raw: `{"input_height": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, core.MetadataFile), []byte(tt.raw), 0644))

			_, err := core.LoadMetadata(dir)
			assert.Error(t, err)
		})
	}
}

func TestNewHandleRejectsInvalidMetadata(t *testing.T) {
	meta := core.DefaultMetadata()
	meta.Classes = nil

	_, err := core.NewHandle(&fakeClassifier{}, meta)
	assert.Error(t, err)
}

func TestHandleInfer(t *testing.T) {
	meta := core.DefaultMetadata()
	fake := &fakeClassifier{probs: []float32{0.1, 0.2, 0.3, 0.4}}
	handle, err := core.NewHandle(fake, meta)
	require.NoError(t, err)
	defer handle.Close()

	assert.True(t, handle.Ready())
	assert.Equal(t, meta, handle.Meta())

	probs, err := handle.Infer(context.Background(), testTensor(meta))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, probs)
	assert.Equal(t, 1, fake.calls)
}

func TestHandleInferShapeMismatch(t *testing.T) {
	meta := core.DefaultMetadata()
	handle, err := core.NewHandle(&fakeClassifier{probs: []float32{1, 0, 0, 0}}, meta)
	require.NoError(t, err)
	defer handle.Close()

	tests := []struct {
		name   string
		tensor *core.ImageTensor
	}{
		{name: "wrong spatial size", tensor: &core.ImageTensor{
			Data:  make([]float32, 100*100*3),
			Shape: []int64{1, 100, 100, 3},
		}},
		{name: "missing batch dimension", tensor: &core.ImageTensor{
			Data:  make([]float32, 224*224*3),
			Shape: []int64{224, 224, 3},
		}},
		{name: "data shorter than shape", tensor: &core.ImageTensor{
			Data:  make([]float32, 10),
			Shape: []int64{1, 224, 224, 3},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handle.Infer(context.Background(), tt.tensor)
			assert.Error(t, err)
		})
	}
}

func TestHandleInferWrapsScorerError(t *testing.T) {
	meta := core.DefaultMetadata()
	fake := &fakeClassifier{err: errors.New("session exploded")}
	handle, err := core.NewHandle(fake, meta)
	require.NoError(t, err)
	defer handle.Close()

	_, err = handle.Infer(context.Background(), testTensor(meta))
	require.Error(t, err)

	var inferErr *core.InferenceError
	require.ErrorAs(t, err, &inferErr)
	assert.Contains(t, err.Error(), "session exploded")
}

func TestHandleInferTimeout(t *testing.T) {
	meta := core.DefaultMetadata()
	fake := &fakeClassifier{probs: []float32{1, 0, 0, 0}, delay: 200 * time.Millisecond}
	handle, err := core.NewHandle(fake, meta)
	require.NoError(t, err)
	defer handle.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = handle.Infer(ctx, testTensor(meta))
	assert.ErrorIs(t, err, core.ErrInferenceTimeout)
}

func TestHandleInferCanceled(t *testing.T) {
	meta := core.DefaultMetadata()
	fake := &fakeClassifier{probs: []float32{1, 0, 0, 0}, delay: 100 * time.Millisecond}
	handle, err := core.NewHandle(fake, meta)
	require.NoError(t, err)
	defer handle.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = handle.Infer(ctx, testTensor(meta))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleClose(t *testing.T) {
	meta := core.DefaultMetadata()
	fake := &fakeClassifier{probs: []float32{1, 0, 0, 0}}
	handle, err := core.NewHandle(fake, meta)
	require.NoError(t, err)

	handle.Close()
	assert.False(t, handle.Ready())
	assert.Equal(t, 1, fake.releases)

	_, err = handle.Infer(context.Background(), testTensor(meta))
	assert.ErrorIs(t, err, core.ErrModelNotLoaded)

	// A second close is a no-op, not a double release.
	handle.Close()
	assert.Equal(t, 1, fake.releases)
}
