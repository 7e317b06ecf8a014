package core

import (
	"context"
	"log/slog"
	"time"
)

// Upload is one multipart file as received by the transport layer.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// TensorStats summarizes the preprocessed pixel values for diagnostics.
type TensorStats struct {
	Min  float64
	Max  float64
	Mean float64
}

// Inspection is a Prediction plus the raw scorer output and preprocessing
// diagnostics; the debug endpoint serves it.
type Inspection struct {
	Prediction *Prediction
	RawOutput  []float32
	Shape      []int64
	Stats      TensorStats
}

// PredictionService runs the validate, preprocess, infer, format pipeline
// for one uploaded image at a time. It is safe for concurrent use; the
// handle serializes scorer access underneath.
type PredictionService struct {
	handle       *Handle
	pre          *Preprocessor
	maxBytes     int64
	inferTimeout time.Duration
}

func NewPredictionService(handle *Handle, maxBytes int64, inferTimeout time.Duration) *PredictionService {
	meta := handle.Meta()
	return &PredictionService{
		handle:       handle,
		pre:          NewPreprocessor(meta.InputHeight, meta.InputWidth, meta.Normalization),
		maxBytes:     maxBytes,
		inferTimeout: inferTimeout,
	}
}

func (s *PredictionService) Handle() *Handle { return s.handle }

func (s *PredictionService) MaxUploadBytes() int64 { return s.maxBytes }

// Predict scores one upload and returns the formatted result.
func (s *PredictionService) Predict(ctx context.Context, upload Upload) (*Prediction, error) {
	insp, err := s.Inspect(ctx, upload)
	if err != nil {
		return nil, err
	}
	return insp.Prediction, nil
}

// Inspect is Predict plus the unrounded scorer output and pixel statistics.
func (s *PredictionService) Inspect(ctx context.Context, upload Upload) (*Inspection, error) {
	insp, err := s.inspect(ctx, upload)
	if err != nil {
		slog.Error("prediction failed", "filename", upload.Filename, "error", err)
		return nil, err
	}
	return insp, nil
}

func (s *PredictionService) inspect(ctx context.Context, upload Upload) (*Inspection, error) {
	if err := ValidateUpload(upload.Size, upload.ContentType, s.maxBytes); err != nil {
		return nil, err
	}

	tensor, err := s.pre.TensorFromBytes(upload.Data)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.inferTimeout)
	defer cancel()

	probs, err := s.handle.Infer(ctx, tensor)
	if err != nil {
		return nil, err
	}

	pred, err := FormatResult(s.handle.Meta().Classes, probs)
	if err != nil {
		return nil, err
	}
	pred.SourceFilename = upload.Filename

	min, max, mean := tensor.Stats()
	return &Inspection{
		Prediction: pred,
		RawOutput:  probs,
		Shape:      tensor.Shape,
		Stats:      TensorStats{Min: min, Max: max, Mean: mean},
	}, nil
}
