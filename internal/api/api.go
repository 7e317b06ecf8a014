package api

import (
	"errors"
	"io"
	"net/http"
	"runtime"

	"maize-backend/internal/core"
	"maize-backend/pkg/api"

	"github.com/go-chi/chi/v5"
)

const (
	serviceName = "Maize Disease Detection API"

	// uploadField is the multipart form field carrying the image.
	uploadField = "file"

	// multipartSlack covers form framing overhead on top of the per-file
	// limit before the body reader cuts the request off.
	multipartSlack = 1 << 20
)

// BackendService serves the classification API over a loaded model.
type BackendService struct {
	service *core.PredictionService
	version string
}

func NewBackendService(service *core.PredictionService, version string) *BackendService {
	return &BackendService{service: service, version: version}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.Root))
	r.Get("/health", RestHandler(s.Health))
	r.Get("/classes", RestHandler(s.Classes))
	r.Post("/predict", RestHandler(s.Predict))
	r.Post("/debug-predict", RestHandler(s.DebugPredict))
}

func (s *BackendService) Root(r *http.Request) (any, error) {
	return api.RootResponse{
		Service:     serviceName,
		Status:      "online",
		Version:     s.version,
		ModelLoaded: s.service.Handle().Ready(),
	}, nil
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	handle := s.service.Handle()
	if !handle.Ready() {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "model not loaded")
	}

	versions := map[string]string{"go": runtime.Version()}
	if v := core.RuntimeVersion(); v != "" {
		versions["onnxruntime"] = v
	}

	meta := handle.Meta()
	return api.HealthResponse{
		Status: "healthy",
		Model: api.ModelStatus{
			Loaded:    true,
			InputSize: []int{meta.InputHeight, meta.InputWidth},
			Classes:   len(meta.Classes),
		},
		RuntimeVersions: versions,
	}, nil
}

func (s *BackendService) Classes(r *http.Request) (any, error) {
	handle := s.service.Handle()
	if !handle.Ready() {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "model not loaded")
	}

	classes := handle.Meta().Classes
	return api.ClassesResponse{Classes: classes, Count: len(classes)}, nil
}

func (s *BackendService) Predict(r *http.Request) (any, error) {
	upload, err := parseUpload(r, s.service.MaxUploadBytes())
	if err != nil {
		return nil, err
	}

	pred, err := s.service.Predict(r.Context(), *upload)
	if err != nil {
		return nil, translateError(err)
	}

	return api.PredictResponse{
		Success:          true,
		Prediction:       pred.Label,
		Confidence:       pred.Confidence,
		AllProbabilities: pred.Probabilities,
		Filename:         pred.SourceFilename,
	}, nil
}

type debugOptions struct {
	Top int `schema:"top"`
}

func (s *BackendService) DebugPredict(r *http.Request) (any, error) {
	opts, err := ParseRequestQueryParams[debugOptions](r)
	if err != nil {
		return nil, err
	}

	upload, err := parseUpload(r, s.service.MaxUploadBytes())
	if err != nil {
		return nil, err
	}

	insp, err := s.service.Inspect(r.Context(), *upload)
	if err != nil {
		return nil, translateError(err)
	}

	// Debug output reports the probabilities exactly as the scorer emitted
	// them; only the stable predict response rounds for transport.
	labels := s.service.Handle().Meta().Classes
	probs := make(map[string]float64, len(labels))
	for i, label := range labels {
		probs[label] = float64(insp.RawOutput[i])
	}

	resp := api.DebugPredictResponse{
		RawPredictions:   insp.RawOutput,
		PredictedClass:   insp.Prediction.Label,
		Confidence:       probs[insp.Prediction.Label],
		AllProbabilities: probs,
		ImageShape:       insp.Shape,
		PixelRange: api.PixelRange{
			Min:  insp.Stats.Min,
			Max:  insp.Stats.Max,
			Mean: insp.Stats.Mean,
		},
	}

	if opts.Top > 0 {
		for _, ranked := range core.TopRanked(labels, insp.RawOutput, opts.Top) {
			resp.TopPredictions = append(resp.TopPredictions, api.RankedPrediction{
				Label:       ranked.Label,
				Probability: ranked.Probability,
			})
		}
	}

	return resp, nil
}

// parseUpload pulls the image file out of the multipart form. The body is
// capped slightly above the per-file limit so an oversized upload fails with
// 413 whether it is caught here or by ValidateUpload.
func parseUpload(r *http.Request, maxBytes int64) (*core.Upload, error) {
	if r.ContentLength > maxBytes+multipartSlack {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "request body exceeds the %d byte upload limit", maxBytes)
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes+multipartSlack)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "request body exceeds the %d byte upload limit", maxBytes)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "missing multipart file field %q: %v", uploadField, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "request body exceeds the %d byte upload limit", maxBytes)
		}
		return nil, CodedErrorf(http.StatusBadRequest, "error reading uploaded file: %v", err)
	}

	return &core.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	}, nil
}

// translateError maps pipeline errors onto HTTP statuses. Client mistakes
// keep their message; server-side failures are reported generically (the
// pipeline already logged the detail).
func translateError(err error) error {
	switch {
	case errors.Is(err, core.ErrPayloadTooLarge):
		return CodedError(http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, core.ErrUnsupportedMediaType):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, core.ErrModelNotLoaded):
		return CodedErrorf(http.StatusServiceUnavailable, "model not loaded, try again shortly")
	case errors.Is(err, core.ErrInferenceTimeout):
		return CodedErrorf(http.StatusGatewayTimeout, "inference timed out")
	}

	var invalidImage *core.InvalidImageError
	if errors.As(err, &invalidImage) {
		return CodedError(http.StatusBadRequest, invalidImage)
	}

	var mismatch *core.LabelMismatchError
	if errors.As(err, &mismatch) {
		return CodedErrorf(http.StatusInternalServerError, "model configuration error")
	}

	return CodedErrorf(http.StatusInternalServerError, "prediction failed")
}
