package api

// RootResponse is the service banner returned by GET /.
type RootResponse struct {
	Service     string `json:"service"`
	Status      string `json:"status"`
	Version     string `json:"version"`
	ModelLoaded bool   `json:"model_loaded"`
}

type ModelStatus struct {
	Loaded    bool  `json:"loaded"`
	InputSize []int `json:"input_size"`
	Classes   int   `json:"classes"`
}

type HealthResponse struct {
	Status          string            `json:"status"`
	Model           ModelStatus       `json:"model"`
	RuntimeVersions map[string]string `json:"runtime_versions"`
}

type ClassesResponse struct {
	Classes []string `json:"classes"`
	Count   int      `json:"count"`
}

// PredictResponse is the result of classifying one uploaded image. The
// probabilities are rounded to four decimal places; Confidence always equals
// the largest value in AllProbabilities.
type PredictResponse struct {
	Success          bool               `json:"success"`
	Prediction       string             `json:"prediction"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
	Filename         string             `json:"filename"`
}

type PixelRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

type RankedPrediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// DebugPredictResponse mirrors PredictResponse but reports every probability
// unrounded and adds the raw scorer output and preprocessing diagnostics.
// Not a stable contract.
type DebugPredictResponse struct {
	RawPredictions   []float32          `json:"raw_predictions"`
	PredictedClass   string             `json:"predicted_class"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
	TopPredictions   []RankedPrediction `json:"top_predictions,omitempty"`
	ImageShape       []int64            `json:"image_shape"`
	PixelRange       PixelRange         `json:"pixel_range"`
}
