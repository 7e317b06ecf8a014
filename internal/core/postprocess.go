package core

import (
	"math"
	"sort"
)

// Prediction is the outcome of scoring one image.
type Prediction struct {
	Label          string
	Confidence     float64
	Probabilities  map[string]float64
	SourceFilename string
}

// Ranked is one entry of a probability-ordered class list.
type Ranked struct {
	Label       string
	Probability float64
}

// roundProb rounds a probability to four decimal places for transport.
func roundProb(v float32) float64 {
	return math.Round(float64(v)*10000) / 10000
}

// FormatResult maps a raw probability vector onto class labels. The argmax is
// taken over the raw values and rounding happens afterwards; rounding is
// monotonic, so the reported confidence always equals the maximum of the
// reported probabilities.
func FormatResult(labels []string, probs []float32) (*Prediction, error) {
	if len(probs) != len(labels) || len(probs) == 0 {
		return nil, &LabelMismatchError{Labels: len(labels), Outputs: len(probs)}
	}

	// Ties go to the lowest index.
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	rounded := make(map[string]float64, len(labels))
	for i, label := range labels {
		rounded[label] = roundProb(probs[i])
	}

	return &Prediction{
		Label:         labels[best],
		Confidence:    rounded[labels[best]],
		Probabilities: rounded,
	}, nil
}

// TopRanked returns the n highest-probability labels in descending order.
// The probabilities are reported unrounded; only FormatResult rounds for
// transport.
func TopRanked(labels []string, probs []float32, n int) []Ranked {
	if len(labels) != len(probs) || n <= 0 {
		return nil
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})

	if n > len(order) {
		n = len(order)
	}
	ranked := make([]Ranked, n)
	for i := 0; i < n; i++ {
		idx := order[i]
		ranked[i] = Ranked{Label: labels[idx], Probability: float64(probs[idx])}
	}
	return ranked
}
