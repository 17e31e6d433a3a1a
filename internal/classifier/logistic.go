package classifier

import (
	"fmt"
	"math"

	"candlesignal/internal/model"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Training settings. Full-batch gradient descent from zero weights has no
// randomness, so a fit is reproducible bit for bit.
const (
	iterations   = 500
	learningRate = 0.1
	l2           = 1e-3
)

// Model is a logistic regression over z-scored features.
type Model struct {
	mean    Features
	scale   Features
	weights Features
	bias    float64
}

// Fit trains a model on rows.
func Fit(rows []Row) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("fit: no rows: %w", model.ErrInsufficientData)
	}

	m := &Model{}
	col := make([]float64, len(rows))
	for j := 0; j < NumFeatures; j++ {
		for i, r := range rows {
			col[i] = r.Features[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			// constant (or single-row) column carries no signal
			std = 1
		}
		m.mean[j], m.scale[j] = mean, std
	}

	xs := make([]Features, len(rows))
	for i, r := range rows {
		xs[i] = m.standardize(r.Features)
	}

	n := float64(len(rows))
	grad := make([]float64, NumFeatures)
	for it := 0; it < iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		var gb float64
		for i, x := range xs {
			diff := sigmoid(floats.Dot(m.weights[:], x[:])+m.bias) - float64(rows[i].Label)
			floats.AddScaled(grad, diff, x[:])
			gb += diff
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, l2, m.weights[:])
		floats.AddScaled(m.weights[:], -learningRate, grad)
		m.bias -= learningRate * gb / n
	}

	if !finite(m.bias) {
		return nil, fmt.Errorf("fit: non-finite bias: %w", model.ErrComputation)
	}
	for j, w := range m.weights {
		if !finite(w) {
			return nil, fmt.Errorf("fit: non-finite weight for %s: %w", FeatureNames[j], model.ErrComputation)
		}
	}
	return m, nil
}

// Probability returns P(next close > current close) for x.
func (m *Model) Probability(x Features) float64 {
	z := m.standardize(x)
	return sigmoid(floats.Dot(m.weights[:], z[:]) + m.bias)
}

func (m *Model) standardize(x Features) Features {
	var z Features
	for j := range x {
		z[j] = (x[j] - m.mean[j]) / m.scale[j]
	}
	return z
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
