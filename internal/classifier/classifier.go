package classifier

import (
	"fmt"
	"math"

	"candlesignal/internal/indicator"
	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// Defaults for Params.
const (
	DefaultHoldoutSize  = 50
	DefaultMinTrainRows = 10
)

// Params configures Classify.
type Params struct {
	HoldoutSize  int `yaml:"holdout_size" json:"holdout_size" validate:"min=0"`
	MinTrainRows int `yaml:"min_train_rows" json:"min_train_rows" validate:"min=1"`
}

// DefaultParams holds out 50 rows and requires 10 training rows.
func DefaultParams() Params {
	return Params{HoldoutSize: DefaultHoldoutSize, MinTrainRows: DefaultMinTrainRows}
}

// Classify fits a model on s and predicts the direction of the candle after
// the most recent one.
func Classify(s *series.Series, f *indicator.Frame, p Params) (*model.Prediction, error) {
	ds, err := BuildDataset(s, f)
	if err != nil {
		return nil, err
	}
	if ds.Latest == nil {
		return nil, fmt.Errorf("latest candle has no indicator readings yet: %w", model.ErrInsufficientData)
	}
	train, holdout, err := Split(ds.Rows, p.HoldoutSize, p.MinTrainRows)
	if err != nil {
		return nil, err
	}
	m, err := Fit(train)
	if err != nil {
		return nil, err
	}

	prob := m.Probability(*ds.Latest)
	if math.IsNaN(prob) {
		return nil, fmt.Errorf("predict: probability is NaN: %w", model.ErrComputation)
	}
	pred := &model.Prediction{
		Direction:   model.Down,
		Probability: prob,
		Confidence:  1 - prob,
		TrainRows:   len(train),
		HoldoutRows: len(holdout),
	}
	if prob > 0.5 {
		pred.Direction = model.Up
		pred.Confidence = prob
	}
	if len(holdout) > 0 {
		pred.HoldoutAccuracy = model.Float(m.Accuracy(holdout))
	}
	return pred, nil
}

// Accuracy is the share of rows whose label the model predicts correctly.
func (m *Model) Accuracy(rows []Row) float64 {
	if len(rows) == 0 {
		return 0
	}
	hits := 0
	for _, r := range rows {
		up := m.Probability(r.Features) > 0.5
		if up == (r.Label == 1) {
			hits++
		}
	}
	return float64(hits) / float64(len(rows))
}
