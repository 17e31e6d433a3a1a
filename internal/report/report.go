// Package report runs the whole analysis pipeline over one candle series
// and assembles the MarketSnapshot handed to presentation layers.
package report

import (
	"errors"
	"fmt"

	"candlesignal/internal/classifier"
	"candlesignal/internal/indicator"
	"candlesignal/internal/model"
	"candlesignal/internal/pattern"
	"candlesignal/internal/series"
)

// Component names used to tag failures.
const (
	ComponentSeries     = "candle_series"
	ComponentIndicator  = "indicator"
	ComponentPattern    = "pattern"
	ComponentClassifier = "classifier"
)

// Snapshot field names used in model.FieldError.
const (
	FieldCandleStrength = "candle_strength"
	FieldLastGap        = "last_gap"
	FieldGap            = "gap"
	FieldSupport        = "support"
	FieldResistance     = "resistance"
	FieldBestPrice      = "best_price"
	FieldMomentum       = "momentum"
	FieldTrendAverage   = "trend_average"
	FieldPrediction     = "prediction"
)

// Analysis is a snapshot together with the typed errors behind its absent
// fields.
type Analysis struct {
	Snapshot *model.MarketSnapshot
	Failures []*model.ComponentError
}

// Err returns the first component failure, or nil if every field resolved.
func (a *Analysis) Err() error {
	if len(a.Failures) == 0 {
		return nil
	}
	return a.Failures[0]
}

// Run builds a series from raw rows and analyzes it. Only a series that
// ends up empty aborts the cycle.
func Run(symbol string, rows []model.RawCandle, p Params) (*Analysis, error) {
	s, stats, err := series.Build(rows)
	if err != nil {
		return nil, &model.ComponentError{Component: ComponentSeries, Err: err}
	}
	a, err := Analyze(s, p)
	if err != nil {
		return nil, err
	}
	a.Snapshot.Symbol = symbol
	a.Snapshot.InvalidDropped = stats.Invalid
	return a, nil
}

// Analyze computes every snapshot field over s. Each field fails on its
// own: a failed component leaves its fields nil and records why, while the
// remaining fields still populate.
func Analyze(s *series.Series, p Params) (*Analysis, error) {
	if s == nil || s.Len() == 0 {
		return nil, &model.ComponentError{
			Component: ComponentSeries,
			Err:       model.InsufficientData("candle series", 1, 0),
		}
	}

	b := &builder{snap: &model.MarketSnapshot{
		CandleTime: s.Last().TS,
		Candles:    s.Len(),
	}}
	snap := b.snap

	// ---- Pattern analysis ----
	if v, err := pattern.CandleStrength(s); err != nil {
		b.fail(ComponentPattern, err, FieldCandleStrength)
	} else {
		snap.CandleStrength = model.Float(v)
	}

	if v, err := pattern.LastGap(s); err != nil {
		b.fail(ComponentPattern, err, FieldLastGap)
	} else {
		snap.LastGap = model.Float(v)
	}

	if g, err := pattern.DetectGap(s, p.Pattern.GapLookback); err != nil {
		b.fail(ComponentPattern, err, FieldGap)
	} else {
		snap.Gap = g
	}

	snap.Trend = pattern.DetectTrend(s)

	if sup, res, err := pattern.SupportResistance(s, p.Pattern.SupportResistanceWindow); err != nil {
		b.fail(ComponentPattern, err, FieldSupport, FieldResistance)
	} else {
		snap.Support, snap.Resistance = model.Float(sup), model.Float(res)
	}

	if bp, err := pattern.BestPrice(s, snap.Trend, p.Pattern.PullbackWindow); err != nil {
		b.fail(ComponentPattern, err, FieldBestPrice)
	} else {
		snap.BestPrice = bp
	}

	// ---- Indicators + classifier ----
	frame, err := indicator.Compute(s, p.Indicator)
	if err != nil {
		b.fail(ComponentIndicator, err, FieldMomentum, FieldTrendAverage)
		b.fail(ComponentClassifier, fmt.Errorf("no indicator frame: %w", err), FieldPrediction)
		return b.done(), nil
	}

	mom, avg := frame.Latest()
	if mom.OK {
		snap.Momentum = model.Float(mom.V)
	} else {
		b.fail(ComponentIndicator, model.InsufficientData("momentum", p.Indicator.MomentumPeriod+1, s.Len()), FieldMomentum)
	}
	if avg.OK {
		snap.TrendAverage = model.Float(avg.V)
	} else {
		b.fail(ComponentIndicator, model.InsufficientData("trend average", p.Indicator.TrendAverageWindow, s.Len()), FieldTrendAverage)
	}

	if pred, err := classifier.Classify(s, frame, p.Classifier); err != nil {
		b.fail(ComponentClassifier, err, FieldPrediction)
	} else {
		snap.Prediction = pred
	}

	return b.done(), nil
}

type builder struct {
	snap     *model.MarketSnapshot
	failures []*model.ComponentError
}

func (b *builder) fail(component string, err error, fields ...string) {
	var ce *model.ComponentError
	if !errors.As(err, &ce) {
		ce = &model.ComponentError{Component: component, Err: err}
	}
	b.failures = append(b.failures, ce)
	for _, f := range fields {
		b.snap.Errors = append(b.snap.Errors, model.FieldError{
			Field:     f,
			Component: ce.Component,
			Error:     ce.Err.Error(),
		})
	}
}

func (b *builder) done() *Analysis {
	return &Analysis{Snapshot: b.snap, Failures: b.failures}
}
