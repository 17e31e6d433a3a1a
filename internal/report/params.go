package report

import (
	"fmt"

	"candlesignal/internal/classifier"
	"candlesignal/internal/indicator"
	"candlesignal/internal/pattern"

	"github.com/go-playground/validator/v10"
)

// Params collects every per-call analysis option. The YAML form is flat:
//
//	momentum_period: 14
//	trend_average_window: 10
//	support_resistance_window: 20
//	gap_lookback: 20
//	pullback_window: 3
//	holdout_size: 50
//	min_train_rows: 10
type Params struct {
	Indicator  indicator.Params  `yaml:",inline" json:"indicator"`
	Pattern    pattern.Params    `yaml:",inline" json:"pattern"`
	Classifier classifier.Params `yaml:",inline" json:"classifier"`
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		Indicator:  indicator.DefaultParams(),
		Pattern:    pattern.DefaultParams(),
		Classifier: classifier.DefaultParams(),
	}
}

var validate = validator.New()

// Validate checks the struct-tag constraints of every nested option.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("analysis params: %w", err)
	}
	return nil
}
