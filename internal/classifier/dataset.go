// Package classifier predicts whether the next candle closes above the
// current one, from the candle's OHLC prices and indicator readings.
//
// Every call fits a fresh model: no state survives between analysis cycles.
package classifier

import (
	"fmt"

	"candlesignal/internal/indicator"
	"candlesignal/internal/model"
	"candlesignal/internal/series"
)

// NumFeatures is the width of a feature vector:
// open, high, low, close, momentum, trend average.
const NumFeatures = 6

// FeatureNames labels the columns of Features, in order.
var FeatureNames = [NumFeatures]string{"open", "high", "low", "close", "momentum", "trend_average"}

// Features is one feature vector.
type Features [NumFeatures]float64

// Row is a labeled training example taken at series position Index.
type Row struct {
	Index    int
	Features Features
	Label    int // 1 if close[Index+1] > close[Index], else 0
}

// Dataset is the labeled history plus the unlabeled most recent candle.
type Dataset struct {
	Rows []Row

	// Latest is the feature vector of the most recent candle, or nil if its
	// indicators are still warming up.
	Latest *Features
}

// BuildDataset labels every position except the last. Positions where any
// indicator reading is undefined are skipped.
func BuildDataset(s *series.Series, f *indicator.Frame) (*Dataset, error) {
	if s == nil || f == nil {
		return nil, model.InsufficientData("classifier dataset", 2, 0)
	}
	if f.Len() != s.Len() {
		return nil, fmt.Errorf("indicator frame length %d != series length %d", f.Len(), s.Len())
	}

	n := s.Len()
	ds := &Dataset{Rows: make([]Row, 0, n)}
	for i := 0; i < n; i++ {
		x, ok := featuresAt(s, f, i)
		if !ok {
			continue
		}
		if i == n-1 {
			ds.Latest = &x
			break
		}
		label := 0
		if s.At(i+1).Close > s.At(i).Close {
			label = 1
		}
		ds.Rows = append(ds.Rows, Row{Index: i, Features: x, Label: label})
	}
	return ds, nil
}

func featuresAt(s *series.Series, f *indicator.Frame, i int) (Features, bool) {
	mom, avg := f.Momentum[i], f.TrendAverage[i]
	if !mom.OK || !avg.OK {
		return Features{}, false
	}
	c := s.At(i)
	return Features{c.Open, c.High, c.Low, c.Close, mom.V, avg.V}, true
}

// Split holds out the most recent rows. The holdout shrinks so that at
// least minTrain rows remain for fitting; fewer than minTrain rows in total
// is ErrInsufficientData.
func Split(rows []Row, holdout, minTrain int) (train, test []Row, err error) {
	n := len(rows)
	if n == 0 || n < minTrain {
		return nil, nil, fmt.Errorf("classifier training rows: need %d, have %d: %w",
			minTrain, n, model.ErrInsufficientData)
	}
	h := holdout
	if h > n-minTrain {
		h = n - minTrain
	}
	if h < 0 {
		h = 0
	}
	return rows[:n-h], rows[n-h:], nil
}
