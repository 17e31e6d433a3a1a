package model

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	// ErrInsufficientData means the computation needs more history than is
	// available. Recoverable: retry once more candles accrue.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidCandle marks a malformed input row.
	ErrInvalidCandle = errors.New("invalid candle")

	// ErrComputation is a non-finite or otherwise unexpected numeric result.
	ErrComputation = errors.New("computation failure")
)

// InsufficientData returns an ErrInsufficientData wrapping the need/have counts.
func InsufficientData(what string, need, have int) error {
	return fmt.Errorf("%s: need %d candles, have %d: %w", what, need, have, ErrInsufficientData)
}

// ComponentError tags an error with the component that produced it.
type ComponentError struct {
	Component string
	Err       error
}

func (e *ComponentError) Error() string {
	return e.Component + ": " + e.Err.Error()
}

func (e *ComponentError) Unwrap() error { return e.Err }
