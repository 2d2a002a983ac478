package model

import "errors"

// Error kinds shared by the splitting, windowing and forecasting packages.
// Callers classify failures with errors.Is; messages carry the offending
// quantities.
var (
	// ErrInputShape reports input whose size or index cannot be windowed.
	ErrInputShape = errors.New("invalid input shape")
	// ErrBoundary reports inconsistent train/validation boundaries.
	ErrBoundary = errors.New("invalid boundaries")
	// ErrHorizon reports a forecast horizon that resolves to no periods.
	ErrHorizon = errors.New("invalid forecast horizon")
	// ErrInvariant reports a broken post-condition inside the pipeline.
	// It always indicates a bug, never bad input.
	ErrInvariant = errors.New("pipeline invariant violated")
)
