// Package window slices a series and its exogenous table into fixed-width
// model inputs.
package window

import (
	"fmt"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// Window is a contiguous slice of a target series and the matching rows of
// its exogenous table. Exog is nil when no table was supplied.
type Window struct {
	Target model.Series
	Exog   *model.Exog
}

// Len returns the number of observations in the window.
func (w Window) Len() int { return w.Target.Len() }

// End returns the date of the window's last observation.
func (w Window) End() time.Time { return w.Target.Last().Date }

func check(exog *model.Exog, target model.Series, inputSize int) error {
	if inputSize < 1 {
		return fmt.Errorf("%w: input_size must be at least 1, got %d", model.ErrInputShape, inputSize)
	}
	if inputSize > target.Len() {
		return fmt.Errorf("%w: input_size %d exceeds series length %d", model.ErrInputShape, inputSize, target.Len())
	}
	if exog != nil && !exog.SameIndex(target) {
		return fmt.Errorf("%w: exogenous index (%d rows) does not match target index (%d rows)",
			model.ErrInputShape, exog.Len(), target.Len())
	}
	return nil
}

// Create returns every window of width inputSize over target, stride 1, in
// ascending start order. Window i covers observations [i, i+inputSize).
func Create(exog *model.Exog, target model.Series, inputSize int) ([]Window, error) {
	if err := check(exog, target, inputSize); err != nil {
		return nil, err
	}
	n := target.Len() - inputSize + 1
	out := make([]Window, n)
	for i := 0; i < n; i++ {
		out[i] = Window{
			Target: target.Slice(i, i+inputSize),
			Exog:   exog.Slice(i, i+inputSize),
		}
	}
	return out, nil
}

// Last returns only the most recent window, the seed for out-of-sample
// extension.
func Last(exog *model.Exog, target model.Series, inputSize int) (Window, error) {
	if err := check(exog, target, inputSize); err != nil {
		return Window{}, err
	}
	n := target.Len()
	return Window{
		Target: target.Slice(n-inputSize, n),
		Exog:   exog.Slice(n-inputSize, n),
	}, nil
}
