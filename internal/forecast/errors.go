// Package forecast implements rolling-origin forecasting: in-sample window
// prediction, recursive out-of-sample extension, reconciliation of window
// forecasts into train/val/test/out-of-sample buckets, and the best-forecast
// series with its accuracy metrics.
//
// Every stage takes an immutable Context and returns a new one. A failure at
// any stage aborts the whole run; no partial result is returned.
package forecast

import (
	"errors"
	"fmt"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
)

// Error kinds. Input-shape, boundary, horizon and unsupported-frequency
// errors are the caller's fault; invariant errors are bugs.
var (
	ErrInputShape = model.ErrInputShape
	ErrBoundary   = model.ErrBoundary
	ErrHorizon    = model.ErrHorizon
	ErrInvariant  = model.ErrInvariant
)

// IsClientError reports whether err was caused by the request rather than
// by the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInputShape) ||
		errors.Is(err, ErrBoundary) ||
		errors.Is(err, ErrHorizon) ||
		errors.Is(err, freq.ErrUnsupportedFrequency) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrUnknownKind)
}

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
}
