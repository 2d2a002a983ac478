// Package metrics scores forecasts against observed values.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// Metric names accepted by Apply.
const (
	RMSE = "rmse"
	MAE  = "mae"
	MSE  = "mse"
	MAPE = "mape"
	R2   = "r2"
)

// Default is the metric set reported for every forecast segment.
var Default = []string{RMSE, MAPE, R2}

var (
	ErrLenMismatch   = errors.New("predicted and actual have different lengths")
	ErrUnknownMetric = errors.New("unknown metric")
)

type scorer func(pred, actual []float64) float64

var scorers = map[string]scorer{
	RMSE: func(p, a []float64) float64 { return math.Sqrt(mse(p, a)) },
	MAE:  mae,
	MSE:  mse,
	MAPE: mape,
	R2:   r2,
}

// Apply computes each named metric over pred and actual.
func Apply(names []string, pred, actual []float64) ([]model.Metric, error) {
	if len(pred) != len(actual) {
		return nil, fmt.Errorf("%w: %d predicted, %d actual", ErrLenMismatch, len(pred), len(actual))
	}
	out := make([]model.Metric, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		fn, ok := scorers[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}
		out = append(out, model.Metric{Name: key, Value: fn(pred, actual)})
	}
	return out, nil
}

// pairs drops positions where either side is missing.
func pairs(pred, actual []float64) (p, a []float64) {
	p = make([]float64, 0, len(pred))
	a = make([]float64, 0, len(actual))
	for i := range actual {
		if math.IsNaN(actual[i]) || math.IsNaN(pred[i]) {
			continue
		}
		p = append(p, pred[i])
		a = append(a, actual[i])
	}
	return p, a
}

func mse(pred, actual []float64) float64 {
	p, a := pairs(pred, actual)
	if len(a) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := range a {
		sum += (a[i] - p[i]) * (a[i] - p[i])
	}
	return sum / float64(len(a))
}

func mae(pred, actual []float64) float64 {
	p, a := pairs(pred, actual)
	if len(a) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - p[i])
	}
	return sum / float64(len(a))
}

// mape skips zero actuals and is expressed as a fraction, not a percentage.
func mape(pred, actual []float64) float64 {
	p, a := pairs(pred, actual)
	sum, n := 0.0, 0
	for i := range a {
		if a[i] == 0 {
			continue
		}
		sum += math.Abs((a[i] - p[i]) / a[i])
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func r2(pred, actual []float64) float64 {
	p, a := pairs(pred, actual)
	if len(a) < 2 {
		return math.NaN()
	}
	return stat.RSquaredFrom(p, a, nil)
}
