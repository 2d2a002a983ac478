package forecast

import (
	"fmt"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/metrics"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// BuildBest concatenates the first point of every forecast, in order.
func BuildBest(name string, f model.Frequency, forecasts []model.Series) (model.Series, error) {
	best := model.Series{Name: name, Freq: f, Obs: make([]model.Observation, 0, len(forecasts))}
	for i, fc := range forecasts {
		if fc.IsEmpty() {
			return model.Series{}, invariant("forecast %d is empty", i)
		}
		p := fc.First()
		if n := len(best.Obs); n > 0 && !p.Date.After(best.Obs[n-1].Date) {
			return model.Series{}, invariant("forecast %d starts at %s, not after %s",
				i, util.FormatDate(p.Date), util.FormatDate(best.Obs[n-1].Date))
		}
		best.Obs = append(best.Obs, p)
	}
	return best, nil
}

// CheckBest verifies the segment counts of the best forecast against the
// split it was produced from:
//
//	dates <= train boundary:        len(train) - inputSize
//	train < dates <= val boundary:  len(val)
//	dates > val boundary:           len(test) + horizon
func CheckBest(best model.Series, b split.Boundaries, res split.Result, inputSize, horizon int) error {
	train, val, test := split.Count(best, b)
	want := [3]int{
		res.Train.Target.Len() - inputSize,
		res.Val.Target.Len(),
		res.Test.Target.Len() + horizon,
	}
	if got := [3]int{train, val, test}; got != want {
		return invariant("best forecast has train/val/test counts %v, expected %v", got, want)
	}
	return nil
}

// BestMetrics scores the best forecast on each segment. Forecast points past
// the test segment are dropped and each segment is aligned by date with the
// observed values. A segment with fewer than two aligned points gets nil
// metrics.
func BestMetrics(names []string, best model.Series, b split.Boundaries, res split.Result) (model.ModelMetrics, error) {
	train, val, test := split.SplitSeries(best, b)
	if n := res.Test.Target.Len(); test.Len() > n {
		test = test.Slice(0, n)
	}

	var out model.ModelMetrics
	var err error
	if out.Train, err = segmentMetrics(names, train, res.Train.Target); err != nil {
		return model.ModelMetrics{}, fmt.Errorf("train metrics: %w", err)
	}
	if out.Val, err = segmentMetrics(names, val, res.Val.Target); err != nil {
		return model.ModelMetrics{}, fmt.Errorf("val metrics: %w", err)
	}
	if out.Test, err = segmentMetrics(names, test, res.Test.Target); err != nil {
		return model.ModelMetrics{}, fmt.Errorf("test metrics: %w", err)
	}
	return out, nil
}

func segmentMetrics(names []string, pred, actual model.Series) ([]model.Metric, error) {
	byDate := make(map[time.Time]float64, actual.Len())
	for _, o := range actual.Obs {
		byDate[util.Naive(o.Date)] = o.Value
	}
	var p, a []float64
	for _, o := range pred.Obs {
		if v, ok := byDate[util.Naive(o.Date)]; ok {
			p = append(p, o.Value)
			a = append(a, v)
		}
	}
	if len(a) <= 1 {
		return nil, nil
	}
	return metrics.Apply(names, p, a)
}
