package forecast

import (
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// Reconcile buckets every window forecast by the boundary rule, then moves
// the dates after lastKnown of each piece into the out-of-sample bucket.
// Empty pieces are dropped. Bucket order follows the order of forecasts.
func Reconcile(forecasts []model.Series, b split.Boundaries, lastKnown time.Time) model.WindowsForecast {
	lastKnown = util.Naive(lastKnown)
	observed := func(o model.Observation) bool { return !util.Naive(o.Date).After(lastKnown) }
	unobserved := func(o model.Observation) bool { return util.Naive(o.Date).After(lastKnown) }

	var out model.WindowsForecast
	for _, fc := range forecasts {
		train, val, test := split.SplitSeries(fc, b)
		for _, piece := range []struct {
			series model.Series
			bucket *[]model.Series
		}{
			{train, &out.Train},
			{val, &out.Val},
			{test, &out.Test},
		} {
			if piece.series.IsEmpty() {
				continue
			}
			if in := piece.series.Filter(observed); !in.IsEmpty() {
				*piece.bucket = append(*piece.bucket, in)
			}
			if beyond := piece.series.Filter(unobserved); !beyond.IsEmpty() {
				out.OutOfSample = append(out.OutOfSample, beyond)
			}
		}
	}
	return out
}
