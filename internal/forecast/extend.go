package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

// ExtendExog appends periods rows to e, each a copy of e's last row, dated
// by the calendar of f.
func ExtendExog(e *model.Exog, f model.Frequency, periods int) (*model.Exog, error) {
	if e.Len() == 0 {
		return nil, fmt.Errorf("%w: cannot extend an empty exogenous table", ErrInputShape)
	}
	dates, err := freq.DateRange(e.Dates[e.Len()-1], f, periods)
	if err != nil {
		return nil, err
	}
	return holdLast(e, dates), nil
}

// holdLast appends one row per date, repeating the last known row.
func holdLast(e *model.Exog, dates []time.Time) *model.Exog {
	last := e.Rows[e.Len()-1]
	out := e
	for _, d := range dates {
		out = out.AppendRow(d, last)
	}
	return out
}

// Extender builds the out-of-sample forecast path by feeding each new
// forecast's first point back into the series as if it were observed.
//
// Future exogenous rows repeat the last known row. Every date comes from a
// single calendar anchored at the last observation, so a run of horizon h
// always takes exactly h-1 extension steps.
type Extender struct {
	Model models.Fitted
	Freq  model.Frequency
}

// PredictOutOfSample returns exactly horizon forecasts. seed is the forecast
// made on the last window of target; forecast i starts i periods after the
// last observation.
func (e Extender) PredictOutOfSample(ctx context.Context, target model.Series, exog *model.Exog, seed model.Series, horizon int) ([]model.Series, error) {
	if horizon < 1 || horizon > MaxHorizon {
		return nil, fmt.Errorf("%w: forecast_horizon must be within [1, %d], got %d", ErrHorizon, MaxHorizon, horizon)
	}
	if seed.IsEmpty() {
		return nil, invariant("seed forecast is empty")
	}

	if seed.Len() >= horizon {
		out := make([]model.Series, horizon)
		for i := range out {
			out[i] = seed.Slice(i, horizon)
		}
		return out, nil
	}

	width := e.Model.OutputSize()
	if seed.Len() != width {
		return nil, invariant("seed has %d points, model output size is %d", seed.Len(), width)
	}
	cal, err := freq.DateRange(target.Last().Date, e.Freq, horizon-1+width)
	if err != nil {
		return nil, err
	}
	if !seed.First().Date.Equal(cal[0]) {
		return nil, invariant("seed starts at %s, expected %s",
			util.FormatDate(seed.First().Date), util.FormatDate(cal[0]))
	}

	forecasts := make([]model.Series, 0, horizon)
	forecasts = append(forecasts, seed)
	for step := 1; step < horizon; step++ {
		date := cal[step-1]
		point := forecasts[step-1].First()
		if !point.Date.Equal(date) {
			return nil, invariant("step %d: newest forecast starts at %s, extension date is %s",
				step, util.FormatDate(point.Date), util.FormatDate(date))
		}
		if exog != nil {
			exog = holdLast(exog, []time.Time{date})
		}
		target = target.Append(point)

		w, err := window.Last(exog, target, e.Model.InputSize())
		if err != nil {
			return nil, err
		}
		vals, err := e.Model.Predict(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("out-of-sample step %d: %w", step, err)
		}
		if len(vals) != width {
			return nil, invariant("step %d: model returned %d values, output size is %d", step, len(vals), width)
		}
		next, err := model.NewSeries(target.Name, target.Freq, cal[step:step+width], vals)
		if err != nil {
			return nil, invariant("step %d: %v", step, err)
		}
		forecasts = append(forecasts, next)
	}

	if len(forecasts) != horizon {
		return nil, invariant("recursive extension produced %d forecasts for horizon %d", len(forecasts), horizon)
	}
	return forecasts, nil
}
