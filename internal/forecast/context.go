package forecast

import (
	"fmt"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// Stage is a state of the forecasting run. Runs only move forward.
type Stage int

const (
	StageInit Stage = iota
	StageSplit
	StageTrain
	StageWindowPredictInSample
	StageRecursiveOOS
	StageReconcile
	StageBestForecast
	StageDone
)

var stageNames = [...]string{
	"init", "split", "train", "window_predict_insample",
	"recursive_oos", "reconcile", "best_forecast", "done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Context is the state threaded through the stages. Stage functions never
// modify a Context in place; they return a copy with their output filled
// in. Slices held by a Context are treated as read-only.
type Context struct {
	Stage Stage

	Target     model.Series
	Exog       *model.Exog
	Boundaries split.Boundaries
	Horizon    int

	Split split.Result
	Model models.Fitted

	// InSample holds the forecasts of windows 0..N-k-1, OutOfSample the
	// horizon forecasts seeded by the last window.
	InSample    []model.Series
	OutOfSample []model.Series

	Reconciled model.WindowsForecast
	Best       model.Series
	Metrics    model.ModelMetrics
}

// MaxHorizon bounds forecast_horizon so that one request cannot make the
// out-of-sample calendar arbitrarily large.
const MaxHorizon = 10000

// NewContext validates the request and returns the initial context. Zones
// are dropped from target and exogenous dates, keeping the wall clock, so
// every stage works on the same naive calendar.
func NewContext(target model.Series, exog *model.Exog, p model.FitParams) (Context, error) {
	if target.IsEmpty() {
		return Context{}, fmt.Errorf("%w: target series is empty", ErrInputShape)
	}
	target = naiveSeries(target)
	exog = naiveExog(exog)
	if _, err := freq.Offset(target.Freq); err != nil {
		return Context{}, err
	}
	for i := 1; i < target.Len(); i++ {
		if !target.Obs[i].Date.After(target.Obs[i-1].Date) {
			return Context{}, fmt.Errorf("%w: dates must be strictly increasing, %s follows %s",
				ErrInputShape, util.FormatDate(target.Obs[i].Date), util.FormatDate(target.Obs[i-1].Date))
		}
	}
	if !freq.IsEqualToExpected(target.Dates(), target.Freq) {
		return Context{}, fmt.Errorf("%w: dates of %q are not consistent with frequency %s",
			ErrInputShape, target.Name, target.Freq)
	}
	if exog != nil && !exog.SameIndex(target) {
		return Context{}, fmt.Errorf("%w: exogenous index (%d rows) does not match target index (%d rows)",
			ErrInputShape, exog.Len(), target.Len())
	}

	b, err := split.NewBoundaries(p.TrainBoundary, p.ValBoundary)
	if err != nil {
		return Context{}, err
	}
	if p.ForecastHorizon < 1 {
		return Context{}, fmt.Errorf("%w: forecast_horizon must be at least 1, got %d", ErrHorizon, p.ForecastHorizon)
	}
	if p.ForecastHorizon > MaxHorizon {
		return Context{}, fmt.Errorf("%w: forecast_horizon %d exceeds the maximum of %d", ErrHorizon, p.ForecastHorizon, MaxHorizon)
	}
	last := target.Last().Date
	if b.Val.After(last) {
		return Context{}, fmt.Errorf("%w: val_boundary %s is after the last observation %s",
			ErrBoundary, util.FormatDate(b.Val), util.FormatDate(last))
	}

	return Context{
		Stage:      StageInit,
		Target:     target,
		Exog:       exog,
		Boundaries: b,
		Horizon:    p.ForecastHorizon,
	}, nil
}

func naiveSeries(s model.Series) model.Series {
	out := s.Copy()
	for i := range out.Obs {
		out.Obs[i].Date = util.Naive(out.Obs[i].Date)
	}
	return out
}

func naiveExog(e *model.Exog) *model.Exog {
	if e == nil {
		return nil
	}
	out := e.Slice(0, e.Len())
	for i, d := range out.Dates {
		out.Dates[i] = util.Naive(d)
	}
	return out
}

// advance returns a copy of c at stage s.
func (c Context) advance(s Stage) (Context, error) {
	if s <= c.Stage {
		return Context{}, invariant("cannot move from stage %s to %s", c.Stage, s)
	}
	c.Stage = s
	return c, nil
}

// LastKnown returns the date of the last observed value.
func (c Context) LastKnown() time.Time {
	return util.Naive(c.Target.Last().Date)
}

// Sizes returns the segment sizes used for variant validation.
func (c Context) Sizes() models.Sizes {
	return models.Sizes{
		Train:   c.Split.Train.Target.Len(),
		Val:     c.Split.Val.Target.Len(),
		Test:    c.Split.Test.Target.Len(),
		Horizon: c.Horizon,
	}
}

// calendar returns the n dates that follow the last observation.
func (c Context) calendar(n int) ([]time.Time, error) {
	return freq.DateRange(c.LastKnown(), c.Target.Freq, n)
}

// Result assembles the externally visible outcome of a finished run.
func (c Context) Result() (model.ForecastResult, error) {
	if c.Stage != StageDone {
		return model.ForecastResult{}, invariant("result requested at stage %s", c.Stage)
	}
	return model.ForecastResult{
		Forecasts:           c.Reconciled,
		BestForecast:        c.Best,
		BestForecastMetrics: c.Metrics,
	}, nil
}
