// Package transform implements stateless preprocessing operators that take a
// series and return a new one. Each operator is a pure function;
// no side effects, no I/O. The input series is never modified.
package transform

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// ErrEmpty is returned by operators that need at least one observation.
var ErrEmpty = errors.New("empty series")

// derive returns a series with the name and frequency of s and the given
// observations.
func derive(s model.Series, obs []model.Observation) model.Series {
	return model.Series{Name: s.Name, Freq: s.Freq, Obs: obs}
}

// mapValues applies fn to every non-missing value. Missing values stay NaN.
func mapValues(s model.Series, fn func(float64) float64) model.Series {
	out := make([]model.Observation, len(s.Obs))
	for i, o := range s.Obs {
		v := math.NaN()
		if !o.IsMissing() {
			v = fn(o.Value)
		}
		out[i] = model.Observation{Date: o.Date, Value: v}
	}
	return derive(s, out)
}

// present returns the non-missing values of s.
func present(s model.Series) []float64 {
	vals := make([]float64, 0, len(s.Obs))
	for _, o := range s.Obs {
		if !o.IsMissing() {
			vals = append(vals, o.Value)
		}
	}
	return vals
}

// ─── Percent Change ───────────────────────────────────────────────────────────

// PctChange computes (v[t] - v[t-period]) / |v[t-period]| * 100.
// Leading observations that have no prior period are dropped.
// NaN inputs and zero denominators produce NaN outputs.
func PctChange(s model.Series, period int) (model.Series, error) {
	if period < 1 {
		return model.Series{}, fmt.Errorf("pct-change: period must be >= 1, got %d", period)
	}
	if s.Len() <= period {
		return model.Series{}, fmt.Errorf("pct-change: need more than %d observations, got %d", period, s.Len())
	}
	out := make([]model.Observation, 0, s.Len()-period)
	for i := period; i < s.Len(); i++ {
		curr, prev := s.Obs[i].Value, s.Obs[i-period].Value
		val := math.NaN()
		if !math.IsNaN(curr) && !math.IsNaN(prev) && prev != 0 {
			val = (curr - prev) / math.Abs(prev) * 100
		}
		out = append(out, model.Observation{Date: s.Obs[i].Date, Value: val})
	}
	return derive(s, out), nil
}

// ─── Difference ───────────────────────────────────────────────────────────────

// Diff computes the n-th order difference. order=1: v[t]-v[t-1], order=2: diff of diff.
func Diff(s model.Series, order int) (model.Series, error) {
	if order < 1 || order > 2 {
		return model.Series{}, fmt.Errorf("diff: order must be 1 or 2, got %d", order)
	}
	for i := 0; i < order; i++ {
		if s.Len() < 2 {
			return model.Series{}, fmt.Errorf("diff: need at least 2 observations, got %d", s.Len())
		}
		out := make([]model.Observation, s.Len()-1)
		for j := 1; j < s.Len(); j++ {
			// NaN on either side propagates through the subtraction.
			out[j-1] = model.Observation{Date: s.Obs[j].Date, Value: s.Obs[j].Value - s.Obs[j-1].Value}
		}
		s = derive(s, out)
	}
	return s, nil
}

// ─── Log ──────────────────────────────────────────────────────────────────────

// Log computes the natural log of each observation value.
// Non-positive values produce NaN with a warning; NaN inputs stay NaN.
func Log(s model.Series) (model.Series, []string) {
	var warnings []string
	out := make([]model.Observation, len(s.Obs))
	for i, o := range s.Obs {
		val := math.NaN()
		switch {
		case o.IsMissing():
		case o.Value <= 0:
			warnings = append(warnings, fmt.Sprintf("%s: log(%g) is undefined, set to NaN",
				util.FormatDate(o.Date), o.Value))
		default:
			val = math.Log(o.Value)
		}
		out[i] = model.Observation{Date: o.Date, Value: val}
	}
	return derive(s, out), warnings
}

// ─── Index ────────────────────────────────────────────────────────────────────

// Index re-scales the series so the value at anchor equals base.
// All other values are scaled proportionally.
func Index(s model.Series, base float64, anchor time.Time) (model.Series, error) {
	for _, o := range s.Obs {
		if !o.Date.Equal(anchor) {
			continue
		}
		switch {
		case o.IsMissing():
			return model.Series{}, fmt.Errorf("index: anchor date %s has missing value", util.FormatDate(anchor))
		case o.Value == 0:
			return model.Series{}, fmt.Errorf("index: anchor date %s has zero value, cannot index", util.FormatDate(anchor))
		}
		scale := base / o.Value
		return mapValues(s, func(v float64) float64 { return v * scale }), nil
	}
	return model.Series{}, fmt.Errorf("index: anchor date %s not found in series", util.FormatDate(anchor))
}

// ─── Normalize ────────────────────────────────────────────────────────────────

// NormalizeMethod selects the normalization algorithm.
type NormalizeMethod string

const (
	NormalizeZScore NormalizeMethod = "zscore"
	NormalizeMinMax NormalizeMethod = "minmax"
)

// Normalize scales observations using z-score or min-max normalization.
// NaN values are skipped when computing statistics but preserved in output.
func Normalize(s model.Series, method NormalizeMethod) (model.Series, error) {
	vals := present(s)
	if len(vals) == 0 {
		return model.Series{}, fmt.Errorf("normalize: no non-NaN values in series")
	}

	var a, b float64 // output = (v - a) / b
	switch method {
	case NormalizeZScore:
		mean, std := stat.MeanStdDev(vals, nil)
		if std == 0 || math.IsNaN(std) {
			return model.Series{}, fmt.Errorf("normalize: standard deviation is zero, cannot z-score")
		}
		a, b = mean, std
	case NormalizeMinMax:
		mn, mx := floats.Min(vals), floats.Max(vals)
		if mx == mn {
			return model.Series{}, fmt.Errorf("normalize: min == max (%g), cannot min-max normalize", mn)
		}
		a, b = mn, mx-mn
	default:
		return model.Series{}, fmt.Errorf("normalize: unknown method %q (use zscore or minmax)", method)
	}
	return mapValues(s, func(v float64) float64 { return (v - a) / b }), nil
}

// ─── Resample ─────────────────────────────────────────────────────────────────

// ResampleMethod is the aggregation method for resampling.
type ResampleMethod string

const (
	ResampleMean ResampleMethod = "mean"
	ResampleLast ResampleMethod = "last"
	ResampleSum  ResampleMethod = "sum"
)

// Resample aggregates observations to the coarser frequency to. Each output
// observation is dated at the end of its period, matching the calendar used
// for forecasts. NaN values are skipped in aggregation; a period with no
// values is NaN.
func Resample(s model.Series, to model.Frequency, method ResampleMethod) (model.Series, error) {
	if s.IsEmpty() {
		return model.Series{}, fmt.Errorf("resample: %w", ErrEmpty)
	}
	if _, err := freq.Offset(to); err != nil {
		return model.Series{}, fmt.Errorf("resample: %w", err)
	}
	if s.Freq != "" && !freq.Coarser(to, s.Freq) {
		return model.Series{}, fmt.Errorf("resample: target frequency %s is not coarser than %s", to, s.Freq)
	}
	switch method {
	case ResampleMean, ResampleLast, ResampleSum:
	default:
		return model.Series{}, fmt.Errorf("resample: unknown method %q (use mean, last, sum)", method)
	}

	out := model.Series{Name: s.Name, Freq: to}
	var group []float64
	flush := func(end time.Time) {
		val := math.NaN()
		if len(group) > 0 {
			switch method {
			case ResampleMean:
				val = stat.Mean(group, nil)
			case ResampleLast:
				val = group[len(group)-1]
			case ResampleSum:
				val = floats.Sum(group)
			}
		}
		out.Obs = append(out.Obs, model.Observation{Date: end, Value: val})
		group = group[:0]
	}

	// Observations are date ordered, so periods arrive contiguously.
	current := freq.PeriodEnd(s.Obs[0].Date, to)
	for _, o := range s.Obs {
		if end := freq.PeriodEnd(o.Date, to); !end.Equal(current) {
			flush(current)
			current = end
		}
		if !o.IsMissing() {
			group = append(group, o.Value)
		}
	}
	flush(current)
	return out, nil
}

// ─── Filter ───────────────────────────────────────────────────────────────────

// FilterOptions describes a date/value filter predicate.
type FilterOptions struct {
	After       time.Time // keep obs with date > After (zero = no lower bound)
	Before      time.Time // keep obs with date < Before (zero = no upper bound)
	MinValue    float64   // keep obs with value >= MinValue (NaN = no lower bound)
	MaxValue    float64   // keep obs with value <= MaxValue (NaN = no upper bound)
	DropMissing bool      // drop NaN observations
}

// NoFilter returns options that keep every observation.
func NoFilter() FilterOptions {
	return FilterOptions{MinValue: math.NaN(), MaxValue: math.NaN()}
}

// Filter returns observations matching all criteria in opts.
func Filter(s model.Series, opts FilterOptions) model.Series {
	return s.Filter(func(o model.Observation) bool {
		if !opts.After.IsZero() && !o.Date.After(opts.After) {
			return false
		}
		if !opts.Before.IsZero() && !o.Date.Before(opts.Before) {
			return false
		}
		if o.IsMissing() {
			return !opts.DropMissing
		}
		if !math.IsNaN(opts.MinValue) && o.Value < opts.MinValue {
			return false
		}
		return math.IsNaN(opts.MaxValue) || o.Value <= opts.MaxValue
	})
}

// ─── Rolling Window ───────────────────────────────────────────────────────────

// RollStat selects the statistic for rolling window computation.
type RollStat string

const (
	RollMean RollStat = "mean"
	RollStd  RollStat = "std"
	RollMin  RollStat = "min"
	RollMax  RollStat = "max"
	RollSum  RollStat = "sum"
)

var rollStats = map[RollStat]func([]float64) float64{
	RollMean: func(v []float64) float64 { return stat.Mean(v, nil) },
	RollStd: func(v []float64) float64 {
		if len(v) < 2 {
			return 0
		}
		return stat.StdDev(v, nil)
	},
	RollMin: floats.Min,
	RollMax: floats.Max,
	RollSum: floats.Sum,
}

// Roll computes a rolling window statistic. Window observations include the
// current point and the (window-1) preceding points. NaN values are skipped.
// If fewer than minPeriods non-NaN values exist in a window, the output is NaN.
func Roll(s model.Series, window, minPeriods int, st RollStat) (model.Series, error) {
	if window < 1 {
		return model.Series{}, fmt.Errorf("roll: window must be >= 1, got %d", window)
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	if minPeriods > window {
		return model.Series{}, fmt.Errorf("roll: min-periods (%d) cannot exceed window (%d)", minPeriods, window)
	}
	fn, ok := rollStats[st]
	if !ok {
		return model.Series{}, fmt.Errorf("roll: unknown stat %q (use mean, std, min, max, sum)", st)
	}

	out := make([]model.Observation, len(s.Obs))
	vals := make([]float64, 0, window)
	for i, o := range s.Obs {
		vals = vals[:0]
		for _, w := range s.Obs[max(0, i-window+1) : i+1] {
			if !w.IsMissing() {
				vals = append(vals, w.Value)
			}
		}
		val := math.NaN()
		if len(vals) >= minPeriods {
			val = fn(vals)
		}
		out[i] = model.Observation{Date: o.Date, Value: val}
	}
	return derive(s, out), nil
}

// ─── Lag / Align ──────────────────────────────────────────────────────────────

// Lag shifts values k periods later on the same dates: out[t] = s[t-k].
// The first k values are NaN. A negative k leads the series instead.
func Lag(s model.Series, k int) model.Series {
	out := make([]model.Observation, len(s.Obs))
	for i, o := range s.Obs {
		v := math.NaN()
		if j := i - k; j >= 0 && j < len(s.Obs) {
			v = s.Obs[j].Value
		}
		out[i] = model.Observation{Date: o.Date, Value: v}
	}
	return derive(s, out)
}

// Align re-indexes every column onto the dates of target. Dates a column does
// not cover become NaN. Columns take target's frequency.
func Align(target model.Series, cols ...model.Series) []model.Series {
	out := make([]model.Series, len(cols))
	for j, c := range cols {
		byDate := make(map[time.Time]float64, c.Len())
		for _, o := range c.Obs {
			byDate[util.Naive(o.Date)] = o.Value
		}
		obs := make([]model.Observation, target.Len())
		for i, o := range target.Obs {
			v, ok := byDate[util.Naive(o.Date)]
			if !ok {
				v = math.NaN()
			}
			obs[i] = model.Observation{Date: o.Date, Value: v}
		}
		out[j] = model.Series{Name: c.Name, Freq: target.Freq, Obs: obs}
	}
	return out
}

// ─── Decomposition ────────────────────────────────────────────────────────────

// DecomposeModel selects how the components combine.
type DecomposeModel string

const (
	Additive       DecomposeModel = "additive"
	Multiplicative DecomposeModel = "multiplicative"
)

// Decomposition holds the classical components of a series. Trend and Resid
// are NaN where the centred moving average is undefined.
type Decomposition struct {
	Model    DecomposeModel `json:"model"`
	Period   int            `json:"period"`
	Trend    model.Series   `json:"trend"`
	Seasonal model.Series   `json:"seasonal"`
	Resid    model.Series   `json:"resid"`
}

// Decompose splits s into trend, seasonal and residual components with a
// centred moving average of length period (2×period for even periods) and
// per-position seasonal means normalised to sum to zero (additive) or average
// one (multiplicative). The series needs two full periods and no missing values.
func Decompose(s model.Series, period int, m DecomposeModel) (Decomposition, error) {
	if period < 2 {
		return Decomposition{}, fmt.Errorf("decompose: period must be >= 2, got %d", period)
	}
	if m != Additive && m != Multiplicative {
		return Decomposition{}, fmt.Errorf("decompose: unknown model %q (use additive or multiplicative)", m)
	}
	n := s.Len()
	if n < 2*period {
		return Decomposition{}, fmt.Errorf("decompose: need at least %d observations for period %d, got %d", 2*period, period, n)
	}
	y := s.Values()
	for i, v := range y {
		if math.IsNaN(v) {
			return Decomposition{}, fmt.Errorf("decompose: missing value at %s", util.FormatDate(s.Obs[i].Date))
		}
		if m == Multiplicative && v <= 0 {
			return Decomposition{}, fmt.Errorf("decompose: multiplicative model needs positive values, got %g at %s",
				v, util.FormatDate(s.Obs[i].Date))
		}
	}

	trend := centredMA(y, period)

	detrended := make([]float64, n)
	for i := range y {
		switch {
		case math.IsNaN(trend[i]):
			detrended[i] = math.NaN()
		case m == Additive:
			detrended[i] = y[i] - trend[i]
		default:
			detrended[i] = y[i] / trend[i]
		}
	}

	pattern := make([]float64, period)
	for p := range pattern {
		var vals []float64
		for i := p; i < n; i += period {
			if !math.IsNaN(detrended[i]) {
				vals = append(vals, detrended[i])
			}
		}
		pattern[p] = stat.Mean(vals, nil)
	}
	adj := stat.Mean(pattern, nil)
	for p := range pattern {
		if m == Additive {
			pattern[p] -= adj
		} else {
			pattern[p] /= adj
		}
	}

	seasonal := make([]float64, n)
	resid := make([]float64, n)
	for i := range y {
		seasonal[i] = pattern[i%period]
		switch {
		case math.IsNaN(trend[i]):
			resid[i] = math.NaN()
		case m == Additive:
			resid[i] = y[i] - trend[i] - seasonal[i]
		default:
			resid[i] = y[i] / (trend[i] * seasonal[i])
		}
	}

	dates := s.Dates()
	component := func(suffix string, vals []float64) model.Series {
		c, _ := model.NewSeries(s.Name+"_"+suffix, s.Freq, dates, vals)
		return c
	}
	return Decomposition{
		Model:    m,
		Period:   period,
		Trend:    component("trend", trend),
		Seasonal: component("seasonal", seasonal),
		Resid:    component("resid", resid),
	}, nil
}

// centredMA is the classical centred moving average. Even periods use a
// 2×period average with half weights on the two ends.
func centredMA(y []float64, period int) []float64 {
	n := len(y)
	out := make([]float64, n)
	half := period / 2
	for i := range out {
		out[i] = math.NaN()
		if i < half || i+half >= n {
			continue
		}
		if period%2 == 1 {
			out[i] = floats.Sum(y[i-half:i+half+1]) / float64(period)
			continue
		}
		sum := 0.5*y[i-half] + 0.5*y[i+half] + floats.Sum(y[i-half+1:i+half])
		out[i] = sum / float64(period)
	}
	return out
}
