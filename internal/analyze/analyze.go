// Package analyze computes statistical summaries and trend analysis over
// series. All functions are pure; no I/O.
package analyze

import (
	"fmt"
	"math"
	"sort"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/stat"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for a series.
type Summary struct {
	Name       string          `json:"name"`
	Freq       model.Frequency `json:"freq,omitempty"`
	Start      string          `json:"start,omitempty"`
	End        string          `json:"end,omitempty"`
	Count      int             `json:"count"`       // total observations
	Missing    int             `json:"missing"`     // NaN count
	MissingPct float64         `json:"missing_pct"` // percent missing
	Mean       float64         `json:"mean"`
	Std        float64         `json:"std"`
	Min        float64         `json:"min"`
	P25        float64         `json:"p25"`
	Median     float64         `json:"median"`
	P75        float64         `json:"p75"`
	Max        float64         `json:"max"`
	Skew       float64         `json:"skew"`
	First      float64         `json:"first"`      // first non-NaN value
	Last       float64         `json:"last"`       // last non-NaN value
	Change     float64         `json:"change"`     // Last - First
	ChangePct  float64         `json:"change_pct"` // (Last-First)/|First| * 100
}

// MarshalJSON encodes undefined statistics (NaN) as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	clean := plain(s)
	stats := map[string]*float64{
		"missing_pct": &clean.MissingPct, "mean": &clean.Mean, "std": &clean.Std,
		"min": &clean.Min, "p25": &clean.P25, "median": &clean.Median, "p75": &clean.P75,
		"max": &clean.Max, "skew": &clean.Skew, "first": &clean.First, "last": &clean.Last,
		"change": &clean.Change, "change_pct": &clean.ChangePct,
	}
	var undefined []string
	for key, v := range stats {
		if math.IsNaN(*v) {
			*v = 0
			undefined = append(undefined, key)
		}
	}
	if len(undefined) == 0 {
		return json.Marshal(clean)
	}

	base, err := json.Marshal(clean)
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for _, key := range undefined {
		out[key] = json.RawMessage("null")
	}
	return json.Marshal(out)
}

// Summarize computes descriptive statistics over s.
// NaN values are excluded from all numeric computations but counted.
func Summarize(s model.Series) Summary {
	sum := Summary{Name: s.Name, Freq: s.Freq, Count: s.Len()}
	if s.IsEmpty() {
		return sum
	}
	sum.Start = util.FormatDate(s.First().Date)
	sum.End = util.FormatDate(s.Last().Date)

	vals := make([]float64, 0, s.Len())
	for _, o := range s.Obs {
		if o.IsMissing() {
			sum.Missing++
		} else {
			vals = append(vals, o.Value)
		}
	}
	sum.MissingPct = float64(sum.Missing) / float64(sum.Count) * 100
	if len(vals) == 0 {
		nan := math.NaN()
		sum.Mean, sum.Std, sum.Min, sum.Max = nan, nan, nan, nan
		sum.Median, sum.P25, sum.P75, sum.Skew = nan, nan, nan, nan
		sum.First, sum.Last, sum.Change, sum.ChangePct = nan, nan, nan, nan
		return sum
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	sum.Min = sorted[0]
	sum.Max = sorted[len(sorted)-1]
	sum.Mean = stat.Mean(vals, nil)
	if len(vals) > 1 {
		sum.Std = stat.StdDev(vals, nil)
	}
	sum.Median = percentile(sorted, 50)
	sum.P25 = percentile(sorted, 25)
	sum.P75 = percentile(sorted, 75)
	if len(vals) >= 3 && sum.Std != 0 {
		sum.Skew = stat.Skew(vals, nil)
	}

	sum.First = vals[0]
	sum.Last = vals[len(vals)-1]
	sum.Change = sum.Last - sum.First
	if sum.First != 0 {
		sum.ChangePct = sum.Change / math.Abs(sum.First) * 100
	} else {
		sum.ChangePct = math.NaN()
	}
	return sum
}

// ─── Trend ────────────────────────────────────────────────────────────────────

// TrendMethod selects the regression algorithm.
type TrendMethod string

const (
	TrendLinear   TrendMethod = "linear"
	TrendTheilSen TrendMethod = "theil-sen"
)

// TrendResult holds the output of a trend analysis.
type TrendResult struct {
	Name         string      `json:"name"`
	Method       TrendMethod `json:"method"`
	Slope        float64     `json:"slope"` // units per day
	Intercept    float64     `json:"intercept"`
	R2           float64     `json:"r2"`
	Direction    string      `json:"direction"`      // "up", "down", "flat"
	SlopePerYear float64     `json:"slope_per_year"` // slope * 365.25
}

// Trend fits a trend line to s.
// X values are days since the first non-missing observation; NaN
// observations are excluded.
func Trend(s model.Series, method TrendMethod) (TrendResult, error) {
	tr := TrendResult{Name: s.Name, Method: method}
	switch method {
	case TrendLinear, TrendTheilSen:
	default:
		return tr, fmt.Errorf("trend: unknown method %q (use linear or theil-sen)", method)
	}

	var xs, ys []float64
	var t0 int64
	for _, o := range s.Obs {
		if o.IsMissing() {
			continue
		}
		unix := o.Date.Unix()
		if len(xs) == 0 {
			t0 = unix
		}
		xs = append(xs, float64(unix-t0)/86400)
		ys = append(ys, o.Value)
	}
	if len(xs) < 2 {
		return tr, fmt.Errorf("trend: need at least 2 non-NaN observations, got %d", len(xs))
	}

	if method == TrendTheilSen {
		// Theil-Sen slope with the intercept through the centroid.
		tr.Slope = theilSenSlope(xs, ys)
		tr.Intercept = stat.Mean(ys, nil) - tr.Slope*stat.Mean(xs, nil)
	} else {
		tr.Intercept, tr.Slope = stat.LinearRegression(xs, ys, nil, false)
	}

	tr.R2 = rSquared(xs, ys, tr.Slope, tr.Intercept)
	tr.SlopePerYear = tr.Slope * 365.25

	switch {
	case tr.SlopePerYear > 0.01:
		tr.Direction = "up"
	case tr.SlopePerYear < -0.01:
		tr.Direction = "down"
	default:
		tr.Direction = "flat"
	}
	return tr, nil
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

// percentile interpolates linearly between order statistics at p/100*(n-1).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	if lo+1 >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

func theilSenSlope(xs, ys []float64) float64 {
	var slopes []float64
	for i := range xs {
		for j := i + 1; j < len(xs); j++ {
			if dx := xs[j] - xs[i]; dx != 0 {
				slopes = append(slopes, (ys[j]-ys[i])/dx)
			}
		}
	}
	if len(slopes) == 0 {
		return 0
	}
	sort.Float64s(slopes)
	return percentile(slopes, 50)
}

// rSquared is clamped to [0, 1]; a constant series is a perfect fit.
func rSquared(xs, ys []float64, slope, intercept float64) float64 {
	yMean := stat.Mean(ys, nil)
	var ssTot, ssRes float64
	for i := range xs {
		pred := slope*xs[i] + intercept
		ssTot += (ys[i] - yMean) * (ys[i] - yMean)
		ssRes += (ys[i] - pred) * (ys[i] - pred)
	}
	if ssTot == 0 {
		return 1
	}
	return math.Max(0, 1-ssRes/ssTot)
}
