package transform_test

import (
	"math"
	"testing"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/transform"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// monthly builds a month-end series from a start year/month and values.
// Go's time.Date normalises month overflow, so this handles year boundaries.
func monthly(year, month int, values ...float64) model.Series {
	obs := make([]model.Observation, len(values))
	for i, v := range values {
		obs[i] = model.Observation{
			Date:  time.Date(year, time.Month(month+i+1), 0, 0, 0, 0, 0, time.UTC),
			Value: v,
		}
	}
	return model.Series{Name: "X", Freq: model.FreqMonth, Obs: obs}
}

// date parses "YYYY-MM-DD" and panics on error — test use only.
func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic("date: " + err.Error())
	}
	return t
}

func isNaN(v float64) bool { return math.IsNaN(v) }

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// expectValues compares values element-wise; NaN matches NaN.
func expectValues(t *testing.T, s model.Series, want ...float64) {
	t.Helper()
	if s.Len() != len(want) {
		t.Fatalf("expected %d observations, got %d", len(want), s.Len())
	}
	for i, w := range want {
		got := s.Obs[i].Value
		if isNaN(w) && isNaN(got) {
			continue
		}
		if !approxEqual(got, w, 1e-9) {
			t.Errorf("obs[%d]: expected %g, got %g", i, w, got)
		}
	}
}

// ─── PctChange ────────────────────────────────────────────────────────────────

func TestPctChangePeriod1(t *testing.T) {
	s := monthly(2020, 1, 100.0, 110.0, 121.0)
	out, err := transform.PctChange(s, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 10.0, 10.0)
	if !out.Obs[0].Date.Equal(s.Obs[1].Date) {
		t.Errorf("date should align with the current observation: expected %v, got %v", s.Obs[1].Date, out.Obs[0].Date)
	}
	if out.Name != "X" || out.Freq != model.FreqMonth {
		t.Errorf("name and frequency should carry over, got %q/%q", out.Name, out.Freq)
	}
}

func TestPctChangePeriod12(t *testing.T) {
	vals := make([]float64, 13)
	for i := range vals {
		vals[i] = 100.0
	}
	vals[12] = 110.0
	out, err := transform.PctChange(monthly(2020, 1, vals...), 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 10.0)
}

func TestPctChangeNaNAndZero(t *testing.T) {
	out, err := transform.PctChange(monthly(2020, 1, 0.0, 100.0, math.NaN(), 110.0), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, math.NaN(), math.NaN(), math.NaN())
}

func TestPctChangeInvalid(t *testing.T) {
	s := monthly(2020, 1, 1.0, 2.0, 3.0)
	if _, err := transform.PctChange(s, 0); err == nil {
		t.Error("expected error for period=0")
	}
	if _, err := transform.PctChange(monthly(2020, 1, 1.0), 1); err == nil {
		t.Error("expected error when len(obs) <= period")
	}
}

func TestPctChangeDoesNotModifyInput(t *testing.T) {
	s := monthly(2020, 1, 100.0, 110.0)
	_, _ = transform.PctChange(s, 1)
	if s.Obs[1].Value != 110.0 {
		t.Errorf("input was modified: %g", s.Obs[1].Value)
	}
}

// ─── Diff ─────────────────────────────────────────────────────────────────────

func TestDiffOrder1(t *testing.T) {
	out, err := transform.Diff(monthly(2020, 1, 10.0, 12.0, 15.0, 13.0), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 2.0, 3.0, -2.0)
}

func TestDiffOrder2(t *testing.T) {
	// Second difference of [1, 2, 4, 7]: first diff = [1,2,3], second diff = [1,1]
	s := monthly(2020, 1, 1.0, 2.0, 4.0, 7.0)
	out, err := transform.Diff(s, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 1.0, 1.0)
	if !out.Obs[0].Date.Equal(s.Obs[2].Date) {
		t.Errorf("second difference should start at the third date, got %v", out.Obs[0].Date)
	}
}

func TestDiffNaNPropagates(t *testing.T) {
	out, err := transform.Diff(monthly(2020, 1, 10.0, math.NaN(), 15.0), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, math.NaN(), math.NaN())
}

func TestDiffInvalid(t *testing.T) {
	s := monthly(2020, 1, 1.0, 2.0, 3.0)
	for _, order := range []int{0, 3} {
		if _, err := transform.Diff(s, order); err == nil {
			t.Errorf("expected error for order=%d", order)
		}
	}
	if _, err := transform.Diff(monthly(2020, 1, 5.0), 1); err == nil {
		t.Error("expected error for single observation")
	}
	if _, err := transform.Diff(monthly(2020, 1, 5.0, 6.0), 2); err == nil {
		t.Error("expected error when the first difference leaves one observation")
	}
}

// ─── Log ──────────────────────────────────────────────────────────────────────

func TestLogPositiveValues(t *testing.T) {
	out, warnings := transform.Log(monthly(2020, 1, 1.0, math.E, math.E*math.E))
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got: %v", warnings)
	}
	expectValues(t, out, 0.0, 1.0, 2.0)
}

func TestLogNonPositiveProducesNaNAndWarning(t *testing.T) {
	out, warnings := transform.Log(monthly(2020, 1, 10.0, 0.0, -5.0, math.NaN(), 20.0))
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings (zero and negative), got %d: %v", len(warnings), warnings)
	}
	expectValues(t, out, math.Log(10.0), math.NaN(), math.NaN(), math.NaN(), math.Log(20.0))
}

// ─── Index ────────────────────────────────────────────────────────────────────

func TestIndexBasic(t *testing.T) {
	out, err := transform.Index(monthly(2020, 1, 200.0, 400.0, math.NaN(), 100.0), 100.0, date("2020-01-31"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 100.0, 200.0, math.NaN(), 50.0)
}

func TestIndexErrors(t *testing.T) {
	tests := []struct {
		name string
		s    model.Series
	}{
		{"missing anchor date", monthly(2019, 1, 100.0, 200.0)},
		{"zero anchor value", monthly(2020, 1, 0.0, 100.0)},
		{"NaN anchor value", monthly(2020, 1, math.NaN(), 100.0)},
	}
	for _, tt := range tests {
		if _, err := transform.Index(tt.s, 100.0, date("2020-01-31")); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

// ─── Normalize ────────────────────────────────────────────────────────────────

func TestNormalizeZScore(t *testing.T) {
	// Values 1..5: mean=3, sample std=√2.5
	out, err := transform.Normalize(monthly(2020, 1, 1.0, 2.0, 3.0, 4.0, 5.0), transform.NormalizeZScore)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	z := 2 / math.Sqrt(2.5)
	expectValues(t, out, -z, -z/2, 0, z/2, z)
}

func TestNormalizeMinMax(t *testing.T) {
	out, err := transform.Normalize(monthly(2020, 1, 0.0, 50.0, math.NaN(), 100.0), transform.NormalizeMinMax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 0.0, 0.5, math.NaN(), 1.0)
}

func TestNormalizeErrors(t *testing.T) {
	flat := monthly(2020, 1, 5.0, 5.0, 5.0)
	if _, err := transform.Normalize(flat, transform.NormalizeZScore); err == nil {
		t.Error("expected error for flat series z-score (std=0)")
	}
	if _, err := transform.Normalize(flat, transform.NormalizeMinMax); err == nil {
		t.Error("expected error for flat series minmax (range=0)")
	}
	if _, err := transform.Normalize(monthly(2020, 1, math.NaN()), transform.NormalizeZScore); err == nil {
		t.Error("expected error for all-NaN input")
	}
	if _, err := transform.Normalize(monthly(2020, 1, 1, 2), "bogus"); err == nil {
		t.Error("expected error for unknown normalize method")
	}
}

// ─── Resample ─────────────────────────────────────────────────────────────────

func TestResampleMonthlyToAnnual(t *testing.T) {
	s := monthly(2020, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	tests := []struct {
		method transform.ResampleMethod
		want   float64
	}{
		{transform.ResampleMean, 6.5},
		{transform.ResampleLast, 12},
		{transform.ResampleSum, 78},
	}
	for _, tt := range tests {
		out, err := transform.Resample(s, model.FreqYear, tt.method)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.method, err)
		}
		expectValues(t, out, tt.want)
		if out.Freq != model.FreqYear {
			t.Errorf("%s: frequency should become year, got %q", tt.method, out.Freq)
		}
	}
}

func TestResampleMonthlyToQuarterly(t *testing.T) {
	s := monthly(2020, 1,
		1, 2, 3, // Q1 mean = 2
		4, 5, 6, // Q2 mean = 5
		7, math.NaN(), 9, // Q3 mean = 8, NaN skipped
		10, 11, 12, // Q4 mean = 11
	)
	out, err := transform.Resample(s, model.FreqQuarter, transform.ResampleMean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, 2, 5, 8, 11)
}

func TestResampleDatesArePeriodEnd(t *testing.T) {
	out, err := transform.Resample(monthly(2020, 6, 1.0, 2.0, 3.0), model.FreqYear, transform.ResampleMean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Obs[0].Date.Equal(date("2020-12-31")) {
		t.Errorf("annual resample should be dated 2020-12-31, got %v", out.Obs[0].Date)
	}
}

func TestResampleEmptyPeriodIsNaN(t *testing.T) {
	out, err := transform.Resample(monthly(2020, 1, math.NaN(), math.NaN(), math.NaN(), 4), model.FreqQuarter, transform.ResampleSum)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectValues(t, out, math.NaN(), 4)
}

func TestResampleErrors(t *testing.T) {
	s := monthly(2020, 1, 1.0, 2.0)
	if _, err := transform.Resample(model.Series{}, model.FreqYear, transform.ResampleMean); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := transform.Resample(s, model.FreqYear, "bogus"); err == nil {
		t.Error("expected error for unknown resample method")
	}
	if _, err := transform.Resample(s, model.FreqDay, transform.ResampleMean); err == nil {
		t.Error("expected error when resampling to a finer frequency")
	}
	if _, err := transform.Resample(s, model.FreqHour, transform.ResampleMean); err == nil {
		t.Error("expected error for a frequency without a calendar offset")
	}
}

// ─── Filter ───────────────────────────────────────────────────────────────────

func TestFilterDates(t *testing.T) {
	s := monthly(2020, 1, 1, 2, 3, 4, 5)
	opts := transform.NoFilter()
	opts.After = date("2020-01-31")
	opts.Before = date("2020-05-31")
	expectValues(t, transform.Filter(s, opts), 2, 3, 4)
}

func TestFilterValues(t *testing.T) {
	s := monthly(2020, 1, 1, math.NaN(), 3, 4, 5)
	opts := transform.NoFilter()
	opts.MinValue = 3
	opts.MaxValue = 4
	expectValues(t, transform.Filter(s, opts), math.NaN(), 3, 4)

	opts.DropMissing = true
	expectValues(t, transform.Filter(s, opts), 3, 4)
}

func TestFilterNoOptions(t *testing.T) {
	s := monthly(2020, 1, 1, math.NaN(), 3)
	if got := transform.Filter(s, transform.NoFilter()); got.Len() != 3 {
		t.Errorf("NoFilter should keep everything, got %d", got.Len())
	}
}

// ─── Roll ─────────────────────────────────────────────────────────────────────

func TestRollStats(t *testing.T) {
	s := monthly(2020, 1, 5.0, 3.0, 8.0, 4.0)
	tests := []struct {
		stat transform.RollStat
		want []float64
	}{
		{transform.RollMean, []float64{5, 4, 16.0 / 3, 5}},
		{transform.RollMin, []float64{5, 3, 3, 3}},
		{transform.RollMax, []float64{5, 5, 8, 8}},
		{transform.RollSum, []float64{5, 8, 16, 15}},
		{transform.RollStd, []float64{0, math.Sqrt(2), math.Sqrt(19.0 / 3), math.Sqrt(7)}},
	}
	for _, tt := range tests {
		out, err := transform.Roll(s, 3, 1, tt.stat)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.stat, err)
		}
		expectValues(t, out, tt.want...)
	}
}

func TestRollMinPeriodsAndNaN(t *testing.T) {
	out, err := transform.Roll(monthly(2020, 1, math.NaN(), math.NaN(), 1.0, 3.0), 3, 2, transform.RollMean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Windows with fewer than two present values are NaN.
	expectValues(t, out, math.NaN(), math.NaN(), math.NaN(), 2.0)
}

func TestRollErrors(t *testing.T) {
	s := monthly(2020, 1, 1.0, 2.0, 3.0)
	if _, err := transform.Roll(s, 0, 1, transform.RollMean); err == nil {
		t.Error("expected error for window=0")
	}
	if _, err := transform.Roll(s, 2, 5, transform.RollMean); err == nil {
		t.Error("expected error when minPeriods > window")
	}
	if _, err := transform.Roll(s, 2, 1, "bogus"); err == nil {
		t.Error("expected error for unknown roll stat")
	}
}

// ─── Lag / Align ──────────────────────────────────────────────────────────────

func TestLag(t *testing.T) {
	s := monthly(2020, 1, 1, 2, 3, 4)
	expectValues(t, transform.Lag(s, 1), math.NaN(), 1, 2, 3)
	expectValues(t, transform.Lag(s, -2), 3, 4, math.NaN(), math.NaN())
	expectValues(t, transform.Lag(s, 0), 1, 2, 3, 4)
}

func TestAlign(t *testing.T) {
	target := monthly(2020, 1, 10, 20, 30)
	col := monthly(2020, 2, 7, 8, 9)
	col.Name = "rate"
	got := transform.Align(target, col)
	if len(got) != 1 {
		t.Fatalf("expected 1 column, got %d", len(got))
	}
	if got[0].Name != "rate" {
		t.Errorf("column name should be kept, got %q", got[0].Name)
	}
	expectValues(t, got[0], math.NaN(), 7, 8)
	for i := range target.Obs {
		if !got[0].Obs[i].Date.Equal(target.Obs[i].Date) {
			t.Errorf("obs[%d] should take the target date", i)
		}
	}
}

// ─── Decompose ────────────────────────────────────────────────────────────────

// seasonalSeries is a linear trend plus a repeating additive pattern.
func seasonalSeries(periods int, pattern []float64) model.Series {
	vals := make([]float64, periods*len(pattern))
	for i := range vals {
		vals[i] = 10 + 0.5*float64(i) + pattern[i%len(pattern)]
	}
	return monthly(2018, 1, vals...)
}

func TestDecomposeAdditiveRecoversPattern(t *testing.T) {
	pattern := []float64{2, -1, 0, -1} // sums to zero
	d, err := transform.Decompose(seasonalSeries(6, pattern), 4, transform.Additive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, p := range pattern {
		if !approxEqual(d.Seasonal.Obs[i].Value, p, 1e-9) {
			t.Errorf("seasonal[%d]: expected %g, got %g", i, p, d.Seasonal.Obs[i].Value)
		}
	}
	// Trend is undefined at the two ends and exact in between.
	if !isNaN(d.Trend.Obs[0].Value) || !isNaN(d.Trend.Obs[23].Value) {
		t.Error("trend should be NaN where the centred average is undefined")
	}
	for i := 2; i < 22; i++ {
		if !approxEqual(d.Trend.Obs[i].Value, 10+0.5*float64(i), 1e-9) {
			t.Errorf("trend[%d]: expected %g, got %g", i, 10+0.5*float64(i), d.Trend.Obs[i].Value)
		}
		if !approxEqual(d.Resid.Obs[i].Value, 0, 1e-9) {
			t.Errorf("resid[%d]: expected 0, got %g", i, d.Resid.Obs[i].Value)
		}
	}
	if d.Trend.Name != "X_trend" || d.Seasonal.Len() != 24 {
		t.Errorf("unexpected component shape: %q, %d", d.Trend.Name, d.Seasonal.Len())
	}
}

func TestDecomposeMultiplicativeSeasonalAveragesOne(t *testing.T) {
	vals := make([]float64, 15)
	factors := []float64{1.2, 0.9, 0.9}
	for i := range vals {
		vals[i] = 100 * factors[i%3]
	}
	d, err := transform.Decompose(monthly(2020, 1, vals...), 3, transform.Multiplicative)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := 0.0
	for i := 0; i < 3; i++ {
		sum += d.Seasonal.Obs[i].Value
	}
	if !approxEqual(sum/3, 1, 1e-9) {
		t.Errorf("multiplicative seasonal factors should average 1, got %g", sum/3)
	}
	for i := 1; i < 14; i++ {
		if !approxEqual(d.Resid.Obs[i].Value, 1, 1e-9) {
			t.Errorf("resid[%d]: expected 1, got %g", i, d.Resid.Obs[i].Value)
		}
	}
}

func TestDecomposeErrors(t *testing.T) {
	s := monthly(2020, 1, 1, 2, 3, 4, 5, 6)
	if _, err := transform.Decompose(s, 1, transform.Additive); err == nil {
		t.Error("expected error for period < 2")
	}
	if _, err := transform.Decompose(s, 4, transform.Additive); err == nil {
		t.Error("expected error for fewer than two full periods")
	}
	if _, err := transform.Decompose(s, 3, "bogus"); err == nil {
		t.Error("expected error for unknown model")
	}
	if _, err := transform.Decompose(monthly(2020, 1, 1, 2, math.NaN(), 4), 2, transform.Additive); err == nil {
		t.Error("expected error for missing values")
	}
	if _, err := transform.Decompose(monthly(2020, 1, 1, 0, 3, 4), 2, transform.Multiplicative); err == nil {
		t.Error("expected error for non-positive values in a multiplicative model")
	}
}

// ─── Composition ──────────────────────────────────────────────────────────────

func TestPctChangeThenRoll(t *testing.T) {
	pct, err := transform.PctChange(monthly(2020, 1, 100, 102, 101, 104, 103, 106, 105), 1)
	if err != nil {
		t.Fatalf("PctChange: %v", err)
	}
	rolled, err := transform.Roll(pct, 3, 1, transform.RollMean)
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if rolled.Len() != pct.Len() {
		t.Errorf("composition length mismatch: %d vs %d", rolled.Len(), pct.Len())
	}
	for i, o := range rolled.Obs {
		if isNaN(o.Value) {
			t.Errorf("rolled[%d]: unexpected NaN", i)
		}
	}
}

func TestResampleThenDiff(t *testing.T) {
	vals := make([]float64, 36)
	for i := range vals {
		vals[i] = float64(i/12) * 10
	}
	annual, err := transform.Resample(monthly(2020, 1, vals...), model.FreqYear, transform.ResampleMean)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	d, err := transform.Diff(annual, 1)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	expectValues(t, d, 10, 10)
}
