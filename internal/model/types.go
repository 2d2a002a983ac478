// Package model defines the canonical data types used throughout imfs.
// These types are the single source of truth for series, exogenous tables,
// fit parameters, reconciled forecasts and the result envelope that every
// command and HTTP handler returns.
package model

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// ─── Frequency ────────────────────────────────────────────────────────────────

// Frequency is the declared sampling frequency of a series.
type Frequency string

const (
	FreqYear    Frequency = "year"
	FreqQuarter Frequency = "quarter"
	FreqMonth   Frequency = "month"
	FreqDay     Frequency = "day"
	FreqHour    Frequency = "hour"
	FreqMinute  Frequency = "minute"
)

// ─── Time Series Types ────────────────────────────────────────────────────────

// Observation is a single data point in a time series.
// Value is NaN when the observation is missing; it is encoded as JSON null.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IsMissing returns true if the observation value is NaN (missing data).
func (o Observation) IsMissing() bool {
	return math.IsNaN(o.Value)
}

type observationJSON struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// MarshalJSON writes dates as YYYY-MM-DD (RFC 3339 when a clock time is set)
// and NaN values as null.
func (o Observation) MarshalJSON() ([]byte, error) {
	row := observationJSON{Date: util.FormatDate(o.Date)}
	if !o.IsMissing() {
		v := o.Value
		row.Value = &v
	}
	return json.Marshal(row)
}

// UnmarshalJSON is the inverse of MarshalJSON; null values become NaN.
func (o *Observation) UnmarshalJSON(data []byte) error {
	var row observationJSON
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	t, err := util.ParseDate(row.Date)
	if err != nil {
		return err
	}
	o.Date = t
	if row.Value == nil {
		o.Value = math.NaN()
	} else {
		o.Value = *row.Value
	}
	return nil
}

// Series is an ordered sequence of observations with strictly increasing
// dates and a declared frequency.
type Series struct {
	Name string        `json:"name"`
	Freq Frequency     `json:"freq"`
	Obs  []Observation `json:"observations"`
}

// NewSeries builds a Series from parallel date/value slices.
func NewSeries(name string, freq Frequency, dates []time.Time, values []float64) (Series, error) {
	if len(dates) != len(values) {
		return Series{}, fmt.Errorf("series %q: %d dates but %d values", name, len(dates), len(values))
	}
	obs := make([]Observation, len(dates))
	for i := range dates {
		obs[i] = Observation{Date: dates[i], Value: values[i]}
	}
	return Series{Name: name, Freq: freq, Obs: obs}, nil
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Obs) }

// Dates returns a copy of the observation dates.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Obs))
	for i, o := range s.Obs {
		out[i] = o.Date
	}
	return out
}

// Values returns a copy of the observation values.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Obs))
	for i, o := range s.Obs {
		out[i] = o.Value
	}
	return out
}

// Slice returns observations [i, j) as a new Series that shares no memory
// with s.
func (s Series) Slice(i, j int) Series {
	obs := make([]Observation, j-i)
	copy(obs, s.Obs[i:j])
	return Series{Name: s.Name, Freq: s.Freq, Obs: obs}
}

// Filter returns the observations for which keep returns true.
func (s Series) Filter(keep func(Observation) bool) Series {
	obs := make([]Observation, 0, len(s.Obs))
	for _, o := range s.Obs {
		if keep(o) {
			obs = append(obs, o)
		}
	}
	return Series{Name: s.Name, Freq: s.Freq, Obs: obs}
}

// Append returns a new Series with o appended. s is left untouched.
func (s Series) Append(o Observation) Series {
	obs := make([]Observation, len(s.Obs), len(s.Obs)+1)
	copy(obs, s.Obs)
	return Series{Name: s.Name, Freq: s.Freq, Obs: append(obs, o)}
}

// Copy returns a deep copy of s.
func (s Series) Copy() Series {
	return s.Slice(0, len(s.Obs))
}

// First returns the first observation. It panics on an empty series.
func (s Series) First() Observation { return s.Obs[0] }

// Last returns the last observation. It panics on an empty series.
func (s Series) Last() Observation { return s.Obs[len(s.Obs)-1] }

// IsEmpty reports whether the series has no observations.
func (s Series) IsEmpty() bool { return len(s.Obs) == 0 }

// ─── Exogenous Table ──────────────────────────────────────────────────────────

// Exog is a table of named numeric covariates keyed by the same dates as its
// paired target series. Rows[i][j] is the value of Columns[j] at Dates[i].
type Exog struct {
	Columns []string    `json:"columns"`
	Dates   []time.Time `json:"dates"`
	Rows    [][]float64 `json:"rows"`
}

// Len returns the number of rows.
func (e *Exog) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Dates)
}

// Slice returns rows [i, j) as a new table.
func (e *Exog) Slice(i, j int) *Exog {
	if e == nil {
		return nil
	}
	out := &Exog{
		Columns: append([]string(nil), e.Columns...),
		Dates:   make([]time.Time, j-i),
		Rows:    make([][]float64, j-i),
	}
	copy(out.Dates, e.Dates[i:j])
	for k := i; k < j; k++ {
		out.Rows[k-i] = append([]float64(nil), e.Rows[k]...)
	}
	return out
}

// Mask returns the rows for which keep returns true.
func (e *Exog) Mask(keep func(time.Time) bool) *Exog {
	if e == nil {
		return nil
	}
	out := &Exog{Columns: append([]string(nil), e.Columns...)}
	for i, d := range e.Dates {
		if keep(d) {
			out.Dates = append(out.Dates, d)
			out.Rows = append(out.Rows, append([]float64(nil), e.Rows[i]...))
		}
	}
	return out
}

// AppendRow returns a new table with one row appended.
func (e *Exog) AppendRow(date time.Time, row []float64) *Exog {
	out := e.Slice(0, e.Len())
	out.Dates = append(out.Dates, date)
	out.Rows = append(out.Rows, append([]float64(nil), row...))
	return out
}

// Column returns a copy of the named column, or nil if it does not exist.
func (e *Exog) Column(name string) []float64 {
	if e == nil {
		return nil
	}
	for j, c := range e.Columns {
		if c != name {
			continue
		}
		out := make([]float64, len(e.Rows))
		for i, row := range e.Rows {
			out[i] = row[j]
		}
		return out
	}
	return nil
}

// SameIndex reports whether the table's dates equal the series' dates
// element by element.
func (e *Exog) SameIndex(s Series) bool {
	if e.Len() != s.Len() {
		return false
	}
	for i, d := range e.Dates {
		if !d.Equal(s.Obs[i].Date) {
			return false
		}
	}
	return true
}

// ExogFromSeries builds a table from one or more series sharing the same
// dates. Each series contributes one column named after Series.Name.
func ExogFromSeries(cols []Series) (*Exog, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	base := cols[0]
	e := &Exog{Dates: base.Dates()}
	for j, c := range cols {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("exog_%d", j)
		}
		e.Columns = append(e.Columns, name)
		if c.Len() != base.Len() {
			return nil, fmt.Errorf("exogenous column %q has %d rows, expected %d", name, c.Len(), base.Len())
		}
		for i, o := range c.Obs {
			if !o.Date.Equal(base.Obs[i].Date) {
				return nil, fmt.Errorf("exogenous column %q: date %s does not match %s",
					name, util.FormatDate(o.Date), util.FormatDate(base.Obs[i].Date))
			}
		}
	}
	e.Rows = make([][]float64, base.Len())
	for i := range e.Rows {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c.Obs[i].Value
		}
		e.Rows[i] = row
	}
	return e, nil
}

// ─── Fit / Forecast Types ─────────────────────────────────────────────────────

// FitParams carries the partition boundaries and the out-of-sample horizon
// shared by fit and predict requests.
type FitParams struct {
	TrainBoundary   time.Time `json:"train_boundary"`
	ValBoundary     time.Time `json:"val_boundary"`
	ForecastHorizon int       `json:"forecast_horizon"`
}

type fitParamsJSON struct {
	TrainBoundary   string `json:"train_boundary"`
	ValBoundary     string `json:"val_boundary"`
	ForecastHorizon int    `json:"forecast_horizon"`
}

// MarshalJSON writes boundaries in the same date format as observations.
func (p FitParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(fitParamsJSON{
		TrainBoundary:   util.FormatDate(p.TrainBoundary),
		ValBoundary:     util.FormatDate(p.ValBoundary),
		ForecastHorizon: p.ForecastHorizon,
	})
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC 3339 boundaries.
func (p *FitParams) UnmarshalJSON(data []byte) error {
	var raw fitParamsJSON
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return err
	}
	tb, err := util.ParseDate(raw.TrainBoundary)
	if err != nil {
		return fmt.Errorf("train_boundary: %w", err)
	}
	vb, err := util.ParseDate(raw.ValBoundary)
	if err != nil {
		return fmt.Errorf("val_boundary: %w", err)
	}
	*p = FitParams{TrainBoundary: tb, ValBoundary: vb, ForecastHorizon: raw.ForecastHorizon}
	return nil
}

// WindowsForecast is the partition of every per-window forecast into the
// train/validation/test buckets plus everything beyond the last observed date.
type WindowsForecast struct {
	Train       []Series `json:"train_forecasts"`
	Val         []Series `json:"val_forecasts"`
	Test        []Series `json:"test_forecasts"`
	OutOfSample []Series `json:"out_of_sample_forecasts"`
}

// Metric is one named accuracy score. Undefined scores (NaN, ±Inf) are
// written as null.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type metricJSON struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

func (m Metric) MarshalJSON() ([]byte, error) {
	row := metricJSON{Name: m.Name}
	if !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0) {
		v := m.Value
		row.Value = &v
	}
	return json.Marshal(row)
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	var row metricJSON
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	m.Name = row.Name
	if row.Value == nil {
		m.Value = math.NaN()
	} else {
		m.Value = *row.Value
	}
	return nil
}

// ModelMetrics holds per-segment metrics. A nil slice means the segment had
// too few observations for the metrics to be defined.
type ModelMetrics struct {
	Train []Metric `json:"train_metrics"`
	Val   []Metric `json:"val_metrics"`
	Test  []Metric `json:"test_metrics"`
}

// ForecastResult is the externally visible outcome of fit and predict.
type ForecastResult struct {
	Forecasts           WindowsForecast `json:"forecasts"`
	BestForecast        Series          `json:"best_forecast"`
	BestForecastMetrics ModelMetrics    `json:"best_forecast_metrics"`
}

// ModelInfo is the stored metadata of a fitted model.
type ModelInfo struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"`
	Target     string       `json:"target"`
	Freq       Frequency    `json:"freq"`
	InputSize  int          `json:"input_size"`
	OutputSize int          `json:"output_size"`
	FitParams  FitParams    `json:"fit_params"`
	Metrics    ModelMetrics `json:"metrics"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindSeries         = "series"
	KindSeriesList     = "series_list"
	KindForecastResult = "forecast_result"
	KindModelInfo      = "model_info"
	KindDiagnostic     = "diagnostic"
	KindSummary        = "summary"
	KindTrend          = "trend"
	KindDecomposition  = "decomposition"
	KindStoreStats     = "store_stats"
	KindTable          = "table"
)

// ForecastReport is the payload of a KindForecastResult result: the fit or
// predict outcome plus the model that produced it.
type ForecastReport struct {
	Model  *ModelInfo     `json:"model,omitempty"`
	Handle string         `json:"handle,omitempty"` // base64 model handle
	Result ForecastResult `json:"result"`
}

// Table is a generic header-plus-rows payload for KindTable results.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}
