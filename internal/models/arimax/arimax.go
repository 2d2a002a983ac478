// Package arimax implements the ARIMAX variant: an ARIMA(p, d, q) with
// exogenous regressors, estimated locally with the two-stage
// Hannan–Rissanen regression.
package arimax

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

// minTrain is the smallest number of training observations beyond the
// model's own lags and input window.
const minTrain = 10

// Params are the ARIMAX hyperparameters.
type Params struct {
	P          int `json:"p"`
	D          int `json:"d"`
	Q          int `json:"q"`
	InputSize  int `json:"input_size"`
	OutputSize int `json:"output_size"`
}

// DefaultParams returns an AR(1) reading a 12-observation window.
func DefaultParams() Params {
	return Params{P: 1, InputSize: 12, OutputSize: 1}
}

// Factory returns the registry entry for ARIMAX.
func Factory() models.Factory {
	return models.Factory{New: New, Load: Load}
}

// Variant is an unfitted ARIMAX configuration.
type Variant struct {
	params Params
}

// New parses raw JSON hyperparameters over DefaultParams.
func New(raw []byte) (models.Variant, error) {
	p := DefaultParams()
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: arimax hyperparameters: %v", models.ErrValidation, err)
	}
	return &Variant{params: p}, nil
}

// NewVariant builds a variant from already parsed params.
func NewVariant(p Params) *Variant {
	return &Variant{params: p}
}

func (v *Variant) Kind() models.Kind { return models.ARIMAX }
func (v *Variant) InputSize() int { return v.params.InputSize }
func (v *Variant) OutputSize() int { return v.params.OutputSize }

// Validate checks orders and sizes; all violations are reported together.
func (v *Variant) Validate(s models.Sizes) error {
	p := v.params
	var errs util.MultiError
	if p.P < 0 || p.D < 0 || p.Q < 0 {
		errs.Add(fmt.Errorf("orders must be non-negative, got p=%d d=%d q=%d", p.P, p.D, p.Q))
	}
	if p.OutputSize < 1 {
		errs.Add(fmt.Errorf("output_size must be at least 1, got %d", p.OutputSize))
	}
	if p.InputSize <= p.P+p.D+p.Q {
		errs.Add(fmt.Errorf("input_size %d must exceed p+d+q = %d", p.InputSize, p.P+p.D+p.Q))
	}
	need := max(p.P+p.D, p.Q+p.D, minTrain) + p.InputSize
	if s.Train < need {
		errs.Add(fmt.Errorf("train length %d is below the minimum %d for p=%d d=%d q=%d input_size=%d",
			s.Train, need, p.P, p.D, p.Q, p.InputSize))
	}
	return models.Invalid(models.ARIMAX, &errs)
}

// Fit estimates the model on the training segment. The validation segment
// is not used for estimation.
func (v *Variant) Fit(ctx context.Context, ts models.TrainingSet) (models.Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	y := ts.Train.Target.Values()
	for i, val := range y {
		if math.IsNaN(val) {
			return nil, fmt.Errorf("%w: arimax: missing target value at %s",
				models.ErrValidation, util.FormatDate(ts.Train.Target.Obs[i].Date))
		}
	}
	var rows [][]float64
	var cols []string
	if ts.Train.Exog != nil {
		rows = ts.Train.Exog.Rows
		cols = ts.Train.Exog.Columns
	}

	coef, err := estimate(y, rows, v.params.P, v.params.D, v.params.Q)
	if err != nil {
		return nil, err
	}
	slog.Debug("arimax fitted",
		"p", v.params.P, "d", v.params.D, "q", v.params.Q,
		"observations", len(y), "exog", len(cols), "sigma2", coef.Sigma2)

	return &Fitted{Params: v.params, Columns: cols, Coef: coef}, nil
}

// Fitted is an estimated ARIMAX model.
type Fitted struct {
	Params  Params       `json:"params"`
	Columns []string     `json:"columns,omitempty"`
	Coef    coefficients `json:"coefficients"`
}

// Load restores a model from its Marshal payload.
func Load(payload []byte) (models.Fitted, error) {
	var f Fitted
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("%w: arimax payload: %v", models.ErrValidation, err)
	}
	if len(f.Coef.AR) != f.Params.P || len(f.Coef.MA) != f.Params.Q || len(f.Coef.Beta) != len(f.Columns) {
		return nil, fmt.Errorf("%w: arimax payload: coefficient counts do not match orders", models.ErrValidation)
	}
	return &f, nil
}

func (f *Fitted) Kind() models.Kind { return models.ARIMAX }
func (f *Fitted) InputSize() int { return f.Params.InputSize }
func (f *Fitted) OutputSize() int { return f.Params.OutputSize }
func (f *Fitted) Marshal() ([]byte, error) { return json.Marshal(f) }

// Predict forecasts OutputSize steps past the window's last observation.
// Innovations are re-estimated inside the window and future exogenous rows
// repeat the window's last row.
func (f *Fitted) Predict(ctx context.Context, w window.Window) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := f.Params
	y := w.Target.Values()
	if len(y) <= p.P+p.D {
		return nil, fmt.Errorf("%w: arimax window of %d observations is shorter than p+d+1 = %d",
			model.ErrInputShape, len(y), p.P+p.D+1)
	}
	if got := len(exogColumns(w.Exog)); got != len(f.Columns) {
		return nil, fmt.Errorf("%w: model was fitted with %d exogenous columns, window has %d",
			model.ErrInputShape, len(f.Columns), got)
	}

	// levels[j] is the window differenced j times.
	levels := make([][]float64, p.D+1)
	levels[0] = y
	for j := 1; j <= p.D; j++ {
		levels[j] = difference(levels[j-1], 1)
	}
	wd := append([]float64(nil), levels[p.D]...)

	var xd [][]float64
	if len(f.Columns) > 0 {
		rows := append([][]float64(nil), w.Exog.Rows...)
		last := rows[len(rows)-1]
		for s := 0; s < p.OutputSize; s++ {
			rows = append(rows, last)
		}
		xd = differenceRows(rows, p.D)
	}
	row := func(t int) []float64 {
		if xd == nil {
			return nil
		}
		return xd[t]
	}

	e := make([]float64, len(wd))
	for t := p.P; t < len(wd); t++ {
		e[t] = wd[t] - f.Coef.step(wd, e, row(t), t)
	}

	tails := make([]float64, p.D)
	for j := 0; j < p.D; j++ {
		tails[j] = levels[j][len(levels[j])-1]
	}

	out := make([]float64, 0, p.OutputSize)
	for s := 0; s < p.OutputSize; s++ {
		t := len(wd)
		next := f.Coef.step(wd, e, row(t), t)
		wd = append(wd, next)
		e = append(e, 0)

		cur := next
		for j := p.D - 1; j >= 0; j-- {
			cur += tails[j]
			tails[j] = cur
		}
		out = append(out, cur)
	}
	return out, nil
}

func exogColumns(e *model.Exog) []string {
	if e == nil {
		return nil
	}
	return e.Columns
}
