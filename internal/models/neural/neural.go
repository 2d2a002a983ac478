package neural

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

// Params are the hyperparameters shared by the neural variants. Recurrent
// fields apply to LSTM and GRU; stack fields apply to NHITS.
type Params struct {
	InputSize    int     `json:"input_size"`
	H            int     `json:"h"`
	MaxSteps     int     `json:"max_steps"`
	LearningRate float64 `json:"learning_rate"`
	Scaler       string  `json:"scaler_type,omitempty"`

	EncoderHiddenSize int `json:"encoder_hidden_size,omitempty"`
	EncoderLayers     int `json:"encoder_n_layers,omitempty"`
	DecoderHiddenSize int `json:"decoder_hidden_size,omitempty"`
	DecoderLayers     int `json:"decoder_layers,omitempty"`

	StackTypes     []string `json:"stack_types,omitempty"`
	Blocks         []int    `json:"n_blocks,omitempty"`
	MLPUnits       [][]int  `json:"mlp_units,omitempty"`
	PoolKernelSize []int    `json:"n_pool_kernel_size,omitempty"`
}

// DefaultParams returns the defaults for kind.
func DefaultParams(kind models.Kind) Params {
	p := Params{InputSize: 12, H: 1, MaxSteps: 200, LearningRate: 1e-3, Scaler: "robust"}
	switch kind {
	case models.LSTM, models.GRU:
		p.EncoderHiddenSize = 64
		p.EncoderLayers = 2
		p.DecoderHiddenSize = 64
		p.DecoderLayers = 2
	case models.NHITS:
		p.StackTypes = []string{"identity", "identity", "identity"}
		p.Blocks = []int{1, 1, 1}
		p.MLPUnits = [][]int{{512, 512}, {512, 512}, {512, 512}}
		p.PoolKernelSize = []int{2, 2, 1}
	}
	return p
}

var scalers = map[string]bool{"": true, "identity": true, "standard": true, "robust": true, "minmax": true}

// validate collects every parameter and size violation for kind.
func (p Params) validate(kind models.Kind, s models.Sizes) error {
	var errs util.MultiError
	if p.InputSize < 1 {
		errs.Add(fmt.Errorf("input_size must be at least 1, got %d", p.InputSize))
	}
	if p.H < 1 {
		errs.Add(fmt.Errorf("h must be at least 1, got %d", p.H))
	}
	if p.MaxSteps < 1 {
		errs.Add(fmt.Errorf("max_steps must be at least 1, got %d", p.MaxSteps))
	}
	if p.LearningRate <= 0 || math.IsNaN(p.LearningRate) {
		errs.Add(fmt.Errorf("learning_rate must be positive, got %g", p.LearningRate))
	}
	if !scalers[p.Scaler] {
		errs.Add(fmt.Errorf("unknown scaler_type %q", p.Scaler))
	}

	switch kind {
	case models.LSTM, models.GRU:
		if p.EncoderHiddenSize < 1 {
			errs.Add(fmt.Errorf("encoder_hidden_size must be at least 1, got %d", p.EncoderHiddenSize))
		}
		if p.EncoderLayers < 1 {
			errs.Add(fmt.Errorf("encoder_n_layers must be at least 1, got %d", p.EncoderLayers))
		}
		if p.DecoderHiddenSize < 1 {
			errs.Add(fmt.Errorf("decoder_hidden_size must be at least 1, got %d", p.DecoderHiddenSize))
		}
		if p.DecoderLayers < 1 {
			errs.Add(fmt.Errorf("decoder_layers must be at least 1, got %d", p.DecoderLayers))
		}
	case models.NHITS:
		n := len(p.StackTypes)
		if n == 0 {
			errs.Add(fmt.Errorf("stack_types must name at least one stack"))
		}
		if len(p.Blocks) != n || len(p.MLPUnits) != n || len(p.PoolKernelSize) != n {
			errs.Add(fmt.Errorf("n_blocks (%d), mlp_units (%d) and n_pool_kernel_size (%d) must each have one entry per stack (%d)",
				len(p.Blocks), len(p.MLPUnits), len(p.PoolKernelSize), n))
		}
		for i, k := range p.PoolKernelSize {
			if k < 1 || k > p.InputSize {
				errs.Add(fmt.Errorf("n_pool_kernel_size[%d] = %d must be within [1, input_size=%d]", i, k, p.InputSize))
			}
		}
		for i, st := range p.StackTypes {
			if st != "identity" {
				errs.Add(fmt.Errorf("stack_types[%d] = %q: only identity stacks are supported", i, st))
			}
		}
	}

	if s.Train < p.InputSize+p.H {
		errs.Add(fmt.Errorf("train length %d is below input_size + h = %d", s.Train, p.InputSize+p.H))
	}
	if s.Val != 0 && s.Val < p.H {
		errs.Add(fmt.Errorf("validation length %d must be 0 or at least h = %d", s.Val, p.H))
	}
	return models.Invalid(kind, &errs)
}

// ─── Variant ─────────────────────────────────────────────────────────────────

// Factory returns the registry entry for kind, bound to client.
func Factory(kind models.Kind, client *Client) models.Factory {
	return models.Factory{
		New: func(raw []byte) (models.Variant, error) {
			p := DefaultParams(kind)
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("%w: %s hyperparameters: %v", models.ErrValidation, kind, err)
			}
			return &Variant{kind: kind, params: p, client: client}, nil
		},
		Load: func(payload []byte) (models.Fitted, error) {
			var f Fitted
			if err := json.Unmarshal(payload, &f); err != nil {
				return nil, fmt.Errorf("%w: %s payload: %v", models.ErrValidation, kind, err)
			}
			if f.ModelID == "" {
				return nil, fmt.Errorf("%w: %s payload: missing model id", models.ErrValidation, kind)
			}
			f.Variant = kind
			f.client = client
			return &f, nil
		},
	}
}

// Register installs all neural variants into reg.
func Register(reg *models.Registry, client *Client) {
	for _, k := range []models.Kind{models.LSTM, models.GRU, models.NHITS} {
		reg.Register(k, Factory(k, client))
	}
}

// Variant is an unfitted neural model configuration.
type Variant struct {
	kind   models.Kind
	params Params
	client *Client
}

func (v *Variant) Kind() models.Kind { return v.kind }
func (v *Variant) InputSize() int { return v.params.InputSize }
func (v *Variant) OutputSize() int { return v.params.H }

func (v *Variant) Validate(s models.Sizes) error {
	return v.params.validate(v.kind, s)
}

// Fit sends the training and validation segments to the service. The last
// val_size rows of the frame are the validation segment.
func (v *Variant) Fit(ctx context.Context, ts models.TrainingSet) (models.Fitted, error) {
	offset, err := freq.Offset(ts.Freq)
	if err != nil {
		return nil, err
	}
	if ts.Train.Exog != nil {
		if err := checkColumns(v.kind, ts.Train.Exog.Columns); err != nil {
			return nil, err
		}
	}
	data := frame(ts.Train)
	data = append(data, frame(ts.Val)...)

	var cols []string
	if ts.Train.Exog != nil {
		cols = ts.Train.Exog.Columns
	}
	id, err := v.client.Fit(ctx, FitRequest{
		Model:       string(v.kind),
		Freq:        offset,
		H:           v.params.H,
		InputSize:   v.params.InputSize,
		ValSize:     ts.Val.Target.Len(),
		ExogColumns: cols,
		Hyperparams: v.params,
		Data:        data,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("neural model fitted", "kind", v.kind, "model_id", id, "rows", len(data))
	return &Fitted{
		Variant: v.kind,
		Params:  v.params,
		ModelID: id,
		Freq:    offset,
		Columns: cols,
		client:  v.client,
	}, nil
}

// Fitted is a handle to a model trained by the service.
type Fitted struct {
	Variant models.Kind `json:"variant"`
	Params  Params      `json:"params"`
	ModelID string      `json:"model_id"`
	Freq    string      `json:"freq"`
	Columns []string    `json:"columns,omitempty"`

	client *Client
}

func (f *Fitted) Kind() models.Kind { return f.Variant }
func (f *Fitted) InputSize() int { return f.Params.InputSize }
func (f *Fitted) OutputSize() int { return f.Params.H }
func (f *Fitted) Marshal() ([]byte, error) { return json.Marshal(f) }

// Predict forecasts h values from the window.
func (f *Fitted) Predict(ctx context.Context, w window.Window) ([]float64, error) {
	var got []string
	if w.Exog != nil {
		got = w.Exog.Columns
	}
	if len(got) != len(f.Columns) {
		return nil, fmt.Errorf("%w: model was fitted with %d exogenous columns, window has %d",
			model.ErrInputShape, len(f.Columns), len(got))
	}
	return f.client.Predict(ctx, PredictRequest{
		ModelID: f.ModelID,
		Freq:    f.Freq,
		H:       f.Params.H,
		Data:    frame(split.Segment{Target: w.Target, Exog: w.Exog}),
	})
}

// checkColumns rejects exogenous column names that collide with the ds and
// y fields of a frame row.
func checkColumns(kind models.Kind, cols []string) error {
	var errs util.MultiError
	for _, c := range cols {
		if c == "ds" || c == "y" {
			errs.Add(fmt.Errorf("exogenous column %q clashes with a reserved frame field", c))
		}
	}
	return models.Invalid(kind, &errs)
}

// frame converts a segment to wire rows.
func frame(seg split.Segment) []Row {
	rows := make([]Row, seg.Target.Len())
	for i, o := range seg.Target.Obs {
		r := Row{"ds": util.FormatDate(o.Date), "y": nullable(o.Value)}
		if seg.Exog != nil {
			for j, c := range seg.Exog.Columns {
				r[c] = nullable(seg.Exog.Rows[i][j])
			}
		}
		rows[i] = r
	}
	return rows
}

func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
