// Package models defines the capability interface every forecasting model
// variant implements, and the registry that dispatches on variant kind.
//
// A Variant is an unfitted, validated configuration. Fitting it yields a
// Fitted model that predicts one window at a time and can be serialised to an
// opaque handle for later prediction.
package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

// Kind is the closed set of model variants.
type Kind string

const (
	ARIMAX Kind = "arimax"
	LSTM   Kind = "lstm"
	GRU    Kind = "gru"
	NHITS  Kind = "nhits"
)

var (
	// ErrValidation reports hyperparameters or data sizes a variant rejects.
	ErrValidation = errors.New("model validation failed")
	// ErrUnknownKind reports a kind with no registered variant.
	ErrUnknownKind = errors.New("unknown model kind")
)

// Sizes describes the data a variant is asked to fit.
type Sizes struct {
	Train   int
	Val     int
	Test    int
	Horizon int
}

// TrainingSet is the data handed to Variant.Fit.
type TrainingSet struct {
	Train   split.Segment
	Val     split.Segment
	Freq    model.Frequency
	Horizon int
}

// Variant is an unfitted model configuration.
type Variant interface {
	Kind() Kind
	InputSize() int
	OutputSize() int
	// Validate checks the configuration against the sizes of the data it
	// will be fitted on. All violations are reported together.
	Validate(Sizes) error
	Fit(ctx context.Context, ts TrainingSet) (Fitted, error)
}

// Fitted is a trained model.
type Fitted interface {
	Kind() Kind
	InputSize() int
	OutputSize() int
	// Predict returns exactly OutputSize values following the window's last
	// observation.
	Predict(ctx context.Context, w window.Window) ([]float64, error)
	// Marshal returns the variant-specific payload of the model handle.
	Marshal() ([]byte, error)
}

// Factory builds variants of one kind.
type Factory struct {
	// New parses raw JSON hyperparameters into a Variant.
	New func(raw []byte) (Variant, error)
	// Load restores a Fitted model from a payload produced by Marshal.
	Load func(payload []byte) (Fitted, error)
}

// Registry maps kinds to factories.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register installs f for kind k, replacing any previous factory.
func (r *Registry) Register(k Kind, f Factory) {
	r.factories[k] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) factory(k Kind) (Factory, error) {
	f, ok := r.factories[Kind(strings.ToLower(string(k)))]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return f, nil
}

// New builds a variant of kind k from raw JSON hyperparameters. An empty
// raw selects the variant defaults.
func (r *Registry) New(k Kind, raw []byte) (Variant, error) {
	f, err := r.factory(k)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return f.New(raw)
}

// handle is the serialised form of a Fitted model.
type handle struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serialises f into an opaque handle.
func Encode(f Fitted) ([]byte, error) {
	payload, err := f.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding %s model: %w", f.Kind(), err)
	}
	return json.Marshal(handle{Kind: f.Kind(), Payload: payload})
}

// Load restores a Fitted model from a handle produced by Encode.
func (r *Registry) Load(data []byte) (Fitted, error) {
	var h handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: decoding model handle: %v", ErrValidation, err)
	}
	f, err := r.factory(h.Kind)
	if err != nil {
		return nil, err
	}
	m, err := f.Load(h.Payload)
	if err != nil {
		return nil, fmt.Errorf("loading %s model: %w", h.Kind, err)
	}
	return m, nil
}

// HandleKind returns the kind recorded in a handle without loading it.
func HandleKind(data []byte) (Kind, error) {
	var h handle
	if err := json.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("%w: decoding model handle: %v", ErrValidation, err)
	}
	return h.Kind, nil
}

// Invalid wraps the violations collected in errs into a single
// ErrValidation error. It returns nil when errs is empty.
func Invalid(kind Kind, errs *util.MultiError) error {
	if err := errs.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrValidation, kind, err)
	}
	return nil
}
