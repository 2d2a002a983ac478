package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/calendar"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/forecast"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/fred"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/store"
)

var (
	// ErrModelNotFound reports an unknown stored model id.
	ErrModelNotFound = errors.New("model not found")
	// ErrSeriesNotFound reports an unknown stored series name.
	ErrSeriesNotFound = errors.New("series not found")
)

// IsNotFound reports whether err names a missing model or series.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrSeriesNotFound) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, fred.ErrNotFound)
}

// FitRequest is one fit call.
type FitRequest struct {
	Kind        models.Kind
	Hyperparams []byte // JSON; empty selects the variant defaults
	Target      model.Series
	Exog        *model.Exog
	Params      model.FitParams
	// Holidays appends a US federal holiday count column to Exog.
	Holidays bool
	// Save persists the fitted model and assigns it an id.
	Save bool
}

// PredictRequest is one predict call. Exactly one of ModelID and Handle
// must be set.
type PredictRequest struct {
	ModelID  string
	Handle   []byte // handle JSON as produced by models.Encode
	Target   model.Series
	Exog     *model.Exog
	Params   model.FitParams
	Holidays bool
}

func withHolidays(e *model.Exog, target model.Series, on bool) (*model.Exog, error) {
	if !on {
		return e, nil
	}
	out, err := calendar.WithHolidays(e, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forecast.ErrInputShape, err)
	}
	return out, nil
}

// Fit trains a model and runs the forecasting pipeline.
func (d *Deps) Fit(ctx context.Context, req FitRequest) (*model.ForecastReport, error) {
	exog, err := withHolidays(req.Exog, req.Target, req.Holidays)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := d.Pipeline.Fit(ctx, req.Kind, req.Hyperparams, forecast.Input{
		Target: req.Target,
		Exog:   exog,
		Params: req.Params,
	})
	if err != nil {
		return nil, err
	}

	info := model.ModelInfo{
		Kind:       string(out.Model.Kind()),
		Target:     req.Target.Name,
		Freq:       req.Target.Freq,
		InputSize:  out.Model.InputSize(),
		OutputSize: out.Model.OutputSize(),
		FitParams:  req.Params,
		Metrics:    out.Result.BestForecastMetrics,
		CreatedAt:  time.Now().UTC(),
	}
	if req.Save {
		if err := d.OpenStore(); err != nil {
			return nil, err
		}
		rec, err := d.Store.PutModel(store.ModelRecord{Info: info, Handle: out.Handle, Result: &out.Result})
		if err != nil {
			return nil, fmt.Errorf("saving model: %w", err)
		}
		info = rec.Info
	}
	d.Logger.Info("model fitted",
		"kind", info.Kind, "target", info.Target, "id", info.ID,
		"points", out.Result.BestForecast.Len(), "duration", time.Since(start))

	return &model.ForecastReport{
		Model:  &info,
		Handle: EncodeHandle(out.Handle),
		Result: out.Result,
	}, nil
}

// Predict recomputes forecasts with a stored or supplied model.
func (d *Deps) Predict(ctx context.Context, req PredictRequest) (*model.ForecastReport, error) {
	if (req.ModelID == "") == (len(req.Handle) == 0) {
		return nil, fmt.Errorf("%w: exactly one of model id and model handle is required", models.ErrValidation)
	}
	exog, err := withHolidays(req.Exog, req.Target, req.Holidays)
	if err != nil {
		return nil, err
	}

	handle := req.Handle
	var info *model.ModelInfo
	if req.ModelID != "" {
		rec, err := d.GetModel(req.ModelID)
		if err != nil {
			return nil, err
		}
		handle = rec.Handle
		info = &rec.Info
	}

	res, err := d.Pipeline.Predict(ctx, handle, forecast.Input{Target: req.Target, Exog: exog, Params: req.Params})
	if err != nil {
		return nil, err
	}
	return &model.ForecastReport{Model: info, Result: *res}, nil
}

// GetModel loads a stored model record.
func (d *Deps) GetModel(id string) (store.ModelRecord, error) {
	if err := d.OpenStore(); err != nil {
		return store.ModelRecord{}, err
	}
	rec, ok, err := d.Store.GetModel(id)
	if err != nil {
		return store.ModelRecord{}, err
	}
	if !ok {
		return store.ModelRecord{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return rec, nil
}

// GetSeries loads a stored series.
func (d *Deps) GetSeries(name string) (model.Series, error) {
	if err := d.OpenStore(); err != nil {
		return model.Series{}, err
	}
	s, ok, err := d.Store.GetSeries(name)
	if err != nil {
		return model.Series{}, err
	}
	if !ok {
		return model.Series{}, fmt.Errorf("%w: %s", ErrSeriesNotFound, name)
	}
	return s, nil
}

// ImportFRED fetches a FRED series and stores it under name (the FRED id
// when name is empty).
func (d *Deps) ImportFRED(ctx context.Context, id, name string, opts fred.ObsOptions) (*fred.Meta, model.Series, error) {
	meta, s, err := d.FRED.Fetch(ctx, id, opts)
	if err != nil {
		return nil, model.Series{}, err
	}
	if name != "" {
		s.Name = name
	}
	if err := d.OpenStore(); err != nil {
		return nil, model.Series{}, err
	}
	if err := d.Store.PutSeries(s, "fred:"+meta.ID); err != nil {
		return nil, model.Series{}, fmt.Errorf("saving series: %w", err)
	}
	d.Logger.Info("series imported", "fred_id", meta.ID, "name", s.Name, "observations", s.Len(), "freq", s.Freq)
	return meta, s, nil
}

// EncodeHandle renders a model handle for transport.
func EncodeHandle(h []byte) string {
	return base64.StdEncoding.EncodeToString(h)
}

// DecodeHandle accepts a handle as produced by EncodeHandle or as raw JSON.
func DecodeHandle(s string) ([]byte, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed, nil
	}
	h, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: model handle is neither JSON nor base64: %v", models.ErrValidation, err)
	}
	return h, nil
}
