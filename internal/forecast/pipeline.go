package forecast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/metrics"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

// Input is one fit or predict request.
type Input struct {
	Target model.Series
	Exog   *model.Exog
	Params model.FitParams
}

// FitOutput is the outcome of Pipeline.Fit.
type FitOutput struct {
	Model  models.Fitted
	Handle []byte
	Result model.ForecastResult
}

// Pipeline composes the stages for fit and predict requests.
type Pipeline struct {
	Registry *models.Registry
	// Metrics are the metric names reported per segment; nil selects
	// metrics.Default.
	Metrics []string
	Logger  *slog.Logger
}

// NewPipeline returns a pipeline over reg with default metrics and logger.
func NewPipeline(reg *models.Registry) *Pipeline {
	return &Pipeline{Registry: reg}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) metricNames() []string {
	if len(p.Metrics) > 0 {
		return p.Metrics
	}
	return metrics.Default
}

// Fit trains a new model of kind with the given JSON hyperparameters and
// runs the forecasting stages on in.
func (p *Pipeline) Fit(ctx context.Context, kind models.Kind, hyperparams []byte, in Input) (*FitOutput, error) {
	variant, err := p.Registry.New(kind, hyperparams)
	if err != nil {
		return nil, err
	}
	c, err := NewContext(in.Target, in.Exog, in.Params)
	if err != nil {
		return nil, err
	}
	if c, err = p.split(c, variant.InputSize()); err != nil {
		return nil, err
	}
	if c, err = p.train(ctx, c, variant); err != nil {
		return nil, err
	}
	if c, err = p.finish(ctx, c); err != nil {
		return nil, err
	}

	handle, err := models.Encode(c.Model)
	if err != nil {
		return nil, err
	}
	res, err := c.Result()
	if err != nil {
		return nil, err
	}
	return &FitOutput{Model: c.Model, Handle: handle, Result: res}, nil
}

// Predict loads a model handle and recomputes the forecasts on in.
func (p *Pipeline) Predict(ctx context.Context, handle []byte, in Input) (*model.ForecastResult, error) {
	fitted, err := p.Registry.Load(handle)
	if err != nil {
		return nil, err
	}
	return p.PredictWith(ctx, fitted, in)
}

// PredictWith recomputes the forecasts on in with an already loaded model.
func (p *Pipeline) PredictWith(ctx context.Context, fitted models.Fitted, in Input) (*model.ForecastResult, error) {
	c, err := NewContext(in.Target, in.Exog, in.Params)
	if err != nil {
		return nil, err
	}
	if c, err = p.split(c, fitted.InputSize()); err != nil {
		return nil, err
	}
	c.Model = fitted
	if c, err = p.finish(ctx, c); err != nil {
		return nil, err
	}
	res, err := c.Result()
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// finish runs every stage after TRAIN.
func (p *Pipeline) finish(ctx context.Context, c Context) (Context, error) {
	var err error
	for _, stage := range []func(context.Context, Context) (Context, error){
		p.predictInSample,
		p.predictOutOfSample,
		p.reconcile,
		p.bestForecast,
	} {
		if err = ctx.Err(); err != nil {
			return Context{}, err
		}
		if c, err = stage(ctx, c); err != nil {
			return Context{}, err
		}
	}
	return c.advance(StageDone)
}

// ─── Stages ───────────────────────────────────────────────────────────────────

func (p *Pipeline) split(c Context, inputSize int) (Context, error) {
	c, err := c.advance(StageSplit)
	if err != nil {
		return Context{}, err
	}
	res, err := split.Split(c.Target, c.Exog, c.Boundaries)
	if err != nil {
		return Context{}, err
	}
	if res.Len() != c.Target.Len() {
		return Context{}, invariant("split lost observations: %d of %d", res.Len(), c.Target.Len())
	}
	if n := res.Train.Target.Len(); n < inputSize {
		return Context{}, fmt.Errorf("%w: train segment has %d observations, input_size is %d",
			ErrInputShape, n, inputSize)
	}
	c.Split = res
	p.logger().Debug("stage complete", "stage", c.Stage,
		"train", res.Train.Target.Len(), "val", res.Val.Target.Len(), "test", res.Test.Target.Len())
	return c, nil
}

func (p *Pipeline) train(ctx context.Context, c Context, v models.Variant) (Context, error) {
	c, err := c.advance(StageTrain)
	if err != nil {
		return Context{}, err
	}
	if err := v.Validate(c.Sizes()); err != nil {
		return Context{}, err
	}
	fitted, err := v.Fit(ctx, models.TrainingSet{
		Train:   c.Split.Train,
		Val:     c.Split.Val,
		Freq:    c.Target.Freq,
		Horizon: c.Horizon,
	})
	if err != nil {
		return Context{}, err
	}
	c.Model = fitted
	p.logger().Debug("stage complete", "stage", c.Stage, "kind", fitted.Kind(),
		"input_size", fitted.InputSize(), "output_size", fitted.OutputSize())
	return c, nil
}

// predictInSample forecasts from every window except the last. Window i
// ends at observation i+k-1, so its forecast starts at observation i+k;
// points past the last observation take calendar dates.
func (p *Pipeline) predictInSample(ctx context.Context, c Context) (Context, error) {
	c, err := c.advance(StageWindowPredictInSample)
	if err != nil {
		return Context{}, err
	}
	k, width := c.Model.InputSize(), c.Model.OutputSize()
	ws, err := window.Create(c.Exog, c.Target, k)
	if err != nil {
		return Context{}, err
	}
	cal, err := c.calendar(width)
	if err != nil {
		return Context{}, err
	}
	timeline := append(c.Target.Dates(), cal...)

	out := make([]model.Series, 0, len(ws)-1)
	for i, w := range ws[:len(ws)-1] {
		vals, err := c.Model.Predict(ctx, w)
		if err != nil {
			return Context{}, fmt.Errorf("window %d: %w", i, err)
		}
		if len(vals) != width {
			return Context{}, invariant("window %d: model returned %d values, output size is %d", i, len(vals), width)
		}
		fc, err := model.NewSeries(c.Target.Name, c.Target.Freq, timeline[i+k:i+k+width], vals)
		if err != nil {
			return Context{}, invariant("window %d: %v", i, err)
		}
		out = append(out, fc)
	}
	c.InSample = out
	p.logger().Debug("stage complete", "stage", c.Stage, "windows", len(ws), "forecasts", len(out))
	return c, nil
}

func (p *Pipeline) predictOutOfSample(ctx context.Context, c Context) (Context, error) {
	c, err := c.advance(StageRecursiveOOS)
	if err != nil {
		return Context{}, err
	}
	last, err := window.Last(c.Exog, c.Target, c.Model.InputSize())
	if err != nil {
		return Context{}, err
	}
	vals, err := c.Model.Predict(ctx, last)
	if err != nil {
		return Context{}, fmt.Errorf("seed window: %w", err)
	}
	cal, err := c.calendar(len(vals))
	if err != nil {
		return Context{}, err
	}
	seed, err := model.NewSeries(c.Target.Name, c.Target.Freq, cal, vals)
	if err != nil {
		return Context{}, invariant("seed: %v", err)
	}

	ext := Extender{Model: c.Model, Freq: c.Target.Freq}
	oos, err := ext.PredictOutOfSample(ctx, c.Target, c.Exog, seed, c.Horizon)
	if err != nil {
		return Context{}, err
	}
	c.OutOfSample = oos
	p.logger().Debug("stage complete", "stage", c.Stage, "horizon", c.Horizon, "forecasts", len(oos))
	return c, nil
}

func (p *Pipeline) reconcile(_ context.Context, c Context) (Context, error) {
	c, err := c.advance(StageReconcile)
	if err != nil {
		return Context{}, err
	}
	all := make([]model.Series, 0, len(c.InSample)+len(c.OutOfSample))
	all = append(all, c.InSample...)
	all = append(all, c.OutOfSample...)
	c.Reconciled = Reconcile(all, c.Boundaries, c.LastKnown())
	p.logger().Debug("stage complete", "stage", c.Stage,
		"train", len(c.Reconciled.Train), "val", len(c.Reconciled.Val),
		"test", len(c.Reconciled.Test), "out_of_sample", len(c.Reconciled.OutOfSample))
	return c, nil
}

func (p *Pipeline) bestForecast(_ context.Context, c Context) (Context, error) {
	c, err := c.advance(StageBestForecast)
	if err != nil {
		return Context{}, err
	}
	all := make([]model.Series, 0, len(c.InSample)+len(c.OutOfSample))
	all = append(all, c.InSample...)
	all = append(all, c.OutOfSample...)

	best, err := BuildBest(c.Target.Name, c.Target.Freq, all)
	if err != nil {
		return Context{}, err
	}
	k := c.Model.InputSize()
	if want := c.Target.Len() - k + c.Horizon; best.Len() != want {
		return Context{}, invariant("best forecast has %d points, expected %d", best.Len(), want)
	}
	if err := CheckBest(best, c.Boundaries, c.Split, k, c.Horizon); err != nil {
		return Context{}, err
	}
	m, err := BestMetrics(p.metricNames(), best, c.Boundaries, c.Split)
	if err != nil {
		return Context{}, err
	}
	c.Best = best
	c.Metrics = m
	p.logger().Debug("stage complete", "stage", c.Stage, "points", best.Len())
	return c, nil
}
