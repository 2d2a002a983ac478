package arimax_test

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models/arimax"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

func series(values []float64) model.Series {
	s := model.Series{Name: "y", Freq: model.FreqDay}
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		s.Obs = append(s.Obs, model.Observation{Date: start.AddDate(0, 0, i), Value: v})
	}
	return s
}

func fit(t *testing.T, p arimax.Params, target model.Series, exog *model.Exog) models.Fitted {
	t.Helper()
	v := arimax.NewVariant(p)
	require.NoError(t, v.Validate(models.Sizes{Train: target.Len()}))
	f, err := v.Fit(context.Background(), models.TrainingSet{
		Train: split.Segment{Target: target, Exog: exog},
		Freq:  target.Freq,
	})
	require.NoError(t, err)
	return f
}

func TestFit_RecoversAR1(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	y := make([]float64, 600)
	for i := 1; i < len(y); i++ {
		y[i] = 0.6*y[i-1] + rng.NormFloat64()
	}
	f := fit(t, arimax.Params{P: 1, InputSize: 12, OutputSize: 3}, series(y), nil)

	payload, err := f.Marshal()
	require.NoError(t, err)
	loaded, err := arimax.Load(payload)
	require.NoError(t, err)

	a := loaded.(*arimax.Fitted)
	require.Len(t, a.Coef.AR, 1)
	assert.InDelta(t, 0.6, a.Coef.AR[0], 0.1)
}

func TestPredict_IntegratesTrend(t *testing.T) {
	y := make([]float64, 40)
	for i := range y {
		y[i] = 3 + 2*float64(i)
	}
	s := series(y)
	f := fit(t, arimax.Params{P: 0, D: 1, InputSize: 5, OutputSize: 3}, s, nil)

	w, err := window.Last(nil, s, 5)
	require.NoError(t, err)
	got, err := f.Predict(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, got, 3)

	last := y[len(y)-1]
	for i, v := range got {
		assert.InDelta(t, last+2*float64(i+1), v, 1e-6)
	}
}

func TestPredict_HoldsLastExogRow(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 80
	y := make([]float64, n)
	e := &model.Exog{Columns: []string{"x"}}
	s := series(make([]float64, n))
	for i := 0; i < n; i++ {
		x := rng.Float64() * 10
		y[i] = 5 + 3*x
		s.Obs[i].Value = y[i]
		e.Dates = append(e.Dates, s.Obs[i].Date)
		e.Rows = append(e.Rows, []float64{x})
	}
	f := fit(t, arimax.Params{P: 0, InputSize: 4, OutputSize: 2}, s, e)

	w, err := window.Last(e, s, 4)
	require.NoError(t, err)
	got, err := f.Predict(context.Background(), w)
	require.NoError(t, err)

	want := 5 + 3*e.Rows[n-1][0]
	assert.InDelta(t, want, got[0], 1e-4)
	assert.InDelta(t, want, got[1], 1e-4)

	_, err = f.Predict(context.Background(), window.Window{Target: w.Target})
	assert.ErrorIs(t, err, model.ErrInputShape)
}

func TestFit_MovingAverage(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	y := make([]float64, 400)
	prev := 0.0
	for i := range y {
		eps := rng.NormFloat64()
		y[i] = 1 + eps + 0.5*prev
		prev = eps
	}
	f := fit(t, arimax.Params{P: 1, Q: 1, InputSize: 10, OutputSize: 1}, series(y), nil)

	w, err := window.Last(nil, series(y), 10)
	require.NoError(t, err)
	got, err := f.Predict(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, math.IsNaN(got[0]))

	a := f.(*arimax.Fitted)
	assert.InDelta(t, 0.5, a.Coef.MA[0], 0.2)
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	v := arimax.NewVariant(arimax.Params{P: 2, D: 1, Q: 1, InputSize: 4, OutputSize: 0})
	err := v.Validate(models.Sizes{Train: 12})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "output_size must be at least 1")
	assert.Contains(t, err.Error(), "input_size 4 must exceed p+d+q = 4")
	assert.Contains(t, err.Error(), "train length 12 is below the minimum 14")
}

func TestNew_DefaultsAndOverrides(t *testing.T) {
	v, err := arimax.New([]byte(`{"p":2,"input_size":6}`))
	require.NoError(t, err)
	assert.Equal(t, models.ARIMAX, v.Kind())
	assert.Equal(t, 6, v.InputSize())
	assert.Equal(t, 1, v.OutputSize())

	_, err = arimax.New([]byte(`{"p":"two"}`))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegistryRoundTrip(t *testing.T) {
	reg := models.NewRegistry()
	reg.Register(models.ARIMAX, arimax.Factory())

	y := make([]float64, 50)
	for i := range y {
		y[i] = float64(i % 7)
	}
	f := fit(t, arimax.Params{P: 2, InputSize: 8, OutputSize: 2}, series(y), nil)

	h, err := models.Encode(f)
	require.NoError(t, err)
	loaded, err := reg.Load(h)
	require.NoError(t, err)
	assert.Equal(t, models.ARIMAX, loaded.Kind())
	assert.Equal(t, 8, loaded.InputSize())

	kind, err := models.HandleKind(h)
	require.NoError(t, err)
	assert.Equal(t, models.ARIMAX, kind)

	_, err = reg.New("prophet", nil)
	assert.ErrorIs(t, err, models.ErrUnknownKind)
}
