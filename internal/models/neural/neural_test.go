package neural_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models/neural"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/split"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

func monthly(n int) model.Series {
	s := model.Series{Name: "y", Freq: model.FreqMonth}
	for i := 0; i < n; i++ {
		d := time.Date(2020, time.Month(i+2), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		s.Obs = append(s.Obs, model.Observation{Date: d, Value: float64(i)})
	}
	return s
}

// fakeService records the last fit request and answers predictions with a
// constant path of length h.
type fakeService struct {
	lastFit         neural.FitRequest
	failures        int32
	calls           int32
	predictFailures int32
	predictCalls    int32
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/fit", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.calls, 1)
		if atomic.AddInt32(&f.failures, -1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &f.lastFit))
		_, _ = w.Write([]byte(`{"model_id":"m-1"}`))
	})
	mux.HandleFunc("/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.predictCalls, 1)
		if atomic.AddInt32(&f.predictFailures, -1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req neural.PredictRequest
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))
		if req.ModelID != "m-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"model not found"}`))
			return
		}
		out := make([]float64, req.H)
		for i := range out {
			out[i] = 42
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"forecast": out})
	})
	return mux
}

func setup(t *testing.T, failures int32) (*fakeService, *models.Registry) {
	t.Helper()
	fake := &fakeService{failures: failures}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	reg := models.NewRegistry()
	neural.Register(reg, neural.NewClient(srv.URL, 5*time.Second, 100))
	return fake, reg
}

func TestFitAndPredict(t *testing.T) {
	fake, reg := setup(t, 0)
	v, err := reg.New(models.NHITS, []byte(`{"input_size":6,"h":3}`))
	require.NoError(t, err)

	s := monthly(30)
	require.NoError(t, v.Validate(models.Sizes{Train: 24, Val: 6}))

	f, err := v.Fit(context.Background(), models.TrainingSet{
		Train:   split.Segment{Target: s.Slice(0, 24)},
		Val:     split.Segment{Target: s.Slice(24, 30)},
		Freq:    model.FreqMonth,
		Horizon: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "nhits", fake.lastFit.Model)
	assert.Equal(t, "ME", fake.lastFit.Freq)
	assert.Equal(t, 6, fake.lastFit.ValSize)
	assert.Len(t, fake.lastFit.Data, 30)
	assert.Equal(t, "2020-01-31", fake.lastFit.Data[0]["ds"])

	w, err := window.Last(nil, s, 6)
	require.NoError(t, err)
	got, err := f.Predict(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, []float64{42, 42, 42}, got)

	h, err := models.Encode(f)
	require.NoError(t, err)
	loaded, err := reg.Load(h)
	require.NoError(t, err)
	assert.Equal(t, models.NHITS, loaded.Kind())
	assert.Equal(t, 3, loaded.OutputSize())
}

func TestFit_SingleAttempt(t *testing.T) {
	fake, reg := setup(t, 1)
	v, err := reg.New(models.LSTM, []byte(`{"input_size":4,"h":2}`))
	require.NoError(t, err)

	s := monthly(12)
	_, err = v.Fit(context.Background(), models.TrainingSet{
		Train: split.Segment{Target: s},
		Freq:  model.FreqMonth,
	})
	require.ErrorIs(t, err, neural.ErrUpstream)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.calls))
}

func TestFit_TimeoutIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"model_id":"late"}`))
	}))
	t.Cleanup(srv.Close)

	client := neural.NewClient(srv.URL, 100*time.Millisecond, 100)
	_, err := client.Fit(context.Background(), neural.FitRequest{Model: "lstm", Freq: "ME", H: 1})
	require.ErrorIs(t, err, neural.ErrUpstream)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestPredict_RetriesTransientErrors(t *testing.T) {
	fake, reg := setup(t, 0)
	atomic.StoreInt32(&fake.predictFailures, 1)
	h := []byte(`{"kind":"gru","payload":{"variant":"gru","params":{"input_size":3,"h":2},"model_id":"m-1","freq":"ME"}}`)
	f, err := reg.Load(h)
	require.NoError(t, err)

	w, err := window.Last(nil, monthly(5), 3)
	require.NoError(t, err)
	got, err := f.Predict(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, []float64{42, 42}, got)
	assert.EqualValues(t, 2, atomic.LoadInt32(&fake.predictCalls))
}

func TestFit_ReservedExogColumn(t *testing.T) {
	fake, reg := setup(t, 0)
	v, err := reg.New(models.GRU, []byte(`{"input_size":4,"h":2}`))
	require.NoError(t, err)

	s := monthly(12)
	col := s.Copy()
	col.Name = "ds"
	exog, err := model.ExogFromSeries([]model.Series{col})
	require.NoError(t, err)

	_, err = v.Fit(context.Background(), models.TrainingSet{
		Train: split.Segment{Target: s, Exog: exog},
		Freq:  model.FreqMonth,
	})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), `"ds"`)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fake.calls))
}

func TestPredict_UpstreamError(t *testing.T) {
	_, reg := setup(t, 0)
	h := []byte(`{"kind":"gru","payload":{"variant":"gru","params":{"input_size":3,"h":1},"model_id":"gone","freq":"ME"}}`)
	f, err := reg.Load(h)
	require.NoError(t, err)

	w, err := window.Last(nil, monthly(5), 3)
	require.NoError(t, err)
	_, err = f.Predict(context.Background(), w)
	require.ErrorIs(t, err, neural.ErrUpstream)
	assert.Contains(t, err.Error(), "model not found")
}

func TestFit_UnsupportedFrequency(t *testing.T) {
	_, reg := setup(t, 0)
	v, err := reg.New(models.GRU, nil)
	require.NoError(t, err)
	_, err = v.Fit(context.Background(), models.TrainingSet{Train: split.Segment{Target: monthly(20)}, Freq: model.FreqHour})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	_, reg := setup(t, 0)

	v, err := reg.New(models.LSTM, []byte(`{"input_size":8,"h":4,"encoder_hidden_size":0,"learning_rate":-1}`))
	require.NoError(t, err)
	err = v.Validate(models.Sizes{Train: 10, Val: 2})
	require.ErrorIs(t, err, models.ErrValidation)
	for _, want := range []string{
		"learning_rate must be positive",
		"encoder_hidden_size must be at least 1",
		"train length 10 is below input_size + h = 12",
		"validation length 2 must be 0 or at least h = 4",
	} {
		assert.Contains(t, err.Error(), want)
	}

	v, err = reg.New(models.NHITS, []byte(`{"input_size":4,"n_blocks":[1,1]}`))
	require.NoError(t, err)
	err = v.Validate(models.Sizes{Train: 100})
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "one entry per stack")

	v, err = reg.New(models.GRU, nil)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(models.Sizes{Train: 100, Val: 0}))
}
