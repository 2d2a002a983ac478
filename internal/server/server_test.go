package server_test

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/config"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/logging"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, fredURL string, serverRate float64) http.Handler {
	t.Helper()
	cfg := &config.Config{
		APIKey:        "test_key",
		BaseURL:       fredURL,
		Timeout:       5 * time.Second,
		Rate:          1000,
		DBPath:        filepath.Join(t.TempDir(), "imfs.db"),
		NeuralURL:     "http://127.0.0.1:1",
		NeuralTimeout: time.Second,
		NeuralRate:    10,
		ServerRate:    serverRate,
		ServerBurst:   1,
	}
	d := app.New(cfg, logging.New("error", "text", io.Discard))
	t.Cleanup(func() { _ = d.Close() })
	return server.New(d, "test").Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// monthly returns 60 month-end observations of a damped oscillation.
func monthly(t *testing.T) model.Series {
	t.Helper()
	dates, err := freq.DateRange(time.Date(2014, 12, 31, 0, 0, 0, 0, time.UTC), model.FreqMonth, 60)
	require.NoError(t, err)
	values := make([]float64, len(dates))
	for i := range values {
		values[i] = 10 + 3*math.Sin(float64(i)/2) + 0.1*float64(i%5)
	}
	s, err := model.NewSeries("y", model.FreqMonth, dates, values)
	require.NoError(t, err)
	return s
}

func fitParams(s model.Series) model.FitParams {
	d := s.Dates()
	return model.FitParams{TrainBoundary: d[35], ValBoundary: d[47], ForecastHorizon: 3}
}

type fitResponse struct {
	ModelID string               `json:"model_id"`
	Model   string               `json:"model"`
	Info    model.ModelInfo      `json:"info"`
	Result  model.ForecastResult `json:"result"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func fit(t *testing.T, h http.Handler, save bool) fitResponse {
	t.Helper()
	s := monthly(t)
	w := do(t, h, http.MethodPost, "/api/v1/models/arimax/fit", map[string]any{
		"target":      s,
		"hyperparams": map[string]int{"p": 2, "input_size": 4, "output_size": 1},
		"fit_params":  fitParams(s),
		"save":        save,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp fitResponse
	decode(t, w, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	h := newServer(t, "", 0)
	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestFitAndPredictWithHandle(t *testing.T) {
	h := newServer(t, "", 0)
	fitted := fit(t, h, false)
	assert.Empty(t, fitted.ModelID)
	assert.NotEmpty(t, fitted.Model)
	assert.Equal(t, "arimax", fitted.Info.Kind)
	assert.Len(t, fitted.Result.Forecasts.OutOfSample, 3)
	assert.False(t, fitted.Result.BestForecast.IsEmpty())

	s := monthly(t)
	w := do(t, h, http.MethodPost, "/api/v1/models/arimax/predict", map[string]any{
		"model":      fitted.Model,
		"target":     s,
		"fit_params": fitParams(s),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pred struct {
		Result model.ForecastResult `json:"result"`
	}
	decode(t, w, &pred)
	assert.Equal(t, fitted.Result.BestForecast.Values(), pred.Result.BestForecast.Values())
}

func TestSavedModelLifecycle(t *testing.T) {
	h := newServer(t, "", 0)
	fitted := fit(t, h, true)
	require.NotEmpty(t, fitted.ModelID)

	w := do(t, h, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Models []model.ModelInfo `json:"models"`
	}
	decode(t, w, &list)
	require.Len(t, list.Models, 1)
	assert.Equal(t, fitted.ModelID, list.Models[0].ID)

	w = do(t, h, http.MethodGet, "/api/v1/models/"+fitted.ModelID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Info   model.ModelInfo       `json:"info"`
		Model  string                `json:"model"`
		Result *model.ForecastResult `json:"result"`
	}
	decode(t, w, &got)
	assert.Equal(t, fitted.Model, got.Model)
	require.NotNil(t, got.Result)

	s := monthly(t)
	w = do(t, h, http.MethodPost, "/api/v1/models/arimax/predict", map[string]any{
		"model_id":   fitted.ModelID,
		"target":     s,
		"fit_params": fitParams(s),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/models/"+fitted.ModelID+"/chart", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "echarts")

	w = do(t, h, http.MethodDelete, "/api/v1/models/"+fitted.ModelID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/models/"+fitted.ModelID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodDelete, "/api/v1/models/"+fitted.ModelID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFitRejectsBadRequests(t *testing.T) {
	h := newServer(t, "", 0)
	s := monthly(t)

	cases := map[string]struct {
		path string
		body any
	}{
		"unknown kind":       {"/api/v1/models/prophet/fit", map[string]any{"target": s, "fit_params": fitParams(s)}},
		"malformed json":     {"/api/v1/models/arimax/fit", `{"target":`},
		"missing fit params": {"/api/v1/models/arimax/fit", map[string]any{"target": s}},
		"empty target":       {"/api/v1/models/arimax/fit", map[string]any{"fit_params": fitParams(s)}},
		"zero horizon": {"/api/v1/models/arimax/fit", map[string]any{
			"target": s, "fit_params": model.FitParams{TrainBoundary: s.Dates()[35], ValBoundary: s.Dates()[47]},
		}},
		"bad hyperparams": {"/api/v1/models/arimax/fit", map[string]any{
			"target": s, "fit_params": fitParams(s), "hyperparams": map[string]any{"p": "two"},
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var e errorResponse
			decode(t, w, &e)
			assert.Equal(t, "Bad Request", e.Error)
			assert.NotEmpty(t, e.Details)
		})
	}
}

func TestPredictRejectsBadRequests(t *testing.T) {
	h := newServer(t, "", 0)
	fitted := fit(t, h, false)
	s := monthly(t)

	w := do(t, h, http.MethodPost, "/api/v1/models/lstm/predict", map[string]any{
		"model": fitted.Model, "target": s, "fit_params": fitParams(s),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "kind mismatch")

	w = do(t, h, http.MethodPost, "/api/v1/models/arimax/predict", map[string]any{
		"model": fitted.Model, "model_id": "x", "target": s, "fit_params": fitParams(s),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "both model and model_id")

	w = do(t, h, http.MethodPost, "/api/v1/models/arimax/predict", map[string]any{
		"model_id": "missing", "target": s, "fit_params": fitParams(s),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSeriesCRUD(t *testing.T) {
	h := newServer(t, "", 0)
	s := monthly(t)
	s.Freq = "M"

	w := do(t, h, http.MethodPut, "/api/v1/series/cpi", s)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/v1/series/cpi", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Series
	decode(t, w, &got)
	assert.Equal(t, "cpi", got.Name)
	assert.Equal(t, model.FreqMonth, got.Freq, "alias resolved on write")
	assert.Equal(t, 60, got.Len())

	w = do(t, h, http.MethodGet, "/api/v1/series", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"api"`)

	w = do(t, h, http.MethodDelete, "/api/v1/series/cpi", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/api/v1/series/cpi", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutSeriesInfersFrequency(t *testing.T) {
	h := newServer(t, "", 0)
	w := do(t, h, http.MethodPut, "/api/v1/series/q",
		`{"observations":[{"date":"2024-03-31","value":1},{"date":"2024-06-30","value":2},{"date":"2024-09-30","value":null}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"freq":"quarter"`)

	w = do(t, h, http.MethodPut, "/api/v1/series/q", `{"freq":"fortnight","observations":[{"date":"2024-03-31","value":1}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiagnostics(t *testing.T) {
	h := newServer(t, "", 0)
	s := monthly(t)

	w := do(t, h, http.MethodPost, "/api/v1/diagnostics/adf", map[string]any{"series": s})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Test       string `json:"test"`
		NObs       int    `json:"nobs"`
		Conclusion string `json:"conclusion"`
	}
	decode(t, w, &res)
	assert.Equal(t, "adf", res.Test)
	assert.NotEmpty(t, res.Conclusion)

	w = do(t, h, http.MethodPost, "/api/v1/diagnostics/acf", map[string]any{"series": s, "lags": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var acf struct {
		Values []float64 `json:"values"`
	}
	decode(t, w, &acf)
	assert.Len(t, acf.Values, 6)

	w = do(t, h, http.MethodPost, "/api/v1/diagnostics/bogus", map[string]any{"series": s})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/diagnostics/kpss", map[string]any{"series": s, "regression": "quadratic"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransforms(t *testing.T) {
	h := newServer(t, "", 0)
	s := monthly(t)

	w := do(t, h, http.MethodPost, "/api/v1/transforms/diff", map[string]any{"series": s})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Series model.Series `json:"series"`
	}
	decode(t, w, &out)
	assert.Equal(t, 59, out.Series.Len())

	w = do(t, h, http.MethodPost, "/api/v1/transforms/resample", map[string]any{"series": s, "to": "quarter", "method": "last"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &out)
	assert.Equal(t, 20, out.Series.Len())
	assert.Equal(t, model.FreqQuarter, out.Series.Freq)

	w = do(t, h, http.MethodPost, "/api/v1/transforms/decompose", map[string]any{"series": s, "period": 12})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dec struct {
		Decomposition struct {
			Period   int          `json:"period"`
			Seasonal model.Series `json:"seasonal"`
		} `json:"decomposition"`
	}
	decode(t, w, &dec)
	assert.Equal(t, 12, dec.Decomposition.Period)
	assert.Equal(t, 60, dec.Decomposition.Seasonal.Len())

	w = do(t, h, http.MethodPost, "/api/v1/transforms/roll", map[string]any{"series": s})
	assert.Equal(t, http.StatusBadRequest, w.Code, "window is required")

	w = do(t, h, http.MethodPost, "/api/v1/transforms/smooth", map[string]any{"series": s})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeStoredSeries(t *testing.T) {
	h := newServer(t, "", 0)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/v1/series/y", monthly(t)).Code)

	w := do(t, h, http.MethodPost, "/api/v1/analyze/summary", map[string]any{"name": "y"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum struct {
		Count int `json:"count"`
	}
	decode(t, w, &sum)
	assert.Equal(t, 60, sum.Count)

	w = do(t, h, http.MethodPost, "/api/v1/analyze/trend", map[string]any{"name": "y", "method": "theil-sen"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"method":"theil-sen"`)

	w = do(t, h, http.MethodPost, "/api/v1/analyze/summary", map[string]any{"name": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/analyze/summary", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportFRED(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/series", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("series_id") == "BROKEN" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error_message":"Bad Request.  Invalid api_key."}`)
			return
		}
		_, _ = io.WriteString(w, `{"seriess":[{"id":"UNRATE","title":"Unemployment Rate","frequency_short":"M"}]}`)
	})
	mux.HandleFunc("/series/observations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"observations":[{"date":"2024-01-01","value":"3.7"},{"date":"2024-02-01","value":"3.9"}]}`)
	})
	fredSrv := httptest.NewServer(mux)
	defer fredSrv.Close()

	h := newServer(t, fredSrv.URL, 0)
	w := do(t, h, http.MethodPost, "/api/v1/series/fred/unrate", map[string]string{"name": "jobless"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"name":"jobless"`)

	w = do(t, h, http.MethodGet, "/api/v1/series/jobless", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/series/fred/broken", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/series/fred/unrate", map[string]string{"freq": "weekly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	h := newServer(t, "", 0.001)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)

	w := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
