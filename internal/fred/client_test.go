package fred_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/fred"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(baseURL string) *fred.Client {
	return fred.NewClient("test_key", baseURL, 5*time.Second, 1000, false)
}

func gdpMeta(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"seriess": []map[string]interface{}{{
			"id": "GDP", "title": "Gross Domestic Product",
			"frequency": "Quarterly", "frequency_short": "Q",
			"units": "Billions of Dollars", "popularity": 92,
		}},
	})
}

func TestGetSeries(t *testing.T) {
	var gotKey, gotType, gotID string
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			gotKey, gotType, gotID = q.Get("api_key"), q.Get("file_type"), q.Get("series_id")
			gdpMeta(w, r)
		},
	})

	meta, err := newClient(srv.URL).GetSeries(context.Background(), "gdp")
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if gotKey != "test_key" || gotType != "json" || gotID != "GDP" {
		t.Errorf("query params: api_key=%q file_type=%q series_id=%q", gotKey, gotType, gotID)
	}
	if meta.ID != "GDP" || meta.Title != "Gross Domestic Product" || meta.Popularity != 92 {
		t.Errorf("unexpected meta: %+v", meta)
	}
	if meta.Freq != model.FreqQuarter {
		t.Errorf("Freq = %q, want quarter", meta.Freq)
	}
}

func TestGetSeriesNotFound(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error_message": "Bad Request.  The series does not exist.",
			})
		},
	})
	_, err := newClient(srv.URL).GetSeries(context.Background(), "FAKESERIES")
	if !errors.Is(err, fred.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetSeriesBadRequestIsUpstream(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_message": "Bad Request.  Invalid api_key."})
		},
	})
	_, err := newClient(srv.URL).GetSeries(context.Background(), "GDP")
	if !errors.Is(err, fred.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestGetObservations(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series/observations": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"observations": []map[string]string{
					{"date": "2024-01-01", "value": "28623.5"},
					{"date": "2024-04-01", "value": "29053.2"},
					{"date": "2024-07-01", "value": "."},
				},
			})
		},
	})

	s, err := newClient(srv.URL).GetObservations(context.Background(), "GDP", fred.ObsOptions{})
	if err != nil {
		t.Fatalf("GetObservations: %v", err)
	}
	if s.Name != "GDP" || s.Len() != 3 {
		t.Fatalf("unexpected series: name=%q len=%d", s.Name, s.Len())
	}
	if s.Obs[0].Value != 28623.5 {
		t.Errorf("first value = %v", s.Obs[0].Value)
	}
	if !math.IsNaN(s.Obs[2].Value) {
		t.Errorf("'.' should parse as NaN, got %v", s.Obs[2].Value)
	}
	if s.Freq != model.FreqQuarter {
		t.Errorf("inferred Freq = %q, want quarter", s.Freq)
	}
}

func TestGetObservationsParams(t *testing.T) {
	var gotStart, gotEnd, gotFreq, gotAgg string
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series/observations": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			gotStart, gotEnd = q.Get("observation_start"), q.Get("observation_end")
			gotFreq, gotAgg = q.Get("frequency"), q.Get("aggregation_method")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"observations": []map[string]string{}})
		},
	})

	s, err := newClient(srv.URL).GetObservations(context.Background(), "GDP", fred.ObsOptions{
		Start: "2020-01-01", End: "2024-12-31", Freq: model.FreqYear, Agg: "mean",
	})
	if err != nil {
		t.Fatalf("GetObservations: %v", err)
	}
	if gotStart != "2020-01-01" || gotEnd != "2024-12-31" || gotFreq != "a" || gotAgg != "avg" {
		t.Errorf("params: start=%q end=%q frequency=%q agg=%q", gotStart, gotEnd, gotFreq, gotAgg)
	}
	if s.Freq != model.FreqYear {
		t.Errorf("Freq = %q, want year", s.Freq)
	}
}

func TestGetObservationsUnsupportedFrequency(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1").GetObservations(context.Background(), "GDP", fred.ObsOptions{Freq: model.FreqHour})
	if !errors.Is(err, freq.ErrUnsupportedFrequency) {
		t.Fatalf("expected ErrUnsupportedFrequency, got %v", err)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var attempts int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series": func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			gdpMeta(w, r)
		},
	})
	if _, err := newClient(srv.URL).GetSeries(context.Background(), "GDP"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestNoAPIKey(t *testing.T) {
	c := fred.NewClient("", "http://127.0.0.1:1", time.Second, 10, false)
	if _, err := c.GetSeries(context.Background(), "GDP"); !errors.Is(err, fred.ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestFetchUsesNativeFrequency(t *testing.T) {
	var gotFreq string
	srv := mockServer(t, map[string]http.HandlerFunc{
		"/series": gdpMeta,
		"/series/observations": func(w http.ResponseWriter, r *http.Request) {
			gotFreq = r.URL.Query().Get("frequency")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"observations": []map[string]string{{"date": "2024-01-01", "value": "1"}},
			})
		},
	})
	meta, s, err := newClient(srv.URL).Fetch(context.Background(), "GDP", fred.ObsOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if meta.ID != "GDP" || s.Freq != model.FreqQuarter || gotFreq != "q" {
		t.Errorf("meta=%+v freq=%q requested=%q", meta, s.Freq, gotFreq)
	}
}

func TestFrequencyOf(t *testing.T) {
	cases := map[string]model.Frequency{"M": model.FreqMonth, "a": model.FreqYear, " D ": model.FreqDay}
	for in, want := range cases {
		if got, ok := fred.FrequencyOf(in); !ok || got != want {
			t.Errorf("FrequencyOf(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := fred.FrequencyOf("W"); ok {
		t.Error("weekly should have no series frequency")
	}
}
