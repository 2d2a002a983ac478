// Package fred imports series from the Federal Reserve Bank of St. Louis
// (FRED) API. All methods are context-aware, respect the shared rate
// limiter, and retry on transient errors (429, 5xx).
package fred

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred/"
	maxRetries     = 4
	baseBackoff    = 500 * time.Millisecond
)

var (
	// ErrUpstream reports a FRED failure that is not the caller's fault.
	ErrUpstream = errors.New("fred upstream error")
	// ErrNotFound reports an unknown series id.
	ErrNotFound = errors.New("fred series not found")
	// ErrNoAPIKey is returned before any request when no key is configured.
	ErrNoAPIKey = errors.New("fred api key not configured")
)

// Client is the FRED API HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	debug      bool
}

// NewClient creates a Client with the given API key and timeout.
func NewClient(apiKey, baseURL string, timeout time.Duration, ratePerSec float64, debug bool) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		debug:   debug,
	}
}

// ─── Frequencies ──────────────────────────────────────────────────────────────

// shortFreq maps FRED frequency_short codes to series frequencies. Weekly
// and biweekly series have no counterpart.
var shortFreq = map[string]model.Frequency{
	"D":  model.FreqDay,
	"M":  model.FreqMonth,
	"Q":  model.FreqQuarter,
	"A":  model.FreqYear,
	"SA": "",
	"W":  "",
	"BW": "",
}

// requestFreq maps a series frequency to the FRED aggregation code.
var requestFreq = map[model.Frequency]string{
	model.FreqDay:     "d",
	model.FreqMonth:   "m",
	model.FreqQuarter: "q",
	model.FreqYear:    "a",
}

// FrequencyOf maps a FRED frequency_short code. ok is false for codes with
// no series frequency.
func FrequencyOf(short string) (model.Frequency, bool) {
	f := shortFreq[strings.ToUpper(strings.TrimSpace(short))]
	return f, f != ""
}

// ─── Observations ─────────────────────────────────────────────────────────────

// ObsOptions holds optional parameters for GetObservations.
type ObsOptions struct {
	Start string          // YYYY-MM-DD
	End   string          // YYYY-MM-DD
	Freq  model.Frequency // aggregate to this frequency; empty keeps the native one
	Units string          // lin|chg|ch1|pch|pc1|pca|cch|cca|log
	Agg   string          // avg|sum|eop
	Limit int
}

// aggMap maps CLI-friendly aggregation names to FRED API values.
var aggMap = map[string]string{
	"avg": "avg", "average": "avg", "mean": "avg",
	"sum": "sum",
	"eop": "eop", "end": "eop", "last": "eop",
}

// GetObservations fetches the observations of one series. Missing values
// ("." in FRED) become NaN. The returned series carries opts.Freq when set
// and otherwise the frequency inferred from the dates.
func (c *Client) GetObservations(ctx context.Context, seriesID string, opts ObsOptions) (model.Series, error) {
	id := strings.ToUpper(seriesID)
	params := url.Values{}
	params.Set("series_id", id)
	if opts.Start != "" {
		params.Set("observation_start", opts.Start)
	}
	if opts.End != "" {
		params.Set("observation_end", opts.End)
	}
	if opts.Freq != "" {
		code, ok := requestFreq[opts.Freq]
		if !ok {
			return model.Series{}, fmt.Errorf("observations %s: %w: %s", id, freq.ErrUnsupportedFrequency, opts.Freq)
		}
		params.Set("frequency", code)
	}
	if opts.Units != "" {
		params.Set("units", strings.ToLower(opts.Units))
	}
	if opts.Agg != "" {
		if v, ok := aggMap[strings.ToLower(opts.Agg)]; ok {
			params.Set("aggregation_method", v)
		}
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var raw struct {
		Observations []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"observations"`
	}
	if err := c.get(ctx, "series/observations", params, &raw); err != nil {
		return model.Series{}, fmt.Errorf("observations %s: %w", id, err)
	}

	s := model.Series{Name: id, Freq: opts.Freq}
	for _, o := range raw.Observations {
		date, err := util.ParseDate(o.Date)
		if err != nil {
			slog.Warn("skipping malformed date", "series", id, "date", o.Date)
			continue
		}
		s.Obs = append(s.Obs, model.Observation{Date: date, Value: util.ParseObsValue(o.Value)})
	}
	if s.Freq == "" {
		if f, ok := freq.Infer(s.Dates()); ok {
			s.Freq = f
		}
	}
	return s, nil
}

// ─── Series ───────────────────────────────────────────────────────────────────

// Meta describes a FRED series.
type Meta struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	ObservationStart   string          `json:"observation_start"`
	ObservationEnd     string          `json:"observation_end"`
	Frequency          string          `json:"frequency"`
	Freq               model.Frequency `json:"freq,omitempty"` // empty for weekly and biweekly
	Units              string          `json:"units"`
	SeasonalAdjustment string          `json:"seasonal_adjustment"`
	LastUpdated        string          `json:"last_updated"`
	Popularity         int             `json:"popularity"`
	Notes              string          `json:"notes,omitempty"`
}

type rawSeriesMeta struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	ObservationStart   string `json:"observation_start"`
	ObservationEnd     string `json:"observation_end"`
	Frequency          string `json:"frequency"`
	FrequencyShort     string `json:"frequency_short"`
	Units              string `json:"units"`
	SeasonalAdjustment string `json:"seasonal_adjustment"`
	LastUpdated        string `json:"last_updated"`
	Popularity         int    `json:"popularity"`
	Notes              string `json:"notes"`
}

// GetSeries fetches metadata for a series.
func (c *Client) GetSeries(ctx context.Context, seriesID string) (*Meta, error) {
	id := strings.ToUpper(seriesID)
	params := url.Values{}
	params.Set("series_id", id)

	var raw struct {
		Seriess []rawSeriesMeta `json:"seriess"`
	}
	if err := c.get(ctx, "series", params, &raw); err != nil {
		return nil, fmt.Errorf("series %s: %w", id, err)
	}
	if len(raw.Seriess) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r := raw.Seriess[0]
	f, _ := FrequencyOf(r.FrequencyShort)
	return &Meta{
		ID:                 r.ID,
		Title:              r.Title,
		ObservationStart:   r.ObservationStart,
		ObservationEnd:     r.ObservationEnd,
		Frequency:          r.Frequency,
		Freq:               f,
		Units:              r.Units,
		SeasonalAdjustment: r.SeasonalAdjustment,
		LastUpdated:        r.LastUpdated,
		Popularity:         r.Popularity,
		Notes:              r.Notes,
	}, nil
}

// Fetch returns the metadata and observations of a series. When opts.Freq
// is empty the native frequency from the metadata is used.
func (c *Client) Fetch(ctx context.Context, seriesID string, opts ObsOptions) (*Meta, model.Series, error) {
	meta, err := c.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, model.Series{}, err
	}
	if opts.Freq == "" {
		opts.Freq = meta.Freq
	}
	s, err := c.GetObservations(ctx, seriesID, opts)
	if err != nil {
		return nil, model.Series{}, err
	}
	return meta, s, nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request to the FRED API, handling rate limiting and retries.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	if c.debug {
		safe := strings.Replace(reqURL, c.apiKey, "REDACTED", 1)
		slog.Debug("fred request", "url", safe)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "imfs/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}
		if c.debug {
			slog.Debug("fred response", "status", resp.StatusCode, "bytes", len(body))
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error_message"`
			}
			_ = json.Unmarshal(body, &apiErr)
			msg := apiErr.Error
			if msg == "" {
				msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			if strings.Contains(strings.ToLower(msg), "does not exist") {
				return fmt.Errorf("%w: %s", ErrNotFound, msg)
			}
			return fmt.Errorf("%w: %s", ErrUpstream, msg)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
		}
		return nil
	}
	return fmt.Errorf("%w: after %d attempts: %v", ErrUpstream, maxRetries, lastErr)
}
