// Package neural implements the LSTM, GRU and NHITS variants. Training and
// inference run on an external neural-forecast service; this package owns
// the HTTP client, hyperparameter validation and the model handle.
// All client methods are context-aware and respect the shared rate limiter.
// Fit is sent exactly once. Predict is retried on 429 and 5xx answers.
package neural

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	maxRetries  = 4
	baseBackoff = 500 * time.Millisecond
)

// ErrUpstream reports a failure of the neural-forecast service.
var ErrUpstream = errors.New("neural service error")

// Client is the neural-forecast service HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64) *Client {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// ─── Wire types ───────────────────────────────────────────────────────────────

// Row is one record of the long-format frame sent to the service: ds, y and
// one key per exogenous column. Missing values are sent as null.
type Row map[string]any

// FitRequest asks the service to train a model.
type FitRequest struct {
	Model       string   `json:"model"`
	Freq        string   `json:"freq"`
	H           int      `json:"h"`
	InputSize   int      `json:"input_size"`
	ValSize     int      `json:"val_size"`
	ExogColumns []string `json:"exog_columns,omitempty"`
	Hyperparams Params   `json:"hyperparams"`
	Data        []Row    `json:"data"`
}

type fitResponse struct {
	ModelID string `json:"model_id"`
}

// PredictRequest asks the service to forecast from one window.
type PredictRequest struct {
	ModelID string `json:"model_id"`
	Freq    string `json:"freq"`
	H       int    `json:"h"`
	Data    []Row  `json:"data"`
}

type predictResponse struct {
	Forecast []float64 `json:"forecast"`
}

// ─── Endpoints ────────────────────────────────────────────────────────────────

// Fit trains a model remotely and returns its id.
func (c *Client) Fit(ctx context.Context, req FitRequest) (string, error) {
	var resp fitResponse
	if err := c.post(ctx, "v1/fit", req, &resp, 1); err != nil {
		return "", fmt.Errorf("fit %s: %w", req.Model, err)
	}
	if resp.ModelID == "" {
		return "", fmt.Errorf("fit %s: %w: empty model id", req.Model, ErrUpstream)
	}
	return resp.ModelID, nil
}

// Predict returns exactly req.H forecast values.
func (c *Client) Predict(ctx context.Context, req PredictRequest) ([]float64, error) {
	var resp predictResponse
	if err := c.post(ctx, "v1/predict", req, &resp, maxRetries); err != nil {
		return nil, fmt.Errorf("predict %s: %w", req.ModelID, err)
	}
	if len(resp.Forecast) != req.H {
		return nil, fmt.Errorf("predict %s: %w: expected %d values, got %d",
			req.ModelID, ErrUpstream, req.H, len(resp.Forecast))
	}
	return resp.Forecast, nil
}

// Health checks that the service answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}
	return nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// post sends a JSON body at most attempts times. Only 429 and 5xx answers
// are retried; transport errors and timeouts fail on the first try.
func (c *Client) post(ctx context.Context, endpoint string, in, out interface{}, attempts int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	reqURL := c.baseURL + endpoint
	slog.Debug("neural request", "url", reqURL, "bytes", len(body))

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "imfs/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: http: %v", ErrUpstream, err)
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
		}
		slog.Debug("neural response", "status", resp.StatusCode, "bytes", len(raw))

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Detail string `json:"detail"`
			}
			_ = json.Unmarshal(raw, &apiErr)
			if apiErr.Detail != "" {
				return fmt.Errorf("%w: %s", ErrUpstream, apiErr.Detail)
			}
			return fmt.Errorf("%w: HTTP %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(raw)))
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
		}
		return nil
	}
	if attempts == 1 {
		return fmt.Errorf("%w: %v", ErrUpstream, lastErr)
	}
	return fmt.Errorf("%w: after %d attempts: %v", ErrUpstream, attempts, lastErr)
}
