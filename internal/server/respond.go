package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/forecast"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/fred"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models/neural"
)

// errBadRequest marks request errors found by the handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// errorBody is the payload of every non-2xx JSON response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeJSON encodes v with go-json. gin's own renderer uses encoding/json.
func writeJSON(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.Data(http.StatusInternalServerError, "application/json; charset=utf-8",
			[]byte(`{"error":"encoding response"}`))
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	body := errorBody{Error: http.StatusText(status), Details: err.Error()}
	data, _ := json.Marshal(body)
	c.Abort()
	c.Data(status, "application/json; charset=utf-8", data)
}

// statusOf maps an error from any layer onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest), forecast.IsClientError(err):
		return http.StatusBadRequest
	case app.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, fred.ErrUpstream), errors.Is(err, neural.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, fred.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	abort(c, statusOf(err), err)
}

// bind decodes the request body into v. An empty body leaves v untouched.
func bind(c *gin.Context, v any) error {
	data, err := c.GetRawData()
	if err != nil {
		return badRequest("reading body: %v", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}
