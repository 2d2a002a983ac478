package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/analyze"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/diagnostics"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/transform"
)

// seriesBody is the common request of the stateless analysis routes.
// Either Series or Name (a stored series) must be given.
type seriesBody struct {
	Series *model.Series `json:"series"`
	Name   string        `json:"name"`

	// diagnostics
	Lags       int    `json:"lags"`
	Regression string `json:"regression"`
	FitDF      int    `json:"fit_df"`

	// transforms and trend
	Method     string `json:"method"`
	Period     int    `json:"period"`
	Order      int    `json:"order"`
	Window     int    `json:"window"`
	MinPeriods int    `json:"min_periods"`
	To         string `json:"to"`
}

func (s *Server) bindSeries(c *gin.Context) (seriesBody, model.Series, error) {
	var body seriesBody
	if err := bind(c, &body); err != nil {
		return body, model.Series{}, err
	}
	switch {
	case body.Series != nil && body.Name != "":
		return body, model.Series{}, badRequest("give either series or name, not both")
	case body.Series != nil:
		ser, err := normalizeSeries(*body.Series, "series")
		return body, ser, err
	case body.Name != "":
		ser, err := s.deps.GetSeries(body.Name)
		return body, ser, err
	}
	return body, model.Series{}, badRequest("series or name is required")
}

func (s *Server) diagnose(c *gin.Context) {
	body, ser, err := s.bindSeries(c)
	if err != nil {
		fail(c, err)
		return
	}
	opts := diagnostics.Options{Lags: body.Lags, FitDF: body.FitDF}
	switch strings.ToLower(body.Regression) {
	case "", "c", "level":
		opts.Regression = diagnostics.RegressionLevel
	case "ct", "trend":
		opts.Regression = diagnostics.RegressionTrend
	default:
		fail(c, badRequest("unknown regression %q (use c or ct)", body.Regression))
		return
	}

	vals, err := diagnostics.Values(ser)
	if err != nil {
		fail(c, badRequest("%v", err))
		return
	}
	res, err := diagnostics.Run(c.Param("test"), vals, opts)
	if err != nil {
		fail(c, badRequest("%v", err))
		return
	}
	writeJSON(c, http.StatusOK, res)
}

type transformResponse struct {
	Series   *model.Series            `json:"series,omitempty"`
	Decomp   *transform.Decomposition `json:"decomposition,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
}

func (s *Server) transform(c *gin.Context) {
	body, ser, err := s.bindSeries(c)
	if err != nil {
		fail(c, err)
		return
	}
	var (
		out  model.Series
		resp transformResponse
	)
	method := strings.ToLower(body.Method)

	switch op := strings.ToLower(c.Param("op")); op {
	case "diff":
		out, err = transform.Diff(ser, orDefault(body.Order, 1))
	case "pct-change", "pct_change":
		out, err = transform.PctChange(ser, orDefault(body.Period, 1))
	case "log":
		out, resp.Warnings = transform.Log(ser)
	case "normalize":
		m := transform.NormalizeZScore
		if method != "" {
			m = transform.NormalizeMethod(method)
		}
		out, err = transform.Normalize(ser, m)
	case "roll":
		st := transform.RollMean
		if method != "" {
			st = transform.RollStat(method)
		}
		out, err = transform.Roll(ser, body.Window, body.MinPeriods, st)
	case "resample":
		var to model.Frequency
		if to, err = freq.Parse(body.To); err != nil {
			break
		}
		m := transform.ResampleMean
		if method != "" {
			m = transform.ResampleMethod(method)
		}
		out, err = transform.Resample(ser, to, m)
	case "decompose":
		m := transform.Additive
		if method != "" {
			m = transform.DecomposeModel(method)
		}
		var d transform.Decomposition
		if d, err = transform.Decompose(ser, body.Period, m); err == nil {
			resp.Decomp = &d
		}
	default:
		err = fmt.Errorf("unknown transform %q", op)
	}
	if err != nil {
		fail(c, badRequest("%v", err))
		return
	}
	if resp.Decomp == nil {
		resp.Series = &out
	}
	writeJSON(c, http.StatusOK, resp)
}

func (s *Server) summary(c *gin.Context) {
	_, ser, err := s.bindSeries(c)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, analyze.Summarize(ser))
}

func (s *Server) trend(c *gin.Context) {
	body, ser, err := s.bindSeries(c)
	if err != nil {
		fail(c, err)
		return
	}
	m := analyze.TrendLinear
	if body.Method != "" {
		m = analyze.TrendMethod(strings.ToLower(body.Method))
	}
	tr, err := analyze.Trend(ser, m)
	if err != nil {
		fail(c, badRequest("%v", err))
		return
	}
	writeJSON(c, http.StatusOK, tr)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
