package server

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/chart"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
)

type fitBody struct {
	Target      model.Series     `json:"target"`
	Exog        []model.Series   `json:"exog"`
	Hyperparams json.RawMessage  `json:"hyperparams"`
	FitParams   *model.FitParams `json:"fit_params"`
	Save        bool             `json:"save"`
	Holidays    bool             `json:"holidays"`
}

type fitResponse struct {
	ModelID string               `json:"model_id,omitempty"`
	Model   string               `json:"model"`
	Info    *model.ModelInfo     `json:"info,omitempty"`
	Result  model.ForecastResult `json:"result"`
}

type predictBody struct {
	ModelID   string           `json:"model_id"`
	Model     json.RawMessage  `json:"model"`
	Target    model.Series     `json:"target"`
	Exog      []model.Series   `json:"exog"`
	FitParams *model.FitParams `json:"fit_params"`
	Holidays  bool             `json:"holidays"`
}

type predictResponse struct {
	ModelID string               `json:"model_id,omitempty"`
	Result  model.ForecastResult `json:"result"`
}

type modelResponse struct {
	Info   model.ModelInfo       `json:"info"`
	Model  string                `json:"model"`
	Result *model.ForecastResult `json:"result,omitempty"`
}

// kindParam resolves the :model segment of fit and predict routes.
func (s *Server) kindParam(c *gin.Context) (models.Kind, error) {
	k := models.Kind(strings.ToLower(c.Param("model")))
	for _, known := range s.deps.Registry.Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", badRequest("unknown model kind %q", k)
}

// inputs validates and normalizes the target and exogenous series shared by
// fit and predict bodies.
func inputs(target model.Series, exog []model.Series, p *model.FitParams) (model.Series, *model.Exog, error) {
	if p == nil {
		return model.Series{}, nil, badRequest("fit_params is required")
	}
	t, err := normalizeSeries(target, "target")
	if err != nil {
		return model.Series{}, nil, err
	}
	cols := make([]model.Series, len(exog))
	for i, e := range exog {
		if cols[i], err = normalizeSeries(e, ""); err != nil {
			return model.Series{}, nil, err
		}
	}
	ex, err := model.ExogFromSeries(cols)
	if err != nil {
		return model.Series{}, nil, badRequest("%v", err)
	}
	return t, ex, nil
}

func (s *Server) fit(c *gin.Context) {
	kind, err := s.kindParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	var body fitBody
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}
	target, exog, err := inputs(body.Target, body.Exog, body.FitParams)
	if err != nil {
		fail(c, err)
		return
	}
	hp := []byte(body.Hyperparams)
	if t := bytes.TrimSpace(hp); len(t) == 0 || string(t) == "null" {
		hp = nil
	}

	rep, err := s.deps.Fit(c.Request.Context(), app.FitRequest{
		Kind:        kind,
		Hyperparams: hp,
		Target:      target,
		Exog:        exog,
		Params:      *body.FitParams,
		Holidays:    body.Holidays,
		Save:        body.Save,
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, fitResponse{
		ModelID: rep.Model.ID,
		Model:   rep.Handle,
		Info:    rep.Model,
		Result:  rep.Result,
	})
}

// handleFrom accepts the model field either as a JSON string (base64 or
// escaped handle JSON) or as the handle object itself.
func handleFrom(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '{' {
		return raw, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil, badRequest("model must be a string or an object")
	}
	return app.DecodeHandle(str)
}

func (s *Server) predict(c *gin.Context) {
	kind, err := s.kindParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	var body predictBody
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}
	handle, err := handleFrom(body.Model)
	if err != nil {
		fail(c, err)
		return
	}
	if (body.ModelID == "") == (handle == nil) {
		fail(c, badRequest("exactly one of model_id and model is required"))
		return
	}
	target, exog, err := inputs(body.Target, body.Exog, body.FitParams)
	if err != nil {
		fail(c, err)
		return
	}

	// The path kind must match the model being applied.
	var got models.Kind
	if handle != nil {
		if got, err = models.HandleKind(handle); err != nil {
			fail(c, err)
			return
		}
	} else {
		rec, err := s.deps.GetModel(body.ModelID)
		if err != nil {
			fail(c, err)
			return
		}
		got = models.Kind(rec.Info.Kind)
	}
	if got != kind {
		fail(c, badRequest("model is %s, not %s", got, kind))
		return
	}

	rep, err := s.deps.Predict(c.Request.Context(), app.PredictRequest{
		ModelID:  body.ModelID,
		Handle:   handle,
		Target:   target,
		Exog:     exog,
		Params:   *body.FitParams,
		Holidays: body.Holidays,
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, predictResponse{ModelID: body.ModelID, Result: rep.Result})
}

func (s *Server) listModels(c *gin.Context) {
	if err := s.deps.OpenStore(); err != nil {
		fail(c, err)
		return
	}
	infos, err := s.deps.Store.ListModels()
	if err != nil {
		fail(c, err)
		return
	}
	if infos == nil {
		infos = []model.ModelInfo{}
	}
	writeJSON(c, http.StatusOK, gin.H{"models": infos})
}

func (s *Server) getModel(c *gin.Context) {
	rec, err := s.deps.GetModel(c.Param("model"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, modelResponse{
		Info:   rec.Info,
		Model:  app.EncodeHandle(rec.Handle),
		Result: rec.Result,
	})
}

func (s *Server) deleteModel(c *gin.Context) {
	if err := s.deps.OpenStore(); err != nil {
		fail(c, err)
		return
	}
	if err := s.deps.Store.DeleteModel(c.Param("model")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// modelChart renders the stored forecast of a model as an HTML page. The
// optional series query parameter overlays a stored series as actuals.
func (s *Server) modelChart(c *gin.Context) {
	rec, err := s.deps.GetModel(c.Param("model"))
	if err != nil {
		fail(c, err)
		return
	}
	if rec.Result == nil {
		fail(c, badRequest("model %s has no stored forecast", rec.Info.ID))
		return
	}
	var actual model.Series
	if name := c.Query("series"); name != "" {
		if actual, err = s.deps.GetSeries(name); err != nil {
			fail(c, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := chart.ForecastPage(&buf, actual, *rec.Result); err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
