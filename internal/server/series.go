package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/fred"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/store"
)

// normalizeSeries resolves frequency aliases, infers a missing frequency
// and sorts observations by date. name replaces an empty series name.
func normalizeSeries(s model.Series, name string) (model.Series, error) {
	if s.IsEmpty() {
		if name == "" {
			name = s.Name
		}
		return model.Series{}, badRequest("series %q has no observations", name)
	}
	out := s.Copy()
	if out.Name == "" {
		out.Name = name
	}
	sort.SliceStable(out.Obs, func(i, j int) bool { return out.Obs[i].Date.Before(out.Obs[j].Date) })

	if out.Freq == "" {
		f, ok := freq.Infer(out.Dates())
		if !ok {
			return model.Series{}, badRequest("series %q: freq is missing and cannot be inferred from the dates", out.Name)
		}
		out.Freq = f
		return out, nil
	}
	f, err := freq.Parse(string(out.Freq))
	if err != nil {
		return model.Series{}, badRequest("series %q: %v", out.Name, err)
	}
	out.Freq = f
	return out, nil
}

func (s *Server) listSeries(c *gin.Context) {
	if err := s.deps.OpenStore(); err != nil {
		fail(c, err)
		return
	}
	metas, err := s.deps.Store.ListSeries()
	if err != nil {
		fail(c, err)
		return
	}
	if metas == nil {
		metas = []store.SeriesMeta{}
	}
	writeJSON(c, http.StatusOK, gin.H{"series": metas})
}

func (s *Server) getSeries(c *gin.Context) {
	ser, err := s.deps.GetSeries(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ser)
}

// putSeries stores the body under the path name. The source query
// parameter is recorded with it.
func (s *Server) putSeries(c *gin.Context) {
	var body model.Series
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}
	name := c.Param("name")
	body.Name = name
	ser, err := normalizeSeries(body, name)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.deps.OpenStore(); err != nil {
		fail(c, err)
		return
	}
	if err := s.deps.Store.PutSeries(ser, c.DefaultQuery("source", "api")); err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"name": ser.Name, "freq": ser.Freq, "count": ser.Len()})
}

func (s *Server) deleteSeries(c *gin.Context) {
	if err := s.deps.OpenStore(); err != nil {
		fail(c, err)
		return
	}
	if err := s.deps.Store.DeleteSeries(c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type importBody struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
	Freq  string `json:"freq"`
	Units string `json:"units"`
	Agg   string `json:"agg"`
}

// importFRED fetches a FRED series into the store. The body is optional.
func (s *Server) importFRED(c *gin.Context) {
	var body importBody
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}
	opts := fred.ObsOptions{Start: body.Start, End: body.End, Units: body.Units, Agg: body.Agg}
	if body.Freq != "" {
		f, err := freq.Parse(body.Freq)
		if err != nil {
			fail(c, badRequest("%v", err))
			return
		}
		opts.Freq = f
	}

	meta, ser, err := s.deps.ImportFRED(c.Request.Context(), strings.TrimSpace(c.Param("id")), body.Name, opts)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"name":  ser.Name,
		"freq":  ser.Freq,
		"count": ser.Len(),
		"meta":  meta,
	})
}
