// Package server exposes the forecasting service over HTTP. Handlers are
// thin: they decode a request, call into app.Deps and map the error kinds
// of the lower layers onto status codes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/logging"
)

const shutdownTimeout = 30 * time.Second

// Server owns the gin engine and the dependencies its handlers share.
type Server struct {
	deps    *app.Deps
	version string
	log     *slog.Logger
	engine  *gin.Engine
}

// New builds a Server and registers every route.
func New(d *app.Deps, version string) *Server {
	s := &Server{
		deps:    d,
		version: version,
		log:     logging.WithComponent(d.Logger, "http"),
	}

	limit := rate.Inf
	if d.Config.ServerRate > 0 {
		limit = rate.Limit(d.Config.ServerRate)
	}
	burst := d.Config.ServerBurst
	if burst < 1 {
		burst = 1
	}

	r := gin.New()
	r.Use(recovery(s.log), accessLog(s.log), rateLimit(rate.NewLimiter(limit, burst)))
	s.routes(r)
	s.engine = r
	return s
}

// Handler returns the engine as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")

	// The segment after /models is a kind on fit and predict and a stored
	// model id elsewhere; the router needs one wildcard name for both.
	m := v1.Group("/models")
	m.GET("", s.listModels)
	m.POST("/:model/fit", s.fit)
	m.POST("/:model/predict", s.predict)
	m.GET("/:model", s.getModel)
	m.DELETE("/:model", s.deleteModel)
	m.GET("/:model/chart", s.modelChart)

	sr := v1.Group("/series")
	sr.GET("", s.listSeries)
	sr.GET("/:name", s.getSeries)
	sr.PUT("/:name", s.putSeries)
	sr.DELETE("/:name", s.deleteSeries)
	sr.POST("/fred/:id", s.importFRED)

	v1.POST("/diagnostics/:test", s.diagnose)
	v1.POST("/transforms/:op", s.transform)
	v1.POST("/analyze/summary", s.summary)
	v1.POST("/analyze/trend", s.trend)
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr, "version", s.version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok", "version": s.version}
	if s.deps.Config.DBPath != "" {
		body["store"] = s.deps.Config.DBPath
	}
	writeJSON(c, http.StatusOK, body)
}
