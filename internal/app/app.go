// Package app wires together configuration, the model registry, the
// forecasting pipeline, the store and the API clients into a single Deps
// struct that commands and HTTP handlers receive at runtime.
package app

import (
	"fmt"
	"log/slog"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/config"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/forecast"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/fred"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/logging"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models/arimax"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models/neural"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions
// and server handlers. Store is nil until OpenStore is called.
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	FRED     *fred.Client
	Neural   *neural.Client
	Registry *models.Registry
	Pipeline *forecast.Pipeline
	Store    *store.Store
}

// NewRegistry returns a registry with every model variant installed. The
// neural variants train through client.
func NewRegistry(client *neural.Client) *models.Registry {
	reg := models.NewRegistry()
	reg.Register(models.ARIMAX, arimax.Factory())
	neural.Register(reg, client)
	return reg
}

// New builds a Deps from resolved config. logger may be nil, in which case
// slog.Default is used.
func New(cfg *config.Config, logger *slog.Logger) *Deps {
	if logger == nil {
		logger = slog.Default()
	}
	nc := neural.NewClient(cfg.NeuralURL, cfg.NeuralTimeout, cfg.NeuralRate)
	reg := NewRegistry(nc)
	pipe := forecast.NewPipeline(reg)
	pipe.Logger = logging.WithComponent(logger, "forecast")

	return &Deps{
		Config:   cfg,
		Logger:   logger,
		FRED:     fred.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.Rate, cfg.Debug),
		Neural:   nc,
		Registry: reg,
		Pipeline: pipe,
	}
}

// OpenStore opens the bbolt store at Config.DBPath. Calling it again is a
// no-op.
func (d *Deps) OpenStore() error {
	if d.Store != nil {
		return nil
	}
	if d.Config.DBPath == "" {
		return fmt.Errorf("no database path configured (set db_path or %s)", config.EnvDBPath)
	}
	st, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	d.Store = st
	return nil
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}
