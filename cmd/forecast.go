package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
)

// forecastFlags are shared by fit and predict.
type forecastFlags struct {
	input      string
	series     string
	exog       string
	exogSeries []string
	train      string
	val        string
	horizon    int
	holidays   bool
}

func (f *forecastFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.input, "input", "", "target series JSONL file (default: stdin)")
	fl.StringVar(&f.series, "series", "", "use a stored series as the target")
	fl.StringVar(&f.exog, "exog", "", "exogenous JSONL file, one row per target date")
	fl.StringSliceVar(&f.exogSeries, "exog-series", nil, "stored series to use as exogenous columns")
	fl.StringVar(&f.train, "train-boundary", "", "last date of the training segment (YYYY-MM-DD)")
	fl.StringVar(&f.val, "val-boundary", "", "last date of the validation segment (YYYY-MM-DD)")
	fl.IntVar(&f.horizon, "horizon", 1, "out-of-sample periods to forecast")
	fl.BoolVar(&f.holidays, "holidays", false, "add a US federal holiday count column to the exogenous table")
}

func (f *forecastFlags) inputs(deps *app.Deps) (model.Series, *model.Exog, model.FitParams, error) {
	params, err := parseFitParams(f.train, f.val, f.horizon)
	if err != nil {
		return model.Series{}, nil, model.FitParams{}, err
	}
	target, err := readSeries(deps, f.input, f.series)
	if err != nil {
		return model.Series{}, nil, model.FitParams{}, err
	}
	if target.Name == "" {
		target.Name = "target"
	}
	exog, err := readExog(deps, f.exog, f.exogSeries, target)
	if err != nil {
		return model.Series{}, nil, model.FitParams{}, err
	}
	return target, exog, params, nil
}

// ─── fit ──────────────────────────────────────────────────────────────────────

var (
	fitFlags       forecastFlags
	fitHyperparams string
	fitSave        bool
	fitHandleOut   string
)

var fitCmd = &cobra.Command{
	Use:   "fit <KIND>",
	Short: "Fit a model and forecast train, validation, test and future periods",
	Long: `Fit trains one model variant on the target series and returns its rolling
window forecasts, the reconciled best forecast and accuracy metrics.

Kinds: arimax (in process), lstm, gru, nhits (trained by the neural service).

Hyperparameters are JSON, inline or @file. Every variant accepts input_size
(window length) and output_size (steps predicted per window).`,
	Example: `  imfs fit arimax --series UNRATE --train-boundary 2015-12-01 --val-boundary 2019-12-01 --horizon 12
  imfs fit arimax --input cpi.jsonl --hyperparams '{"p":2,"d":1,"input_size":12}' \
      --train-boundary 2018-12-31 --val-boundary 2021-12-31 --horizon 6 --save
  imfs series get CPI --format jsonl | imfs fit nhits --hyperparams @nhits.json \
      --train-boundary 2018-12-31 --val-boundary 2021-12-31 --holidays`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(models.ARIMAX), string(models.LSTM), string(models.GRU), string(models.NHITS)},
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		hp, err := readHyperparams(fitHyperparams)
		if err != nil {
			return err
		}
		target, exog, params, err := fitFlags.inputs(deps)
		if err != nil {
			return err
		}

		start := time.Now()
		rep, err := deps.Fit(cmd.Context(), app.FitRequest{
			Kind:        models.Kind(strings.ToLower(args[0])),
			Hyperparams: hp,
			Target:      target,
			Exog:        exog,
			Params:      params,
			Holidays:    fitFlags.holidays,
			Save:        fitSave,
		})
		if err != nil {
			return err
		}

		if fitHandleOut != "" {
			raw, err := app.DecodeHandle(rep.Handle)
			if err != nil {
				return err
			}
			if err := os.WriteFile(fitHandleOut, raw, 0o600); err != nil {
				return fmt.Errorf("writing model handle: %w", err)
			}
		}
		if rep.Model.ID != "" && !globalFlags.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved model %s\n", rep.Model.ID)
		}

		result := newResult(model.KindForecastResult, "fit "+args[0], rep, rep.Result.BestForecast.Len(), start)
		return emit(cmd, deps.Config.Format, result)
	},
}

// ─── predict ──────────────────────────────────────────────────────────────────

var (
	predictFlags   forecastFlags
	predictModelID string
	predictHandle  string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast with a stored model or a saved model handle",
	Long: `Predict reruns the forecasting pipeline with an already fitted model. The
model is either a stored model (--model-id) or a handle file written by
fit --handle-out. Boundaries and horizon may differ from the ones used to fit.`,
	Example: `  imfs predict --model-id 5f0c... --series UNRATE --train-boundary 2015-12-01 --val-boundary 2019-12-01 --horizon 24
  imfs predict --handle arimax.json --input cpi.jsonl --train-boundary 2018-12-31 --val-boundary 2021-12-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (predictModelID == "") == (predictHandle == "") {
			return fmt.Errorf("specify exactly one of --model-id and --handle")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		var handle []byte
		if predictHandle != "" {
			data, err := os.ReadFile(predictHandle)
			if err != nil {
				return fmt.Errorf("reading model handle: %w", err)
			}
			if handle, err = app.DecodeHandle(string(data)); err != nil {
				return err
			}
		}
		target, exog, params, err := predictFlags.inputs(deps)
		if err != nil {
			return err
		}

		start := time.Now()
		rep, err := deps.Predict(cmd.Context(), app.PredictRequest{
			ModelID:  predictModelID,
			Handle:   handle,
			Target:   target,
			Exog:     exog,
			Params:   params,
			Holidays: predictFlags.holidays,
		})
		if err != nil {
			return err
		}
		result := newResult(model.KindForecastResult, "predict", rep, rep.Result.BestForecast.Len(), start)
		return emit(cmd, deps.Config.Format, result)
	},
}

func init() {
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(predictCmd)

	fitFlags.register(fitCmd)
	fitCmd.Flags().StringVar(&fitHyperparams, "hyperparams", "", "hyperparameters as JSON or @file")
	fitCmd.Flags().BoolVar(&fitSave, "save", false, "persist the fitted model in the store")
	fitCmd.Flags().StringVar(&fitHandleOut, "handle-out", "", "write the model handle JSON to this file")

	predictFlags.register(predictCmd)
	predictCmd.Flags().StringVar(&predictModelID, "model-id", "", "id of a stored model")
	predictCmd.Flags().StringVar(&predictHandle, "handle", "", "model handle file written by fit --handle-out")
}
