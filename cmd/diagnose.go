package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/diagnostics"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

var (
	diagnoseLags       int
	diagnoseRegression string
	diagnoseFitDF      int
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <TEST>",
	Short: "Run a stationarity, autocorrelation or normality test",
	Long: `Diagnose runs one test on a series read from stdin (or --input/--series).

  adf          Augmented Dickey-Fuller, H0: unit root
  kpss         KPSS, H0: stationary around a level (c) or trend (ct)
  ljung-box    Ljung-Box, H0: no autocorrelation up to --lags
  jarque-bera  Jarque-Bera, H0: normally distributed
  acf, pacf    correlogram up to --lags with 95% bands

Conclusions are stated at the 5% level. Leading and trailing missing values
are dropped; interior gaps are an error.`,
	Example: `  imfs diagnose adf --series UNRATE
  imfs transform diff --series GDP | imfs diagnose kpss --regression ct
  imfs diagnose acf --series CPI --lags 24`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: diagnostics.Tests,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := diagnostics.Options{Lags: diagnoseLags, FitDF: diagnoseFitDF}
		switch strings.ToLower(diagnoseRegression) {
		case "c", "level":
			opts.Regression = diagnostics.RegressionLevel
		case "ct", "trend":
			opts.Regression = diagnostics.RegressionTrend
		default:
			return fmt.Errorf("--regression: unknown value %q (use c or ct)", diagnoseRegression)
		}

		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		vals, err := diagnostics.Values(s)
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := diagnostics.Run(args[0], vals, opts)
		if err != nil {
			return err
		}
		result := newResult(model.KindDiagnostic, "diagnose "+args[0], res, len(vals), start)
		return emit(cmd, "", result)
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	addPipeInputFlags(diagnoseCmd)
	fl := diagnoseCmd.Flags()
	fl.IntVar(&diagnoseLags, "lags", 0, "lag count (default depends on the test and sample size)")
	fl.StringVar(&diagnoseRegression, "regression", "c", "KPSS deterministic term: c|ct")
	fl.IntVar(&diagnoseFitDF, "fit-df", 0, "Ljung-Box degrees of freedom used by a fitted model")
}
