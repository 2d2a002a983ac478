package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/pipeline"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/render"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/transform"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// Input selection shared by transform, analyze and diagnose.
var (
	pipeInput  string
	pipeSeries string
)

func addPipeInputFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&pipeInput, "input", "", "series JSONL file (default: stdin)")
	cmd.PersistentFlags().StringVar(&pipeSeries, "series", "", "read a stored series instead of JSONL")
}

// readPipeSeries reads the operator input. Only a stored series needs the
// store, so plain pipes never open it.
func readPipeSeries() (model.Series, error) {
	if pipeSeries == "" {
		if pipeInput == "" || pipeInput == "-" {
			return readStdinSeries()
		}
		return pipeline.ReadFile(pipeInput, pipeline.ReadSeries)
	}
	deps, err := buildDeps()
	if err != nil {
		return model.Series{}, err
	}
	defer deps.Close()
	return readSeries(deps, pipeInput, pipeSeries)
}

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform a time series (reads JSONL from stdin)",
	Long: `Transform operators read series JSONL from stdin (or --input/--series) and
write JSONL to stdout, so they chain into fit, analyze and diagnose:

  imfs series get CPI --format jsonl | imfs transform pct-change --period 12 | imfs analyze summary
  imfs transform log --series GDP | imfs transform diff | imfs diagnose adf

On a terminal the result is printed as a table instead.`,
}

// ─── pct-change ───────────────────────────────────────────────────────────────

var transformPctPeriod int

var transformPctCmd = &cobra.Command{
	Use:     "pct-change",
	Short:   "Percent change from N periods ago: (v[t]-v[t-N])/|v[t-N]| * 100",
	Example: `  imfs transform pct-change --series CPI --period 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, err := transform.PctChange(s, transformPctPeriod)
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform pct-change", out, nil)
	},
}

// ─── diff ─────────────────────────────────────────────────────────────────────

var transformDiffOrder int

var transformDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Difference of order N: v[t] - v[t-1], applied N times",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, err := transform.Diff(s, transformDiffOrder)
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform diff", out, nil)
	},
}

// ─── log ──────────────────────────────────────────────────────────────────────

var transformLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Natural log of each value; non-positive values become missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, warnings := transform.Log(s)
		return writeTransformOutput(cmd, "transform log", out, warnings)
	},
}

// ─── normalize ────────────────────────────────────────────────────────────────

var transformNormMethod string

var transformNormCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Scale values: zscore (default) or minmax",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, err := transform.Normalize(s, transform.NormalizeMethod(transformNormMethod))
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform normalize", out, nil)
	},
}

// ─── index ────────────────────────────────────────────────────────────────────

var (
	transformIndexBase float64
	transformIndexAt   string
)

var transformIndexCmd = &cobra.Command{
	Use:     "index",
	Short:   "Rescale so the value at --at equals --base",
	Example: `  imfs transform index --series CPI --base 100 --at 2015-01-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if transformIndexAt == "" {
			return fmt.Errorf("--at YYYY-MM-DD is required")
		}
		anchor, err := util.ParseDate(transformIndexAt)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, err := transform.Index(s, transformIndexBase, anchor)
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform index", out, nil)
	},
}

// ─── resample ─────────────────────────────────────────────────────────────────

var (
	transformResampleFreq   string
	transformResampleMethod string
)

var transformResampleCmd = &cobra.Command{
	Use:   "resample",
	Short: "Aggregate to a coarser frequency, dated at period end",
	Example: `  imfs transform resample --series UNRATE --freq quarter --method mean
  imfs transform resample --series CPI --freq year --method last`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := freq.Parse(transformResampleFreq)
		if err != nil {
			return err
		}
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, err := transform.Resample(s, to, transform.ResampleMethod(transformResampleMethod))
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform resample", out, nil)
	},
}

// ─── filter ───────────────────────────────────────────────────────────────────

var (
	transformFilterAfter  string
	transformFilterBefore string
	transformFilterMin    float64
	transformFilterMax    float64
	transformFilterDrop   bool
)

var transformFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Keep observations inside a date range or value bounds",
	Example: `  imfs transform filter --series UNRATE --after 2020-01-01
  imfs transform filter --series GDP --min 20000 --drop-missing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := transform.NoFilter()
		opts.DropMissing = transformFilterDrop
		var err error
		if transformFilterAfter != "" {
			if opts.After, err = util.ParseDate(transformFilterAfter); err != nil {
				return fmt.Errorf("--after: %w", err)
			}
		}
		if transformFilterBefore != "" {
			if opts.Before, err = util.ParseDate(transformFilterBefore); err != nil {
				return fmt.Errorf("--before: %w", err)
			}
		}
		if cmd.Flags().Changed("min") {
			opts.MinValue = transformFilterMin
		}
		if cmd.Flags().Changed("max") {
			opts.MaxValue = transformFilterMax
		}
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform filter", transform.Filter(s, opts), nil)
	},
}

// ─── roll ─────────────────────────────────────────────────────────────────────

var (
	transformRollWindow     int
	transformRollMinPeriods int
	transformRollStat       string
)

var transformRollCmd = &cobra.Command{
	Use:   "roll",
	Short: "Rolling window statistic: mean, std, min, max or sum",
	Example: `  imfs transform roll --series UNRATE --stat mean --window 12
  imfs transform roll --series GDP --stat std --window 4 --min-periods 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		out, err := transform.Roll(s, transformRollWindow, transformRollMinPeriods, transform.RollStat(transformRollStat))
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform roll", out, nil)
	},
}

// ─── lag ──────────────────────────────────────────────────────────────────────

var transformLagK int

var transformLagCmd = &cobra.Command{
	Use:   "lag",
	Short: "Shift values K periods later on the same dates (negative K leads)",
	Long: `Lag builds lagged exogenous regressors: out[t] = v[t-K]. The first K values
become missing, so the usual follow-up is "series put" and --exog-series.`,
	Example: `  imfs transform lag --series CLAIMS --k 1 | imfs series put CLAIMS_L1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, "transform lag", transform.Lag(s, transformLagK), nil)
	},
}

// ─── decompose ────────────────────────────────────────────────────────────────

var (
	transformDecompPeriod int
	transformDecompModel  string
)

// seasonalPeriod is the default decomposition period for f.
func seasonalPeriod(f model.Frequency) int {
	switch f {
	case model.FreqMonth:
		return 12
	case model.FreqQuarter:
		return 4
	case model.FreqDay:
		return 7
	case model.FreqHour:
		return 24
	}
	return 0
}

var transformDecompCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Classical decomposition into trend, seasonal and residual",
	Long: `Decompose splits a series with a centred moving average. The period
defaults to 12 for monthly, 4 for quarterly, 7 for daily and 24 for hourly
series. The output is a table (or JSON), not a series.`,
	Example: `  imfs transform decompose --series RSAFS --model multiplicative`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		period := transformDecompPeriod
		if period == 0 {
			if period = seasonalPeriod(s.Freq); period == 0 {
				return fmt.Errorf("--period is required for %s series", s.Freq)
			}
		}
		start := time.Now()
		d, err := transform.Decompose(s, period, transform.DecomposeModel(transformDecompModel))
		if err != nil {
			return err
		}
		result := newResult(model.KindDecomposition, "transform decompose", d, d.Trend.Len(), start)
		return emit(cmd, "", result)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(transformCmd)
	addPipeInputFlags(transformCmd)
	for _, c := range []*cobra.Command{
		transformPctCmd, transformDiffCmd, transformLogCmd, transformNormCmd,
		transformIndexCmd, transformResampleCmd, transformFilterCmd,
		transformRollCmd, transformLagCmd, transformDecompCmd,
	} {
		transformCmd.AddCommand(c)
	}

	transformPctCmd.Flags().IntVar(&transformPctPeriod, "period", 1, "lag period (1 = MoM, 12 = YoY on monthly data)")
	transformDiffCmd.Flags().IntVar(&transformDiffOrder, "order", 1, "difference order")
	transformNormCmd.Flags().StringVar(&transformNormMethod, "method", "zscore", "normalization method: zscore|minmax")

	transformIndexCmd.Flags().Float64Var(&transformIndexBase, "base", 100, "value at the anchor date")
	transformIndexCmd.Flags().StringVar(&transformIndexAt, "at", "", "anchor date YYYY-MM-DD (required)")

	transformResampleCmd.Flags().StringVar(&transformResampleFreq, "freq", "quarter", "target frequency: year|quarter|month|day")
	transformResampleCmd.Flags().StringVar(&transformResampleMethod, "method", "mean", "aggregation method: mean|last|sum")

	transformFilterCmd.Flags().StringVar(&transformFilterAfter, "after", "", "keep obs with date > YYYY-MM-DD")
	transformFilterCmd.Flags().StringVar(&transformFilterBefore, "before", "", "keep obs with date < YYYY-MM-DD")
	transformFilterCmd.Flags().Float64Var(&transformFilterMin, "min", 0, "keep obs with value >= min")
	transformFilterCmd.Flags().Float64Var(&transformFilterMax, "max", 0, "keep obs with value <= max")
	transformFilterCmd.Flags().BoolVar(&transformFilterDrop, "drop-missing", false, "drop missing observations")

	transformRollCmd.Flags().IntVar(&transformRollWindow, "window", 12, "window size (number of observations)")
	transformRollCmd.Flags().IntVar(&transformRollMinPeriods, "min-periods", 1, "minimum non-missing values in a window")
	transformRollCmd.Flags().StringVar(&transformRollStat, "stat", "mean", "statistic: mean|std|min|max|sum")

	transformLagCmd.Flags().IntVar(&transformLagK, "k", 1, "periods to lag")

	transformDecompCmd.Flags().IntVar(&transformDecompPeriod, "period", 0, "seasonal period (default from the frequency)")
	transformDecompCmd.Flags().StringVar(&transformDecompModel, "model", "additive", "additive|multiplicative")
}

// ─── Output helper ────────────────────────────────────────────────────────────

// writeTransformOutput writes s as JSONL when piped, or renders it when
// stdout is a terminal or --format is set.
func writeTransformOutput(cmd *cobra.Command, command string, s model.Series, warnings []string) error {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "⚠  %s\n", w)
	}

	format := globalFlags.Format
	if format == "" {
		if pipeline.IsTTY() {
			format = render.FormatTable
		} else {
			format = render.FormatJSONL
		}
	}
	if format == render.FormatJSONL {
		w, closeOut, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeOut()
		return pipeline.WriteSeries(w, s)
	}

	result := newResult(model.KindSeries, command, s, s.Len(), time.Now())
	return render.RenderTo(globalFlags.Out, result, format)
}
