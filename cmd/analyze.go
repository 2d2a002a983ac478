package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/analyze"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a time series (reads JSONL from stdin)",
	Long: `Analyze operators read series JSONL from stdin (or --input/--series) and
print a result in the selected format.

  imfs analyze summary --series GDP
  imfs series get UNRATE --format jsonl | imfs transform pct-change | imfs analyze trend`,
}

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Descriptive statistics: count, mean, std, quartiles, skew, change",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		start := time.Now()
		sum := analyze.Summarize(s)
		result := newResult(model.KindSummary, "analyze summary", sum, sum.Count, start)
		return emit(cmd, "", result)
	},
}

var analyzeTrendMethod string

var analyzeTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Fit a trend line: slope, intercept, R², direction",
	Example: `  imfs analyze trend --series GDP
  imfs analyze trend --series UNRATE --method theil-sen`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		start := time.Now()
		tr, err := analyze.Trend(s, analyze.TrendMethod(analyzeTrendMethod))
		if err != nil {
			return err
		}
		result := newResult(model.KindTrend, "analyze trend", tr, s.Len(), start)
		return emit(cmd, "", result)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	addPipeInputFlags(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
	analyzeCmd.AddCommand(analyzeTrendCmd)

	analyzeTrendCmd.Flags().StringVar(&analyzeTrendMethod, "method", string(analyze.TrendLinear), "regression method: linear|theil-sen")
}
