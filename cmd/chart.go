package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/chart"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/pipeline"
)

var chartHTML string

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render a series or a forecast as a terminal or HTML chart",
	Long: `Chart commands draw to the terminal by default. With --html FILE they write
an interactive ECharts page instead.

  imfs transform resample --series CPI --freq year | imfs chart bar
  imfs chart plot --series UNRATE --overlay UNRATE_TREND
  imfs chart forecast 5f0c... --series UNRATE --html unrate.html`,
	SilenceUsage: true,
}

// writeHTML renders to the --html file.
func writeHTML(render func(io.Writer) error) error {
	f, err := os.Create(chartHTML)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !globalFlags.Quiet {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", chartHTML)
	}
	return nil
}

// ─── chart bar ───────────────────────────────────────────────────────────────

var (
	chartBarWidth   int
	chartBarMaxBars int
)

var chartBarCmd = &cobra.Command{
	Use:   "bar",
	Short: "Horizontal bar chart, one bar per observation",
	Long: `Bar draws one labelled bar per observation. It suits yearly or quarterly
data; resample monthly and daily series first. Negative values extend left
of a zero baseline and missing values are skipped.`,
	Example: `  imfs transform resample --series CPI --freq year --method mean | imfs chart bar
  imfs chart bar --series GDP_YOY --max-bars 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		if s.Name == "" {
			s.Name = "series"
		}
		return chart.Bar(cmd.OutOrStdout(), s, chart.BarOptions{
			Width:   chartBarWidth,
			MaxBars: chartBarMaxBars,
		})
	},
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotWidth   int
	chartPlotHeight  int
	chartPlotTitle   string
	chartPlotOverlay string
)

// loadOverlay reads a stored series, or a JSONL file when the name starts
// with '@'.
func loadOverlay(name string) (*model.Series, error) {
	if name == "" {
		return nil, nil
	}
	if name[0] == '@' {
		s, err := pipeline.ReadFile(name[1:], pipeline.ReadSeries)
		if err != nil {
			return nil, fmt.Errorf("reading overlay: %w", err)
		}
		return &s, nil
	}
	deps, err := buildDeps()
	if err != nil {
		return nil, err
	}
	defer deps.Close()
	s, err := deps.GetSeries(name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var chartPlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Line chart with labelled axes",
	Long: `Plot draws a line chart with y-axis ticks and x-axis date labels. Missing
values are gaps. Width follows $COLUMNS (80 when unset). --overlay draws a
second series (stored name, or @file.jsonl) with '•' marks.`,
	Example: `  imfs chart plot --series UNRATE --height 16
  imfs transform roll --series UNRATE --window 12 | imfs chart plot --overlay UNRATE
  imfs chart plot --series UNRATE --html unrate.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readPipeSeries()
		if err != nil {
			return err
		}
		if s.Name == "" {
			s.Name = "series"
		}
		overlay, err := loadOverlay(chartPlotOverlay)
		if err != nil {
			return err
		}
		title := chartPlotTitle
		if title == "" {
			title = s.Name
		}

		if chartHTML != "" {
			list := []model.Series{s}
			if overlay != nil {
				list = append(list, *overlay)
			}
			return writeHTML(func(w io.Writer) error {
				return chart.SeriesLine(title, list...).Render(w)
			})
		}
		return chart.Plot(cmd.OutOrStdout(), s, chart.PlotOptions{
			Width:   chartPlotWidth,
			Height:  chartPlotHeight,
			Title:   title,
			Overlay: overlay,
		})
	},
}

// ─── chart forecast ──────────────────────────────────────────────────────────

var chartForecastSeries string

var chartForecastCmd = &cobra.Command{
	Use:   "forecast <MODEL_ID>",
	Short: "Plot the stored forecast of a model against the actuals",
	Long: `Forecast plots the best forecast stored with a model. --series names the
stored actual series to draw underneath; it defaults to the model's target.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		rec, err := deps.GetModel(args[0])
		if err != nil {
			return err
		}
		if rec.Result == nil {
			return fmt.Errorf("model %s has no stored forecast", args[0])
		}

		name := chartForecastSeries
		if name == "" {
			name = rec.Info.Target
		}
		actual, err := deps.GetSeries(name)
		if err != nil && !(chartForecastSeries == "" && app.IsNotFound(err)) {
			return err
		}

		if chartHTML != "" {
			return writeHTML(func(w io.Writer) error {
				return chart.ForecastPage(w, actual, *rec.Result)
			})
		}
		best := rec.Result.BestForecast
		base := actual
		if base.IsEmpty() {
			base = best
		}
		return chart.Plot(cmd.OutOrStdout(), base, chart.PlotOptions{
			Width:   chartPlotWidth,
			Height:  chartPlotHeight,
			Title:   fmt.Sprintf("%s %s forecast", rec.Info.Target, rec.Info.Kind),
			Overlay: &best,
		})
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	addPipeInputFlags(chartBarCmd)
	addPipeInputFlags(chartPlotCmd)
	chartCmd.AddCommand(chartBarCmd)
	chartCmd.AddCommand(chartPlotCmd)
	chartCmd.AddCommand(chartForecastCmd)

	chartCmd.PersistentFlags().StringVar(&chartHTML, "html", "", "write an interactive HTML chart to this file")

	chartBarCmd.Flags().IntVar(&chartBarWidth, "width", 0, "chart width in characters (default: $COLUMNS or 80)")
	chartBarCmd.Flags().IntVar(&chartBarMaxBars, "max-bars", 0, "draw only the last N bars (0 = all)")

	for _, c := range []*cobra.Command{chartPlotCmd, chartForecastCmd} {
		c.Flags().IntVar(&chartPlotWidth, "width", 0, "chart width in characters (default: $COLUMNS or 80)")
		c.Flags().IntVar(&chartPlotHeight, "height", 12, "chart height in rows")
	}
	chartPlotCmd.Flags().StringVar(&chartPlotTitle, "title", "", "chart title (default: series name)")
	chartPlotCmd.Flags().StringVar(&chartPlotOverlay, "overlay", "", "second series to draw: stored name or @file.jsonl")
	chartForecastCmd.Flags().StringVar(&chartForecastSeries, "series", "", "stored actual series (default: the model target)")
}
