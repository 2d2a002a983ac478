package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/pipeline"
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Manage series in the local store",
	Long: `Commands for the named series kept in the local store.

Stored series can be used as fit targets (--series), exogenous columns
(--exog-series) and inputs for transform, analyze, diagnose and chart.
Series come from FRED (imfs fetch) or from JSONL (imfs series put).`,
}

// ─── series list ──────────────────────────────────────────────────────────────

var seriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored series",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.OpenStore(); err != nil {
			return err
		}

		start := time.Now()
		metas, err := deps.Store.ListSeries()
		if err != nil {
			return err
		}
		result := newResult(model.KindSeriesList, "series list", metas, len(metas), start)
		return emit(cmd, deps.Config.Format, result)
	},
}

// ─── series get ───────────────────────────────────────────────────────────────

var seriesGetCmd = &cobra.Command{
	Use:   "get <NAME>",
	Short: "Print the observations of a stored series",
	Example: `  imfs series get UNRATE
  imfs series get UNRATE --format jsonl | imfs transform diff`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		s, err := deps.GetSeries(args[0])
		if err != nil {
			return err
		}
		result := newResult(model.KindSeries, "series get "+args[0], s, s.Len(), start)
		return emit(cmd, deps.Config.Format, result)
	},
}

// ─── series put ───────────────────────────────────────────────────────────────

var (
	seriesPutInput  string
	seriesPutSource string
)

var seriesPutCmd = &cobra.Command{
	Use:   "put <NAME>",
	Short: "Store a series read from JSONL",
	Long: `Put reads series JSONL ({"date":...,"value":...} per line) from --input or
stdin and stores it under NAME, replacing any previous version. The
frequency comes from the first "freq" field or is inferred from the dates.`,
	Example: `  imfs series put SALES --input sales.jsonl
  imfs fetch UNRATE --no-store | imfs transform diff | imfs series put UNRATE_D1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		path := seriesPutInput
		if path == "" {
			path = "-"
		}
		s, err := pipeline.ReadFile(path, pipeline.ReadSeries)
		if err != nil {
			return err
		}
		if s.Freq == "" {
			return fmt.Errorf("series %s: frequency cannot be inferred from the dates; add a \"freq\" field", args[0])
		}
		s.Name = args[0]
		if err := deps.OpenStore(); err != nil {
			return err
		}
		if err := deps.Store.PutSeries(s, seriesPutSource); err != nil {
			return fmt.Errorf("saving series: %w", err)
		}
		if !globalFlags.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Stored %s (%d observations, %s)\n", s.Name, s.Len(), s.Freq)
		}
		return nil
	},
}

// ─── series delete ────────────────────────────────────────────────────────────

var seriesDeleteCmd = &cobra.Command{
	Use:     "delete <NAME...>",
	Aliases: []string{"rm"},
	Short:   "Delete stored series",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.OpenStore(); err != nil {
			return err
		}
		for _, name := range args {
			if err := deps.Store.DeleteSeries(name); err != nil {
				return fmt.Errorf("series %s: %w", name, err)
			}
			if !globalFlags.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Deleted %s\n", name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seriesCmd)
	seriesCmd.AddCommand(seriesListCmd)
	seriesCmd.AddCommand(seriesGetCmd)
	seriesCmd.AddCommand(seriesPutCmd)
	seriesCmd.AddCommand(seriesDeleteCmd)

	seriesPutCmd.Flags().StringVar(&seriesPutInput, "input", "", "JSONL file to read (default: stdin)")
	seriesPutCmd.Flags().StringVar(&seriesPutSource, "source", "cli", "source label recorded with the series")
}
