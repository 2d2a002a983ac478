package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/fred"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/pipeline"
)

var (
	fetchStart       string
	fetchEnd         string
	fetchFreq        string
	fetchUnits       string
	fetchAgg         string
	fetchName        string
	fetchNoStore     bool
	fetchConcurrency int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <FRED_ID...>",
	Short: "Import series from FRED into the local store",
	Long: `Fetch downloads series observations from FRED and saves them in the local
store under their FRED id (or --name when a single id is given).

Weekly and biweekly series have no forecasting frequency; aggregate them
with --freq month (and --agg) to import them. With --no-store the series is
written to stdout as JSONL instead of being saved.`,
	Example: `  imfs fetch UNRATE CPIAUCSL GDP
  imfs fetch ICSA --freq month --agg avg --name CLAIMS
  imfs fetch UNRATE --start 2000-01-01 --no-store | imfs analyze summary`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := normaliseIDs(args)
		if fetchName != "" && len(ids) > 1 {
			return fmt.Errorf("--name needs exactly one series id")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.Config.ValidateFRED(); err != nil {
			return err
		}

		opts := fred.ObsOptions{Start: fetchStart, End: fetchEnd, Units: fetchUnits, Agg: fetchAgg}
		if fetchFreq != "" {
			f, err := freq.Parse(fetchFreq)
			if err != nil {
				return err
			}
			opts.Freq = f
		}

		start := time.Now()
		fetch := func(ctx context.Context, id string) (model.Series, error) {
			meta, s, err := deps.FRED.Fetch(ctx, id, opts)
			if err != nil {
				return model.Series{}, err
			}
			if s.Freq == "" {
				return model.Series{}, fmt.Errorf("%s frequency is not supported; aggregate with --freq", meta.Frequency)
			}
			return s, nil
		}
		if !fetchNoStore {
			fetch = func(ctx context.Context, id string) (model.Series, error) {
				if opts.Freq == "" {
					meta, err := deps.FRED.GetSeries(ctx, id)
					if err != nil {
						return model.Series{}, err
					}
					if meta.Freq == "" {
						return model.Series{}, fmt.Errorf("%s frequency is not supported; aggregate with --freq", meta.Frequency)
					}
				}
				_, s, err := deps.ImportFRED(ctx, id, fetchName, opts)
				return s, err
			}
		}

		imported, warnings := batchImport(cmd.Context(), ids, fetchConcurrency, fetch)

		if fetchNoStore {
			w, closeOut, err := outputWriter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()
			for _, s := range imported {
				if err := pipeline.WriteSeries(w, s); err != nil {
					return err
				}
			}
		} else if !globalFlags.Quiet {
			for _, s := range imported {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Stored %s (%d observations, %s)\n", s.Name, s.Len(), s.Freq)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "  ⚠  %s\n", w)
		}
		if globalFlags.Verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "fetched %d/%d series in %s\n",
				len(imported), len(ids), time.Since(start).Round(time.Millisecond))
		}
		if len(imported) == 0 {
			return fmt.Errorf("no series fetched: %s", strings.Join(warnings, "; "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fl := fetchCmd.Flags()
	fl.StringVar(&fetchStart, "start", "", "first observation date (YYYY-MM-DD)")
	fl.StringVar(&fetchEnd, "end", "", "last observation date (YYYY-MM-DD)")
	fl.StringVar(&fetchFreq, "freq", "", "aggregate to this frequency: year|quarter|month|day")
	fl.StringVar(&fetchUnits, "units", "", "FRED units transform: lin|chg|ch1|pch|pc1|pca|cch|cca|log")
	fl.StringVar(&fetchAgg, "agg", "", "aggregation method with --freq: avg|sum|eop")
	fl.StringVar(&fetchName, "name", "", "store the series under this name instead of its FRED id")
	fl.BoolVar(&fetchNoStore, "no-store", false, "write JSONL to stdout instead of saving")
	fl.IntVar(&fetchConcurrency, "concurrency", 4, "parallel FRED requests")
}
