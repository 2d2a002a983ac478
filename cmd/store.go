package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/render"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the local model and series database",
	Long: `Commands for the local bbolt database that holds saved models and series.

The store is an intentional data store, not a cache: entries persist until
you delete or clear them.`,
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and sizes for each bucket",
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
		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		if resolveFormat(deps.Config.Format) == render.FormatTable && !globalFlags.Quiet {
			w, closeOut, err := outputWriter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()
			version, _ := deps.Store.SchemaVersion()
			fmt.Fprintf(w, "Database: %s (schema v%s)\n\n", deps.Store.Path(), version)
			printSimpleTable(w, []string{"BUCKET", "ROWS", "SIZE"}, func(add func(...string)) {
				for _, s := range stats {
					add(s.Name, strconv.Itoa(s.Count), humanBytes(s.Bytes))
				}
			})
			return nil
		}
		return emit(cmd, deps.Config.Format, newResult(model.KindStoreStats, "store stats", stats, len(stats), start))
	},
}

// ─── store clear ──────────────────────────────────────────────────────────────

var (
	storeClearAll    bool
	storeClearBucket string
)

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry of one or all buckets",
	Long: `Clear empties the models bucket, the series bucket or both. The file does
not shrink until 'imfs store compact' is run; freed pages are reused.`,
	Example: `  imfs store clear --bucket models
  imfs store clear --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets := strings.Join(store.AllBuckets, ", ")
		if storeClearAll == (storeClearBucket != "") {
			return fmt.Errorf("specify exactly one of --all and --bucket <name>\n\nBuckets: %s", buckets)
		}
		if storeClearBucket != "" && !slices.Contains(store.AllBuckets, storeClearBucket) {
			return fmt.Errorf("unknown bucket %q (use %s)", storeClearBucket, buckets)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.OpenStore(); err != nil {
			return err
		}

		out := cmd.ErrOrStderr()
		if storeClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(out, "✓ Cleared all buckets")
		} else {
			if err := deps.Store.ClearBucket(storeClearBucket); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Cleared bucket %q\n", storeClearBucket)
		}
		fmt.Fprintln(out, "  Run 'imfs store compact' to reclaim disk space.")
		return nil
	},
}

// ─── store compact ────────────────────────────────────────────────────────────

var storeCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed space",
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

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Compacting %s ...\n", deps.Store.Path())
		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}
		fmt.Fprintln(out, "✓ Compaction complete")
		fmt.Fprintf(out, "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(out, "  After:  %s\n", humanBytes(after))
		if saved := before - after; saved > 0 {
			fmt.Fprintf(out, "  Saved:  %s\n", humanBytes(saved))
		}
		return nil
	},
}

// ─── store path ───────────────────────────────────────────────────────────────

var storePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the database path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeClearCmd)
	storeCmd.AddCommand(storeCompactCmd)
	storeCmd.AddCommand(storePathCmd)

	storeClearCmd.Flags().BoolVar(&storeClearAll, "all", false, "clear every bucket")
	storeClearCmd.Flags().StringVar(&storeClearBucket, "bucket", "", "clear one bucket: models|series")
}
