package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/pipeline"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/render"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/transform"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// normaliseIDs upper-cases all series IDs and removes duplicates while
// preserving order.
func normaliseIDs(ids []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToUpper(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns def, or the --out file when one is set. The returned
// close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// newResult wraps data in the standard result envelope.
func newResult(kind, command string, data interface{}, items int, start time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats: model.ResultStats{
			DurationMs: time.Since(start).Milliseconds(),
			Items:      items,
		},
	}
}

// emit renders result in the resolved format and prints the footer.
func emit(cmd *cobra.Command, cfgFormat string, result *model.Result) error {
	if globalFlags.Quiet {
		return nil
	}
	if err := render.RenderTo(globalFlags.Out, result, resolveFormat(cfgFormat)); err != nil {
		return err
	}
	render.PrintFooter(cmd.ErrOrStderr(), result, globalFlags.Verbose)
	return nil
}

// ─── Inputs ───────────────────────────────────────────────────────────────────

// readSeries loads a stored series when name is set and otherwise reads
// series JSONL from path ("-" or empty for stdin).
func readSeries(deps *app.Deps, path, name string) (model.Series, error) {
	if name != "" {
		if path != "" && path != "-" {
			return model.Series{}, fmt.Errorf("give either --series or --input, not both")
		}
		return deps.GetSeries(name)
	}
	if path == "" {
		path = "-"
	}
	return pipeline.ReadFile(path, pipeline.ReadSeries)
}

// readStdinSeries reads series JSONL from stdin, as every pipe operator does.
func readStdinSeries() (model.Series, error) {
	return pipeline.ReadSeries(os.Stdin)
}

// readExog builds the exogenous table from an exog JSONL file and/or stored
// series. Stored series are aligned on the target's dates; file rows are
// taken as given. It returns nil when neither is given.
func readExog(deps *app.Deps, path string, names []string, target model.Series) (*model.Exog, error) {
	var cols []model.Series
	if path != "" {
		e, err := pipeline.ReadFile(path, pipeline.ReadExog)
		if err != nil {
			return nil, fmt.Errorf("reading exog: %w", err)
		}
		for j, name := range e.Columns {
			s := model.Series{Name: name, Freq: target.Freq}
			for i, d := range e.Dates {
				s.Obs = append(s.Obs, model.Observation{Date: d, Value: e.Rows[i][j]})
			}
			cols = append(cols, s)
		}
	}
	var stored []model.Series
	for _, name := range names {
		s, err := deps.GetSeries(name)
		if err != nil {
			return nil, err
		}
		stored = append(stored, s)
	}
	cols = append(cols, transform.Align(target, stored...)...)
	if len(cols) == 0 {
		return nil, nil
	}
	return model.ExogFromSeries(cols)
}

// readHyperparams accepts inline JSON or @path.
func readHyperparams(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "@") {
		data, err := os.ReadFile(s[1:])
		if err != nil {
			return nil, fmt.Errorf("reading hyperparameters: %w", err)
		}
		return data, nil
	}
	return []byte(s), nil
}

// parseFitParams builds FitParams from the boundary and horizon flags.
func parseFitParams(train, val string, horizon int) (model.FitParams, error) {
	if train == "" || val == "" {
		return model.FitParams{}, fmt.Errorf("--train-boundary and --val-boundary are required")
	}
	b1, err := util.ParseDate(train)
	if err != nil {
		return model.FitParams{}, fmt.Errorf("--train-boundary: %w", err)
	}
	b2, err := util.ParseDate(val)
	if err != nil {
		return model.FitParams{}, fmt.Errorf("--val-boundary: %w", err)
	}
	return model.FitParams{TrainBoundary: b1, ValBoundary: b2, ForecastHorizon: horizon}, nil
}

// ─── Batch ────────────────────────────────────────────────────────────────────

// batchImport imports several FRED series concurrently, at most
// concurrency at a time. Failures are collected as warnings and successful
// series are returned in argument order.
func batchImport(ctx context.Context, ids []string, concurrency int, fetch func(context.Context, string) (model.Series, error)) ([]model.Series, []string) {
	type result struct {
		s   model.Series
		err error
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	sem := make(chan struct{}, concurrency)
	results := make([]result, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			s, err := fetch(ctx, id)
			results[i] = result{s: s, err: err}
		}()
	}
	wg.Wait()

	// Return in original ID order
	var out []model.Series
	var warnings []string
	for i, r := range results {
		if r.err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", ids[i], r.err))
			continue
		}
		out = append(out, r.s)
	}
	return out, warnings
}

// ─── Tables ───────────────────────────────────────────────────────────────────

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
