// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/analyze"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/diagnostics"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/pipeline"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/store"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/transform"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every supported format.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL writes series (and the best forecast of a forecast result) in
// the pipe format; list payloads become one object per line.
func renderJSONL(w io.Writer, result *model.Result) error {
	switch d := result.Data.(type) {
	case model.Series:
		return pipeline.WriteSeries(w, d)
	case *model.Series:
		return pipeline.WriteSeries(w, *d)
	case *model.ForecastReport:
		return pipeline.WriteSeries(w, d.Result.BestForecast)
	case model.ForecastReport:
		return pipeline.WriteSeries(w, d.Result.BestForecast)
	}

	enc := json.NewEncoder(w)
	v := reflect.ValueOf(result.Data)
	if v.Kind() == reflect.Slice {
		for i := 0; i < v.Len(); i++ {
			if err := enc.Encode(v.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return enc.Encode(result.Data)
}

// ─── Sections ─────────────────────────────────────────────────────────────────

// section is one titled table of a result.
type section struct {
	Title  string
	Header []string
	Rows   [][]string
	// Right lists column indexes aligned right (numbers).
	Right []int
}

// sections converts result data into tables. ok is false for payloads with
// no tabular form; callers fall back to JSON.
func sections(result *model.Result) ([]section, bool) {
	switch d := result.Data.(type) {
	case model.Series:
		return []section{seriesSection(d)}, true
	case *model.Series:
		return []section{seriesSection(*d)}, true
	case []store.SeriesMeta:
		return []section{seriesListSection(d)}, true
	case *model.ForecastReport:
		return forecastSections(d), true
	case model.ForecastReport:
		return forecastSections(&d), true
	case *model.ForecastResult:
		return forecastSections(&model.ForecastReport{Result: *d}), true
	case model.ModelInfo:
		return []section{modelSection(d)}, true
	case *model.ModelInfo:
		return []section{modelSection(*d)}, true
	case []model.ModelInfo:
		return []section{modelListSection(d)}, true
	case diagnostics.Result:
		return []section{diagnosticSection(d)}, true
	case diagnostics.Correlogram:
		return []section{correlogramSection(d)}, true
	case analyze.Summary:
		return []section{summarySection(d)}, true
	case analyze.TrendResult:
		return []section{trendSection(d)}, true
	case transform.Decomposition:
		return []section{decompositionSection(d)}, true
	case []store.BucketStats:
		return []section{statsSection(d)}, true
	case model.Table:
		return []section{{Header: d.Header, Rows: d.Rows}}, true
	case *model.Table:
		return []section{{Header: d.Header, Rows: d.Rows}}, true
	}
	return nil, false
}

func kv(title string, rows [][]string) section {
	return section{Title: title, Header: []string{"FIELD", "VALUE"}, Rows: rows}
}

func seriesSection(s model.Series) section {
	sec := section{Header: []string{"SERIES", "DATE", "VALUE"}, Right: []int{2}}
	for _, o := range s.Obs {
		sec.Rows = append(sec.Rows, []string{s.Name, util.FormatDate(o.Date), formatValue(o.Value)})
	}
	return sec
}

func seriesListSection(metas []store.SeriesMeta) section {
	sec := section{Header: []string{"NAME", "FREQ", "COUNT", "START", "END", "SOURCE", "UPDATED"}, Right: []int{2}}
	for _, m := range metas {
		sec.Rows = append(sec.Rows, []string{
			m.Name, string(m.Freq), fmt.Sprintf("%d", m.Count), m.Start, m.End, m.Source,
			m.UpdatedAt.Format(time.RFC3339),
		})
	}
	return sec
}

// Segment labels used in forecast tables.
const (
	SegmentTrain    = "train"
	SegmentVal      = "val"
	SegmentTest     = "test"
	SegmentForecast = "forecast"
)

// Segments maps every date of the per-window forecasts to the segment it
// was reconciled into. The best forecast carries the same dates.
func Segments(f model.WindowsForecast) map[time.Time]string {
	out := map[time.Time]string{}
	mark := func(list []model.Series, label string) {
		for _, s := range list {
			for _, o := range s.Obs {
				if _, ok := out[o.Date]; !ok {
					out[o.Date] = label
				}
			}
		}
	}
	mark(f.Train, SegmentTrain)
	mark(f.Val, SegmentVal)
	mark(f.Test, SegmentTest)
	mark(f.OutOfSample, SegmentForecast)
	return out
}

func forecastSections(r *model.ForecastReport) []section {
	var out []section
	if r.Model != nil {
		m := modelSection(*r.Model)
		m.Title = "Model"
		out = append(out, m)
	}

	seg := Segments(r.Result.Forecasts)
	best := section{
		Title:  "Best forecast",
		Header: []string{"DATE", "VALUE", "SEGMENT"},
		Right:  []int{1},
	}
	for _, o := range r.Result.BestForecast.Obs {
		best.Rows = append(best.Rows, []string{util.FormatDate(o.Date), formatValue(o.Value), seg[o.Date]})
	}
	out = append(out, best)
	out = append(out, metricsSection("Metrics", r.Result.BestForecastMetrics))

	counts := kv("Windows", [][]string{
		{"train", fmt.Sprintf("%d", len(r.Result.Forecasts.Train))},
		{"val", fmt.Sprintf("%d", len(r.Result.Forecasts.Val))},
		{"test", fmt.Sprintf("%d", len(r.Result.Forecasts.Test))},
		{"out_of_sample", fmt.Sprintf("%d", len(r.Result.Forecasts.OutOfSample))},
	})
	return append(out, counts)
}

// metricsSection lays out one row per segment and one column per metric, in
// the order metrics first appear.
func metricsSection(title string, m model.ModelMetrics) section {
	var names []string
	seen := map[string]bool{}
	for _, list := range [][]model.Metric{m.Train, m.Val, m.Test} {
		for _, x := range list {
			if !seen[x.Name] {
				seen[x.Name] = true
				names = append(names, x.Name)
			}
		}
	}
	sec := section{Title: title, Header: []string{"SEGMENT"}}
	for i, n := range names {
		sec.Header = append(sec.Header, strings.ToUpper(n))
		sec.Right = append(sec.Right, i+1)
	}
	for _, seg := range []struct {
		label string
		list  []model.Metric
	}{{SegmentTrain, m.Train}, {SegmentVal, m.Val}, {SegmentTest, m.Test}} {
		row := []string{seg.label}
		byName := map[string]float64{}
		for _, x := range seg.list {
			byName[x.Name] = x.Value
		}
		for _, n := range names {
			v, ok := byName[n]
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				row = append(row, util.FormatMetric(nil))
				continue
			}
			row = append(row, util.FormatMetric(&v))
		}
		sec.Rows = append(sec.Rows, row)
	}
	return sec
}

func modelSection(m model.ModelInfo) section {
	return kv("", [][]string{
		{"id", m.ID},
		{"kind", m.Kind},
		{"target", m.Target},
		{"freq", string(m.Freq)},
		{"input_size", fmt.Sprintf("%d", m.InputSize)},
		{"output_size", fmt.Sprintf("%d", m.OutputSize)},
		{"train_boundary", util.FormatDate(m.FitParams.TrainBoundary)},
		{"val_boundary", util.FormatDate(m.FitParams.ValBoundary)},
		{"forecast_horizon", fmt.Sprintf("%d", m.FitParams.ForecastHorizon)},
		{"created_at", m.CreatedAt.Format(time.RFC3339)},
	})
}

func modelListSection(infos []model.ModelInfo) section {
	sec := section{
		Header: []string{"ID", "KIND", "TARGET", "FREQ", "IN", "OUT", "HORIZON", "CREATED"},
		Right:  []int{4, 5, 6},
	}
	for _, m := range infos {
		sec.Rows = append(sec.Rows, []string{
			m.ID, m.Kind, m.Target, string(m.Freq),
			fmt.Sprintf("%d", m.InputSize), fmt.Sprintf("%d", m.OutputSize),
			fmt.Sprintf("%d", m.FitParams.ForecastHorizon),
			m.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return sec
}

func diagnosticSection(r diagnostics.Result) section {
	rows := [][]string{
		{"test", r.Test},
		{"statistic", fmtStat(r.Statistic)},
		{"p_value", fmtStat(r.PValue)},
		{"nobs", fmt.Sprintf("%d", r.NObs)},
	}
	if r.Lags > 0 {
		rows = append(rows, []string{"lags", fmt.Sprintf("%d", r.Lags)})
	}
	for _, k := range r.CriticalLevels() {
		rows = append(rows, []string{"critical " + k, fmtStat(r.CriticalValues[k])})
	}
	rows = append(rows, []string{"conclusion", r.Conclusion})
	return kv("", rows)
}

func correlogramSection(c diagnostics.Correlogram) section {
	sec := section{
		Title:  fmt.Sprintf("%s (n=%d, 95%% bound ±%.4f)", strings.ToUpper(c.Test), c.NObs, c.Bound),
		Header: []string{"LAG", strings.ToUpper(c.Test), "SIGNIFICANT"},
		Right:  []int{0, 1},
	}
	for k, v := range c.Values {
		mark := ""
		if k > 0 && math.Abs(v) > c.Bound {
			mark = "*"
		}
		sec.Rows = append(sec.Rows, []string{fmt.Sprintf("%d", k), fmtStat(v), mark})
	}
	return sec
}

func summarySection(s analyze.Summary) section {
	return kv("", [][]string{
		{"name", s.Name},
		{"freq", string(s.Freq)},
		{"range", s.Start + " .. " + s.End},
		{"count", fmt.Sprintf("%d", s.Count)},
		{"missing", fmt.Sprintf("%d (%.1f%%)", s.Missing, s.MissingPct)},
		{"mean", fmtStat(s.Mean)},
		{"std", fmtStat(s.Std)},
		{"min", fmtStat(s.Min)},
		{"p25", fmtStat(s.P25)},
		{"median", fmtStat(s.Median)},
		{"p75", fmtStat(s.P75)},
		{"max", fmtStat(s.Max)},
		{"skew", fmtStat(s.Skew)},
		{"first", fmtStat(s.First)},
		{"last", fmtStat(s.Last)},
		{"change", fmtStat(s.Change)},
		{"change_pct", fmtStatPct(s.ChangePct)},
	})
}

func trendSection(tr analyze.TrendResult) section {
	return kv("", [][]string{
		{"name", tr.Name},
		{"method", string(tr.Method)},
		{"direction", tr.Direction},
		{"slope_per_day", fmt.Sprintf("%.6f", tr.Slope)},
		{"slope_per_year", fmt.Sprintf("%.4f", tr.SlopePerYear)},
		{"intercept", fmt.Sprintf("%.4f", tr.Intercept)},
		{"r2", fmt.Sprintf("%.4f", tr.R2)},
	})
}

func decompositionSection(d transform.Decomposition) section {
	sec := section{
		Title:  fmt.Sprintf("%s decomposition, period %d", d.Model, d.Period),
		Header: []string{"DATE", "TREND", "SEASONAL", "RESID"},
		Right:  []int{1, 2, 3},
	}
	for i, o := range d.Trend.Obs {
		sec.Rows = append(sec.Rows, []string{
			util.FormatDate(o.Date),
			formatValue(o.Value),
			formatValue(d.Seasonal.Obs[i].Value),
			formatValue(d.Resid.Obs[i].Value),
		})
	}
	return sec
}

func statsSection(stats []store.BucketStats) section {
	sec := section{Header: []string{"BUCKET", "ENTRIES", "BYTES"}, Right: []int{1, 2}}
	for _, s := range stats {
		sec.Rows = append(sec.Rows, []string{s.Name, fmt.Sprintf("%d", s.Count), fmt.Sprintf("%d", s.Bytes)})
	}
	return sec
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	secs, ok := sections(result)
	if !ok {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	for i, sec := range secs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if sec.Title != "" {
			fmt.Fprintln(w, sec.Title)
		}
		writeTable(w, sec)
	}
	return nil
}

func writeTable(w io.Writer, sec section) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(sec.Header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	if len(sec.Right) > 0 {
		align := make([]int, len(sec.Header))
		for i := range align {
			align[i] = tablewriter.ALIGN_LEFT
		}
		for _, c := range sec.Right {
			align[c] = tablewriter.ALIGN_RIGHT
		}
		tw.SetColumnAlignment(align)
	}
	tw.SetAutoWrapText(false)
	tw.AppendBulk(sec.Rows)
	tw.Render()
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	secs, ok := sections(result)
	if !ok {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}
	for i, sec := range secs {
		if i > 0 {
			_ = cw.Write([]string{})
		}
		header := make([]string, len(sec.Header))
		for j, h := range sec.Header {
			header[j] = strings.ToLower(h)
		}
		_ = cw.Write(header)
		_ = cw.WriteAll(sec.Rows)
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	secs, ok := sections(result)
	if !ok {
		return renderJSON(w, result)
	}
	for i, sec := range secs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if sec.Title != "" {
			fmt.Fprintf(w, "### %s\n\n", mdEscape(sec.Title))
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(sec.Header, " | "))
		seps := make([]string, len(sec.Header))
		for j := range seps {
			seps[j] = "----"
		}
		fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
		for _, row := range sec.Rows {
			cells := make([]string, len(row))
			for j, c := range row {
				cells[j] = mdEscape(c)
			}
			fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
		}
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats an observation value for display.
// Always shows at least one decimal place (e.g. 4.0, not 4).
// Trims unnecessary trailing zeros beyond the first (e.g. 3.400000 → 3.4).
// Missing values (NaN) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

func fmtStat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return fmt.Sprintf("%.4f", v)
}

func fmtStatPct(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return fmt.Sprintf("%.2f%%", v)
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
