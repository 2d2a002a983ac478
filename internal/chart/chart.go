// Package chart renders series and forecasts.
//
//   - Bar: horizontal bar chart, one bar per observation, for low-frequency
//     series (annual, quarterly)
//   - Plot: multi-line ASCII chart with labeled axes, optionally overlaying a
//     forecast on the actual series
//   - ForecastPage: interactive HTML page built with go-echarts
//
// Missing values are drawn as gaps, never as zeros.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// dateLayout picks the axis label layout for a frequency.
func dateLayout(f model.Frequency) string {
	switch f {
	case model.FreqYear:
		return "2006"
	case model.FreqQuarter, model.FreqMonth:
		return "2006-01"
	case model.FreqHour, model.FreqMinute:
		return "2006-01-02 15:04"
	default:
		return "2006-01-02"
	}
}

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// MaxBars keeps only the last MaxBars observations. 0 means no limit.
	MaxBars int
}

// Bar renders a horizontal bar chart of s to w, one bar per observation.
//
//	GDP  2020 – 2023
//	2020  3.5  ████████████
//	2021  5.4  ████████████████████
func Bar(w io.Writer, s model.Series, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}

	valid := s.Filter(func(o model.Observation) bool { return !o.IsMissing() }).Obs
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no non-missing observations to render")
	}
	if opts.MaxBars > 0 && len(valid) > opts.MaxBars {
		valid = valid[len(valid)-opts.MaxBars:]
	}

	if len(valid) > 60 {
		fmt.Fprintf(w, "⚠  %d observations, consider resampling to a coarser frequency first\n\n", len(valid))
	}

	minVal, maxVal := valid[0].Value, valid[0].Value
	for _, o := range valid[1:] {
		minVal = math.Min(minVal, o.Value)
		maxVal = math.Max(maxVal, o.Value)
	}

	layout := dateLayout(s.Freq)
	dateWidth := len(valid[0].Date.Format(layout))
	valWidth := 0
	for _, o := range valid {
		if l := len(formatFloat(o.Value)); l > valWidth {
			valWidth = l
		}
	}

	// date, value and two double-space separators
	barAreaWidth := totalWidth - dateWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	valRange := maxVal - minVal
	if valRange == 0 {
		valRange = 1
	}

	hasNeg := minVal < 0
	var zeroPos int
	if hasNeg {
		zeroPos = int(math.Round((-minVal / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", s.Name,
		valid[0].Date.Format(layout), valid[len(valid)-1].Date.Format(layout))

	for _, o := range valid {
		var bar string
		if hasNeg {
			bar = buildBiBar(o.Value, minVal, maxVal, barAreaWidth, zeroPos)
		} else {
			barLen := int(math.Round((o.Value - minVal) / valRange * float64(barAreaWidth)))
			if barLen < 1 {
				barLen = 1 // every bar stays visible
			}
			if barLen > barAreaWidth {
				barLen = barAreaWidth
			}
			bar = strings.Repeat("█", barLen)
		}
		fmt.Fprintf(w, "%-*s  %*s  %s\n",
			dateWidth, o.Date.Format(layout),
			valWidth, formatFloat(o.Value),
			bar,
		)
	}
	return nil
}

// buildBiBar renders a bar that extends left (negative) or right (positive)
// from a zero baseline at zeroPos.
func buildBiBar(val, minVal, maxVal float64, barAreaWidth, zeroPos int) string {
	valRange := maxVal - minVal
	buf := []rune(strings.Repeat(" ", barAreaWidth))
	if zeroPos >= 0 && zeroPos < barAreaWidth {
		buf[zeroPos] = '│'
	}
	if val >= 0 {
		end := zeroPos + int(math.Round(val/valRange*float64(barAreaWidth-1)))
		for i := zeroPos + 1; i <= end && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	} else {
		start := zeroPos - int(math.Round((-val)/valRange*float64(barAreaWidth-1)))
		if start < 0 {
			start = 0
		}
		for i := start; i < zeroPos && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	}
	return string(buf)
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of data rows in the chart body. Defaults to 12.
	Height int
	// Title overrides the default title (series name).
	Title string
	// Overlay is drawn with '•' on top of the main line. Its dates are
	// merged with the main series on the x axis.
	Overlay *model.Series
}

// OverlayMark is the rune used for overlay points.
const OverlayMark = '•'

// Plot renders a multi-line ASCII chart of s to w.
func Plot(w io.Writer, s model.Series, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	title := opts.Title
	if title == "" {
		title = s.Name
	}

	main, over := s.Obs, []model.Observation(nil)
	if opts.Overlay != nil {
		main, over = merge(s.Obs, opts.Overlay.Obs)
	}

	var validVals []float64
	for _, list := range [][]model.Observation{main, over} {
		for _, o := range list {
			if !o.IsMissing() {
				validVals = append(validVals, o.Value)
			}
		}
	}
	if len(validVals) < 2 {
		return fmt.Errorf("chart plot: need at least 2 non-missing observations (got %d)", len(validVals))
	}
	minVal, maxVal := validVals[0], validVals[0]
	for _, v := range validVals[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		if l := len(formatFloat(t)); l > yLabelWidth {
			yLabelWidth = l
		}
	}
	plotWidth := width - yLabelWidth - 2
	if plotWidth < 10 {
		plotWidth = 10
	}

	grid := buildGrid(sampleCols(main, plotWidth), minVal, maxVal, height)
	if over != nil {
		for col, v := range sampleCols(over, plotWidth) {
			if math.IsNaN(v) {
				continue
			}
			r := clampRow(rowForValue(v, minVal, maxVal, height), height)
			grid[r][col] = OverlayMark
		}
	}

	layout := dateLayout(s.Freq)
	fmt.Fprintf(w, "%s  (%s to %s)\n", title,
		main[0].Date.Format(layout), main[len(main)-1].Date.Format(layout))

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		axisCh := "┤"
		if label != "" && math.Abs(minVal) < 1e-9 && row == height-1 {
			axisCh = "┼"
		} else if label == "" {
			axisCh = " "
		}
		fmt.Fprintf(w, "%*s%s%s\n", yLabelWidth, label, axisCh, string(grid[row]))
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(main, plotWidth, layout))
	if over != nil {
		fmt.Fprintf(w, "%s %c %s\n", strings.Repeat(" ", yLabelWidth), OverlayMark, opts.Overlay.Name)
	}
	return nil
}

// merge aligns a and b on the union of their dates. Dates absent from one
// side are missing there. Both inputs must be sorted.
func merge(a, b []model.Observation) ([]model.Observation, []model.Observation) {
	var outA, outB []model.Observation
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i].Date.Before(b[j].Date)):
			outA = append(outA, a[i])
			outB = append(outB, model.Observation{Date: a[i].Date, Value: math.NaN()})
			i++
		case i >= len(a) || b[j].Date.Before(a[i].Date):
			outA = append(outA, model.Observation{Date: b[j].Date, Value: math.NaN()})
			outB = append(outB, b[j])
			j++
		default:
			outA = append(outA, a[i])
			outB = append(outB, b[j])
			i++
			j++
		}
	}
	return outA, outB
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols reduces obs to exactly n columns. Each column holds the average
// of its bucket, or NaN if all are missing.
func sampleCols(obs []model.Observation, n int) []float64 {
	total := len(obs)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := (col+1)*total/n - 1
		if hi >= total {
			hi = total - 1
		}
		sum, count := 0.0, 0
		for i := lo; i <= hi; i++ {
			if !obs[i].IsMissing() {
				sum += obs[i].Value
				count++
			}
		}
		if count == 0 {
			cols[col] = math.NaN()
		} else {
			cols[col] = sum / float64(count)
		}
	}
	return cols
}

// rowForValue returns the float row index (0=top=max) for a given value.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

func clampRow(f float64, height int) int {
	r := int(math.Round(f))
	if r < 0 {
		return 0
	}
	if r >= height {
		return height - 1
	}
	return r
}

// buildGrid renders columns into a height×width rune grid using
// box-drawing characters to connect adjacent points.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(cols)))
	}

	rowOf := make([]int, len(cols))
	for col, v := range cols {
		if math.IsNaN(v) {
			rowOf[col] = -1 // gap
			continue
		}
		rowOf[col] = clampRow(rowForValue(v, minVal, maxVal, height), height)
	}

	for col := 0; col < len(cols); col++ {
		r := rowOf[col]
		if r < 0 {
			continue
		}
		prevRow, nextRow := -2, -2
		if col > 0 {
			prevRow = rowOf[col-1]
		}
		if col < len(cols)-1 {
			nextRow = rowOf[col+1]
		}

		if prevRow < 0 && nextRow < 0 {
			grid[r][col] = '·'
			continue
		}
		if (prevRow < 0 || prevRow == r) && (nextRow < 0 || nextRow == r) {
			grid[r][col] = '─'
			continue
		}

		switch {
		case prevRow >= 0 && prevRow < r && nextRow >= 0 && nextRow < r,
			prevRow >= 0 && prevRow > r && nextRow >= 0 && nextRow > r:
			grid[r][col] = '─'
		case (prevRow < 0 || prevRow < r) && nextRow > r:
			grid[r][col] = '╭'
		case (prevRow < 0 || prevRow > r) && nextRow >= 0 && nextRow < r:
			grid[r][col] = '╰'
		case prevRow >= 0 && prevRow < r:
			grid[r][col] = '╮'
		case prevRow > r:
			grid[r][col] = '╯'
		default:
			grid[r][col] = '│'
		}

		if prevRow >= 0 && prevRow != r {
			lo, hi := r, prevRow
			if lo > hi {
				lo, hi = hi, lo
			}
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}
	return grid
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns evenly spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	nTicks := 4
	if height <= 6 {
		nTicks = 3
	}
	ticks := make([]float64, nTicks)
	for i := 0; i < nTicks; i++ {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(nTicks-1)
	}
	return ticks
}

// xAxisLabels places start, middle and end date labels across plotWidth.
func xAxisLabels(obs []model.Observation, plotWidth int, layout string) string {
	if len(obs) == 0 {
		return ""
	}
	startLabel := obs[0].Date.Format(layout)
	midLabel := obs[len(obs)/2].Date.Format(layout)
	endLabel := obs[len(obs)-1].Date.Format(layout)

	buf := []rune(strings.Repeat(" ", plotWidth))
	writeAt := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}
	writeAt(0, startLabel)
	writeAt(plotWidth/2-len(midLabel)/2, midLabel)
	writeAt(plotWidth-len(endLabel), endLabel)
	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a float for axis labels: compact notation for large
// numbers, at least one decimal place otherwise.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
