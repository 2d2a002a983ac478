package chart

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// lineData lays values out on the shared date axis; dates the series does
// not cover become gaps.
func lineData(axis []time.Time, s model.Series) []opts.LineData {
	byDate := make(map[time.Time]float64, s.Len())
	for _, o := range s.Obs {
		if !o.IsMissing() {
			byDate[o.Date] = o.Value
		}
	}
	out := make([]opts.LineData, len(axis))
	for i, d := range axis {
		if v, ok := byDate[d]; ok {
			out[i] = opts.LineData{Value: v}
		} else {
			out[i] = opts.LineData{Value: nil}
		}
	}
	return out
}

// axisDates returns the sorted union of all dates in list.
func axisDates(list ...model.Series) []time.Time {
	var obs []model.Observation
	for _, s := range list {
		_, merged := merge(obs, s.Obs)
		obs = merged
	}
	out := make([]time.Time, len(obs))
	for i, o := range obs {
		out[i] = o.Date
	}
	return out
}

// SeriesLine builds a line chart with one line per series.
func SeriesLine(title string, list ...model.Series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	axis := axisDates(list...)
	labels := make([]string, len(axis))
	for i, d := range axis {
		labels[i] = util.FormatDate(d)
	}
	line.SetXAxis(labels)
	for _, s := range list {
		line.AddSeries(s.Name, lineData(axis, s))
	}
	return line
}

// segmentSeries joins the per-window forecasts of one segment into a single
// series for plotting. Later windows win on overlapping dates.
func segmentSeries(name string, windows []model.Series) model.Series {
	vals := map[time.Time]float64{}
	for _, w := range windows {
		for _, o := range w.Obs {
			vals[o.Date] = o.Value
		}
	}
	out := model.Series{Name: name}
	for _, d := range axisDates(windows...) {
		out.Obs = append(out.Obs, model.Observation{Date: d, Value: vals[d]})
	}
	return out
}

// ForecastPage writes an HTML page comparing the actual series with the
// forecast: the best forecast against the actuals, then the in-sample
// segments and the out-of-sample forecast as separate lines.
func ForecastPage(w io.Writer, actual model.Series, res model.ForecastResult) error {
	if actual.IsEmpty() && res.BestForecast.IsEmpty() {
		return fmt.Errorf("chart html: nothing to plot")
	}
	actual.Name = "actual"
	best := res.BestForecast
	best.Name = "best forecast"

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s forecast", res.BestForecast.Name)
	page.AddCharts(
		SeriesLine(fmt.Sprintf("%s: best forecast", res.BestForecast.Name), actual, best),
		SeriesLine("Forecast by segment",
			actual,
			segmentSeries("train", res.Forecasts.Train),
			segmentSeries("val", res.Forecasts.Val),
			segmentSeries("test", res.Forecasts.Test),
			segmentSeries("out of sample", res.Forecasts.OutOfSample),
		),
	)
	return page.Render(w)
}
