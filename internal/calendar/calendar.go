// Package calendar builds calendar regressors for exogenous tables.
package calendar

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// HolidayColumn is the name of the column produced by HolidayExog.
const HolidayColumn = "holidays"

// federal is the set of US federal holidays counted per period.
var federal = []*cal.Holiday{
	us.NewYear,
	us.MlkDay,
	us.PresidentsDay,
	us.MemorialDay,
	us.Juneteenth,
	us.IndependenceDay,
	us.LaborDay,
	us.ColumbusDay,
	us.VeteransDay,
	us.ThanksgivingDay,
	us.ChristmasDay,
}

// periodStart returns the first calendar day of the period ending at t.
func periodStart(t time.Time, f model.Frequency) (time.Time, error) {
	y, m, d := t.Date()
	switch f {
	case model.FreqYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), nil
	case model.FreqQuarter:
		first := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, first, 1, 0, 0, 0, 0, time.UTC), nil
	case model.FreqMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
	case model.FreqDay, model.FreqHour, model.FreqMinute:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("calendar: unsupported frequency %q", f)
	}
}

// observed counts the observed federal holidays per day between the years
// of from and to. New Year's Day can be observed on 31 December of the
// previous year, so one extra year is scanned.
func observed(from, to time.Time) map[time.Time]int {
	days := map[time.Time]int{}
	for y := from.Year(); y <= to.Year()+1; y++ {
		for _, h := range federal {
			_, obs := h.Calc(y)
			if obs.IsZero() {
				continue
			}
			oy, om, od := obs.Date()
			days[time.Date(oy, om, od, 0, 0, 0, 0, time.UTC)]++
		}
	}
	return days
}

// HolidayCounts returns, for every date, the number of US federal holidays
// observed inside the period that ends at that date. For daily and finer
// frequencies the period is the calendar day.
func HolidayCounts(dates []time.Time, f model.Frequency) ([]float64, error) {
	out := make([]float64, len(dates))
	if len(dates) == 0 {
		return out, nil
	}
	first, err := periodStart(dates[0], f)
	if err != nil {
		return nil, err
	}
	days := observed(first, dates[len(dates)-1])
	for i, t := range dates {
		start, _ := periodStart(t, f)
		y, m, d := t.Date()
		end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			out[i] += float64(days[day])
		}
	}
	return out, nil
}

// HolidayExog returns a one-column table of holiday counts indexed by dates.
func HolidayExog(dates []time.Time, f model.Frequency) (*model.Exog, error) {
	counts, err := HolidayCounts(dates, f)
	if err != nil {
		return nil, err
	}
	e := &model.Exog{
		Columns: []string{HolidayColumn},
		Dates:   append([]time.Time(nil), dates...),
		Rows:    make([][]float64, len(dates)),
	}
	for i, c := range counts {
		e.Rows[i] = []float64{c}
	}
	return e, nil
}

// WithHolidays appends the holiday column to e, or builds a new table on the
// series' dates when e is nil. e must share the series index.
func WithHolidays(e *model.Exog, s model.Series) (*model.Exog, error) {
	if e != nil && !e.SameIndex(s) {
		return nil, fmt.Errorf("calendar: exogenous table does not share the dates of %s", s.Name)
	}
	if e == nil {
		return HolidayExog(s.Dates(), s.Freq)
	}
	counts, err := HolidayCounts(s.Dates(), s.Freq)
	if err != nil {
		return nil, err
	}
	for _, c := range e.Columns {
		if c == HolidayColumn {
			return nil, fmt.Errorf("calendar: exogenous table already has a %q column", HolidayColumn)
		}
	}
	out := e.Slice(0, e.Len())
	out.Columns = append(out.Columns, HolidayColumn)
	for i := range out.Rows {
		out.Rows[i] = append(out.Rows[i], counts[i])
	}
	return out, nil
}
