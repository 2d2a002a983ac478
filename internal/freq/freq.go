// Package freq resolves series frequencies into calendar arithmetic.
//
// Date offsets follow period-end semantics for the calendar frequencies:
// a date that sits on the last day of its month, quarter or year advances to
// the last day of the following period; any other anchor keeps its
// day-of-month, clamped to the length of the target month.
package freq

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// ErrUnsupportedFrequency is returned for frequencies outside the closed set
// that supports date-offset arithmetic.
var ErrUnsupportedFrequency = errors.New("unsupported frequency")

var aliases = map[string]model.Frequency{
	"year": model.FreqYear, "yearly": model.FreqYear, "annual": model.FreqYear, "a": model.FreqYear, "y": model.FreqYear, "ye": model.FreqYear,
	"quarter": model.FreqQuarter, "quarterly": model.FreqQuarter, "q": model.FreqQuarter, "qe": model.FreqQuarter,
	"month": model.FreqMonth, "monthly": model.FreqMonth, "m": model.FreqMonth, "me": model.FreqMonth,
	"day": model.FreqDay, "daily": model.FreqDay, "d": model.FreqDay,
	"hour": model.FreqHour, "hourly": model.FreqHour, "h": model.FreqHour,
	"minute": model.FreqMinute, "min": model.FreqMinute,
}

// Parse resolves a frequency name or common alias.
func Parse(s string) (model.Frequency, error) {
	f, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFrequency, s)
	}
	return f, nil
}

// Offset returns the date-offset code used for f: YE, QE, ME or D.
func Offset(f model.Frequency) (string, error) {
	switch f {
	case model.FreqYear:
		return "YE", nil
	case model.FreqQuarter:
		return "QE", nil
	case model.FreqMonth:
		return "ME", nil
	case model.FreqDay:
		return "D", nil
	}
	return "", fmt.Errorf("%w: %q (supported: year, quarter, month, day)", ErrUnsupportedFrequency, f)
}

// monthsPer returns the number of months in one period, or 0 for day.
func monthsPer(f model.Frequency) int {
	switch f {
	case model.FreqYear:
		return 12
	case model.FreqQuarter:
		return 3
	case model.FreqMonth:
		return 1
	}
	return 0
}

// DateRange returns the periods dates that follow last at frequency f.
// The result never includes last itself.
func DateRange(last time.Time, f model.Frequency, periods int) ([]time.Time, error) {
	if _, err := Offset(f); err != nil {
		return nil, err
	}
	if periods < 0 {
		return nil, fmt.Errorf("date range: negative periods %d", periods)
	}
	out := make([]time.Time, periods)
	for i := range out {
		out[i] = shift(last, f, i+1)
	}
	return out, nil
}

// Next returns the date one period after t.
func Next(t time.Time, f model.Frequency) (time.Time, error) {
	r, err := DateRange(t, f, 1)
	if err != nil {
		return time.Time{}, err
	}
	return r[0], nil
}

// shift moves t forward by n periods of f, computed from t directly so that
// repeated steps never drift.
func shift(t time.Time, f model.Frequency, n int) time.Time {
	m := monthsPer(f)
	if m == 0 {
		return t.AddDate(0, 0, n)
	}
	y, mon, d := t.Date()
	clock := t.Sub(time.Date(y, mon, d, 0, 0, 0, 0, t.Location()))

	if IsPeriodEnd(t, f) {
		// Last day of the period that ends n periods later.
		first := time.Date(y, mon+time.Month(m*n)+1, 1, 0, 0, 0, 0, t.Location())
		return first.AddDate(0, 0, -1).Add(clock)
	}
	target := time.Date(y, mon+time.Month(m*n), 1, 0, 0, 0, 0, t.Location())
	if dim := daysIn(target); d > dim {
		d = dim
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, t.Location()).Add(clock)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// IsPeriodEnd reports whether t falls on the last day of its period.
func IsPeriodEnd(t time.Time, f model.Frequency) bool {
	if t.Day() != daysIn(t) {
		return false
	}
	switch f {
	case model.FreqYear:
		return t.Month() == time.December
	case model.FreqQuarter:
		return t.Month()%3 == 0
	case model.FreqMonth:
		return true
	}
	return false
}

// PeriodEnd returns the last day of the period of f containing t. Day and
// finer frequencies return t truncated to the start of its day, hour or minute.
func PeriodEnd(t time.Time, f model.Frequency) time.Time {
	y, mon, d := t.Date()
	switch f {
	case model.FreqYear:
		return time.Date(y+1, time.January, 0, 0, 0, 0, 0, t.Location())
	case model.FreqQuarter:
		q := (mon-1)/3 + 1
		return time.Date(y, q*3+1, 0, 0, 0, 0, 0, t.Location())
	case model.FreqMonth:
		return time.Date(y, mon+1, 0, 0, 0, 0, 0, t.Location())
	case model.FreqHour:
		return t.Truncate(time.Hour)
	case model.FreqMinute:
		return t.Truncate(time.Minute)
	}
	return time.Date(y, mon, d, 0, 0, 0, 0, t.Location())
}

// Coarser reports whether a has longer periods than b.
func Coarser(a, b model.Frequency) bool {
	return rank[a] > rank[b]
}

var rank = map[model.Frequency]int{
	model.FreqMinute: 1, model.FreqHour: 2, model.FreqDay: 3,
	model.FreqMonth: 4, model.FreqQuarter: 5, model.FreqYear: 6,
}

// periodIndex maps t to an integer that increases by exactly one from one
// period of f to the next.
func periodIndex(t time.Time, f model.Frequency) int64 {
	switch f {
	case model.FreqYear:
		return int64(t.Year())
	case model.FreqQuarter:
		return int64(t.Year())*4 + int64(t.Month()-1)/3
	case model.FreqMonth:
		return int64(t.Year())*12 + int64(t.Month()-1)
	case model.FreqDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
	case model.FreqHour:
		return t.Unix() / 3600
	case model.FreqMinute:
		return t.Unix() / 60
	}
	return 0
}

// IsEqualToExpected reports whether every date is exactly one period of f
// after the one before it. For day and coarser frequencies the next date
// must be the one Next returns, so a series is either anchored on period
// ends or keeps the same day within each period. Sequences shorter than two
// dates always match.
func IsEqualToExpected(dates []time.Time, f model.Frequency) bool {
	if _, ok := aliases[string(f)]; !ok {
		return false
	}
	for i := 1; i < len(dates); i++ {
		if !consecutive(dates[i-1], dates[i], f) {
			return false
		}
	}
	return true
}

func consecutive(prev, next time.Time, f model.Frequency) bool {
	switch f {
	case model.FreqHour, model.FreqMinute:
		return periodIndex(next, f)-periodIndex(prev, f) == 1
	}
	return shift(prev, f, 1).Equal(next)
}

// Infer returns the finest frequency the dates are consistent with.
func Infer(dates []time.Time) (model.Frequency, bool) {
	if len(dates) < 2 {
		return "", false
	}
	for _, f := range []model.Frequency{
		model.FreqMinute, model.FreqHour, model.FreqDay,
		model.FreqMonth, model.FreqQuarter, model.FreqYear,
	} {
		if IsEqualToExpected(dates, f) {
			return f, true
		}
	}
	return "", false
}
