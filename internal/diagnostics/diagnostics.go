// Package diagnostics implements the stationarity, autocorrelation and
// normality tests used to pick model orders and check residuals.
//
// Every test works on a plain []float64; Values extracts one from a series.
// Leading and trailing missing values are dropped, interior gaps are an
// error because they would silently shift every lag.
package diagnostics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// Test names accepted by Run.
const (
	TestADF        = "adf"
	TestKPSS       = "kpss"
	TestLjungBox   = "ljung-box"
	TestJarqueBera = "jarque-bera"
	TestACF        = "acf"
	TestPACF       = "pacf"
)

// Tests lists every test Run understands, in display order.
var Tests = []string{TestADF, TestKPSS, TestLjungBox, TestJarqueBera, TestACF, TestPACF}

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrMissingValues    = errors.New("series has interior missing values")
	ErrUnknownTest      = errors.New("unknown diagnostic test")
	ErrConstant         = errors.New("series is constant")
)

// significance is the level every Conclusion is stated at.
const significance = 0.05

// Result is the outcome of a hypothesis test.
type Result struct {
	Test           string             `json:"test"`
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"p_value"`
	Lags           int                `json:"lags"`
	NObs           int                `json:"nobs"`
	CriticalValues map[string]float64 `json:"critical_values,omitempty"`
	Conclusion     string             `json:"conclusion"`
}

// Reject reports whether the null hypothesis is rejected at 5%.
func (r Result) Reject() bool { return r.PValue < significance }

// CriticalLevels returns the keys of CriticalValues sorted from the
// strictest level.
func (r Result) CriticalLevels() []string {
	keys := make([]string, 0, len(r.CriticalValues))
	for k := range r.CriticalValues {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return levelPct(keys[i]) < levelPct(keys[j])
	})
	return keys
}

func levelPct(k string) float64 {
	var v float64
	fmt.Sscanf(strings.TrimSuffix(k, "%"), "%g", &v)
	return v
}

// Options tunes Run. Zero values select each test's default.
type Options struct {
	Lags       int        // ADF max lag, KPSS bandwidth, Ljung–Box lags, ACF/PACF max lag
	Regression Regression // KPSS only
	FitDF      int        // Ljung–Box degrees of freedom consumed by a fitted model
}

// Run dispatches to the named test. The result is a Result for hypothesis
// tests and a Correlogram for acf and pacf.
func Run(test string, values []float64, opts Options) (interface{}, error) {
	switch strings.ToLower(test) {
	case TestADF:
		return ADF(values, opts.Lags)
	case TestKPSS:
		return KPSS(values, opts.Regression, opts.Lags)
	case TestLjungBox, "ljungbox", "lb":
		return LjungBox(values, opts.Lags, opts.FitDF)
	case TestJarqueBera, "jb":
		return JarqueBera(values)
	case TestACF:
		return ACF(values, opts.Lags)
	case TestPACF:
		return PACF(values, opts.Lags)
	default:
		return nil, fmt.Errorf("%w %q (use %s)", ErrUnknownTest, test, strings.Join(Tests, ", "))
	}
}

// Values returns the observations of s with leading and trailing missing
// values removed.
func Values(s model.Series) ([]float64, error) {
	vals := s.Values()
	lo, hi := 0, len(vals)
	for lo < hi && math.IsNaN(vals[lo]) {
		lo++
	}
	for hi > lo && math.IsNaN(vals[hi-1]) {
		hi--
	}
	for i := lo; i < hi; i++ {
		if math.IsNaN(vals[i]) {
			return nil, fmt.Errorf("%w: %s at %s", ErrMissingValues, s.Name, s.Obs[i].Date.Format("2006-01-02"))
		}
	}
	return vals[lo:hi], nil
}

func need(test string, n, least int) error {
	if n < least {
		return fmt.Errorf("%w: %s needs at least %d observations, got %d", ErrInsufficientData, test, least, n)
	}
	return nil
}
