package diagnostics_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/diagnostics"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

func whiteNoise(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64()
	}
	return out
}

func explosive(n int) []float64 {
	e := whiteNoise(n, 4)
	out := make([]float64, n)
	out[0] = 1
	for i := 1; i < n; i++ {
		out[i] = 1.05*out[i-1] + e[i]
	}
	return out
}

func sine(n, period int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * float64(i) / float64(period))
	}
	return out
}

func TestADFStationary(t *testing.T) {
	res, err := diagnostics.ADF(whiteNoise(200, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, diagnostics.TestADF, res.Test)
	assert.Equal(t, 5, res.Lags, "floor(cbrt(200))")
	assert.Equal(t, 200-5-1, res.NObs)
	assert.Less(t, res.Statistic, res.CriticalValues["1%"])
	assert.Less(t, res.PValue, 0.01)
	assert.True(t, res.Reject())
	assert.Contains(t, res.Conclusion, "stationary")
}

func TestADFExplosive(t *testing.T) {
	res, err := diagnostics.ADF(explosive(100), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Lags)
	assert.Greater(t, res.PValue, 0.5)
	assert.False(t, res.Reject())
	assert.Contains(t, res.Conclusion, "non-stationary")
}

func TestADFCriticalValuesOrdered(t *testing.T) {
	res, err := diagnostics.ADF(whiteNoise(100, 2), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1%", "5%", "10%"}, res.CriticalLevels())
	assert.Less(t, res.CriticalValues["1%"], res.CriticalValues["5%"])
	assert.Less(t, res.CriticalValues["5%"], res.CriticalValues["10%"])
	// finite-sample values sit just below the asymptotic ones
	assert.InDelta(t, -2.89, res.CriticalValues["5%"], 0.02)
}

func TestADFInsufficientData(t *testing.T) {
	_, err := diagnostics.ADF(whiteNoise(8, 3), 0)
	assert.ErrorIs(t, err, diagnostics.ErrInsufficientData)
}

func TestADFConstantSeries(t *testing.T) {
	x := make([]float64, 50)
	_, err := diagnostics.ADF(x, 0)
	assert.ErrorIs(t, err, diagnostics.ErrConstant)
}

func TestKPSSLevelStationary(t *testing.T) {
	res, err := diagnostics.KPSS(sine(120, 12), diagnostics.RegressionLevel, 0)
	require.NoError(t, err)
	assert.Equal(t, int(math.Ceil(12*math.Pow(1.2, 0.25))), res.Lags)
	assert.InDelta(t, 0.10, res.PValue, 1e-12)
	assert.False(t, res.Reject())
	assert.Len(t, res.CriticalValues, 4)
	assert.Equal(t, 0.463, res.CriticalValues["5%"])
}

func TestKPSSTrendRejectsLevel(t *testing.T) {
	x := make([]float64, 100)
	for i := range x {
		x[i] = float64(i)
	}
	res, err := diagnostics.KPSS(x, "", 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, res.PValue, 1e-12)
	assert.True(t, res.Reject())
	assert.Contains(t, res.Conclusion, "non-stationary")
}

func TestKPSSTrendRegression(t *testing.T) {
	x := sine(120, 12)
	for i := range x {
		x[i] += 0.5 * float64(i)
	}
	res, err := diagnostics.KPSS(x, diagnostics.RegressionTrend, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Lags)
	assert.Equal(t, 0.146, res.CriticalValues["5%"])
	assert.False(t, res.Reject())
}

func TestKPSSErrors(t *testing.T) {
	_, err := diagnostics.KPSS(sine(5, 4), diagnostics.RegressionLevel, 0)
	assert.ErrorIs(t, err, diagnostics.ErrInsufficientData)
	_, err = diagnostics.KPSS(sine(50, 4), diagnostics.Regression("x"), 0)
	assert.Error(t, err)
}

func TestACFKnownValues(t *testing.T) {
	c, err := diagnostics.ACF([]float64{1, 2, 3, 4, 5}, 0)
	require.NoError(t, err)
	require.Len(t, c.Values, 5)
	assert.Equal(t, 1.0, c.Values[0])
	assert.InDelta(t, 0.4, c.Values[1], 1e-12)
	assert.InDelta(t, -0.1, c.Values[2], 1e-12)
	assert.InDelta(t, 1.96/math.Sqrt(5), c.Bound, 1e-12)
}

func TestACFAlternatingSignificant(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = float64(1 - 2*(i%2))
	}
	c, err := diagnostics.ACF(x, 5)
	require.NoError(t, err)
	assert.Len(t, c.Values, 6)
	assert.InDelta(t, -39.0/40, c.Values[1], 1e-12)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, c.Significant)
}

func TestPACFKnownValues(t *testing.T) {
	c, err := diagnostics.PACF([]float64{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)
	require.Len(t, c.Values, 3)
	assert.Equal(t, 1.0, c.Values[0])
	assert.InDelta(t, 0.4, c.Values[1], 1e-12)
	assert.InDelta(t, (-0.1-0.16)/0.84, c.Values[2], 1e-12)
}

func TestPACFOfAR1CutsOff(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	x := make([]float64, 2000)
	for i := 1; i < len(x); i++ {
		x[i] = 0.8*x[i-1] + r.NormFloat64()
	}
	c, err := diagnostics.PACF(x, 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, c.Values[1], 0.05)
	for k := 2; k <= 5; k++ {
		assert.Less(t, math.Abs(c.Values[k]), 0.1, "lag %d", k)
	}
}

func TestCorrelogramConstant(t *testing.T) {
	_, err := diagnostics.ACF([]float64{2, 2, 2, 2}, 0)
	assert.ErrorIs(t, err, diagnostics.ErrConstant)
}

func TestLjungBoxDetectsCorrelation(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = float64(1 - 2*(i%2))
	}
	res, err := diagnostics.LjungBox(x, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Lags)
	assert.True(t, res.Reject())

	noise, err := diagnostics.LjungBox(whiteNoise(60, 11), 10, 0)
	require.NoError(t, err)
	assert.Less(t, noise.Statistic, res.Statistic)
	assert.Greater(t, noise.PValue, res.PValue)
}

func TestLjungBoxDefaultLags(t *testing.T) {
	res, err := diagnostics.LjungBox(whiteNoise(20, 5), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Lags, "min(10, n/5)")
}

func TestLjungBoxFitDF(t *testing.T) {
	_, err := diagnostics.LjungBox(whiteNoise(50, 5), 3, 3)
	assert.Error(t, err)

	a, err := diagnostics.LjungBox(whiteNoise(50, 5), 6, 0)
	require.NoError(t, err)
	b, err := diagnostics.LjungBox(whiteNoise(50, 5), 6, 2)
	require.NoError(t, err)
	assert.Equal(t, a.Statistic, b.Statistic)
	assert.Less(t, b.PValue, a.PValue)
}

func TestJarqueBeraKnownValue(t *testing.T) {
	res, err := diagnostics.JarqueBera([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	// skew 0, kurtosis 1.7
	want := 5.0 / 6 * (1.3 * 1.3 / 4)
	assert.InDelta(t, want, res.Statistic, 1e-12)
	assert.InDelta(t, math.Exp(-want/2), res.PValue, 1e-9)
	assert.False(t, res.Reject())
}

func TestJarqueBeraOutlier(t *testing.T) {
	x := make([]float64, 51)
	for i := range x[:50] {
		x[i] = float64(i % 3)
	}
	x[50] = 100
	res, err := diagnostics.JarqueBera(x)
	require.NoError(t, err)
	assert.True(t, res.Reject())
	assert.Equal(t, "reject normality", res.Conclusion)
}

func TestValuesTrimsEdges(t *testing.T) {
	nan := math.NaN()
	s := series(nan, 1, 2, 3, nan)
	v, err := diagnostics.Values(s)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)

	_, err = diagnostics.Values(series(1, nan, 3))
	assert.ErrorIs(t, err, diagnostics.ErrMissingValues)
}

func TestRunDispatch(t *testing.T) {
	x := whiteNoise(100, 9)
	for _, name := range diagnostics.Tests {
		out, err := diagnostics.Run(name, x, diagnostics.Options{})
		require.NoError(t, err, name)
		switch name {
		case diagnostics.TestACF, diagnostics.TestPACF:
			assert.IsType(t, diagnostics.Correlogram{}, out, name)
		default:
			assert.IsType(t, diagnostics.Result{}, out, name)
		}
	}
	_, err := diagnostics.Run("granger", x, diagnostics.Options{})
	assert.ErrorIs(t, err, diagnostics.ErrUnknownTest)
}

func series(vals ...float64) model.Series {
	s := model.Series{Name: "x", Freq: model.FreqMonth}
	for i, v := range vals {
		s.Obs = append(s.Obs, model.Observation{
			Date:  time.Date(2020, time.Month(i+2), 0, 0, 0, 0, 0, time.UTC),
			Value: v,
		})
	}
	return s
}
