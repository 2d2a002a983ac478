package diagnostics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ─── ADF ──────────────────────────────────────────────────────────────────────

// MacKinnon (1994) response surface for the constant-only regression.
var (
	adfTauMax   = 2.74
	adfTauMin   = -18.83
	adfTauStar  = -1.61
	adfSmallP   = []float64{2.1659, 1.4412, 0.038269}
	adfLargeP   = []float64{1.7339, 0.93202, -0.12745, -0.010368}
	adfCritical = map[string][4]float64{ // MacKinnon (2010), N=1, constant
		"1%":  {-3.43035, -6.5393, -16.786, -79.433},
		"5%":  {-2.86154, -2.8903, -4.234, -40.04},
		"10%": {-2.56677, -1.5384, -2.809, 0},
	}
)

// ADF runs the augmented Dickey–Fuller test with a constant:
//
//	Δy_t = α + β·y_{t-1} + Σ γ_i·Δy_{t-i} + ε_t
//
// H0 is a unit root (β = 0). maxLag <= 0 selects floor(cbrt(n)).
func ADF(x []float64, maxLag int) (Result, error) {
	n := len(x)
	if maxLag <= 0 {
		maxLag = int(math.Floor(math.Cbrt(float64(n))))
	}
	nobs := n - maxLag - 1
	if err := need(TestADF, nobs, 10); err != nil {
		return Result{}, err
	}

	d := make([]float64, n-1)
	for i := range d {
		d[i] = x[i+1] - x[i]
	}
	if stat.Variance(d, nil) == 0 {
		return Result{}, fmt.Errorf("%w: adf", ErrConstant)
	}

	cols := 2 + maxLag
	design := mat.NewDense(nobs, cols, nil)
	y := make([]float64, nobs)
	for i := 0; i < nobs; i++ {
		t := i + maxLag
		y[i] = d[t]
		design.Set(i, 0, 1)
		design.Set(i, 1, x[t])
		for j := 1; j <= maxLag; j++ {
			design.Set(i, 1+j, d[t-j])
		}
	}
	beta, se, err := olsSE(design, y)
	if err != nil {
		return Result{}, fmt.Errorf("adf: %w", err)
	}
	tau := beta[1] / se[1]

	crit := make(map[string]float64, len(adfCritical))
	T := float64(nobs)
	for k, c := range adfCritical {
		crit[k] = c[0] + c[1]/T + c[2]/(T*T) + c[3]/(T*T*T)
	}

	res := Result{
		Test:           TestADF,
		Statistic:      tau,
		PValue:         mackinnonP(tau),
		Lags:           maxLag,
		NObs:           nobs,
		CriticalValues: crit,
	}
	if res.Reject() {
		res.Conclusion = "reject unit root: series looks stationary"
	} else {
		res.Conclusion = "cannot reject unit root: series looks non-stationary"
	}
	return res, nil
}

// mackinnonP is the approximate p-value of an ADF statistic.
func mackinnonP(tau float64) float64 {
	switch {
	case tau > adfTauMax:
		return 1
	case tau < adfTauMin:
		return 0
	}
	coef := adfLargeP
	if tau <= adfTauStar {
		coef = adfSmallP
	}
	return distuv.UnitNormal.CDF(polyval(coef, tau))
}

// polyval evaluates c[0] + c[1]x + c[2]x² + ...
func polyval(c []float64, x float64) float64 {
	var v float64
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// olsSE returns least squares coefficients and their standard errors.
func olsSE(x *mat.Dense, y []float64) (beta, se []float64, err error) {
	r, c := x.Dims()
	if r <= c {
		return nil, nil, fmt.Errorf("%w: %d rows for %d parameters", ErrInsufficientData, r, c)
	}
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, nil, fmt.Errorf("singular design: %w", err)
	}
	var xty, b mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(r, y))
	b.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(x, &b)
	var sse float64
	for i := 0; i < r; i++ {
		e := y[i] - fitted.AtVec(i)
		sse += e * e
	}
	s2 := sse / float64(r-c)
	beta = mat.Col(nil, 0, &b)
	se = make([]float64, c)
	for i := range se {
		se[i] = math.Sqrt(s2 * inv.At(i, i))
	}
	return beta, se, nil
}

// ─── KPSS ─────────────────────────────────────────────────────────────────────

// Regression selects the KPSS deterministic component.
type Regression string

const (
	RegressionLevel Regression = "c"  // level stationarity
	RegressionTrend Regression = "ct" // trend stationarity
)

// Kwiatkowski et al. (1992) table: p-values and critical values.
var (
	kpssP     = []float64{0.10, 0.05, 0.025, 0.01}
	kpssKeys  = []string{"10%", "5%", "2.5%", "1%"}
	kpssLevel = []float64{0.347, 0.463, 0.574, 0.739}
	kpssTrend = []float64{0.119, 0.146, 0.176, 0.216}
)

// KPSS runs the KPSS test. H0 is (level or trend) stationarity. nlags <= 0
// selects ceil(12·(n/100)^¼). P-values are interpolated from the table and
// clamped to [0.01, 0.10].
func KPSS(x []float64, reg Regression, nlags int) (Result, error) {
	n := len(x)
	if err := need(TestKPSS, n, 10); err != nil {
		return Result{}, err
	}
	if reg == "" {
		reg = RegressionLevel
	}
	if reg != RegressionLevel && reg != RegressionTrend {
		return Result{}, fmt.Errorf("kpss: unknown regression %q (use c or ct)", reg)
	}
	if nlags <= 0 {
		nlags = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	if nlags >= n {
		nlags = n - 1
	}

	resid := make([]float64, n)
	table := kpssLevel
	if reg == RegressionTrend {
		table = kpssTrend
		ts := make([]float64, n)
		for i := range ts {
			ts[i] = float64(i)
		}
		a, b := stat.LinearRegression(ts, x, nil, false)
		for i, v := range x {
			resid[i] = v - a - b*float64(i)
		}
	} else {
		m := stat.Mean(x, nil)
		for i, v := range x {
			resid[i] = v - m
		}
	}

	s2 := longRunVariance(resid, nlags)
	if s2 <= 0 {
		return Result{}, fmt.Errorf("%w: kpss", ErrConstant)
	}
	var cum, eta float64
	for _, r := range resid {
		cum += r
		eta += cum * cum
	}
	statistic := eta / (float64(n) * float64(n) * s2)

	crit := map[string]float64{}
	for i, k := range kpssKeys {
		crit[k] = table[i]
	}
	res := Result{
		Test:           TestKPSS,
		Statistic:      statistic,
		PValue:         interpolateP(statistic, table, kpssP),
		Lags:           nlags,
		NObs:           n,
		CriticalValues: crit,
	}
	if res.Reject() {
		res.Conclusion = "reject stationarity: series looks non-stationary"
	} else {
		res.Conclusion = "cannot reject stationarity: series looks stationary"
	}
	return res, nil
}

// longRunVariance is the Newey–West estimate with Bartlett weights.
func longRunVariance(e []float64, lags int) float64 {
	n := float64(len(e))
	var s2 float64
	for _, v := range e {
		s2 += v * v
	}
	s2 /= n
	for l := 1; l <= lags; l++ {
		var cov float64
		for i := l; i < len(e); i++ {
			cov += e[i] * e[i-l]
		}
		w := 1 - float64(l)/float64(lags+1)
		s2 += 2 * w * cov / n
	}
	return s2
}

// interpolateP maps stat onto ps through the increasing critical values.
func interpolateP(v float64, crit, ps []float64) float64 {
	if v <= crit[0] {
		return ps[0]
	}
	last := len(crit) - 1
	if v >= crit[last] {
		return ps[last]
	}
	for i := 1; i <= last; i++ {
		if v <= crit[i] {
			f := (v - crit[i-1]) / (crit[i] - crit[i-1])
			return ps[i-1] + f*(ps[i]-ps[i-1])
		}
	}
	return ps[last]
}
