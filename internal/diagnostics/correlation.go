package diagnostics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Correlogram holds autocorrelation coefficients for lags 0..len-1 and the
// approximate 95% band ±1.96/√n.
type Correlogram struct {
	Test        string    `json:"test"`
	NObs        int       `json:"nobs"`
	Values      []float64 `json:"values"`
	Bound       float64   `json:"bound"`
	Significant []int     `json:"significant"` // lags ≥ 1 outside the band
}

func defaultMaxLag(n int) int {
	lag := int(math.Floor(10 * math.Log10(float64(n))))
	if lag >= n {
		lag = n - 1
	}
	return lag
}

// autocorr returns ρ_0..ρ_maxLag with the biased (1/n) autocovariance.
func autocorr(x []float64, maxLag int) ([]float64, error) {
	m := stat.Mean(x, nil)
	var denom float64
	for _, v := range x {
		denom += (v - m) * (v - m)
	}
	if denom == 0 {
		return nil, ErrConstant
	}
	out := make([]float64, maxLag+1)
	for k := 0; k <= maxLag; k++ {
		var num float64
		for i := k; i < len(x); i++ {
			num += (x[i] - m) * (x[i-k] - m)
		}
		out[k] = num / denom
	}
	return out, nil
}

func correlogram(test string, n int, vals []float64) Correlogram {
	c := Correlogram{Test: test, NObs: n, Values: vals, Bound: 1.96 / math.Sqrt(float64(n))}
	c.Significant = []int{}
	for k := 1; k < len(vals); k++ {
		if math.Abs(vals[k]) > c.Bound {
			c.Significant = append(c.Significant, k)
		}
	}
	return c
}

func clampLag(test string, n, maxLag int) (int, error) {
	if err := need(test, n, 3); err != nil {
		return 0, err
	}
	if maxLag <= 0 {
		maxLag = defaultMaxLag(n)
	}
	if maxLag >= n {
		maxLag = n - 1
	}
	return maxLag, nil
}

// ACF computes the sample autocorrelation function up to maxLag.
// maxLag <= 0 selects floor(10·log10(n)).
func ACF(x []float64, maxLag int) (Correlogram, error) {
	maxLag, err := clampLag(TestACF, len(x), maxLag)
	if err != nil {
		return Correlogram{}, err
	}
	acf, err := autocorr(x, maxLag)
	if err != nil {
		return Correlogram{}, fmt.Errorf("%w: acf", err)
	}
	return correlogram(TestACF, len(x), acf), nil
}

// PACF computes partial autocorrelations with the Durbin–Levinson
// recursion. Lag 0 is 1 by convention.
func PACF(x []float64, maxLag int) (Correlogram, error) {
	maxLag, err := clampLag(TestPACF, len(x), maxLag)
	if err != nil {
		return Correlogram{}, err
	}
	acf, err := autocorr(x, maxLag)
	if err != nil {
		return Correlogram{}, fmt.Errorf("%w: pacf", err)
	}

	pacf := make([]float64, maxLag+1)
	pacf[0] = 1
	phi := make([]float64, maxLag+1) // phi[j] of the current order
	prev := make([]float64, maxLag+1)
	phi[1] = acf[1]
	pacf[1] = acf[1]
	for k := 2; k <= maxLag; k++ {
		copy(prev, phi)
		num, den := acf[k], 1.0
		for j := 1; j < k; j++ {
			num -= prev[j] * acf[k-j]
			den -= prev[j] * acf[j]
		}
		if den == 0 {
			break
		}
		phi[k] = num / den
		for j := 1; j < k; j++ {
			phi[j] = prev[j] - phi[k]*prev[k-j]
		}
		pacf[k] = phi[k]
	}
	return correlogram(TestPACF, len(x), pacf), nil
}

// LjungBox tests H0: no autocorrelation up to lag h.
//
//	Q = n(n+2) Σ_{k=1..h} ρ_k² / (n-k)  ~  χ²(h - fitdf)
//
// lags <= 0 selects min(10, n/5).
func LjungBox(x []float64, lags, fitdf int) (Result, error) {
	n := len(x)
	if err := need(TestLjungBox, n, 4); err != nil {
		return Result{}, err
	}
	if lags <= 0 {
		lags = n / 5
		if lags > 10 {
			lags = 10
		}
		if lags < 1 {
			lags = 1
		}
	}
	if lags >= n {
		return Result{}, fmt.Errorf("%w: ljung-box with %d lags needs more than %d observations", ErrInsufficientData, lags, n)
	}
	df := lags - fitdf
	if df < 1 {
		return Result{}, fmt.Errorf("ljung-box: %d lags leave no degrees of freedom after fitdf=%d", lags, fitdf)
	}
	acf, err := autocorr(x, lags)
	if err != nil {
		return Result{}, fmt.Errorf("%w: ljung-box", err)
	}
	nf := float64(n)
	var q float64
	for k := 1; k <= lags; k++ {
		q += acf[k] * acf[k] / (nf - float64(k))
	}
	q *= nf * (nf + 2)

	res := Result{
		Test:      TestLjungBox,
		Statistic: q,
		PValue:    distuv.ChiSquared{K: float64(df)}.Survival(q),
		Lags:      lags,
		NObs:      n,
	}
	if res.Reject() {
		res.Conclusion = "reject independence: residual autocorrelation present"
	} else {
		res.Conclusion = "cannot reject independence: no significant autocorrelation"
	}
	return res, nil
}

// JarqueBera tests H0: the sample is normally distributed.
//
//	JB = n/6 · (S² + (K-3)²/4)  ~  χ²(2)
func JarqueBera(x []float64) (Result, error) {
	n := len(x)
	if err := need(TestJarqueBera, n, 3); err != nil {
		return Result{}, err
	}
	m := stat.Mean(x, nil)
	var m2, m3, m4 float64
	for _, v := range x {
		d := v - m
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	nf := float64(n)
	m2, m3, m4 = m2/nf, m3/nf, m4/nf
	if m2 == 0 {
		return Result{}, fmt.Errorf("%w: jarque-bera", ErrConstant)
	}
	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4 / (m2 * m2)
	jb := nf / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)

	res := Result{
		Test:      TestJarqueBera,
		Statistic: jb,
		PValue:    distuv.ChiSquared{K: 2}.Survival(jb),
		NObs:      n,
	}
	if res.Reject() {
		res.Conclusion = "reject normality"
	} else {
		res.Conclusion = "cannot reject normality"
	}
	return res, nil
}
