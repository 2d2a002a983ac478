package arimax

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/models"
)

// coefficients of a fitted ARIMAX(p, d, q) on the d-times differenced
// series: w_t = c + Σ ar_i w_{t-i} + Σ ma_j e_{t-j} + β·x_t + e_t.
type coefficients struct {
	Const  float64   `json:"const"`
	AR     []float64 `json:"ar"`
	MA     []float64 `json:"ma"`
	Beta   []float64 `json:"beta"`
	Sigma2 float64   `json:"sigma2"`
}

// difference applies d rounds of first differencing.
func difference(x []float64, d int) []float64 {
	out := append([]float64(nil), x...)
	for k := 0; k < d; k++ {
		if len(out) < 2 {
			return nil
		}
		next := make([]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			next[i-1] = out[i] - out[i-1]
		}
		out = next
	}
	return out
}

// differenceRows differences every column of rows d times.
func differenceRows(rows [][]float64, d int) [][]float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	for k := 0; k < d; k++ {
		next := make([][]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			row := make([]float64, len(out[i]))
			for j := range row {
				row[j] = out[i][j] - out[i-1][j]
			}
			next[i-1] = row
		}
		out = next
	}
	return out
}

// ols solves the least squares problem through the normal equations with a
// small ridge term so that collinear designs still produce a solution.
func ols(x *mat.Dense, y []float64) ([]float64, error) {
	r, c := x.Dims()
	if r <= c {
		return nil, fmt.Errorf("%w: arimax: %d usable rows for %d parameters", models.ErrValidation, r, c)
	}
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	scale := 0.0
	for i := 0; i < c; i++ {
		scale += xtx.At(i, i)
	}
	ridge := 1e-9 * math.Max(1, scale/float64(c))
	for i := 0; i < c; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridge)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(r, y))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("arimax: solving normal equations: %w", err)
	}
	return mat.Col(nil, 0, &beta), nil
}

// longOrder picks the order of the long autoregression used to estimate
// innovations in the first Hannan–Rissanen stage.
func longOrder(n, p, q int) int {
	m := int(math.Ceil(2 * math.Log(float64(n))))
	if m < p+q {
		m = p + q
	}
	if m > n/3 {
		m = n / 3
	}
	if m < 1 {
		m = 1
	}
	return m
}

// estimate fits the model to y with optional exogenous rows x (one row per
// observation of y).
func estimate(y []float64, x [][]float64, p, d, q int) (coefficients, error) {
	w := difference(y, d)
	xd := differenceRows(x, d)
	n := len(w)
	k := 0
	if len(xd) > 0 {
		k = len(xd[0])
	}

	e := make([]float64, n)
	start := p
	if q > 0 {
		m := longOrder(n, p, q)
		if n-m < 1 {
			return coefficients{}, fmt.Errorf("%w: arimax: %d differenced observations are too few for the innovation estimate",
				models.ErrValidation, n)
		}
		design := mat.NewDense(n-m, 1+m, nil)
		target := make([]float64, n-m)
		for t := m; t < n; t++ {
			design.Set(t-m, 0, 1)
			for i := 1; i <= m; i++ {
				design.Set(t-m, i, w[t-i])
			}
			target[t-m] = w[t]
		}
		phi, err := ols(design, target)
		if err != nil {
			return coefficients{}, fmt.Errorf("long autoregression: %w", err)
		}
		for t := m; t < n; t++ {
			fit := phi[0]
			for i := 1; i <= m; i++ {
				fit += phi[i] * w[t-i]
			}
			e[t] = w[t] - fit
		}
		if m+q > start {
			start = m + q
		}
	}

	if n-start < 1 {
		return coefficients{}, fmt.Errorf("%w: arimax: %d differenced observations leave no rows after %d lags",
			models.ErrValidation, n, start)
	}
	cols := 1 + p + q + k
	design := mat.NewDense(n-start, cols, nil)
	target := make([]float64, n-start)
	for t := start; t < n; t++ {
		row := t - start
		design.Set(row, 0, 1)
		for i := 1; i <= p; i++ {
			design.Set(row, i, w[t-i])
		}
		for j := 1; j <= q; j++ {
			design.Set(row, p+j, e[t-j])
		}
		for c := 0; c < k; c++ {
			design.Set(row, 1+p+q+c, xd[t][c])
		}
		target[row] = w[t]
	}
	beta, err := ols(design, target)
	if err != nil {
		return coefficients{}, err
	}

	coef := coefficients{
		Const: beta[0],
		AR:    append([]float64{}, beta[1:1+p]...),
		MA:    append([]float64{}, beta[1+p:1+p+q]...),
		Beta:  append([]float64{}, beta[1+p+q:]...),
	}

	var fitted mat.VecDense
	fitted.MulVec(design, mat.NewVecDense(cols, beta))
	ss := 0.0
	for i, v := range target {
		r := v - fitted.AtVec(i)
		ss += r * r
	}
	coef.Sigma2 = ss / float64(len(target))
	return coef, nil
}

// step returns the one-step conditional mean at position t given the
// differenced history w, innovations e and the exogenous row xt.
func (c coefficients) step(w, e []float64, xt []float64, t int) float64 {
	v := c.Const
	for i, a := range c.AR {
		if t-1-i >= 0 {
			v += a * w[t-1-i]
		}
	}
	for j, m := range c.MA {
		if t-1-j >= 0 {
			v += m * e[t-1-j]
		}
	}
	for i, b := range c.Beta {
		v += b * xt[i]
	}
	return v
}
