package window_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/window"
)

func monthly(t *testing.T, n int) model.Series {
	t.Helper()
	dates, err := freq.DateRange(time.Date(1989, time.December, 31, 0, 0, 0, 0, time.UTC), model.FreqMonth, n)
	require.NoError(t, err)
	s := model.Series{Name: "y", Freq: model.FreqMonth}
	for i, d := range dates {
		s.Obs = append(s.Obs, model.Observation{Date: d, Value: float64(i)})
	}
	return s
}

func TestCreate_CountAndWidth(t *testing.T) {
	s := monthly(t, 401)
	ws, err := window.Create(nil, s, 8)
	require.NoError(t, err)
	require.Len(t, ws, 394)

	for i, w := range ws {
		require.Equal(t, 8, w.Len())
		assert.Equal(t, s.Obs[i].Date, w.Target.First().Date)
		assert.Nil(t, w.Exog)
	}
	assert.Equal(t, s.Last().Date, ws[len(ws)-1].End())
}

func TestCreate_WithExog(t *testing.T) {
	s := monthly(t, 12)
	e := &model.Exog{Columns: []string{"x"}}
	for _, o := range s.Obs {
		e.Dates = append(e.Dates, o.Date)
		e.Rows = append(e.Rows, []float64{-o.Value})
	}

	ws, err := window.Create(e, s, 4)
	require.NoError(t, err)
	require.Len(t, ws, 9)
	assert.True(t, ws[3].Exog.SameIndex(ws[3].Target))
	assert.Equal(t, []float64{-3, -4, -5, -6}, ws[3].Exog.Column("x"))
}

func TestCreate_FullWidthGivesOneWindow(t *testing.T) {
	ws, err := window.Create(nil, monthly(t, 5), 5)
	require.NoError(t, err)
	assert.Len(t, ws, 1)
}

func TestCreate_InputSizeTooLarge(t *testing.T) {
	_, err := window.Create(nil, monthly(t, 5), 6)
	require.ErrorIs(t, err, model.ErrInputShape)
	assert.Contains(t, err.Error(), "input_size 6 exceeds series length 5")

	_, err = window.Create(nil, monthly(t, 5), 0)
	assert.ErrorIs(t, err, model.ErrInputShape)
}

func TestCreate_ExogMismatch(t *testing.T) {
	s := monthly(t, 6)
	e := &model.Exog{Columns: []string{"x"}, Dates: s.Dates()[1:], Rows: make([][]float64, 5)}
	_, err := window.Create(e, s, 3)
	assert.ErrorIs(t, err, model.ErrInputShape)
}

func TestLast(t *testing.T) {
	s := monthly(t, 10)
	w, err := window.Last(nil, s, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 9}, w.Target.Values())
	assert.Equal(t, s.Last().Date, w.End())

	_, err = window.Last(nil, s, 11)
	assert.ErrorIs(t, err, model.ErrInputShape)
}
