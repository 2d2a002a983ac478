// Package split partitions a date-indexed series, and its optional
// exogenous table, into train, validation and test segments.
//
// The rule is fixed: train holds t <= Train, validation holds
// Train < t <= Val and test holds t > Val. Every date lands in exactly one
// segment and empty segments are legal.
package split

import (
	"fmt"
	"time"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

// Bucket identifies the segment a date belongs to.
type Bucket int

const (
	Train Bucket = iota
	Val
	Test
)

func (b Bucket) String() string {
	switch b {
	case Train:
		return "train"
	case Val:
		return "val"
	case Test:
		return "test"
	}
	return fmt.Sprintf("bucket(%d)", int(b))
}

// Boundaries is an immutable train/validation boundary pair. Both dates are
// naive: any zone is dropped on construction.
type Boundaries struct {
	Train time.Time
	Val   time.Time
}

// NewBoundaries validates and normalises a boundary pair.
func NewBoundaries(train, val time.Time) (Boundaries, error) {
	b := Boundaries{Train: util.Naive(train), Val: util.Naive(val)}
	if b.Val.Before(b.Train) {
		return Boundaries{}, fmt.Errorf("%w: val_boundary %s is before train_boundary %s",
			model.ErrBoundary, util.FormatDate(b.Val), util.FormatDate(b.Train))
	}
	return b, nil
}

// Of returns the bucket t falls in.
func (b Boundaries) Of(t time.Time) Bucket {
	t = util.Naive(t)
	switch {
	case !t.After(b.Train):
		return Train
	case !t.After(b.Val):
		return Val
	default:
		return Test
	}
}

// Segment is one partition of a target series with its exogenous rows.
// Exog is nil when the input carried no exogenous table.
type Segment struct {
	Target model.Series
	Exog   *model.Exog
}

// Result holds the three segments produced by Split.
type Result struct {
	Train Segment
	Val   Segment
	Test  Segment
}

// Len returns the total number of observations across the segments.
func (r Result) Len() int {
	return r.Train.Target.Len() + r.Val.Target.Len() + r.Test.Target.Len()
}

// Split applies the boundary rule to target and, when present, to exog.
// exog must share target's index exactly.
func Split(target model.Series, exog *model.Exog, b Boundaries) (Result, error) {
	if exog != nil && !exog.SameIndex(target) {
		return Result{}, fmt.Errorf("%w: exogenous index (%d rows) does not match target index (%d rows)",
			model.ErrInputShape, exog.Len(), target.Len())
	}
	train, val, test := SplitSeries(target, b)
	res := Result{
		Train: Segment{Target: train},
		Val:   Segment{Target: val},
		Test:  Segment{Target: test},
	}
	if exog != nil {
		res.Train.Exog = exog.Mask(func(t time.Time) bool { return b.Of(t) == Train })
		res.Val.Exog = exog.Mask(func(t time.Time) bool { return b.Of(t) == Val })
		res.Test.Exog = exog.Mask(func(t time.Time) bool { return b.Of(t) == Test })
	}
	return res, nil
}

// SplitSeries applies the boundary rule to a single series.
func SplitSeries(s model.Series, b Boundaries) (train, val, test model.Series) {
	train = s.Filter(func(o model.Observation) bool { return b.Of(o.Date) == Train })
	val = s.Filter(func(o model.Observation) bool { return b.Of(o.Date) == Val })
	test = s.Filter(func(o model.Observation) bool { return b.Of(o.Date) == Test })
	return train, val, test
}

// Count returns how many dates of s fall in each bucket.
func Count(s model.Series, b Boundaries) (train, val, test int) {
	for _, o := range s.Obs {
		switch b.Of(o.Date) {
		case Train:
			train++
		case Val:
			val++
		case Test:
			test++
		}
	}
	return train, val, test
}
