// Package pipeline provides helpers for reading and writing series and
// exogenous tables via stdin/stdout in JSONL format, the canonical pipe
// format of the CLI.
//
// Series lines:    {"series_id":"UNRATE","date":"2020-01-31","value":3.5}
// Exogenous lines: {"date":"2020-01-31","cpi":258.7,"holidays":1}
package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/freq"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/util"
)

const maxLine = 1024 * 1024

// lines yields the trimmed, non-blank, non-comment lines of r with their
// 1-based line numbers.
func lines(r io.Reader, fn func(n int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, maxLine), maxLine)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || bytes.HasPrefix(line, []byte("//")) {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// parseValue accepts a number, null, "" or "." (the FRED missing sentinel).
func parseValue(v interface{}) (float64, error) {
	switch v := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case string:
		if v == "" || v == "." {
			return math.NaN(), nil
		}
		return 0, fmt.Errorf("unexpected string value %q", v)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

func jsonValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// ─── Series ───────────────────────────────────────────────────────────────────

type seriesRow struct {
	SeriesID string      `json:"series_id,omitempty"`
	Freq     string      `json:"freq,omitempty"`
	Date     string      `json:"date"`
	Value    interface{} `json:"value"`
}

// ReadSeries reads series JSONL from r. The name is taken from the first
// series_id seen and the frequency from the first freq field; when no freq
// is given it is inferred from the dates.
func ReadSeries(r io.Reader) (model.Series, error) {
	var s model.Series
	var declared string
	err := lines(r, func(n int, line []byte) error {
		var rec seriesRow
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", n, err)
		}
		if s.Name == "" && rec.SeriesID != "" {
			s.Name = rec.SeriesID
		}
		if declared == "" {
			declared = rec.Freq
		}
		date, err := util.ParseDate(rec.Date)
		if err != nil {
			return fmt.Errorf("line %d: invalid date %q", n, rec.Date)
		}
		val, err := parseValue(rec.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		s.Obs = append(s.Obs, model.Observation{Date: date, Value: val})
		return nil
	})
	if err != nil {
		return model.Series{}, err
	}
	if s.IsEmpty() {
		return model.Series{}, fmt.Errorf("no observations read from input (is stdin empty?)")
	}
	if declared != "" {
		f, err := freq.Parse(declared)
		if err != nil {
			return model.Series{}, err
		}
		s.Freq = f
	} else if f, ok := freq.Infer(s.Dates()); ok {
		s.Freq = f
	}
	return s, nil
}

// WriteSeries writes s as JSONL to w, one observation per line.
func WriteSeries(w io.Writer, s model.Series) error {
	enc := json.NewEncoder(w)
	for _, o := range s.Obs {
		rec := seriesRow{
			SeriesID: s.Name,
			Date:     util.FormatDate(o.Date),
			Value:    jsonValue(o.Value),
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// ─── Exogenous Tables ─────────────────────────────────────────────────────────

// ReadExog reads exogenous JSONL from r. Every key other than "date" is a
// column; columns are ordered by first appearance and a column missing from
// a row is NaN.
func ReadExog(r io.Reader) (*model.Exog, error) {
	e := &model.Exog{}
	index := map[string]int{}
	var raw []map[string]interface{}
	err := lines(r, func(n int, line []byte) error {
		var rec map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(line))
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", n, err)
		}
		ds, _ := rec["date"].(string)
		date, err := util.ParseDate(ds)
		if err != nil {
			return fmt.Errorf("line %d: invalid date %q", n, ds)
		}
		delete(rec, "date")
		// map iteration is random; sort so new columns get a stable order
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(e.Columns)
				e.Columns = append(e.Columns, k)
			}
		}
		e.Dates = append(e.Dates, date)
		raw = append(raw, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(e.Dates) == 0 {
		return nil, fmt.Errorf("no rows read from exogenous input")
	}
	if len(e.Columns) == 0 {
		return nil, fmt.Errorf("exogenous input has no columns besides date")
	}
	e.Rows = make([][]float64, len(raw))
	for i, rec := range raw {
		row := make([]float64, len(e.Columns))
		for j := range row {
			row[j] = math.NaN()
		}
		for k, v := range rec {
			val, err := parseValue(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, k, err)
			}
			row[index[k]] = val
		}
		e.Rows[i] = row
	}
	return e, nil
}

// WriteExog writes e as JSONL to w. Keys are emitted in column order.
func WriteExog(w io.Writer, e *model.Exog) error {
	if e == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	for i, d := range e.Dates {
		var sb strings.Builder
		sb.WriteString(`{"date":`)
		b, _ := json.Marshal(util.FormatDate(d))
		sb.Write(b)
		for j, c := range e.Columns {
			sb.WriteByte(',')
			k, _ := json.Marshal(c)
			sb.Write(k)
			sb.WriteByte(':')
			v, err := json.Marshal(jsonValue(e.Rows[i][j]))
			if err != nil {
				return err
			}
			sb.Write(v)
		}
		sb.WriteString("}\n")
		if _, err := bw.WriteString(sb.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadFile opens path and applies read; "-" reads stdin.
func ReadFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	if path == "-" {
		return read(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return read(f)
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
