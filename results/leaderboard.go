package results

import (
	"fmt"
	"math"
	"sort"
)

// DerivedColumn returns the name of the baseline-relative column.
func DerivedColumn(baseline string) string {
	return fmt.Sprintf("mean(e-e_%s)", baseline)
}

// Cell is one leaderboard value. A missing cell means the pair was never
// recorded (for instance because it failed); it is not a zero.
type Cell struct {
	Value   float64
	Present bool
	Best    bool
}

// Row is one model's line of the leaderboard.
type Row struct {
	Model string
	Cells []Cell
}

// Leaderboard is a models x datasets view of one metric. Lower is better.
type Leaderboard struct {
	Metric   string
	Baseline string
	Columns  []string
	Rows     []Row

	// Derived is true when the last column is the baseline-relative mean.
	Derived bool
}

// Format builds the leaderboard of metric.
//
// When sortRows is set and baseline has a value in every dataset column, a
// derived column holds, for each model, the mean over its present datasets
// of (value - baseline value), and rows are sorted by it ascending. Models
// with no comparable value sort last; ties are broken by model name. When
// the baseline is missing anywhere the derived column is omitted and rows
// keep insertion order.
func (t *Table) Format(metric string, sortRows bool, baseline string) *Leaderboard {
	lb := &Leaderboard{Metric: metric, Baseline: baseline, Columns: t.Datasets()}
	for _, model := range t.models {
		row := Row{Model: model, Cells: make([]Cell, len(lb.Columns))}
		found := false
		for j, ds := range lb.Columns {
			if v, ok := t.Value(ds, model, metric); ok {
				row.Cells[j] = Cell{Value: v, Present: true}
				found = true
			}
		}
		if found {
			lb.Rows = append(lb.Rows, row)
		}
	}
	if !sortRows || baseline == "" || len(lb.Columns) == 0 {
		return lb
	}

	base := make([]float64, len(lb.Columns))
	for j, ds := range lb.Columns {
		v, ok := t.Value(ds, baseline, metric)
		if !ok {
			return lb
		}
		base[j] = v
	}

	keys := make(map[string]float64, len(lb.Rows))
	for i := range lb.Rows {
		var sum float64
		var n int
		for j, c := range lb.Rows[i].Cells[:len(base)] {
			if !c.Present {
				continue
			}
			sum += c.Value - base[j]
			n++
		}
		key := math.NaN()
		if n > 0 {
			key = sum / float64(n)
		}
		keys[lb.Rows[i].Model] = key
		lb.Rows[i].Cells = append(lb.Rows[i].Cells, Cell{Value: key, Present: !math.IsNaN(key)})
	}
	lb.Columns = append(lb.Columns, DerivedColumn(baseline))
	lb.Derived = true

	sort.SliceStable(lb.Rows, func(a, b int) bool {
		ka, kb := keys[lb.Rows[a].Model], keys[lb.Rows[b].Model]
		switch {
		case math.IsNaN(ka) && math.IsNaN(kb):
			return lb.Rows[a].Model < lb.Rows[b].Model
		case math.IsNaN(ka):
			return false
		case math.IsNaN(kb):
			return true
		case ka != kb:
			return ka < kb
		}
		return lb.Rows[a].Model < lb.Rows[b].Model
	})
	return lb
}

// Key returns the derived sort key of model, if computed.
func (lb *Leaderboard) Key(model string) (float64, bool) {
	if !lb.Derived {
		return math.NaN(), false
	}
	for _, r := range lb.Rows {
		if r.Model == model {
			c := r.Cells[len(r.Cells)-1]
			return c.Value, c.Present
		}
	}
	return math.NaN(), false
}

// HighlightBest marks, in every column, each cell holding the column's
// minimum. Ties are all marked. NaN cells are never best.
func (lb *Leaderboard) HighlightBest() *Leaderboard {
	for j := range lb.Columns {
		best := math.Inf(1)
		for _, r := range lb.Rows {
			c := r.Cells[j]
			if c.Present && !math.IsNaN(c.Value) && c.Value < best {
				best = c.Value
			}
		}
		for i := range lb.Rows {
			c := &lb.Rows[i].Cells[j]
			c.Best = c.Present && c.Value == best
		}
	}
	return lb
}
