// Package results accumulates the metrics of a sweep and turns them into a
// leaderboard.
//
// A Table maps dataset -> model -> metric -> value. It only grows: recording
// a (dataset, model) pair again replaces that pair's metrics wholesale.
// Datasets and models keep the order in which they were first recorded.
package results

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Table is the results of a sweep. The zero value is not usable; use
// NewTable.
type Table struct {
	datasets []string
	models   []string
	cells    map[string]map[string]map[string]float64
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{cells: make(map[string]map[string]map[string]float64)}
}

// Record stores metrics for (dataset, model), replacing any previous entry.
func (t *Table) Record(dataset, model string, metrics map[string]float64) {
	byModel, ok := t.cells[dataset]
	if !ok {
		byModel = make(map[string]map[string]float64)
		t.cells[dataset] = byModel
		t.datasets = append(t.datasets, dataset)
	}
	if !t.hasModel(model) {
		t.models = append(t.models, model)
	}
	m := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		m[k] = v
	}
	byModel[model] = m
}

func (t *Table) hasModel(model string) bool {
	for _, m := range t.models {
		if m == model {
			return true
		}
	}
	return false
}

// Lookup returns a copy of the metrics recorded for (dataset, model).
func (t *Table) Lookup(dataset, model string) (map[string]float64, bool) {
	m, ok := t.cells[dataset][model]
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, true
}

// Value returns a single metric.
func (t *Table) Value(dataset, model, metric string) (float64, bool) {
	v, ok := t.cells[dataset][model][metric]
	return v, ok
}

// Datasets returns dataset names in first-recorded order.
func (t *Table) Datasets() []string { return append([]string(nil), t.datasets...) }

// Models returns model names in first-recorded order.
func (t *Table) Models() []string { return append([]string(nil), t.models...) }

// Len is the number of recorded (dataset, model) pairs.
func (t *Table) Len() int {
	n := 0
	for _, byModel := range t.cells {
		n += len(byModel)
	}
	return n
}

// jsonFloat encodes non-finite values as null.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *jsonFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = jsonFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonFloat(v)
	return nil
}

type tableJSON struct {
	Models   []string      `json:"models"`
	Datasets []datasetJSON `json:"datasets"`
}

type datasetJSON struct {
	Name    string      `json:"name"`
	Results []entryJSON `json:"results"`
}

type entryJSON struct {
	Model   string               `json:"model"`
	Metrics map[string]jsonFloat `json:"metrics"`
}

// MarshalJSON keeps insertion order.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{Models: t.Models()}
	for _, ds := range t.datasets {
		dj := datasetJSON{Name: ds}
		for _, m := range t.models {
			metrics, ok := t.cells[ds][m]
			if !ok {
				continue
			}
			e := entryJSON{Model: m, Metrics: make(map[string]jsonFloat, len(metrics))}
			for k, v := range metrics {
				e.Metrics[k] = jsonFloat(v)
			}
			dj.Results = append(dj.Results, e)
		}
		out.Datasets = append(out.Datasets, dj)
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the table's content.
func (t *Table) UnmarshalJSON(b []byte) error {
	var in tableJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*t = *NewTable()
	t.models = append(t.models, in.Models...)
	for _, dj := range in.Datasets {
		for _, e := range dj.Results {
			m := make(map[string]float64, len(e.Metrics))
			for k, v := range e.Metrics {
				m[k] = float64(v)
			}
			t.Record(dj.Name, e.Model, m)
		}
	}
	return nil
}

// Save writes the table as indented JSON, atomically.
func (t *Table) Save(path string) error {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode results table")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp results file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write results table")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close results table")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "rename results table")
}

// LoadTable reads a table written by Save.
func LoadTable(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read results table")
	}
	t := NewTable()
	if err := json.Unmarshal(b, t); err != nil {
		return nil, errors.Wrapf(err, "decode results table %s", path)
	}
	return t, nil
}
