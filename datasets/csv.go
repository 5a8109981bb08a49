package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CSVOptions describes how a timeseries CSV is laid out.
type CSVOptions struct {
	// TimeColumn holds the timestamp of each row.
	TimeColumn string `yaml:"time_column"`
	// TimeLayout is a time.Parse layout. Defaults to RFC3339.
	TimeLayout string `yaml:"time_layout"`
	// InputColumns are covariates known in advance (weather forecasts,
	// calendar information, control inputs).
	InputColumns []string `yaml:"inputs"`
	// TargetColumns are the values to forecast.
	TargetColumns []string `yaml:"targets"`
	// TimeFeatures appends cyclical hour/day-of-week covariates.
	TimeFeatures bool `yaml:"time_features"`
}

// LoadCSV reads a timeseries CSV into a Series. Rows with a missing value in
// any required column are skipped. Rows must be sorted by time.
func LoadCSV(path string, opts CSVOptions) (*Series, error) {
	if opts.TimeColumn == "" {
		return nil, errors.New("time column is required")
	}
	if len(opts.TargetColumns) == 0 {
		return nil, errors.New("at least one target column is required")
	}
	layout := opts.TimeLayout
	if layout == "" {
		layout = time.RFC3339
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[normalizeColumn(col)] = i
	}

	lookup := func(cols []string) ([]int, error) {
		idx := make([]int, len(cols))
		for i, col := range cols {
			j, ok := colIndex[normalizeColumn(col)]
			if !ok {
				return nil, errors.Errorf("required column %q not found in CSV", col)
			}
			idx[i] = j
		}
		return idx, nil
	}
	timeIdx, err := lookup([]string{opts.TimeColumn})
	if err != nil {
		return nil, err
	}
	inputIdx, err := lookup(opts.InputColumns)
	if err != nil {
		return nil, err
	}
	targetIdx, err := lookup(opts.TargetColumns)
	if err != nil {
		return nil, err
	}

	s := &Series{
		InputCols:  append([]string(nil), opts.InputColumns...),
		TargetCols: append([]string(nil), opts.TargetColumns...),
	}
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read row %d", row)
		}
		row++

		if missing(record, timeIdx, inputIdx, targetIdx) {
			continue
		}
		t, err := time.Parse(layout, strings.TrimSpace(record[timeIdx[0]]))
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: parse time", row)
		}
		inputs, err := parseColumns(record, inputIdx, opts.InputColumns)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		targets, err := parseColumns(record, targetIdx, opts.TargetColumns)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		s.Times = append(s.Times, t)
		s.Inputs = append(s.Inputs, inputs)
		s.Targets = append(s.Targets, targets)
	}

	if len(s.Times) > 1 {
		s.Freq = s.Times[1].Sub(s.Times[0])
	}
	if opts.TimeFeatures {
		AddTimeFeatures(s)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}

func missing(record []string, groups ...[]int) bool {
	for _, g := range groups {
		for _, j := range g {
			if j >= len(record) || strings.TrimSpace(record[j]) == "" {
				return true
			}
		}
	}
	return false
}

func parseColumns(record []string, idx []int, names []string) ([]float32, error) {
	out := make([]float32, len(idx))
	for i, j := range idx {
		v, err := parseFloat32(record[j])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", names[i])
		}
		out[i] = v
	}
	return out, nil
}
