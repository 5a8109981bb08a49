package main

// Example command that loads a timeseries CSV (or the synthetic series when no
// path is given), cuts it into windowed splits and converts one batch into
// gomlx tensors.
//
// Usage:
//   go run ./datasets/example -csv data.csv -time time -targets load -inputs temp,humidity
//   go run ./datasets/example

import (
	"flag"
	"fmt"
	"strings"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/sirupsen/logrus"
)

func main() {
	csvPath := flag.String("csv", "", "timeseries CSV; empty uses the synthetic series")
	timeCol := flag.String("time", "time", "time column")
	targets := flag.String("targets", "value", "comma-separated target columns")
	inputs := flag.String("inputs", "", "comma-separated covariate columns")
	past := flag.Int("past", 96, "past window length")
	future := flag.Int("future", 48, "future window length")
	batchSize := flag.Int("batch-size", 8, "batch size")
	flag.Parse()

	log := logrus.StandardLogger()

	load := func() (*datasets.Series, error) {
		return datasets.Synthetic(datasets.SyntheticConfig{Rows: 2000, Noise: 0.1, Seed: 1}), nil
	}
	name := "synthetic"
	if *csvPath != "" {
		name = *csvPath
		opts := datasets.CSVOptions{
			TimeColumn:    *timeCol,
			TargetColumns: splitList(*targets),
			InputColumns:  splitList(*inputs),
			TimeFeatures:  true,
		}
		load = func() (*datasets.Series, error) { return datasets.LoadCSV(*csvPath, opts) }
	}

	src := datasets.NewSeriesSource(name, load, datasets.DefaultSplit)
	train, val, test, err := src.ToDatasets(*past, *future)
	if err != nil {
		log.Fatalf("failed to build splits: %+v", err)
	}
	fmt.Printf("Dataset %s: train=%d val=%d test=%d origins (x=%d y=%d)\n",
		name, train.Len(), val.Len(), test.Len(), train.XDim(), train.YDim())

	loader := &datasets.Loader{DS: train, BatchSize: *batchSize}
	it := loader.Iter(0)
	defer it.Close()
	batch, err := it.Next()
	if err != nil {
		log.Fatalf("failed to read first batch: %+v", err)
	}

	ts, err := batch.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %+v", err)
	}
	for i, label := range []string{"x_past", "y_past", "x_future", "y_future"} {
		fmt.Printf("  %-8s %v\n", label, ts[i].Shape())
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
