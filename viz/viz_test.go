package viz

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/Noofbiz/seq2seqTime/predict"
	"github.com/Noofbiz/seq2seqTime/results"
	"github.com/Noofbiz/seq2seqTime/train"
)

func predictions(t *testing.T) map[string]*predict.Predictions {
	t.Helper()
	src := datasets.NewSeriesSource("Sine", func() (*datasets.Series, error) {
		return datasets.Synthetic(datasets.SyntheticConfig{Rows: 300, Seed: 3, Noise: 0.05, Step: time.Hour}), nil
	}, datasets.DefaultSplit)
	_, _, test, err := src.ToDatasets(6, 3)
	if err != nil {
		t.Fatalf("ToDatasets: %v", err)
	}
	out := map[string]*predict.Predictions{}
	for _, m := range []models.Model{models.BaselineMean{}, models.BaselineLast{}} {
		p, err := predict.Predict(m, test, 8, src.OutputScaler())
		if err != nil {
			t.Fatalf("Predict %s: %v", m.Name(), err)
		}
		p.Dataset, p.Model = "Sine", m.Name()
		out[m.Name()] = p
	}
	return out
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("missing plot: %v", err)
	}
	if fi.Size() == 0 {
		t.Fatalf("%s is empty", path)
	}
}

func TestPlotForecasts(t *testing.T) {
	preds := predictions(t)
	dir := t.TempDir()
	order := []string{"BaselineLast", "BaselineMean"}

	single := filepath.Join(dir, "pred.png")
	if err := PlotPrediction(preds["BaselineLast"], 5, 0, single); err != nil {
		t.Fatalf("PlotPrediction: %v", err)
	}
	assertPNG(t, single)

	if err := PlotPrediction(preds["BaselineLast"], 1<<20, 0, single); err == nil {
		t.Fatalf("expected an error for an out of range origin")
	}

	multi := filepath.Join(dir, "sub", "models.png")
	at := preds["BaselineMean"].TSource[10]
	if err := PlotModels(preds, order, at, 0, multi); err != nil {
		t.Fatalf("PlotModels: %v", err)
	}
	assertPNG(t, multi)

	ahead := filepath.Join(dir, "nll.png")
	if err := PlotNLLByAhead(preds, order, ahead); err != nil {
		t.Fatalf("PlotNLLByAhead: %v", err)
	}
	assertPNG(t, ahead)

	byOrigin := filepath.Join(dir, "nll_by_origin.png")
	if err := PlotNLLByOrigin(preds, order, byOrigin); err != nil {
		t.Fatalf("PlotNLLByOrigin: %v", err)
	}
	assertPNG(t, byOrigin)
	if err := PlotNLLByOrigin(preds, []string{"Missing"}, byOrigin); err == nil {
		t.Fatalf("expected an error with no models to draw")
	}

	scatter := filepath.Join(dir, "true_vs_pred.png")
	if err := PlotTrueVsPred(preds["BaselineMean"], 0, scatter); err != nil {
		t.Fatalf("PlotTrueVsPred: %v", err)
	}
	assertPNG(t, scatter)
	if err := PlotTrueVsPred(preds["BaselineMean"], 3, scatter); err == nil {
		t.Fatalf("expected an error for an out of range target")
	}
}

func TestPlotHistory(t *testing.T) {
	h := &train.History{Epochs: []train.Epoch{
		{Epoch: 0, TrainLoss: 1.2, ValLoss: 1.3},
		{Epoch: 1, TrainLoss: 0.9, ValLoss: math.NaN()},
		{Epoch: 2, TrainLoss: 0.7, ValLoss: 0.8},
	}}
	path := filepath.Join(t.TempDir(), "history.png")
	if err := PlotHistory(h, "MLP", path); err != nil {
		t.Fatalf("PlotHistory: %v", err)
	}
	assertPNG(t, path)
	if err := PlotHistory(&train.History{}, "empty", path); err == nil {
		t.Fatalf("expected an error for an empty history")
	}
}

func TestPlotLeaderboard(t *testing.T) {
	tbl := results.NewTable()
	tbl.Record("A", "BaselineMean", map[string]float64{"nll": 1.0})
	tbl.Record("A", "MLP", map[string]float64{"nll": 0.4})
	tbl.Record("A", "Broken", map[string]float64{"nll": math.NaN()})
	path := filepath.Join(t.TempDir(), "lb.png")
	if err := PlotLeaderboard(tbl.Format("nll", true, "BaselineMean"), path); err != nil {
		t.Fatalf("PlotLeaderboard: %v", err)
	}
	assertPNG(t, path)

	if err := PlotLeaderboard(results.NewTable().Format("nll", true, ""), path); err == nil {
		t.Fatalf("expected an error for an empty leaderboard")
	}
}
