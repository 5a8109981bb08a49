package predict

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/metrics"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/pkg/errors"
)

// peekModel fails if it is handed future targets.
type peekModel struct {
	sawTargets bool
}

func (m *peekModel) Name() string { return "peek" }

func (m *peekModel) Forward(b *datasets.Batch) (*models.Distribution, models.Extras, error) {
	if b.YFuture != nil {
		m.sawTargets = true
	}
	return models.BaselineLast{}.Forward(b)
}

// badShape returns one step too few.
type badShape struct{}

func (badShape) Name() string { return "bad" }

func (badShape) Forward(b *datasets.Batch) (*models.Distribution, models.Extras, error) {
	return models.NewDistribution(b.Size(), len(b.XFuture[0])-1, 1), nil, nil
}

func testSplit(t *testing.T) (*datasets.WindowDataset, *datasets.Scaler) {
	t.Helper()
	src := datasets.NewSeriesSource("synthetic", func() (*datasets.Series, error) {
		return datasets.Synthetic(datasets.SyntheticConfig{Rows: 500, Seed: 1, Noise: 0.1}), nil
	}, datasets.DefaultSplit)
	_, _, test, err := src.ToDatasets(4, 2)
	if err != nil {
		t.Fatalf("ToDatasets: %v", err)
	}
	return test, src.OutputScaler()
}

func TestPredictShapesAndUnits(t *testing.T) {
	test, scaler := testSplit(t)
	m := &peekModel{}
	p, err := Predict(m, test, 16, scaler)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if m.sawTargets {
		t.Fatalf("model was given future targets")
	}
	if p.Len() != 95 || len(p.TAhead) != 2 || p.TAhead[1] != 2 {
		t.Fatalf("unexpected shape: origins=%d ahead=%v", p.Len(), p.TAhead)
	}
	if len(p.YPred[0]) != 2 || len(p.YPred[0][0]) != 1 || len(p.YPast[0]) != 4 {
		t.Fatalf("unexpected element shape")
	}
	// origin is the last past step, targets follow it
	if !p.TSource[0].Equal(p.TPast[0][3]) || !p.TTarget[0][0].After(p.TSource[0]) {
		t.Fatalf("time axes inconsistent: origin=%v past=%v target=%v", p.TSource[0], p.TPast[0], p.TTarget[0])
	}
	// BaselineLast repeats the last past value, in original units
	if math.Abs(p.YPred[10][1][0]-p.YPast[10][3][0]) > 1e-4 {
		t.Fatalf("prediction not in the same units as the past: %v vs %v", p.YPred[10][1][0], p.YPast[10][3][0])
	}
	// the true value of origin i+1 step 1 equals that of origin i step 2
	if p.YTrue[1][0][0] != p.YTrue[0][1][0] {
		t.Fatalf("consecutive origins disagree on the same timestep")
	}
	nll := metrics.GaussianNLL(p.YTrue[5][0][0], p.YPred[5][0][0], p.YPredStd[5][0][0])
	if math.Abs(nll-p.NLL[5][0][0]) > 1e-12 {
		t.Fatalf("stored nll %v, recomputed %v", p.NLL[5][0][0], nll)
	}
}

func TestPredictRejectsBadShape(t *testing.T) {
	test, scaler := testSplit(t)
	if _, err := Predict(badShape{}, test, 32, scaler); errors.Cause(err) != ErrShape {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestMetricsAndAggregates(t *testing.T) {
	test, scaler := testSplit(t)
	p, err := Predict(models.BaselineMean{}, test, 32, scaler)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	m, err := p.Metrics()
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	for _, name := range []string{MetricRMSE, MetricSMAPE, MetricNLL} {
		v, ok := m[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("metric %s not finite: %v", name, v)
		}
	}
	if math.Abs(m[MetricNLL]-p.MeanNLL()) > 1e-9 {
		t.Fatalf("nll metric %v != mean stored nll %v", m[MetricNLL], p.MeanNLL())
	}
	byAhead := p.NLLByAhead()
	if len(byAhead) != 2 {
		t.Fatalf("expected 2 steps ahead, got %d", len(byAhead))
	}
	if math.Abs((byAhead[0]+byAhead[1])/2-p.MeanNLL()) > 1e-9 {
		t.Fatalf("per-step means do not average to the overall mean")
	}
	if len(p.NLLByOrigin()) != p.Len() {
		t.Fatalf("expected one value per origin")
	}

	f, err := p.At(3, 0)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if len(f.Past) != 4 || len(f.Mean) != 2 || f.Mean[0] != p.YPred[3][0][0] {
		t.Fatalf("unexpected forecast %+v", f)
	}
	if _, err := p.At(p.Len(), 0); err == nil {
		t.Fatalf("expected out of range error")
	}
	if got := p.IndexOf(p.TSource[7].Add(time.Minute)); got != 7 {
		t.Fatalf("IndexOf: got %d want 7", got)
	}
}

func TestArtifactSaveLoad(t *testing.T) {
	test, scaler := testSplit(t)
	p, err := Predict(models.BaselineMean{}, test, 32, scaler)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	p.Dataset = "synthetic"

	dir := t.TempDir()
	path := filepath.Join(dir, "run", "synthetic", "BaselineMean", FileName)
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact in the directory, got %d entries", len(entries))
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Dataset != "synthetic" || got.Model != "BaselineMean" || got.Len() != p.Len() {
		t.Fatalf("unexpected attrs: %s/%s len=%d", got.Dataset, got.Model, got.Len())
	}
	if !got.TSource[4].Equal(p.TSource[4]) || got.YPredStd[4][1][0] != p.YPredStd[4][1][0] {
		t.Fatalf("loaded values differ")
	}

	if _, err := Load(filepath.Join(dir, "missing.gob")); err == nil {
		t.Fatalf("expected error for a missing artifact")
	}
}
