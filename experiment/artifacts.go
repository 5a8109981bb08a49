package experiment

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Noofbiz/seq2seqTime/predict"
	"github.com/Noofbiz/seq2seqTime/results"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Layout of a run's outputs:
//
//	<out>/<ts>_leaderboard.html
//	<out>/<ts>_leaderboard.md
//	<out>/<ts>_models.md
//	<out>/<ts>_metrics.prom
//	<out>/<ts>/manifest.json
//	<out>/<ts>/results.json
//	<out>/<ts>/<dataset>/<model>/preds.gob
//	<out>/<ts>/<dataset>/<model>/history.csv

// RunDir is the directory of a run's per-pair outputs.
func RunDir(out, ts string) string { return filepath.Join(out, ts) }

// PairDir is the output directory of one (dataset, model) pair.
func PairDir(out, ts, dataset, model string) string {
	return filepath.Join(out, ts, dataset, model)
}

// ArtifactPath is where the prediction artifact of a pair is written.
func ArtifactPath(out, ts, dataset, model string) string {
	return filepath.Join(PairDir(out, ts, dataset, model), predict.FileName)
}

// HistoryPath is where the training history of a pair is written.
func HistoryPath(out, ts, dataset, model string) string {
	return filepath.Join(PairDir(out, ts, dataset, model), "history.csv")
}

// ResultsPath is the results table of a run.
func ResultsPath(out, ts string) string { return filepath.Join(out, ts, "results.json") }

// ManifestPath is the run manifest.
func ManifestPath(out, ts string) string { return filepath.Join(out, ts, "manifest.json") }

// LeaderboardPath is the leaderboard export with the given extension.
func LeaderboardPath(out, ts, ext string) string {
	return filepath.Join(out, ts+"_leaderboard."+ext)
}

// ModelsSummaryPath is the model size summary.
func ModelsSummaryPath(out, ts string) string { return filepath.Join(out, ts+"_models.md") }

// MetricsPath is the Prometheus textfile of a run.
func MetricsPath(out, ts string) string { return filepath.Join(out, ts+"_metrics.prom") }

// WriteLeaderboards renders the table's leaderboard for metric as HTML and
// markdown next to the run directory.
func WriteLeaderboards(table *results.Table, metric, baseline, out, ts string) (*results.Leaderboard, error) {
	lb := table.Format(metric, true, baseline).HighlightBest()
	page, err := lb.HTML(metric + " leaderboard " + ts)
	if err != nil {
		return lb, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return lb, errors.Wrapf(err, "mkdir %s", out)
	}
	if err := os.WriteFile(LeaderboardPath(out, ts, "html"), []byte(page), 0o644); err != nil {
		return lb, errors.Wrap(err, "write html leaderboard")
	}
	if err := os.WriteFile(LeaderboardPath(out, ts, "md"), []byte(lb.Markdown()), 0o644); err != nil {
		return lb, errors.Wrap(err, "write markdown leaderboard")
	}
	return lb, nil
}

// Artifacts holds reloaded predictions by dataset and model.
type Artifacts map[string]map[string]*predict.Predictions

// Datasets returns the dataset names, sorted.
func (a Artifacts) Datasets() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Models returns the model names of a dataset, sorted.
func (a Artifacts) Models(dataset string) []string {
	out := make([]string, 0, len(a[dataset]))
	for k := range a[dataset] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadArtifacts reloads every prediction artifact of a run. Unreadable
// artifacts are logged and skipped.
func LoadArtifacts(out, ts string, log logrus.FieldLogger) (Artifacts, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	root := RunDir(out, ts)
	if _, err := os.Stat(root); err != nil {
		return nil, errors.Wrapf(err, "run %s", ts)
	}
	arts := Artifacts{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != predict.FileName {
			return nil
		}
		p, err := predict.Load(path)
		if err != nil {
			log.WithField("path", path).Warnf("skipping artifact: %v", err)
			return nil
		}
		rel, _ := filepath.Rel(root, filepath.Dir(path))
		dataset, model := filepath.Split(rel)
		dataset = filepath.Clean(dataset)
		if p.Dataset != "" {
			dataset = p.Dataset
		}
		if p.Model != "" {
			model = p.Model
		}
		if arts[dataset] == nil {
			arts[dataset] = map[string]*predict.Predictions{}
		}
		arts[dataset][model] = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk run directory")
	}
	return arts, nil
}
