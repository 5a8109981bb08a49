package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type modelSummary struct {
	Name   string
	Kind   string
	Params int // -1 when the model has no trainable parameters
	Err    string
}

type datasetSummary struct {
	Dataset string
	Hidden  int
	Shapes  []string // x_past, y_past, x_future, y_future
	Scaling string
	Models  []modelSummary
}

// summarize instantiates every model once, at the summary hidden size, and
// records the parameter counts and the tensor shapes of one batch.
func (r *Runner) summarize(env *pairEnv, log logrus.FieldLogger) datasetSummary {
	s := datasetSummary{Dataset: env.dataset.Name, Hidden: r.Config.SummaryHidden}

	split := env.val
	if split.Len() == 0 {
		split = env.train
	}
	n := r.Config.BatchSize
	if n > split.Len() {
		n = split.Len()
	}
	if n > 0 {
		shapes, err := batchShapes(split, n)
		if err != nil {
			log.Warnf("summary shapes: %v", err)
		}
		s.Shapes = shapes
	}

	s.Scaling = fmt.Sprintf("inputs %s, targets %s",
		scalerStats(env.src.InputScaler()), scalerStats(env.src.OutputScaler()))

	for _, mcfg := range r.Config.Models {
		ms := modelSummary{Name: mcfg.DisplayName(), Kind: mcfg.Kind, Params: -1}
		err := safely(func() error {
			m, err := r.newModel(mcfg, env.train, r.Config.SummaryHidden)
			if err != nil {
				return err
			}
			if pc, ok := m.(models.ParamCounter); ok {
				ms.Params = pc.NumParams()
			}
			return nil
		})
		if err != nil {
			ms.Err = err.Error()
		}
		s.Models = append(s.Models, ms)
	}
	return s
}

// scalerStats renders the train split statistics a scaler was fit on.
func scalerStats(sc *datasets.Scaler) string {
	if sc == nil || sc.Dim() == 0 {
		return "unscaled"
	}
	mean := make([]string, sc.Dim())
	std := make([]string, sc.Dim())
	for j := range mean {
		mean[j] = fmt.Sprintf("%.3g", sc.Mean[j])
		std[j] = fmt.Sprintf("%.3g", sc.Std[j])
	}
	return "mean [" + strings.Join(mean, " ") + "] std [" + strings.Join(std, " ") + "]"
}

func batchShapes(split *datasets.WindowDataset, n int) ([]string, error) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	b, err := split.Batch(idx)
	if err != nil {
		return nil, err
	}
	ts, err := b.ToGomlxTensors()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = fmt.Sprint(t.Shape().Dimensions)
	}
	return out, nil
}

// humanCount formats a parameter count with an SI prefix: 950, 1.23 k,
// 4.56 M.
func humanCount(n int) string {
	if n < 0 {
		return "-"
	}
	return strings.TrimSpace(humanize.SIWithDigits(float64(n), 2, ""))
}

func renderSummary(summaries []datasetSummary) string {
	var sb strings.Builder
	sb.WriteString("# Models\n")
	for _, s := range summaries {
		fmt.Fprintf(&sb, "\n## %s (hidden %d)\n\n", s.Dataset, s.Hidden)
		if len(s.Shapes) == 4 {
			fmt.Fprintf(&sb, "x_past %s, y_past %s, x_future %s, y_future %s\n\n",
				s.Shapes[0], s.Shapes[1], s.Shapes[2], s.Shapes[3])
		}
		if s.Scaling != "" {
			fmt.Fprintf(&sb, "scaling: %s\n\n", s.Scaling)
		}
		sb.WriteString("| model | kind | params |\n| :--- | :--- | ---: |\n")
		for _, m := range s.Models {
			params := humanCount(m.Params)
			if m.Err != "" {
				params = "error: " + strings.ReplaceAll(m.Err, "|", "/")
			}
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", m.Name, m.Kind, params)
		}
	}
	return sb.String()
}

func writeSummary(path string, summaries []datasetSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create summary dir")
	}
	return errors.Wrap(os.WriteFile(path, []byte(renderSummary(summaries)), 0o644), "write summary")
}
