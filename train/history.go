package train

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Reasons a training run ended.
const (
	StopMaxEpochs  = "max_epochs"
	StopEarly      = "early_stopping"
	StopFastDevRun = "fast_dev_run"
	StopFitted     = "fitted"
	StopUntrained  = "untrained"
	StopCancelled  = "cancelled"
)

// Epoch is one row of the training history.
type Epoch struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
	LR        float64
	Duration  time.Duration
}

// History records the per-epoch losses of one fit.
type History struct {
	Epochs  []Epoch
	Stopped string
}

// Best returns the epoch with the lowest validation loss, falling back to the
// training loss when no validation was run.
func (h *History) Best() (Epoch, bool) {
	var best Epoch
	found := false
	bestLoss := math.Inf(1)
	for _, e := range h.Epochs {
		loss := e.ValLoss
		if math.IsNaN(loss) {
			loss = e.TrainLoss
		}
		if math.IsNaN(loss) {
			continue
		}
		if !found || loss < bestLoss {
			best, bestLoss, found = e, loss, true
		}
	}
	return best, found
}

// TotalDuration sums the epoch durations.
func (h *History) TotalDuration() time.Duration {
	var d time.Duration
	for _, e := range h.Epochs {
		d += e.Duration
	}
	return d
}

// WriteCSV writes the history as epoch,loss/train,loss/val,lr. Missing losses
// are written as empty cells. The file is written to a temp path and renamed.
func (h *History) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create history dir")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create history file")
	}
	w := csv.NewWriter(f)
	rows := [][]string{{"epoch", "loss/train", "loss/val", "lr"}}
	for _, e := range h.Epochs {
		rows = append(rows, []string{
			strconv.Itoa(e.Epoch),
			formatLoss(e.TrainLoss),
			formatLoss(e.ValLoss),
			formatLoss(e.LR),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write history")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close history file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename history file")
}

// ReadHistoryCSV loads a file written by WriteCSV.
func ReadHistoryCSV(path string) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open history")
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read history %s", path)
	}
	h := &History{}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) != 4 {
			return nil, errors.Errorf("history %s line %d: got %d fields", path, i+1, len(rec))
		}
		ep, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, errors.Wrapf(err, "history %s line %d", path, i+1)
		}
		h.Epochs = append(h.Epochs, Epoch{
			Epoch:     ep,
			TrainLoss: parseLoss(rec[1]),
			ValLoss:   parseLoss(rec[2]),
			LR:        parseLoss(rec[3]),
		})
	}
	return h, nil
}

func formatLoss(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseLoss(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
