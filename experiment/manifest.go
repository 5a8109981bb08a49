package experiment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// State is the lifecycle of one (dataset, model) pair.
type State string

const (
	StatePending    State = "pending"
	StateTraining   State = "training"
	StateEvaluating State = "evaluating"
	StateRecorded   State = "recorded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// PairRecord is the manifest entry of one pair.
type PairRecord struct {
	Dataset      string             `json:"dataset"`
	Model        string             `json:"model"`
	State        State              `json:"state"`
	Error        string             `json:"error,omitempty"`
	FailedIn     State              `json:"failed_in,omitempty"`
	Epochs       int                `json:"epochs"`
	Stopped      string             `json:"stopped,omitempty"`
	TrainSeconds float64            `json:"train_seconds"`
	EpochSeconds float64            `json:"epoch_seconds"`
	EvalSeconds  float64            `json:"eval_seconds"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Artifact     string             `json:"artifact,omitempty"`
}

// Manifest describes a run.
type Manifest struct {
	RunID     string       `json:"run_id"`
	Timestamp string       `json:"timestamp"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished,omitempty"`
	Config    *Config      `json:"config"`
	Pairs     []PairRecord `json:"pairs"`
}

// Counts returns the number of pairs in each final state.
func (m *Manifest) Counts() (recorded, failed, cancelled int) {
	for _, p := range m.Pairs {
		switch p.State {
		case StateRecorded:
			recorded++
		case StateFailed:
			failed++
		case StateCancelled:
			cancelled++
		}
	}
	return recorded, failed, cancelled
}

// Write saves the manifest as JSON.
func (m *Manifest) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create manifest dir")
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	return errors.Wrap(os.WriteFile(path, b, 0o644), "write manifest")
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	m := &Manifest{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, errors.Wrapf(err, "decode manifest %s", path)
	}
	return m, nil
}
