package predict

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileName is the artifact name inside a run's dataset/model directory.
const FileName = "preds.gob"

const artifactVersion = 1

// artifactFormat is the on-disk representation of Predictions.
type artifactFormat struct {
	Version   int
	CreatedAt int64
	Preds     *Predictions
}

// Save writes p to path with encoding/gob. The write is atomic: a temp file
// in the same directory is renamed over path.
func (p *Predictions) Save(path string) error {
	if path == "" {
		return errors.New("empty artifact path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp artifact")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	af := artifactFormat{Version: artifactVersion, CreatedAt: time.Now().Unix(), Preds: p}
	if err := gob.NewEncoder(tmpFile).Encode(&af); err != nil {
		return errors.Wrap(err, "encode artifact")
	}
	if err := tmpFile.Sync(); err != nil {
		logrus.WithError(err).Warn("sync temp artifact")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp artifact")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrap(err, "rename temp artifact")
	}
	return nil
}

// Load reads an artifact written by Save.
func Load(path string) (*Predictions, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open artifact %s", path)
	}
	defer fh.Close()
	var af artifactFormat
	if err := gob.NewDecoder(fh).Decode(&af); err != nil {
		return nil, errors.Wrapf(err, "decode artifact %s", path)
	}
	if af.Version != artifactVersion {
		return nil, errors.Errorf("artifact version mismatch: file=%d expected=%d", af.Version, artifactVersion)
	}
	if af.Preds == nil {
		return nil, errors.Errorf("artifact %s has no predictions", path)
	}
	return af.Preds, nil
}
