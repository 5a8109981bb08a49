// Package train runs the optimisation loop for models that learn from data.
//
// Gradient models (models.Learner) get mini-batch epochs with validation,
// learning-rate reduction on plateau, early stopping and gradient clipping.
// Models that fit in one pass (models.Fitter) see the training split once.
// Everything else is left untouched.
package train

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/metrics"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNonFinite aborts training when a loss becomes NaN or infinite.
var ErrNonFinite = errors.New("non-finite loss")

// MinLR is the floor of the plateau schedule.
const MinLR = 1e-7

// Config holds the training hyperparameters shared by every model in a sweep.
type Config struct {
	// LR is the initial learning rate (default 0.01).
	LR float64 `yaml:"lr"`

	// Patience is the number of epochs without validation improvement that
	// are tolerated; one more divides the learning rate by 10. Training stops
	// after twice as many.
	Patience int `yaml:"patience"`

	WeightDecay float64 `yaml:"weight_decay"`

	MinEpochs int `yaml:"min_epochs"`
	MaxEpochs int `yaml:"max_epochs"`

	// MaxIters caps the number of training samples per epoch. Validation
	// uses a fifth of the training batch budget.
	MaxIters int `yaml:"max_iters"`

	BatchSize int `yaml:"batch_size"`

	// ClipNorm is the global gradient norm threshold (default 20). A negative
	// value disables clipping.
	ClipNorm float64 `yaml:"clip_norm"`

	// FastDevRun trains and validates on a single batch, for smoke checks.
	FastDevRun bool `yaml:"fast_dev_run"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.LR <= 0 {
		c.LR = 0.01
	}
	if c.Patience <= 0 {
		c.Patience = 2
	}
	if c.MinEpochs <= 0 {
		c.MinEpochs = 2
	}
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = 100
	}
	if c.MaxEpochs < c.MinEpochs {
		c.MaxEpochs = c.MinEpochs
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.MaxIters <= 0 {
		c.MaxIters = 20000
	}
	if c.ClipNorm == 0 {
		c.ClipNorm = 20
	}
}

// batchLimits returns the number of train and validation batches per epoch.
func (c Config) batchLimits() (trainBatches, valBatches int) {
	if c.FastDevRun {
		return 1, 1
	}
	trainBatches = c.MaxIters / c.BatchSize
	if trainBatches < 1 {
		trainBatches = 1
	}
	valBatches = trainBatches / 5
	if valBatches < 1 {
		valBatches = 1
	}
	return trainBatches, valBatches
}

// Trainer fits models according to Config.
type Trainer struct {
	Config Config
	Log    logrus.FieldLogger
}

// New returns a Trainer with defaults applied.
func New(cfg Config, log logrus.FieldLogger) *Trainer {
	cfg.ApplyDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trainer{Config: cfg, Log: log}
}

// Fit trains model on the train loader, monitoring the validation loader
// (which may be nil, in which case the training loss is monitored).
func (t *Trainer) Fit(ctx context.Context, model models.Model, trainL, valL *datasets.Loader) (*History, error) {
	switch m := model.(type) {
	case models.Learner:
		return t.fitLearner(ctx, m, trainL, valL)
	case models.Fitter:
		return t.fitOnce(m, trainL, valL)
	default:
		t.Log.WithField("model", model.Name()).Debug("model has nothing to train")
		return &History{Stopped: StopUntrained}, nil
	}
}

func (t *Trainer) fitOnce(m models.Fitter, trainL, valL *datasets.Loader) (*History, error) {
	ds, ok := trainL.DS.(*datasets.WindowDataset)
	if !ok {
		return nil, errors.Errorf("train: %s needs a window dataset, got %T", m.Name(), trainL.DS)
	}
	start := time.Now()
	if err := m.Fit(ds); err != nil {
		return nil, errors.Wrapf(err, "train: fitting %s", m.Name())
	}
	h := &History{Stopped: StopFitted}
	row := Epoch{Epoch: 0, TrainLoss: math.NaN(), ValLoss: math.NaN(), Duration: time.Since(start)}
	if valL != nil {
		_, valBatches := t.Config.batchLimits()
		loss, err := t.evaluate(m, valL, valBatches)
		if err != nil {
			return nil, err
		}
		row.ValLoss = loss
	}
	h.Epochs = append(h.Epochs, row)
	return h, nil
}

func (t *Trainer) fitLearner(ctx context.Context, m models.Learner, trainL, valL *datasets.Loader) (*History, error) {
	cfg := t.Config
	trainBatches, valBatches := cfg.batchLimits()
	maxEpochs := cfg.MaxEpochs
	if cfg.FastDevRun {
		maxEpochs = 1
	}
	log := t.Log.WithField("model", m.Name())

	h := &History{Stopped: StopMaxEpochs}
	lr := cfg.LR
	best := math.Inf(1)
	sinceBest, sinceReduce := 0, 0

	for epoch := 0; epoch < maxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			h.Stopped = StopCancelled
			return h, errors.Wrap(err, "train: cancelled")
		}
		start := time.Now()
		trainLoss, err := t.trainEpoch(ctx, m, trainL, epoch, trainBatches, lr)
		if cerr := ctx.Err(); cerr != nil {
			h.Stopped = StopCancelled
			return h, errors.Wrapf(cerr, "train: cancelled in epoch %d", epoch)
		}
		if err != nil {
			return h, errors.Wrapf(err, "epoch %d", epoch)
		}
		monitored := trainLoss
		valLoss := math.NaN()
		if valL != nil {
			valLoss, err = t.evaluate(m, valL, valBatches)
			if err != nil {
				return h, errors.Wrapf(err, "epoch %d", epoch)
			}
			monitored = valLoss
		}
		h.Epochs = append(h.Epochs, Epoch{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			ValLoss:   valLoss,
			LR:        lr,
			Duration:  time.Since(start),
		})
		log.WithFields(logrus.Fields{
			"epoch":      epoch,
			"loss/train": trainLoss,
			"loss/val":   valLoss,
			"lr":         lr,
		}).Info("epoch done")

		if cfg.FastDevRun {
			h.Stopped = StopFastDevRun
			break
		}
		if monitored < best {
			best = monitored
			sinceBest, sinceReduce = 0, 0
		} else {
			sinceBest++
			sinceReduce++
		}
		if sinceReduce > cfg.Patience && lr > MinLR {
			lr = math.Max(lr*0.1, MinLR)
			sinceReduce = 0
			log.WithField("lr", lr).Info("reducing learning rate on plateau")
		}
		if epoch+1 >= cfg.MinEpochs && sinceBest >= 2*cfg.Patience {
			h.Stopped = StopEarly
			log.WithField("epoch", epoch).Info("early stopping")
			break
		}
	}
	return h, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, m models.Learner, l *datasets.Loader, epoch, limit int, lr float64) (float64, error) {
	it := l.Iter(epoch)
	defer it.Close()
	var sum float64
	var n int
	for n < limit {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, "train: reading batch")
		}
		dist, extras, err := m.Backward(b)
		if err != nil {
			return 0, errors.Wrap(err, "train: backward")
		}
		loss, err := batchLoss(b, dist, extras, true)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, errors.Wrapf(ErrNonFinite, "train batch %d", n)
		}
		if err := m.Step(lr, t.Config.WeightDecay, t.Config.ClipNorm); err != nil {
			return 0, errors.Wrapf(ErrNonFinite, "step: %v", err)
		}
		sum += loss
		n++
	}
	if n == 0 {
		return 0, errors.New("train: no training batches")
	}
	return sum / float64(n), nil
}

// evaluate returns the mean NLL over at most limit batches.
func (t *Trainer) evaluate(m models.Model, l *datasets.Loader, limit int) (float64, error) {
	it := l.Iter(0)
	defer it.Close()
	var sum float64
	var n int
	for n < limit {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, "train: reading validation batch")
		}
		dist, extras, err := m.Forward(b.WithoutTargets())
		if err != nil {
			return 0, errors.Wrap(err, "train: validation forward")
		}
		loss, err := batchLoss(b, dist, extras, false)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return 0, errors.Wrapf(ErrNonFinite, "validation batch %d", n)
		}
		sum += loss
		n++
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return sum / float64(n), nil
}

// batchLoss is the mean Gaussian NLL of the batch, or the model's own loss
// from extras while training.
func batchLoss(b *datasets.Batch, dist *models.Distribution, extras models.Extras, training bool) (float64, error) {
	if training {
		if v, ok := extras[models.LossKey]; ok {
			return v, nil
		}
	}
	if err := dist.CheckShape(b.Size(), len(b.YFuture[0]), len(b.YFuture[0][0])); err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for s := range b.YFuture {
		for j := range b.YFuture[s] {
			for k, y := range b.YFuture[s][j] {
				sum += metrics.GaussianNLL(float64(y), dist.Mean[s][j][k], dist.Std[s][j][k])
				n++
			}
		}
	}
	return sum / float64(n), nil
}
