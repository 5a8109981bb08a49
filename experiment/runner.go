package experiment

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/Noofbiz/seq2seqTime/monte"
	"github.com/Noofbiz/seq2seqTime/predict"
	"github.com/Noofbiz/seq2seqTime/results"
	"github.com/Noofbiz/seq2seqTime/train"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewRegistry returns every model kind the sweep knows about.
func NewRegistry() *models.Registry {
	r := models.DefaultRegistry()
	monte.Register(r)
	return r
}

// Runner executes a sweep.
type Runner struct {
	Config   *Config
	Registry *models.Registry
	Log      logrus.FieldLogger
	Metrics  *SweepMetrics

	// Manifest is filled while Run executes.
	Manifest *Manifest
}

// NewRunner returns a runner with the full model registry and fresh
// Prometheus metrics.
func NewRunner(cfg *Config, log logrus.FieldLogger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		Config:   cfg,
		Registry: NewRegistry(),
		Log:      log,
		Metrics:  NewSweepMetrics("seq2seq"),
	}
}

// pairEnv is everything a single (dataset, model) run shares with the other
// models of its dataset.
type pairEnv struct {
	dataset          DatasetConfig
	src              datasets.Source
	train, val, test *datasets.WindowDataset
}

// Run trains and evaluates every model on every dataset, recording the test
// metrics in table (a new one when nil). A failing pair is logged and
// skipped. Run only returns an error when ctx is cancelled, including during
// the last pair; the table holds every pair recorded up to that point and the
// interrupted pair is marked cancelled.
func (r *Runner) Run(ctx context.Context, table *results.Table) (*results.Table, error) {
	cfg := r.Config
	if table == nil {
		table = results.NewTable()
	}
	r.Manifest = &Manifest{
		RunID:     uuid.NewString(),
		Timestamp: cfg.Timestamp,
		Started:   time.Now(),
		Config:    cfg,
	}
	log := r.Log.WithFields(logrus.Fields{"run": r.Manifest.RunID, "ts": cfg.Timestamp})
	log.Infof("sweep: %d datasets x %d models", len(cfg.Datasets), len(cfg.Models))

	var summaries []datasetSummary
	var runErr error
datasetLoop:
	for _, dcfg := range cfg.Datasets {
		if err := ctx.Err(); err != nil {
			runErr = errors.Wrap(err, "sweep interrupted")
			break
		}
		dlog := log.WithField("dataset", dcfg.Name)
		env, err := r.loadDataset(dcfg)
		if err != nil {
			dlog.Errorf("%+v", err)
			dlog.Warn("skipping dataset")
			for _, mcfg := range cfg.Models {
				r.finish(PairRecord{
					Dataset:  dcfg.Name,
					Model:    mcfg.DisplayName(),
					State:    StateFailed,
					FailedIn: StatePending,
					Error:    err.Error(),
				})
			}
			continue
		}
		dlog.WithFields(logrus.Fields{
			"train": env.train.Len(),
			"val":   env.val.Len(),
			"test":  env.test.Len(),
		}).Info("loaded dataset")
		summaries = append(summaries, r.summarize(env, dlog))

		for _, mcfg := range cfg.Models {
			if err := ctx.Err(); err != nil {
				runErr = errors.Wrap(err, "sweep interrupted")
				break datasetLoop
			}
			r.finish(r.runPair(ctx, env, mcfg, table))
			runtime.GC()
			debug.FreeOSMemory()
			if err := ctx.Err(); err != nil {
				runErr = errors.Wrap(err, "sweep interrupted")
				break datasetLoop
			}
		}
	}
	r.Manifest.Finished = time.Now()

	r.writeOutputs(table, summaries, log)
	recorded, failed, cancelled := r.Manifest.Counts()
	log.WithFields(logrus.Fields{"recorded": recorded, "failed": failed, "cancelled": cancelled}).Info("sweep finished")
	return table, runErr
}

func (r *Runner) loadDataset(dcfg DatasetConfig) (env *pairEnv, err error) {
	err = safely(func() error {
		src, err := dcfg.Source()
		if err != nil {
			return err
		}
		trainDS, valDS, testDS, err := src.ToDatasets(r.Config.WindowPast, r.Config.WindowFuture)
		if err != nil {
			return errors.Wrapf(err, "dataset %s", dcfg.Name)
		}
		env = &pairEnv{dataset: dcfg, src: src, train: trainDS, val: valDS, test: testDS}
		return nil
	})
	return env, err
}

// finish stores a pair record in the manifest and the metrics.
func (r *Runner) finish(rec PairRecord) {
	r.Manifest.Pairs = append(r.Manifest.Pairs, rec)
	r.Metrics.RecordPair(rec.Dataset, rec.Model, rec.State)
}

func (r *Runner) runPair(ctx context.Context, env *pairEnv, mcfg ModelConfig, table *results.Table) PairRecord {
	rec := PairRecord{Dataset: env.dataset.Name, Model: mcfg.DisplayName(), State: StatePending}
	log := r.Log.WithFields(logrus.Fields{"dataset": rec.Dataset, "model": rec.Model})

	err := safely(func() error { return r.trainAndEvaluate(ctx, env, mcfg, table, &rec, log) })
	switch {
	case err != nil && ctx.Err() != nil:
		rec.FailedIn = rec.State
		rec.State = StateCancelled
		rec.Error = err.Error()
		log.Warnf("%s on %s interrupted: %v", rec.Model, rec.Dataset, err)
	case err != nil:
		rec.FailedIn = rec.State
		rec.State = StateFailed
		rec.Error = err.Error()
		log.Errorf("%+v", err)
		log.Warnf("skipping %s on %s", rec.Model, rec.Dataset)
	}
	return rec
}

func (r *Runner) newModel(mcfg ModelConfig, ds *datasets.WindowDataset, hidden int) (models.Model, error) {
	ctor, ok := r.Registry.Get(mcfg.Kind)
	if !ok {
		return nil, errors.Errorf("unknown model kind %q", mcfg.Kind)
	}
	m, err := ctor(models.Dims{
		X:      ds.XDim(),
		Y:      ds.YDim(),
		Past:   ds.Past(),
		Future: ds.Future(),
		Hidden: hidden,
		Layers: mcfg.Layers,
		Seed:   r.Config.Seed,
		Params: mcfg.Params,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "construct %s", mcfg.Kind)
	}
	return m, nil
}

func (r *Runner) trainAndEvaluate(ctx context.Context, env *pairEnv, mcfg ModelConfig, table *results.Table, rec *PairRecord, log logrus.FieldLogger) error {
	cfg := r.Config
	model, err := r.newModel(mcfg, env.train, env.dataset.Hidden)
	if err != nil {
		return err
	}

	rec.State = StateTraining
	log.Info("training")
	trainL := &datasets.Loader{DS: env.train, BatchSize: cfg.BatchSize, Shuffle: true, Seed: cfg.Seed, Workers: cfg.Workers}
	valL := &datasets.Loader{DS: env.val, BatchSize: cfg.BatchSize, Shuffle: true, Seed: cfg.Seed + 1, Workers: cfg.Workers}
	start := time.Now()
	hist, err := train.New(cfg.Train, log).Fit(ctx, model, trainL, valL)
	if err != nil {
		return errors.Wrap(err, "train")
	}
	rec.TrainSeconds = time.Since(start).Seconds()
	rec.EpochSeconds = hist.TotalDuration().Seconds()
	rec.Epochs = len(hist.Epochs)
	rec.Stopped = hist.Stopped
	if r.Metrics != nil {
		r.Metrics.TrainDuration.WithLabelValues(rec.Dataset, rec.Model).Observe(rec.TrainSeconds)
		r.Metrics.Epochs.WithLabelValues(rec.Dataset, rec.Model).Set(float64(rec.Epochs))
	}

	rec.State = StateEvaluating
	start = time.Now()
	preds, err := predict.Predict(model, env.test, cfg.BatchSize*2, env.src.OutputScaler())
	if err != nil {
		return errors.Wrap(err, "predict")
	}
	preds.Dataset = rec.Dataset
	preds.Model = rec.Model
	values, err := preds.Metrics()
	if err != nil {
		return errors.Wrap(err, "metrics")
	}
	rec.EvalSeconds = time.Since(start).Seconds()
	if r.Metrics != nil {
		r.Metrics.EvalDuration.WithLabelValues(rec.Dataset, rec.Model).Observe(rec.EvalSeconds)
	}

	table.Record(rec.Dataset, rec.Model, values)
	r.Metrics.RecordMetrics(rec.Dataset, rec.Model, values)
	rec.State = StateRecorded
	rec.Metrics = finite(values)
	log.WithFields(logrus.Fields{
		predict.MetricRMSE:  values[predict.MetricRMSE],
		predict.MetricSMAPE: values[predict.MetricSMAPE],
		predict.MetricNLL:   values[predict.MetricNLL],
		"epochs":            rec.Epochs,
		"epoch_time":        hist.TotalDuration(),
	}).Info("recorded")

	// Persistence failures do not undo the recorded result.
	if err := table.Save(ResultsPath(cfg.OutDir, cfg.Timestamp)); err != nil {
		log.Warnf("saving results: %v", err)
	}
	artifact := ArtifactPath(cfg.OutDir, cfg.Timestamp, rec.Dataset, rec.Model)
	if err := preds.Save(artifact); err != nil {
		log.Warnf("saving predictions: %v", err)
	} else {
		rec.Artifact = artifact
	}
	if len(hist.Epochs) > 0 {
		if err := hist.WriteCSV(HistoryPath(cfg.OutDir, cfg.Timestamp, rec.Dataset, rec.Model)); err != nil {
			log.Warnf("saving history: %v", err)
		}
	}
	return nil
}

func (r *Runner) writeOutputs(table *results.Table, summaries []datasetSummary, log logrus.FieldLogger) {
	cfg := r.Config
	if table.Len() > 0 {
		if _, err := WriteLeaderboards(table, cfg.Metric, cfg.Baseline, cfg.OutDir, cfg.Timestamp); err != nil {
			log.Errorf("writing leaderboard: %v", err)
		}
	}
	if len(summaries) > 0 {
		if err := writeSummary(ModelsSummaryPath(cfg.OutDir, cfg.Timestamp), summaries); err != nil {
			log.Errorf("writing model summary: %v", err)
		}
	}
	if err := r.Manifest.Write(ManifestPath(cfg.OutDir, cfg.Timestamp)); err != nil {
		log.Errorf("writing manifest: %v", err)
	}
	if r.Metrics != nil {
		if err := r.Metrics.WriteTextfile(MetricsPath(cfg.OutDir, cfg.Timestamp)); err != nil {
			log.Errorf("writing metrics: %v", err)
		}
	}
}

// finite drops NaN and Inf values, which JSON cannot hold.
func finite(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// safely runs fn and turns a panic into an error carrying the stack.
func safely(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.WithStack(fmt.Errorf("panic: %v", p))
		}
	}()
	return fn()
}
