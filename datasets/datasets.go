package datasets

// This package turns time-ordered multivariate observations into the
// windowed samples consumed by the forecasters.
//
// Layout and intended usage:
//
// Series
//   - Times, covariates (Inputs) and targets for every timestep.
//   - Loaded from CSV (LoadCSV) or generated (Synthetic).
//
// Source
//   - A named, lazily loaded Series that knows how to cut itself into three
//     time-ordered, non-overlapping splits (train/val/test).
//   - Scalers are fit on the train split only and applied to every split. The
//     output scaler is exposed so predictions can be restored to original
//     units.
//
// WindowDataset
//   - One split. Sample i is the window starting at row i: `past` rows of
//     covariates and targets, followed by `future` rows of covariates (and,
//     for training, targets).
//   - Batches are [sample][step][feature] float32 buffers and convert to gomlx
//     tensors with ToGomlxTensors.
//
// Loader
//   - Walks a split in batches, optionally in a seeded shuffled order, with a
//     bounded pool of prefetch workers that never changes batch order.

// Source is implemented by every dataset the sweep can benchmark against.
type Source interface {
	// Name identifies the dataset in results and artifact paths.
	Name() string

	// ToDatasets loads the data (if needed), fits the scalers on the train
	// split and returns the three windowed splits.
	ToDatasets(windowPast, windowFuture int) (train, val, test *WindowDataset, err error)

	// OutputScaler returns the target scaler fitted by ToDatasets.
	OutputScaler() *Scaler

	// InputScaler returns the covariate scaler fitted by ToDatasets.
	InputScaler() *Scaler
}

// Batcher is the minimal interface the Loader and the prediction runner need
// from a split.
type Batcher interface {
	Len() int
	Batch(indices []int) (*Batch, error)
}
