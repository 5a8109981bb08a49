// Package monte implements an analog ensemble forecaster: for every forecast
// origin it looks up the K training windows whose recent past most resembles
// the current one and runs Monte Carlo draws over what happened after them.
package monte

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/metrics"
	"github.com/Noofbiz/seq2seqTime/models"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Kind is the registry name of the analog forecaster.
const Kind = "Analog"

// ErrNotFitted is returned by Forward before Fit was called.
var ErrNotFitted = errors.New("analog model has no library, call Fit first")

// Library is the searchable set of historical windows. Example returns the
// flattened past targets (the search key) and the flattened future targets
// (the outcome) of one window.
type Library interface {
	Len() int
	Example(idx int) (past []float32, future []float32, err error)
}

// windowLibrary keeps the windows of a training split in memory.
type windowLibrary struct {
	past   [][]float32
	future [][]float32
}

func (l *windowLibrary) Len() int { return len(l.past) }

func (l *windowLibrary) Example(i int) ([]float32, []float32, error) {
	if i < 0 || i >= len(l.past) {
		return nil, nil, errors.Errorf("example %d out of range [0,%d)", i, len(l.past))
	}
	return l.past[i], l.future[i], nil
}

// Analog is a K-nearest-neighbour Monte Carlo forecaster.
type Analog struct {
	K    int
	Sims int
	Seed int64

	// Workers bounds the distance scan pool. Zero uses runtime.NumCPU.
	Workers int

	lib    Library
	steps  int
	yDim   int
	keyLen int
}

// NewAnalog creates an unfitted analog forecaster.
func NewAnalog(k, sims int, seed int64) (*Analog, error) {
	if k < 1 {
		return nil, errors.Errorf("k must be >= 1, got %d", k)
	}
	if sims < 1 {
		return nil, errors.Errorf("sims must be >= 1, got %d", sims)
	}
	return &Analog{K: k, Sims: sims, Seed: seed}, nil
}

// Register adds the analog forecaster to r. Dims.Params may set "k" and
// "sims".
func Register(r *models.Registry) {
	r.Register(Kind, func(d models.Dims) (models.Model, error) {
		return NewAnalog(int(d.Param("k", 8)), int(d.Param("sims", 60)), d.Seed)
	})
}

// Name implements models.Model.
func (a *Analog) Name() string { return Kind }

// Fit implements models.Fitter by indexing every window of the split.
func (a *Analog) Fit(train *datasets.WindowDataset) error {
	n := train.Len()
	if n == 0 {
		return errors.New("analog: empty training split")
	}
	lib := &windowLibrary{past: make([][]float32, n), future: make([][]float32, n)}
	for i := 0; i < n; i++ {
		_, yPast, _, yFuture, err := train.Rows(i)
		if err != nil {
			return errors.Wrapf(err, "analog: reading window %d", i)
		}
		lib.past[i] = flatten(yPast)
		lib.future[i] = flatten(yFuture)
	}
	a.SetLibrary(lib, train.Future(), train.YDim())
	return nil
}

// SetLibrary installs a prebuilt library whose outcomes are steps x yDim
// values.
func (a *Analog) SetLibrary(lib Library, steps, yDim int) {
	a.lib = lib
	a.steps = steps
	a.yDim = yDim
	a.keyLen = 0
	if lib.Len() > 0 {
		if past, _, err := lib.Example(0); err == nil {
			a.keyLen = len(past)
		}
	}
}

// Forward implements models.Model. Each sample gets its own RNG derived from
// Seed and the sample's origin index, so results do not depend on batching
// and the model is not mutated.
func (a *Analog) Forward(b *datasets.Batch) (*models.Distribution, models.Extras, error) {
	if a.lib == nil {
		return nil, nil, ErrNotFitted
	}
	if b.Size() == 0 {
		return nil, nil, errors.New("analog: empty batch")
	}
	if steps := len(b.XFuture[0]); steps != a.steps {
		return nil, nil, errors.Wrapf(models.ErrOutputShape, "analog: batch has %d future steps, library has %d", steps, a.steps)
	}
	dist := models.NewDistribution(b.Size(), a.steps, a.yDim)
	draws := make([]float64, a.Sims)
	for s := 0; s < b.Size(); s++ {
		key := flatten(b.YPast[s])
		if len(key) != a.keyLen {
			return nil, nil, errors.Wrapf(models.ErrOutputShape, "analog: past window has %d values, library has %d", len(key), a.keyLen)
		}
		neighbors, err := a.knnNeighbors(key, a.K)
		if err != nil {
			return nil, nil, err
		}
		picks := a.sample(neighbors, b.Indices[s])
		for j := 0; j < a.steps; j++ {
			for k := 0; k < a.yDim; k++ {
				for d, nb := range picks {
					draws[d] = float64(nb.future[j*a.yDim+k])
				}
				mean, std := stat.MeanStdDev(draws, nil)
				if math.IsNaN(std) || std < metrics.MinStd {
					std = metrics.MinStd
				}
				dist.Mean[s][j][k] = mean
				dist.Std[s][j][k] = std
			}
		}
	}
	return dist, nil, nil
}

// sample draws Sims neighbours with probability proportional to the inverse
// distance.
func (a *Analog) sample(neighbors []neighbor, origin int) []neighbor {
	const eps = 1e-6
	weights := make([]float64, len(neighbors))
	var totalWeight float64
	for i, nb := range neighbors {
		w := 1.0 / (float64(nb.distance) + eps)
		weights[i] = w
		totalWeight += w
	}
	rng := rand.New(rand.NewSource(a.Seed ^ int64(origin)))
	picks := make([]neighbor, a.Sims)
	for d := range picks {
		target := rng.Float64() * totalWeight
		acc := 0.0
		choice := len(weights) - 1
		for i, w := range weights {
			acc += w
			if target <= acc {
				choice = i
				break
			}
		}
		picks[d] = neighbors[choice]
	}
	return picks
}

type neighbor struct {
	idx      int
	distance float32
	future   []float32
}

// knnNeighbors scans the library with a worker pool and returns up to k
// neighbours sorted by increasing distance.
func (a *Analog) knnNeighbors(key []float32, k int) ([]neighbor, error) {
	n := a.lib.Len()
	if n == 0 {
		return nil, errors.New("analog: library is empty")
	}

	jobs := make(chan int, n)
	resultsCh := make(chan neighbor, n)

	workerCount := a.Workers
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount > n {
		workerCount = n
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				past, future, err := a.lib.Example(i)
				if err != nil || len(past) != len(key) {
					continue
				}
				resultsCh <- neighbor{
					idx:      i,
					distance: float32(math.Sqrt(euclideanDistanceSquared(key, past))),
					future:   future,
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	candidates := make([]neighbor, 0, n)
	for nb := range resultsCh {
		candidates = append(candidates, nb)
	}
	if len(candidates) == 0 {
		return nil, errors.New("analog: no readable windows in library")
	}

	// ties broken by index so the result does not depend on scheduling
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].idx < candidates[j].idx
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

func euclideanDistanceSquared(a, b []float32) float64 {
	sum := 0.0
	for i := 0; i < len(a) && i < len(b); i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func flatten(rows [][]float32) []float32 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float32, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
