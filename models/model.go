// Package models defines the calling contract shared by every forecaster in
// the leaderboard, plus the baseline and MLP variants.
//
// A model receives past covariates and targets together with future
// covariates and returns a Gaussian predictive distribution (mean and
// standard deviation) for every future step and target. Variants differ in
// architecture only; the sweep treats them all the same way.
package models

import (
	"sort"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/pkg/errors"
)

// LossKey is the Extras entry a model may set to replace the default
// negative log-likelihood training objective.
const LossKey = "loss"

// ErrOutputShape is returned when a distribution does not match the batch.
var ErrOutputShape = errors.New("model output shape mismatch")

// Distribution is a per-element Gaussian over future targets, laid out as
// [sample][step][target], in scaled units.
type Distribution struct {
	Mean [][][]float64
	Std  [][][]float64
}

// NewDistribution allocates a zeroed distribution.
func NewDistribution(samples, steps, targets int) *Distribution {
	alloc := func() [][][]float64 {
		out := make([][][]float64, samples)
		for i := range out {
			out[i] = make([][]float64, steps)
			for j := range out[i] {
				out[i][j] = make([]float64, targets)
			}
		}
		return out
	}
	return &Distribution{Mean: alloc(), Std: alloc()}
}

// CheckShape returns ErrOutputShape unless the distribution is
// samples x steps x targets.
func (d *Distribution) CheckShape(samples, steps, targets int) error {
	if d == nil {
		return errors.Wrap(ErrOutputShape, "nil distribution")
	}
	for _, part := range [][][][]float64{d.Mean, d.Std} {
		if len(part) != samples {
			return errors.Wrapf(ErrOutputShape, "got %d samples, want %d", len(part), samples)
		}
		for i := range part {
			if len(part[i]) != steps {
				return errors.Wrapf(ErrOutputShape, "sample %d: got %d steps, want %d", i, len(part[i]), steps)
			}
			for j := range part[i] {
				if len(part[i][j]) != targets {
					return errors.Wrapf(ErrOutputShape, "sample %d step %d: got %d targets, want %d", i, j, len(part[i][j]), targets)
				}
			}
		}
	}
	return nil
}

// Extras carries optional auxiliary outputs of a forward pass.
type Extras map[string]float64

// Model is a forecaster. Forward must not read b.YFuture when it is nil and
// must not change the model's state.
type Model interface {
	Name() string
	Forward(b *datasets.Batch) (*Distribution, Extras, error)
}

// Learner is a model trained by gradient steps.
type Learner interface {
	Model
	// Backward runs a forward pass on a batch with targets and accumulates
	// the gradients of the model's objective.
	Backward(b *datasets.Batch) (*Distribution, Extras, error)
	// Step applies and clears the accumulated gradients.
	Step(lr, weightDecay, clipNorm float64) error
}

// Fitter is a model fitted in one pass over the training split.
type Fitter interface {
	Model
	Fit(train *datasets.WindowDataset) error
}

// ParamCounter reports the number of trainable parameters.
type ParamCounter interface {
	NumParams() int
}

// Dims carries what a constructor needs to size a model.
type Dims struct {
	X      int // covariates
	Y      int // targets
	Past   int
	Future int
	Hidden int
	Layers int
	Seed   int64
	// Params holds variant specific options (e.g. "k" for the analog model).
	Params map[string]float64
}

// Param returns Params[name] or def when unset.
func (d Dims) Param(name string, def float64) float64 {
	if v, ok := d.Params[name]; ok {
		return v
	}
	return def
}

// Constructor builds a fresh model for one (dataset, model) run.
type Constructor func(d Dims) (Model, error)

// Registry maps model kinds to constructors.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds or replaces a constructor.
func (r *Registry) Register(kind string, c Constructor) {
	r.ctors[kind] = c
}

// Get looks up a constructor.
func (r *Registry) Get(kind string) (Constructor, bool) {
	c, ok := r.ctors[kind]
	return c, ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry registers the variants of this package.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("BaselineMean", func(Dims) (Model, error) { return BaselineMean{}, nil })
	r.Register("BaselineLast", func(Dims) (Model, error) { return BaselineLast{}, nil })
	r.Register("MLP", func(d Dims) (Model, error) { return NewMLPFromDims(d) })
	return r
}
