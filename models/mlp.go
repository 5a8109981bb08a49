package models

import (
	"math"
	"math/rand"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/pkg/errors"
)

// MLPConfig holds the architecture of the MLP forecaster. Training
// hyperparameters (learning rate, weight decay, clipping) are supplied by the
// trainer at each Step.
type MLPConfig struct {
	// XDim and YDim are the number of covariates and targets.
	XDim int
	YDim int

	// Future is the forecast horizon, used to encode the step position.
	Future int

	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 32 will be used.
	HiddenSizes []int

	// Seed controls weight initialization. If zero, time-based seed is used.
	Seed int64
}

const (
	minLogStd = -7.0
	maxLogStd = 7.0
)

// MLP forecasts each future step independently from
// [x_future(t), y_past last, y_past mean, t/future] with ReLU hidden layers
// and a Gaussian head (mean, log std) per target. It is trained on the
// Gaussian negative log-likelihood with plain SGD.
type MLP struct {
	Config MLPConfig

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	// accumulated gradients, same shapes as weights/biases
	gradW [][][]float32
	gradB [][]float32
}

// NewMLPFromDims builds an MLP with Layers hidden layers of Hidden units.
func NewMLPFromDims(d Dims) (*MLP, error) {
	hidden := d.Hidden
	if hidden <= 0 {
		hidden = 32
	}
	layers := d.Layers
	if layers <= 0 {
		layers = 2
	}
	sizes := make([]int, layers)
	for i := range sizes {
		sizes[i] = hidden
	}
	return NewMLP(MLPConfig{XDim: d.X, YDim: d.Y, Future: d.Future, HiddenSizes: sizes, Seed: d.Seed})
}

// NewMLP creates a new MLP with small random weights, ready to train.
func NewMLP(cfg MLPConfig) (*MLP, error) {
	if cfg.YDim <= 0 {
		return nil, errors.Errorf("mlp: target dimension must be positive, got %d", cfg.YDim)
	}
	if cfg.XDim < 0 {
		return nil, errors.Errorf("mlp: negative covariate dimension %d", cfg.XDim)
	}
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{32}
	}
	if cfg.Future <= 0 {
		cfg.Future = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &MLP{Config: cfg}
	sizes := make([]int, 0, 2+len(cfg.HiddenSizes))
	sizes = append(sizes, cfg.XDim+2*cfg.YDim+1)
	sizes = append(sizes, cfg.HiddenSizes...)
	sizes = append(sizes, 2*cfg.YDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		// Xavier/Glorot uniform initialization heuristic
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				row[i] = (rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}
	m.zeroGrad()
	return m, nil
}

// Name implements Model.
func (m *MLP) Name() string { return "MLP" }

// NumParams implements ParamCounter.
func (m *MLP) NumParams() int {
	n := 0
	for l := range m.weights {
		n += len(m.weights[l]) * len(m.weights[l][0])
		n += len(m.biases[l])
	}
	return n
}

func (m *MLP) zeroGrad() {
	m.gradW = make([][][]float32, len(m.weights))
	m.gradB = make([][]float32, len(m.biases))
	for l := range m.weights {
		m.gradW[l] = make([][]float32, len(m.weights[l]))
		for j := range m.weights[l] {
			m.gradW[l][j] = make([]float32, len(m.weights[l][j]))
		}
		m.gradB[l] = make([]float32, len(m.biases[l]))
	}
}

// features builds the input vector of one (sample, step) pair.
func (m *MLP) features(b *datasets.Batch, s, step int) ([]float32, error) {
	xf := b.XFuture[s][step]
	yp := b.YPast[s]
	if len(xf) != m.Config.XDim {
		return nil, errors.Wrapf(ErrOutputShape, "mlp: got %d covariates, want %d", len(xf), m.Config.XDim)
	}
	if len(yp) == 0 || len(yp[0]) != m.Config.YDim {
		return nil, errors.Wrapf(ErrOutputShape, "mlp: bad past target window")
	}
	in := make([]float32, 0, m.layerSizes[0])
	in = append(in, xf...)
	in = append(in, yp[len(yp)-1]...)
	for k := 0; k < m.Config.YDim; k++ {
		var sum float32
		for _, row := range yp {
			sum += row[k]
		}
		in = append(in, sum/float32(len(yp)))
	}
	in = append(in, float32(step+1)/float32(m.Config.Future))
	return in, nil
}

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActivations: list of pre-activation vectors per layer (len = L)
// - activations: list of activation vectors per layer (len = L+1, activations[0] = input)
func (m *MLP) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, errors.New("input has incorrect dimension")
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = input
	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		W := m.weights[l]
		b := m.biases[l]
		pre := make([]float32, len(b))
		for j := range pre {
			sum := b[j]
			for i, w := range W[j] {
				sum += w * inVec[i]
			}
			pre[j] = sum
		}
		preActs[l] = pre

		// Activation: ReLU for hidden, linear for last layer
		act := append([]float32(nil), pre...)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// head splits the output layer into mean and clamped log std.
func (m *MLP) head(out []float32, k int) (mean, logStd float64, clamped bool) {
	mean = float64(out[k])
	logStd = float64(out[m.Config.YDim+k])
	if logStd < minLogStd {
		return mean, minLogStd, true
	}
	if logStd > maxLogStd {
		return mean, maxLogStd, true
	}
	return mean, logStd, false
}

// Forward implements Model.
func (m *MLP) Forward(b *datasets.Batch) (*Distribution, Extras, error) {
	dist, err := m.run(b, false)
	return dist, nil, err
}

// Backward implements Learner. Gradients are averaged over every predicted
// element of the batch.
func (m *MLP) Backward(b *datasets.Batch) (*Distribution, Extras, error) {
	if b.YFuture == nil {
		return nil, nil, errors.New("mlp: backward needs future targets")
	}
	dist, err := m.run(b, true)
	return dist, nil, err
}

func (m *MLP) run(b *datasets.Batch, train bool) (*Distribution, error) {
	if b.Size() == 0 {
		return nil, errors.New("mlp: empty batch")
	}
	steps := len(b.XFuture[0])
	Y := m.Config.YDim
	dist := NewDistribution(b.Size(), steps, Y)
	count := float64(b.Size() * steps * Y)

	for s := 0; s < b.Size(); s++ {
		for step := 0; step < steps; step++ {
			in, err := m.features(b, s, step)
			if err != nil {
				return nil, err
			}
			preacts, acts, err := m.forwardSingle(in)
			if err != nil {
				return nil, err
			}
			out := acts[len(acts)-1]

			var delta []float32
			if train {
				delta = make([]float32, len(out))
			}
			for k := 0; k < Y; k++ {
				mean, logStd, clamped := m.head(out, k)
				std := math.Exp(logStd)
				dist.Mean[s][step][k] = mean
				dist.Std[s][step][k] = std
				if !train {
					continue
				}
				// d/dmean and d/dlogstd of log(std) + (y-mean)^2 / (2 std^2)
				y := float64(b.YFuture[s][step][k])
				z := (y - mean) / std
				delta[k] = float32(-(y - mean) / (std * std) / count)
				if !clamped {
					delta[Y+k] = float32((1 - z*z) / count)
				}
			}
			if train {
				m.accumulate(preacts, acts, delta)
			}
		}
	}
	return dist, nil
}

// accumulate backpropagates delta (dLoss/dOutput) and adds into gradW/gradB.
func (m *MLP) accumulate(preacts, acts [][]float32, delta []float32) {
	for l := len(m.weights) - 1; l >= 0; l-- {
		inAct := acts[l]
		for j := range delta {
			m.gradB[l][j] += delta[j]
			row := m.gradW[l][j]
			for i, a := range inAct {
				row[i] += delta[j] * a
			}
		}
		if l == 0 {
			break
		}
		// propagate delta to previous layer through the ReLU
		prev := make([]float32, len(inAct))
		for i := range prev {
			if preacts[l-1][i] <= 0 {
				continue
			}
			var sum float32
			for j := range delta {
				sum += m.weights[l][j][i] * delta[j]
			}
			prev[i] = sum
		}
		delta = prev
	}
}

// Step implements Learner: decoupled weight decay SGD with global-norm
// gradient clipping. Accumulated gradients are cleared.
func (m *MLP) Step(lr, weightDecay, clipNorm float64) error {
	var sq float64
	for l := range m.gradW {
		for j := range m.gradW[l] {
			for _, g := range m.gradW[l][j] {
				sq += float64(g) * float64(g)
			}
			sq += float64(m.gradB[l][j]) * float64(m.gradB[l][j])
		}
	}
	norm := math.Sqrt(sq)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		m.zeroGrad()
		return errors.New("mlp: non-finite gradient")
	}
	scale := 1.0
	if clipNorm > 0 && norm > clipNorm {
		scale = clipNorm / norm
	}
	step := float32(lr * scale)
	decay := float32(1 - lr*weightDecay)
	for l := range m.weights {
		for j := range m.weights[l] {
			for i := range m.weights[l][j] {
				m.weights[l][j][i] = m.weights[l][j][i]*decay - step*m.gradW[l][j][i]
			}
			m.biases[l][j] -= step * m.gradB[l][j]
		}
	}
	m.zeroGrad()
	return nil
}
