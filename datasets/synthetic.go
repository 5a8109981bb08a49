package datasets

import (
	"math"
	"math/rand"
	"time"
)

// SyntheticConfig controls the generated benchmark series.
type SyntheticConfig struct {
	Rows   int           `yaml:"rows"`
	Start  time.Time     `yaml:"start"`
	Step   time.Duration `yaml:"step"`
	Period float64       `yaml:"period"` // in rows
	Noise  float64       `yaml:"noise"`
	Trend  float64       `yaml:"trend"` // per row
	Seed   int64         `yaml:"seed"`
}

// Synthetic generates a noisy periodic target together with a "forecast"
// covariate that leads the target by a quarter period, plus calendar
// features. The same config always yields the same series.
func Synthetic(cfg SyntheticConfig) *Series {
	if cfg.Rows <= 0 {
		cfg.Rows = 1000
	}
	if cfg.Step <= 0 {
		cfg.Step = 30 * time.Minute
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.Period <= 0 {
		cfg.Period = 48
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	s := &Series{
		Times:      make([]time.Time, cfg.Rows),
		Inputs:     make([][]float32, cfg.Rows),
		Targets:    make([][]float32, cfg.Rows),
		InputCols:  []string{"forecast"},
		TargetCols: []string{"value"},
		Freq:       cfg.Step,
	}
	for i := 0; i < cfg.Rows; i++ {
		phase := 2 * math.Pi * float64(i) / cfg.Period
		lead := math.Sin(phase + math.Pi/2)
		value := math.Sin(phase) + cfg.Trend*float64(i) + cfg.Noise*rng.NormFloat64()
		s.Times[i] = cfg.Start.Add(time.Duration(i) * cfg.Step)
		s.Inputs[i] = []float32{float32(lead)}
		s.Targets[i] = []float32{float32(value)}
	}
	AddTimeFeatures(s)
	return s
}
