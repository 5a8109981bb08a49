// Package experiment drives the leaderboard sweep: every configured model is
// trained and evaluated on every configured dataset, results are collected
// in a results.Table and every recorded pair leaves a prediction artifact on
// disk.
package experiment

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Noofbiz/seq2seqTime/datasets"
	"github.com/Noofbiz/seq2seqTime/predict"
	"github.com/Noofbiz/seq2seqTime/train"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TimestampLayout names a run's output files.
const TimestampLayout = "20060102-150405"

//go:embed default.yaml
var defaultConfigYAML []byte

// DefaultConfigYAML returns the commented default configuration.
func DefaultConfigYAML() []byte { return append([]byte(nil), defaultConfigYAML...) }

// Dataset kinds.
const (
	KindCSV       = "csv"
	KindSynthetic = "synthetic"
)

// DatasetConfig describes one benchmark dataset.
type DatasetConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Path is the CSV file, or a directory searched for the first CSV.
	Path      string                   `yaml:"path,omitempty"`
	CSV       datasets.CSVOptions      `yaml:"csv,omitempty"`
	Synthetic datasets.SyntheticConfig `yaml:"synthetic,omitempty"`
	Split     datasets.Split           `yaml:"split"`

	// Hidden is the hidden size given to every model on this dataset.
	Hidden int `yaml:"hidden"`
}

// ModelConfig describes one model variant.
type ModelConfig struct {
	Kind string `yaml:"kind"`

	// Name overrides the leaderboard name, which defaults to Kind.
	Name   string             `yaml:"name,omitempty"`
	Layers int                `yaml:"layers,omitempty"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// DisplayName is the leaderboard row name.
func (m ModelConfig) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Kind
}

// Config is a full sweep description.
type Config struct {
	OutDir    string `yaml:"out_dir"`
	Timestamp string `yaml:"timestamp,omitempty"`

	WindowPast   int   `yaml:"window_past"`
	WindowFuture int   `yaml:"window_future"`
	BatchSize    int   `yaml:"batch_size"`
	Workers      int   `yaml:"workers"`
	Seed         int64 `yaml:"seed"`

	// Baseline is the model used as zero point of the leaderboard ranking.
	Baseline string `yaml:"baseline"`
	// Metric is the leaderboard metric: rmse, smape or nll.
	Metric string `yaml:"metric"`

	// SummaryHidden is the hidden size used for the model size summary.
	SummaryHidden int `yaml:"summary_hidden"`

	Train train.Config `yaml:"train"`

	Datasets []DatasetConfig `yaml:"datasets"`
	Models   []ModelConfig   `yaml:"models"`
}

// ApplyDefaults fills zero values. Timestamp is set to now when empty.
func (c *Config) ApplyDefaults() {
	if c.OutDir == "" {
		c.OutDir = "outputs"
	}
	if c.Timestamp == "" {
		c.Timestamp = time.Now().Format(TimestampLayout)
	}
	if c.WindowPast <= 0 {
		c.WindowPast = 96
	}
	if c.WindowFuture <= 0 {
		c.WindowFuture = 48
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	if c.Baseline == "" {
		c.Baseline = "BaselineMean"
	}
	if c.Metric == "" {
		c.Metric = predict.MetricNLL
	}
	if c.SummaryHidden <= 0 {
		c.SummaryHidden = 16
	}
	if c.Train.BatchSize <= 0 {
		c.Train.BatchSize = c.BatchSize
	}
	c.Train.ApplyDefaults()
	for i := range c.Datasets {
		d := &c.Datasets[i]
		if d.Kind == "" {
			d.Kind = KindSynthetic
			if d.Path != "" {
				d.Kind = KindCSV
			}
		}
		if d.Split.Train == 0 && d.Split.Val == 0 {
			d.Split = datasets.DefaultSplit
		}
		if d.Hidden <= 0 {
			d.Hidden = 32
		}
		if d.Kind == KindSynthetic && d.Synthetic.Seed == 0 {
			d.Synthetic.Seed = c.Seed
		}
	}
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if len(c.Datasets) == 0 {
		return errors.New("config: no datasets")
	}
	if len(c.Models) == 0 {
		return errors.New("config: no models")
	}
	switch c.Metric {
	case predict.MetricRMSE, predict.MetricSMAPE, predict.MetricNLL:
	default:
		return errors.Errorf("config: unknown metric %q", c.Metric)
	}
	if err := checkPathElem("timestamp", c.Timestamp); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, d := range c.Datasets {
		if d.Name == "" {
			return errors.Errorf("config: dataset %d has no name", i)
		}
		if err := checkPathElem("dataset name", d.Name); err != nil {
			return err
		}
		if seen[d.Name] {
			return errors.Errorf("config: duplicate dataset %q", d.Name)
		}
		seen[d.Name] = true
		switch d.Kind {
		case KindCSV:
			if d.Path == "" {
				return errors.Errorf("config: dataset %q: csv needs a path", d.Name)
			}
			if len(d.CSV.TargetColumns) == 0 {
				return errors.Errorf("config: dataset %q: no target columns", d.Name)
			}
		case KindSynthetic:
		default:
			return errors.Errorf("config: dataset %q: unknown kind %q", d.Name, d.Kind)
		}
		if d.Split.Train <= 0 || d.Split.Val < 0 || d.Split.Train+d.Split.Val >= 1 {
			return errors.Errorf("config: dataset %q: invalid split %+v", d.Name, d.Split)
		}
	}
	names := map[string]bool{}
	for i, m := range c.Models {
		if m.Kind == "" {
			return errors.Errorf("config: model %d has no kind", i)
		}
		if err := checkPathElem("model name", m.DisplayName()); err != nil {
			return err
		}
		if names[m.DisplayName()] {
			return errors.Errorf("config: duplicate model name %q", m.DisplayName())
		}
		names[m.DisplayName()] = true
	}
	return nil
}

// checkPathElem rejects names that are not a single path element, since
// timestamps, datasets and models name directories under the output dir.
func checkPathElem(what, name string) error {
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Errorf("config: %s %q must be a single path element", what, name)
	}
	return nil
}

// LoadConfig reads a YAML config, applies defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and validates.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders the effective config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(c)
	return b, errors.Wrap(err, "encode config")
}

// WriteDefaultConfig writes the embedded default config to path.
func WriteDefaultConfig(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	return errors.Wrap(os.WriteFile(path, defaultConfigYAML, 0o644), "write default config")
}

// Source builds the dataset source described by d.
func (d DatasetConfig) Source() (datasets.Source, error) {
	switch d.Kind {
	case KindSynthetic:
		cfg := d.Synthetic
		return datasets.NewSeriesSource(d.Name, func() (*datasets.Series, error) {
			return datasets.Synthetic(cfg), nil
		}, d.Split), nil
	case KindCSV:
		path, opts := d.Path, d.CSV
		return datasets.NewSeriesSource(d.Name, func() (*datasets.Series, error) {
			if fi, err := os.Stat(path); err == nil && fi.IsDir() {
				found, err := datasets.FindCSVInAssets(path)
				if err != nil {
					return nil, err
				}
				path = found
			}
			return datasets.LoadCSV(path, opts)
		}, d.Split), nil
	}
	return nil, errors.Errorf("unknown dataset kind %q", d.Kind)
}
