package experiment

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SweepMetrics are the Prometheus metrics of one sweep. They live on a
// private registry and are exported to a textfile at the end of the run.
type SweepMetrics struct {
	Registry *prometheus.Registry

	PairsTotal    *prometheus.CounterVec
	TrainDuration *prometheus.HistogramVec
	EvalDuration  *prometheus.HistogramVec
	Epochs        *prometheus.GaugeVec
	MetricValue   *prometheus.GaugeVec
}

// NewSweepMetrics registers the sweep metrics on a fresh registry.
func NewSweepMetrics(namespace string) *SweepMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &SweepMetrics{
		Registry: reg,
		PairsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_total",
				Help:      "Dataset/model pairs by final state (recorded, failed or cancelled)",
			},
			[]string{"dataset", "model", "state"},
		),
		TrainDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "train_duration_seconds",
				Help:      "Wall time spent training a model",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"dataset", "model"},
		),
		EvalDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "eval_duration_seconds",
				Help:      "Wall time spent predicting the test split",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"dataset", "model"},
		),
		Epochs: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "epochs",
				Help:      "Number of training epochs run",
			},
			[]string{"dataset", "model"},
		),
		MetricValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "test_metric",
				Help:      "Test split metric of a recorded pair",
			},
			[]string{"dataset", "model", "metric"},
		),
	}
}

// RecordPair counts a finished pair.
func (m *SweepMetrics) RecordPair(dataset, model string, state State) {
	if m == nil {
		return
	}
	m.PairsTotal.WithLabelValues(dataset, model, string(state)).Inc()
}

// RecordMetrics stores the test metrics of a recorded pair.
func (m *SweepMetrics) RecordMetrics(dataset, model string, values map[string]float64) {
	if m == nil {
		return
	}
	for k, v := range values {
		m.MetricValue.WithLabelValues(dataset, model, k).Set(v)
	}
}

// WriteTextfile writes every metric in the Prometheus text format, for the
// node exporter textfile collector or for archiving next to the run.
func (m *SweepMetrics) WriteTextfile(path string) error {
	return errors.Wrap(prometheus.WriteToTextfile(path, m.Registry), "write metrics textfile")
}
