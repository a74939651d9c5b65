// Package metrics provides the concrete metrics sinks: Prometheus for
// scrape-based monitoring and InfluxDB for training-history dashboards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/deepdist/tabular/core/metrics"
)

// PromSink exposes training progress as Prometheus metrics.
type PromSink struct {
	epochs   *prometheus.CounterVec
	loss     *prometheus.GaugeVec
	terms    *prometheus.GaugeVec
	weights  *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

// NewPromSink registers the training metrics on the default registerer. The
// scrape endpoint is served separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	epochs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "training_epochs_total",
		Help: "Total number of finished epochs",
	}, []string{"model", "phase"})
	loss := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "training_loss",
		Help: "Aggregated loss of the last epoch",
	}, []string{"model", "phase"})
	terms := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "training_loss_term",
		Help: "Per-term loss of the last epoch",
	}, []string{"model", "phase", "term"})
	weights := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "training_term_weight",
		Help: "Aggregator weight of each loss term",
	}, []string{"term"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "training_epoch_seconds",
		Help:    "Wall time per epoch",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "phase"})

	sink := &PromSink{epochs: epochs, loss: loss, terms: terms, weights: weights, duration: duration}
	for _, c := range []prometheus.Collector{epochs, loss, terms, weights, duration} {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch existing := are.ExistingCollector.(type) {
			case *prometheus.CounterVec:
				sink.epochs = existing
			case *prometheus.GaugeVec:
				sink.adoptGauge(c, existing)
			case *prometheus.HistogramVec:
				sink.duration = existing
			}
		}
	}
	return sink, nil
}

func (s *PromSink) adoptGauge(requested prometheus.Collector, existing *prometheus.GaugeVec) {
	switch requested {
	case s.loss:
		s.loss = existing
	case s.terms:
		s.terms = existing
	case s.weights:
		s.weights = existing
	}
}

// RecordEpoch updates the counters and gauges for one epoch.
func (s *PromSink) RecordEpoch(ev coremetrics.EpochResult) error {
	s.epochs.WithLabelValues(ev.Model, ev.Phase).Inc()
	s.loss.WithLabelValues(ev.Model, ev.Phase).Set(ev.Loss)
	for term, v := range ev.Terms {
		s.terms.WithLabelValues(ev.Model, ev.Phase, term).Set(v)
	}
	s.duration.WithLabelValues(ev.Model, ev.Phase).Observe(ev.Duration.Seconds())
	return nil
}

// RecordTermWeights publishes the aggregator weights.
func (s *PromSink) RecordTermWeights(ev coremetrics.TermWeightEvent) error {
	for term, w := range ev.Weights {
		s.weights.WithLabelValues(term).Set(w)
	}
	return nil
}
