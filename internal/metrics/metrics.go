// Package metrics exposes Prometheus collectors for collection, training,
// prediction and upstream calls. All methods are safe on a nil *Collector.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "ventiglobe"

// Collector holds the application's Prometheus metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	CollectionRecords  *prometheus.CounterVec
	CollectionSkipped  *prometheus.CounterVec
	CollectionDuration prometheus.Histogram

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	ModelScore       *prometheus.GaugeVec
	TrainingExamples prometheus.Gauge

	Predictions *prometheus.CounterVec

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
}

// New creates a Collector with Go and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		CollectionRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "collection_records_total",
				Help:      "Daily records collected, by city",
			},
			[]string{"city"},
		),
		CollectionSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "collection_skipped_cities_total",
				Help:      "Cities skipped during collection, by reason",
			},
			[]string{"reason"},
		),
		CollectionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "collection_duration_seconds",
				Help:      "Duration of full collection runs",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		TrainingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "training_runs_total",
				Help:      "Training runs by outcome",
			},
			[]string{"outcome"},
		),
		TrainingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "training_duration_seconds",
				Help:      "Duration of model training including persistence",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		ModelScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "model_score",
				Help:      "Evaluation score of the current model on the test split",
			},
			[]string{"target", "metric"},
		),
		TrainingExamples: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "training_examples",
				Help:      "Number of supervised examples used by the last training run",
			},
		),

		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "predictions_total",
				Help:      "Predictions served, by whether placeholder conditions were used",
			},
			[]string{"placeholders"},
		),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream HTTP attempts by endpoint and status",
			},
			[]string{"upstream", "status"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream HTTP attempt latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"upstream"},
		),
	}

	c.registry.MustRegister(
		c.CollectionRecords,
		c.CollectionSkipped,
		c.CollectionDuration,
		c.TrainingRuns,
		c.TrainingDuration,
		c.ModelScore,
		c.TrainingExamples,
		c.Predictions,
		c.UpstreamRequests,
		c.UpstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// CityCollected records a city that yielded records.
func (c *Collector) CityCollected(city string, records int) {
	if c == nil {
		return
	}
	c.CollectionRecords.WithLabelValues(city).Add(float64(records))
}

// CitySkipped records a city dropped from a collection run.
func (c *Collector) CitySkipped(reason string) {
	if c == nil {
		return
	}
	c.CollectionSkipped.WithLabelValues(reason).Inc()
}

// CollectionFinished records the duration of a collection run.
func (c *Collector) CollectionFinished(d time.Duration) {
	if c == nil {
		return
	}
	c.CollectionDuration.Observe(d.Seconds())
}

// TrainingFinished records a training run. scores maps target to metric
// name to value and is ignored on failure.
func (c *Collector) TrainingFinished(d time.Duration, examples int, scores map[string]map[string]float64, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.TrainingRuns.WithLabelValues("failure").Inc()
		return
	}
	c.TrainingRuns.WithLabelValues("success").Inc()
	c.TrainingDuration.Observe(d.Seconds())
	c.TrainingExamples.Set(float64(examples))
	for target, m := range scores {
		for name, v := range m {
			c.ModelScore.WithLabelValues(target, name).Set(v)
		}
	}
}

// PredictionServed counts one prediction.
func (c *Collector) PredictionServed(placeholders bool) {
	if c == nil {
		return
	}
	c.Predictions.WithLabelValues(strconv.FormatBool(placeholders)).Inc()
}

// ObserveUpstream matches resilience.Observer.
func (c *Collector) ObserveUpstream(name string, status int, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	label := strconv.Itoa(status)
	if err != nil && status == 0 {
		label = "error"
	}
	c.UpstreamRequests.WithLabelValues(name, label).Inc()
	c.UpstreamDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
