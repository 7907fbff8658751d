package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for forward evaluations.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// ForwardCollector bundles Prometheus metrics for cache generation and
// forward evaluation.
type ForwardCollector struct {
	gatherer prometheus.Gatherer

	Evaluations         *prometheus.CounterVec
	ForwardDurations    *prometheus.HistogramVec
	CacheBuildDurations *prometheus.HistogramVec

	CachedQueries prometheus.Gauge
}

// NewForwardCollector registers forward-model metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewForwardCollector(reg prometheus.Registerer) (*ForwardCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	evals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forward_evaluations_total",
		Help: "Total number of forward evaluations, labeled by sensor and outcome.",
	}, []string{"sensor", "outcome"})
	evals, err := registerCounterVec(reg, evals, "forward_evaluations_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forward_duration_seconds",
		Help:    "Forward evaluation latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"sensor"})
	durations, err = registerHistogramVec(reg, durations, "forward_duration_seconds")
	if err != nil {
		return nil, err
	}

	builds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forward_cache_build_duration_seconds",
		Help:    "Time spent precomputing a sensor cache.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"sensor"})
	builds, err = registerHistogramVec(reg, builds, "forward_cache_build_duration_seconds")
	if err != nil {
		return nil, err
	}

	queries, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "forward_cached_queries",
		Help: "Number of distinct world queries held by the cache.",
	}), "forward_cached_queries")
	if err != nil {
		return nil, err
	}

	return &ForwardCollector{
		gatherer:            gatherer,
		Evaluations:         evals,
		ForwardDurations:    durations,
		CacheBuildDurations: builds,
		CachedQueries:       queries,
	}, nil
}

// ObserveForward records one forward evaluation of sensor.
func (c *ForwardCollector) ObserveForward(sensor string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	if c.Evaluations != nil {
		c.Evaluations.WithLabelValues(sensor, outcome).Inc()
	}
	if c.ForwardDurations != nil {
		c.ForwardDurations.WithLabelValues(sensor).Observe(d.Seconds())
	}
}

// ObserveCacheBuild records the time taken to build the cache of sensor.
func (c *ForwardCollector) ObserveCacheBuild(sensor string, d time.Duration) {
	if c == nil || c.CacheBuildDurations == nil {
		return
	}
	c.CacheBuildDurations.WithLabelValues(sensor).Observe(d.Seconds())
}

// SetCachedQueries updates the cached query gauge.
func (c *ForwardCollector) SetCachedQueries(n int) {
	if c == nil || c.CachedQueries == nil {
		return
	}
	c.CachedQueries.Set(float64(n))
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ForwardCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ForwardCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
