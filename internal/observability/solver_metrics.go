package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SolverCollector exposes metrics for the iterative heat solve.
type SolverCollector struct {
	gatherer prometheus.Gatherer

	HeatSolveIterations prometheus.Histogram
	NonConvergedTotal   prometheus.Counter
}

// NewSolverCollector registers solver metrics against the provided registerer.
func NewSolverCollector(reg prometheus.Registerer) (*SolverCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	iterations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "thermal_solver_iterations",
		Help:    "Conjugate gradient iterations taken by each heat solve.",
		Buckets: prometheus.ExponentialBuckets(4, 2, 12),
	})
	iterations, err := registerHistogram(reg, iterations, "thermal_solver_iterations")
	if err != nil {
		return nil, err
	}

	nonConverged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "thermal_solver_nonconverged_total",
		Help: "Heat solves that stopped at the iteration limit before reaching tolerance.",
	})
	nonConverged, err = registerCounter(reg, nonConverged, "thermal_solver_nonconverged_total")
	if err != nil {
		return nil, err
	}

	return &SolverCollector{
		gatherer:            gatherer,
		HeatSolveIterations: iterations,
		NonConvergedTotal:   nonConverged,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SolverCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveHeatSolve records the outcome of one heat solve.
func (c *SolverCollector) ObserveHeatSolve(iterations int, converged bool) {
	if c == nil {
		return
	}
	if c.HeatSolveIterations != nil {
		c.HeatSolveIterations.Observe(float64(iterations))
	}
	if !converged && c.NonConvergedTotal != nil {
		c.NonConvergedTotal.Inc()
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
