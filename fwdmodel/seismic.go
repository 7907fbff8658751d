package fwdmodel

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
	"gonum.org/v1/gonum/mat"
)

// ErrInterfaceIndex is returned when a sensor references a boundary that
// does not exist.
var ErrInterfaceIndex = errors.New("interface index out of range")

func checkInterfaces(interfaces [][]int, nLoc, nBoundaries int) error {
	if len(interfaces) != nLoc {
		return fmt.Errorf("%d interface lists for %d locations: %w", len(interfaces), nLoc, model.ErrParamsMismatch)
	}
	for i, list := range interfaces {
		for _, b := range list {
			if b < 0 || b >= nBoundaries {
				return fmt.Errorf("location %d: boundary %d of %d: %w", i, b, nBoundaries, ErrInterfaceIndex)
			}
		}
	}
	return nil
}

// ForwardSeismic1d returns the two-way vertical travel time to each
// requested interface: twice the sum of layer thickness over P-wave
// velocity, from the surface down to and including the interface's layer.
func ForwardSeismic1d(spec *model.Seismic1dSpec, cache *PointCache, params *model.WorldParams, p model.Seismic1dParams) (*model.Seismic1dResults, error) {
	tr, err := world.Transitions(cache.Interps, params, cache.Query)
	if err != nil {
		return nil, fmt.Errorf("ForwardSeismic1d: %w", err)
	}
	nBoundaries, nLoc := tr.Dims()
	if err := checkInterfaces(spec.Interfaces, nLoc, nBoundaries); err != nil {
		return nil, fmt.Errorf("ForwardSeismic1d: %w", err)
	}
	vel, err := world.ExtractProperty(params, model.PWaveVelocity)
	if err != nil {
		return nil, fmt.Errorf("ForwardSeismic1d: %w", err)
	}
	thick := world.Thickness(tr)

	res := &model.Seismic1dResults{Readings: make([][]float64, nLoc)}
	for i := 0; i < nLoc; i++ {
		times := make([]float64, len(spec.Interfaces[i]))
		for n, b := range spec.Interfaces[i] {
			times[n] = twoWayTime(thick, i, b, vel)
		}
		res.Readings[i] = times
	}
	if !p.ReturnSensorData {
		res.Readings = nil
	}
	return res, nil
}

func twoWayTime(thick *mat.Dense, loc, last int, vel []float64) float64 {
	t := 0.0
	for l := 0; l <= last; l++ {
		h := thick.At(loc, l)
		if h == 0 {
			continue
		}
		t += 2 * h / vel[l]
	}
	return t
}
