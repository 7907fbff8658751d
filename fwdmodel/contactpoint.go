package fwdmodel

import (
	"fmt"

	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
)

// ForwardContactPoint returns the depth of each requested boundary at each
// location.
func ForwardContactPoint(spec *model.ContactPointSpec, cache *PointCache, params *model.WorldParams, p model.ContactPointParams) (*model.ContactPointResults, error) {
	tr, err := world.Transitions(cache.Interps, params, cache.Query)
	if err != nil {
		return nil, fmt.Errorf("ForwardContactPoint: %w", err)
	}
	nBoundaries, nLoc := tr.Dims()
	if err := checkInterfaces(spec.Interfaces, nLoc, nBoundaries); err != nil {
		return nil, fmt.Errorf("ForwardContactPoint: %w", err)
	}

	res := &model.ContactPointResults{Readings: make([][]float64, nLoc)}
	for i := 0; i < nLoc; i++ {
		depths := make([]float64, len(spec.Interfaces[i]))
		for n, b := range spec.Interfaces[i] {
			depths[n] = tr.At(b, i)
		}
		res.Readings[i] = depths
	}
	if !p.ReturnSensorData {
		res.Readings = nil
	}
	return res, nil
}
