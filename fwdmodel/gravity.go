package fwdmodel

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// gravConst is Newton's constant in SI units.
const gravConst = 6.674e-11

// siToMilliGal converts m/s² to mGal.
const siToMilliGal = 1e5

// GravitySens is the vertical-attraction corner potential of a unit-density
// prism, in mGal.
func GravitySens(x, y, z float64) float64 {
	r := math.Sqrt(x*x + y*y + z*z)
	return gravConst * siToMilliGal *
		(x*math.Log(y+r+eps) + y*math.Log(x+r+eps) - z*math.Atan(x*y/(z*r+eps)))
}

// GravSens computes the gravity sensitivity matrix for sensors at locations
// over the voxel grid with the given edges.
func GravSens(xEdges, yEdges, zEdges []float64, locations mat.Matrix) *mat.Dense {
	return ComputeSensitivity(xEdges, yEdges, zEdges, locations, GravitySens)
}

// ForwardGravity returns the gravity anomaly in mGal at every sensor.
func ForwardGravity(cache *GravmagCache, params *model.WorldParams, p model.GravParams) (*model.GravResults, error) {
	readings, err := cache.field(params, model.Density)
	if err != nil {
		return nil, fmt.Errorf("ForwardGravity: %w", err)
	}
	res := &model.GravResults{}
	if p.ReturnSensorData {
		res.Readings = readings
	}
	return res, nil
}
