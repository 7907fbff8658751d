package fwdmodel

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// MagneticSens returns the total-field corner potential for a prism with
// unit susceptibility magnetised along the inducing field. field is the
// inducing field in nT with z pointing up.
func MagneticSens(field [3]float64) SensFunc {
	mag := math.Sqrt(field[0]*field[0] + field[1]*field[1] + field[2]*field[2])
	if mag == 0 {
		return func(float64, float64, float64) float64 { return 0 }
	}
	bx, by, bz := field[0]/mag, field[1]/mag, field[2]/mag
	scale := mag / (4 * math.Pi)

	return func(x, y, z float64) float64 {
		r := math.Sqrt(x*x + y*y + z*z)
		v := -bx*bx*math.Atan(y*z/(x*r+eps)) -
			by*by*math.Atan(x*z/(y*r+eps)) -
			bz*bz*math.Atan(x*y/(z*r+eps)) +
			2*bx*by*math.Log(z+r+eps) +
			2*bx*bz*math.Log(y+r+eps) +
			2*by*bz*math.Log(x+r+eps)
		return scale * v
	}
}

// worldFieldUp converts a background field given in world axes (z down) to
// the z-up frame used by the prism potentials.
func worldFieldUp(f [3]float64) [3]float64 {
	return [3]float64{f[0], f[1], -f[2]}
}

// MagSens computes the magnetic sensitivity matrix for a constant
// background field given in world axes.
func MagSens(xEdges, yEdges, zEdges []float64, locations mat.Matrix, background [3]float64) *mat.Dense {
	return ComputeSensitivity(xEdges, yEdges, zEdges, locations, MagneticSens(worldFieldUp(background)))
}

// ForwardMagnetic returns the total-field anomaly in nT at every sensor.
func ForwardMagnetic(cache *GravmagCache, params *model.WorldParams, p model.MagParams) (*model.MagResults, error) {
	readings, err := cache.field(params, model.Susceptibility)
	if err != nil {
		return nil, fmt.Errorf("ForwardMagnetic: %w", err)
	}
	res := &model.MagResults{}
	if p.ReturnSensorData {
		res.Readings = readings
	}
	return res, nil
}
