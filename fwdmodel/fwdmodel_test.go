package fwdmodel

import (
	"math"
	"testing"

	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
	"gonum.org/v1/gonum/mat"
)

// layeredWorld builds a world over [-10,10]² × [0,20] with flat boundaries.
// offset(b) is the depth of boundary b and rock(layer, prop) the properties
// of the layer below it.
func layeredWorld(t *testing.T, nBoundaries int, offset func(b int) float64,
	rock func(layer int, p model.RockProperty) float64) (*model.WorldSpec, *model.WorldParams) {
	t.Helper()
	spec := &model.WorldSpec{
		XBounds: model.Bounds{Min: -10, Max: 10},
		YBounds: model.Bounds{Min: -10, Max: 10},
		ZBounds: model.Bounds{Min: 0, Max: 20},
	}
	params := &model.WorldParams{}
	for b := 0; b < nBoundaries; b++ {
		off := mat.NewDense(20, 20, nil)
		for i := 0; i < 20; i++ {
			for j := 0; j < 20; j++ {
				off.Set(i, j, offset(b))
			}
		}
		spec.Boundaries = append(spec.Boundaries, model.BoundarySpec{
			Offset:              off,
			CtrlPointResolution: [2]int{5, 5},
		})
		params.ControlPoints = append(params.ControlPoints, mat.NewDense(5, 5, nil))
		props := make([]float64, model.RockPropertyCount)
		for p := range props {
			props[p] = rock(b, model.RockProperty(p))
		}
		params.RockProperties = append(params.RockProperties, props)
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("spec.Validate: %v", err)
	}
	if err := params.Validate(spec); err != nil {
		t.Fatalf("params.Validate: %v", err)
	}
	return spec, params
}

func mustInterpolators(t *testing.T, spec *model.WorldSpec) []*world.InterpolatorSpec {
	t.Helper()
	interps, err := world.NewInterpolators(spec)
	if err != nil {
		t.Fatalf("NewInterpolators: %v", err)
	}
	return interps
}

func mustPointCache(t *testing.T, spec *model.WorldSpec, locations *mat.Dense) *PointCache {
	t.Helper()
	interps := mustInterpolators(t, spec)
	q, err := world.NewScatteredQuery(interps, spec, locations)
	if err != nil {
		t.Fatalf("NewScatteredQuery: %v", err)
	}
	return &PointCache{Interps: interps, Query: q}
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func relClose(got, want, rel float64) bool {
	return math.Abs(got-want) <= rel*math.Abs(want)
}
