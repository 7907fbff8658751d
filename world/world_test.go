package world

import (
	"math"
	"testing"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// layeredWorld builds a world over [-10,10]² × [0,20] with nBoundaries flat
// boundaries. offset(b) gives the mean surface of boundary b, ctrl(b) the
// constant control value and rock(layer, prop) the layer properties.
func layeredWorld(t *testing.T, nBoundaries int, offset func(b int) float64, ctrl func(b int) float64,
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
			Class:               model.BoundaryNormal,
		})
		cp := mat.NewDense(5, 5, nil)
		for i := 0; i < 5; i++ {
			for j := 0; j < 5; j++ {
				cp.Set(i, j, ctrl(b))
			}
		}
		params.ControlPoints = append(params.ControlPoints, cp)
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

func mustInterpolators(t *testing.T, spec *model.WorldSpec) []*InterpolatorSpec {
	t.Helper()
	interps, err := NewInterpolators(spec)
	if err != nil {
		t.Fatalf("NewInterpolators: %v", err)
	}
	return interps
}

func zeroRock(int, model.RockProperty) float64 { return 0 }

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
