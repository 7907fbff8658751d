package world

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// Transitions returns the depth of every boundary at every query point as an
// nBoundaries×nQuery matrix. Rows are non-decreasing downward and never
// exceed the world floor.
func Transitions(interps []*InterpolatorSpec, params *model.WorldParams, q *Query) (*mat.Dense, error) {
	nb := len(interps)
	if nb == 0 {
		return nil, model.ErrNoBoundaries
	}
	if len(params.ControlPoints) != nb || len(q.Weights) != nb {
		return nil, fmt.Errorf("Transitions: %d interpolators, %d control grids, %d weight sets: %w",
			nb, len(params.ControlPoints), len(q.Weights), model.ErrParamsMismatch)
	}
	if q.BoundariesAreTimes && len(params.RockProperties) < nb-1 {
		return nil, fmt.Errorf("Transitions: %d rock property sets for time conversion: %w",
			len(params.RockProperties), model.ErrParamsMismatch)
	}

	n := q.NumPoints()
	floor := interps[0].FloorHeight
	out := mat.NewDense(nb, n, nil)

	upper := make([]float64, n)
	var lastOffset []float64
	for i, s := range interps {
		t, err := KernelInterpolate(q, i, params.ControlPoints[i])
		if err != nil {
			return nil, fmt.Errorf("Transitions: %w", err)
		}
		offset := LinearInterpolate(q, s)

		if q.BoundariesAreTimes {
			if i > 0 {
				v := params.RockProperties[i-1][model.PWaveVelocity]
				for p := range offset {
					offset[p] = lastOffset[p] + offset[p]*v
				}
			}
			lastOffset = offset
		}

		for p := range t {
			t[p] = math.Min(math.Max(t[p]+offset[p], upper[p]), floor)
		}

		if s.Class == model.BoundaryWarped {
			t, err = postProcessGranites(t, offset, upper, q, i, params.ControlPoints[i], floor)
			if err != nil {
				return nil, fmt.Errorf("Transitions: %w", err)
			}
			// The 1e-3 guard in the blend can push a dome past the floor.
			for p := range t {
				t[p] = math.Min(t[p], floor)
			}
		}

		out.SetRow(i, t)
		upper = t
	}
	return out, nil
}

// Thickness converts transitions (nBoundaries×nQuery) into layer thicknesses
// (nQuery×nLayers). The bottom layer is unbounded.
func Thickness(transitions mat.Matrix) *mat.Dense {
	nLayers, nQuery := transitions.Dims()
	out := mat.NewDense(nQuery, nLayers, nil)
	for q := 0; q < nQuery; q++ {
		for l := 0; l < nLayers; l++ {
			if l == nLayers-1 {
				out.Set(q, l, math.Inf(1))
				continue
			}
			out.Set(q, l, transitions.At(l+1, q)-transitions.At(l, q))
		}
	}
	return out
}

// postProcessGranites domes a warped boundary. The control grid is dilated
// with a 3×3 maximum filter and re-interpolated to give the lower envelope;
// the result blends between the boundary above and that envelope along a
// quarter circle.
func postProcessGranites(tI, offset, tU []float64, q *Query, b int, ctrl mat.Matrix, floor float64) ([]float64, error) {
	tL, err := KernelInterpolate(q, b, MaxFilter3x3(ctrl))
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(tI))
	for p := range tI {
		lower := math.Max(math.Min(tL[p]+offset[p], floor), tU[p])
		inner := math.Max(tI[p], tU[p])
		h := lower - tU[p]
		g := math.Min(inner-tU[p], h)
		h += 1e-3
		r := 1 - g/h
		out[p] = tU[p] + h*math.Sqrt(math.Max(0, 1-r*r))
	}
	return out, nil
}

// MaxFilter3x3 replaces every entry with the maximum over its clamped 3×3
// neighbourhood. The running maximum starts at zero, so negative
// neighbourhoods dilate to zero.
func MaxFilter3x3(m mat.Matrix) *mat.Dense {
	h, w := m.Dims()
	out := mat.NewDense(h, w, nil)
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			value := 0.0
			for ii := max(i-1, 0); ii <= min(i+1, h-1); ii++ {
				for jj := max(j-1, 0); jj <= min(j+1, w-1); jj++ {
					value = math.Max(value, m.At(ii, jj))
				}
			}
			out.Set(i, j, value)
		}
	}
	return out
}
