package world

import (
	"fmt"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// Voxelise integrates piecewise-constant layer properties over vertical
// cells. transitions is nBoundaries×nQuery, zEdges holds nCells+1 edges and
// props holds one value per layer. The result is nCells×nQuery; cells that
// straddle boundaries take the thickness-weighted mean of the layers they
// contain. The last layer extends without limit.
func Voxelise(transitions mat.Matrix, zEdges, props []float64) (*mat.Dense, error) {
	nTrans, nQuery := transitions.Dims()
	if len(props) < nTrans {
		return nil, fmt.Errorf("Voxelise: %d layer properties for %d boundaries: %w", len(props), nTrans, model.ErrParamsMismatch)
	}
	if len(zEdges) < 2 {
		return nil, fmt.Errorf("Voxelise: need at least two z edges, got %d", len(zEdges))
	}
	nCells := len(zEdges) - 1
	final := nTrans - 1
	out := mat.NewDense(nCells, nQuery, nil)

	for q := 0; q < nQuery; q++ {
		layer := 0
		next := 0.0
		if layer < final {
			next = transitions.At(layer+1, q)
		}
		for z := 0; z < nCells; z++ {
			top, bottom := zEdges[z], zEdges[z+1]
			if layer == final || bottom < next {
				out.Set(z, q, props[layer])
				continue
			}

			total := 0.0
			last := top
			for next <= bottom {
				total += props[layer] * (next - last)
				layer++
				last = next
				if layer == final {
					break
				}
				next = transitions.At(layer+1, q)
			}
			total += props[layer] * (bottom - last)
			out.Set(z, q, total/(bottom-top))
		}
	}
	return out, nil
}

// Voxels evaluates transitions for q and voxelises prop over its z edges.
func Voxels(interps []*InterpolatorSpec, params *model.WorldParams, q *Query, prop model.RockProperty) (*mat.Dense, error) {
	t, err := Transitions(interps, params, q)
	if err != nil {
		return nil, err
	}
	props, err := ExtractProperty(params, prop)
	if err != nil {
		return nil, err
	}
	return Voxelise(t, q.EdgeZ, props)
}

// Shrink3d halves each axis of an nx×ny×nz grid (z fastest) by averaging
// blocks of eight cells.
func Shrink3d(values []float64, nx, ny, nz int) ([]float64, error) {
	if len(values) != nx*ny*nz {
		return nil, fmt.Errorf("Shrink3d: %d values for a %dx%dx%d grid", len(values), nx, ny, nz)
	}
	at := func(i, j, k int) float64 { return values[(i*ny+j)*nz+k] }
	out := make([]float64, 0, (nx/2)*(ny/2)*(nz/2))
	for i := 0; i+1 < nx; i += 2 {
		for j := 0; j+1 < ny; j += 2 {
			for k := 0; k+1 < nz; k += 2 {
				sum := at(i, j, k) + at(i+1, j, k) + at(i, j+1, k) + at(i+1, j+1, k) +
					at(i, j, k+1) + at(i+1, j, k+1) + at(i, j+1, k+1) + at(i+1, j+1, k+1)
				out = append(out, sum/8)
			}
		}
	}
	return out, nil
}
