package world

import (
	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// EdgeGrid2D lays resX×resY points from edge to edge of the bounds, x
// varying fastest. An axis with a single point sits at the midpoint.
func EdgeGrid2D(xb, yb model.Bounds, resX, resY int) *mat.Dense {
	out := mat.NewDense(resX*resY, 2, nil)
	c := 0
	for j := 0; j < resY; j++ {
		for i := 0; i < resX; i++ {
			out.Set(c, 0, edgeCoord(xb, i, resX))
			out.Set(c, 1, edgeCoord(yb, j, resY))
			c++
		}
	}
	return out
}

func edgeCoord(b model.Bounds, i, res int) float64 {
	if res == 1 {
		return b.Mid()
	}
	return b.Min + b.Span()*float64(i)/float64(res-1)
}

// InternalGrid2D returns cell centres with x varying fastest.
func InternalGrid2D(xb, yb model.Bounds, resX, resY int) *mat.Dense {
	out := mat.NewDense(resX*resY, 2, nil)
	c := 0
	for j := 0; j < resY; j++ {
		for i := 0; i < resX; i++ {
			out.Set(c, 0, cellCentre(xb, i, resX))
			out.Set(c, 1, cellCentre(yb, j, resY))
			c++
		}
	}
	return out
}

// InternalGrid2DX returns cell centres with y varying fastest, so point
// i*resY+j is cell (i, j). This is the ordering used by grid queries and
// voxel grids.
func InternalGrid2DX(xb, yb model.Bounds, resX, resY int) *mat.Dense {
	out := mat.NewDense(resX*resY, 2, nil)
	c := 0
	for i := 0; i < resX; i++ {
		for j := 0; j < resY; j++ {
			out.Set(c, 0, cellCentre(xb, i, resX))
			out.Set(c, 1, cellCentre(yb, j, resY))
			c++
		}
	}
	return out
}

// SensorGrid places sensors at the cell centres of a resX×resY grid at
// height z.
func SensorGrid(w *model.WorldSpec, resX, resY int, z float64) *mat.Dense {
	xy := InternalGrid2D(w.XBounds, w.YBounds, resX, resY)
	n, _ := xy.Dims()
	out := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, xy.At(i, 0))
		out.Set(i, 1, xy.At(i, 1))
		out.Set(i, 2, z)
	}
	return out
}

// SensorGrid3d places points at voxel centres, z varying fastest.
func SensorGrid3d(w *model.WorldSpec, resX, resY, resZ int) *mat.Dense {
	out := mat.NewDense(resX*resY*resZ, 3, nil)
	c := 0
	for i := 0; i < resX; i++ {
		for j := 0; j < resY; j++ {
			for k := 0; k < resZ; k++ {
				out.Set(c, 0, cellCentre(w.XBounds, i, resX))
				out.Set(c, 1, cellCentre(w.YBounds, j, resY))
				out.Set(c, 2, cellCentre(w.ZBounds, k, resZ))
				c++
			}
		}
	}
	return out
}

func cellCentre(b model.Bounds, i, res int) float64 {
	return b.Min + b.Span()*(float64(i)+0.5)/float64(res)
}

// LinSpaced returns n evenly spaced values from lo to hi inclusive.
func LinSpaced(n int, lo, hi float64) []float64 {
	out := make([]float64, n)
	switch n {
	case 0:
		return out
	case 1:
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}

// Flatten returns the entries of m in column-major order.
func Flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}
