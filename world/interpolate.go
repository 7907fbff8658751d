package world

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// KernelInterpolate evaluates the stochastic part of boundary b at every
// query point from the control grid ctrl (resX×resY).
func KernelInterpolate(q *Query, b int, ctrl mat.Matrix) ([]float64, error) {
	w := q.Weights[b]
	_, nCtrl := w.Dims()
	flat := Flatten(ctrl)
	if len(flat) != nCtrl {
		return nil, fmt.Errorf("KernelInterpolate: boundary %d has %d control values, want %d", b, len(flat), nCtrl)
	}
	var out mat.VecDense
	out.MulVec(w, mat.NewVecDense(nCtrl, flat))
	return out.RawVector().Data, nil
}

// LinearInterpolate bilinearly samples the offset surface of s at every
// query point. Coordinates outside the surface are clamped to its edge.
func LinearInterpolate(q *Query, s *InterpolatorSpec) []float64 {
	imWidth, imHeight := s.Offset.Dims()
	imMaxX := float64(imWidth - 1)
	imMaxY := float64(imHeight - 1)
	scaleW := float64(imWidth) / s.OffsetX.Span()
	scaleH := float64(imHeight) / s.OffsetY.Span()

	n := q.NumPoints()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		xx := clamp((q.Positions.At(i, 0)-s.OffsetX.Min)*scaleW, 0, imMaxX)
		yy := clamp((q.Positions.At(i, 1)-s.OffsetY.Min)*scaleH, 0, imMaxY)

		x1, y1 := int(math.Floor(xx)), int(math.Floor(yy))
		x2, y2 := x1, y1
		if xx < imMaxX {
			x2++
		}
		if yy < imMaxY {
			y2++
		}
		ax := xx - float64(x1)
		ay := yy - float64(y1)

		v11 := s.Offset.At(x1, y1)
		v21 := s.Offset.At(x2, y1)
		v12 := s.Offset.At(x1, y2)
		v22 := s.Offset.At(x2, y2)
		out[i] = (1-ax)*((1-ay)*v11+ay*v12) + ax*((1-ay)*v21+ay*v22)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
