package world

import (
	"math"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// SqExp2d returns the n1×n2 squared-exponential Gram matrix between the rows
// of x1 and x2 (both n×2), using per-axis length scales. When noisy is set,
// each column's sum is added to the matching diagonal entry.
func SqExp2d(x1, x2 mat.Matrix, ls [2]float64, noisy bool) *mat.Dense {
	n1, _ := x1.Dims()
	n2, _ := x2.Dims()
	wx := 1 / (ls[0] * ls[0])
	wy := 1 / (ls[1] * ls[1])

	k := mat.NewDense(n1, n2, nil)
	for i := 0; i < n1; i++ {
		ax, ay := x1.At(i, 0), x1.At(i, 1)
		for j := 0; j < n2; j++ {
			dx := ax - x2.At(j, 0)
			dy := ay - x2.At(j, 1)
			d := wx*dx*dx + wy*dy*dy
			k.Set(i, j, math.Exp(-0.5*math.Max(0, d)))
		}
	}
	if noisy {
		addColumnSumsToDiagonal(k)
	}
	return k
}

// addColumnSumsToDiagonal adds the sum of column j to k[j][j] for every j on
// the diagonal. Sums are taken before any entry changes.
func addColumnSumsToDiagonal(k *mat.Dense) {
	r, c := k.Dims()
	n := min(r, c)
	sums := make([]float64, n)
	for j := 0; j < n; j++ {
		for i := 0; i < r; i++ {
			sums[j] += k.At(i, j)
		}
	}
	for j := 0; j < n; j++ {
		k.Set(j, j, k.At(j, j)+sums[j])
	}
}

// AutoLengthScale picks half the control-point spacing along each axis.
func AutoLengthScale(xb, yb model.Bounds, res [2]int) [2]float64 {
	return [2]float64{
		0.5 * xb.Span() / (float64(res[0]) - 0.99999),
		0.5 * yb.Span() / (float64(res[1]) - 0.99999),
	}
}
