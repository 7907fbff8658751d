package world

import (
	"math"
	"testing"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

func TestSqExp2dSymmetricWithUnitDiagonal(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 0.5,
		-2, 3,
		0.25, -1,
	})
	k := SqExp2d(x, x, [2]float64{1.5, 0.7}, false)

	for i := 0; i < 4; i++ {
		if got := k.At(i, i); got != 1 {
			t.Errorf("K[%d][%d] = %v, want 1", i, i, got)
		}
		for j := 0; j < 4; j++ {
			if k.At(i, j) != k.At(j, i) {
				t.Errorf("K[%d][%d] = %v, K[%d][%d] = %v; want symmetric", i, j, k.At(i, j), j, i, k.At(j, i))
			}
			if k.At(i, j) <= 0 || k.At(i, j) > 1 {
				t.Errorf("K[%d][%d] = %v, want in (0, 1]", i, j, k.At(i, j))
			}
		}
	}
}

func TestSqExp2dNoisyAddsColumnSums(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})
	ls := [2]float64{1, 1}
	plain := SqExp2d(x, x, ls, false)
	noisy := SqExp2d(x, x, ls, true)

	for j := 0; j < 3; j++ {
		sum := 0.0
		for i := 0; i < 3; i++ {
			sum += plain.At(i, j)
		}
		if got, want := noisy.At(j, j), plain.At(j, j)+sum; !almostEqual(got, want, 1e-12) {
			t.Errorf("noisy K[%d][%d] = %v, want %v", j, j, got, want)
		}
		for i := 0; i < 3; i++ {
			if i != j && noisy.At(i, j) != plain.At(i, j) {
				t.Errorf("off-diagonal K[%d][%d] changed: %v vs %v", i, j, noisy.At(i, j), plain.At(i, j))
			}
		}
	}
}

func TestSqExp2dKnownValue(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{0, 0})
	b := mat.NewDense(1, 2, []float64{2, 0})
	k := SqExp2d(a, b, [2]float64{2, 1}, false)
	want := math.Exp(-0.5)
	if got := k.At(0, 0); !almostEqual(got, want, 1e-15) {
		t.Fatalf("K = %v, want %v", got, want)
	}
}

func TestAutoLengthScale(t *testing.T) {
	ls := AutoLengthScale(model.Bounds{Min: 0, Max: 10}, model.Bounds{Min: -5, Max: 5}, [2]int{11, 3})
	if !almostEqual(ls[0], 0.5, 1e-5) {
		t.Errorf("x length scale = %v, want ~0.5", ls[0])
	}
	if !almostEqual(ls[1], 2.5, 1e-4) {
		t.Errorf("y length scale = %v, want ~2.5", ls[1])
	}
}
