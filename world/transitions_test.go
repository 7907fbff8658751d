package world

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

func TestTransitionsBoundariesAreTimes(t *testing.T) {
	spec, params := layeredWorld(t, 5,
		func(b int) float64 { return float64(b) },
		func(int) float64 { return 0 },
		func(layer int, p model.RockProperty) float64 {
			if p == model.PWaveVelocity {
				return 1 + float64(layer%2)
			}
			return 0
		})
	spec.BoundariesAreTimes = true

	interps := mustInterpolators(t, spec)
	q, err := NewScatteredQuery(interps, spec, mat.NewDense(1, 2, nil))
	if err != nil {
		t.Fatalf("NewScatteredQuery: %v", err)
	}
	tr, err := Transitions(interps, params, q)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}

	want := []float64{0, 1, 5, 8, 16}
	for b, w := range want {
		if got := tr.At(b, 0); !almostEqual(got, w, 0.01) {
			t.Errorf("boundary %d depth = %v, want %v", b, got, w)
		}
	}
}

func TestTransitionsMonotoneAndAboveFloor(t *testing.T) {
	for _, class := range []model.BoundaryClass{model.BoundaryNormal, model.BoundaryWarped} {
		t.Run(class.String(), func(t *testing.T) {
			spec, params := layeredWorld(t, 4,
				func(b int) float64 { return 4 * float64(b) },
				func(int) float64 { return 0 },
				zeroRock)
			rng := rand.New(rand.NewSource(42))
			for b := range spec.Boundaries {
				spec.Boundaries[b].Class = class
				cp := params.ControlPoints[b]
				r, c := cp.Dims()
				for i := 0; i < r; i++ {
					for j := 0; j < c; j++ {
						cp.Set(i, j, rng.NormFloat64()*8)
					}
				}
			}
			interps := mustInterpolators(t, spec)
			q, err := NewGridQuery(interps, spec, 12, 9, 10)
			if err != nil {
				t.Fatalf("NewGridQuery: %v", err)
			}
			tr, err := Transitions(interps, params, q)
			if err != nil {
				t.Fatalf("Transitions: %v", err)
			}

			nb, nq := tr.Dims()
			for p := 0; p < nq; p++ {
				for b := 0; b < nb; b++ {
					if tr.At(b, p) > spec.Floor() {
						t.Fatalf("boundary %d point %d depth %v below floor %v", b, p, tr.At(b, p), spec.Floor())
					}
					if b > 0 && tr.At(b, p) < tr.At(b-1, p) {
						t.Fatalf("boundary %d point %d depth %v above boundary %d depth %v", b, p, tr.At(b, p), b-1, tr.At(b-1, p))
					}
				}
			}
		})
	}
}

func TestWarpedMatchesNormalWhenDilationIsIdentity(t *testing.T) {
	build := func(class model.BoundaryClass) *mat.Dense {
		spec, params := layeredWorld(t, 3,
			func(b int) float64 { return 5 * float64(b) },
			func(int) float64 { return 1.5 },
			zeroRock)
		spec.Boundaries[1].Class = class
		interps := mustInterpolators(t, spec)
		q, err := NewGridQuery(interps, spec, 6, 6, 4)
		if err != nil {
			t.Fatalf("NewGridQuery: %v", err)
		}
		tr, err := Transitions(interps, params, q)
		if err != nil {
			t.Fatalf("Transitions: %v", err)
		}
		return tr
	}
	normal := build(model.BoundaryNormal)
	warped := build(model.BoundaryWarped)

	_, nq := normal.Dims()
	for p := 0; p < nq; p++ {
		if got, want := warped.At(1, p), normal.At(1, p); !almostEqual(got, want, 2e-3) {
			t.Errorf("point %d warped depth = %v, want %v", p, got, want)
		}
	}
}

func TestMaxFilter3x3(t *testing.T) {
	in := mat.NewDense(3, 3, []float64{
		-1, -2, -3,
		-4, 5, -6,
		-7, -8, -9,
	})
	out := MaxFilter3x3(in)
	want := []float64{5, 5, 5, 5, 5, 5, 5, 5, 5}
	if !mat.Equal(out, mat.NewDense(3, 3, want)) {
		t.Fatalf("MaxFilter3x3 = %v, want all 5", mat.Formatted(out))
	}

	neg := MaxFilter3x3(mat.NewDense(2, 2, []float64{-1, -1, -1, -1}))
	if !mat.Equal(neg, mat.NewDense(2, 2, nil)) {
		t.Fatalf("negative field dilated to %v, want zeros", mat.Formatted(neg))
	}
}

func TestThickness(t *testing.T) {
	tr := mat.NewDense(3, 2, []float64{
		0, 1,
		2, 4,
		5, 4,
	})
	th := Thickness(tr)
	want := [][]float64{{2, 3, math.Inf(1)}, {3, 0, math.Inf(1)}}
	for q, row := range want {
		for l, w := range row {
			if got := th.At(q, l); got != w {
				t.Errorf("thickness[%d][%d] = %v, want %v", q, l, got, w)
			}
		}
	}
}

func TestTransitionsRejectsMismatchedParams(t *testing.T) {
	spec, params := layeredWorld(t, 3, func(int) float64 { return 0 }, func(int) float64 { return 0 }, zeroRock)
	interps := mustInterpolators(t, spec)
	q, err := NewScatteredQuery(interps, spec, mat.NewDense(2, 2, nil))
	if err != nil {
		t.Fatalf("NewScatteredQuery: %v", err)
	}
	params.ControlPoints = params.ControlPoints[:2]
	if _, err := Transitions(interps, params, q); !errors.Is(err, model.ErrParamsMismatch) {
		t.Fatalf("Transitions error = %v, want ErrParamsMismatch", err)
	}
}
