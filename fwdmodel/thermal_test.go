package fwdmodel

import (
	"context"
	"errors"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
	"gonum.org/v1/gonum/mat"
)

func TestFillAndPad(t *testing.T) {
	nx, ny, nz := 2, 3, 2
	values := make([]float64, nx*ny*nz)
	for i := range values {
		values[i] = float64(i + 1)
	}
	pad, err := fillAndPad(values, nx, ny, nz)
	if err != nil {
		t.Fatalf("fillAndPad: %v", err)
	}
	if pad.nx != nx+4 || pad.ny != ny+4 || pad.nz != nz+3 {
		t.Fatalf("padded shape = %dx%dx%d", pad.nx, pad.ny, pad.nz)
	}
	if got := pad.at(0, 0, 0); got != values[0] {
		t.Fatalf("corner = %g, want %g", got, values[0])
	}
	if got := pad.at(pad.nx-1, pad.ny-1, pad.nz-1); got != values[len(values)-1] {
		t.Fatalf("far corner = %g, want %g", got, values[len(values)-1])
	}
	// Interior cell (1,2,1) sits at (3,4,2) in the padded grid.
	if got := pad.at(3, 4, 2); got != values[1*ny*nz+2*nz+1] {
		t.Fatalf("interior = %g, want %g", got, values[1*ny*nz+2*nz+1])
	}

	if _, err := fillAndPad(values[:3], nx, ny, nz); !errors.Is(err, model.ErrParamsMismatch) {
		t.Fatalf("error = %v, want ErrParamsMismatch", err)
	}
}

func constantGrid(nx, ny, nz int, v float64) grid3 {
	g := newGrid3(nx, ny, nz)
	for i := range g.v {
		g.v[i] = v
	}
	return g
}

func TestCellsShapes(t *testing.T) {
	pad := constantGrid(6, 7, 5, 2.5)
	want := [3][3]int{{4, 6, 4}, {5, 5, 4}, {5, 6, 3}}
	for axis := 0; axis < 3; axis++ {
		c := cells(pad, axis)
		if got := [3]int{c.nx, c.ny, c.nz}; got != want[axis] {
			t.Fatalf("cells(axis %d) shape = %v, want %v", axis, got, want[axis])
		}
		for _, v := range c.v {
			if v != 2.5 {
				t.Fatalf("cells(axis %d) of a constant grid = %g", axis, v)
			}
		}
	}
}

func TestIsocellsConstant(t *testing.T) {
	s := isocells(constantGrid(5, 5, 4, 3))
	if s.nx != 4 || s.ny != 4 || s.nz != 3 {
		t.Fatalf("shape = %dx%dx%d", s.nx, s.ny, s.nz)
	}
	for i, v := range s.v {
		if !almostEqual(v, 3, 1e-12) {
			t.Fatalf("isocells[%d] = %g, want 3", i, v)
		}
	}
}

// systemOf builds a heatSystem from a dense row-major matrix.
func systemOf(n int, dense []float64) heatSystem {
	dok := sparse.NewDOK(n, n)
	diag := make([]float64, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if v := dense[r*n+c]; v != 0 {
				dok.Set(r, c, v)
			}
		}
		diag[r] = dense[r*n+r]
	}
	return heatSystem{a: dok.ToCSR(), diag: diag}
}

func TestConjugateGradientSmallSystem(t *testing.T) {
	sys := systemOf(2, []float64{4, 1, 1, 3})
	x, iters, ok, err := conjugateGradient(context.Background(), sys, mat.NewVecDense(2, []float64{1, 2}), 1e-10, 10)
	if err != nil || !ok {
		t.Fatalf("conjugateGradient: ok=%v err=%v", ok, err)
	}
	if !almostEqual(x.AtVec(0), 1.0/11, 1e-9) || !almostEqual(x.AtVec(1), 7.0/11, 1e-9) {
		t.Fatalf("x = %v, want [1/11 7/11]", x.RawVector().Data)
	}
	if iters > 2 {
		t.Fatalf("took %d iterations on a 2x2 system", iters)
	}
}

// laplacian1d is the tridiagonal [-1 2 -1] matrix.
func laplacian1d(n int) heatSystem {
	dok := sparse.NewDOK(n, n)
	diag := make([]float64, n)
	for r := 0; r < n; r++ {
		if r > 0 {
			dok.Set(r, r-1, -1)
		}
		dok.Set(r, r, 2)
		diag[r] = 2
		if r < n-1 {
			dok.Set(r, r+1, -1)
		}
	}
	return heatSystem{a: dok.ToCSR(), diag: diag}
}

func TestLaplacianOperator(t *testing.T) {
	sys := laplacian1d(4)
	got := mat.NewVecDense(4, nil)
	sys.a.MulVecTo(got.RawVector().Data, false, []float64{1, 2, 3, 4})
	want := []float64{0, 0, 0, 5}
	for i, w := range want {
		if !almostEqual(got.AtVec(i), w, 1e-12) {
			t.Fatalf("A·x = %v, want %v", got.RawVector().Data, want)
		}
	}
}

func TestConjugateGradientCancelled(t *testing.T) {
	n := 200
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetVec(i, 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, _, err := conjugateGradient(ctx, laplacian1d(n), b, 1e-12, 2*n); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestConjugateGradientIterationLimit(t *testing.T) {
	n := 100
	b := mat.NewVecDense(n, nil)
	b.SetVec(0, 1)
	_, iters, ok, err := conjugateGradient(context.Background(), laplacian1d(n), b, 1e-12, 5)
	if err != nil {
		t.Fatalf("conjugateGradient: %v", err)
	}
	if ok || iters != 5 {
		t.Fatalf("converged=%v after %d iterations, want a stop at the limit", ok, iters)
	}
}

func thermalSetup(t *testing.T, k float64) (*model.WorldSpec, *model.WorldParams, *ThermalCache) {
	t.Helper()
	spec, params := layeredWorld(t, 3, func(b int) float64 { return float64(6 * b) },
		func(layer int, p model.RockProperty) float64 {
			if p == model.ThermalConductivity {
				return k
			}
			return 0
		})
	interps := mustInterpolators(t, spec)
	q, err := world.NewGridQuery(interps, spec, 4, 4, 5)
	if err != nil {
		t.Fatalf("NewGridQuery: %v", err)
	}
	return spec, params, &ThermalCache{
		Interps: interps,
		Query:   q,
		XBounds: spec.XBounds,
		YBounds: spec.YBounds,
		ZBounds: spec.ZBounds,
	}
}

func boreholeAt(x, y float64, depths ...float64) *mat.Dense {
	m := mat.NewDense(len(depths), 3, nil)
	for i, z := range depths {
		m.SetRow(i, []float64{x, y, z})
	}
	return m
}

func TestForwardThermalDirichletProfile(t *testing.T) {
	_, params, cache := thermalSetup(t, 2)
	depths := []float64{0, 4, 10, 20}
	spec := &model.ThermalSpec{
		Locations:          boreholeAt(1, -3, depths...),
		SurfaceTemperature: 10,
		LowerBoundary:      110,
		Voxelisation:       model.VoxelSpec{XResolution: 4, YResolution: 4, ZResolution: 5},
	}
	res, err := ForwardThermal(context.Background(), spec, cache, params, model.ThermalParams{ReturnSensorData: true})
	if err != nil {
		t.Fatalf("ForwardThermal: %v", err)
	}
	if !res.Converged {
		t.Fatalf("heat solve did not converge after %d iterations", res.Iterations)
	}
	// Node levels are dz = 4 apart and the lower temperature is imposed one
	// level below the deepest node.
	for i, z := range depths {
		want := 10 + 100*(z/4)/6
		if !almostEqual(res.Readings[i], want, 1e-2) {
			t.Fatalf("T(z=%g) = %g, want %g", z, res.Readings[i], want)
		}
	}
}

func TestForwardThermalHeatFlowProfile(t *testing.T) {
	const k, q = 2.0, 1.0
	_, params, cache := thermalSetup(t, k)
	depths := []float64{0, 6, 12, 20}
	spec := &model.ThermalSpec{
		Locations:               boreholeAt(-7, 2, depths...),
		SurfaceTemperature:      15,
		LowerBoundary:           q,
		LowerBoundaryIsHeatFlow: true,
		Voxelisation:            model.VoxelSpec{XResolution: 4, YResolution: 4, ZResolution: 5},
	}
	res, err := ForwardThermal(context.Background(), spec, cache, params, model.ThermalParams{ReturnSensorData: true})
	if err != nil {
		t.Fatalf("ForwardThermal: %v", err)
	}
	for i, z := range depths {
		want := 15 + q*z/k
		if !almostEqual(res.Readings[i], want, 1e-2) {
			t.Fatalf("T(z=%g) = %g, want %g", z, res.Readings[i], want)
		}
	}
}

func TestForwardThermalHeatProductionWarms(t *testing.T) {
	spec, params := layeredWorld(t, 2, func(b int) float64 { return float64(10 * b) },
		func(layer int, p model.RockProperty) float64 {
			switch p {
			case model.ThermalConductivity:
				return 3
			case model.ThermalProductivity:
				return 0.5
			}
			return 0
		})
	interps := mustInterpolators(t, spec)
	q, err := world.NewGridQuery(interps, spec, 3, 3, 4)
	if err != nil {
		t.Fatalf("NewGridQuery: %v", err)
	}
	cache := &ThermalCache{Interps: interps, Query: q, XBounds: spec.XBounds, YBounds: spec.YBounds, ZBounds: spec.ZBounds}
	ts := &model.ThermalSpec{
		Locations:          boreholeAt(0, 0, 10),
		SurfaceTemperature: 0,
		LowerBoundary:      0,
	}
	res, err := ForwardThermal(context.Background(), ts, cache, params, model.ThermalParams{ReturnSensorData: true})
	if err != nil {
		t.Fatalf("ForwardThermal: %v", err)
	}
	if res.Readings[0] <= 0 {
		t.Fatalf("mid-depth temperature = %g, want positive with internal heating", res.Readings[0])
	}
}

func TestEvalAtLocationsClamps(t *testing.T) {
	g := newGrid3(2, 2, 2)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			g.set(i, j, 0, 0)
			g.set(i, j, 1, 10)
		}
	}
	b := model.Bounds{Min: 0, Max: 1}
	locs := mat.NewDense(3, 3, []float64{
		0.5, 0.5, 0.25,
		-5, 9, -3,
		0.5, 0.5, 40,
	})
	got := evalAtLocations(g, locs, b, b, b)
	want := []float64{2.5, 0, 10}
	for i := range want {
		if !almostEqual(got[i], want[i], 1e-12) {
			t.Fatalf("T[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}
