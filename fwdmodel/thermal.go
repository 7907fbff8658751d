package fwdmodel

import (
	"context"
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
	"gonum.org/v1/gonum/mat"
)

// heatTolerance is the relative residual at which the heat solve stops.
const heatTolerance = 1e-4

// grid3 is a dense 3D array with z fastest.
type grid3 struct {
	nx, ny, nz int
	v          []float64
}

func newGrid3(nx, ny, nz int) grid3 {
	return grid3{nx: nx, ny: ny, nz: nz, v: make([]float64, nx*ny*nz)}
}

func (g grid3) idx(i, j, k int) int          { return (i*g.ny+j)*g.nz + k }
func (g grid3) at(i, j, k int) float64       { return g.v[g.idx(i, j, k)] }
func (g grid3) set(i, j, k int, val float64) { g.v[g.idx(i, j, k)] = val }

// fillAndPad copies an nx×ny×nz voxel block into a grid padded by two cells
// on each lateral side, one above and two below, replicating edge values.
func fillAndPad(values []float64, nx, ny, nz int) (grid3, error) {
	if len(values) != nx*ny*nz {
		return grid3{}, fmt.Errorf("fillAndPad: %d values for a %dx%dx%d grid: %w", len(values), nx, ny, nz, model.ErrParamsMismatch)
	}
	pad := newGrid3(nx+4, ny+4, nz+3)
	for i := 0; i < pad.nx; i++ {
		si := min(max(i, 2), pad.nx-3) - 2
		for j := 0; j < pad.ny; j++ {
			sj := min(max(j, 2), pad.ny-3) - 2
			for k := 0; k < pad.nz; k++ {
				sk := min(max(k, 1), pad.nz-3) - 1
				pad.set(i, j, k, values[si*ny*nz+sj*nz+sk])
			}
		}
	}
	return pad, nil
}

// faceOffsets are the four corners averaged onto a face, expressed along
// (normal, first tangent, second tangent).
var faceOffsets = [4][3]int{{1, 0, 0}, {1, 1, 0}, {1, 0, 1}, {1, 1, 1}}

// cells averages the padded node values onto the faces normal to axis
// (0 = x, 1 = y, 2 = z).
func cells(pad grid3, axis int) grid3 {
	var xcol, ycol, zcol int
	switch axis {
	case 0:
		xcol, ycol, zcol = 0, 2, 1
	case 1:
		xcol, ycol, zcol = 1, 0, 2
	default:
		xcol, ycol, zcol = 2, 1, 0
	}
	nx, ny, nz := pad.nx-1, pad.ny-1, pad.nz-1
	switch axis {
	case 0:
		nx--
	case 1:
		ny--
	default:
		nz--
	}
	out := newGrid3(nx, ny, nz)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				sum := 0.0
				for _, o := range faceOffsets {
					sum += pad.at(i+o[xcol], j+o[ycol], k+o[zcol])
				}
				out.set(i, j, k, sum/4)
			}
		}
	}
	return out
}

// isocells averages the padded values surrounding each node, skipping
// corners that fall on the outer shell.
func isocells(pad grid3) grid3 {
	nx, ny, nz := pad.nx-1, pad.ny-1, pad.nz-1
	out := newGrid3(nx, ny, nz)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				sum, count := 0.0, 0
				for di := 0; di < 2; di++ {
					if (di == 0 && i == 0) || (di == 1 && i == nx-1) {
						continue
					}
					for dj := 0; dj < 2; dj++ {
						if (dj == 0 && j == 0) || (dj == 1 && j == ny-1) {
							continue
						}
						for dk := 0; dk < 2; dk++ {
							if (dk == 0 && k == 0) || (dk == 1 && k == nz-1) {
								continue
							}
							sum += pad.at(i+di, j+dj, k+dk)
							count++
						}
					}
				}
				if count > 0 {
					out.set(i, j, k, sum/float64(count))
				}
			}
		}
	}
	return out
}

// heatSystem is the assembled conduction operator with its diagonal kept
// for the Jacobi preconditioner.
type heatSystem struct {
	a    *sparse.CSR
	diag []float64
}

// heatBoundary holds the vertical boundary conditions of the heat solve.
type heatBoundary struct {
	Surface  float64
	Lower    float64
	HeatFlow bool
}

// heatSolution is the nodal temperature field with the surface level
// prepended.
type heatSolution struct {
	T          grid3
	Iterations int
	Converged  bool
}

// solveHeat assembles the steady-state conduction system from face
// conductivities ew, ns, ud and nodal sources s, and solves it with a
// Jacobi-preconditioned conjugate gradient. size is the world extent along
// x, y and z.
func solveHeat(ctx context.Context, ew, ns, ud, s grid3, bc heatBoundary, size [3]float64) (heatSolution, error) {
	nx, ny, nz := s.nx-2, s.ny-2, s.nz-2
	n := nx * ny * nz
	dx := size[0] / float64(nx-1)
	dy := size[1] / float64(ny-1)
	dz := size[2] / float64(nz)

	dok := sparse.NewDOK(n, n)
	diagonal := make([]float64, n)
	b := mat.NewVecDense(n, nil)
	row := func(i, j, k int) int { return i*ny*nz + j*nz + k }

	// The system is assembled as -A·T = -b so the matrix is positive definite.
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				r := row(i, j, k)
				rhs := s.at(i+1, j+1, k+1)

				west := ew.at(i, j+1, k+1) / (dx * dx)
				east := ew.at(i+1, j+1, k+1) / (dx * dx)
				north := ns.at(i+1, j, k+1) / (dy * dy)
				south := ns.at(i+1, j+1, k+1) / (dy * dy)
				up := ud.at(i+1, j+1, k) / (dz * dz)
				down := ud.at(i+1, j+1, k+1) / (dz * dz)

				diag := west + east + north + south + up + down
				link := func(c int, v float64) { dok.Set(r, c, -v) }

				if k == 0 {
					rhs += up * bc.Surface
				} else {
					link(r-1, up)
				}
				if k == nz-1 {
					if bc.HeatFlow {
						diag -= down
						rhs += bc.Lower / dz
					} else {
						rhs += down * bc.Lower
					}
				} else {
					link(r+1, down)
				}

				// Lateral faces are insulating.
				if j == 0 {
					diag -= north
				} else {
					link(row(i, j-1, k), north)
				}
				if j == ny-1 {
					diag -= south
				} else {
					link(row(i, j+1, k), south)
				}
				if i == 0 {
					diag -= west
				} else {
					link(row(i-1, j, k), west)
				}
				if i == nx-1 {
					diag -= east
				} else {
					link(row(i+1, j, k), east)
				}

				dok.Set(r, r, diag)
				diagonal[r] = diag
				b.SetVec(r, rhs)
			}
		}
	}
	sys := heatSystem{a: dok.ToCSR(), diag: diagonal}

	x, iters, converged, err := conjugateGradient(ctx, sys, b, heatTolerance, 2*n)
	if err != nil {
		return heatSolution{}, err
	}

	t := newGrid3(nx, ny, nz+1)
	c := 0
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			t.set(i, j, 0, bc.Surface)
			for k := 1; k <= nz; k++ {
				t.set(i, j, k, x.AtVec(c))
				c++
			}
		}
	}
	return heatSolution{T: t, Iterations: iters, Converged: converged}, nil
}

// conjugateGradient solves sys·x = b for a symmetric positive definite
// operator, stopping when |r|/|b| < tol or after maxIter iterations.
func conjugateGradient(ctx context.Context, sys heatSystem, b *mat.VecDense, tol float64, maxIter int) (*mat.VecDense, int, bool, error) {
	n := b.Len()
	x := mat.NewVecDense(n, nil)
	bNorm := mat.Norm(b, 2)
	if bNorm == 0 {
		return x, 0, true, nil
	}

	inv := mat.NewVecDense(n, nil)
	for i, d := range sys.diag {
		if d != 0 {
			inv.SetVec(i, 1/d)
		} else {
			inv.SetVec(i, 1)
		}
	}

	r := mat.VecDenseCopyOf(b)
	z := mat.NewVecDense(n, nil)
	z.MulElemVec(inv, r)
	p := mat.VecDenseCopyOf(z)
	ap := mat.NewVecDense(n, nil)
	rz := mat.Dot(r, z)
	threshold := tol * bNorm

	for it := 1; it <= maxIter; it++ {
		if it%32 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, it, false, err
			}
		}
		ap.Zero()
		sys.a.MulVecTo(ap.RawVector().Data, false, p.RawVector().Data)
		alpha := rz / mat.Dot(p, ap)
		x.AddScaledVec(x, alpha, p)
		r.AddScaledVec(r, -alpha, ap)
		if mat.Norm(r, 2) < threshold {
			return x, it, true, nil
		}
		z.MulElemVec(inv, r)
		rzNext := mat.Dot(r, z)
		p.AddScaledVec(z, rzNext/rz, p)
		rz = rzNext
	}
	return x, maxIter, false, nil
}

// evalAtLocations trilinearly interpolates nodal temperatures at locations
// (N×3). Locations outside the world take the nearest edge value.
func evalAtLocations(t grid3, locations mat.Matrix, xb, yb, zb model.Bounds) []float64 {
	n, _ := locations.Dims()
	out := make([]float64, n)
	axis := func(v float64, b model.Bounds, size int) (int, int, float64) {
		hi := float64(size - 1)
		c := clampTo(hi*(v-b.Min)/b.Span(), hi)
		lo := int(math.Floor(c))
		up := min(lo+1, size-1)
		return lo, up, c - float64(lo)
	}
	for p := 0; p < n; p++ {
		x1, x2, a := axis(locations.At(p, 0), xb, t.nx)
		y1, y2, b := axis(locations.At(p, 1), yb, t.ny)
		z1, z2, g := axis(locations.At(p, 2), zb, t.nz)
		out[p] = (1-a)*(1-b)*(1-g)*t.at(x1, y1, z1) +
			(1-a)*(1-b)*g*t.at(x1, y1, z2) +
			(1-a)*b*(1-g)*t.at(x1, y2, z1) +
			(1-a)*b*g*t.at(x1, y2, z2) +
			a*(1-b)*(1-g)*t.at(x2, y1, z1) +
			a*(1-b)*g*t.at(x2, y1, z2) +
			a*b*(1-g)*t.at(x2, y2, z1) +
			a*b*g*t.at(x2, y2, z2)
	}
	return out
}

// ThermalCache is the precomputed state of the thermal forward model.
type ThermalCache struct {
	Interps []*world.InterpolatorSpec
	Query   *world.Query
	XBounds model.Bounds
	YBounds model.Bounds
	ZBounds model.Bounds
}

// ForwardThermal solves steady-state conduction through the voxelised world
// and samples the temperature at each sensor.
func ForwardThermal(ctx context.Context, spec *model.ThermalSpec, cache *ThermalCache, params *model.WorldParams, p model.ThermalParams) (*model.ThermalResults, error) {
	q := cache.Query
	cond, err := world.Voxels(cache.Interps, params, q, model.ThermalConductivity)
	if err != nil {
		return nil, fmt.Errorf("ForwardThermal: %w", err)
	}
	prod, err := world.Voxels(cache.Interps, params, q, model.ThermalProductivity)
	if err != nil {
		return nil, fmt.Errorf("ForwardThermal: %w", err)
	}

	volume, err := fillAndPad(world.Flatten(cond), q.ResX, q.ResY, q.ResZ)
	if err != nil {
		return nil, fmt.Errorf("ForwardThermal: %w", err)
	}
	source, err := fillAndPad(world.Flatten(prod), q.ResX, q.ResY, q.ResZ)
	if err != nil {
		return nil, fmt.Errorf("ForwardThermal: %w", err)
	}

	bc := heatBoundary{
		Surface:  spec.SurfaceTemperature,
		Lower:    spec.LowerBoundary,
		HeatFlow: spec.LowerBoundaryIsHeatFlow,
	}
	size := [3]float64{cache.XBounds.Span(), cache.YBounds.Span(), cache.ZBounds.Span()}
	sol, err := solveHeat(ctx, cells(volume, 0), cells(volume, 1), cells(volume, 2), isocells(source), bc, size)
	if err != nil {
		return nil, fmt.Errorf("ForwardThermal: %w", err)
	}

	res := &model.ThermalResults{Converged: sol.Converged, Iterations: sol.Iterations}
	if p.ReturnSensorData {
		res.Readings = evalAtLocations(sol.T, spec.Locations, cache.XBounds, cache.YBounds, cache.ZBounds)
	}
	return res, nil
}
