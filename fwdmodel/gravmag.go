package fwdmodel

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
	"gonum.org/v1/gonum/mat"
)

// eps keeps the prism potentials finite when a sensor sits on a corner.
const eps = 1e-12

// farPadding extends the outermost voxel columns so the voxel grid behaves
// like an infinite half-space.
const farPadding = 1e5

// ErrSensorHeight is returned when gravity or magnetic sensors do not all
// share one z coordinate.
var ErrSensorHeight = errors.New("sensors must share a single height")

// SensFunc is the corner potential of a prism-integral kernel, evaluated at
// a corner offset (x, y, z) from the sensor with z pointing up.
type SensFunc func(x, y, z float64) float64

// InterpParams maps sensors onto the nodes of an outer grid that is one
// voxel larger than the voxel grid on each side. Sensor n reads
// Σ_k SensorWeights[n][k]·field(SensorIndices[n][k]).
type InterpParams struct {
	SensorIndices [][4]int
	SensorWeights [][4]float64
	// GridLocations are the used grid nodes (nNodes×3) at sensor height.
	GridLocations *mat.Dense
}

// MakeInterpParams computes the bilinear resampling from grid nodes to
// sensor locations (N×3). Locations outside the outer grid are clamped onto
// its edge.
func MakeInterpParams(vox model.VoxelSpec, locations mat.Matrix, w *model.WorldSpec) (InterpParams, error) {
	nQuery, cols := locations.Dims()
	if nQuery == 0 {
		return InterpParams{}, fmt.Errorf("MakeInterpParams: no sensor locations")
	}
	if cols < 3 {
		return InterpParams{}, fmt.Errorf("MakeInterpParams: locations have %d columns, want 3", cols)
	}
	imWidth := vox.XResolution + 2
	imHeight := vox.YResolution + 2
	imMaxX := float64(imWidth - 1)
	imMaxY := float64(imHeight - 1)

	sensorZ := locations.At(0, 2)
	halfX := w.XBounds.Span() / (2 * float64(vox.XResolution))
	halfY := w.YBounds.Span() / (2 * float64(vox.YResolution))
	left, right := w.XBounds.Min-halfX, w.XBounds.Max+halfX
	top, bottom := w.YBounds.Min-halfY, w.YBounds.Max+halfY

	used := make(map[int]int)
	var nodes [][2]int
	ip := InterpParams{
		SensorIndices: make([][4]int, nQuery),
		SensorWeights: make([][4]float64, nQuery),
	}
	for i := 0; i < nQuery; i++ {
		if z := locations.At(i, 2); z != sensorZ {
			return InterpParams{}, fmt.Errorf("MakeInterpParams: sensor %d at z=%g, sensor 0 at z=%g: %w", i, z, sensorZ, ErrSensorHeight)
		}
		xx := clampTo(imMaxX*(locations.At(i, 0)-left)/(right-left), imMaxX)
		yy := clampTo(imMaxY*(locations.At(i, 1)-top)/(bottom-top), imMaxY)

		x1, y1 := int(math.Floor(xx)), int(math.Floor(yy))
		x2, y2 := x1, y1
		if xx < imMaxX {
			x2++
		}
		if yy < imMaxY {
			y2++
		}
		a := xx - float64(x1)
		b := yy - float64(y1)
		ip.SensorWeights[i] = [4]float64{(1 - a) * (1 - b), a * (1 - b), (1 - a) * b, a * b}

		xind := [4]int{x1, x2, x1, x2}
		yind := [4]int{y1, y1, y2, y2}
		for k := 0; k < 4; k++ {
			g := xind[k] + yind[k]*imWidth
			idx, ok := used[g]
			if !ok {
				idx = len(nodes)
				used[g] = idx
				nodes = append(nodes, [2]int{xind[k], yind[k]})
			}
			ip.SensorIndices[i][k] = idx
		}
	}

	ip.GridLocations = mat.NewDense(len(nodes), 3, nil)
	for k, n := range nodes {
		ip.GridLocations.Set(k, 0, float64(n[0])*(right-left)/imMaxX+left)
		ip.GridLocations.Set(k, 1, float64(n[1])*(bottom-top)/imMaxY+top)
		ip.GridLocations.Set(k, 2, sensorZ)
	}
	return ip, nil
}

func clampTo(v, hi float64) float64 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// ComputeSensitivity builds the nLocations×nPrisms sensitivity matrix for the
// voxel grid with the given edges. Prisms are ordered x, y, z with z
// fastest, matching the column-major flattening of voxelised properties.
func ComputeSensitivity(xEdges, yEdges, zEdges []float64, locations mat.Matrix, f SensFunc) *mat.Dense {
	nx, ny, nz := len(xEdges), len(yEdges), len(zEdges)
	nLoc, _ := locations.Dims()
	nPrisms := (nx - 1) * (ny - 1) * (nz - 1)
	sens := mat.NewDense(nLoc, nPrisms, nil)

	x := make([]float64, nx)
	y := make([]float64, ny)
	z := make([]float64, nz)
	e := make([]float64, nx*ny*nz)
	at := func(i, j, k int) float64 { return e[(i*ny+j)*nz+k] }

	for n := 0; n < nLoc; n++ {
		sx, sy, sz := locations.At(n, 0), locations.At(n, 1), locations.At(n, 2)
		for i, v := range xEdges {
			x[i] = v - sx
		}
		for j, v := range yEdges {
			y[j] = v - sy
		}
		for k, v := range zEdges {
			z[k] = -(v - sz)
		}
		x[0] -= farPadding
		y[0] -= farPadding
		x[nx-1] += farPadding
		y[ny-1] += farPadding

		for i := 0; i < nx; i++ {
			for j := 0; j < ny; j++ {
				for k := 0; k < nz; k++ {
					e[(i*ny+j)*nz+k] = f(x[i], y[j], z[k])
				}
			}
		}

		row := sens.RawRowView(n)
		idx := 0
		for i := 0; i < nx-1; i++ {
			for j := 0; j < ny-1; j++ {
				for k := 0; k < nz-1; k++ {
					v := (at(i+1, j+1, k+1) - at(i+1, j+1, k) - at(i+1, j, k+1) + at(i+1, j, k)) -
						(at(i, j+1, k+1) - at(i, j+1, k) - at(i, j, k+1) + at(i, j, k))
					row[idx] = -v
					idx++
				}
			}
		}
	}
	return sens
}

// ComputeField evaluates the grid-node field sens·props and resamples it to
// the sensor locations.
func ComputeField(sens *mat.Dense, ip InterpParams, props []float64) ([]float64, error) {
	_, nPrisms := sens.Dims()
	if len(props) != nPrisms {
		return nil, fmt.Errorf("ComputeField: %d property values for %d prisms: %w", len(props), nPrisms, model.ErrParamsMismatch)
	}
	var raw mat.VecDense
	raw.MulVec(sens, mat.NewVecDense(nPrisms, props))

	out := make([]float64, len(ip.SensorWeights))
	for i, w := range ip.SensorWeights {
		for k := 0; k < 4; k++ {
			out[i] += raw.AtVec(ip.SensorIndices[i][k]) * w[k]
		}
	}
	return out, nil
}

// GravmagCache is the precomputed state shared by the gravity and magnetic
// forward models.
type GravmagCache struct {
	Interps     []*world.InterpolatorSpec
	Query       *world.Query
	Voxel       model.VoxelSpec
	Interp      InterpParams
	Sensitivity *mat.Dense
}

// newGravmagCache samples the world at the supersampled voxel resolution and
// computes sensitivities at the base resolution.
func newGravmagCache(interps []*world.InterpolatorSpec, w *model.WorldSpec, q *world.Query,
	vox model.VoxelSpec, locations mat.Matrix, f SensFunc) (*GravmagCache, error) {
	ip, err := MakeInterpParams(vox, locations, w)
	if err != nil {
		return nil, err
	}
	xEdges := world.LinSpaced(vox.XResolution+1, w.XBounds.Min, w.XBounds.Max)
	yEdges := world.LinSpaced(vox.YResolution+1, w.YBounds.Min, w.YBounds.Max)
	zEdges := world.LinSpaced(vox.ZResolution+1, w.ZBounds.Min, w.ZBounds.Max)
	return &GravmagCache{
		Interps:     interps,
		Query:       q,
		Voxel:       vox,
		Interp:      ip,
		Sensitivity: ComputeSensitivity(xEdges, yEdges, zEdges, ip.GridLocations, f),
	}, nil
}

// supersampled returns the query resolution for vox.
func supersampled(vox model.VoxelSpec) (int, int, int) {
	f := 1 << vox.Supersample
	return vox.XResolution * f, vox.YResolution * f, vox.ZResolution * f
}

// field voxelises prop, averages it back down to the base resolution and
// applies the sensitivity matrix.
func (c *GravmagCache) field(params *model.WorldParams, prop model.RockProperty) ([]float64, error) {
	vox, err := world.Voxels(c.Interps, params, c.Query, prop)
	if err != nil {
		return nil, err
	}
	values := world.Flatten(vox)
	nx, ny, nz := c.Query.ResX, c.Query.ResY, c.Query.ResZ
	for s := 0; s < c.Voxel.Supersample; s++ {
		values, err = world.Shrink3d(values, nx, ny, nz)
		if err != nil {
			return nil, err
		}
		nx, ny, nz = nx/2, ny/2, nz/2
	}
	return ComputeField(c.Sensitivity, c.Interp, values)
}
