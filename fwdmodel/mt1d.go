package fwdmodel

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/signalsfoundry/obsidian/model"
	"github.com/signalsfoundry/obsidian/world"
)

// mu0 is the permeability of free space.
const mu0 = 4 * math.Pi * 1e-7

type mat2 [2][2]complex128

// applyRotation rotates Z by the difference between the strike of the layer
// below and the layer above: R·Z·Rᵀ.
func applyRotation(z mat2, below, above float64) mat2 {
	theta := below - above
	c, s := complex(math.Cos(theta), 0), complex(math.Sin(theta), 0)
	r := mat2{{c, s}, {-s, c}}
	var rz, out mat2
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			rz[i][j] = r[i][0]*z[0][j] + r[i][1]*z[1][j]
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = rz[i][0]*r[j][0] + rz[i][1]*r[j][1]
		}
	}
	return out
}

// primaryAngle is atan(y/x) with the x→0 limit pinned to π/2.
func primaryAngle(y, x float64) float64 {
	if math.Abs(x) < 1e-10 {
		return math.Pi / 2
	}
	return math.Atan(y / x)
}

// ImpedanceAniso1d computes the surface impedance of a stack of azimuthally
// anisotropic layers at one frequency (Hz). thick holds one entry per
// layer; the last layer is a half-space and its thickness is ignored. resx,
// resy and phases give the principal resistivities and strike of each layer.
func ImpedanceAniso1d(freq float64, thick, resx, resy, phases []float64) (model.Impedance, error) {
	n := len(thick)
	if n < 2 {
		return model.Impedance{}, fmt.Errorf("ImpedanceAniso1d: need at least two layers, got %d", n)
	}
	if len(resx) < n || len(resy) < n || len(phases) < n-1 {
		return model.Impedance{}, fmt.Errorf("ImpedanceAniso1d: %d layers but %d/%d/%d properties: %w",
			n, len(resx), len(resy), len(phases), model.ErrParamsMismatch)
	}
	w := 2 * math.Pi * freq
	up := cmplx.Exp(complex(0, math.Pi/4))
	down := cmplx.Exp(complex(0, -math.Pi/4))

	zxp := complex(math.Sqrt(mu0*w*resx[n-1]), 0) * up
	zyp := complex(math.Sqrt(mu0*w*resy[n-1]), 0) * up
	z := applyRotation(mat2{{0, zxp}, {-zyp, 0}}, phases[n-2], 0)
	zii, zij, zji, zjj := z[0][0], z[0][1], z[1][0], z[1][1]

	muw := complex(mu0*w, 0)
	for j := n - 2; j >= 0; j-- {
		th := complex(thick[j], 0)

		ki := complex(math.Sqrt(mu0*w/resx[j]), 0) * down
		kj := complex(math.Sqrt(mu0*w/resy[j]), 0) * down

		zpll := muw / ki
		zprp := -muw / kj

		phii := zii * zjj / (zij + zpll)
		phij := zii * zjj / (zji + zprp)

		rj := (zji - zprp - phii) / (zji + zprp - phii)
		ri := (zij - zpll - phij) / (zij + zpll - phij)

		lj := 2 * zpll * zjj / ((zji + zprp) * (zij + zpll - phij))
		li := 2 * zprp * zii / ((zij + zpll) * (zji + zprp - phii))

		l := li * lj * cmplx.Exp(-2i*(ki+kj)*th)
		eri := ri * cmplx.Exp(-2i*ki*th)
		erj := rj * cmplx.Exp(-2i*kj*th)
		ekk := cmplx.Exp(-1i * (ki + kj) * th)

		den := (1-erj)*(1-eri) - l
		zii, zij, zji, zjj =
			2*li*zpll*ekk/den,
			zpll*((1+eri)*(1-erj)+l)/den,
			zprp*((1+erj)*(1-eri)+l)/den,
			2*lj*zprp*ekk/den

		if j > 0 {
			z = applyRotation(mat2{{zii, zij}, {zji, zjj}}, phases[j-1], phases[j])
		} else {
			z = applyRotation(mat2{{zii, zij}, {zji, zjj}}, 0, phases[j])
			s := complex(1e-3/mu0, 0)
			for a := 0; a < 2; a++ {
				for b := 0; b < 2; b++ {
					z[a][b] *= s
				}
			}
		}
		zii, zij, zji, zjj = z[0][0], z[0][1], z[1][0], z[1][1]
	}
	return model.Impedance{zii, zij, zji, zjj}, nil
}

// PhaseTensor1d returns the phase tensor (Φ11, Φ12, Φ21, Φ22) of Z.
func PhaseTensor1d(z model.Impedance) [4]float64 {
	zii, zij, zji, zjj := z[0], z[1], z[2], z[3]
	t := [4]float64{
		real(zjj)*imag(zii) - real(zij)*imag(zji),
		real(zjj)*imag(zij) - real(zij)*imag(zjj),
		real(zii)*imag(zji) - real(zji)*imag(zii),
		real(zii)*imag(zjj) - real(zji)*imag(zij),
	}
	det := real(zii)*real(zjj) - real(zji)*real(zij)
	for i := range t {
		t[i] /= det
	}
	return t
}

// Alpha1d is the phase tensor skew-independent rotation angle.
func Alpha1d(t [4]float64) float64 {
	return primaryAngle(t[1]+t[2], t[0]-t[3]) / 2
}

// Beta1d is the phase tensor skew angle.
func Beta1d(t [4]float64) float64 {
	return primaryAngle(t[1]-t[2], t[0]+t[3]) / 2
}

// PointCache holds a scattered query at sensor locations. MT, seismic and
// contact-point sensors share it.
type PointCache struct {
	Interps []*world.InterpolatorSpec
	Query   *world.Query
}

// ForwardMtAniso computes impedances, phase tensors and angles at each
// sounding location.
func ForwardMtAniso(spec *model.MtAnisoSpec, cache *PointCache, params *model.WorldParams, p model.MtAnisoParams) (*model.MtAnisoResults, error) {
	tr, err := world.Transitions(cache.Interps, params, cache.Query)
	if err != nil {
		return nil, fmt.Errorf("ForwardMtAniso: %w", err)
	}
	thick := world.Thickness(tr)

	resx, err := world.ExtractProperty(params, model.ResistivityX)
	if err != nil {
		return nil, fmt.Errorf("ForwardMtAniso: %w", err)
	}
	var resy, phase []float64
	if spec.IgnoreAniso {
		resy = resx
		phase = make([]float64, len(resx))
	} else {
		if resy, err = world.ExtractProperty(params, model.ResistivityY); err != nil {
			return nil, fmt.Errorf("ForwardMtAniso: %w", err)
		}
		if phase, err = world.ExtractProperty(params, model.ResistivityPhase); err != nil {
			return nil, fmt.Errorf("ForwardMtAniso: %w", err)
		}
	}

	nLoc, nLayers := thick.Dims()
	if len(spec.Freqs) != nLoc {
		return nil, fmt.Errorf("ForwardMtAniso: %d frequency lists for %d locations: %w", len(spec.Freqs), nLoc, model.ErrParamsMismatch)
	}
	res := &model.MtAnisoResults{
		Readings:    make([][]model.Impedance, nLoc),
		PhaseTensor: make([][][4]float64, nLoc),
		Alpha:       make([][]float64, nLoc),
		Beta:        make([][]float64, nLoc),
	}
	for i := 0; i < nLoc; i++ {
		row := thick.RawRowView(i)[:nLayers:nLayers]
		for _, f := range spec.Freqs[i] {
			z, err := ImpedanceAniso1d(f, row, resx, resy, phase)
			if err != nil {
				return nil, fmt.Errorf("ForwardMtAniso: location %d: %w", i, err)
			}
			t := PhaseTensor1d(z)
			res.Readings[i] = append(res.Readings[i], z)
			res.PhaseTensor[i] = append(res.PhaseTensor[i], t)
			res.Alpha[i] = append(res.Alpha[i], Alpha1d(t))
			res.Beta[i] = append(res.Beta[i], Beta1d(t))
		}
	}
	if !p.ReturnSensorData {
		res.Readings = nil
	}
	return res, nil
}
