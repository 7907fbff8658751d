package model

import (
	"encoding/json"

	"gonum.org/v1/gonum/mat"
)

// VoxelSpec is the voxel grid used by volumetric sensors. Supersample is an
// exponent: forward models evaluate at Resolution*2^Supersample and average
// back down.
type VoxelSpec struct {
	XResolution int
	YResolution int
	ZResolution int
	Supersample int
}

// NoiseSpec holds the inverse-gamma noise prior of a sensor.
type NoiseSpec struct {
	InverseGammaAlpha float64
	InverseGammaBeta  float64
}

// GravSpec configures the gravity sensor. Locations is N×3 (x, y, z) and all
// rows must share one z.
type GravSpec struct {
	Locations    *mat.Dense
	Voxelisation VoxelSpec
	Noise        NoiseSpec
}

// GravParams are per-sample gravity settings.
type GravParams struct {
	ReturnSensorData bool
}

// GravResults holds gravity readings in mGal.
type GravResults struct {
	Readings   []float64 `json:"readings,omitempty"`
	Likelihood float64   `json:"likelihood"`
}

// MagSpec configures the magnetic sensor. BackgroundField is the inducing
// field in nT in world axes (z down).
type MagSpec struct {
	Locations       *mat.Dense
	Voxelisation    VoxelSpec
	Noise           NoiseSpec
	BackgroundField [3]float64
}

type MagParams struct {
	ReturnSensorData bool
}

// MagResults holds total-field anomaly readings in nT.
type MagResults struct {
	Readings   []float64 `json:"readings,omitempty"`
	Likelihood float64   `json:"likelihood"`
}

// MtAnisoSpec configures magnetotelluric soundings. Freqs[i] lists the
// frequencies (Hz) sampled at location i.
type MtAnisoSpec struct {
	Locations   *mat.Dense
	Freqs       [][]float64
	Noise       NoiseSpec
	IgnoreAniso bool
}

type MtAnisoParams struct {
	ReturnSensorData bool
}

// Impedance is a 2×2 impedance tensor stored row-major: Zxx, Zxy, Zyx, Zyy.
type Impedance [4]complex128

// MarshalJSON encodes each component as a [real, imag] pair.
func (z Impedance) MarshalJSON() ([]byte, error) {
	var out [4][2]float64
	for i, c := range z {
		out[i] = [2]float64{real(c), imag(c)}
	}
	return json.Marshal(out)
}

// MtAnisoResults are indexed [location][frequency].
type MtAnisoResults struct {
	Readings    [][]Impedance  `json:"readings,omitempty"`
	PhaseTensor [][][4]float64 `json:"phase_tensor,omitempty"`
	Alpha       [][]float64    `json:"alpha,omitempty"`
	Beta        [][]float64    `json:"beta,omitempty"`
	Likelihood  float64        `json:"likelihood"`
}

// Seismic1dSpec configures travel-time picks. Interfaces[i] lists the
// boundary indices observed at location i.
type Seismic1dSpec struct {
	Locations  *mat.Dense
	Interfaces [][]int
	Noise      NoiseSpec
}

type Seismic1dParams struct {
	ReturnSensorData bool
}

// Seismic1dResults holds two-way times, ragged per location.
type Seismic1dResults struct {
	Readings   [][]float64 `json:"readings,omitempty"`
	Likelihood float64     `json:"likelihood"`
}

// ContactPointSpec configures boundary depth picks.
type ContactPointSpec struct {
	Locations  *mat.Dense
	Interfaces [][]int
	Noise      NoiseSpec
}

type ContactPointParams struct {
	ReturnSensorData bool
}

// ContactPointResults holds depths, ragged per location.
type ContactPointResults struct {
	Readings   [][]float64 `json:"readings,omitempty"`
	Likelihood float64     `json:"likelihood"`
}

// ThermalSpec configures borehole temperature sensors. LowerBoundary is a
// temperature, or a heat flow when LowerBoundaryIsHeatFlow is set.
type ThermalSpec struct {
	Locations               *mat.Dense
	SurfaceTemperature      float64
	LowerBoundary           float64
	LowerBoundaryIsHeatFlow bool
	Voxelisation            VoxelSpec
	Noise                   NoiseSpec
}

type ThermalParams struct {
	ReturnSensorData bool
}

// ThermalResults carries temperatures at the sensor locations. Converged is
// false when the heat solve stopped before reaching tolerance; the readings
// are then the last iterate.
type ThermalResults struct {
	Readings   []float64 `json:"readings,omitempty"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	Likelihood float64   `json:"likelihood"`
}
