// Package config loads a forward-modelling run from YAML: the world
// geometry, one world sample and the enabled sensors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every structural problem found in a config file.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the on-disk layout of a run.
type File struct {
	World   World   `yaml:"world" validate:"required"`
	Sensors Sensors `yaml:"sensors"`
	// ReturnSensorData asks every sensor for its readings, not only the
	// likelihood.
	ReturnSensorData bool `yaml:"return_sensor_data"`
}

// Range is a closed interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max" validate:"gtfield=Min"`
}

type World struct {
	X Range `yaml:"x"`
	Y Range `yaml:"y"`
	Z Range `yaml:"z"`
	// BoundariesAreTimes interprets offsets below the first boundary as
	// one-way times.
	BoundariesAreTimes bool       `yaml:"boundaries_are_times"`
	Boundaries         []Boundary `yaml:"boundaries" validate:"required,min=1,dive"`
}

// Boundary is one surface and the rock of the layer beneath it. A boundary
// with no offset grid lies flat at Depth.
type Boundary struct {
	Depth             float64     `yaml:"depth"`
	Offset            [][]float64 `yaml:"offset" validate:"omitempty,dive,min=1"`
	ControlResolution []int       `yaml:"control_resolution" validate:"required,len=2,dive,gte=1"`
	// Control holds this sample's control-point values, zero when omitted.
	Control [][]float64        `yaml:"control"`
	Class   string             `yaml:"class" validate:"omitempty,oneof=normal warped"`
	Rock    map[string]float64 `yaml:"rock"`
}

type Voxel struct {
	Resolution  []int `yaml:"resolution" validate:"required,len=3,dive,gte=1"`
	Supersample int   `yaml:"supersample" validate:"gte=0,lte=4"`
}

type Noise struct {
	Alpha float64 `yaml:"alpha" validate:"gte=0"`
	Beta  float64 `yaml:"beta" validate:"gte=0"`
}

type Gravity struct {
	Locations    [][]float64 `yaml:"locations" validate:"required,min=1,dive,len=3"`
	Voxelisation Voxel       `yaml:"voxelisation"`
	Noise        Noise       `yaml:"noise"`
}

type Magnetics struct {
	Locations    [][]float64 `yaml:"locations" validate:"required,min=1,dive,len=3"`
	Voxelisation Voxel       `yaml:"voxelisation"`
	Noise        Noise       `yaml:"noise"`
	// Field is the inducing field in nT, world axes with z down.
	Field []float64 `yaml:"field" validate:"required,len=3"`
}

type MT struct {
	Locations   [][]float64 `yaml:"locations" validate:"required,min=1,dive,len=3"`
	Freqs       [][]float64 `yaml:"freqs" validate:"required,dive,min=1,dive,gt=0"`
	IgnoreAniso bool        `yaml:"ignore_aniso"`
	Noise       Noise       `yaml:"noise"`
}

// Picks configures a sensor that observes chosen boundaries per location.
type Picks struct {
	Locations  [][]float64 `yaml:"locations" validate:"required,min=1,dive,len=3"`
	Interfaces [][]int     `yaml:"interfaces" validate:"required,dive,dive,gte=0"`
	Noise      Noise       `yaml:"noise"`
}

type Thermal struct {
	Locations          [][]float64 `yaml:"locations" validate:"required,min=1,dive,len=3"`
	SurfaceTemperature float64     `yaml:"surface_temperature"`
	LowerBoundary      float64     `yaml:"lower_boundary"`
	LowerIsHeatFlow    bool        `yaml:"lower_is_heat_flow"`
	Voxelisation       Voxel       `yaml:"voxelisation"`
	Noise              Noise       `yaml:"noise"`
}

// Sensors lists the enabled sensors. Omitted sensors are disabled.
type Sensors struct {
	Gravity      *Gravity   `yaml:"gravity" validate:"omitempty"`
	Magnetics    *Magnetics `yaml:"magnetics" validate:"omitempty"`
	MT           *MT        `yaml:"mt" validate:"omitempty"`
	Seismic1d    *Picks     `yaml:"seismic1d" validate:"omitempty"`
	ContactPoint *Picks     `yaml:"contact_point" validate:"omitempty"`
	Thermal      *Thermal   `yaml:"thermal" validate:"omitempty"`
}

// Load reads and validates the config at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config.Load %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML, rejecting unknown keys, and validates the result.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate runs the struct tag rules and the cross-field checks they cannot
// express.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for i, b := range f.World.Boundaries {
		if err := checkGrid(b.Offset); err != nil {
			return fmt.Errorf("%w: boundary %d offset: %v", ErrInvalidConfig, i, err)
		}
		if len(b.Control) > 0 {
			if err := checkGrid(b.Control); err != nil {
				return fmt.Errorf("%w: boundary %d control: %v", ErrInvalidConfig, i, err)
			}
			if len(b.Control) != b.ControlResolution[0] || len(b.Control[0]) != b.ControlResolution[1] {
				return fmt.Errorf("%w: boundary %d control is %dx%d, want %v",
					ErrInvalidConfig, i, len(b.Control), len(b.Control[0]), b.ControlResolution)
			}
		}
		for name := range b.Rock {
			p, err := model.ParseRockProperty(name)
			if err != nil || p.IsDerived() {
				return fmt.Errorf("%w: boundary %d: rock property %q is not a stored property", ErrInvalidConfig, i, name)
			}
		}
	}
	if mt := f.Sensors.MT; mt != nil && len(mt.Freqs) != len(mt.Locations) {
		return fmt.Errorf("%w: mt has %d frequency lists for %d locations", ErrInvalidConfig, len(mt.Freqs), len(mt.Locations))
	}
	for name, p := range map[string]*Picks{"seismic1d": f.Sensors.Seismic1d, "contact_point": f.Sensors.ContactPoint} {
		if p == nil {
			continue
		}
		if len(p.Interfaces) != len(p.Locations) {
			return fmt.Errorf("%w: %s has %d interface lists for %d locations", ErrInvalidConfig, name, len(p.Interfaces), len(p.Locations))
		}
		nb := len(f.World.Boundaries)
		for i, list := range p.Interfaces {
			for _, b := range list {
				if b >= nb {
					return fmt.Errorf("%w: %s location %d: boundary %d of %d", ErrInvalidConfig, name, i, b, nb)
				}
			}
		}
	}
	return nil
}

// checkGrid rejects ragged rows. An empty grid is allowed.
func checkGrid(g [][]float64) error {
	for r := range g {
		if len(g[r]) != len(g[0]) {
			return fmt.Errorf("row %d has %d values, want %d", r, len(g[r]), len(g[0]))
		}
	}
	return nil
}

func denseFrom(g [][]float64) *mat.Dense {
	m := mat.NewDense(len(g), len(g[0]), nil)
	for r, row := range g {
		m.SetRow(r, row)
	}
	return m
}

func locations(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	return denseFrom(rows)
}

func voxel(v Voxel) model.VoxelSpec {
	return model.VoxelSpec{
		XResolution: v.Resolution[0],
		YResolution: v.Resolution[1],
		ZResolution: v.Resolution[2],
		Supersample: v.Supersample,
	}
}

func noise(n Noise) model.NoiseSpec {
	return model.NoiseSpec{InverseGammaAlpha: n.Alpha, InverseGammaBeta: n.Beta}
}

// WorldSpec converts the world section.
func (f *File) WorldSpec() *model.WorldSpec {
	w := &model.WorldSpec{
		XBounds:            model.Bounds{Min: f.World.X.Min, Max: f.World.X.Max},
		YBounds:            model.Bounds{Min: f.World.Y.Min, Max: f.World.Y.Max},
		ZBounds:            model.Bounds{Min: f.World.Z.Min, Max: f.World.Z.Max},
		BoundariesAreTimes: f.World.BoundariesAreTimes,
	}
	for _, b := range f.World.Boundaries {
		offset := mat.NewDense(1, 1, []float64{b.Depth})
		if len(b.Offset) > 0 {
			offset = denseFrom(b.Offset)
		}
		class := model.BoundaryNormal
		if b.Class == "warped" {
			class = model.BoundaryWarped
		}
		w.Boundaries = append(w.Boundaries, model.BoundarySpec{
			Offset:              offset,
			CtrlPointResolution: [2]int{b.ControlResolution[0], b.ControlResolution[1]},
			Class:               class,
		})
	}
	return w
}

// WorldParams converts the per-boundary control values and rock
// properties. Properties not named in the file are zero.
func (f *File) WorldParams() *model.WorldParams {
	p := &model.WorldParams{}
	for _, b := range f.World.Boundaries {
		ctrl := mat.NewDense(b.ControlResolution[0], b.ControlResolution[1], nil)
		if len(b.Control) > 0 {
			ctrl = denseFrom(b.Control)
		}
		p.ControlPoints = append(p.ControlPoints, ctrl)

		props := make([]float64, model.RockPropertyCount)
		for name, v := range b.Rock {
			// Names were checked in Validate.
			rp, _ := model.ParseRockProperty(name)
			props[rp] = v
		}
		p.RockProperties = append(p.RockProperties, props)
	}
	return p
}

// GlobalSpec converts the world and every enabled sensor.
func (f *File) GlobalSpec() *model.GlobalSpec {
	s := f.Sensors
	spec := &model.GlobalSpec{World: *f.WorldSpec()}
	if g := s.Gravity; g != nil {
		spec.Gravity = &model.GravSpec{
			Locations:    locations(g.Locations),
			Voxelisation: voxel(g.Voxelisation),
			Noise:        noise(g.Noise),
		}
	}
	if m := s.Magnetics; m != nil {
		spec.Magnetics = &model.MagSpec{
			Locations:       locations(m.Locations),
			Voxelisation:    voxel(m.Voxelisation),
			Noise:           noise(m.Noise),
			BackgroundField: [3]float64{m.Field[0], m.Field[1], m.Field[2]},
		}
	}
	if mt := s.MT; mt != nil {
		spec.MtAniso = &model.MtAnisoSpec{
			Locations:   locations(mt.Locations),
			Freqs:       mt.Freqs,
			IgnoreAniso: mt.IgnoreAniso,
			Noise:       noise(mt.Noise),
		}
	}
	if p := s.Seismic1d; p != nil {
		spec.Seismic1d = &model.Seismic1dSpec{
			Locations:  locations(p.Locations),
			Interfaces: p.Interfaces,
			Noise:      noise(p.Noise),
		}
	}
	if p := s.ContactPoint; p != nil {
		spec.ContactPoint = &model.ContactPointSpec{
			Locations:  locations(p.Locations),
			Interfaces: p.Interfaces,
			Noise:      noise(p.Noise),
		}
	}
	if t := s.Thermal; t != nil {
		spec.Thermal = &model.ThermalSpec{
			Locations:               locations(t.Locations),
			SurfaceTemperature:      t.SurfaceTemperature,
			LowerBoundary:           t.LowerBoundary,
			LowerBoundaryIsHeatFlow: t.LowerIsHeatFlow,
			Voxelisation:            voxel(t.Voxelisation),
			Noise:                   noise(t.Noise),
		}
	}
	return spec
}

// GlobalParams pairs the world sample with the per-sensor settings.
func (f *File) GlobalParams() *model.GlobalParams {
	r := f.ReturnSensorData
	return &model.GlobalParams{
		World:        *f.WorldParams(),
		Gravity:      model.GravParams{ReturnSensorData: r},
		Magnetics:    model.MagParams{ReturnSensorData: r},
		MtAniso:      model.MtAnisoParams{ReturnSensorData: r},
		Seismic1d:    model.Seismic1dParams{ReturnSensorData: r},
		ContactPoint: model.ContactPointParams{ReturnSensorData: r},
		Thermal:      model.ThermalParams{ReturnSensorData: r},
	}
}
