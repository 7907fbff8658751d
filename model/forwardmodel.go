package model

import (
	"fmt"
	"strings"
)

// ForwardModel enumerates sensor types. Prior is a placeholder for the
// parameter prior and has no forward model.
type ForwardModel int

const (
	Prior ForwardModel = iota
	Gravity
	Magnetics
	MtAniso
	Seismic1d
	ContactPoint
	Thermal
)

// Sensors lists every forward model that has a physics implementation, in
// evaluation order.
var Sensors = []ForwardModel{Gravity, Magnetics, MtAniso, Seismic1d, ContactPoint, Thermal}

var forwardModelLabels = map[ForwardModel]string{
	Prior:        "Prior",
	Gravity:      "Gravity",
	Magnetics:    "Magnetic",
	MtAniso:      "MT",
	Seismic1d:    "Seismic 1D",
	ContactPoint: "Contact Point",
	Thermal:      "Thermal",
}

// String returns the human-readable label.
func (f ForwardModel) String() string {
	if s, ok := forwardModelLabels[f]; ok {
		return s
	}
	return fmt.Sprintf("ForwardModel(%d)", int(f))
}

// Key returns a lower-case identifier suitable for config keys and metric
// labels.
func (f ForwardModel) Key() string {
	return strings.ReplaceAll(strings.ToLower(f.String()), " ", "")
}

// ParseForwardModel accepts either the label or the key form.
func ParseForwardModel(s string) (ForwardModel, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
	for f := range forwardModelLabels {
		if f.Key() == norm {
			return f, nil
		}
	}
	switch norm {
	case "magnetics", "mag":
		return Magnetics, nil
	case "mtaniso", "mt1d":
		return MtAniso, nil
	case "grav":
		return Gravity, nil
	}
	return 0, fmt.Errorf("unknown forward model %q", s)
}

// GlobalSpec holds the configuration of every enabled sensor. A nil field
// means the sensor is disabled.
type GlobalSpec struct {
	World        WorldSpec
	Gravity      *GravSpec
	Magnetics    *MagSpec
	MtAniso      *MtAnisoSpec
	Seismic1d    *Seismic1dSpec
	ContactPoint *ContactPointSpec
	Thermal      *ThermalSpec
}

// Enabled returns the sensors that have a spec, in evaluation order.
func (g *GlobalSpec) Enabled() []ForwardModel {
	var out []ForwardModel
	for _, f := range Sensors {
		if g.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Has reports whether sensor f is configured.
func (g *GlobalSpec) Has(f ForwardModel) bool {
	switch f {
	case Gravity:
		return g.Gravity != nil
	case Magnetics:
		return g.Magnetics != nil
	case MtAniso:
		return g.MtAniso != nil
	case Seismic1d:
		return g.Seismic1d != nil
	case ContactPoint:
		return g.ContactPoint != nil
	case Thermal:
		return g.Thermal != nil
	}
	return false
}

// GlobalParams bundles the world sample with per-sensor params.
type GlobalParams struct {
	World        WorldParams
	Gravity      GravParams
	Magnetics    MagParams
	MtAniso      MtAnisoParams
	Seismic1d    Seismic1dParams
	ContactPoint ContactPointParams
	Thermal      ThermalParams
}

// GlobalResults collects the output of every evaluated sensor.
type GlobalResults struct {
	Gravity      *GravResults         `json:"gravity,omitempty"`
	Magnetics    *MagResults          `json:"magnetics,omitempty"`
	MtAniso      *MtAnisoResults      `json:"mt,omitempty"`
	Seismic1d    *Seismic1dResults    `json:"seismic1d,omitempty"`
	ContactPoint *ContactPointResults `json:"contactpoint,omitempty"`
	Thermal      *ThermalResults      `json:"thermal,omitempty"`
}
