package model

import "fmt"

// RockProperty names a physical property of a layer. The first
// RockPropertyCount values index WorldParams.RockProperties directly; the
// remainder are derived from their logarithmic counterparts.
type RockProperty int

const (
	Density RockProperty = iota
	LogSusceptibility
	ThermalConductivity
	ThermalProductivity
	LogResistivityX
	LogResistivityY
	LogResistivityZ
	ResistivityPhase
	PWaveVelocity

	// RockPropertyCount is the number of stored properties.
	RockPropertyCount

	Susceptibility
	ResistivityX
	ResistivityY
	ResistivityZ
)

var rockPropertyNames = map[RockProperty]string{
	Density:             "density",
	LogSusceptibility:   "log_susceptibility",
	ThermalConductivity: "thermal_conductivity",
	ThermalProductivity: "thermal_productivity",
	LogResistivityX:     "log_resistivity_x",
	LogResistivityY:     "log_resistivity_y",
	LogResistivityZ:     "log_resistivity_z",
	ResistivityPhase:    "resistivity_phase",
	PWaveVelocity:       "p_wave_velocity",
	Susceptibility:      "susceptibility",
	ResistivityX:        "resistivity_x",
	ResistivityY:        "resistivity_y",
	ResistivityZ:        "resistivity_z",
}

func (p RockProperty) String() string {
	if s, ok := rockPropertyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("RockProperty(%d)", int(p))
}

// IsDerived reports whether p is computed from a stored log property.
func (p RockProperty) IsDerived() bool { return p > RockPropertyCount }

// Source returns the stored property that p is read from.
func (p RockProperty) Source() RockProperty {
	switch p {
	case Susceptibility:
		return LogSusceptibility
	case ResistivityX:
		return LogResistivityX
	case ResistivityY:
		return LogResistivityY
	case ResistivityZ:
		return LogResistivityZ
	default:
		return p
	}
}

// ParseRockProperty maps a snake_case name back to its RockProperty.
func ParseRockProperty(name string) (RockProperty, error) {
	for p, s := range rockPropertyNames {
		if s == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown rock property %q", name)
}
