package world

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/obsidian/model"
)

var propertyBounds = map[model.RockProperty]func(float64) float64{
	model.Density:             nonNegative,
	model.LogSusceptibility:   identity,
	model.ThermalConductivity: func(v float64) float64 { return math.Max(v, 1e-3) },
	model.ThermalProductivity: nonNegative,
	model.LogResistivityX:     identity,
	model.LogResistivityY:     identity,
	model.LogResistivityZ:     identity,
	model.ResistivityPhase:    func(v float64) float64 { return math.Min(math.Max(v, 0), math.Pi/2) },
	model.PWaveVelocity:       nonNegative,
	model.Susceptibility:      nonNegative,
	model.ResistivityX:        nonNegative,
	model.ResistivityY:        nonNegative,
	model.ResistivityZ:        nonNegative,
}

func nonNegative(v float64) float64 { return math.Max(v, 0) }
func identity(v float64) float64    { return v }

// BoundProperty applies the validity bound of prop to a single value.
func BoundProperty(prop model.RockProperty, v float64) float64 {
	if f, ok := propertyBounds[prop]; ok {
		return f(v)
	}
	return v
}

// ExtractProperty returns prop for every layer, bounded to its valid range.
// Derived properties are read from their log source and raised to base 10.
func ExtractProperty(params *model.WorldParams, prop model.RockProperty) ([]float64, error) {
	if prop == model.RockPropertyCount || prop < 0 || prop > model.ResistivityZ {
		return nil, fmt.Errorf("ExtractProperty: invalid property %v", prop)
	}
	src := prop.Source()
	out := make([]float64, len(params.RockProperties))
	for i, rocks := range params.RockProperties {
		if int(src) >= len(rocks) {
			return nil, fmt.Errorf("ExtractProperty: layer %d has no %v: %w", i, src, model.ErrParamsMismatch)
		}
		v := rocks[src]
		if prop.IsDerived() {
			v = math.Exp(v * math.Ln10)
		}
		out[i] = BoundProperty(prop, v)
	}
	return out, nil
}
