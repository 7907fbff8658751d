package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoBoundaries is returned when a world has no layer boundaries.
	ErrNoBoundaries = errors.New("world has no boundaries")
	// ErrParamsMismatch is returned when WorldParams do not match the
	// WorldSpec they are evaluated against.
	ErrParamsMismatch = errors.New("world params do not match world spec")
	// ErrInvalidBounds is returned for empty or inverted world extents.
	ErrInvalidBounds = errors.New("invalid world bounds")
)

// Bounds is a closed interval along one world axis.
type Bounds struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (b Bounds) Span() float64 { return b.Max - b.Min }

// Mid returns the centre of the interval.
func (b Bounds) Mid() float64 { return 0.5 * (b.Min + b.Max) }

// Contains reports whether v lies inside the interval.
func (b Bounds) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

// BoundaryClass selects how a boundary surface is post-processed.
type BoundaryClass int

const (
	// BoundaryNormal is a plain interpolated surface.
	BoundaryNormal BoundaryClass = iota
	// BoundaryWarped is an intrusive body whose top is domed.
	BoundaryWarped
)

func (c BoundaryClass) String() string {
	switch c {
	case BoundaryNormal:
		return "normal"
	case BoundaryWarped:
		return "warped"
	default:
		return fmt.Sprintf("BoundaryClass(%d)", int(c))
	}
}

// BoundarySpec describes one layer boundary: a deterministic offset surface
// sampled on a regular grid and the control-point resolution used for its
// stochastic part.
type BoundarySpec struct {
	// Offset rows run along x and columns along y.
	Offset *mat.Dense
	// CtrlPointResolution is the control grid size along x and y.
	CtrlPointResolution [2]int
	Class               BoundaryClass
}

// WorldSpec is the immutable problem geometry. Depth (z) increases downward.
type WorldSpec struct {
	XBounds Bounds
	YBounds Bounds
	ZBounds Bounds

	// Boundaries are ordered top to bottom.
	Boundaries []BoundarySpec

	// BoundariesAreTimes marks the offsets of boundaries below the first as
	// one-way seismic times relative to the boundary above.
	BoundariesAreTimes bool
}

// Floor returns the deepest admissible boundary depth.
func (w *WorldSpec) Floor() float64 { return w.ZBounds.Max }

// Validate checks that the world is structurally usable.
func (w *WorldSpec) Validate() error {
	if w == nil {
		return fmt.Errorf("WorldSpec.Validate: nil spec: %w", ErrInvalidBounds)
	}
	if len(w.Boundaries) == 0 {
		return ErrNoBoundaries
	}
	for name, b := range map[string]Bounds{"x": w.XBounds, "y": w.YBounds, "z": w.ZBounds} {
		if !(b.Max > b.Min) {
			return fmt.Errorf("WorldSpec.Validate: %s bounds [%g, %g]: %w", name, b.Min, b.Max, ErrInvalidBounds)
		}
	}
	for i, b := range w.Boundaries {
		if b.CtrlPointResolution[0] < 1 || b.CtrlPointResolution[1] < 1 {
			return fmt.Errorf("WorldSpec.Validate: boundary %d: control resolution %v must be positive", i, b.CtrlPointResolution)
		}
		if b.Offset == nil {
			return fmt.Errorf("WorldSpec.Validate: boundary %d: missing offset grid", i)
		}
		if r, c := b.Offset.Dims(); r < 1 || c < 1 {
			return fmt.Errorf("WorldSpec.Validate: boundary %d: empty offset grid", i)
		}
	}
	return nil
}

// WorldParams is one sample of the stochastic world: per-layer rock
// properties and per-boundary control-point perturbations. Treat as read-only
// once built.
type WorldParams struct {
	// RockProperties[layer][RockProperty] for each layer below a boundary.
	RockProperties [][]float64
	// ControlPoints[boundary] has shape CtrlPointResolution (x rows, y cols).
	ControlPoints []*mat.Dense
}

// Validate fails with ErrParamsMismatch when the params cannot be evaluated
// against spec.
func (p *WorldParams) Validate(spec *WorldSpec) error {
	if p == nil || spec == nil {
		return fmt.Errorf("WorldParams.Validate: nil input: %w", ErrParamsMismatch)
	}
	n := len(spec.Boundaries)
	if len(p.ControlPoints) != n {
		return fmt.Errorf("WorldParams.Validate: %d control grids for %d boundaries: %w", len(p.ControlPoints), n, ErrParamsMismatch)
	}
	if len(p.RockProperties) != n {
		return fmt.Errorf("WorldParams.Validate: %d rock property sets for %d layers: %w", len(p.RockProperties), n, ErrParamsMismatch)
	}
	for i, props := range p.RockProperties {
		if len(props) < int(RockPropertyCount) {
			return fmt.Errorf("WorldParams.Validate: layer %d has %d properties, want %d: %w", i, len(props), RockPropertyCount, ErrParamsMismatch)
		}
	}
	for i, cp := range p.ControlPoints {
		if cp == nil {
			return fmt.Errorf("WorldParams.Validate: boundary %d: nil control grid: %w", i, ErrParamsMismatch)
		}
		r, c := cp.Dims()
		want := spec.Boundaries[i].CtrlPointResolution
		if r != want[0] || c != want[1] {
			return fmt.Errorf("WorldParams.Validate: boundary %d: control grid %dx%d, want %dx%d: %w", i, r, c, want[0], want[1], ErrParamsMismatch)
		}
	}
	return nil
}
