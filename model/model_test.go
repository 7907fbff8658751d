package model

import (
	"encoding/json"
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func twoBoundaryWorld() *WorldSpec {
	return &WorldSpec{
		XBounds: Bounds{Min: 0, Max: 1},
		YBounds: Bounds{Min: 0, Max: 1},
		ZBounds: Bounds{Min: 0, Max: 1},
		Boundaries: []BoundarySpec{
			{Offset: mat.NewDense(2, 2, nil), CtrlPointResolution: [2]int{3, 2}},
			{Offset: mat.NewDense(2, 2, nil), CtrlPointResolution: [2]int{3, 2}},
		},
	}
}

func TestWorldSpecValidate(t *testing.T) {
	w := twoBoundaryWorld()
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	empty := twoBoundaryWorld()
	empty.Boundaries = nil
	if err := empty.Validate(); !errors.Is(err, ErrNoBoundaries) {
		t.Fatalf("empty world error = %v, want ErrNoBoundaries", err)
	}

	inverted := twoBoundaryWorld()
	inverted.ZBounds = Bounds{Min: 5, Max: 1}
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("inverted bounds error = %v, want ErrInvalidBounds", err)
	}
}

func TestWorldParamsValidate(t *testing.T) {
	w := twoBoundaryWorld()
	good := &WorldParams{
		RockProperties: [][]float64{make([]float64, RockPropertyCount), make([]float64, RockPropertyCount)},
		ControlPoints:  []*mat.Dense{mat.NewDense(3, 2, nil), mat.NewDense(3, 2, nil)},
	}
	if err := good.Validate(w); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cases := map[string]*WorldParams{
		"missing grid": {
			RockProperties: good.RockProperties,
			ControlPoints:  good.ControlPoints[:1],
		},
		"wrong shape": {
			RockProperties: good.RockProperties,
			ControlPoints:  []*mat.Dense{mat.NewDense(3, 2, nil), mat.NewDense(2, 3, nil)},
		},
		"short properties": {
			RockProperties: [][]float64{{1, 2}, make([]float64, RockPropertyCount)},
			ControlPoints:  good.ControlPoints,
		},
	}
	for name, p := range cases {
		if err := p.Validate(w); !errors.Is(err, ErrParamsMismatch) {
			t.Errorf("%s: error = %v, want ErrParamsMismatch", name, err)
		}
	}
}

func TestRockPropertyDerivation(t *testing.T) {
	cases := []struct {
		prop    RockProperty
		derived bool
		source  RockProperty
	}{
		{Density, false, Density},
		{PWaveVelocity, false, PWaveVelocity},
		{Susceptibility, true, LogSusceptibility},
		{ResistivityX, true, LogResistivityX},
		{ResistivityY, true, LogResistivityY},
		{ResistivityZ, true, LogResistivityZ},
	}
	for _, tc := range cases {
		if got := tc.prop.IsDerived(); got != tc.derived {
			t.Errorf("%v.IsDerived() = %v, want %v", tc.prop, got, tc.derived)
		}
		if got := tc.prop.Source(); got != tc.source {
			t.Errorf("%v.Source() = %v, want %v", tc.prop, got, tc.source)
		}
		parsed, err := ParseRockProperty(tc.prop.String())
		if err != nil || parsed != tc.prop {
			t.Errorf("ParseRockProperty(%q) = %v, %v", tc.prop.String(), parsed, err)
		}
	}
}

func TestForwardModelLabels(t *testing.T) {
	want := map[ForwardModel]string{
		Gravity:      "Gravity",
		Magnetics:    "Magnetic",
		MtAniso:      "MT",
		Seismic1d:    "Seismic 1D",
		ContactPoint: "Contact Point",
		Thermal:      "Thermal",
	}
	for f, label := range want {
		if f.String() != label {
			t.Errorf("%d.String() = %q, want %q", int(f), f.String(), label)
		}
		for _, in := range []string{label, f.Key()} {
			got, err := ParseForwardModel(in)
			if err != nil || got != f {
				t.Errorf("ParseForwardModel(%q) = %v, %v; want %v", in, got, err, f)
			}
		}
	}
	if _, err := ParseForwardModel("sonar"); err == nil {
		t.Fatalf("expected error for unknown sensor")
	}
}

func TestGlobalSpecEnabled(t *testing.T) {
	g := &GlobalSpec{Gravity: &GravSpec{}, Thermal: &ThermalSpec{}}
	got := g.Enabled()
	if len(got) != 2 || got[0] != Gravity || got[1] != Thermal {
		t.Fatalf("Enabled() = %v, want [Gravity Thermal]", got)
	}
}

func TestImpedanceJSON(t *testing.T) {
	z := Impedance{complex(1, -2), 3i, -4, 0}
	b, err := json.Marshal(MtAnisoResults{Readings: [][]Impedance{{z}}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"readings":[[[[1,-2],[0,3],[-4,0],[0,0]]]],"likelihood":0}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}
