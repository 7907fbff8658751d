package world

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrFactorization is returned when a control-point covariance is not
// positive definite.
var ErrFactorization = errors.New("control point covariance factorization failed")

// InterpolatorSpec is the Gaussian-process model of one boundary. The
// covariance factorization is computed once by NewInterpolatorSpec and never
// modified, so a spec may be shared between goroutines.
type InterpolatorSpec struct {
	Resolution    [2]int
	ControlPoints *mat.Dense // nCtrl×2, x fastest
	LengthScale   [2]float64
	Class         model.BoundaryClass

	// Offset is the deterministic mean surface, sampled over OffsetX/OffsetY.
	Offset  *mat.Dense
	OffsetX model.Bounds
	OffsetY model.Bounds

	FloorHeight float64

	chol mat.Cholesky
}

// NewInterpolatorSpec builds and factorizes the interpolation model for b.
func NewInterpolatorSpec(w *model.WorldSpec, b model.BoundarySpec) (*InterpolatorSpec, error) {
	res := b.CtrlPointResolution
	if res[0] < 1 || res[1] < 1 {
		return nil, fmt.Errorf("NewInterpolatorSpec: control resolution %v must be positive", res)
	}
	s := &InterpolatorSpec{
		Resolution:  res,
		LengthScale: AutoLengthScale(w.XBounds, w.YBounds, res),
		Class:       b.Class,
		Offset:      b.Offset,
		OffsetX:     w.XBounds,
		OffsetY:     w.YBounds,
		FloorHeight: w.ZBounds.Max,
	}
	s.ControlPoints = EdgeGrid2D(w.XBounds, w.YBounds, res[0], res[1])

	k := SqExp2d(s.ControlPoints, s.ControlPoints, s.LengthScale, true)
	// The nugget is applied twice: once by the noisy kernel and once here.
	addColumnSumsToDiagonal(k)

	n, _ := k.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(k.At(i, j)+k.At(j, i)))
		}
	}
	if ok := s.chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("NewInterpolatorSpec: %d control points: %w", n, ErrFactorization)
	}
	return s, nil
}

// NewInterpolators builds one InterpolatorSpec per boundary of w.
func NewInterpolators(w *model.WorldSpec) ([]*InterpolatorSpec, error) {
	if len(w.Boundaries) == 0 {
		return nil, model.ErrNoBoundaries
	}
	out := make([]*InterpolatorSpec, len(w.Boundaries))
	for i, b := range w.Boundaries {
		s, err := NewInterpolatorSpec(w, b)
		if err != nil {
			return nil, fmt.Errorf("boundary %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// NumControlPoints returns the number of control points.
func (s *InterpolatorSpec) NumControlPoints() int {
	n, _ := s.ControlPoints.Dims()
	return n
}

// Weights returns the nCtrl×nQuery interpolation weights for the query
// points (nQuery×2). Every column sums to one.
func (s *InterpolatorSpec) Weights(query mat.Matrix) (*mat.Dense, error) {
	cross := SqExp2d(query, s.ControlPoints, s.LengthScale, false)
	var w mat.Dense
	if err := s.chol.SolveTo(&w, cross.T()); err != nil {
		return nil, fmt.Errorf("InterpolatorSpec.Weights: %w", err)
	}
	nCtrl, nQuery := w.Dims()
	col := make([]float64, nCtrl)
	for q := 0; q < nQuery; q++ {
		mat.Col(col, q, &w)
		total := floats.Sum(col)
		floats.Scale(1/total, col)
		w.SetCol(q, col)
	}
	return &w, nil
}
