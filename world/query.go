package world

import (
	"fmt"

	"github.com/signalsfoundry/obsidian/model"
	"gonum.org/v1/gonum/mat"
)

// Query is a set of horizontal positions with the boundary interpolation
// weights precomputed for each of them. Building a Query is the expensive
// part of a forward model; evaluating transitions against it is a handful of
// matrix-vector products. A Query is read-only after construction.
type Query struct {
	ResX, ResY, ResZ int

	// Positions is nQuery×2. Grid queries order cells with y fastest.
	Positions *mat.Dense

	// Voxel edges. Only populated for grid queries.
	EdgeX, EdgeY, EdgeZ []float64

	BoundariesAreTimes bool

	// Weights[b] is nQuery×nCtrl for boundary b.
	Weights []*mat.Dense
}

// NewGridQuery samples the world at the centres of a resX×resY grid with
// resZ vertical cells.
func NewGridQuery(interps []*InterpolatorSpec, w *model.WorldSpec, resX, resY, resZ int) (*Query, error) {
	if resX < 1 || resY < 1 || resZ < 1 {
		return nil, fmt.Errorf("NewGridQuery: resolution %dx%dx%d must be positive", resX, resY, resZ)
	}
	q := &Query{
		ResX:               resX,
		ResY:               resY,
		ResZ:               resZ,
		Positions:          InternalGrid2DX(w.XBounds, w.YBounds, resX, resY),
		EdgeX:              LinSpaced(resX+1, w.XBounds.Min, w.XBounds.Max),
		EdgeY:              LinSpaced(resY+1, w.YBounds.Min, w.YBounds.Max),
		EdgeZ:              LinSpaced(resZ+1, w.ZBounds.Min, w.ZBounds.Max),
		BoundariesAreTimes: w.BoundariesAreTimes,
	}
	if err := q.initWeights(interps); err != nil {
		return nil, fmt.Errorf("NewGridQuery: %w", err)
	}
	return q, nil
}

// NewScatteredQuery samples the world at explicit locations. Only the first
// two columns of locations are used.
func NewScatteredQuery(interps []*InterpolatorSpec, w *model.WorldSpec, locations mat.Matrix) (*Query, error) {
	n, c := locations.Dims()
	if c < 2 {
		return nil, fmt.Errorf("NewScatteredQuery: locations have %d columns, want at least 2", c)
	}
	pos := mat.NewDense(n, 2, nil)
	pos.Copy(locations)
	q := &Query{
		Positions:          pos,
		BoundariesAreTimes: w.BoundariesAreTimes,
	}
	if err := q.initWeights(interps); err != nil {
		return nil, fmt.Errorf("NewScatteredQuery: %w", err)
	}
	return q, nil
}

func (q *Query) initWeights(interps []*InterpolatorSpec) error {
	q.Weights = make([]*mat.Dense, len(interps))
	for b, s := range interps {
		w, err := s.Weights(q.Positions)
		if err != nil {
			return fmt.Errorf("boundary %d: %w", b, err)
		}
		q.Weights[b] = mat.DenseCopyOf(w.T())
	}
	return nil
}

// NumPoints returns the number of query positions.
func (q *Query) NumPoints() int {
	n, _ := q.Positions.Dims()
	return n
}
