package spinham

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cell holds the three lattice vectors as rows.
type Cell [3]r3.Vec

func CubicCell(a float64) Cell {
	return Cell{{X: a}, {Y: a}, {Z: a}}
}

// Translate returns the absolute position of the lattice translation nu.
func (c Cell) Translate(nu [3]int) r3.Vec {
	var v r3.Vec
	for i, n := range nu {
		v = r3.Add(v, r3.Scale(float64(n), c[i]))
	}
	return v
}

// Reciprocal returns the reciprocal cell, b_i · a_j = 2π δ_ij.
func (c Cell) Reciprocal() (Cell, error) {
	a := mat.NewDense(3, 3, []float64{
		c[0].X, c[0].Y, c[0].Z,
		c[1].X, c[1].Y, c[1].Z,
		c[2].X, c[2].Y, c[2].Z,
	})
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return Cell{}, errors.Wrap(err, "degenerate cell")
	}
	var r Cell
	for i := range 3 {
		// Column i of the inverse is the i-th reciprocal vector over 2π.
		r[i] = r3.Scale(2*math.Pi, r3.Vec{X: inv.At(0, i), Y: inv.At(1, i), Z: inv.At(2, i)})
	}
	return r, nil
}

// Absolute converts a k-point given relative to the reciprocal cell into
// absolute coordinates.
func (c Cell) Absolute(relative r3.Vec) (r3.Vec, error) {
	r, err := c.Reciprocal()
	if err != nil {
		return r3.Vec{}, errors.Wrap(err, "")
	}
	v := r3.Scale(relative.X, r[0])
	v = r3.Add(v, r3.Scale(relative.Y, r[1]))
	v = r3.Add(v, r3.Scale(relative.Z, r[2]))
	return v, nil
}

// Atoms lists the atoms of the unit cell. Atoms with zero spin are not magnetic.
// GFactors and Positions are optional, a missing g-factor defaults to 2.
type Atoms struct {
	Names     []string
	Spins     []float64
	GFactors  []float64
	Positions []r3.Vec
}

func (a Atoms) Len() int { return len(a.Spins) }

func (a Atoms) validate() error {
	n := len(a.Spins)
	if a.Names != nil && len(a.Names) != n {
		return errors.Errorf("%d names for %d atoms", len(a.Names), n)
	}
	if a.GFactors != nil && len(a.GFactors) != n {
		return errors.Errorf("%d g-factors for %d atoms", len(a.GFactors), n)
	}
	if a.Positions != nil && len(a.Positions) != n {
		return errors.Errorf("%d positions for %d atoms", len(a.Positions), n)
	}
	for i, s := range a.Spins {
		if s < 0 || math.IsNaN(s) {
			return errors.Errorf("atom %d spin %f", i, s)
		}
	}
	return nil
}

func (a Atoms) gFactor(i int) float64 {
	if a.GFactors == nil {
		return 2
	}
	return a.GFactors[i]
}

func (a Atoms) clone() Atoms {
	return Atoms{
		Names:     cloneOrNil(a.Names),
		Spins:     cloneOrNil(a.Spins),
		GFactors:  cloneOrNil(a.GFactors),
		Positions: cloneOrNil(a.Positions),
	}
}

func cloneOrNil[S ~[]E, E any](s S) S {
	if s == nil {
		return nil
	}
	return append(S(nil), s...)
}
