// Package magnons builds spin Hamiltonians of common model magnets.
//
// The classical energy of a Hamiltonian and its minimization live in package
// energy, the magnon spectra in package lswt.
package magnons

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/spinham"
)

var isotropic = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// CubicFerroNN returns a ferromagnet on a simple cubic lattice of constant a,
// with one spin s per cell and the exchange
//
//	E = -Σ_{i,j} jIso S_i·S_j + Σ_i S_i·diag(anisotropy)·S_i
//
// over ordered nearest neighbour pairs. Negative anisotropy components are
// easy axes.
func CubicFerroNN(a, jIso, s float64, anisotropy [3]float64) (*spinham.Hamiltonian, error) {
	conv := spinham.NewConvention(true, false).With(spinham.Order21, 1).With(spinham.Order22, -1)
	atoms := spinham.Atoms{Names: []string{"Fe"}, Spins: []float64{s}, Positions: []r3.Vec{{}}}
	h, err := spinham.New(spinham.CubicCell(a), atoms, conv)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for _, nu := range [][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
		j := isotropic
		for i := range 3 {
			j[i][i] *= jIso
		}
		if err := h.Add22(0, 0, nu, j); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	if anisotropy != [3]float64{} {
		var k [3][3]float64
		for i := range 3 {
			k[i][i] = anisotropy[i]
		}
		if err := h.Add21(0, k); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return h, nil
}

// EasyAxisFerromagnet returns a single spin s in a unit cubic cell with the
// single-ion anisotropy E = -S·diag(b, 0, a)·S. For a > b > 0 the easy axis
// is z and y is the hard axis.
func EasyAxisFerromagnet(s, a, b float64) (*spinham.Hamiltonian, error) {
	conv := spinham.NewConvention(true, false).With(spinham.Order21, -1)
	atoms := spinham.Atoms{Names: []string{"Fe"}, Spins: []float64{s}}
	h, err := spinham.New(spinham.CubicCell(1), atoms, conv)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := h.Add21(0, [3][3]float64{{b, 0, 0}, {0, 0, 0}, {0, 0, a}}); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}

// AntiferroChain returns a chain along x of two sublattices with spin s, one
// unit apart, and the isotropic exchange E = Σ_{i,j} j S_i·S_j over ordered
// nearest neighbour pairs. The cell is 2 units long along x.
func AntiferroChain(j, s float64) (*spinham.Hamiltonian, error) {
	conv := spinham.NewConvention(true, false).With(spinham.Order22, 1)
	atoms := spinham.Atoms{
		Names:     []string{"Mn1", "Mn2"},
		Spins:     []float64{s, s},
		Positions: []r3.Vec{{}, {X: 1}},
	}
	h, err := spinham.New(spinham.Cell{{X: 2}, {Y: 1}, {Z: 1}}, atoms, conv)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	exchange := isotropic
	for i := range 3 {
		exchange[i][i] *= j
	}
	if err := h.Add22(0, 1, [3]int{}, exchange); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := h.Add22(1, 0, [3]int{1, 0, 0}, exchange); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return h, nil
}
