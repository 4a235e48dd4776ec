// Package colpa diagonalizes quadratic boson Hamiltonians.
//
// References:
//   - Diagonalization of the quadratic boson hamiltonian, J.H.P. Colpa, Physica 93A (1978) 327-353
package colpa

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"
)

// ErrColpaFailed is returned when the matrix is not positive definite, in
// which case no paraunitary diagonalization exists.
var ErrColpaFailed = errors.New("colpa: matrix is not positive definite")

// Solve diagonalizes the 2N×2N Hermitian matrix d by a paraunitary
// transformation, which preserves the boson commutation relations encoded by
// g = diag(1,...,1,-1,...,-1).
//
// It returns the 2N energies e, the first N from the positive branch in
// descending order and the last N from the negative branch, and the matrix g
// mapping the original operators to the new ones, so that d = g† diag(e) g.
func Solve(d *mat.CDense) (e []float64, g *mat.CDense, err error) {
	r, c := d.Dims()
	if r != c || r%2 != 0 {
		return nil, nil, errors.Errorf("matrix of shape %dx%d, expected 2Nx2N", r, c)
	}
	n := r / 2

	// d = K† K.
	l, ok := Cholesky(d)
	if !ok {
		return nil, nil, errors.Wrap(ErrColpaFailed, "cholesky")
	}
	k := mat.NewCDense(r, r, nil)
	k.Copy(l.H())

	// w = K g K†.
	kg := mat.NewCDense(r, r, nil)
	kg.Copy(k)
	for i := range r {
		for j := n; j < r; j++ {
			kg.Set(i, j, -kg.At(i, j))
		}
	}
	w := mul(blas.NoTrans, kg, blas.ConjTrans, k)

	vals, vecs, ok := EigenHermitian(w)
	if !ok {
		return nil, nil, errors.Wrap(ErrColpaFailed, "eigen decomposition")
	}

	// Positive eigenvalues in descending order, then negative ones in
	// ascending order.
	order := make([]int, 0, r)
	for i := r - 1; i >= n; i-- {
		order = append(order, i)
	}
	for i := range n {
		order = append(order, i)
	}
	e = make([]float64, r)
	u := mat.NewCDense(r, r, nil)
	for col, src := range order {
		e[col] = vals[src]
		if col >= n {
			e[col] = -e[col]
		}
		for row := range r {
			u.Set(row, col, vecs.At(row, src))
		}
	}
	for i, ei := range e {
		if !(ei > 0) {
			return nil, nil, errors.Wrapf(ErrColpaFailed, "energy %d is %f", i, ei)
		}
	}

	// G = E^{-1/2} U† K.
	g = mul(blas.ConjTrans, u, blas.NoTrans, k)
	for i, ei := range e {
		f := complex(1/math.Sqrt(ei), 0)
		for j := range r {
			g.Set(i, j, f*g.At(i, j))
		}
	}
	return e, g, nil
}
