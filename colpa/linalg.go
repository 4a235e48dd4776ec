package colpa

import (
	"cmp"
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"
)

// Cholesky returns the lower triangular l with a = l l†.
// Only the lower triangle of a is read.
// ok is false if a is not positive definite.
func Cholesky(a *mat.CDense) (l *mat.CDense, ok bool) {
	n, c := a.Dims()
	if n != c {
		panic(fmt.Sprintf("%d %d", n, c))
	}
	l = mat.NewCDense(n, n, nil)
	for j := range n {
		d := real(a.At(j, j))
		for k := range j {
			ljk := l.At(j, k)
			d -= real(ljk)*real(ljk) + imag(ljk)*imag(ljk)
		}
		// The negated comparison also rejects NaN.
		if !(d > 0) {
			return nil, false
		}
		ljj := math.Sqrt(d)
		l.Set(j, j, complex(ljj, 0))

		for i := j + 1; i < n; i++ {
			s := a.At(i, j)
			for k := range j {
				s -= l.At(i, k) * cmplx.Conj(l.At(j, k))
			}
			l.Set(i, j, s/complex(ljj, 0))
		}
	}
	return l, true
}

// EigenHermitian returns the eigenvalues of the Hermitian part of a in
// ascending order, and the orthonormal eigenvectors as columns.
//
// The n×n complex problem H = X + iY is solved as the 2n×2n real symmetric one
//
//	[X -Y]
//	[Y  X]
//
// whose spectrum is that of H with every eigenvalue doubled. An eigenvector
// (u, v) of the real problem gives the eigenvector u + iv of H, and every
// degenerate subspace of H appears twice, once multiplied by i. The complex
// eigenvectors are recovered by Gram-Schmidt inside each degenerate cluster.
func EigenHermitian(a *mat.CDense) ([]float64, *mat.CDense, bool) {
	n, c := a.Dims()
	if n != c {
		panic(fmt.Sprintf("%d %d", n, c))
	}

	s := mat.NewSymDense(2*n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			aij, aji := a.At(i, j), a.At(j, i)
			x := (real(aij) + real(aji)) / 2
			y := (imag(aij) - imag(aji)) / 2
			s.SetSym(i, j, x)
			s.SetSym(n+i, n+j, x)
			// Block (2,1) is Y, so block (1,2) is Yᵀ = -Y.
			s.SetSym(n+i, j, y)
			s.SetSym(n+j, i, -y)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(s, true); !ok {
		return nil, nil, false
	}
	realVals := eig.Values(nil)
	var realVecs mat.Dense
	eig.VectorsTo(&realVecs)

	candidates := make([][]complex128, 2*n)
	for j := range candidates {
		u := make([]complex128, n)
		for i := range n {
			u[i] = complex(realVecs.At(i, j), realVecs.At(n+i, j))
		}
		candidates[j] = u
	}

	scale := 1.0
	for _, v := range realVals {
		scale = max(scale, math.Abs(v))
	}
	tol := 1e-9 * scale

	type pair struct {
		val float64
		vec []complex128
	}
	pairs := make([]pair, 0, n)
	// Eigenvalues of the real problem come in equal pairs, so clusters are
	// built from consecutive pairs.
	for start := 0; start < 2*n; {
		end := start + 2
		for end < 2*n && realVals[end]-realVals[end-1] <= tol {
			end += 2
		}
		for _, v := range gramSchmidt(candidates[start:end], (end-start)/2) {
			pairs = append(pairs, pair{val: rayleigh(a, v), vec: v})
		}
		start = end
	}
	slices.SortStableFunc(pairs, func(x, y pair) int { return cmp.Compare(x.val, y.val) })

	vals := make([]float64, n)
	vecs := mat.NewCDense(n, n, nil)
	for j, p := range pairs {
		vals[j] = p.val
		for i, v := range p.vec {
			vecs.Set(i, j, v)
		}
	}
	return vals, vecs, true
}

// gramSchmidt picks m orthonormal vectors spanning the candidates, each time
// taking the candidate with the largest component outside the current basis.
func gramSchmidt(candidates [][]complex128, m int) [][]complex128 {
	residuals := make([][]complex128, len(candidates))
	for i, c := range candidates {
		residuals[i] = slices.Clone(c)
	}

	basis := make([][]complex128, 0, m)
	for len(basis) < m {
		best, bestNorm := -1, -1.0
		for i, r := range residuals {
			if r == nil {
				continue
			}
			if nrm := cmplxs.Norm(r, 2); nrm > bestNorm {
				best, bestNorm = i, nrm
			}
		}
		v := residuals[best]
		residuals[best] = nil
		cmplxs.ScaleReal(1/bestNorm, v)
		basis = append(basis, v)

		for _, r := range residuals {
			if r == nil {
				continue
			}
			cmplxs.AddScaled(r, -cmplxs.Dot(v, r), v)
		}
	}
	return basis
}

// rayleigh returns v† a v for a normalized v.
func rayleigh(a *mat.CDense, v []complex128) float64 {
	n := len(v)
	var s complex128
	for i := range n {
		var av complex128
		for j := range n {
			av += a.At(i, j) * v[j]
		}
		s += cmplx.Conj(v[i]) * av
	}
	return real(s)
}

// mul returns op(a) op(b).
func mul(tA blas.Transpose, a *mat.CDense, tB blas.Transpose, b *mat.CDense) *mat.CDense {
	r, _ := a.Dims()
	if tA != blas.NoTrans {
		_, r = a.Dims()
	}
	_, c := b.Dims()
	if tB != blas.NoTrans {
		c, _ = b.Dims()
	}
	dst := mat.NewCDense(r, c, nil)
	cblas128.Gemm(tA, tB, 1, a.RawCMatrix(), b.RawCMatrix(), 0, dst.RawCMatrix())
	return dst
}
