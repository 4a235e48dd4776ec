// Package lswt computes magnon spectra of a spin Hamiltonian in linear spin
// wave theory around a classical spin configuration.
//
// References:
//   - Linear spin wave theory for single-Q incommensurate magnetic structures, S. Toth and B. Lake, J. Phys.: Condens. Matter 27 (2015) 166002
//   - Diagonalization of the quadratic boson hamiltonian, J.H.P. Colpa, Physica 93A (1978) 327-353
package lswt

import (
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/colpa"
	"github.com/fumin/magnons/localrf"
	"github.com/fumin/magnons/spinham"
)

// shift is added to every entry of the dynamical matrix in the last attempt
// of Diagonalize.
const shift = 1e-8

// Coupling is an M×M block of 3×3 matrices, indexed by site pairs.
type Coupling [][][3][3]float64

func newCoupling(m int) Coupling {
	c := make(Coupling, m)
	for i := range c {
		c[i] = make([][3][3]float64, m)
	}
	return c
}

func (c Coupling) clone() Coupling {
	d := make(Coupling, len(c))
	for i := range c {
		d[i] = slices.Clone(c[i])
	}
	return d
}

// LSWT holds the quadratic boson Hamiltonian of a Hamiltonian expanded
// around a spin configuration. Energies are in meV.
//
// With bosons a_α of the local frames, the Hamiltonian reads
//
//	H = E_0 + E_2 + Σ_α (O_α a_α + h.c.) + Σ_k ψ_k† GDM(k) ψ_k,  ψ_k = (a_k, a†_{-k})
//
// and O vanishes when the configuration is a classical extremum.
type LSWT struct {
	cell   spinham.Cell
	spins  []float64
	frames []localrf.Frame

	j1  []r3.Vec
	nus [][3]int
	j2  map[[3]int]Coupling

	a1 []float64
	a2 map[[3]int]*mat.CDense
	b2 map[[3]int]*mat.CDense
	o  []complex128
}

// New expands h around the spin directions, one per magnetic atom.
// Later changes to h do not affect the returned LSWT.
func New(h *spinham.Hamiltonian, directions []r3.Vec) (*LSWT, error) {
	snap, err := h.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	spins := snap.MagneticSpins()
	m := len(spins)
	if m == 0 {
		return nil, errors.Errorf("no magnetic atoms")
	}
	if len(directions) != m {
		return nil, errors.Errorf("%d directions for %d magnetic atoms", len(directions), m)
	}
	frames, err := localrf.Span(directions)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	l := &LSWT{cell: snap.Cell, spins: spins, frames: frames, j1: make([]r3.Vec, m), j2: make(map[[3]int]Coupling)}
	l.expand(snap)
	l.project()
	return l, nil
}

// expand collects the first and second derivatives of the classical energy
// with respect to the spin vectors,
//
//	J1_α = ∂E/∂S_α,  J2[ν]_αβ = ½ ∂²E/∂S_α(0)∂S_β(ν).
func (l *LSWT) expand(snap *spinham.Hamiltonian) {
	spinVecs := make([]r3.Vec, len(l.spins))
	for i, f := range l.frames {
		spinVecs[i] = r3.Scale(l.spins[i], f.Z)
	}
	toMagnetic := snap.MapToMagnetic()
	conv := snap.Convention()

	for _, o := range spinham.Orders() {
		c, ok := conv.Coefficient(o)
		if !ok {
			continue
		}
		groups := o.Groups()
		for p := range snap.Params(o) {
			sites := make([]int, len(p.Atoms))
			magnetic := true
			for i, a := range p.Atoms {
				sites[i] = toMagnetic[a]
				magnetic = magnetic && sites[i] >= 0
			}
			if !magnetic {
				continue
			}
			cells := make([][3]int, 0, len(sites))
			cells = append(cells, [3]int{})
			cells = append(cells, p.Nu...)

			vecs := make([]r3.Vec, len(groups))
			for axis, g := range groups {
				vecs[axis] = spinVecs[sites[g]]
			}

			for axis, g := range groups {
				alpha := sites[g]
				l.j1[alpha] = r3.Add(l.j1[alpha], r3.Scale(c, p.Value.ContractFree(vecs, axis)))
			}
			for pa, ga := range groups {
				for pb, gb := range groups {
					if pa == pb {
						continue
					}
					nu := sub(cells[gb], cells[ga])
					j2, ok := l.j2[nu]
					if !ok {
						j2 = newCoupling(len(l.spins))
						l.j2[nu] = j2
						l.nus = append(l.nus, nu)
					}
					alpha, beta := sites[ga], sites[gb]
					m := p.Value.ContractFree2(vecs, pa, pb)
					for i := range 3 {
						for j := range 3 {
							j2[alpha][beta][i][j] += 0.5 * c * m[i][j]
						}
					}
				}
			}
		}
	}
	slices.SortFunc(l.nus, func(a, b [3]int) int { return slices.Compare(a[:], b[:]) })
}

// project expresses J1 and J2 in the bosons of the local frames.
func (l *LSWT) project() {
	m := len(l.spins)
	ps := make([][3]complex128, m)
	for i, f := range l.frames {
		ps[i] = f.P()
	}

	l.a1 = make([]float64, m)
	l.o = make([]complex128, m)
	for alpha := range m {
		l.a1[alpha] = 0.5 * r3.Dot(l.j1[alpha], l.frames[alpha].Z)
		j1 := [3]float64{l.j1[alpha].X, l.j1[alpha].Y, l.j1[alpha].Z}
		var o complex128
		for i := range 3 {
			o += cmplx.Conj(ps[alpha][i]) * complex(j1[i], 0)
		}
		l.o[alpha] = complex(math.Sqrt(l.spins[alpha]/2), 0) * o
	}

	l.a2 = make(map[[3]int]*mat.CDense, len(l.nus))
	l.b2 = make(map[[3]int]*mat.CDense, len(l.nus))
	for _, nu := range l.nus {
		j2 := l.j2[nu]
		a2, b2 := mat.NewCDense(m, m, nil), mat.NewCDense(m, m, nil)
		for alpha := range m {
			for beta := range m {
				var a, b complex128
				for i := range 3 {
					for j := range 3 {
						jij := complex(j2[alpha][beta][i][j], 0)
						a += jij * ps[alpha][i] * cmplx.Conj(ps[beta][j])
						b += jij * cmplx.Conj(ps[alpha][i]) * cmplx.Conj(ps[beta][j])
					}
				}
				f := complex(0.5*math.Sqrt(l.spins[alpha]*l.spins[beta]), 0)
				a2.Set(alpha, beta, f*a)
				b2.Set(alpha, beta, f*b)
			}
		}
		l.a2[nu], l.b2[nu] = a2, b2
	}
}

// M is the number of magnetic atoms.
func (l *LSWT) M() int { return len(l.spins) }

func (l *LSWT) Spins() []float64 { return slices.Clone(l.spins) }

// Frames returns the local frames, whose Z axes are the spin directions.
func (l *LSWT) Frames() []localrf.Frame { return slices.Clone(l.frames) }

// J1 returns the derivatives of the classical energy with respect to the spin
// vectors.
func (l *LSWT) J1() []r3.Vec { return slices.Clone(l.j1) }

// J2 returns half the second derivatives of the classical energy, keyed by the
// translation from the first spin to the second.
func (l *LSWT) J2() map[[3]int]Coupling {
	j2 := make(map[[3]int]Coupling, len(l.j2))
	for nu, c := range l.j2 {
		j2[nu] = c.clone()
	}
	return j2
}

// Nus returns the translations J2, A2 and B2 are keyed by, sorted.
func (l *LSWT) Nus() [][3]int { return slices.Clone(l.nus) }

func (l *LSWT) A1() []float64 { return slices.Clone(l.a1) }

func (l *LSWT) A2() map[[3]int]*mat.CDense { return cloneMatrices(l.a2) }

func (l *LSWT) B2() map[[3]int]*mat.CDense { return cloneMatrices(l.b2) }

// E2 is the correction to the classical energy from the reordering of the
// boson operators.
func (l *LSWT) E2() float64 {
	var e float64
	for _, a := range l.a1 {
		e += a
	}
	return e
}

// O returns the coefficients of the terms linear in the bosons.
func (l *LSWT) O() []complex128 { return slices.Clone(l.o) }

// A returns Σ_ν A2[ν] exp(iφ) - diag(A1), with φ = k·ν in absolute units, or
// 2π k·ν when k is relative to the reciprocal cell.
func (l *LSWT) A(k r3.Vec, relative bool) *mat.CDense {
	a := l.fourier(l.a2, k, relative)
	for i, a1 := range l.a1 {
		a.Set(i, i, a.At(i, i)-complex(a1, 0))
	}
	return a
}

// B returns Σ_ν B2[ν] exp(iφ), see A.
func (l *LSWT) B(k r3.Vec, relative bool) *mat.CDense {
	return l.fourier(l.b2, k, relative)
}

// GDM returns the grand dynamical matrix
//
//	| A(k)  B(k)†     |
//	| B(k)  conj(A(-k)) |
func (l *LSWT) GDM(k r3.Vec, relative bool) *mat.CDense {
	m := len(l.spins)
	a, b := l.A(k, relative), l.B(k, relative)
	am := l.A(r3.Scale(-1, k), relative)

	gdm := mat.NewCDense(2*m, 2*m, nil)
	for i := range m {
		for j := range m {
			gdm.Set(i, j, a.At(i, j))
			gdm.Set(i, m+j, cmplx.Conj(b.At(j, i)))
			gdm.Set(m+i, j, b.At(i, j))
			gdm.Set(m+i, m+j, cmplx.Conj(am.At(i, j)))
		}
	}
	return gdm
}

func (l *LSWT) fourier(coeffs map[[3]int]*mat.CDense, k r3.Vec, relative bool) *mat.CDense {
	m := len(l.spins)
	sum := mat.NewCDense(m, m, nil)
	for _, nu := range l.nus {
		var phi float64
		if relative {
			phi = 2 * math.Pi * (k.X*float64(nu[0]) + k.Y*float64(nu[1]) + k.Z*float64(nu[2]))
		} else {
			phi = r3.Dot(k, l.cell.Translate(nu))
		}
		e := cmplx.Exp(complex(0, phi))
		c := coeffs[nu]
		for i := range m {
			for j := range m {
				sum.Set(i, j, sum.At(i, j)+c.At(i, j)*e)
			}
		}
	}
	return sum
}

// Diagonalization is the solution of the boson Hamiltonian at one k point.
type Diagonalization struct {
	// Omegas are the magnon energies, one per magnetic atom.
	Omegas []float64
	// Delta is the constant left over by the diagonalization.
	Delta float64
	// GInv maps the 2M operators (a_k, a†_{-k}) to the M magnon operators.
	GInv *mat.CDense
}

// OK reports whether the diagonalization succeeded.
func (d Diagonalization) OK() bool {
	return !math.IsNaN(d.Delta)
}

// Scaled returns d with the energies multiplied by f, as when changing units.
func (d Diagonalization) Scaled(f float64) Diagonalization {
	s := Diagonalization{Omegas: make([]float64, len(d.Omegas)), Delta: f * d.Delta, GInv: d.GInv}
	for i, omega := range d.Omegas {
		s.Omegas[i] = f * omega
	}
	return s
}

func (d Diagonalization) String() string {
	return fmt.Sprintf("omegas %v delta %g", d.Omegas, d.Delta)
}

// Diagonalize solves the boson Hamiltonian at k.
// When GDM(k) or GDM(-k) is not positive definite, the negated matrices are
// tried, then the matrices with a tiny constant added to every entry.
// If all attempts fail, every field of the result is NaN, which usually
// means the spin configuration is not a classical ground state.
func (l *LSWT) Diagonalize(k r3.Vec, relative bool) Diagonalization {
	plus, minus := l.GDM(k, relative), l.GDM(r3.Scale(-1, k), relative)
	for _, attempt := range []func(*mat.CDense) *mat.CDense{identity, negated, shifted} {
		ePlus, gPlus, err := colpa.Solve(attempt(plus))
		if err != nil {
			continue
		}
		eMinus, _, err := colpa.Solve(attempt(minus))
		if err != nil {
			continue
		}
		return l.solution(ePlus, eMinus, gPlus)
	}
	return l.failed()
}

func (l *LSWT) solution(ePlus, eMinus []float64, gPlus *mat.CDense) Diagonalization {
	m := len(l.spins)
	d := Diagonalization{Omegas: make([]float64, m), GInv: mat.NewCDense(m, 2*m, nil)}
	for i := range m {
		d.Omegas[i] = ePlus[i] + eMinus[m+i]
		d.Delta += 0.5 * (ePlus[m+i] - ePlus[i])
		for j := range 2 * m {
			d.GInv.Set(i, j, gPlus.At(i, j))
		}
	}
	return d
}

func (l *LSWT) failed() Diagonalization {
	m := len(l.spins)
	nan := cmplx.NaN()
	d := Diagonalization{Omegas: make([]float64, m), Delta: math.NaN(), GInv: mat.NewCDense(m, 2*m, nil)}
	for i := range m {
		d.Omegas[i] = math.NaN()
		for j := range 2 * m {
			d.GInv.Set(i, j, nan)
		}
	}
	return d
}

// Omega returns the magnon energies at k. It diagonalizes from scratch.
func (l *LSWT) Omega(k r3.Vec, relative bool) []float64 {
	return l.Diagonalize(k, relative).Omegas
}

// Delta returns the constant energy at k. It diagonalizes from scratch.
func (l *LSWT) Delta(k r3.Vec, relative bool) float64 {
	return l.Diagonalize(k, relative).Delta
}

// GInv returns the transformation to the magnon operators at k.
// It diagonalizes from scratch.
func (l *LSWT) GInv(k r3.Vec, relative bool) *mat.CDense {
	return l.Diagonalize(k, relative).GInv
}

func identity(a *mat.CDense) *mat.CDense { return a }

func negated(a *mat.CDense) *mat.CDense {
	r, c := a.Dims()
	n := mat.NewCDense(r, c, nil)
	for i := range r {
		for j := range c {
			n.Set(i, j, -a.At(i, j))
		}
	}
	return n
}

func shifted(a *mat.CDense) *mat.CDense {
	r, c := a.Dims()
	s := mat.NewCDense(r, c, nil)
	for i := range r {
		for j := range c {
			s.Set(i, j, a.At(i, j)+shift)
		}
	}
	return s
}

func cloneMatrices(ms map[[3]int]*mat.CDense) map[[3]int]*mat.CDense {
	c := make(map[[3]int]*mat.CDense, len(ms))
	for k, m := range ms {
		r, cols := m.Dims()
		d := mat.NewCDense(r, cols, nil)
		d.Copy(m)
		c[k] = d
	}
	return c
}

func sub(a, b [3]int) [3]int {
	return [3]int{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}
