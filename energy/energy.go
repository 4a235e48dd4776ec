// Package energy computes the classical energy of a spin Hamiltonian and
// minimizes it over the directions of the spins.
package energy

import (
	"math"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/spinham"
)

// term is an aggregated parameter. sites holds the magnetic site of every
// slot, and the tensor is already multiplied by the convention prefactor.
type term struct {
	sites  []int
	groups []int
	t      spinham.Tensor
}

type siteKey [4]int

// Energy evaluates the classical energy
//
//	E = Σ_terms T_{i1..in} S^{i1} ... S^{in}
//
// of a Hamiltonian in the multiple-counting, non-normalized form, with spin
// vectors S = S_α d_α. Energies are in meV.
type Energy struct {
	spins []float64
	// onsite holds the one-site orders densely, indexed by site.
	onsite map[spinham.Order][]spinham.Tensor
	// multisite holds the other orders, one term per site tuple.
	multisite map[spinham.Order][]term
}

// New aggregates the parameters of h. Later changes to h do not affect the
// returned Energy.
func New(h *spinham.Hamiltonian) (*Energy, error) {
	snap, err := h.Snapshot()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	e := &Energy{
		spins:     snap.MagneticSpins(),
		onsite:    make(map[spinham.Order][]spinham.Tensor),
		multisite: make(map[spinham.Order][]term),
	}
	toMagnetic := snap.MapToMagnetic()
	conv := snap.Convention()

	for _, o := range spinham.Orders() {
		c, ok := conv.Coefficient(o)
		if !ok {
			continue
		}

		if o.Sites() == 1 {
			dense := make([]spinham.Tensor, len(e.spins))
			for i := range dense {
				dense[i] = spinham.ZeroTensor(o.Rank())
			}
			var n int
			for p := range snap.Params(o) {
				alpha := toMagnetic[p.Atoms[0]]
				if alpha < 0 {
					continue
				}
				dense[alpha].AddScaled(c, p.Value)
				n++
			}
			if n > 0 {
				e.onsite[o] = dense
			}
			continue
		}

		agg := make(map[siteKey]spinham.Tensor)
		for p := range snap.Params(o) {
			var k siteKey
			magnetic := true
			for i, a := range p.Atoms {
				k[i] = toMagnetic[a]
				magnetic = magnetic && k[i] >= 0
			}
			if !magnetic {
				continue
			}
			t, ok := agg[k]
			if !ok {
				t = spinham.ZeroTensor(o.Rank())
				agg[k] = t
			}
			t.AddScaled(c, p.Value)
		}
		terms := make([]term, 0, len(agg))
		for k, t := range agg {
			terms = append(terms, term{sites: slices.Clone(k[:o.Sites()]), groups: o.Groups(), t: t})
		}
		slices.SortFunc(terms, func(a, b term) int { return slices.Compare(a.sites, b.sites) })
		e.multisite[o] = terms
	}
	return e, nil
}

// M is the number of magnetic sites.
func (e *Energy) M() int { return len(e.spins) }

// E0 returns the classical energy of the spin directions, which are normalized first.
func (e *Energy) E0(directions []r3.Vec) (float64, error) {
	if err := e.validate(directions); err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return e.e0(directions, true), nil
}

// Gradient returns the derivative of the energy with respect to every
// component of every direction.
func (e *Energy) Gradient(directions []r3.Vec) ([]r3.Vec, error) {
	if err := e.validate(directions); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return e.gradient(directions, true), nil
}

// Torque returns d × ∂E/∂d for every site.
func (e *Energy) Torque(directions []r3.Vec) ([]r3.Vec, error) {
	if err := e.validate(directions); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return e.torque(directions, true), nil
}

func (e *Energy) e0(directions []r3.Vec, normalize bool) float64 {
	spins := e.spinVectors(directions, normalize)

	var energy float64
	for _, o := range spinham.Orders() {
		for alpha, t := range e.onsite[o] {
			energy += t.Contract(repeat(spins[alpha], o.Rank()))
		}
		for _, tm := range e.multisite[o] {
			energy += tm.t.Contract(tm.vectors(spins))
		}
	}
	return energy
}

func (e *Energy) gradient(directions []r3.Vec, normalize bool) []r3.Vec {
	spins := e.spinVectors(directions, normalize)

	// ∂E/∂d_α = S_α ∂E/∂S_α, summed over every axis bound to α.
	grad := make([]r3.Vec, len(spins))
	for _, o := range spinham.Orders() {
		for alpha, t := range e.onsite[o] {
			vecs := repeat(spins[alpha], o.Rank())
			for p := range o.Rank() {
				grad[alpha] = r3.Add(grad[alpha], r3.Scale(e.spins[alpha], t.ContractFree(vecs, p)))
			}
		}
		for _, tm := range e.multisite[o] {
			vecs := tm.vectors(spins)
			for p, g := range tm.groups {
				alpha := tm.sites[g]
				grad[alpha] = r3.Add(grad[alpha], r3.Scale(e.spins[alpha], tm.t.ContractFree(vecs, p)))
			}
		}
	}
	return grad
}

func (e *Energy) torque(directions []r3.Vec, normalize bool) []r3.Vec {
	if normalize {
		directions = normalized(directions)
	}
	grad := e.gradient(directions, false)
	torque := make([]r3.Vec, len(grad))
	for i, g := range grad {
		torque[i] = r3.Cross(directions[i], g)
	}
	return torque
}

func (e *Energy) spinVectors(directions []r3.Vec, normalize bool) []r3.Vec {
	if normalize {
		directions = normalized(directions)
	}
	spins := make([]r3.Vec, len(directions))
	for i, d := range directions {
		spins[i] = r3.Scale(e.spins[i], d)
	}
	return spins
}

func (e *Energy) validate(directions []r3.Vec) error {
	if len(directions) != len(e.spins) {
		return errors.Errorf("%d directions for %d magnetic sites", len(directions), len(e.spins))
	}
	for i, d := range directions {
		n := r3.Norm(d)
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return errors.Errorf("site %d direction %v", i, d)
		}
	}
	return nil
}

func (tm term) vectors(spins []r3.Vec) []r3.Vec {
	vecs := make([]r3.Vec, len(tm.groups))
	for a, g := range tm.groups {
		vecs[a] = spins[tm.sites[g]]
	}
	return vecs
}

func normalized(directions []r3.Vec) []r3.Vec {
	n := make([]r3.Vec, len(directions))
	for i, d := range directions {
		n[i] = r3.Unit(d)
	}
	return n
}

func repeat(v r3.Vec, n int) []r3.Vec {
	vecs := make([]r3.Vec, n)
	for i := range vecs {
		vecs[i] = v
	}
	return vecs
}

func maxNorm(vs []r3.Vec) float64 {
	var m float64
	for _, v := range vs {
		m = max(m, r3.Norm(v))
	}
	return m
}
