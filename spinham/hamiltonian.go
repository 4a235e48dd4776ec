// Package spinham stores the parameters of a spin Hamiltonian on a crystal
// lattice.
//
// Parameters are Cartesian tensors indexed by a tuple of atoms and the lattice
// translations of every atom after the first. The energy of a spin configuration is
//
//	E = Σ_o c_o Σ_{entries of o} T_{i1..in} S^{i1}_{slot(1)} ... S^{in}_{slot(n)}
//
// where the sums over entries, the prefactors c_o and the meaning of S follow the
// Hamiltonian's Convention.
package spinham

import (
	"iter"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

// key identifies an entry. Unused trailing slots are zero.
type key struct {
	atoms [4]int
	nus   [3][3]int
}

func newKey(atoms []int, nus [][3]int) key {
	var k key
	copy(k.atoms[:], atoms)
	copy(k.nus[:], nus)
	return k
}

func compareKeys(a, b key) int {
	if c := slices.Compare(a.atoms[:], b.atoms[:]); c != 0 {
		return c
	}
	for i := range a.nus {
		if c := slices.Compare(a.nus[i][:], b.nus[i][:]); c != 0 {
			return c
		}
	}
	return 0
}

type entry struct {
	key key
	t   Tensor
}

func compareEntries(a, b entry) int { return compareKeys(a.key, b.key) }

// Param is one effective parameter.
// Nu[i] is the lattice translation of Atoms[i+1], the first atom sits in the home cell.
type Param struct {
	Atoms []int
	Nu    [][3]int
	Value Tensor
}

func (e entry) param(o Order) Param {
	n := o.Sites()
	p := Param{Atoms: append([]int(nil), e.key.atoms[:n]...), Value: e.t.Clone()}
	if n > 1 {
		p.Nu = append([][3]int(nil), e.key.nus[:n-1]...)
	}
	return p
}

// Hamiltonian is a spin Hamiltonian: a unit cell with atoms and the interaction
// parameters among them.
type Hamiltonian struct {
	Cell  Cell
	Atoms Atoms

	convention Convention
	units      string
	// params holds one entry per multiple-counting equivalence class,
	// sorted by key.
	params [numOrders][]entry
}

// New returns an empty Hamiltonian with parameters in meV.
func New(cell Cell, atoms Atoms, convention Convention) (*Hamiltonian, error) {
	if err := atoms.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	h := &Hamiltonian{Cell: cell, Atoms: atoms.clone(), convention: convention, units: "mev"}
	return h, nil
}

func (h *Hamiltonian) Convention() Convention { return h.convention }

// Units returns the display name of the parameter units.
func (h *Hamiltonian) Units() string { return parameterUnits[h.units].name }

// Copy returns a deep copy.
func (h *Hamiltonian) Copy() *Hamiltonian {
	c := &Hamiltonian{Cell: h.Cell, Atoms: h.Atoms.clone(), convention: h.convention, units: h.units}
	for o := range numOrders {
		c.params[o] = make([]entry, 0, len(h.params[o]))
		for _, e := range h.params[o] {
			c.params[o] = append(c.params[o], entry{key: e.key, t: e.t.Clone()})
		}
	}
	return c
}

// Snapshot returns a copy in meV under the internal counting scheme, see
// Convention.Internal.
// The receiver is left untouched.
func (h *Hamiltonian) Snapshot() (*Hamiltonian, error) {
	s := h.Copy()
	if err := s.SetUnits("meV"); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := s.SetConvention(h.convention.Internal()); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}

// MagneticAtoms returns the indices of the atoms with nonzero spin.
func (h *Hamiltonian) MagneticAtoms() []int {
	var mag []int
	for i, s := range h.Atoms.Spins {
		if s != 0 {
			mag = append(mag, i)
		}
	}
	return mag
}

// MapToMagnetic maps atom indices to magnetic site indices, -1 for
// nonmagnetic atoms.
func (h *Hamiltonian) MapToMagnetic() []int {
	m := make([]int, h.Atoms.Len())
	var n int
	for i, s := range h.Atoms.Spins {
		switch {
		case s != 0:
			m[i] = n
			n++
		default:
			m[i] = -1
		}
	}
	return m
}

// M is the number of magnetic sites.
func (h *Hamiltonian) M() int { return len(h.MagneticAtoms()) }

// MagneticSpins returns the spin magnitudes of the magnetic sites.
func (h *Hamiltonian) MagneticSpins() []float64 {
	spins := make([]float64, 0, h.Atoms.Len())
	for _, s := range h.Atoms.Spins {
		if s != 0 {
			spins = append(spins, s)
		}
	}
	return spins
}

// Len returns the number of stored entries of order o, not counting
// re-expressions.
func (h *Hamiltonian) Len(o Order) int { return len(h.params[o]) }

// Params iterates the effective parameters of order o. Under multiple counting
// every entry is followed by its re-expressions.
func (h *Hamiltonian) Params(o Order) iter.Seq[Param] {
	return func(yield func(Param) bool) {
		for _, e := range h.params[o] {
			if !h.convention.MultipleCounting {
				if !yield(e.param(o)) {
					return
				}
				continue
			}
			for _, eq := range equivalents(o, e) {
				if !yield(eq.param(o)) {
					return
				}
			}
		}
	}
}

// Get returns the parameter stored for the given atoms and translations, in
// the form it has for exactly that slot order.
func (h *Hamiltonian) Get(o Order, atoms []int, nus [][3]int) (Tensor, bool) {
	if err := h.validateKey(o, atoms, nus); err != nil {
		return Tensor{}, false
	}
	k := newKey(atoms, nus)
	p, _ := primary(o, entry{key: k, t: ZeroTensor(o.Rank())})
	i, ok := slices.BinarySearchFunc(h.params[o], p, compareEntries)
	if !ok {
		return Tensor{}, false
	}
	for _, eq := range equivalents(o, h.params[o][i]) {
		if eq.key == k {
			return eq.t.Clone(), true
		}
	}
	return Tensor{}, false
}

func (h *Hamiltonian) Add1(alpha int, p [3]float64) error {
	return h.add(Order1, []int{alpha}, nil, Vector(p), Raise)
}

func (h *Hamiltonian) Add21(alpha int, p [3][3]float64) error {
	return h.add(Order21, []int{alpha}, nil, Matrix(p), Raise)
}

func (h *Hamiltonian) Add22(alpha, beta int, nu [3]int, p [3][3]float64) error {
	return h.add(Order22, []int{alpha, beta}, [][3]int{nu}, Matrix(p), Raise)
}

func (h *Hamiltonian) Add31(alpha int, p [3][3][3]float64) error {
	return h.add(Order31, []int{alpha}, nil, Tensor3(p), Raise)
}

func (h *Hamiltonian) Add32(alpha, beta int, nu [3]int, p [3][3][3]float64) error {
	return h.add(Order32, []int{alpha, beta}, [][3]int{nu}, Tensor3(p), Raise)
}

func (h *Hamiltonian) Add33(alpha, beta, gamma int, nu, lambda [3]int, p [3][3][3]float64) error {
	return h.add(Order33, []int{alpha, beta, gamma}, [][3]int{nu, lambda}, Tensor3(p), Raise)
}

func (h *Hamiltonian) Add41(alpha int, p [3][3][3][3]float64) error {
	return h.add(Order41, []int{alpha}, nil, Tensor4(p), Raise)
}

func (h *Hamiltonian) Add421(alpha, beta int, nu [3]int, p [3][3][3][3]float64) error {
	return h.add(Order421, []int{alpha, beta}, [][3]int{nu}, Tensor4(p), Raise)
}

func (h *Hamiltonian) Add422(alpha, beta int, nu [3]int, p [3][3][3][3]float64) error {
	return h.add(Order422, []int{alpha, beta}, [][3]int{nu}, Tensor4(p), Raise)
}

func (h *Hamiltonian) Add43(alpha, beta, gamma int, nu, lambda [3]int, p [3][3][3][3]float64) error {
	return h.add(Order43, []int{alpha, beta, gamma}, [][3]int{nu, lambda}, Tensor4(p), Raise)
}

func (h *Hamiltonian) Add44(alpha, beta, gamma, epsilon int, nu, lambda, rho [3]int, p [3][3][3][3]float64) error {
	return h.add(Order44, []int{alpha, beta, gamma, epsilon}, [][3]int{nu, lambda, rho}, Tensor4(p), Raise)
}

// WhenPresent selects what Put does when the bond already has a parameter.
type WhenPresent int

const (
	// Raise fails with an error.
	Raise WhenPresent = iota
	Replace
	// Accumulate adds the new parameter to the present one.
	Accumulate
	// Mean replaces the present parameter with the mean of the two.
	Mean
)

// Set stores t for the given atoms and translations, replacing any parameter
// already present for the same bond.
func (h *Hamiltonian) Set(o Order, atoms []int, nus [][3]int, t Tensor) error {
	return h.Put(o, atoms, nus, t, Replace)
}

// Put stores t for the given atoms and translations, resolving a parameter
// already present for the same bond as when says.
// A bond whose parameter becomes zero is removed.
func (h *Hamiltonian) Put(o Order, atoms []int, nus [][3]int, t Tensor, when WhenPresent) error {
	if err := h.add(o, atoms, nus, t, when); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Remove deletes the parameter of the given bond.
func (h *Hamiltonian) Remove(o Order, atoms []int, nus [][3]int) error {
	if err := h.validateKey(o, atoms, nus); err != nil {
		return errors.Wrap(err, "")
	}
	p, _ := primary(o, entry{key: newKey(atoms, nus), t: ZeroTensor(o.Rank())})
	i, ok := slices.BinarySearchFunc(h.params[o], p, compareEntries)
	if !ok {
		return errors.Errorf("order %s: no parameter for atoms %v translations %v", o, atoms, nus)
	}
	h.params[o] = slices.Delete(h.params[o], i, i+1)
	return nil
}

// AddMagneticField adds the Zeeman coupling to a field b, in tesla, to the
// order one parameters of every magnetic atom.
func (h *Hamiltonian) AddMagneticField(b r3.Vec) error {
	c1, ok := h.convention.Coefficient(Order1)
	switch {
	case !ok:
		c1 = 1
		h.convention = h.convention.With(Order1, c1)
	case c1 == 0:
		return errors.Errorf("zero prefactor for order 1")
	}
	perUnit := bohrMagneton / parameterUnits[h.units].joules
	for _, a := range h.MagneticAtoms() {
		f := perUnit * h.Atoms.gFactor(a) / c1
		if h.convention.SpinNormalized {
			f *= h.Atoms.Spins[a]
		}
		t := Vector([3]float64{f * b.X, f * b.Y, f * b.Z})
		if err := h.add(Order1, []int{a}, nil, t, Accumulate); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// SetConvention re-expresses all parameters in the convention c, leaving the
// energy of every configuration unchanged.
func (h *Hamiltonian) SetConvention(c Convention) error {
	old := h.convention
	for o := range numOrders {
		if len(h.params[o]) == 0 {
			continue
		}
		if _, ok := old.Coefficient(o); !ok {
			return errors.Errorf("order %s has parameters but no prefactor in %v", o, old)
		}
		if cNew, ok := c.Coefficient(o); !ok || cNew == 0 {
			return errors.Errorf("order %s has parameters but no prefactor in %v", o, c)
		}
	}

	for o := range numOrders {
		cOld, _ := old.Coefficient(o)
		cNew, _ := c.Coefficient(o)
		for i, e := range h.params[o] {
			f := cOld / cNew
			if old.MultipleCounting != c.MultipleCounting {
				k := float64(len(equivalents(o, e)))
				switch {
				case old.MultipleCounting:
					f *= k
				default:
					f /= k
				}
			}
			if old.SpinNormalized != c.SpinNormalized {
				s := h.spinProduct(o, e.key)
				switch {
				case s == 0:
					// Nonmagnetic atoms never contribute to the energy.
				case old.SpinNormalized:
					f /= s
				default:
					f *= s
				}
			}
			h.params[o][i].t = e.t.Scaled(f)
		}
	}
	h.convention = c
	return nil
}

// SetUnits rescales all parameters to the given energy units.
func (h *Hamiltonian) SetUnits(units string) error {
	f, err := ConversionFactor(h.units, units)
	if err != nil {
		return errors.Wrap(err, "")
	}
	for o := range numOrders {
		for i, e := range h.params[o] {
			h.params[o][i].t = e.t.Scaled(f)
		}
	}
	h.units = strings.ToLower(units)
	return nil
}

func (h *Hamiltonian) add(o Order, atoms []int, nus [][3]int, t Tensor, when WhenPresent) error {
	if err := h.validateKey(o, atoms, nus); err != nil {
		return errors.Wrap(err, "")
	}
	if t.Rank != o.Rank() || len(t.Data) != pow3(o.Rank()) {
		return errors.Errorf("order %s: tensor of rank %d with %d entries", o, t.Rank, len(t.Data))
	}
	if _, ok := h.convention.Coefficient(o); !ok {
		return errors.Errorf("order %s: prefactor undefined in %v", o, h.convention)
	}

	p, _ := primary(o, entry{key: newKey(atoms, nus), t: t.Clone()})
	i, ok := slices.BinarySearchFunc(h.params[o], p, compareEntries)
	if !ok {
		h.params[o] = slices.Insert(h.params[o], i, p)
		return nil
	}
	switch when {
	case Raise:
		return errors.Errorf("order %s: parameter for atoms %v translations %v already present", o, atoms, nus)
	case Replace:
		h.params[o][i] = p
	case Accumulate:
		h.params[o][i].t.AddScaled(1, p.t)
	case Mean:
		h.params[o][i].t.AddScaled(1, p.t)
		h.params[o][i].t = h.params[o][i].t.Scaled(0.5)
	default:
		return errors.Errorf("unknown WhenPresent %d", when)
	}
	if h.params[o][i].t.IsZero() {
		h.params[o] = slices.Delete(h.params[o], i, i+1)
	}
	return nil
}

func (h *Hamiltonian) validateKey(o Order, atoms []int, nus [][3]int) error {
	if !o.valid() {
		return errors.Errorf("invalid order %d", o)
	}
	if len(atoms) != o.Sites() {
		return errors.Errorf("order %s: %d atoms, expected %d", o, len(atoms), o.Sites())
	}
	if len(nus) != o.Sites()-1 {
		return errors.Errorf("order %s: %d translations, expected %d", o, len(nus), o.Sites()-1)
	}
	for _, a := range atoms {
		if a < 0 || a >= h.Atoms.Len() {
			return errors.Errorf("order %s: atom index %d out of range [0, %d)", o, a, h.Atoms.Len())
		}
	}
	// Every slot must be a distinct site, otherwise the term belongs to a
	// lower site-count order.
	cells := slotCells(newKey(atoms, nus), o.Sites())
	for i := range atoms {
		for j := range i {
			if atoms[i] == atoms[j] && cells[i] == cells[j] {
				return errors.Errorf("order %s: atoms %v translations %v repeat a site", o, atoms, nus)
			}
		}
	}
	return nil
}

// spinProduct is the product of the spin magnitudes over all tensor axes.
func (h *Hamiltonian) spinProduct(o Order, k key) float64 {
	s := 1.0
	for _, g := range o.Groups() {
		s *= h.Atoms.Spins[k.atoms[g]]
	}
	return s
}

// slotCells returns the lattice cell of every site slot.
func slotCells(k key, sites int) [][3]int {
	cells := make([][3]int, sites)
	for i := 1; i < sites; i++ {
		cells[i] = k.nus[i-1]
	}
	return cells
}

// equivalents returns e followed by its distinct re-expressions. A
// re-expression permutes site slots holding the same number of tensor axes,
// re-bases the translations on the new first slot, and permutes the tensor
// axes along.
func equivalents(o Order, e entry) []entry {
	sizes := o.groupSizes()
	n := len(sizes)
	cells := slotCells(e.key, n)

	eqs := []entry{e}
	for _, perm := range permutations(n) {
		valid := true
		for g, old := range perm {
			if sizes[g] != sizes[old] {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		var k key
		for g, old := range perm {
			k.atoms[g] = e.key.atoms[old]
			if g > 0 {
				origin := cells[perm[0]]
				for x := range 3 {
					k.nus[g-1][x] = cells[old][x] - origin[x]
				}
			}
		}
		if slices.ContainsFunc(eqs, func(eq entry) bool { return eq.key == k }) {
			continue
		}
		eqs = append(eqs, entry{key: k, t: e.t.permute(axisPermutation(o, perm))})
	}
	return eqs
}

// primary returns the representative of e's equivalence class, the one with
// the smallest key, and the size of the class.
func primary(o Order, e entry) (entry, int) {
	eqs := equivalents(o, e)
	return slices.MinFunc(eqs, compareEntries), len(eqs)
}

// axisPermutation returns, for every axis of the re-expressed tensor, the axis
// of the original tensor it comes from.
func axisPermutation(o Order, perm []int) []int {
	groups := o.Groups()
	oldAxisOf := make([]int, 0, len(groups))
	for _, old := range perm {
		for a, g := range groups {
			if g == old {
				oldAxisOf = append(oldAxisOf, a)
			}
		}
	}
	return oldAxisOf
}

// permutations returns all permutations of 0..n-1 in lexicographic order.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var perms [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			perms = append(perms, q)
		}
	}
	slices.SortFunc(perms, func(a, b []int) int { return slices.Compare(a, b) })
	return perms
}
