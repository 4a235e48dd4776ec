package spinham

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Convention fixes how stored parameters turn into energy.
// With MultipleCounting every bond is summed together with its re-expressions
// (swapped sites, negated translations). With SpinNormalized the spin vectors
// entering the energy are unit vectors, otherwise they carry the spin magnitude.
// Every order carries a prefactor, which may be left undefined.
type Convention struct {
	MultipleCounting bool
	SpinNormalized   bool

	c       [numOrders]float64
	defined [numOrders]bool
}

func NewConvention(multipleCounting, spinNormalized bool) Convention {
	return Convention{MultipleCounting: multipleCounting, SpinNormalized: spinNormalized}
}

// With returns a copy of c with the prefactor of order o set to v.
func (c Convention) With(o Order, v float64) Convention {
	c.c[o] = v
	c.defined[o] = true
	return c
}

// Without returns a copy of c with the prefactor of order o undefined.
func (c Convention) Without(o Order) Convention {
	c.c[o] = 0
	c.defined[o] = false
	return c
}

func (c Convention) Coefficient(o Order) (float64, bool) {
	return c.c[o], c.defined[o]
}

// Internal returns c with the counting scheme used by the engines:
// multiple counting on, spins not normalized, prefactors unchanged.
func (c Convention) Internal() Convention {
	c.MultipleCounting = true
	c.SpinNormalized = false
	return c
}

func (c Convention) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "multiple counting %t, spin normalized %t", c.MultipleCounting, c.SpinNormalized)
	for o := range numOrders {
		if c.defined[o] {
			fmt.Fprintf(&b, ", c%s=%g", o, c.c[o])
		}
	}
	return b.String()
}

var predefinedConventions = map[string]Convention{
	"tb2j":    NewConvention(true, true).With(Order21, -1).With(Order22, -1),
	"grogu":   NewConvention(true, true).With(Order21, 1).With(Order22, 0.5),
	"vampire": NewConvention(true, true).With(Order21, -1).With(Order22, -0.5),
	"spinw":   NewConvention(true, false).With(Order21, 1).With(Order22, 1),
}

// GetConvention returns one of the conventions used by common codes:
// tb2j, grogu, vampire and spinw. The name is case-insensitive.
func GetConvention(name string) (Convention, error) {
	c, ok := predefinedConventions[strings.ToLower(name)]
	if !ok {
		return Convention{}, errors.Errorf("unsupported convention %q", name)
	}
	return c, nil
}
