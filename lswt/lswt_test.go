package lswt

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/spinham"
)

func TestEasyAxis(t *testing.T) {
	t.Parallel()
	h := easyAxis(t, 0.5, 0.3, 0.1)
	l, err := New(h, []r3.Vec{{Z: 1}})
	require.NoError(t, err)

	require.InDelta(t, -0.15, l.A1()[0], 1e-12)
	require.InDelta(t, -0.15, l.E2(), 1e-12)
	require.InDelta(t, 0, cmplx.Abs(l.O()[0]), 1e-12)

	tests := []struct {
		k        r3.Vec
		relative bool
	}{
		{k: r3.Vec{}},
		{k: r3.Vec{X: 0.5, Y: 0.25}, relative: true},
		{k: r3.Vec{X: 1, Y: 2, Z: 3}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.k, test.relative), func(t *testing.T) {
			t.Parallel()
			a, b := l.A(test.k, test.relative), l.B(test.k, test.relative)
			require.InDelta(t, 0, cmplx.Abs(a.At(0, 0)-0.125), 1e-12)
			require.InDelta(t, 0, cmplx.Abs(b.At(0, 0)+0.025), 1e-12)

			d := l.Diagonalize(test.k, test.relative)
			require.True(t, d.OK())
			want := 2 * 0.5 * 0.3 * math.Sqrt(1-0.1/0.3)
			require.InDelta(t, want, d.Omegas[0], 1e-10)
			require.InDelta(t, 0, d.Delta, 1e-10)
			r, c := d.GInv.Dims()
			require.Equal(t, [2]int{1, 2}, [2]int{r, c})
		})
	}
}

func TestAntiferroChain(t *testing.T) {
	t.Parallel()
	h := antiferroChain(t)
	l, err := New(h, []r3.Vec{{Z: 1}, {Z: -1}})
	require.NoError(t, err)
	require.InDelta(t, -4, l.E2(), 1e-12)
	for _, o := range l.O() {
		require.InDelta(t, 0, cmplx.Abs(o), 1e-12)
	}
	require.Equal(t, [][3]int{{-1, 0, 0}, {0, 0, 0}, {1, 0, 0}}, l.Nus())

	tests := []struct {
		k        r3.Vec
		relative bool
		omega    float64
	}{
		// The distance between neighbours is 1.
		{k: r3.Vec{X: math.Pi / 2}, omega: 4},
		{k: r3.Vec{X: math.Pi / 4}, omega: 4 * math.Sin(math.Pi/4)},
		{k: r3.Vec{X: 0.25}, relative: true, omega: 4 * math.Sin(math.Pi/4)},
		{k: r3.Vec{X: 0.1, Y: 0.3}, relative: true, omega: 4 * math.Sin(0.1*math.Pi)},
		{k: r3.Vec{X: -0.4, Z: 1}, relative: true, omega: 4 * math.Sin(0.4*math.Pi)},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.k, test.relative), func(t *testing.T) {
			t.Parallel()
			d := l.Diagonalize(test.k, test.relative)
			require.True(t, d.OK(), "%v", d)
			for _, omega := range d.Omegas {
				require.InDelta(t, test.omega, omega, 1e-9)
			}
			require.InDelta(t, 0, d.Delta, 1e-9)
		})
	}
}

func TestDiagonalizeFailed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		h          func(t *testing.T) *spinham.Hamiltonian
		directions []r3.Vec
		k          r3.Vec
	}{
		{
			// The intermediate axis is a saddle point of the energy.
			name:       "easy axis along x",
			h:          func(t *testing.T) *spinham.Hamiltonian { return easyAxis(t, 0.5, 0.3, 0.1) },
			directions: []r3.Vec{{X: 1}},
		},
		{
			name:       "larger spin",
			h:          func(t *testing.T) *spinham.Hamiltonian { return easyAxis(t, 1, 0.5, 0.2) },
			directions: []r3.Vec{{X: 1}},
			k:          r3.Vec{X: 0.3},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(test.h(t), test.directions)
			require.NoError(t, err)
			d := l.Diagonalize(test.k, false)
			require.False(t, d.OK())
			require.True(t, math.IsNaN(d.Delta))
			require.Len(t, d.Omegas, l.M())
			for _, omega := range d.Omegas {
				require.True(t, math.IsNaN(omega))
			}
			r, c := d.GInv.Dims()
			require.Equal(t, [2]int{l.M(), 2 * l.M()}, [2]int{r, c})
			for i := range r {
				for j := range c {
					require.True(t, cmplx.IsNaN(d.GInv.At(i, j)))
				}
			}
		})
	}
}

func TestDiagonalizeIdempotent(t *testing.T) {
	t.Parallel()
	l, err := New(antiferroChain(t), []r3.Vec{{Z: 1}, {Z: -1}})
	require.NoError(t, err)
	k := r3.Vec{X: 0.3, Y: 0.1}
	d1, d2 := l.Diagonalize(k, true), l.Diagonalize(k, true)
	require.Equal(t, d1.Omegas, d2.Omegas)
	require.Equal(t, d1.Delta, d2.Delta)
	require.True(t, mat.CEqual(d1.GInv, d2.GInv))

	require.Equal(t, d1.Omegas, l.Omega(k, true))
	require.Equal(t, d1.Delta, l.Delta(k, true))
	require.True(t, mat.CEqual(d1.GInv, l.GInv(k, true)))
}

func TestConventionInvariance(t *testing.T) {
	t.Parallel()
	tests := []struct {
		to spinham.Convention
	}{
		{to: allOrders(false, false, 1)},
		{to: allOrders(true, true, 1)},
		{to: allOrders(false, true, -2.5)},
		{to: allOrders(true, false, 0.3)},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%v", test.to), func(t *testing.T) {
			t.Parallel()
			rnd := rand.New(rand.NewPCG(uint64(i), 13))
			h := randHamiltonian(t, rnd, allOrders(true, false, 1))
			dirs := randDirections(rnd, h.M())
			k := r3.Vec{X: rnd.Float64(), Y: rnd.Float64(), Z: rnd.Float64()}

			before, err := New(h, dirs)
			require.NoError(t, err)
			require.NoError(t, h.SetConvention(test.to))
			after, err := New(h, dirs)
			require.NoError(t, err)

			require.InDelta(t, before.E2(), after.E2(), 1e-8*math.Abs(before.E2()))
			requireCEqual(t, before.GDM(k, true), after.GDM(k, true), 1e-8)
			for i, o := range before.O() {
				require.InDelta(t, 0, cmplx.Abs(o-after.O()[i]), 1e-8*max(1, cmplx.Abs(o)))
			}
		})
	}

	// Spectra of the same antiferromagnet written in two conventions.
	h := antiferroChain(t)
	l1, err := New(h, []r3.Vec{{Z: 1}, {Z: -1}})
	require.NoError(t, err)
	require.NoError(t, h.SetConvention(spinham.NewConvention(false, true).With(spinham.Order21, 2).With(spinham.Order22, 0.5)))
	l2, err := New(h, []r3.Vec{{Z: 1}, {Z: -1}})
	require.NoError(t, err)
	k := r3.Vec{X: 0.2}
	omega1, omega2 := l1.Omega(k, true), l2.Omega(k, true)
	for i := range omega1 {
		require.InDelta(t, omega1[i], omega2[i], 1e-8*omega1[i])
	}
}

func TestHermitian(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(21, 21))
	h := randHamiltonian(t, rnd, allOrders(true, false, 1))
	l, err := New(h, randDirections(rnd, h.M()))
	require.NoError(t, err)

	for range 5 {
		k := r3.Vec{X: rnd.NormFloat64(), Y: rnd.NormFloat64(), Z: rnd.NormFloat64()}
		for _, relative := range []bool{false, true} {
			a := l.A(k, relative)
			requireCEqual(t, a, hermitianConjugate(a), 1e-10)
			gdm := l.GDM(k, relative)
			requireCEqual(t, gdm, hermitianConjugate(gdm), 1e-10)
		}
	}

	// Every translation has its inverse.
	nus := l.Nus()
	for _, nu := range nus {
		require.Contains(t, nus, [3]int{-nu[0], -nu[1], -nu[2]})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	h := antiferroChain(t)
	tests := []struct {
		directions []r3.Vec
	}{
		{directions: []r3.Vec{{Z: 1}}},
		{directions: []r3.Vec{{Z: 1}, {}}},
		{directions: []r3.Vec{{Z: 1}, {Z: math.NaN()}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.directions), func(t *testing.T) {
			t.Parallel()
			if _, err := New(h, test.directions); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	nonmagnetic, err := spinham.New(spinham.CubicCell(1), spinham.Atoms{Spins: []float64{0}}, spinham.NewConvention(true, false))
	require.NoError(t, err)
	_, err = New(nonmagnetic, nil)
	require.Error(t, err)

	// The Hamiltonian is not touched.
	conv := h.Convention()
	_, err = New(h, []r3.Vec{{Z: 1}, {Z: -1}})
	require.NoError(t, err)
	require.Equal(t, conv, h.Convention())
}

func TestScan(t *testing.T) {
	t.Parallel()
	l, err := New(antiferroChain(t), []r3.Vec{{Z: 1}, {Z: -1}})
	require.NoError(t, err)
	ks := KPath([]r3.Vec{{X: 0.05}, {X: 0.45}, {X: 0.45, Y: 0.5}}, 7)

	ds, err := l.Scan(context.Background(), ks, NewScanOptions().Relative(true).Workers(3).Quiet(true))
	require.NoError(t, err)
	require.Len(t, ds, len(ks))
	for i, k := range ks {
		want := 4 * math.Sin(math.Pi*k.X)
		for _, omega := range ds[i].Omegas {
			require.InDelta(t, want, omega, 1e-9, "k %v", k)
		}
	}

	// Terahertz, with the same k points in absolute coordinates.
	abs := make([]r3.Vec, len(ks))
	for i, k := range ks {
		abs[i] = r3.Vec{X: math.Pi * k.X, Y: 2 * math.Pi * k.Y, Z: 2 * math.Pi * k.Z}
	}
	thz, err := l.Scan(context.Background(), abs, NewScanOptions().Units("THz").Quiet(true))
	require.NoError(t, err)
	f, err := spinham.FrequencyConversionFactor("meV", "THz")
	require.NoError(t, err)
	for i := range ks {
		for b, omega := range thz[i].Omegas {
			require.InDelta(t, f*ds[i].Omegas[b], omega, 1e-9, "k %v", ks[i])
		}
	}

	_, err = l.Scan(context.Background(), ks, NewScanOptions().Units("furlong").Quiet(true))
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Scan(ctx, ks, NewScanOptions().Quiet(true))
	require.True(t, errors.Is(err, context.Canceled), "%+v", err)
}

func TestKPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		points []r3.Vec
		n      int
		path   []r3.Vec
	}{
		{points: nil, n: 3, path: []r3.Vec{}},
		{points: []r3.Vec{{X: 1}}, n: 3, path: []r3.Vec{{X: 1}}},
		{points: []r3.Vec{{}, {X: 1}}, n: 2, path: []r3.Vec{{}, {X: 0.5}, {X: 1}}},
		{points: []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}}, n: 0, path: []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}}},
		{points: []r3.Vec{{}, {Z: 1}, {}}, n: 4, path: []r3.Vec{{}, {Z: 0.25}, {Z: 0.5}, {Z: 0.75}, {Z: 1}, {Z: 0.75}, {Z: 0.5}, {Z: 0.25}, {}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %d", test.points, test.n), func(t *testing.T) {
			t.Parallel()
			path := KPath(test.points, test.n)
			if len(path) != len(test.path) {
				t.Fatalf("%v, expected %v", path, test.path)
			}
			for i := range path {
				if r3.Norm(r3.Sub(path[i], test.path[i])) > 1e-12 {
					t.Fatalf("%v, expected %v", path, test.path)
				}
			}
		})
	}
}

func easyAxis(t *testing.T, s, a, b float64) *spinham.Hamiltonian {
	conv := spinham.NewConvention(true, false).With(spinham.Order21, -1)
	h, err := spinham.New(spinham.CubicCell(1), spinham.Atoms{Names: []string{"Fe"}, Spins: []float64{s}}, conv)
	require.NoError(t, err)
	require.NoError(t, h.Add21(0, [3][3]float64{{b, 0, 0}, {0, 0, 0}, {0, 0, a}}))
	return h
}

// antiferroChain has two spins of length 1 in a cell of length 2 along x,
// coupled by an isotropic exchange of 1.
func antiferroChain(t *testing.T) *spinham.Hamiltonian {
	conv := spinham.NewConvention(true, false).With(spinham.Order21, 1).With(spinham.Order22, 1)
	atoms := spinham.Atoms{Names: []string{"Mn1", "Mn2"}, Spins: []float64{1, 1}}
	h, err := spinham.New(spinham.Cell{{X: 2}, {Y: 1}, {Z: 1}}, atoms, conv)
	require.NoError(t, err)
	iso := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	require.NoError(t, h.Add22(0, 1, [3]int{}, iso))
	require.NoError(t, h.Add22(1, 0, [3]int{1, 0, 0}, iso))
	return h
}

func allOrders(mc, normalized bool, c float64) spinham.Convention {
	conv := spinham.NewConvention(mc, normalized)
	for _, o := range spinham.Orders() {
		conv = conv.With(o, c)
	}
	return conv
}

func randHamiltonian(t *testing.T, rnd *rand.Rand, conv spinham.Convention) *spinham.Hamiltonian {
	atoms := spinham.Atoms{Names: []string{"Fe", "O", "Ni"}, Spins: []float64{2.5, 0, 1.5}}
	h, err := spinham.New(spinham.CubicCell(1.5), atoms, conv)
	require.NoError(t, err)

	params := []struct {
		o     spinham.Order
		atoms []int
		nus   [][3]int
	}{
		{o: spinham.Order1, atoms: []int{2}},
		{o: spinham.Order21, atoms: []int{0}},
		{o: spinham.Order22, atoms: []int{0, 2}, nus: [][3]int{{1, 0, 0}}},
		{o: spinham.Order22, atoms: []int{2, 2}, nus: [][3]int{{0, 1, 0}}},
		{o: spinham.Order22, atoms: []int{1, 2}, nus: [][3]int{{0, 0, 0}}},
		{o: spinham.Order31, atoms: []int{0}},
		{o: spinham.Order32, atoms: []int{2, 0}, nus: [][3]int{{0, 0, 1}}},
		{o: spinham.Order33, atoms: []int{0, 2, 0}, nus: [][3]int{{1, 0, 0}, {0, -1, 0}}},
		{o: spinham.Order41, atoms: []int{2}},
		{o: spinham.Order421, atoms: []int{0, 2}, nus: [][3]int{{0, 0, 1}}},
		{o: spinham.Order422, atoms: []int{2, 0}, nus: [][3]int{{0, 1, 1}}},
		{o: spinham.Order43, atoms: []int{0, 2, 0}, nus: [][3]int{{1, 0, 0}, {0, 1, 0}}},
		{o: spinham.Order44, atoms: []int{0, 2, 2, 0}, nus: [][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
	}
	for _, p := range params {
		tensor := spinham.ZeroTensor(p.o.Rank())
		for i := range tensor.Data {
			tensor.Data[i] = 2*rnd.Float64() - 1
		}
		require.NoError(t, h.Set(p.o, p.atoms, p.nus, tensor))
	}
	return h
}

func randDirections(rnd *rand.Rand, n int) []r3.Vec {
	dirs := make([]r3.Vec, n)
	for i := range dirs {
		dirs[i] = r3.Unit(r3.Vec{X: rnd.NormFloat64(), Y: rnd.NormFloat64(), Z: rnd.NormFloat64()})
	}
	return dirs
}

func hermitianConjugate(a *mat.CDense) *mat.CDense {
	r, c := a.Dims()
	h := mat.NewCDense(c, r, nil)
	for i := range r {
		for j := range c {
			h.Set(j, i, cmplx.Conj(a.At(i, j)))
		}
	}
	return h
}

func requireCEqual(t *testing.T, a, b *mat.CDense, tol float64) {
	t.Helper()
	r, c := a.Dims()
	for i := range r {
		for j := range c {
			x, y := a.At(i, j), b.At(i, j)
			if cmplx.Abs(x-y) > tol*max(1, cmplx.Abs(x)) {
				t.Fatalf("%d %d: %v, expected %v", i, j, y, x)
			}
		}
	}
}

func TestMain(m *testing.M) {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
