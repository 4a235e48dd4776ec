package magnons

import (
	"fmt"
	"log"
	"math"
	"os"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons/energy"
	"github.com/fumin/magnons/lswt"
)

func TestAntiferroChain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		j, s float64
	}{
		{j: 1, s: 1},
		{j: 0.5, s: 2.5},
		{j: 3, s: 0.5},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%+v", test), func(t *testing.T) {
			t.Parallel()
			h, err := AntiferroChain(test.j, test.s)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			e, err := energy.New(h)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			sd, err := e.Optimize([]r3.Vec{{X: 0.1, Z: 1}, {Y: 0.3, Z: -1}}, energy.NewOptimizeOptions().Quiet(true).EnergyTolerance(1e-10).TorqueTolerance(1e-8))
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if dot := r3.Dot(sd[0], sd[1]); math.Abs(dot+1) > 1e-6 {
				t.Fatalf("%v not antiparallel", sd)
			}

			l, err := lswt.New(h, sd)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			// 2 j_eff s |sin k| with j_eff = 2j counting both orders of a pair.
			for _, kx := range []float64{0.1, 0.25, 0.4} {
				omegas := l.Omega(r3.Vec{X: kx}, true)
				want := 4 * test.j * test.s * math.Sin(math.Pi*kx)
				for _, omega := range omegas {
					if math.Abs(omega-want) > 1e-5*want {
						t.Fatalf("k %f: %v, expected %f", kx, omegas, want)
					}
				}
			}
		})
	}
}

func TestCubicFerroNN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		anisotropy [3]float64
		direction  r3.Vec
		e0         float64
	}{
		{direction: r3.Vec{X: 1}, e0: -6 * 0.25},
		{anisotropy: [3]float64{0, 0, -1}, direction: r3.Vec{Z: 1}, e0: -6*0.25 - 0.25},
		{anisotropy: [3]float64{0, 0, -1}, direction: r3.Vec{Y: 1}, e0: -6 * 0.25},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.anisotropy, test.direction), func(t *testing.T) {
			t.Parallel()
			h, err := CubicFerroNN(1, 1, 0.5, test.anisotropy)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			e, err := energy.New(h)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			e0, err := e.E0([]r3.Vec{test.direction})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(e0-test.e0) > 1e-12 {
				t.Fatalf("%f, expected %f", e0, test.e0)
			}
		})
	}
}

func TestMain(m *testing.M) {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
