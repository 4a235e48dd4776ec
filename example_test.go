package magnons_test

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/fumin/magnons"
	"github.com/fumin/magnons/energy"
	"github.com/fumin/magnons/lswt"
)

func ExampleCubicFerroNN() {
	h, err := magnons.CubicFerroNN(1, 1, 0.5, [3]float64{})
	if err != nil {
		log.Fatalf("%+v", err)
	}
	directions := []r3.Vec{{Z: 1}}

	e, err := energy.New(h)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	e0, err := e.E0(directions)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("E_0 %.4f\n", e0)

	l, err := lswt.New(h, directions)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("E_2 %.4f\n", l.E2())
	// The zone boundary along z.
	d := l.Diagonalize(r3.Vec{Z: 0.5}, true)
	fmt.Printf("omega %.4f\n", d.Omegas[0])

	// Output:
	// E_0 -1.5000
	// E_2 -3.0000
	// omega 4.0000
}

func ExampleEasyAxisFerromagnet() {
	h, err := magnons.EasyAxisFerromagnet(0.5, 0.3, 0.1)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	// Relax a tilted spin onto the easy axis.
	e, err := energy.New(h)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	sd, err := e.Optimize([]r3.Vec{{X: 1, Y: 0.2, Z: 0.5}}, energy.NewOptimizeOptions().Quiet(true))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	e0, err := e.E0(sd)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("|d_z| %.4f, E_0 %.4f\n", math.Abs(sd[0].Z), e0)

	l, err := lswt.New(h, sd)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("omega %.4f\n", l.Omega(r3.Vec{}, false)[0])

	// Output:
	// |d_z| 1.0000, E_0 -0.0750
	// omega 0.2449
}
