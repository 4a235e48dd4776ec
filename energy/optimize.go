package energy

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// OptimizeOptions are the stopping criteria and output of Optimize.
type OptimizeOptions struct {
	energyTolerance float64
	torqueTolerance float64
	maxIterations   int
	quiet           bool
	output          io.Writer
}

// NewOptimizeOptions returns tolerances of 1e-5 for both the energy change and
// the torque, at most 10000 steps, with the progress table on stdout.
func NewOptimizeOptions() OptimizeOptions {
	return OptimizeOptions{
		energyTolerance: 1e-5,
		torqueTolerance: 1e-5,
		maxIterations:   10000,
		output:          os.Stdout,
	}
}

// EnergyTolerance bounds the energy change of the last step, in meV.
func (o OptimizeOptions) EnergyTolerance(tol float64) OptimizeOptions {
	o.energyTolerance = tol
	return o
}

// TorqueTolerance bounds the largest torque norm among the sites.
func (o OptimizeOptions) TorqueTolerance(tol float64) OptimizeOptions {
	o.torqueTolerance = tol
	return o
}

// MaxIterations is the number of steps after which Optimize gives up with an
// error.
func (o OptimizeOptions) MaxIterations(n int) OptimizeOptions {
	o.maxIterations = n
	return o
}

// Quiet suppresses the progress table.
func (o OptimizeOptions) Quiet(q bool) OptimizeOptions {
	o.quiet = q
	return o
}

// Output sets where the progress table is written.
func (o OptimizeOptions) Output(w io.Writer) OptimizeOptions {
	o.output = w
	return o
}

// Optimize minimizes the energy over the directions of the spins with BFGS,
// moving along geodesics of the unit sphere of every site.
// The gradient of the quasi-Newton method is the torque, and a step rotates
// every direction about the corresponding three components of the step.
// It stops once both the energy change and the largest torque norm are below
// their tolerances.
//
// A nil initialGuess starts from random directions, a single direction is
// used for every site.
func (e *Energy) Optimize(initialGuess []r3.Vec, options OptimizeOptions) ([]r3.Vec, error) {
	sd, err := e.initialDirections(initialGuess)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	progress := newProgressTable(options)
	progress.header()
	defer progress.footer()

	n := 3 * len(sd)
	hessInv := mat.NewDense(n, n, nil)
	for i := range n {
		hessInv.Set(i, i, 1)
	}
	energy := e.e0(sd, false)
	grad := flatten(e.torque(sd, false))

	searchVec := mat.NewVecDense(n, nil)
	first := true
	for step := 1; ; step++ {
		if step > options.maxIterations {
			return sd, errors.Errorf("not converged in %d steps", options.maxIterations)
		}

		searchVec.MulVec(hessInv, mat.NewVecDense(n, grad))
		search := make([]float64, n)
		floats.ScaleTo(search, -1, searchVec.RawVector().Data)

		ls := newLineSearch(e, sd, search, energy, floats.Dot(grad, search))
		alpha, err := ls.run()
		if err != nil {
			return sd, errors.Wrap(err, fmt.Sprintf("step %d", step))
		}

		s := make([]float64, n)
		floats.ScaleTo(s, alpha, search)
		sdNext := rotate(sd, search, alpha)
		energyNext := e.e0(sdNext, false)
		torqueNext := e.torque(sdNext, false)
		gradNext := flatten(torqueNext)

		deltaE := math.Abs(energyNext - energy)
		maxTorque := maxNorm(torqueNext)
		progress.row(step, energyNext, deltaE, maxTorque)
		if deltaE < options.energyTolerance && maxTorque < options.torqueTolerance {
			return sdNext, nil
		}

		y := make([]float64, n)
		floats.SubTo(y, gradNext, grad)
		ys := floats.Dot(y, s)
		if first {
			first = false
			hessInv.Scale(ys/floats.Dot(y, y), hessInv)
		}
		updateInverseHessian(hessInv, s, y, ys)

		sd, energy, grad = sdNext, energyNext, gradNext
	}
}

// updateInverseHessian applies the BFGS update
//
//	H <- (I - ρ s yᵀ) H (I - ρ y sᵀ) + ρ s sᵀ,  ρ = 1/(yᵀs).
//
// yᵀs is not guarded, a vanishing curvature yields non-finite entries.
func updateInverseHessian(h *mat.Dense, s, y []float64, ys float64) {
	n := len(s)
	rho := 1 / ys
	sv, yv := mat.NewVecDense(n, s), mat.NewVecDense(n, y)

	left := mat.NewDense(n, n, nil)
	left.Outer(-rho, sv, yv)
	for i := range n {
		left.Set(i, i, left.At(i, i)+1)
	}

	var tmp mat.Dense
	tmp.Mul(left, h)
	h.Mul(&tmp, left.T())

	var ss mat.Dense
	ss.Outer(rho, sv, sv)
	h.Add(h, &ss)
}

func (e *Energy) initialDirections(guess []r3.Vec) ([]r3.Vec, error) {
	m := len(e.spins)
	switch {
	case guess == nil:
		sd := make([]r3.Vec, m)
		for i := range sd {
			for r3.Norm(sd[i]) < epsilon {
				sd[i] = r3.Vec{X: 2*rand.Float64() - 1, Y: 2*rand.Float64() - 1, Z: 2*rand.Float64() - 1}
			}
		}
		return normalized(sd), nil
	case len(guess) == 1 && m > 1:
		sd := make([]r3.Vec, m)
		for i := range sd {
			sd[i] = guess[0]
		}
		guess = sd
	}
	if err := e.validate(guess); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return normalized(guess), nil
}

// progressTable prints one row per optimization step.
type progressTable struct {
	w       io.Writer
	nEnergy int
	nTorque int
}

func newProgressTable(options OptimizeOptions) *progressTable {
	if options.quiet || options.output == nil {
		return &progressTable{}
	}
	digits := func(tol float64) int {
		return max(-int(math.Log10(tol))+2, 6)
	}
	return &progressTable{w: options.output, nEnergy: digits(options.energyTolerance), nTorque: digits(options.torqueTolerance)}
}

func (p *progressTable) rule(sep string) string {
	return strings.Join([]string{
		strings.Repeat("─", 5),
		strings.Repeat("─", 13),
		strings.Repeat("─", 6+p.nEnergy),
		strings.Repeat("─", 6+p.nTorque),
	}, sep)
}

func (p *progressTable) header() {
	if p.w == nil {
		return
	}
	fmt.Fprintln(p.w, p.rule("┬"))
	fmt.Fprintf(p.w, "%-4s │ %-11s │ %-*s │ %-*s\n", "step", "E_0", p.nEnergy+4, "delta E_0", p.nTorque+4, "max torque")
	fmt.Fprintln(p.w, p.rule("┴"))
}

func (p *progressTable) row(step int, energy, deltaE, maxTorque float64) {
	if p.w == nil {
		return
	}
	fmt.Fprintf(p.w, "%-4d   %11.7f   %*.*f   %*.*f\n", step, energy, p.nEnergy+4, p.nEnergy, deltaE, p.nTorque+4, p.nTorque, maxTorque)
}

func (p *progressTable) footer() {
	if p.w == nil {
		return
	}
	fmt.Fprintln(p.w, strings.Repeat("─", 33+p.nEnergy+p.nTorque))
}
