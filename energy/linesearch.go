package energy

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Strong Wolfe constants for sufficient decrease and curvature.
	wolfeC1 = 1e-4
	wolfeC2 = 0.9

	alphaMax                = 2.0
	maxLineSearchIterations = 10000
	// maxZoomTrials is the number of consecutive trials without a new lowest
	// energy after which zoom gives up.
	maxZoomTrials = 10

	// Machine precision.
	epsilon = 0x1p-52
)

// ErrLineSearch is returned when the line search exceeds its iteration cap.
var ErrLineSearch = errors.New("line search did not converge")

// lineSearch finds a step minimizing phi, whose derivative is der.
type lineSearch struct {
	phi  func(alpha float64) float64
	der  func(alpha float64) float64
	phi0 float64
	der0 float64
}

// newLineSearch searches along a direction on the manifold of unit
// directions. Trial points are reached by rotating every direction, the
// rotation vector of site i being alpha times components 3i..3i+2 of search.
// phi is the energy and der is torque · search.
func newLineSearch(e *Energy, reference []r3.Vec, search []float64, phi0, der0 float64) *lineSearch {
	return &lineSearch{
		phi: func(alpha float64) float64 {
			return e.e0(rotate(reference, search, alpha), false)
		},
		der: func(alpha float64) float64 {
			torque := e.torque(rotate(reference, search, alpha), false)
			return floats.Dot(flatten(torque), search)
		},
		phi0: phi0,
		der0: der0,
	}
}

// run returns a step satisfying the strong Wolfe conditions.
//
// See Algorithm 3.5, Numerical Optimization, Jorge Nocedal and Stephen J. Wright.
func (ls *lineSearch) run() (float64, error) {
	phi1, der1 := ls.phi(1), ls.der(1)
	if phi1 <= ls.phi0+wolfeC1*ls.der0 && math.Abs(der1) <= wolfeC2*math.Abs(ls.der0) {
		return 1, nil
	}

	alphaPrev, phiPrev := 0.0, ls.phi0
	phiMax, derMax := ls.phi(alphaMax), ls.der(alphaMax)
	alpha := cubicInterpolation(alphaPrev, alphaMax, phiPrev, phiMax, ls.der0, derMax)
	for i := 1; i < maxLineSearchIterations; i++ {
		phi := ls.phi(alpha)
		if phi > ls.phi0+wolfeC1*alpha*ls.der0 || (i > 1 && phi >= phiPrev) {
			return ls.zoom(alphaPrev, alpha), nil
		}

		der := ls.der(alpha)
		if math.Abs(der) <= -wolfeC2*ls.der0 {
			return alpha, nil
		}
		if der >= 0 {
			return ls.zoom(alpha, alphaPrev), nil
		}

		next := cubicInterpolation(alpha, alphaMax, phi, phiMax, der, derMax)
		alphaPrev, phiPrev = alpha, phi
		alpha = next
	}
	return math.NaN(), errors.Wrapf(ErrLineSearch, "%d iterations", maxLineSearchIterations)
}

// zoom narrows the bracket [lo, hi] down to a step satisfying the strong
// Wolfe conditions. lo is the end with the lower energy.
// If maxZoomTrials consecutive trials fail to lower the energy, the trial with
// the lowest energy is returned.
//
// See Algorithm 3.6, Numerical Optimization, Jorge Nocedal and Stephen J. Wright.
func (ls *lineSearch) zoom(lo, hi float64) float64 {
	phiLo, derLo := ls.phi(lo), ls.der(lo)
	phiHi, derHi := ls.phi(hi), ls.der(hi)

	var trials int
	var alphaMin, phiMin float64
	for first := true; ; first = false {
		alpha := cubicInterpolation(lo, hi, phiLo, phiHi, derLo, derHi)
		phi := ls.phi(alpha)

		switch {
		case first:
			alphaMin, phiMin = alpha, phi
		case phi < phiMin:
			alphaMin, phiMin = alpha, phi
			trials = 0
		}
		trials++
		if trials > maxZoomTrials {
			return alphaMin
		}

		der := ls.der(alpha)
		if phi > ls.phi0+wolfeC1*alpha*ls.der0 || phi >= phiLo {
			hi, phiHi, derHi = alpha, phi, der
			continue
		}
		if math.Abs(der) <= -wolfeC2*ls.der0 {
			return alpha
		}
		if der*(hi-lo) >= 0 {
			hi, phiHi, derHi = lo, phiLo, derLo
		}
		lo, phiLo, derLo = alpha, phi, der
	}
}

// cubicInterpolation returns the minimizer of the cubic matching the values
// and derivatives at the two ends of [alphaL, alphaH].
// When the cubic has no minimizer, the end with the lower value is returned.
func cubicInterpolation(alphaL, alphaH, phiL, phiH, derL, derH float64) float64 {
	if math.Abs(alphaL-alphaH) < epsilon {
		return alphaL
	}

	d1 := derL + derH - 3*(phiL-phiH)/(alphaL-alphaH)
	disc := d1*d1 - derL*derH
	if disc < 0 {
		if phiL <= phiH {
			return alphaL
		}
		return alphaH
	}

	d2 := math.Copysign(math.Sqrt(disc), alphaH-alphaL)
	return alphaH - (alphaH-alphaL)*(derH+d2-d1)/(derH-derL+2*d2)
}

// rotate rotates every direction by the rotation vector alpha*search[3i:3i+3]
// using the Rodrigues formula
//
//	d' = cos θ d + sin θ (r × d) + (1 - cos θ) r (r · d)
//
// which keeps unit directions on the unit sphere.
func rotate(directions []r3.Vec, search []float64, alpha float64) []r3.Vec {
	rotated := make([]r3.Vec, len(directions))
	for i, d := range directions {
		a := r3.Vec{X: alpha * search[3*i], Y: alpha * search[3*i+1], Z: alpha * search[3*i+2]}
		theta := r3.Norm(a)
		if theta < epsilon {
			rotated[i] = d
			continue
		}
		r := r3.Scale(1/theta, a)
		sin, cos := math.Sincos(theta)

		v := r3.Scale(cos, d)
		v = r3.Add(v, r3.Scale(sin, r3.Cross(r, d)))
		v = r3.Add(v, r3.Scale((1-cos)*r3.Dot(r, d), r))
		rotated[i] = v
	}
	return rotated
}

func flatten(vs []r3.Vec) []float64 {
	f := make([]float64, 0, 3*len(vs))
	for _, v := range vs {
		f = append(f, v.X, v.Y, v.Z)
	}
	return f
}
