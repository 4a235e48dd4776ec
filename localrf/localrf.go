// Package localrf builds local reference frames around spin directions.
package localrf

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

const epsilon = 1e-8

// Frame is a right-handed orthonormal triple whose Z axis is the spin direction.
type Frame struct {
	X, Y, Z r3.Vec
}

// P returns the complex transverse vector X + iY.
func (f Frame) P() [3]complex128 {
	return [3]complex128{
		complex(f.X.X, f.Y.X),
		complex(f.X.Y, f.Y.Y),
		complex(f.X.Z, f.Y.Z),
	}
}

// Span returns the frame of every direction.
// The frame of +z is the global one. Otherwise the global x and y axes are
// rotated about z×d by the angle between z and d, so that z lands on d.
func Span(directions []r3.Vec) ([]Frame, error) {
	frames := make([]Frame, 0, len(directions))
	for i, d := range directions {
		f, err := span(d)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// SpanHybridized is Span with the transverse axes rotated by 45 degrees about Z.
func SpanHybridized(directions []r3.Vec) ([]Frame, error) {
	frames, err := Span(directions)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for i, f := range frames {
		frames[i].X = r3.Scale(1/math.Sqrt2, r3.Add(f.X, f.Y))
		frames[i].Y = r3.Scale(1/math.Sqrt2, r3.Sub(f.Y, f.X))
	}
	return frames, nil
}

func span(d r3.Vec) (Frame, error) {
	n := r3.Norm(d)
	if n < epsilon || math.IsNaN(n) {
		return Frame{}, errors.Errorf("direction %v has no orientation", d)
	}
	z := r3.Scale(1/n, d)

	ez := r3.Vec{Z: 1}
	axis := r3.Cross(ez, z)
	sin := r3.Norm(axis)
	switch {
	case sin < epsilon && z.Z > 0:
		return Frame{X: r3.Vec{X: 1}, Y: r3.Vec{Y: 1}, Z: z}, nil
	case sin < epsilon:
		return Frame{X: r3.Vec{Y: -1}, Y: r3.Vec{X: -1}, Z: z}, nil
	}

	angle := math.Atan2(sin, z.Z)
	axis = r3.Scale(1/sin, axis)
	x := r3.Rotate(r3.Vec{X: 1}, angle, axis)
	y := r3.Rotate(r3.Vec{Y: 1}, angle, axis)
	return Frame{X: x, Y: y, Z: z}, nil
}
