package spinham

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Tensor is a dense Cartesian tensor of the given rank, every axis of dimension 3.
// Data is stored in row-major order, the first axis being the slowest.
type Tensor struct {
	Rank int
	Data []float64
}

func ZeroTensor(rank int) Tensor {
	return Tensor{Rank: rank, Data: make([]float64, pow3(rank))}
}

func Vector(v [3]float64) Tensor {
	return Tensor{Rank: 1, Data: []float64{v[0], v[1], v[2]}}
}

func Matrix(m [3][3]float64) Tensor {
	t := ZeroTensor(2)
	for i := range 3 {
		for j := range 3 {
			t.Data[i*3+j] = m[i][j]
		}
	}
	return t
}

func Tensor3(m [3][3][3]float64) Tensor {
	t := ZeroTensor(3)
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				t.Data[(i*3+j)*3+k] = m[i][j][k]
			}
		}
	}
	return t
}

func Tensor4(m [3][3][3][3]float64) Tensor {
	t := ZeroTensor(4)
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				for l := range 3 {
					t.Data[((i*3+j)*3+k)*3+l] = m[i][j][k][l]
				}
			}
		}
	}
	return t
}

func (t Tensor) Clone() Tensor {
	return Tensor{Rank: t.Rank, Data: append([]float64(nil), t.Data...)}
}

// Scaled returns a copy of t multiplied by f.
func (t Tensor) Scaled(f float64) Tensor {
	u := t.Clone()
	floats.Scale(f, u.Data)
	return u
}

// AddScaled adds f*u to t in place.
func (t Tensor) AddScaled(f float64, u Tensor) {
	if t.Rank != u.Rank {
		panic(fmt.Sprintf("rank %d %d", t.Rank, u.Rank))
	}
	floats.AddScaled(t.Data, f, u.Data)
}

func (t Tensor) At(idx ...int) float64 {
	var flat int
	for _, i := range idx {
		flat = flat*3 + i
	}
	return t.Data[flat]
}

func (t Tensor) EqualApprox(u Tensor, tol float64) bool {
	if t.Rank != u.Rank {
		return false
	}
	return floats.EqualApprox(t.Data, u.Data, tol)
}

func (t Tensor) IsZero() bool {
	for _, v := range t.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Contract contracts every axis a of t with vecs[a].
func (t Tensor) Contract(vecs []r3.Vec) float64 {
	var sum float64
	idx := make([]int, t.Rank)
	for flat, v := range t.Data {
		unflatten(idx, flat)
		for a, i := range idx {
			v *= component(vecs[a], i)
		}
		sum += v
	}
	return sum
}

// ContractFree contracts every axis except p, leaving a vector.
func (t Tensor) ContractFree(vecs []r3.Vec, p int) r3.Vec {
	var out [3]float64
	idx := make([]int, t.Rank)
	for flat, v := range t.Data {
		if v == 0 {
			continue
		}
		unflatten(idx, flat)
		for a, i := range idx {
			if a == p {
				continue
			}
			v *= component(vecs[a], i)
		}
		out[idx[p]] += v
	}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}
}

// ContractFree2 contracts every axis except p and q. Row index of the result
// runs over axis p, column index over axis q.
func (t Tensor) ContractFree2(vecs []r3.Vec, p, q int) [3][3]float64 {
	var out [3][3]float64
	idx := make([]int, t.Rank)
	for flat, v := range t.Data {
		if v == 0 {
			continue
		}
		unflatten(idx, flat)
		for a, i := range idx {
			if a == p || a == q {
				continue
			}
			v *= component(vecs[a], i)
		}
		out[idx[p]][idx[q]] += v
	}
	return out
}

// permute returns the tensor whose axis a is axis oldAxisOf[a] of t.
func (t Tensor) permute(oldAxisOf []int) Tensor {
	u := ZeroTensor(t.Rank)
	idx := make([]int, t.Rank)
	oldIdx := make([]int, t.Rank)
	for flat := range u.Data {
		unflatten(idx, flat)
		for a, i := range idx {
			oldIdx[oldAxisOf[a]] = i
		}
		u.Data[flat] = t.At(oldIdx...)
	}
	return u
}

func (t Tensor) String() string {
	return fmt.Sprintf("%v", t.Data)
}

func unflatten(idx []int, flat int) {
	for a := len(idx) - 1; a >= 0; a-- {
		idx[a] = flat % 3
		flat /= 3
	}
}

func component(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func pow3(n int) int {
	return int(math.Pow(3, float64(n)))
}
