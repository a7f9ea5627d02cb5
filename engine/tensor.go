package engine

import (
	"fmt"
)

// Shape is the shape of an NHWC tensor.
type Shape struct {
	N int // batch
	H int // height
	W int // width
	C int // channels
}

// String returns a (N,H,W,C) representation of the shape.
func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s.N, s.H, s.W, s.C)
}

// Len returns the number of elements of a tensor of this shape.
func (s Shape) Len() int {
	return s.N * s.H * s.W * s.C
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	return s.N > 0 && s.H > 0 && s.W > 0 && s.C > 0
}

// SameSpatial reports whether two shapes share batch, height and width.
func (s Shape) SameSpatial(o Shape) bool {
	return s.N == o.N && s.H == o.H && s.W == o.W
}

// Tensor is a dense float32 tensor in NHWC layout.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// NewTensor returns a zero filled tensor of the specified shape.
func NewTensor(s Shape) *Tensor {
	return &Tensor{
		Shape: s,
		Data:  make([]float32, s.Len()),
	}
}

// Index returns the buffer position of (n, y, x, c).
func (t *Tensor) Index(n, y, x, c int) int {
	s := t.Shape
	return ((n*s.H+y)*s.W+x)*s.C + c
}

// At returns the value at (n, y, x, c).
func (t *Tensor) At(n, y, x, c int) float32 {
	return t.Data[t.Index(n, y, x, c)]
}

// Pixel returns the channel vector at (n, y, x).
func (t *Tensor) Pixel(n, y, x int) []float32 {
	i := t.Index(n, y, x, 0)
	return t.Data[i : i+t.Shape.C : i+t.Shape.C]
}

// Row returns the contiguous (W, C) slab at (n, y).
func (t *Tensor) Row(n, y int) []float32 {
	i := t.Index(n, y, 0, 0)
	l := t.Shape.W * t.Shape.C
	return t.Data[i : i+l : i+l]
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	ret := NewTensor(t.Shape)
	copy(ret.Data, t.Data)
	return ret
}
