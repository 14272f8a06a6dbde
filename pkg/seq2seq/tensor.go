package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a row-major slice of float64 values and a list of dimensions.
type Tensor struct {
	Data []float64
	Dims []int
}

// NewTensor creates a zeroed tensor with the given dimensions.
func NewTensor(dims ...int) Tensor {
	s := 1
	for _, d := range dims {
		if d < 0 {
			panic("negative tensor dimension")
		}
		s *= d
	}
	return Tensor{
		Data: make([]float64, s),
		Dims: dims,
	}
}

// Len returns the size of the leading (batch) dimension.
func (t Tensor) Len() int {
	if len(t.Dims) == 0 {
		return 0
	}
	return t.Dims[0]
}

// offset returns the flat index of idx.
func (t Tensor) offset(idx ...int) int {
	if len(idx) != len(t.Dims) {
		panic(fmt.Sprintf("tensor: got %d indices for %d dimensions", len(idx), len(t.Dims)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.Dims[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d of size %d", x, i, t.Dims[i]))
		}
		off = off*t.Dims[i] + x
	}
	return off
}

// At returns the value at idx.
func (t Tensor) At(idx ...int) float64 {
	return t.Data[t.offset(idx...)]
}

// Set stores v at idx.
func (t Tensor) Set(v float64, idx ...int) {
	t.Data[t.offset(idx...)] = v
}

// Matrix returns a (T, V) view of sample i of a (B, T, V) tensor. The view
// shares memory with t.
func (t Tensor) Matrix(i int) *mat.Dense {
	if len(t.Dims) != 3 {
		panic("tensor: Matrix requires a 3 dimensional tensor")
	}
	rows, cols := t.Dims[1], t.Dims[2]
	if i < 0 || i >= t.Dims[0] || rows == 0 || cols == 0 {
		panic(fmt.Sprintf("tensor: no matrix at %d for dims %v", i, t.Dims))
	}
	n := rows * cols
	return mat.NewDense(rows, cols, t.Data[i*n:(i+1)*n])
}

// argmaxRows returns, per row of m, the index of the largest value, or -1
// for an all-zero row.
func argmaxRows(m mat.Matrix) []int {
	rows, _ := m.Dims()
	ids := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := mat.Row(nil, r, m)
		if floats.Max(row) == 0 && floats.Min(row) == 0 {
			ids[r] = -1
			continue
		}
		ids[r] = floats.MaxIdx(row)
	}
	return ids
}
