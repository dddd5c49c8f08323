package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/autograd"
)

// Matrix stores a 2D parameter matrix as a contiguous 1D slice (row-major).
type Matrix struct {
	Data       []*autograd.Value
	Rows, Cols int

	// padRow marks row 0 as a padding row: it stays zero and is
	// excluded from Params so the optimizer never touches it.
	padRow bool
}

// NewZeros creates a matrix of zero-valued leaves.
func NewZeros(rows, cols int) *Matrix {
	data := make([]*autograd.Value, rows*cols)
	for i := range data {
		data[i] = autograd.NewValue(0)
	}
	return &Matrix{Data: data, Rows: rows, Cols: cols}
}

// xavierBound is the bounded-uniform (Glorot) limit for a rows x cols matrix.
func xavierBound(rows, cols int) float64 {
	return math.Sqrt(6.0 / float64(rows+cols))
}

// NewXavier creates a matrix with bounded-uniform initialized values.
func NewXavier(rows, cols int, rng *rand.Rand) *Matrix {
	bound := xavierBound(rows, cols)
	data := make([]*autograd.Value, rows*cols)
	for i := range data {
		data[i] = autograd.NewValue((rng.Float64()*2 - 1) * bound)
	}
	return &Matrix{Data: data, Rows: rows, Cols: cols}
}

// NewEmbedding creates a lookup table with Xavier-initialized rows,
// except row 0 (the padding index) which is kept at zero and frozen.
func NewEmbedding(rows, cols int, rng *rand.Rand) *Matrix {
	m := NewXavier(rows, cols, rng)
	for j := 0; j < cols; j++ {
		m.Data[j] = autograd.NewValue(0)
	}
	m.padRow = true
	return m
}

// FromDense imports a gonum matrix into a trainable Matrix.
func FromDense(d *mat.Dense) *Matrix {
	rows, cols := d.Dims()
	data := make([]*autograd.Value, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = autograd.NewValue(d.At(i, j))
		}
	}
	return &Matrix{Data: data, Rows: rows, Cols: cols}
}

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) *autograd.Value {
	return m.Data[row*m.Cols+col]
}

// Row returns a slice view of a row.
func (m *Matrix) Row(row int) []*autograd.Value {
	start := row * m.Cols
	return m.Data[start : start+m.Cols]
}

// Params returns the trainable values of the matrix.
func (m *Matrix) Params() []*autograd.Value {
	if m.padRow {
		return m.Data[m.Cols:]
	}
	return m.Data
}

// Zeros returns a vector of zero-valued leaves.
func Zeros(n int) []*autograd.Value {
	out := make([]*autograd.Value, n)
	for i := range out {
		out[i] = autograd.NewValue(0)
	}
	return out
}

// Concat concatenates feature vectors along the feature axis.
func Concat(vecs ...[]*autograd.Value) []*autograd.Value {
	total := 0
	for _, v := range vecs {
		total += len(v)
	}
	out := make([]*autograd.Value, 0, total)
	for _, v := range vecs {
		out = append(out, v...)
	}
	return out
}
