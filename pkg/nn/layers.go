package nn

import (
	"math/rand/v2"

	"github.com/kristjanb/postagger-go/pkg/autograd"
)

// Linear is a fully connected layer: y = W @ x + b.
type Linear struct {
	W *Matrix
	B []*autograd.Value
}

// NewLinear creates a linear layer with Xavier weights and zero bias.
func NewLinear(inDim, outDim int, rng *rand.Rand) *Linear {
	return &Linear{
		W: NewXavier(outDim, inDim, rng),
		B: Zeros(outDim),
	}
}

// Apply computes W @ x + b.
func (l *Linear) Apply(x []*autograd.Value) []*autograd.Value {
	out := make([]*autograd.Value, l.W.Rows)
	for i := 0; i < l.W.Rows; i++ {
		out[i] = autograd.DotProduct(l.W.Row(i), x).Add(l.B[i])
	}
	return out
}

// Params returns the trainable values of the layer.
func (l *Linear) Params() []*autograd.Value {
	out := make([]*autograd.Value, 0, len(l.W.Data)+len(l.B))
	out = append(out, l.W.Data...)
	out = append(out, l.B...)
	return out
}

// Softmax computes softmax with numerical stability using a fused operation.
func Softmax(logits []*autograd.Value) []*autograd.Value {
	return autograd.FusedSoftmax(logits)
}

// Dropout applies inverted dropout with probability p. Outside training
// (or with p = 0) the input passes through unchanged.
func Dropout(x []*autograd.Value, p float64, training bool, rng *rand.Rand) []*autograd.Value {
	if !training || p <= 0 {
		return x
	}
	scale := autograd.Scalar(1.0 / (1.0 - p))
	zero := autograd.Scalar(0)
	out := make([]*autograd.Value, len(x))
	for i, v := range x {
		if rng.Float64() < p {
			out[i] = v.Mul(zero)
		} else {
			out[i] = v.Mul(scale)
		}
	}
	return out
}
