package optim

import (
	"math"

	"github.com/kristjanb/postagger-go/pkg/autograd"
)

// Optimizer updates parameters in place from their accumulated gradients.
// lrDecay is an external schedule factor multiplied into the base rate.
type Optimizer interface {
	Step(params []*autograd.Value, lrDecay float64)
}

// Adam implements the Adam optimization algorithm with bias correction.
type Adam struct {
	LR      float64
	Beta1   float64
	Beta2   float64
	Epsilon float64

	m []float64 // first moment estimates
	v []float64 // second moment estimates
	t int
}

// NewAdam creates an Adam optimizer for numParams parameters.
func NewAdam(numParams int, lr, beta1, beta2, eps float64) *Adam {
	return &Adam{
		LR:      lr,
		Beta1:   beta1,
		Beta2:   beta2,
		Epsilon: eps,
		m:       make([]float64, numParams),
		v:       make([]float64, numParams),
	}
}

// Step performs one update and zeroes the gradients.
func (opt *Adam) Step(params []*autograd.Value, lrDecay float64) {
	opt.t++
	bc1 := 1 - math.Pow(opt.Beta1, float64(opt.t))
	bc2 := 1 - math.Pow(opt.Beta2, float64(opt.t))

	for i, p := range params {
		g := p.Grad
		opt.m[i] = opt.Beta1*opt.m[i] + (1-opt.Beta1)*g
		opt.v[i] = opt.Beta2*opt.v[i] + (1-opt.Beta2)*g*g

		mHat := opt.m[i] / bc1
		vHat := opt.v[i] / bc2

		p.Data -= opt.LR * lrDecay * mHat / (math.Sqrt(vHat) + opt.Epsilon)
		p.Grad = 0
	}
}

// Reset clears the optimizer state for a new training run.
func (opt *Adam) Reset() {
	for i := range opt.m {
		opt.m[i] = 0
		opt.v[i] = 0
	}
	opt.t = 0
}
