package optim

import (
	"math"

	"github.com/kristjanb/postagger-go/pkg/autograd"
)

// SGD is plain stochastic gradient descent. It is the default optimizer for
// tagging runs; Adam is the alternative for faster early convergence.
type SGD struct {
	LR float64
}

// NewSGD creates an SGD optimizer.
func NewSGD(lr float64) *SGD {
	return &SGD{LR: lr}
}

// Step performs one update and zeroes the gradients.
func (opt *SGD) Step(params []*autograd.Value, lrDecay float64) {
	for _, p := range params {
		p.Data -= opt.LR * lrDecay * p.Grad
		p.Grad = 0
	}
}

// ClipGradNorm rescales gradients so their global L2 norm does not exceed
// maxNorm, and returns the norm before clipping. maxNorm <= 0 disables
// clipping.
func ClipGradNorm(params []*autograd.Value, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		total += p.Grad * p.Grad
	}
	norm := math.Sqrt(total)
	if maxNorm > 0 && norm > maxNorm {
		scale := maxNorm / norm
		for _, p := range params {
			p.Grad *= scale
		}
	}
	return norm
}

// MultiplicativeDecay returns the schedule factor gamma^epoch, with epoch
// counted from zero. Gamma outside (0, 1] means no decay.
func MultiplicativeDecay(gamma float64, epoch int) float64 {
	if gamma <= 0 || gamma > 1 {
		return 1
	}
	return math.Pow(gamma, float64(epoch))
}
