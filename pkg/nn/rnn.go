package nn

import (
	"math/rand/v2"

	"github.com/kristjanb/postagger-go/pkg/autograd"
)

// gateWeights holds the input and recurrent weights plus bias for one gate.
// Biases are initialized to zero, weights bounded-uniform.
type gateWeights struct {
	Wx *Matrix // (hidden, input)
	Wh *Matrix // (hidden, hidden)
	B  []*autograd.Value
}

func newGate(inputDim, hiddenDim int, rng *rand.Rand) gateWeights {
	return gateWeights{
		Wx: NewXavier(hiddenDim, inputDim, rng),
		Wh: NewXavier(hiddenDim, hiddenDim, rng),
		B:  Zeros(hiddenDim),
	}
}

// preact computes Wx @ x + Wh @ h + b for every unit of the gate.
func (g *gateWeights) preact(x, h []*autograd.Value) []*autograd.Value {
	out := make([]*autograd.Value, g.Wx.Rows)
	for i := 0; i < g.Wx.Rows; i++ {
		out[i] = autograd.DotProduct(g.Wx.Row(i), x).
			Add(autograd.DotProduct(g.Wh.Row(i), h)).
			Add(g.B[i])
	}
	return out
}

func (g *gateWeights) params() []*autograd.Value {
	out := make([]*autograd.Value, 0, len(g.Wx.Data)+len(g.Wh.Data)+len(g.B))
	out = append(out, g.Wx.Data...)
	out = append(out, g.Wh.Data...)
	out = append(out, g.B...)
	return out
}

// LSTMCell is a single-direction LSTM step function.
type LSTMCell struct {
	HiddenDim                   int
	input, forget, output, cand gateWeights
}

// NewLSTMCell creates an LSTM cell with zero biases and Xavier weights.
func NewLSTMCell(inputDim, hiddenDim int, rng *rand.Rand) *LSTMCell {
	return &LSTMCell{
		HiddenDim: hiddenDim,
		input:     newGate(inputDim, hiddenDim, rng),
		forget:    newGate(inputDim, hiddenDim, rng),
		output:    newGate(inputDim, hiddenDim, rng),
		cand:      newGate(inputDim, hiddenDim, rng),
	}
}

// Step advances the cell one timestep, returning the new hidden and cell state.
func (c *LSTMCell) Step(x, h, cell []*autograd.Value) (hNew, cellNew []*autograd.Value) {
	iPre := c.input.preact(x, h)
	fPre := c.forget.preact(x, h)
	oPre := c.output.preact(x, h)
	gPre := c.cand.preact(x, h)

	hNew = make([]*autograd.Value, c.HiddenDim)
	cellNew = make([]*autograd.Value, c.HiddenDim)
	for j := 0; j < c.HiddenDim; j++ {
		i := iPre[j].Sigmoid()
		f := fPre[j].Sigmoid()
		o := oPre[j].Sigmoid()
		g := gPre[j].Tanh()
		cellNew[j] = f.Mul(cell[j]).Add(i.Mul(g))
		hNew[j] = o.Mul(cellNew[j].Tanh())
	}
	return hNew, cellNew
}

// Params returns the trainable values of the cell.
func (c *LSTMCell) Params() []*autograd.Value {
	var out []*autograd.Value
	out = append(out, c.input.params()...)
	out = append(out, c.forget.params()...)
	out = append(out, c.output.params()...)
	out = append(out, c.cand.params()...)
	return out
}

// GRUCell is a single-direction GRU step function.
type GRUCell struct {
	HiddenDim           int
	update, reset, cand gateWeights
}

// NewGRUCell creates a GRU cell with zero biases and Xavier weights.
func NewGRUCell(inputDim, hiddenDim int, rng *rand.Rand) *GRUCell {
	return &GRUCell{
		HiddenDim: hiddenDim,
		update:    newGate(inputDim, hiddenDim, rng),
		reset:     newGate(inputDim, hiddenDim, rng),
		cand:      newGate(inputDim, hiddenDim, rng),
	}
}

// Step advances the cell one timestep, returning the new hidden state.
func (c *GRUCell) Step(x, h []*autograd.Value) []*autograd.Value {
	zPre := c.update.preact(x, h)
	rPre := c.reset.preact(x, h)

	r := make([]*autograd.Value, c.HiddenDim)
	for j := range r {
		r[j] = rPre[j].Sigmoid()
	}

	// Candidate uses the reset-gated hidden state.
	gated := make([]*autograd.Value, c.HiddenDim)
	for j := range gated {
		gated[j] = r[j].Mul(h[j])
	}
	nPre := c.cand.preact(x, gated)

	hNew := make([]*autograd.Value, c.HiddenDim)
	one := autograd.Scalar(1)
	for j := 0; j < c.HiddenDim; j++ {
		z := zPre[j].Sigmoid()
		n := nPre[j].Tanh()
		hNew[j] = one.Sub(z).Mul(n).Add(z.Mul(h[j]))
	}
	return hNew
}

// Params returns the trainable values of the cell.
func (c *GRUCell) Params() []*autograd.Value {
	var out []*autograd.Value
	out = append(out, c.update.params()...)
	out = append(out, c.reset.params()...)
	out = append(out, c.cand.params()...)
	return out
}

// BiLSTM runs stacked forward and backward LSTM passes over a sequence.
// Its per-timestep output is the concatenation of both directions (2*hidden).
type BiLSTM struct {
	HiddenDim int
	fwd, bwd  []*LSTMCell
}

// NewBiLSTM creates numLayers stacked bidirectional layers. Layers past the
// first consume the previous layer's 2*hidden output.
func NewBiLSTM(inputDim, hiddenDim, numLayers int, rng *rand.Rand) *BiLSTM {
	b := &BiLSTM{HiddenDim: hiddenDim}
	dim := inputDim
	for l := 0; l < numLayers; l++ {
		b.fwd = append(b.fwd, NewLSTMCell(dim, hiddenDim, rng))
		b.bwd = append(b.bwd, NewLSTMCell(dim, hiddenDim, rng))
		dim = 2 * hiddenDim
	}
	return b
}

// OutputDim returns the per-timestep output dimension.
func (b *BiLSTM) OutputDim() int {
	return 2 * b.HiddenDim
}

// Forward runs the stack over the first `length` timesteps of seq. Timesteps
// beyond length are padding: they are skipped by the recurrence and their
// outputs are zero vectors, so padded positions never leak into real ones.
func (b *BiLSTM) Forward(seq [][]*autograd.Value, length int) [][]*autograd.Value {
	if length > len(seq) {
		panic("nn: sequence length exceeds number of timesteps")
	}
	current := seq
	var out [][]*autograd.Value
	for l := range b.fwd {
		fh := b.runDirection(b.fwd[l], current, length, false)
		bh := b.runDirection(b.bwd[l], current, length, true)

		out = make([][]*autograd.Value, len(seq))
		for t := 0; t < length; t++ {
			out[t] = Concat(fh[t], bh[t])
		}
		for t := length; t < len(seq); t++ {
			out[t] = Zeros(2 * b.HiddenDim)
		}
		current = out
	}
	return out
}

// FinalHidden returns the final hidden state of both directions concatenated:
// the forward state after the last real timestep and the backward state after
// processing back to the first.
func (b *BiLSTM) FinalHidden(seq [][]*autograd.Value, length int) []*autograd.Value {
	out := b.Forward(seq, length)
	if length == 0 {
		return Zeros(2 * b.HiddenDim)
	}
	fwdFinal := out[length-1][:b.HiddenDim]
	bwdFinal := out[0][b.HiddenDim:]
	return Concat(fwdFinal, bwdFinal)
}

func (b *BiLSTM) runDirection(cell *LSTMCell, seq [][]*autograd.Value, length int, reverse bool) [][]*autograd.Value {
	h := Zeros(cell.HiddenDim)
	c := Zeros(cell.HiddenDim)
	out := make([][]*autograd.Value, length)
	for i := 0; i < length; i++ {
		t := i
		if reverse {
			t = length - 1 - i
		}
		h, c = cell.Step(seq[t], h, c)
		out[t] = h
	}
	return out
}

// Params returns the trainable values of every direction and layer.
func (b *BiLSTM) Params() []*autograd.Value {
	var out []*autograd.Value
	for l := range b.fwd {
		out = append(out, b.fwd[l].Params()...)
		out = append(out, b.bwd[l].Params()...)
	}
	return out
}
