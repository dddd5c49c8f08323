package model

import (
	"math/rand/v2"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/nn"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// CharEmbedding represents a token by its character shape: characters are
// embedded, run through a bidirectional recurrent layer, and the final
// forward+backward hidden state becomes the token's feature vector. This
// gives out-of-vocabulary tokens a usable representation.
type CharEmbedding struct {
	vm          *vocab.Map
	chars       *nn.Matrix
	rnn         *nn.BiLSTM
	toRecurrent bool
}

// NewCharEmbedding creates a character-as-word embedding with the given
// character embedding dimension and recurrent hidden size.
func NewCharEmbedding(vm *vocab.Map, charDim, hiddenDim, layers int, toRecurrent bool, rng *rand.Rand) *CharEmbedding {
	return &CharEmbedding{
		vm:          vm,
		chars:       nn.NewEmbedding(vm.Len(), charDim, rng),
		rnn:         nn.NewBiLSTM(charDim, hiddenDim, layers, rng),
		toRecurrent: toRecurrent,
	}
}

// Preprocess maps every (sentence, token) slot to a padded character-index
// row, batchSize*maxLen rows in total.
func (e *CharEmbedding) Preprocess(sents data.Sentences) [][]int {
	maxLen := 0
	for _, sent := range sents {
		if len(sent) > maxLen {
			maxLen = len(sent)
		}
	}
	return data.CharIndices(sents, e.vm, maxLen, false)
}

// Embed runs the character recurrence per token and reshapes the flat rows
// back to (batch, maxLen, 2*hidden).
func (e *CharEmbedding) Embed(indices [][]int, lengths []int, training bool) [][][]*autograd.Value {
	if len(lengths) == 0 || len(indices)%len(lengths) != 0 {
		panic("model: character rows do not divide into batch")
	}
	maxLen := len(indices) / len(lengths)

	features := make([][]*autograd.Value, len(indices))
	for r, row := range indices {
		charLen := 0
		for _, idx := range row {
			if idx == vocab.PadID {
				break
			}
			charLen++
		}
		if charLen == 0 {
			// Padding token slot.
			features[r] = nn.Zeros(e.rnn.OutputDim())
			continue
		}
		seq := make([][]*autograd.Value, charLen)
		for t := 0; t < charLen; t++ {
			seq[t] = e.chars.Row(row[t])
		}
		features[r] = e.rnn.FinalHidden(seq, charLen)
	}

	out := make([][][]*autograd.Value, len(lengths))
	for i := range lengths {
		out[i] = features[i*maxLen : (i+1)*maxLen]
	}
	return out
}

// OutputDim returns twice the recurrent hidden size.
func (e *CharEmbedding) OutputDim() int { return e.rnn.OutputDim() }

// ToRecurrent reports whether the output feeds the shared recurrent layer.
func (e *CharEmbedding) ToRecurrent() bool { return e.toRecurrent }

// Params returns the trainable values.
func (e *CharEmbedding) Params() []*autograd.Value {
	return append(e.chars.Params(), e.rnn.Params()...)
}
