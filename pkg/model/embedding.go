package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/nn"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// Embedding converts raw token sequences into per-token feature tensors.
// Preprocess maps symbols to padded index rows; Embed turns those rows into
// features of shape (batch, maxLen, OutputDim). The set of implementations
// is closed: trainable word, pretrained word, character and contextual.
type Embedding interface {
	Preprocess(sents data.Sentences) [][]int
	Embed(indices [][]int, lengths []int, training bool) [][][]*autograd.Value
	OutputDim() int
	// ToRecurrent reports whether the output feeds the encoder's shared
	// recurrent layer instead of being concatenated directly.
	ToRecurrent() bool
	Params() []*autograd.Value
}

// EmbedBatch runs the generic forward pass for an embedding.
func EmbedBatch(e Embedding, sents data.Sentences, lengths []int, training bool) [][][]*autograd.Value {
	return e.Embed(e.Preprocess(sents), lengths, training)
}

// WordEmbedding is a trainable lookup table over a token vocabulary.
// Row 0 (PAD) stays zero; all other rows get bounded-uniform init.
type WordEmbedding struct {
	vm          *vocab.Map
	weights     *nn.Matrix
	toRecurrent bool
}

// NewWordEmbedding creates a trainable word embedding.
func NewWordEmbedding(vm *vocab.Map, dim int, toRecurrent bool, rng *rand.Rand) *WordEmbedding {
	return &WordEmbedding{
		vm:          vm,
		weights:     nn.NewEmbedding(vm.Len(), dim, rng),
		toRecurrent: toRecurrent,
	}
}

// Preprocess maps the sentence batch to padded token indices.
func (e *WordEmbedding) Preprocess(sents data.Sentences) [][]int {
	return data.IndexTokens(sents, e.vm)
}

// Embed looks up the embedding row for every index.
func (e *WordEmbedding) Embed(indices [][]int, lengths []int, training bool) [][][]*autograd.Value {
	checkBatchShape(indices, lengths)
	out := make([][][]*autograd.Value, len(indices))
	for i, row := range indices {
		out[i] = make([][]*autograd.Value, len(row))
		for j, idx := range row {
			out[i][j] = e.weights.Row(idx)
		}
	}
	return out
}

// OutputDim returns the embedding dimension.
func (e *WordEmbedding) OutputDim() int { return e.weights.Cols }

// ToRecurrent reports whether the output feeds the shared recurrent layer.
func (e *WordEmbedding) ToRecurrent() bool { return e.toRecurrent }

// Params returns the trainable values.
func (e *WordEmbedding) Params() []*autograd.Value { return e.weights.Params() }

// PretrainedEmbedding is a lookup table initialized from externally supplied
// vectors. Frozen tables stay outside the autograd graph entirely, so their
// weights are bit-identical across optimizer steps; unfrozen tables are
// fine-tuned like any other parameter.
type PretrainedEmbedding struct {
	vm          *vocab.Map
	frozen      bool
	table       *mat.Dense // frozen weights
	weights     *nn.Matrix // fine-tuned weights
	dim         int
	toRecurrent bool
}

// NewPretrainedEmbedding wraps a (vm.Len(), dim) vector table.
func NewPretrainedEmbedding(vm *vocab.Map, table *mat.Dense, frozen, toRecurrent bool) *PretrainedEmbedding {
	_, dim := table.Dims()
	e := &PretrainedEmbedding{
		vm:          vm,
		frozen:      frozen,
		dim:         dim,
		toRecurrent: toRecurrent,
	}
	if frozen {
		e.table = table
	} else {
		e.weights = nn.FromDense(table)
	}
	return e
}

// Preprocess maps the sentence batch to padded token indices.
func (e *PretrainedEmbedding) Preprocess(sents data.Sentences) [][]int {
	return data.IndexTokens(sents, e.vm)
}

// Embed looks up the vector for every index.
func (e *PretrainedEmbedding) Embed(indices [][]int, lengths []int, training bool) [][][]*autograd.Value {
	checkBatchShape(indices, lengths)
	out := make([][][]*autograd.Value, len(indices))
	for i, row := range indices {
		out[i] = make([][]*autograd.Value, len(row))
		for j, idx := range row {
			if e.frozen {
				vec := make([]*autograd.Value, e.dim)
				for k := 0; k < e.dim; k++ {
					vec[k] = autograd.NewValue(e.table.At(idx, k))
				}
				out[i][j] = vec
			} else {
				out[i][j] = e.weights.Row(idx)
			}
		}
	}
	return out
}

// OutputDim returns the vector dimension.
func (e *PretrainedEmbedding) OutputDim() int { return e.dim }

// ToRecurrent reports whether the output feeds the shared recurrent layer.
func (e *PretrainedEmbedding) ToRecurrent() bool { return e.toRecurrent }

// Frozen reports whether the table is excluded from training.
func (e *PretrainedEmbedding) Frozen() bool { return e.frozen }

// Params returns the trainable values; empty when frozen.
func (e *PretrainedEmbedding) Params() []*autograd.Value {
	if e.frozen {
		return nil
	}
	return e.weights.Params()
}

// Table returns the underlying weights as a dense matrix, for checkpointing.
func (e *PretrainedEmbedding) Table() *mat.Dense {
	if e.frozen {
		return e.table
	}
	d := mat.NewDense(e.weights.Rows, e.weights.Cols, nil)
	for i := 0; i < e.weights.Rows; i++ {
		for j := 0; j < e.weights.Cols; j++ {
			d.Set(i, j, e.weights.At(i, j).Data)
		}
	}
	return d
}

// checkBatchShape surfaces data-pipeline bugs immediately: the index tensor
// must have one row per length and no length may exceed the padded width.
func checkBatchShape(indices [][]int, lengths []int) {
	if len(indices) != len(lengths) {
		panic("model: batch size does not match lengths")
	}
	for i, row := range indices {
		if lengths[i] > len(row) {
			panic("model: sentence length exceeds padded width")
		}
	}
}
