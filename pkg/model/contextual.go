package model

import (
	"fmt"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
)

// noPiece marks padding slots in piece-index rows. Piece id 0 can be a real
// entry of the wrapped tokenizer's vocabulary, so 0 cannot serve as pad here.
const noPiece = -1

// PieceTokenizer splits one original token into sub-word piece ids.
// The production implementation wraps a pretrained tokenizer; tests may
// substitute their own.
type PieceTokenizer interface {
	Pieces(token string) ([]int, error)
}

// sugarTokenizer adapts a pretrained sub-word tokenizer.
type sugarTokenizer struct {
	t *tk.Tokenizer
}

func (s sugarTokenizer) Pieces(token string) ([]int, error) {
	enc, err := s.t.EncodeSingle(token)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

// LoadPieceTokenizer loads a pretrained sub-word tokenizer from its saved
// definition file.
func LoadPieceTokenizer(path string) (PieceTokenizer, error) {
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer from %s: %w", path, err)
	}
	return sugarTokenizer{t: t}, nil
}

// ContextualEmbedding wraps a pretrained contextual representation: each
// original token is split into sub-word pieces and the piece vectors are
// mean-pooled back into one vector per original token. Splitting over-long
// sentences to fit the wrapped model (chunking/dechunking) stays external.
type ContextualEmbedding struct {
	tok         PieceTokenizer
	table       *mat.Dense
	dim         int
	toRecurrent bool
}

// NewContextualEmbedding wraps a piece tokenizer and its (pieces, dim)
// vector table.
func NewContextualEmbedding(tok PieceTokenizer, table *mat.Dense, toRecurrent bool) *ContextualEmbedding {
	_, dim := table.Dims()
	return &ContextualEmbedding{
		tok:         tok,
		table:       table,
		dim:         dim,
		toRecurrent: toRecurrent,
	}
}

// Preprocess maps every (sentence, token) slot to its padded piece-id row,
// batchSize*maxLen rows in total. Padding slots are all noPiece.
func (e *ContextualEmbedding) Preprocess(sents data.Sentences) [][]int {
	maxLen := 0
	for _, sent := range sents {
		if len(sent) > maxLen {
			maxLen = len(sent)
		}
	}

	pieces := make([][]int, len(sents)*maxLen)
	maxPieces := 1
	for i, sent := range sents {
		for j, token := range sent {
			ids, err := e.tok.Pieces(token)
			if err != nil || len(ids) == 0 {
				// An untokenizable token still needs a feature vector;
				// an empty piece row pools to zero.
				ids = nil
			}
			pieces[i*maxLen+j] = ids
			if len(ids) > maxPieces {
				maxPieces = len(ids)
			}
		}
	}

	out := make([][]int, len(pieces))
	for r, ids := range pieces {
		row := make([]int, maxPieces)
		for k := range row {
			if k < len(ids) {
				row[k] = ids[k]
			} else {
				row[k] = noPiece
			}
		}
		out[r] = row
	}
	return out
}

// Embed mean-pools the piece vectors of every token slot and reshapes to
// (batch, maxLen, dim). The wrapped representation is not fine-tuned, so the
// vectors enter the graph as constants.
func (e *ContextualEmbedding) Embed(indices [][]int, lengths []int, training bool) [][][]*autograd.Value {
	if len(lengths) == 0 || len(indices)%len(lengths) != 0 {
		panic("model: piece rows do not divide into batch")
	}
	maxLen := len(indices) / len(lengths)

	out := make([][][]*autograd.Value, len(lengths))
	for i := range lengths {
		out[i] = make([][]*autograd.Value, maxLen)
		for j := 0; j < maxLen; j++ {
			row := indices[i*maxLen+j]
			pooled := make([]float64, e.dim)
			count := 0
			for _, id := range row {
				if id == noPiece {
					continue
				}
				for k := 0; k < e.dim; k++ {
					pooled[k] += e.table.At(id, k)
				}
				count++
			}
			vec := make([]*autograd.Value, e.dim)
			for k := 0; k < e.dim; k++ {
				if count > 0 {
					vec[k] = autograd.NewValue(pooled[k] / float64(count))
				} else {
					vec[k] = autograd.NewValue(0)
				}
			}
			out[i][j] = vec
		}
	}
	return out
}

// OutputDim returns the wrapped representation's vector dimension.
func (e *ContextualEmbedding) OutputDim() int { return e.dim }

// ToRecurrent reports whether the output feeds the shared recurrent layer.
func (e *ContextualEmbedding) ToRecurrent() bool { return e.toRecurrent }

// Params returns nil: the wrapped representation is frozen.
func (e *ContextualEmbedding) Params() []*autograd.Value { return nil }
