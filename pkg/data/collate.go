package data

import (
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// IndexTokens maps a sentence batch to a padded (batch, maxLen) index
// matrix, batch-first, pad value 0. Unknown symbols fall back to UNK.
func IndexTokens(sents Sentences, vm *vocab.Map) [][]int {
	maxLen := 0
	for _, sent := range sents {
		if len(sent) > maxLen {
			maxLen = len(sent)
		}
	}
	out := make([][]int, len(sents))
	for i, sent := range sents {
		row := make([]int, maxLen)
		for j, tok := range sent {
			row[j] = vm.Index(tok)
		}
		out[i] = row
	}
	return out
}

// CharIndices maps every (sentence, token) slot of a batch to a padded
// character-index sequence. The result has batchSize*maxLen rows so it can
// be reshaped back to sentences; rows for padding tokens are all PAD.
// Each real token is encoded as [SOS?] chars... EOS, padded to the longest
// encoded token in the batch.
func CharIndices(sents Sentences, vm *vocab.Map, maxLen int, addSOS bool) [][]int {
	encoded := make([][][]int, len(sents))
	maxChars := 0
	for i, sent := range sents {
		encoded[i] = make([][]int, len(sent))
		for j, tok := range sent {
			var idxs []int
			if addSOS {
				idxs = append(idxs, vocab.SosID)
			}
			for _, r := range tok {
				idxs = append(idxs, vm.Index(string(r)))
			}
			idxs = append(idxs, vocab.EosID)
			encoded[i][j] = idxs
			if len(idxs) > maxChars {
				maxChars = len(idxs)
			}
		}
	}

	out := make([][]int, len(sents)*maxLen)
	for i := range sents {
		for j := 0; j < maxLen; j++ {
			row := make([]int, maxChars)
			if j < len(encoded[i]) {
				copy(row, encoded[i][j])
			}
			out[i*maxLen+j] = row
		}
	}
	return out
}

// FirstChars returns the character index of the first character of every
// (sentence, token) slot, flattened to batchSize*maxLen. Padding slots get
// PAD. This feeds the first timestep of the character generator, which is
// conditioned on a real character rather than a start symbol.
func FirstChars(sents Sentences, vm *vocab.Map, maxLen int) []int {
	out := make([]int, len(sents)*maxLen)
	for i, sent := range sents {
		for j, tok := range sent {
			for _, r := range tok {
				out[i*maxLen+j] = vm.Index(string(r))
				break
			}
		}
	}
	return out
}
