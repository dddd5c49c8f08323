package data

// Sentence is an ordered sequence of string tokens (or characters in the
// character sub-model).
type Sentence []string

// Sentences is an ordered sequence of sentences.
type Sentences []Sentence

// Batch carries one mini-batch through a forward pass. Tokens and Lengths
// are always present; Lemmas and FullTags only when gold annotations exist.
// TargetTags and TargetLemmas are derived index tensors added by the
// decoders' AddTargets step, which returns an augmented copy rather than
// mutating the batch in place.
type Batch struct {
	Tokens   Sentences
	Lengths  []int
	Lemmas   Sentences
	FullTags Sentences

	// TargetTags is (batch, maxLen) tag indices, pad 0.
	TargetTags [][]int
	// TargetLemmas is (batch*maxLen, maxTargetLen) character indices with a
	// trailing EOS per lemma, pad 0.
	TargetLemmas [][]int
}

// NewBatch builds a batch from parallel token/tag/lemma sentences.
// tags and lemmas may be nil for inference batches.
func NewBatch(tokens, tags, lemmas Sentences) Batch {
	lengths := make([]int, len(tokens))
	for i, sent := range tokens {
		lengths[i] = len(sent)
	}
	return Batch{
		Tokens:   tokens,
		Lengths:  lengths,
		FullTags: tags,
		Lemmas:   lemmas,
	}
}

// Size returns the number of sentences in the batch.
func (b Batch) Size() int {
	return len(b.Tokens)
}

// MaxLen returns the longest sentence length in the batch.
func (b Batch) MaxLen() int {
	max := 0
	for _, l := range b.Lengths {
		if l > max {
			max = l
		}
	}
	return max
}
