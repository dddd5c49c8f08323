package data

import (
	"math/rand/v2"
)

// Shuffle permutes the sentence order of a dataset in place, keeping the
// annotation columns aligned.
func (d Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(d.Len(), func(i, j int) {
		d.Tokens[i], d.Tokens[j] = d.Tokens[j], d.Tokens[i]
		if d.Tags != nil {
			d.Tags[i], d.Tags[j] = d.Tags[j], d.Tags[i]
		}
		if d.Lemmas != nil {
			d.Lemmas[i], d.Lemmas[j] = d.Lemmas[j], d.Lemmas[i]
		}
	})
}

// Batches splits the dataset into mini-batches of at most batchSize
// sentences, preserving order.
func (d Dataset) Batches(batchSize int) []Batch {
	if batchSize <= 0 {
		batchSize = 1
	}
	var out []Batch
	for start := 0; start < d.Len(); start += batchSize {
		end := start + batchSize
		if end > d.Len() {
			end = d.Len()
		}
		var tags, lemmas Sentences
		if d.Tags != nil {
			tags = d.Tags[start:end]
		}
		if d.Lemmas != nil {
			lemmas = d.Lemmas[start:end]
		}
		out = append(out, NewBatch(d.Tokens[start:end], tags, lemmas))
	}
	return out
}
