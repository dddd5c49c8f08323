package train

import (
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/model"
)

// Metrics are token-level accuracies over an annotated dataset.
type Metrics struct {
	TagAccuracy   float64
	LemmaAccuracy float64
}

// Accuracy computes token-level accuracy between predicted and gold
// sentences. Sentences are compared position by position up to the shorter
// length; length mismatches count the missing positions as wrong.
func Accuracy(pred, gold data.Sentences) float64 {
	correct, total := 0, 0
	for i, goldSent := range gold {
		total += len(goldSent)
		if i >= len(pred) {
			continue
		}
		for j, sym := range goldSent {
			if j < len(pred[i]) && pred[i][j] == sym {
				correct++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// Evaluate runs inference over ds and scores every decoder against its gold
// annotations.
func Evaluate(m *model.Tagger, ds data.Dataset, batchSize int) Metrics {
	var predTags, predLemmas, goldTags, goldLemmas data.Sentences
	for _, batch := range ds.Batches(batchSize) {
		goldTags = append(goldTags, batch.FullTags...)
		goldLemmas = append(goldLemmas, batch.Lemmas...)

		// Inference: targets stripped so decoding runs free.
		infer := data.NewBatch(batch.Tokens, nil, nil)
		logits, _ := m.Forward(infer, false)

		if dec := m.Decoder(model.ModuleTagger); dec != nil {
			predTags = append(predTags, dec.Postprocess(logits[model.ModuleTagger], infer.Lengths)...)
		}
		if dec := m.Decoder(model.ModuleLemmatizer); dec != nil {
			predLemmas = append(predLemmas, dec.Postprocess(logits[model.ModuleLemmatizer], infer.Lengths)...)
		}
	}

	var out Metrics
	if goldTags != nil {
		out.TagAccuracy = Accuracy(predTags, goldTags)
	}
	if goldLemmas != nil {
		out.LemmaAccuracy = Accuracy(predLemmas, goldLemmas)
	}
	return out
}

// Tag runs inference over unannotated sentences and returns the predicted
// tags and lemmas, one slice per active decoder (nil when inactive).
func Tag(m *model.Tagger, sents data.Sentences, batchSize int) (tags, lemmas data.Sentences) {
	ds := data.Dataset{Tokens: sents}
	for _, batch := range ds.Batches(batchSize) {
		logits, _ := m.Forward(batch, false)
		if dec := m.Decoder(model.ModuleTagger); dec != nil {
			tags = append(tags, dec.Postprocess(logits[model.ModuleTagger], batch.Lengths)...)
		}
		if dec := m.Decoder(model.ModuleLemmatizer); dec != nil {
			lemmas = append(lemmas, dec.Postprocess(logits[model.ModuleLemmatizer], batch.Lengths)...)
		}
	}
	return tags, lemmas
}
