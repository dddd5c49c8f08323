package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/nn"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// Decoder consumes the shared encoded tensor and produces task logits.
// AddTargets returns an augmented copy of the batch with this decoder's
// gold targets converted to index tensors; it never mutates its input.
// Postprocess maps logits back into human-readable symbol sequences.
type Decoder interface {
	Decode(encoded [][][]*autograd.Value, batch data.Batch, training bool) [][][]*autograd.Value
	AddTargets(batch data.Batch) data.Batch
	Postprocess(logits [][][]*autograd.Value, lengths []int) data.Sentences
	OutputDim() int
	// Weight scales this decoder's loss when decoders are trained jointly.
	Weight() float64
	Params() []*autograd.Value
}

// argmax returns the index of the largest logit.
func argmax(logits []*autograd.Value) int {
	xs := make([]float64, len(logits))
	for i, v := range logits {
		xs[i] = v.Data
	}
	return floats.MaxIdx(xs)
}

// TagDecoder is the classification head: one linear projection per token
// from the encoded features to the tag vocabulary.
type TagDecoder struct {
	vm     *vocab.Map
	linear *nn.Linear
	weight float64
}

// NewTagDecoder creates a tag classifier over vm with Xavier-initialized
// projection weights.
func NewTagDecoder(vm *vocab.Map, inputDim int, weight float64, rng *rand.Rand) *TagDecoder {
	return &TagDecoder{
		vm:     vm,
		linear: nn.NewLinear(inputDim, vm.Len(), rng),
		weight: weight,
	}
}

// Decode projects every token position to tag logits,
// shape (batch, maxLen, |tags|).
func (d *TagDecoder) Decode(encoded [][][]*autograd.Value, batch data.Batch, training bool) [][][]*autograd.Value {
	out := make([][][]*autograd.Value, len(encoded))
	for i, sent := range encoded {
		out[i] = make([][]*autograd.Value, len(sent))
		for t, features := range sent {
			out[i][t] = d.linear.Apply(features)
		}
	}
	return out
}

// AddTargets converts gold tags, when present, to index tensors under this
// decoder's vocabulary.
func (d *TagDecoder) AddTargets(batch data.Batch) data.Batch {
	if batch.FullTags != nil {
		batch.TargetTags = data.IndexTokens(batch.FullTags, d.vm)
	}
	return batch
}

// Postprocess takes the argmax per token, maps indices to tag symbols and
// truncates every sentence to its true length.
func (d *TagDecoder) Postprocess(logits [][][]*autograd.Value, lengths []int) data.Sentences {
	if len(logits) != len(lengths) {
		panic("model: logits do not match lengths")
	}
	out := make(data.Sentences, len(logits))
	for i, sent := range logits {
		tags := make(data.Sentence, 0, lengths[i])
		for t := 0; t < lengths[i]; t++ {
			tags = append(tags, d.vm.Symbol(argmax(sent[t])))
		}
		out[i] = tags
	}
	return out
}

// OutputDim returns the tag vocabulary size.
func (d *TagDecoder) OutputDim() int { return d.vm.Len() }

// Weight returns the loss weight.
func (d *TagDecoder) Weight() float64 { return d.weight }

// Params returns the trainable values.
func (d *TagDecoder) Params() []*autograd.Value { return d.linear.Params() }
