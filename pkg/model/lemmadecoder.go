package model

import (
	"math/rand/v2"
	"strings"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/nn"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// defaultMaxGenerated caps inference-time lemma generation when no gold
// targets bound the number of character steps.
const defaultMaxGenerated = 32

// LemmaDecoder generates lemmas character by character. It is a
// context-augmented recurrent decoder: the token's full encoded context
// vector is fed into every timestep, not just the first, and the hidden
// state is initialized from that same context.
//
// At step 0 the input is the first character of the source token, so the
// generator always starts from a real character instead of a start symbol.
// At later steps, gold characters are fed with probability teacherForcing
// (when targets exist), otherwise the decoder's own previous argmax.
type LemmaDecoder struct {
	vm             *vocab.Map
	charEmb        *nn.Matrix
	gru            *nn.GRUCell
	out            *nn.Linear
	teacherForcing float64
	dropout        float64
	weight         float64
	maxGenerated   int
	rng            *rand.Rand
}

// LemmaDecoderConfig configures the character generator.
type LemmaDecoderConfig struct {
	CharDim        int     // character embedding dimension
	ContextDim     int     // encoder output dimension
	TeacherForcing float64 // probability of feeding the gold character
	Dropout        float64
	Weight         float64
	MaxGenerated   int // inference cap; 0 means the default
}

// NewLemmaDecoder creates a character generator over the character
// vocabulary vm.
func NewLemmaDecoder(vm *vocab.Map, cfg LemmaDecoderConfig, rng *rand.Rand) *LemmaDecoder {
	maxGen := cfg.MaxGenerated
	if maxGen <= 0 {
		maxGen = defaultMaxGenerated
	}
	return &LemmaDecoder{
		vm:             vm,
		charEmb:        nn.NewXavier(vm.Len(), cfg.CharDim, rng),
		gru:            nn.NewGRUCell(cfg.CharDim+cfg.ContextDim, cfg.ContextDim, rng),
		out:            nn.NewLinear(cfg.CharDim+2*cfg.ContextDim, vm.Len(), rng),
		teacherForcing: cfg.TeacherForcing,
		dropout:        cfg.Dropout,
		weight:         cfg.Weight,
		maxGenerated:   maxGen,
		rng:            rng,
	}
}

// AddTargets converts gold lemmas, when present, to character-index rows
// (one row per token slot, trailing EOS, no SOS).
func (d *LemmaDecoder) AddTargets(batch data.Batch) data.Batch {
	if batch.Lemmas != nil {
		batch.TargetLemmas = data.CharIndices(batch.Lemmas, d.vm, batch.MaxLen(), false)
	}
	return batch
}

// Decode runs the generation loop for every token slot. With targets it
// decodes exactly the target length; without targets it decodes until every
// real token slot has emitted EOS, capped at the configured maximum.
// The result has batchSize*maxLen rows of per-step character logits.
func (d *LemmaDecoder) Decode(encoded [][][]*autograd.Value, batch data.Batch, training bool) [][][]*autograd.Value {
	if len(encoded) == 0 {
		return nil
	}
	maxLen := len(encoded[0])
	rows := len(encoded) * maxLen

	// Flatten (batch, maxLen) to rows; the context doubles as the initial
	// hidden state.
	contexts := make([][]*autograd.Value, rows)
	hidden := make([][]*autograd.Value, rows)
	realTok := make([]bool, rows)
	for i, sent := range encoded {
		for t, features := range sent {
			r := i*maxLen + t
			contexts[r] = features
			hidden[r] = features
			realTok[r] = t < batch.Lengths[i]
		}
	}

	first := data.FirstChars(batch.Tokens, d.vm, maxLen)

	targetSteps := 0
	if batch.TargetLemmas != nil && len(batch.TargetLemmas) > 0 {
		targetSteps = len(batch.TargetLemmas[0])
	}

	logits := make([][][]*autograd.Value, rows)
	prev := make([]int, rows)
	done := make([]bool, rows)

	for step := 0; ; step++ {
		if targetSteps > 0 {
			if step >= targetSteps {
				break
			}
		} else if step >= d.maxGenerated || allEmitted(done, realTok) {
			break
		}

		// One coin flip per timestep for the whole batch.
		useGold := targetSteps > 0 && step > 0 && d.rng.Float64() < d.teacherForcing

		for r := 0; r < rows; r++ {
			var in int
			switch {
			case step == 0:
				in = first[r]
			case useGold:
				in = batch.TargetLemmas[r][step-1]
			default:
				in = prev[r]
			}

			emb := nn.Dropout(d.charEmb.Row(in), d.dropout, training, d.rng)
			gruIn := nn.Concat(emb, contexts[r])
			hidden[r] = d.gru.Step(gruIn, hidden[r])
			stepLogits := d.out.Apply(nn.Concat(gruIn, hidden[r]))

			logits[r] = append(logits[r], stepLogits)
			prev[r] = argmax(stepLogits)
			if prev[r] == vocab.EosID {
				done[r] = true
			}
		}
	}
	return logits
}

func allEmitted(done, realTok []bool) bool {
	for r := range done {
		if realTok[r] && !done[r] {
			return false
		}
	}
	return true
}

// Postprocess maps per-step character logits back to lemma strings: PAD,
// UNK and SOS indices are dropped, the sequence is cut at the first EOS
// (exclusive), and the remaining characters are joined. When EOS never
// occurs the filtered sequence is returned whole rather than failing.
func (d *LemmaDecoder) Postprocess(logits [][][]*autograd.Value, lengths []int) data.Sentences {
	if len(lengths) == 0 || len(logits)%len(lengths) != 0 {
		panic("model: lemma logits do not divide into batch")
	}
	maxLen := len(logits) / len(lengths)

	out := make(data.Sentences, len(lengths))
	for i, length := range lengths {
		lemmas := make(data.Sentence, 0, length)
		for t := 0; t < length; t++ {
			lemmas = append(lemmas, d.lemmaFromLogits(logits[i*maxLen+t]))
		}
		out[i] = lemmas
	}
	return out
}

func (d *LemmaDecoder) lemmaFromLogits(steps [][]*autograd.Value) string {
	var sb strings.Builder
	for _, stepLogits := range steps {
		idx := argmax(stepLogits)
		if idx == vocab.EosID {
			break
		}
		if idx == vocab.PadID || idx == vocab.UnkID || idx == vocab.SosID {
			continue
		}
		sb.WriteString(d.vm.Symbol(idx))
	}
	return sb.String()
}

// OutputDim returns the character vocabulary size.
func (d *LemmaDecoder) OutputDim() int { return d.vm.Len() }

// Weight returns the loss weight.
func (d *LemmaDecoder) Weight() float64 { return d.weight }

// Params returns the trainable values.
func (d *LemmaDecoder) Params() []*autograd.Value {
	out := append([]*autograd.Value{}, d.charEmb.Params()...)
	out = append(out, d.gru.Params()...)
	out = append(out, d.out.Params()...)
	return out
}
