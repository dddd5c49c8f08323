package model

import (
	"errors"
	"math/rand/v2"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/nn"
)

// ErrNoRecurrentLayer is returned when an embedding requests recurrent
// routing but the encoder has no recurrent layer configured.
var ErrNoRecurrentLayer = errors.New("embedding routes to recurrent layer but none is configured")

// NamedEmbedding pairs an embedding with its module name. The encoder
// concatenates features in slice order, which keeps the output layout
// deterministic.
type NamedEmbedding struct {
	Name string
	Embedding
}

// Encoder aggregates embedding outputs. Embeddings that route to the shared
// bidirectional recurrent layer are concatenated, run through it with true
// sentence lengths (padded timesteps are skipped and stay zero), passed
// through dropout, and finally concatenated with the pass-through embeddings.
type Encoder struct {
	embeddings []NamedEmbedding
	rnn        *nn.BiLSTM
	dropout    float64
	rng        *rand.Rand
	outputDim  int
}

// EncoderConfig sets the shared recurrent layer and regularization.
type EncoderConfig struct {
	HiddenDim int
	Layers    int
	Dropout   float64
}

// NewEncoder validates the embedding set against the recurrent configuration
// and precomputes the output dimension.
func NewEncoder(embeddings []NamedEmbedding, cfg EncoderConfig, rng *rand.Rand) (*Encoder, error) {
	recurrentIn := 0
	passThrough := 0
	for _, emb := range embeddings {
		if emb.ToRecurrent() {
			recurrentIn += emb.OutputDim()
		} else {
			passThrough += emb.OutputDim()
		}
	}

	useRecurrent := cfg.HiddenDim > 0 && cfg.Layers > 0
	if recurrentIn > 0 && !useRecurrent {
		return nil, ErrNoRecurrentLayer
	}

	e := &Encoder{
		embeddings: embeddings,
		dropout:    cfg.Dropout,
		rng:        rng,
		outputDim:  passThrough,
	}
	if recurrentIn > 0 {
		e.rnn = nn.NewBiLSTM(recurrentIn, cfg.HiddenDim, cfg.Layers, rng)
		e.outputDim += e.rnn.OutputDim()
	}
	return e, nil
}

// OutputDim returns the per-token feature dimension of the encoded output.
func (e *Encoder) OutputDim() int { return e.outputDim }

// Forward encodes a batch into a (batch, maxLen, OutputDim) tensor. Padded
// positions hold zeros; decoders must not read beyond the true lengths.
func (e *Encoder) Forward(batch data.Batch, training bool) [][][]*autograd.Value {
	if len(batch.Lengths) != batch.Size() {
		panic("model: lengths do not match batch size")
	}

	var recurrent, direct [][][][]*autograd.Value
	for _, emb := range e.embeddings {
		features := EmbedBatch(emb, batch.Tokens, batch.Lengths, training)
		if emb.ToRecurrent() {
			recurrent = append(recurrent, features)
		} else {
			direct = append(direct, features)
		}
	}

	maxLen := batch.MaxLen()
	out := make([][][]*autograd.Value, batch.Size())

	var recurrentOut [][][]*autograd.Value
	if e.rnn != nil && len(recurrent) > 0 {
		recurrentOut = make([][][]*autograd.Value, batch.Size())
		for i := 0; i < batch.Size(); i++ {
			seq := make([][]*autograd.Value, maxLen)
			for t := 0; t < maxLen; t++ {
				parts := make([][]*autograd.Value, len(recurrent))
				for k, features := range recurrent {
					parts[k] = features[i][t]
				}
				seq[t] = nn.Concat(parts...)
			}
			encoded := e.rnn.Forward(seq, batch.Lengths[i])
			for t := range encoded {
				encoded[t] = nn.Dropout(encoded[t], e.dropout, training, e.rng)
			}
			recurrentOut[i] = encoded
		}
	}

	for i := 0; i < batch.Size(); i++ {
		out[i] = make([][]*autograd.Value, maxLen)
		for t := 0; t < maxLen; t++ {
			parts := make([][]*autograd.Value, 0, len(direct)+1)
			for _, features := range direct {
				parts = append(parts, features[i][t])
			}
			if recurrentOut != nil {
				parts = append(parts, recurrentOut[i][t])
			}
			out[i][t] = nn.Concat(parts...)
		}
	}
	return out
}

// Params returns the trainable values of the embeddings and the shared
// recurrent layer.
func (e *Encoder) Params() []*autograd.Value {
	var out []*autograd.Value
	for _, emb := range e.embeddings {
		out = append(out, emb.Params()...)
	}
	if e.rnn != nil {
		out = append(out, e.rnn.Params()...)
	}
	return out
}
