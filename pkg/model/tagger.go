package model

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// Module names used for embeddings and decoders.
const (
	ModuleTrained    = "trained"
	ModulePretrained = "pretrained"
	ModuleChars      = "chars"
	ModuleContextual = "contextual"
	ModuleTagger     = "tagger"
	ModuleLemmatizer = "lemmatizer"
)

// NamedDecoder pairs a decoder with its module name.
type NamedDecoder struct {
	Name string
	Decoder
}

// Tagger is the composite model: one encoder and a set of named decoders.
// Decoders share nothing but the encoded tensor, which they treat as
// read-only; they can be trained jointly or independently.
type Tagger struct {
	Encoder  *Encoder
	Decoders []NamedDecoder
}

// NewTagger composes an encoder with decoders.
func NewTagger(encoder *Encoder, decoders []NamedDecoder) *Tagger {
	return &Tagger{Encoder: encoder, Decoders: decoders}
}

// Forward encodes the batch once and feeds the shared encoded tensor into
// every decoder. It returns the per-decoder logits and the batch augmented
// with every decoder's targets.
func (m *Tagger) Forward(batch data.Batch, training bool) (map[string][][][]*autograd.Value, data.Batch) {
	encoded := m.Encoder.Forward(batch, training)
	out := make(map[string][][][]*autograd.Value, len(m.Decoders))
	for _, dec := range m.Decoders {
		batch = dec.AddTargets(batch)
		out[dec.Name] = dec.Decode(encoded, batch, training)
	}
	return out, batch
}

// Decoder returns the named decoder, or nil.
func (m *Tagger) Decoder(name string) Decoder {
	for _, dec := range m.Decoders {
		if dec.Name == name {
			return dec.Decoder
		}
	}
	return nil
}

// Params returns every trainable value of the model, in a deterministic
// order: encoder first, then decoders in registration order.
func (m *Tagger) Params() []*autograd.Value {
	out := m.Encoder.Params()
	for _, dec := range m.Decoders {
		out = append(out, dec.Params()...)
	}
	return out
}

// ZeroGrads resets the gradients of every trainable value.
func (m *Tagger) ZeroGrads() {
	for _, p := range m.Params() {
		p.Grad = 0
	}
}

// Config declares the full architecture: which embeddings and decoders are
// active and their dimensions. Zero dimensions disable the module.
type Config struct {
	WordDim int `json:"wordDim"` // trainable word embedding; 0 disables

	CharDim       int `json:"charDim"` // character embedding; 0 disables
	CharHiddenDim int `json:"charHiddenDim"`
	CharLayers    int `json:"charLayers"`

	MainHiddenDim int     `json:"mainHiddenDim"` // shared recurrent layer; 0 disables
	MainLayers    int     `json:"mainLayers"`
	Dropout       float64 `json:"dropout"`

	Tagger       bool    `json:"tagger"`
	TaggerWeight float64 `json:"taggerWeight"`

	Lemmatizer       bool    `json:"lemmatizer"`
	LemmatizerWeight float64 `json:"lemmatizerWeight"`
	LemmaCharDim     int     `json:"lemmaCharDim"`
	TeacherForcing   float64 `json:"teacherForcing"`
	LemmaMaxLength   int     `json:"lemmaMaxLength"`
}

// Vocabs are the vocabularies built from the training corpus.
type Vocabs struct {
	Tokens *vocab.Map
	Chars  *vocab.Map
	Tags   *vocab.Map
}

// Pretrained couples an externally supplied vector table with its own
// vocabulary and freeze flag.
type Pretrained struct {
	Vocab  *vocab.Map
	Table  *mat.Dense
	Frozen bool
}

// Contextual couples a piece tokenizer with its vector table.
type Contextual struct {
	Tokenizer PieceTokenizer
	Table     *mat.Dense
}

// Build wires embeddings and decoders according to cfg, the way the
// training entrypoint composes a model. pretrained and contextual are
// optional.
func Build(cfg Config, vocabs Vocabs, pretrained *Pretrained, contextual *Contextual, rng *rand.Rand) (*Tagger, error) {
	var embeddings []NamedEmbedding
	if cfg.WordDim > 0 {
		embeddings = append(embeddings, NamedEmbedding{
			Name:      ModuleTrained,
			Embedding: NewWordEmbedding(vocabs.Tokens, cfg.WordDim, true, rng),
		})
	}
	if pretrained != nil {
		embeddings = append(embeddings, NamedEmbedding{
			Name:      ModulePretrained,
			Embedding: NewPretrainedEmbedding(pretrained.Vocab, pretrained.Table, pretrained.Frozen, true),
		})
	}
	if cfg.CharDim > 0 {
		embeddings = append(embeddings, NamedEmbedding{
			Name:      ModuleChars,
			Embedding: NewCharEmbedding(vocabs.Chars, cfg.CharDim, cfg.CharHiddenDim, cfg.CharLayers, true, rng),
		})
	}
	if contextual != nil {
		embeddings = append(embeddings, NamedEmbedding{
			Name:      ModuleContextual,
			Embedding: NewContextualEmbedding(contextual.Tokenizer, contextual.Table, false),
		})
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings configured")
	}

	encoder, err := NewEncoder(embeddings, EncoderConfig{
		HiddenDim: cfg.MainHiddenDim,
		Layers:    cfg.MainLayers,
		Dropout:   cfg.Dropout,
	}, rng)
	if err != nil {
		return nil, err
	}

	var decoders []NamedDecoder
	if cfg.Tagger {
		decoders = append(decoders, NamedDecoder{
			Name:    ModuleTagger,
			Decoder: NewTagDecoder(vocabs.Tags, encoder.OutputDim(), cfg.TaggerWeight, rng),
		})
	}
	if cfg.Lemmatizer {
		decoders = append(decoders, NamedDecoder{
			Name: ModuleLemmatizer,
			Decoder: NewLemmaDecoder(vocabs.Chars, LemmaDecoderConfig{
				CharDim:        cfg.LemmaCharDim,
				ContextDim:     encoder.OutputDim(),
				TeacherForcing: cfg.TeacherForcing,
				Dropout:        cfg.Dropout,
				Weight:         cfg.LemmatizerWeight,
				MaxGenerated:   cfg.LemmaMaxLength,
			}, rng),
		})
	}
	if len(decoders) == 0 {
		return nil, fmt.Errorf("no decoders configured")
	}

	return NewTagger(encoder, decoders), nil
}
