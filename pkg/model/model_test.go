package model

import (
	"bytes"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(42, 0))
}

func sampleBatch() data.Batch {
	tokens := data.Sentences{
		{"Þetta", "er", "próf"},
		{"Já"},
	}
	tags := data.Sentences{
		{"fn", "sfg3en", "no"},
		{"au"},
	}
	lemmas := data.Sentences{
		{"þessi", "vera", "próf"},
		{"já"},
	}
	return data.NewBatch(tokens, tags, lemmas)
}

func sampleVocabs() Vocabs {
	batch := sampleBatch()
	var tokens, tags, chars []string
	for i, sent := range batch.Tokens {
		for _, tok := range sent {
			tokens = append(tokens, tok)
			for _, r := range tok {
				chars = append(chars, string(r))
			}
		}
		for _, tag := range batch.FullTags[i] {
			tags = append(tags, tag)
		}
		for _, lemma := range batch.Lemmas[i] {
			for _, r := range lemma {
				chars = append(chars, string(r))
			}
		}
	}
	return Vocabs{
		Tokens: vocab.FromSymbols(tokens),
		Chars:  vocab.FromSymbols(chars),
		Tags:   vocab.FromSymbols(tags),
	}
}

// oneHot builds a logit row with a single peak at idx.
func oneHot(size, idx int) []*autograd.Value {
	row := make([]*autograd.Value, size)
	for i := range row {
		row[i] = autograd.NewValue(0)
	}
	row[idx] = autograd.NewValue(10)
	return row
}

type fixedPieces map[string][]int

func (f fixedPieces) Pieces(token string) ([]int, error) {
	return f[token], nil
}

func TestWordEmbeddingShape(t *testing.T) {
	vocabs := sampleVocabs()
	emb := NewWordEmbedding(vocabs.Tokens, 5, true, testRNG())
	batch := sampleBatch()

	out := EmbedBatch(emb, batch.Tokens, batch.Lengths, false)

	require.Len(t, out, 2)
	require.Len(t, out[0], 3)
	require.Len(t, out[1], 3)
	assert.Len(t, out[0][0], 5)
	assert.Equal(t, 5, emb.OutputDim())
}

func TestWordEmbeddingPadIsZero(t *testing.T) {
	vocabs := sampleVocabs()
	emb := NewWordEmbedding(vocabs.Tokens, 4, true, testRNG())
	batch := sampleBatch()

	out := EmbedBatch(emb, batch.Tokens, batch.Lengths, false)

	// Sentence 1 has a single real token; positions 1 and 2 are padding.
	for t2 := 1; t2 < 3; t2++ {
		for _, v := range out[1][t2] {
			assert.Zero(t, v.Data)
		}
	}
}

func TestPretrainedFrozenHasNoParams(t *testing.T) {
	vocabs := sampleVocabs()
	rows := vocabs.Tokens.Len()
	table := mat.NewDense(rows, 3, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < 3; j++ {
			table.Set(i, j, float64(i*3+j))
		}
	}

	frozen := NewPretrainedEmbedding(vocabs.Tokens, table, true, true)
	tuned := NewPretrainedEmbedding(vocabs.Tokens, table, false, true)

	assert.Empty(t, frozen.Params())
	assert.NotEmpty(t, tuned.Params())
	assert.True(t, frozen.Frozen())
	assert.False(t, tuned.Frozen())
}

func TestPretrainedFrozenStaysOutsideGraph(t *testing.T) {
	vocabs := sampleVocabs()
	rows := vocabs.Tokens.Len()
	table := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		table.Set(i, 0, 1.5)
		table.Set(i, 1, -0.5)
	}
	emb := NewPretrainedEmbedding(vocabs.Tokens, table, true, true)
	batch := sampleBatch()

	out := EmbedBatch(emb, batch.Tokens, batch.Lengths, true)

	// Pretend a training step wrote gradients into the looked-up values;
	// the table itself must be untouched.
	for _, sent := range out {
		for _, vec := range sent {
			for _, v := range vec {
				v.Data += 100
			}
		}
	}
	assert.Equal(t, 1.5, emb.Table().At(4, 0))
	assert.Equal(t, -0.5, emb.Table().At(4, 1))
}

func TestCharEmbeddingShape(t *testing.T) {
	vocabs := sampleVocabs()
	emb := NewCharEmbedding(vocabs.Chars, 4, 3, 1, true, testRNG())
	batch := sampleBatch()

	out := EmbedBatch(emb, batch.Tokens, batch.Lengths, false)

	require.Len(t, out, 2)
	require.Len(t, out[0], 3)
	assert.Len(t, out[0][0], 6)
	assert.Equal(t, 6, emb.OutputDim())

	// Padding token slots are zero vectors.
	for _, v := range out[1][2] {
		assert.Zero(t, v.Data)
	}
}

func TestContextualEmbeddingMeanPools(t *testing.T) {
	table := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	tok := fixedPieces{
		"er": {0, 2}, // mean: (3, 4)
		"Já": {1},    // (3, 4)
	}
	emb := NewContextualEmbedding(tok, table, false)
	sents := data.Sentences{{"er"}, {"Já"}}

	out := EmbedBatch(emb, sents, []int{1, 1}, false)

	assert.InDelta(t, 3, out[0][0][0].Data, 1e-12)
	assert.InDelta(t, 4, out[0][0][1].Data, 1e-12)
	assert.InDelta(t, 3, out[1][0][0].Data, 1e-12)
	assert.InDelta(t, 4, out[1][0][1].Data, 1e-12)
	assert.Empty(t, emb.Params())
}

func TestContextualEmbeddingUnknownTokenPoolsToZero(t *testing.T) {
	table := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	emb := NewContextualEmbedding(fixedPieces{}, table, false)
	sents := data.Sentences{{"óþekkt"}}

	out := EmbedBatch(emb, sents, []int{1}, false)

	for _, v := range out[0][0] {
		assert.Zero(t, v.Data)
	}
}

func TestEncoderOutputShape(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 5, true, rng)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)
	assert.Equal(t, 6, enc.OutputDim())

	batch := sampleBatch()
	out := enc.Forward(batch, false)

	require.Len(t, out, 2)
	require.Len(t, out[0], 3)
	require.Len(t, out[1], 3)
	assert.Len(t, out[0][0], 6)

	// Padded positions of the short sentence stay zero.
	for t2 := 1; t2 < 3; t2++ {
		for _, v := range out[1][t2] {
			assert.Zero(t, v.Data)
		}
	}
}

func TestEncoderConcatenatesPassThroughAndRecurrent(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	table := mat.NewDense(2, 2, []float64{7, 8, 9, 10})
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 4, true, rng)},
		{Name: ModuleContextual, Embedding: NewContextualEmbedding(fixedPieces{"er": {0}}, table, false)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)
	// 2 pass-through + 6 recurrent.
	assert.Equal(t, 8, enc.OutputDim())

	batch := data.NewBatch(data.Sentences{{"er"}}, nil, nil)
	out := enc.Forward(batch, false)

	require.Len(t, out[0][0], 8)
	// Pass-through features come first, in construction order.
	assert.Equal(t, 7.0, out[0][0][0].Data)
	assert.Equal(t, 8.0, out[0][0][1].Data)
}

func TestEncoderConcatenatesMultipleRecurrentSources(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 5, true, rng)},
		{Name: ModuleChars, Embedding: NewCharEmbedding(vocabs.Chars, 4, 3, 1, true, rng)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)
	// Both sources feed the shared layer; the output is its 2*hidden alone.
	assert.Equal(t, 6, enc.OutputDim())

	batch := sampleBatch()
	out := enc.Forward(batch, false)

	require.Len(t, out, 2)
	require.Len(t, out[0], 3)
	assert.Len(t, out[0][0], 6)
	for t2 := 1; t2 < 3; t2++ {
		for _, v := range out[1][t2] {
			assert.Zero(t, v.Data)
		}
	}
}

func TestEncoderRejectsRecurrentRoutingWithoutLayer(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 4, true, rng)},
	}

	_, err := NewEncoder(embeddings, EncoderConfig{}, rng)

	assert.ErrorIs(t, err, ErrNoRecurrentLayer)
}

func TestTagDecoderLogitShape(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 5, true, rng)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)
	dec := NewTagDecoder(vocabs.Tags, enc.OutputDim(), 1, rng)

	batch := sampleBatch()
	logits := dec.Decode(enc.Forward(batch, false), batch, false)

	require.Len(t, logits, 2)
	require.Len(t, logits[0], 3)
	require.Len(t, logits[1], 3)
	// 4 tags plus the reserved entries.
	assert.Len(t, logits[0][0], 8)
	assert.Equal(t, 8, dec.OutputDim())
}

func TestTagDecoderAddTargetsDoesNotMutate(t *testing.T) {
	vocabs := sampleVocabs()
	dec := NewTagDecoder(vocabs.Tags, 4, 1, testRNG())
	batch := sampleBatch()

	augmented := dec.AddTargets(batch)

	assert.Nil(t, batch.TargetTags)
	require.NotNil(t, augmented.TargetTags)
	require.Len(t, augmented.TargetTags, 2)
	assert.Equal(t, vocabs.Tags.Index("fn"), augmented.TargetTags[0][0])
	assert.Equal(t, vocab.PadID, augmented.TargetTags[1][2])
}

func TestTagDecoderPostprocess(t *testing.T) {
	tags := vocab.FromSymbols([]string{"fn", "sfg3en", "no", "au"})
	dec := NewTagDecoder(tags, 4, 1, testRNG())
	size := tags.Len()

	logits := [][][]*autograd.Value{
		{
			oneHot(size, tags.Index("fn")),
			oneHot(size, tags.Index("sfg3en")),
			oneHot(size, tags.Index("no")),
		},
		{
			oneHot(size, tags.Index("au")),
			oneHot(size, vocab.PadID),
			oneHot(size, vocab.PadID),
		},
	}

	out := dec.Postprocess(logits, []int{3, 1})

	assert.Equal(t, data.Sentences{
		{"fn", "sfg3en", "no"},
		{"au"},
	}, out)
}

func TestLemmaDecoderTrainingStepsMatchTargets(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 5, true, rng)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)

	dec := NewLemmaDecoder(vocabs.Chars, LemmaDecoderConfig{
		CharDim:        4,
		ContextDim:     enc.OutputDim(),
		TeacherForcing: 1.0,
		Weight:         1,
	}, rng)

	batch := dec.AddTargets(sampleBatch())
	require.NotNil(t, batch.TargetLemmas)

	logits := dec.Decode(enc.Forward(batch, true), batch, true)

	// One row per token slot, one step per gold character column.
	require.Len(t, logits, 6)
	targetSteps := len(batch.TargetLemmas[0])
	for _, row := range logits {
		assert.Len(t, row, targetSteps)
		assert.Len(t, row[0], vocabs.Chars.Len())
	}
}

func TestLemmaDecoderGoldPathReproducesLemma(t *testing.T) {
	tokens := vocab.FromSymbols([]string{"próf"})
	chars := vocab.FromSymbols(strings.Split("próf", ""))
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(tokens, 5, true, rng)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)

	dec := NewLemmaDecoder(chars, LemmaDecoderConfig{
		CharDim:        4,
		ContextDim:     enc.OutputDim(),
		TeacherForcing: 1.0,
		Weight:         1,
	}, rng)

	batch := dec.AddTargets(data.NewBatch(
		data.Sentences{{"próf"}}, nil, data.Sentences{{"próf"}}))

	// The gold lemma encodes as its four characters plus a trailing EOS.
	require.Len(t, batch.TargetLemmas, 1)
	target := batch.TargetLemmas[0]
	require.Len(t, target, 5)
	assert.Equal(t, vocab.EosID, target[4])

	// With full gold feeding the generator runs exactly one step per target
	// column.
	logits := dec.Decode(enc.Forward(batch, true), batch, true)
	require.Len(t, logits, 1)
	require.Len(t, logits[0], 5)

	// A generator whose argmax follows the gold characters reproduces the
	// lemma exactly, EOS and all.
	gold := make([][]*autograd.Value, len(target))
	for s, idx := range target {
		gold[s] = oneHot(chars.Len(), idx)
	}
	out := dec.Postprocess([][][]*autograd.Value{gold}, []int{1})
	assert.Equal(t, data.Sentences{{"próf"}}, out)
}

func TestLemmaDecoderInferenceRespectsCap(t *testing.T) {
	vocabs := sampleVocabs()
	rng := testRNG()
	embeddings := []NamedEmbedding{
		{Name: ModuleTrained, Embedding: NewWordEmbedding(vocabs.Tokens, 5, true, rng)},
	}
	enc, err := NewEncoder(embeddings, EncoderConfig{HiddenDim: 3, Layers: 1}, rng)
	require.NoError(t, err)

	dec := NewLemmaDecoder(vocabs.Chars, LemmaDecoderConfig{
		CharDim:      4,
		ContextDim:   enc.OutputDim(),
		Weight:       1,
		MaxGenerated: 5,
	}, rng)

	batch := data.NewBatch(sampleBatch().Tokens, nil, nil)
	logits := dec.Decode(enc.Forward(batch, false), batch, false)

	require.Len(t, logits, 6)
	for _, row := range logits {
		assert.LessOrEqual(t, len(row), 5)
	}
}

func TestLemmaDecoderPostprocess(t *testing.T) {
	chars := vocab.FromSymbols(strings.Split("járnpóf", ""))
	dec := NewLemmaDecoder(chars, LemmaDecoderConfig{
		CharDim:    2,
		ContextDim: 2,
		Weight:     1,
	}, testRNG())
	size := chars.Len()

	// One sentence with a single token; generation runs past EOS and through
	// special symbols, which postprocessing must drop.
	logits := [][][]*autograd.Value{
		{
			oneHot(size, chars.Index("j")),
			oneHot(size, vocab.UnkID),
			oneHot(size, chars.Index("á")),
			oneHot(size, vocab.EosID),
			oneHot(size, chars.Index("r")),
		},
	}

	out := dec.Postprocess(logits, []int{1})

	assert.Equal(t, data.Sentences{{"já"}}, out)
}

func TestLemmaDecoderPostprocessWithoutEOS(t *testing.T) {
	chars := vocab.FromSymbols(strings.Split("já", ""))
	dec := NewLemmaDecoder(chars, LemmaDecoderConfig{
		CharDim:    2,
		ContextDim: 2,
		Weight:     1,
	}, testRNG())
	size := chars.Len()

	logits := [][][]*autograd.Value{
		{
			oneHot(size, chars.Index("j")),
			oneHot(size, chars.Index("á")),
		},
	}

	out := dec.Postprocess(logits, []int{1})

	assert.Equal(t, data.Sentences{{"já"}}, out)
}

func fullConfig() Config {
	return Config{
		WordDim:          5,
		CharDim:          4,
		CharHiddenDim:    3,
		CharLayers:       1,
		MainHiddenDim:    3,
		MainLayers:       1,
		Tagger:           true,
		TaggerWeight:     1,
		Lemmatizer:       true,
		LemmatizerWeight: 0.1,
		LemmaCharDim:     4,
		TeacherForcing:   0.5,
		LemmaMaxLength:   10,
	}
}

func TestBuildAndForward(t *testing.T) {
	vocabs := sampleVocabs()
	m, err := Build(fullConfig(), vocabs, nil, nil, testRNG())
	require.NoError(t, err)

	batch := sampleBatch()
	logits, augmented := m.Forward(batch, true)

	require.Contains(t, logits, ModuleTagger)
	require.Contains(t, logits, ModuleLemmatizer)
	require.Len(t, logits[ModuleTagger], 2)
	assert.Len(t, logits[ModuleTagger][0], 3)
	assert.Len(t, logits[ModuleTagger][0][0], vocabs.Tags.Len())
	assert.Len(t, logits[ModuleLemmatizer], 6)

	assert.NotNil(t, augmented.TargetTags)
	assert.NotNil(t, augmented.TargetLemmas)
	assert.Nil(t, batch.TargetTags)
}

func TestBuildRequiresEmbeddings(t *testing.T) {
	cfg := fullConfig()
	cfg.WordDim = 0
	cfg.CharDim = 0

	_, err := Build(cfg, sampleVocabs(), nil, nil, testRNG())

	assert.Error(t, err)
}

func TestBuildRequiresDecoders(t *testing.T) {
	cfg := fullConfig()
	cfg.Tagger = false
	cfg.Lemmatizer = false

	_, err := Build(cfg, sampleVocabs(), nil, nil, testRNG())

	assert.Error(t, err)
}

func TestTaggerParamsDeterministicOrder(t *testing.T) {
	vocabs := sampleVocabs()
	m1, err := Build(fullConfig(), vocabs, nil, nil, testRNG())
	require.NoError(t, err)
	m2, err := Build(fullConfig(), vocabs, nil, nil, testRNG())
	require.NoError(t, err)

	p1 := m1.Params()
	p2 := m2.Params()
	require.Equal(t, len(p1), len(p2))
	for i := range p1 {
		assert.Equal(t, p1[i].Data, p2[i].Data)
	}
}

func TestZeroGrads(t *testing.T) {
	m, err := Build(fullConfig(), sampleVocabs(), nil, nil, testRNG())
	require.NoError(t, err)

	for _, p := range m.Params() {
		p.Grad = 1
	}
	m.ZeroGrads()
	for _, p := range m.Params() {
		assert.Zero(t, p.Grad)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	vocabs := sampleVocabs()
	cfg := fullConfig()
	m, err := Build(cfg, vocabs, nil, nil, testRNG())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, SaveCheckpoint(&buf, m, cfg, vocabs, nil, nil))

	loaded, loadedCfg, loadedVocabs, err := LoadCheckpoint(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, loadedCfg)
	assert.Equal(t, vocabs.Tags.Symbols(), loadedVocabs.Tags.Symbols())

	orig := m.Params()
	restored := loaded.Params()
	require.Equal(t, len(orig), len(restored))
	for i := range orig {
		assert.Equal(t, orig[i].Data, restored[i].Data)
	}

	// Inference on the restored model matches the original.
	batch := data.NewBatch(sampleBatch().Tokens, nil, nil)
	origLogits, _ := m.Forward(batch, false)
	restLogits, _ := loaded.Forward(batch, false)

	origTags := m.Decoder(ModuleTagger).Postprocess(origLogits[ModuleTagger], batch.Lengths)
	restTags := loaded.Decoder(ModuleTagger).Postprocess(restLogits[ModuleTagger], batch.Lengths)
	assert.Equal(t, origTags, restTags)
}

func TestCheckpointRoundTripWithPretrained(t *testing.T) {
	vocabs := sampleVocabs()
	cfg := fullConfig()

	rows := vocabs.Tokens.Len()
	table := mat.NewDense(rows, 3, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < 3; j++ {
			table.Set(i, j, float64(i)+float64(j)/10)
		}
	}
	pretrained := &Pretrained{Vocab: vocabs.Tokens, Table: table, Frozen: true}

	m, err := Build(cfg, vocabs, pretrained, nil, testRNG())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, SaveCheckpoint(&buf, m, cfg, vocabs, pretrained, nil))

	loaded, _, _, err := LoadCheckpoint(&buf)
	require.NoError(t, err)

	batch := data.NewBatch(sampleBatch().Tokens, nil, nil)
	origLogits, _ := m.Forward(batch, false)
	restLogits, _ := loaded.Forward(batch, false)
	origTags := m.Decoder(ModuleTagger).Postprocess(origLogits[ModuleTagger], batch.Lengths)
	restTags := loaded.Decoder(ModuleTagger).Postprocess(restLogits[ModuleTagger], batch.Lengths)
	assert.Equal(t, origTags, restTags)
}
