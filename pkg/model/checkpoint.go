package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// ContextualRef points at the external artifacts the contextual embedding
// was built from, so a checkpoint can reopen them.
type ContextualRef struct {
	TokenizerPath string
	Table         *mat.Dense
}

type denseDump struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type pretrainedDump struct {
	Symbols []string  `json:"symbols"`
	Table   denseDump `json:"table"`
	Frozen  bool      `json:"frozen"`
}

type contextualDump struct {
	TokenizerPath string    `json:"tokenizerPath"`
	Table         denseDump `json:"table"`
}

// checkpointFile is the serialized module graph: enough structure and
// weights to reconstruct the model and run inference without the original
// training configuration.
type checkpointFile struct {
	Config     Config          `json:"config"`
	TokenVocab []string        `json:"tokenVocab"`
	CharVocab  []string        `json:"charVocab"`
	TagVocab   []string        `json:"tagVocab"`
	Pretrained *pretrainedDump `json:"pretrained,omitempty"`
	Contextual *contextualDump `json:"contextual,omitempty"`
	Weights    []float64       `json:"weights"`
}

func dumpDense(d *mat.Dense) denseDump {
	rows, cols := d.Dims()
	out := denseDump{Rows: rows, Cols: cols, Data: make([]float64, 0, rows*cols)}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Data = append(out.Data, d.At(i, j))
		}
	}
	return out
}

func (d denseDump) dense() *mat.Dense {
	return mat.NewDense(d.Rows, d.Cols, d.Data)
}

// SaveCheckpoint serializes the model: architecture config, vocabularies
// and every trainable weight in parameter order. pretrained and contextual
// may be nil when the corresponding embedding is absent.
func SaveCheckpoint(w io.Writer, m *Tagger, cfg Config, vocabs Vocabs, pretrained *Pretrained, contextual *ContextualRef) error {
	params := m.Params()
	weights := make([]float64, len(params))
	for i, p := range params {
		weights[i] = p.Data
	}

	file := checkpointFile{
		Config:     cfg,
		TokenVocab: vocabs.Tokens.Symbols(),
		CharVocab:  vocabs.Chars.Symbols(),
		TagVocab:   vocabs.Tags.Symbols(),
		Weights:    weights,
	}
	if pretrained != nil {
		file.Pretrained = &pretrainedDump{
			Symbols: pretrained.Vocab.Symbols(),
			Table:   dumpDense(pretrained.Table),
			Frozen:  pretrained.Frozen,
		}
	}
	if contextual != nil {
		file.Contextual = &contextualDump{
			TokenizerPath: contextual.TokenizerPath,
			Table:         dumpDense(contextual.Table),
		}
	}
	return json.NewEncoder(w).Encode(&file)
}

// LoadCheckpoint reconstructs a model saved with SaveCheckpoint. The
// contextual embedding's piece tokenizer is reopened from its recorded path.
func LoadCheckpoint(r io.Reader) (*Tagger, Config, Vocabs, error) {
	var file checkpointFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, Config{}, Vocabs{}, fmt.Errorf("decoding checkpoint: %w", err)
	}

	vocabs := Vocabs{
		Tokens: vocab.FromOrdered(file.TokenVocab),
		Chars:  vocab.FromOrdered(file.CharVocab),
		Tags:   vocab.FromOrdered(file.TagVocab),
	}

	var pretrained *Pretrained
	if file.Pretrained != nil {
		pretrained = &Pretrained{
			Vocab:  vocab.FromOrdered(file.Pretrained.Symbols),
			Table:  file.Pretrained.Table.dense(),
			Frozen: file.Pretrained.Frozen,
		}
	}

	var contextual *Contextual
	if file.Contextual != nil {
		tok, err := LoadPieceTokenizer(file.Contextual.TokenizerPath)
		if err != nil {
			return nil, Config{}, Vocabs{}, err
		}
		contextual = &Contextual{Tokenizer: tok, Table: file.Contextual.Table.dense()}
	}

	// The RNG only seeds initial weights, which are overwritten below.
	m, err := Build(file.Config, vocabs, pretrained, contextual, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		return nil, Config{}, Vocabs{}, err
	}

	params := m.Params()
	if len(params) != len(file.Weights) {
		return nil, Config{}, Vocabs{}, fmt.Errorf(
			"checkpoint weight count %d does not match model parameter count %d",
			len(file.Weights), len(params))
	}
	for i, p := range params {
		p.Data = file.Weights[i]
	}
	return m, file.Config, vocabs, nil
}

// SaveCheckpointFile writes a checkpoint to path.
func SaveCheckpointFile(path string, m *Tagger, cfg Config, vocabs Vocabs, pretrained *Pretrained, contextual *ContextualRef) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return SaveCheckpoint(f, m, cfg, vocabs, pretrained, contextual)
}

// LoadCheckpointFile reads a checkpoint from path.
func LoadCheckpointFile(path string) (*Tagger, Config, Vocabs, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Config{}, Vocabs{}, err
	}
	defer f.Close()
	return LoadCheckpoint(f)
}
