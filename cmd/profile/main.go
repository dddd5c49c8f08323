package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"runtime/pprof"

	"github.com/rs/zerolog"

	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/model"
	"github.com/kristjanb/postagger-go/pkg/optim"
	"github.com/kristjanb/postagger-go/pkg/train"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

const (
	// Model hyperparameters, kept small for fast profiling iterations.
	WordDim       = 16
	CharDim       = 8
	CharHiddenDim = 8
	MainHiddenDim = 16

	// Training hyperparameters
	LearningRate = 0.1
	Epochs       = 5
	BatchSize    = 8

	Seed      = 42
	Sentences = 64
)

// syntheticCorpus builds a deterministic corpus from a fixed symbol pool so
// profiling runs are reproducible without external data files.
func syntheticCorpus(rng *rand.Rand) data.Dataset {
	tokens := []string{"hestur", "fer", "hratt", "yfir", "ána", "og", "köttur", "sefur"}
	tags := []string{"no", "sfg3en", "ao", "af", "no", "c", "no", "sfg3en"}
	lemmas := []string{"hestur", "fara", "hratt", "yfir", "á", "og", "köttur", "sofa"}

	var ds data.Dataset
	for i := 0; i < Sentences; i++ {
		n := 2 + rng.IntN(len(tokens)-1)
		var tok, tag, lem data.Sentence
		for j := 0; j < n; j++ {
			k := rng.IntN(len(tokens))
			tok = append(tok, tokens[k])
			tag = append(tag, tags[k])
			lem = append(lem, lemmas[k])
		}
		ds.Tokens = append(ds.Tokens, tok)
		ds.Tags = append(ds.Tags, tag)
		ds.Lemmas = append(ds.Lemmas, lem)
	}
	return ds
}

func main() {
	cpuFile, err := os.Create("cpu.prof")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
		os.Exit(1)
	}
	defer cpuFile.Close()

	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
		os.Exit(1)
	}
	defer pprof.StopCPUProfile()

	fmt.Println("CPU profiling enabled - writing to cpu.prof")

	rng := rand.New(rand.NewPCG(Seed, Seed))
	ds := syntheticCorpus(rng)
	fmt.Printf("num sentences: %d\n", ds.Len())

	vocabs := model.Vocabs{
		Tokens: vocab.FromSymbols(ds.TokenSymbols()),
		Chars:  vocab.FromSymbols(ds.CharSymbols()),
		Tags:   vocab.FromSymbols(ds.TagSymbols()),
	}
	fmt.Printf("vocab sizes: tokens=%d chars=%d tags=%d\n",
		vocabs.Tokens.Len(), vocabs.Chars.Len(), vocabs.Tags.Len())

	m, err := model.Build(model.Config{
		WordDim:          WordDim,
		CharDim:          CharDim,
		CharHiddenDim:    CharHiddenDim,
		CharLayers:       1,
		MainHiddenDim:    MainHiddenDim,
		MainLayers:       1,
		Tagger:           true,
		TaggerWeight:     1,
		Lemmatizer:       true,
		LemmatizerWeight: 0.1,
		LemmaCharDim:     CharDim,
		TeacherForcing:   0.5,
	}, vocabs, nil, nil, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building model: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("num params: %d\n", len(m.Params()))

	trainer := train.NewTrainer(m, optim.NewSGD(LearningRate), train.Config{
		Epochs:    Epochs,
		BatchSize: BatchSize,
		ClipNorm:  5,
		LRGamma:   0.95,
	}, rng, zerolog.Nop())

	fmt.Printf("Running %d training epochs for profiling...\n", Epochs)
	trainer.Run(ds, data.Dataset{})

	memFile, err := os.Create("mem.prof")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
		os.Exit(1)
	}
	defer memFile.Close()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Memory profiling complete - written to mem.prof")
	fmt.Println("\nTo analyze profiles:")
	fmt.Println("  go tool pprof cpu.prof")
	fmt.Println("  go tool pprof mem.prof")
}
