package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/model"
	"github.com/kristjanb/postagger-go/pkg/train"
)

func main() {
	modelPath := flag.String("model", "model.json", "path to a trained model checkpoint")
	inPath := flag.String("in", "", "input corpus: one token per line, blank line between sentences")
	outPath := flag.String("out", "", "output path; stdout when empty")
	batchSize := flag.Int("batch", 32, "inference batch size")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	m, _, _, err := model.LoadCheckpointFile(*modelPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *modelPath).Msg("Cannot load model")
	}

	var in *os.File
	if *inPath == "" {
		in = os.Stdin
	} else {
		in, err = os.Open(*inPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *inPath).Msg("Cannot open input")
		}
		defer in.Close()
	}
	ds, err := data.ReadCorpus(in)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read input corpus")
	}

	start := time.Now()
	tags, lemmas := train.Tag(m, ds.Tokens, *batchSize)
	log.Info().
		Int("sentences", ds.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("tagging done")

	out := os.Stdout
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *outPath).Msg("Cannot create output")
		}
		defer out.Close()
	}
	if err := data.WriteCorpus(out, ds.Tokens, tags, lemmas); err != nil {
		log.Fatal().Err(err).Msg("Cannot write output")
	}
}
