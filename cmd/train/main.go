package main

import (
	"encoding/json"
	"flag"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/model"
	"github.com/kristjanb/postagger-go/pkg/optim"
	"github.com/kristjanb/postagger-go/pkg/train"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

const (
	dfltLearningRate = 0.2
	dfltEpochs       = 20
	dfltBatchSize    = 16
	dfltClipNorm     = 5.0
	dfltLRGamma      = 0.95
)

// Conf is the training run configuration, loaded from a JSON file.
type Conf struct {
	TrainingFile string `json:"trainingFile"`
	DevFile      string `json:"devFile"`
	TestFile     string `json:"testFile"`

	VectorsFile   string `json:"vectorsFile"` // pretrained word vectors
	FreezeVectors bool   `json:"freezeVectors"`

	TokenizerFile    string `json:"tokenizerFile"` // sub-word tokenizer definition
	PieceVectorsFile string `json:"pieceVectorsFile"`

	OutDir string `json:"outDir"`
	Seed   uint64 `json:"seed"`

	Optimizer    string  `json:"optimizer"` // "sgd" (default) or "adam"
	LearningRate float64 `json:"learningRate"`
	Beta1        float64 `json:"beta1"`
	Beta2        float64 `json:"beta2"`
	Epsilon      float64 `json:"epsilon"`

	Model    model.Config `json:"model"`
	Training train.Config `json:"training"`
}

func loadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	var conf Conf
	if err := json.Unmarshal(rawData, &conf); err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	return &conf
}

func applyDefaults(conf *Conf) {
	if conf.Optimizer == "" {
		conf.Optimizer = "sgd"
	}
	if conf.LearningRate == 0 {
		conf.LearningRate = dfltLearningRate
		log.Warn().Msgf("learningRate not specified, using default: %g", dfltLearningRate)
	}
	if conf.Beta1 == 0 {
		conf.Beta1 = 0.9
	}
	if conf.Beta2 == 0 {
		conf.Beta2 = 0.999
	}
	if conf.Epsilon == 0 {
		conf.Epsilon = 1e-8
	}
	if conf.Training.Epochs == 0 {
		conf.Training.Epochs = dfltEpochs
		log.Warn().Msgf("training.epochs not specified, using default: %d", dfltEpochs)
	}
	if conf.Training.BatchSize == 0 {
		conf.Training.BatchSize = dfltBatchSize
	}
	// 0 means unset; a negative value switches clipping off.
	if conf.Training.ClipNorm == 0 {
		conf.Training.ClipNorm = dfltClipNorm
	}
	if conf.Training.LRGamma == 0 {
		conf.Training.LRGamma = dfltLRGamma
	}
	if conf.OutDir == "" {
		conf.OutDir = "."
	}
}

func main() {
	confPath := flag.String("config", "", "path to the JSON run configuration")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	conf := loadConfig(*confPath)
	applyDefaults(conf)

	trainDS, err := data.ReadCorpusFile(conf.TrainingFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", conf.TrainingFile).Msg("Cannot read training corpus")
	}
	log.Info().Int("sentences", trainDS.Len()).Msg("training corpus loaded")

	var devDS data.Dataset
	if conf.DevFile != "" {
		devDS, err = data.ReadCorpusFile(conf.DevFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", conf.DevFile).Msg("Cannot read dev corpus")
		}
	}

	vocabs := model.Vocabs{
		Tokens: vocab.FromSymbols(trainDS.TokenSymbols()),
		Chars:  vocab.FromSymbols(trainDS.CharSymbols()),
		Tags:   vocab.FromSymbols(trainDS.TagSymbols()),
	}
	log.Info().
		Int("tokens", vocabs.Tokens.Len()).
		Int("chars", vocabs.Chars.Len()).
		Int("tags", vocabs.Tags.Len()).
		Msg("vocabularies built")

	var pretrained *model.Pretrained
	if conf.VectorsFile != "" {
		vm, table, err := data.LoadVectorsFile(conf.VectorsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", conf.VectorsFile).Msg("Cannot read pretrained vectors")
		}
		pretrained = &model.Pretrained{Vocab: vm, Table: table, Frozen: conf.FreezeVectors}
		log.Info().Int("entries", vm.Len()).Bool("frozen", conf.FreezeVectors).Msg("pretrained vectors loaded")
	}

	var contextual *model.Contextual
	var contextualRef *model.ContextualRef
	if conf.TokenizerFile != "" {
		tok, err := model.LoadPieceTokenizer(conf.TokenizerFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", conf.TokenizerFile).Msg("Cannot load piece tokenizer")
		}
		table, err := data.LoadTableFile(conf.PieceVectorsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", conf.PieceVectorsFile).Msg("Cannot read piece vectors")
		}
		contextual = &model.Contextual{Tokenizer: tok, Table: table}
		contextualRef = &model.ContextualRef{TokenizerPath: conf.TokenizerFile, Table: table}
	}

	rng := rand.New(rand.NewPCG(conf.Seed, conf.Seed))
	m, err := model.Build(conf.Model, vocabs, pretrained, contextual, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot build model")
	}
	params := m.Params()
	log.Info().Int("params", len(params)).Msg("model built")

	var opt optim.Optimizer
	switch conf.Optimizer {
	case "sgd":
		opt = optim.NewSGD(conf.LearningRate)
	case "adam":
		opt = optim.NewAdam(len(params), conf.LearningRate, conf.Beta1, conf.Beta2, conf.Epsilon)
	default:
		log.Fatal().Str("optimizer", conf.Optimizer).Msg("Unknown optimizer")
	}

	trainer := train.NewTrainer(m, opt, conf.Training, rng, log.Logger)
	metrics := trainer.Run(trainDS, devDS)
	if devDS.Len() > 0 {
		log.Info().
			Float64("tagAccuracy", metrics.TagAccuracy).
			Float64("lemmaAccuracy", metrics.LemmaAccuracy).
			Msg("training finished")
	}

	if err := os.MkdirAll(conf.OutDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Cannot create output directory")
	}
	ckptPath := filepath.Join(conf.OutDir, "model.json")
	if err := model.SaveCheckpointFile(ckptPath, m, conf.Model, vocabs, pretrained, contextualRef); err != nil {
		log.Fatal().Err(err).Msg("Cannot write checkpoint")
	}
	log.Info().Str("path", ckptPath).Msg("checkpoint written")

	for name, vm := range map[string]*vocab.Map{
		"tokens.txt": vocabs.Tokens,
		"chars.txt":  vocabs.Chars,
		"tags.txt":   vocabs.Tags,
	} {
		if err := vm.SaveFile(filepath.Join(conf.OutDir, name)); err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Cannot write vocabulary")
		}
	}

	if conf.TestFile != "" {
		testDS, err := data.ReadCorpusFile(conf.TestFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", conf.TestFile).Msg("Cannot read test corpus")
		}
		testMetrics := train.Evaluate(m, testDS, conf.Training.BatchSize)
		log.Info().
			Float64("tagAccuracy", testMetrics.TagAccuracy).
			Float64("lemmaAccuracy", testMetrics.LemmaAccuracy).
			Msg("test evaluation")

		tags, lemmas := train.Tag(m, testDS.Tokens, conf.Training.BatchSize)
		predPath := filepath.Join(conf.OutDir, "predictions.tsv")
		f, err := os.Create(predPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot create predictions file")
		}
		if err := data.WriteCorpus(f, testDS.Tokens, tags, lemmas); err != nil {
			f.Close()
			log.Fatal().Err(err).Msg("Cannot write predictions")
		}
		f.Close()
		log.Info().Str("path", predPath).Msg("predictions written")
	}
}
