package train

import (
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/model"
	"github.com/kristjanb/postagger-go/pkg/optim"
)

// Config sets the training schedule.
type Config struct {
	Epochs         int     `json:"epochs"`
	BatchSize      int     `json:"batchSize"`
	ClipNorm       float64 `json:"clipNorm"`       // <= 0 disables clipping
	LRGamma        float64 `json:"lrGamma"`        // multiplicative decay per epoch
	LabelSmoothing float64 `json:"labelSmoothing"` // 0 disables smoothing
}

// Trainer drives the epoch loop: shuffle, forward, backward, clip, step,
// decay, evaluate.
type Trainer struct {
	model *model.Tagger
	opt   optim.Optimizer
	cfg   Config
	rng   *rand.Rand
	log   zerolog.Logger
}

// NewTrainer wires a model to an optimizer.
func NewTrainer(m *model.Tagger, opt optim.Optimizer, cfg Config, rng *rand.Rand, log zerolog.Logger) *Trainer {
	return &Trainer{model: m, opt: opt, cfg: cfg, rng: rng, log: log}
}

// Run trains on the training set for the configured number of epochs,
// evaluating on dev after each one, and returns the final dev metrics.
// dev may be empty, in which case only the loss is tracked.
func (t *Trainer) Run(training, dev data.Dataset) Metrics {
	params := t.model.Params()
	var metrics Metrics

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		start := time.Now()
		decay := optim.MultiplicativeDecay(t.cfg.LRGamma, epoch)

		training.Shuffle(t.rng)
		totalLoss := 0.0
		batches := training.Batches(t.cfg.BatchSize)
		for _, batch := range batches {
			totalLoss += t.step(params, batch, decay)
		}

		ev := t.log.Info().
			Int("epoch", epoch+1).
			Float64("loss", totalLoss/float64(len(batches))).
			Float64("lrDecay", decay).
			Dur("elapsed", time.Since(start))
		if dev.Len() > 0 {
			metrics = Evaluate(t.model, dev, t.cfg.BatchSize)
			ev = ev.
				Float64("tagAccuracy", metrics.TagAccuracy).
				Float64("lemmaAccuracy", metrics.LemmaAccuracy)
		}
		ev.Msg("epoch complete")
	}
	return metrics
}

func (t *Trainer) step(params []*autograd.Value, batch data.Batch, decay float64) float64 {
	logits, augmented := t.model.Forward(batch, true)
	loss := BatchLoss(t.model, logits, augmented, t.cfg.LabelSmoothing)
	loss.Backward()
	optim.ClipGradNorm(params, t.cfg.ClipNorm)
	t.opt.Step(params, decay)
	return loss.Data
}
