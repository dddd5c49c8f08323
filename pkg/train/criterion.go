package train

import (
	"github.com/kristjanb/postagger-go/pkg/autograd"
	"github.com/kristjanb/postagger-go/pkg/data"
	"github.com/kristjanb/postagger-go/pkg/model"
	"github.com/kristjanb/postagger-go/pkg/vocab"
)

// CrossEntropy computes the cross-entropy of one logit row against a target
// index, optionally with label smoothing: the smoothed loss mixes the
// negative log-likelihood of the target with the mean negative log-likelihood
// over all classes.
func CrossEntropy(logits []*autograd.Value, target int, smoothing float64) *autograd.Value {
	probs := autograd.FusedSoftmax(logits)
	nll := probs[target].Log().Neg()
	if smoothing <= 0 {
		return nll
	}

	negLogs := make([]*autograd.Value, len(probs))
	for i, p := range probs {
		negLogs[i] = p.Log().Neg()
	}
	smooth := autograd.Sum(negLogs).Mul(autograd.Scalar(1 / float64(len(probs))))

	return nll.Mul(autograd.Scalar(1 - smoothing)).
		Add(smooth.Mul(autograd.Scalar(smoothing)))
}

// SequenceLoss averages the cross-entropy over every (row, step) position
// with a non-padding target. Rows may have fewer logit steps than target
// columns and vice versa; only overlapping positions count.
func SequenceLoss(logits [][][]*autograd.Value, targets [][]int, smoothing float64) (*autograd.Value, int) {
	var losses []*autograd.Value
	for r, row := range logits {
		steps := len(row)
		if len(targets[r]) < steps {
			steps = len(targets[r])
		}
		for s := 0; s < steps; s++ {
			if targets[r][s] == vocab.PadID {
				continue
			}
			losses = append(losses, CrossEntropy(row[s], targets[r][s], smoothing))
		}
	}
	if len(losses) == 0 {
		return autograd.Scalar(0), 0
	}
	mean := autograd.Sum(losses).Mul(autograd.Scalar(1 / float64(len(losses))))
	return mean, len(losses)
}

// BatchLoss combines the per-decoder sequence losses of one forward pass
// into the weighted joint training loss.
func BatchLoss(m *model.Tagger, logits map[string][][][]*autograd.Value, batch data.Batch, smoothing float64) *autograd.Value {
	var parts []*autograd.Value
	for _, dec := range m.Decoders {
		var targets [][]int
		switch dec.Name {
		case model.ModuleTagger:
			targets = batch.TargetTags
		case model.ModuleLemmatizer:
			targets = batch.TargetLemmas
		}
		if targets == nil {
			continue
		}
		loss, count := SequenceLoss(logits[dec.Name], targets, smoothing)
		if count == 0 {
			continue
		}
		parts = append(parts, loss.Mul(autograd.Scalar(dec.Weight())))
	}
	if len(parts) == 0 {
		return autograd.Scalar(0)
	}
	return autograd.Sum(parts)
}
