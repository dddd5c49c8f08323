package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristjanb/postagger-go/pkg/train"
)

func TestApplyDefaultsFillsUnset(t *testing.T) {
	conf := &Conf{}

	applyDefaults(conf)

	assert.Equal(t, "sgd", conf.Optimizer)
	assert.Equal(t, dfltLearningRate, conf.LearningRate)
	assert.Equal(t, dfltEpochs, conf.Training.Epochs)
	assert.Equal(t, dfltClipNorm, conf.Training.ClipNorm)
	assert.Equal(t, dfltLRGamma, conf.Training.LRGamma)
}

func TestApplyDefaultsKeepsClippingDisabled(t *testing.T) {
	conf := &Conf{Training: train.Config{ClipNorm: -1}}

	applyDefaults(conf)

	assert.Equal(t, -1.0, conf.Training.ClipNorm)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	conf := &Conf{
		Optimizer:    "adam",
		LearningRate: 0.01,
		Training:     train.Config{Epochs: 3, BatchSize: 4, ClipNorm: 2, LRGamma: 0.9},
	}

	applyDefaults(conf)

	assert.Equal(t, "adam", conf.Optimizer)
	assert.Equal(t, 0.01, conf.LearningRate)
	assert.Equal(t, 3, conf.Training.Epochs)
	assert.Equal(t, 2.0, conf.Training.ClipNorm)
}
