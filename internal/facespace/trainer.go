package facespace

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize/english"
	log "github.com/sirupsen/logrus"
)

// Trainer runs a full training pass and produces a Model.
type Trainer struct {
	Builder *Builder
	// ClassifierTrainer is used only in classifier mode.
	ClassifierTrainer ClassifierTrainer

	Mode               DecisionMode
	Metric             DistanceMetric
	FaceSpaceThreshold float64
	UnknownThreshold   float64
}

// NewTrainer returns a distance-mode trainer with infinite thresholds.
func NewTrainer() *Trainer {
	return &Trainer{
		Builder:            NewBuilder(),
		Metric:             DefaultMetric,
		FaceSpaceThreshold: math.Inf(1),
		UnknownThreshold:   math.Inf(1),
	}
}

// Train builds a new model from samples.
func (t *Trainer) Train(samples []TrainingSample) (*Model, error) {
	builder := t.Builder
	if builder == nil {
		builder = NewBuilder()
	}

	for i, s := range samples {
		if !utf8.ValidString(s.Label) {
			return nil, fmt.Errorf("%w: sample %d label %q", ErrInvalidLabel, i, s.Label)
		}
	}

	sub, err := builder.BuildSubspace(samples)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(samples))
	for i, s := range samples {
		labels[i] = s.Label
	}
	classLabels, classProjections, err := Aggregate(sub.Projections, labels, sub.Components())
	if err != nil {
		return nil, err
	}

	model := &Model{
		PatchWidth:         sub.Mean.Width,
		PatchHeight:        sub.Mean.Height,
		Mean:               sub.Mean.Pix,
		Basis:              sub.Basis,
		Eigenvalues:        sub.Eigenvalues,
		ClassLabels:        classLabels,
		ClassProjections:   classProjections,
		FaceSpaceThreshold: t.FaceSpaceThreshold,
		UnknownThreshold:   t.UnknownThreshold,
		Metric:             t.Metric,
		Illumination:       builder.illumination().Name(),
		Samples:            len(samples),
		TrainedAt:          time.Now().UTC(),
	}

	if t.Mode == DecisionClassifier {
		model.Classifier, err = t.trainClassifier(sub.Projections, labels, classLabels)
		if err != nil {
			log.WithError(err).Warn("Classifier training failed, falling back to distance metric")
		}
	}

	log.Infof("Trained face space: %s, %s, %s, mode %s",
		english.Plural(model.Samples, "sample", ""),
		english.Plural(model.Components(), "component", ""),
		english.Plural(len(classLabels), "identity", "identities"),
		model.Mode())
	return model, nil
}

func (t *Trainer) trainClassifier(projections [][]float64, labels, classLabels []string) (Classifier, error) {
	if t.ClassifierTrainer == nil {
		return nil, fmt.Errorf("%w: no classifier configured", ErrClassifierTrainingFailed)
	}
	return TrainClassifier(t.ClassifierTrainer, projections, labels, classLabels)
}
