package facespace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	projections := [][]float64{
		{1, 2},
		{10, 20},
		{3, 4},
		{30, 40},
		{5, 6},
	}
	labels := []string{"bob", "alice", "bob", "alice", "bob"}

	classLabels, classProjections, err := Aggregate(projections, labels, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, classLabels)
	assert.Equal(t, [][]float64{{3, 4}, {20, 30}}, classProjections)
}

func TestAggregateExactLabelEquality(t *testing.T) {
	classLabels, _, err := Aggregate([][]float64{{1}, {2}, {3}}, []string{"Ann", "ann", "Ann "}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "ann", "Ann "}, classLabels)
}

func TestAggregateMisuse(t *testing.T) {
	_, _, err := Aggregate([][]float64{{1}, {2}}, []string{"a"}, 1)
	assert.ErrorIs(t, err, ErrEmptyClass)

	_, _, err = Aggregate([][]float64{{1, 2}}, []string{"a"}, 1)
	assert.Error(t, err)
}

func TestAggregateRejectsInvalidUTF8(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
	}{
		{"single invalid label", []string{"a\xff", "b"}},
		{"labels sharing a replacement form", []string{"a\xff", "a\xfe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Aggregate([][]float64{{1}, {2}}, tt.labels, 1)
			assert.ErrorIs(t, err, ErrInvalidLabel)
		})
	}
}

type stubTrainer struct {
	labels []int
	err    error
}

func (s *stubTrainer) Train(_ [][]float64, labels []int) (Classifier, error) {
	s.labels = labels
	if s.err != nil {
		return nil, s.err
	}
	return fixedClassifier(0), nil
}

type fixedClassifier int

func (c fixedClassifier) Predict([]float64) (int, error) { return int(c), nil }

func TestTrainClassifierEncodesLabels(t *testing.T) {
	trainer := &stubTrainer{}
	clf, err := TrainClassifier(trainer, [][]float64{{1}, {2}, {3}}, []string{"b", "a", "b"}, []string{"b", "a"})
	require.NoError(t, err)
	assert.NotNil(t, clf)
	assert.Equal(t, []int{0, 1, 0}, trainer.labels)
}

func TestTrainClassifierFailure(t *testing.T) {
	_, err := TrainClassifier(&stubTrainer{err: errors.New("diverged")}, [][]float64{{1}}, []string{"a"}, []string{"a"})
	assert.ErrorIs(t, err, ErrClassifierTrainingFailed)

	_, err = TrainClassifier(&stubTrainer{}, [][]float64{{1}}, []string{"x"}, []string{"a"})
	assert.ErrorIs(t, err, ErrClassifierTrainingFailed)
}
