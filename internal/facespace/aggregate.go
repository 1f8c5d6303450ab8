package facespace

import (
	"fmt"
	"unicode/utf8"
)

// Aggregate groups projections by label and averages them per dimension.
// Labels keep their first-seen order and compare by exact string equality.
func Aggregate(projections [][]float64, labels []string, k int) ([]string, [][]float64, error) {
	if len(projections) != len(labels) {
		return nil, nil, fmt.Errorf("%w: %d projections for %d labels", ErrEmptyClass, len(projections), len(labels))
	}

	index := make(map[string]int)
	var classLabels []string
	var sums [][]float64
	var counts []int
	for i, label := range labels {
		if len(projections[i]) != k {
			return nil, nil, fmt.Errorf("projection %d has %d components, expected %d", i, len(projections[i]), k)
		}
		c, ok := index[label]
		if !ok {
			if !utf8.ValidString(label) {
				return nil, nil, fmt.Errorf("%w: sample %d label %q", ErrInvalidLabel, i, label)
			}
			c = len(classLabels)
			index[label] = c
			classLabels = append(classLabels, label)
			sums = append(sums, make([]float64, k))
			counts = append(counts, 0)
		}
		for j, v := range projections[i] {
			sums[c][j] += v
		}
		counts[c]++
	}

	for c, sum := range sums {
		if counts[c] == 0 {
			return nil, nil, fmt.Errorf("%w: class %q", ErrEmptyClass, classLabels[c])
		}
		for j := range sum {
			sum[j] /= float64(counts[c])
		}
	}
	return classLabels, sums, nil
}

// TrainClassifier trains trainer on the projections with labels encoded as
// indices into classLabels.
func TrainClassifier(trainer ClassifierTrainer, projections [][]float64, labels, classLabels []string) (Classifier, error) {
	index := make(map[string]int, len(classLabels))
	for i, l := range classLabels {
		index[l] = i
	}
	encoded := make([]int, len(labels))
	for i, l := range labels {
		c, ok := index[l]
		if !ok {
			return nil, fmt.Errorf("%w: label %q has no class", ErrClassifierTrainingFailed, l)
		}
		encoded[i] = c
	}

	clf, err := trainer.Train(projections, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierTrainingFailed, err)
	}
	return clf, nil
}
