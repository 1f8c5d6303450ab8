package facespace

// Classifier predicts a class index from projection weights.
type Classifier interface {
	Predict(weights []float64) (int, error)
}

// ClassifierTrainer trains a Classifier on labeled projections. Labels are
// indices into the model's class labels.
type ClassifierTrainer interface {
	Train(features [][]float64, labels []int) (Classifier, error)
}
