package facespace

import "errors"

var (
	// ErrInvalidRegion is returned when a face region is empty or leaves the image bounds.
	ErrInvalidRegion = errors.New("invalid face region")
	// ErrInsufficientData is returned when the corpus cannot span a face space.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrClassifierTrainingFailed is returned when the optional classifier could not be trained.
	ErrClassifierTrainingFailed = errors.New("classifier training failed")
	// ErrModelNotTrained is returned when recognition is requested without a model.
	ErrModelNotTrained = errors.New("face space model not trained")
	// ErrEmptyClass is returned when an identity ends up without training rows.
	ErrEmptyClass = errors.New("empty face class")
	// ErrInvalidLabel is returned for identity labels that are not valid UTF-8.
	ErrInvalidLabel = errors.New("identity label is not valid UTF-8")
)
