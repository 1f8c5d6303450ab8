package facespace

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DecisionMode selects how an identity is assigned to an accepted face.
type DecisionMode int

const (
	// DecisionDistance uses the nearest-class rule with the unknown gate.
	DecisionDistance DecisionMode = iota
	// DecisionClassifier asks the trained classifier for the class index.
	DecisionClassifier
)

func (m DecisionMode) String() string {
	if m == DecisionClassifier {
		return "classifier"
	}
	return "distance"
}

// ParseDecisionMode parses "distance" or "classifier". The empty string selects distance.
func ParseDecisionMode(s string) (DecisionMode, error) {
	switch s {
	case "", "distance":
		return DecisionDistance, nil
	case "classifier":
		return DecisionClassifier, nil
	}
	return 0, fmt.Errorf("unknown decision mode %q", s)
}

// Model is a trained face space. A Model is never modified after training;
// retraining produces a new value.
type Model struct {
	PatchWidth  int
	PatchHeight int

	Mean        []float64
	Basis       [][]float64
	Eigenvalues []float64

	// ClassProjections[i] is the mean projection of ClassLabels[i].
	ClassLabels      []string
	ClassProjections [][]float64

	FaceSpaceThreshold float64
	UnknownThreshold   float64
	Metric             DistanceMetric
	Illumination       string

	// Classifier is set only when classifier mode was requested and its
	// training succeeded.
	Classifier Classifier

	Samples   int
	TrainedAt time.Time
}

// Components returns the face space dimensionality k.
func (m *Model) Components() int {
	return len(m.Basis)
}

// Mode returns the decision mode the model recognizes with.
func (m *Model) Mode() DecisionMode {
	if m.Classifier != nil {
		return DecisionClassifier
	}
	return DecisionDistance
}

// ClassProjection returns the mean projection of label.
func (m *Model) ClassProjection(label string) ([]float64, bool) {
	for i, l := range m.ClassLabels {
		if l == label {
			return m.ClassProjections[i], true
		}
	}
	return nil, false
}

// WithThresholds returns a shallow copy of m using the given thresholds.
func (m *Model) WithThresholds(faceSpace, unknown float64) *Model {
	c := *m
	c.FaceSpaceThreshold = faceSpace
	c.UnknownThreshold = unknown
	return &c
}

// WithMetric returns a shallow copy of m using the given metric.
func (m *Model) WithMetric(metric DistanceMetric) *Model {
	c := *m
	c.Metric = metric
	return &c
}

// Reconstruct returns the face space approximation mean + Σ wᵢ·uᵢ.
func (m *Model) Reconstruct(weights []float64) Patch {
	p := Patch{Width: m.PatchWidth, Height: m.PatchHeight, Pix: make([]float64, len(m.Mean))}
	copy(p.Pix, m.Mean)
	for i, u := range m.Basis {
		floats.AddScaled(p.Pix, weights[i], u)
	}
	return p
}

// Residual returns the distance between pix and its reconstruction from weights.
func (m *Model) Residual(pix, weights []float64) float64 {
	return floats.Distance(pix, m.Reconstruct(weights).Pix, 2)
}

// Validate checks the internal consistency of the model.
func (m *Model) Validate() error {
	d := m.PatchWidth * m.PatchHeight
	if d <= 0 || len(m.Mean) != d {
		return fmt.Errorf("mean has %d values for a %dx%d patch", len(m.Mean), m.PatchWidth, m.PatchHeight)
	}
	k := len(m.Basis)
	if k == 0 {
		return fmt.Errorf("%w: empty basis", ErrInsufficientData)
	}
	if len(m.Eigenvalues) != k {
		return fmt.Errorf("%d eigenvalues for %d basis vectors", len(m.Eigenvalues), k)
	}
	for i, u := range m.Basis {
		if len(u) != d {
			return fmt.Errorf("basis vector %d has %d values, expected %d", i, len(u), d)
		}
		if !(m.Eigenvalues[i] > 0) || math.IsInf(m.Eigenvalues[i], 0) {
			return fmt.Errorf("eigenvalue %d is %v", i, m.Eigenvalues[i])
		}
	}
	if len(m.ClassLabels) == 0 || len(m.ClassLabels) != len(m.ClassProjections) {
		return fmt.Errorf("%w: %d labels for %d class projections", ErrEmptyClass, len(m.ClassLabels), len(m.ClassProjections))
	}
	seen := make(map[string]struct{}, len(m.ClassLabels))
	for i, p := range m.ClassProjections {
		if len(p) != k {
			return fmt.Errorf("class %q has %d components, expected %d", m.ClassLabels[i], len(p), k)
		}
		if _, dup := seen[m.ClassLabels[i]]; dup {
			return fmt.Errorf("duplicate class label %q", m.ClassLabels[i])
		}
		seen[m.ClassLabels[i]] = struct{}{}
	}
	return nil
}
