package facespace

import (
	"fmt"
	"image"
	"math"
)

// OutcomeKind classifies the result for one face region.
type OutcomeKind int

const (
	// Identified means the region was assigned a known label.
	Identified OutcomeKind = iota
	// Unknown means the region looks like a face but matches no class.
	Unknown
	// Rejected means the region is too far from the face space.
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case Identified:
		return "identified"
	case Unknown:
		return "unknown"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the recognition result of one face region.
type Outcome struct {
	Kind  OutcomeKind `json:"kind"`
	Label string      `json:"label,omitempty"`
	// ClassIndex is the index into the model's class labels, or -1.
	ClassIndex int     `json:"class_index"`
	Residual   float64 `json:"residual"`
	// Distance is the nearest-class distance, or NaN if it was not computed.
	Distance float64   `json:"-"`
	Weights  []float64 `json:"-"`
}

// Recognizer assigns identities to face regions using a Model.
type Recognizer struct {
	Preprocessor Preprocessor
	Provider     SubspaceProvider
}

// NewRecognizer returns a recognizer using pre and the gonum projection.
func NewRecognizer(pre Preprocessor) *Recognizer {
	return &Recognizer{Preprocessor: pre, Provider: GonumProvider{}}
}

// Recognize returns exactly one outcome per region, in region order. A region
// that cannot be normalized fails the whole call.
func (r *Recognizer) Recognize(m *Model, img image.Image, regions []image.Rectangle) ([]Outcome, error) {
	if m == nil {
		return nil, ErrModelNotTrained
	}
	patches := make([]Patch, len(regions))
	for i, region := range regions {
		p, err := r.Preprocessor.Normalize(img, region)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		patches[i] = p
	}
	return r.RecognizePatches(m, patches)
}

// RecognizePatches classifies already normalized patches.
func (r *Recognizer) RecognizePatches(m *Model, patches []Patch) ([]Outcome, error) {
	if m == nil {
		return nil, ErrModelNotTrained
	}
	illum, err := NewIllumination(m.Illumination)
	if err != nil {
		return nil, err
	}
	dist := m.Metric.distance()

	outcomes := make([]Outcome, 0, len(patches))
	for i, p := range patches {
		if p.Width != m.PatchWidth || p.Height != m.PatchHeight || p.Len() != len(m.Mean) {
			return nil, fmt.Errorf("patch %d is %v, model expects %dx%d", i, p.Size(), m.PatchWidth, m.PatchHeight)
		}
		out, err := r.classify(m, illum.Apply(p), dist)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// Project returns the weights of a normalized patch in the model's face space.
func (r *Recognizer) Project(m *Model, p Patch) ([]float64, error) {
	if m == nil {
		return nil, ErrModelNotTrained
	}
	illum, err := NewIllumination(m.Illumination)
	if err != nil {
		return nil, err
	}
	return r.provider().Project(illum.Apply(p).Pix, m.Mean, m.Basis)
}

func (r *Recognizer) classify(m *Model, p Patch, dist distanceFunc) (Outcome, error) {
	weights, err := r.provider().Project(p.Pix, m.Mean, m.Basis)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		ClassIndex: -1,
		Residual:   m.Residual(p.Pix, weights),
		Distance:   math.NaN(),
		Weights:    weights,
	}
	if out.Residual > m.FaceSpaceThreshold {
		out.Kind = Rejected
		return out, nil
	}

	if m.Classifier != nil {
		idx, err := m.Classifier.Predict(weights)
		if err != nil {
			return Outcome{}, fmt.Errorf("classifier prediction failed: %w", err)
		}
		if idx < 0 || idx >= len(m.ClassLabels) {
			return Outcome{}, fmt.Errorf("classifier predicted class %d of %d", idx, len(m.ClassLabels))
		}
		out.Kind = Identified
		out.ClassIndex = idx
		out.Label = m.ClassLabels[idx]
		out.Distance = dist(weights, m.ClassProjections[idx], m.Eigenvalues)
		return out, nil
	}

	best, bestDist := nearestClass(weights, m.ClassProjections, m.Eigenvalues, dist)
	out.Distance = bestDist
	if best < 0 || bestDist > m.UnknownThreshold {
		out.Kind = Unknown
		return out, nil
	}
	out.Kind = Identified
	out.ClassIndex = best
	out.Label = m.ClassLabels[best]
	return out, nil
}

func (r *Recognizer) provider() SubspaceProvider {
	if r.Provider == nil {
		return GonumProvider{}
	}
	return r.Provider
}
