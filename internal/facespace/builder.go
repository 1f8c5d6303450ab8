package facespace

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// TrainingSample is one labeled, geometrically normalized face patch.
type TrainingSample struct {
	Patch Patch
	Label string
}

// SubspaceResult is the output of one subspace construction.
type SubspaceResult struct {
	Mean        Patch
	Basis       [][]float64
	Eigenvalues []float64
	// Projections holds one row of weights per input sample, in input order.
	Projections [][]float64
}

// Components returns the face space dimensionality.
func (r *SubspaceResult) Components() int {
	return len(r.Basis)
}

// Builder constructs a face space from a training corpus.
type Builder struct {
	Provider     SubspaceProvider
	Illumination IlluminationNormalizer
}

// NewBuilder returns a builder backed by gonum without illumination normalization.
func NewBuilder() *Builder {
	return &Builder{Provider: GonumProvider{}, Illumination: NoIllumination{}}
}

// BuildSubspace computes mean, basis, normalized eigenvalues and the
// projection of every sample. It does not modify its input.
func (b *Builder) BuildSubspace(samples []TrainingSample) (*SubspaceResult, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, got %d", ErrInsufficientData, len(samples))
	}
	size := samples[0].Patch.Size()
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: sample 0 has empty patch", ErrInsufficientData)
	}

	illum := b.illumination()
	vectors := make([][]float64, len(samples))
	for i, s := range samples {
		if s.Patch.Size() != size || s.Patch.Len() != size.X*size.Y {
			return nil, fmt.Errorf("%w: sample %d is %v, expected %v", ErrInsufficientData, i, s.Patch.Size(), size)
		}
		vectors[i] = illum.Apply(s.Patch).Pix
	}

	k := len(samples) - 1
	sub, err := b.Provider.Fit(vectors, k)
	if err != nil {
		return nil, fmt.Errorf("failed to fit face space: %w", err)
	}
	if len(sub.Basis) < k {
		return nil, fmt.Errorf("%w: corpus spans %d components, need %d", ErrInsufficientData, len(sub.Basis), k)
	}

	eigenvalues, err := normalizeEigenvalues(sub.Eigenvalues[:k])
	if err != nil {
		return nil, err
	}

	result := &SubspaceResult{
		Mean:        Patch{Width: size.X, Height: size.Y, Pix: sub.Mean},
		Basis:       sub.Basis[:k],
		Eigenvalues: eigenvalues,
		Projections: make([][]float64, len(vectors)),
	}
	for i, v := range vectors {
		w, err := b.Provider.Project(v, sub.Mean, result.Basis)
		if err != nil {
			return nil, fmt.Errorf("failed to project sample %d: %w", i, err)
		}
		result.Projections[i] = w
	}
	return result, nil
}

func (b *Builder) illumination() IlluminationNormalizer {
	if b.Illumination == nil {
		return NoIllumination{}
	}
	return b.Illumination
}

// normalizeEigenvalues scales the eigenvalues to unit L2 norm.
func normalizeEigenvalues(values []float64) ([]float64, error) {
	for _, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: invalid eigenvalue %v", ErrInsufficientData, v)
		}
	}
	norm := floats.Norm(values, 2)
	if norm == 0 {
		return nil, fmt.Errorf("%w: all eigenvalues are zero", ErrInsufficientData)
	}
	out := make([]float64, len(values))
	copy(out, values)
	floats.Scale(1/norm, out)
	return out, nil
}
