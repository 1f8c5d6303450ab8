package facespace

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultEigenTolerance is the eigenvalue magnitude, relative to the largest
// one, below which a component is treated as numerically zero.
const DefaultEigenTolerance = 1e-10

// GonumProvider fits the face space with the snapshot method: it decomposes
// the N×N Gram matrix of the centered samples instead of the d×d covariance.
type GonumProvider struct {
	Tolerance float64
}

// Fit implements SubspaceProvider.
func (p GonumProvider) Fit(samples [][]float64, components int) (Subspace, error) {
	n := len(samples)
	if n == 0 {
		return Subspace{}, errors.New("no samples to fit")
	}
	d := len(samples[0])
	if d == 0 {
		return Subspace{}, errors.New("samples have no dimensions")
	}

	mean := make([]float64, d)
	for i, s := range samples {
		if len(s) != d {
			return Subspace{}, fmt.Errorf("sample %d has %d dimensions, expected %d", i, len(s), d)
		}
		floats.Add(mean, s)
	}
	floats.Scale(1/float64(n), mean)

	a := mat.NewDense(n, d, nil)
	for i, s := range samples {
		floats.SubTo(a.RawRowView(i), s, mean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, a)

	var eig mat.EigenSym
	if ok := eig.Factorize(&gram, true); !ok {
		return Subspace{}, errors.New("eigen decomposition did not converge")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	tol := p.Tolerance
	if tol <= 0 {
		tol = DefaultEigenTolerance
	}
	cutoff := tol * values[n-1]

	out := Subspace{Mean: mean}
	// Values are ascending.
	for idx := n - 1; idx >= 0 && len(out.Basis) < components; idx-- {
		lambda := values[idx]
		if lambda <= 0 || lambda <= cutoff {
			break
		}
		u := make([]float64, d)
		for i := 0; i < n; i++ {
			floats.AddScaled(u, vectors.At(i, idx), a.RawRowView(i))
		}
		norm := floats.Norm(u, 2)
		if norm == 0 {
			break
		}
		floats.Scale(1/norm, u)
		out.Basis = append(out.Basis, u)
		out.Eigenvalues = append(out.Eigenvalues, lambda)
	}
	return out, nil
}

// Project implements SubspaceProvider.
func (GonumProvider) Project(vec, mean []float64, basis [][]float64) ([]float64, error) {
	if len(vec) != len(mean) {
		return nil, fmt.Errorf("vector has %d dimensions, mean has %d", len(vec), len(mean))
	}
	centered := make([]float64, len(vec))
	floats.SubTo(centered, vec, mean)

	weights := make([]float64, len(basis))
	for i, u := range basis {
		if len(u) != len(centered) {
			return nil, fmt.Errorf("basis vector %d has %d dimensions, expected %d", i, len(u), len(centered))
		}
		weights[i] = floats.Dot(u, centered)
	}
	return weights, nil
}
