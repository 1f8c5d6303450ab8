package facespace

// Subspace is the result of a principal component fit.
type Subspace struct {
	Mean        []float64
	Basis       [][]float64
	Eigenvalues []float64
}

// SubspaceProvider isolates the numerical eigen-decomposition from the
// bookkeeping done by the Builder.
type SubspaceProvider interface {
	// Fit returns at most components basis vectors, ordered by descending
	// eigenvalue. Components with a vanishing eigenvalue are omitted.
	Fit(samples [][]float64, components int) (Subspace, error)
	// Project returns the coefficients of vec relative to mean in basis.
	Project(vec, mean []float64, basis [][]float64) ([]float64, error)
}
